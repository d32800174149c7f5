package captcha

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// GeetestValidate is the result of captchaObj.getValidate() after a
// successful Geetest v4 challenge. The server re-validates it against
// Geetest; the client only packages it.
type GeetestValidate struct {
	LotNumber     string `json:"lot_number"`
	CaptchaOutput string `json:"captcha_output"`
	PassToken     string `json:"pass_token"`
	GenTime       string `json:"gen_time"`
}

// EncodeGeetestToken packs v into the single token string the API accepts:
// base64 of the UTF-8 JSON encoding.
func EncodeGeetestToken(v GeetestValidate) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("captcha: encode geetest token: %w", err)
	}
	return base64.StdEncoding.EncodeToString(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// DecodeGeetestToken reverses EncodeGeetestToken.
func DecodeGeetestToken(token string) (GeetestValidate, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return GeetestValidate{}, fmt.Errorf("captcha: decode geetest token: %w", err)
	}
	var v GeetestValidate
	if err := json.Unmarshal(raw, &v); err != nil {
		return GeetestValidate{}, fmt.Errorf("captcha: decode geetest token: %w", err)
	}
	return v, nil
}
