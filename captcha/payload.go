package captcha

// Field names the API expects in form submissions.
const (
	FieldCaptchaID     = "captcha_id"
	FieldCaptchaAnswer = "captcha_answer"
	FieldCaptchaToken  = "captcha_token"
)

// Payload is the flat set of verification fields merged into a form body.
type Payload map[string]string

// BuildPayload returns the submission fields for provider. None yields an
// empty payload, image yields id and answer, every other provider yields the
// token. Empty values are kept: the server decides what is acceptable.
func BuildPayload(p Provider, captchaID, answer, token string) Payload {
	payload := Payload{}
	switch p {
	case ProviderNone:
		return payload
	case ProviderImage:
		payload[FieldCaptchaID] = captchaID
		payload[FieldCaptchaAnswer] = answer
		return payload
	default:
		payload[FieldCaptchaToken] = token
		return payload
	}
}

// MergeInto copies the payload fields into body, overwriting existing keys.
func (p Payload) MergeInto(body map[string]any) {
	for k, v := range p {
		body[k] = v
	}
}
