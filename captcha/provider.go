// Package captcha owns the human-verification step of the auth forms.
//
// A Session negotiates with the API which provider is active and exposes a
// uniform state plus the fields to merge into a form submission. A Renderer
// mounts the provider's widget into a Page and reports the verification token
// back. Field ties the two together the way a login or register form does.
package captcha

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Provider identifies the active verification mechanism. Unknown values are
// kept verbatim so a newer server cannot break older clients.
type Provider string

const (
	ProviderNone      Provider = ""
	ProviderImage     Provider = "image"
	ProviderTurnstile Provider = "turnstile"
	ProviderRecaptcha Provider = "recaptcha"
	ProviderHCaptcha  Provider = "hcaptcha"
	ProviderGeetest   Provider = "geetest"
)

// Enabled reports whether any provider is active.
func (p Provider) Enabled() bool { return p != ProviderNone }

// IsSupported reports whether p is one of the known providers, including none.
func IsSupported(p Provider) bool {
	switch p {
	case ProviderNone, ProviderImage, ProviderTurnstile, ProviderRecaptcha, ProviderHCaptcha, ProviderGeetest:
		return true
	default:
		return false
	}
}

// PublicConfig is the opaque key/value config the server publishes for the
// active provider.
type PublicConfig map[string]any

// publicConfigKeys lists, per provider, the config keys that may carry the
// site key, in lookup order.
var publicConfigKeys = map[Provider][]string{
	ProviderTurnstile: {"turnstile_site_key"},
	ProviderRecaptcha: {"recaptcha_site_key"},
	ProviderHCaptcha:  {"hcaptcha_site_key"},
	ProviderGeetest:   {"geetest_captcha_id"},
}

// SiteKey derives the public widget key for provider from cfg. It returns
// false for none, image, unknown providers and when no registered key holds a
// non-blank string.
func SiteKey(p Provider, cfg PublicConfig) (string, bool) {
	if p == ProviderNone || p == ProviderImage {
		return "", false
	}
	keys, ok := publicConfigKeys[p]
	if !ok {
		return "", false
	}
	return readFirstString(cfg, keys)
}

func readFirstString(cfg PublicConfig, keys []string) (string, bool) {
	if cfg == nil {
		return "", false
	}
	for _, key := range keys {
		s, ok := cfg[key].(string)
		if !ok {
			continue
		}
		if v := strings.TrimSpace(s); v != "" {
			return v, true
		}
	}
	return "", false
}

// ResolveProvider reads the provider field of a describe response. Anything
// other than a JSON string (missing, null, number, object) resolves to none.
func ResolveProvider(raw json.RawMessage) Provider {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '"' {
		return ProviderNone
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ProviderNone
	}
	return Provider(s)
}

// NormalizePublicConfig accepts only a JSON object; arrays, scalars, null and
// malformed input yield nil.
func NormalizePublicConfig(raw json.RawMessage) PublicConfig {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil
	}
	var cfg map[string]any
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil
	}
	return PublicConfig(cfg)
}
