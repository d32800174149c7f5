package captcha

import (
	"errors"
	"fmt"
)

// Scripts lists the SDK script of every scripted provider. URLs and globals
// are fixed by the providers.
var Scripts = map[Provider]Script{
	ProviderTurnstile: {
		ID:     "pp-turnstile-js",
		URL:    "https://challenges.cloudflare.com/turnstile/v0/api.js?render=explicit",
		Global: "turnstile",
	},
	ProviderHCaptcha: {
		ID:     "pp-hcaptcha-js",
		URL:    "https://hcaptcha.com/1/api.js?render=explicit",
		Global: "hcaptcha",
	},
	ProviderRecaptcha: {
		ID:     "pp-recaptcha-js",
		URL:    "https://www.google.com/recaptcha/api.js?render=explicit",
		Global: "grecaptcha",
	},
	ProviderGeetest: {
		ID:     "pp-geetest-js",
		URL:    "https://static.geetest.com/v4/gt4.js",
		Global: "initGeetest4",
	},
}

// Geetest language codes.
const (
	GeetestLanguageChinese = "zho"
	GeetestLanguageEnglish = "eng"

	geetestProduct = "float"
)

// Host is what a driver reports to while mounting. Mount implements it.
type Host interface {
	// Cancelled reports whether the mount has been torn down.
	Cancelled() bool
	// Report forwards a token; "" means not verified.
	Report(token string)
	// SetCleanup registers the teardown. On a cancelled host it runs at once.
	SetCleanup(fn func())
	// Ready marks the widget as rendered.
	Ready()
	// Fail marks the mount as failed.
	Fail(err error)
}

// Driver renders one provider's widget.
type Driver interface {
	Script() Script
	// Render mounts the widget into container. A nil error with no Ready call
	// means initialisation continues asynchronously.
	Render(page Page, container *Container, siteKey string, host Host) error
}

// DriverFor returns the driver for p, or false if p has no scripted widget.
func DriverFor(p Provider) (Driver, bool) {
	return driverFor(p, GeetestLanguageChinese)
}

func driverFor(p Provider, geetestLanguage string) (Driver, bool) {
	script, ok := Scripts[p]
	if !ok {
		return nil, false
	}
	switch p {
	case ProviderTurnstile, ProviderHCaptcha:
		return widgetDriver{script: script}, true
	case ProviderRecaptcha:
		return widgetDriver{script: script, resetOnTeardown: true}, true
	case ProviderGeetest:
		return geetestDriver{script: script, language: geetestLanguage}, true
	default:
		return nil, false
	}
}

type widgetDriver struct {
	script Script
	// reCAPTCHA has no remove; its widgets are reset instead.
	resetOnTeardown bool
}

func (d widgetDriver) Script() Script { return d.script }

func (d widgetDriver) Render(page Page, container *Container, siteKey string, host Host) error {
	sdk, ok := page.Global(d.script.Global).(WidgetSDK)
	if !ok || sdk == nil {
		return fmt.Errorf("%w: %s", ErrSDKMissing, d.script.Global)
	}
	widgetID, err := sdk.Render(container, WidgetOptions{
		SiteKey:  siteKey,
		Callback: host.Report,
		Expired:  func() { host.Report("") },
		Error:    func() { host.Report("") },
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWidgetRender, d.script.Global, err)
	}
	host.SetCleanup(func() {
		if widgetID == "" {
			return
		}
		if d.resetOnTeardown {
			_ = sdk.Reset(widgetID)
			return
		}
		_ = sdk.Remove(widgetID)
	})
	host.Ready()
	return nil
}

type geetestDriver struct {
	script   Script
	language string
}

func (d geetestDriver) Script() Script { return d.script }

func (d geetestDriver) Render(page Page, container *Container, siteKey string, host Host) error {
	sdk, ok := page.Global(d.script.Global).(GeetestSDK)
	if !ok || sdk == nil {
		return fmt.Errorf("%w: %s", ErrSDKMissing, d.script.Global)
	}
	cfg := GeetestConfig{CaptchaID: siteKey, Product: geetestProduct, Language: d.language}
	err := sdk.InitGeetest4(cfg, func(obj GeetestCaptcha) {
		if obj == nil {
			host.Fail(fmt.Errorf("%w: initGeetest4 returned no captcha", ErrWidgetRender))
			return
		}
		if host.Cancelled() {
			quietly(func() { _ = obj.Destroy() })
			return
		}
		if err := guard(func() error { return wireGeetest(obj, container, host) }); err != nil {
			host.Fail(fmt.Errorf("%w: geetest: %w", ErrWidgetRender, err))
			return
		}
		host.SetCleanup(func() { _ = obj.Destroy() })
		host.Ready()
	})
	if err != nil {
		return fmt.Errorf("%w: initGeetest4: %w", ErrWidgetRender, err)
	}
	return nil
}

func wireGeetest(obj GeetestCaptcha, container *Container, host Host) error {
	if err := obj.AppendTo(container); err != nil {
		return err
	}
	if err := obj.ShowCaptcha(); err != nil {
		return err
	}
	err := obj.OnSuccess(func() {
		v, ok := obj.Validate()
		if !ok {
			return
		}
		token, err := EncodeGeetestToken(v)
		if err != nil {
			host.Report("")
			return
		}
		host.Report(token)
	})
	if err != nil {
		return err
	}
	if err := obj.OnError(func() { host.Report("") }); err != nil {
		return err
	}
	return obj.OnClose(func() { host.Report("") })
}

var (
	// ErrScriptLoad means the provider script could not be loaded.
	ErrScriptLoad = errors.New("captcha: script failed to load")
	// ErrSDKMissing means the script loaded but the expected global is absent.
	ErrSDKMissing = errors.New("captcha: provider sdk missing")
	// ErrWidgetRender means the SDK failed to render or initialise the widget.
	ErrWidgetRender = errors.New("captcha: widget render failed")
	// ErrUnknownProvider means there is no widget driver for the provider.
	ErrUnknownProvider = errors.New("captcha: no widget for provider")
)
