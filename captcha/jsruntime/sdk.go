package jsruntime

import (
	"errors"
	"fmt"

	"github.com/robertkrimen/otto"

	"github.com/perfectpic/perfectpic/sdk/go/captcha"
)

// widgetSDK adapts a turnstile, hcaptcha or grecaptcha namespace object.
type widgetSDK struct {
	page   *Page
	global string
	obj    *otto.Object
}

var _ captcha.WidgetSDK = (*widgetSDK)(nil)

func (w *widgetSDK) Render(container *captcha.Container, opts captcha.WidgetOptions) (string, error) {
	p := w.page
	p.vmMu.Lock()
	defer p.vmMu.Unlock()

	el, err := p.element(container)
	if err != nil {
		return "", err
	}
	params, err := p.vm.Object(`({})`)
	if err != nil {
		return "", err
	}
	set := func(name string, v any) {
		if err == nil {
			err = params.Set(name, v)
		}
	}
	set("sitekey", opts.SiteKey)
	if opts.Callback != nil {
		fn := opts.Callback
		set("callback", p.callback(func(args []string) {
			token := ""
			if len(args) > 0 {
				token = args[0]
			}
			fn(token)
		}))
	}
	if opts.Expired != nil {
		fn := opts.Expired
		set("expired-callback", p.callback(func([]string) { fn() }))
	}
	if opts.Error != nil {
		fn := opts.Error
		set("error-callback", p.callback(func([]string) { fn() }))
	}
	if err != nil {
		return "", err
	}
	id, err := w.obj.Call("render", el, params.Value())
	if err != nil {
		return "", fmt.Errorf("%s.render: %w", w.global, err)
	}
	return jsString(id), nil
}

func (w *widgetSDK) Remove(widgetID string) error {
	return w.invoke("remove", widgetID)
}

func (w *widgetSDK) Reset(widgetID string) error {
	return w.invoke("reset", widgetID)
}

func (w *widgetSDK) invoke(method, widgetID string) error {
	p := w.page
	p.vmMu.Lock()
	defer p.vmMu.Unlock()
	fn, err := w.obj.Get(method)
	if err != nil {
		return err
	}
	if !fn.IsFunction() {
		return fmt.Errorf("%s.%s is not a function", w.global, method)
	}
	if _, err := w.obj.Call(method, widgetID); err != nil {
		return fmt.Errorf("%s.%s: %w", w.global, method, err)
	}
	return nil
}

// geetestSDK adapts the initGeetest4 function.
type geetestSDK struct {
	page *Page
	fn   otto.Value
}

var _ captcha.GeetestSDK = (*geetestSDK)(nil)

func (g *geetestSDK) InitGeetest4(cfg captcha.GeetestConfig, ready func(captcha.GeetestCaptcha)) error {
	p := g.page
	p.vmMu.Lock()
	defer p.vmMu.Unlock()

	conf, err := p.vm.Object(`({})`)
	if err != nil {
		return err
	}
	for k, v := range map[string]string{
		"captchaId": cfg.CaptchaID,
		"product":   cfg.Product,
		"language":  cfg.Language,
	} {
		if err := conf.Set(k, v); err != nil {
			return err
		}
	}
	// The captcha object is captured as a JS value; converting it to a
	// string like other callback arguments would lose it.
	cb := func(call otto.FunctionCall) otto.Value {
		arg := call.Argument(0)
		p.loop.post(func() {
			if !arg.IsObject() {
				ready(nil)
				return
			}
			ready(&geetestCaptcha{page: p, obj: arg.Object()})
		})
		return otto.UndefinedValue()
	}
	if _, err := g.fn.Call(otto.UndefinedValue(), conf.Value(), cb); err != nil {
		return fmt.Errorf("initGeetest4: %w", err)
	}
	return nil
}

// geetestCaptcha adapts the captchaObj handed to the initGeetest4 callback.
type geetestCaptcha struct {
	page *Page
	obj  *otto.Object
}

var _ captcha.GeetestCaptcha = (*geetestCaptcha)(nil)

func (g *geetestCaptcha) AppendTo(container *captcha.Container) error {
	p := g.page
	p.vmMu.Lock()
	defer p.vmMu.Unlock()
	if err := g.require("appendTo", true); err != nil {
		return err
	}
	if _, err := p.element(container); err != nil {
		return err
	}
	_, err := g.obj.Call("appendTo", "#"+container.ID())
	return wrapGeetest("appendTo", err)
}

// ShowCaptcha is optional in the v4 SDK; objects without it show themselves.
func (g *geetestCaptcha) ShowCaptcha() error {
	return g.call("showCaptcha")
}

func (g *geetestCaptcha) OnSuccess(fn func()) error { return g.on("onSuccess", fn, true) }
func (g *geetestCaptcha) OnError(fn func()) error   { return g.on("onError", fn, false) }
func (g *geetestCaptcha) OnClose(fn func()) error   { return g.on("onClose", fn, false) }

func (g *geetestCaptcha) on(method string, fn func(), required bool) error {
	p := g.page
	p.vmMu.Lock()
	defer p.vmMu.Unlock()
	if err := g.require(method, required); err != nil {
		if errors.Is(err, errSkip) {
			return nil
		}
		return err
	}
	_, err := g.obj.Call(method, p.callback(func([]string) { fn() }))
	return wrapGeetest(method, err)
}

func (g *geetestCaptcha) Validate() (captcha.GeetestValidate, bool) {
	p := g.page
	p.vmMu.Lock()
	defer p.vmMu.Unlock()
	v, err := g.obj.Call("getValidate")
	if err != nil || !v.IsObject() {
		return captcha.GeetestValidate{}, false
	}
	o := v.Object()
	field := func(name string) string {
		f, err := o.Get(name)
		if err != nil {
			return ""
		}
		return jsString(f)
	}
	return captcha.GeetestValidate{
		LotNumber:     field("lot_number"),
		CaptchaOutput: field("captcha_output"),
		PassToken:     field("pass_token"),
		GenTime:       field("gen_time"),
	}, true
}

func (g *geetestCaptcha) Destroy() error {
	return g.call("destroy")
}

// call invokes an optional method; a missing one is a no-op.
func (g *geetestCaptcha) call(method string) error {
	p := g.page
	p.vmMu.Lock()
	defer p.vmMu.Unlock()
	if err := g.require(method, false); err != nil {
		if errors.Is(err, errSkip) {
			return nil
		}
		return err
	}
	_, err := g.obj.Call(method)
	return wrapGeetest(method, err)
}

var errSkip = errors.New("optional method absent")

// require checks that method is a function on the captcha object. A missing
// required method is an error; a missing optional one yields errSkip.
// Must hold vmMu.
func (g *geetestCaptcha) require(method string, required bool) error {
	fn, err := g.obj.Get(method)
	if err != nil {
		return wrapGeetest(method, err)
	}
	if fn.IsFunction() {
		return nil
	}
	if required {
		return fmt.Errorf("captchaObj.%s is not a function", method)
	}
	return errSkip
}

func wrapGeetest(method string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("captchaObj.%s: %w", method, err)
}
