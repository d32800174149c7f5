// Package jsruntime runs provider captcha SDKs inside the otto pure-Go
// JavaScript interpreter and exposes them to the captcha renderer.
//
// A Page is a small stand-in for a browser document: scripts are fetched over
// HTTP and evaluated into one VM, globals the scripts define are adapted to
// the captcha SDK interfaces, and callbacks from JavaScript are delivered on
// a single event-loop goroutine in the order they were raised.
package jsruntime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/robertkrimen/otto"

	"github.com/perfectpic/perfectpic/sdk/go/captcha"
	"github.com/perfectpic/perfectpic/sdk/go/telemetry"
)

const (
	defaultUserAgent  = "Mozilla/5.0 (compatible; PerfectPicSDK/1.0)"
	defaultLanguage   = "zh-CN"
	maxScriptBytes    = 4 << 20
	defaultFetchLimit = 30 * time.Second
)

// ErrClosed is returned once the page has been closed.
var ErrClosed = errors.New("jsruntime: page closed")

// Option customizes a Page.
type Option func(*Page)

// WithHTTPClient sets the client used to fetch scripts.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Page) { p.httpClient = c }
}

// WithUserAgent sets navigator.userAgent and the fetch User-Agent header.
func WithUserAgent(ua string) Option {
	return func(p *Page) { p.userAgent = ua }
}

// WithNavigatorLanguage sets navigator.language.
func WithNavigatorLanguage(lang string) Option {
	return func(p *Page) { p.language = lang }
}

// WithTelemetry routes page logs into hooks.
func WithTelemetry(h telemetry.Hooks) Option {
	return func(p *Page) { p.telemetry = h }
}

// Page implements captcha.Page on top of an otto VM.
type Page struct {
	httpClient *http.Client
	userAgent  string
	language   string
	telemetry  telemetry.Hooks

	// vmMu serializes every use of vm; otto is not safe for concurrent use.
	vmMu     sync.Mutex
	vm       *otto.Otto
	elements map[string]otto.Value
	nodes    map[string]*captcha.Container
	timers   map[int64]*time.Timer
	nextID   int64

	loop *eventLoop

	mu      sync.Mutex
	scripts []string
	closed  bool
}

var _ captcha.Page = (*Page)(nil)

// New returns a page with a browser-like global environment and a running
// event loop. Close releases it.
func New(opts ...Option) (*Page, error) {
	p := &Page{
		userAgent: defaultUserAgent,
		language:  defaultLanguage,
		elements:  map[string]otto.Value{},
		nodes:     map[string]*captcha.Container{},
		timers:    map[int64]*time.Timer{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.httpClient == nil {
		p.httpClient = &http.Client{Timeout: defaultFetchLimit}
	}

	vm := otto.New()
	bootstrap := fmt.Sprintf(`
var window = this;
var self = this;
var document = { cookie: "", readyState: "complete" };
var navigator = { userAgent: %q, language: %q };
`, p.userAgent, p.language)
	if _, err := vm.Run(bootstrap); err != nil {
		return nil, fmt.Errorf("jsruntime: bootstrap globals: %w", err)
	}
	if err := vm.Set("setTimeout", p.setTimeout); err != nil {
		return nil, fmt.Errorf("jsruntime: install setTimeout: %w", err)
	}
	if err := vm.Set("clearTimeout", p.clearTimeout); err != nil {
		return nil, fmt.Errorf("jsruntime: install clearTimeout: %w", err)
	}
	doc, err := vm.Get("document")
	if err != nil {
		return nil, fmt.Errorf("jsruntime: bootstrap document: %w", err)
	}
	if err := doc.Object().Set("getElementById", p.getElementByID); err != nil {
		return nil, fmt.Errorf("jsruntime: install getElementById: %w", err)
	}
	p.vm = vm
	p.loop = newEventLoop()
	go p.loop.run()
	return p, nil
}

// LoadScript fetches script.URL and evaluates it into the page.
func (p *Page) LoadScript(ctx context.Context, script captcha.Script) error {
	if p.isClosed() {
		return ErrClosed
	}
	src, err := p.fetch(ctx, script.URL)
	if err != nil {
		return err
	}
	if _, err := p.Eval(src); err != nil {
		return fmt.Errorf("jsruntime: evaluate %s: %w", script.ID, err)
	}
	p.mu.Lock()
	p.scripts = append(p.scripts, script.ID)
	p.mu.Unlock()
	p.telemetry.Log(ctx, telemetry.LogLevelInfo, "captcha_script_loaded", map[string]any{
		"id":    script.ID,
		"url":   script.URL,
		"bytes": len(src),
	})
	return nil
}

func (p *Page) fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "application/javascript, */*;q=0.8")
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("jsruntime: fetch %s: %w", url, err)
	}
	//nolint:errcheck // best-effort cleanup on return
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("jsruntime: fetch %s: %s", url, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxScriptBytes+1))
	if err != nil {
		return "", fmt.Errorf("jsruntime: read %s: %w", url, err)
	}
	if len(body) > maxScriptBytes {
		return "", fmt.Errorf("jsruntime: %s exceeds %d bytes", url, maxScriptBytes)
	}
	return string(body), nil
}

// Scripts returns the ids of the scripts evaluated so far, in load order.
func (p *Page) Scripts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.scripts...)
}

// Eval runs src in the page and returns the string form of its last value.
func (p *Page) Eval(src string) (result string, err error) {
	if p.isClosed() {
		return "", ErrClosed
	}
	p.vmMu.Lock()
	defer p.vmMu.Unlock()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("jsruntime: eval panic: %v", rec)
		}
	}()
	v, err := p.vm.Run(src)
	if err != nil {
		return "", err
	}
	return v.String(), nil
}

// Global resolves name to a captcha SDK adapter: functions become a
// GeetestSDK, objects exposing render become a WidgetSDK. Anything else,
// including an undefined global, yields nil.
func (p *Page) Global(name string) any {
	if p.isClosed() {
		return nil
	}
	p.vmMu.Lock()
	defer p.vmMu.Unlock()
	v, err := p.vm.Get(name)
	if err != nil || !v.IsDefined() || v.IsNull() {
		return nil
	}
	if v.IsFunction() {
		return &geetestSDK{page: p, fn: v}
	}
	if !v.IsObject() {
		return nil
	}
	render, err := v.Object().Get("render")
	if err != nil || !render.IsFunction() {
		return nil
	}
	return &widgetSDK{page: p, global: name, obj: v.Object()}
}

// Drain blocks until every callback queued so far has been delivered.
func (p *Page) Drain(ctx context.Context) error {
	done := make(chan struct{})
	if !p.loop.post(func() { close(done) }) {
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the event loop and pending timers. Further calls fail.
func (p *Page) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.vmMu.Lock()
	for id, t := range p.timers {
		t.Stop()
		delete(p.timers, id)
	}
	p.vmMu.Unlock()
	p.loop.stop()
}

func (p *Page) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// element returns the JS object standing in for container, registering it
// with the document on first use. Must hold vmMu.
func (p *Page) element(c *captcha.Container) (otto.Value, error) {
	if v, ok := p.elements[c.ID()]; ok {
		return v, nil
	}
	obj, err := p.vm.Object(`({})`)
	if err != nil {
		return otto.UndefinedValue(), err
	}
	if err := obj.Set("id", c.ID()); err != nil {
		return otto.UndefinedValue(), err
	}
	// appendChild only records the node, so it runs inline on the VM goroutine.
	err = obj.Set("appendChild", func(call otto.FunctionCall) otto.Value {
		c.Append(jsString(call.Argument(0)))
		return call.Argument(0)
	})
	if err != nil {
		return otto.UndefinedValue(), err
	}
	v := obj.Value()
	p.elements[c.ID()] = v
	p.nodes[c.ID()] = c
	return v, nil
}

// getElementByID backs document.getElementById. Called with vmMu held.
func (p *Page) getElementByID(call otto.FunctionCall) otto.Value {
	if v, ok := p.elements[jsString(call.Argument(0))]; ok {
		return v
	}
	return otto.NullValue()
}

// callback wraps fn as a JS function. Arguments are converted on the VM
// goroutine; fn itself runs later on the event loop, so it may call back
// into the page.
func (p *Page) callback(fn func(args []string)) func(otto.FunctionCall) otto.Value {
	return func(call otto.FunctionCall) otto.Value {
		args := make([]string, 0, len(call.ArgumentList))
		for _, a := range call.ArgumentList {
			args = append(args, jsString(a))
		}
		p.loop.post(func() { fn(args) })
		return otto.UndefinedValue()
	}
}

// setTimeout queues fn on the event loop after the delay. Called with vmMu held.
func (p *Page) setTimeout(call otto.FunctionCall) otto.Value {
	fn := call.Argument(0)
	if !fn.IsFunction() {
		return otto.UndefinedValue()
	}
	delay, _ := call.Argument(1).ToInteger()
	if delay < 0 {
		delay = 0
	}
	p.nextID++
	id := p.nextID
	p.timers[id] = time.AfterFunc(time.Duration(delay)*time.Millisecond, func() {
		p.loop.post(func() {
			p.vmMu.Lock()
			defer p.vmMu.Unlock()
			if _, ok := p.timers[id]; !ok {
				return
			}
			delete(p.timers, id)
			_, _ = fn.Call(otto.UndefinedValue())
		})
	})
	v, _ := p.vm.ToValue(id)
	return v
}

// clearTimeout cancels a pending timer. Called with vmMu held.
func (p *Page) clearTimeout(call otto.FunctionCall) otto.Value {
	id, err := call.Argument(0).ToInteger()
	if err != nil {
		return otto.UndefinedValue()
	}
	if t, ok := p.timers[id]; ok {
		t.Stop()
		delete(p.timers, id)
	}
	return otto.UndefinedValue()
}

func jsString(v otto.Value) string {
	if !v.IsDefined() || v.IsNull() {
		return ""
	}
	return v.String()
}
