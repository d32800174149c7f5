package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

const testTimeout = 2 * time.Second

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	t.Cleanup(cancel)
	return ctx
}

func metaJSON(t *testing.T, body string) Meta {
	t.Helper()
	var m Meta
	if err := json.Unmarshal([]byte(body), &m); err != nil {
		t.Fatalf("unmarshal meta: %v", err)
	}
	return m
}

// fakeAPI serves queued describe results; the last one repeats.
type fakeAPI struct {
	mu            sync.Mutex
	describe      []func(ctx context.Context) (Meta, error)
	image         func(ctx context.Context) (ImageMeta, error)
	describeCalls int
	imageCalls    int
}

func (f *fakeAPI) Describe(ctx context.Context) (Meta, error) {
	f.mu.Lock()
	if len(f.describe) == 0 {
		f.mu.Unlock()
		return Meta{}, errors.New("no describe configured")
	}
	idx := f.describeCalls
	if idx >= len(f.describe) {
		idx = len(f.describe) - 1
	}
	fn := f.describe[idx]
	f.describeCalls++
	f.mu.Unlock()
	return fn(ctx)
}

func (f *fakeAPI) Image(ctx context.Context) (ImageMeta, error) {
	f.mu.Lock()
	fn := f.image
	f.imageCalls++
	f.mu.Unlock()
	if fn == nil {
		return ImageMeta{}, errors.New("no image configured")
	}
	return fn(ctx)
}

func (f *fakeAPI) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.describeCalls, f.imageCalls
}

func describeReturns(m Meta) func(context.Context) (Meta, error) {
	return func(context.Context) (Meta, error) { return m, nil }
}

// fakePage is an in-memory document: scripts "load" by flipping globals on.
type fakePage struct {
	mu        sync.Mutex
	globals   map[string]any
	pending   map[string]any
	loads     map[string]int
	loadErr   error
	loadGate  chan struct{}
	loadStart chan string
}

func newFakePage() *fakePage {
	return &fakePage{globals: map[string]any{}, pending: map[string]any{}, loads: map[string]int{}}
}

// provide makes global appear once its script loads.
func (p *fakePage) provide(global string, sdk any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending[global] = sdk
}

func (p *fakePage) LoadScript(ctx context.Context, s Script) error {
	p.mu.Lock()
	p.loads[s.ID]++
	gate, started, err := p.loadGate, p.loadStart, p.loadErr
	p.mu.Unlock()

	if started != nil {
		started <- s.ID
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if sdk, ok := p.pending[s.Global]; ok {
		p.globals[s.Global] = sdk
	}
	return nil
}

func (p *fakePage) Global(name string) any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.globals[name]
}

func (p *fakePage) loadCount(id string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loads[id]
}

// fakeWidgetSDK mimics turnstile/hcaptcha/grecaptcha explicit rendering.
type fakeWidgetSDK struct {
	mu        sync.Mutex
	renderErr error
	rendered  []WidgetOptions
	removed   []string
	reset     []string
}

func (s *fakeWidgetSDK) Render(c *Container, opts WidgetOptions) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.renderErr != nil {
		return "", s.renderErr
	}
	s.rendered = append(s.rendered, opts)
	c.Append("widget")
	return "w1", nil
}

func (s *fakeWidgetSDK) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, id)
	return nil
}

func (s *fakeWidgetSDK) Reset(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset = append(s.reset, id)
	return errors.New("reset exploded")
}

func (s *fakeWidgetSDK) last() WidgetOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rendered[len(s.rendered)-1]
}

func (s *fakeWidgetSDK) removedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.removed...)
}

func (s *fakeWidgetSDK) resetIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.reset...)
}

// fakeGeetest holds the ready callback until the test fires it.
type fakeGeetest struct {
	mu      sync.Mutex
	cfg     GeetestConfig
	ready   func(GeetestCaptcha)
	inited  chan struct{}
	initErr error
}

func newFakeGeetest() *fakeGeetest {
	return &fakeGeetest{inited: make(chan struct{}, 1)}
}

func (g *fakeGeetest) InitGeetest4(cfg GeetestConfig, ready func(GeetestCaptcha)) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.initErr != nil {
		return g.initErr
	}
	g.cfg = cfg
	g.ready = ready
	g.inited <- struct{}{}
	return nil
}

func (g *fakeGeetest) fire(obj GeetestCaptcha) {
	g.mu.Lock()
	ready := g.ready
	g.mu.Unlock()
	ready(obj)
}

type fakeGeetestCaptcha struct {
	mu        sync.Mutex
	appended  bool
	shown     bool
	destroyed int
	validate  *GeetestValidate
	onSuccess func()
	onError   func()
	onClose   func()
}

func (c *fakeGeetestCaptcha) AppendTo(el *Container) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.appended = true
	el.Append("geetest")
	return nil
}

func (c *fakeGeetestCaptcha) ShowCaptcha() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shown = true
	return nil
}

func (c *fakeGeetestCaptcha) OnSuccess(fn func()) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSuccess = fn
	return nil
}

func (c *fakeGeetestCaptcha) OnError(fn func()) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = fn
	return nil
}

func (c *fakeGeetestCaptcha) OnClose(fn func()) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = fn
	return nil
}

func (c *fakeGeetestCaptcha) Validate() (GeetestValidate, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.validate == nil {
		return GeetestValidate{}, false
	}
	return *c.validate, true
}

func (c *fakeGeetestCaptcha) Destroy() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.destroyed++
	panic("destroy is best effort")
}

func (c *fakeGeetestCaptcha) destroyCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyed
}

// tokenLog records every token a mount reports.
type tokenLog struct {
	mu     sync.Mutex
	tokens []string
}

func (l *tokenLog) add(tok string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tokens = append(l.tokens, tok)
}

func (l *tokenLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.tokens...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
