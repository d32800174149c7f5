package captcha

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/text/language"

	"github.com/perfectpic/perfectpic/sdk/go/telemetry"
)

// Phase is where a mount stands in its lifecycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseScriptLoading
	PhaseWidgetReady
	PhaseError
	PhaseTornDown
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseScriptLoading:
		return "script_loading"
	case PhaseWidgetReady:
		return "widget_ready"
	case PhaseError:
		return "error"
	case PhaseTornDown:
		return "torn_down"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// RendererOption customizes a Renderer.
type RendererOption func(*Renderer)

// WithRendererTelemetry routes widget logs into hooks.
func WithRendererTelemetry(hooks telemetry.Hooks) RendererOption {
	return func(r *Renderer) { r.telemetry = hooks }
}

// WithLanguage picks the widget language where the provider supports one.
func WithLanguage(tag language.Tag) RendererOption {
	return func(r *Renderer) { r.geetestLanguage = geetestLanguageFor(tag) }
}

func geetestLanguageFor(tag language.Tag) string {
	base, _ := tag.Base()
	if base.String() == "zh" {
		return GeetestLanguageChinese
	}
	return GeetestLanguageEnglish
}

// Renderer mounts provider widgets into one page.
type Renderer struct {
	page            Page
	scripts         *ScriptRegistry
	telemetry       telemetry.Hooks
	geetestLanguage string
}

// NewRenderer returns a renderer for page. Scripts are shared by every mount
// the renderer creates.
func NewRenderer(page Page, opts ...RendererOption) *Renderer {
	r := &Renderer{
		page:            page,
		scripts:         NewScriptRegistry(page),
		geetestLanguage: GeetestLanguageChinese,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Scripts exposes the page's script registry.
func (r *Renderer) Scripts() *ScriptRegistry { return r.scripts }

// MountSpec identifies one mount. A new epoch always means a new mount.
type MountSpec struct {
	Provider Provider
	SiteKey  string
	Epoch    uint64
}

// Mount is one widget instance. It is created idle, loads the provider
// script, renders, and ends either ready or failed. Close tears it down.
type Mount struct {
	spec      MountSpec
	renderer  *Renderer
	container *Container
	onToken   func(string)

	mu        sync.Mutex
	phase     Phase
	err       error
	cancelled bool
	cleanup   func()
	settled   chan struct{}
	settle    sync.Once
}

// Mount clears container, reports an empty token and starts mounting the
// widget for spec. onToken receives every token change until Close.
func (r *Renderer) Mount(ctx context.Context, spec MountSpec, container *Container, onToken func(string)) *Mount {
	if onToken == nil {
		onToken = func(string) {}
	}
	m := &Mount{
		spec:      spec,
		renderer:  r,
		container: container,
		onToken:   onToken,
		phase:     PhaseIdle,
		settled:   make(chan struct{}),
	}
	container.Clear()
	onToken("")
	go m.run(ctx)
	return m
}

func (m *Mount) run(ctx context.Context) {
	r := m.renderer
	driver, ok := driverFor(m.spec.Provider, r.geetestLanguage)
	if !ok {
		m.Fail(fmt.Errorf("%w: %q", ErrUnknownProvider, m.spec.Provider))
		return
	}
	if !m.setPhase(PhaseScriptLoading) {
		return
	}
	if err := r.scripts.Ensure(ctx, driver.Script()); err != nil {
		m.Fail(err)
		return
	}
	if m.Cancelled() {
		return
	}
	err := guard(func() error {
		return driver.Render(r.page, m.container, m.spec.SiteKey, m)
	})
	if err == nil {
		return
	}
	if !errors.Is(err, ErrSDKMissing) && !errors.Is(err, ErrWidgetRender) {
		err = fmt.Errorf("%w: %w", ErrWidgetRender, err)
	}
	m.Fail(err)
}

func (m *Mount) setPhase(p Phase) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancelled {
		return false
	}
	m.phase = p
	return true
}

func (m *Mount) markSettled() {
	m.settle.Do(func() { close(m.settled) })
}

// Spec returns what the mount was created for.
func (m *Mount) Spec() MountSpec { return m.spec }

// Phase returns the current phase.
func (m *Mount) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Failed reports whether the widget could not be shown.
func (m *Mount) Failed() bool {
	return m.Phase() == PhaseError
}

// Err returns the failure cause, if any.
func (m *Mount) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Wait blocks until the mount is ready, failed or torn down.
func (m *Mount) Wait(ctx context.Context) error {
	select {
	case <-m.settled:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancelled implements Host.
func (m *Mount) Cancelled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancelled
}

// Report implements Host.
func (m *Mount) Report(token string) {
	if m.Cancelled() {
		return
	}
	m.onToken(token)
}

// SetCleanup implements Host.
func (m *Mount) SetCleanup(fn func()) {
	m.mu.Lock()
	if m.cancelled {
		m.mu.Unlock()
		quietly(fn)
		return
	}
	m.cleanup = fn
	m.mu.Unlock()
}

// Ready implements Host.
func (m *Mount) Ready() {
	if !m.setPhase(PhaseWidgetReady) {
		return
	}
	m.markSettled()
	m.renderer.telemetry.Log(context.Background(), telemetry.LogLevelInfo, "captcha_widget_ready", map[string]any{
		"provider": string(m.spec.Provider),
		"epoch":    m.spec.Epoch,
	})
}

// Fail implements Host. It is ignored once the mount is torn down.
func (m *Mount) Fail(err error) {
	m.mu.Lock()
	if m.cancelled {
		m.mu.Unlock()
		return
	}
	m.phase = PhaseError
	m.err = err
	m.mu.Unlock()
	m.markSettled()
	m.renderer.telemetry.Log(context.Background(), telemetry.LogLevelError, "captcha_widget_failed", map[string]any{
		"provider": string(m.spec.Provider),
		"epoch":    m.spec.Epoch,
		"error":    err.Error(),
	})
}

// Close tears the widget down. The mount is marked cancelled before the
// teardown runs, so late SDK callbacks are dropped. Teardown failures are
// ignored.
func (m *Mount) Close() {
	m.mu.Lock()
	if m.cancelled {
		m.mu.Unlock()
		return
	}
	m.cancelled = true
	m.phase = PhaseTornDown
	fn := m.cleanup
	m.cleanup = nil
	m.mu.Unlock()

	m.markSettled()
	quietly(fn)
}
