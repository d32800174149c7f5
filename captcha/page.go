package captcha

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Script describes one provider SDK script. ID is the element id the page
// uses to de-duplicate the tag; Global is the namespace the script defines.
type Script struct {
	ID     string
	URL    string
	Global string
}

// ScriptLoader injects a script into the page and waits for its load event.
// Each call injects a new tag: de-duplication is the ScriptRegistry's job.
type ScriptLoader interface {
	LoadScript(ctx context.Context, script Script) error
}

// Page is the document a widget is mounted into.
type Page interface {
	ScriptLoader
	// Global returns the namespace a loaded script defined, or nil. Widget
	// providers resolve to a WidgetSDK, Geetest to a GeetestSDK.
	Global(name string) any
}

// WidgetOptions are the render options shared by Turnstile, hCaptcha and
// reCAPTCHA.
type WidgetOptions struct {
	SiteKey string
	// Callback receives the token once the user passes the challenge.
	Callback func(token string)
	Expired  func()
	Error    func()
}

// WidgetSDK is the explicit-render API of Turnstile, hCaptcha and reCAPTCHA.
type WidgetSDK interface {
	// Render returns the widget id; an empty id means the SDK returned none.
	Render(container *Container, opts WidgetOptions) (string, error)
	Remove(widgetID string) error
	Reset(widgetID string) error
}

// GeetestConfig is passed to initGeetest4.
type GeetestConfig struct {
	CaptchaID string
	Product   string
	Language  string
}

// GeetestSDK is the initGeetest4 entry point. ready is called later, once the
// captcha object exists; it may receive nil if the SDK handed back nothing.
type GeetestSDK interface {
	InitGeetest4(cfg GeetestConfig, ready func(GeetestCaptcha)) error
}

// GeetestCaptcha is the control object initGeetest4 hands to its callback.
type GeetestCaptcha interface {
	AppendTo(container *Container) error
	ShowCaptcha() error
	// OnSuccess is required; OnError and OnClose may be no-ops when the SDK
	// lacks the hook.
	OnSuccess(fn func()) error
	OnError(fn func()) error
	OnClose(fn func()) error
	Validate() (GeetestValidate, bool)
	Destroy() error
}

// Container is the element a widget renders into.
type Container struct {
	id string

	mu    sync.Mutex
	nodes []string
}

// NewContainer returns an empty container. A blank id gets a random one.
func NewContainer(id string) *Container {
	if id == "" {
		id = "pp-captcha-" + uuid.NewString()
	}
	return &Container{id: id}
}

// ID returns the element id.
func (c *Container) ID() string { return c.id }

// Clear removes everything rendered into the container.
func (c *Container) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nodes = nil
}

// Append records a node rendered into the container.
func (c *Container) Append(node string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nodes = append(c.nodes, node)
}

// Nodes returns what is currently rendered into the container.
func (c *Container) Nodes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.nodes))
	copy(out, c.nodes)
	return out
}
