package captcha

import (
	"context"
	"sync"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// View is what a form should show for the captcha field.
type View int

const (
	// ViewHidden: no captcha is active.
	ViewHidden View = iota
	// ViewImage: an answer input next to the challenge image.
	ViewImage
	// ViewUnsupported: the server named a provider this client does not know.
	ViewUnsupported
	// ViewMissingConfig: the provider has no site key configured.
	ViewMissingConfig
	// ViewWidget: the provider widget is mounted.
	ViewWidget
)

func (v View) String() string {
	switch v {
	case ViewImage:
		return "image"
	case ViewUnsupported:
		return "unsupported"
	case ViewMissingConfig:
		return "missing_config"
	case ViewWidget:
		return "widget"
	default:
		return "hidden"
	}
}

// FieldStatus is the render model of the captcha field.
type FieldStatus struct {
	View     View
	Provider Provider
	Loading  bool
	Label    string
	// Message is the localized error line; empty when there is nothing to report.
	Message string
	// Required marks the answer input, or the hidden token input of a widget.
	Required bool

	// Image view.
	Image        string
	ImagePending bool
	Placeholder  string
	ImageTitle   string
	Answer       string

	// Widget view.
	RefreshLabel string
	WidgetFailed bool
	Token        string
}

// FieldOptions configure a Field.
type FieldOptions struct {
	// Optional drops the required marker from the field.
	Optional bool
	// Language selects the message language. Defaults to English.
	Language language.Tag
	// ContainerID is the id of the widget element.
	ContainerID string
}

// Field binds a session to a renderer the way a login or register form does.
type Field struct {
	session   *Session
	renderer  *Renderer
	container *Container
	printer   *message.Printer
	required  bool

	mu    sync.Mutex
	mount *Mount
}

// NewField returns a field for session that mounts widgets through renderer.
func NewField(session *Session, renderer *Renderer, opts FieldOptions) *Field {
	tag := opts.Language
	if tag == language.Und {
		tag = language.English
	}
	return &Field{
		session:   session,
		renderer:  renderer,
		container: NewContainer(opts.ContainerID),
		printer:   newPrinter(tag),
		required:  !opts.Optional,
	}
}

// Container returns the widget element.
func (f *Field) Container() *Container { return f.container }

// Sync reconciles the mounted widget with the session: at most one mount,
// keyed by provider, site key and epoch. It returns the live mount, or nil
// when the current state shows no widget.
func (f *Field) Sync(ctx context.Context) *Mount {
	st, epoch := f.session.Snapshot()

	f.mu.Lock()
	defer f.mu.Unlock()

	if widgetView(st) != ViewWidget {
		if f.mount != nil {
			f.mount.Close()
			f.mount = nil
		}
		return nil
	}
	spec := MountSpec{Provider: st.Provider, SiteKey: st.SiteKey, Epoch: epoch}
	if f.mount != nil && f.mount.Spec() == spec {
		return f.mount
	}
	if f.mount != nil {
		f.mount.Close()
	}
	f.mount = f.renderer.Mount(ctx, spec, f.container, f.session.TokenSink(epoch))
	return f.mount
}

// widgetView picks the view in priority order: disabled, image, unsupported,
// missing site key, widget.
func widgetView(st State) View {
	switch {
	case !st.Enabled:
		return ViewHidden
	case st.Provider == ProviderImage:
		return ViewImage
	case !st.Supported:
		return ViewUnsupported
	case st.SiteKey == "":
		return ViewMissingConfig
	default:
		return ViewWidget
	}
}

// Status returns the current render model.
func (f *Field) Status() FieldStatus {
	st := f.session.State()
	p := f.printer
	status := FieldStatus{
		View:     widgetView(st),
		Provider: st.Provider,
		Loading:  st.Loading,
	}
	if status.View == ViewHidden {
		return status
	}
	status.Label = p.Sprintf(msgLabel)

	switch status.View {
	case ViewImage:
		img := f.session.Image()
		status.Required = f.required
		status.Image = img.Image
		status.ImagePending = img.Image == ""
		status.Answer = img.Answer
		status.Placeholder = p.Sprintf(msgPlaceholder)
		status.ImageTitle = p.Sprintf(msgClickRefresh)
		return status
	case ViewUnsupported:
		status.RefreshLabel = p.Sprintf(msgRefresh)
		status.Message = p.Sprintf(msgUnsupported, string(st.Provider))
	case ViewMissingConfig:
		status.RefreshLabel = p.Sprintf(msgRefresh)
		status.Message = p.Sprintf(msgMissingConfig)
	case ViewWidget:
		status.RefreshLabel = p.Sprintf(msgRefresh)
		status.Required = f.required
		status.Token = f.session.Token()
		f.mu.Lock()
		m := f.mount
		f.mu.Unlock()
		if m != nil && m.Failed() {
			status.WidgetFailed = true
			status.Message = p.Sprintf(msgLoadFailed)
		}
	}
	return status
}

// Refresh asks the session for a fresh challenge. The next Sync remounts.
func (f *Field) Refresh() { f.session.Refresh() }

// Close tears down the mounted widget.
func (f *Field) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mount != nil {
		f.mount.Close()
		f.mount = nil
	}
}
