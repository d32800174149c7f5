package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/perfectpic/perfectpic/sdk/go/telemetry"
)

var (
	// ErrSessionNotStarted is returned by Wait before Start was called.
	ErrSessionNotStarted = errors.New("captcha: session not started")
	// ErrSessionClosed is returned by Wait after Close.
	ErrSessionClosed = errors.New("captcha: session closed")

	errStaleEpoch = errors.New("captcha: stale epoch")
)

// Meta is the body of GET /api/captcha. Both fields are kept raw because the
// server contract is loose: a missing or non-string provider means none, and a
// non-object config means no config.
type Meta struct {
	Provider     json.RawMessage `json:"provider,omitempty"`
	PublicConfig json.RawMessage `json:"public_config,omitempty"`
}

// ImageMeta is the body of GET /api/captcha/image.
type ImageMeta struct {
	CaptchaID    string `json:"captcha_id"`
	CaptchaImage string `json:"captcha_image"`
}

// API is the describe-captcha collaborator the session consumes.
type API interface {
	Describe(ctx context.Context) (Meta, error)
	Image(ctx context.Context) (ImageMeta, error)
}

// State is the provider-level view of a session.
type State struct {
	Provider     Provider
	Enabled      bool
	Supported    bool
	Loading      bool
	PublicConfig PublicConfig
	// SiteKey is empty when no widget can be rendered.
	SiteKey string
}

// ImageChallenge is the built-in image provider's state.
type ImageChallenge struct {
	CaptchaID string
	// Image is a data URI or absolute URL usable as an <img src>.
	Image  string
	Answer string
}

// SessionOption customizes a Session.
type SessionOption func(*Session)

// WithTelemetry routes session logs and metrics into hooks.
func WithTelemetry(hooks telemetry.Hooks) SessionOption {
	return func(s *Session) { s.telemetry = hooks }
}

// Session owns the captcha lifecycle of one form.
//
// Every fetch is tagged with the epoch it was started for. Refresh and Close
// advance the epoch, so results of an older fetch are dropped on arrival
// instead of overwriting newer state. Refresh does not abort the older
// request; Close aborts everything the session has in flight.
type Session struct {
	api       API
	telemetry telemetry.Hooks

	mu        sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	started   bool
	closed    bool
	epoch     uint64
	done      chan struct{}
	loading   bool
	provider  Provider
	config    PublicConfig
	captchaID string
	image     string
	answer    string
	token     string
}

// NewSession returns an idle session. Call Start to fetch the config.
func NewSession(api API, opts ...SessionOption) *Session {
	s := &Session{api: api, done: make(chan struct{})}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Start fetches the config for the current epoch. Later calls are no-ops.
// Fetches run under a session-owned context that keeps ctx's values but not
// its cancellation, so a Refresh after ctx ends still reaches the server.
// Close cancels it.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.closed {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.loading = true
	ctx, epoch, done := s.ctx, s.epoch, s.done
	s.mu.Unlock()

	go s.load(ctx, epoch, done)
}

// Refresh clears the answer and token and moves to a new epoch, which
// re-fetches the config and forces any mounted widget to be rebuilt. The fetch
// runs on its own goroutine.
func (s *Session) Refresh() {
	s.mu.Lock()
	s.answer = ""
	s.token = ""
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.epoch++
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.loading = true
	s.done = make(chan struct{})
	ctx, epoch, done := s.ctx, s.epoch, s.done
	s.mu.Unlock()

	go s.load(ctx, epoch, done)
}

// Close invalidates the current epoch. In-flight results are discarded.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.epoch++
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Session) load(ctx context.Context, epoch uint64, done chan struct{}) {
	defer close(done)

	start := time.Now()
	err := s.fetch(ctx, epoch)
	if errors.Is(err, errStaleEpoch) {
		return
	}

	s.mu.Lock()
	if s.closed || s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	if err != nil {
		// Fall back to "no captcha" so login and register are never blocked
		// by a config outage.
		s.provider = ProviderNone
		s.config = nil
		s.captchaID = ""
		s.image = ""
	}
	s.loading = false
	provider := s.provider
	s.mu.Unlock()

	if err != nil {
		s.telemetry.Log(ctx, telemetry.LogLevelError, "captcha_config_fetch_failed", map[string]any{
			"epoch": epoch,
			"error": err.Error(),
		})
		return
	}
	s.telemetry.Log(ctx, telemetry.LogLevelInfo, "captcha_config_loaded", map[string]any{
		"epoch":    epoch,
		"provider": string(provider),
	})
	s.telemetry.Metric(ctx, "captcha_config_fetch_latency_ms", float64(time.Since(start).Milliseconds()), map[string]string{
		"provider": string(provider),
	})
}

func (s *Session) fetch(ctx context.Context, epoch uint64) error {
	meta, err := s.api.Describe(ctx)
	if err != nil {
		return err
	}
	provider := ResolveProvider(meta.Provider)
	cfg := NormalizePublicConfig(meta.PublicConfig)

	ok := s.commit(epoch, func() {
		s.answer = ""
		s.token = ""
		s.provider = provider
		s.config = cfg
		if provider != ProviderImage {
			s.captchaID = ""
			s.image = ""
		}
	})
	if !ok {
		return errStaleEpoch
	}
	if provider != ProviderImage {
		return nil
	}

	img, err := s.api.Image(ctx)
	if err != nil {
		return err
	}
	if !s.commit(epoch, func() {
		s.captchaID = img.CaptchaID
		s.image = img.CaptchaImage
	}) {
		return errStaleEpoch
	}
	return nil
}

// commit applies fn only while epoch is still current.
func (s *Session) commit(epoch uint64, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.epoch != epoch {
		return false
	}
	fn()
	return true
}

// Wait blocks until the fetch for the current epoch has finished. If a
// Refresh happens meanwhile it keeps waiting for the newer fetch.
func (s *Session) Wait(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return ErrSessionClosed
		}
		if !s.started {
			s.mu.Unlock()
			return ErrSessionNotStarted
		}
		done, epoch := s.done, s.epoch
		s.mu.Unlock()

		select {
		case <-done:
			s.mu.Lock()
			current := s.epoch == epoch && !s.closed
			s.mu.Unlock()
			if current {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Epoch returns the current epoch.
func (s *Session) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// State returns a snapshot of the provider state. SiteKey is recomputed from
// provider and config on every call.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// Snapshot returns the provider state together with the epoch it belongs to,
// read under one lock.
func (s *Session) Snapshot() (State, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked(), s.epoch
}

func (s *Session) stateLocked() State {
	siteKey, _ := SiteKey(s.provider, s.config)
	return State{
		Provider:     s.provider,
		Enabled:      s.provider.Enabled(),
		Supported:    IsSupported(s.provider),
		Loading:      s.loading,
		PublicConfig: s.config,
		SiteKey:      siteKey,
	}
}

// Image returns the image challenge state.
func (s *Session) Image() ImageChallenge {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ImageChallenge{CaptchaID: s.captchaID, Image: s.image, Answer: s.answer}
}

// SetAnswer records what the user typed for the image challenge.
func (s *Session) SetAnswer(answer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answer = answer
}

// Token returns the current verification token.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// SetToken stores token if epoch is still current and reports whether it did.
func (s *Session) SetToken(epoch uint64, token string) bool {
	return s.commit(epoch, func() { s.token = token })
}

// TokenSink binds SetToken to epoch, for use as a widget callback.
func (s *Session) TokenSink(epoch uint64) func(token string) {
	return func(token string) { s.SetToken(epoch, token) }
}

// SubmitPayload returns the fields to merge into the form body. It never
// performs I/O.
func (s *Session) SubmitPayload() Payload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return BuildPayload(s.provider, s.captchaID, s.answer, s.token)
}

// Submit hands the current payload to fn. When fn fails the session is
// refreshed so the user gets a fresh challenge, and the error is returned.
func Submit(ctx context.Context, s *Session, fn func(ctx context.Context, payload Payload) error) error {
	err := fn(ctx, s.SubmitPayload())
	if err != nil {
		s.Refresh()
	}
	return err
}
