package captcha

import (
	"context"
	"fmt"
	"sync"
)

// ScriptState tracks one script id within a page.
type ScriptState int

const (
	ScriptAbsent ScriptState = iota
	ScriptLoading
	ScriptLoaded
)

func (s ScriptState) String() string {
	switch s {
	case ScriptLoading:
		return "loading"
	case ScriptLoaded:
		return "loaded"
	default:
		return "absent"
	}
}

type scriptEntry struct {
	state ScriptState
	done  chan struct{}
	err   error
}

// ScriptRegistry makes sure each provider script is injected at most once per
// page. Concurrent callers for the same id share the in-flight load.
//
// A failed load is forgotten once its waiters are released, so the next
// Ensure injects a fresh tag instead of waiting on a dead one.
type ScriptRegistry struct {
	loader ScriptLoader

	mu      sync.Mutex
	entries map[string]*scriptEntry
}

// NewScriptRegistry returns a registry that loads through loader.
func NewScriptRegistry(loader ScriptLoader) *ScriptRegistry {
	return &ScriptRegistry{loader: loader, entries: map[string]*scriptEntry{}}
}

// State reports where the script with id stands.
func (r *ScriptRegistry) State(id string) ScriptState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		return e.state
	}
	return ScriptAbsent
}

// Ensure returns once script is loaded. Cancelling ctx abandons this caller's
// wait only; the shared load keeps going for the other waiters.
func (r *ScriptRegistry) Ensure(ctx context.Context, script Script) error {
	r.mu.Lock()
	e, ok := r.entries[script.ID]
	if ok && e.state == ScriptLoaded {
		r.mu.Unlock()
		return nil
	}
	if !ok {
		e = &scriptEntry{state: ScriptLoading, done: make(chan struct{})}
		r.entries[script.ID] = e
		go r.load(context.WithoutCancel(ctx), script, e)
	}
	r.mu.Unlock()

	select {
	case <-e.done:
		return e.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *ScriptRegistry) load(ctx context.Context, script Script, e *scriptEntry) {
	err := guard(func() error { return r.loader.LoadScript(ctx, script) })

	r.mu.Lock()
	if err != nil {
		e.err = fmt.Errorf("%w: %s: %w", ErrScriptLoad, script.ID, err)
		e.state = ScriptAbsent
		if r.entries[script.ID] == e {
			delete(r.entries, script.ID)
		}
	} else {
		e.state = ScriptLoaded
	}
	r.mu.Unlock()
	close(e.done)
}

// guard runs fn and converts a panic into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return fn()
}

// quietly runs a best-effort cleanup, swallowing panics.
func quietly(fn func()) {
	if fn == nil {
		return
	}
	defer func() { _ = recover() }()
	fn()
}
