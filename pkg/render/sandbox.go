package render

import (
	"net/url"
)

// AppSignal is the application's completion signal: either the initial
// render finished (State carries the application state snapshot) or it
// failed (Err carries the cause). Exactly one of the two is meaningful.
type AppSignal struct {
	State map[string]any
	Err   error
}

// Extraction is the rendered output pulled from a sandbox after the
// application signaled completion.
//
// Head elements the application flagged with the data-ssr-remove
// attribute are stripped by the session during extraction, so
// implementations may return HeadHTML as-is.
type Extraction struct {
	// BodyHTML is the rendered application markup.
	BodyHTML string

	// HeadHTML is the rendered head markup.
	HeadHTML string

	// ScriptRefs lists the src attribute of every same-origin script
	// element present in the document, for manifest verification.
	ScriptRefs []string
}

// Sandbox is an isolated, DOM-like execution environment for one render.
// A sandbox is owned by exactly one Session and never shared; the session
// closes it before being discarded. Close terminates timers and callbacks
// owned by the sandbox — best-effort cleanup, not cancellation of an
// execution already in flight.
type Sandbox interface {
	// Execute runs one compiled script inside the environment.
	Execute(script *Script) error

	// Signal delivers the application's completion signal. The channel
	// yields exactly one value per render.
	Signal() <-chan AppSignal

	// Extract pulls the rendered markup out of the environment.
	Extract() (*Extraction, error)

	// InlineScripts returns the source text of every inline script
	// element present in the executed document, for integrity hashing.
	InlineScripts() []string

	// Close releases the environment and everything it owns.
	Close() error
}

// Globals is the per-request global state installed into the sandbox
// before any script runs. The executing application reads it to know its
// environment.
type Globals struct {
	Origin    string          `json:"origin"`
	RequestID string          `json:"requestId"`
	Path      string          `json:"path"`
	Device    string          `json:"device,omitempty"`
	Features  map[string]bool `json:"features,omitempty"`
}

// SandboxConfig is handed to a SandboxFactory for each render.
type SandboxConfig struct {
	// URL is the full request URL the environment is rooted at.
	URL *url.URL

	// Globals is the per-request global state.
	Globals Globals

	// Loader gates and caches the environment's sub-resource fetches.
	Loader *ResourceLoader
}

// SandboxFactory builds a fresh execution environment for one render.
type SandboxFactory func(cfg SandboxConfig) (Sandbox, error)

// shellSandbox renders nothing and signals completion immediately. It
// backs shell mode: the served document carries only the head fragments
// and loader script, and the client renders everything after hydration.
type shellSandbox struct {
	signal chan AppSignal
}

// ShellFactory returns a factory for shell-mode sandboxes. Useful for
// serving a bare application shell without a script engine, and as a
// stand-in in tests.
func ShellFactory() SandboxFactory {
	return func(cfg SandboxConfig) (Sandbox, error) {
		s := &shellSandbox{signal: make(chan AppSignal, 1)}
		s.signal <- AppSignal{State: map[string]any{}}
		return s, nil
	}
}

func (s *shellSandbox) Execute(script *Script) error { return nil }
func (s *shellSandbox) Signal() <-chan AppSignal     { return s.signal }
func (s *shellSandbox) InlineScripts() []string      { return nil }
func (s *shellSandbox) Close() error                 { return nil }

func (s *shellSandbox) Extract() (*Extraction, error) {
	return &Extraction{}, nil
}
