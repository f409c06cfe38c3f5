package render

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"time"
)

// Phase identifies a stage of the rendering pipeline. Phases advance
// strictly in order; any failure jumps to PhaseError, which emits the
// error document and finishes.
type Phase int

const (
	PhaseSetup Phase = iota
	PhaseSandboxInit
	PhaseScriptExecution
	PhaseAwaitSignal
	PhaseContentExtraction
	PhaseCSSOptimization
	PhaseDocumentAssembly
	PhaseError
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseSetup:
		return "setup"
	case PhaseSandboxInit:
		return "sandbox-init"
	case PhaseScriptExecution:
		return "script-execution"
	case PhaseAwaitSignal:
		return "await-app-signal"
	case PhaseContentExtraction:
		return "content-extraction"
	case PhaseCSSOptimization:
		return "css-optimization"
	case PhaseDocumentAssembly:
		return "document-assembly"
	case PhaseError:
		return "error-document"
	case PhaseDone:
		return "done"
	}
	return "unknown"
}

// SessionConfig describes one render.
type SessionConfig struct {
	// URL is the full request URL. Required.
	URL *url.URL

	// Origin is the canonical origin ("scheme://host") the application
	// sees and the loader treats as same-origin.
	Origin string

	// RequestID identifies the request in the global state and logs.
	RequestID string

	// Device is the viewport classification exposed to the application.
	Device string

	// Features are feature flags exposed to the application.
	Features map[string]bool

	// Factory builds the sandbox. Required.
	Factory SandboxFactory

	// Compiler compiles scripts for the sandbox. Required when Scripts
	// names any script.
	Compiler Compiler

	// Scripts are the bundles executed in the sandbox, in fixed order.
	Scripts ScriptSet

	// Manifest lists the expected asset bundle file names. Same-origin
	// script references outside it are collected as warnings.
	Manifest []string

	// ManifestHref, when set, adds a manifest link head fragment.
	ManifestHref string

	// StylesheetHref, when set, adds an early stylesheet link. Ignored
	// when OptimizeCSS is on — the pruned styles are inlined instead.
	StylesheetHref string

	// Stylesheet is the main stylesheet source used by CSS optimization.
	Stylesheet string

	// OptimizeCSS inlines only the stylesheet rules used by the rendered
	// markup. Any pruning failure falls back to no inline styles.
	OptimizeCSS bool

	// LoaderSrc is the client loader bundle. It is referenced from the
	// assembled document (unless ServerOnly) and from the error document.
	LoaderSrc string

	// ServerOnly omits the loader script tag: the response is final and
	// the client never hydrates.
	ServerOnly bool

	// LegacyRedirect is an optional inline script that redirects
	// unsupported browsers before the application loads.
	LegacyRedirect string

	// AllowedResources are URL patterns ('*' wildcards) the sandbox may
	// fetch beyond same-origin bundles.
	AllowedResources []string

	// Fetch performs the loader's outbound fetches.
	Fetch FetchFunc

	// Verbose includes a console diagnostic in the error document.
	// Leave off in production.
	Verbose bool

	Logger *slog.Logger
}

// Session owns one request's rendering lifecycle. Create with NewSession,
// drive with Run, discard afterwards. A session is not reusable and not
// safe for concurrent use; the compiled-script cache it consults is
// shared and safe.
type Session struct {
	cfg      SessionConfig
	logger   *slog.Logger
	started  time.Time
	phase    Phase
	manifest map[string]struct{}

	builder *documentBuilder
	sandbox Sandbox
	loader  *ResourceLoader

	appState    map[string]any
	bodyHTML    string
	headHTML    string
	inlineStyle string
	warnings    []string

	failed bool
	cause  error
	doc    *Document
}

// NewSession creates a session for one request. The rendering clock
// starts here.
func NewSession(cfg SessionConfig) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	manifest := make(map[string]struct{}, len(cfg.Manifest))
	for _, name := range cfg.Manifest {
		manifest[name] = struct{}{}
	}
	return &Session{
		cfg:      cfg,
		logger:   logger,
		started:  time.Now(),
		phase:    PhaseSetup,
		manifest: manifest,
		builder:  &documentBuilder{},
	}
}

// Run drives the pipeline to completion and returns the document. A
// failure in any phase is caught once, logged, and converted into the
// error document — Run never returns nil and never propagates a
// rendering failure to the caller.
func (s *Session) Run(ctx context.Context) *Document {
	defer s.release()

	for s.phase != PhaseDone {
		next, err := s.advance(ctx)
		if err != nil {
			if s.phase == PhaseError {
				// The error document itself cannot be rendered; emit the
				// absolute minimum rather than looping.
				s.logger.Error("error document failed", "error", err)
				s.doc = &Document{
					HTML:     []byte("<!DOCTYPE html>\n<html><head></head><body></body></html>\n"),
					Failed:   true,
					Duration: time.Since(s.started),
				}
				break
			}
			s.failed = true
			s.cause = err
			s.logger.Error("render failed",
				"phase", s.phase.String(),
				"url", s.cfg.URL.String(),
				"request_id", s.cfg.RequestID,
				"error", err)
			s.phase = PhaseError
			continue
		}
		s.phase = next
	}
	return s.doc
}

// Failed reports whether the session took the error path. Downstream
// caching policy uses it to select a shorter TTL.
func (s *Session) Failed() bool {
	return s.failed
}

// Warnings returns the non-fatal findings collected during extraction.
func (s *Session) Warnings() []string {
	return s.warnings
}

// advance executes the current phase and returns the next one. A panic
// anywhere in a phase is recovered here — the single catch point the
// pipeline relies on.
func (s *Session) advance(ctx context.Context) (next Phase, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", s.phase, r)
		}
	}()

	switch s.phase {
	case PhaseSetup:
		return s.stepSetup()
	case PhaseSandboxInit:
		return s.stepSandboxInit()
	case PhaseScriptExecution:
		return s.stepScriptExecution()
	case PhaseAwaitSignal:
		return s.stepAwaitSignal(ctx)
	case PhaseContentExtraction:
		return s.stepContentExtraction()
	case PhaseCSSOptimization:
		return s.stepCSSOptimization()
	case PhaseDocumentAssembly:
		return s.stepDocumentAssembly()
	case PhaseError:
		return s.stepErrorDocument()
	default:
		return PhaseDone, fmt.Errorf("invalid phase %d", s.phase)
	}
}

// stepSetup builds the per-request global state and the ordered head
// fragments every assembled document starts from.
func (s *Session) stepSetup() (Phase, error) {
	if s.cfg.URL == nil {
		return 0, fmt.Errorf("session requires a URL")
	}
	if s.cfg.Factory == nil {
		return 0, fmt.Errorf("session requires a sandbox factory")
	}

	if s.cfg.ManifestHref != "" {
		s.builder.addHead(linkTag("manifest", s.cfg.ManifestHref))
	}
	if s.cfg.StylesheetHref != "" && !s.cfg.OptimizeCSS {
		s.builder.addHead(linkTag("stylesheet", s.cfg.StylesheetHref))
	}

	globals := Globals{
		Origin:    s.cfg.Origin,
		RequestID: s.cfg.RequestID,
		Path:      s.cfg.URL.Path,
		Device:    s.cfg.Device,
		Features:  s.cfg.Features,
	}
	tag, source, err := stateScript("__HYDRANT_CTX__", globals)
	if err != nil {
		return 0, err
	}
	s.builder.addInlineScript(tag, source)

	if s.cfg.LegacyRedirect != "" {
		s.builder.addInlineScript("<script>"+s.cfg.LegacyRedirect+"</script>", s.cfg.LegacyRedirect)
	}
	return PhaseSandboxInit, nil
}

// stepSandboxInit creates the isolated execution environment rooted at
// the request URL.
func (s *Session) stepSandboxInit() (Phase, error) {
	s.loader = NewResourceLoader(s.cfg.Origin, s.cfg.Manifest, s.cfg.AllowedResources, s.cfg.Fetch, s.logger)

	sandbox, err := s.cfg.Factory(SandboxConfig{
		URL: s.cfg.URL,
		Globals: Globals{
			Origin:    s.cfg.Origin,
			RequestID: s.cfg.RequestID,
			Path:      s.cfg.URL.Path,
			Device:    s.cfg.Device,
			Features:  s.cfg.Features,
		},
		Loader: s.loader,
	})
	if err != nil {
		return 0, fmt.Errorf("sandbox init: %w", err)
	}
	s.sandbox = sandbox
	return PhaseScriptExecution, nil
}

// stepScriptExecution runs the bundles in their fixed order. Later
// scripts depend on globals installed by earlier ones, so the first
// failure aborts the sequence.
func (s *Session) stepScriptExecution() (Phase, error) {
	for _, scriptPath := range s.cfg.Scripts.Ordered() {
		script, err := LoadScript(scriptPath, s.cfg.Compiler)
		if err != nil {
			return 0, err
		}
		if err := s.sandbox.Execute(script); err != nil {
			return 0, fmt.Errorf("execute %s: %w", scriptPath, err)
		}
	}
	return PhaseAwaitSignal, nil
}

// stepAwaitSignal blocks until the application reports its initial render
// finished or failed. The pipeline imposes no timeout of its own; the
// host's ctx is the only bound, and a stuck application stalls only this
// request.
func (s *Session) stepAwaitSignal(ctx context.Context) (Phase, error) {
	select {
	case sig := <-s.sandbox.Signal():
		if sig.Err != nil {
			return 0, fmt.Errorf("application signaled failure: %w", sig.Err)
		}
		s.appState = sig.State
		if s.appState == nil {
			s.appState = map[string]any{}
		}
		return PhaseContentExtraction, nil
	case <-ctx.Done():
		return 0, fmt.Errorf("render interrupted: %w", ctx.Err())
	}
}

// stepContentExtraction pulls the rendered markup out of the sandbox,
// drops head elements flagged for removal, verifies script references
// against the asset manifest, and flips the server-rendered flag in the
// state snapshot before it is serialized.
func (s *Session) stepContentExtraction() (Phase, error) {
	ex, err := s.sandbox.Extract()
	if err != nil {
		return 0, fmt.Errorf("content extraction: %w", err)
	}
	s.bodyHTML = ex.BodyHTML
	s.headHTML = stripFlaggedHead(ex.HeadHTML)

	for _, ref := range ex.ScriptRefs {
		if s.sameOrigin(ref) && !s.refInManifest(ref) {
			warning := fmt.Sprintf("script %s not in asset manifest", ref)
			s.warnings = append(s.warnings, warning)
			s.logger.Warn("unexpected script reference", "src", ref, "url", s.cfg.URL.String())
		}
	}

	s.appState["serverRendered"] = true
	return PhaseCSSOptimization, nil
}

// removalFlag marks a head element the application wants excluded from
// the served document, typically placeholders replaced during render.
const removalFlag = "data-ssr-remove"

// headVoidElements are head elements with no closing tag.
var headVoidElements = map[string]bool{
	"base": true,
	"link": true,
	"meta": true,
}

// stripFlaggedHead removes every head element whose opening tag carries
// the removal flag, including the element's content and closing tag for
// non-void elements. Unflagged markup passes through untouched.
func stripFlaggedHead(head string) string {
	if !strings.Contains(head, removalFlag) {
		return head
	}
	var out strings.Builder
	rest := head
	for {
		open := strings.IndexByte(rest, '<')
		if open == -1 {
			out.WriteString(rest)
			return out.String()
		}
		end := strings.IndexByte(rest[open:], '>')
		if end == -1 {
			out.WriteString(rest)
			return out.String()
		}
		tag := rest[open : open+end+1]
		if !strings.Contains(tag, removalFlag) {
			out.WriteString(rest[:open+end+1])
			rest = rest[open+end+1:]
			continue
		}
		out.WriteString(rest[:open])
		rest = rest[open+end+1:]
		name := headTagName(tag)
		if !headVoidElements[name] && !strings.HasSuffix(tag, "/>") {
			if closing := strings.Index(rest, "</"+name+">"); closing != -1 {
				rest = rest[closing+len(name)+3:]
			}
		}
	}
}

// headTagName returns the lowercased element name of an opening tag.
func headTagName(tag string) string {
	tag = strings.TrimPrefix(tag, "<")
	for i := 0; i < len(tag); i++ {
		switch tag[i] {
		case ' ', '\t', '\n', '/', '>':
			return strings.ToLower(tag[:i])
		}
	}
	return strings.ToLower(tag)
}

// stepCSSOptimization prunes the main stylesheet down to the rules used
// by the rendered markup. Optional, and never fatal: a pruning failure
// just means the page ships without inline styles.
func (s *Session) stepCSSOptimization() (Phase, error) {
	if !s.cfg.OptimizeCSS || s.cfg.Stylesheet == "" {
		return PhaseDocumentAssembly, nil
	}
	pruned, err := PruneCSS(s.cfg.Stylesheet, s.bodyHTML)
	if err != nil {
		s.logger.Warn("css optimization failed, serving without inline styles", "error", err)
		s.inlineStyle = ""
		return PhaseDocumentAssembly, nil
	}
	s.inlineStyle = pruned
	return PhaseDocumentAssembly, nil
}

// stepDocumentAssembly concatenates the final document and collects the
// inline-script integrity hashes.
func (s *Session) stepDocumentAssembly() (Phase, error) {
	if s.inlineStyle != "" {
		s.builder.addHead("<style>" + s.inlineStyle + "</style>")
	}
	s.builder.addHead(s.headHTML)

	tag, source, err := stateScript("__HYDRANT_STATE__", s.appState)
	if err != nil {
		return 0, err
	}
	s.builder.addInlineScript(tag, source)

	if !s.cfg.ServerOnly && s.cfg.LoaderSrc != "" {
		s.builder.addHead(scriptSrcTag(s.cfg.LoaderSrc))
	}

	s.doc = s.builder.assemble(s.bodyHTML, s.sandbox.InlineScripts(), time.Since(s.started))
	return PhaseDone, nil
}

// stepErrorDocument discards all partial output and emits a minimal
// document whose only job is letting the client render the page itself.
// The loader script is included even in server-only mode: with no server
// markup, client takeover is the only path to a working page.
func (s *Session) stepErrorDocument() (Phase, error) {
	builder := &documentBuilder{}
	if s.cfg.LoaderSrc != "" {
		builder.addHead(scriptSrcTag(s.cfg.LoaderSrc))
	}
	if s.cfg.Verbose && s.cause != nil {
		tag, src, err := stateScript("__HYDRANT_RENDER_ERROR__", s.cause.Error())
		if err == nil {
			builder.addInlineScript(tag, src)
		}
		source := fmt.Sprintf("console.error(%q);", "server render failed: "+s.cause.Error())
		builder.addInlineScript("<script>"+source+"</script>", source)
	}

	s.doc = builder.assemble("", nil, time.Since(s.started))
	s.doc.Failed = true
	return PhaseDone, nil
}

// release closes the sandbox and drops every heavy reference so the
// environment's memory can be reclaimed before process reuse. Runs on
// both the success and error paths.
func (s *Session) release() {
	if s.sandbox != nil {
		if err := s.sandbox.Close(); err != nil {
			s.logger.Warn("sandbox close failed", "error", err)
		}
		s.sandbox = nil
	}
	s.loader = nil
	s.builder = nil
	s.headHTML = ""
	s.bodyHTML = ""
	s.inlineStyle = ""
}

func (s *Session) sameOrigin(ref string) bool {
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	if !u.IsAbs() {
		return true
	}
	return u.Scheme+"://"+u.Host == s.cfg.Origin
}

func (s *Session) refInManifest(ref string) bool {
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	base := path.Base(strings.TrimSuffix(u.Path, "/"))
	_, ok := s.manifest[base]
	return ok
}
