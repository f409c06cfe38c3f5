package render

import (
	"fmt"
	"sync"
)

// Script is a compiled script artifact, opaque to the pipeline. Program
// holds whatever representation the sandbox's compiler produced.
type Script struct {
	Path    string
	Program []byte
}

// Compiler turns a script source path into a Script the sandbox can
// execute. Implementations are provided by the sandbox adapter.
type Compiler interface {
	Compile(path string) (*Script, error)
}

// CompilerFunc adapts a function to the Compiler interface.
type CompilerFunc func(path string) (*Script, error)

func (f CompilerFunc) Compile(path string) (*Script, error) {
	return f(path)
}

// scriptCache holds compiled scripts by source path for the lifetime of
// the process. Entries are write-once: concurrent compilations of the
// same path redo equal work and the loser's result is discarded, so no
// locking beyond the map itself is needed.
var scriptCache sync.Map // path -> *Script

// LoadScript returns the cached compiled script for path, compiling it on
// first use. The cache is shared across concurrent sessions.
func LoadScript(path string, c Compiler) (*Script, error) {
	if v, ok := scriptCache.Load(path); ok {
		return v.(*Script), nil
	}
	script, err := c.Compile(path)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", path, err)
	}
	actual, _ := scriptCache.LoadOrStore(path, script)
	return actual.(*Script), nil
}

// ResetScriptCache clears the process-wide script cache. Intended for
// tests and dev-mode rebuilds where bundle contents change on disk.
func ResetScriptCache() {
	scriptCache.Range(func(key, _ any) bool {
		scriptCache.Delete(key)
		return true
	})
}

// ScriptSet names the scripts a session executes, in their fixed order:
// source-map support first, then capability shims, then the vendor
// bundle, then the application bundle. Later scripts depend on globals
// installed by earlier ones.
type ScriptSet struct {
	// SourceMapSupport maps sandbox stack traces back to original
	// sources. Optional.
	SourceMapSupport string

	// Shims are capability polyfills executed before the app. Optional.
	Shims []string

	// Vendor is the third-party bundle. Optional.
	Vendor string

	// Main is the application bundle. Required.
	Main string
}

// Ordered returns the execution order, skipping unset entries.
func (s ScriptSet) Ordered() []string {
	paths := make([]string, 0, 3+len(s.Shims))
	if s.SourceMapSupport != "" {
		paths = append(paths, s.SourceMapSupport)
	}
	paths = append(paths, s.Shims...)
	if s.Vendor != "" {
		paths = append(paths, s.Vendor)
	}
	if s.Main != "" {
		paths = append(paths, s.Main)
	}
	return paths
}
