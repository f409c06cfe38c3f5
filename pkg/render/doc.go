// Package render drives the server-side rendering pipeline.
//
// A Session owns one request's rendering lifecycle: environment setup,
// script execution in a sandboxed execution environment, waiting for the
// application's completion signal, content extraction, optional CSS
// pruning, and final document assembly. The pipeline is an explicit state
// machine: each phase either advances or jumps to the failure path, which
// emits a minimal document that hands rendering over to the client.
//
// The sandbox is pluggable. Hosts provide a SandboxFactory that builds
// the execution environment — typically an embedded script-engine
// adapter. Scripts compiled for a sandbox are cached process-wide by
// source path, so repeat requests skip recompilation.
package render
