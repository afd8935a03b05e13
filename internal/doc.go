// Package internal contains the implementation packages for devlens.
//
// # Package Organization
//
// The internal packages are organized by functional domain:
//
//   - transform: build-time instrumentation of page and layout templates
//   - marker: the attribute contract between transform and registry
//   - registry: discovery of tracked components in a rendered document
//   - overlay: anchors, outlines and controls drawn over each component
//   - editor: the JSON data editor state machine and reordering
//   - store: data file persistence, page swaps and revision history
//   - tenant: site resolution from hostnames and explicit overrides
//   - server: HTTP server, data API, overlay and host websockets, proxy
//   - watcher: debounced file watching that keeps the instrumented copy current
//   - tui: terminal front end to the data editor
//   - config, errors, logging, validation, version: shared infrastructure
//
// # Data Flow
//
// The transform pass wraps data-bound component invocations in marker
// elements. The site renders them, and the overlay browser shim forwards the
// rendered document to the server, where a registry is scanned per page.
// Overlay actions update markings, open editor sessions, or swap invocations
// in the page source, which the watcher then re-instruments.
package internal
