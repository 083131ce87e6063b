// Package dev runs the watch-mode loop: build the site, serve it,
// rebuild on change and push reloads to connected browsers.
//
// # Architecture
//
//   - Orchestrator: drives the Idle/Building/Serving loop and the
//     server process lifecycle
//   - ReloadServer: notifies browsers of changes via WebSocket
//   - Front: proxies the site server, injecting the reload client into
//     HTML, and exposes the reload and metrics endpoints
//
// Change messages arrive on the event bus; the watch and assets
// packages produce them.
//
// # Reload Protocol
//
// The browser connects to /_sitewatch/reload via WebSocket.
// Messages are JSON-encoded:
//
//	{"type": "reload"}                // triggers full page reload
//	{"type": "css"}                   // triggers CSS-only reload
//	{"type": "error", "error": "..."} // shows error overlay
//	{"type": "clear"}                 // clears error overlay
package dev
