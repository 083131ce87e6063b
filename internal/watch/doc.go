// Package watch adapts raw OS filesystem notifications into debounced,
// classified change events on the control bus. It owns the routing
// policy (assets tree, source extension, style extensions) and the
// reduction of nested watch roots.
package watch
