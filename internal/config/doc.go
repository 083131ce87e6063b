// Package config loads and validates sitewatch.json, the per-project
// configuration describing the server and front packages, the watched
// source, style and asset trees, and the staging directory layout.
package config
