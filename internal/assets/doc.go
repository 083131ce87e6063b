// Package assets keeps the site root's static files in step with the
// assets directory: a full mirror on startup, incremental updates while
// watching, and a full resync whenever an incremental step cannot be
// trusted.
package assets
