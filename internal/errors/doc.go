// Package errors provides structured errors with registered codes for the
// sitewatch CLI. Each code identifies one failure mode of the watch, sync,
// build or deploy machinery and carries a terminal-friendly formatter.
package errors
