package event

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Op is the kind of filesystem change observed by the watcher.
type Op int

const (
	// Create reports a new file or directory.
	Create Op = iota

	// Remove reports a deleted file or directory.
	Remove

	// Rename reports a file or directory moved from Path to To.
	Rename

	// Write reports modified file content.
	Write

	// Rescan reports that incremental events can no longer be trusted
	// and state must be re-derived from disk.
	Rescan
)

// String returns the op name.
func (o Op) String() string {
	switch o {
	case Create:
		return "create"
	case Remove:
		return "remove"
	case Rename:
		return "rename"
	case Write:
		return "write"
	case Rescan:
		return "rescan"
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// Change is one debounced, classified filesystem change. Every op except
// Rescan carries an absolute path; Rename additionally carries the
// destination in To.
type Change struct {
	Op   Op
	Path string
	To   string
}

// HasPath reports whether the change carries a path (everything but Rescan).
func (c Change) HasPath() bool {
	return c.Op != Rescan
}

// Ext returns the lower-cased path extension without the leading dot.
func (c Change) Ext() string {
	if !c.HasPath() {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(c.Path), "."))
}

// Under reports whether the change touches the given root. A rename is
// under the root if either end is.
func (c Change) Under(root string) bool {
	switch c.Op {
	case Create, Remove, Write:
		return within(c.Path, root)
	case Rename:
		return within(c.Path, root) || within(c.To, root)
	}
	return false
}

// String formats the change for logs.
func (c Change) String() string {
	switch c.Op {
	case Rename:
		return fmt.Sprintf("rename %q -> %q", c.Path, c.To)
	case Rescan:
		return "rescan"
	}
	return fmt.Sprintf("%s %q", c.Op, c.Path)
}

// within reports whether path equals root or lies beneath it.
func within(path, root string) bool {
	if root == "" || path == "" {
		return false
	}
	path = filepath.Clean(path)
	root = filepath.Clean(root)
	if path == root {
		return true
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}
