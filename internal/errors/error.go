package errors

import (
	"fmt"
	"strings"
)

// Category represents the type of error.
type Category string

const (
	CategoryWatch    Category = "watch"
	CategoryClassify Category = "classify"
	CategorySync     Category = "sync"
	CategoryBuild    Category = "build"
	CategoryConfig   Category = "config"
	CategoryDeploy   Category = "deploy"
	CategoryCLI      Category = "cli"
)

// Location represents a source code location extracted from tool output.
type Location struct {
	File   string
	Line   int
	Column int
}

// String returns the location as a formatted string.
func (l *Location) String() string {
	if l == nil {
		return ""
	}
	if l.Column > 0 {
		return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// Error is a structured error with a registered code, detail text and
// fix suggestions.
type Error struct {
	// Code is a unique error identifier (e.g., "E140").
	Code string

	// Category is the error type (watch, sync, build, ...).
	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation, typically raw tool output.
	Detail string

	// Location is the source location, when one could be extracted.
	Location *Location

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// WithLocation adds a source location to the error.
func (e *Error) WithLocation(file string, line, column int) *Error {
	e.Location = &Location{File: file, Line: line, Column: column}
	return e
}

// WithLocationFromOutput extracts the first "file:line:column:" location
// from compiler output.
func (e *Error) WithLocationFromOutput(output string) *Error {
	for _, raw := range strings.Split(output, "\n") {
		parts := strings.SplitN(raw, ":", 4)
		if len(parts) < 4 {
			continue
		}
		var line, col int
		fmt.Sscanf(parts[1], "%d", &line)
		fmt.Sscanf(parts[2], "%d", &col)
		if line > 0 {
			e.Location = &Location{File: parts[0], Line: line, Column: col}
			return e
		}
	}
	return e
}

// WithSuggestion adds a fix suggestion to the error.
func (e *Error) WithSuggestion(s string) *Error {
	e.Suggestion = s
	return e
}

// WithDetail adds a detailed explanation to the error.
func (e *Error) WithDetail(d string) *Error {
	e.Detail = d
	return e
}

// Wrap wraps another error.
func (e *Error) Wrap(err error) *Error {
	e.Wrapped = err
	return e
}

// New creates an Error from a registered error code.
func New(code string) *Error {
	template, ok := registry[code]
	if !ok {
		return &Error{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &Error{
		Code:       code,
		Category:   template.Category,
		Message:    template.Message,
		Detail:     template.Detail,
		Suggestion: template.Suggestion,
	}
}

// Newf creates a new Error with a formatted message (no code).
func Newf(category Category, format string, args ...any) *Error {
	return &Error{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps a standard error in an Error.
func FromError(err error, code string) *Error {
	if err == nil {
		return nil
	}
	if se, ok := err.(*Error); ok {
		return se
	}
	return New(code).Wrap(err)
}
