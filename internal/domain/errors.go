package domain

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrStartup marks a browser that could not be launched. Fatal for the process.
	ErrStartup = errors.New("browser startup failed")
	// ErrSessionClosed is returned for pages requested after shutdown began.
	ErrSessionClosed = errors.New("browser session closed")
	// ErrNavigation marks a target that could not be loaded.
	ErrNavigation = errors.New("navigation failed")
	// ErrRender marks a failed PDF capture.
	ErrRender = errors.New("render failed")
	// ErrArtifactNotFound is returned for unknown or expired document ids.
	ErrArtifactNotFound = errors.New("artifact not found")
	// ErrInvalidAPIKey signals that the provided API key is not accepted.
	ErrInvalidAPIKey = errors.New("invalid api key")
	// ErrTokenStoreNotReady signals that the token table has not been loaded yet.
	ErrTokenStoreNotReady = errors.New("token store not ready")
)

// ValidationError collects every rejected field of a request.
type ValidationError struct {
	Fields map[string][]string
}

// Add records msg against field.
func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

// Empty reports whether no field failed.
func (e *ValidationError) Empty() bool {
	return e == nil || len(e.Fields) == 0
}

// Has reports whether field failed.
func (e *ValidationError) Has(field string) bool {
	if e == nil {
		return false
	}
	_, ok := e.Fields[field]
	return ok
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return "validation failed: " + strings.Join(names, ", ")
}
