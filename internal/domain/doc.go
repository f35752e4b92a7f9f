// Package domain holds the request model, validation rules and error taxonomy
// of the PDF service. It stays free of HTTP and browser concerns.
package domain
