package exporter

import "fmt"

// ParseError means a body that should have been JSON was not.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse JSON from %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// WriteError means an export file could not be written.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// ItemProcessingError wraps the failure of one item in a collection export.
type ItemProcessingError struct {
	Category string
	ID       string
	Title    string
	Err      error
}

func (e *ItemProcessingError) Error() string {
	return fmt.Sprintf("%s item %q (id %s): %v", e.Category, e.Title, e.ID, e.Err)
}

func (e *ItemProcessingError) Unwrap() error { return e.Err }
