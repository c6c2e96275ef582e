package report

import "fmt"

// FetchError means the report could not be retrieved (network, IO or HTTP status).
type FetchError struct {
	URL    string
	Status int // HTTP status when the server answered, else 0
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch report %s: status %d: %v", e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("fetch report %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// FormatError means the document did not have the expected table shape.
// Row is the 0-based data row (header excluded), or -1 for document-level problems.
type FormatError struct {
	Row    int
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	msg := e.Reason
	if e.Row >= 0 {
		msg = fmt.Sprintf("row %d: %s", e.Row, e.Reason)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return "malformed report: " + msg
}

func (e *FormatError) Unwrap() error { return e.Err }
