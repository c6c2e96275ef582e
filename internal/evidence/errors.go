package evidence

import (
	"fmt"
	"net/http"
	"strings"
)

// StatusError is a non-200 answer for an artifact.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: %d %s", e.URL, e.Code, http.StatusText(e.Code))
}

// Temporary reports whether retrying may help.
func (e *StatusError) Temporary() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests || e.Code == http.StatusRequestTimeout
}

// Failure is one artifact that could not be retrieved. Err is the cause of
// the final attempt.
type Failure struct {
	Artifact Artifact
	Attempts int
	Err      error
}

func (f Failure) String() string {
	return fmt.Sprintf("match%d %s (%s) after %d attempt(s): %v",
		f.Artifact.Seq, f.Artifact.Kind, f.Artifact.URL, f.Attempts, f.Err)
}

// Error aggregates every artifact of a Fetch call that failed permanently.
type Error struct {
	Failures []Failure
}

func (e *Error) Error() string {
	lines := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		lines = append(lines, f.String())
	}
	return fmt.Sprintf("%d evidence artifact(s) missing: %s", len(e.Failures), strings.Join(lines, "; "))
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}
