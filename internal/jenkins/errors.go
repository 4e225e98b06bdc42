package jenkins

import (
	"errors"
	"fmt"
)

// TransientFetchError is a retryable failure talking to Jenkins: network errors,
// server errors, throttling and undecodable responses.
type TransientFetchError struct {
	Op         string
	URL        string
	StatusCode int
	Err        error
}

func (e *TransientFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("jenkins %s: %s returned %d", e.Op, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("jenkins %s: %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransientFetchError) Unwrap() error {
	return e.Err
}

// NotFoundError reports a resource Jenkins does not have (yet), such as the test report
// of a build that is still running.
type NotFoundError struct {
	Op  string
	URL string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("jenkins %s: %s not found", e.Op, e.URL)
}

// IsTransient reports whether err carries a TransientFetchError.
func IsTransient(err error) bool {
	var t *TransientFetchError
	return errors.As(err, &t)
}

// IsNotFound reports whether err carries a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
