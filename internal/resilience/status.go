package resilience

import (
	"fmt"
	"net/http"
)

// StatusError carries a non-2xx status out of a call attempt so the pipeline
// can decide whether the outcome is transient before it is mapped to a
// failure kind.
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote returned status %d %s", e.Status, http.StatusText(e.Status))
}

// StatusErr wraps a non-2xx response status.
func StatusErr(status int) *StatusError { return &StatusError{Status: status} }

// transientStatus reports whether a status is worth retrying.
// 404 is treated as transient on these endpoints: it can indicate
// read-replica lag rather than a truly missing entity.
func transientStatus(status int) bool {
	switch {
	case status >= 500:
		return true
	case status == http.StatusRequestTimeout:
		return true
	case status == http.StatusNotFound:
		return true
	default:
		return false
	}
}
