package youtube

import (
	"errors"
	"fmt"
)

// Sentinel errors for the upstream error taxonomy. Quota rejections surface
// as quota.ErrExceeded from the ledger before any request is issued.
var (
	// ErrRateLimited maps HTTP 429. Retried with exponential backoff; after
	// the attempts are exhausted it is reported as an UpstreamError.
	ErrRateLimited = errors.New("upstream rate limited")

	// ErrForbidden maps HTTP 403.
	ErrForbidden = errors.New("upstream forbidden")

	// ErrTimeout maps a request that exceeded the per-request deadline.
	ErrTimeout = errors.New("upstream timeout")
)

// UpstreamError reports any other non-2xx response.
type UpstreamError struct {
	Status int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned HTTP %d", e.Status)
}
