package platform

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/Mutter0815/LaunchPro/internal/campaign"
)

// Error is what adapters return for every failed upstream call.
type Error struct {
	Platform   campaign.Platform
	Op         string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Platform, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Platform, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// RetryableStatus is the allow-list of HTTP statuses worth retrying.
func RetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500
}

func Fatal(p campaign.Platform, op string, err error) error {
	return &Error{Platform: p, Op: op, Err: err}
}

func Transient(p campaign.Platform, op string, err error) error {
	return &Error{Platform: p, Op: op, Retryable: true, Err: err}
}

// IsRetryable classifies rate limits, server errors and timeouts as
// retryable. Everything else, including business rejections, is fatal.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return false
}
