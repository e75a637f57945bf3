package retry

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds the retry loop for transient model overload. MaxRetries
// counts retries after the first attempt; zero disables retrying entirely.
type Policy struct {
	MaxRetries uint64
	BaseDelay  time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  2 * time.Second,
	}
}

func (p Policy) normalized() Policy {
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultPolicy().BaseDelay
	}
	return p
}

// statusCoder is satisfied by errors that carry an HTTP status, such as
// gemini.APIError. Declared here to avoid an import cycle.
type statusCoder interface {
	HTTPStatus() int
}

// Overloaded reports whether err signals that the hosted model is
// temporarily unavailable: an HTTP 503, or a message mentioning an
// overload condition.
func Overloaded(err error) bool {
	if err == nil {
		return false
	}

	var sc statusCoder
	if errors.As(err, &sc) && sc.HTTPStatus() == http.StatusServiceUnavailable {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "overloaded") ||
		strings.Contains(msg, "503") ||
		strings.Contains(msg, "unavailable")
}

// Do invokes op, retrying only on overload signals with exponential delays
// doubling from the policy base. Any other failure propagates unchanged on
// the first attempt.
func Do[T any](ctx context.Context, p Policy, op func() (T, error)) (T, error) {
	p = p.normalized()

	wrapped := func() (T, error) {
		v, err := op()
		if err != nil && !Overloaded(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	b := backoff.WithContext(backoff.WithMaxRetries(newExponential(p), p.MaxRetries), ctx)
	return backoff.RetryWithData(wrapped, b)
}

func newExponential(p Policy) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = 10 * time.Minute
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
