package refstore

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// RetryLoader retries transient failures of the wrapped Loader with
// exponential backoff and jitter. Invalid data is never retried.
type RetryLoader struct {
	Loader         Loader
	MaxAttempts    int           // total attempts, default 3
	InitialBackoff time.Duration // default 500ms
	MaxBackoff     time.Duration // default 10s

	// Transient overrides the default transient-error check.
	Transient func(err error) bool
}

// Load implements Loader.
func (l RetryLoader) Load(ctx context.Context) ([]Record, error) {
	l = l.withDefaults()

	var lastErr error
	for attempt := 0; attempt < l.MaxAttempts; attempt++ {
		records, err := l.Loader.Load(ctx)
		if err == nil {
			return records, nil
		}
		lastErr = err

		if ctx.Err() != nil || !l.Transient(err) || attempt == l.MaxAttempts-1 {
			break
		}

		zap.L().Warn("refstore: retrying load",
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)

		timer := time.NewTimer(l.backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, lastErr
		case <-timer.C:
		}
	}
	return nil, lastErr
}

func (l RetryLoader) withDefaults() RetryLoader {
	if l.MaxAttempts <= 0 {
		l.MaxAttempts = 3
	}
	if l.InitialBackoff <= 0 {
		l.InitialBackoff = 500 * time.Millisecond
	}
	if l.MaxBackoff <= 0 {
		l.MaxBackoff = 10 * time.Second
	}
	if l.Transient == nil {
		l.Transient = IsTransient
	}
	return l
}

// backoff doubles per attempt, capped at MaxBackoff, with ±25% jitter.
func (l RetryLoader) backoff(attempt int) time.Duration {
	d := math.Min(float64(l.InitialBackoff)*math.Pow(2, float64(attempt)), float64(l.MaxBackoff))
	d += (rand.Float64()*2 - 1) * d * 0.25
	return time.Duration(max(d, 0))
}

// IsTransient reports whether err looks like a passing connectivity problem
// worth retrying: timeouts, refused or reset connections, DNS hiccups.
func IsTransient(err error) bool {
	if err == nil || eris.Is(err, ErrInvalidEntity) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"connection refused",
		"broken pipe",
		"temporary failure in name resolution",
		"i/o timeout",
		"database is locked",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
