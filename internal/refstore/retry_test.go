package refstore

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyLoader struct {
	errs  []error
	calls int
}

func (f *flakyLoader) Load(context.Context) ([]Record, error) {
	f.calls++
	if f.calls <= len(f.errs) {
		return nil, f.errs[f.calls-1]
	}
	return []Record{{ID: "c1", Type: "college", Name: "AIIMS"}}, nil
}

func TestRetryLoader_RecoversFromTransient(t *testing.T) {
	inner := &flakyLoader{errs: []error{
		fmt.Errorf("dial: %w", syscall.ECONNREFUSED),
		errors.New("read tcp: i/o timeout"),
	}}
	l := RetryLoader{Loader: inner, InitialBackoff: time.Millisecond}

	records, err := l.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, 3, inner.calls)
}

func TestRetryLoader_GivesUp(t *testing.T) {
	inner := &flakyLoader{errs: []error{
		errors.New("connection refused"),
		errors.New("connection refused"),
		errors.New("connection refused"),
	}}
	l := RetryLoader{Loader: inner, MaxAttempts: 2, InitialBackoff: time.Millisecond}

	_, err := l.Load(context.Background())
	require.Error(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestRetryLoader_PermanentNotRetried(t *testing.T) {
	inner := &flakyLoader{errs: []error{errors.New("relation \"reference_entities\" does not exist")}}
	l := RetryLoader{Loader: inner, InitialBackoff: time.Millisecond}

	_, err := l.Load(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, inner.calls)
}

func TestRetryLoader_CancelledDuringBackoff(t *testing.T) {
	inner := &flakyLoader{errs: []error{errors.New("connection refused"), errors.New("connection refused")}}
	l := RetryLoader{Loader: inner, InitialBackoff: time.Hour, MaxBackoff: time.Hour}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := l.Load(ctx)
	require.Error(t, err)
	assert.Equal(t, 1, inner.calls)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRetryLoader_CustomTransient(t *testing.T) {
	inner := &flakyLoader{errs: []error{errors.New("busy")}}
	l := RetryLoader{
		Loader:         inner,
		InitialBackoff: time.Millisecond,
		Transient:      func(err error) bool { return err.Error() == "busy" },
	}
	_, err := l.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{syscall.ECONNRESET, true},
		{fmt.Errorf("query: %w", syscall.ECONNREFUSED), true},
		{errors.New("SQLITE_BUSY: database is locked"), true},
		{errors.New("dial tcp: lookup db: temporary failure in name resolution"), true},
		{context.DeadlineExceeded, false},
		{eris.Wrap(ErrInvalidEntity, "connection refused"), false},
		{errors.New("syntax error at or near SELECT"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsTransient(tt.err), "%v", tt.err)
	}
}

func TestRetryLoader_Backoff(t *testing.T) {
	l := RetryLoader{InitialBackoff: 100 * time.Millisecond, MaxBackoff: 300 * time.Millisecond}.withDefaults()
	for attempt, base := range []time.Duration{100, 200, 300, 300} {
		base *= time.Millisecond
		d := l.backoff(attempt)
		assert.GreaterOrEqual(t, d, base*3/4)
		assert.LessOrEqual(t, d, base*5/4)
	}
}
