package shutdownx

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Abraxas-365/remodel/pkg/errx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	order []string
}

func (r *recorder) close(name string, err error) CloseFunc {
	return func(context.Context) error {
		r.mu.Lock()
		r.order = append(r.order, name)
		r.mu.Unlock()
		return err
	}
}

func TestShutdown_ReverseOrder(t *testing.T) {
	rec := &recorder{}
	c := New()
	c.Register("db", rec.close("db", nil), 0)
	c.Register("redis", rec.close("redis", nil), 0)
	c.Register("workers", rec.close("workers", nil), 0)

	require.NoError(t, c.Shutdown(context.Background()))
	assert.Equal(t, []string{"workers", "redis", "db"}, rec.order)
}

func TestShutdown_FailureIsIsolated(t *testing.T) {
	rec := &recorder{}
	c := New()
	c.Register("db", rec.close("db", nil), 0)
	c.Register("dlq", rec.close("dlq", errors.New("broken pipe")), 0)
	c.Register("panics", func(context.Context) error { panic("boom") }, 0)

	err := c.Shutdown(context.Background())
	require.Error(t, err)
	assert.True(t, errx.HasCode(err, ErrCloseFailed))
	assert.Equal(t, []string{"dlq", "db"}, rec.order)
	assert.Contains(t, err.Error(), "broken pipe")
}

func TestShutdown_PerResourceTimeout(t *testing.T) {
	rec := &recorder{}
	c := New(WithTimeout(time.Second))
	c.Register("db", rec.close("db", nil), 0)
	c.Register("stuck", func(ctx context.Context) error {
		time.Sleep(200 * time.Millisecond)
		return nil
	}, 20*time.Millisecond)

	start := time.Now()
	err := c.Shutdown(context.Background())
	assert.True(t, errx.HasCode(err, ErrTimeout))
	assert.Less(t, time.Since(start), 150*time.Millisecond)
	assert.Equal(t, []string{"db"}, rec.order)
}

func TestShutdown_RunsOnce(t *testing.T) {
	calls := 0
	c := New()
	c.Register("x", func(context.Context) error { calls++; return nil }, 0)

	require.NoError(t, c.Shutdown(context.Background()))
	require.NoError(t, c.Shutdown(context.Background()))
	assert.Equal(t, 1, calls)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestRegisterCloser(t *testing.T) {
	closed := false
	c := New()
	c.RegisterCloser("file", closerFunc(func() error { closed = true; return nil }))
	c.RegisterCloser("nil", nil)

	require.NoError(t, c.Shutdown(context.Background()))
	assert.True(t, closed)
}
