// Package shutdownx closes process resources in reverse registration order.
//
// Each resource gets its own timeout and its failure does not stop the
// others from closing. Shutdown runs once; later calls return the first result.
package shutdownx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/Abraxas-365/remodel/pkg/errx"
	"github.com/Abraxas-365/remodel/pkg/logx"
)

var shutdownErrors = errx.NewRegistry("SHUTDOWNX")

var (
	ErrCloseFailed = shutdownErrors.Register("CLOSE_FAILED", errx.TypeInternal, http.StatusInternalServerError, "Resource failed to close")
	ErrTimeout     = shutdownErrors.Register("TIMEOUT", errx.TypeInternal, http.StatusInternalServerError, "Resource did not close in time")
)

// CloseFunc releases a resource.
type CloseFunc func(ctx context.Context) error

type resource struct {
	name    string
	close   CloseFunc
	timeout time.Duration
}

// Coordinator owns the shutdown sequence of a process.
type Coordinator struct {
	mu        sync.Mutex
	resources []resource
	timeout   time.Duration

	once sync.Once
	err  error
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithTimeout sets the default per-resource timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.timeout = d }
}

// New creates a coordinator.
func New(opts ...Option) *Coordinator {
	c := &Coordinator{timeout: 10 * time.Second}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Register adds a resource. A timeout of zero uses the default.
func (c *Coordinator) Register(name string, fn CloseFunc, timeout time.Duration) {
	if fn == nil {
		return
	}
	if timeout <= 0 {
		timeout = c.timeout
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resources = append(c.resources, resource{name: name, close: fn, timeout: timeout})
}

// RegisterCloser adds an io.Closer with the default timeout.
func (c *Coordinator) RegisterCloser(name string, closer io.Closer) {
	if closer == nil {
		return
	}
	c.Register(name, func(context.Context) error { return closer.Close() }, 0)
}

// Shutdown closes every resource, last registered first, and joins their errors.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.once.Do(func() {
		c.mu.Lock()
		resources := append([]resource(nil), c.resources...)
		c.mu.Unlock()

		var errs []error
		for i := len(resources) - 1; i >= 0; i-- {
			r := resources[i]
			start := time.Now()
			if err := closeOne(ctx, r); err != nil {
				logx.WithError(err).WithField("resource", r.name).Error("shutdownx: close failed")
				errs = append(errs, err)
				continue
			}
			logx.WithFields(logx.Fields{
				"resource": r.name,
				"took":     time.Since(start).String(),
			}).Debug("shutdownx: closed")
		}
		c.err = errors.Join(errs...)
	})
	return c.err
}

func closeOne(parent context.Context, r resource) error {
	ctx, cancel := context.WithTimeout(parent, r.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- fmt.Errorf("panic: %v", p)
			}
		}()
		done <- r.close(ctx)
	}()

	select {
	case err := <-done:
		if err != nil {
			return shutdownErrors.NewWithCause(ErrCloseFailed, err).WithDetail("resource", r.name)
		}
		return nil
	case <-ctx.Done():
		return shutdownErrors.NewWithCause(ErrTimeout, ctx.Err()).
			WithDetail("resource", r.name).
			WithDetail("timeout", r.timeout.String())
	}
}
