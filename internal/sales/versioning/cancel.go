package versioning

import (
	"context"
	"sync"
	"sync/atomic"
)

// CancelToken is the cooperative cancellation flag of one save. The saga polls Cancelled between
// store calls; Context lets a transport abort an in-flight call as well.
type CancelToken struct {
	cancelled atomic.Bool
	once      sync.Once
	done      chan struct{}
}

func NewCancelToken() *CancelToken {
	return &CancelToken{done: make(chan struct{})}
}

// Cancel sets the flag. It is safe to call from any goroutine, more than once.
func (t *CancelToken) Cancel() {
	t.cancelled.Store(true)
	t.once.Do(func() { close(t.done) })
}

func (t *CancelToken) Cancelled() bool {
	return t.cancelled.Load()
}

// Context derives a context from parent that is also cancelled by the token.
func (t *CancelToken) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-t.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
