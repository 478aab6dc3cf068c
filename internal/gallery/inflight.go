package gallery

import (
	"context"
	"errors"
	"sync"
)

// ErrSuperseded is the cancellation cause of a request replaced by a newer
// one from the same caller.
var ErrSuperseded = errors.New("gallery request superseded")

// Inflight tracks one gallery request per key. Starting a new request for a
// key cancels the previous one.
type Inflight struct {
	mu      sync.Mutex
	seq     uint64
	running map[string]inflightRequest
}

type inflightRequest struct {
	id     uint64
	cancel context.CancelCauseFunc
}

func NewInflight() *Inflight {
	return &Inflight{running: make(map[string]inflightRequest)}
}

// Begin derives a request context for key. The returned func must be called
// when the request finishes.
func (f *Inflight) Begin(ctx context.Context, key string) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(ctx)

	f.mu.Lock()
	f.seq++
	id := f.seq
	if prev, ok := f.running[key]; ok {
		prev.cancel(ErrSuperseded)
	}
	f.running[key] = inflightRequest{id: id, cancel: cancel}
	f.mu.Unlock()

	return ctx, func() {
		f.mu.Lock()
		if cur, ok := f.running[key]; ok && cur.id == id {
			delete(f.running, key)
		}
		f.mu.Unlock()
		cancel(context.Canceled)
	}
}

// Superseded reports whether ctx was cancelled by a newer request.
func Superseded(ctx context.Context) bool {
	return errors.Is(context.Cause(ctx), ErrSuperseded)
}

func (f *Inflight) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.running)
}
