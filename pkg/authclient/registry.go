package authclient

import (
	"context"
	"sync"

	"github.com/rahulunni73/authclient/pkg/idx"
)

type requestIDKey struct{}

// requestIDFrom returns the request id stored by registry.begin.
func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// registry tracks the cancel func of every in-flight operation by request
// id. Several operations may share an id; cancelling the id aborts them all.
type registry struct {
	mu      sync.Mutex
	seq     uint64
	pending map[string]map[uint64]context.CancelFunc
}

func newRegistry() *registry {
	return &registry{pending: make(map[string]map[uint64]context.CancelFunc)}
}

// begin derives a cancellable context for id, generating an id when empty.
// The returned func must be called when the operation ends.
func (r *registry) begin(ctx context.Context, id string) (context.Context, string, func()) {
	id = idx.OrNew(id).String()
	ctx, cancel := context.WithCancel(context.WithValue(ctx, requestIDKey{}, id))

	r.mu.Lock()
	r.seq++
	seq := r.seq
	if r.pending[id] == nil {
		r.pending[id] = make(map[uint64]context.CancelFunc)
	}
	r.pending[id][seq] = cancel
	r.mu.Unlock()

	done := func() {
		cancel()
		r.mu.Lock()
		defer r.mu.Unlock()
		if ops, ok := r.pending[id]; ok {
			delete(ops, seq)
			if len(ops) == 0 {
				delete(r.pending, id)
			}
		}
	}
	return ctx, id, done
}

// cancel aborts every operation registered under id.
func (r *registry) cancel(id string) bool {
	r.mu.Lock()
	ops := r.pending[id]
	delete(r.pending, id)
	r.mu.Unlock()

	for _, c := range ops {
		c()
	}
	return len(ops) > 0
}

// cancelAll aborts every registered operation and returns how many there were.
func (r *registry) cancelAll() int {
	r.mu.Lock()
	pending := r.pending
	r.pending = make(map[string]map[uint64]context.CancelFunc)
	r.mu.Unlock()

	n := 0
	for _, ops := range pending {
		for _, c := range ops {
			c()
			n++
		}
	}
	return n
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
