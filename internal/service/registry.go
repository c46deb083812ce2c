package service

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// QueryRegistry maps in-flight query identifiers to their cancellation
// handles so an out-of-band stop request can interrupt a running
// pipeline. One registry is constructed per server process and handed
// to request handlers; tests instantiate their own.
type QueryRegistry struct {
	mu     sync.Mutex
	active map[string]*queryEntry
}

// queryEntry identifies one registration. Release compares against the
// entry pointer so a stale release cannot touch a replacement that has
// since claimed the same id.
type queryEntry struct {
	cancel context.CancelFunc
}

// NewQueryRegistry creates an empty registry
func NewQueryRegistry() *QueryRegistry {
	return &QueryRegistry{active: make(map[string]*queryEntry)}
}

// Register derives a cancellable context for the query and stores its
// handle under id. Registering an id that is already in flight cancels
// the previous run before replacing it, so a reused identifier never
// leaves an orphaned pipeline with no way to stop it.
//
// The returned release func removes this registration on completion or
// error and frees the derived context. It is bound to this registration
// only: if the id has been re-registered in the meantime, release
// leaves the newer handle in place.
func (r *QueryRegistry) Register(parent context.Context, id string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	entry := &queryEntry{cancel: cancel}

	r.mu.Lock()
	if prev, ok := r.active[id]; ok {
		prev.cancel()
	}
	r.active[id] = entry
	r.mu.Unlock()

	release := func() {
		r.mu.Lock()
		if r.active[id] == entry {
			delete(r.active, id)
		}
		r.mu.Unlock()
		cancel()
	}
	return ctx, release
}

// Cancel signals the handle for id and removes it. It reports whether
// a matching in-flight query was found.
func (r *QueryRegistry) Cancel(id string) bool {
	r.mu.Lock()
	entry, ok := r.active[id]
	if ok {
		delete(r.active, id)
	}
	r.mu.Unlock()

	if ok {
		entry.cancel()
	}
	return ok
}

// Len reports the number of in-flight queries
func (r *QueryRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

const idAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// NewQueryID generates a query identifier from the current time plus a
// random suffix. Good enough to avoid same-millisecond collisions, not
// cryptographically unique.
func NewQueryID() string {
	suffix := make([]byte, 7)
	for i := range suffix {
		suffix[i] = idAlphabet[rand.Intn(len(idAlphabet))]
	}
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), suffix)
}
