package assay

import (
	"context"
	"sync"
)

// flights hands every caller of one content hash the same pipeline context. That context outlives any single
// caller and is cancelled only once the last waiting caller has gone.
type flights struct {
	mu    sync.Mutex
	byKey map[string]*flight
}

type flight struct {
	ctx     context.Context //nolint:containedctx // shared by every waiter of one hash
	cancel  context.CancelFunc
	waiters int
}

func (f *flights) join(ctx context.Context, key string) *flight {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.byKey == nil {
		f.byKey = map[string]*flight{}
	}

	current, ok := f.byKey[key]
	if !ok {
		shared, cancel := context.WithCancel(context.WithoutCancel(ctx))
		current = &flight{ctx: shared, cancel: cancel}
		f.byKey[key] = current
	}

	current.waiters++

	return current
}

func (f *flights) leave(key string, current *flight) {
	f.mu.Lock()
	defer f.mu.Unlock()

	current.waiters--
	if current.waiters > 0 {
		return
	}

	current.cancel()

	if f.byKey[key] == current {
		delete(f.byKey, key)
	}
}
