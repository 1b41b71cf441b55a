package store

import "sync"

// inflight tracks keys with a purchase in progress. A second caller for the
// same key is turned away instead of queued: it would be working from a host
// snapshot taken before the first purchase was applied.
type inflight struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

// tryAcquire marks key busy. It returns false if key is already busy.
func (f *inflight) tryAcquire(key string) (release func(), ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.keys == nil {
		f.keys = map[string]struct{}{}
	}
	if _, busy := f.keys[key]; busy {
		return nil, false
	}
	f.keys[key] = struct{}{}
	return func() {
		f.mu.Lock()
		delete(f.keys, key)
		f.mu.Unlock()
	}, true
}

func (f *inflight) size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.keys)
}
