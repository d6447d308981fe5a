package frontier

import "sync"

// VisitedSet records normalized URLs that were enqueued or fetched.
// It is safe for concurrent use.
type VisitedSet struct {
	mu   sync.Mutex
	urls map[string]struct{}
}

// NewVisitedSet returns an empty set.
func NewVisitedSet() *VisitedSet {
	return &VisitedSet{urls: make(map[string]struct{})}
}

// Add inserts u and reports whether it was not present before.
func (v *VisitedSet) Add(u string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.urls[u]; ok {
		return false
	}
	v.urls[u] = struct{}{}
	return true
}

// Contains reports whether u is in the set.
func (v *VisitedSet) Contains(u string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.urls[u]
	return ok
}

// Len returns the number of URLs in the set.
func (v *VisitedSet) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.urls)
}
