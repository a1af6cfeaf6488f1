// Package reconcile implements the outbound and inbound reconcilers: the
// debounced watch-extract-insert-publish loop, the subscribe-fetch-restore
// loop, and the bounce-back suppressor shared between them.
package reconcile

import "sync"

// Suppressor holds the pair of fields shared by the outbound and inbound
// reconcilers: the last root hash and content key this agent sent or
// bookkept. A single Suppressor must be passed to both StartPublishing and
// StartConsuming for the bounce-back gates to work, since each reconciler
// only suppresses against state the other one recorded.
type Suppressor struct {
	mu           sync.Mutex
	lastSentRoot string
	lastSentKey  string
}

// NewSuppressor produces an empty Suppressor. Its zero value is also usable
// directly; NewSuppressor exists for symmetry with the rest of the package's
// constructors.
func NewSuppressor() *Suppressor {
	return &Suppressor{}
}

// Snapshot returns the last recorded root hash and content key.
func (s *Suppressor) Snapshot() (root, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSentRoot, s.lastSentKey
}

// Record transactionally updates the last-sent root hash and content key.
func (s *Suppressor) Record(root, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSentRoot = root
	s.lastSentKey = key
}
