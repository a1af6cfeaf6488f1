package gc

import (
	"context"
	"sync"

	"github.com/rljson/fs-agent/blob"
)

// MemKeep is an in-memory Keep, sufficient for a one-shot run of cmd/fsgc
// against a store small enough to enumerate in a single process.
type MemKeep struct {
	mu   sync.Mutex
	refs map[blob.Ref]bool
}

// NewMemKeep produces a new, empty MemKeep.
func NewMemKeep() *MemKeep {
	return &MemKeep{refs: make(map[blob.Ref]bool)}
}

// Add implements Keep.
func (k *MemKeep) Add(_ context.Context, ref blob.Ref) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.refs[ref] {
		return false, nil
	}
	k.refs[ref] = true
	return true, nil
}

// Contains implements Keep.
func (k *MemKeep) Contains(_ context.Context, ref blob.Ref) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.refs[ref], nil
}
