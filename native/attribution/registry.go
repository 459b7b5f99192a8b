package attribution

import "sync"

// ReferenceRegistry resolves opaque reference/publisher codes to payout
// addresses. The registry is an external collaborator consulted read-only
// during batch processing.
type ReferenceRegistry interface {
	Exists(code string) bool
	// PayoutAddress reports the chain-specific payout override for the code,
	// when one is registered.
	PayoutAddress(code string, chainID uint64) ([20]byte, bool)
	// DefaultPayoutAddress reports the code's default payout address.
	DefaultPayoutAddress(code string) ([20]byte, bool)
}

// MemoryRegistry is an in-process ReferenceRegistry used by the service and
// by tests.
type MemoryRegistry struct {
	mu        sync.RWMutex
	defaults  map[string][20]byte
	overrides map[string]map[uint64][20]byte
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		defaults:  make(map[string][20]byte),
		overrides: make(map[string]map[uint64][20]byte),
	}
}

// Register binds a code to its default payout address.
func (r *MemoryRegistry) Register(code string, payout [20]byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaults[code] = payout
}

// RegisterOverride binds a chain-specific payout address for the code.
func (r *MemoryRegistry) RegisterOverride(code string, chainID uint64, payout [20]byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.overrides[code]; !ok {
		r.overrides[code] = make(map[uint64][20]byte)
	}
	r.overrides[code][chainID] = payout
}

func (r *MemoryRegistry) Exists(code string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.defaults[code]
	return ok
}

func (r *MemoryRegistry) PayoutAddress(code string, chainID uint64) ([20]byte, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	byChain, ok := r.overrides[code]
	if !ok {
		return [20]byte{}, false
	}
	addr, ok := byChain[chainID]
	return addr, ok
}

func (r *MemoryRegistry) DefaultPayoutAddress(code string) ([20]byte, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	addr, ok := r.defaults[code]
	return addr, ok
}
