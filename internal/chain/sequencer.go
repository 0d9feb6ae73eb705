package chain

import (
	"context"
	"fmt"
	"sync"
)

// IdentityKind selects which dispatch backend signs for an identity.
type IdentityKind string

const (
	// IdentityCustody is a delegated-custody wallet used for
	// organization-scoped, gas-sponsored operations.
	IdentityCustody IdentityKind = "custody"
	// IdentityPlatform is the direct platform wallet used for fallback and
	// administrative operations.
	IdentityPlatform IdentityKind = "platform"
)

// SigningIdentity is one transaction-signing account. Its nonce counter and
// exclusive-access lock live in the sequencer for the process lifetime.
type SigningIdentity struct {
	Address string
	Kind    IdentityKind
}

// NonceSource reads the ledger's view of an identity's next nonce.
type NonceSource interface {
	TransactionCount(ctx context.Context, address string) (uint64, error)
}

// Sequencer owns per-identity transaction ordering. It is the sole
// synchronization point of the orchestration layer: at most one logical
// operation holds nonce-assignment authority for a given identity at a time,
// while distinct identities proceed fully independently.
type Sequencer struct {
	mu     sync.Mutex
	slots  map[string]*identitySlot
	nonces NonceSource
}

type identitySlot struct {
	mu          sync.Mutex
	next        uint64
	initialized bool
}

func NewSequencer(nonces NonceSource) *Sequencer {
	return &Sequencer{
		slots:  make(map[string]*identitySlot),
		nonces: nonces,
	}
}

func (s *Sequencer) slot(address string) *identitySlot {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, exists := s.slots[address]
	if !exists {
		slot = &identitySlot{}
		s.slots[address] = slot
	}
	return slot
}

// Serialize runs op with exclusive nonce-assignment authority for identity.
// op may perform several dependent sub-transactions through the session; the
// lock is held until op returns, success or failure.
func (s *Sequencer) Serialize(ctx context.Context, identity SigningIdentity, op func(sess *Session) error) error {
	if identity.Address == "" {
		return fmt.Errorf("signing identity has no address")
	}

	slot := s.slot(identity.Address)
	slot.mu.Lock()
	defer slot.mu.Unlock()

	sess := &Session{identity: identity, slot: slot, nonces: s.nonces}
	return op(sess)
}

// Session is the capability handed to a serialized operation. It is only
// valid while the identity's slot is held.
type Session struct {
	identity SigningIdentity
	slot     *identitySlot
	nonces   NonceSource
}

func (s *Session) Identity() SigningIdentity { return s.identity }

// NextNonce assigns the next nonce for the held identity. The counter is
// lazily initialized from the ledger on first use and then advanced locally,
// so dependent sub-transactions inside one serialized operation get strictly
// increasing values without extra round trips.
func (s *Session) NextNonce(ctx context.Context) (uint64, error) {
	if !s.slot.initialized {
		count, err := s.nonces.TransactionCount(ctx, s.identity.Address)
		if err != nil {
			return 0, fmt.Errorf("failed to initialize nonce for %s: %w", s.identity.Address, err)
		}
		s.slot.next = count
		s.slot.initialized = true
	}
	nonce := s.slot.next
	s.slot.next++
	return nonce, nil
}

// ResetNonce discards the local counter after a failed broadcast, forcing the
// next operation to re-sync from the ledger. A retry therefore gets a fresh
// nonce instead of racing a gap.
func (s *Session) ResetNonce() {
	s.slot.initialized = false
}
