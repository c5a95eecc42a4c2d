// Package mempool maintains the set of candidate blocks that have been
// submitted to the node but not yet mined into the chain.
package mempool

import (
	"errors"
	"sync"
	"time"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
	"github.com/google/uuid"
)

// ErrNotFound is returned when a candidate is not in the mempool.
var ErrNotFound = errors.New("candidate not found")

// Candidate represents a block waiting to be mined.
type Candidate struct {
	ID        uuid.UUID
	Block     database.Block
	Submitted time.Time
}

// Mempool represents a cache of candidates kept in submission order.
type Mempool struct {
	mu    sync.RWMutex
	pool  map[uuid.UUID]Candidate
	order []uuid.UUID
}

// New constructs a new, empty mempool.
func New() *Mempool {
	return &Mempool{
		pool: make(map[uuid.UUID]Candidate),
	}
}

// Count returns the current number of candidates in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.pool)
}

// Add places the block at the back of the pool and returns the candidate
// that was created for it.
func (mp *Mempool) Add(block database.Block) Candidate {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	cand := Candidate{
		ID:        uuid.New(),
		Block:     block,
		Submitted: time.Now().UTC(),
	}

	mp.pool[cand.ID] = cand
	mp.order = append(mp.order, cand.ID)

	return cand
}

// Next returns the oldest candidate in the pool without removing it.
func (mp *Mempool) Next() (Candidate, bool) {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	if len(mp.order) == 0 {
		return Candidate{}, false
	}

	return mp.pool[mp.order[0]], true
}

// Delete removes a candidate from the pool.
func (mp *Mempool) Delete(id uuid.UUID) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if _, exists := mp.pool[id]; !exists {
		return ErrNotFound
	}

	delete(mp.pool, id)
	for i, oid := range mp.order {
		if oid == id {
			mp.order = append(mp.order[:i], mp.order[i+1:]...)
			break
		}
	}

	return nil
}

// Copy returns the candidates in submission order.
func (mp *Mempool) Copy() []Candidate {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	cands := make([]Candidate, len(mp.order))
	for i, id := range mp.order {
		cands[i] = mp.pool[id]
	}

	return cands
}

// Truncate clears all the candidates from the pool.
func (mp *Mempool) Truncate() {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool = make(map[uuid.UUID]Candidate)
	mp.order = nil
}
