// Package chain is the core API for the ledger. It owns the ordered set of
// blocks, appends new blocks behind a proof of work and checks the chain
// has not been tampered with.
package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
	"github.com/ardanlabs/powledger/foundation/blockchain/signature"
)

// DefaultDifficulty is the number of leading zeros the ledger has always
// been mined at. Services start their chain with it unless configured
// otherwise. A Config with a zero difficulty asks for no proof of work.
const DefaultDifficulty = 4

// Set of error variables for chain operations.
var (
	ErrBlockNotFound    = errors.New("block not found")
	ErrGenesisImmutable = errors.New("genesis block can't be modified")
)

// Genesis returns the fixed first block of every chain. The genesis block
// is never mined.
func Genesis() database.Block {
	b := database.Block{
		Index:      0,
		Timestamp:  "01/01/2018",
		Payload:    database.Text("Genesis Block created at start of ICO"),
		PrevDigest: signature.GenesisPrevDigest,
	}
	b.Digest = b.ComputeDigest()

	return b
}

// =============================================================================

// Config represents the configuration required to construct a chain.
type Config struct {
	Difficulty uint // Zero is honored. See DefaultDifficulty.
	EvHandler  database.EventHandler
}

// Chain manages the ordered set of blocks.
type Chain struct {
	difficulty uint
	evHandler  database.EventHandler

	appendMu sync.Mutex
	mu       sync.RWMutex
	blocks   []database.Block
}

// New constructs a chain holding only the genesis block.
func New(cfg Config) (*Chain, error) {
	if cfg.Difficulty > database.MaxDifficulty {
		return nil, fmt.Errorf("%w: %d, max %d", database.ErrInvalidDifficulty, cfg.Difficulty, database.MaxDifficulty)
	}

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	c := Chain{
		difficulty: cfg.Difficulty,
		evHandler:  ev,
		blocks:     []database.Block{Genesis()},
	}

	return &c, nil
}

// Difficulty returns the number of leading zeros required of new blocks.
func (c *Chain) Difficulty() uint {
	return c.difficulty
}

// Length returns the number of blocks in the chain, genesis included.
func (c *Chain) Length() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.blocks)
}

// Tail returns a copy of the last block in the chain.
func (c *Chain) Tail() database.Block {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.blocks[len(c.blocks)-1]
}

// Block returns a copy of the block at the specified position.
func (c *Chain) Block(position int) (database.Block, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if position < 0 || position >= len(c.blocks) {
		return database.Block{}, fmt.Errorf("%w: position %d", ErrBlockNotFound, position)
	}

	return c.blocks[position], nil
}

// =============================================================================

// Append constructs a block from the fields and appends it to the chain.
func (c *Chain) Append(ctx context.Context, index uint64, timestamp string, payload database.Payload) (database.Block, error) {
	return c.AppendBlock(ctx, database.NewBlock(index, timestamp, payload))
}

// AppendBlock links the candidate to the current tail, mines it and adds it
// to the chain. The previous digest and nonce of the candidate are not
// trusted and are overwritten. The index is not checked against the
// position the block lands in. Only one append runs at a time and a
// cancelled append leaves the chain unchanged.
func (c *Chain) AppendBlock(ctx context.Context, candidate database.Block) (database.Block, error) {
	c.appendMu.Lock()
	defer c.appendMu.Unlock()

	c.evHandler("chain: AppendBlock: started: blk[%d]", candidate.Index)
	defer c.evHandler("chain: AppendBlock: completed: blk[%d]", candidate.Index)

	candidate.PrevDigest = c.Tail().Digest
	candidate.Nonce = 0

	if err := candidate.Mine(ctx, c.difficulty, c.evHandler); err != nil {
		return database.Block{}, fmt.Errorf("mining blk[%d]: %w", candidate.Index, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.blocks = append(c.blocks, candidate)
	c.evHandler("chain: AppendBlock: blk[%d]: position[%d]: digest[%s]", candidate.Index, len(c.blocks)-1, candidate.Digest)

	return candidate, nil
}

// =============================================================================

// Snapshot returns a read only view of every block in the chain.
func (c *Chain) Snapshot() []database.BlockView {
	c.mu.RLock()
	defer c.mu.RUnlock()

	views := make([]database.BlockView, len(c.blocks))
	for i, b := range c.blocks {
		views[i] = b.View()
	}

	return views
}

// Tamper hands the block at the specified position to the function so its
// fields can be changed in place. This bypasses every rule the chain
// enforces and exists to demonstrate and test tamper detection.
func (c *Chain) Tamper(position int, fn func(b *database.Block)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if position == 0 {
		return ErrGenesisImmutable
	}

	if position < 0 || position >= len(c.blocks) {
		return fmt.Errorf("%w: position %d", ErrBlockNotFound, position)
	}

	fn(&c.blocks[position])
	c.evHandler("chain: Tamper: WARNING: blk[%d]: position[%d] modified", c.blocks[position].Index, position)

	return nil
}
