// Package database defines the block, how its digest is computed and the
// proof of work used to seal it.
package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ardanlabs/powledger/foundation/blockchain/signature"
)

// ErrInvalidDifficulty is returned when a difficulty asks for more leading
// zeros than a digest has characters.
var ErrInvalidDifficulty = errors.New("invalid difficulty")

// MaxDifficulty is the largest difficulty that can ever be solved.
const MaxDifficulty = signature.DigestLength

// EventHandler defines a function that is called when events occur while
// mining a block.
type EventHandler func(v string, args ...any)

// =============================================================================

// Block represents a single record in the chain. The Digest field is a
// function of every other field and must be recomputed whenever one of them
// changes.
type Block struct {
	Index      uint64  // Position the caller claims for the block. Informational only.
	Timestamp  string  // Opaque time value supplied by the caller.
	Payload    Payload // Content of the block.
	PrevDigest string  // Digest of the block before this one in the chain.
	Nonce      uint64  // Value identified to solve the proof of work.
	Digest     string  // Digest of this block.
}

// NewBlock constructs a block with a provisional digest. The block has no
// previous digest until it's appended to a chain.
func NewBlock(index uint64, timestamp string, payload Payload) Block {
	b := Block{
		Index:     index,
		Timestamp: timestamp,
		Payload:   payload,
	}
	b.Digest = b.ComputeDigest()

	return b
}

// ComputeDigest returns the digest for the block's current field values. The
// digest input is the decimal index, the timestamp, the canonical payload,
// the previous digest and the decimal nonce, concatenated with no separators.
func (b Block) ComputeDigest() string {
	payload := []byte("null")
	if b.Payload != nil {
		payload = b.Payload.CanonicalBytes()
	}

	return signature.Digest(
		strconv.AppendUint(nil, b.Index, 10),
		[]byte(b.Timestamp),
		payload,
		[]byte(b.PrevDigest),
		strconv.AppendUint(nil, b.Nonce, 10),
	)
}

// Mine does the work of finding a nonce that produces a digest with the
// specified number of leading zeros. The search starts at the current nonce
// and only stops early if the context is cancelled. Pointer semantics are
// being used since the nonce and digest are being discovered.
func (b *Block) Mine(ctx context.Context, difficulty uint, ev EventHandler) error {
	if difficulty > MaxDifficulty {
		return fmt.Errorf("%w: %d, max %d", ErrInvalidDifficulty, difficulty, MaxDifficulty)
	}

	if ev == nil {
		ev = func(string, ...any) {}
	}

	ev("database: Mine: MINING: started: blk[%d]: difficulty[%d]", b.Index, difficulty)

	var attempts uint64
	for {
		attempts++
		if attempts%1_000_000 == 0 {
			ev("database: Mine: MINING: blk[%d]: attempts[%d]", b.Index, attempts)
		}

		if ctx.Err() != nil {
			b.Digest = b.ComputeDigest()
			ev("database: Mine: MINING: CANCELLED: blk[%d]: attempts[%d]", b.Index, attempts)
			return ctx.Err()
		}

		digest := b.ComputeDigest()
		if !IsDigestSolved(difficulty, digest) {
			b.Nonce++
			continue
		}

		b.Digest = digest
		ev("database: Mine: MINING: SOLVED: blk[%d]: prevBlk[%s]: newBlk[%s]: nonce[%d]: attempts[%d]", b.Index, b.PrevDigest, b.Digest, b.Nonce, attempts)

		return nil
	}
}

// IsDigestSolved checks the digest starts with a difficulty number of 0's.
func IsDigestSolved(difficulty uint, digest string) bool {
	if difficulty > uint(len(digest)) {
		return false
	}

	return strings.Count(digest[:difficulty], "0") == int(difficulty)
}

// =============================================================================

// BlockView is the read only representation of a block handed to anything
// outside the chain, such as the web api or a snapshot file.
type BlockView struct {
	Index      uint64          `json:"index"`
	Timestamp  string          `json:"timestamp"`
	Payload    json.RawMessage `json:"payload"`
	PrevDigest string          `json:"previous_digest"`
	Nonce      uint64          `json:"nonce"`
	Digest     string          `json:"digest"`
}

// View returns a copy of the block's fields.
func (b Block) View() BlockView {
	payload := json.RawMessage("null")
	if b.Payload != nil {
		payload = b.Payload.CanonicalBytes()
	}

	return BlockView{
		Index:      b.Index,
		Timestamp:  b.Timestamp,
		Payload:    payload,
		PrevDigest: b.PrevDigest,
		Nonce:      b.Nonce,
		Digest:     b.Digest,
	}
}

// FromView converts a view back into a block. The stored digest is kept as
// is so the block can still be checked against its fields.
func FromView(v BlockView) (Block, error) {
	payload, err := ParsePayload(v.Payload)
	if err != nil {
		return Block{}, fmt.Errorf("blk[%d]: %w", v.Index, err)
	}

	b := Block{
		Index:      v.Index,
		Timestamp:  v.Timestamp,
		Payload:    payload,
		PrevDigest: v.PrevDigest,
		Nonce:      v.Nonce,
		Digest:     v.Digest,
	}

	return b, nil
}
