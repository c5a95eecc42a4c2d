package chain

import (
	"fmt"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
)

// Status represents the outcome of validating a chain.
type Status int

// Set of possible validation outcomes.
const (
	StatusValid Status = iota
	StatusDigestMismatch
	StatusLinkMismatch
)

var statusNames = map[Status]string{
	StatusValid:          "valid",
	StatusDigestMismatch: "digest_mismatch",
	StatusLinkMismatch:   "link_mismatch",
}

// String implements the fmt.Stringer interface.
func (s Status) String() string {
	if name, exists := statusNames[s]; exists {
		return name
	}

	return fmt.Sprintf("status(%d)", int(s))
}

// MarshalText implements the encoding.TextMarshaler interface.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// =============================================================================

// Result describes the outcome of a validation. Position is the place in the
// chain of the first block that failed and is zero for a valid chain.
type Result struct {
	Status   Status `json:"status"`
	Position int    `json:"position"`
}

// Valid reports whether the chain passed every check.
func (r Result) Valid() bool {
	return r.Status == StatusValid
}

// Err converts a failed result into an error. It returns nil for a valid chain.
func (r Result) Err() error {
	if r.Valid() {
		return nil
	}

	return &IntegrityError{Result: r}
}

// IntegrityError is returned when the chain fails validation.
type IntegrityError struct {
	Result Result
}

// Error implements the error interface.
func (ie *IntegrityError) Error() string {
	switch ie.Result.Status {
	case StatusDigestMismatch:
		return fmt.Sprintf("block at position %d has a digest that doesn't match its contents", ie.Result.Position)
	case StatusLinkMismatch:
		return fmt.Sprintf("block at position %d doesn't link to the digest of the block before it", ie.Result.Position)
	}

	return fmt.Sprintf("block at position %d failed validation: %s", ie.Result.Position, ie.Result.Status)
}

// =============================================================================

// IsValid reports whether the chain passes validation.
func (c *Chain) IsValid() bool {
	return c.Validate().Valid()
}

// Validate walks the chain and reports the first block that fails.
func (c *Chain) Validate() Result {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return ValidateBlocks(c.blocks)
}

// ValidateBlocks checks every block after the first one. Each block must
// have a digest that matches its own fields and must carry the digest of
// the block before it. The walk stops at the first failure.
func ValidateBlocks(blocks []database.Block) Result {
	for i := 1; i < len(blocks); i++ {
		current := blocks[i]
		previous := blocks[i-1]

		if current.Digest != current.ComputeDigest() {
			return Result{Status: StatusDigestMismatch, Position: i}
		}

		if current.PrevDigest != previous.Digest {
			return Result{Status: StatusLinkMismatch, Position: i}
		}
	}

	return Result{Status: StatusValid}
}
