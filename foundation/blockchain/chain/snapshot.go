package chain

import (
	"bytes"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
	"github.com/ardanlabs/powledger/foundation/blockchain/signature"
)

// SignedSnapshot is a copy of the chain signed by whoever exported it.
type SignedSnapshot struct {
	Difficulty uint                 `json:"difficulty"`
	Blocks     []database.BlockView `json:"blocks"`
	V          *big.Int             `json:"v"`
	R          *big.Int             `json:"r"`
	S          *big.Int             `json:"s"`
}

// signedContent is the part of the snapshot covered by the signature.
type signedContent struct {
	Difficulty uint                 `json:"difficulty"`
	Blocks     []database.BlockView `json:"blocks"`
}

// SignSnapshot signs the views with the private key.
func SignSnapshot(difficulty uint, views []database.BlockView, privateKey *ecdsa.PrivateKey) (SignedSnapshot, error) {
	content := signedContent{
		Difficulty: difficulty,
		Blocks:     views,
	}

	v, r, s, err := signature.Sign(content, privateKey)
	if err != nil {
		return SignedSnapshot{}, fmt.Errorf("signing snapshot: %w", err)
	}

	ss := SignedSnapshot{
		Difficulty: difficulty,
		Blocks:     views,
		V:          v,
		R:          r,
		S:          s,
	}

	return ss, nil
}

// Signer verifies the signature and returns the address that produced it.
func (ss SignedSnapshot) Signer() (string, error) {
	if err := signature.VerifySignature(ss.V, ss.R, ss.S); err != nil {
		return "", err
	}

	content := signedContent{
		Difficulty: ss.Difficulty,
		Blocks:     ss.Blocks,
	}

	return signature.FromAddress(content, ss.V, ss.R, ss.S)
}

// SignatureString returns the signature as a hex string.
func (ss SignedSnapshot) SignatureString() string {
	return signature.SignatureString(ss.V, ss.R, ss.S)
}

// Validate rebuilds the blocks from the snapshot and validates them the same
// way a live chain is validated.
func (ss SignedSnapshot) Validate() (Result, error) {
	return ValidateViews(ss.Blocks)
}

// ValidateViews converts the views into blocks and validates them. The first
// view must be the genesis block, field for field, since validation never
// checks the genesis block's own content.
func ValidateViews(views []database.BlockView) (Result, error) {
	if len(views) == 0 {
		return Result{}, errors.New("snapshot has no blocks")
	}

	if !isGenesis(views[0]) {
		return Result{}, errors.New("snapshot doesn't start with the genesis block")
	}

	blocks := make([]database.Block, len(views))
	for i, v := range views {
		b, err := database.FromView(v)
		if err != nil {
			return Result{}, err
		}
		blocks[i] = b
	}

	return ValidateBlocks(blocks), nil
}

// isGenesis reports whether every field of the view matches the genesis block.
func isGenesis(v database.BlockView) bool {
	g := Genesis().View()

	payload, err := database.ParsePayload(v.Payload)
	if err != nil {
		return false
	}

	return v.Index == g.Index &&
		v.Timestamp == g.Timestamp &&
		bytes.Equal(payload.CanonicalBytes(), g.Payload) &&
		v.PrevDigest == g.PrevDigest &&
		v.Nonce == g.Nonce &&
		v.Digest == g.Digest
}
