// Package signature provides the digest primitive used to link blocks and
// the helpers used to sign and recover exported chain snapshots.
package signature

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// GenesisPrevDigest is the previous digest recorded by the genesis block
// since there is no block before it.
const GenesisPrevDigest = "0"

// DigestLength is the number of hex characters in every block digest.
const DigestLength = sha256.Size * 2

// ledgerID is an arbitrary number added to the recovery id so signatures
// produced here can be told apart from Ethereum (27) and Ardan (29) ones.
const ledgerID = 31

// =============================================================================

// Digest hashes the concatenation of the parts with SHA-256 and returns the
// result as lowercase hex with no prefix. The leading characters of this
// string are what the proof of work puzzle is checked against.
func Digest(parts ...[]byte) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}

	return hex.EncodeToString(h.Sum(nil))
}

// IsDigest reports whether the string has the shape of a digest.
func IsDigest(s string) bool {
	if len(s) != DigestLength {
		return false
	}

	_, err := hex.DecodeString(s)
	return err == nil
}

// =============================================================================

// Sign uses the specified private key to sign the value.
func Sign(value any, privateKey *ecdsa.PrivateKey) (v, r, s *big.Int, err error) {
	data, err := stamp(value)
	if err != nil {
		return nil, nil, nil, err
	}

	sig, err := crypto.Sign(data, privateKey)
	if err != nil {
		return nil, nil, nil, err
	}

	// Make sure the key can be recovered before handing the signature back.
	publicKey, err := crypto.SigToPub(data, sig)
	if err != nil {
		return nil, nil, nil, err
	}

	rs := sig[:crypto.RecoveryIDOffset]
	if !crypto.VerifySignature(crypto.FromECDSAPub(publicKey), data, rs) {
		return nil, nil, nil, errors.New("invalid signature")
	}

	v, r, s = toSignatureValues(sig)

	return v, r, s, nil
}

// VerifySignature checks the signature values conform to our standards.
func VerifySignature(v, r, s *big.Int) error {
	if v == nil || r == nil || s == nil {
		return errors.New("missing signature values")
	}

	recID := v.Uint64() - ledgerID
	if recID != 0 && recID != 1 {
		return errors.New("invalid recovery id")
	}

	if !crypto.ValidateSignatureValues(byte(recID), r, s, false) {
		return errors.New("invalid signature values")
	}

	return nil
}

// FromAddress recovers the address of the account that signed the value.
// The exact value that was signed must be provided or a different address
// is returned.
func FromAddress(value any, v, r, s *big.Int) (string, error) {
	data, err := stamp(value)
	if err != nil {
		return "", err
	}

	publicKey, err := crypto.SigToPub(data, toSignatureBytes(v, r, s))
	if err != nil {
		return "", err
	}

	return crypto.PubkeyToAddress(*publicKey).String(), nil
}

// SignatureString returns the signature as a hex string.
func SignatureString(v, r, s *big.Int) string {
	sig := toSignatureBytes(v, r, s)
	sig[64] = byte(v.Uint64())

	return hexutil.Encode(sig)
}

// =============================================================================

// stamp returns the 32 byte hash that is actually signed for the value.
func stamp(value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}

	stamp := []byte("\x19Ledger Signed Snapshot:\n32")

	return crypto.Keccak256(stamp, crypto.Keccak256(data)), nil
}

// toSignatureValues splits a 65 byte signature into its r, s, v values.
func toSignatureValues(sig []byte) (v, r, s *big.Int) {
	r = new(big.Int).SetBytes(sig[:32])
	s = new(big.Int).SetBytes(sig[32:64])
	v = new(big.Int).SetBytes([]byte{sig[64] + ledgerID})

	return v, r, s
}

// toSignatureBytes rebuilds the 65 byte signature without the ledger id.
func toSignatureBytes(v, r, s *big.Int) []byte {
	sig := make([]byte, crypto.SignatureLength)

	r.FillBytes(sig[:32])
	s.FillBytes(sig[32:64])
	sig[64] = byte(v.Uint64() - ledgerID)

	return sig
}
