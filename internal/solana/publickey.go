// Package solana provides the ledger primitives the launch pipeline needs:
// keys, program-derived addresses, instructions and the legacy transaction
// wire format.
package solana

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// PublicKeyLength is the byte length of an address.
const PublicKeyLength = 32

// MaxSeedLength is the longest single seed accepted by address derivation.
const MaxSeedLength = 32

// MaxSeeds is the maximum number of seeds, including the bump.
const MaxSeeds = 16

var (
	// ErrInvalidSeeds is returned when derivation seeds exceed ledger limits.
	ErrInvalidSeeds = errors.New("invalid program address seeds")
	// ErrOnCurve is returned when a derived address lands on the ed25519 curve
	// and therefore could have a private key.
	ErrOnCurve = errors.New("derived address is on the ed25519 curve")
	// ErrNoViableBump is returned when no bump seed yields an off-curve address.
	ErrNoViableBump = errors.New("unable to find a viable program address bump seed")
)

// PublicKey is a 32-byte ledger address.
type PublicKey [PublicKeyLength]byte

// PublicKeyFromBase58 parses a base58 address.
func PublicKeyFromBase58(s string) (PublicKey, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return PublicKey{}, fmt.Errorf("decode base58 address %q: %w", s, err)
	}
	return PublicKeyFromBytes(raw)
}

// PublicKeyFromBytes copies a 32-byte slice into a PublicKey.
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	var pk PublicKey
	if len(b) != PublicKeyLength {
		return pk, fmt.Errorf("invalid address length %d, want %d", len(b), PublicKeyLength)
	}
	copy(pk[:], b)
	return pk, nil
}

// MustPublicKey parses a base58 address and panics on failure. Only for
// package-level constants.
func MustPublicKey(s string) PublicKey {
	pk, err := PublicKeyFromBase58(s)
	if err != nil {
		panic(err)
	}
	return pk
}

// String returns the base58 encoding.
func (pk PublicKey) String() string {
	return base58.Encode(pk[:])
}

// Bytes returns a copy of the raw key bytes.
func (pk PublicKey) Bytes() []byte {
	out := make([]byte, PublicKeyLength)
	copy(out, pk[:])
	return out
}

// IsZero reports whether every byte is zero.
func (pk PublicKey) IsZero() bool {
	return pk == PublicKey{}
}

// Equals compares two keys.
func (pk PublicKey) Equals(other PublicKey) bool {
	return bytes.Equal(pk[:], other[:])
}

// IsOnCurve reports whether the bytes decode to a valid ed25519 point.
func (pk PublicKey) IsOnCurve() bool {
	_, err := new(edwards25519.Point).SetBytes(pk[:])
	return err == nil
}

// MarshalJSON encodes the key as base58.
func (pk PublicKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(pk.String())
}

// UnmarshalJSON decodes a base58 key.
func (pk *PublicKey) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := PublicKeyFromBase58(s)
	if err != nil {
		return err
	}
	*pk = parsed
	return nil
}

// =============================================================================
// Program Derived Addresses
// =============================================================================

const pdaMarker = "ProgramDerivedAddress"

// CreateProgramAddress hashes the seeds under programID and rejects results
// that fall on the curve.
func CreateProgramAddress(seeds [][]byte, programID PublicKey) (PublicKey, error) {
	if len(seeds) > MaxSeeds {
		return PublicKey{}, ErrInvalidSeeds
	}
	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > MaxSeedLength {
			return PublicKey{}, ErrInvalidSeeds
		}
		h.Write(seed)
	}
	h.Write(programID[:])
	h.Write([]byte(pdaMarker))

	var pk PublicKey
	copy(pk[:], h.Sum(nil))
	if pk.IsOnCurve() {
		return PublicKey{}, ErrOnCurve
	}
	return pk, nil
}

// FindProgramAddress searches bump seeds from 255 down and returns the first
// off-curve address with its bump.
func FindProgramAddress(seeds [][]byte, programID PublicKey) (PublicKey, uint8, error) {
	if len(seeds) >= MaxSeeds {
		return PublicKey{}, 0, ErrInvalidSeeds
	}
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}
		pk, err := CreateProgramAddress(withBump, programID)
		if err == nil {
			return pk, uint8(bump), nil
		}
		if !errors.Is(err, ErrOnCurve) {
			return PublicKey{}, 0, err
		}
	}
	return PublicKey{}, 0, ErrNoViableBump
}

// FindAssociatedTokenAddress derives the associated token account of owner
// for mint under the given token program.
func FindAssociatedTokenAddress(owner, mint, tokenProgram PublicKey) (PublicKey, error) {
	addr, _, err := FindProgramAddress([][]byte{owner[:], tokenProgram[:], mint[:]}, AssociatedTokenProgramID)
	return addr, err
}

// =============================================================================
// Hash
// =============================================================================

// Hash is a 32-byte blockhash.
type Hash [32]byte

// HashFromBase58 parses a base58 blockhash.
func HashFromBase58(s string) (Hash, error) {
	pk, err := PublicKeyFromBase58(s)
	if err != nil {
		return Hash{}, fmt.Errorf("invalid blockhash: %w", err)
	}
	return Hash(pk), nil
}

// String returns the base58 encoding.
func (h Hash) String() string {
	return base58.Encode(h[:])
}
