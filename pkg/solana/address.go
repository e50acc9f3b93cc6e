package solana

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"iter"
	"math"

	"filippo.io/edwards25519"
	jdgcs "github.com/jdgcs/ed25519/edwards25519"
	"github.com/pkg/errors"
)

const (
	// MaxSeeds is the maximum number of seeds, including the bump seed, that
	// may be used to derive a program address.
	MaxSeeds = 16

	// MaxSeedLength is the maximum length of any individual seed, as well as
	// the maximum length of the seed string used by CreateWithSeed.
	MaxSeedLength = 32

	// PDAMarker is the domain separation suffix hashed into every program address.
	PDAMarker = "ProgramDerivedAddress"
)

var (
	// ErrInvalidSeeds is the class of every program address derivation failure.
	ErrInvalidSeeds = errors.New("invalid seeds")

	ErrTooManySeeds          = errors.WithMessage(ErrInvalidSeeds, "too many seeds")
	ErrMaxSeedLengthExceeded = errors.WithMessage(ErrInvalidSeeds, "max seed length exceeded")

	// ErrInvalidPublicKey indicates the derived address lies on the ed25519 curve.
	ErrInvalidPublicKey = errors.WithMessage(ErrInvalidSeeds, "invalid public key")

	ErrNoViableBump = errors.New("unable to find a viable program address bump seed")

	ErrSeedTooLong  = errors.New("seed too long")
	ErrIllegalOwner = errors.New("illegal owner")
)

var (
	programHashCtor = sha256.New
)

// CreateWithSeed derives an address from a base address, a human readable
// seed, and the program that will own the account.
//
// The result is sha256(base || seed || owner). No curve check is performed,
// since the base key must sign for any account created at this address.
//
// Reference: https://github.com/solana-labs/solana/blob/5548e599fe4920b71766e0ad1d121755ce9c63d5/sdk/program/src/pubkey.rs#L136
func CreateWithSeed(base ed25519.PublicKey, seed string, owner ed25519.PublicKey) (ed25519.PublicKey, error) {
	if len(seed) > MaxSeedLength {
		return nil, ErrSeedTooLong
	}

	if len(owner) >= len(PDAMarker) && bytes.HasSuffix(owner, []byte(PDAMarker)) {
		return nil, ErrIllegalOwner
	}

	h := sha256.New()
	h.Write(base)
	h.Write([]byte(seed))
	h.Write(owner)
	return h.Sum(nil), nil
}

// CreateProgramAddress mirrors the implementation of the Solana SDK's CreateProgramAddress.
//
// ProgramAddresses are public keys that _do not_ lie on the ed25519 curve to ensure that
// there is no associated private key. In the event that the program and seed parameters
// result in a valid public key, ErrInvalidPublicKey is returned.
//
// Reference: https://github.com/solana-labs/solana/blob/5548e599fe4920b71766e0ad1d121755ce9c63d5/sdk/program/src/pubkey.rs#L158
func CreateProgramAddress(program ed25519.PublicKey, seeds ...[]byte) (ed25519.PublicKey, error) {
	if len(seeds) > MaxSeeds {
		return nil, ErrTooManySeeds
	}

	h := programHashCtor()
	for _, s := range seeds {
		if len(s) > MaxSeedLength {
			return nil, ErrMaxSeedLengthExceeded
		}

		if _, err := h.Write(s); err != nil {
			return nil, errors.Wrap(err, "failed to hash seed")
		}
	}

	for _, v := range [][]byte{program, []byte(PDAMarker)} {
		if _, err := h.Write(v); err != nil {
			return nil, errors.Wrap(err, "failed to hash seed")
		}
	}

	hash := h.Sum(nil)
	var pub [32]byte
	copy(pub[:], hash)

	// Following the Solana SDK, we want to _reject_ the generated public key
	// if it decompresses to a valid EdwardsPoint.
	//
	// The SDK decompresses without rejecting non-canonical y coordinates,
	// which matches edwards25519.ExtendedGroupElement.FromBytes.
	//
	// Reference: https://github.com/solana-labs/solana/blob/5548e599fe4920b71766e0ad1d121755ce9c63d5/sdk/program/src/pubkey.rs#L182-L187
	var A jdgcs.ExtendedGroupElement
	if A.FromBytes(&pub) {
		return nil, ErrInvalidPublicKey
	}

	return pub[:], nil
}

// BumpSeeds yields the candidate bump seeds in search order, from 255 down to
// and including 0. Each call returns a fresh sequence.
func BumpSeeds() iter.Seq[uint8] {
	return func(yield func(uint8) bool) {
		for bump := math.MaxUint8; bump >= 0; bump-- {
			if !yield(uint8(bump)) {
				return
			}
		}
	}
}

// FindProgramAddressAndBump mirrors the implementation of the Solana SDK's
// FindProgramAddress. It returns the address and bump seed.
//
// The bump is appended as a trailing seed, so at most MaxSeeds-1 seeds may
// be provided. Callers should persist the bump alongside the address, since
// it is required to sign for the address later on.
//
// Reference: https://github.com/solana-labs/solana/blob/5548e599fe4920b71766e0ad1d121755ce9c63d5/sdk/program/src/pubkey.rs#L234
func FindProgramAddressAndBump(program ed25519.PublicKey, seeds ...[]byte) (ed25519.PublicKey, uint8, error) {
	if len(seeds) > MaxSeeds-1 {
		return nil, 0, ErrTooManySeeds
	}
	for _, s := range seeds {
		if len(s) > MaxSeedLength {
			return nil, 0, ErrMaxSeedLengthExceeded
		}
	}

	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)

	for bump := range BumpSeeds() {
		withBump[len(seeds)] = []byte{bump}

		pub, err := CreateProgramAddress(program, withBump...)
		if err == nil {
			return pub, bump, nil
		}
		if err != ErrInvalidPublicKey {
			return nil, 0, err
		}
	}

	return nil, 0, ErrNoViableBump
}

// FindProgramAddress mirrors the implementation of the Solana SDK's FindProgramAddress.
// It only returns the address.
//
// Reference: https://github.com/solana-labs/solana/blob/5548e599fe4920b71766e0ad1d121755ce9c63d5/sdk/program/src/pubkey.rs#L234
func FindProgramAddress(program ed25519.PublicKey, seeds ...[]byte) (ed25519.PublicKey, error) {
	pub, _, err := FindProgramAddressAndBump(program, seeds...)
	return pub, err
}

// IsOnCurve reports whether the key decodes to a point on the ed25519 curve,
// i.e. whether a private key could exist for it. Non-canonical encodings of
// valid points are accepted, consistent with CreateProgramAddress.
func IsOnCurve(pub ed25519.PublicKey) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}

	_, err := new(edwards25519.Point).SetBytes(pub)
	return err == nil
}
