package solana

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"

	"github.com/mr-tron/base58/base58"
	"github.com/pkg/errors"
)

// ParseKeypair parses a private key in either the JSON byte array format
// written by the Solana CLI, or as a base58 string.
func ParseKeypair(b []byte) (ed25519.PrivateKey, error) {
	var raw []byte

	var values []int
	if err := json.Unmarshal(b, &values); err == nil {
		raw = make([]byte, len(values))
		for i, v := range values {
			if v < 0 || v > 255 {
				return nil, errors.Errorf("invalid keypair byte at %d: %d", i, v)
			}
			raw[i] = byte(v)
		}
	} else {
		decoded, err := base58.Decode(string(bytes.TrimSpace(b)))
		if err != nil {
			return nil, errors.Wrap(err, "invalid keypair encoding")
		}
		raw = decoded
	}

	switch len(raw) {
	case ed25519.PrivateKeySize:
		key := ed25519.PrivateKey(raw)
		derived := ed25519.NewKeyFromSeed(key.Seed())
		if !derived.Equal(key) {
			return nil, errors.New("keypair public key does not match private key")
		}
		return key, nil
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	default:
		return nil, errors.Errorf("invalid keypair length: %d", len(raw))
	}
}
