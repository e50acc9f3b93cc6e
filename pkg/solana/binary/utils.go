// Package binary reads and writes the little endian fields of instruction
// payloads and stored accounts, advancing a shared offset.
package binary

import (
	"crypto/ed25519"
	"encoding/binary"

	"github.com/pkg/errors"
)

func PutKey32(dst []byte, src []byte, offset *int) {
	copy(dst, src)
	*offset += ed25519.PublicKeySize
}

func PutUint64(dst []byte, v uint64, offset *int) {
	binary.LittleEndian.PutUint64(dst, v)
	*offset += 8
}

func PutUint32(dst []byte, v uint32, offset *int) {
	binary.LittleEndian.PutUint32(dst, v)
	*offset += 4
}

func PutBool(dst []byte, v bool, offset *int) {
	dst[0] = 0
	if v {
		dst[0] = 1
	}
	*offset++
}

// PutString writes s prefixed by its u64 length.
func PutString(dst []byte, s string, offset *int) {
	PutUint64(dst, uint64(len(s)), offset)
	*offset += copy(dst[8:], s)
}

// StringSize is the encoded size of s.
func StringSize(s string) int {
	return 8 + len(s)
}

func GetKey32(src []byte, dst *ed25519.PublicKey, offset *int) {
	*dst = make([]byte, ed25519.PublicKeySize)
	copy(*dst, src)
	*offset += ed25519.PublicKeySize
}

func GetUint64(src []byte, dst *uint64, offset *int) {
	*dst = binary.LittleEndian.Uint64(src)
	*offset += 8
}

func GetBool(src []byte, dst *bool, offset *int) {
	*dst = src[0] == 1
	*offset++
}

// GetString reads a u64 length prefixed string, failing if src is too short
// to hold it.
func GetString(src []byte, dst *string, offset *int) error {
	if len(src) < 8 {
		return errors.Errorf("invalid string size: %d", len(src))
	}

	size := binary.LittleEndian.Uint64(src)
	if size > uint64(len(src)-8) {
		return errors.Errorf("string length %d exceeds remaining %d bytes", size, len(src)-8)
	}

	*dst = string(src[8 : 8+size])
	*offset += 8 + int(size)
	return nil
}
