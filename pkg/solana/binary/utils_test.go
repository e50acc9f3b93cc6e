package binary

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	key, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	b := make([]byte, 4+ed25519.PublicKeySize+8+1+StringSize("seed123"))

	var offset int
	PutUint32(b[offset:], 3, &offset)
	PutKey32(b[offset:], key, &offset)
	PutUint64(b[offset:], 10_000_000, &offset)
	PutBool(b[offset:], true, &offset)
	PutString(b[offset:], "seed123", &offset)
	assert.Equal(t, len(b), offset)
	assert.Equal(t, []byte{3, 0, 0, 0}, b[:4])

	var (
		decodedKey ed25519.PublicKey
		lamports   uint64
		flag       bool
		seed       string
	)

	offset = 4
	GetKey32(b[offset:], &decodedKey, &offset)
	GetUint64(b[offset:], &lamports, &offset)
	GetBool(b[offset:], &flag, &offset)
	require.NoError(t, GetString(b[offset:], &seed, &offset))
	assert.Equal(t, len(b), offset)

	assert.EqualValues(t, key, decodedKey)
	assert.EqualValues(t, 10_000_000, lamports)
	assert.True(t, flag)
	assert.Equal(t, "seed123", seed)
}

func TestGetString_Invalid(t *testing.T) {
	var s string
	var offset int

	assert.Error(t, GetString([]byte{1, 0, 0}, &s, &offset))
	assert.Error(t, GetString([]byte{5, 0, 0, 0, 0, 0, 0, 0, 'a'}, &s, &offset))
	assert.Zero(t, offset)

	require.NoError(t, GetString([]byte{0, 0, 0, 0, 0, 0, 0, 0}, &s, &offset))
	assert.Empty(t, s)
	assert.Equal(t, 8, offset)
}
