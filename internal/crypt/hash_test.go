package crypt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashDeterministic(t *testing.T) {
	data := []byte("immutable content")
	assert.Equal(t, HashBytes(data), HashBytes(data))
	assert.Equal(t, HashBytes(data).Hex(), HashBytes(data).String())
}

func TestHashSingleByteMutation(t *testing.T) {
	data := []byte("immutable content")
	mutated := append([]byte(nil), data...)
	mutated[0] ^= 0x01

	assert.False(t, HashBytes(data).Equal(HashBytes(mutated)))
}

func TestParseDigestRoundTrip(t *testing.T) {
	d := HashString("P001")
	parsed, err := ParseDigest(d.String())
	require.NoError(t, err)
	assert.True(t, d.Equal(parsed))
}

func TestParseDigestRejectsBadInput(t *testing.T) {
	_, err := ParseDigest("abcd")
	assert.Error(t, err)

	_, err = ParseDigest(string(make([]byte, 64)))
	assert.Error(t, err)
}

func TestDigestIsZero(t *testing.T) {
	var zero Digest
	assert.True(t, zero.IsZero())
	assert.False(t, HashString("x").IsZero())
	assert.Len(t, zero.Bytes(), 32)
}
