package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignerRoundTrip(t *testing.T) {
	dir := t.TempDir()

	s, created, err := LoadOrCreateSigner(dir)
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := LoadOrCreateSigner(dir)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, s.PublicHex(), again.PublicHex())

	sig := s.Sign([]byte("block-hash"))
	ok, err := VerifySignatureFromHex(again.PublicHex(), []byte("block-hash"), sig)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifySignatureFromHex(again.PublicHex(), []byte("other"), sig)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifySignatureFromHexRejectsBadKey(t *testing.T) {
	_, err := VerifySignatureFromHex("abcd", []byte("x"), "00")
	assert.Error(t, err)
}
