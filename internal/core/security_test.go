// AngelaMos | 2026
// security_test.go

package core

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("hunter2-but-longer")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v="))

	ok, err := VerifyPassword("hunter2-but-longer", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword("wrong", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashPasswordSalted(t *testing.T) {
	a, err := HashPassword("same-password")
	require.NoError(t, err)
	b, err := HashPassword("same-password")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestVerifyPasswordMalformed(t *testing.T) {
	for _, encoded := range []string{
		"",
		"plaintext",
		"$argon2id$v=19$m=65536,t=1,p=4$onlysalt",
		"$bcrypt$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA",
	} {
		_, err := VerifyPassword("x", encoded)
		assert.Error(t, err, encoded)
	}
}

func TestVerifyPasswordTimingSafe(t *testing.T) {
	hash, err := HashPassword("correct-pw")
	require.NoError(t, err)

	ok, err := VerifyPasswordTimingSafe("correct-pw", &hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPasswordTimingSafe("correct-pw", nil)
	require.NoError(t, err)
	assert.False(t, ok, "missing user must never verify")
}

func TestGenerateOpaqueID(t *testing.T) {
	a, err := GenerateOpaqueID()
	require.NoError(t, err)
	b, err := GenerateOpaqueID()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)

	raw, err := base64.RawURLEncoding.DecodeString(a)
	require.NoError(t, err)
	assert.Len(t, raw, 32)
}

func TestHashToken(t *testing.T) {
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		HashToken(""),
	)
	assert.Equal(t, HashToken("abc"), HashToken("abc"))
	assert.NotEqual(t, HashToken("abc"), HashToken("abd"))
	assert.Len(t, HashToken("anything"), 64)
}
