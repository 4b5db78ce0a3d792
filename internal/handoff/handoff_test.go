package handoff

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var sixDigits = regexp.MustCompile(`^[0-9]{6}$`)

func TestGenerateCodeShape(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		code, err := GenerateCode()
		require.NoError(t, err)
		assert.Regexp(t, sixDigits, code)
		seen[code] = true
	}
	// 200 draws from a million codes should almost never repeat much.
	assert.Greater(t, len(seen), 190)
}

func TestHashVerify(t *testing.T) {
	h := Hasher{Cost: bcrypt.MinCost}

	hash, err := h.Hash("482913")
	require.NoError(t, err)
	assert.NotEqual(t, "482913", hash)
	assert.NotContains(t, hash, "482913")

	assert.True(t, h.Verify("482913", hash))
	assert.False(t, h.Verify("482914", hash))
	assert.False(t, h.Verify("000000", hash))
	assert.False(t, h.Verify("", hash))
	assert.False(t, h.Verify("482913", ""))
}

func TestHashIsSalted(t *testing.T) {
	h := Hasher{Cost: bcrypt.MinCost}
	a, err := h.Hash("123456")
	require.NoError(t, err)
	b, err := h.Hash("123456")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.True(t, h.Verify("123456", a))
	assert.True(t, h.Verify("123456", b))
}

func TestNewHasherCost(t *testing.T) {
	assert.Equal(t, DefaultCost, NewHasher(0).Cost)
	assert.Equal(t, DefaultCost, NewHasher(99).Cost)
	assert.Equal(t, bcrypt.MinCost, NewHasher(bcrypt.MinCost).Cost)
}
