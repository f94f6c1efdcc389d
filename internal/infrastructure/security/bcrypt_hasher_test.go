package security

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func randomString(t *testing.T, n int) string {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return hex.EncodeToString(b)
}

func TestBcryptHasher_Hash(t *testing.T) {
	hasher := NewBcryptHasherWithCost(bcrypt.MinCost)

	hash, err := hasher.Hash("secret")
	require.NoError(t, err)
	assert.NotEmpty(t, hash)
	assert.NotEqual(t, "secret", hash)
	assert.True(t, hasher.Check("secret", hash))
}

func TestBcryptHasher_FreshSaltPerCall(t *testing.T) {
	hasher := NewBcryptHasherWithCost(bcrypt.MinCost)

	first, err := hasher.Hash("secret")
	require.NoError(t, err)
	second, err := hasher.Hash("secret")
	require.NoError(t, err)

	assert.Len(t, second, len(first))
	assert.NotEqual(t, first, second)
	assert.True(t, hasher.Check("secret", first))
	assert.True(t, hasher.Check("secret", second))
}

func TestBcryptHasher_Check(t *testing.T) {
	hasher := NewBcryptHasherWithCost(bcrypt.MinCost)
	hash, err := hasher.Hash("secret")
	require.NoError(t, err)

	assert.False(t, hasher.Check("wrong", hash))
	assert.False(t, hasher.Check("", hash))
	assert.False(t, hasher.Check("secret", ""))
	assert.False(t, hasher.Check("secret", "invalid_hash"))
	assert.False(t, hasher.Check("secret", "$2a$04$short"))
}

func TestBcryptHasher_RandomPairs(t *testing.T) {
	hasher := NewBcryptHasherWithCost(bcrypt.MinCost)

	for i := 0; i < 25; i++ {
		plain := randomString(t, 4+i%12)
		other := randomString(t, 4+(i+5)%12)
		if plain == other {
			continue
		}

		hash, err := hasher.Hash(plain)
		require.NoError(t, err)

		assert.True(t, hasher.Check(plain, hash), "hash of %q should verify", plain)
		assert.False(t, hasher.Check(other, hash), "hash of %q should reject %q", plain, other)
	}
}

func TestBcryptHasher_WithCustomCost(t *testing.T) {
	hasher := NewBcryptHasherWithCost(6)

	hash, err := hasher.Hash("secret")
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, 6, cost)
}

func TestBcryptHasher_CostIsClamped(t *testing.T) {
	hasher := NewBcryptHasherWithCost(1)

	hash, err := hasher.Hash("secret")
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost, cost)
}

func TestBcryptHasher_LongPasswords(t *testing.T) {
	hasher := NewBcryptHasherWithCost(bcrypt.MinCost)

	long := strings.Repeat("a", 73)
	hash, err := hasher.Hash(long)
	require.NoError(t, err)
	assert.True(t, hasher.Check(long, hash))

	// Passwords sharing their first 72 bytes must still be told apart.
	prefix := strings.Repeat("p", 72)
	hash, err = hasher.Hash(prefix + "-one")
	require.NoError(t, err)
	assert.True(t, hasher.Check(prefix+"-one", hash))
	assert.False(t, hasher.Check(prefix+"-two", hash))
	assert.False(t, hasher.Check(prefix, hash))
}

func TestBcryptHasher_RejectsRawBcryptOfPlaintext(t *testing.T) {
	hasher := NewBcryptHasherWithCost(bcrypt.MinCost)

	raw, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)
	assert.False(t, hasher.Check("secret", string(raw)))
}
