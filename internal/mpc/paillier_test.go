package mpc

import (
	"crypto/rand"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPaillier(t *testing.T) *paillierPrivateKey {
	t.Helper()
	sk, err := generatePaillier(rand.Reader, MinPaillierBits)
	require.NoError(t, err)
	require.Equal(t, MinPaillierBits, sk.N.BitLen())
	return sk
}

func TestPaillierRoundTrip(t *testing.T) {
	sk := testPaillier(t)

	for _, m := range []*big.Int{big.NewInt(0), big.NewInt(1), big.NewInt(424242), new(big.Int).Sub(sk.N, one)} {
		c, err := sk.encrypt(rand.Reader, m)
		require.NoError(t, err)
		got, err := sk.decrypt(c)
		require.NoError(t, err)
		assert.Zero(t, m.Cmp(got), "m=%s", m)
	}
}

func TestPaillierIsProbabilistic(t *testing.T) {
	sk := testPaillier(t)
	m := big.NewInt(7)

	c1, err := sk.encrypt(rand.Reader, m)
	require.NoError(t, err)
	c2, err := sk.encrypt(rand.Reader, m)
	require.NoError(t, err)
	assert.NotZero(t, c1.Cmp(c2))
}

func TestPaillierHomomorphism(t *testing.T) {
	sk := testPaillier(t)
	a, b, k := big.NewInt(1234567), big.NewInt(7654321), big.NewInt(98765)

	ca, err := sk.encrypt(rand.Reader, a)
	require.NoError(t, err)
	cb, err := sk.encrypt(rand.Reader, b)
	require.NoError(t, err)

	sum, err := sk.decrypt(sk.add(ca, cb))
	require.NoError(t, err)
	assert.Zero(t, new(big.Int).Add(a, b).Cmp(sum))

	prod, err := sk.decrypt(sk.mul(ca, k))
	require.NoError(t, err)
	assert.Zero(t, new(big.Int).Mul(a, k).Cmp(prod))
}

func TestPaillierRejects(t *testing.T) {
	_, err := generatePaillier(rand.Reader, 512)
	require.Error(t, err)

	sk := testPaillier(t)
	_, err = sk.encrypt(rand.Reader, sk.N)
	require.Error(t, err)
	_, err = sk.encrypt(rand.Reader, big.NewInt(-1))
	require.Error(t, err)

	_, err = sk.decrypt(big.NewInt(0))
	require.Error(t, err)
	_, err = sk.decrypt(sk.N2)
	require.Error(t, err)
	assert.False(t, sk.validCiphertext(sk.N), "multiple of N is not a unit")
}

func TestPaillierMarshal(t *testing.T) {
	sk := testPaillier(t)

	restored, err := unmarshalPaillier(sk.marshal(), sk.N)
	require.NoError(t, err)

	c, err := sk.encrypt(rand.Reader, big.NewInt(99))
	require.NoError(t, err)
	m, err := restored.decrypt(c)
	require.NoError(t, err)
	assert.Equal(t, int64(99), m.Int64())

	_, err = unmarshalPaillier(sk.marshal(), new(big.Int).Add(sk.N, big.NewInt(2)))
	require.Error(t, err)
	_, err = unmarshalPaillier([]byte{1, 2, 3}, sk.N)
	require.Error(t, err)
}

func TestPaillierWipe(t *testing.T) {
	sk := testPaillier(t)
	sk.wipe()
	assert.Zero(t, sk.p.Sign())
	assert.Zero(t, sk.q.Sign())
	assert.Zero(t, sk.lambda.Sign())
	assert.Zero(t, sk.mu.Sign())
}
