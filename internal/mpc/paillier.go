package mpc

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
)

const (
	// DefaultPaillierBits is the modulus size used when none is configured.
	DefaultPaillierBits = 2048
	// MinPaillierBits keeps the largest signing plaintext (about n^3) below N.
	MinPaillierBits = 1024
)

var one = big.NewInt(1)

// paillierPublicKey is N with the fixed generator g = N + 1.
type paillierPublicKey struct {
	N  *big.Int
	N2 *big.Int
}

type paillierPrivateKey struct {
	paillierPublicKey
	p, q   *big.Int
	lambda *big.Int
	mu     *big.Int
}

func newPaillierPublicKey(n *big.Int) *paillierPublicKey {
	return &paillierPublicKey{N: n, N2: new(big.Int).Mul(n, n)}
}

// generatePaillier draws two distinct bits/2-bit primes.
func generatePaillier(random io.Reader, bits int) (*paillierPrivateKey, error) {
	if bits < MinPaillierBits {
		return nil, fmt.Errorf("paillier modulus of %d bits is below the %d bit minimum", bits, MinPaillierBits)
	}
	for {
		p, err := rand.Prime(random, bits/2)
		if err != nil {
			return nil, fmt.Errorf("generate prime: %w", err)
		}
		q, err := rand.Prime(random, bits/2)
		if err != nil {
			return nil, fmt.Errorf("generate prime: %w", err)
		}
		if p.Cmp(q) == 0 {
			continue
		}
		n := new(big.Int).Mul(p, q)
		if n.BitLen() != bits {
			continue
		}
		return paillierFromPrimes(p, q)
	}
}

func paillierFromPrimes(p, q *big.Int) (*paillierPrivateKey, error) {
	n := new(big.Int).Mul(p, q)
	pm1 := new(big.Int).Sub(p, one)
	qm1 := new(big.Int).Sub(q, one)

	// lambda = lcm(p-1, q-1)
	gcd := new(big.Int).GCD(nil, nil, pm1, qm1)
	lambda := new(big.Int).Mul(pm1, qm1)
	lambda.Div(lambda, gcd)

	// With g = N+1, L(g^lambda mod N^2) = lambda mod N.
	mu := new(big.Int).ModInverse(lambda, n)
	if mu == nil {
		return nil, errors.New("paillier: lambda not invertible mod N")
	}
	return &paillierPrivateKey{
		paillierPublicKey: *newPaillierPublicKey(n),
		p:                 p,
		q:                 q,
		lambda:            lambda,
		mu:                mu,
	}, nil
}

// encrypt returns (1 + m*N) * r^N mod N^2 for m in [0, N).
func (pk *paillierPublicKey) encrypt(random io.Reader, m *big.Int) (*big.Int, error) {
	if m.Sign() < 0 || m.Cmp(pk.N) >= 0 {
		return nil, errors.New("paillier: plaintext out of range")
	}
	r, err := pk.randomUnit(random)
	if err != nil {
		return nil, err
	}
	gm := new(big.Int).Mul(m, pk.N)
	gm.Add(gm, one)
	gm.Mod(gm, pk.N2)

	rn := new(big.Int).Exp(r, pk.N, pk.N2)
	c := gm.Mul(gm, rn)
	return c.Mod(c, pk.N2), nil
}

// add returns Enc(m1 + m2).
func (pk *paillierPublicKey) add(c1, c2 *big.Int) *big.Int {
	c := new(big.Int).Mul(c1, c2)
	return c.Mod(c, pk.N2)
}

// mul returns Enc(k * m).
func (pk *paillierPublicKey) mul(c, k *big.Int) *big.Int {
	return new(big.Int).Exp(c, k, pk.N2)
}

// validCiphertext reports whether c is a unit of Z_{N^2}.
func (pk *paillierPublicKey) validCiphertext(c *big.Int) bool {
	if c == nil || c.Sign() <= 0 || c.Cmp(pk.N2) >= 0 {
		return false
	}
	return new(big.Int).GCD(nil, nil, c, pk.N).Cmp(one) == 0
}

func (pk *paillierPublicKey) randomUnit(random io.Reader) (*big.Int, error) {
	for {
		r, err := rand.Int(random, pk.N)
		if err != nil {
			return nil, fmt.Errorf("paillier randomness: %w", err)
		}
		if r.Sign() > 0 && new(big.Int).GCD(nil, nil, r, pk.N).Cmp(one) == 0 {
			return r, nil
		}
	}
}

// decrypt returns L(c^lambda mod N^2) * mu mod N, with L(u) = (u-1)/N.
func (sk *paillierPrivateKey) decrypt(c *big.Int) (*big.Int, error) {
	if !sk.validCiphertext(c) {
		return nil, errors.New("paillier: invalid ciphertext")
	}
	u := new(big.Int).Exp(c, sk.lambda, sk.N2)
	u.Sub(u, one)
	u.Div(u, sk.N)
	u.Mul(u, sk.mu)
	return u.Mod(u, sk.N), nil
}

// marshal packs p || q, each left-padded to half the modulus length.
func (sk *paillierPrivateKey) marshal() []byte {
	half := (sk.N.BitLen() + 15) / 16
	out := make([]byte, 2*half)
	sk.p.FillBytes(out[:half])
	sk.q.FillBytes(out[half:])
	return out
}

func unmarshalPaillier(b []byte, n *big.Int) (*paillierPrivateKey, error) {
	if len(b) == 0 || len(b)%2 != 0 {
		return nil, errors.New("paillier: malformed private key")
	}
	half := len(b) / 2
	p := new(big.Int).SetBytes(b[:half])
	q := new(big.Int).SetBytes(b[half:])
	sk, err := paillierFromPrimes(p, q)
	if err != nil {
		return nil, err
	}
	if sk.N.Cmp(n) != 0 {
		return nil, errors.New("paillier: private key does not match modulus")
	}
	return sk, nil
}

// wipe clears the private big.Int words. Copies made by math/big during
// arithmetic are out of reach.
func (sk *paillierPrivateKey) wipe() {
	for _, v := range []*big.Int{sk.p, sk.q, sk.lambda, sk.mu} {
		if v == nil {
			continue
		}
		words := v.Bits()
		for i := range words {
			words[i] = 0
		}
		v.SetInt64(0)
	}
}
