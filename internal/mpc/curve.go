package mpc

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
)

var curveN = btcec.S256().N

// randomScalar draws a uniform non-zero scalar mod n.
func randomScalar(random io.Reader) (*btcec.ModNScalar, error) {
	var buf [32]byte
	defer clear(buf[:])
	for {
		if _, err := io.ReadFull(random, buf[:]); err != nil {
			return nil, fmt.Errorf("read randomness: %w", err)
		}
		var k btcec.ModNScalar
		if overflow := k.SetByteSlice(buf[:]); !overflow && !k.IsZero() {
			return &k, nil
		}
	}
}

func baseMult(k *btcec.ModNScalar) *btcec.PublicKey {
	var p btcec.JacobianPoint
	btcec.ScalarBaseMultNonConst(k, &p)
	p.ToAffine()
	return btcec.NewPublicKey(&p.X, &p.Y)
}

func pointMult(k *btcec.ModNScalar, pub *btcec.PublicKey) (*btcec.PublicKey, error) {
	var in, out btcec.JacobianPoint
	pub.AsJacobian(&in)
	btcec.ScalarMultNonConst(k, &in, &out)
	out.ToAffine()
	if out.X.IsZero() && out.Y.IsZero() {
		return nil, errors.New("scalar multiplication yielded the point at infinity")
	}
	return btcec.NewPublicKey(&out.X, &out.Y), nil
}

// xModN returns the x coordinate of pub reduced mod n.
func xModN(pub *btcec.PublicKey) btcec.ModNScalar {
	var r btcec.ModNScalar
	x := pub.X().Bytes()
	var buf [32]byte
	copy(buf[32-len(x):], x)
	r.SetBytes(&buf)
	return r
}

func scalarToBig(k *btcec.ModNScalar) *big.Int {
	b := k.Bytes()
	return new(big.Int).SetBytes(b[:])
}

// bigToScalar reduces v mod n.
func bigToScalar(v *big.Int) btcec.ModNScalar {
	var buf [32]byte
	new(big.Int).Mod(v, curveN).FillBytes(buf[:])
	var k btcec.ModNScalar
	k.SetBytes(&buf)
	clear(buf[:])
	return k
}

func randomBytes(random io.Reader, n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(random, b); err != nil {
		return nil, fmt.Errorf("read randomness: %w", err)
	}
	return b, nil
}

func defaultRandom() io.Reader { return rand.Reader }
