package wallet

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"

	"github.com/olehkaliuzhnyi/flow-wallet/internal/secret"
)

var (
	_ Signer = (*LocalSigner)(nil)
	_ Signer = (*WatchOnlySigner)(nil)
)

// LocalSigner signs with a secp256k1 private scalar held in protected memory.
type LocalSigner struct {
	key *secret.Secret
	pub []byte
}

// NewLocalSigner takes a 32-byte big-endian scalar. The scalar is copied into
// protected memory and the caller's slice is wiped.
func NewLocalSigner(scalar []byte) (*LocalSigner, error) {
	if len(scalar) != btcec.PrivKeyBytesLen {
		secret.Wipe(scalar)
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidPrivateKey, btcec.PrivKeyBytesLen, len(scalar))
	}

	var k btcec.ModNScalar
	overflow := k.SetByteSlice(scalar)
	if overflow || k.IsZero() {
		k.Zero()
		secret.Wipe(scalar)
		return nil, fmt.Errorf("%w: scalar out of range", ErrInvalidPrivateKey)
	}
	priv := btcec.PrivKeyFromScalar(&k)
	pub := priv.PubKey().SerializeCompressed()
	priv.Zero()
	k.Zero()

	return &LocalSigner{key: secret.New(scalar), pub: pub}, nil
}

// Sign hashes msg with SHA-256 and returns a DER encoded, low-S, RFC6979
// deterministic ECDSA signature.
func (s *LocalSigner) Sign(ctx context.Context, msg []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b := s.key.Bytes()
	if b == nil {
		return nil, fmt.Errorf("%w: signer destroyed", ErrSigningFailed)
	}

	priv, _ := btcec.PrivKeyFromBytes(b)
	defer priv.Zero()

	digest := sha256.Sum256(msg)
	return ecdsa.Sign(priv, digest[:]).Serialize(), nil
}

// PublicKey returns the 33-byte compressed public key.
func (s *LocalSigner) PublicKey() []byte {
	return append([]byte(nil), s.pub...)
}

// Destroy wipes the private scalar. Later Sign calls fail.
func (s *LocalSigner) Destroy() { s.key.Destroy() }

// WatchOnlySigner exposes a public key and cannot sign.
type WatchOnlySigner struct {
	pub []byte
}

// NewWatchOnlySigner accepts a compressed or uncompressed SEC1 public key.
func NewWatchOnlySigner(pub []byte) (*WatchOnlySigner, error) {
	key, err := btcec.ParsePubKey(pub)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return &WatchOnlySigner{pub: key.SerializeCompressed()}, nil
}

// Sign always fails with ErrSigningUnavailable.
func (s *WatchOnlySigner) Sign(context.Context, []byte) ([]byte, error) {
	return nil, fmt.Errorf("%w: watch-only signer", ErrSigningUnavailable)
}

func (s *WatchOnlySigner) PublicKey() []byte {
	return append([]byte(nil), s.pub...)
}
