package mpc

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/olehkaliuzhnyi/flow-wallet/internal/secret"
)

// Role is a party's position in the protocol.
type Role string

const (
	// RoleInitiator holds the Paillier secret and produces final signatures.
	RoleInitiator Role = "initiator"
	// RoleCosigner holds the encrypted initiator share and answers requests.
	RoleCosigner Role = "cosigner"
)

// Default party ids used by the CLI and in-process runs.
const (
	InitiatorID PartyID = 1
	CosignerID  PartyID = 2
)

// KeyShare is one party's output of Keygen.
type KeyShare struct {
	Role Role
	Self PartyID
	Peer PartyID
	// PublicKey is the compressed joint key Q = x1*x2*G.
	PublicKey []byte
	// Share is this party's 32-byte multiplicative share x_i.
	Share *secret.Secret
	// PaillierN is the initiator's Paillier modulus.
	PaillierN *big.Int
	// Paillier holds p || q. Initiator only.
	Paillier *secret.Secret
	// EncryptedShare is Enc(x1) under PaillierN. Cosigner only.
	EncryptedShare *big.Int
}

// Clone returns a field-wise deep copy. Secrets are copied into fresh
// protected buffers; the clone must be destroyed independently.
func (k *KeyShare) Clone() *KeyShare {
	c := &KeyShare{
		Role:      k.Role,
		Self:      k.Self,
		Peer:      k.Peer,
		PublicKey: append([]byte(nil), k.PublicKey...),
	}
	if k.Share != nil {
		c.Share = k.Share.Clone()
	}
	if k.Paillier != nil {
		c.Paillier = k.Paillier.Clone()
	}
	if k.PaillierN != nil {
		c.PaillierN = new(big.Int).Set(k.PaillierN)
	}
	if k.EncryptedShare != nil {
		c.EncryptedShare = new(big.Int).Set(k.EncryptedShare)
	}
	return c
}

// Destroy wipes the share and the Paillier secret.
func (k *KeyShare) Destroy() {
	if k.Share != nil {
		k.Share.Destroy()
	}
	if k.Paillier != nil {
		k.Paillier.Destroy()
	}
}

func (k *KeyShare) validate(role Role) error {
	if k == nil {
		return errors.New("nil key share")
	}
	if k.Role != role {
		return fmt.Errorf("key share role is %q, want %q", k.Role, role)
	}
	if _, err := btcec.ParsePubKey(k.PublicKey); err != nil {
		return fmt.Errorf("key share public key: %w", err)
	}
	if k.Share == nil || k.Share.Destroyed() {
		return errors.New("key share secret missing or destroyed")
	}
	if k.PaillierN == nil || k.PaillierN.BitLen() < MinPaillierBits {
		return errors.New("key share paillier modulus missing or too small")
	}
	switch role {
	case RoleInitiator:
		if k.Paillier == nil || k.Paillier.Destroyed() {
			return errors.New("initiator share has no paillier secret")
		}
	case RoleCosigner:
		if !newPaillierPublicKey(k.PaillierN).validCiphertext(k.EncryptedShare) {
			return errors.New("cosigner share has no valid encrypted initiator share")
		}
	}
	return nil
}

// scalar loads x_i. The caller must Zero the result.
func (k *KeyShare) scalar() (*btcec.ModNScalar, error) {
	b := k.Share.Bytes()
	if b == nil {
		return nil, secret.ErrDestroyed
	}
	var x btcec.ModNScalar
	if overflow := x.SetByteSlice(b); overflow || x.IsZero() {
		x.Zero()
		return nil, errors.New("key share scalar out of range")
	}
	return &x, nil
}

func (k *KeyShare) paillierKey() (*paillierPrivateKey, error) {
	b := k.Paillier.Bytes()
	if b == nil {
		return nil, secret.ErrDestroyed
	}
	return unmarshalPaillier(b, k.PaillierN)
}
