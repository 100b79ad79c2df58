package wallet

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/tyler-smith/go-bip32"
)

var _ KeySource = (*XPubKeySource)(nil)

// XPubKeySource derives watch-only signers from an extended public key. Paths
// are relative to the xpub and must not contain hardened components.
type XPubKeySource struct {
	key *bip32.Key
}

// NewXPubKeySource parses a base58 extended public key. Extended private keys
// are rejected.
func NewXPubKeySource(xpub string) (*XPubKeySource, error) {
	key, err := bip32.B58Deserialize(xpub)
	if err != nil {
		return nil, derivationErr("decode extended public key", err)
	}
	if key.IsPrivate {
		wipeKey(key)
		return nil, derivationErr("extended key is private, want a public key", nil)
	}
	if _, err := btcec.ParsePubKey(key.Key); err != nil {
		return nil, derivationErr("extended public key", fmt.Errorf("%w: %v", ErrInvalidPublicKey, err))
	}
	return &XPubKeySource{key: key}, nil
}

// DeriveSigner applies non-hardened public derivation along path and returns
// a WatchOnlySigner.
func (x *XPubKeySource) DeriveSigner(ctx context.Context, path string) (Signer, error) {
	p, err := ParseDerivationPath(path)
	if err != nil {
		return nil, err
	}
	if p.HasHardened() {
		return nil, derivationErr(fmt.Sprintf("hardened component in %s cannot be derived from a public key", p), nil)
	}

	key := x.key
	for _, c := range p.Components() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if key, err = key.NewChildKey(c.ChildIndex()); err != nil {
			return nil, derivationErr("child "+c.String(), err)
		}
	}
	return NewWatchOnlySigner(key.Key)
}
