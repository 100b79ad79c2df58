package wallet

import (
	"context"
	"strings"
	"sync"

	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"

	"github.com/olehkaliuzhnyi/flow-wallet/internal/secret"
)

const randomEntropyBits = 128

var _ KeySource = (*MnemonicKeySource)(nil)

// MnemonicKeySource derives BIP-32 keys from a BIP-39 seed. The seed and the
// phrase live in protected memory until Destroy.
type MnemonicKeySource struct {
	mu     sync.Mutex
	seed   *secret.Secret
	phrase *secret.Secret
	taken  bool
	closed bool
}

// NewMnemonicKeySource validates phrase against the English wordlist and its
// checksum, then stretches it with passphrase into a 64-byte seed.
func NewMnemonicKeySource(phrase, passphrase string) (*MnemonicKeySource, error) {
	normalized := strings.Join(strings.Fields(phrase), " ")

	entropy, err := bip39.EntropyFromMnemonic(normalized)
	if err != nil {
		return nil, &KeySourceError{Kind: KeySourceInvalidMnemonic, Err: err}
	}
	secret.Wipe(entropy)

	return &MnemonicKeySource{
		seed:   secret.New(bip39.NewSeed(normalized, passphrase)),
		phrase: secret.FromString(normalized),
	}, nil
}

// RandomMnemonicKeySource generates a fresh 12-word phrase from 128 bits of
// entropy.
func RandomMnemonicKeySource(passphrase string) (*MnemonicKeySource, error) {
	entropy, err := bip39.NewEntropy(randomEntropyBits)
	if err != nil {
		return nil, derivationErr("generate entropy", err)
	}
	defer secret.Wipe(entropy)

	phrase, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, derivationErr("encode mnemonic", err)
	}
	return NewMnemonicKeySource(phrase, passphrase)
}

// Phrase hands the mnemonic to the caller exactly once. The caller owns the
// returned Secret and should Destroy it after display.
func (m *MnemonicKeySource) Phrase() (*secret.Secret, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrKeySourceClosed
	}
	if m.taken {
		return nil, ErrPhraseConsumed
	}
	m.taken = true
	p := m.phrase
	m.phrase = nil
	return p, nil
}

// DeriveSigner walks path from the master key and returns a LocalSigner for
// the final key. Both hardened and normal components are supported.
func (m *MnemonicKeySource) DeriveSigner(ctx context.Context, path string) (Signer, error) {
	key, err := m.derive(ctx, path)
	if err != nil {
		return nil, err
	}
	defer wipeKey(key)

	signer, err := NewLocalSigner(append([]byte(nil), key.Key...))
	if err != nil {
		return nil, derivationErr("derived key", err)
	}
	return signer, nil
}

// ExtendedPublicKey returns the base58 xpub of the key at path. It can seed
// an XPubKeySource for watch-only derivation below that path.
func (m *MnemonicKeySource) ExtendedPublicKey(ctx context.Context, path string) (string, error) {
	key, err := m.derive(ctx, path)
	if err != nil {
		return "", err
	}
	defer wipeKey(key)
	return key.PublicKey().B58Serialize(), nil
}

// Destroy wipes the seed and any unretrieved phrase.
func (m *MnemonicKeySource) Destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.seed.Destroy()
	if m.phrase != nil {
		m.phrase.Destroy()
		m.phrase = nil
	}
}

func (m *MnemonicKeySource) derive(ctx context.Context, path string) (*bip32.Key, error) {
	p, err := ParseDerivationPath(path)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrKeySourceClosed
	}
	key, err := bip32.NewMasterKey(m.seed.Bytes())
	m.mu.Unlock()
	if err != nil {
		return nil, derivationErr("master key", err)
	}

	for _, c := range p.Components() {
		if err := ctx.Err(); err != nil {
			wipeKey(key)
			return nil, err
		}
		child, err := key.NewChildKey(c.ChildIndex())
		wipeKey(key)
		if err != nil {
			return nil, derivationErr("child "+c.String(), err)
		}
		key = child
	}
	return key, nil
}

// wipeKey zeroes the key material and chain code of an extended key.
func wipeKey(k *bip32.Key) {
	if k == nil {
		return
	}
	if k.IsPrivate {
		secret.Wipe(k.Key)
	}
	secret.Wipe(k.ChainCode)
}
