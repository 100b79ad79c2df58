package wallet

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"

	"github.com/olehkaliuzhnyi/flow-wallet/internal/mpc"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func testSource(t *testing.T, passphrase string) *MnemonicKeySource {
	t.Helper()
	src, err := NewMnemonicKeySource(testMnemonic, passphrase)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(src.Destroy)
	return src
}

func deriveAddress(t *testing.T, src KeySource, path string, chain Chain) (string, []byte) {
	t.Helper()
	signer, err := src.DeriveSigner(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	addr, err := chain.AddressFromPubKey(signer.PublicKey())
	if err != nil {
		t.Fatal(err)
	}
	return addr, signer.PublicKey()
}

func TestMnemonicKeySource_BIP44Vectors(t *testing.T) {
	src := testSource(t, "")

	tests := []struct {
		path  string
		chain Chain
		want  string
	}{
		{"m/44'/0'/0'/0/0", Bitcoin, "1LqBGSKuX5yYUonjxT5qGfpUsXKYYWeabA"},
		{"m/44'/195'/0'/0/0", Tron, "TUEZSdKsoDHQMeZwihtdoBiN46zxhGWYdH"},
		{"m/44'/2'/0'/0/0", Litecoin, "LUWPbpM43E2p7ZSh8cyTBEkvpHmr3cB8Ez"},
		{BIP44(195, 0, 0, 0).String(), Tron, "TUEZSdKsoDHQMeZwihtdoBiN46zxhGWYdH"},
		{"44h/0h/0h/0/0", Bitcoin, "1LqBGSKuX5yYUonjxT5qGfpUsXKYYWeabA"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, _ := deriveAddress(t, src, tt.path, tt.chain)
			if got != tt.want {
				t.Errorf("address = %s, want %s", got, tt.want)
			}
		})
	}

	_, pub := deriveAddress(t, src, "m/44'/0'/0'/0/0", Bitcoin)
	if got := hex.EncodeToString(pub); got != "03aaeb52dd7494c361049de67cc680e83ebcbbbdbeb13637d92cd845f70308af5e" {
		t.Errorf("pubkey = %s", got)
	}
}

func TestMnemonicKeySource_Deterministic(t *testing.T) {
	a, pubA := deriveAddress(t, testSource(t, ""), "m/44'/195'/0'/0/7", Tron)
	b, pubB := deriveAddress(t, testSource(t, ""), "m/44'/195'/0'/0/7", Tron)
	if a != b || hex.EncodeToString(pubA) != hex.EncodeToString(pubB) {
		t.Errorf("same phrase derived %s and %s", a, b)
	}

	// Extra whitespace normalises to the same phrase.
	spaced, err := NewMnemonicKeySource("  "+strings.ReplaceAll(testMnemonic, " ", "   ")+"\n", "")
	if err != nil {
		t.Fatal(err)
	}
	defer spaced.Destroy()
	c, _ := deriveAddress(t, spaced, "m/44'/195'/0'/0/7", Tron)
	if c != a {
		t.Errorf("whitespace changed the address: %s vs %s", c, a)
	}
}

func TestMnemonicKeySource_PassphraseChangesKey(t *testing.T) {
	_, plain := deriveAddress(t, testSource(t, ""), "m/44'/0'/0'/0/0", Bitcoin)
	_, salted := deriveAddress(t, testSource(t, "TREZOR"), "m/44'/0'/0'/0/0", Bitcoin)
	if hex.EncodeToString(plain) == hex.EncodeToString(salted) {
		t.Error("passphrase did not change the derived key")
	}
}

func TestMnemonicKeySource_DistinctPaths(t *testing.T) {
	src := testSource(t, "")
	seen := map[string]string{}
	for _, p := range []string{"m", "m/0", "m/0'", "m/44'/0'/0'/0/0", "m/44'/0'/0'/0/1", "m/44'/0'/0'/1/0"} {
		_, pub := deriveAddress(t, src, p, Bitcoin)
		k := hex.EncodeToString(pub)
		if prev, ok := seen[k]; ok {
			t.Errorf("paths %s and %s derived the same key", prev, p)
		}
		seen[k] = p
	}
}

func TestMnemonicKeySource_InvalidMnemonic(t *testing.T) {
	for _, phrase := range []string{
		"",
		"abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon",
		"abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about",
		"abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon zzzzz",
	} {
		_, err := NewMnemonicKeySource(phrase, "")
		if !errors.Is(err, ErrInvalidMnemonic) {
			t.Errorf("%q: err = %v, want ErrInvalidMnemonic", phrase, err)
		}
		var kse *KeySourceError
		if !errors.As(err, &kse) || kse.Kind != KeySourceInvalidMnemonic {
			t.Errorf("%q: err = %#v", phrase, err)
		}
	}
}

func TestMnemonicKeySource_BadPath(t *testing.T) {
	src := testSource(t, "")
	for _, p := range []string{"", "m/", "m//0", "m/x", "m/-1", "m/2147483648", "m/0''"} {
		if _, err := src.DeriveSigner(context.Background(), p); !errors.Is(err, ErrDerivation) {
			t.Errorf("%q: err = %v, want ErrDerivation", p, err)
		}
	}
}

func TestMnemonicKeySource_PhraseOnce(t *testing.T) {
	src := testSource(t, "")

	p, err := src.Phrase()
	if err != nil {
		t.Fatal(err)
	}
	got, err := p.UTF8()
	if err != nil {
		t.Fatal(err)
	}
	if got != testMnemonic {
		t.Errorf("phrase = %q", got)
	}
	p.Destroy()

	if _, err := src.Phrase(); !errors.Is(err, ErrPhraseConsumed) {
		t.Errorf("second Phrase: err = %v, want ErrPhraseConsumed", err)
	}
}

func TestMnemonicKeySource_Destroy(t *testing.T) {
	src, err := NewMnemonicKeySource(testMnemonic, "")
	if err != nil {
		t.Fatal(err)
	}
	src.Destroy()
	src.Destroy()

	if _, err := src.DeriveSigner(context.Background(), "m/0"); !errors.Is(err, ErrKeySourceClosed) {
		t.Errorf("DeriveSigner after Destroy: err = %v", err)
	}
	if _, err := src.Phrase(); !errors.Is(err, ErrKeySourceClosed) {
		t.Errorf("Phrase after Destroy: err = %v", err)
	}
}

func TestMnemonicKeySource_CancelledContext(t *testing.T) {
	src := testSource(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := src.DeriveSigner(ctx, "m/44'/0'/0'/0/0"); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestRandomMnemonicKeySource(t *testing.T) {
	a, err := RandomMnemonicKeySource("")
	if err != nil {
		t.Fatal(err)
	}
	defer a.Destroy()
	b, err := RandomMnemonicKeySource("")
	if err != nil {
		t.Fatal(err)
	}
	defer b.Destroy()

	pa, _ := a.Phrase()
	phrase, _ := pa.UTF8()
	if n := len(strings.Fields(phrase)); n != 12 {
		t.Errorf("random phrase has %d words", n)
	}

	// The phrase reloads into the same keys.
	reloaded, err := NewMnemonicKeySource(phrase, "")
	if err != nil {
		t.Fatal(err)
	}
	defer reloaded.Destroy()
	addrA, _ := deriveAddress(t, a, "m/44'/2'/0'/0/0", Litecoin)
	addrR, _ := deriveAddress(t, reloaded, "m/44'/2'/0'/0/0", Litecoin)
	addrB, _ := deriveAddress(t, b, "m/44'/2'/0'/0/0", Litecoin)
	if addrA != addrR {
		t.Errorf("reloaded phrase derived %s, want %s", addrR, addrA)
	}
	if addrA == addrB {
		t.Error("two random sources derived the same address")
	}
}

func TestXPubKeySource_MatchesMnemonic(t *testing.T) {
	src := testSource(t, "")
	xpub, err := src.ExtendedPublicKey(context.Background(), "m/44'/0'/0'")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(xpub, "xpub") {
		t.Fatalf("xpub = %s", xpub)
	}

	watch, err := NewXPubKeySource(xpub)
	if err != nil {
		t.Fatal(err)
	}

	for _, idx := range []string{"0/0", "0/1", "1/5"} {
		fromSeed, _ := deriveAddress(t, src, "m/44'/0'/0'/"+idx, Bitcoin)
		fromXPub, _ := deriveAddress(t, watch, "m/"+idx, Bitcoin)
		if fromSeed != fromXPub {
			t.Errorf("%s: xpub derived %s, mnemonic %s", idx, fromXPub, fromSeed)
		}
	}

	// The account key itself.
	_, accountPub := deriveAddress(t, watch, "m", Bitcoin)
	if got := hex.EncodeToString(accountPub); !strings.HasPrefix(got, "03774c91") {
		t.Errorf("account pubkey = %s", got)
	}
}

func TestXPubKeySource_RejectsHardened(t *testing.T) {
	src := testSource(t, "")
	xpub, err := src.ExtendedPublicKey(context.Background(), "m/44'/0'/0'")
	if err != nil {
		t.Fatal(err)
	}
	watch, err := NewXPubKeySource(xpub)
	if err != nil {
		t.Fatal(err)
	}

	for _, p := range []string{"m/0'", "m/0/1h", "m/44'/0'/0'/0/0"} {
		_, err := watch.DeriveSigner(context.Background(), p)
		if !errors.Is(err, ErrDerivation) {
			t.Errorf("%s: err = %v, want ErrDerivation", p, err)
		}
	}
}

func TestXPubKeySource_WatchOnly(t *testing.T) {
	src := testSource(t, "")
	xpub, _ := src.ExtendedPublicKey(context.Background(), "m/44'/195'/0'")
	watch, err := NewXPubKeySource(xpub)
	if err != nil {
		t.Fatal(err)
	}
	signer, err := watch.DeriveSigner(context.Background(), "m/0/0")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := signer.Sign(context.Background(), []byte("x")); !errors.Is(err, ErrSigningUnavailable) {
		t.Errorf("Sign: err = %v, want ErrSigningUnavailable", err)
	}
	addr, _ := deriveAddress(t, watch, "m/0/0", Tron)
	if addr != "TUEZSdKsoDHQMeZwihtdoBiN46zxhGWYdH" {
		t.Errorf("address = %s", addr)
	}
}

func TestNewXPubKeySource_Rejects(t *testing.T) {
	if _, err := NewXPubKeySource("not-an-xpub"); !errors.Is(err, ErrDerivation) {
		t.Errorf("garbage: err = %v", err)
	}

	// BIP-32 test vector 1 master xprv.
	xprv := "xprv9s21ZrQH143K3QTDL4LXw2F7HEK3wJUD2nW2nRk4stbPy6cq3jPPqjiChkVvvNKmPGJxWUtg6LnF5kejMRNNU3TGtRBeJgk33yuGBxrMPHi"
	if _, err := NewXPubKeySource(xprv); !errors.Is(err, ErrDerivation) {
		t.Errorf("xprv: err = %v", err)
	}
}

func TestMpcKeySource(t *testing.T) {
	ctx := context.Background()
	lp, err := mpc.RunLocalKeygen(ctx, mpc.WithPaillierBits(mpc.MinPaillierBits))
	if err != nil {
		t.Fatal(err)
	}
	defer lp.Destroy()

	src := NewMpcKeySource(lp.Initiator.Clone(), lp.InitiatorTransport)
	defer src.Destroy()

	a, err := src.DeriveSigner(ctx, "m/44'/195'/0'/0/0")
	if err != nil {
		t.Fatal(err)
	}
	b, err := src.DeriveSigner(ctx, "m/44'/0'/0'/0/9")
	if err != nil {
		t.Fatal(err)
	}
	if hex.EncodeToString(a.PublicKey()) != hex.EncodeToString(lp.Initiator.PublicKey) ||
		hex.EncodeToString(b.PublicKey()) != hex.EncodeToString(lp.Initiator.PublicKey) {
		t.Error("mpc signers must expose the joint key regardless of path")
	}

	if _, err := src.DeriveSigner(ctx, "m/x"); !errors.Is(err, ErrDerivation) {
		t.Errorf("bad path: err = %v", err)
	}

	wrong := NewMpcKeySource(lp.Cosigner.Clone(), lp.CosignerTransport)
	defer wrong.Destroy()
	if _, err := wrong.DeriveSigner(ctx, "m/0"); Classify(err) != ClassFatal {
		t.Errorf("cosigner share: err = %v, class %s", err, Classify(err))
	}
}

func TestMpcKeySource_ConcurrentSigners(t *testing.T) {
	lp, err := mpc.RunLocalKeygen(context.Background(), mpc.WithPaillierBits(mpc.MinPaillierBits))
	if err != nil {
		t.Fatal(err)
	}
	defer lp.Destroy()

	cos, err := mpc.NewCosigner(lp.Cosigner.Clone(), lp.CosignerTransport)
	if err != nil {
		t.Fatal(err)
	}
	serveCtx, stopServe := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- cos.Serve(serveCtx) }()
	defer func() {
		stopServe()
		<-served
	}()

	src := NewMpcKeySource(lp.Initiator.Clone(), lp.InitiatorTransport)
	defer src.Destroy()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	paths := []string{"m/44'/195'/0'/0/0", "m/44'/0'/0'/0/0"}
	for round := 0; round < 5; round++ {
		start := make(chan struct{})
		errs := make(chan error, len(paths))
		for i, path := range paths {
			signer, err := src.DeriveSigner(ctx, path)
			if err != nil {
				t.Fatal(err)
			}
			msg := []byte{byte(round), byte(i)}
			go func() {
				defer release(signer)
				<-start
				der, err := signer.Sign(ctx, msg)
				if err == nil && !verifies(der, msg, signer.PublicKey()) {
					err = errors.New("signature does not verify under the joint key")
				}
				errs <- err
			}()
		}
		close(start)
		for range paths {
			if err := <-errs; err != nil {
				t.Fatalf("round %d: %v", round, err)
			}
		}
	}
}

func verifies(der, msg, pub []byte) bool {
	sig, err := ecdsa.ParseDERSignature(der)
	if err != nil {
		return false
	}
	key, err := btcec.ParsePubKey(pub)
	if err != nil {
		return false
	}
	digest := sha256.Sum256(msg)
	return sig.Verify(digest[:], key)
}

func release(s Signer) {
	if d, ok := s.(interface{ Destroy() }); ok {
		d.Destroy()
	}
}
