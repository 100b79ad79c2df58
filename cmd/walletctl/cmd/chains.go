package cmd

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/olehkaliuzhnyi/flow-wallet/internal/config"
	"github.com/olehkaliuzhnyi/flow-wallet/internal/logger"
	"github.com/olehkaliuzhnyi/flow-wallet/internal/node"
	"github.com/olehkaliuzhnyi/flow-wallet/internal/secret"
	"github.com/olehkaliuzhnyi/flow-wallet/internal/wallet"
	"github.com/olehkaliuzhnyi/flow-wallet/pkg/models"
)

const (
	envMnemonic   = "FLOWWALLET_MNEMONIC"
	envPassphrase = "FLOWWALLET_PASSPHRASE"
)

type providerFunc func(p config.ProviderConfig, l *zap.Logger) node.Provider

type networkEntry struct {
	chain       wallet.Chain
	coinType    uint32
	newProvider providerFunc // nil when no public provider exists
}

var networks = map[models.Network]networkEntry{
	models.NetworkBitcoin:         {chain: wallet.Bitcoin, coinType: 0, newProvider: blockcypher},
	models.NetworkBitcoinTestnet:  {chain: wallet.BitcoinTestnet, coinType: 1, newProvider: blockcypher},
	models.NetworkLitecoin:        {chain: wallet.Litecoin, coinType: 2, newProvider: blockcypher},
	models.NetworkLitecoinTestnet: {chain: wallet.LitecoinTestnet, coinType: 1},
	models.NetworkTron:            {chain: wallet.Tron, coinType: 195, newProvider: trongrid},
	models.NetworkTronNile:        {chain: wallet.TronNile, coinType: 195, newProvider: trongrid},
}

func blockcypher(p config.ProviderConfig, l *zap.Logger) node.Provider {
	return node.NewBlockcypherProvider(p.URL, node.WithToken(p.Token), node.WithLogger(l))
}

func trongrid(p config.ProviderConfig, l *zap.Logger) node.Provider {
	return node.NewTronGridProvider(p.URL, node.WithToken(p.Token), node.WithLogger(l))
}

func (a *app) entry() (models.Network, networkEntry, error) {
	n := models.Network(a.network)
	e, ok := networks[n]
	if !ok {
		return "", networkEntry{}, fmt.Errorf("unknown network %q", a.network)
	}
	return n, e, nil
}

func (a *app) provider() (node.Provider, error) {
	n, e, err := a.entry()
	if err != nil {
		return nil, err
	}
	pc, ok := a.cfg.Provider(n)
	if !ok || e.newProvider == nil {
		return nil, fmt.Errorf("no provider available for %s", n)
	}
	return e.newProvider(pc, logger.Named("node").With(zap.String("network", string(n)))), nil
}

// pathFlags selects a derivation path: --path wins, otherwise the BIP-44
// path of the network's coin type with --account and --index.
type pathFlags struct {
	path    string
	account uint32
	index   uint32
}

func (p *pathFlags) resolve(coinType uint32, xpub bool) string {
	switch {
	case p.path != "":
		return p.path
	case xpub:
		// Account-level xpubs derive change/index below themselves.
		return fmt.Sprintf("m/0/%d", p.index)
	default:
		return wallet.BIP44(coinType, p.account, 0, p.index).String()
	}
}

type destroyer interface{ Destroy() }

// keySource returns an xpub source when xpub is set and a mnemonic source
// otherwise. The returned func releases key material.
func keySource(xpub string) (wallet.KeySource, func(), error) {
	if xpub != "" {
		ks, err := wallet.NewXPubKeySource(xpub)
		if err != nil {
			return nil, nil, err
		}
		return ks, func() {}, nil
	}

	phrase, err := readSecret("Mnemonic: ", envMnemonic)
	if err != nil {
		return nil, nil, err
	}
	defer phrase.Destroy()
	words, err := phrase.UTF8()
	if err != nil {
		return nil, nil, err
	}

	passphrase := os.Getenv(envPassphrase)
	ks, err := wallet.NewMnemonicKeySource(words, passphrase)
	if err != nil {
		return nil, nil, err
	}
	return ks, ks.Destroy, nil
}

func release(v any) {
	if d, ok := v.(destroyer); ok {
		d.Destroy()
	}
}

// readSecret reads env, or prompts without echo when stdin is a terminal.
func readSecret(prompt, env string) (*secret.Secret, error) {
	if v, ok := os.LookupEnv(env); ok && v != "" {
		return secret.FromString(v), nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("%s is not set and stdin is not a terminal", env)
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", env, err)
	}
	return secret.New(b), nil
}
