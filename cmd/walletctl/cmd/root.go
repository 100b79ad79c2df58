// Package cmd implements the walletctl commands.
package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/olehkaliuzhnyi/flow-wallet/internal/config"
	"github.com/olehkaliuzhnyi/flow-wallet/internal/logger"
	"github.com/olehkaliuzhnyi/flow-wallet/internal/wallet"
	"github.com/olehkaliuzhnyi/flow-wallet/pkg/models"
)

// app carries state shared by all subcommands of one invocation.
type app struct {
	cfgFile  string
	logLevel string
	network  string

	cfg config.Config
	log *zap.Logger
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "walletctl",
		Short: "Multi-chain key management and transaction signing",
		Long: `walletctl derives addresses from BIP-39 mnemonics or extended public keys,
queries balances, signs and broadcasts transfers on Bitcoin, Litecoin and Tron,
and runs a two-party threshold signer.

Mnemonics are read from FLOWWALLET_MNEMONIC or prompted for without echo.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(*cobra.Command, []string) error { return a.init() },
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default ./flowwallet.yaml if present)")
	flags.StringVar(&a.logLevel, "log-level", "", "override log.level")
	flags.StringVarP(&a.network, "network", "n", string(models.NetworkLitecoin), "network: "+strings.Join(networkNames(), ", "))

	root.AddCommand(
		newNewCmd(a),
		newAddressCmd(a),
		newBalanceCmd(a),
		newSendCmd(a),
		newBroadcastCmd(a),
		newMonitorCmd(a),
		newMPCCmd(a),
	)
	return root
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	err := NewRootCmd().Execute()
	_ = zap.L().Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error (%s): %v\n", wallet.Classify(err), err)
		os.Exit(1)
	}
}

func (a *app) init() error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	level := cfg.Log.Level
	if a.logLevel != "" {
		level = a.logLevel
	}
	l, err := logger.Init(cfg.Log.Env, level)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = l
	return nil
}

func networkNames() []string {
	names := make([]string, 0, len(networks))
	for n := range networks {
		names = append(names, string(n))
	}
	sort.Strings(names)
	return names
}
