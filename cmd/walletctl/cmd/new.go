package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/olehkaliuzhnyi/flow-wallet/internal/wallet"
)

func newNewCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "new",
		Short: "Create a wallet from a fresh random mnemonic",
		Long: `Generates a 12-word BIP-39 mnemonic and prints it exactly once, followed by
the account xpub and the first receive address on --network.

FLOWWALLET_PASSPHRASE, if set, is used as the BIP-39 passphrase.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, e, err := a.entry()
			if err != nil {
				return err
			}

			ks, err := wallet.RandomMnemonicKeySource(os.Getenv(envPassphrase))
			if err != nil {
				return err
			}
			defer ks.Destroy()

			phrase, err := ks.Phrase()
			if err != nil {
				return err
			}
			words, err := phrase.UTF8()
			phrase.Destroy()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			account := fmt.Sprintf("m/44'/%d'/0'", e.coinType)
			xpub, err := ks.ExtendedPublicKey(ctx, account)
			if err != nil {
				return err
			}
			path := wallet.BIP44(e.coinType, 0, 0, 0).String()
			signer, err := ks.DeriveSigner(ctx, path)
			if err != nil {
				return err
			}
			defer release(signer)
			addr, err := e.chain.AddressFromPubKey(signer.PublicKey())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Mnemonic (write it down, it is not shown again):")
			fmt.Fprintln(out, words)
			fmt.Fprintln(out)
			fmt.Fprintf(out, "Account xpub [%s]: %s\n", account, xpub)
			fmt.Fprintf(out, "%s address [%s]: %s\n", n, path, addr)
			return nil
		},
	}
}
