package cmd

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/olehkaliuzhnyi/flow-wallet/pkg/models"
)

func newAddressCmd(a *app) *cobra.Command {
	var (
		pf     pathFlags
		xpub   string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "address",
		Short: "Derive an address from a mnemonic or an xpub",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, e, err := a.entry()
			if err != nil {
				return err
			}
			ks, cleanup, err := keySource(xpub)
			if err != nil {
				return err
			}
			defer cleanup()

			path := pf.resolve(e.coinType, xpub != "")
			signer, err := ks.DeriveSigner(cmd.Context(), path)
			if err != nil {
				return err
			}
			defer release(signer)

			addr, err := e.chain.AddressFromPubKey(signer.PublicKey())
			if err != nil {
				return err
			}
			derived := models.DerivedAddress{
				Network:        n,
				Address:        addr,
				DerivationPath: path,
				PublicKey:      hex.EncodeToString(signer.PublicKey()),
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(derived)
			}
			fmt.Fprintln(out, derived.Address)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&xpub, "xpub", "", "derive from an extended public key instead of a mnemonic")
	f.StringVar(&pf.path, "path", "", "derivation path (overrides --account/--index)")
	f.Uint32Var(&pf.account, "account", 0, "BIP-44 account")
	f.Uint32Var(&pf.index, "index", 0, "address index")
	f.BoolVar(&asJSON, "json", false, "print address, path and public key as JSON")
	return cmd
}
