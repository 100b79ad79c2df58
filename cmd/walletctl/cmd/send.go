package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/olehkaliuzhnyi/flow-wallet/internal/node"
	"github.com/olehkaliuzhnyi/flow-wallet/internal/storage"
	"github.com/olehkaliuzhnyi/flow-wallet/internal/tx"
	"github.com/olehkaliuzhnyi/flow-wallet/internal/wallet"
)

func newSendCmd(a *app) *cobra.Command {
	var (
		pf       pathFlags
		to       string
		amount   string
		key      string
		envelope string
	)
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Sign and broadcast a transfer",
		Long: `Builds a transfer with the provider, signs every input with the key at the
selected path and broadcasts it. --amount is in whole coins ("0.5").

If the transaction is signed but the broadcast fails, the signed envelope is
written to --envelope-out so it can be resubmitted with "walletctl broadcast"
instead of signing a second transaction.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, e, err := a.entry()
			if err != nil {
				return err
			}
			p, err := a.provider()
			if err != nil {
				return err
			}
			base, err := node.ParseUnits(amount, p.Decimals())
			if err != nil {
				return err
			}
			if base == 0 {
				return errors.New("amount must be positive")
			}

			ks, cleanup, err := keySource("")
			if err != nil {
				return err
			}
			defer cleanup()
			signer, err := ks.DeriveSigner(cmd.Context(), pf.resolve(e.coinType, false))
			if err != nil {
				return err
			}
			defer release(signer)

			w := wallet.NewWallet(signer, e.chain, wallet.WithLogger(a.log))
			sender := tx.NewSender(
				tx.Config{MaxRetries: a.cfg.Send.MaxRetries, RetryBase: a.cfg.Send.RetryBase},
				storage.NewMemorySendStore(),
				tx.WithLogger(a.log),
			)

			ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.Send.Timeout)
			defer cancel()

			if key == "" {
				key = uuid.NewString()
			}
			rec, err := sender.Send(ctx, w, p, tx.SendRequest{IdempotencyKey: key, To: to, Amount: base})
			if err != nil {
				var be *wallet.BroadcastError
				if errors.As(err, &be) && envelope != "" {
					if werr := os.WriteFile(envelope, be.Signed.Envelope, 0o600); werr != nil {
						return errors.Join(err, werr)
					}
					fmt.Fprintf(cmd.ErrOrStderr(), "signed envelope saved to %s\n", envelope)
				}
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "sent %s from %s to %s\ntx id: %s\n",
				node.FormatUnits(fmt.Sprint(rec.Amount), p.Decimals()), rec.From, rec.To, rec.TxID)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&to, "to", "", "recipient address")
	f.StringVar(&amount, "amount", "", "amount in whole coins")
	f.StringVar(&key, "idempotency-key", "", "idempotency key (random by default)")
	f.StringVar(&envelope, "envelope-out", "signed-tx.json", "where to save a signed but unbroadcast transaction")
	f.StringVar(&pf.path, "path", "", "derivation path (overrides --account/--index)")
	f.Uint32Var(&pf.account, "account", 0, "BIP-44 account")
	f.Uint32Var(&pf.index, "index", 0, "address index")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newBroadcastCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "broadcast <signed-envelope.json>",
		Short: "Resubmit a signed transaction envelope",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.provider()
			if err != nil {
				return err
			}
			signed, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			txID, err := p.BroadcastTransaction(cmd.Context(), signed)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "tx id: %s\n", txID)
			return nil
		},
	}
}
