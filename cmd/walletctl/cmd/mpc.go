package cmd

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/olehkaliuzhnyi/flow-wallet/internal/mpc"
	"github.com/olehkaliuzhnyi/flow-wallet/internal/wallet"
)

func newMPCCmd(a *app) *cobra.Command {
	var bits int
	cmd := &cobra.Command{
		Use:   "mpc",
		Short: "Two-party threshold ECDSA",
		Long: `Runs the two-party signer. Neither party ever holds the full private key:
keygen produces one share per party and every signature needs both.

  mpc serve   run the cosigner, accepting initiators over websocket
  mpc sign    connect to a cosigner, run keygen and sign a message
  mpc demo    run both parties in process`,
	}
	cmd.PersistentFlags().IntVar(&bits, "paillier-bits", 0, "Paillier modulus size (default mpc.paillier_bits)")

	paillierBits := func(cmd *cobra.Command) int {
		if cmd.Flags().Changed("paillier-bits") {
			return bits
		}
		return a.cfg.MPC.PaillierBits
	}

	cmd.AddCommand(newMPCDemoCmd(a, paillierBits), newMPCServeCmd(a, paillierBits), newMPCSignCmd(a, paillierBits))
	return cmd
}

func newMPCDemoCmd(a *app, bits func(*cobra.Command) int) *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Keygen and sign with both parties in this process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			opts := []mpc.Option{mpc.WithPaillierBits(bits(cmd)), mpc.WithLogger(a.log)}

			lp, err := mpc.RunLocalKeygen(ctx, opts...)
			if err != nil {
				return err
			}
			cosigner, err := mpc.NewCosigner(lp.Cosigner, lp.CosignerTransport, opts...)
			if err != nil {
				lp.Destroy()
				return err
			}
			defer cosigner.Destroy()

			serveCtx, stop := context.WithCancel(ctx)
			defer stop()
			go func() { _ = cosigner.Serve(serveCtx) }()

			ks := wallet.NewMpcKeySource(lp.Initiator, lp.InitiatorTransport, opts...)
			defer ks.Destroy()
			return signAndReport(ctx, cmd.OutOrStdout(), a, ks, []byte(message))
		},
	}
	cmd.Flags().StringVar(&message, "message", "hello from flow-wallet", "message to sign")
	return cmd
}

func newMPCServeCmd(a *app, bits func(*cobra.Command) int) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the cosigner",
		Long: `Listens for initiators on ws://<listen>/mpc. Each connection runs keygen and
then serves signing sessions until the initiator disconnects. Every message
to be signed is logged before the partial signature is released.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("listen") {
				listen = a.cfg.MPC.ListenAddr
			}
			log := a.log.With(zap.String("component", "cosigner"))
			opts := []mpc.Option{
				mpc.WithPaillierBits(bits(cmd)),
				mpc.WithLogger(log),
				mpc.WithApprove(func(_ context.Context, msg []byte) error {
					log.Info("approving signing request", zap.String("message_hex", hex.EncodeToString(msg)))
					return nil
				}),
			}

			mux := http.NewServeMux()
			mux.Handle("/mpc", mpc.WebsocketHandler(mpc.CosignerID, mpc.InitiatorID, func(ctx context.Context, t *mpc.WebsocketTransport) {
				share, err := mpc.Keygen(ctx, t, mpc.InitiatorID, mpc.RoleCosigner, opts...)
				if err != nil {
					log.Warn("keygen failed", zap.Error(err))
					return
				}
				c, err := mpc.NewCosigner(share, t, opts...)
				if err != nil {
					share.Destroy()
					log.Warn("cosigner setup failed", zap.Error(err))
					return
				}
				defer c.Destroy()
				log.Info("keygen complete", zap.String("public_key", hex.EncodeToString(c.PublicKey())))
				if err := c.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Info("initiator disconnected", zap.Error(err))
				}
			}))

			srv := &http.Server{Addr: listen, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			log.Info("cosigner listening", zap.String("addr", listen))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default mpc.listen_addr)")
	return cmd
}

func newMPCSignCmd(a *app, bits func(*cobra.Command) int) *cobra.Command {
	var (
		peer    string
		message string
	)
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Run keygen with a cosigner and sign a message",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("peer") {
				peer = a.cfg.MPC.PeerURL
			}
			ctx := cmd.Context()
			opts := []mpc.Option{mpc.WithPaillierBits(bits(cmd)), mpc.WithLogger(a.log)}

			t, err := mpc.DialWebsocket(ctx, peer, mpc.InitiatorID, mpc.CosignerID)
			if err != nil {
				return err
			}
			defer t.Close()

			share, err := mpc.Keygen(ctx, t, mpc.CosignerID, mpc.RoleInitiator, opts...)
			if err != nil {
				return err
			}
			ks := wallet.NewMpcKeySource(share, t, opts...)
			defer ks.Destroy()
			return signAndReport(ctx, cmd.OutOrStdout(), a, ks, []byte(message))
		},
	}
	cmd.Flags().StringVar(&peer, "peer", "", "cosigner websocket URL (default mpc.peer_url)")
	cmd.Flags().StringVar(&message, "message", "hello from flow-wallet", "message to sign")
	return cmd
}

// signAndReport derives the joint signer, prints its address on --network,
// signs msg and verifies the signature locally.
func signAndReport(ctx context.Context, out io.Writer, a *app, ks wallet.KeySource, msg []byte) error {
	_, e, err := a.entry()
	if err != nil {
		return err
	}
	signer, err := ks.DeriveSigner(ctx, wallet.BIP44(e.coinType, 0, 0, 0).String())
	if err != nil {
		return err
	}
	defer release(signer)

	addr, err := e.chain.AddressFromPubKey(signer.PublicKey())
	if err != nil {
		return err
	}
	der, err := signer.Sign(ctx, msg)
	if err != nil {
		return err
	}

	pub, err := btcec.ParsePubKey(signer.PublicKey())
	if err != nil {
		return err
	}
	sig, err := ecdsa.ParseDERSignature(der)
	if err != nil {
		return err
	}
	digest := sha256.Sum256(msg)
	if !sig.Verify(digest[:], pub) {
		return fmt.Errorf("%w: joint signature does not verify", wallet.ErrSigningFailed)
	}

	fmt.Fprintf(out, "joint public key: %x\n", signer.PublicKey())
	fmt.Fprintf(out, "%s address: %s\n", e.chain.ID(), addr)
	fmt.Fprintf(out, "signature (DER): %x\n", der)
	fmt.Fprintln(out, "signature verified")
	return nil
}
