// Package wallet binds key material to chains. It defines the Signer, Chain
// and KeySource capabilities, their implementations, and the Wallet that drives
// the create → prepare → sign → finalize → broadcast pipeline.
package wallet

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/olehkaliuzhnyi/flow-wallet/internal/logger"
	"github.com/olehkaliuzhnyi/flow-wallet/internal/node"
)

// Signer produces signatures with one key or key share. It never exposes the
// private scalar.
type Signer interface {
	// Sign hashes msg with SHA-256 and returns a DER encoded ECDSA signature.
	Sign(ctx context.Context, msg []byte) ([]byte, error)
	// PublicKey returns the 33-byte compressed SEC1 public key.
	PublicKey() []byte
}

// Chain derives addresses and converts provider envelopes to and from the
// signable payloads of one network. Implementations are stateless.
type Chain interface {
	ID() string
	AddressFromPubKey(pub []byte) (string, error)
	// PrepareTransaction returns, in input order, the payloads to pass to
	// Signer.Sign.
	PrepareTransaction(envelope []byte) ([][]byte, error)
	// FinalizeTransaction embeds one signature per prepared payload. It either
	// returns a fully signed envelope or fails without touching the input.
	FinalizeTransaction(envelope []byte, sigs [][]byte, pub []byte) ([]byte, error)
}

// KeySource yields a Signer for a derivation path.
type KeySource interface {
	DeriveSigner(ctx context.Context, path string) (Signer, error)
}

// Wallet binds exactly one Signer to one Chain.
type Wallet struct {
	signer Signer
	chain  Chain
	logger *zap.Logger
}

// Option configures a Wallet.
type Option func(*Wallet)

// WithLogger overrides the component logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Wallet) { w.logger = l }
}

// NewWallet returns a Wallet for signer on chain.
func NewWallet(signer Signer, chain Chain, opts ...Option) *Wallet {
	w := &Wallet{
		signer: signer,
		chain:  chain,
		logger: logger.Named("wallet"),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(zap.String("chain", chain.ID()))
	return w
}

// Chain returns the bound chain descriptor.
func (w *Wallet) Chain() Chain { return w.chain }

// Signer returns the bound signer.
func (w *Wallet) Signer() Signer { return w.signer }

// Address derives the wallet address from the signer's public key. It is
// recomputed on every call.
func (w *Wallet) Address() (string, error) {
	return w.chain.AddressFromPubKey(w.signer.PublicKey())
}

// SignedTransaction is a finalized envelope ready for broadcast.
type SignedTransaction struct {
	Chain      string
	From       string
	To         string
	Amount     uint64
	Envelope   []byte
	Signatures int
}

// SendCoins runs the full pipeline and returns the network transaction id.
// Stages run strictly in order and the first failure aborts the rest. If the
// transaction was signed but not accepted the error is a *BroadcastError
// carrying the signed envelope.
func (w *Wallet) SendCoins(ctx context.Context, p node.Transactor, to string, amount uint64) (string, error) {
	signed, err := w.SignTransaction(ctx, p, to, amount)
	if err != nil {
		return "", err
	}
	return w.Broadcast(ctx, p, signed)
}

// SignTransaction runs create, prepare, sign and finalize.
func (w *Wallet) SignTransaction(ctx context.Context, p node.Transactor, to string, amount uint64) (*SignedTransaction, error) {
	from, err := w.Address()
	if err != nil {
		return nil, &StageError{Stage: StageCreate, Err: fmt.Errorf("derive sender address: %w", err)}
	}

	envelope, err := p.CreateTransaction(ctx, from, to, amount)
	if err != nil {
		return nil, &StageError{Stage: StageCreate, Err: err}
	}

	payloads, err := w.chain.PrepareTransaction(envelope)
	if err != nil {
		return nil, &StageError{Stage: StagePrepare, Err: err}
	}
	if len(payloads) == 0 {
		return nil, &StageError{Stage: StagePrepare, Err: fmt.Errorf("%w: nothing to sign", ErrEnvelope)}
	}

	w.logger.Debug("transaction prepared",
		zap.String("from", from),
		zap.String("to", to),
		zap.Uint64("amount", amount),
		zap.Int("inputs", len(payloads)),
	)

	sigs := make([][]byte, 0, len(payloads))
	for i, payload := range payloads {
		sig, err := w.signer.Sign(ctx, payload)
		if err != nil {
			return nil, &StageError{Stage: StageSign, Err: &SigningError{Index: i, Total: len(payloads), Err: err}}
		}
		sigs = append(sigs, sig)
	}

	signed, err := w.chain.FinalizeTransaction(envelope, sigs, w.signer.PublicKey())
	if err != nil {
		return nil, &StageError{Stage: StageFinalize, Err: err}
	}

	return &SignedTransaction{
		Chain:      w.chain.ID(),
		From:       from,
		To:         to,
		Amount:     amount,
		Envelope:   signed,
		Signatures: len(sigs),
	}, nil
}

// Broadcast submits a finalized transaction. Every failure, including a
// context cancelled before submission, is returned as *BroadcastError.
func (w *Wallet) Broadcast(ctx context.Context, p node.Transactor, signed *SignedTransaction) (string, error) {
	if signed == nil {
		return "", errors.New("broadcast transaction: nil signed transaction")
	}
	if err := ctx.Err(); err != nil {
		w.logger.Warn("context done before broadcast, transaction left unbroadcast", zap.Error(err))
		return "", &BroadcastError{Signed: signed, Err: err}
	}

	txID, err := p.BroadcastTransaction(ctx, signed.Envelope)
	if err != nil {
		w.logger.Warn("broadcast failed", zap.Error(err))
		return "", &BroadcastError{Signed: signed, Err: err}
	}

	w.logger.Info("transaction broadcast",
		zap.String("tx_id", txID),
		zap.String("to", signed.To),
		zap.Uint64("amount", signed.Amount),
	)
	return txID, nil
}
