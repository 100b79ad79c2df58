// Package tx layers caller-level send policy over the wallet pipeline:
// idempotency keys, a journal of signed envelopes and broadcast retry.
package tx

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/olehkaliuzhnyi/flow-wallet/internal/logger"
	"github.com/olehkaliuzhnyi/flow-wallet/internal/metrics"
	"github.com/olehkaliuzhnyi/flow-wallet/internal/node"
	"github.com/olehkaliuzhnyi/flow-wallet/internal/storage"
	"github.com/olehkaliuzhnyi/flow-wallet/internal/wallet"
	"github.com/olehkaliuzhnyi/flow-wallet/pkg/models"
)

var (
	ErrMissingKey = errors.New("idempotency key required")
	// ErrKeyConflict means the key was already used for a different send.
	ErrKeyConflict = errors.New("idempotency key reused with different parameters")
)

// Config holds the send policy.
type Config struct {
	MaxRetries int
	// RetryBase scales the backoff: attempt n waits n*n*RetryBase.
	RetryBase time.Duration
}

// Sender runs idempotent sends.
type Sender struct {
	store   storage.SendStore
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu    sync.Mutex
	locks map[string]*keyLock
}

type Option func(*Sender)

func WithLogger(l *zap.Logger) Option { return func(s *Sender) { s.logger = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Sender) { s.metrics = m } }

// NewSender creates a Sender journaling into store.
func NewSender(cfg Config, store storage.SendStore, opts ...Option) *Sender {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = time.Second
	}
	s := &Sender{
		store:  store,
		cfg:    cfg,
		logger: logger.Named("tx_sender"),
		locks:  make(map[string]*keyLock),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SendRequest is one transfer of Amount base units to To.
type SendRequest struct {
	IdempotencyKey string // prevents duplicate sends
	To             string
	Amount         uint64
}

// Send transfers funds from w on p. A key that already reached the network
// returns the stored record. A key whose envelope was signed but never
// accepted rebroadcasts that envelope; it is never rebuilt, so a retry cannot
// produce a second transaction.
func (s *Sender) Send(ctx context.Context, w *wallet.Wallet, p node.Transactor, req SendRequest) (*models.SendRecord, error) {
	if req.IdempotencyKey == "" {
		return nil, ErrMissingKey
	}
	unlock := s.lock(req.IdempotencyKey)
	defer unlock()

	chain := w.Chain().ID()
	start := time.Now()

	existing, err := s.store.Get(req.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("send store get: %w", err)
	}
	if existing != nil {
		if existing.Network != models.Network(chain) || existing.To != req.To || existing.Amount != req.Amount {
			return nil, fmt.Errorf("%w: %s", ErrKeyConflict, req.IdempotencyKey)
		}
		if existing.State == models.SendStateBroadcast {
			s.logger.Info("duplicate request, returning existing tx",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.String("tx_id", existing.TxID),
			)
			return existing, nil
		}
		s.logger.Info("rebroadcasting journaled transaction",
			zap.String("idempotency_key", req.IdempotencyKey),
			zap.Int("attempts", existing.Attempts),
		)
		return s.finish(ctx, w, p, existing, start)
	}

	signed, err := w.SignTransaction(ctx, p, req.To, req.Amount)
	if err != nil {
		stage, _ := wallet.FailedStage(err)
		s.metrics.ObserveSend(chain, string(stage), time.Since(start))
		return nil, err
	}

	rec := &models.SendRecord{
		IdempotencyKey: req.IdempotencyKey,
		Network:        models.Network(chain),
		From:           signed.From,
		To:             signed.To,
		Amount:         signed.Amount,
		State:          models.SendStateSigned,
		Envelope:       signed.Envelope,
		UpdatedAt:      time.Now(),
	}
	// The envelope must be on record before it can reach the network.
	if err := s.store.Put(rec); err != nil {
		return nil, fmt.Errorf("send store put: %w", err)
	}

	return s.finish(ctx, w, p, rec, start)
}

func (s *Sender) finish(ctx context.Context, w *wallet.Wallet, p node.Transactor, rec *models.SendRecord, start time.Time) (*models.SendRecord, error) {
	txID, err := s.broadcastWithRetry(ctx, w, p, rec)
	if err != nil {
		s.metrics.ObserveSend(string(rec.Network), string(wallet.StageBroadcast), time.Since(start))
		return rec, err
	}

	rec.State = models.SendStateBroadcast
	rec.TxID = txID
	rec.UpdatedAt = time.Now()
	if err := s.store.Put(rec); err != nil {
		return rec, fmt.Errorf("send store put: %w", err)
	}
	s.metrics.ObserveSend(string(rec.Network), "ok", time.Since(start))
	return rec, nil
}

// broadcastWithRetry submits rec.Envelope until it is accepted, the error is
// not transient, or MaxRetries attempts were made.
func (s *Sender) broadcastWithRetry(ctx context.Context, w *wallet.Wallet, p node.Transactor, rec *models.SendRecord) (string, error) {
	signed := &wallet.SignedTransaction{
		Chain:    string(rec.Network),
		From:     rec.From,
		To:       rec.To,
		Amount:   rec.Amount,
		Envelope: rec.Envelope,
	}

	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxRetries; attempt++ {
		txID, err := w.Broadcast(ctx, p, signed)
		rec.Attempts++
		rec.UpdatedAt = time.Now()
		s.metrics.ObserveBroadcast(string(rec.Network), err)
		if err == nil {
			s.logger.Info("transaction broadcast successful",
				zap.String("tx_id", txID),
				zap.Int("attempt", attempt),
			)
			return txID, nil
		}
		if perr := s.store.Put(rec); perr != nil {
			s.logger.Error("journal broadcast attempt", zap.Error(perr))
		}

		lastErr = err
		if wallet.Classify(err) != wallet.ClassTransient || ctx.Err() != nil {
			return "", err
		}
		s.logger.Warn("broadcast attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", s.cfg.MaxRetries),
			zap.Error(err),
		)
		if attempt == s.cfg.MaxRetries {
			break
		}

		select {
		case <-time.After(time.Duration(attempt*attempt) * s.cfg.RetryBase):
		case <-ctx.Done():
			return "", &wallet.BroadcastError{Signed: signed, Err: ctx.Err()}
		}
	}

	return "", fmt.Errorf("all %d broadcast attempts failed: %w", s.cfg.MaxRetries, lastErr)
}

// keyLock is a mutex shared by the in-flight sends of one idempotency key.
type keyLock struct {
	sync.Mutex
	refs int
}

// lock serialises sends sharing an idempotency key. The entry is dropped once
// its last holder unlocks.
func (s *Sender) lock(key string) func() {
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &keyLock{}
		s.locks[key] = l
	}
	l.refs++
	s.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}
