// Package monitor polls providers for address history and emits transactions
// newer than a persisted per-address watermark.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/olehkaliuzhnyi/flow-wallet/internal/logger"
	"github.com/olehkaliuzhnyi/flow-wallet/internal/metrics"
	"github.com/olehkaliuzhnyi/flow-wallet/internal/storage"
	"github.com/olehkaliuzhnyi/flow-wallet/pkg/models"
)

const eventBuffer = 100

var (
	ErrAlreadyStarted = errors.New("monitor already started")
	ErrStopped        = errors.New("monitor stopped")
)

// TransactionSource is the slice of node.Provider the monitor needs.
type TransactionSource interface {
	GetTransactions(ctx context.Context, address string) ([]models.Transaction, error)
}

// EventHandler processes detected transactions.
type EventHandler func(event models.TxEvent) error

type options struct {
	logger  *zap.Logger
	metrics *metrics.Metrics
}

type Option func(*options)

func WithLogger(l *zap.Logger) Option { return func(o *options) { o.logger = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(o *options) { o.metrics = m } }

func buildOptions(component string, opts []Option) options {
	o := options{logger: logger.Named(component)}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// TransactionMonitor watches one address on one network.
type TransactionMonitor struct {
	network  models.Network
	address  string
	interval time.Duration
	source   TransactionSource
	store    storage.WatermarkStore
	events   chan models.TxEvent
	opts     options
	logger   *zap.Logger

	pollMu   sync.Mutex // one poll at a time; guards closed
	closed   bool
	mu       sync.Mutex
	started  bool
	stopped  bool
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

func NewTransactionMonitor(network models.Network, source TransactionSource, address string, interval time.Duration, store storage.WatermarkStore, opts ...Option) *TransactionMonitor {
	o := buildOptions("monitor", opts)
	return &TransactionMonitor{
		network:  network,
		address:  address,
		interval: interval,
		source:   source,
		store:    store,
		events:   make(chan models.TxEvent, eventBuffer),
		opts:     o,
		logger:   o.logger.With(zap.String("network", string(network)), zap.String("address", address)),
		done:     make(chan struct{}),
	}
}

func (m *TransactionMonitor) Network() models.Network { return m.network }

func (m *TransactionMonitor) Address() string { return m.address }

// Events is closed by Stop.
func (m *TransactionMonitor) Events() <-chan models.TxEvent { return m.events }

// Start polls immediately and then every interval until ctx is done or Stop
// is called.
func (m *TransactionMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return ErrStopped
	}
	if m.started {
		return ErrAlreadyStarted
	}
	m.started = true
	ctx, m.cancel = context.WithCancel(ctx)

	m.logger.Info("starting transaction monitor", zap.Duration("poll_interval", m.interval))
	go m.pollLoop(ctx)
	return nil
}

// Stop cancels the poll loop, waits for it to exit and closes Events.
func (m *TransactionMonitor) Stop() {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		started := m.started
		m.stopped = true
		if m.cancel != nil {
			m.cancel()
		}
		m.mu.Unlock()

		if started {
			<-m.done
		}
		// Serialise with a caller-driven Poll still sending.
		m.pollMu.Lock()
		m.closed = true
		close(m.events)
		m.pollMu.Unlock()
		m.logger.Info("monitor stopped")
	})
}

func (m *TransactionMonitor) pollLoop(ctx context.Context) {
	defer close(m.done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		if _, err := m.Poll(ctx); err != nil && ctx.Err() == nil {
			m.opts.metrics.ObservePollError(string(m.network))
			m.logger.Error("poll failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Poll runs a single step: fetch the history, sort it by timestamp and emit
// every record not older than the watermark whose event was not emitted
// before. The watermark moves to the newest emitted timestamp once the whole
// batch is out. It returns the number of events emitted.
func (m *TransactionMonitor) Poll(ctx context.Context) (int, error) {
	m.pollMu.Lock()
	defer m.pollMu.Unlock()
	if m.closed {
		return 0, ErrStopped
	}

	txs, err := m.source.GetTransactions(ctx, m.address)
	if err != nil {
		return 0, fmt.Errorf("get transactions: %w", err)
	}
	sort.SliceStable(txs, func(i, j int) bool { return txs[i].Timestamp < txs[j].Timestamp })

	mark, err := m.store.Watermark(m.network, m.address)
	if err != nil {
		return 0, fmt.Errorf("load watermark: %w", err)
	}

	emitted := 0
	newest := mark
	for _, tx := range txs {
		if tx.Timestamp < mark {
			continue
		}
		dir := direction(m.address, tx)
		key := eventKey(tx, dir)
		seen, err := m.store.Seen(m.network, m.address, key)
		if err != nil {
			return emitted, fmt.Errorf("load seen events: %w", err)
		}
		if seen {
			continue
		}
		event := models.TxEvent{
			Network:     m.network,
			Address:     m.address,
			Direction:   dir,
			Transaction: tx,
		}

		m.logger.Info("detected transaction",
			zap.String("tx", tx.Hash),
			zap.String("direction", string(dir)),
			zap.String("value", tx.Value),
			zap.String("status", tx.Status),
			zap.Uint64("timestamp", tx.Timestamp),
		)

		select {
		case m.events <- event:
		case <-ctx.Done():
			return emitted, ctx.Err()
		}
		emitted++
		m.opts.metrics.ObserveEvent(string(m.network), string(dir))

		if err := m.store.MarkSeen(m.network, m.address, key); err != nil {
			return emitted, fmt.Errorf("store seen event: %w", err)
		}
		newest = max(newest, tx.Timestamp)
	}
	if newest > mark {
		if err := m.store.SetWatermark(m.network, m.address, newest); err != nil {
			return emitted, fmt.Errorf("store watermark: %w", err)
		}
	}
	return emitted, nil
}

// eventKey identifies one transfer of a transaction for an address. A
// pending record and its later confirmation share a key.
func eventKey(tx models.Transaction, dir models.Direction) string {
	return tx.Hash + "/" + string(dir) + "/" + tx.Value
}

func direction(address string, tx models.Transaction) models.Direction {
	if tx.From == address {
		return models.DirectionOutgoing
	}
	return models.DirectionIncoming
}
