package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/olehkaliuzhnyi/flow-wallet/internal/storage"
	"github.com/olehkaliuzhnyi/flow-wallet/pkg/models"
)

type sourceEntry struct {
	source   TransactionSource
	interval time.Duration
}

// Manager runs monitors for many addresses across networks and routes their
// events to one handler.
type Manager struct {
	handler EventHandler
	store   storage.WatermarkStore
	opts    []Option
	logger  *zap.Logger

	mu       sync.Mutex
	sources  map[models.Network]sourceEntry
	monitors map[string]*TransactionMonitor
	ctx      context.Context // set by StartAll
	wg       sync.WaitGroup
}

func NewManager(handler EventHandler, store storage.WatermarkStore, opts ...Option) *Manager {
	o := buildOptions("monitor_manager", opts)
	return &Manager{
		handler:  handler,
		store:    store,
		opts:     opts,
		logger:   o.logger,
		sources:  make(map[models.Network]sourceEntry),
		monitors: make(map[string]*TransactionMonitor),
	}
}

// RegisterSource sets the provider polled for addresses on network.
func (m *Manager) RegisterSource(network models.Network, source TransactionSource, interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources[network] = sourceEntry{source: source, interval: interval}
}

// WatchAddress adds a monitor for address. After StartAll it starts at once.
func (m *Manager) WatchAddress(network models.Network, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	src, ok := m.sources[network]
	if !ok {
		return fmt.Errorf("no source registered for %s", network)
	}
	key := string(network) + "/" + address
	if _, ok := m.monitors[key]; ok {
		return nil
	}

	mon := NewTransactionMonitor(network, src.source, address, src.interval, m.store, m.opts...)
	m.monitors[key] = mon
	m.logger.Info("watching address", zap.String("network", string(network)), zap.String("address", address))

	if m.ctx != nil {
		return m.start(mon)
	}
	return nil
}

// StartAll starts every registered monitor.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ctx = ctx

	for _, mon := range m.monitors {
		if err := m.start(mon); err != nil {
			return err
		}
	}
	m.logger.Info("all monitors started", zap.Int("count", len(m.monitors)))
	return nil
}

func (m *Manager) start(mon *TransactionMonitor) error {
	if err := mon.Start(m.ctx); err != nil {
		return fmt.Errorf("start %s monitor for %s: %w", mon.Network(), mon.Address(), err)
	}

	// Fan-in: route events from each monitor to the common handler.
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for event := range mon.Events() {
			if err := m.handler(event); err != nil {
				m.logger.Error("handle event failed",
					zap.String("network", string(event.Network)),
					zap.String("tx", event.Transaction.Hash),
					zap.Error(err),
				)
			}
		}
	}()
	return nil
}

// StopAll stops every monitor and waits until queued events are handled.
func (m *Manager) StopAll() {
	m.mu.Lock()
	monitors := make([]*TransactionMonitor, 0, len(m.monitors))
	for _, mon := range m.monitors {
		monitors = append(monitors, mon)
	}
	m.mu.Unlock()

	for _, mon := range monitors {
		mon.Stop()
	}
	m.wg.Wait()
}
