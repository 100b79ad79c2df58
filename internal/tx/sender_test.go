package tx

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olehkaliuzhnyi/flow-wallet/internal/metrics"
	"github.com/olehkaliuzhnyi/flow-wallet/internal/node"
	"github.com/olehkaliuzhnyi/flow-wallet/internal/storage"
	"github.com/olehkaliuzhnyi/flow-wallet/internal/wallet"
	"github.com/olehkaliuzhnyi/flow-wallet/pkg/models"
)

// mockTransactor hands out fresh Tron envelopes and fails broadcasts from a
// scripted error queue.
type mockTransactor struct {
	mu         sync.Mutex
	created    int
	broadcasts [][]byte
	failures   []error
}

func (m *mockTransactor) CreateTransaction(_ context.Context, _, _ string, amount uint64) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created++
	raw := []byte{0x0a, 0x02, byte(m.created), byte(amount)}
	id := sha256.Sum256(raw)
	return json.Marshal(map[string]any{
		"txID":         hex.EncodeToString(id[:]),
		"raw_data_hex": hex.EncodeToString(raw),
	})
}

func (m *mockTransactor) BroadcastTransaction(_ context.Context, signed []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broadcasts = append(m.broadcasts, signed)
	if len(m.failures) > 0 {
		err := m.failures[0]
		m.failures = m.failures[1:]
		if err != nil {
			return "", err
		}
	}
	var env struct {
		TxID string `json:"txID"`
	}
	_ = json.Unmarshal(signed, &env)
	return env.TxID, nil
}

func (m *mockTransactor) counts() (created, broadcasts int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.created, len(m.broadcasts)
}

var (
	errTransient = &node.Error{Kind: node.KindNetwork, Op: "broadcast_transaction", Err: errors.New("connection reset")}
	errRejected  = &node.Error{Kind: node.KindAPI, Op: "broadcast_transaction", Msg: "SIGERROR"}
)

func newTestWallet(t *testing.T) *wallet.Wallet {
	t.Helper()
	signer, err := wallet.NewLocalSigner(bytes.Repeat([]byte{0x01}, 32))
	require.NoError(t, err)
	t.Cleanup(signer.Destroy)
	return wallet.NewWallet(signer, wallet.Tron)
}

func newTestSender(store storage.SendStore, opts ...Option) *Sender {
	return NewSender(Config{MaxRetries: 3, RetryBase: time.Millisecond}, store, opts...)
}

func TestSender_Send(t *testing.T) {
	store := storage.NewMemorySendStore()
	s := newTestSender(store)
	p := &mockTransactor{}

	rec, err := s.Send(context.Background(), newTestWallet(t), p, SendRequest{IdempotencyKey: "k1", To: "Tto", Amount: 7})
	require.NoError(t, err)
	assert.Equal(t, models.SendStateBroadcast, rec.State)
	assert.Equal(t, models.NetworkTron, rec.Network)
	assert.Equal(t, "TCNkawTmcQgYSU8nP8cHswT1QPjharxJr7", rec.From)
	assert.NotEmpty(t, rec.TxID)
	assert.Equal(t, 1, rec.Attempts)

	stored, err := store.Get("k1")
	require.NoError(t, err)
	assert.Equal(t, rec.TxID, stored.TxID)
	assert.Equal(t, models.SendStateBroadcast, stored.State)
}

func TestSender_Idempotency(t *testing.T) {
	s := newTestSender(storage.NewMemorySendStore())
	p := &mockTransactor{}
	w := newTestWallet(t)
	req := SendRequest{IdempotencyKey: "k1", To: "Tto", Amount: 7}

	first, err := s.Send(context.Background(), w, p, req)
	require.NoError(t, err)
	second, err := s.Send(context.Background(), w, p, req)
	require.NoError(t, err)

	assert.Equal(t, first.TxID, second.TxID)
	created, broadcasts := p.counts()
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, broadcasts)
}

func TestSender_DifferentKeys(t *testing.T) {
	s := newTestSender(storage.NewMemorySendStore())
	p := &mockTransactor{}
	w := newTestWallet(t)

	a, err := s.Send(context.Background(), w, p, SendRequest{IdempotencyKey: "a", To: "Tto", Amount: 7})
	require.NoError(t, err)
	b, err := s.Send(context.Background(), w, p, SendRequest{IdempotencyKey: "b", To: "Tto", Amount: 7})
	require.NoError(t, err)
	assert.NotEqual(t, a.TxID, b.TxID)
}

func TestSender_KeyConflict(t *testing.T) {
	s := newTestSender(storage.NewMemorySendStore())
	p := &mockTransactor{}
	w := newTestWallet(t)

	_, err := s.Send(context.Background(), w, p, SendRequest{IdempotencyKey: "k", To: "Tto", Amount: 7})
	require.NoError(t, err)
	_, err = s.Send(context.Background(), w, p, SendRequest{IdempotencyKey: "k", To: "Tto", Amount: 8})
	assert.ErrorIs(t, err, ErrKeyConflict)
}

func TestSender_MissingKey(t *testing.T) {
	s := newTestSender(storage.NewMemorySendStore())
	_, err := s.Send(context.Background(), newTestWallet(t), &mockTransactor{}, SendRequest{To: "Tto", Amount: 1})
	assert.ErrorIs(t, err, ErrMissingKey)
}

func TestSender_RetriesTransient(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	s := newTestSender(storage.NewMemorySendStore(), WithMetrics(m))
	p := &mockTransactor{failures: []error{errTransient, errTransient}}

	rec, err := s.Send(context.Background(), newTestWallet(t), p, SendRequest{IdempotencyKey: "k", To: "Tto", Amount: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, rec.Attempts)

	_, broadcasts := p.counts()
	require.Equal(t, 3, broadcasts)
	// Every retry submits the same bytes.
	assert.Equal(t, p.broadcasts[0], p.broadcasts[2])

	assert.Equal(t, 2.0, testutil.ToFloat64(m.BroadcastAttempts.WithLabelValues("tron", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BroadcastAttempts.WithLabelValues("tron", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SendTotal.WithLabelValues("tron", "ok")))
}

func TestSender_DoesNotRetryRejection(t *testing.T) {
	store := storage.NewMemorySendStore()
	s := newTestSender(store)
	p := &mockTransactor{failures: []error{errRejected}}

	rec, err := s.Send(context.Background(), newTestWallet(t), p, SendRequest{IdempotencyKey: "k", To: "Tto", Amount: 1})
	require.Error(t, err)
	assert.Equal(t, wallet.ClassInput, wallet.Classify(err))

	var be *wallet.BroadcastError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, models.SendStateSigned, rec.State)

	_, broadcasts := p.counts()
	assert.Equal(t, 1, broadcasts)

	stored, _ := store.Get("k")
	assert.Equal(t, models.SendStateSigned, stored.State)
	assert.Equal(t, 1, stored.Attempts)
}

func TestSender_ExhaustsRetries(t *testing.T) {
	s := newTestSender(storage.NewMemorySendStore())
	p := &mockTransactor{failures: []error{errTransient, errTransient, errTransient}}

	_, err := s.Send(context.Background(), newTestWallet(t), p, SendRequest{IdempotencyKey: "k", To: "Tto", Amount: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, node.ErrNetwork)
	assert.Contains(t, err.Error(), "all 3 broadcast attempts failed")
}

func TestSender_RebroadcastsJournaledEnvelope(t *testing.T) {
	store := storage.NewMemorySendStore()
	s := newTestSender(store)
	w := newTestWallet(t)
	p := &mockTransactor{failures: []error{errRejected}}
	req := SendRequest{IdempotencyKey: "k", To: "Tto", Amount: 1}

	_, err := s.Send(context.Background(), w, p, req)
	require.Error(t, err)
	journaled, _ := store.Get("k")
	require.Equal(t, models.SendStateSigned, journaled.State)

	rec, err := s.Send(context.Background(), w, p, req)
	require.NoError(t, err)
	assert.Equal(t, models.SendStateBroadcast, rec.State)
	assert.Equal(t, 2, rec.Attempts)

	created, broadcasts := p.counts()
	assert.Equal(t, 1, created, "a journaled envelope must not be rebuilt")
	require.Equal(t, 2, broadcasts)
	assert.Equal(t, p.broadcasts[0], p.broadcasts[1])
	assert.JSONEq(t, string(journaled.Envelope), string(p.broadcasts[1]))
}

func TestSender_SigningFailureIsNotJournaled(t *testing.T) {
	store := storage.NewMemorySendStore()
	s := newTestSender(store)
	signer, err := wallet.NewWatchOnlySigner(mustPub(t))
	require.NoError(t, err)
	w := wallet.NewWallet(signer, wallet.Tron)

	_, err = s.Send(context.Background(), w, &mockTransactor{}, SendRequest{IdempotencyKey: "k", To: "Tto", Amount: 1})
	require.ErrorIs(t, err, wallet.ErrSigningUnavailable)

	rec, _ := store.Get("k")
	assert.Nil(t, rec)
}

func TestSender_CancelDuringBackoff(t *testing.T) {
	s := NewSender(Config{MaxRetries: 3, RetryBase: time.Hour}, storage.NewMemorySendStore())
	p := &mockTransactor{failures: []error{errTransient}}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	rec, err := s.Send(ctx, newTestWallet(t), p, SendRequest{IdempotencyKey: "k", To: "Tto", Amount: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	var be *wallet.BroadcastError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, models.SendStateSigned, rec.State)
}

func TestSender_ConcurrentSameKey(t *testing.T) {
	s := newTestSender(storage.NewMemorySendStore())
	p := &mockTransactor{}
	w := newTestWallet(t)
	req := SendRequest{IdempotencyKey: "k", To: "Tto", Amount: 1}

	const n = 8
	ids := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, err := s.Send(context.Background(), w, p, req)
			errs[i] = err
			if rec != nil {
				ids[i] = rec.TxID
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	created, broadcasts := p.counts()
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, broadcasts)
}

func TestSender_KeyLocksReleased(t *testing.T) {
	s := newTestSender(storage.NewMemorySendStore())
	p := &mockTransactor{}
	w := newTestWallet(t)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i%4)
			_, err := s.Send(context.Background(), w, p, SendRequest{IdempotencyKey: key, To: "Tto", Amount: 1})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Empty(t, s.locks, "finished sends must not leave key locks behind")
}

func mustPub(t *testing.T) []byte {
	t.Helper()
	signer, err := wallet.NewLocalSigner(bytes.Repeat([]byte{0x02}, 32))
	require.NoError(t, err)
	defer signer.Destroy()
	return signer.PublicKey()
}
