package storage

import (
	"encoding/json"
	"strconv"
	"sync"
	"testing"

	"github.com/olehkaliuzhnyi/flow-wallet/pkg/models"
)

func TestMemorySendStore_GetPut(t *testing.T) {
	s := NewMemorySendStore()

	rec, err := s.Get("missing")
	if err != nil {
		t.Fatal(err)
	}
	if rec != nil {
		t.Fatalf("expected nil for unknown key, got %+v", rec)
	}

	in := &models.SendRecord{
		IdempotencyKey: "k1",
		Network:        models.NetworkLitecoin,
		State:          models.SendStateSigned,
		Envelope:       json.RawMessage(`{"tx":{}}`),
	}
	if err := s.Put(in); err != nil {
		t.Fatal(err)
	}

	// Mutating the caller's copy must not leak into the store.
	in.State = models.SendStateBroadcast
	in.Envelope[0] = 'X'

	got, err := s.Get("k1")
	if err != nil {
		t.Fatal(err)
	}
	if got.State != models.SendStateSigned {
		t.Errorf("state = %s, want %s", got.State, models.SendStateSigned)
	}
	if string(got.Envelope) != `{"tx":{}}` {
		t.Errorf("envelope = %s", got.Envelope)
	}

	got.TxID = "changed"
	again, _ := s.Get("k1")
	if again.TxID != "" {
		t.Error("Get returned shared state")
	}
}

func TestMemorySendStore_RejectsEmptyKey(t *testing.T) {
	s := NewMemorySendStore()
	if err := s.Put(&models.SendRecord{}); err == nil {
		t.Error("expected error for empty idempotency key")
	}
	if err := s.Put(nil); err == nil {
		t.Error("expected error for nil record")
	}
}

func TestMemoryWatermarkStore_Monotonic(t *testing.T) {
	s := NewMemoryWatermarkStore()

	ts, _ := s.Watermark(models.NetworkTron, "T1")
	if ts != 0 {
		t.Fatalf("initial watermark = %d, want 0", ts)
	}

	_ = s.SetWatermark(models.NetworkTron, "T1", 100)
	_ = s.SetWatermark(models.NetworkTron, "T1", 50)
	ts, _ = s.Watermark(models.NetworkTron, "T1")
	if ts != 100 {
		t.Errorf("watermark = %d, want 100", ts)
	}

	// Keys are per network.
	ts, _ = s.Watermark(models.NetworkTronNile, "T1")
	if ts != 0 {
		t.Errorf("nile watermark = %d, want 0", ts)
	}
}

func TestMemoryWatermarkStore_Concurrent(t *testing.T) {
	s := NewMemoryWatermarkStore()
	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(ts uint64) {
			defer wg.Done()
			_ = s.SetWatermark(models.NetworkLitecoin, "L1", ts)
		}(uint64(i))
	}
	wg.Wait()

	ts, _ := s.Watermark(models.NetworkLitecoin, "L1")
	if ts != 50 {
		t.Errorf("watermark = %d, want 50", ts)
	}
}

func TestMemoryWatermarkStore_SeenIsBounded(t *testing.T) {
	s := NewMemoryWatermarkStore()

	if ok, _ := s.Seen(models.NetworkBitcoin, "1A", "k0"); ok {
		t.Fatal("unknown address reports a seen key")
	}
	for i := 0; i <= SeenLimit; i++ {
		if err := s.MarkSeen(models.NetworkBitcoin, "1A", "k"+strconv.Itoa(i)); err != nil {
			t.Fatal(err)
		}
	}
	// Marking twice does not take a second slot.
	_ = s.MarkSeen(models.NetworkBitcoin, "1A", "k1")

	if ok, _ := s.Seen(models.NetworkBitcoin, "1A", "k0"); ok {
		t.Error("oldest key should have been evicted")
	}
	for _, key := range []string{"k1", "k" + strconv.Itoa(SeenLimit)} {
		if ok, _ := s.Seen(models.NetworkBitcoin, "1A", key); !ok {
			t.Errorf("%s should be kept", key)
		}
	}
	if ok, _ := s.Seen(models.NetworkLitecoin, "1A", "k1"); ok {
		t.Error("seen keys are per network")
	}
}
