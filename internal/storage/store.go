package storage

import "github.com/olehkaliuzhnyi/flow-wallet/pkg/models"

// SendStore journals idempotent sends.
type SendStore interface {
	// Get returns the record stored under idempotencyKey, or nil if not found.
	Get(idempotencyKey string) (*models.SendRecord, error)
	// Put stores rec under rec.IdempotencyKey, replacing any previous state.
	Put(rec *models.SendRecord) error
}

// SeenLimit is the number of recent event keys a WatermarkStore keeps per
// address.
const SeenLimit = 1024

// WatermarkStore persists, per network and address, the newest timestamp a
// monitor has emitted and the keys of the events it emitted recently.
type WatermarkStore interface {
	// Watermark returns the stored timestamp in unix milliseconds, 0 if none.
	Watermark(network models.Network, address string) (uint64, error)
	// SetWatermark stores ts. Lower values than the current one are ignored.
	SetWatermark(network models.Network, address string, ts uint64) error
	// Seen reports whether key was recorded by MarkSeen.
	Seen(network models.Network, address, key string) (bool, error)
	// MarkSeen records key. At least the SeenLimit most recent keys per
	// address are kept.
	MarkSeen(network models.Network, address, key string) error
}
