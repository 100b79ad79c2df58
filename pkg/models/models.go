package models

import (
	"encoding/json"
	"time"
)

// Network identifies a chain by its descriptor name.
type Network string

// Supported networks.
const (
	NetworkBitcoin         Network = "bitcoin"
	NetworkBitcoinTestnet  Network = "bitcoin-testnet"
	NetworkLitecoin        Network = "litecoin"
	NetworkLitecoinTestnet Network = "litecoin-testnet"
	NetworkTron            Network = "tron"
	NetworkTronNile        Network = "tron-nile"
)

// DerivedAddress holds a derived address with its derivation path
type DerivedAddress struct {
	Network        Network `json:"network"`
	Address        string  `json:"address"`
	DerivationPath string  `json:"derivation_path"`
	PublicKey      string  `json:"public_key"`
}

// Transaction statuses reported by providers.
const (
	TxStatusSuccess = "SUCCESS"
	TxStatusPending = "PENDING"
	TxStatusFailed  = "FAILED"
)

// Transaction is a provider history record.
type Transaction struct {
	Hash        string `json:"hash"`
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"` // base units, decimal string
	BlockNumber uint64 `json:"block_number"`
	Timestamp   uint64 `json:"timestamp"` // unix milliseconds
	Status      string `json:"status"`
	Token       string `json:"token,omitempty"` // token symbol for token transfers
}

// Direction of a transaction relative to a watched address.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// TxEvent is emitted by the transaction monitor for every record newer than
// its watermark.
type TxEvent struct {
	Network     Network     `json:"network"`
	Address     string      `json:"address"`
	Direction   Direction   `json:"direction"`
	Transaction Transaction `json:"transaction"`
}

// SendState is the lifecycle position of a journaled send.
type SendState string

const (
	// SendStateSigned means the envelope is finalized but not yet accepted by
	// the network. It must be rebroadcast, never rebuilt.
	SendStateSigned SendState = "signed"
	// SendStateBroadcast means the provider accepted the transaction.
	SendStateBroadcast SendState = "broadcast"
)

// SendRecord journals one idempotent send.
type SendRecord struct {
	IdempotencyKey string          `json:"idempotency_key"`
	Network        Network         `json:"network"`
	From           string          `json:"from"`
	To             string          `json:"to"`
	Amount         uint64          `json:"amount"`
	State          SendState       `json:"state"`
	Envelope       json.RawMessage `json:"envelope,omitempty"`
	TxID           string          `json:"tx_id,omitempty"`
	Attempts       int             `json:"attempts"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
