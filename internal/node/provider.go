// Package node implements the blockchain data providers the wallet talks to:
// balance and history queries, raw transaction construction and broadcast.
package node

import (
	"context"

	"github.com/olehkaliuzhnyi/flow-wallet/pkg/models"
)

// Transactor builds unsigned transaction envelopes and broadcasts signed ones.
// Envelopes are provider-defined JSON documents.
type Transactor interface {
	CreateTransaction(ctx context.Context, from, to string, amount uint64) ([]byte, error)
	BroadcastTransaction(ctx context.Context, signed []byte) (string, error)
}

// Provider is the full network collaborator for one chain.
type Provider interface {
	Transactor

	// Decimals is the number of decimal places of the native unit.
	Decimals() int32
	// GetBalance returns the balance in base units as a decimal string.
	GetBalance(ctx context.Context, address string) (string, error)
	// GetTransactions returns the address history known to the provider.
	GetTransactions(ctx context.Context, address string) ([]models.Transaction, error)
	// GetBlockNumber returns the current chain height.
	GetBlockNumber(ctx context.Context) (uint64, error)
}
