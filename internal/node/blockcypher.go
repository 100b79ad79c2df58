package node

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/olehkaliuzhnyi/flow-wallet/pkg/models"
)

// Blockcypher API roots.
const (
	BlockcypherLtcMainnet = "https://api.blockcypher.com/v1/ltc/main"
	BlockcypherBtcMainnet = "https://api.blockcypher.com/v1/btc/main"
	BlockcypherBtcTestnet = "https://api.blockcypher.com/v1/btc/test3"

	utxoDecimals = 8
)

// BlockcypherProvider talks to a Blockcypher-compatible REST API. Envelopes are
// transaction skeletons from /txs/new with the per-input signing preimages
// included.
type BlockcypherProvider struct {
	client
}

var _ Provider = (*BlockcypherProvider)(nil)

// NewBlockcypherProvider returns a provider for the API root baseURL.
func NewBlockcypherProvider(baseURL string, opts ...Option) *BlockcypherProvider {
	return &BlockcypherProvider{client{cfg: newClientConfig(baseURL, "blockcypher", opts)}}
}

// NewLtcProvider returns a Litecoin mainnet provider.
func NewLtcProvider(opts ...Option) *BlockcypherProvider {
	return NewBlockcypherProvider(BlockcypherLtcMainnet, opts...)
}

// NewBtcProvider returns a Bitcoin mainnet provider.
func NewBtcProvider(opts ...Option) *BlockcypherProvider {
	return NewBlockcypherProvider(BlockcypherBtcMainnet, opts...)
}

// NewBtcTestnetProvider returns a Bitcoin testnet3 provider.
func NewBtcTestnetProvider(opts ...Option) *BlockcypherProvider {
	return NewBlockcypherProvider(BlockcypherBtcTestnet, opts...)
}

func (p *BlockcypherProvider) Decimals() int32 { return utxoDecimals }

func (p *BlockcypherProvider) query() url.Values {
	if p.cfg.token == "" {
		return nil
	}
	return url.Values{"token": {p.cfg.token}}
}

func (p *BlockcypherProvider) GetBalance(ctx context.Context, address string) (string, error) {
	var body struct {
		Balance *int64 `json:"balance"`
	}
	err := p.doJSON(ctx, request{
		op:     "get_balance",
		method: http.MethodGet,
		path:   "/addrs/" + url.PathEscape(address) + "/balance",
		query:  p.query(),
	}, &body)
	if err != nil {
		return "", err
	}
	if body.Balance == nil {
		return "", parseErr("get_balance", fmt.Errorf("response has no balance"))
	}
	return strconv.FormatInt(*body.Balance, 10), nil
}

type blockcypherTxRef struct {
	TxHash      string    `json:"tx_hash"`
	BlockHeight int64     `json:"block_height"`
	TxInputN    int64     `json:"tx_input_n"`
	TxOutputN   int64     `json:"tx_output_n"`
	Value       int64     `json:"value"`
	Confirmed   time.Time `json:"confirmed"`
	Received    time.Time `json:"received"`
}

// GetTransactions maps txrefs to records. A ref with tx_input_n >= 0 spends
// from the address and is outgoing; otherwise it pays to the address.
func (p *BlockcypherProvider) GetTransactions(ctx context.Context, address string) ([]models.Transaction, error) {
	var body struct {
		TxRefs            []blockcypherTxRef `json:"txrefs"`
		UnconfirmedTxRefs []blockcypherTxRef `json:"unconfirmed_txrefs"`
	}
	err := p.doJSON(ctx, request{
		op:     "get_transactions",
		method: http.MethodGet,
		path:   "/addrs/" + url.PathEscape(address),
		query:  p.query(),
	}, &body)
	if err != nil {
		return nil, err
	}

	refs := append(body.UnconfirmedTxRefs, body.TxRefs...)
	txs := make([]models.Transaction, 0, len(refs))
	for _, ref := range refs {
		tx := models.Transaction{
			Hash:   ref.TxHash,
			Value:  strconv.FormatInt(ref.Value, 10),
			Status: models.TxStatusPending,
		}
		if ref.TxInputN >= 0 {
			tx.From = address
		} else {
			tx.To = address
		}
		if ref.BlockHeight > 0 {
			tx.BlockNumber = uint64(ref.BlockHeight)
			tx.Status = models.TxStatusSuccess
		}
		switch {
		case !ref.Confirmed.IsZero():
			tx.Timestamp = uint64(ref.Confirmed.UnixMilli())
		case !ref.Received.IsZero():
			tx.Timestamp = uint64(ref.Received.UnixMilli())
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

func (p *BlockcypherProvider) GetBlockNumber(ctx context.Context) (uint64, error) {
	var body struct {
		Height *uint64 `json:"height"`
	}
	if err := p.doJSON(ctx, request{op: "get_block_number", method: http.MethodGet, query: p.query()}, &body); err != nil {
		return 0, err
	}
	if body.Height == nil {
		return 0, parseErr("get_block_number", fmt.Errorf("response has no height"))
	}
	return *body.Height, nil
}

type blockcypherTxIO struct {
	Addresses []string `json:"addresses"`
	Value     uint64   `json:"value,omitempty"`
}

// CreateTransaction requests a skeleton spending amount satoshis from from to
// to. The returned envelope carries "tosign" and "tosign_tx".
func (p *BlockcypherProvider) CreateTransaction(ctx context.Context, from, to string, amount uint64) ([]byte, error) {
	const op = "create_transaction"
	q := p.query()
	if q == nil {
		q = url.Values{}
	}
	q.Set("includeToSignTx", "true")

	raw, err := p.do(ctx, request{
		op:     op,
		method: http.MethodPost,
		path:   "/txs/new",
		query:  q,
		body: struct {
			Inputs  []blockcypherTxIO `json:"inputs"`
			Outputs []blockcypherTxIO `json:"outputs"`
		}{
			Inputs:  []blockcypherTxIO{{Addresses: []string{from}}},
			Outputs: []blockcypherTxIO{{Addresses: []string{to}, Value: amount}},
		},
	})
	if err != nil {
		return nil, err
	}

	var check struct {
		ToSign []string        `json:"tosign"`
		Errors json.RawMessage `json:"errors"`
		Error  json.RawMessage `json:"error"`
	}
	if err := decode(op, raw, &check); err != nil {
		return nil, err
	}
	if len(check.Errors) > 0 || len(check.Error) > 0 {
		return nil, apiErr(op, http.StatusOK, apiMessage(raw))
	}
	if len(check.ToSign) == 0 {
		return nil, parseErr(op, fmt.Errorf("skeleton has no tosign digests"))
	}
	return raw, nil
}

// BroadcastTransaction posts the signed skeleton to /txs/send and returns the
// transaction hash.
func (p *BlockcypherProvider) BroadcastTransaction(ctx context.Context, signed []byte) (string, error) {
	const op = "broadcast_transaction"
	if !json.Valid(signed) {
		return "", parseErr(op, fmt.Errorf("signed envelope is not JSON"))
	}

	var body struct {
		Tx struct {
			Hash string `json:"hash"`
		} `json:"tx"`
		Errors json.RawMessage `json:"errors"`
	}
	raw, err := p.do(ctx, request{
		op:     op,
		method: http.MethodPost,
		path:   "/txs/send",
		query:  p.query(),
		body:   json.RawMessage(signed),
	})
	if err != nil {
		return "", err
	}
	if err := decode(op, raw, &body); err != nil {
		return "", err
	}
	if len(body.Errors) > 0 {
		return "", apiErr(op, http.StatusOK, apiMessage(raw))
	}
	if body.Tx.Hash == "" {
		return "", parseErr(op, fmt.Errorf("response has no tx hash"))
	}
	return body.Tx.Hash, nil
}
