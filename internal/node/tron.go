package node

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/olehkaliuzhnyi/flow-wallet/pkg/models"
)

// TronGrid API roots.
const (
	TronGridMainnet = "https://api.trongrid.io"
	TronGridNile    = "https://nile.trongrid.io"

	tronDecimals  = 6
	tronKeyHeader = "TRON-PRO-API-KEY"
)

// TronProvider talks to a TronGrid-compatible full node API. Envelopes are the
// unsigned transaction objects returned by /wallet/createtransaction.
type TronProvider struct {
	client
}

var _ Provider = (*TronProvider)(nil)

// NewTronGridProvider returns a provider for the API root baseURL.
func NewTronGridProvider(baseURL string, opts ...Option) *TronProvider {
	return &TronProvider{client{cfg: newClientConfig(baseURL, "trongrid", opts)}}
}

// NewTronProvider returns a Tron mainnet provider.
func NewTronProvider(opts ...Option) *TronProvider {
	return NewTronGridProvider(TronGridMainnet, opts...)
}

// NewTronNileProvider returns a Nile testnet provider.
func NewTronNileProvider(opts ...Option) *TronProvider {
	return NewTronGridProvider(TronGridNile, opts...)
}

func (p *TronProvider) Decimals() int32 { return tronDecimals }

func (p *TronProvider) header() http.Header {
	if p.cfg.token == "" {
		return nil
	}
	h := http.Header{}
	h.Set(tronKeyHeader, p.cfg.token)
	return h
}

func (p *TronProvider) GetBalance(ctx context.Context, address string) (string, error) {
	var body struct {
		Data []struct {
			Balance json.Number `json:"balance"`
		} `json:"data"`
		Success *bool  `json:"success"`
		Error   string `json:"error"`
	}
	err := p.doJSON(ctx, request{
		op:     "get_balance",
		method: http.MethodGet,
		path:   "/v1/accounts/" + url.PathEscape(address),
		header: p.header(),
	}, &body)
	if err != nil {
		return "", err
	}
	if body.Success != nil && !*body.Success {
		return "", apiErr("get_balance", http.StatusOK, body.Error)
	}
	// Accounts that never received TRX are absent.
	if len(body.Data) == 0 || body.Data[0].Balance == "" {
		return "0", nil
	}
	return body.Data[0].Balance.String(), nil
}

// GetTransactions lists TRC-20 transfers touching address.
func (p *TronProvider) GetTransactions(ctx context.Context, address string) ([]models.Transaction, error) {
	var body struct {
		Data []struct {
			TransactionID string `json:"transaction_id"`
			TokenInfo     struct {
				Symbol   string `json:"symbol"`
				Address  string `json:"address"`
				Decimals int    `json:"decimals"`
				Name     string `json:"name"`
			} `json:"token_info"`
			BlockTimestamp uint64 `json:"block_timestamp"`
			From           string `json:"from"`
			To             string `json:"to"`
			Value          string `json:"value"`
		} `json:"data"`
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	err := p.doJSON(ctx, request{
		op:     "get_transactions",
		method: http.MethodGet,
		path:   "/v1/accounts/" + url.PathEscape(address) + "/transactions/trc20",
		header: p.header(),
	}, &body)
	if err != nil {
		return nil, err
	}
	if !body.Success {
		return nil, apiErr("get_transactions", http.StatusOK, body.Error)
	}

	txs := make([]models.Transaction, 0, len(body.Data))
	for _, d := range body.Data {
		txs = append(txs, models.Transaction{
			Hash:      d.TransactionID,
			From:      d.From,
			To:        d.To,
			Value:     d.Value,
			Timestamp: d.BlockTimestamp,
			Status:    models.TxStatusSuccess,
			Token:     d.TokenInfo.Symbol,
		})
	}
	return txs, nil
}

func (p *TronProvider) GetBlockNumber(ctx context.Context) (uint64, error) {
	var body struct {
		BlockHeader struct {
			RawData struct {
				Number *uint64 `json:"number"`
			} `json:"raw_data"`
		} `json:"block_header"`
	}
	err := p.doJSON(ctx, request{
		op:     "get_block_number",
		method: http.MethodPost,
		path:   "/wallet/getnowblock",
		header: p.header(),
	}, &body)
	if err != nil {
		return 0, err
	}
	if body.BlockHeader.RawData.Number == nil {
		return 0, parseErr("get_block_number", fmt.Errorf("response has no block number"))
	}
	return *body.BlockHeader.RawData.Number, nil
}

// CreateTransaction builds a TRX transfer of amount sun. Addresses are base58.
func (p *TronProvider) CreateTransaction(ctx context.Context, from, to string, amount uint64) ([]byte, error) {
	const op = "create_transaction"
	raw, err := p.do(ctx, request{
		op:     op,
		method: http.MethodPost,
		path:   "/wallet/createtransaction",
		header: p.header(),
		body: struct {
			ToAddress    string `json:"to_address"`
			OwnerAddress string `json:"owner_address"`
			Amount       uint64 `json:"amount"`
			Visible      bool   `json:"visible"`
		}{to, from, amount, true},
	})
	if err != nil {
		return nil, err
	}

	var check struct {
		Error  string          `json:"Error"`
		TxID   string          `json:"txID"`
		RawHex string          `json:"raw_data_hex"`
		Raw    json.RawMessage `json:"raw_data"`
	}
	if err := decode(op, raw, &check); err != nil {
		return nil, err
	}
	if check.Error != "" {
		return nil, apiErr(op, http.StatusOK, check.Error)
	}
	if check.TxID == "" || check.RawHex == "" {
		return nil, parseErr(op, fmt.Errorf("response is not a transaction"))
	}
	return raw, nil
}

// BroadcastTransaction submits the signed transaction object.
func (p *TronProvider) BroadcastTransaction(ctx context.Context, signed []byte) (string, error) {
	const op = "broadcast_transaction"
	if !json.Valid(signed) {
		return "", parseErr(op, fmt.Errorf("signed envelope is not JSON"))
	}

	var body struct {
		Result  bool   `json:"result"`
		TxID    string `json:"txid"`
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	err := p.doJSON(ctx, request{
		op:     op,
		method: http.MethodPost,
		path:   "/wallet/broadcasttransaction",
		header: p.header(),
		body:   json.RawMessage(signed),
	}, &body)
	if err != nil {
		return "", err
	}
	if !body.Result {
		return "", apiErr(op, http.StatusOK, tronMessage(body.Code, body.Message))
	}
	if body.TxID == "" {
		// Older nodes omit txid; the envelope carries it.
		var env struct {
			TxID string `json:"txID"`
		}
		if err := decode(op, signed, &env); err != nil {
			return "", err
		}
		body.TxID = env.TxID
	}
	return body.TxID, nil
}

// tronMessage renders a broadcast rejection. TronGrid hex-encodes the message.
func tronMessage(code, message string) string {
	if b, err := hex.DecodeString(message); err == nil && len(b) > 0 {
		message = string(b)
	}
	switch {
	case code == "":
		return message
	case message == "":
		return code
	}
	return code + ": " + message
}
