package node

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/olehkaliuzhnyi/flow-wallet/internal/logger"
)

const (
	defaultTimeout  = 15 * time.Second
	maxResponseSize = 4 << 20
)

// Option configures a provider.
type Option func(*clientConfig)

type clientConfig struct {
	baseURL    string
	httpClient *http.Client
	token      string
	logger     *zap.Logger
}

// WithBaseURL points the provider at a different API root, e.g. a testnet or
// a local mock.
func WithBaseURL(u string) Option {
	return func(c *clientConfig) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the default client with its 15s timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *clientConfig) { c.httpClient = hc }
}

// WithToken sets the API token: a query parameter for Blockcypher, the
// TRON-PRO-API-KEY header for TronGrid.
func WithToken(token string) Option {
	return func(c *clientConfig) { c.token = token }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *clientConfig) { c.logger = l }
}

func newClientConfig(defaultURL, component string, opts []Option) clientConfig {
	cfg := clientConfig{
		baseURL:    defaultURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger.Named(component),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// request describes one JSON call.
type request struct {
	op     string
	method string
	path   string
	query  url.Values
	header http.Header
	body   any // marshalled to JSON; json.RawMessage is sent as is
}

// client performs JSON requests and maps failures to *Error.
type client struct {
	cfg clientConfig
}

// do executes req and returns the raw body of a 2xx response. Transport
// failures are KindNetwork, non-2xx statuses are KindAPI.
func (c *client) do(ctx context.Context, req request) ([]byte, error) {
	u := c.cfg.baseURL + req.path
	if len(req.query) > 0 {
		u += "?" + req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		raw, ok := req.body.(json.RawMessage)
		if !ok {
			var err error
			if raw, err = json.Marshal(req.body); err != nil {
				return nil, parseErr(req.op, fmt.Errorf("encode request: %w", err))
			}
		}
		body = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u, body)
	if err != nil {
		return nil, networkErr(req.op, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range req.header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := c.cfg.httpClient.Do(httpReq)
	if err != nil {
		return nil, networkErr(req.op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, networkErr(req.op, fmt.Errorf("read response: %w", err))
	}

	c.cfg.logger.Debug("node request",
		zap.String("op", req.op),
		zap.String("method", req.method),
		zap.String("path", req.path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apiErr(req.op, resp.StatusCode, apiMessage(raw))
	}
	return raw, nil
}

// doJSON is do followed by decoding into out.
func (c *client) doJSON(ctx context.Context, req request, out any) error {
	raw, err := c.do(ctx, req)
	if err != nil {
		return err
	}
	return decode(req.op, raw, out)
}

func decode(op string, raw []byte, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return parseErr(op, err)
	}
	return nil
}

// apiMessage extracts a human readable error from a provider error body.
func apiMessage(raw []byte) string {
	var body struct {
		Error   json.RawMessage `json:"error"`
		TronErr string          `json:"Error"`
		Errors  []struct {
			Error string `json:"error"`
		} `json:"errors"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		var s string
		switch {
		case len(body.Errors) > 0:
			msgs := make([]string, 0, len(body.Errors))
			for _, e := range body.Errors {
				msgs = append(msgs, e.Error)
			}
			return strings.Join(msgs, "; ")
		case len(body.Error) > 0 && json.Unmarshal(body.Error, &s) == nil:
			return s
		case len(body.Error) > 0:
			return string(body.Error)
		case body.TronErr != "":
			return body.TronErr
		case body.Message != "":
			return body.Message
		}
	}
	const limit = 256
	msg := strings.TrimSpace(string(raw))
	if len(msg) > limit {
		msg = msg[:limit] + "..."
	}
	return msg
}
