package mpc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/olehkaliuzhnyi/flow-wallet/internal/logger"
)

const (
	wsHandshakeTimeout = 10 * time.Second
	wsInboxSize        = 64
	wsCloseGrace       = time.Second
)

// wsFrame is the JSON frame exchanged on the wire. Payload is base64 encoded
// by encoding/json.
type wsFrame struct {
	From    PartyID `json:"from"`
	To      PartyID `json:"to"`
	Payload []byte  `json:"payload"`
}

// WebsocketTransport links exactly two parties over one websocket connection.
type WebsocketTransport struct {
	self, peer PartyID
	conn       *websocket.Conn
	logger     *zap.Logger

	writeMu   sync.Mutex
	inbox     chan wsFrame
	done      chan struct{}
	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
}

var _ Transport = (*WebsocketTransport)(nil)

// NewWebsocketTransport wraps an established connection and starts reading
// from it. Frames not addressed from peer to self are dropped.
func NewWebsocketTransport(conn *websocket.Conn, self, peer PartyID) *WebsocketTransport {
	t := &WebsocketTransport{
		self:   self,
		peer:   peer,
		conn:   conn,
		logger: logger.Named("mpc-ws").With(zap.Uint16("self", uint16(self)), zap.Uint16("peer", uint16(peer))),
		inbox:  make(chan wsFrame, wsInboxSize),
		done:   make(chan struct{}),
	}
	go t.readLoop()
	return t
}

// DialWebsocket connects to a cosigner listening at url.
func DialWebsocket(ctx context.Context, url string, self, peer PartyID) (*WebsocketTransport, error) {
	dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrTransport, url, err)
	}
	return NewWebsocketTransport(conn, self, peer), nil
}

// WebsocketHandler upgrades each request and runs serve with a transport for
// it. The connection is closed when serve returns.
func WebsocketHandler(self, peer PartyID, serve func(ctx context.Context, t *WebsocketTransport)) http.Handler {
	upgrader := websocket.Upgrader{HandshakeTimeout: wsHandshakeTimeout}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Named("mpc-ws").Warn("upgrade failed", zap.Error(err))
			return
		}
		t := NewWebsocketTransport(conn, self, peer)
		defer t.Close()
		serve(r.Context(), t)
	})
}

func (t *WebsocketTransport) PartyID() PartyID { return t.self }

// Peer returns the party on the other end of the connection.
func (t *WebsocketTransport) Peer() PartyID { return t.peer }

func (t *WebsocketTransport) Send(ctx context.Context, to PartyID, payload []byte) error {
	if to != t.peer {
		return fmt.Errorf("%w: no connection to party %d", ErrTransport, to)
	}
	select {
	case <-t.done:
		return t.closedErr()
	default:
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	if err := t.conn.WriteJSON(wsFrame{From: t.self, To: to, Payload: payload}); err != nil {
		return fmt.Errorf("%w: write: %w", ErrTransport, err)
	}
	return nil
}

func (t *WebsocketTransport) Receive(ctx context.Context) (PartyID, []byte, error) {
	select {
	case f := <-t.inbox:
		return f.From, f.Payload, nil
	case <-t.done:
		// Drain frames that arrived before the connection went away.
		select {
		case f := <-t.inbox:
			return f.From, f.Payload, nil
		default:
		}
		return 0, nil, t.closedErr()
	case <-ctx.Done():
		return 0, nil, fmt.Errorf("%w: receive: %w", ErrTransport, ctx.Err())
	}
}

// Done is closed once the connection has terminated.
func (t *WebsocketTransport) Done() <-chan struct{} { return t.done }

// Close sends a close frame and releases the connection. It is idempotent.
func (t *WebsocketTransport) Close() error {
	t.writeMu.Lock()
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(wsCloseGrace))
	t.writeMu.Unlock()
	t.shutdown(nil)
	return nil
}

func (t *WebsocketTransport) readLoop() {
	for {
		var f wsFrame
		if err := t.conn.ReadJSON(&f); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				err = nil
			}
			t.shutdown(err)
			return
		}
		if f.From != t.peer || f.To != t.self {
			t.logger.Warn("dropping misaddressed frame",
				zap.Uint16("from", uint16(f.From)), zap.Uint16("to", uint16(f.To)))
			continue
		}
		select {
		case t.inbox <- f:
		case <-t.done:
			return
		}
	}
}

func (t *WebsocketTransport) shutdown(err error) {
	t.closeOnce.Do(func() {
		t.errMu.Lock()
		t.err = err
		t.errMu.Unlock()
		if err != nil {
			t.logger.Warn("connection closed", zap.Error(err))
		}
		_ = t.conn.Close()
		close(t.done)
	})
}

func (t *WebsocketTransport) closedErr() error {
	t.errMu.Lock()
	defer t.errMu.Unlock()
	if t.err != nil {
		return fmt.Errorf("%w: connection closed: %w", ErrTransport, t.err)
	}
	return fmt.Errorf("%w: %w", ErrTransport, errConnClosed)
}

var errConnClosed = errors.New("connection closed")
