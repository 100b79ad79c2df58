package mpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/olehkaliuzhnyi/flow-wallet/internal/logger"
)

const (
	msgKeygen1 = "keygen/1"
	msgKeygen2 = "keygen/2"
	msgKeygen3 = "keygen/3"
	msgSign1   = "sign/1"
	msgSign2   = "sign/2"
	msgSign3   = "sign/3"
	msgSign4   = "sign/4"
	msgAbort   = "abort"

	abortTimeout = 2 * time.Second
)

// envelope frames every protocol message.
type envelope struct {
	Session string          `json:"session"`
	Type    string          `json:"type"`
	Body    json.RawMessage `json:"body,omitempty"`
	Reason  string          `json:"reason,omitempty"`
}

type keygen1 struct {
	Q1   []byte   `json:"q1"`
	N    *big.Int `json:"n"`
	CKey *big.Int `json:"ckey"`
}

type keygen2 struct {
	Q2 []byte `json:"q2"`
	Q  []byte `json:"q"`
}

type keygen3 struct {
	Q []byte `json:"q"`
}

type sign1 struct {
	Message []byte `json:"message"`
	Commit  []byte `json:"commit"`
}

type sign2 struct {
	R2 []byte `json:"r2"`
}

type sign3 struct {
	R1    []byte `json:"r1"`
	Blind []byte `json:"blind"`
}

type sign4 struct {
	C3 *big.Int `json:"c3"`
}

// Option configures Keygen, Signer and Cosigner.
type Option func(*options)

// ApproveFunc lets a cosigner inspect a message before contributing to its
// signature. A non-nil error rejects the request.
type ApproveFunc func(ctx context.Context, msg []byte) error

type options struct {
	paillierBits int
	logger       *zap.Logger
	random       io.Reader
	approve      ApproveFunc
}

func newOptions(opts []Option) options {
	o := options{
		paillierBits: DefaultPaillierBits,
		logger:       logger.Named("mpc"),
		random:       defaultRandom(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithPaillierBits sets the Paillier modulus size used by Keygen.
func WithPaillierBits(bits int) Option {
	return func(o *options) { o.paillierBits = bits }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithApprove installs a cosigner approval hook.
func WithApprove(fn ApproveFunc) Option {
	return func(o *options) { o.approve = fn }
}

// WithRandom overrides the randomness source. Tests only.
func WithRandom(r io.Reader) Option {
	return func(o *options) { o.random = r }
}

// channel is one protocol session with the peer. Sessions sharing a
// Transport receive through its router, so each sees only its own messages.
type channel struct {
	t       Transport
	r       *router
	peer    PartyID
	session string
	logger  *zap.Logger
}

// newChannel joins session on t's router. An empty session is joined later
// by accept. Callers must close the channel.
func newChannel(t Transport, peer PartyID, session string, l *zap.Logger) *channel {
	c := &channel{t: t, r: acquireRouter(t, l), peer: peer, session: session, logger: l}
	if session != "" {
		c.r.join(session)
	}
	return c
}

// close leaves the session; later messages for it are dropped.
func (c *channel) close() {
	if c.session != "" {
		c.r.leave(c.session)
	}
	c.r.release()
}

func (c *channel) send(ctx context.Context, typ string, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s: %w", typ, err)
	}
	payload, err := json.Marshal(envelope{Session: c.session, Type: typ, Body: raw})
	if err != nil {
		return fmt.Errorf("encode %s: %w", typ, err)
	}
	return c.t.Send(ctx, c.peer, payload)
}

// expect blocks until the next message of this session and decodes it into
// out. An abort from the peer returns ErrAborted; any other type is a
// protocol violation.
func (c *channel) expect(ctx context.Context, typ string, out any) error {
	for {
		in, err := c.r.nextInSession(ctx, c.session)
		if err != nil {
			return err
		}
		if in.from != c.peer {
			c.logger.Warn("dropping message from unexpected party", zap.Uint16("from", uint16(in.from)))
			continue
		}
		return c.decode(in.env, typ, out)
	}
}

// accept waits for the oldest unjoined opening of type typ from the peer and
// joins that session.
func (c *channel) accept(ctx context.Context, typ string, out any) error {
	in, err := c.r.nextOpening(ctx, c.peer, typ)
	if err != nil {
		return err
	}
	c.session = in.env.Session
	return c.decode(in.env, typ, out)
}

func (c *channel) decode(env *envelope, typ string, out any) error {
	if env.Type == msgAbort {
		return fmt.Errorf("%w: %s", ErrAborted, env.Reason)
	}
	if env.Type != typ {
		return fmt.Errorf("%w: got %s, want %s", ErrProtocol, env.Type, typ)
	}
	if err := json.Unmarshal(env.Body, out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrProtocol, typ, err)
	}
	return nil
}

// abort tells the peer to drop the session. It is best effort and outlives a
// cancelled ctx so the peer does not wait for its own timeout.
func (c *channel) abort(ctx context.Context, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abortTimeout)
	defer cancel()

	payload, err := json.Marshal(envelope{Session: c.session, Type: msgAbort, Reason: cause.Error()})
	if err != nil {
		return
	}
	if err := c.t.Send(ctx, c.peer, payload); err != nil {
		c.logger.Debug("abort not delivered", zap.Error(err))
	}
}
