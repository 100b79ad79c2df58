package mpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// maxOpenings bounds the session openings queued for a party that is busy
// with another session.
const maxOpenings = 64

// inbound is a received message filed under its session.
type inbound struct {
	from PartyID
	env  *envelope
}

// router demultiplexes one Transport between the sessions running on it.
// There is no reader goroutine: whichever session is waiting and finds its
// queue empty becomes the receiver, files what it reads and wakes the rest.
type router struct {
	t      Transport
	logger *zap.Logger

	mu        sync.Mutex
	users     int
	queues    map[string][]inbound // joined sessions
	openings  []inbound            // first messages of sessions nobody joined yet
	receiving bool
	wake      chan struct{}
}

var (
	routersMu sync.Mutex
	routers   = make(map[Transport]*router)
)

// acquireRouter returns the router of t, creating it on first use. Every
// acquire must be paired with release.
func acquireRouter(t Transport, l *zap.Logger) *router {
	routersMu.Lock()
	defer routersMu.Unlock()
	r, ok := routers[t]
	if !ok {
		r = &router{
			t:      t,
			logger: l,
			queues: make(map[string][]inbound),
			wake:   make(chan struct{}),
		}
		routers[t] = r
	}
	r.users++
	return r
}

// release drops the router once no session uses it and no opening waits.
func (r *router) release() {
	routersMu.Lock()
	defer routersMu.Unlock()
	r.users--
	r.mu.Lock()
	idle := r.users == 0 && len(r.openings) == 0
	r.mu.Unlock()
	if idle && routers[r.t] == r {
		delete(routers, r.t)
	}
}

func (r *router) join(session string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.queues[session]; !ok {
		r.queues[session] = nil
	}
}

func (r *router) leave(session string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.queues, session)
}

// nextInSession returns the next message of a joined session.
func (r *router) nextInSession(ctx context.Context, session string) (inbound, error) {
	return r.next(ctx, func() (inbound, bool) {
		q := r.queues[session]
		if len(q) == 0 {
			return inbound{}, false
		}
		r.queues[session] = q[1:]
		return q[0], true
	})
}

// nextOpening takes the oldest queued opening of type typ from peer and joins
// its session.
func (r *router) nextOpening(ctx context.Context, peer PartyID, typ string) (inbound, error) {
	return r.next(ctx, func() (inbound, bool) {
		for i, in := range r.openings {
			if in.from != peer || in.env.Type != typ {
				continue
			}
			r.openings = append(r.openings[:i:i], r.openings[i+1:]...)
			r.queues[in.env.Session] = nil
			return in, true
		}
		return inbound{}, false
	})
}

// next runs take under r.mu until it yields a message, receiving from the
// transport when no other session is already doing so.
func (r *router) next(ctx context.Context, take func() (inbound, bool)) (inbound, error) {
	for {
		r.mu.Lock()
		if in, ok := take(); ok {
			r.mu.Unlock()
			return in, nil
		}
		if !r.receiving {
			r.receiving = true
			r.mu.Unlock()

			from, payload, err := r.t.Receive(ctx)

			r.mu.Lock()
			r.receiving = false
			if err == nil {
				r.dispatch(from, payload)
			}
			close(r.wake)
			r.wake = make(chan struct{})
			r.mu.Unlock()
			if err != nil {
				return inbound{}, err
			}
			continue
		}
		wake := r.wake
		r.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			return inbound{}, fmt.Errorf("%w: receive: %w", ErrTransport, ctx.Err())
		}
	}
}

// dispatch files one payload. Called with r.mu held.
func (r *router) dispatch(from PartyID, payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		r.logger.Warn("dropping undecodable message", zap.Error(err))
		return
	}
	in := inbound{from: from, env: &env}

	if q, ok := r.queues[env.Session]; ok {
		r.queues[env.Session] = append(q, in)
		return
	}
	switch env.Type {
	case msgSign1, msgKeygen1:
		if env.Session == "" {
			break
		}
		if len(r.openings) == maxOpenings {
			r.logger.Warn("opening queue full, dropping oldest",
				zap.String("session", r.openings[0].env.Session))
			r.openings = r.openings[1:]
		}
		r.openings = append(r.openings, in)
		return
	case msgAbort:
		// The peer gave up on a session before it was joined.
		for i, o := range r.openings {
			if o.from == from && o.env.Session == env.Session {
				r.openings = append(r.openings[:i:i], r.openings[i+1:]...)
				break
			}
		}
	}
	r.logger.Debug("dropping stale message",
		zap.String("session", env.Session), zap.String("type", env.Type))
}
