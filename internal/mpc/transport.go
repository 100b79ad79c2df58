// Package mpc implements two-party threshold ECDSA over secp256k1. Neither
// party ever holds the full private key: the initiator and the cosigner each
// keep a multiplicative share and exchange messages over a Transport to
// produce ordinary DER signatures under the joint public key.
//
// The protocol follows Lindell's 2017 two-party construction with a Paillier
// encrypted share. It assumes semi-honest parties and omits the zero-knowledge
// proofs of the full protocol.
package mpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// PartyID identifies a participant on a Transport.
type PartyID uint16

// Errors returned by protocol runs.
var (
	// ErrTransport wraps failures to deliver or receive a message.
	ErrTransport = errors.New("mpc transport failure")
	// ErrProtocol reports a malformed or unexpected message from the peer.
	ErrProtocol = errors.New("mpc protocol violation")
	// ErrAborted is returned when the peer aborted the session.
	ErrAborted = errors.New("mpc session aborted by peer")
)

// Transport moves opaque payloads between parties. Implementations must be
// safe for concurrent use and comparable; a single Transport is shared by
// every signer and cosigner of one party, and the sessions on it are told
// apart by a router keyed on the Transport value.
type Transport interface {
	PartyID() PartyID
	Send(ctx context.Context, to PartyID, payload []byte) error
	Receive(ctx context.Context) (PartyID, []byte, error)
}

const memoryInboxSize = 64

type memoryMessage struct {
	from    PartyID
	payload []byte
}

// MemoryNetwork connects in-process parties through buffered channels.
type MemoryNetwork struct {
	mu         sync.Mutex
	inboxes    map[PartyID]chan memoryMessage
	transports map[PartyID]*MemoryTransport
}

func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{
		inboxes:    make(map[PartyID]chan memoryMessage),
		transports: make(map[PartyID]*MemoryTransport),
	}
}

// Join registers id on the network and returns its transport. Joining twice
// with the same id returns the same transport.
func (n *MemoryNetwork) Join(id PartyID) *MemoryTransport {
	n.mu.Lock()
	defer n.mu.Unlock()
	if t, ok := n.transports[id]; ok {
		return t
	}
	n.inboxes[id] = make(chan memoryMessage, memoryInboxSize)
	t := &MemoryTransport{id: id, net: n}
	n.transports[id] = t
	return t
}

func (n *MemoryNetwork) inbox(id PartyID) (chan memoryMessage, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	ch, ok := n.inboxes[id]
	return ch, ok
}

// MemoryTransport is one party's endpoint on a MemoryNetwork.
type MemoryTransport struct {
	id  PartyID
	net *MemoryNetwork
}

var _ Transport = (*MemoryTransport)(nil)

func (t *MemoryTransport) PartyID() PartyID { return t.id }

func (t *MemoryTransport) Send(ctx context.Context, to PartyID, payload []byte) error {
	ch, ok := t.net.inbox(to)
	if !ok {
		return fmt.Errorf("%w: party %d not on network", ErrTransport, to)
	}
	msg := memoryMessage{from: t.id, payload: append([]byte(nil), payload...)}
	select {
	case ch <- msg:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: send to %d: %w", ErrTransport, to, ctx.Err())
	}
}

func (t *MemoryTransport) Receive(ctx context.Context) (PartyID, []byte, error) {
	ch, _ := t.net.inbox(t.id)
	select {
	case msg := <-ch:
		return msg.from, msg.payload, nil
	case <-ctx.Done():
		return 0, nil, fmt.Errorf("%w: receive: %w", ErrTransport, ctx.Err())
	}
}
