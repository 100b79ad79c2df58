package mpc

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// LocalParties is the result of an in-process keygen.
type LocalParties struct {
	Network            *MemoryNetwork
	InitiatorTransport *MemoryTransport
	CosignerTransport  *MemoryTransport
	Initiator          *KeyShare
	Cosigner           *KeyShare
}

// RunLocalKeygen runs both parties of Keygen concurrently over a fresh
// MemoryNetwork.
func RunLocalKeygen(ctx context.Context, opts ...Option) (*LocalParties, error) {
	net := NewMemoryNetwork()
	lp := &LocalParties{
		Network:            net,
		InitiatorTransport: net.Join(InitiatorID),
		CosignerTransport:  net.Join(CosignerID),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		share, err := Keygen(gctx, lp.InitiatorTransport, CosignerID, RoleInitiator, opts...)
		lp.Initiator = share
		return err
	})
	g.Go(func() error {
		share, err := Keygen(gctx, lp.CosignerTransport, InitiatorID, RoleCosigner, opts...)
		lp.Cosigner = share
		return err
	})
	if err := g.Wait(); err != nil {
		lp.Destroy()
		return nil, err
	}
	return lp, nil
}

// Destroy wipes both shares.
func (lp *LocalParties) Destroy() {
	if lp.Initiator != nil {
		lp.Initiator.Destroy()
	}
	if lp.Cosigner != nil {
		lp.Cosigner.Destroy()
	}
}
