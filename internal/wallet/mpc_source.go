package wallet

import (
	"context"
	"fmt"

	"github.com/olehkaliuzhnyi/flow-wallet/internal/mpc"
)

var (
	_ KeySource = (*MpcKeySource)(nil)
	_ Signer    = (*mpc.Signer)(nil)
)

// MpcKeySource hands out threshold signers for one initiator key share. The
// share holds a single joint key, so the path is validated but does not
// select a key.
type MpcKeySource struct {
	share     *mpc.KeyShare
	transport mpc.Transport
	opts      []mpc.Option
}

// NewMpcKeySource keeps share and the transport shared with the cosigner.
func NewMpcKeySource(share *mpc.KeyShare, transport mpc.Transport, opts ...mpc.Option) *MpcKeySource {
	return &MpcKeySource{share: share, transport: transport, opts: opts}
}

// DeriveSigner returns an mpc.Signer over a copy of the share. Destroying the
// signer does not affect the source.
func (s *MpcKeySource) DeriveSigner(ctx context.Context, path string) (Signer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := ParseDerivationPath(path); err != nil {
		return nil, err
	}
	signer, err := mpc.NewSigner(s.share.Clone(), s.transport, s.opts...)
	if err != nil {
		return nil, derivationErr("mpc share", fmt.Errorf("%w: %v", ErrSigningUnavailable, err))
	}
	return signer, nil
}

// Destroy wipes the source's share.
func (s *MpcKeySource) Destroy() { s.share.Destroy() }
