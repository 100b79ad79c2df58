package mpc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/olehkaliuzhnyi/flow-wallet/internal/secret"
)

// Keygen runs distributed key generation with peer over t. Both parties end
// with the same joint public key and neither learns the other's share.
//
//	initiator -> cosigner  keygen/1  Q1 = x1*G, Paillier N, Enc(x1)
//	cosigner  -> initiator keygen/2  Q2 = x2*G, Q = x2*Q1
//	initiator -> cosigner  keygen/3  Q = x1*Q2
func Keygen(ctx context.Context, t Transport, peer PartyID, role Role, opts ...Option) (*KeyShare, error) {
	o := newOptions(opts)
	switch role {
	case RoleInitiator:
		return keygenInitiator(ctx, t, peer, o)
	case RoleCosigner:
		return keygenCosigner(ctx, t, peer, o)
	default:
		return nil, fmt.Errorf("keygen: unknown role %q", role)
	}
}

func keygenInitiator(ctx context.Context, t Transport, peer PartyID, o options) (*KeyShare, error) {
	ch := newChannel(t, peer, uuid.NewString(), o.logger)
	defer ch.close()
	log := o.logger.With(zap.String("session", ch.session), zap.String("role", string(RoleInitiator)))

	x1, err := randomScalar(o.random)
	if err != nil {
		return nil, err
	}
	defer x1.Zero()

	sk, err := generatePaillier(o.random, o.paillierBits)
	if err != nil {
		return nil, fmt.Errorf("keygen: %w", err)
	}
	defer sk.wipe()

	ckey, err := sk.encrypt(o.random, scalarToBig(x1))
	if err != nil {
		return nil, fmt.Errorf("keygen: %w", err)
	}

	q1 := baseMult(x1)
	if err := ch.send(ctx, msgKeygen1, keygen1{Q1: q1.SerializeCompressed(), N: sk.N, CKey: ckey}); err != nil {
		return nil, err
	}
	log.Debug("keygen started", zap.Int("paillier_bits", sk.N.BitLen()))

	var m2 keygen2
	if err := ch.expect(ctx, msgKeygen2, &m2); err != nil {
		return nil, failSession(ctx, ch, err)
	}
	q2, err := btcec.ParsePubKey(m2.Q2)
	if err != nil {
		return nil, failSession(ctx, ch, fmt.Errorf("%w: cosigner point: %v", ErrProtocol, err))
	}
	q, err := pointMult(x1, q2)
	if err != nil {
		return nil, failSession(ctx, ch, fmt.Errorf("%w: %v", ErrProtocol, err))
	}
	joint := q.SerializeCompressed()
	if !bytes.Equal(joint, m2.Q) {
		return nil, failSession(ctx, ch, fmt.Errorf("%w: parties disagree on the joint public key", ErrProtocol))
	}
	if err := ch.send(ctx, msgKeygen3, keygen3{Q: joint}); err != nil {
		return nil, err
	}

	x1b := x1.Bytes()
	share := &KeyShare{
		Role:      RoleInitiator,
		Self:      t.PartyID(),
		Peer:      peer,
		PublicKey: joint,
		Share:     secret.New(x1b[:]),
		PaillierN: new(big.Int).Set(sk.N),
		Paillier:  secret.New(sk.marshal()),
	}
	log.Info("keygen complete")
	return share, nil
}

func keygenCosigner(ctx context.Context, t Transport, peer PartyID, o options) (*KeyShare, error) {
	ch := newChannel(t, peer, "", o.logger)
	defer ch.close()

	var m1 keygen1
	if err := ch.accept(ctx, msgKeygen1, &m1); err != nil {
		return nil, failSession(ctx, ch, err)
	}
	log := o.logger.With(zap.String("session", ch.session), zap.String("role", string(RoleCosigner)))

	if m1.N == nil || m1.N.BitLen() < MinPaillierBits {
		return nil, failSession(ctx, ch, fmt.Errorf("%w: paillier modulus below %d bits", ErrProtocol, MinPaillierBits))
	}
	pk := newPaillierPublicKey(m1.N)
	if !pk.validCiphertext(m1.CKey) {
		return nil, failSession(ctx, ch, fmt.Errorf("%w: invalid encrypted share", ErrProtocol))
	}
	q1, err := btcec.ParsePubKey(m1.Q1)
	if err != nil {
		return nil, failSession(ctx, ch, fmt.Errorf("%w: initiator point: %v", ErrProtocol, err))
	}

	x2, err := randomScalar(o.random)
	if err != nil {
		return nil, failSession(ctx, ch, err)
	}
	defer x2.Zero()

	q, err := pointMult(x2, q1)
	if err != nil {
		return nil, failSession(ctx, ch, fmt.Errorf("%w: %v", ErrProtocol, err))
	}
	joint := q.SerializeCompressed()
	if err := ch.send(ctx, msgKeygen2, keygen2{Q2: baseMult(x2).SerializeCompressed(), Q: joint}); err != nil {
		return nil, err
	}

	var m3 keygen3
	if err := ch.expect(ctx, msgKeygen3, &m3); err != nil {
		return nil, failSession(ctx, ch, err)
	}
	if !bytes.Equal(m3.Q, joint) {
		return nil, failSession(ctx, ch, fmt.Errorf("%w: parties disagree on the joint public key", ErrProtocol))
	}

	x2b := x2.Bytes()
	share := &KeyShare{
		Role:           RoleCosigner,
		Self:           t.PartyID(),
		Peer:           peer,
		PublicKey:      joint,
		Share:          secret.New(x2b[:]),
		PaillierN:      new(big.Int).Set(m1.N),
		EncryptedShare: new(big.Int).Set(m1.CKey),
	}
	log.Info("keygen complete")
	return share, nil
}

// failSession notifies the peer unless it already gave up, and returns err.
func failSession(ctx context.Context, ch *channel, err error) error {
	if ch.session != "" && !errors.Is(err, ErrAborted) {
		ch.abort(ctx, err)
	}
	return err
}
