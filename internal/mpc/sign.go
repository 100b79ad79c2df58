package mpc

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"math/big"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const blindLen = 32

var errSignerDestroyed = errors.New("mpc signer destroyed")

// Signer is the initiator side of two-party signing. It satisfies the wallet
// Signer capability: Sign hashes msg with SHA-256 and returns a DER signature
// valid under the joint public key.
type Signer struct {
	mu    sync.Mutex
	share *KeyShare
	t     Transport
	pub   *btcec.PublicKey
	opts  options
}

// NewSigner binds an initiator share to the transport shared with the
// cosigner. The signer takes ownership of share.
func NewSigner(share *KeyShare, t Transport, opts ...Option) (*Signer, error) {
	if err := share.validate(RoleInitiator); err != nil {
		return nil, fmt.Errorf("new signer: %w", err)
	}
	pub, _ := btcec.ParsePubKey(share.PublicKey)
	return &Signer{share: share, t: t, pub: pub, opts: newOptions(opts)}, nil
}

// PublicKey returns the compressed joint public key.
func (s *Signer) PublicKey() []byte { return s.pub.SerializeCompressed() }

// Destroy wipes the signer's share.
func (s *Signer) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.share.Destroy()
}

// Sign runs one signing session. Sessions on a Signer are serialised.
//
//	initiator -> cosigner  sign/1  msg, commit = H(session || R1 || blind)
//	cosigner  -> initiator sign/2  R2 = k2*G
//	initiator -> cosigner  sign/3  R1 = k1*G, blind
//	cosigner  -> initiator sign/4  Enc(rho*n + k2^-1*z) * Enc(x1)^(k2^-1*r*x2)
func (s *Signer) Sign(ctx context.Context, msg []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.share.Share.Destroyed() || s.share.Paillier.Destroyed() {
		return nil, errSignerDestroyed
	}
	ch := newChannel(s.t, s.share.Peer, uuid.NewString(), s.opts.logger)
	defer ch.close()
	log := s.opts.logger.With(zap.String("session", ch.session))

	sig, err := s.sign(ctx, ch, msg)
	if err != nil {
		log.Warn("signing session failed", zap.Error(err))
		return nil, failSession(ctx, ch, err)
	}
	log.Debug("signing session complete")
	return sig, nil
}

func (s *Signer) sign(ctx context.Context, ch *channel, msg []byte) ([]byte, error) {
	random := s.opts.random

	k1, err := randomScalar(random)
	if err != nil {
		return nil, err
	}
	defer k1.Zero()

	r1 := baseMult(k1).SerializeCompressed()
	blind, err := randomBytes(random, blindLen)
	if err != nil {
		return nil, err
	}
	if err := ch.send(ctx, msgSign1, sign1{Message: msg, Commit: commitment(ch.session, r1, blind)}); err != nil {
		return nil, err
	}

	var m2 sign2
	if err := ch.expect(ctx, msgSign2, &m2); err != nil {
		return nil, err
	}
	r2, err := btcec.ParsePubKey(m2.R2)
	if err != nil {
		return nil, fmt.Errorf("%w: cosigner nonce point: %v", ErrProtocol, err)
	}

	if err := ch.send(ctx, msgSign3, sign3{R1: r1, Blind: blind}); err != nil {
		return nil, err
	}

	var m4 sign4
	if err := ch.expect(ctx, msgSign4, &m4); err != nil {
		return nil, err
	}

	sk, err := s.share.paillierKey()
	if err != nil {
		return nil, err
	}
	defer sk.wipe()
	if !sk.validCiphertext(m4.C3) {
		return nil, fmt.Errorf("%w: invalid partial signature ciphertext", ErrProtocol)
	}

	nonce, err := pointMult(k1, r2)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	r := xModN(nonce)
	if r.IsZero() {
		return nil, fmt.Errorf("%w: zero r", ErrProtocol)
	}

	plain, err := sk.decrypt(m4.C3)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	sPrime := bigToScalar(plain)
	var k1Inv btcec.ModNScalar
	k1Inv.InverseValNonConst(k1)
	sScalar := new(btcec.ModNScalar).Mul2(&k1Inv, &sPrime)
	k1Inv.Zero()
	if sScalar.IsZero() {
		return nil, fmt.Errorf("%w: zero s", ErrProtocol)
	}

	// Serialize normalises s to the lower half of the order.
	sig := ecdsa.NewSignature(&r, sScalar)
	digest := sha256.Sum256(msg)
	if !sig.Verify(digest[:], s.pub) {
		return nil, fmt.Errorf("%w: combined signature does not verify under the joint key", ErrProtocol)
	}
	return sig.Serialize(), nil
}

// Cosigner answers signing sessions for a cosigner share.
type Cosigner struct {
	share *KeyShare
	t     Transport
	opts  options
}

// NewCosigner binds a cosigner share to the transport. The cosigner takes
// ownership of share.
func NewCosigner(share *KeyShare, t Transport, opts ...Option) (*Cosigner, error) {
	if err := share.validate(RoleCosigner); err != nil {
		return nil, fmt.Errorf("new cosigner: %w", err)
	}
	return &Cosigner{share: share, t: t, opts: newOptions(opts)}, nil
}

// PublicKey returns the compressed joint public key.
func (c *Cosigner) PublicKey() []byte { return append([]byte(nil), c.share.PublicKey...) }

// Destroy wipes the cosigner's share.
func (c *Cosigner) Destroy() { c.share.Destroy() }

// Serve handles sessions one at a time until ctx is done or the transport
// fails. A failed or rejected session is aborted and serving continues.
func (c *Cosigner) Serve(ctx context.Context) error {
	for {
		err := c.ServeOne(ctx)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case err == nil:
		case errors.Is(err, ErrTransport):
			return err
		default:
			c.opts.logger.Warn("signing session failed", zap.Error(err))
		}
	}
}

// ServeOne waits for the next sign request and completes that session.
func (c *Cosigner) ServeOne(ctx context.Context) error {
	ch := newChannel(c.t, c.share.Peer, "", c.opts.logger)
	defer ch.close()
	if err := c.serve(ctx, ch); err != nil {
		return failSession(ctx, ch, err)
	}
	c.opts.logger.Debug("signing session complete", zap.String("session", ch.session))
	return nil
}

func (c *Cosigner) serve(ctx context.Context, ch *channel) error {
	random := c.opts.random

	var m1 sign1
	if err := ch.accept(ctx, msgSign1, &m1); err != nil {
		return err
	}
	if len(m1.Commit) != sha256.Size {
		return fmt.Errorf("%w: malformed nonce commitment", ErrProtocol)
	}
	if c.opts.approve != nil {
		if err := c.opts.approve(ctx, m1.Message); err != nil {
			return fmt.Errorf("request rejected: %w", err)
		}
	}

	k2, err := randomScalar(random)
	if err != nil {
		return err
	}
	defer k2.Zero()

	if err := ch.send(ctx, msgSign2, sign2{R2: baseMult(k2).SerializeCompressed()}); err != nil {
		return err
	}

	var m3 sign3
	if err := ch.expect(ctx, msgSign3, &m3); err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(commitment(ch.session, m3.R1, m3.Blind), m1.Commit) != 1 {
		return fmt.Errorf("%w: nonce does not match commitment", ErrProtocol)
	}
	r1, err := btcec.ParsePubKey(m3.R1)
	if err != nil {
		return fmt.Errorf("%w: initiator nonce point: %v", ErrProtocol, err)
	}

	nonce, err := pointMult(k2, r1)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	r := xModN(nonce)
	if r.IsZero() {
		return fmt.Errorf("%w: zero r", ErrProtocol)
	}

	c3, err := c.partialSignature(random, k2, &r, m1.Message)
	if err != nil {
		return err
	}
	return ch.send(ctx, msgSign4, sign4{C3: c3})
}

// partialSignature computes Enc(rho*n + k2^-1*z) * Enc(x1)^(k2^-1*r*x2) with
// rho uniform in [0, n^2) masking the result mod n.
func (c *Cosigner) partialSignature(random io.Reader, k2, r *btcec.ModNScalar, msg []byte) (*big.Int, error) {
	x2, err := c.share.scalar()
	if err != nil {
		return nil, err
	}
	defer x2.Zero()

	digest := sha256.Sum256(msg)
	var z btcec.ModNScalar
	z.SetByteSlice(digest[:])

	var k2Inv btcec.ModNScalar
	k2Inv.InverseValNonConst(k2)
	defer k2Inv.Zero()

	var masked btcec.ModNScalar
	masked.Mul2(&k2Inv, &z)

	var v btcec.ModNScalar
	v.Mul2(&k2Inv, r).Mul(x2)
	defer v.Zero()

	n2 := new(big.Int).Mul(curveN, curveN)
	rho, err := rand.Int(random, n2)
	if err != nil {
		return nil, fmt.Errorf("read randomness: %w", err)
	}
	plain := rho.Mul(rho, curveN)
	plain.Add(plain, scalarToBig(&masked))

	pk := newPaillierPublicKey(c.share.PaillierN)
	c1, err := pk.encrypt(random, plain)
	if err != nil {
		return nil, err
	}
	c2 := pk.mul(c.share.EncryptedShare, scalarToBig(&v))
	return pk.add(c1, c2), nil
}

func commitment(session string, point, blind []byte) []byte {
	h := sha256.New()
	h.Write([]byte(session))
	h.Write(point)
	h.Write(blind)
	return h.Sum(nil)
}
