package wallet

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"

	"github.com/olehkaliuzhnyi/flow-wallet/internal/cryptoutil"
)

// TVMChain is a Tron-style account chain. Addresses are
// Base58Check(prefix || Keccak256(uncompressed pubkey without 0x04)[12:]).
//
// Envelopes are TronGrid transactions: "raw_data_hex" is the serialized
// transaction and "txID" its SHA-256.
type TVMChain struct {
	Name   string
	Prefix byte
}

// TVM chain descriptors. Tron testnets share the mainnet prefix.
var (
	Tron     = TVMChain{Name: "tron", Prefix: 0x41}
	TronNile = TVMChain{Name: "tron-nile", Prefix: 0x41}
)

var _ Chain = TVMChain{}

func (c TVMChain) ID() string { return c.Name }

func (c TVMChain) AddressFromPubKey(pub []byte) (string, error) {
	key, err := btcec.ParsePubKey(pub)
	if err != nil {
		return "", &ChainError{Kind: ChainInvalidPublicKey, Chain: c.Name, Err: err}
	}

	uncompressed := key.SerializeUncompressed()
	if len(uncompressed) != uncompressedPubKeyLen || uncompressed[0] != 0x04 {
		return "", &ChainError{Kind: ChainDerivation, Chain: c.Name, Msg: "unexpected uncompressed key format"}
	}

	h := cryptoutil.Keccak256(uncompressed[1:])
	return cryptoutil.Base58CheckEncode(c.Prefix, h[12:]), nil
}

const uncompressedPubKeyLen = 65

type tvmSigningFields struct {
	TxID       string `json:"txID"`
	RawDataHex string `json:"raw_data_hex"`
}

// PrepareTransaction returns the serialized raw_data. Signer.Sign hashes it
// with SHA-256, which yields the txID Tron signs over.
func (c TVMChain) PrepareTransaction(envelope []byte) ([][]byte, error) {
	raw, _, err := c.signingFields(envelope)
	if err != nil {
		return nil, err
	}
	return [][]byte{raw}, nil
}

// FinalizeTransaction converts the DER signature into Tron's 65-byte
// r || s || v form and sets "signature".
func (c TVMChain) FinalizeTransaction(envelope []byte, sigs [][]byte, pub []byte) ([]byte, error) {
	_, txID, err := c.signingFields(envelope)
	if err != nil {
		return nil, err
	}
	if len(sigs) != 1 {
		return nil, c.envelopeErr(fmt.Sprintf("got %d signatures for 1 digest", len(sigs)), nil)
	}
	key, err := btcec.ParsePubKey(pub)
	if err != nil {
		return nil, &ChainError{Kind: ChainInvalidPublicKey, Chain: c.Name, Err: err}
	}

	rsv, err := recoverableSignature(sigs[0], txID, key)
	if err != nil {
		return nil, c.envelopeErr("signature 0", err)
	}

	doc, err := decodeEnvelope(envelope)
	if err != nil {
		return nil, c.envelopeErr("decode envelope", err)
	}
	if doc["signature"], err = json.Marshal([]string{hex.EncodeToString(rsv)}); err != nil {
		return nil, c.envelopeErr("encode signature", err)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, c.envelopeErr("encode envelope", err)
	}
	return out, nil
}

func (c TVMChain) signingFields(envelope []byte) (raw, txID []byte, err error) {
	var f tvmSigningFields
	if err := json.Unmarshal(envelope, &f); err != nil {
		return nil, nil, c.envelopeErr("decode envelope", err)
	}
	if f.RawDataHex == "" {
		return nil, nil, c.envelopeErr("envelope has no raw_data_hex", nil)
	}
	raw, err = hex.DecodeString(f.RawDataHex)
	if err != nil {
		return nil, nil, c.envelopeErr("raw_data_hex is not hex", err)
	}
	txID, err = hex.DecodeString(f.TxID)
	if err != nil || len(txID) != sha256.Size {
		return nil, nil, c.envelopeErr("txID is not a 32-byte hex hash", err)
	}
	if sum := sha256.Sum256(raw); !bytes.Equal(sum[:], txID) {
		return nil, nil, c.envelopeErr("txID does not match raw_data_hex", nil)
	}
	return raw, txID, nil
}

func (c TVMChain) envelopeErr(msg string, err error) *ChainError {
	return &ChainError{Kind: ChainOther, Chain: c.Name, Msg: msg, Err: err}
}

// recoverableSignature finds the recovery id for a DER signature over hash by
// public key recovery and returns r || s || (27 + recid).
func recoverableSignature(der, hash []byte, key *btcec.PublicKey) ([]byte, error) {
	r, s, err := parseDERSignature(der)
	if err != nil {
		return nil, err
	}

	// Compact form: header (27 + recid + 4 for compressed) || r || s.
	compact := make([]byte, 65)
	r.FillBytes(compact[1:33])
	s.FillBytes(compact[33:65])

	for recID := byte(0); recID < 2; recID++ {
		compact[0] = 27 + 4 + recID
		recovered, _, err := ecdsa.RecoverCompact(compact, hash)
		if err != nil || !recovered.IsEqual(key) {
			continue
		}
		out := make([]byte, 65)
		copy(out, compact[1:])
		out[64] = 27 + recID
		return out, nil
	}
	return nil, fmt.Errorf("signature does not recover to the signing key")
}

// parseDERSignature decodes SEQUENCE { r INTEGER, s INTEGER }.
func parseDERSignature(der []byte) (r, s *big.Int, err error) {
	r, s = new(big.Int), new(big.Int)
	input := cryptobyte.String(der)
	var inner cryptobyte.String
	if !input.ReadASN1(&inner, asn1.SEQUENCE) ||
		!input.Empty() ||
		!inner.ReadASN1Integer(r) ||
		!inner.ReadASN1Integer(s) ||
		!inner.Empty() {
		return nil, nil, fmt.Errorf("malformed DER signature")
	}
	if r.Sign() <= 0 || s.Sign() <= 0 || r.BitLen() > 256 || s.BitLen() > 256 {
		return nil, nil, fmt.Errorf("signature scalar out of range")
	}
	return r, s, nil
}
