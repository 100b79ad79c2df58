package wallet

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"

	"github.com/olehkaliuzhnyi/flow-wallet/internal/cryptoutil"
)

// UTXOChain is a Bitcoin-derived chain using P2PKH addresses:
// Base58Check(version || HASH160(compressed pubkey)).
//
// Envelopes are Blockcypher transaction skeletons created with
// includeToSignTx=true: "tosign" holds the per-input signature hashes and
// "tosign_tx" their preimages.
type UTXOChain struct {
	Name    string
	Version byte
}

// UTXO chain descriptors.
var (
	Bitcoin         = UTXOChain{Name: "bitcoin", Version: 0x00}
	BitcoinTestnet  = UTXOChain{Name: "bitcoin-testnet", Version: 0x6f}
	Litecoin        = UTXOChain{Name: "litecoin", Version: 0x30}
	LitecoinTestnet = UTXOChain{Name: "litecoin-testnet", Version: 0x6f}
)

var _ Chain = UTXOChain{}

func (c UTXOChain) ID() string { return c.Name }

// AddressFromPubKey accepts compressed or uncompressed SEC1 keys; the address
// always commits to the compressed form.
func (c UTXOChain) AddressFromPubKey(pub []byte) (string, error) {
	key, err := btcec.ParsePubKey(pub)
	if err != nil {
		return "", &ChainError{Kind: ChainInvalidPublicKey, Chain: c.Name, Err: err}
	}
	h := cryptoutil.Hash160(key.SerializeCompressed())
	return cryptoutil.Base58CheckEncode(c.Version, h[:]), nil
}

type utxoSigningFields struct {
	ToSign   []string `json:"tosign"`
	ToSignTx []string `json:"tosign_tx"`
}

// PrepareTransaction returns SHA-256(tosign_tx[i]) for every input. Signer.Sign
// hashes once more, so the signed digest is the network sighash tosign[i];
// each pair is checked for that relation.
func (c UTXOChain) PrepareTransaction(envelope []byte) ([][]byte, error) {
	digests, preimages, err := c.signingFields(envelope)
	if err != nil {
		return nil, err
	}
	if len(preimages) != len(digests) {
		return nil, c.envelopeErr(fmt.Sprintf("tosign_tx has %d entries for %d tosign digests", len(preimages), len(digests)), nil)
	}

	out := make([][]byte, len(digests))
	for i := range digests {
		inner := sha256.Sum256(preimages[i])
		outer := sha256.Sum256(inner[:])
		if !bytes.Equal(outer[:], digests[i]) {
			return nil, c.envelopeErr(fmt.Sprintf("tosign_tx[%d] does not hash to tosign[%d]", i, i), nil)
		}
		out[i] = inner[:]
	}
	return out, nil
}

// FinalizeTransaction sets "signatures" (DER hex) and "pubkeys" (the same
// compressed key for every input). Each signature must verify against its
// tosign digest.
func (c UTXOChain) FinalizeTransaction(envelope []byte, sigs [][]byte, pub []byte) ([]byte, error) {
	digests, _, err := c.signingFields(envelope)
	if err != nil {
		return nil, err
	}
	if len(sigs) != len(digests) {
		return nil, c.envelopeErr(fmt.Sprintf("got %d signatures for %d digests", len(sigs), len(digests)), nil)
	}
	key, err := btcec.ParsePubKey(pub)
	if err != nil {
		return nil, &ChainError{Kind: ChainInvalidPublicKey, Chain: c.Name, Err: err}
	}

	sigHex := make([]string, len(sigs))
	pubHex := make([]string, len(sigs))
	compressed := hex.EncodeToString(key.SerializeCompressed())
	for i, sig := range sigs {
		parsed, err := ecdsa.ParseDERSignature(sig)
		if err != nil {
			return nil, c.envelopeErr(fmt.Sprintf("signature %d is not DER", i), err)
		}
		if !parsed.Verify(digests[i], key) {
			return nil, c.envelopeErr(fmt.Sprintf("signature %d does not verify against tosign[%d]", i, i), nil)
		}
		sigHex[i] = hex.EncodeToString(sig)
		pubHex[i] = compressed
	}

	doc, err := decodeEnvelope(envelope)
	if err != nil {
		return nil, c.envelopeErr("decode envelope", err)
	}
	if doc["signatures"], err = json.Marshal(sigHex); err != nil {
		return nil, c.envelopeErr("encode signatures", err)
	}
	if doc["pubkeys"], err = json.Marshal(pubHex); err != nil {
		return nil, c.envelopeErr("encode pubkeys", err)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, c.envelopeErr("encode envelope", err)
	}
	return out, nil
}

func (c UTXOChain) signingFields(envelope []byte) (digests, preimages [][]byte, err error) {
	var f utxoSigningFields
	if err := json.Unmarshal(envelope, &f); err != nil {
		return nil, nil, c.envelopeErr("decode envelope", err)
	}
	if len(f.ToSign) == 0 {
		return nil, nil, c.envelopeErr("envelope has no tosign digests", nil)
	}

	digests = make([][]byte, len(f.ToSign))
	for i, s := range f.ToSign {
		d, err := hex.DecodeString(s)
		if err != nil || len(d) != sha256.Size {
			return nil, nil, c.envelopeErr(fmt.Sprintf("tosign[%d] is not a 32-byte hex digest", i), err)
		}
		digests[i] = d
	}

	preimages = make([][]byte, len(f.ToSignTx))
	for i, s := range f.ToSignTx {
		p, err := hex.DecodeString(s)
		if err != nil || len(p) == 0 {
			return nil, nil, c.envelopeErr(fmt.Sprintf("tosign_tx[%d] is not hex", i), err)
		}
		preimages[i] = p
	}
	return digests, preimages, nil
}

func (c UTXOChain) envelopeErr(msg string, err error) *ChainError {
	return &ChainError{Kind: ChainOther, Chain: c.Name, Msg: msg, Err: err}
}

// decodeEnvelope keeps every provider field so finalize only adds to it.
func decodeEnvelope(envelope []byte) (map[string]json.RawMessage, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(envelope, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("envelope is not a JSON object")
	}
	return doc, nil
}
