// Package cryptoutil holds the hash primitives and encodings used for key and
// address derivation.
package cryptoutil

import (
	"crypto/sha256"

	"golang.org/x/crypto/sha3"
)

// Sha256 returns SHA-256(data).
func Sha256(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// DoubleSha256 returns SHA-256(SHA-256(data)), used for Base58Check checksums
// and Bitcoin-style signature hashes.
func DoubleSha256(data []byte) [32]byte {
	first := sha256.Sum256(data)
	return sha256.Sum256(first[:])
}

// Keccak256 returns the legacy (pre-NIST) Keccak-256 digest used by TVM chains.
func Keccak256(data []byte) [32]byte {
	var out [32]byte
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	h.Sum(out[:0])
	return out
}

// Hash160 returns RIPEMD-160(SHA-256(data)).
func Hash160(data []byte) [Ripemd160Size]byte {
	sha := sha256.Sum256(data)
	return Ripemd160(sha[:])
}
