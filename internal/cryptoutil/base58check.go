package cryptoutil

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/base58"
)

// ErrChecksum is returned when a Base58Check string carries a checksum that does
// not match its payload.
var ErrChecksum = errors.New("base58check: checksum mismatch")

// ErrInvalidFormat is returned for strings that are not valid Base58 or are too
// short to contain a version byte and checksum.
var ErrInvalidFormat = errors.New("base58check: invalid format")

// Checksum returns the first four bytes of DoubleSha256(data).
func Checksum(data []byte) [4]byte {
	var cs [4]byte
	sum := DoubleSha256(data)
	copy(cs[:], sum[:4])
	return cs
}

// Base58CheckEncode encodes version || payload || checksum in Base58.
func Base58CheckEncode(version byte, payload []byte) string {
	return base58.CheckEncode(payload, version)
}

// Base58CheckDecode reverses Base58CheckEncode and verifies the checksum.
func Base58CheckDecode(s string) (byte, []byte, error) {
	payload, version, err := base58.CheckDecode(s)
	switch {
	case errors.Is(err, base58.ErrChecksum):
		return 0, nil, ErrChecksum
	case err != nil:
		return 0, nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	return version, payload, nil
}
