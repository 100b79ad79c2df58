package cryptoutil

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	xripemd160 "golang.org/x/crypto/ripemd160" //nolint:staticcheck // cross-check only
)

func TestDigests_KnownVectors(t *testing.T) {
	tests := []struct {
		name string
		fn   func([]byte) []byte
		in   string
		want string
	}{
		{"sha256 empty", func(b []byte) []byte { h := Sha256(b); return h[:] }, "",
			"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
		{"sha256 abc", func(b []byte) []byte { h := Sha256(b); return h[:] }, "abc",
			"ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
		{"double sha256 empty", func(b []byte) []byte { h := DoubleSha256(b); return h[:] }, "",
			"5df6e0e2761359d30a8275058e299fcc0381534545f55cf43e41983f5d4c9456"},
		{"double sha256 abc", func(b []byte) []byte { h := DoubleSha256(b); return h[:] }, "abc",
			"4f8b42c22dd3729b519ba6f68d2da7cc5b2d606d05daed5ad5128cc03e6c6358"},
		{"keccak256 empty", func(b []byte) []byte { h := Keccak256(b); return h[:] }, "",
			"c5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470"},
		{"keccak256 abc", func(b []byte) []byte { h := Keccak256(b); return h[:] }, "abc",
			"4e03657aea45a94fc7d47ba826c8d667c0d1e6e33a64a036ec44f58fa12d6c45"},
		{"ripemd160 empty", func(b []byte) []byte { h := Ripemd160(b); return h[:] }, "",
			"9c1185a5c5e9fc54612808977ee8f548b2258d31"},
		{"ripemd160 abc", func(b []byte) []byte { h := Ripemd160(b); return h[:] }, "abc",
			"8eb208f7e05d987a9b044a8e98c6b087f15a0bfc"},
		{"ripemd160 message digest", func(b []byte) []byte { h := Ripemd160(b); return h[:] }, "message digest",
			"5d0689ef49d2fae572b881b123a85ffa21595f36"},
		{"ripemd160 alphabet", func(b []byte) []byte { h := Ripemd160(b); return h[:] }, "abcdefghijklmnopqrstuvwxyz",
			"f71c27109c692c1b56bbdceb5b9d2865b3708dbc"},
		{"ripemd160 56 bytes", func(b []byte) []byte { h := Ripemd160(b); return h[:] }, strings.Repeat("a", 56),
			"e72334b46c83cc70bef979e15453706c95b888be"},
		{"ripemd160 80 bytes", func(b []byte) []byte { h := Ripemd160(b); return h[:] }, strings.Repeat("1234567890", 8),
			"9b752e45573d4b39f4dbd3323cab82bf63326bfb"},
		{"hash160 empty", func(b []byte) []byte { h := Hash160(b); return h[:] }, "",
			"b472a266d0bd89c13706a4132ccfb16f7c3b9fcb"},
		{"hash160 abc", func(b []byte) []byte { h := Hash160(b); return h[:] }, "abc",
			"bb1be98c142444d7a56aa3981c3942a978e4dc33"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := hex.EncodeToString(tt.fn([]byte(tt.in)))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRipemd160_BlockBoundaries(t *testing.T) {
	// Lengths around the 55/56/64 byte padding edges.
	for _, n := range []int{0, 1, 55, 56, 57, 63, 64, 65, 119, 120, 128, 1000} {
		data := make([]byte, n)
		for i := range data {
			data[i] = byte(i * 7)
		}

		ref := xripemd160.New()
		ref.Write(data)
		want := ref.Sum(nil)

		got := Ripemd160(data)
		assert.Equal(t, want, got[:], "length %d", n)
	}
}

func TestRipemd160_Streaming(t *testing.T) {
	data := []byte(strings.Repeat("streaming input ", 20))
	want := Ripemd160(data)

	h := NewRipemd160()
	for i := 0; i < len(data); i += 13 {
		end := i + 13
		if end > len(data) {
			end = len(data)
		}
		h.Write(data[i:end])
	}
	require.Equal(t, want[:], h.Sum(nil))

	// Sum leaves the state untouched.
	require.Equal(t, want[:], h.Sum(nil))
	assert.Equal(t, Ripemd160Size, h.Size())
	assert.Equal(t, 64, h.BlockSize())

	h.Reset()
	empty := Ripemd160(nil)
	assert.Equal(t, empty[:], h.Sum(nil))
}
