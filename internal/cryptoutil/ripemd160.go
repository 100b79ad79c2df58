package cryptoutil

import (
	"encoding/binary"
	"hash"
	"math/bits"
)

// Ripemd160Size is the size of a RIPEMD-160 checksum in bytes.
const Ripemd160Size = 20

const ripemd160BlockSize = 64

// Word selection for the left (rl) and right (rr) lines.
var rl = [80]uint8{
	0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15,
	7, 4, 13, 1, 10, 6, 15, 3, 12, 0, 9, 5, 2, 14, 11, 8,
	3, 10, 14, 4, 9, 15, 8, 1, 2, 7, 0, 6, 13, 11, 5, 12,
	1, 9, 11, 10, 0, 8, 12, 4, 13, 3, 7, 15, 14, 5, 6, 2,
	4, 0, 5, 9, 7, 12, 2, 10, 14, 1, 3, 8, 11, 6, 15, 13,
}

var rr = [80]uint8{
	5, 14, 7, 0, 9, 2, 11, 4, 13, 6, 15, 8, 1, 10, 3, 12,
	6, 11, 3, 7, 0, 13, 5, 10, 14, 15, 8, 12, 4, 9, 1, 2,
	15, 5, 1, 3, 7, 14, 6, 9, 11, 8, 12, 2, 10, 0, 4, 13,
	8, 6, 4, 1, 3, 11, 15, 0, 5, 12, 2, 13, 9, 7, 10, 14,
	12, 15, 10, 4, 1, 5, 8, 7, 6, 2, 13, 14, 0, 3, 9, 11,
}

// Rotation amounts for the left (sl) and right (sr) lines.
var sl = [80]uint8{
	11, 14, 15, 12, 5, 8, 7, 9, 11, 13, 14, 15, 6, 7, 9, 8,
	7, 6, 8, 13, 11, 9, 7, 15, 7, 12, 15, 9, 11, 7, 13, 12,
	11, 13, 6, 7, 14, 9, 13, 15, 14, 8, 13, 6, 5, 12, 7, 5,
	11, 12, 14, 15, 14, 15, 9, 8, 9, 14, 5, 6, 8, 6, 5, 12,
	9, 15, 5, 11, 6, 8, 13, 12, 5, 12, 13, 14, 11, 8, 5, 6,
}

var sr = [80]uint8{
	8, 9, 9, 11, 13, 15, 15, 5, 7, 7, 8, 11, 14, 14, 12, 6,
	9, 13, 15, 7, 12, 8, 9, 11, 7, 7, 12, 7, 6, 15, 13, 11,
	9, 7, 15, 11, 8, 6, 6, 14, 12, 13, 5, 14, 13, 13, 7, 5,
	15, 5, 8, 11, 14, 14, 6, 14, 6, 9, 12, 9, 12, 5, 15, 8,
	8, 5, 12, 9, 12, 5, 14, 6, 8, 13, 6, 5, 15, 13, 11, 11,
}

var (
	kl = [5]uint32{0x00000000, 0x5a827999, 0x6ed9eba1, 0x8f1bbcdc, 0xa953fd4e}
	kr = [5]uint32{0x50a28be6, 0x5c4dd124, 0x6d703ef3, 0x7a6d76e9, 0x00000000}
)

type ripemd160 struct {
	h   [5]uint32
	buf [ripemd160BlockSize]byte
	n   int
	len uint64
}

// NewRipemd160 returns a streaming RIPEMD-160 digest.
func NewRipemd160() hash.Hash {
	d := new(ripemd160)
	d.Reset()
	return d
}

// Ripemd160 returns the RIPEMD-160 checksum of data.
func Ripemd160(data []byte) [Ripemd160Size]byte {
	var d ripemd160
	d.Reset()
	d.Write(data)
	return d.checkSum()
}

func (d *ripemd160) Reset() {
	d.h = [5]uint32{0x67452301, 0xefcdab89, 0x98badcfe, 0x10325476, 0xc3d2e1f0}
	d.n = 0
	d.len = 0
}

func (d *ripemd160) Size() int { return Ripemd160Size }

func (d *ripemd160) BlockSize() int { return ripemd160BlockSize }

func (d *ripemd160) Write(p []byte) (int, error) {
	nn := len(p)
	d.len += uint64(nn)

	if d.n > 0 {
		c := copy(d.buf[d.n:], p)
		d.n += c
		p = p[c:]
		if d.n == ripemd160BlockSize {
			d.block(d.buf[:])
			d.n = 0
		}
	}
	for len(p) >= ripemd160BlockSize {
		d.block(p[:ripemd160BlockSize])
		p = p[ripemd160BlockSize:]
	}
	if len(p) > 0 {
		d.n = copy(d.buf[:], p)
	}
	return nn, nil
}

func (d *ripemd160) Sum(in []byte) []byte {
	// Sum must not disturb the running state.
	cp := *d
	sum := cp.checkSum()
	return append(in, sum[:]...)
}

func (d *ripemd160) checkSum() [Ripemd160Size]byte {
	bitLen := d.len << 3

	// 0x80, zeros up to 56 mod 64, then the bit length little-endian.
	var pad [ripemd160BlockSize + 8]byte
	pad[0] = 0x80
	padLen := 56 - int(d.len%ripemd160BlockSize)
	if padLen <= 0 {
		padLen += ripemd160BlockSize
	}
	binary.LittleEndian.PutUint64(pad[padLen:], bitLen)
	d.Write(pad[:padLen+8])

	var out [Ripemd160Size]byte
	for i, v := range d.h {
		binary.LittleEndian.PutUint32(out[i*4:], v)
	}
	return out
}

func (d *ripemd160) block(p []byte) {
	var x [16]uint32
	for i := range x {
		x[i] = binary.LittleEndian.Uint32(p[i*4:])
	}

	al, bl, cl, dl, el := d.h[0], d.h[1], d.h[2], d.h[3], d.h[4]
	ar, br, cr, dr, er := al, bl, cl, dl, el

	for j := 0; j < 80; j++ {
		round := j / 16

		t := bits.RotateLeft32(al+boolFn(round, bl, cl, dl)+x[rl[j]]+kl[round], int(sl[j])) + el
		al, el, dl, cl, bl = el, dl, bits.RotateLeft32(cl, 10), bl, t

		t = bits.RotateLeft32(ar+boolFn(4-round, br, cr, dr)+x[rr[j]]+kr[round], int(sr[j])) + er
		ar, er, dr, cr, br = er, dr, bits.RotateLeft32(cr, 10), br, t
	}

	t := d.h[1] + cl + dr
	d.h[1] = d.h[2] + dl + er
	d.h[2] = d.h[3] + el + ar
	d.h[3] = d.h[4] + al + br
	d.h[4] = d.h[0] + bl + cr
	d.h[0] = t
}

// boolFn is the per-round nonlinear function; the right line runs them in
// reverse order.
func boolFn(round int, x, y, z uint32) uint32 {
	switch round {
	case 0:
		return x ^ y ^ z
	case 1:
		return (x & y) | (^x & z)
	case 2:
		return (x | ^y) ^ z
	case 3:
		return (x & z) | (y &^ z)
	default:
		return x ^ (y | ^z)
	}
}
