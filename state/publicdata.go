package state

import (
	"crypto/sha256"
	"math/big"
)

// bitWriter packs values most significant bit first, the layout the
// circuits publish.
type bitWriter struct {
	data  []byte
	nbits int
}

func (w *bitWriter) add(v *big.Int, n int) {
	for i := n - 1; i >= 0; i-- {
		w.addBit(v.Bit(i))
	}
}

func (w *bitWriter) addUint(v uint64, n int) {
	w.add(new(big.Int).SetUint64(v), n)
}

func (w *bitWriter) addBytes(b []byte) {
	for _, c := range b {
		w.addUint(uint64(c), 8)
	}
}

func (w *bitWriter) addBit(b uint) {
	if w.nbits%8 == 0 {
		w.data = append(w.data, 0)
	}
	if b != 0 {
		w.data[w.nbits/8] |= 1 << (7 - w.nbits%8)
	}
	w.nbits++
}

// padded returns the bytes written followed by zeros up to size bytes.
func (w *bitWriter) padded(size int) []byte {
	out := make([]byte, size)
	copy(out, w.data)
	return out
}

// PublicDataHash returns the sha256 digest of the public data read big
// endian, with the 3 most significant bits cleared so it fits in the field.
func PublicDataHash(data []byte) *big.Int {
	digest := sha256.Sum256(data)
	digest[0] &= 0x1f
	return new(big.Int).SetBytes(digest[:])
}
