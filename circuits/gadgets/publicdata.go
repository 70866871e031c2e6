package gadgets

import (
	"fmt"

	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/sha2"
	"github.com/consensys/gnark/std/math/uints"
)

// PublicData accumulates the bits, most significant first, of the data a
// circuit publishes.
type PublicData struct {
	bits []frontend.Variable
}

// Add appends the n bits of v. v must fit in n bits.
func (pd *PublicData) Add(api frontend.API, v frontend.Variable, n int) {
	pd.bits = append(pd.bits, ToBitsMSB(api, v, n)...)
}

// AddBits appends bits given most significant first.
func (pd *PublicData) AddBits(bits ...frontend.Variable) {
	pd.bits = append(pd.bits, bits...)
}

// Bits returns the accumulated bits.
func (pd *PublicData) Bits() []frontend.Variable {
	return pd.bits
}

// Len returns the number of accumulated bits.
func (pd *PublicData) Len() int {
	return len(pd.bits)
}

// Padded returns the accumulated bits followed by zeros up to n bits.
func (pd *PublicData) Padded(n int) ([]frontend.Variable, error) {
	if len(pd.bits) > n {
		return nil, fmt.Errorf("public data has %d bits, more than %d", len(pd.bits), n)
	}
	padded := make([]frontend.Variable, n)
	copy(padded, pd.bits)
	for i := len(pd.bits); i < n; i++ {
		padded[i] = 0
	}
	return padded, nil
}

// Hash returns the public data hash of the accumulated bits. The bits are
// packed into bytes most significant bit first, in the order they were
// added, and hashed with a single sha256 pass. The 32 byte digest is read
// as a big endian integer and its 3 most significant bits are dropped,
// leaving a 253 bit value. There is no second hashing round and no byte
// reversal. state.PublicDataHash computes the same value natively.
func (pd *PublicData) Hash(api frontend.API) (frontend.Variable, error) {
	if len(pd.bits)%8 != 0 {
		return nil, fmt.Errorf("public data is not byte aligned: %d bits", len(pd.bits))
	}
	data := make([]uints.U8, len(pd.bits)/8)
	for i := range data {
		data[i] = uints.U8{Val: FromBitsMSB(api, pd.bits[i*8:(i+1)*8])}
	}
	h, err := sha2.New(api)
	if err != nil {
		return nil, fmt.Errorf("failed to create sha256 hasher: %w", err)
	}
	h.Write(data)
	digest := h.Sum()
	first := api.ToBinary(digest[0].Val, 8)
	hash := api.FromBinary(first[:5]...)
	for _, b := range digest[1:] {
		hash = api.Add(api.Mul(hash, 256), b.Val)
	}
	return hash, nil
}
