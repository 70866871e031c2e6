package gadgets

import "github.com/consensys/gnark/frontend"

// ToBitsMSB decomposes v in n bits, most significant first. v must fit in n
// bits.
func ToBitsMSB(api frontend.API, v frontend.Variable, n int) []frontend.Variable {
	bits := api.ToBinary(v, n)
	return reverse(bits)
}

// FromBitsMSB packs bits given most significant first.
func FromBitsMSB(api frontend.API, bits []frontend.Variable) frontend.Variable {
	return api.FromBinary(reverse(bits)...)
}

// LowBits returns the value of the n least significant bits of v, which must
// fit in total bits.
func LowBits(api frontend.API, v frontend.Variable, total, n int) frontend.Variable {
	bits := api.ToBinary(v, total)
	return api.FromBinary(bits[:n]...)
}

func reverse(in []frontend.Variable) []frontend.Variable {
	out := make([]frontend.Variable, len(in))
	for i := range in {
		out[len(in)-1-i] = in[i]
	}
	return out
}
