package gadgets

import (
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/algebra/native/twistededwards"
	"github.com/vocdoni/zk-exchange/circuits"
)

// PublicKey is a point of the BN254 twisted Edwards curve.
type PublicKey struct {
	X frontend.Variable
	Y frontend.Variable
}

// AssertIsOnCurve asserts the public key is a point of the curve. The
// identity (0, 1) is accepted and stands for "no key".
func (pk PublicKey) AssertIsOnCurve(c *Constants) {
	c.Curve.AssertIsOnCurve(twistededwards.Point{X: pk.X, Y: pk.Y})
}

// Compress returns the compressed public key as 256 bits, most significant
// first: the sign of x, a zero bit and y.
func (pk PublicKey) Compress(c *Constants) []frontend.Variable {
	api := c.API
	sign := IsEqual(api, api.Cmp(pk.X, c.HalfModulus), 1)
	bits := make([]frontend.Variable, 0, circuits.NumBitsPublicKey)
	bits = append(bits, sign, 0)
	return append(bits, ToBitsMSB(api, pk.Y, circuits.NumBitsPublicKey-2)...)
}
