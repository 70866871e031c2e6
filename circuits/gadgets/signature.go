package gadgets

import (
	"fmt"

	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/algebra/native/twistededwards"
	"github.com/vocdoni/gnark-crypto-primitives/utils"
	"github.com/vocdoni/zk-exchange/circuits"
)

// VerifySignature checks that sig is a signature of msg by pubKey when
// required is 1. When it is 0 the key and the R point are replaced by the
// curve base point, so the curve arithmetic stays well defined whatever the
// witness holds, and the result is ignored.
//
// The check is [8]([S]B - [H(R,A,msg)]A - R) == O, the same equation the
// std eddsa verifier uses.
func VerifySignature(c *Constants, hFn utils.Hasher, required frontend.Variable,
	pubKey PublicKey, sig circuits.Signature[frontend.Variable], msg frontend.Variable,
) error {
	api := c.API
	params := c.Curve.Params()
	base := twistededwards.Point{X: params.Base[0], Y: params.Base[1]}
	a := twistededwards.Point{
		X: api.Select(required, pubKey.X, base.X),
		Y: api.Select(required, pubKey.Y, base.Y),
	}
	r := twistededwards.Point{
		X: api.Select(required, sig.RX, base.X),
		Y: api.Select(required, sig.RY, base.Y),
	}
	hRAM, err := hFn(api, r.X, r.Y, a.X, a.Y, msg)
	if err != nil {
		return fmt.Errorf("failed to hash signature challenge: %w", err)
	}
	q := c.Curve.DoubleBaseScalarMul(base, c.Curve.Neg(a), sig.S, hRAM)
	q = c.Curve.Add(q, c.Curve.Neg(r))
	for cofactor := params.Cofactor.Uint64(); cofactor > 1; cofactor >>= 1 {
		q = c.Curve.Double(q)
	}
	IfThenRequireEqual(api, required, q.X, 0)
	IfThenRequireEqual(api, required, q.Y, 1)
	return nil
}
