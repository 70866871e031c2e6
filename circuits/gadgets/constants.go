package gadgets

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	tedwards "github.com/consensys/gnark-crypto/ecc/twistededwards"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/algebra/native/twistededwards"
	"github.com/consensys/gnark/std/rangecheck"
	"github.com/vocdoni/zk-exchange/circuits"
)

// Constants groups the values and helpers every gadget of a block circuit
// shares. It is built once per circuit with NewConstants and passed down
// explicitly.
type Constants struct {
	API frontend.API

	Zero frontend.Variable
	One  frontend.Variable

	// HalfModulus is (r-1)/2 of the scalar field, the threshold of the sign
	// bit of a compressed point.
	HalfModulus *big.Int

	EmptyTradeHistoryRoot *big.Int
	EmptyBalancesRoot     *big.Int

	FeeDenominator         frontend.Variable
	ProtocolFeeDenominator frontend.Variable

	Curve        twistededwards.Curve
	rangeChecker frontend.Rangechecker
}

// NewConstants initialises the shared constants of a circuit.
func NewConstants(api frontend.API) (*Constants, error) {
	curve, err := twistededwards.NewEdCurve(api, tedwards.BN254)
	if err != nil {
		return nil, fmt.Errorf("failed to create twisted edwards curve: %w", err)
	}
	half := new(big.Int).Sub(ecc.BN254.ScalarField(), big.NewInt(1))
	half.Rsh(half, 1)
	trees := circuits.EmptyTrees()
	return &Constants{
		API:                    api,
		Zero:                   0,
		One:                    1,
		HalfModulus:            half,
		EmptyTradeHistoryRoot:  trees.TradeHistoryRoot,
		EmptyBalancesRoot:      trees.BalancesRoot,
		FeeDenominator:         circuits.FeeDenominator,
		ProtocolFeeDenominator: circuits.ProtocolFeeDenominator,
		Curve:                  curve,
		rangeChecker:           rangecheck.New(api),
	}, nil
}

// RangeCheck asserts that v fits in n bits.
func (c *Constants) RangeCheck(v frontend.Variable, n int) {
	c.rangeChecker.Check(v, n)
}
