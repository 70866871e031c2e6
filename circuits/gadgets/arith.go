package gadgets

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark/constraint/solver"
	"github.com/consensys/gnark/frontend"
	"github.com/vocdoni/zk-exchange/circuits"
)

func init() {
	solver.RegisterHint(MulDivHint)
}

// Add returns a + b and requires the result to fit in n bits, so an
// overflow makes the system unsatisfiable.
func Add(c *Constants, a, b frontend.Variable, n int) frontend.Variable {
	sum := c.API.Add(a, b)
	c.RangeCheck(sum, n)
	return sum
}

// Sub returns a - b and requires a >= b for values of n bits.
func Sub(c *Constants, a, b frontend.Variable, n int) frontend.Variable {
	diff := c.API.Sub(a, b)
	c.RangeCheck(diff, n)
	return diff
}

// SubAdd moves amount from one value to another: it returns
// (from - amount, to + amount), both required to fit in n bits.
func SubAdd(c *Constants, from, to, amount frontend.Variable, n int) (frontend.Variable, frontend.Variable) {
	return Sub(c, from, amount, n), Add(c, to, amount, n)
}

// DynamicVariable is a value that changes along a circuit, like a balance
// that several transfers of the same transaction touch. Every change is
// kept so the history can be inspected.
type DynamicVariable struct {
	values []frontend.Variable
}

func NewDynamicVariable(initial frontend.Variable) *DynamicVariable {
	return &DynamicVariable{values: []frontend.Variable{initial}}
}

// Back returns the current value.
func (d *DynamicVariable) Back() frontend.Variable {
	return d.values[len(d.values)-1]
}

// Set records a new current value.
func (d *DynamicVariable) Set(v frontend.Variable) {
	d.values = append(d.values, v)
}

// Transfer moves amount from one balance to another, both balances must
// stay inside the amount range.
func Transfer(c *Constants, from, to *DynamicVariable, amount frontend.Variable) {
	f, t := SubAdd(c, from.Back(), to.Back(), amount, circuits.NumBitsAmount)
	from.Set(f)
	to.Set(t)
}

// MulDivHint computes floor(a*b/c) and (a*b) mod c. A zero divisor returns
// zeros, the constraints of MulDiv make it unsatisfiable.
func MulDivHint(_ *big.Int, inputs []*big.Int, outputs []*big.Int) error {
	if len(inputs) != 3 || len(outputs) != 2 {
		return fmt.Errorf("muldiv: expected 3 inputs and 2 outputs, got %d and %d", len(inputs), len(outputs))
	}
	if inputs[2].Sign() == 0 {
		outputs[0].SetUint64(0)
		outputs[1].SetUint64(0)
		return nil
	}
	product := new(big.Int).Mul(inputs[0], inputs[1])
	outputs[0].QuoRem(product, inputs[2], outputs[1])
	return nil
}

// MulDiv returns floor(a*b/d) and the remainder a*b - d*floor(a*b/d). The
// quotient must fit in quotientBits and the divisor in divisorBits; a zero
// divisor makes the system unsatisfiable. The caller guarantees a*b doesn't
// wrap the field.
func MulDiv(c *Constants, a, b, d frontend.Variable, quotientBits, divisorBits int) (quotient, remainder frontend.Variable) {
	api := c.API
	res, err := api.Compiler().NewHint(MulDivHint, 2, a, b, d)
	if err != nil {
		circuits.FrontendError(api, "failed to compute muldiv hint", err)
		return 0, 0
	}
	quotient, remainder = res[0], res[1]
	api.AssertIsDifferent(d, 0)
	c.RangeCheck(quotient, quotientBits)
	c.RangeCheck(remainder, divisorBits)
	RequireLt(api, remainder, d, divisorBits)
	api.AssertIsEqual(api.Mul(a, b), api.Add(api.Mul(d, quotient), remainder))
	return quotient, remainder
}

// RoundingError returns 1 when floor(value*numerator/denominator) is within
// MaxRoundingErrorPercent of the exact result, that is when
// remainder*100 <= value*numerator. All operands are amounts.
func RoundingError(c *Constants, value, numerator, denominator frontend.Variable) frontend.Variable {
	api := c.API
	_, remainder := MulDiv(c, value, numerator, denominator, circuits.NumBitsAmount, circuits.NumBitsAmount)
	scaled := api.Mul(remainder, 100/circuits.MaxRoundingErrorPercent)
	_, leq := Leq(api, scaled, api.Mul(value, numerator), 2*circuits.NumBitsAmount)
	return leq
}
