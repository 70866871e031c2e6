package gadgets

import (
	"math/big"

	"github.com/consensys/gnark/frontend"
)

// Leq compares a and b, returning the booleans a < b and a <= b. Both
// operands must fit in n bits, otherwise the system is unsatisfiable.
func Leq(api frontend.API, a, b frontend.Variable, n int) (lt, leq frontend.Variable) {
	// 2^n + b - a has its n-th bit set iff a <= b
	offset := new(big.Int).Lsh(big.NewInt(1), uint(n))
	bits := api.ToBinary(api.Sub(api.Add(b, offset), a), n+1)
	leq = bits[n]
	lt = api.Sub(leq, IsEqual(api, a, b))
	return lt, leq
}

// Lt returns a < b for operands of n bits.
func Lt(api frontend.API, a, b frontend.Variable, n int) frontend.Variable {
	lt, _ := Leq(api, a, b, n)
	return lt
}

// Min returns the smallest of two values of n bits.
func Min(api frontend.API, a, b frontend.Variable, n int) frontend.Variable {
	return api.Select(Lt(api, a, b, n), a, b)
}

// Max returns the largest of two values of n bits.
func Max(api frontend.API, a, b frontend.Variable, n int) frontend.Variable {
	return api.Select(Lt(api, a, b, n), b, a)
}

// RequireLeq asserts a <= b for operands of n bits.
func RequireLeq(api frontend.API, a, b frontend.Variable, n int) {
	_, leq := Leq(api, a, b, n)
	api.AssertIsEqual(leq, 1)
}

// RequireLt asserts a < b for operands of n bits.
func RequireLt(api frontend.API, a, b frontend.Variable, n int) {
	api.AssertIsEqual(Lt(api, a, b, n), 1)
}

// IfThenRequire asserts that v is 1 when cond is 1.
func IfThenRequire(api frontend.API, cond, v frontend.Variable) {
	api.AssertIsEqual(api.Mul(cond, api.Sub(1, v)), 0)
}

// IfThenRequireEqual asserts a == b when cond is 1.
func IfThenRequireEqual(api frontend.API, cond, a, b frontend.Variable) {
	api.AssertIsEqual(api.Mul(cond, api.Sub(a, b)), 0)
}

// IfThenRequireNotEqual asserts a != b when cond is 1.
func IfThenRequireNotEqual(api frontend.API, cond, a, b frontend.Variable) {
	api.AssertIsEqual(api.Mul(cond, IsEqual(api, a, b)), 0)
}

// IfThenRequireLeq asserts a <= b for operands of n bits when cond is 1.
// The operands must fit in n bits in any case.
func IfThenRequireLeq(api frontend.API, cond, a, b frontend.Variable, n int) {
	_, leq := Leq(api, a, b, n)
	IfThenRequire(api, cond, leq)
}
