package gadgets

import (
	"fmt"

	"github.com/consensys/gnark/frontend"
)

// Ternary returns x if b is 1 and y if b is 0. b must be boolean.
func Ternary(api frontend.API, b, x, y frontend.Variable) frontend.Variable {
	return api.Select(b, x, y)
}

// TernaryArray applies Ternary element wise, x and y must have the same
// length.
func TernaryArray(api frontend.API, b frontend.Variable, x, y []frontend.Variable) []frontend.Variable {
	res := make([]frontend.Variable, len(x))
	for i := range x {
		res[i] = api.Select(b, x[i], y[i])
	}
	return res
}

// Select returns the value whose selector bit is set. The selector must be
// one-hot, see Selector.
func Select(api frontend.API, selector, values []frontend.Variable) frontend.Variable {
	if len(selector) != len(values) {
		panic(fmt.Sprintf("select: %d selectors for %d values", len(selector), len(values)))
	}
	var res frontend.Variable = 0
	for i := range selector {
		res = api.Add(res, api.Mul(selector[i], values[i]))
	}
	return res
}

// ArraySelect applies Select to every position of the candidate arrays, all
// of them must have the same length.
func ArraySelect(api frontend.API, selector []frontend.Variable, values [][]frontend.Variable) []frontend.Variable {
	if len(values) == 0 {
		return nil
	}
	res := make([]frontend.Variable, len(values[0]))
	column := make([]frontend.Variable, len(values))
	for j := range res {
		for i := range values {
			column[i] = values[i][j]
		}
		res[j] = Select(api, selector, column)
	}
	return res
}

// Selector returns the one-hot decomposition of v over n candidates: bit i
// is 1 iff v == i. v must be lower than n.
func Selector(api frontend.API, v frontend.Variable, n int) []frontend.Variable {
	sel := make([]frontend.Variable, n)
	var sum frontend.Variable = 0
	for i := range sel {
		sel[i] = api.IsZero(api.Sub(v, i))
		sum = api.Add(sum, sel[i])
	}
	api.AssertIsEqual(sum, 1)
	return sel
}
