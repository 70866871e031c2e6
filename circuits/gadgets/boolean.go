package gadgets

import "github.com/consensys/gnark/frontend"

// And returns the conjunction of the boolean inputs.
func And(api frontend.API, in ...frontend.Variable) frontend.Variable {
	if len(in) == 0 {
		return 1
	}
	res := in[0]
	for _, v := range in[1:] {
		res = api.And(res, v)
	}
	return res
}

// Or returns the disjunction of the boolean inputs.
func Or(api frontend.API, in ...frontend.Variable) frontend.Variable {
	if len(in) == 0 {
		return 0
	}
	res := in[0]
	for _, v := range in[1:] {
		res = api.Or(res, v)
	}
	return res
}

// Not returns 1 - a for a boolean a.
func Not(api frontend.API, a frontend.Variable) frontend.Variable {
	return api.Sub(1, a)
}

// Xor returns a xor b for booleans a and b.
func Xor(api frontend.API, a, b frontend.Variable) frontend.Variable {
	return api.Xor(a, b)
}

// IsEqual returns 1 when a == b and 0 otherwise.
func IsEqual(api frontend.API, a, b frontend.Variable) frontend.Variable {
	return api.IsZero(api.Sub(a, b))
}
