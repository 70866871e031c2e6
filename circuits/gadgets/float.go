package gadgets

import (
	"math/big"

	"github.com/consensys/gnark/frontend"
	"github.com/vocdoni/zk-exchange/circuits"
)

// NumBitsFloatValue bounds any decoded float: the biggest one is
// (2^23-1)*10^31 < 2^127.
const NumBitsFloatValue = 128

// Float is a float encoded amount and its decoded value.
type Float struct {
	Encoded  frontend.Variable
	Value    frontend.Variable
	Encoding circuits.FloatEncoding
}

// DecodeFloat decodes an amount encoded as exponent<<mantissaBits|mantissa.
// The encoded value is range checked to the size of the encoding. The value
// is built multiplying the mantissa by base^(2^i) for every exponent bit i
// that is set.
func DecodeFloat(api frontend.API, encoded frontend.Variable, enc circuits.FloatEncoding) Float {
	bits := api.ToBinary(encoded, enc.NumBits())
	value := api.FromBinary(bits[:enc.NumBitsMantissa]...)
	multiplier := new(big.Int).SetUint64(enc.ExponentBase)
	for i := uint(0); i < enc.NumBitsExponent; i++ {
		value = api.Select(bits[enc.NumBitsMantissa+i], api.Mul(value, multiplier), value)
		multiplier = new(big.Int).Mul(multiplier, multiplier)
	}
	return Float{Encoded: encoded, Value: value, Encoding: enc}
}

// IsAccurate returns 1 when value is an acceptable approximation of the
// amount original: value <= original and
// original*numerator <= value*denominator.
func IsAccurate(api frontend.API, value, original frontend.Variable, accuracy circuits.Accuracy) frontend.Variable {
	_, notAbove := Leq(api, value, original, NumBitsFloatValue)
	_, bounded := Leq(api,
		api.Mul(original, accuracy.Numerator),
		api.Mul(value, accuracy.Denominator),
		NumBitsFloatValue+32)
	return api.And(notAbove, bounded)
}

// RequireAccuracy asserts the accuracy of value against original when cond
// is 1.
func RequireAccuracy(api frontend.API, cond, value, original frontend.Variable, accuracy circuits.Accuracy) {
	IfThenRequire(api, cond, IsAccurate(api, value, original, accuracy))
}
