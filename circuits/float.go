package circuits

import (
	"fmt"
	"math/big"
)

// FloatEncoding describes a lossy encoding of an amount as
// mantissa * ExponentBase^exponent, packed as exponent<<NumBitsMantissa|mantissa.
type FloatEncoding struct {
	NumBitsExponent uint
	NumBitsMantissa uint
	ExponentBase    uint64
}

// Accuracy bounds the rounding error of a FloatEncoding: a decoded value is
// accepted when original*Numerator <= value*Denominator.
type Accuracy struct {
	Numerator   uint64
	Denominator uint64
}

var (
	Float28Encoding = FloatEncoding{NumBitsExponent: 5, NumBitsMantissa: 23, ExponentBase: 10}
	Float24Encoding = FloatEncoding{NumBitsExponent: 5, NumBitsMantissa: 19, ExponentBase: 10}
	Float16Encoding = FloatEncoding{NumBitsExponent: 5, NumBitsMantissa: 11, ExponentBase: 10}
	Float12Encoding = FloatEncoding{NumBitsExponent: 5, NumBitsMantissa: 7, ExponentBase: 10}

	Float28Accuracy = Accuracy{Numerator: 10000000 - 12, Denominator: 10000000}
	Float24Accuracy = Accuracy{Numerator: 100000 - 2, Denominator: 100000}
	Float16Accuracy = Accuracy{Numerator: 1000 - 5, Denominator: 1000}
	Float12Accuracy = Accuracy{Numerator: 100 - 8, Denominator: 100}
)

// NumBits returns the total size of an encoded value.
func (f FloatEncoding) NumBits() int {
	return int(f.NumBitsExponent + f.NumBitsMantissa)
}

// MaxExponent returns the largest exponent the encoding can represent.
func (f FloatEncoding) MaxExponent() uint64 {
	return 1<<f.NumBitsExponent - 1
}

// Encode returns the encoding of value with the smallest exponent whose
// mantissa fits, rounding down. It fails if value is negative or too large
// for the encoding.
func (f FloatEncoding) Encode(value *big.Int) (uint64, error) {
	if value.Sign() < 0 {
		return 0, fmt.Errorf("can't encode negative value %s", value)
	}
	maxMantissa := new(big.Int).Lsh(big.NewInt(1), f.NumBitsMantissa)
	base := new(big.Int).SetUint64(f.ExponentBase)
	mantissa := new(big.Int).Set(value)
	exponent := uint64(0)
	for mantissa.Cmp(maxMantissa) >= 0 {
		mantissa.Quo(mantissa, base)
		exponent++
	}
	if exponent > f.MaxExponent() {
		return 0, fmt.Errorf("value %s too large for a %d bits float", value, f.NumBits())
	}
	return exponent<<f.NumBitsMantissa | mantissa.Uint64(), nil
}

// Decode returns the amount represented by an encoded value.
func (f FloatEncoding) Decode(encoded uint64) *big.Int {
	mantissa := encoded & (1<<f.NumBitsMantissa - 1)
	exponent := (encoded >> f.NumBitsMantissa) & f.MaxExponent()
	scale := new(big.Int).Exp(new(big.Int).SetUint64(f.ExponentBase), new(big.Int).SetUint64(exponent), nil)
	return scale.Mul(scale, new(big.Int).SetUint64(mantissa))
}

// Round returns the decoded value of the encoding of value.
func (f FloatEncoding) Round(value *big.Int) (*big.Int, error) {
	encoded, err := f.Encode(value)
	if err != nil {
		return nil, err
	}
	return f.Decode(encoded), nil
}

// Check reports whether value is an acceptable approximation of original:
// value <= original and original*Numerator <= value*Denominator.
func (a Accuracy) Check(value, original *big.Int) bool {
	if value.Cmp(original) > 0 {
		return false
	}
	lhs := new(big.Int).Mul(original, new(big.Int).SetUint64(a.Numerator))
	rhs := new(big.Int).Mul(value, new(big.Int).SetUint64(a.Denominator))
	return lhs.Cmp(rhs) <= 0
}
