package types

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// BigInt is a big.Int wrapper which marshals JSON to a decimal string and
// accepts both decimal and 0x-prefixed hex strings (or bare numbers) when
// unmarshaling.
type BigInt big.Int

// NewInt returns a BigInt holding x.
func NewInt(x int64) *BigInt {
	return (*BigInt)(big.NewInt(x))
}

// NewIntFromBig returns a copy of b as BigInt. A nil b returns zero.
func NewIntFromBig(b *big.Int) *BigInt {
	if b == nil {
		return NewInt(0)
	}
	return (*BigInt)(new(big.Int).Set(b))
}

func (i *BigInt) String() string {
	return i.MathBigInt().String()
}

// MathBigInt returns the value as *big.Int. A nil receiver is zero.
func (i *BigInt) MathBigInt() *big.Int {
	if i == nil {
		return new(big.Int)
	}
	return (*big.Int)(i)
}

// Bytes returns the big-endian bytes of the absolute value.
func (i BigInt) Bytes() []byte {
	return (*big.Int)(&i).Bytes()
}

// SetBytes interprets buf as a big-endian unsigned integer.
func (i *BigInt) SetBytes(buf []byte) *BigInt {
	(*big.Int)(i).SetBytes(buf)
	return i
}

func (i *BigInt) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

func (i *BigInt) UnmarshalText(data []byte) error {
	return i.setString(string(data))
}

func (i *BigInt) MarshalJSON() ([]byte, error) {
	return []byte(`"` + i.String() + `"`), nil
}

func (i *BigInt) UnmarshalJSON(data []byte) error {
	return i.setString(strings.Trim(string(data), `"`))
}

func (i *BigInt) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(i.MathBigInt())
}

func (i *BigInt) UnmarshalCBOR(data []byte) error {
	b := new(big.Int)
	if err := cbor.Unmarshal(data, b); err != nil {
		return err
	}
	(*big.Int)(i).Set(b)
	return nil
}

func (i *BigInt) setString(s string) error {
	if s == "" || s == "null" {
		(*big.Int)(i).SetInt64(0)
		return nil
	}
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s, base = s[2:], 16
	}
	if _, ok := (*big.Int)(i).SetString(s, base); !ok {
		return fmt.Errorf("invalid big integer %q", s)
	}
	return nil
}
