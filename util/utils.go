package util

import (
	"fmt"
	"math/big"
)

// PrettyHex returns a short hex representation of v, useful for debug logs
// of roots and leaf hashes. It accepts *big.Int, []byte and anything else
// printable with %x; values that are not known at compile time (circuit
// variables) are printed as they come.
func PrettyHex(v any) string {
	var s string
	switch t := v.(type) {
	case *big.Int:
		if t == nil {
			return "<nil>"
		}
		s = t.Text(16)
	case []byte:
		s = fmt.Sprintf("%x", t)
	case int, int64, uint64, uint32:
		s = fmt.Sprintf("%x", t)
	default:
		return fmt.Sprint(v)
	}
	if len(s) > 8 {
		return s[:4] + ".." + s[len(s)-4:]
	}
	return s
}
