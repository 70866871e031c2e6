package util

import (
	"math/big"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestPrettyHex(t *testing.T) {
	c := qt.New(t)
	c.Assert(PrettyHex(big.NewInt(255)), qt.Equals, "ff")
	c.Assert(PrettyHex(new(big.Int).Lsh(big.NewInt(1), 64)), qt.Equals, "1000..0000")
	c.Assert(PrettyHex([]byte{0xde, 0xad}), qt.Equals, "dead")
	c.Assert(PrettyHex((*big.Int)(nil)), qt.Equals, "<nil>")
	c.Assert(PrettyHex(uint32(0xabcdef)), qt.Equals, "abcdef")
}
