package circuits

import (
	"math/big"
	"math/rand"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestFloatEncodeDecode(t *testing.T) {
	c := qt.New(t)

	encoded, err := Float24Encoding.Encode(big.NewInt(1000))
	c.Assert(err, qt.IsNil)
	c.Assert(encoded, qt.Equals, uint64(1000))
	c.Assert(Float24Encoding.Decode(encoded).Int64(), qt.Equals, int64(1000))

	// 2^19 doesn't fit in the mantissa, one exponent step is needed
	v := big.NewInt(1 << 19)
	encoded, err = Float24Encoding.Encode(v)
	c.Assert(err, qt.IsNil)
	c.Assert(encoded>>19, qt.Equals, uint64(1))
	c.Assert(Float24Encoding.Decode(encoded).Int64(), qt.Equals, int64(524280))

	_, err = Float12Encoding.Encode(new(big.Int).Exp(big.NewInt(10), big.NewInt(40), nil))
	c.Assert(err, qt.IsNotNil)
	_, err = Float24Encoding.Encode(big.NewInt(-1))
	c.Assert(err, qt.IsNotNil)
}

func TestFloatRoundTripAccuracy(t *testing.T) {
	c := qt.New(t)
	profiles := []struct {
		name     string
		encoding FloatEncoding
		accuracy Accuracy
	}{
		{"float28", Float28Encoding, Float28Accuracy},
		{"float24", Float24Encoding, Float24Accuracy},
		{"float16", Float16Encoding, Float16Accuracy},
		{"float12", Float12Encoding, Float12Accuracy},
	}
	rng := rand.New(rand.NewSource(1))
	for _, p := range profiles {
		limit := MaxAmount
		for i := 0; i < 200; i++ {
			v := new(big.Int).Rand(rng, limit)
			v.Add(v, big.NewInt(1))
			rounded, err := p.encoding.Round(v)
			c.Assert(err, qt.IsNil, qt.Commentf("%s %s", p.name, v))
			c.Assert(p.accuracy.Check(rounded, v), qt.IsTrue, qt.Commentf("%s %s -> %s", p.name, v, rounded))
		}
	}
}

func TestAccuracyCheck(t *testing.T) {
	c := qt.New(t)
	c.Assert(Float12Accuracy.Check(big.NewInt(92), big.NewInt(100)), qt.IsTrue)
	c.Assert(Float12Accuracy.Check(big.NewInt(91), big.NewInt(100)), qt.IsFalse)
	c.Assert(Float12Accuracy.Check(big.NewInt(101), big.NewInt(100)), qt.IsFalse)
	c.Assert(Float12Accuracy.Check(big.NewInt(0), big.NewInt(0)), qt.IsTrue)
}

func TestEmptyTrees(t *testing.T) {
	c := qt.New(t)
	trees := EmptyTrees()
	c.Assert(trees.TradeHistoryLevels, qt.HasLen, TreeDepthTradingHistory+1)
	c.Assert(trees.AccountLevels, qt.HasLen, TreeDepthAccounts+1)

	leaf, err := LeafHash(NewBalance())
	c.Assert(err, qt.IsNil)
	c.Assert(leaf.Cmp(trees.BalanceLevels[0]), qt.Equals, 0)

	leaf, err = LeafHash(NewAccount())
	c.Assert(err, qt.IsNil)
	c.Assert(leaf.Cmp(trees.AccountLevels[0]), qt.Equals, 0)
}

func TestLeafBytes(t *testing.T) {
	c := qt.New(t)
	th := TradeHistory[*big.Int]{Filled: big.NewInt(7), Cancelled: big.NewInt(1), OrderID: big.NewInt(42)}
	decoded, err := DeserializeTradeHistory(th.Bytes())
	c.Assert(err, qt.IsNil)
	c.Assert(decoded.OrderID.Int64(), qt.Equals, int64(42))
	c.Assert(decoded.Cancelled.Int64(), qt.Equals, int64(1))

	_, err = DeserializeAccount([]byte{1, 2, 3})
	c.Assert(err, qt.IsNotNil)
}
