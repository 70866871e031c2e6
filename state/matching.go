package state

import (
	"fmt"
	"math/big"

	"github.com/vocdoni/zk-exchange/circuits"
	"github.com/vocdoni/zk-exchange/types"
)

// Native order matching, the same arithmetic as the matching circuits.

// trimmedOrder is an order with its trading history resolved.
type trimmedOrder struct {
	*types.Order
	amountS        *big.Int
	amountB        *big.Int
	slot           uint32
	filled         *big.Int
	cancelled      bool
	orderIDToStore uint64
}

type fill struct {
	S *big.Int
	B *big.Int
}

func mulDiv(a, b, d *big.Int) *big.Int {
	return new(big.Int).Quo(new(big.Int).Mul(a, b), d)
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) < 0 {
		return a
	}
	return b
}

// storageSlot returns the trading history slot of an order id.
func storageSlot(orderID uint32) uint32 {
	return orderID & (1<<circuits.NumBitsStorageAddress - 1)
}

// trimOrder resolves the trading history slot of the order: the same order
// id keeps the stored leaf, a newer one resets it and an older one means
// the order was replaced.
func trimOrder(o *types.Order, th circuits.TradeHistory[*big.Int]) *trimmedOrder {
	t := &trimmedOrder{
		Order:   o,
		amountS: o.AmountS.MathBigInt(),
		amountB: o.AmountB.MathBigInt(),
		slot:    storageSlot(o.OrderID),
	}
	stored := th.OrderID.Uint64()
	switch {
	case stored < uint64(o.OrderID):
		t.filled = big.NewInt(0)
		t.orderIDToStore = uint64(o.OrderID)
	case stored == uint64(o.OrderID):
		t.filled = th.Filled
		t.cancelled = th.Cancelled.Sign() != 0
		t.orderIDToStore = uint64(o.OrderID)
	default:
		t.filled = th.Filled
		t.cancelled = true
		t.orderIDToStore = stored
	}
	return t
}

func (t *trimmedOrder) filledLimit() *big.Int {
	if t.Buy {
		return t.amountB
	}
	return t.amountS
}

// maxFill returns the largest fill of the order given what was already
// filled and the balance of the token sold.
func (t *trimmedOrder) maxFill(balanceS *big.Int) fill {
	remaining := new(big.Int).Sub(t.filledLimit(), t.filled)
	if remaining.Sign() < 0 {
		remaining.SetInt64(0)
	}
	remainingS := remaining
	if t.Buy {
		remainingS = mulDiv(remaining, t.amountS, t.amountB)
	}
	balanceLimited := balanceS.Cmp(remainingS) < 0
	fillS := minBig(balanceS, remainingS)
	if t.Buy && !balanceLimited {
		return fill{S: fillS, B: remaining}
	}
	return fill{S: fillS, B: mulDiv(fillS, t.amountB, t.amountS)}
}

// matchOrders settles the maximum fills of a taker and a maker, the side
// that can trade less limits the other.
func matchOrders(taker, maker *trimmedOrder, takerFill, makerFill fill) (fill, fill, bool) {
	var t, m fill
	if takerFill.B.Cmp(makerFill.S) < 0 {
		t = takerFill
		m = fill{S: takerFill.B, B: mulDiv(takerFill.B, maker.amountB, maker.amountS)}
	} else {
		t = fill{S: mulDiv(makerFill.S, taker.amountS, taker.amountB), B: makerFill.S}
		m = makerFill
	}
	return t, m, m.B.Cmp(t.S) <= 0
}

// checkValid returns why a fill is not acceptable for the order, or nil.
func (t *trimmedOrder) checkValid(f fill, filledAfter *big.Int, timestamp uint32) error {
	switch {
	case t.ValidSince > timestamp:
		return fmt.Errorf("order %d not valid yet", t.OrderID)
	case t.ValidUntil < timestamp:
		return fmt.Errorf("order %d expired", t.OrderID)
	case t.cancelled:
		return fmt.Errorf("order %d cancelled", t.OrderID)
	case t.AllOrNone && filledAfter.Cmp(t.filledLimit()) != 0:
		return fmt.Errorf("all or none order %d not completely filled", t.OrderID)
	case f.S.Sign() == 0 || f.B.Sign() == 0:
		return fmt.Errorf("order %d has an empty fill", t.OrderID)
	}
	lhs := new(big.Int).Mul(f.S, t.amountB)
	lhs.Mul(lhs, big.NewInt(circuits.FillRateDenominator))
	rhs := new(big.Int).Mul(f.B, t.amountS)
	rhs.Mul(rhs, big.NewInt(circuits.FillRateNumerator))
	if lhs.Cmp(rhs) > 0 {
		return fmt.Errorf("order %d filled below its price", t.OrderID)
	}
	if !roundingErrorOK(f.S, t.amountB, t.amountS) {
		return fmt.Errorf("order %d fill has a rounding error too large", t.OrderID)
	}
	return nil
}

// roundingErrorOK reports whether floor(value*num/den) is within
// MaxRoundingErrorPercent of the exact result.
func roundingErrorOK(value, num, den *big.Int) bool {
	product := new(big.Int).Mul(value, num)
	remainder := new(big.Int).Rem(product, den)
	remainder.Mul(remainder, big.NewInt(100/circuits.MaxRoundingErrorPercent))
	return remainder.Cmp(product) <= 0
}

type fees struct {
	fee         *big.Int
	protocolFee *big.Int
	rebate      *big.Int
}

// computeFees returns the fees an order pays on the amount it bought.
func computeFees(fillB *big.Int, protocolFeeBips, feeBips, rebateBips uint8) fees {
	return fees{
		fee:         mulDiv(fillB, u64(feeBips), big.NewInt(circuits.FeeDenominator)),
		protocolFee: mulDiv(fillB, u64(protocolFeeBips), big.NewInt(circuits.ProtocolFeeDenominator)),
		rebate:      mulDiv(fillB, u64(rebateBips), big.NewInt(circuits.FeeDenominator)),
	}
}
