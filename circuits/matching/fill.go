package matching

import (
	"github.com/consensys/gnark/frontend"
	"github.com/vocdoni/zk-exchange/circuits"
	"github.com/vocdoni/zk-exchange/circuits/gadgets"
)

// Fill is an amount sold (S) and bought (B) by an order.
type Fill struct {
	S frontend.Variable
	B frontend.Variable
}

// MaxFillAmounts returns the largest fill of the order given what was
// already filled and the balance the account holds of the token sold. A
// filled amount above the order amount leaves nothing to fill.
func MaxFillAmounts(c *gadgets.Constants, order *OrderGadget, balanceS frontend.Variable) Fill {
	api := c.API
	limit := order.FilledLimit(api)
	exceeded := gadgets.Lt(api, limit, order.Filled, circuits.NumBitsAmount)
	remaining := api.Select(exceeded, 0, api.Sub(limit, order.Filled))

	// the quotient only fits the amount range for buy orders
	remainingSBuy, _ := gadgets.MulDiv(c, api.Select(order.Buy, remaining, 0), order.AmountS, order.AmountB,
		circuits.NumBitsAmount, circuits.NumBitsAmount)
	remainingS := api.Select(order.Buy, remainingSBuy, remaining)

	balanceLimited := gadgets.Lt(api, balanceS, remainingS, circuits.NumBitsAmount)
	fillS := api.Select(balanceLimited, balanceS, remainingS)
	fillBPrice, _ := gadgets.MulDiv(c, fillS, order.AmountB, order.AmountS,
		circuits.NumBitsAmount, circuits.NumBitsAmount)
	// a buy order not limited by its balance gets exactly what it asked
	exactB := api.And(order.Buy, gadgets.Not(api, balanceLimited))
	return Fill{S: fillS, B: api.Select(exactB, remaining, fillBPrice)}
}

// Match is the outcome of matching a taker against a maker.
type Match struct {
	Taker Fill
	Maker Fill
	// Valid is 1 when the maker doesn't get more than the taker sells.
	Valid frontend.Variable
}

// TakerMakerMatching settles the maximum fills of two orders. The side that
// can trade less is the limiting one and the other side is adjusted to it,
// at the maker price when the taker limits and at the taker price when the
// maker does.
func TakerMakerMatching(c *gadgets.Constants, taker, maker *OrderGadget, takerFill, makerFill Fill) Match {
	api := c.API
	takerLimited := gadgets.Lt(api, takerFill.B, makerFill.S, circuits.NumBitsAmount)

	// each quotient is bounded by an order amount only on its own branch,
	// the other branch divides zero
	makerBTaker, _ := gadgets.MulDiv(c, api.Select(takerLimited, takerFill.B, 0), maker.AmountB, maker.AmountS,
		circuits.NumBitsAmount, circuits.NumBitsAmount)
	takerSMaker, _ := gadgets.MulDiv(c, api.Select(takerLimited, 0, makerFill.S), taker.AmountS, taker.AmountB,
		circuits.NumBitsAmount, circuits.NumBitsAmount)

	m := Match{
		Taker: Fill{
			S: api.Select(takerLimited, takerFill.S, takerSMaker),
			B: api.Select(takerLimited, takerFill.B, makerFill.S),
		},
		Maker: Fill{
			S: api.Select(takerLimited, takerFill.B, makerFill.S),
			B: api.Select(takerLimited, makerBTaker, makerFill.B),
		},
	}
	_, m.Valid = gadgets.Leq(api, m.Maker.B, m.Taker.S, circuits.NumBitsAmount)
	return m
}

// OrderMatching matches a taker and a maker order, each bounded by the
// balance its account holds of the token sold. The match is valid only if
// both orders are.
func OrderMatching(c *gadgets.Constants, taker, maker *OrderGadget, balanceSTaker, balanceSMaker frontend.Variable) Match {
	m := TakerMakerMatching(c, taker, maker,
		MaxFillAmounts(c, taker, balanceSTaker),
		MaxFillAmounts(c, maker, balanceSMaker))
	m.Valid = gadgets.And(c.API, taker.Valid, maker.Valid, m.Valid)
	return m
}

// CheckValid returns 1 when a fill is acceptable for the order:
//   - the block timestamp is inside the order validity window
//   - the order is not cancelled
//   - an all-or-none order is completely filled after the trade
//   - the fill rate honours the order price, with a small tolerance
//   - the rounding error of the price is small
//   - nothing is zero
func CheckValid(c *gadgets.Constants, order *OrderGadget, fill Fill, filledAfter, timestamp frontend.Variable) frontend.Variable {
	api := c.API
	_, started := gadgets.Leq(api, order.ValidSince, timestamp, circuits.NumBitsTimestamp)
	_, notExpired := gadgets.Leq(api, timestamp, order.ValidUntil, circuits.NumBitsTimestamp)

	completed := gadgets.IsEqual(api, filledAfter, order.FilledLimit(api))
	allOrNone := gadgets.Or(api, gadgets.Not(api, order.AllOrNone), completed)

	_, fillRate := gadgets.Leq(api,
		api.Mul(fill.S, order.AmountB, circuits.FillRateDenominator),
		api.Mul(fill.B, order.AmountS, circuits.FillRateNumerator),
		2*circuits.NumBitsAmount+11)
	rounding := gadgets.RoundingError(c, fill.S, order.AmountB, order.AmountS)

	return gadgets.And(api,
		started,
		notExpired,
		api.IsZero(order.Cancelled),
		allOrNone,
		fillRate,
		rounding,
		gadgets.Not(api, api.IsZero(fill.S)),
		gadgets.Not(api, api.IsZero(fill.B)),
	)
}

// Fees is what an order pays for a fill: fees and rebates are in bips of
// the amount bought, the protocol fee in protocol bips.
type Fees struct {
	Fee         frontend.Variable
	ProtocolFee frontend.Variable
	Rebate      frontend.Variable
}

// FeeCalculator computes the fees of an order on the amount it bought.
func FeeCalculator(c *gadgets.Constants, fillB, protocolFeeBips, feeBips, rebateBips frontend.Variable) Fees {
	protocolFee, _ := gadgets.MulDiv(c, fillB, protocolFeeBips, c.ProtocolFeeDenominator,
		circuits.NumBitsAmount, circuits.NumBitsProtocolFeeBips+10)
	fee, _ := gadgets.MulDiv(c, fillB, feeBips, c.FeeDenominator,
		circuits.NumBitsAmount, circuits.NumBitsBips+8)
	rebate, _ := gadgets.MulDiv(c, fillB, rebateBips, c.FeeDenominator,
		circuits.NumBitsAmount, circuits.NumBitsBips+8)
	return Fees{Fee: fee, ProtocolFee: protocolFee, Rebate: rebate}
}
