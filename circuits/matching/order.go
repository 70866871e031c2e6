// Package matching validates orders and settles a taker order against a
// maker order: fill amounts, validity of the fills and fees.
package matching

import (
	"fmt"

	"github.com/consensys/gnark/frontend"
	"github.com/vocdoni/gnark-crypto-primitives/utils"
	"github.com/vocdoni/zk-exchange/circuits"
	"github.com/vocdoni/zk-exchange/circuits/gadgets"
	"github.com/vocdoni/zk-exchange/types"
)

// Order is a signed trading intent. Only its effect on the trading history
// is stored.
type Order struct {
	OrderID            frontend.Variable
	AccountID          frontend.Variable
	TokenS             frontend.Variable
	TokenB             frontend.Variable
	AmountS            frontend.Variable
	AmountB            frontend.Variable
	AllOrNone          frontend.Variable
	ValidSince         frontend.Variable
	ValidUntil         frontend.Variable
	MaxFeeBips         frontend.Variable
	Buy                frontend.Variable
	FeeBips            frontend.Variable
	RebateBips         frontend.Variable
	DualAuthPublicKeyX frontend.Variable
	DualAuthPublicKeyY frontend.Variable
}

// Serialize returns the signed fields of the order, exchangeID excluded.
func (o Order) Serialize() []frontend.Variable {
	return []frontend.Variable{
		o.OrderID,
		o.AccountID,
		o.TokenS,
		o.TokenB,
		o.AmountS,
		o.AmountB,
		o.AllOrNone,
		o.ValidSince,
		o.ValidUntil,
		o.MaxFeeBips,
		o.Buy,
		o.DualAuthPublicKeyX,
		o.DualAuthPublicKeyY,
	}
}

// OrderAssignment returns the circuit assignment of an order. A missing
// dual authoring key is assigned as zero.
func OrderAssignment(o *types.Order) Order {
	var dualX, dualY frontend.Variable = 0, 0
	if o.DualAuthPublicKey != nil {
		dualX, dualY = o.DualAuthPublicKey.X.MathBigInt(), o.DualAuthPublicKey.Y.MathBigInt()
	}
	return Order{
		OrderID:            o.OrderID,
		AccountID:          o.AccountID,
		TokenS:             o.TokenS,
		TokenB:             o.TokenB,
		AmountS:            o.AmountS.MathBigInt(),
		AmountB:            o.AmountB.MathBigInt(),
		AllOrNone:          circuits.BoolToBigInt(o.AllOrNone),
		ValidSince:         o.ValidSince,
		ValidUntil:         o.ValidUntil,
		MaxFeeBips:         o.MaxFeeBips,
		Buy:                circuits.BoolToBigInt(o.Buy),
		FeeBips:            o.FeeBips,
		RebateBips:         o.RebateBips,
		DualAuthPublicKeyX: dualX,
		DualAuthPublicKeyY: dualY,
	}
}

// OrderGadget is an order bound to an exchange with its trimmed trading
// history.
type OrderGadget struct {
	Order
	// Hash is the message the account signs.
	Hash frontend.Variable
	// StorageAddress is the trading history slot of the order.
	StorageAddress frontend.Variable
	// trading history once trimmed against the order id
	Filled         frontend.Variable
	Cancelled      frontend.Variable
	OrderIDToStore frontend.Variable
	// Valid is 1 when the order fields are consistent, it has to be
	// required by the caller.
	Valid frontend.Variable
}

// NewOrderGadget range checks the order, hashes it and trims the stored
// trading history of its slot.
func NewOrderGadget(c *gadgets.Constants, hFn utils.Hasher, exchangeID frontend.Variable,
	order Order, tradeHistory circuits.TradeHistory[frontend.Variable],
) (*OrderGadget, error) {
	api := c.API
	c.RangeCheck(order.AmountS, circuits.NumBitsAmount)
	c.RangeCheck(order.AmountB, circuits.NumBitsAmount)
	api.AssertIsDifferent(order.AmountS, 0)
	api.AssertIsDifferent(order.AmountB, 0)
	api.AssertIsBoolean(order.AllOrNone)
	api.AssertIsBoolean(order.Buy)
	c.RangeCheck(order.ValidSince, circuits.NumBitsTimestamp)
	c.RangeCheck(order.ValidUntil, circuits.NumBitsTimestamp)
	c.RangeCheck(order.MaxFeeBips, circuits.NumBitsBips)
	c.RangeCheck(order.FeeBips, circuits.NumBitsBips)
	c.RangeCheck(order.RebateBips, circuits.NumBitsBips)

	hash, err := hFn(api, append([]frontend.Variable{exchangeID}, order.Serialize()...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to hash order: %w", err)
	}
	g := &OrderGadget{
		Order:          order,
		Hash:           hash,
		StorageAddress: gadgets.LowBits(api, order.OrderID, circuits.NumBitsOrderID, circuits.NumBitsStorageAddress),
	}
	g.Filled, g.Cancelled, g.OrderIDToStore = TrimTradeHistory(api, tradeHistory, order.OrderID)

	_, feeBounded := gadgets.Leq(api, order.FeeBips, order.MaxFeeBips, circuits.NumBitsBips)
	g.Valid = gadgets.And(api,
		gadgets.Not(api, gadgets.IsEqual(api, order.TokenS, order.TokenB)),
		feeBounded,
		gadgets.Or(api, api.IsZero(order.FeeBips), api.IsZero(order.RebateBips)),
	)
	return g, nil
}

// FilledLimit returns the amount the trading history is compared against:
// amountB for buy orders, amountS otherwise.
func (g *OrderGadget) FilledLimit(api frontend.API) frontend.Variable {
	return api.Select(g.Buy, g.AmountB, g.AmountS)
}

// TrimTradeHistory resolves the trading history slot for orderID. The slot
// is shared by every order id with the same low bits:
//   - same order id: the stored leaf is used as is
//   - newer order id: the slot is reset
//   - older order id: the order was replaced, it counts as cancelled
func TrimTradeHistory(api frontend.API, th circuits.TradeHistory[frontend.Variable], orderID frontend.Variable,
) (filled, cancelled, orderIDToStore frontend.Variable) {
	newer, notOlder := gadgets.Leq(api, th.OrderID, orderID, circuits.NumBitsOrderID)
	older := gadgets.Not(api, notOlder)
	filled = api.Select(newer, 0, th.Filled)
	cancelled = api.Select(newer, 0, api.Select(older, 1, th.Cancelled))
	orderIDToStore = api.Select(older, th.OrderID, orderID)
	return filled, cancelled, orderIDToStore
}
