package transactions

import (
	"fmt"

	"github.com/consensys/gnark/frontend"
	"github.com/vocdoni/zk-exchange/circuits"
	"github.com/vocdoni/zk-exchange/circuits/gadgets"
	"github.com/vocdoni/zk-exchange/circuits/matching"
)

// SpotTradeCircuit settles a taker order of account A against a maker
// order of account B. Each order pays its fee and protocol fee, or gets its
// rebate, in the token it buys.
type SpotTradeCircuit struct {
	Base

	OrderA *matching.OrderGadget
	OrderB *matching.OrderGadget
	Match  matching.Match
}

func NewSpotTradeCircuit(st *TransactionState, selected frontend.Variable, tx SpotTrade) (*SpotTradeCircuit, error) {
	s := &SpotTradeCircuit{Base: newBase(st, selected)}
	c := st.Constants
	api := c.API
	a, b := st.Before.AccountA, st.Before.AccountB

	var err error
	if s.OrderA, err = matching.NewOrderGadget(c, circuits.HashFn, st.Block.ExchangeID, tx.OrderA, a.TradeHistory); err != nil {
		return nil, fmt.Errorf("order A: %w", err)
	}
	if s.OrderB, err = matching.NewOrderGadget(c, circuits.HashFn, st.Block.ExchangeID, tx.OrderB, b.TradeHistory); err != nil {
		return nil, fmt.Errorf("order B: %w", err)
	}
	orderA, orderB := s.OrderA, s.OrderB
	s.requireUserAccount(orderA.AccountID)
	s.requireUserAccount(orderB.AccountID)
	gadgets.IfThenRequireNotEqual(api, selected, orderA.AccountID, orderB.AccountID)
	gadgets.IfThenRequireEqual(api, selected, orderA.TokenS, orderB.TokenB)
	gadgets.IfThenRequireEqual(api, selected, orderA.TokenB, orderB.TokenS)

	s.Match = matching.OrderMatching(c, orderA, orderB, a.BalanceS.Balance, b.BalanceS.Balance)
	fillSA := gadgets.DecodeFloat(api, tx.FillSA, circuits.Float24Encoding)
	fillSB := gadgets.DecodeFloat(api, tx.FillSB, circuits.Float24Encoding)
	gadgets.RequireAccuracy(api, selected, fillSA.Value, s.Match.Taker.S, circuits.Float24Accuracy)
	gadgets.RequireAccuracy(api, selected, fillSB.Value, s.Match.Maker.S, circuits.Float24Accuracy)

	filledA := api.Add(orderA.Filled, api.Select(orderA.Buy, fillSB.Value, fillSA.Value))
	filledB := api.Add(orderB.Filled, api.Select(orderB.Buy, fillSA.Value, fillSB.Value))
	gadgets.IfThenRequire(api, selected, gadgets.And(api,
		s.Match.Valid,
		matching.CheckValid(c, orderA, matching.Fill{S: fillSA.Value, B: fillSB.Value}, filledA, st.Block.Timestamp),
		matching.CheckValid(c, orderB, matching.Fill{S: fillSB.Value, B: fillSA.Value}, filledB, st.Block.Timestamp),
	))

	feesA := matching.FeeCalculator(c, fillSB.Value, st.Block.ProtocolTakerFeeBips, orderA.FeeBips, orderA.RebateBips)
	feesB := matching.FeeCalculator(c, fillSA.Value, st.Block.ProtocolMakerFeeBips, orderB.FeeBips, orderB.RebateBips)

	balanceSA := gadgets.NewDynamicVariable(a.BalanceS.Balance)
	balanceBA := gadgets.NewDynamicVariable(a.BalanceB.Balance)
	balanceSB := gadgets.NewDynamicVariable(b.BalanceS.Balance)
	balanceBB := gadgets.NewDynamicVariable(b.BalanceB.Balance)
	poolA := gadgets.NewDynamicVariable(st.Before.BalancePA.Balance)
	poolB := gadgets.NewDynamicVariable(st.Before.BalancePB.Balance)
	operatorA := gadgets.NewDynamicVariable(st.Before.BalanceOA.Balance)
	operatorB := gadgets.NewDynamicVariable(st.Before.BalanceOB.Balance)
	// the order of the transfers matters, every intermediate balance is
	// range checked
	gadgets.Transfer(c, balanceSA, balanceBB, fillSA.Value)
	gadgets.Transfer(c, balanceSB, balanceBA, fillSB.Value)
	gadgets.Transfer(c, balanceBA, operatorA, feesA.Fee)
	gadgets.Transfer(c, balanceBB, operatorB, feesB.Fee)
	gadgets.Transfer(c, operatorA, balanceBA, feesA.Rebate)
	gadgets.Transfer(c, operatorB, balanceBB, feesB.Rebate)
	gadgets.Transfer(c, balanceBA, poolA, feesA.ProtocolFee)
	gadgets.Transfer(c, balanceBB, poolB, feesB.ProtocolFee)

	for _, side := range []struct {
		vars   SideVariables
		order  *matching.OrderGadget
		filled frontend.Variable
		s, b   *gadgets.DynamicVariable
	}{
		{vars: SideA, order: orderA, filled: filledA, s: balanceSA, b: balanceBA},
		{vars: SideB, order: orderB, filled: filledB, s: balanceSB, b: balanceBB},
	} {
		s.set(side.vars.Address, side.order.AccountID)
		s.set(side.vars.BalanceSAddress, side.order.TokenS)
		s.set(side.vars.BalanceS, side.s.Back())
		s.set(side.vars.BalanceBAddress, side.order.TokenB)
		s.set(side.vars.BalanceB, side.b.Back())
		s.set(side.vars.TradeHistoryAddress, side.order.StorageAddress)
		s.set(side.vars.Filled, side.filled)
		s.set(side.vars.Cancelled, side.order.Cancelled)
		s.set(side.vars.OrderID, side.order.OrderIDToStore)
		s.set(side.vars.Hash, side.order.Hash)
	}
	s.set(BalancePABalance, poolA.Back())
	s.set(BalancePBBalance, poolB.Back())
	s.set(BalanceOABalance, operatorA.Back())
	s.set(BalanceOBBalance, operatorB.Back())

	s.data.Add(api, orderA.OrderID, circuits.NumBitsOrderID)
	s.data.Add(api, orderB.OrderID, circuits.NumBitsOrderID)
	s.data.Add(api, orderA.AccountID, circuits.NumBitsAccount)
	s.data.Add(api, orderB.AccountID, circuits.NumBitsAccount)
	s.data.Add(api, orderA.TokenS, circuits.NumBitsToken)
	s.data.Add(api, orderB.TokenS, circuits.NumBitsToken)
	s.data.Add(api, fillSA.Encoded, circuits.Float24Encoding.NumBits())
	s.data.Add(api, fillSB.Encoded, circuits.Float24Encoding.NumBits())
	s.data.Add(api, orderA.FeeBips, circuits.NumBitsPublishedBips)
	s.data.Add(api, orderA.RebateBips, circuits.NumBitsPublishedBips)
	s.data.Add(api, orderB.FeeBips, circuits.NumBitsPublishedBips)
	s.data.Add(api, orderB.RebateBips, circuits.NumBitsPublishedBips)
	return s, nil
}
