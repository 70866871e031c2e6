// Package transactions implements one circuit per transaction type. All of
// them run for every transaction slot of a block against the same state,
// and SelectTransaction keeps the outputs of the type the slot holds.
package transactions

import (
	"github.com/consensys/gnark/frontend"
	"github.com/vocdoni/zk-exchange/circuits"
	"github.com/vocdoni/zk-exchange/circuits/gadgets"
)

// BlockParams are the block values every transaction can read.
type BlockParams struct {
	ExchangeID           frontend.Variable
	Timestamp            frontend.Variable
	ProtocolTakerFeeBips frontend.Variable
	ProtocolMakerFeeBips frontend.Variable
	OperatorAccountID    frontend.Variable
}

// AccountLeaves are the leaves of one side of a transaction before it is
// applied.
type AccountLeaves struct {
	Account      circuits.Account[frontend.Variable]
	BalanceS     circuits.Balance[frontend.Variable]
	BalanceB     circuits.Balance[frontend.Variable]
	TradeHistory circuits.TradeHistory[frontend.Variable]
}

// Leaves are every leaf a transaction can change, before it is applied.
type Leaves struct {
	AccountA  AccountLeaves
	AccountB  AccountLeaves
	BalancePA circuits.Balance[frontend.Variable]
	BalancePB circuits.Balance[frontend.Variable]
	BalanceOA circuits.Balance[frontend.Variable]
	BalanceOB circuits.Balance[frontend.Variable]
}

// TransactionState is what the transaction circuits of a slot share.
type TransactionState struct {
	Constants *gadgets.Constants
	Block     *BlockParams
	Before    *Leaves
	// NumConditionalTransactions is the counter before the transaction.
	NumConditionalTransactions frontend.Variable
}

// TransactionCircuit is implemented by the circuit of every transaction
// type.
type TransactionCircuit interface {
	Output(v TxVariable) frontend.Variable
	PublicData() *gadgets.PublicData
}

// Base holds the outputs and the public data of a transaction circuit.
// Business rules of a circuit are only required when Selected is 1, the
// arithmetic is constrained in any case.
type Base struct {
	State    *TransactionState
	Selected frontend.Variable

	outputs [NumTxVariables]frontend.Variable
	data    gadgets.PublicData
}

func newBase(st *TransactionState, selected frontend.Variable) Base {
	b := Base{State: st, Selected: selected}
	for _, s := range []struct {
		vars   SideVariables
		leaves *AccountLeaves
	}{{SideA, &st.Before.AccountA}, {SideB, &st.Before.AccountB}} {
		b.outputs[s.vars.Address] = 0
		b.outputs[s.vars.Owner] = s.leaves.Account.Owner
		b.outputs[s.vars.PublicKeyX] = s.leaves.Account.PublicKeyX
		b.outputs[s.vars.PublicKeyY] = s.leaves.Account.PublicKeyY
		b.outputs[s.vars.Nonce] = s.leaves.Account.Nonce
		b.outputs[s.vars.WalletHash] = s.leaves.Account.WalletHash
		b.outputs[s.vars.BalanceSAddress] = 0
		b.outputs[s.vars.BalanceS] = s.leaves.BalanceS.Balance
		b.outputs[s.vars.BalanceBAddress] = 0
		b.outputs[s.vars.BalanceB] = s.leaves.BalanceB.Balance
		b.outputs[s.vars.TradeHistoryAddress] = 0
		b.outputs[s.vars.Filled] = s.leaves.TradeHistory.Filled
		b.outputs[s.vars.Cancelled] = s.leaves.TradeHistory.Cancelled
		b.outputs[s.vars.OrderID] = s.leaves.TradeHistory.OrderID
		b.outputs[s.vars.Hash] = 0
		b.outputs[s.vars.SignatureRequired] = 1
	}
	b.outputs[BalancePABalance] = st.Before.BalancePA.Balance
	b.outputs[BalancePBBalance] = st.Before.BalancePB.Balance
	b.outputs[BalanceOABalance] = st.Before.BalanceOA.Balance
	b.outputs[BalanceOBBalance] = st.Before.BalanceOB.Balance
	b.outputs[NumConditionalTransactions] = st.NumConditionalTransactions
	return b
}

// Output returns the value of an output after the transaction.
func (b *Base) Output(v TxVariable) frontend.Variable {
	return b.outputs[v]
}

// PublicData returns the data the transaction publishes, without its type.
func (b *Base) PublicData() *gadgets.PublicData {
	return &b.data
}

func (b *Base) set(v TxVariable, value frontend.Variable) {
	b.outputs[v] = value
}

func (b *Base) api() frontend.API {
	return b.State.Constants.API
}

// requireUserAccount requires an account touched by the transaction to be
// neither the protocol pool nor the operator, their balances are only
// changed through fees.
func (b *Base) requireUserAccount(id frontend.Variable) {
	api := b.api()
	gadgets.IfThenRequireNotEqual(api, b.Selected, id, circuits.ProtocolPoolAccountID)
	gadgets.IfThenRequireNotEqual(api, b.Selected, id, b.State.Block.OperatorAccountID)
}

// fee decodes a float16 fee and requires it to be accurate against the
// signed fee.
func (b *Base) fee(feeFloat, fee frontend.Variable) gadgets.Float {
	api := b.api()
	b.State.Constants.RangeCheck(fee, circuits.NumBitsAmount)
	f := gadgets.DecodeFloat(api, feeFloat, circuits.Float16Encoding)
	gadgets.RequireAccuracy(api, b.Selected, f.Value, fee, circuits.Float16Accuracy)
	return f
}

// nextNonce returns nonce + by, which must still fit the nonce width.
func (b *Base) nextNonce(nonce, by frontend.Variable) frontend.Variable {
	next := b.api().Add(nonce, by)
	b.State.Constants.RangeCheck(next, circuits.NumBitsNonce)
	return next
}

// countConditional adds v to the conditional transactions counter.
func (b *Base) countConditional(v frontend.Variable) {
	b.set(NumConditionalTransactions, b.api().Add(b.State.NumConditionalTransactions, v))
}

// Noop changes nothing and needs no signature.
type Noop struct {
	Base
}

func NewNoop(st *TransactionState, selected frontend.Variable) *Noop {
	n := &Noop{Base: newBase(st, selected)}
	n.set(SignatureRequiredA, 0)
	n.set(SignatureRequiredB, 0)
	return n
}
