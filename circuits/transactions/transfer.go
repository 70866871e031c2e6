package transactions

import (
	"fmt"

	"github.com/consensys/gnark/frontend"
	"github.com/vocdoni/zk-exchange/circuits"
	"github.com/vocdoni/zk-exchange/circuits/gadgets"
)

// TransferCircuit moves an amount from account A to account B and pays a
// fee to the operator. The recipient is identified by its owner, which is
// set on the account the first time it receives something. Type 1
// transfers are approved on-chain: no signature, no nonce change.
type TransferCircuit struct {
	Base
}

func NewTransferCircuit(st *TransactionState, selected frontend.Variable, tx Transfer) (*TransferCircuit, error) {
	t := &TransferCircuit{Base: newBase(st, selected)}
	c := st.Constants
	api := c.API
	from, to := st.Before.AccountA, st.Before.AccountB

	api.AssertIsBoolean(tx.Type)
	t.requireUserAccount(tx.AccountFromID)
	t.requireUserAccount(tx.AccountToID)
	gadgets.IfThenRequireNotEqual(api, selected, tx.To, 0)
	gadgets.IfThenRequire(api, selected, gadgets.Or(api,
		api.IsZero(to.Account.Owner),
		gadgets.IsEqual(api, to.Account.Owner, tx.To),
	))

	c.RangeCheck(tx.Amount, circuits.NumBitsAmount)
	amount := gadgets.DecodeFloat(api, tx.AmountFloat, circuits.Float24Encoding)
	gadgets.RequireAccuracy(api, selected, amount.Value, tx.Amount, circuits.Float24Accuracy)
	fee := t.fee(tx.FeeFloat, tx.Fee)

	balanceFrom := gadgets.NewDynamicVariable(from.BalanceS.Balance)
	balanceFee := gadgets.NewDynamicVariable(from.BalanceB.Balance)
	balanceTo := gadgets.NewDynamicVariable(to.BalanceB.Balance)
	operator := gadgets.NewDynamicVariable(st.Before.BalanceOA.Balance)
	gadgets.Transfer(c, balanceFrom, balanceTo, amount.Value)
	gadgets.Transfer(c, balanceFee, operator, fee.Value)
	signed := api.Sub(1, tx.Type)

	hash, err := circuits.HashFn(api, st.Block.ExchangeID, tx.AccountFromID, tx.AccountToID, tx.TokenID,
		tx.Amount, tx.FeeTokenID, tx.Fee, tx.To, from.Account.Nonce)
	if err != nil {
		return nil, fmt.Errorf("transfer hash: %w", err)
	}

	t.set(AccountAAddress, tx.AccountFromID)
	t.set(AccountANonce, t.nextNonce(from.Account.Nonce, signed))
	t.set(BalanceASAddress, tx.TokenID)
	t.set(BalanceASBalance, balanceFrom.Back())
	t.set(BalanceABAddress, tx.FeeTokenID)
	t.set(BalanceABBalance, balanceFee.Back())
	t.set(AccountBAddress, tx.AccountToID)
	t.set(AccountBOwner, tx.To)
	t.set(BalanceBBAddress, tx.TokenID)
	t.set(BalanceBBBalance, balanceTo.Back())
	t.set(BalanceOABalance, operator.Back())
	t.set(HashA, hash)
	t.set(SignatureRequiredA, signed)
	t.set(SignatureRequiredB, 0)
	t.countConditional(tx.Type)

	t.data.Add(api, tx.Type, circuits.NumBitsType)
	t.data.Add(api, tx.AccountFromID, circuits.NumBitsAccount)
	t.data.Add(api, tx.AccountToID, circuits.NumBitsAccount)
	t.data.Add(api, tx.TokenID, circuits.NumBitsToken)
	t.data.Add(api, tx.FeeTokenID, circuits.NumBitsToken)
	t.data.Add(api, amount.Encoded, circuits.Float24Encoding.NumBits())
	t.data.Add(api, fee.Encoded, circuits.Float16Encoding.NumBits())
	t.data.Add(api, from.Account.Nonce, circuits.NumBitsNonce)
	t.data.Add(api, from.Account.Owner, circuits.NumBitsAddress)
	t.data.Add(api, tx.To, circuits.NumBitsAddress)
	return t, nil
}
