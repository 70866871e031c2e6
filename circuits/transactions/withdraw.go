package transactions

import (
	"fmt"

	"github.com/consensys/gnark/frontend"
	"github.com/vocdoni/zk-exchange/circuits"
	"github.com/vocdoni/zk-exchange/circuits/gadgets"
)

// WithdrawCircuit debits account A with the amount to withdraw, or its
// whole balance when it holds less. Type 0 is signed by the account and
// increases its nonce, type 1 is requested on-chain, pays no fee and is
// counted as conditional.
type WithdrawCircuit struct {
	Base
}

func NewWithdrawCircuit(st *TransactionState, selected frontend.Variable, tx Withdraw) (*WithdrawCircuit, error) {
	w := &WithdrawCircuit{Base: newBase(st, selected)}
	c := st.Constants
	api := c.API
	account := st.Before.AccountA

	api.AssertIsBoolean(tx.Type)
	w.requireUserAccount(tx.AccountID)
	c.RangeCheck(tx.Amount, circuits.NumBitsAmount)

	amount := gadgets.DecodeFloat(api, tx.AmountFloat, circuits.Float28Encoding)
	gadgets.RequireAccuracy(api, selected, amount.Value,
		gadgets.Min(api, tx.Amount, account.BalanceS.Balance, circuits.NumBitsAmount), circuits.Float28Accuracy)
	fee := w.fee(tx.FeeFloat, tx.Fee)
	gadgets.IfThenRequireEqual(api, api.Mul(selected, tx.Type), tx.Fee, 0)

	balanceS := gadgets.Sub(c, account.BalanceS.Balance, amount.Value, circuits.NumBitsAmount)
	balanceB, operator := gadgets.SubAdd(c, account.BalanceB.Balance, st.Before.BalanceOA.Balance,
		fee.Value, circuits.NumBitsAmount)
	signed := api.Sub(1, tx.Type)

	hash, err := circuits.HashFn(api, st.Block.ExchangeID, tx.AccountID, tx.TokenID, tx.Amount,
		tx.FeeTokenID, tx.Fee, account.Account.Nonce)
	if err != nil {
		return nil, fmt.Errorf("withdraw hash: %w", err)
	}

	w.set(AccountAAddress, tx.AccountID)
	w.set(AccountANonce, w.nextNonce(account.Account.Nonce, signed))
	w.set(BalanceASAddress, tx.TokenID)
	w.set(BalanceASBalance, balanceS)
	w.set(BalanceABAddress, tx.FeeTokenID)
	w.set(BalanceABBalance, balanceB)
	w.set(BalanceOABalance, operator)
	w.set(HashA, hash)
	w.set(SignatureRequiredA, signed)
	w.set(SignatureRequiredB, 0)
	w.countConditional(tx.Type)

	w.data.Add(api, account.Account.Owner, circuits.NumBitsAddress)
	w.data.Add(api, tx.AccountID, circuits.NumBitsAccount)
	w.data.Add(api, tx.TokenID, circuits.NumBitsToken)
	w.data.Add(api, amount.Encoded, circuits.Float28Encoding.NumBits())
	w.data.Add(api, tx.FeeTokenID, circuits.NumBitsToken)
	w.data.Add(api, fee.Encoded, circuits.Float16Encoding.NumBits())
	w.data.Add(api, account.Account.Nonce, circuits.NumBitsNonce)
	w.data.Add(api, tx.Type, circuits.NumBitsType)
	return w, nil
}
