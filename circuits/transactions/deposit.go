package transactions

import (
	"github.com/consensys/gnark/frontend"
	"github.com/vocdoni/zk-exchange/circuits"
	"github.com/vocdoni/zk-exchange/circuits/gadgets"
)

// DepositCircuit credits account A. The deposit is authorized by the
// on-chain transaction that created it, so it is counted as conditional and
// needs no signature. The first deposit to an account sets its owner.
type DepositCircuit struct {
	Base
}

func NewDepositCircuit(st *TransactionState, selected frontend.Variable, tx Deposit) *DepositCircuit {
	d := &DepositCircuit{Base: newBase(st, selected)}
	c := st.Constants
	api := c.API
	account := st.Before.AccountA

	d.requireUserAccount(tx.AccountID)
	gadgets.IfThenRequire(api, selected, gadgets.Or(api,
		api.IsZero(account.Account.Owner),
		gadgets.IsEqual(api, account.Account.Owner, tx.Owner),
	))
	c.RangeCheck(tx.Amount, circuits.NumBitsAmount)
	balance := gadgets.Add(c, account.BalanceS.Balance, tx.Amount, circuits.NumBitsAmount)

	d.set(AccountAAddress, tx.AccountID)
	d.set(AccountAOwner, tx.Owner)
	d.set(BalanceASAddress, tx.TokenID)
	d.set(BalanceASBalance, balance)
	d.set(SignatureRequiredA, 0)
	d.set(SignatureRequiredB, 0)
	d.countConditional(1)

	d.data.Add(api, tx.Owner, circuits.NumBitsAddress)
	d.data.Add(api, tx.AccountID, circuits.NumBitsAccount)
	d.data.Add(api, tx.TokenID, circuits.NumBitsToken)
	d.data.Add(api, tx.Amount, circuits.NumBitsAmount)
	return d
}
