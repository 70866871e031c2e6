package transactions

import (
	"fmt"

	"github.com/consensys/gnark/frontend"
	"github.com/vocdoni/zk-exchange/circuits"
	"github.com/vocdoni/zk-exchange/circuits/gadgets"
)

// payFee moves a decoded fee from the balance B of account A to the
// operator and sets both outputs.
func (b *Base) payFee(feeTokenID frontend.Variable, fee gadgets.Float) {
	st := b.State
	balance, operator := gadgets.SubAdd(st.Constants, st.Before.AccountA.BalanceB.Balance,
		st.Before.BalanceOA.Balance, fee.Value, circuits.NumBitsAmount)
	b.set(BalanceABAddress, feeTokenID)
	b.set(BalanceABBalance, balance)
	b.set(BalanceOABalance, operator)
}

// NewAccountCircuit creates account B, paid by account A. The new account
// must be empty and can't be one of the reserved accounts.
type NewAccountCircuit struct {
	Base
}

func NewNewAccountCircuit(st *TransactionState, selected frontend.Variable, tx NewAccount) (*NewAccountCircuit, error) {
	n := &NewAccountCircuit{Base: newBase(st, selected)}
	c := st.Constants
	api := c.API
	payer, account := st.Before.AccountA, st.Before.AccountB

	n.requireUserAccount(tx.PayerAccountID)
	n.requireUserAccount(tx.NewAccountID)
	gadgets.IfThenRequire(api, selected, gadgets.Lt(api, circuits.NumReservedAccounts-1, tx.NewAccountID, circuits.NumBitsAccount))
	gadgets.IfThenRequireNotEqual(api, selected, tx.NewOwner, 0)
	gadgets.IfThenRequireEqual(api, selected, account.Account.Owner, 0)
	gadgets.IfThenRequireEqual(api, selected, account.Account.BalancesRoot, c.EmptyBalancesRoot)

	fee := n.fee(tx.FeeFloat, tx.Fee)
	key := gadgets.PublicKey{X: tx.PublicKeyX, Y: tx.PublicKeyY}
	key.AssertIsOnCurve(c)
	compressed := key.Compress(c)
	n.payFee(tx.FeeTokenID, fee)

	hash, err := circuits.HashFn(api, st.Block.ExchangeID, tx.PayerAccountID, tx.FeeTokenID, tx.Fee,
		tx.NewAccountID, tx.NewOwner, tx.PublicKeyX, tx.PublicKeyY, tx.WalletHash, payer.Account.Nonce)
	if err != nil {
		return nil, fmt.Errorf("new account hash: %w", err)
	}

	n.set(AccountAAddress, tx.PayerAccountID)
	n.set(AccountANonce, n.nextNonce(payer.Account.Nonce, 1))
	n.set(AccountBAddress, tx.NewAccountID)
	n.set(AccountBOwner, tx.NewOwner)
	n.set(AccountBPublicKeyX, tx.PublicKeyX)
	n.set(AccountBPublicKeyY, tx.PublicKeyY)
	n.set(AccountBWalletHash, tx.WalletHash)
	n.set(HashA, hash)
	n.set(SignatureRequiredB, 0)

	n.data.Add(api, tx.PayerAccountID, circuits.NumBitsAccount)
	n.data.Add(api, tx.FeeTokenID, circuits.NumBitsToken)
	n.data.Add(api, fee.Encoded, circuits.Float16Encoding.NumBits())
	n.data.Add(api, tx.NewAccountID, circuits.NumBitsAccount)
	n.data.Add(api, tx.NewOwner, circuits.NumBitsAddress)
	n.data.AddBits(compressed...)
	n.data.Add(api, tx.WalletHash, circuits.NumBitsHash)
	return n, nil
}

// PublicKeyUpdateCircuit sets the key of account A. Type 0 is signed with
// the current key, type 1 is approved on-chain.
type PublicKeyUpdateCircuit struct {
	Base
}

func NewPublicKeyUpdateCircuit(st *TransactionState, selected frontend.Variable, tx PublicKeyUpdate,
) (*PublicKeyUpdateCircuit, error) {
	u := &PublicKeyUpdateCircuit{Base: newBase(st, selected)}
	c := st.Constants
	api := c.API
	account := st.Before.AccountA

	api.AssertIsBoolean(tx.Type)
	u.requireUserAccount(tx.AccountID)
	fee := u.fee(tx.FeeFloat, tx.Fee)
	key := gadgets.PublicKey{X: tx.PublicKeyX, Y: tx.PublicKeyY}
	key.AssertIsOnCurve(c)
	compressed := key.Compress(c)
	u.payFee(tx.FeeTokenID, fee)
	signed := api.Sub(1, tx.Type)

	hash, err := circuits.HashFn(api, st.Block.ExchangeID, tx.AccountID, tx.FeeTokenID, tx.Fee,
		tx.PublicKeyX, tx.PublicKeyY, account.Account.Nonce)
	if err != nil {
		return nil, fmt.Errorf("public key update hash: %w", err)
	}

	u.set(AccountAAddress, tx.AccountID)
	u.set(AccountAPublicKeyX, tx.PublicKeyX)
	u.set(AccountAPublicKeyY, tx.PublicKeyY)
	u.set(AccountANonce, u.nextNonce(account.Account.Nonce, signed))
	u.set(HashA, hash)
	u.set(SignatureRequiredA, signed)
	u.set(SignatureRequiredB, 0)
	u.countConditional(tx.Type)

	u.data.Add(api, account.Account.Owner, circuits.NumBitsAddress)
	u.data.Add(api, tx.AccountID, circuits.NumBitsAccount)
	u.data.Add(api, account.Account.Nonce, circuits.NumBitsNonce)
	u.data.AddBits(compressed...)
	u.data.Add(api, tx.FeeTokenID, circuits.NumBitsToken)
	u.data.Add(api, fee.Encoded, circuits.Float16Encoding.NumBits())
	u.data.Add(api, tx.Type, circuits.NumBitsType)
	return u, nil
}

// OwnerChangeCircuit hands account A over to a new owner with a new key,
// signed with the current key.
type OwnerChangeCircuit struct {
	Base
}

func NewOwnerChangeCircuit(st *TransactionState, selected frontend.Variable, tx OwnerChange) (*OwnerChangeCircuit, error) {
	o := &OwnerChangeCircuit{Base: newBase(st, selected)}
	c := st.Constants
	api := c.API
	account := st.Before.AccountA

	o.requireUserAccount(tx.AccountID)
	gadgets.IfThenRequireNotEqual(api, selected, tx.NewOwner, 0)
	fee := o.fee(tx.FeeFloat, tx.Fee)
	key := gadgets.PublicKey{X: tx.PublicKeyX, Y: tx.PublicKeyY}
	key.AssertIsOnCurve(c)
	compressed := key.Compress(c)
	o.payFee(tx.FeeTokenID, fee)

	hash, err := circuits.HashFn(api, st.Block.ExchangeID, tx.AccountID, tx.FeeTokenID, tx.Fee,
		tx.NewOwner, tx.PublicKeyX, tx.PublicKeyY, account.Account.Nonce)
	if err != nil {
		return nil, fmt.Errorf("owner change hash: %w", err)
	}

	o.set(AccountAAddress, tx.AccountID)
	o.set(AccountAOwner, tx.NewOwner)
	o.set(AccountAPublicKeyX, tx.PublicKeyX)
	o.set(AccountAPublicKeyY, tx.PublicKeyY)
	o.set(AccountANonce, o.nextNonce(account.Account.Nonce, 1))
	o.set(HashA, hash)
	o.set(SignatureRequiredB, 0)

	o.data.Add(api, account.Account.Owner, circuits.NumBitsAddress)
	o.data.Add(api, tx.AccountID, circuits.NumBitsAccount)
	o.data.Add(api, tx.FeeTokenID, circuits.NumBitsToken)
	o.data.Add(api, fee.Encoded, circuits.Float16Encoding.NumBits())
	o.data.Add(api, tx.NewOwner, circuits.NumBitsAddress)
	o.data.Add(api, account.Account.Nonce, circuits.NumBitsNonce)
	o.data.AddBits(compressed...)
	return o, nil
}
