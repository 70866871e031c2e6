package transactions

import (
	"fmt"

	"github.com/consensys/gnark/frontend"
	"github.com/vocdoni/zk-exchange/circuits/matching"
	"github.com/vocdoni/zk-exchange/state"
	"github.com/vocdoni/zk-exchange/types"
)

// Deposit credits an amount deposited on-chain to an account.
type Deposit struct {
	Owner     frontend.Variable
	AccountID frontend.Variable
	TokenID   frontend.Variable
	Amount    frontend.Variable
}

// Withdraw debits an amount to be withdrawn on-chain. AmountFloat is the
// amount actually withdrawn, FeeFloat the fee paid, float encoded.
type Withdraw struct {
	Type        frontend.Variable
	AccountID   frontend.Variable
	TokenID     frontend.Variable
	Amount      frontend.Variable
	FeeTokenID  frontend.Variable
	Fee         frontend.Variable
	AmountFloat frontend.Variable
	FeeFloat    frontend.Variable
}

type Transfer struct {
	Type          frontend.Variable
	AccountFromID frontend.Variable
	AccountToID   frontend.Variable
	TokenID       frontend.Variable
	Amount        frontend.Variable
	FeeTokenID    frontend.Variable
	Fee           frontend.Variable
	To            frontend.Variable
	AmountFloat   frontend.Variable
	FeeFloat      frontend.Variable
}

// SpotTrade settles OrderA (taker) against OrderB (maker). FillSA and
// FillSB are the float encoded amounts sold by each order.
type SpotTrade struct {
	OrderA matching.Order
	OrderB matching.Order
	FillSA frontend.Variable
	FillSB frontend.Variable
}

type NewAccount struct {
	PayerAccountID frontend.Variable
	FeeTokenID     frontend.Variable
	Fee            frontend.Variable
	NewAccountID   frontend.Variable
	NewOwner       frontend.Variable
	PublicKeyX     frontend.Variable
	PublicKeyY     frontend.Variable
	WalletHash     frontend.Variable
	FeeFloat       frontend.Variable
}

type PublicKeyUpdate struct {
	Type       frontend.Variable
	AccountID  frontend.Variable
	FeeTokenID frontend.Variable
	Fee        frontend.Variable
	PublicKeyX frontend.Variable
	PublicKeyY frontend.Variable
	FeeFloat   frontend.Variable
}

type OwnerChange struct {
	AccountID  frontend.Variable
	FeeTokenID frontend.Variable
	Fee        frontend.Variable
	NewOwner   frontend.Variable
	PublicKeyX frontend.Variable
	PublicKeyY frontend.Variable
	FeeFloat   frontend.Variable
}

// Inputs are the payloads of every transaction circuit of a slot. Only the
// payload of the type of the slot is meaningful, the others hold neutral
// values that satisfy their unconditional constraints.
type Inputs struct {
	Deposit         Deposit
	Withdraw        Withdraw
	Transfer        Transfer
	SpotTrade       SpotTrade
	NewAccount      NewAccount
	PublicKeyUpdate PublicKeyUpdate
	OwnerChange     OwnerChange
}

func NeutralDeposit() Deposit {
	return Deposit{Owner: 0, AccountID: 0, TokenID: 0, Amount: 0}
}

func NeutralWithdraw() Withdraw {
	return Withdraw{
		Type: 0, AccountID: 0, TokenID: 0, Amount: 0,
		FeeTokenID: 0, Fee: 0, AmountFloat: 0, FeeFloat: 0,
	}
}

func NeutralTransfer() Transfer {
	return Transfer{
		Type: 0, AccountFromID: 0, AccountToID: 0, TokenID: 0, Amount: 0,
		FeeTokenID: 0, Fee: 0, To: 0, AmountFloat: 0, FeeFloat: 0,
	}
}

// neutralOrder is an order with non zero amounts, so its price is defined,
// that fills nothing.
func neutralOrder() matching.Order {
	return matching.Order{
		OrderID: 0, AccountID: 0, TokenS: 0, TokenB: 0,
		AmountS: 1, AmountB: 1,
		AllOrNone: 0, ValidSince: 0, ValidUntil: 0,
		MaxFeeBips: 0, Buy: 0, FeeBips: 0, RebateBips: 0,
		DualAuthPublicKeyX: 0, DualAuthPublicKeyY: 0,
	}
}

func NeutralSpotTrade() SpotTrade {
	return SpotTrade{OrderA: neutralOrder(), OrderB: neutralOrder(), FillSA: 0, FillSB: 0}
}

// The neutral key of the account circuits is the identity point.

func NeutralNewAccount() NewAccount {
	return NewAccount{
		PayerAccountID: 0, FeeTokenID: 0, Fee: 0, NewAccountID: 0, NewOwner: 0,
		PublicKeyX: 0, PublicKeyY: 1, WalletHash: 0, FeeFloat: 0,
	}
}

func NeutralPublicKeyUpdate() PublicKeyUpdate {
	return PublicKeyUpdate{
		Type: 0, AccountID: 0, FeeTokenID: 0, Fee: 0,
		PublicKeyX: 0, PublicKeyY: 1, FeeFloat: 0,
	}
}

func NeutralOwnerChange() OwnerChange {
	return OwnerChange{
		AccountID: 0, FeeTokenID: 0, Fee: 0, NewOwner: 0,
		PublicKeyX: 0, PublicKeyY: 1, FeeFloat: 0,
	}
}

// NeutralInputs returns the inputs of a noop slot.
func NeutralInputs() Inputs {
	return Inputs{
		Deposit:         NeutralDeposit(),
		Withdraw:        NeutralWithdraw(),
		Transfer:        NeutralTransfer(),
		SpotTrade:       NeutralSpotTrade(),
		NewAccount:      NeutralNewAccount(),
		PublicKeyUpdate: NeutralPublicKeyUpdate(),
		OwnerChange:     NeutralOwnerChange(),
	}
}

// InputsAssignment returns the inputs of the slot of an applied
// transaction: its payload and the float values the state chose, neutral
// payloads for the other types.
func InputsAssignment(w *state.TxWitness) (Inputs, error) {
	in := NeutralInputs()
	tx := &w.Tx
	switch w.Type {
	case types.TxTypeNoop:
	case types.TxTypeDeposit:
		d := tx.Deposit
		in.Deposit = Deposit{
			Owner:     state.AddressToBigInt(d.Owner),
			AccountID: d.AccountID,
			TokenID:   d.TokenID,
			Amount:    d.Amount.MathBigInt(),
		}
	case types.TxTypeWithdraw:
		wd := tx.Withdraw
		in.Withdraw = Withdraw{
			Type:        wd.Type,
			AccountID:   wd.AccountID,
			TokenID:     wd.TokenID,
			Amount:      wd.Amount.MathBigInt(),
			FeeTokenID:  wd.FeeTokenID,
			Fee:         wd.Fee.MathBigInt(),
			AmountFloat: w.AmountFloat,
			FeeFloat:    w.FeeFloat,
		}
	case types.TxTypeTransfer:
		t := tx.Transfer
		in.Transfer = Transfer{
			Type:          t.Type,
			AccountFromID: t.AccountFromID,
			AccountToID:   t.AccountToID,
			TokenID:       t.TokenID,
			Amount:        t.Amount.MathBigInt(),
			FeeTokenID:    t.FeeTokenID,
			Fee:           t.Fee.MathBigInt(),
			To:            state.AddressToBigInt(t.To),
			AmountFloat:   w.AmountFloat,
			FeeFloat:      w.FeeFloat,
		}
	case types.TxTypeSpotTrade:
		in.SpotTrade = SpotTrade{
			OrderA: matching.OrderAssignment(&tx.SpotTrade.OrderA),
			OrderB: matching.OrderAssignment(&tx.SpotTrade.OrderB),
			FillSA: w.FillSA,
			FillSB: w.FillSB,
		}
	case types.TxTypeNewAccount:
		n := tx.NewAccount
		in.NewAccount = NewAccount{
			PayerAccountID: n.PayerAccountID,
			FeeTokenID:     n.FeeTokenID,
			Fee:            n.Fee.MathBigInt(),
			NewAccountID:   n.NewAccountID,
			NewOwner:       state.AddressToBigInt(n.NewOwner),
			PublicKeyX:     n.NewPublicKey.X.MathBigInt(),
			PublicKeyY:     n.NewPublicKey.Y.MathBigInt(),
			WalletHash:     n.WalletHash.MathBigInt(),
			FeeFloat:       w.FeeFloat,
		}
	case types.TxTypePublicKeyUpdate:
		u := tx.PublicKeyUpdate
		in.PublicKeyUpdate = PublicKeyUpdate{
			Type:       u.Type,
			AccountID:  u.AccountID,
			FeeTokenID: u.FeeTokenID,
			Fee:        u.Fee.MathBigInt(),
			PublicKeyX: u.PublicKey.X.MathBigInt(),
			PublicKeyY: u.PublicKey.Y.MathBigInt(),
			FeeFloat:   w.FeeFloat,
		}
	case types.TxTypeOwnerChange:
		o := tx.OwnerChange
		in.OwnerChange = OwnerChange{
			AccountID:  o.AccountID,
			FeeTokenID: o.FeeTokenID,
			Fee:        o.Fee.MathBigInt(),
			NewOwner:   state.AddressToBigInt(o.NewOwner),
			PublicKeyX: o.NewPublicKey.X.MathBigInt(),
			PublicKeyY: o.NewPublicKey.Y.MathBigInt(),
			FeeFloat:   w.FeeFloat,
		}
	default:
		return Inputs{}, fmt.Errorf("unknown transaction type %d", w.Type)
	}
	return in, nil
}
