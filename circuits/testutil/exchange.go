// Package testutil builds exchange fixtures for tests: accounts with
// signing keys, genesis states and signed transactions.
package testutil

import (
	"crypto/rand"
	"math/big"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/twistededwards/eddsa"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/vocdoni/zk-exchange/circuits"
	"github.com/vocdoni/zk-exchange/state"
	"github.com/vocdoni/zk-exchange/types"
	"go.vocdoni.io/dvote/db/metadb"
)

// Account is an exchange account of a test: its id, the owner address and
// the EdDSA key it signs with.
type Account struct {
	ID    uint32
	Owner common.Address
	Key   *eddsa.PrivateKey
}

// GenerateAccount generates a new account with a random owner and key.
func GenerateAccount(id uint32) (*Account, error) {
	// the owner address is derived from a regular ethereum key
	ethKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	key, err := eddsa.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &Account{
		ID:    id,
		Owner: crypto.PubkeyToAddress(ethKey.PublicKey),
		Key:   key,
	}, nil
}

// PublicKey returns the public key of the account.
func (a *Account) PublicKey() types.PublicKey {
	x, y := circuits.PublicKeyCoordinates(a.Key)
	return types.PublicKey{X: types.NewIntFromBig(x), Y: types.NewIntFromBig(y)}
}

// Genesis returns the genesis entry of the account with its balances.
func (a *Account) Genesis(balances map[uint32]*big.Int) state.GenesisAccount {
	x, y := circuits.PublicKeyCoordinates(a.Key)
	return state.GenesisAccount{
		ID:         a.ID,
		Owner:      state.AddressToBigInt(a.Owner),
		PublicKeyX: x,
		PublicKeyY: y,
		Balances:   balances,
	}
}

// Sign signs a message hash with the account key.
func (a *Account) Sign(tb testing.TB, msg *big.Int) types.HexBytes {
	tb.Helper()
	sig, err := circuits.SignMessage(a.Key, msg)
	if err != nil {
		tb.Fatalf("failed to sign: %v", err)
	}
	return sig
}

// Exchange is a test exchange: a state on a temporary database, its
// operator and the accounts created with NewAccount.
type Exchange struct {
	ID       uint32
	State    *state.State
	Operator *Account
	Accounts []*Account
}

// OperatorAccountID is the account the test operator uses.
const OperatorAccountID = 1

// NewExchange creates an exchange with an operator and numAccounts funded
// accounts, with ids starting at 2. Every account holds balance of every
// token in tokens, the operator too.
func NewExchange(tb testing.TB, id uint32, numAccounts int, tokens []uint32, balance *big.Int) *Exchange {
	tb.Helper()
	e := &Exchange{ID: id, State: state.New(metadb.NewTest(tb), id)}
	balances := map[uint32]*big.Int{}
	for _, t := range tokens {
		balances[t] = balance
	}
	var err error
	if e.Operator, err = GenerateAccount(OperatorAccountID); err != nil {
		tb.Fatal(err)
	}
	genesis := []state.GenesisAccount{e.Operator.Genesis(balances)}
	for i := 0; i < numAccounts; i++ {
		acc, err := GenerateAccount(uint32(circuits.NumReservedAccounts + i))
		if err != nil {
			tb.Fatal(err)
		}
		e.Accounts = append(e.Accounts, acc)
		genesis = append(genesis, acc.Genesis(balances))
	}
	if err := e.State.Genesis(genesis...); err != nil {
		tb.Fatalf("genesis failed: %v", err)
	}
	return e
}

// Nonce returns the current nonce of an account.
func (e *Exchange) Nonce(tb testing.TB, id uint32) *big.Int {
	tb.Helper()
	acc, err := e.State.Account(id)
	if err != nil {
		tb.Fatal(err)
	}
	return acc.Nonce
}

// Block returns a block of the exchange operated by the test operator.
func (e *Exchange) Block(txs ...types.Transaction) *types.Block {
	return &types.Block{
		ExchangeID:           e.ID,
		Timestamp:            1700000000,
		ProtocolTakerFeeBips: 18,
		ProtocolMakerFeeBips: 6,
		OperatorAccountID:    OperatorAccountID,
		Transactions:         txs,
	}
}

// SignBlock signs a processed block with the operator key.
func (e *Exchange) SignBlock(tb testing.TB, w *state.BlockWitness) {
	tb.Helper()
	if err := w.SetOperatorSignature(e.Operator.Sign(tb, w.OperatorMessage)); err != nil {
		tb.Fatal(err)
	}
}

// SignTransfer signs a transfer with the key of the sender.
func (e *Exchange) SignTransfer(tb testing.TB, from *Account, t *types.Transfer) {
	tb.Helper()
	msg, err := state.TransferHash(e.ID, t, e.Nonce(tb, from.ID))
	if err != nil {
		tb.Fatal(err)
	}
	t.Signature = from.Sign(tb, msg)
}

// SignWithdraw signs a withdrawal with the key of the account.
func (e *Exchange) SignWithdraw(tb testing.TB, acc *Account, w *types.Withdraw) {
	tb.Helper()
	msg, err := state.WithdrawHash(e.ID, w, e.Nonce(tb, acc.ID))
	if err != nil {
		tb.Fatal(err)
	}
	w.Signature = acc.Sign(tb, msg)
}

// SignOrder signs an order with the key of its account.
func (e *Exchange) SignOrder(tb testing.TB, acc *Account, o *types.Order) {
	tb.Helper()
	msg, err := state.OrderHash(e.ID, o)
	if err != nil {
		tb.Fatal(err)
	}
	o.Signature = acc.Sign(tb, msg)
}

// SignNewAccount signs an account creation with the key of the payer.
func (e *Exchange) SignNewAccount(tb testing.TB, payer *Account, n *types.NewAccount) {
	tb.Helper()
	msg, err := state.NewAccountHash(e.ID, n, e.Nonce(tb, payer.ID))
	if err != nil {
		tb.Fatal(err)
	}
	n.Signature = payer.Sign(tb, msg)
}

// SignPublicKeyUpdate signs a key update with the current key of the
// account.
func (e *Exchange) SignPublicKeyUpdate(tb testing.TB, acc *Account, u *types.PublicKeyUpdate) {
	tb.Helper()
	msg, err := state.PublicKeyUpdateHash(e.ID, u, e.Nonce(tb, acc.ID))
	if err != nil {
		tb.Fatal(err)
	}
	u.Signature = acc.Sign(tb, msg)
}

// SignOwnerChange signs an owner change with the current key of the
// account.
func (e *Exchange) SignOwnerChange(tb testing.TB, acc *Account, o *types.OwnerChange) {
	tb.Helper()
	msg, err := state.OwnerChangeHash(e.ID, o, e.Nonce(tb, acc.ID))
	if err != nil {
		tb.Fatal(err)
	}
	o.Signature = acc.Sign(tb, msg)
}

// Order returns an order selling amountS of tokenS for amountB of tokenB,
// valid for the whole test timestamp range.
func Order(acc *Account, orderID, tokenS, tokenB uint32, amountS, amountB *big.Int) types.Order {
	return types.Order{
		OrderID:    orderID,
		AccountID:  acc.ID,
		TokenS:     tokenS,
		TokenB:     tokenB,
		AmountS:    types.NewIntFromBig(amountS),
		AmountB:    types.NewIntFromBig(amountB),
		ValidSince: 0,
		ValidUntil: 1<<32 - 1,
		MaxFeeBips: 50,
	}
}
