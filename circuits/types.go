package circuits

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/vocdoni/arbo"
)

// Account is a leaf of the accounts tree. It is a generic struct that can be
// used both in the circuit (frontend.Variable) and natively (*big.Int).
type Account[T any] struct {
	Owner        T
	PublicKeyX   T
	PublicKeyY   T
	Nonce        T
	WalletHash   T
	BalancesRoot T
}

func (a Account[T]) Serialize() []T {
	return []T{
		a.Owner,
		a.PublicKeyX,
		a.PublicKeyY,
		a.Nonce,
		a.WalletHash,
		a.BalancesRoot,
	}
}

// Bytes returns 6*32 bytes representing the Account components.
// Returns an empty slice if T is not *big.Int.
func (a Account[T]) Bytes() []byte {
	abi, ok := any(a).(Account[*big.Int])
	if !ok {
		return []byte{}
	}
	return serializedBytes(abi.Serialize())
}

// DeserializeAccount reconstructs an Account from the output of Bytes.
func DeserializeAccount(data []byte) (Account[*big.Int], error) {
	v, err := deserializeBytes(data, 6)
	if err != nil {
		return Account[*big.Int]{}, fmt.Errorf("invalid account: %w", err)
	}
	return Account[*big.Int]{
		Owner:        v[0],
		PublicKeyX:   v[1],
		PublicKeyY:   v[2],
		Nonce:        v[3],
		WalletHash:   v[4],
		BalancesRoot: v[5],
	}, nil
}

// Balance is a leaf of the balances tree of an account, keyed by token id.
type Balance[T any] struct {
	Balance            T
	Index              T
	TradingHistoryRoot T
}

func (b Balance[T]) Serialize() []T {
	return []T{b.Balance, b.Index, b.TradingHistoryRoot}
}

// Bytes returns 3*32 bytes representing the Balance components.
// Returns an empty slice if T is not *big.Int.
func (b Balance[T]) Bytes() []byte {
	bbi, ok := any(b).(Balance[*big.Int])
	if !ok {
		return []byte{}
	}
	return serializedBytes(bbi.Serialize())
}

// DeserializeBalance reconstructs a Balance from the output of Bytes.
func DeserializeBalance(data []byte) (Balance[*big.Int], error) {
	v, err := deserializeBytes(data, 3)
	if err != nil {
		return Balance[*big.Int]{}, fmt.Errorf("invalid balance: %w", err)
	}
	return Balance[*big.Int]{Balance: v[0], Index: v[1], TradingHistoryRoot: v[2]}, nil
}

// TradeHistory is a leaf of the trading history tree of a balance, keyed by
// the lower bits of the order id.
type TradeHistory[T any] struct {
	Filled    T
	Cancelled T
	OrderID   T
}

func (th TradeHistory[T]) Serialize() []T {
	return []T{th.Filled, th.Cancelled, th.OrderID}
}

// Bytes returns 3*32 bytes representing the TradeHistory components.
// Returns an empty slice if T is not *big.Int.
func (th TradeHistory[T]) Bytes() []byte {
	thbi, ok := any(th).(TradeHistory[*big.Int])
	if !ok {
		return []byte{}
	}
	return serializedBytes(thbi.Serialize())
}

// DeserializeTradeHistory reconstructs a TradeHistory from the output of
// Bytes.
func DeserializeTradeHistory(data []byte) (TradeHistory[*big.Int], error) {
	v, err := deserializeBytes(data, 3)
	if err != nil {
		return TradeHistory[*big.Int]{}, fmt.Errorf("invalid trade history: %w", err)
	}
	return TradeHistory[*big.Int]{Filled: v[0], Cancelled: v[1], OrderID: v[2]}, nil
}

// NewAccount returns an empty native account leaf.
func NewAccount() Account[*big.Int] {
	return Account[*big.Int]{
		Owner:        big.NewInt(0),
		PublicKeyX:   big.NewInt(0),
		PublicKeyY:   big.NewInt(0),
		Nonce:        big.NewInt(0),
		WalletHash:   big.NewInt(0),
		BalancesRoot: new(big.Int).Set(EmptyTrees().BalancesRoot),
	}
}

// NewBalance returns an empty native balance leaf.
func NewBalance() Balance[*big.Int] {
	return Balance[*big.Int]{
		Balance:            big.NewInt(0),
		Index:              big.NewInt(0),
		TradingHistoryRoot: new(big.Int).Set(EmptyTrees().TradeHistoryRoot),
	}
}

// NewTradeHistory returns an empty native trade history leaf.
func NewTradeHistory() TradeHistory[*big.Int] {
	return TradeHistory[*big.Int]{
		Filled:    big.NewInt(0),
		Cancelled: big.NewInt(0),
		OrderID:   big.NewInt(0),
	}
}

func serializedBytes(values []*big.Int) []byte {
	buf := bytes.Buffer{}
	for _, bigint := range values {
		buf.Write(arbo.BigIntToBytes(SerializedFieldSize, bigint))
	}
	return buf.Bytes()
}

func deserializeBytes(data []byte, n int) ([]*big.Int, error) {
	if len(data) != n*SerializedFieldSize {
		return nil, fmt.Errorf("got %d bytes, expected %d bytes", len(data), n*SerializedFieldSize)
	}
	values := make([]*big.Int, n)
	for i := range values {
		values[i] = arbo.BytesToBigInt(data[i*SerializedFieldSize : (i+1)*SerializedFieldSize])
	}
	return values, nil
}
