// Package merkle verifies and updates leaves of the quaternary trees of the
// exchange: accounts, balances of an account and trading history of a
// balance.
package merkle

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark/frontend"
	"github.com/vocdoni/gnark-crypto-primitives/utils"
	"github.com/vocdoni/zk-exchange/circuits"
	"github.com/vocdoni/zk-exchange/util"
)

// AccountWitness is an account leaf before an update and its siblings, three
// per level from the leaves up.
type AccountWitness struct {
	Before   circuits.Account[frontend.Variable]
	Siblings [circuits.TreeDepthAccounts * circuits.SiblingsPerLevel]frontend.Variable
}

// BalanceWitness is a balance leaf before an update and its siblings.
type BalanceWitness struct {
	Before   circuits.Balance[frontend.Variable]
	Siblings [circuits.TreeDepthTokens * circuits.SiblingsPerLevel]frontend.Variable
}

// TradeHistoryWitness is a trading history leaf before an update and its
// siblings.
type TradeHistoryWitness struct {
	Before   circuits.TradeHistory[frontend.Variable]
	Siblings [circuits.TreeDepthTradingHistory * circuits.SiblingsPerLevel]frontend.Variable
}

// UpdateAccount asserts that w.Before is the leaf at address in the
// accounts tree with root rootBefore, and returns the root once the leaf is
// replaced by after.
func UpdateAccount(api frontend.API, hFn utils.Hasher, rootBefore, address frontend.Variable,
	w AccountWitness, after circuits.Account[frontend.Variable],
) (frontend.Variable, error) {
	root, err := update(api, hFn, rootBefore, address, w.Siblings[:], w.Before.Serialize(), after.Serialize())
	if err != nil {
		return nil, fmt.Errorf("account update: %w", err)
	}
	return root, nil
}

// UpdateBalance asserts that w.Before is the leaf at address (the token id)
// of the balances tree with root rootBefore, and returns the root once the
// leaf is replaced by after.
func UpdateBalance(api frontend.API, hFn utils.Hasher, rootBefore, address frontend.Variable,
	w BalanceWitness, after circuits.Balance[frontend.Variable],
) (frontend.Variable, error) {
	root, err := update(api, hFn, rootBefore, address, w.Siblings[:], w.Before.Serialize(), after.Serialize())
	if err != nil {
		return nil, fmt.Errorf("balance update: %w", err)
	}
	return root, nil
}

// UpdateTradeHistory asserts that w.Before is the leaf at address (the
// storage slot of an order) of the trading history tree with root
// rootBefore, and returns the root once the leaf is replaced by after.
func UpdateTradeHistory(api frontend.API, hFn utils.Hasher, rootBefore, address frontend.Variable,
	w TradeHistoryWitness, after circuits.TradeHistory[frontend.Variable],
) (frontend.Variable, error) {
	root, err := update(api, hFn, rootBefore, address, w.Siblings[:], w.Before.Serialize(), after.Serialize())
	if err != nil {
		return nil, fmt.Errorf("trade history update: %w", err)
	}
	return root, nil
}

// update recomputes the path twice with the same siblings: the before leaf
// must hash up to rootBefore, the after leaf gives the new root.
func update(api frontend.API, hFn utils.Hasher, rootBefore, address frontend.Variable,
	siblings, before, after []frontend.Variable,
) (frontend.Variable, error) {
	depth := len(siblings) / circuits.SiblingsPerLevel
	bits := api.ToBinary(address, 2*depth)

	leafBefore, err := hFn(api, before...)
	if err != nil {
		return nil, err
	}
	root, err := Root(api, hFn, leafBefore, bits, siblings)
	if err != nil {
		return nil, err
	}
	api.AssertIsEqual(root, rootBefore)

	leafAfter, err := hFn(api, after...)
	if err != nil {
		return nil, err
	}
	return Root(api, hFn, leafAfter, bits, siblings)
}

// Root hashes a leaf up to the root of a quaternary tree. addressBits holds
// two bits per level, least significant first, and siblings three hashes per
// level, the children of the node other than the one on the path, in order.
func Root(api frontend.API, hFn utils.Hasher, leaf frontend.Variable, addressBits, siblings []frontend.Variable) (frontend.Variable, error) {
	if len(addressBits)*circuits.SiblingsPerLevel != len(siblings)*2 {
		return nil, fmt.Errorf("%d address bits for %d siblings", len(addressBits), len(siblings))
	}
	current := leaf
	for level := 0; level < len(addressBits)/2; level++ {
		b0, b1 := addressBits[2*level], addressBits[2*level+1]
		s := siblings[level*circuits.SiblingsPerLevel : (level+1)*circuits.SiblingsPerLevel]
		// the node on the path goes to position b0 + 2*b1, the siblings fill
		// the other positions keeping their order
		children := []frontend.Variable{
			api.Lookup2(b0, b1, current, s[0], s[0], s[0]),
			api.Lookup2(b0, b1, s[0], current, s[1], s[1]),
			api.Lookup2(b0, b1, s[1], s[1], current, s[2]),
			api.Lookup2(b0, b1, s[2], s[2], s[2], current),
		}
		node, err := hFn(api, children...)
		if err != nil {
			return nil, err
		}
		current = node
	}
	return current, nil
}

// AccountWitnessFromLeaf builds the witness of an account from its native
// leaf and siblings.
func AccountWitnessFromLeaf(leaf circuits.Account[*big.Int], siblings []*big.Int) (AccountWitness, error) {
	w := AccountWitness{Before: circuits.Account[frontend.Variable]{
		Owner:        leaf.Owner,
		PublicKeyX:   leaf.PublicKeyX,
		PublicKeyY:   leaf.PublicKeyY,
		Nonce:        leaf.Nonce,
		WalletHash:   leaf.WalletHash,
		BalancesRoot: leaf.BalancesRoot,
	}}
	if err := copySiblings(w.Siblings[:], siblings); err != nil {
		return AccountWitness{}, fmt.Errorf("account witness: %w", err)
	}
	return w, nil
}

// BalanceWitnessFromLeaf builds the witness of a balance from its native
// leaf and siblings.
func BalanceWitnessFromLeaf(leaf circuits.Balance[*big.Int], siblings []*big.Int) (BalanceWitness, error) {
	w := BalanceWitness{Before: circuits.Balance[frontend.Variable]{
		Balance:            leaf.Balance,
		Index:              leaf.Index,
		TradingHistoryRoot: leaf.TradingHistoryRoot,
	}}
	if err := copySiblings(w.Siblings[:], siblings); err != nil {
		return BalanceWitness{}, fmt.Errorf("balance witness: %w", err)
	}
	return w, nil
}

// TradeHistoryWitnessFromLeaf builds the witness of a trading history leaf
// from its native leaf and siblings.
func TradeHistoryWitnessFromLeaf(leaf circuits.TradeHistory[*big.Int], siblings []*big.Int) (TradeHistoryWitness, error) {
	w := TradeHistoryWitness{Before: circuits.TradeHistory[frontend.Variable]{
		Filled:    leaf.Filled,
		Cancelled: leaf.Cancelled,
		OrderID:   leaf.OrderID,
	}}
	if err := copySiblings(w.Siblings[:], siblings); err != nil {
		return TradeHistoryWitness{}, fmt.Errorf("trade history witness: %w", err)
	}
	return w, nil
}

func copySiblings(dst []frontend.Variable, src []*big.Int) error {
	if len(src) != len(dst) {
		return fmt.Errorf("expected %d siblings, got %d", len(dst), len(src))
	}
	for i := range src {
		dst[i] = src[i]
	}
	return nil
}

func (w AccountWitness) String() string {
	return fmt.Sprint("account owner=", util.PrettyHex(w.Before.Owner), " nonce=", w.Before.Nonce,
		" balances=", util.PrettyHex(w.Before.BalancesRoot))
}
