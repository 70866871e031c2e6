package circuits

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"github.com/vocdoni/gnark-crypto-primitives/utils"
)

// HashFn is the in-circuit hash function used for every tree node, leaf and
// signed message.
var HashFn = utils.MiMCHasher

// NativeHash hashes the inputs with the same MiMC construction HashFn uses
// inside the circuit. The inputs are reduced to the BN254 scalar field.
func NativeHash(inputs ...*big.Int) (*big.Int, error) {
	h := mimc.NewMiMC()
	for _, in := range inputs {
		var e fr.Element
		e.SetBigInt(in)
		b := e.Bytes()
		if _, err := h.Write(b[:]); err != nil {
			return nil, fmt.Errorf("failed to write hash input: %w", err)
		}
	}
	return new(big.Int).SetBytes(h.Sum(nil)), nil
}

// LeafHash returns the native hash of a tree leaf.
func LeafHash[L interface{ Serialize() []*big.Int }](leaf L) (*big.Int, error) {
	return NativeHash(leaf.Serialize()...)
}

// Trees holds the hashes of the empty leaves and empty subtrees of the three
// trees. The empty trading history root is part of the empty balance leaf,
// and the empty balances root is part of the empty account leaf.
type Trees struct {
	// Levels[0] is the empty leaf hash, Levels[depth] the empty root
	TradeHistoryLevels []*big.Int
	BalanceLevels      []*big.Int
	AccountLevels      []*big.Int

	TradeHistoryRoot *big.Int
	BalancesRoot     *big.Int
	AccountsRoot     *big.Int
}

var (
	emptyTrees     *Trees
	emptyTreesOnce sync.Once
)

// EmptyTrees returns the default hashes of the empty trees. They only depend
// on constants so they are computed once.
func EmptyTrees() *Trees {
	emptyTreesOnce.Do(func() {
		t, err := computeEmptyTrees()
		if err != nil {
			panic(err)
		}
		emptyTrees = t
	})
	return emptyTrees
}

func computeEmptyTrees() (*Trees, error) {
	zero := big.NewInt(0)
	t := &Trees{}
	leaf, err := NativeHash(zero, zero, zero)
	if err != nil {
		return nil, err
	}
	if t.TradeHistoryLevels, err = DefaultHashes(leaf, TreeDepthTradingHistory); err != nil {
		return nil, err
	}
	t.TradeHistoryRoot = t.TradeHistoryLevels[TreeDepthTradingHistory]

	if leaf, err = NativeHash(zero, zero, t.TradeHistoryRoot); err != nil {
		return nil, err
	}
	if t.BalanceLevels, err = DefaultHashes(leaf, TreeDepthTokens); err != nil {
		return nil, err
	}
	t.BalancesRoot = t.BalanceLevels[TreeDepthTokens]

	if leaf, err = NativeHash(zero, zero, zero, zero, zero, t.BalancesRoot); err != nil {
		return nil, err
	}
	if t.AccountLevels, err = DefaultHashes(leaf, TreeDepthAccounts); err != nil {
		return nil, err
	}
	t.AccountsRoot = t.AccountLevels[TreeDepthAccounts]
	return t, nil
}

// DefaultHashes returns the hash of an empty subtree for every level of a
// quaternary tree of the given depth whose empty leaf hashes to leaf.
func DefaultHashes(leaf *big.Int, depth int) ([]*big.Int, error) {
	levels := make([]*big.Int, depth+1)
	levels[0] = leaf
	for i := 1; i <= depth; i++ {
		node, err := NativeHash(levels[i-1], levels[i-1], levels[i-1], levels[i-1])
		if err != nil {
			return nil, err
		}
		levels[i] = node
	}
	return levels, nil
}
