// Package state keeps the native copy of the exchange Merkle trees and
// applies blocks to it, recording the before leaves and proofs the block
// circuit needs as witness.
package state

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/vocdoni/zk-exchange/circuits"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

var (
	// ErrNotFound is returned when a block or record doesn't exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransaction is returned when a transaction can't be applied
	// to the state, the circuit would reject it too.
	ErrInvalidTransaction = errors.New("invalid transaction")
)

var (
	accountsPrefix     = []byte("a/")
	balancesPrefix     = []byte("b/")
	tradeHistoryPrefix = []byte("t/")
)

// State holds the accounts tree of an exchange and the balances and trading
// history trees below it.
type State struct {
	db         db.Database
	exchangeID uint32
	dbTx       db.WriteTx
	// balances trees updated apart during a block, by account
	virtual map[uint32]*overlay
}

// New creates or opens the State of an exchange stored in the passed
// database. The exchange id is used as a prefix for the keys in the
// database.
func New(database db.Database, exchangeID uint32) *State {
	return &State{
		db:         prefixeddb.NewPrefixedDatabase(database, uint32Bytes(exchangeID)),
		exchangeID: exchangeID,
	}
}

// ExchangeID returns the id of the exchange.
func (s *State) ExchangeID() uint32 {
	return s.exchangeID
}

// Close the database, no more operations can be done after this.
func (s *State) Close() error {
	return s.db.Close()
}

// StartBlock opens the write transaction every change of a block goes to.
func (s *State) StartBlock() error {
	if s.dbTx != nil {
		return fmt.Errorf("block already started")
	}
	s.dbTx = s.db.WriteTx()
	s.virtual = make(map[uint32]*overlay)
	return nil
}

// CommitBlock persists the changes of the block.
func (s *State) CommitBlock() error {
	if s.dbTx == nil {
		return fmt.Errorf("need to StartBlock() first")
	}
	defer s.endBlock()
	for id, o := range s.virtual {
		if len(o.changes) > 0 {
			return fmt.Errorf("balances of account %d were not written back", id)
		}
	}
	return s.dbTx.Commit()
}

// DiscardBlock drops every change since StartBlock.
func (s *State) DiscardBlock() {
	if s.dbTx == nil {
		return
	}
	s.dbTx.Discard()
	s.endBlock()
}

func (s *State) endBlock() {
	s.dbTx = nil
	s.virtual = nil
}

func (s *State) namespace(prefix ...[]byte) kv {
	var p []byte
	for _, b := range prefix {
		p = append(p, b...)
	}
	if s.dbTx != nil {
		return prefixeddb.NewPrefixedWriteTx(s.dbTx, p)
	}
	return readOnly{prefixeddb.NewPrefixedReader(s.db, p)}
}

func (s *State) accountsTree() *Tree {
	return newTree(s.namespace(accountsPrefix), circuits.TreeDepthAccounts, circuits.EmptyTrees().AccountLevels)
}

// balancesTree returns the stored balances tree of an account, the one its
// account leaf commits to.
func (s *State) balancesTree(accountID uint32) *Tree {
	return newTree(s.namespace(balancesPrefix, uint32Bytes(accountID)),
		circuits.TreeDepthTokens, circuits.EmptyTrees().BalanceLevels)
}

// virtualBalancesTree returns the balances tree of the protocol pool or the
// operator as it evolves during a block.
func (s *State) virtualBalancesTree(accountID uint32) (*Tree, error) {
	if s.dbTx == nil {
		return nil, fmt.Errorf("need to StartBlock() first")
	}
	o, ok := s.virtual[accountID]
	if !ok {
		o = newOverlay(s.namespace(balancesPrefix, uint32Bytes(accountID)))
		s.virtual[accountID] = o
	}
	return newTree(o, circuits.TreeDepthTokens, circuits.EmptyTrees().BalanceLevels), nil
}

func (s *State) tradeHistoryTree(accountID, tokenID uint32) *Tree {
	return newTree(s.namespace(tradeHistoryPrefix, uint32Bytes(accountID), uint32Bytes(tokenID)),
		circuits.TreeDepthTradingHistory, circuits.EmptyTrees().TradeHistoryLevels)
}

// Root returns the accounts root, the root of the whole state.
func (s *State) Root() (*big.Int, error) {
	return s.accountsTree().Root()
}

// Account returns the account leaf at id, empty if it was never written.
func (s *State) Account(id uint32) (circuits.Account[*big.Int], error) {
	if err := checkRange("account", id, circuits.NumBitsAccount); err != nil {
		return circuits.Account[*big.Int]{}, err
	}
	return getLeaf(s.accountsTree(), uint64(id), circuits.NewAccount())
}

// Balance returns the balance leaf of a token of an account. During a block
// the balances of the protocol pool and the operator already include the
// changes of the block.
func (s *State) Balance(accountID, tokenID uint32) (circuits.Balance[*big.Int], error) {
	if err := checkRange("account", accountID, circuits.NumBitsAccount); err != nil {
		return circuits.Balance[*big.Int]{}, err
	}
	if err := checkRange("token", tokenID, circuits.NumBitsToken); err != nil {
		return circuits.Balance[*big.Int]{}, err
	}
	tree := s.balancesTree(accountID)
	if _, ok := s.virtual[accountID]; ok {
		var err error
		if tree, err = s.virtualBalancesTree(accountID); err != nil {
			return circuits.Balance[*big.Int]{}, err
		}
	}
	return getLeaf(tree, uint64(tokenID), circuits.NewBalance())
}

// TradeHistory returns the trading history leaf of a storage slot of an
// account and token.
func (s *State) TradeHistory(accountID, tokenID, slot uint32) (circuits.TradeHistory[*big.Int], error) {
	if err := checkRange("account", accountID, circuits.NumBitsAccount); err != nil {
		return circuits.TradeHistory[*big.Int]{}, err
	}
	if err := checkRange("token", tokenID, circuits.NumBitsToken); err != nil {
		return circuits.TradeHistory[*big.Int]{}, err
	}
	if err := checkRange("storage slot", slot, circuits.NumBitsStorageAddress); err != nil {
		return circuits.TradeHistory[*big.Int]{}, err
	}
	return getLeaf(s.tradeHistoryTree(accountID, tokenID), uint64(slot), circuits.NewTradeHistory())
}

// AccountProof returns the siblings of the path of an account leaf.
func (s *State) AccountProof(id uint32) ([]*big.Int, error) {
	return s.accountsTree().Siblings(uint64(id))
}

// BalanceProof returns the siblings of the path of a balance leaf in the
// stored balances tree of the account.
func (s *State) BalanceProof(accountID, tokenID uint32) ([]*big.Int, error) {
	return s.balancesTree(accountID).Siblings(uint64(tokenID))
}

// TradeHistoryProof returns the siblings of the path of a trading history
// leaf.
func (s *State) TradeHistoryProof(accountID, tokenID, slot uint32) ([]*big.Int, error) {
	return s.tradeHistoryTree(accountID, tokenID).Siblings(uint64(slot))
}

// GenesisAccount is an account written before the first block, with its
// initial balances.
type GenesisAccount struct {
	ID         uint32              `json:"id"`
	Owner      *big.Int            `json:"owner,omitempty"`
	PublicKeyX *big.Int            `json:"publicKeyX,omitempty"`
	PublicKeyY *big.Int            `json:"publicKeyY,omitempty"`
	Balances   map[uint32]*big.Int `json:"balances,omitempty"`
}

// Genesis writes accounts directly to the state, outside any block. It is
// meant for the operator and test fixtures.
func (s *State) Genesis(accounts ...GenesisAccount) error {
	if err := s.StartBlock(); err != nil {
		return err
	}
	for _, ga := range accounts {
		if err := s.writeGenesisAccount(ga); err != nil {
			s.DiscardBlock()
			return fmt.Errorf("genesis account %d: %w", ga.ID, err)
		}
	}
	return s.CommitBlock()
}

func (s *State) writeGenesisAccount(ga GenesisAccount) error {
	if err := checkRange("account", ga.ID, circuits.NumBitsAccount); err != nil {
		return err
	}
	balances := s.balancesTree(ga.ID)
	for tokenID, amount := range ga.Balances {
		if err := checkRange("token", tokenID, circuits.NumBitsToken); err != nil {
			return err
		}
		if amount.Sign() < 0 || amount.Cmp(circuits.MaxAmount) > 0 {
			return fmt.Errorf("balance %s of token %d out of range", amount, tokenID)
		}
		if _, err := updateLeaf(balances, uint64(tokenID), circuits.NewBalance(),
			func(b circuits.Balance[*big.Int]) (circuits.Balance[*big.Int], error) {
				b.Balance = new(big.Int).Set(amount)
				return b, nil
			}); err != nil {
			return err
		}
	}
	root, err := balances.Root()
	if err != nil {
		return err
	}
	_, err = updateLeaf(s.accountsTree(), uint64(ga.ID), circuits.NewAccount(),
		func(a circuits.Account[*big.Int]) (circuits.Account[*big.Int], error) {
			if ga.Owner != nil {
				a.Owner = ga.Owner
			}
			if ga.PublicKeyX != nil && ga.PublicKeyY != nil {
				a.PublicKeyX, a.PublicKeyY = ga.PublicKeyX, ga.PublicKeyY
			}
			a.BalancesRoot = root
			return a, nil
		})
	return err
}

func checkRange(name string, v uint32, bits int) error {
	if uint64(v) >= 1<<bits {
		return fmt.Errorf("%w: %s %d out of range", ErrInvalidTransaction, name, v)
	}
	return nil
}

func uint32Bytes(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}
