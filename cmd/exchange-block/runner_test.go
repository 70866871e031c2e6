package main

import (
	"encoding/json"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/zk-exchange/circuits/testutil"
	"github.com/vocdoni/zk-exchange/config"
	"github.com/vocdoni/zk-exchange/state"
	"github.com/vocdoni/zk-exchange/storage"
	"github.com/vocdoni/zk-exchange/types"
	"go.vocdoni.io/dvote/db/metadb"
)

const (
	testExchangeID = 9
	testSlots      = 2
)

func writeJSON(c *qt.C, path string, v any) {
	data, err := json.Marshal(v)
	c.Assert(err, qt.IsNil)
	c.Assert(os.WriteFile(path, data, 0o600), qt.IsNil)
}

// signedBlocks builds blocks on a twin exchange with the same genesis, so
// the operator signatures match the state the runner will reach.
func signedBlocks(c *qt.C, dir string) (string, []string, *testutil.Exchange) {
	balances := map[uint32]*big.Int{0: big.NewInt(1_000_000)}
	e := testutil.NewExchange(c, testExchangeID, 2, []uint32{0}, big.NewInt(1_000_000))
	genesis := []state.GenesisAccount{e.Operator.Genesis(balances)}
	for _, acc := range e.Accounts {
		genesis = append(genesis, acc.Genesis(balances))
	}
	genesisPath := filepath.Join(dir, "genesis.json")
	writeJSON(c, genesisPath, genesis)

	a, b := e.Accounts[0], e.Accounts[1]
	transfer := &types.Transfer{
		AccountFromID: a.ID,
		AccountToID:   b.ID,
		TokenID:       0,
		Amount:        types.NewInt(500),
		FeeTokenID:    0,
		Fee:           types.NewInt(1),
		To:            b.Owner,
	}
	e.SignTransfer(c, a, transfer)
	depositor, err := testutil.GenerateAccount(30)
	c.Assert(err, qt.IsNil)

	var paths []string
	for i, txs := range [][]types.Transaction{
		{{Transfer: transfer}},
		{{Deposit: &types.Deposit{Owner: depositor.Owner, AccountID: depositor.ID, TokenID: 0, Amount: types.NewInt(40)}}, {}},
	} {
		blk := e.Block(txs...)
		c.Assert(e.State.StartBlock(), qt.IsNil)
		w, err := e.State.ProcessBlock(blk, testSlots, true)
		c.Assert(err, qt.IsNil)
		blk.Signature = e.Operator.Sign(c, w.OperatorMessage)
		c.Assert(e.State.CommitBlock(), qt.IsNil)

		path := filepath.Join(dir, "block"+string(rune('0'+i))+".json")
		writeJSON(c, path, blk)
		paths = append(paths, path)
	}
	return genesisPath, paths, e
}

func testConfig(genesis string) *config.Config {
	return &config.Config{
		Exchange: config.ExchangeConfig{ID: testExchangeID, Genesis: genesis},
		Block:    config.BlockConfig{Transactions: testSlots, OnchainDA: true},
		Circuit:  config.CircuitConfig{Check: true},
	}
}

func TestRunnerProcessesQueue(t *testing.T) {
	c := qt.New(t)
	dir := t.TempDir()
	genesis, blocks, twin := signedBlocks(c, dir)

	r, err := newRunnerWithDB(testConfig(genesis), metadb.NewTest(t), io.Discard)
	c.Assert(err, qt.IsNil)
	for _, path := range blocks {
		c.Assert(r.enqueueFile(path), qt.IsNil)
	}
	n, err := r.processPending()
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, 2)
	c.Assert(r.storage.CountPendingBlocks(), qt.Equals, 0)

	root, err := r.state.Root()
	c.Assert(err, qt.IsNil)
	twinRoot, err := twin.State.Root()
	c.Assert(err, qt.IsNil)
	c.Assert(root.Cmp(twinRoot), qt.Equals, 0)

	rec, err := r.storage.LastBlock()
	c.Assert(err, qt.IsNil)
	c.Assert(rec.Number, qt.Equals, uint64(2))
	c.Assert(rec.MerkleRootAfter.MathBigInt().Cmp(root), qt.Equals, 0)
	c.Assert(rec.NumTransactions, qt.Equals, testSlots)

	// genesis is not written again once the exchange has blocks
	c.Assert(r.genesis(), qt.IsNil)
	root2, err := r.state.Root()
	c.Assert(err, qt.IsNil)
	c.Assert(root2.Cmp(root), qt.Equals, 0)
}

func TestRunnerKeepsFailedBlocks(t *testing.T) {
	c := qt.New(t)
	dir := t.TempDir()
	genesis, blocks, _ := signedBlocks(c, dir)

	r, err := newRunnerWithDB(testConfig(genesis), metadb.NewTest(t), io.Discard)
	c.Assert(err, qt.IsNil)
	rootBefore, err := r.state.Root()
	c.Assert(err, qt.IsNil)

	// the second block is signed for the state after the first one
	c.Assert(r.enqueueFile(blocks[1]), qt.IsNil)
	n, err := r.processPending()
	c.Assert(err, qt.ErrorMatches, "invalid operator signature")
	c.Assert(n, qt.Equals, 0)
	c.Assert(r.storage.CountPendingBlocks(), qt.Equals, 1)
	_, err = r.storage.LastBlock()
	c.Assert(err, qt.ErrorIs, storage.ErrNotFound)

	root, err := r.state.Root()
	c.Assert(err, qt.IsNil)
	c.Assert(root.Cmp(rootBefore), qt.Equals, 0)

	// blocks of other exchanges are not queued
	other := testConfig(genesis)
	other.Exchange.ID = testExchangeID + 1
	r.cfg = other
	c.Assert(r.enqueueFile(blocks[0]), qt.ErrorMatches, "block .* belongs to exchange 9, not 10")
}

func TestRunnerUnsignedBlock(t *testing.T) {
	c := qt.New(t)
	r, err := newRunnerWithDB(testConfig(""), metadb.NewTest(t), io.Discard)
	c.Assert(err, qt.IsNil)
	_, err = r.processBlock(&types.Block{ExchangeID: testExchangeID, OperatorAccountID: 1})
	c.Assert(err, qt.ErrorMatches, "block is not signed by the operator")
}
