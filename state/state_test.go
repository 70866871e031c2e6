package state_test

import (
	"math/big"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/zk-exchange/circuits"
	"github.com/vocdoni/zk-exchange/circuits/testutil"
	"github.com/vocdoni/zk-exchange/state"
	"github.com/vocdoni/zk-exchange/types"
	"go.vocdoni.io/dvote/db/metadb"
)

// rootFromProof hashes a leaf up to the root with the siblings of its path.
func rootFromProof(c *qt.C, leafHash *big.Int, index uint64, siblings []*big.Int) *big.Int {
	current := leafHash
	for level := 0; level < len(siblings)/circuits.SiblingsPerLevel; level++ {
		s := siblings[level*circuits.SiblingsPerLevel : (level+1)*circuits.SiblingsPerLevel]
		pos := int(index % circuits.TreeArity)
		children := make([]*big.Int, 0, circuits.TreeArity)
		children = append(children, s[:pos]...)
		children = append(children, current)
		children = append(children, s[pos:]...)
		var err error
		current, err = circuits.NativeHash(children...)
		c.Assert(err, qt.IsNil)
		index /= circuits.TreeArity
	}
	return current
}

func TestEmptyState(t *testing.T) {
	c := qt.New(t)
	s := state.New(metadb.NewTest(t), 1)
	root, err := s.Root()
	c.Assert(err, qt.IsNil)
	c.Assert(root.Cmp(circuits.EmptyTrees().AccountsRoot), qt.Equals, 0)

	acc, err := s.Account(42)
	c.Assert(err, qt.IsNil)
	c.Assert(acc.BalancesRoot.Cmp(circuits.EmptyTrees().BalancesRoot), qt.Equals, 0)
	bal, err := s.Balance(42, 3)
	c.Assert(err, qt.IsNil)
	c.Assert(bal.Balance.Sign(), qt.Equals, 0)

	_, err = s.Account(1 << circuits.NumBitsAccount)
	c.Assert(err, qt.ErrorIs, state.ErrInvalidTransaction)

	// writes need an open block
	c.Assert(s.CommitBlock(), qt.IsNotNil)
}

func TestGenesisProofs(t *testing.T) {
	c := qt.New(t)
	e := testutil.NewExchange(t, 3, 4, []uint32{0, 5}, big.NewInt(1000))
	root, err := e.State.Root()
	c.Assert(err, qt.IsNil)
	c.Assert(root.Cmp(circuits.EmptyTrees().AccountsRoot), qt.Not(qt.Equals), 0)

	for _, acc := range append(e.Accounts, e.Operator) {
		leaf, err := e.State.Account(acc.ID)
		c.Assert(err, qt.IsNil)
		c.Assert(leaf.Owner.Cmp(state.AddressToBigInt(acc.Owner)), qt.Equals, 0)
		proof, err := e.State.AccountProof(acc.ID)
		c.Assert(err, qt.IsNil)
		c.Assert(proof, qt.HasLen, circuits.TreeDepthAccounts*circuits.SiblingsPerLevel)
		hash, err := circuits.LeafHash(leaf)
		c.Assert(err, qt.IsNil)
		c.Assert(rootFromProof(c, hash, uint64(acc.ID), proof).Cmp(root), qt.Equals, 0)

		bal, err := e.State.Balance(acc.ID, 5)
		c.Assert(err, qt.IsNil)
		c.Assert(bal.Balance.Int64(), qt.Equals, int64(1000))
		balProof, err := e.State.BalanceProof(acc.ID, 5)
		c.Assert(err, qt.IsNil)
		balHash, err := circuits.LeafHash(bal)
		c.Assert(err, qt.IsNil)
		c.Assert(rootFromProof(c, balHash, 5, balProof).Cmp(leaf.BalancesRoot), qt.Equals, 0)
	}
}

func processBlock(c *qt.C, e *testutil.Exchange, numTxs int, txs ...types.Transaction) *state.BlockWitness {
	c.Helper()
	c.Assert(e.State.StartBlock(), qt.IsNil)
	w, err := e.State.ProcessBlock(e.Block(txs...), numTxs, true)
	if err != nil {
		e.State.DiscardBlock()
		c.Fatalf("process block: %v", err)
	}
	e.SignBlock(c, w)
	c.Assert(e.State.CommitBlock(), qt.IsNil)
	return w
}

func balance(c *qt.C, e *testutil.Exchange, accountID, tokenID uint32) int64 {
	c.Helper()
	b, err := e.State.Balance(accountID, tokenID)
	c.Assert(err, qt.IsNil)
	return b.Balance.Int64()
}

// checkChain verifies that every update of a block starts from the root the
// previous one left.
func checkChain(c *qt.C, w *state.BlockWitness) {
	c.Helper()
	root := w.MerkleRootBefore
	for _, tx := range w.Transactions {
		c.Assert(tx.AccountA.RootBefore.Cmp(root), qt.Equals, 0)
		c.Assert(tx.AccountB.RootBefore.Cmp(tx.AccountA.RootAfter), qt.Equals, 0)
		c.Assert(tx.BalanceAS.RootBefore.Cmp(tx.AccountA.Before.BalancesRoot), qt.Equals, 0)
		c.Assert(tx.AccountA.After.BalancesRoot.Cmp(tx.BalanceAB.RootAfter), qt.Equals, 0)
		c.Assert(tx.BalanceAS.After.TradingHistoryRoot.Cmp(tx.TradeHistoryA.RootAfter), qt.Equals, 0)
		c.Assert(tx.PublicData, qt.HasLen, circuits.TxDataAvailabilitySize)
		root = tx.AccountB.RootAfter
	}
	c.Assert(w.AccountP.RootBefore.Cmp(root), qt.Equals, 0)
	c.Assert(w.AccountO.RootBefore.Cmp(w.AccountP.RootAfter), qt.Equals, 0)
	c.Assert(w.AccountO.RootAfter.Cmp(w.MerkleRootAfter), qt.Equals, 0)
	c.Assert(w.PublicDataHash.BitLen() <= circuits.NumBitsFieldCapacity, qt.IsTrue)
}

func TestDeposit(t *testing.T) {
	c := qt.New(t)
	e := testutil.NewExchange(t, 1, 1, []uint32{0}, big.NewInt(1000))
	owner, err := testutil.GenerateAccount(10)
	c.Assert(err, qt.IsNil)

	w := processBlock(c, e, 2, types.Transaction{Deposit: &types.Deposit{
		Owner:     owner.Owner,
		AccountID: 10,
		TokenID:   3,
		Amount:    types.NewInt(500),
	}})
	checkChain(c, w)
	c.Assert(w.NumConditionalTransactions, qt.Equals, uint32(1))
	c.Assert(w.Transactions[0].Type, qt.Equals, types.TxTypeDeposit)
	c.Assert(w.Transactions[1].Type, qt.Equals, types.TxTypeNoop)
	// header, operator id and the transactions
	c.Assert(w.PublicData, qt.HasLen, 78+3+2*circuits.TxDataAvailabilitySize)
	c.Assert(w.Transactions[0].PublicData[0], qt.Equals, byte(types.TxTypeDeposit))
	c.Assert(w.Transactions[0].PublicData[1:21], qt.DeepEquals, owner.Owner.Bytes())

	c.Assert(balance(c, e, 10, 3), qt.Equals, int64(500))
	acc, err := e.State.Account(10)
	c.Assert(err, qt.IsNil)
	c.Assert(acc.Owner.Cmp(state.AddressToBigInt(owner.Owner)), qt.Equals, 0)
	c.Assert(e.Nonce(t, testutil.OperatorAccountID).Int64(), qt.Equals, int64(1))
	root, err := e.State.Root()
	c.Assert(err, qt.IsNil)
	c.Assert(root.Cmp(w.MerkleRootAfter), qt.Equals, 0)

	// a deposit for the same account from another owner is rejected
	other, err := testutil.GenerateAccount(10)
	c.Assert(err, qt.IsNil)
	c.Assert(e.State.StartBlock(), qt.IsNil)
	_, err = e.State.ProcessBlock(e.Block(types.Transaction{Deposit: &types.Deposit{
		Owner:     other.Owner,
		AccountID: 10,
		TokenID:   3,
		Amount:    types.NewInt(1),
	}}), 1, true)
	c.Assert(err, qt.ErrorIs, state.ErrInvalidTransaction)
	e.State.DiscardBlock()
}

func TestTransfer(t *testing.T) {
	c := qt.New(t)
	e := testutil.NewExchange(t, 1, 2, []uint32{0, 1}, big.NewInt(1000))
	from, to := e.Accounts[0], e.Accounts[1]

	transfer := &types.Transfer{
		AccountFromID: from.ID,
		AccountToID:   to.ID,
		TokenID:       0,
		Amount:        types.NewInt(100),
		FeeTokenID:    1,
		Fee:           types.NewInt(3),
		To:            to.Owner,
	}
	e.SignTransfer(t, from, transfer)
	// a self transfer paying the fee in the same token
	self := &types.Transfer{
		AccountFromID: to.ID,
		AccountToID:   to.ID,
		TokenID:       1,
		Amount:        types.NewInt(50),
		FeeTokenID:    1,
		Fee:           types.NewInt(2),
		To:            to.Owner,
	}
	e.SignTransfer(t, to, self)
	w := processBlock(c, e, 2, types.Transaction{Transfer: transfer}, types.Transaction{Transfer: self})
	checkChain(c, w)
	c.Assert(w.NumConditionalTransactions, qt.Equals, uint32(0))

	c.Assert(balance(c, e, from.ID, 0), qt.Equals, int64(900))
	c.Assert(balance(c, e, from.ID, 1), qt.Equals, int64(997))
	c.Assert(balance(c, e, to.ID, 0), qt.Equals, int64(1100))
	c.Assert(balance(c, e, to.ID, 1), qt.Equals, int64(998))
	c.Assert(balance(c, e, testutil.OperatorAccountID, 1), qt.Equals, int64(1005))
	c.Assert(e.Nonce(t, from.ID).Int64(), qt.Equals, int64(1))
	c.Assert(e.Nonce(t, to.ID).Int64(), qt.Equals, int64(1))

	// the same transfer can't be replayed, the nonce changed
	c.Assert(e.State.StartBlock(), qt.IsNil)
	_, err := e.State.ProcessBlock(e.Block(types.Transaction{Transfer: transfer}), 1, true)
	c.Assert(err, qt.ErrorIs, state.ErrInvalidTransaction)
	e.State.DiscardBlock()
}

func TestInvalidTransactions(t *testing.T) {
	c := qt.New(t)
	e := testutil.NewExchange(t, 1, 2, []uint32{0}, big.NewInt(1000))
	from, to := e.Accounts[0], e.Accounts[1]
	rootBefore, err := e.State.Root()
	c.Assert(err, qt.IsNil)

	transfer := func(amount int64, toID uint32) *types.Transfer {
		t := &types.Transfer{
			AccountFromID: from.ID,
			AccountToID:   toID,
			Amount:        types.NewInt(amount),
			Fee:           types.NewInt(0),
			To:            to.Owner,
		}
		e.SignTransfer(c, from, t)
		return t
	}
	tampered := transfer(10, to.ID)
	tampered.Amount = types.NewInt(11)

	for name, tx := range map[string]*types.Transfer{
		"insufficient balance": transfer(2000, to.ID),
		"bad signature":        tampered,
		"operator account":     transfer(10, testutil.OperatorAccountID),
		"protocol pool":        transfer(10, 0),
	} {
		c.Run(name, func(c *qt.C) {
			c.Assert(e.State.StartBlock(), qt.IsNil)
			defer e.State.DiscardBlock()
			_, err := e.State.ProcessBlock(e.Block(types.Transaction{Transfer: tx}), 1, true)
			c.Assert(err, qt.ErrorIs, state.ErrInvalidTransaction)
		})
	}

	c.Assert(e.State.StartBlock(), qt.IsNil)
	_, err = e.State.ProcessBlock(e.Block(types.Transaction{}, types.Transaction{}), 1, true)
	c.Assert(err, qt.ErrorMatches, "too many transactions.*")
	e.State.DiscardBlock()

	ambiguous := types.Transaction{Transfer: transfer(1, to.ID), Deposit: &types.Deposit{AccountID: to.ID}}
	c.Assert(e.State.StartBlock(), qt.IsNil)
	_, err = e.State.ProcessBlock(e.Block(ambiguous), 1, true)
	c.Assert(err, qt.ErrorIs, state.ErrInvalidTransaction)
	e.State.DiscardBlock()

	rootAfter, err := e.State.Root()
	c.Assert(err, qt.IsNil)
	c.Assert(rootAfter.Cmp(rootBefore), qt.Equals, 0)
}

func TestWithdraw(t *testing.T) {
	c := qt.New(t)
	e := testutil.NewExchange(t, 1, 2, []uint32{0, 1}, big.NewInt(1000))
	acc := e.Accounts[0]

	signed := &types.Withdraw{
		AccountID:  acc.ID,
		TokenID:    0,
		Amount:     types.NewInt(400),
		FeeTokenID: 1,
		Fee:        types.NewInt(7),
	}
	e.SignWithdraw(t, acc, signed)
	// conditional withdrawals take what is left when asking for more
	conditional := &types.Withdraw{
		Type:      types.AuthConditional,
		AccountID: e.Accounts[1].ID,
		TokenID:   0,
		Amount:    types.NewInt(5000),
		Fee:       types.NewInt(0),
	}
	w := processBlock(c, e, 2, types.Transaction{Withdraw: signed}, types.Transaction{Withdraw: conditional})
	checkChain(c, w)
	c.Assert(w.NumConditionalTransactions, qt.Equals, uint32(1))
	c.Assert(circuits.Float28Encoding.Decode(w.Transactions[1].AmountFloat).Int64(), qt.Equals, int64(1000))

	c.Assert(balance(c, e, acc.ID, 0), qt.Equals, int64(600))
	c.Assert(balance(c, e, acc.ID, 1), qt.Equals, int64(993))
	c.Assert(balance(c, e, e.Accounts[1].ID, 0), qt.Equals, int64(0))
	c.Assert(balance(c, e, testutil.OperatorAccountID, 1), qt.Equals, int64(1007))
	c.Assert(e.Nonce(t, acc.ID).Int64(), qt.Equals, int64(1))
	c.Assert(e.Nonce(t, e.Accounts[1].ID).Int64(), qt.Equals, int64(0))
}

func TestSpotTrade(t *testing.T) {
	c := qt.New(t)
	e := testutil.NewExchange(t, 1, 2, []uint32{0, 1}, big.NewInt(10_000_000))
	a, b := e.Accounts[0], e.Accounts[1]

	orderA := testutil.Order(a, 16389, 0, 1, big.NewInt(1_000_000), big.NewInt(2_000_000))
	orderA.FeeBips = 20
	orderB := testutil.Order(b, 7, 1, 0, big.NewInt(2_000_000), big.NewInt(1_000_000))
	orderB.RebateBips = 5
	e.SignOrder(t, a, &orderA)
	e.SignOrder(t, b, &orderB)

	w := processBlock(c, e, 1, types.Transaction{SpotTrade: &types.SpotTrade{OrderA: orderA, OrderB: orderB}})
	checkChain(c, w)
	tx := w.Transactions[0]
	c.Assert(circuits.Float24Encoding.Decode(tx.FillSA).Int64(), qt.Equals, int64(1_000_000))
	c.Assert(circuits.Float24Encoding.Decode(tx.FillSB).Int64(), qt.Equals, int64(2_000_000))
	c.Assert(tx.TradeHistoryA.Address, qt.Equals, uint64(5))

	// taker: fee 20 bips and protocol fee 18/100000 of 2000000
	c.Assert(balance(c, e, a.ID, 0), qt.Equals, int64(9_000_000))
	c.Assert(balance(c, e, a.ID, 1), qt.Equals, int64(10_000_000+2_000_000-4_000-360))
	// maker: rebate 5 bips and protocol fee 6/100000 of 1000000
	c.Assert(balance(c, e, b.ID, 1), qt.Equals, int64(8_000_000))
	c.Assert(balance(c, e, b.ID, 0), qt.Equals, int64(10_000_000+1_000_000+500-60))
	c.Assert(balance(c, e, testutil.OperatorAccountID, 1), qt.Equals, int64(10_000_000+4_000))
	c.Assert(balance(c, e, testutil.OperatorAccountID, 0), qt.Equals, int64(10_000_000-500))
	c.Assert(balance(c, e, circuits.ProtocolPoolAccountID, 1), qt.Equals, int64(360))
	c.Assert(balance(c, e, circuits.ProtocolPoolAccountID, 0), qt.Equals, int64(60))

	th, err := e.State.TradeHistory(a.ID, 0, 5)
	c.Assert(err, qt.IsNil)
	c.Assert(th.Filled.Int64(), qt.Equals, int64(1_000_000))
	c.Assert(th.OrderID.Int64(), qt.Equals, int64(16389))

	// the pool account leaf commits to its balances
	pool, err := e.State.Account(circuits.ProtocolPoolAccountID)
	c.Assert(err, qt.IsNil)
	poolBalance, err := e.State.Balance(circuits.ProtocolPoolAccountID, 0)
	c.Assert(err, qt.IsNil)
	proof, err := e.State.BalanceProof(circuits.ProtocolPoolAccountID, 0)
	c.Assert(err, qt.IsNil)
	hash, err := circuits.LeafHash(poolBalance)
	c.Assert(err, qt.IsNil)
	c.Assert(rootFromProof(c, hash, 0, proof).Cmp(pool.BalancesRoot), qt.Equals, 0)

	for name, orders := range map[string][2]types.Order{
		// order A is completely filled
		"filled": {orderA, orderB},
		// an older order id in the slot of order A counts as cancelled
		"replaced": func() [2]types.Order {
			o := testutil.Order(a, 5, 0, 1, big.NewInt(1_000_000), big.NewInt(2_000_000))
			e.SignOrder(t, a, &o)
			return [2]types.Order{o, orderB}
		}(),
	} {
		c.Run(name, func(c *qt.C) {
			c.Assert(e.State.StartBlock(), qt.IsNil)
			defer e.State.DiscardBlock()
			_, err := e.State.ProcessBlock(e.Block(types.Transaction{SpotTrade: &types.SpotTrade{
				OrderA: orders[0],
				OrderB: orders[1],
			}}), 1, true)
			c.Assert(err, qt.ErrorIs, state.ErrInvalidTransaction)
		})
	}
}

func TestAccountLifecycle(t *testing.T) {
	c := qt.New(t)
	e := testutil.NewExchange(t, 1, 1, []uint32{0}, big.NewInt(1000))
	payer := e.Accounts[0]
	created, err := testutil.GenerateAccount(20)
	c.Assert(err, qt.IsNil)

	newAccount := &types.NewAccount{
		PayerAccountID: payer.ID,
		FeeTokenID:     0,
		Fee:            types.NewInt(10),
		NewAccountID:   created.ID,
		NewOwner:       created.Owner,
		NewPublicKey:   created.PublicKey(),
		WalletHash:     types.NewInt(12345),
	}
	e.SignNewAccount(t, payer, newAccount)
	w := processBlock(c, e, 1, types.Transaction{NewAccount: newAccount})
	checkChain(c, w)
	acc, err := e.State.Account(created.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(acc.Owner.Cmp(state.AddressToBigInt(created.Owner)), qt.Equals, 0)
	c.Assert(acc.WalletHash.Int64(), qt.Equals, int64(12345))
	c.Assert(balance(c, e, payer.ID, 0), qt.Equals, int64(990))
	c.Assert(w.Transactions[0].PublicData[0], qt.Equals, byte(types.TxTypeNewAccount))

	// the account can't be created twice
	again := *newAccount
	e.SignNewAccount(t, payer, &again)
	c.Assert(e.State.StartBlock(), qt.IsNil)
	_, err = e.State.ProcessBlock(e.Block(types.Transaction{NewAccount: &again}), 1, true)
	c.Assert(err, qt.ErrorIs, state.ErrInvalidTransaction)
	e.State.DiscardBlock()

	// the new key signs a key rotation, then the rotated key an owner change
	rotated, err := testutil.GenerateAccount(created.ID)
	c.Assert(err, qt.IsNil)
	update := &types.PublicKeyUpdate{
		AccountID: created.ID,
		Fee:       types.NewInt(0),
		PublicKey: rotated.PublicKey(),
	}
	e.SignPublicKeyUpdate(t, created, update)
	processBlock(c, e, 1, types.Transaction{PublicKeyUpdate: update})
	acc, err = e.State.Account(created.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(acc.PublicKeyX.Cmp(rotated.PublicKey().X.MathBigInt()), qt.Equals, 0)
	c.Assert(acc.Nonce.Int64(), qt.Equals, int64(1))

	newOwner, err := testutil.GenerateAccount(created.ID)
	c.Assert(err, qt.IsNil)
	change := &types.OwnerChange{
		AccountID:    created.ID,
		Fee:          types.NewInt(0),
		NewOwner:     newOwner.Owner,
		NewPublicKey: newOwner.PublicKey(),
	}
	e.SignOwnerChange(t, rotated, change)
	processBlock(c, e, 1, types.Transaction{OwnerChange: change})
	acc, err = e.State.Account(created.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(acc.Owner.Cmp(state.AddressToBigInt(newOwner.Owner)), qt.Equals, 0)
	c.Assert(acc.Nonce.Int64(), qt.Equals, int64(2))
}
