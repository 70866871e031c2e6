package transactions

import (
	"fmt"
	"math/big"
	"testing"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/test"
	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/zk-exchange/circuits"
	"github.com/vocdoni/zk-exchange/circuits/gadgets"
	"github.com/vocdoni/zk-exchange/circuits/testutil"
	"github.com/vocdoni/zk-exchange/state"
	"github.com/vocdoni/zk-exchange/types"
)

// txCircuit runs every transaction circuit of a slot and checks the
// selected outputs and public data against a processed transaction.
type txCircuit struct {
	Block      BlockParams
	Before     Leaves
	Counter    frontend.Variable
	Type       frontend.Variable
	Inputs     Inputs
	SignatureA circuits.Signature[frontend.Variable]
	SignatureB circuits.Signature[frontend.Variable]

	Outputs [NumTxVariables]frontend.Variable
	Data    [circuits.TxDataAvailabilitySize * 8]frontend.Variable
}

func (t *txCircuit) Define(api frontend.API) error {
	c, err := gadgets.NewConstants(api)
	if err != nil {
		return err
	}
	st := &TransactionState{
		Constants:                  c,
		Block:                      &t.Block,
		Before:                     &t.Before,
		NumConditionalTransactions: t.Counter,
	}
	selector := gadgets.Selector(api, t.Type, types.NumTxTypes)
	txs, err := NewTransactionCircuits(st, selector, t.Inputs)
	if err != nil {
		return err
	}
	sel, err := SelectTransaction(api, selector, txs)
	if err != nil {
		return err
	}
	for v := TxVariable(0); v < NumTxVariables; v++ {
		// hashes are checked through the signatures
		if v == HashA || v == HashB {
			continue
		}
		api.AssertIsEqual(sel.Outputs[v], t.Outputs[v])
	}
	data := append(gadgets.ToBitsMSB(api, t.Type, circuits.NumBitsTxType), sel.PublicData...)
	if len(data) != len(t.Data) {
		return fmt.Errorf("public data has %d bits, expected %d", len(data), len(t.Data))
	}
	for i := range t.Data {
		api.AssertIsEqual(data[i], t.Data[i])
	}
	for _, s := range []struct {
		account   circuits.Account[frontend.Variable]
		signature circuits.Signature[frontend.Variable]
		hash      frontend.Variable
		required  frontend.Variable
	}{
		{t.Before.AccountA.Account, t.SignatureA, sel.Outputs[HashA], sel.Outputs[SignatureRequiredA]},
		{t.Before.AccountB.Account, t.SignatureB, sel.Outputs[HashB], sel.Outputs[SignatureRequiredB]},
	} {
		pk := gadgets.PublicKey{X: s.account.PublicKeyX, Y: s.account.PublicKeyY}
		if err := gadgets.VerifySignature(c, circuits.HashFn, s.required, pk, s.signature, s.hash); err != nil {
			return err
		}
	}
	return nil
}

func accountVars(a circuits.Account[*big.Int]) circuits.Account[frontend.Variable] {
	return circuits.Account[frontend.Variable]{
		Owner:        a.Owner,
		PublicKeyX:   a.PublicKeyX,
		PublicKeyY:   a.PublicKeyY,
		Nonce:        a.Nonce,
		WalletHash:   a.WalletHash,
		BalancesRoot: a.BalancesRoot,
	}
}

func balanceVars(b circuits.Balance[*big.Int]) circuits.Balance[frontend.Variable] {
	return circuits.Balance[frontend.Variable]{
		Balance:            b.Balance,
		Index:              b.Index,
		TradingHistoryRoot: b.TradingHistoryRoot,
	}
}

func tradeHistoryVars(th circuits.TradeHistory[*big.Int]) circuits.TradeHistory[frontend.Variable] {
	return circuits.TradeHistory[frontend.Variable]{
		Filled:    th.Filled,
		Cancelled: th.Cancelled,
		OrderID:   th.OrderID,
	}
}

type sideUpdates struct {
	vars         SideVariables
	account      *state.LeafUpdate[circuits.Account[*big.Int]]
	balanceS     *state.LeafUpdate[circuits.Balance[*big.Int]]
	balanceB     *state.LeafUpdate[circuits.Balance[*big.Int]]
	tradeHistory *state.LeafUpdate[circuits.TradeHistory[*big.Int]]
}

func sides(w *state.TxWitness) []sideUpdates {
	return []sideUpdates{
		{SideA, w.AccountA, w.BalanceAS, w.BalanceAB, w.TradeHistoryA},
		{SideB, w.AccountB, w.BalanceBS, w.BalanceBB, w.TradeHistoryB},
	}
}

func leavesAssignment(w *state.TxWitness) Leaves {
	side := func(s sideUpdates) AccountLeaves {
		return AccountLeaves{
			Account:      accountVars(s.account.Before),
			BalanceS:     balanceVars(s.balanceS.Before),
			BalanceB:     balanceVars(s.balanceB.Before),
			TradeHistory: tradeHistoryVars(s.tradeHistory.Before),
		}
	}
	s := sides(w)
	return Leaves{
		AccountA:  side(s[0]),
		AccountB:  side(s[1]),
		BalancePA: balanceVars(w.BalancePA.Before),
		BalancePB: balanceVars(w.BalancePB.Before),
		BalanceOA: balanceVars(w.BalanceOA.Before),
		BalanceOB: balanceVars(w.BalanceOB.Before),
	}
}

func signaturesRequired(w *state.TxWitness) (int, int) {
	switch w.Type {
	case types.TxTypeNoop, types.TxTypeDeposit:
		return 0, 0
	case types.TxTypeWithdraw, types.TxTypeTransfer, types.TxTypePublicKeyUpdate:
		return 1 - int(w.Conditional), 0
	case types.TxTypeSpotTrade:
		return 1, 1
	default:
		return 1, 0
	}
}

func outputsAssignment(w *state.TxWitness, counter uint32) [NumTxVariables]frontend.Variable {
	var o [NumTxVariables]frontend.Variable
	for _, s := range sides(w) {
		o[s.vars.Address] = s.account.Address
		o[s.vars.Owner] = s.account.After.Owner
		o[s.vars.PublicKeyX] = s.account.After.PublicKeyX
		o[s.vars.PublicKeyY] = s.account.After.PublicKeyY
		o[s.vars.Nonce] = s.account.After.Nonce
		o[s.vars.WalletHash] = s.account.After.WalletHash
		o[s.vars.BalanceSAddress] = s.balanceS.Address
		o[s.vars.BalanceS] = s.balanceS.After.Balance
		o[s.vars.BalanceBAddress] = s.balanceB.Address
		o[s.vars.BalanceB] = s.balanceB.After.Balance
		o[s.vars.TradeHistoryAddress] = s.tradeHistory.Address
		o[s.vars.Filled] = s.tradeHistory.After.Filled
		o[s.vars.Cancelled] = s.tradeHistory.After.Cancelled
		o[s.vars.OrderID] = s.tradeHistory.After.OrderID
		o[s.vars.Hash] = 0
	}
	o[SignatureRequiredA], o[SignatureRequiredB] = signaturesRequired(w)
	o[BalancePABalance] = w.BalancePA.After.Balance
	o[BalancePBBalance] = w.BalancePB.After.Balance
	o[BalanceOABalance] = w.BalanceOA.After.Balance
	o[BalanceOBBalance] = w.BalanceOB.After.Balance
	o[NumConditionalTransactions] = counter + w.Conditional
	return o
}

func signatureVars(s circuits.Signature[*big.Int]) circuits.Signature[frontend.Variable] {
	return circuits.Signature[frontend.Variable]{RX: s.RX, RY: s.RY, S: s.S}
}

func txAssignment(c *qt.C, e *testutil.Exchange, w *state.TxWitness) *txCircuit {
	const counter = 5
	in, err := InputsAssignment(w)
	c.Assert(err, qt.IsNil)
	block := e.Block()
	assignment := &txCircuit{
		Block: BlockParams{
			ExchangeID:           e.ID,
			Timestamp:            block.Timestamp,
			ProtocolTakerFeeBips: block.ProtocolTakerFeeBips,
			ProtocolMakerFeeBips: block.ProtocolMakerFeeBips,
			OperatorAccountID:    block.OperatorAccountID,
		},
		Before:     leavesAssignment(w),
		Counter:    counter,
		Type:       uint8(w.Type),
		Inputs:     in,
		SignatureA: signatureVars(w.SignatureA),
		SignatureB: signatureVars(w.SignatureB),
		Outputs:    outputsAssignment(w, counter),
	}
	c.Assert(w.PublicData, qt.HasLen, circuits.TxDataAvailabilitySize)
	for i, b := range w.PublicData {
		for j := 0; j < 8; j++ {
			assignment.Data[i*8+j] = (b >> (7 - j)) & 1
		}
	}
	return assignment
}

func TestTransactionCircuits(t *testing.T) {
	c := qt.New(t)
	e := testutil.NewExchange(t, 7, 2, []uint32{0, 1}, big.NewInt(10_000_000))
	a, b := e.Accounts[0], e.Accounts[1]

	type txCase struct {
		name    string
		witness *state.TxWitness
	}
	var cases []txCase
	// every transaction goes in its own block so signatures see the nonce
	// the previous one left
	apply := func(name string, txs ...types.Transaction) {
		c.Assert(e.State.StartBlock(), qt.IsNil)
		w, err := e.State.ProcessBlock(e.Block(txs...), 1, true)
		if err != nil {
			e.State.DiscardBlock()
			c.Fatalf("%s: %v", name, err)
		}
		c.Assert(e.State.CommitBlock(), qt.IsNil)
		cases = append(cases, txCase{name, w.Transactions[0]})
	}

	apply("noop")

	depositor, err := testutil.GenerateAccount(30)
	c.Assert(err, qt.IsNil)
	apply("deposit", types.Transaction{Deposit: &types.Deposit{
		Owner:     depositor.Owner,
		AccountID: depositor.ID,
		TokenID:   1,
		Amount:    types.NewInt(500),
	}})

	transfer := &types.Transfer{
		AccountFromID: a.ID,
		AccountToID:   b.ID,
		TokenID:       0,
		Amount:        types.NewInt(100),
		FeeTokenID:    1,
		Fee:           types.NewInt(3),
		To:            b.Owner,
	}
	e.SignTransfer(t, a, transfer)
	apply("transfer", types.Transaction{Transfer: transfer})

	self := &types.Transfer{
		AccountFromID: b.ID,
		AccountToID:   b.ID,
		TokenID:       1,
		Amount:        types.NewInt(50),
		FeeTokenID:    1,
		Fee:           types.NewInt(2),
		To:            b.Owner,
	}
	e.SignTransfer(t, b, self)
	apply("self transfer", types.Transaction{Transfer: self})

	apply("conditional transfer", types.Transaction{Transfer: &types.Transfer{
		Type:          types.AuthConditional,
		AccountFromID: b.ID,
		AccountToID:   depositor.ID,
		TokenID:       1,
		Amount:        types.NewInt(10),
		Fee:           types.NewInt(0),
		To:            depositor.Owner,
	}})

	withdraw := &types.Withdraw{
		AccountID:  a.ID,
		TokenID:    0,
		Amount:     types.NewInt(400),
		FeeTokenID: 1,
		Fee:        types.NewInt(7),
	}
	e.SignWithdraw(t, a, withdraw)
	apply("withdraw", types.Transaction{Withdraw: withdraw})

	apply("conditional withdraw", types.Transaction{Withdraw: &types.Withdraw{
		Type:      types.AuthConditional,
		AccountID: depositor.ID,
		TokenID:   1,
		Amount:    types.NewInt(100_000),
		Fee:       types.NewInt(0),
	}})

	orderA := testutil.Order(a, 16389, 0, 1, big.NewInt(1_000_000), big.NewInt(2_000_000))
	orderA.FeeBips = 20
	orderB := testutil.Order(b, 7, 1, 0, big.NewInt(2_000_000), big.NewInt(1_000_000))
	orderB.RebateBips = 5
	e.SignOrder(t, a, &orderA)
	e.SignOrder(t, b, &orderB)
	apply("spot trade", types.Transaction{SpotTrade: &types.SpotTrade{OrderA: orderA, OrderB: orderB}})

	created, err := testutil.GenerateAccount(20)
	c.Assert(err, qt.IsNil)
	newAccount := &types.NewAccount{
		PayerAccountID: a.ID,
		FeeTokenID:     0,
		Fee:            types.NewInt(10),
		NewAccountID:   created.ID,
		NewOwner:       created.Owner,
		NewPublicKey:   created.PublicKey(),
		WalletHash:     types.NewInt(12345),
	}
	e.SignNewAccount(t, a, newAccount)
	apply("new account", types.Transaction{NewAccount: newAccount})

	rotated, err := testutil.GenerateAccount(created.ID)
	c.Assert(err, qt.IsNil)
	update := &types.PublicKeyUpdate{
		AccountID: created.ID,
		Fee:       types.NewInt(0),
		PublicKey: rotated.PublicKey(),
	}
	e.SignPublicKeyUpdate(t, created, update)
	apply("public key update", types.Transaction{PublicKeyUpdate: update})

	newOwner, err := testutil.GenerateAccount(b.ID)
	c.Assert(err, qt.IsNil)
	change := &types.OwnerChange{
		AccountID:    b.ID,
		FeeTokenID:   1,
		Fee:          types.NewInt(1),
		NewOwner:     newOwner.Owner,
		NewPublicKey: newOwner.PublicKey(),
	}
	e.SignOwnerChange(t, b, change)
	apply("owner change", types.Transaction{OwnerChange: change})

	for _, tc := range cases {
		c.Run(tc.name, func(c *qt.C) {
			assignment := txAssignment(c, e, tc.witness)
			err := test.IsSolved(&txCircuit{}, assignment, ecc.BN254.ScalarField())
			c.Assert(err, qt.IsNil)
		})
	}
}

func TestTransactionCircuitsTampered(t *testing.T) {
	c := qt.New(t)
	e := testutil.NewExchange(t, 7, 2, []uint32{0, 1}, big.NewInt(10_000_000))
	a, b := e.Accounts[0], e.Accounts[1]
	transfer := &types.Transfer{
		AccountFromID: a.ID,
		AccountToID:   b.ID,
		TokenID:       0,
		Amount:        types.NewInt(100),
		FeeTokenID:    1,
		Fee:           types.NewInt(3),
		To:            b.Owner,
	}
	e.SignTransfer(t, a, transfer)
	c.Assert(e.State.StartBlock(), qt.IsNil)
	defer e.State.DiscardBlock()
	w, err := e.State.ProcessBlock(e.Block(types.Transaction{Transfer: transfer}), 1, true)
	c.Assert(err, qt.IsNil)
	tx := w.Transactions[0]

	c.Run("valid", func(c *qt.C) {
		err := test.IsSolved(&txCircuit{}, txAssignment(c, e, tx), ecc.BN254.ScalarField())
		c.Assert(err, qt.IsNil)
	})
	c.Run("amount not signed", func(c *qt.C) {
		assignment := txAssignment(c, e, tx)
		assignment.Inputs.Transfer.Amount = 101
		err := test.IsSolved(&txCircuit{}, assignment, ecc.BN254.ScalarField())
		c.Assert(err, qt.IsNotNil)
	})
	c.Run("wrong type", func(c *qt.C) {
		assignment := txAssignment(c, e, tx)
		assignment.Type = uint8(types.TxTypeWithdraw)
		err := test.IsSolved(&txCircuit{}, assignment, ecc.BN254.ScalarField())
		c.Assert(err, qt.IsNotNil)
	})
	c.Run("wrong recipient", func(c *qt.C) {
		assignment := txAssignment(c, e, tx)
		assignment.Inputs.Transfer.To = state.AddressToBigInt(a.Owner)
		err := test.IsSolved(&txCircuit{}, assignment, ecc.BN254.ScalarField())
		c.Assert(err, qt.IsNotNil)
	})
}
