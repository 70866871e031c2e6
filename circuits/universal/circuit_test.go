package universal_test

import (
	"math/big"
	"os"
	"testing"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/consensys/gnark/logger"
	"github.com/consensys/gnark/test"
	qt "github.com/frankban/quicktest"
	"github.com/rs/zerolog"
	"github.com/vocdoni/zk-exchange/circuits"
	"github.com/vocdoni/zk-exchange/circuits/testutil"
	"github.com/vocdoni/zk-exchange/circuits/universal"
	"github.com/vocdoni/zk-exchange/state"
	"github.com/vocdoni/zk-exchange/types"
)

func skipCircuitTests(t *testing.T) {
	if os.Getenv("RUN_CIRCUIT_TESTS") == "" || os.Getenv("RUN_CIRCUIT_TESTS") == "false" {
		t.Skip("skipping circuit tests...")
	}
}

// tradingBlock processes a signed block with a transfer, a spot trade and
// a deposit, padded with noops to numTxs, and commits it.
func tradingBlock(c *qt.C, numTxs int, onchainDA bool) (*testutil.Exchange, *state.BlockWitness) {
	c.Helper()
	e := testutil.NewExchange(c, 1, 2, []uint32{0, 1}, big.NewInt(10_000_000))
	a, b := e.Accounts[0], e.Accounts[1]

	transfer := &types.Transfer{
		AccountFromID: a.ID,
		AccountToID:   b.ID,
		TokenID:       1,
		Amount:        types.NewInt(1000),
		FeeTokenID:    0,
		Fee:           types.NewInt(5),
		To:            b.Owner,
	}
	e.SignTransfer(c, a, transfer)
	orderA := testutil.Order(a, 3, 0, 1, big.NewInt(1_000_000), big.NewInt(2_000_000))
	orderA.FeeBips = 20
	orderB := testutil.Order(b, 9, 1, 0, big.NewInt(2_000_000), big.NewInt(1_000_000))
	orderB.RebateBips = 5
	e.SignOrder(c, a, &orderA)
	e.SignOrder(c, b, &orderB)
	depositor, err := testutil.GenerateAccount(40)
	c.Assert(err, qt.IsNil)

	c.Assert(e.State.StartBlock(), qt.IsNil)
	w, err := e.State.ProcessBlock(e.Block(
		types.Transaction{Transfer: transfer},
		types.Transaction{SpotTrade: &types.SpotTrade{OrderA: orderA, OrderB: orderB}},
		types.Transaction{Deposit: &types.Deposit{
			Owner:     depositor.Owner,
			AccountID: depositor.ID,
			TokenID:   0,
			Amount:    types.NewInt(77),
		}},
	), numTxs, onchainDA)
	if err != nil {
		e.State.DiscardBlock()
		c.Fatalf("process block: %v", err)
	}
	e.SignBlock(c, w)
	c.Assert(e.State.CommitBlock(), qt.IsNil)
	return e, w
}

func TestBlockCircuit(t *testing.T) {
	c := qt.New(t)
	for _, onchainDA := range []bool{true, false} {
		c.Run(map[bool]string{true: "onchain data", false: "no data"}[onchainDA], func(c *qt.C) {
			_, w := tradingBlock(c, 4, onchainDA)
			assignment, err := universal.Assignment(w)
			c.Assert(err, qt.IsNil)
			c.Assert(assignment.Transactions, qt.HasLen, 4)
			err = test.IsSolved(universal.NewCircuitPlaceholder(4, onchainDA), assignment, ecc.BN254.ScalarField())
			c.Assert(err, qt.IsNil)
		})
	}
}

func TestBlockCircuitTampered(t *testing.T) {
	c := qt.New(t)
	e, w := tradingBlock(c, 3, true)

	other, err := testutil.GenerateAccount(testutil.OperatorAccountID)
	c.Assert(err, qt.IsNil)
	forged, err := circuits.SignatureFromBytes(other.Sign(c, w.OperatorMessage))
	c.Assert(err, qt.IsNil)
	a := e.Accounts[0]

	for name, tamper := range map[string]func(*universal.Circuit){
		"public data hash": func(u *universal.Circuit) {
			u.PublicDataHash = new(big.Int).Add(w.PublicDataHash, big.NewInt(1))
		},
		"root after": func(u *universal.Circuit) {
			u.MerkleRootAfter = w.MerkleRootBefore
		},
		"conditional counter": func(u *universal.Circuit) {
			u.NumConditionalTransactions = 0
		},
		"operator signature": func(u *universal.Circuit) {
			u.OperatorSignature.RX, u.OperatorSignature.RY, u.OperatorSignature.S = forged.RX, forged.RY, forged.S
		},
		"transfer amount": func(u *universal.Circuit) {
			u.Transactions[0].Inputs.Transfer.Amount = 999
		},
		"spot trade signature": func(u *universal.Circuit) {
			u.Transactions[1].SignatureA = u.Transactions[0].SignatureA
		},
		"timestamp": func(u *universal.Circuit) {
			u.Timestamp = 1
		},
		"operator account": func(u *universal.Circuit) {
			u.OperatorAccountID = a.ID
		},
	} {
		c.Run(name, func(c *qt.C) {
			assignment, err := universal.Assignment(w)
			c.Assert(err, qt.IsNil)
			tamper(assignment)
			err = test.IsSolved(universal.NewCircuitPlaceholder(3, true), assignment, ecc.BN254.ScalarField())
			c.Assert(err, qt.IsNotNil)
		})
	}
}

func TestAssignmentUnsigned(t *testing.T) {
	c := qt.New(t)
	e := testutil.NewExchange(t, 1, 1, []uint32{0}, big.NewInt(10))
	c.Assert(e.State.StartBlock(), qt.IsNil)
	defer e.State.DiscardBlock()
	w, err := e.State.ProcessBlock(e.Block(), 1, true)
	c.Assert(err, qt.IsNil)
	_, err = universal.Assignment(w)
	c.Assert(err, qt.ErrorMatches, "block is not signed by the operator")
}

func TestCircuitCompile(t *testing.T) {
	skipCircuitTests(t)
	// enable log to see nbConstraints
	logger.Set(zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}).With().Timestamp().Logger())

	if _, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder,
		universal.NewCircuitPlaceholder(1, true),
	); err != nil {
		t.Fatal(err)
	}
}

func TestCircuitProve(t *testing.T) {
	skipCircuitTests(t)
	c := qt.New(t)
	_, w := tradingBlock(c, 3, true)
	assignment, err := universal.Assignment(w)
	c.Assert(err, qt.IsNil)

	assert := test.NewAssert(t)
	assert.ProverSucceeded(
		universal.NewCircuitPlaceholder(3, true),
		assignment,
		test.WithCurves(ecc.BN254),
		test.WithBackends(backend.GROTH16))
}
