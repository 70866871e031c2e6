// Package universal implements the block circuit: a fixed number of
// transaction slots, each one able to hold any transaction type, applied
// in order to the accounts tree and committed to by a single public input.
package universal

import (
	"fmt"

	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/algebra/native/twistededwards"
	"github.com/consensys/gnark/std/hash/mimc"
	"github.com/consensys/gnark/std/signature/eddsa"
	"github.com/vocdoni/zk-exchange/circuits"
	"github.com/vocdoni/zk-exchange/circuits/gadgets"
	"github.com/vocdoni/zk-exchange/circuits/merkle"
	tx "github.com/vocdoni/zk-exchange/circuits/transactions"
)

type Circuit struct {
	// ---------------------------------------------------------------------------------------------
	// PUBLIC INPUTS

	// PublicDataHash commits to the block parameters, both roots and, with
	// on-chain data availability, the data of every transaction.
	PublicDataHash frontend.Variable `gnark:",public"`

	// ---------------------------------------------------------------------------------------------
	// SECRET INPUTS
	ExchangeID                 frontend.Variable
	MerkleRootBefore           frontend.Variable
	MerkleRootAfter            frontend.Variable
	Timestamp                  frontend.Variable
	ProtocolTakerFeeBips       frontend.Variable
	ProtocolMakerFeeBips       frontend.Variable
	OperatorAccountID          frontend.Variable
	NumConditionalTransactions frontend.Variable

	Transactions []Transaction
	// AccountP is the protocol pool account, AccountO the operator account,
	// both updated once all the transactions are applied.
	AccountP merkle.AccountWitness
	AccountO merkle.AccountWitness

	OperatorSignature circuits.Signature[frontend.Variable]

	// OnchainDA publishes the data of every transaction. It changes the
	// shape of the circuit, so it is part of the placeholder.
	OnchainDA bool `gnark:"-"`
}

// NewCircuitPlaceholder returns the circuit of a block of numTransactions
// slots, ready to be compiled.
func NewCircuitPlaceholder(numTransactions int, onchainDA bool) *Circuit {
	return &Circuit{
		Transactions: make([]Transaction, numTransactions),
		OnchainDA:    onchainDA,
	}
}

// Define declares the circuit's constraints
func (circuit Circuit) Define(api frontend.API) error {
	c, err := gadgets.NewConstants(api)
	if err != nil {
		return err
	}
	c.RangeCheck(circuit.ExchangeID, circuits.NumBitsExchangeID)
	c.RangeCheck(circuit.Timestamp, circuits.NumBitsTimestamp)
	c.RangeCheck(circuit.ProtocolTakerFeeBips, circuits.NumBitsProtocolFeeBips)
	c.RangeCheck(circuit.ProtocolMakerFeeBips, circuits.NumBitsProtocolFeeBips)
	c.RangeCheck(circuit.OperatorAccountID, circuits.NumBitsAccount)
	api.AssertIsDifferent(circuit.OperatorAccountID, circuits.ProtocolPoolAccountID)

	block := &tx.BlockParams{
		ExchangeID:           circuit.ExchangeID,
		Timestamp:            circuit.Timestamp,
		ProtocolTakerFeeBips: circuit.ProtocolTakerFeeBips,
		ProtocolMakerFeeBips: circuit.ProtocolMakerFeeBips,
		OperatorAccountID:    circuit.OperatorAccountID,
	}
	roots, txData, err := circuit.applyTransactions(c, block)
	if err != nil {
		return err
	}
	if err := circuit.finalize(c, roots); err != nil {
		return err
	}
	hash, err := circuit.publicData(c, txData)
	if err != nil {
		return err
	}
	api.AssertIsEqual(hash, circuit.PublicDataHash)
	return circuit.verifyOperatorSignature(c)
}

// applyTransactions chains the transaction slots and returns the roots the
// last one leaves and the data of every transaction.
func (circuit Circuit) applyTransactions(c *gadgets.Constants, block *tx.BlockParams) (Roots, []frontend.Variable, error) {
	api := c.API
	roots := Roots{
		Accounts:         circuit.MerkleRootBefore,
		ProtocolBalances: circuit.AccountP.Before.BalancesRoot,
		OperatorBalances: circuit.AccountO.Before.BalancesRoot,
	}
	var numConditional frontend.Variable = 0
	var data []frontend.Variable
	for i := range circuit.Transactions {
		res, err := TransactionGadget(c, block, &circuit.Transactions[i], roots, numConditional)
		if err != nil {
			return Roots{}, nil, fmt.Errorf("transaction %d: %w", i, err)
		}
		roots, numConditional = res.Roots, res.NumConditionalTransactions
		data = append(data, res.PublicData...)
	}
	api.AssertIsEqual(numConditional, circuit.NumConditionalTransactions)
	return roots, data, nil
}

// finalize writes the protocol pool and operator balances to their
// accounts, increments the operator nonce and checks the final root.
func (circuit Circuit) finalize(c *gadgets.Constants, roots Roots) error {
	api := c.API
	pool := circuit.AccountP.Before
	pool.BalancesRoot = roots.ProtocolBalances
	root, err := merkle.UpdateAccount(api, circuits.HashFn, roots.Accounts, circuits.ProtocolPoolAccountID,
		circuit.AccountP, pool)
	if err != nil {
		return fmt.Errorf("protocol pool: %w", err)
	}
	operator := circuit.AccountO.Before
	operator.BalancesRoot = roots.OperatorBalances
	operator.Nonce = api.Add(operator.Nonce, 1)
	c.RangeCheck(operator.Nonce, circuits.NumBitsNonce)
	if root, err = merkle.UpdateAccount(api, circuits.HashFn, root, circuit.OperatorAccountID,
		circuit.AccountO, operator); err != nil {
		return fmt.Errorf("operator: %w", err)
	}
	api.AssertIsEqual(root, circuit.MerkleRootAfter)
	return nil
}

// publicData serializes the block and returns its hash.
func (circuit Circuit) publicData(c *gadgets.Constants, txData []frontend.Variable) (frontend.Variable, error) {
	api := c.API
	pd := &gadgets.PublicData{}
	pd.Add(api, circuit.ExchangeID, circuits.NumBitsExchangeID)
	// roots take 254 bits, published as 256
	for _, root := range []frontend.Variable{circuit.MerkleRootBefore, circuit.MerkleRootAfter} {
		pd.AddBits(0, 0)
		pd.Add(api, root, circuits.NumBitsMaxValue)
	}
	pd.Add(api, circuit.Timestamp, circuits.NumBitsTimestamp)
	pd.Add(api, circuit.ProtocolTakerFeeBips, circuits.NumBitsProtocolFeeBips)
	pd.Add(api, circuit.ProtocolMakerFeeBips, circuits.NumBitsProtocolFeeBips)
	pd.Add(api, circuit.NumConditionalTransactions, 32)
	if circuit.OnchainDA {
		pd.Add(api, circuit.OperatorAccountID, 24)
		pd.AddBits(txData...)
	}
	return pd.Hash(api)
}

// verifyOperatorSignature checks the operator signature over the public
// data hash and the operator nonce.
func (circuit Circuit) verifyOperatorSignature(c *gadgets.Constants) error {
	api := c.API
	operator := circuit.AccountO.Before
	msg, err := circuits.HashFn(api, circuit.PublicDataHash, operator.Nonce)
	if err != nil {
		return fmt.Errorf("operator message: %w", err)
	}
	h, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}
	sig := eddsa.Signature{
		R: twistededwards.Point{X: circuit.OperatorSignature.RX, Y: circuit.OperatorSignature.RY},
		S: circuit.OperatorSignature.S,
	}
	pk := eddsa.PublicKey{A: twistededwards.Point{X: operator.PublicKeyX, Y: operator.PublicKeyY}}
	if err := eddsa.Verify(c.Curve, sig, msg, pk, &h); err != nil {
		return fmt.Errorf("operator signature: %w", err)
	}
	return nil
}
