package universal

import (
	"fmt"
	"math/big"
	"runtime"

	"github.com/consensys/gnark/frontend"
	"github.com/vocdoni/zk-exchange/circuits"
	"github.com/vocdoni/zk-exchange/circuits/merkle"
	tx "github.com/vocdoni/zk-exchange/circuits/transactions"
	"github.com/vocdoni/zk-exchange/state"
	"golang.org/x/sync/errgroup"
)

// TransactionAssignment converts the witness of an applied transaction
// into the witness of its slot.
func TransactionAssignment(w *state.TxWitness) (Transaction, error) {
	inputs, err := tx.InputsAssignment(w)
	if err != nil {
		return Transaction{}, err
	}
	t := Transaction{
		Type:       uint8(w.Type),
		Inputs:     inputs,
		SignatureA: signatureAssignment(w.SignatureA),
		SignatureB: signatureAssignment(w.SignatureB),
	}
	for _, th := range []struct {
		dst *merkle.TradeHistoryWitness
		src *state.LeafUpdate[circuits.TradeHistory[*big.Int]]
	}{
		{&t.TradeHistoryA, w.TradeHistoryA},
		{&t.TradeHistoryB, w.TradeHistoryB},
	} {
		if *th.dst, err = merkle.TradeHistoryWitnessFromLeaf(th.src.Before, th.src.Siblings); err != nil {
			return Transaction{}, err
		}
	}
	for _, b := range []struct {
		dst *merkle.BalanceWitness
		src *state.LeafUpdate[circuits.Balance[*big.Int]]
	}{
		{&t.BalanceAS, w.BalanceAS},
		{&t.BalanceAB, w.BalanceAB},
		{&t.BalanceBS, w.BalanceBS},
		{&t.BalanceBB, w.BalanceBB},
		{&t.BalancePA, w.BalancePA},
		{&t.BalancePB, w.BalancePB},
		{&t.BalanceOA, w.BalanceOA},
		{&t.BalanceOB, w.BalanceOB},
	} {
		if *b.dst, err = merkle.BalanceWitnessFromLeaf(b.src.Before, b.src.Siblings); err != nil {
			return Transaction{}, err
		}
	}
	if t.AccountA, err = merkle.AccountWitnessFromLeaf(w.AccountA.Before, w.AccountA.Siblings); err != nil {
		return Transaction{}, err
	}
	if t.AccountB, err = merkle.AccountWitnessFromLeaf(w.AccountB.Before, w.AccountB.Siblings); err != nil {
		return Transaction{}, err
	}
	return t, nil
}

// Assignment builds the witness of the block circuit from a processed
// block. The block must be signed by the operator. Transactions are
// converted concurrently.
func Assignment(w *state.BlockWitness) (*Circuit, error) {
	if w.OperatorSignature == nil {
		return nil, fmt.Errorf("block is not signed by the operator")
	}
	assignment := &Circuit{
		PublicDataHash:             w.PublicDataHash,
		ExchangeID:                 w.ExchangeID,
		MerkleRootBefore:           w.MerkleRootBefore,
		MerkleRootAfter:            w.MerkleRootAfter,
		Timestamp:                  w.Timestamp,
		ProtocolTakerFeeBips:       w.ProtocolTakerFeeBips,
		ProtocolMakerFeeBips:       w.ProtocolMakerFeeBips,
		OperatorAccountID:          w.OperatorAccountID,
		NumConditionalTransactions: w.NumConditionalTransactions,
		Transactions:               make([]Transaction, len(w.Transactions)),
		OperatorSignature:          signatureAssignment(*w.OperatorSignature),
		OnchainDA:                  w.OnchainDA,
	}
	var err error
	if assignment.AccountP, err = merkle.AccountWitnessFromLeaf(w.AccountP.Before, w.AccountP.Siblings); err != nil {
		return nil, fmt.Errorf("protocol pool: %w", err)
	}
	if assignment.AccountO, err = merkle.AccountWitnessFromLeaf(w.AccountO.Before, w.AccountO.Siblings); err != nil {
		return nil, fmt.Errorf("operator: %w", err)
	}

	g := errgroup.Group{}
	g.SetLimit(runtime.NumCPU())
	for i, txw := range w.Transactions {
		g.Go(func() error {
			t, err := TransactionAssignment(txw)
			if err != nil {
				return fmt.Errorf("transaction %d: %w", i, err)
			}
			assignment.Transactions[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return assignment, nil
}

func signatureAssignment(s circuits.Signature[*big.Int]) circuits.Signature[frontend.Variable] {
	return circuits.Signature[frontend.Variable]{RX: s.RX, RY: s.RY, S: s.S}
}
