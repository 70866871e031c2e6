package transactions

import (
	"fmt"

	"github.com/consensys/gnark/frontend"
	"github.com/vocdoni/zk-exchange/circuits"
	"github.com/vocdoni/zk-exchange/circuits/gadgets"
	"github.com/vocdoni/zk-exchange/types"
)

// NewTransactionCircuits builds the circuit of every transaction type, in
// type order, each one enabled by its bit of the one-hot selector.
func NewTransactionCircuits(st *TransactionState, selector []frontend.Variable, in Inputs) ([]TransactionCircuit, error) {
	if len(selector) != types.NumTxTypes {
		return nil, fmt.Errorf("selector has %d bits, expected %d", len(selector), types.NumTxTypes)
	}
	txs := make([]TransactionCircuit, types.NumTxTypes)
	txs[types.TxTypeNoop] = NewNoop(st, selector[types.TxTypeNoop])
	txs[types.TxTypeDeposit] = NewDepositCircuit(st, selector[types.TxTypeDeposit], in.Deposit)
	var err error
	if txs[types.TxTypeWithdraw], err = NewWithdrawCircuit(st, selector[types.TxTypeWithdraw], in.Withdraw); err != nil {
		return nil, err
	}
	if txs[types.TxTypeTransfer], err = NewTransferCircuit(st, selector[types.TxTypeTransfer], in.Transfer); err != nil {
		return nil, err
	}
	if txs[types.TxTypeSpotTrade], err = NewSpotTradeCircuit(st, selector[types.TxTypeSpotTrade], in.SpotTrade); err != nil {
		return nil, err
	}
	if txs[types.TxTypeNewAccount], err = NewNewAccountCircuit(st, selector[types.TxTypeNewAccount],
		in.NewAccount); err != nil {
		return nil, err
	}
	if txs[types.TxTypePublicKeyUpdate], err = NewPublicKeyUpdateCircuit(st, selector[types.TxTypePublicKeyUpdate],
		in.PublicKeyUpdate); err != nil {
		return nil, err
	}
	if txs[types.TxTypeOwnerChange], err = NewOwnerChangeCircuit(st, selector[types.TxTypeOwnerChange],
		in.OwnerChange); err != nil {
		return nil, err
	}
	return txs, nil
}

// Selected are the outputs and the public data of the transaction type a
// slot holds.
type Selected struct {
	Outputs [NumTxVariables]frontend.Variable
	// PublicData is the data of the transaction padded to NumBitsTxData.
	PublicData []frontend.Variable
}

// SelectTransaction multiplexes the outputs of the transaction circuits
// with a one-hot selector. Public data is padded first so every type
// yields the same number of bits.
func SelectTransaction(api frontend.API, selector []frontend.Variable, txs []TransactionCircuit) (*Selected, error) {
	if len(selector) != len(txs) {
		return nil, fmt.Errorf("%d selector bits for %d transactions", len(selector), len(txs))
	}
	sel := &Selected{}
	values := make([]frontend.Variable, len(txs))
	for v := TxVariable(0); v < NumTxVariables; v++ {
		for i, tx := range txs {
			values[i] = tx.Output(v)
		}
		sel.Outputs[v] = gadgets.Select(api, selector, values)
	}
	data := make([][]frontend.Variable, len(txs))
	for i, tx := range txs {
		padded, err := tx.PublicData().Padded(circuits.NumBitsTxData)
		if err != nil {
			return nil, fmt.Errorf("transaction type %s: %w", types.TxType(i), err)
		}
		data[i] = padded
	}
	sel.PublicData = gadgets.ArraySelect(api, selector, data)
	return sel, nil
}
