package universal

import (
	"fmt"

	"github.com/consensys/gnark/frontend"
	"github.com/vocdoni/zk-exchange/circuits"
	"github.com/vocdoni/zk-exchange/circuits/gadgets"
	"github.com/vocdoni/zk-exchange/circuits/merkle"
	tx "github.com/vocdoni/zk-exchange/circuits/transactions"
	"github.com/vocdoni/zk-exchange/types"
)

// Transaction is the witness of a transaction slot: its type, the payloads
// of every transaction circuit and the leaves it updates with their
// siblings, in update order.
type Transaction struct {
	Type   frontend.Variable
	Inputs tx.Inputs

	TradeHistoryA merkle.TradeHistoryWitness
	BalanceAS     merkle.BalanceWitness
	BalanceAB     merkle.BalanceWitness
	AccountA      merkle.AccountWitness
	TradeHistoryB merkle.TradeHistoryWitness
	BalanceBS     merkle.BalanceWitness
	BalanceBB     merkle.BalanceWitness
	AccountB      merkle.AccountWitness
	BalancePA     merkle.BalanceWitness
	BalancePB     merkle.BalanceWitness
	BalanceOA     merkle.BalanceWitness
	BalanceOB     merkle.BalanceWitness

	SignatureA circuits.Signature[frontend.Variable]
	SignatureB circuits.Signature[frontend.Variable]
}

// Roots are the roots threaded from one transaction to the next. The
// protocol pool and operator balances are only written to the accounts
// tree at the end of the block.
type Roots struct {
	Accounts         frontend.Variable
	ProtocolBalances frontend.Variable
	OperatorBalances frontend.Variable
}

// TransactionResult is what a transaction slot passes on to the next one.
type TransactionResult struct {
	Roots                      Roots
	NumConditionalTransactions frontend.Variable
	// PublicData is the type byte followed by the padded transaction data.
	PublicData []frontend.Variable
}

// leaves returns the leaves before the transaction, as the transaction
// circuits read them.
func (t *Transaction) leaves() *tx.Leaves {
	return &tx.Leaves{
		AccountA: tx.AccountLeaves{
			Account:      t.AccountA.Before,
			BalanceS:     t.BalanceAS.Before,
			BalanceB:     t.BalanceAB.Before,
			TradeHistory: t.TradeHistoryA.Before,
		},
		AccountB: tx.AccountLeaves{
			Account:      t.AccountB.Before,
			BalanceS:     t.BalanceBS.Before,
			BalanceB:     t.BalanceBB.Before,
			TradeHistory: t.TradeHistoryB.Before,
		},
		BalancePA: t.BalancePA.Before,
		BalancePB: t.BalancePB.Before,
		BalanceOA: t.BalanceOA.Before,
		BalanceOB: t.BalanceOB.Before,
	}
}

// TransactionGadget runs every transaction circuit of a slot, keeps the
// outputs of the type the slot holds, checks the signatures it requires
// and applies its outputs to the trees.
func TransactionGadget(c *gadgets.Constants, block *tx.BlockParams, t *Transaction, roots Roots,
	numConditionalTransactions frontend.Variable,
) (*TransactionResult, error) {
	api := c.API
	st := &tx.TransactionState{
		Constants:                  c,
		Block:                      block,
		Before:                     t.leaves(),
		NumConditionalTransactions: numConditionalTransactions,
	}
	selector := gadgets.Selector(api, t.Type, types.NumTxTypes)
	txs, err := tx.NewTransactionCircuits(st, selector, t.Inputs)
	if err != nil {
		return nil, err
	}
	sel, err := tx.SelectTransaction(api, selector, txs)
	if err != nil {
		return nil, err
	}
	out := sel.Outputs

	for _, s := range []struct {
		account   merkle.AccountWitness
		signature circuits.Signature[frontend.Variable]
		hash      tx.TxVariable
		required  tx.TxVariable
	}{
		{t.AccountA, t.SignatureA, tx.HashA, tx.SignatureRequiredA},
		{t.AccountB, t.SignatureB, tx.HashB, tx.SignatureRequiredB},
	} {
		pk := gadgets.PublicKey{X: s.account.Before.PublicKeyX, Y: s.account.Before.PublicKeyY}
		if err := gadgets.VerifySignature(c, circuits.HashFn, out[s.required], pk, s.signature, out[s.hash]); err != nil {
			return nil, err
		}
	}

	// order here is fundamental: every update starts from the root the
	// previous one left
	accountsRoot := roots.Accounts
	for _, s := range []struct {
		vars         tx.SideVariables
		tradeHistory merkle.TradeHistoryWitness
		balanceS     merkle.BalanceWitness
		balanceB     merkle.BalanceWitness
		account      merkle.AccountWitness
	}{
		{tx.SideA, t.TradeHistoryA, t.BalanceAS, t.BalanceAB, t.AccountA},
		{tx.SideB, t.TradeHistoryB, t.BalanceBS, t.BalanceBB, t.AccountB},
	} {
		v := s.vars
		tradeHistoryRoot, err := merkle.UpdateTradeHistory(api, circuits.HashFn,
			s.balanceS.Before.TradingHistoryRoot, out[v.TradeHistoryAddress], s.tradeHistory,
			circuits.TradeHistory[frontend.Variable]{
				Filled:    out[v.Filled],
				Cancelled: out[v.Cancelled],
				OrderID:   out[v.OrderID],
			})
		if err != nil {
			return nil, err
		}
		balancesRoot, err := merkle.UpdateBalance(api, circuits.HashFn,
			s.account.Before.BalancesRoot, out[v.BalanceSAddress], s.balanceS,
			circuits.Balance[frontend.Variable]{
				Balance:            out[v.BalanceS],
				Index:              s.balanceS.Before.Index,
				TradingHistoryRoot: tradeHistoryRoot,
			})
		if err != nil {
			return nil, err
		}
		if balancesRoot, err = merkle.UpdateBalance(api, circuits.HashFn,
			balancesRoot, out[v.BalanceBAddress], s.balanceB,
			circuits.Balance[frontend.Variable]{
				Balance:            out[v.BalanceB],
				Index:              s.balanceB.Before.Index,
				TradingHistoryRoot: s.balanceB.Before.TradingHistoryRoot,
			}); err != nil {
			return nil, err
		}
		if accountsRoot, err = merkle.UpdateAccount(api, circuits.HashFn,
			accountsRoot, out[v.Address], s.account,
			circuits.Account[frontend.Variable]{
				Owner:        out[v.Owner],
				PublicKeyX:   out[v.PublicKeyX],
				PublicKeyY:   out[v.PublicKeyY],
				Nonce:        out[v.Nonce],
				WalletHash:   out[v.WalletHash],
				BalancesRoot: balancesRoot,
			}); err != nil {
			return nil, err
		}
	}

	// the protocol pool and the operator receive in the token bought by
	// each side
	protocolRoot, operatorRoot := roots.ProtocolBalances, roots.OperatorBalances
	for _, u := range []struct {
		root    *frontend.Variable
		address tx.TxVariable
		witness merkle.BalanceWitness
		balance tx.TxVariable
	}{
		{&protocolRoot, tx.BalanceABAddress, t.BalancePA, tx.BalancePABalance},
		{&protocolRoot, tx.BalanceBBAddress, t.BalancePB, tx.BalancePBBalance},
		{&operatorRoot, tx.BalanceABAddress, t.BalanceOA, tx.BalanceOABalance},
		{&operatorRoot, tx.BalanceBBAddress, t.BalanceOB, tx.BalanceOBBalance},
	} {
		root, err := merkle.UpdateBalance(api, circuits.HashFn, *u.root, out[u.address], u.witness,
			circuits.Balance[frontend.Variable]{
				Balance:            out[u.balance],
				Index:              u.witness.Before.Index,
				TradingHistoryRoot: u.witness.Before.TradingHistoryRoot,
			})
		if err != nil {
			return nil, fmt.Errorf("fee balance: %w", err)
		}
		*u.root = root
	}

	data := append(gadgets.ToBitsMSB(api, t.Type, circuits.NumBitsTxType), sel.PublicData...)
	return &TransactionResult{
		Roots: Roots{
			Accounts:         accountsRoot,
			ProtocolBalances: protocolRoot,
			OperatorBalances: operatorRoot,
		},
		NumConditionalTransactions: out[tx.NumConditionalTransactions],
		PublicData:                 data,
	}, nil
}
