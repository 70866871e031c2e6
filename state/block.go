package state

import (
	"fmt"
	"math/big"

	"github.com/vocdoni/zk-exchange/circuits"
	"github.com/vocdoni/zk-exchange/log"
	"github.com/vocdoni/zk-exchange/types"
)

// BlockWitness is everything the block circuit needs: the transaction
// witnesses, the final updates of the protocol pool and operator accounts
// and the public data.
type BlockWitness struct {
	ExchangeID           uint32
	Timestamp            uint32
	ProtocolTakerFeeBips uint8
	ProtocolMakerFeeBips uint8
	OperatorAccountID    uint32
	OnchainDA            bool

	MerkleRootBefore *big.Int
	MerkleRootAfter  *big.Int

	Transactions []*TxWitness
	// AccountP gets the protocol balances root, AccountO the operator
	// balances root and the next nonce.
	AccountP *LeafUpdate[accountLeaf]
	AccountO *LeafUpdate[accountLeaf]

	NumConditionalTransactions uint32
	PublicData                 []byte
	PublicDataHash             *big.Int
	// OperatorMessage is what the operator signs, OperatorSignature is nil
	// until it does.
	OperatorMessage   *big.Int
	OperatorSignature *circuits.Signature[*big.Int]
}

// ProcessBlock applies a block to the state, padding it with noops up to
// numTransactions, and returns the witness of the block circuit. The block
// must be opened with StartBlock and is left open: the caller commits or
// discards it. If the block carries an operator signature it is verified.
func (s *State) ProcessBlock(block *types.Block, numTransactions int, onchainDA bool) (*BlockWitness, error) {
	if s.dbTx == nil {
		return nil, fmt.Errorf("need to StartBlock() first")
	}
	if block.ExchangeID != s.exchangeID {
		return nil, fmt.Errorf("block of exchange %d applied to exchange %d", block.ExchangeID, s.exchangeID)
	}
	if len(block.Transactions) > numTransactions {
		return nil, fmt.Errorf("too many transactions for this block: %d > %d", len(block.Transactions), numTransactions)
	}
	if err := checkRange("operator account", block.OperatorAccountID, circuits.NumBitsAccount); err != nil {
		return nil, err
	}
	if block.OperatorAccountID == circuits.ProtocolPoolAccountID {
		return nil, fmt.Errorf("the protocol pool can't operate blocks")
	}
	rootBefore, err := s.Root()
	if err != nil {
		return nil, err
	}
	if block.MerkleRootBefore != nil && block.MerkleRootBefore.MathBigInt().Cmp(rootBefore) != 0 {
		return nil, fmt.Errorf("block built on root %s, state root is %s", block.MerkleRootBefore, rootBefore)
	}
	ctx := &blockContext{
		exchangeID:        block.ExchangeID,
		timestamp:         block.Timestamp,
		takerFeeBips:      block.ProtocolTakerFeeBips,
		makerFeeBips:      block.ProtocolMakerFeeBips,
		operatorAccountID: block.OperatorAccountID,
	}
	w := &BlockWitness{
		ExchangeID:           block.ExchangeID,
		Timestamp:            block.Timestamp,
		ProtocolTakerFeeBips: block.ProtocolTakerFeeBips,
		ProtocolMakerFeeBips: block.ProtocolMakerFeeBips,
		OperatorAccountID:    block.OperatorAccountID,
		OnchainDA:            onchainDA,
		MerkleRootBefore:     rootBefore,
		Transactions:         make([]*TxWitness, 0, numTransactions),
	}
	for i := 0; i < numTransactions; i++ {
		tx := types.Transaction{}
		if i < len(block.Transactions) {
			tx = block.Transactions[i]
		}
		txw, err := s.applyTransaction(ctx, &tx)
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}
		w.NumConditionalTransactions += txw.Conditional
		w.Transactions = append(w.Transactions, txw)
		log.Debugw("transaction applied", "index", i, "type", txw.Type.String())
	}
	if err := s.finalizeBlock(w); err != nil {
		return nil, err
	}
	w.PublicData = w.buildPublicData()
	w.PublicDataHash = PublicDataHash(w.PublicData)
	if w.OperatorMessage, err = OperatorHash(w.PublicDataHash, w.AccountO.Before.Nonce); err != nil {
		return nil, err
	}
	if len(block.Signature) > 0 {
		if err := w.SetOperatorSignature(block.Signature); err != nil {
			return nil, err
		}
	}
	log.Debugw("block processed",
		"exchange", w.ExchangeID,
		"transactions", len(w.Transactions),
		"conditional", w.NumConditionalTransactions,
		"rootBefore", w.MerkleRootBefore.String(),
		"rootAfter", w.MerkleRootAfter.String())
	return w, nil
}

// finalizeBlock writes the protocol pool and operator balances back and
// updates their account leaves.
func (s *State) finalizeBlock(w *BlockWitness) error {
	for _, id := range []uint32{circuits.ProtocolPoolAccountID, w.OperatorAccountID} {
		tree, err := s.virtualBalancesTree(id)
		if err != nil {
			return err
		}
		root, err := tree.Root()
		if err != nil {
			return err
		}
		update, err := updateLeaf(s.accountsTree(), uint64(id), circuits.NewAccount(),
			func(l accountLeaf) (accountLeaf, error) {
				l.BalancesRoot = root
				if id == w.OperatorAccountID {
					l.Nonce = incNonce(l.Nonce, 1)
				}
				return l, nil
			})
		if err != nil {
			return fmt.Errorf("account %d: %w", id, err)
		}
		if err := s.virtual[id].flush(); err != nil {
			return err
		}
		if id == w.OperatorAccountID {
			w.AccountO = update
		} else {
			w.AccountP = update
		}
	}
	var err error
	w.MerkleRootAfter, err = s.Root()
	return err
}

// buildPublicData serializes the data the block commits to.
func (w *BlockWitness) buildPublicData() []byte {
	data := bitWriter{}
	data.addUint(uint64(w.ExchangeID), circuits.NumBitsExchangeID)
	data.add(w.MerkleRootBefore, 256)
	data.add(w.MerkleRootAfter, 256)
	data.addUint(uint64(w.Timestamp), circuits.NumBitsTimestamp)
	data.addUint(uint64(w.ProtocolTakerFeeBips), circuits.NumBitsProtocolFeeBips)
	data.addUint(uint64(w.ProtocolMakerFeeBips), circuits.NumBitsProtocolFeeBips)
	data.addUint(uint64(w.NumConditionalTransactions), 32)
	if w.OnchainDA {
		data.addUint(uint64(w.OperatorAccountID), 24)
		for _, tx := range w.Transactions {
			data.addBytes(tx.PublicData)
		}
	}
	return data.data
}

// SetOperatorSignature verifies the operator signature of the block and
// attaches it to the witness.
func (w *BlockWitness) SetOperatorSignature(signature []byte) error {
	operator := w.AccountO.Before
	ok, err := circuits.VerifyMessage(operator.PublicKeyX, operator.PublicKeyY, w.OperatorMessage, signature)
	if err != nil || !ok {
		return fmt.Errorf("invalid operator signature")
	}
	sig, err := circuits.SignatureFromBytes(signature)
	if err != nil {
		return err
	}
	w.OperatorSignature = &sig
	return nil
}
