package storage

import (
	"github.com/vocdoni/zk-exchange/state"
	"github.com/vocdoni/zk-exchange/types"
)

// BlockRecord is what the storage keeps of a processed block: enough to
// check it against the chain and to rebuild its public input.
type BlockRecord struct {
	Number                     uint64         `json:"number"                     cbor:"0,keyasint,omitempty"`
	ExchangeID                 uint32         `json:"exchangeID"                 cbor:"1,keyasint,omitempty"`
	Timestamp                  uint32         `json:"timestamp"                  cbor:"2,keyasint,omitempty"`
	OperatorAccountID          uint32         `json:"operatorAccountID"          cbor:"3,keyasint,omitempty"`
	MerkleRootBefore           *types.BigInt  `json:"merkleRootBefore"           cbor:"4,keyasint,omitempty"`
	MerkleRootAfter            *types.BigInt  `json:"merkleRootAfter"            cbor:"5,keyasint,omitempty"`
	NumTransactions            int            `json:"numTransactions"            cbor:"6,keyasint,omitempty"`
	NumConditionalTransactions uint32         `json:"numConditionalTransactions" cbor:"7,keyasint,omitempty"`
	OnchainDA                  bool           `json:"onchainDA"                  cbor:"8,keyasint,omitempty"`
	PublicData                 types.HexBytes `json:"publicData"                 cbor:"9,keyasint,omitempty"`
	PublicDataHash             *types.BigInt  `json:"publicDataHash"             cbor:"10,keyasint,omitempty"`
	OperatorSignature          types.HexBytes `json:"operatorSignature,omitempty" cbor:"11,keyasint,omitempty"`
}

// NewBlockRecord returns the record of a processed block witness. The
// number is set when the record is stored.
func NewBlockRecord(w *state.BlockWitness, signature []byte) *BlockRecord {
	return &BlockRecord{
		ExchangeID:                 w.ExchangeID,
		Timestamp:                  w.Timestamp,
		OperatorAccountID:          w.OperatorAccountID,
		MerkleRootBefore:           types.NewIntFromBig(w.MerkleRootBefore),
		MerkleRootAfter:            types.NewIntFromBig(w.MerkleRootAfter),
		NumTransactions:            len(w.Transactions),
		NumConditionalTransactions: w.NumConditionalTransactions,
		OnchainDA:                  w.OnchainDA,
		PublicData:                 w.PublicData,
		PublicDataHash:             types.NewIntFromBig(w.PublicDataHash),
		OperatorSignature:          signature,
	}
}
