package types

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// TxType identifies the kind of a transaction inside a block. The values
// are part of the public data, so they must never change.
type TxType uint8

const (
	TxTypeNoop TxType = iota
	TxTypeDeposit
	TxTypeWithdraw
	TxTypeTransfer
	TxTypeSpotTrade
	TxTypeNewAccount
	TxTypePublicKeyUpdate
	TxTypeOwnerChange

	// NumTxTypes is the number of transaction circuits run for every slot.
	NumTxTypes = 8
)

var txTypeNames = map[TxType]string{
	TxTypeNoop:            "noop",
	TxTypeDeposit:         "deposit",
	TxTypeWithdraw:        "withdraw",
	TxTypeTransfer:        "transfer",
	TxTypeSpotTrade:       "spotTrade",
	TxTypeNewAccount:      "newAccount",
	TxTypePublicKeyUpdate: "publicKeyUpdate",
	TxTypeOwnerChange:     "ownerChange",
}

func (t TxType) String() string {
	if name, ok := txTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint8(t))
}

// Subtypes of the transactions which can be authorized on-chain instead of
// with an EdDSA signature.
const (
	AuthSignature   uint8 = 0
	AuthConditional uint8 = 1
)

// Block is the input of the block circuit: the exchange parameters and the
// ordered list of transactions. Witnesses (before leaves and proofs) are
// produced by the state package while the block is applied.
type Block struct {
	ExchangeID           uint32   `json:"exchangeID"                 cbor:"0,keyasint,omitempty"`
	MerkleRootBefore     *BigInt  `json:"merkleRootBefore,omitempty" cbor:"1,keyasint,omitempty"`
	Timestamp            uint32   `json:"timestamp"                  cbor:"2,keyasint,omitempty"`
	ProtocolTakerFeeBips uint8    `json:"protocolTakerFeeBips"       cbor:"3,keyasint,omitempty"`
	ProtocolMakerFeeBips uint8    `json:"protocolMakerFeeBips"       cbor:"4,keyasint,omitempty"`
	OperatorAccountID    uint32   `json:"operatorAccountID"          cbor:"5,keyasint,omitempty"`
	Signature            HexBytes `json:"signature,omitempty"        cbor:"6,keyasint,omitempty"`

	Transactions []Transaction `json:"transactions" cbor:"7,keyasint,omitempty"`
}

func (b *Block) String() string {
	data, err := json.Marshal(b)
	if err != nil {
		return ""
	}
	return string(data)
}

// Transaction is a tagged union: at most one payload is set, none means noop.
type Transaction struct {
	SpotTrade       *SpotTrade       `json:"spotTrade,omitempty"       cbor:"0,keyasint,omitempty"`
	Transfer        *Transfer        `json:"transfer,omitempty"        cbor:"1,keyasint,omitempty"`
	Withdraw        *Withdraw        `json:"withdraw,omitempty"        cbor:"2,keyasint,omitempty"`
	Deposit         *Deposit         `json:"deposit,omitempty"         cbor:"3,keyasint,omitempty"`
	PublicKeyUpdate *PublicKeyUpdate `json:"publicKeyUpdate,omitempty" cbor:"4,keyasint,omitempty"`
	NewAccount      *NewAccount      `json:"newAccount,omitempty"      cbor:"5,keyasint,omitempty"`
	OwnerChange     *OwnerChange     `json:"ownerChange,omitempty"     cbor:"6,keyasint,omitempty"`
}

// Type returns the transaction type, or an error if more than one payload
// is set.
func (tx *Transaction) Type() (TxType, error) {
	typ, n := TxTypeNoop, 0
	set := func(present bool, t TxType) {
		if present {
			typ = t
			n++
		}
	}
	set(tx.SpotTrade != nil, TxTypeSpotTrade)
	set(tx.Transfer != nil, TxTypeTransfer)
	set(tx.Withdraw != nil, TxTypeWithdraw)
	set(tx.Deposit != nil, TxTypeDeposit)
	set(tx.PublicKeyUpdate != nil, TxTypePublicKeyUpdate)
	set(tx.NewAccount != nil, TxTypeNewAccount)
	set(tx.OwnerChange != nil, TxTypeOwnerChange)
	if n > 1 {
		return 0, fmt.Errorf("transaction has %d payloads", n)
	}
	return typ, nil
}

// PublicKey is an EdDSA public key on the BN254 twisted Edwards curve.
type PublicKey struct {
	X *BigInt `json:"x" cbor:"0,keyasint,omitempty"`
	Y *BigInt `json:"y" cbor:"1,keyasint,omitempty"`
}

type Deposit struct {
	Owner     common.Address `json:"owner"     cbor:"0,keyasint,omitempty"`
	AccountID uint32         `json:"accountID" cbor:"1,keyasint,omitempty"`
	TokenID   uint32         `json:"tokenID"   cbor:"2,keyasint,omitempty"`
	Amount    *BigInt        `json:"amount"    cbor:"3,keyasint,omitempty"`
}

type Withdraw struct {
	Type       uint8    `json:"type"       cbor:"0,keyasint,omitempty"`
	AccountID  uint32   `json:"accountID"  cbor:"1,keyasint,omitempty"`
	TokenID    uint32   `json:"tokenID"    cbor:"2,keyasint,omitempty"`
	Amount     *BigInt  `json:"amount"     cbor:"3,keyasint,omitempty"`
	FeeTokenID uint32   `json:"feeTokenID" cbor:"4,keyasint,omitempty"`
	Fee        *BigInt  `json:"fee"        cbor:"5,keyasint,omitempty"`
	Signature  HexBytes `json:"signature"  cbor:"6,keyasint,omitempty"`
}

type Transfer struct {
	Type          uint8          `json:"type"          cbor:"0,keyasint,omitempty"`
	AccountFromID uint32         `json:"accountFromID" cbor:"1,keyasint,omitempty"`
	AccountToID   uint32         `json:"accountToID"   cbor:"2,keyasint,omitempty"`
	TokenID       uint32         `json:"tokenID"       cbor:"3,keyasint,omitempty"`
	Amount        *BigInt        `json:"amount"        cbor:"4,keyasint,omitempty"`
	FeeTokenID    uint32         `json:"feeTokenID"    cbor:"5,keyasint,omitempty"`
	Fee           *BigInt        `json:"fee"           cbor:"6,keyasint,omitempty"`
	To            common.Address `json:"to"            cbor:"7,keyasint,omitempty"`
	Signature     HexBytes       `json:"signature"     cbor:"8,keyasint,omitempty"`
}

type Order struct {
	OrderID           uint32     `json:"orderID"                     cbor:"0,keyasint,omitempty"`
	AccountID         uint32     `json:"accountID"                   cbor:"1,keyasint,omitempty"`
	TokenS            uint32     `json:"tokenS"                      cbor:"2,keyasint,omitempty"`
	TokenB            uint32     `json:"tokenB"                      cbor:"3,keyasint,omitempty"`
	AmountS           *BigInt    `json:"amountS"                     cbor:"4,keyasint,omitempty"`
	AmountB           *BigInt    `json:"amountB"                     cbor:"5,keyasint,omitempty"`
	AllOrNone         bool       `json:"allOrNone"                   cbor:"6,keyasint,omitempty"`
	ValidSince        uint32     `json:"validSince"                  cbor:"7,keyasint,omitempty"`
	ValidUntil        uint32     `json:"validUntil"                  cbor:"8,keyasint,omitempty"`
	MaxFeeBips        uint8      `json:"maxFeeBips"                  cbor:"9,keyasint,omitempty"`
	Buy               bool       `json:"buy"                         cbor:"10,keyasint,omitempty"`
	FeeBips           uint8      `json:"feeBips"                     cbor:"11,keyasint,omitempty"`
	RebateBips        uint8      `json:"rebateBips"                  cbor:"12,keyasint,omitempty"`
	DualAuthPublicKey *PublicKey `json:"dualAuthPublicKey,omitempty" cbor:"13,keyasint,omitempty"`
	Signature         HexBytes   `json:"signature"                   cbor:"14,keyasint,omitempty"`
}

// SpotTrade settles two orders against each other, OrderA is the taker.
type SpotTrade struct {
	OrderA Order `json:"orderA" cbor:"0,keyasint,omitempty"`
	OrderB Order `json:"orderB" cbor:"1,keyasint,omitempty"`
}

type NewAccount struct {
	PayerAccountID uint32         `json:"payerAccountID" cbor:"0,keyasint,omitempty"`
	FeeTokenID     uint32         `json:"feeTokenID"     cbor:"1,keyasint,omitempty"`
	Fee            *BigInt        `json:"fee"            cbor:"2,keyasint,omitempty"`
	NewAccountID   uint32         `json:"newAccountID"   cbor:"3,keyasint,omitempty"`
	NewOwner       common.Address `json:"newOwner"       cbor:"4,keyasint,omitempty"`
	NewPublicKey   PublicKey      `json:"newPublicKey"   cbor:"5,keyasint,omitempty"`
	WalletHash     *BigInt        `json:"walletHash"     cbor:"6,keyasint,omitempty"`
	Signature      HexBytes       `json:"signature"      cbor:"7,keyasint,omitempty"`
}

type PublicKeyUpdate struct {
	Type       uint8     `json:"type"       cbor:"0,keyasint,omitempty"`
	AccountID  uint32    `json:"accountID"  cbor:"1,keyasint,omitempty"`
	FeeTokenID uint32    `json:"feeTokenID" cbor:"2,keyasint,omitempty"`
	Fee        *BigInt   `json:"fee"        cbor:"3,keyasint,omitempty"`
	PublicKey  PublicKey `json:"publicKey"  cbor:"4,keyasint,omitempty"`
	Signature  HexBytes  `json:"signature"  cbor:"5,keyasint,omitempty"`
}

type OwnerChange struct {
	AccountID    uint32         `json:"accountID"    cbor:"0,keyasint,omitempty"`
	FeeTokenID   uint32         `json:"feeTokenID"   cbor:"1,keyasint,omitempty"`
	Fee          *BigInt        `json:"fee"          cbor:"2,keyasint,omitempty"`
	NewOwner     common.Address `json:"newOwner"     cbor:"3,keyasint,omitempty"`
	NewPublicKey PublicKey      `json:"newPublicKey" cbor:"4,keyasint,omitempty"`
	Signature    HexBytes       `json:"signature"    cbor:"5,keyasint,omitempty"`
}
