package state

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/zk-exchange/circuits"
	"github.com/vocdoni/zk-exchange/types"
)

// Hashes of the messages accounts sign, the same the transaction circuits
// compute. nonce is always the nonce stored in the account before the
// transaction.

func OrderHash(exchangeID uint32, o *types.Order) (*big.Int, error) {
	dualX, dualY := big.NewInt(0), big.NewInt(0)
	if o.DualAuthPublicKey != nil {
		dualX, dualY = o.DualAuthPublicKey.X.MathBigInt(), o.DualAuthPublicKey.Y.MathBigInt()
	}
	return circuits.NativeHash(
		u64(exchangeID),
		u64(o.OrderID),
		u64(o.AccountID),
		u64(o.TokenS),
		u64(o.TokenB),
		o.AmountS.MathBigInt(),
		o.AmountB.MathBigInt(),
		circuits.BoolToBigInt(o.AllOrNone),
		u64(o.ValidSince),
		u64(o.ValidUntil),
		u64(o.MaxFeeBips),
		circuits.BoolToBigInt(o.Buy),
		dualX,
		dualY,
	)
}

func WithdrawHash(exchangeID uint32, w *types.Withdraw, nonce *big.Int) (*big.Int, error) {
	return circuits.NativeHash(
		u64(exchangeID),
		u64(w.AccountID),
		u64(w.TokenID),
		w.Amount.MathBigInt(),
		u64(w.FeeTokenID),
		w.Fee.MathBigInt(),
		nonce,
	)
}

func TransferHash(exchangeID uint32, t *types.Transfer, nonce *big.Int) (*big.Int, error) {
	return circuits.NativeHash(
		u64(exchangeID),
		u64(t.AccountFromID),
		u64(t.AccountToID),
		u64(t.TokenID),
		t.Amount.MathBigInt(),
		u64(t.FeeTokenID),
		t.Fee.MathBigInt(),
		AddressToBigInt(t.To),
		nonce,
	)
}

func NewAccountHash(exchangeID uint32, n *types.NewAccount, nonce *big.Int) (*big.Int, error) {
	return circuits.NativeHash(
		u64(exchangeID),
		u64(n.PayerAccountID),
		u64(n.FeeTokenID),
		n.Fee.MathBigInt(),
		u64(n.NewAccountID),
		AddressToBigInt(n.NewOwner),
		n.NewPublicKey.X.MathBigInt(),
		n.NewPublicKey.Y.MathBigInt(),
		n.WalletHash.MathBigInt(),
		nonce,
	)
}

func PublicKeyUpdateHash(exchangeID uint32, p *types.PublicKeyUpdate, nonce *big.Int) (*big.Int, error) {
	return circuits.NativeHash(
		u64(exchangeID),
		u64(p.AccountID),
		u64(p.FeeTokenID),
		p.Fee.MathBigInt(),
		p.PublicKey.X.MathBigInt(),
		p.PublicKey.Y.MathBigInt(),
		nonce,
	)
}

func OwnerChangeHash(exchangeID uint32, o *types.OwnerChange, nonce *big.Int) (*big.Int, error) {
	return circuits.NativeHash(
		u64(exchangeID),
		u64(o.AccountID),
		u64(o.FeeTokenID),
		o.Fee.MathBigInt(),
		AddressToBigInt(o.NewOwner),
		o.NewPublicKey.X.MathBigInt(),
		o.NewPublicKey.Y.MathBigInt(),
		nonce,
	)
}

// OperatorHash is the message the operator signs for a block.
func OperatorHash(publicDataHash, operatorNonce *big.Int) (*big.Int, error) {
	return circuits.NativeHash(publicDataHash, operatorNonce)
}

// AddressToBigInt returns the owner address as a number.
func AddressToBigInt(addr common.Address) *big.Int {
	return new(big.Int).SetBytes(addr.Bytes())
}

func u64[T ~uint8 | ~uint32 | ~uint64](v T) *big.Int {
	return new(big.Int).SetUint64(uint64(v))
}
