package transactions

// TxVariable names an output of a transaction circuit. Every transaction
// circuit produces all of them, the ones it doesn't change keep the value
// of the state before the transaction.
type TxVariable int

const (
	AccountAAddress TxVariable = iota
	AccountAOwner
	AccountAPublicKeyX
	AccountAPublicKeyY
	AccountANonce
	AccountAWalletHash
	BalanceASAddress
	BalanceASBalance
	BalanceABAddress
	BalanceABBalance
	TradeHistoryAAddress
	TradeHistoryAFilled
	TradeHistoryACancelled
	TradeHistoryAOrderID

	AccountBAddress
	AccountBOwner
	AccountBPublicKeyX
	AccountBPublicKeyY
	AccountBNonce
	AccountBWalletHash
	BalanceBSAddress
	BalanceBSBalance
	BalanceBBAddress
	BalanceBBBalance
	TradeHistoryBAddress
	TradeHistoryBFilled
	TradeHistoryBCancelled
	TradeHistoryBOrderID

	BalancePABalance
	BalancePBBalance
	BalanceOABalance
	BalanceOBBalance

	HashA
	SignatureRequiredA
	HashB
	SignatureRequiredB

	NumConditionalTransactions

	NumTxVariables
)

// SideVariables are the outputs of one of the two accounts a transaction
// touches.
type SideVariables struct {
	Address    TxVariable
	Owner      TxVariable
	PublicKeyX TxVariable
	PublicKeyY TxVariable
	Nonce      TxVariable
	WalletHash TxVariable

	BalanceSAddress TxVariable
	BalanceS        TxVariable
	BalanceBAddress TxVariable
	BalanceB        TxVariable

	TradeHistoryAddress TxVariable
	Filled              TxVariable
	Cancelled           TxVariable
	OrderID             TxVariable

	Hash              TxVariable
	SignatureRequired TxVariable
}

var (
	SideA = SideVariables{
		Address:             AccountAAddress,
		Owner:               AccountAOwner,
		PublicKeyX:          AccountAPublicKeyX,
		PublicKeyY:          AccountAPublicKeyY,
		Nonce:               AccountANonce,
		WalletHash:          AccountAWalletHash,
		BalanceSAddress:     BalanceASAddress,
		BalanceS:            BalanceASBalance,
		BalanceBAddress:     BalanceABAddress,
		BalanceB:            BalanceABBalance,
		TradeHistoryAddress: TradeHistoryAAddress,
		Filled:              TradeHistoryAFilled,
		Cancelled:           TradeHistoryACancelled,
		OrderID:             TradeHistoryAOrderID,
		Hash:                HashA,
		SignatureRequired:   SignatureRequiredA,
	}
	SideB = SideVariables{
		Address:             AccountBAddress,
		Owner:               AccountBOwner,
		PublicKeyX:          AccountBPublicKeyX,
		PublicKeyY:          AccountBPublicKeyY,
		Nonce:               AccountBNonce,
		WalletHash:          AccountBWalletHash,
		BalanceSAddress:     BalanceBSAddress,
		BalanceS:            BalanceBSBalance,
		BalanceBAddress:     BalanceBBAddress,
		BalanceB:            BalanceBBBalance,
		TradeHistoryAddress: TradeHistoryBAddress,
		Filled:              TradeHistoryBFilled,
		Cancelled:           TradeHistoryBCancelled,
		OrderID:             TradeHistoryBOrderID,
		Hash:                HashB,
		SignatureRequired:   SignatureRequiredB,
	}
)
