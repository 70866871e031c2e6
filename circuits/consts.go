package circuits

import "math/big"

const SerializedFieldSize = 32 // bytes

// quaternary trees, two address bits per level
const (
	TreeDepthAccounts       = 10
	TreeDepthTokens         = 4
	TreeDepthTradingHistory = 7
	TreeArity               = 4
	SiblingsPerLevel        = TreeArity - 1
)

// bit widths of every value the circuits range check or publish
const (
	NumBitsAccount         = TreeDepthAccounts * 2
	NumBitsToken           = TreeDepthTokens * 2
	NumBitsStorageAddress  = TreeDepthTradingHistory * 2
	NumBitsAmount          = 96
	NumBitsOrderID         = 32
	NumBitsNonce           = 32
	NumBitsTimestamp       = 32
	NumBitsExchangeID      = 32
	NumBitsBips            = 6
	NumBitsProtocolFeeBips = 8
	NumBitsTxType          = 8
	NumBitsType            = 8
	NumBitsAddress         = 160
	NumBitsHash            = 160
	NumBitsPublicKey       = 256
	NumBitsMaxValue        = 254
	NumBitsFieldCapacity   = 253
	NumBitsPublishedBips   = 8
)

const (
	// TxDataAvailabilitySize is the number of bytes every transaction takes
	// in the public data: one byte for the type plus the type specific data.
	TxDataAvailabilitySize = 83
	TxDataSize             = TxDataAvailabilitySize - 1
	NumBitsTxData          = TxDataSize * 8

	FeeDenominator         = 10000
	ProtocolFeeDenominator = 100000
	// fill rate tolerance of a settled order: fillS*amountB*1000 <= fillB*amountS*1001
	FillRateNumerator   = 1001
	FillRateDenominator = 1000
	// maximum rounding error, in percent, when deriving a fill from the price
	MaxRoundingErrorPercent = 1

	ProtocolPoolAccountID = 0
	// accounts below this id can't be created by users
	NumReservedAccounts = 2
)

// MaxAmount is the maximum balance an account can hold for a single token.
var MaxAmount = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), NumBitsAmount), big.NewInt(1))
