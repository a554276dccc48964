package ethereum

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// TokenDecimals is the decimal precision of both bridged assets.
const TokenDecimals = 18

// FormatUnits renders a base-unit amount as a human-readable decimal
// string, for log output only.
func FormatUnits(amount *big.Int, decimals int32) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -decimals).String()
}

// AddressTopic left-pads an address to the 32 bytes of an indexed log topic.
func AddressTopic(addr common.Address) common.Hash {
	return common.BytesToHash(common.LeftPadBytes(addr.Bytes(), common.HashLength))
}
