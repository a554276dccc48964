package ethereum

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// BridgeLog is a decoded bridge contract event.
type BridgeLog struct {
	Event       string
	User        common.Address
	Amount      *big.Int
	TxHash      common.Hash
	BlockNumber uint64
}
