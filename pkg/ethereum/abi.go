package ethereum

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Bridge event names emitted by the two bridge contracts. Lock and burn
// events originate a transfer, mint and unlock events confirm one.
const (
	EventJuCoinLocked   = "JuCoinLocked"
	EventJuCoinUnlocked = "JuCoinUnlocked"
	EventWjuBurned      = "WjuBurned"
	EventWjuMinted      = "WjuMinted"
	EventWowLocked      = "WowLocked"
	EventWowUnlocked    = "WowUnlocked"
	EventWwowBurned     = "WwowBurned"
	EventWwowMinted     = "WwowMinted"
)

// Relay method names on the bridge contracts.
const (
	MethodMintWju      = "mintWju"
	MethodMintWwow     = "mintWwow"
	MethodUnlockJuCoin = "unlockJuCoin"
	MethodUnlockWow    = "unlockWow"
)

// bridgeABIJSON covers both bridge contracts. Every event carries the same
// (address indexed user, uint256 amount) shape, every relay method the same
// (address user, uint256 amount) arguments.
const bridgeABIJSON = `[
	{"type":"event","name":"JuCoinLocked","anonymous":false,"inputs":[{"name":"user","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":false}]},
	{"type":"event","name":"JuCoinUnlocked","anonymous":false,"inputs":[{"name":"user","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":false}]},
	{"type":"event","name":"WjuBurned","anonymous":false,"inputs":[{"name":"user","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":false}]},
	{"type":"event","name":"WjuMinted","anonymous":false,"inputs":[{"name":"user","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":false}]},
	{"type":"event","name":"WowLocked","anonymous":false,"inputs":[{"name":"user","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":false}]},
	{"type":"event","name":"WowUnlocked","anonymous":false,"inputs":[{"name":"user","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":false}]},
	{"type":"event","name":"WwowBurned","anonymous":false,"inputs":[{"name":"user","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":false}]},
	{"type":"event","name":"WwowMinted","anonymous":false,"inputs":[{"name":"user","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":false}]},
	{"type":"function","name":"mintWju","stateMutability":"nonpayable","inputs":[{"name":"user","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"mintWwow","stateMutability":"nonpayable","inputs":[{"name":"user","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"unlockJuCoin","stateMutability":"nonpayable","inputs":[{"name":"user","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"unlockWow","stateMutability":"nonpayable","inputs":[{"name":"user","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]}
]`

// BridgeABI is the parsed ABI shared by both bridge contracts.
var BridgeABI = mustParseABI(bridgeABIJSON)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(fmt.Sprintf("invalid bridge ABI: %v", err))
	}
	return parsed
}

// EventTopic returns the topic0 hash for a bridge event name.
func EventTopic(name string) common.Hash {
	ev, ok := BridgeABI.Events[name]
	if !ok {
		panic(fmt.Sprintf("unknown bridge event: %s", name))
	}
	return ev.ID
}

// DecodeBridgeLog decodes a raw log emitted by a bridge contract into a
// typed payload. Logs whose topic0 does not belong to the bridge ABI or
// whose shape does not match are rejected.
func DecodeBridgeLog(lg types.Log) (*BridgeLog, error) {
	if len(lg.Topics) < 2 {
		return nil, fmt.Errorf("log %s has %d topics, want at least 2", lg.TxHash.Hex(), len(lg.Topics))
	}

	ev, err := BridgeABI.EventByID(lg.Topics[0])
	if err != nil {
		return nil, fmt.Errorf("unknown event topic %s: %w", lg.Topics[0].Hex(), err)
	}

	values, err := ev.Inputs.NonIndexed().Unpack(lg.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s log data: %w", ev.Name, err)
	}
	amount, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected amount type %T in %s log", values[0], ev.Name)
	}

	return &BridgeLog{
		Event:       ev.Name,
		User:        common.BytesToAddress(lg.Topics[1].Bytes()),
		Amount:      amount,
		TxHash:      lg.TxHash,
		BlockNumber: lg.BlockNumber,
	}, nil
}
