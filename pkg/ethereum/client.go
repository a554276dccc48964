package ethereum

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/juchain-labs/bridge-relayer/pkg/config"
)

// ErrTxReverted is returned when a relay transaction was mined but reverted.
var ErrTxReverted = errors.New("transaction reverted")

// ErrNoWSEndpoint is returned when a subscription is requested on a client
// configured without a websocket URL.
var ErrNoWSEndpoint = errors.New("no websocket endpoint configured")

// Client wraps the RPC and websocket connections to one chain plus the
// relayer account used to submit transactions to its bridge contract.
type Client struct {
	name          string
	chainID       *big.Int
	rpc           *ethclient.Client
	ws            *ethclient.Client
	bridgeAddress common.Address
	privateKey    *ecdsa.PrivateKey
	from          common.Address
	gasLimit      uint64
	logger        *zap.Logger
}

// NewClient connects to a chain and prepares the relayer account.
// The websocket connection is optional; without it only polling works.
func NewClient(ctx context.Context, name string, cfg config.ChainConfig, relayerCfg config.RelayerConfig, logger *zap.Logger) (*Client, error) {
	rpc, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s rpc: %w", name, err)
	}

	chainID, err := rpc.ChainID(ctx)
	if err != nil {
		rpc.Close()
		return nil, fmt.Errorf("failed to get %s chain id: %w", name, err)
	}
	if cfg.ChainID != 0 && chainID.Int64() != cfg.ChainID {
		rpc.Close()
		return nil, fmt.Errorf("%s chain id mismatch: node reports %d, config says %d", name, chainID.Int64(), cfg.ChainID)
	}

	var ws *ethclient.Client
	if cfg.WSURL != "" {
		ws, err = ethclient.DialContext(ctx, cfg.WSURL)
		if err != nil {
			rpc.Close()
			return nil, fmt.Errorf("failed to dial %s websocket: %w", name, err)
		}
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(relayerCfg.PrivateKey, "0x"))
	if err != nil {
		rpc.Close()
		if ws != nil {
			ws.Close()
		}
		return nil, fmt.Errorf("invalid relayer private key: %w", err)
	}
	from := crypto.PubkeyToAddress(privateKey.PublicKey)

	logger.Info("connected to chain",
		zap.String("chain", name),
		zap.Int64("chain_id", chainID.Int64()),
		zap.String("bridge", cfg.BridgeAddress),
		zap.String("relayer", from.Hex()),
		zap.Bool("websocket", ws != nil))

	return &Client{
		name:          name,
		chainID:       chainID,
		rpc:           rpc,
		ws:            ws,
		bridgeAddress: common.HexToAddress(cfg.BridgeAddress),
		privateKey:    privateKey,
		from:          from,
		gasLimit:      relayerCfg.GasLimit,
		logger:        logger,
	}, nil
}

// Name returns the chain name this client is connected to.
func (c *Client) Name() string {
	return c.name
}

// ChainID returns the connected chain's id.
func (c *Client) ChainID() int64 {
	return c.chainID.Int64()
}

// BridgeAddress returns the bridge contract address on this chain.
func (c *Client) BridgeAddress() common.Address {
	return c.bridgeAddress
}

// LatestBlock returns the current chain head number.
func (c *Client) LatestBlock(ctx context.Context) (uint64, error) {
	header, err := c.rpc.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to get %s head: %w", c.name, err)
	}
	return header.Number.Uint64(), nil
}

// FilterBridgeLogs fetches bridge contract logs in [fromBlock, toBlock].
// topics follows the eth_getLogs topic filter shape: topics[0] lists
// accepted event signatures, topics[1] (optional) pins the indexed sender.
func (c *Client) FilterBridgeLogs(ctx context.Context, fromBlock, toBlock uint64, topics [][]common.Hash) ([]types.Log, error) {
	query := geth.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{c.bridgeAddress},
		Topics:    topics,
	}
	logs, err := c.rpc.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to filter %s logs: %w", c.name, err)
	}
	return logs, nil
}

// SubscribeBridgeLogs opens a websocket subscription for bridge contract
// logs matching the given event signatures.
func (c *Client) SubscribeBridgeLogs(ctx context.Context, eventTopics []common.Hash, sink chan<- types.Log) (geth.Subscription, error) {
	if c.ws == nil {
		return nil, ErrNoWSEndpoint
	}
	query := geth.FilterQuery{
		Addresses: []common.Address{c.bridgeAddress},
		Topics:    [][]common.Hash{eventTopics},
	}
	sub, err := c.ws.SubscribeFilterLogs(ctx, query, sink)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s logs: %w", c.name, err)
	}
	return sub, nil
}

// SubmitRelay signs and sends a bridge relay transaction. The nonce comes
// from the pending state, so callers must serialize submissions per chain.
func (c *Client) SubmitRelay(ctx context.Context, method string, user common.Address, amount *big.Int) (*types.Transaction, error) {
	data, err := BridgeABI.Pack(method, user, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call: %w", method, err)
	}

	nonce, err := c.rpc.PendingNonceAt(ctx, c.from)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s nonce: %w", c.name, err)
	}

	gasPrice, err := c.rpc.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s gas price: %w", c.name, err)
	}

	tx := types.NewTransaction(nonce, c.bridgeAddress, big.NewInt(0), c.gasLimit, gasPrice, data)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign %s tx: %w", method, err)
	}

	if err := c.rpc.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("failed to send %s tx: %w", method, err)
	}

	c.logger.Info("relay transaction submitted",
		zap.String("chain", c.name),
		zap.String("method", method),
		zap.String("tx_hash", signed.Hash().Hex()),
		zap.Uint64("nonce", nonce))

	return signed, nil
}

// WaitForReceipt blocks until the transaction is mined or ctx expires, and
// returns ErrTxReverted when it was mined with a failed status.
func (c *Client) WaitForReceipt(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, c.rpc, tx)
	if err != nil {
		return nil, fmt.Errorf("failed to wait for %s tx %s: %w", c.name, tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%s tx %s: %w", c.name, tx.Hash().Hex(), ErrTxReverted)
	}
	return receipt, nil
}

// Close shuts down the underlying connections.
func (c *Client) Close() {
	c.rpc.Close()
	if c.ws != nil {
		c.ws.Close()
	}
}
