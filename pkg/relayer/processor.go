package relayer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/juchain-labs/bridge-relayer/internal/metrics"
	"github.com/juchain-labs/bridge-relayer/pkg/db"
	"github.com/juchain-labs/bridge-relayer/pkg/ethereum"
)

// ChainClient is the chain access the relayer needs.
type ChainClient interface {
	Name() string
	ChainID() int64
	LatestBlock(ctx context.Context) (uint64, error)
	FilterBridgeLogs(ctx context.Context, fromBlock, toBlock uint64, topics [][]common.Hash) ([]types.Log, error)
	SubscribeBridgeLogs(ctx context.Context, eventTopics []common.Hash, sink chan<- types.Log) (geth.Subscription, error)
	SubmitRelay(ctx context.Context, method string, user common.Address, amount *big.Int) (*types.Transaction, error)
	WaitForReceipt(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

// Store is the persistence the relayer needs.
type Store interface {
	CreateEvent(ctx context.Context, event *db.BridgeEvent) error
	GetEventByTxHash(ctx context.Context, txHash string) (*db.BridgeEvent, error)
	MarkRelayed(ctx context.Context, txHash, status string) error
	MarkError(ctx context.Context, txHash, message string) error
	ListRetryableEvents(ctx context.Context) ([]*db.BridgeEvent, error)
	GetOrInitProgress(ctx context.Context, chain, asset, eventType string, initBlock uint64) (*db.ScanProgress, error)
	AdvanceProgress(ctx context.Context, chain, asset, eventType string, block uint64) error
}

// RelaySubmitter submits relay transactions to one chain. Submissions for
// a chain must go through a single submitter so the relayer account nonce
// is never raced.
type RelaySubmitter interface {
	Submit(ctx context.Context, method string, user common.Address, amount *big.Int) (*types.Transaction, error)
	WaitForReceipt(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

// Processor ingests decoded bridge logs and drives the relay that each
// originating event requires. Ingestion is idempotent on txHash.
type Processor struct {
	store          Store
	relays         map[string]RelaySubmitter
	chainIDs       map[string]int64
	confirmTimeout time.Duration
	logger         *zap.Logger
}

// NewProcessor creates a processor. relays and chainIDs are keyed by chain
// name.
func NewProcessor(store Store, relays map[string]RelaySubmitter, chainIDs map[string]int64, confirmTimeout time.Duration, logger *zap.Logger) *Processor {
	return &Processor{
		store:          store,
		relays:         relays,
		chainIDs:       chainIDs,
		confirmTimeout: confirmTimeout,
		logger:         logger,
	}
}

// ProcessLog handles one decoded bridge log observed on chain. Lock and
// burn events are persisted and relayed to the opposite chain; mint and
// unlock events are recorded as already-relayed confirmations. A log whose
// txHash reached a terminal status is a no-op.
func (p *Processor) ProcessLog(ctx context.Context, pair AssetPair, chain string, lg *ethereum.BridgeLog) error {
	route, ok := pair.Route(lg.Event)
	if !ok || route.ObservedChain != chain {
		p.logger.Debug("ignoring unrelated log",
			zap.String("event", lg.Event),
			zap.String("chain", chain),
			zap.String("tx_hash", lg.TxHash.Hex()))
		return nil
	}

	txHash := lg.TxHash.Hex()
	event, err := p.store.GetEventByTxHash(ctx, txHash)
	switch {
	case err == nil:
		if event.IsTerminal() {
			p.logger.Debug("event already processed", zap.String("tx_hash", txHash))
			return nil
		}
		// Known but unfinished, fall through to re-drive the relay.
	case errors.Is(err, db.ErrEventNotFound):
		event = &db.BridgeEvent{
			Asset:       route.Asset,
			FromChain:   route.FromChain,
			ToChain:     route.ToChain,
			EventName:   lg.Event,
			Status:      route.Status,
			UserAddress: lg.User.Hex(),
			Amount:      lg.Amount.String(),
			TxHash:      txHash,
			BlockNumber: lg.BlockNumber,
			ChainID:     p.chainIDs[chain],
			Relayed:     !route.Originating,
		}
		if err := p.store.CreateEvent(ctx, event); err != nil {
			if errors.Is(err, db.ErrEventExists) {
				// Lost the insert race, the winner owns the relay.
				return nil
			}
			return fmt.Errorf("failed to persist %s event: %w", lg.Event, err)
		}
		p.logger.Info("bridge event recorded",
			zap.String("event", lg.Event),
			zap.String("asset", route.Asset),
			zap.String("status", route.Status),
			zap.String("user", event.UserAddress),
			zap.String("amount", ethereum.FormatUnits(lg.Amount, ethereum.TokenDecimals)),
			zap.String("tx_hash", txHash),
			zap.Uint64("block", lg.BlockNumber))
	default:
		return fmt.Errorf("failed to look up event %s: %w", txHash, err)
	}

	if !route.Originating {
		return nil
	}
	return p.relay(ctx, route, event)
}

// RetryEvent re-drives the relay for an event stuck in ERROR.
func (p *Processor) RetryEvent(ctx context.Context, pairs []AssetPair, event *db.BridgeEvent) error {
	_, route, ok := PairForEvent(pairs, event.EventName)
	if !ok || !route.Originating {
		return fmt.Errorf("event %s (%s) is not retryable", event.TxHash, event.EventName)
	}
	return p.relay(ctx, route, event)
}

func (p *Processor) relay(ctx context.Context, route Route, event *db.BridgeEvent) error {
	submitter, ok := p.relays[route.RelayChain]
	if !ok {
		return fmt.Errorf("no submitter for chain %s", route.RelayChain)
	}

	amount, ok := new(big.Int).SetString(event.Amount, 10)
	if !ok {
		err := fmt.Errorf("invalid stored amount %q for event %s", event.Amount, event.TxHash)
		p.fail(ctx, route, event, err)
		return err
	}

	tx, err := submitter.Submit(ctx, route.RelayMethod, common.HexToAddress(event.UserAddress), amount)
	if err != nil {
		p.fail(ctx, route, event, err)
		return fmt.Errorf("failed to submit %s: %w", route.RelayMethod, err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, p.confirmTimeout)
	defer cancel()
	if _, err := submitter.WaitForReceipt(waitCtx, tx); err != nil {
		p.fail(ctx, route, event, err)
		return fmt.Errorf("failed to confirm %s: %w", route.RelayMethod, err)
	}

	if err := p.store.MarkRelayed(ctx, event.TxHash, route.SuccessStatus); err != nil {
		return fmt.Errorf("failed to finalize event %s: %w", event.TxHash, err)
	}

	metrics.RelaysTotal.WithLabelValues(route.Asset, "success").Inc()
	p.logger.Info("relay confirmed",
		zap.String("asset", route.Asset),
		zap.String("method", route.RelayMethod),
		zap.String("status", route.SuccessStatus),
		zap.String("source_tx", event.TxHash),
		zap.String("relay_tx", tx.Hash().Hex()))
	return nil
}

func (p *Processor) fail(ctx context.Context, route Route, event *db.BridgeEvent, cause error) {
	metrics.RelaysTotal.WithLabelValues(route.Asset, "error").Inc()
	metrics.ErrorsTotal.WithLabelValues("processor", "relay").Inc()

	if err := p.store.MarkError(ctx, event.TxHash, cause.Error()); err != nil {
		p.logger.Error("failed to record relay error",
			zap.String("tx_hash", event.TxHash),
			zap.Error(err))
	}
	p.logger.Error("relay failed",
		zap.String("asset", route.Asset),
		zap.String("method", route.RelayMethod),
		zap.String("source_tx", event.TxHash),
		zap.Error(cause))
}
