package relayer

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/juchain-labs/bridge-relayer/internal/metrics"
	"github.com/juchain-labs/bridge-relayer/pkg/ethereum"
)

// resubscribeDelay is how long the listener waits before reopening a
// dropped websocket subscription.
const resubscribeDelay = 5 * time.Second

// Listener consumes realtime bridge logs for one asset pair on one chain
// over a websocket subscription. Every log waits out the finality delay
// before it is processed; the historical scanner covers anything missed
// while the subscription is down.
type Listener struct {
	client    ChainClient
	processor *Processor
	pair      AssetPair
	chain     string

	finalityDelay time.Duration

	sleep  sleepFunc
	logger *zap.Logger
}

// NewListener creates a listener for (pair, chain).
func NewListener(client ChainClient, processor *Processor, pair AssetPair, chain string, finalityDelay time.Duration, logger *zap.Logger) *Listener {
	return &Listener{
		client:        client,
		processor:     processor,
		pair:          pair,
		chain:         chain,
		finalityDelay: finalityDelay,
		sleep:         sleepCtx,
		logger:        logger,
	}
}

// Run listens until ctx is canceled, resubscribing after failures.
func (l *Listener) Run(ctx context.Context) {
	logger := l.logger.With(
		zap.String("chain", l.chain),
		zap.String("asset", l.pair.Asset))

	for ctx.Err() == nil {
		if err := l.listen(ctx, logger); err != nil && ctx.Err() == nil {
			if errors.Is(err, ethereum.ErrNoWSEndpoint) {
				logger.Info("no websocket endpoint, realtime listener disabled")
				return
			}
			metrics.ErrorsTotal.WithLabelValues("listener", "subscription").Inc()
			logger.Warn("subscription lost, reconnecting",
				zap.Duration("delay", resubscribeDelay),
				zap.Error(err))
			if err := l.sleep(ctx, resubscribeDelay); err != nil {
				return
			}
		}
	}
}

func (l *Listener) listen(ctx context.Context, logger *zap.Logger) error {
	sink := make(chan types.Log, 64)
	sub, err := l.client.SubscribeBridgeLogs(ctx, l.eventTopics(), sink)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	logger.Info("realtime listener subscribed")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return err
		case lg := <-sink:
			l.handleLog(ctx, lg, logger)
		}
	}
}

func (l *Listener) handleLog(ctx context.Context, lg types.Log, logger *zap.Logger) {
	// Give the chain a moment to settle before trusting the log.
	if err := l.sleep(ctx, l.finalityDelay); err != nil {
		return
	}

	decoded, err := ethereum.DecodeBridgeLog(lg)
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues("listener", "decode").Inc()
		logger.Warn("dropping undecodable log",
			zap.String("tx_hash", lg.TxHash.Hex()),
			zap.Error(err))
		return
	}
	metrics.EventsDetected.WithLabelValues(l.chain, decoded.Event).Inc()

	if err := l.processor.ProcessLog(ctx, l.pair, l.chain, decoded); err != nil && ctx.Err() == nil {
		logger.Error("failed to process log",
			zap.String("tx_hash", decoded.TxHash.Hex()),
			zap.Error(err))
	}
}

func (l *Listener) eventTopics() []common.Hash {
	events := l.pair.EventsOn(l.chain)
	topics := make([]common.Hash, 0, len(events))
	for _, name := range events {
		topics = append(topics, ethereum.EventTopic(name))
	}
	return topics
}
