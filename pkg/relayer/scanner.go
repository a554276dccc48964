package relayer

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/juchain-labs/bridge-relayer/internal/metrics"
	"github.com/juchain-labs/bridge-relayer/pkg/config"
	"github.com/juchain-labs/bridge-relayer/pkg/ethereum"
)

// sleepFunc blocks for d or until ctx is canceled. Tests inject their own.
type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Scanner catches up on historical bridge logs for one asset pair on one
// chain. Each pass fetches at most maxBlocks blocks past the stored
// cursor, processes the logs, and advances both event-type cursors
// together.
type Scanner struct {
	client    ChainClient
	store     Store
	processor *Processor
	pair      AssetPair
	chain     string

	maxBlocks  uint64
	retryDelay time.Duration
	maxRetries int

	// Optional indexed-sender filter applied to every getLogs query.
	sender *common.Address

	sleep  sleepFunc
	logger *zap.Logger
}

// NewScanner creates a scanner for (pair, chain).
func NewScanner(client ChainClient, store Store, processor *Processor, pair AssetPair, chain string, cfg config.ScanConfig, logger *zap.Logger) *Scanner {
	return &Scanner{
		client:     client,
		store:      store,
		processor:  processor,
		pair:       pair,
		chain:      chain,
		maxBlocks:  uint64(cfg.MaxBlocksPerScan),
		retryDelay: cfg.RetryDelay,
		maxRetries: cfg.MaxRetries,
		sleep:      sleepCtx,
		logger:     logger,
	}
}

// WithSender restricts the scan to events whose indexed user matches addr.
func (s *Scanner) WithSender(addr common.Address) *Scanner {
	s.sender = &addr
	return s
}

// ScanOnce runs a single catch-up pass. The cursor only advances after the
// window's logs were fetched and handed to the processor; a failed fetch
// leaves it untouched so the next pass retries the same window.
func (s *Scanner) ScanOnce(ctx context.Context) error {
	scanID := uuid.NewString()
	start := time.Now()
	defer func() {
		metrics.ScanDuration.WithLabelValues(s.chain, s.pair.Asset).Observe(time.Since(start).Seconds())
	}()

	latest, err := s.client.LatestBlock(ctx)
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues("scanner", "head").Inc()
		return fmt.Errorf("scan %s/%s: %w", s.chain, s.pair.Asset, err)
	}

	// New deployments start one window back from the head rather than at
	// genesis.
	var initBlock uint64
	if latest > s.maxBlocks {
		initBlock = latest - s.maxBlocks
	}

	events := s.pair.EventsOn(s.chain)
	cursor := latest
	for _, eventType := range events {
		progress, err := s.store.GetOrInitProgress(ctx, s.chain, s.pair.Asset, eventType, initBlock)
		if err != nil {
			return fmt.Errorf("scan %s/%s: %w", s.chain, s.pair.Asset, err)
		}
		if progress.LastProcessedBlock < cursor {
			cursor = progress.LastProcessedBlock
		}
	}

	from := cursor + 1
	if from > latest {
		return nil
	}
	to := latest
	if limit := from + s.maxBlocks - 1; to > limit {
		to = limit
	}

	logger := s.logger.With(
		zap.String("scan_id", scanID),
		zap.String("chain", s.chain),
		zap.String("asset", s.pair.Asset))
	logger.Debug("scanning block window",
		zap.Uint64("from", from),
		zap.Uint64("to", to),
		zap.Uint64("head", latest))

	logs, err := s.fetchLogs(ctx, from, to, logger)
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues("scanner", "fetch").Inc()
		return fmt.Errorf("scan %s/%s: %w", s.chain, s.pair.Asset, err)
	}

	for _, lg := range logs {
		decoded, err := ethereum.DecodeBridgeLog(lg)
		if err != nil {
			metrics.ErrorsTotal.WithLabelValues("scanner", "decode").Inc()
			logger.Warn("dropping undecodable log",
				zap.String("tx_hash", lg.TxHash.Hex()),
				zap.Error(err))
			continue
		}
		metrics.EventsDetected.WithLabelValues(s.chain, decoded.Event).Inc()

		// Relay failures are recorded on the event itself and picked up
		// by the error sweep; they must not stall the cursor.
		if err := s.processor.ProcessLog(ctx, s.pair, s.chain, decoded); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Error("failed to process log",
				zap.String("tx_hash", decoded.TxHash.Hex()),
				zap.Error(err))
		}
	}

	for _, eventType := range events {
		if err := s.store.AdvanceProgress(ctx, s.chain, s.pair.Asset, eventType, to); err != nil {
			return fmt.Errorf("scan %s/%s: %w", s.chain, s.pair.Asset, err)
		}
	}
	metrics.LastProcessedBlock.WithLabelValues(s.chain, s.pair.Asset).Set(float64(to))

	if len(logs) > 0 {
		logger.Info("scan pass complete",
			zap.Uint64("from", from),
			zap.Uint64("to", to),
			zap.Int("logs", len(logs)))
	}
	return nil
}

// fetchLogs retries transient getLogs failures with exponential backoff.
// Context cancellation is permanent and never retried.
func (s *Scanner) fetchLogs(ctx context.Context, from, to uint64, logger *zap.Logger) ([]types.Log, error) {
	topics := [][]common.Hash{s.eventTopics()}
	if s.sender != nil {
		topics = append(topics, []common.Hash{ethereum.AddressTopic(*s.sender)})
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		logs, err := s.client.FilterBridgeLogs(ctx, from, to, topics)
		if err == nil {
			return logs, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err

		if attempt == s.maxRetries {
			break
		}
		delay := s.retryDelay * time.Duration(1<<uint(attempt-1))
		logger.Warn("log fetch failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
		if err := s.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("fetching logs %d-%d failed after %d attempts: %w", from, to, s.maxRetries, lastErr)
}

func (s *Scanner) eventTopics() []common.Hash {
	events := s.pair.EventsOn(s.chain)
	topics := make([]common.Hash, 0, len(events))
	for _, name := range events {
		topics = append(topics, ethereum.EventTopic(name))
	}
	return topics
}
