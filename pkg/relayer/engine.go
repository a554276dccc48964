package relayer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/juchain-labs/bridge-relayer/internal/metrics"
	"github.com/juchain-labs/bridge-relayer/pkg/config"
)

// Engine wires the scanners, listeners, submitters, and the error sweep
// for every configured asset pair and runs them until stopped.
type Engine struct {
	cfg        *config.Config
	store      Store
	pairs      []AssetPair
	processor  *Processor
	submitters map[string]*Submitter
	scanners   []*Scanner
	listeners  []*Listener
	logger     *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
	ready  atomic.Bool
}

// NewEngine builds an engine over the given chain clients, keyed by chain
// name. Every pair gets one scanner and one listener per chain it spans.
func NewEngine(cfg *config.Config, store Store, clients map[string]ChainClient, logger *zap.Logger) *Engine {
	pairs := DefaultPairs()

	submitters := make(map[string]*Submitter, len(clients))
	relays := make(map[string]RelaySubmitter, len(clients))
	chainIDs := make(map[string]int64, len(clients))
	for name, client := range clients {
		sub := NewSubmitter(client, logger)
		submitters[name] = sub
		relays[name] = sub
		chainIDs[name] = client.ChainID()
	}

	processor := NewProcessor(store, relays, chainIDs, cfg.Relayer.ConfirmTimeout, logger)

	var scanners []*Scanner
	var listeners []*Listener
	for _, pair := range pairs {
		for _, chain := range pair.Chains() {
			client := clients[chain]
			scanners = append(scanners, NewScanner(client, store, processor, pair, chain, cfg.Scan, logger))
			listeners = append(listeners, NewListener(client, processor, pair, chain, cfg.Scan.FinalityDelay, logger))
		}
	}

	return &Engine{
		cfg:        cfg,
		store:      store,
		pairs:      pairs,
		processor:  processor,
		submitters: submitters,
		scanners:   scanners,
		listeners:  listeners,
		logger:     logger,
	}
}

// Start runs one catch-up pass per scanner, then launches the polling
// loops, the realtime listeners, and the error sweep. It returns once
// everything is running.
func (e *Engine) Start(ctx context.Context) error {
	ctx, e.cancel = context.WithCancel(ctx)

	for _, sub := range e.submitters {
		sub.Start(ctx)
	}

	for _, scanner := range e.scanners {
		if err := scanner.ScanOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// The polling loop retries the same window later.
			e.logger.Error("initial scan pass failed", zap.Error(err))
		}
	}
	e.ready.Store(true)
	e.logger.Info("relayer engine started",
		zap.Int("scanners", len(e.scanners)),
		zap.Int("listeners", len(e.listeners)))

	for _, scanner := range e.scanners {
		scanner := scanner
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.runScanLoop(ctx, scanner)
		}()
	}

	for _, listener := range e.listeners {
		listener := listener
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			listener.Run(ctx)
		}()
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.runErrorSweep(ctx)
	}()

	return nil
}

// Stop shuts the engine down and waits for all workers to exit.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	for _, sub := range e.submitters {
		sub.Wait()
	}
	e.ready.Store(false)
	e.logger.Info("relayer engine stopped")
}

// IsReady reports whether the initial catch-up pass has completed.
func (e *Engine) IsReady() bool {
	return e.ready.Load()
}

func (e *Engine) runScanLoop(ctx context.Context, scanner *Scanner) {
	ticker := time.NewTicker(e.cfg.Scan.PollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := scanner.ScanOnce(ctx); err != nil && ctx.Err() == nil {
				e.logger.Error("scan pass failed", zap.Error(err))
			}
		}
	}
}

// runErrorSweep periodically re-drives events whose relay failed. Sweeping
// is what makes a cursor advance past a failed relay safe.
func (e *Engine) runErrorSweep(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.Scan.ErrorSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.sweepOnce(ctx)
		}
	}
}

func (e *Engine) sweepOnce(ctx context.Context) {
	events, err := e.store.ListRetryableEvents(ctx)
	if err != nil {
		if ctx.Err() == nil {
			metrics.ErrorsTotal.WithLabelValues("sweep", "list").Inc()
			e.logger.Error("error sweep failed", zap.Error(err))
		}
		return
	}
	metrics.ErroredEvents.Set(float64(len(events)))
	if len(events) == 0 {
		return
	}

	e.logger.Info("retrying errored events", zap.Int("count", len(events)))
	for _, event := range events {
		if ctx.Err() != nil {
			return
		}
		if err := e.processor.RetryEvent(ctx, e.pairs, event); err != nil && ctx.Err() == nil {
			e.logger.Warn("retry failed",
				zap.String("tx_hash", event.TxHash),
				zap.Error(err))
		}
	}
}
