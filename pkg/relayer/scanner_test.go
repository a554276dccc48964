package relayer

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/juchain-labs/bridge-relayer/pkg/config"
	"github.com/juchain-labs/bridge-relayer/pkg/db"
	"github.com/juchain-labs/bridge-relayer/pkg/ethereum"
)

func testScanConfig() config.ScanConfig {
	return config.ScanConfig{
		MaxBlocksPerScan:   500,
		PollingInterval:    time.Minute,
		RetryDelay:         10 * time.Second,
		MaxRetries:         5,
		FinalityDelay:      time.Second,
		ErrorSweepInterval: time.Minute,
	}
}

func newTestScanner(client ChainClient, store Store, relays map[string]RelaySubmitter, pair AssetPair, chain string) *Scanner {
	processor := NewProcessor(store, relays, testChainIDs(), testConfirmTimeout, zap.NewNop())
	return NewScanner(client, store, processor, pair, chain, testScanConfig(), zap.NewNop())
}

func TestScanWindowIsBounded(t *testing.T) {
	store := newMemStore()
	pair := juPair()
	store.seedProgress(db.ChainJU, pair.Asset, pair.LockEvent, 1000)
	store.seedProgress(db.ChainJU, pair.Asset, pair.UnlockEvent, 1000)

	var gotFrom, gotTo uint64
	client := &MockClient{
		NameValue: db.ChainJU,
		LatestBlockFunc: func(context.Context) (uint64, error) {
			return 10000, nil
		},
		FilterBridgeLogsFunc: func(_ context.Context, from, to uint64, _ [][]common.Hash) ([]types.Log, error) {
			gotFrom, gotTo = from, to
			return nil, nil
		},
	}

	s := newTestScanner(client, store, nil, pair, db.ChainJU)
	if err := s.ScanOnce(context.Background()); err != nil {
		t.Fatalf("ScanOnce returned error: %v", err)
	}

	if gotFrom != 1001 || gotTo != 1500 {
		t.Errorf("scanned window = [%d, %d], want [1001, 1500]", gotFrom, gotTo)
	}
	for _, eventType := range []string{pair.LockEvent, pair.UnlockEvent} {
		if block, _ := store.cursor(db.ChainJU, pair.Asset, eventType); block != 1500 {
			t.Errorf("cursor %s = %d, want 1500", eventType, block)
		}
	}
}

func TestScanInitializesCursorNearHead(t *testing.T) {
	store := newMemStore()
	pair := juPair()

	var gotFrom, gotTo uint64
	client := &MockClient{
		NameValue: db.ChainJU,
		LatestBlockFunc: func(context.Context) (uint64, error) {
			return 10000, nil
		},
		FilterBridgeLogsFunc: func(_ context.Context, from, to uint64, _ [][]common.Hash) ([]types.Log, error) {
			gotFrom, gotTo = from, to
			return nil, nil
		},
	}

	s := newTestScanner(client, store, nil, pair, db.ChainJU)
	if err := s.ScanOnce(context.Background()); err != nil {
		t.Fatalf("ScanOnce returned error: %v", err)
	}

	// A fresh deployment starts one window back from the head.
	if gotFrom != 9501 || gotTo != 10000 {
		t.Errorf("scanned window = [%d, %d], want [9501, 10000]", gotFrom, gotTo)
	}
}

func TestScanUsesMinOfBothCursors(t *testing.T) {
	store := newMemStore()
	pair := juPair()
	store.seedProgress(db.ChainJU, pair.Asset, pair.LockEvent, 2000)
	store.seedProgress(db.ChainJU, pair.Asset, pair.UnlockEvent, 1200)

	var gotFrom uint64
	client := &MockClient{
		NameValue: db.ChainJU,
		LatestBlockFunc: func(context.Context) (uint64, error) {
			return 3000, nil
		},
		FilterBridgeLogsFunc: func(_ context.Context, from, _ uint64, _ [][]common.Hash) ([]types.Log, error) {
			gotFrom = from
			return nil, nil
		},
	}

	s := newTestScanner(client, store, nil, pair, db.ChainJU)
	if err := s.ScanOnce(context.Background()); err != nil {
		t.Fatalf("ScanOnce returned error: %v", err)
	}

	if gotFrom != 1201 {
		t.Errorf("scan started at %d, want 1201 (behind the slowest cursor)", gotFrom)
	}
	// Both cursors move together even though one was ahead.
	if block, _ := store.cursor(db.ChainJU, pair.Asset, pair.LockEvent); block != 1700 {
		t.Errorf("lock cursor = %d, want 1700", block)
	}
	if block, _ := store.cursor(db.ChainJU, pair.Asset, pair.UnlockEvent); block != 1700 {
		t.Errorf("unlock cursor = %d, want 1700", block)
	}
}

func TestScanSkipsWhenCaughtUp(t *testing.T) {
	store := newMemStore()
	pair := juPair()
	store.seedProgress(db.ChainJU, pair.Asset, pair.LockEvent, 3000)
	store.seedProgress(db.ChainJU, pair.Asset, pair.UnlockEvent, 3000)

	client := &MockClient{
		NameValue: db.ChainJU,
		LatestBlockFunc: func(context.Context) (uint64, error) {
			return 3000, nil
		},
		FilterBridgeLogsFunc: func(context.Context, uint64, uint64, [][]common.Hash) ([]types.Log, error) {
			t.Fatal("caught-up scanner must not fetch logs")
			return nil, nil
		},
	}

	s := newTestScanner(client, store, nil, pair, db.ChainJU)
	if err := s.ScanOnce(context.Background()); err != nil {
		t.Fatalf("ScanOnce returned error: %v", err)
	}
}

func TestScanRetrySchedule(t *testing.T) {
	store := newMemStore()
	pair := juPair()
	store.seedProgress(db.ChainJU, pair.Asset, pair.LockEvent, 1000)
	store.seedProgress(db.ChainJU, pair.Asset, pair.UnlockEvent, 1000)

	attempts := 0
	client := &MockClient{
		NameValue: db.ChainJU,
		LatestBlockFunc: func(context.Context) (uint64, error) {
			return 2000, nil
		},
		FilterBridgeLogsFunc: func(context.Context, uint64, uint64, [][]common.Hash) ([]types.Log, error) {
			attempts++
			return nil, errors.New("rpc unavailable")
		},
	}

	s := newTestScanner(client, store, nil, pair, db.ChainJU)
	var delays []time.Duration
	s.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	err := s.ScanOnce(context.Background())
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}

	if attempts != 5 {
		t.Errorf("attempts = %d, want 5", attempts)
	}
	want := []time.Duration{10 * time.Second, 20 * time.Second, 40 * time.Second, 80 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("delays = %v, want %v", delays, want)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("delay[%d] = %s, want %s", i, delays[i], want[i])
		}
	}
	// The window stays unscanned for the next pass.
	if block, _ := store.cursor(db.ChainJU, pair.Asset, pair.LockEvent); block != 1000 {
		t.Errorf("cursor moved to %d after failed pass, want 1000", block)
	}
}

func TestScanCancellationIsNotRetried(t *testing.T) {
	store := newMemStore()
	pair := juPair()
	store.seedProgress(db.ChainJU, pair.Asset, pair.LockEvent, 1000)
	store.seedProgress(db.ChainJU, pair.Asset, pair.UnlockEvent, 1000)

	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	client := &MockClient{
		NameValue: db.ChainJU,
		LatestBlockFunc: func(context.Context) (uint64, error) {
			return 2000, nil
		},
		FilterBridgeLogsFunc: func(context.Context, uint64, uint64, [][]common.Hash) ([]types.Log, error) {
			attempts++
			cancel()
			return nil, context.Canceled
		},
	}

	s := newTestScanner(client, store, nil, pair, db.ChainJU)
	s.sleep = func(context.Context, time.Duration) error {
		t.Fatal("cancellation must not back off")
		return nil
	}

	if err := s.ScanOnce(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestScanProcessesFetchedLogs(t *testing.T) {
	store := newMemStore()
	pair := juPair()
	store.seedProgress(db.ChainJU, pair.Asset, pair.LockEvent, 1000)
	store.seedProgress(db.ChainJU, pair.Asset, pair.UnlockEvent, 1000)

	lockLog := newBridgeLog(ethereum.EventJuCoinLocked, testUser, testAmount, 1, 1100)
	client := &MockClient{
		NameValue: db.ChainJU,
		LatestBlockFunc: func(context.Context) (uint64, error) {
			return 1200, nil
		},
		FilterBridgeLogsFunc: func(context.Context, uint64, uint64, [][]common.Hash) ([]types.Log, error) {
			return []types.Log{lockLog}, nil
		},
	}

	relays := map[string]RelaySubmitter{db.ChainBSC: &MockSubmitter{}}
	s := newTestScanner(client, store, relays, pair, db.ChainJU)
	if err := s.ScanOnce(context.Background()); err != nil {
		t.Fatalf("ScanOnce returned error: %v", err)
	}

	event, err := store.GetEventByTxHash(context.Background(), lockLog.TxHash.Hex())
	if err != nil {
		t.Fatalf("event was not persisted: %v", err)
	}
	if event.Status != db.StatusMinted || !event.Relayed {
		t.Errorf("event = %s/relayed=%t, want MINTED/relayed=true", event.Status, event.Relayed)
	}
	if block, _ := store.cursor(db.ChainJU, pair.Asset, pair.LockEvent); block != 1200 {
		t.Errorf("cursor = %d, want 1200", block)
	}
}

func TestScanDropsUndecodableLogs(t *testing.T) {
	store := newMemStore()
	pair := juPair()
	store.seedProgress(db.ChainJU, pair.Asset, pair.LockEvent, 1000)
	store.seedProgress(db.ChainJU, pair.Asset, pair.UnlockEvent, 1000)

	garbage := types.Log{
		Topics: []common.Hash{common.HexToHash("0xdead")},
		TxHash: common.HexToHash("0xbad"),
	}
	lockLog := newBridgeLog(ethereum.EventJuCoinLocked, testUser, testAmount, 2, 1100)
	client := &MockClient{
		NameValue: db.ChainJU,
		LatestBlockFunc: func(context.Context) (uint64, error) {
			return 1200, nil
		},
		FilterBridgeLogsFunc: func(context.Context, uint64, uint64, [][]common.Hash) ([]types.Log, error) {
			return []types.Log{garbage, lockLog}, nil
		},
	}

	relays := map[string]RelaySubmitter{db.ChainBSC: &MockSubmitter{}}
	s := newTestScanner(client, store, relays, pair, db.ChainJU)
	if err := s.ScanOnce(context.Background()); err != nil {
		t.Fatalf("ScanOnce returned error: %v", err)
	}

	if _, err := store.GetEventByTxHash(context.Background(), lockLog.TxHash.Hex()); err != nil {
		t.Errorf("valid log was not processed: %v", err)
	}
	// The bad log must not stall the cursor.
	if block, _ := store.cursor(db.ChainJU, pair.Asset, pair.LockEvent); block != 1200 {
		t.Errorf("cursor = %d, want 1200", block)
	}
}

func TestScanCursorAdvancesPastFailedRelay(t *testing.T) {
	store := newMemStore()
	pair := juPair()
	store.seedProgress(db.ChainJU, pair.Asset, pair.LockEvent, 1000)
	store.seedProgress(db.ChainJU, pair.Asset, pair.UnlockEvent, 1000)

	lockLog := newBridgeLog(ethereum.EventJuCoinLocked, testUser, testAmount, 3, 1100)
	client := &MockClient{
		NameValue: db.ChainJU,
		LatestBlockFunc: func(context.Context) (uint64, error) {
			return 1200, nil
		},
		FilterBridgeLogsFunc: func(context.Context, uint64, uint64, [][]common.Hash) ([]types.Log, error) {
			return []types.Log{lockLog}, nil
		},
	}

	relays := map[string]RelaySubmitter{db.ChainBSC: &MockSubmitter{
		SubmitFunc: func(context.Context, string, common.Address, *big.Int) (*types.Transaction, error) {
			return nil, errors.New("insufficient funds")
		},
	}}
	s := newTestScanner(client, store, relays, pair, db.ChainJU)
	if err := s.ScanOnce(context.Background()); err != nil {
		t.Fatalf("ScanOnce returned error: %v", err)
	}

	event, err := store.GetEventByTxHash(context.Background(), lockLog.TxHash.Hex())
	if err != nil {
		t.Fatalf("event was not persisted: %v", err)
	}
	if event.Status != db.StatusError {
		t.Errorf("event status = %s, want ERROR", event.Status)
	}
	if block, _ := store.cursor(db.ChainJU, pair.Asset, pair.LockEvent); block != 1200 {
		t.Errorf("cursor = %d, want 1200 (failed relay must not stall the scan)", block)
	}
}

func TestScanSenderFilterAddsTopic(t *testing.T) {
	store := newMemStore()
	pair := juPair()
	store.seedProgress(db.ChainJU, pair.Asset, pair.LockEvent, 1000)
	store.seedProgress(db.ChainJU, pair.Asset, pair.UnlockEvent, 1000)

	var gotTopics [][]common.Hash
	client := &MockClient{
		NameValue: db.ChainJU,
		LatestBlockFunc: func(context.Context) (uint64, error) {
			return 1200, nil
		},
		FilterBridgeLogsFunc: func(_ context.Context, _, _ uint64, topics [][]common.Hash) ([]types.Log, error) {
			gotTopics = topics
			return nil, nil
		},
	}

	s := newTestScanner(client, store, nil, pair, db.ChainJU).WithSender(testUser)
	if err := s.ScanOnce(context.Background()); err != nil {
		t.Fatalf("ScanOnce returned error: %v", err)
	}

	if len(gotTopics) != 2 {
		t.Fatalf("topics dimensions = %d, want 2", len(gotTopics))
	}
	if len(gotTopics[0]) != 2 {
		t.Errorf("event topics = %d, want 2", len(gotTopics[0]))
	}
	if len(gotTopics[1]) != 1 || gotTopics[1][0] != ethereum.AddressTopic(testUser) {
		t.Errorf("sender topic = %v, want padded %s", gotTopics[1], testUser.Hex())
	}
}
