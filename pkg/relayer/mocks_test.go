package relayer

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/juchain-labs/bridge-relayer/pkg/db"
	"github.com/juchain-labs/bridge-relayer/pkg/ethereum"
)

// MockStore implements Store with overridable functions.
type MockStore struct {
	CreateEventFunc         func(ctx context.Context, event *db.BridgeEvent) error
	GetEventByTxHashFunc    func(ctx context.Context, txHash string) (*db.BridgeEvent, error)
	MarkRelayedFunc         func(ctx context.Context, txHash, status string) error
	MarkErrorFunc           func(ctx context.Context, txHash, message string) error
	ListRetryableEventsFunc func(ctx context.Context) ([]*db.BridgeEvent, error)
	GetOrInitProgressFunc   func(ctx context.Context, chain, asset, eventType string, initBlock uint64) (*db.ScanProgress, error)
	AdvanceProgressFunc     func(ctx context.Context, chain, asset, eventType string, block uint64) error
}

func (m *MockStore) CreateEvent(ctx context.Context, event *db.BridgeEvent) error {
	if m.CreateEventFunc != nil {
		return m.CreateEventFunc(ctx, event)
	}
	return nil
}

func (m *MockStore) GetEventByTxHash(ctx context.Context, txHash string) (*db.BridgeEvent, error) {
	if m.GetEventByTxHashFunc != nil {
		return m.GetEventByTxHashFunc(ctx, txHash)
	}
	return nil, db.ErrEventNotFound
}

func (m *MockStore) MarkRelayed(ctx context.Context, txHash, status string) error {
	if m.MarkRelayedFunc != nil {
		return m.MarkRelayedFunc(ctx, txHash, status)
	}
	return nil
}

func (m *MockStore) MarkError(ctx context.Context, txHash, message string) error {
	if m.MarkErrorFunc != nil {
		return m.MarkErrorFunc(ctx, txHash, message)
	}
	return nil
}

func (m *MockStore) ListRetryableEvents(ctx context.Context) ([]*db.BridgeEvent, error) {
	if m.ListRetryableEventsFunc != nil {
		return m.ListRetryableEventsFunc(ctx)
	}
	return nil, nil
}

func (m *MockStore) GetOrInitProgress(ctx context.Context, chain, asset, eventType string, initBlock uint64) (*db.ScanProgress, error) {
	if m.GetOrInitProgressFunc != nil {
		return m.GetOrInitProgressFunc(ctx, chain, asset, eventType, initBlock)
	}
	return &db.ScanProgress{Chain: chain, Asset: asset, EventType: eventType, LastProcessedBlock: initBlock}, nil
}

func (m *MockStore) AdvanceProgress(ctx context.Context, chain, asset, eventType string, block uint64) error {
	if m.AdvanceProgressFunc != nil {
		return m.AdvanceProgressFunc(ctx, chain, asset, eventType, block)
	}
	return nil
}

// MockClient implements ChainClient with overridable functions.
type MockClient struct {
	NameValue    string
	ChainIDValue int64

	LatestBlockFunc         func(ctx context.Context) (uint64, error)
	FilterBridgeLogsFunc    func(ctx context.Context, fromBlock, toBlock uint64, topics [][]common.Hash) ([]types.Log, error)
	SubscribeBridgeLogsFunc func(ctx context.Context, eventTopics []common.Hash, sink chan<- types.Log) (geth.Subscription, error)
	SubmitRelayFunc         func(ctx context.Context, method string, user common.Address, amount *big.Int) (*types.Transaction, error)
	WaitForReceiptFunc      func(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

func (m *MockClient) Name() string {
	return m.NameValue
}

func (m *MockClient) ChainID() int64 {
	return m.ChainIDValue
}

func (m *MockClient) LatestBlock(ctx context.Context) (uint64, error) {
	if m.LatestBlockFunc != nil {
		return m.LatestBlockFunc(ctx)
	}
	return 0, nil
}

func (m *MockClient) FilterBridgeLogs(ctx context.Context, fromBlock, toBlock uint64, topics [][]common.Hash) ([]types.Log, error) {
	if m.FilterBridgeLogsFunc != nil {
		return m.FilterBridgeLogsFunc(ctx, fromBlock, toBlock, topics)
	}
	return nil, nil
}

func (m *MockClient) SubscribeBridgeLogs(ctx context.Context, eventTopics []common.Hash, sink chan<- types.Log) (geth.Subscription, error) {
	if m.SubscribeBridgeLogsFunc != nil {
		return m.SubscribeBridgeLogsFunc(ctx, eventTopics, sink)
	}
	return nil, ethereum.ErrNoWSEndpoint
}

func (m *MockClient) SubmitRelay(ctx context.Context, method string, user common.Address, amount *big.Int) (*types.Transaction, error) {
	if m.SubmitRelayFunc != nil {
		return m.SubmitRelayFunc(ctx, method, user, amount)
	}
	return newFakeTx(), nil
}

func (m *MockClient) WaitForReceipt(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	if m.WaitForReceiptFunc != nil {
		return m.WaitForReceiptFunc(ctx, tx)
	}
	return &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
}

// MockSubmitter implements RelaySubmitter with overridable functions.
type MockSubmitter struct {
	SubmitFunc         func(ctx context.Context, method string, user common.Address, amount *big.Int) (*types.Transaction, error)
	WaitForReceiptFunc func(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

func (m *MockSubmitter) Submit(ctx context.Context, method string, user common.Address, amount *big.Int) (*types.Transaction, error) {
	if m.SubmitFunc != nil {
		return m.SubmitFunc(ctx, method, user, amount)
	}
	return newFakeTx(), nil
}

func (m *MockSubmitter) WaitForReceipt(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	if m.WaitForReceiptFunc != nil {
		return m.WaitForReceiptFunc(ctx, tx)
	}
	return &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
}

// fakeSub is a controllable geth.Subscription.
type fakeSub struct {
	errCh chan error
}

func newFakeSub() *fakeSub {
	return &fakeSub{errCh: make(chan error, 1)}
}

func (s *fakeSub) Err() <-chan error {
	return s.errCh
}

func (s *fakeSub) Unsubscribe() {}

// memStore is an in-memory Store for scanner, listener, and engine tests.
type memStore struct {
	mu       sync.Mutex
	events   map[string]*db.BridgeEvent
	progress map[string]*db.ScanProgress
}

func newMemStore() *memStore {
	return &memStore{
		events:   make(map[string]*db.BridgeEvent),
		progress: make(map[string]*db.ScanProgress),
	}
}

func progressKey(chain, asset, eventType string) string {
	return chain + "|" + asset + "|" + eventType
}

func (m *memStore) CreateEvent(_ context.Context, event *db.BridgeEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[event.TxHash]; ok {
		return db.ErrEventExists
	}
	clone := *event
	m.events[event.TxHash] = &clone
	return nil
}

func (m *memStore) GetEventByTxHash(_ context.Context, txHash string) (*db.BridgeEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	event, ok := m.events[txHash]
	if !ok {
		return nil, db.ErrEventNotFound
	}
	clone := *event
	return &clone, nil
}

func (m *memStore) MarkRelayed(_ context.Context, txHash, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	event, ok := m.events[txHash]
	if !ok {
		return db.ErrEventNotFound
	}
	event.Status = status
	event.Relayed = true
	event.ErrorMessage = ""
	return nil
}

func (m *memStore) MarkError(_ context.Context, txHash, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	event, ok := m.events[txHash]
	if !ok {
		return db.ErrEventNotFound
	}
	event.Status = db.StatusError
	event.ErrorMessage = message
	return nil
}

func (m *memStore) ListRetryableEvents(_ context.Context) ([]*db.BridgeEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*db.BridgeEvent
	for _, event := range m.events {
		if event.Status == db.StatusError && !event.Relayed {
			clone := *event
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (m *memStore) GetOrInitProgress(_ context.Context, chain, asset, eventType string, initBlock uint64) (*db.ScanProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := progressKey(chain, asset, eventType)
	if p, ok := m.progress[key]; ok {
		clone := *p
		return &clone, nil
	}
	p := &db.ScanProgress{Chain: chain, Asset: asset, EventType: eventType, LastProcessedBlock: initBlock}
	m.progress[key] = p
	clone := *p
	return &clone, nil
}

func (m *memStore) AdvanceProgress(_ context.Context, chain, asset, eventType string, block uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := progressKey(chain, asset, eventType)
	m.progress[key] = &db.ScanProgress{
		Chain:              chain,
		Asset:              asset,
		EventType:          eventType,
		LastProcessedBlock: block,
		FullyCaughtUp:      true,
	}
	return nil
}

func (m *memStore) cursor(chain, asset, eventType string) (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.progress[progressKey(chain, asset, eventType)]
	if !ok {
		return 0, false
	}
	return p.LastProcessedBlock, true
}

func (m *memStore) seedProgress(chain, asset, eventType string, block uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progress[progressKey(chain, asset, eventType)] = &db.ScanProgress{
		Chain:              chain,
		Asset:              asset,
		EventType:          eventType,
		LastProcessedBlock: block,
	}
}

const testConfirmTimeout = 5 * time.Second

var fakeTxCounter atomic.Uint64

func newFakeTx() *types.Transaction {
	return types.NewTransaction(fakeTxCounter.Add(1), common.Address{}, big.NewInt(0), 21000, big.NewInt(1), nil)
}

// newBridgeLog builds a raw log for a bridge event, ABI-encoded the way
// the contracts emit it.
func newBridgeLog(event string, user common.Address, amount *big.Int, seq byte, block uint64) types.Log {
	data, err := ethereum.BridgeABI.Events[event].Inputs.NonIndexed().Pack(amount)
	if err != nil {
		panic(fmt.Sprintf("pack %s: %v", event, err))
	}
	return types.Log{
		Topics:      []common.Hash{ethereum.EventTopic(event), ethereum.AddressTopic(user)},
		Data:        data,
		TxHash:      common.BytesToHash([]byte{0xaa, seq}),
		BlockNumber: block,
	}
}

func juPair() AssetPair {
	return DefaultPairs()[0]
}

func wowPair() AssetPair {
	return DefaultPairs()[1]
}

func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
