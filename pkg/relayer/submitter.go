package relayer

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// Submitter serializes relay submissions to one chain through a single
// worker goroutine. The scanner, listener, and error sweep all submit
// through it, so pending-nonce reads never race.
type Submitter struct {
	client   ChainClient
	requests chan *relayRequest
	logger   *zap.Logger

	wg sync.WaitGroup
}

type relayRequest struct {
	method string
	user   common.Address
	amount *big.Int
	ctx    context.Context
	result chan relayResult
}

type relayResult struct {
	tx  *types.Transaction
	err error
}

// NewSubmitter creates a submitter for the given chain client.
func NewSubmitter(client ChainClient, logger *zap.Logger) *Submitter {
	return &Submitter{
		client:   client,
		requests: make(chan *relayRequest),
		logger:   logger,
	}
}

// Start launches the submission worker. It stops when ctx is canceled.
func (s *Submitter) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case req := <-s.requests:
				tx, err := s.client.SubmitRelay(req.ctx, req.method, req.user, req.amount)
				req.result <- relayResult{tx: tx, err: err}
			}
		}
	}()
}

// Wait blocks until the worker has exited.
func (s *Submitter) Wait() {
	s.wg.Wait()
}

// Submit queues one relay transaction and waits for it to be signed and
// sent. Only the submission is serialized; waiting for the receipt happens
// on the caller's side so the queue stays free for the next transfer.
func (s *Submitter) Submit(ctx context.Context, method string, user common.Address, amount *big.Int) (*types.Transaction, error) {
	req := &relayRequest{
		method: method,
		user:   user,
		amount: amount,
		ctx:    ctx,
		result: make(chan relayResult, 1),
	}

	select {
	case s.requests <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-req.result:
		return res.tx, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// WaitForReceipt delegates to the chain client.
func (s *Submitter) WaitForReceipt(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	return s.client.WaitForReceipt(ctx, tx)
}
