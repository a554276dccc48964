package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/juchain-labs/bridge-relayer/pkg/db/dao"
)

// Store persists bridge events and scan cursors in Postgres.
type Store struct {
	db *bun.DB
}

// NewStore creates a store backed by the given bun DB handle.
func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for migrations and health checks.
func (s *Store) DB() *bun.DB {
	return s.db
}

// CreateEvent inserts a new bridge event. If an event with the same txHash
// already exists it returns ErrEventExists and writes nothing.
func (s *Store) CreateEvent(ctx context.Context, event *BridgeEvent) error {
	row := eventFromDomain(event)
	_, err := s.db.NewInsert().Model(row).Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEventExists
		}
		return fmt.Errorf("failed to insert bridge event: %w", err)
	}
	event.ID = row.ID
	return nil
}

// GetEventByTxHash loads a single event by its originating transaction hash.
func (s *Store) GetEventByTxHash(ctx context.Context, txHash string) (*BridgeEvent, error) {
	row := new(dao.BridgeEvent)
	err := s.db.NewSelect().
		Model(row).
		Where("tx_hash = ?", txHash).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to get bridge event: %w", err)
	}
	return eventToDomain(row), nil
}

// MarkRelayed moves an event to its terminal status after a confirmed relay.
func (s *Store) MarkRelayed(ctx context.Context, txHash, status string) error {
	res, err := s.db.NewUpdate().
		Model((*dao.BridgeEvent)(nil)).
		Set("status = ?", status).
		Set("relayed = TRUE").
		Set("error_message = NULL").
		Set("updated_at = CURRENT_TIMESTAMP").
		Where("tx_hash = ?", txHash).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to mark event relayed: %w", err)
	}
	return requireRowsAffected(res)
}

// MarkError records a relay failure. The event stays eligible for the
// error sweep because relayed remains false.
func (s *Store) MarkError(ctx context.Context, txHash, message string) error {
	res, err := s.db.NewUpdate().
		Model((*dao.BridgeEvent)(nil)).
		Set("status = ?", StatusError).
		Set("error_message = ?", message).
		Set("updated_at = CURRENT_TIMESTAMP").
		Where("tx_hash = ?", txHash).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to mark event errored: %w", err)
	}
	return requireRowsAffected(res)
}

// ListEvents returns all bridge events, newest first.
func (s *Store) ListEvents(ctx context.Context) ([]*BridgeEvent, error) {
	var rows []*dao.BridgeEvent
	err := s.db.NewSelect().
		Model(&rows).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list bridge events: %w", err)
	}
	return eventsToDomain(rows), nil
}

// ListEventsByUser returns events for one user address, newest first.
// The match is case-insensitive.
func (s *Store) ListEventsByUser(ctx context.Context, address string) ([]*BridgeEvent, error) {
	var rows []*dao.BridgeEvent
	err := s.db.NewSelect().
		Model(&rows).
		Where("LOWER(user_address) = ?", strings.ToLower(address)).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list bridge events by user: %w", err)
	}
	return eventsToDomain(rows), nil
}

// ListRetryableEvents returns events that failed to relay and are still
// eligible for a retry, oldest first.
func (s *Store) ListRetryableEvents(ctx context.Context) ([]*BridgeEvent, error) {
	var rows []*dao.BridgeEvent
	err := s.db.NewSelect().
		Model(&rows).
		Where("status = ?", StatusError).
		Where("relayed = FALSE").
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list retryable events: %w", err)
	}
	return eventsToDomain(rows), nil
}

// GetOrInitProgress returns the cursor for (chain, asset, eventType),
// creating it at initBlock if it does not exist yet. Concurrent callers
// converge on a single row.
func (s *Store) GetOrInitProgress(ctx context.Context, chain, asset, eventType string, initBlock uint64) (*ScanProgress, error) {
	seed := &dao.ScanProgress{
		Chain:              chain,
		Asset:              asset,
		EventType:          eventType,
		LastProcessedBlock: initBlock,
	}
	_, err := s.db.NewInsert().
		Model(seed).
		On("CONFLICT (chain, asset, event_type) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to init scan progress: %w", err)
	}

	row := new(dao.ScanProgress)
	err = s.db.NewSelect().
		Model(row).
		Where("chain = ?", chain).
		Where("asset = ?", asset).
		Where("event_type = ?", eventType).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get scan progress: %w", err)
	}
	return progressToDomain(row), nil
}

// AdvanceProgress moves the cursor for (chain, asset, eventType) to block
// and marks the track caught up. The cursor row is created if missing.
func (s *Store) AdvanceProgress(ctx context.Context, chain, asset, eventType string, block uint64) error {
	row := &dao.ScanProgress{
		Chain:              chain,
		Asset:              asset,
		EventType:          eventType,
		LastProcessedBlock: block,
		FullyCaughtUp:      true,
	}
	_, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (chain, asset, event_type) DO UPDATE").
		Set("last_processed_block = EXCLUDED.last_processed_block").
		Set("fully_caught_up = EXCLUDED.fully_caught_up").
		Set("updated_at = CURRENT_TIMESTAMP").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to advance scan progress: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.IntegrityViolation()
}

func requireRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ErrEventNotFound
	}
	return nil
}

func eventFromDomain(e *BridgeEvent) *dao.BridgeEvent {
	return &dao.BridgeEvent{
		ID:           e.ID,
		Asset:        e.Asset,
		FromChain:    e.FromChain,
		ToChain:      e.ToChain,
		EventName:    e.EventName,
		Status:       e.Status,
		UserAddress:  e.UserAddress,
		Amount:       e.Amount,
		TxHash:       e.TxHash,
		BlockNumber:  e.BlockNumber,
		ChainID:      e.ChainID,
		Relayed:      e.Relayed,
		ErrorMessage: e.ErrorMessage,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
}

func eventToDomain(row *dao.BridgeEvent) *BridgeEvent {
	return &BridgeEvent{
		ID:           row.ID,
		Asset:        row.Asset,
		FromChain:    row.FromChain,
		ToChain:      row.ToChain,
		EventName:    row.EventName,
		Status:       row.Status,
		UserAddress:  row.UserAddress,
		Amount:       row.Amount,
		TxHash:       row.TxHash,
		BlockNumber:  row.BlockNumber,
		ChainID:      row.ChainID,
		Relayed:      row.Relayed,
		ErrorMessage: row.ErrorMessage,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
}

func eventsToDomain(rows []*dao.BridgeEvent) []*BridgeEvent {
	events := make([]*BridgeEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, eventToDomain(row))
	}
	return events
}

func progressToDomain(row *dao.ScanProgress) *ScanProgress {
	return &ScanProgress{
		ID:                 row.ID,
		Chain:              row.Chain,
		Asset:              row.Asset,
		EventType:          row.EventType,
		LastProcessedBlock: row.LastProcessedBlock,
		FullyCaughtUp:      row.FullyCaughtUp,
		UpdatedAt:          row.UpdatedAt,
	}
}
