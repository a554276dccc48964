package dao

import (
	"time"

	"github.com/uptrace/bun"
)

// ScanProgress is the bun row for the scan_progress table. The
// (chain, asset, event_type) triple carries a unique index.
type ScanProgress struct {
	bun.BaseModel `bun:"table:scan_progress"`

	ID                 int64     `bun:"id,pk,autoincrement"`
	Chain              string    `bun:"chain,notnull"`
	Asset              string    `bun:"asset,notnull"`
	EventType          string    `bun:"event_type,notnull"`
	LastProcessedBlock uint64    `bun:"last_processed_block,notnull,default:0"`
	FullyCaughtUp      bool      `bun:"fully_caught_up,notnull,default:false"`
	UpdatedAt          time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
