package dao

import (
	"time"

	"github.com/uptrace/bun"
)

// BridgeEvent is the bun row for the bridge_events table.
type BridgeEvent struct {
	bun.BaseModel `bun:"table:bridge_events"`

	ID           int64     `bun:"id,pk,autoincrement"`
	Asset        string    `bun:"asset,notnull"`
	FromChain    string    `bun:"from_chain,notnull"`
	ToChain      string    `bun:"to_chain,notnull"`
	EventName    string    `bun:"event_name,notnull"`
	Status       string    `bun:"status,notnull"`
	UserAddress  string    `bun:"user_address,notnull"`
	Amount       string    `bun:"amount,type:numeric(78,0),notnull"`
	TxHash       string    `bun:"tx_hash,notnull,unique"`
	BlockNumber  uint64    `bun:"block_number,notnull"`
	ChainID      int64     `bun:"chain_id,notnull"`
	Relayed      bool      `bun:"relayed,notnull,default:false"`
	ErrorMessage string    `bun:"error_message,nullzero"`
	CreatedAt    time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
