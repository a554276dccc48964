package db

import (
	"errors"
	"time"
)

var (
	// ErrEventNotFound is returned when a bridge event does not exist
	ErrEventNotFound = errors.New("bridge event not found")
	// ErrEventExists is returned when an event with the same txHash already exists
	ErrEventExists = errors.New("bridge event already exists")
	// ErrProgressNotFound is returned when a scan cursor does not exist
	ErrProgressNotFound = errors.New("scan progress not found")
)

// Chain names used across the relayer.
const (
	ChainJU  = "JU"
	ChainBSC = "BSC"
)

// Asset names used across the relayer.
const (
	AssetJU  = "JU"
	AssetWOW = "WOW"
)

// Event lifecycle statuses. LOCKED and BURNED are originating states,
// MINTED and UNLOCKED are terminal, ERROR is retryable while relayed is false.
const (
	StatusLocked   = "LOCKED"
	StatusMinted   = "MINTED"
	StatusBurned   = "BURNED"
	StatusUnlocked = "UNLOCKED"
	StatusError    = "ERROR"
)

// BridgeEvent is one observed bridge contract event and its relay state.
// Amount is a base-10 decimal string in the asset's smallest unit.
type BridgeEvent struct {
	ID           int64
	Asset        string
	FromChain    string
	ToChain      string
	EventName    string
	Status       string
	UserAddress  string
	Amount       string
	TxHash       string
	BlockNumber  uint64
	ChainID      int64
	Relayed      bool
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsTerminal reports whether the event reached a state that must not be
// reprocessed.
func (e *BridgeEvent) IsTerminal() bool {
	switch e.Status {
	case StatusMinted, StatusUnlocked:
		return true
	}
	return e.Status == StatusError && e.Relayed
}

// ScanProgress is the durable cursor for one (chain, asset, eventType) track.
type ScanProgress struct {
	ID                 int64
	Chain              string
	Asset              string
	EventType          string
	LastProcessedBlock uint64
	FullyCaughtUp      bool
	UpdatedAt          time.Time
}
