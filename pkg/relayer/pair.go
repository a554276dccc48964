package relayer

import (
	"github.com/juchain-labs/bridge-relayer/pkg/db"
	"github.com/juchain-labs/bridge-relayer/pkg/ethereum"
)

// AssetPair describes one bridged asset: the chain it is native to, the
// chain carrying its wrapped token, and the event/method names on the two
// bridge contracts.
type AssetPair struct {
	Asset        string
	NativeChain  string
	WrappedChain string

	// Events on the native chain bridge.
	LockEvent   string // originating: user locked the native asset
	UnlockEvent string // confirmation: relayer released the native asset

	// Events on the wrapped chain bridge.
	BurnEvent string // originating: user burned the wrapped token
	MintEvent string // confirmation: relayer minted the wrapped token

	// Relay methods the processor invokes.
	MintMethod   string // on the wrapped chain, answers LockEvent
	UnlockMethod string // on the native chain, answers BurnEvent
}

// Route describes how one event name maps onto a transfer: its direction,
// the status it carries, and (for originating events) the relay to perform.
type Route struct {
	Asset         string
	FromChain     string
	ToChain       string
	ObservedChain string // chain the event is emitted on
	Status        string // status recorded at ingestion
	Originating   bool

	// Set only when Originating.
	RelayChain    string
	RelayMethod   string
	SuccessStatus string
}

// DefaultPairs returns the two production asset tracks: the JU coin
// (native on JuChain, wrapped Wju on BSC) and the WOW token (native on
// BSC, wrapped Wwow on JuChain).
func DefaultPairs() []AssetPair {
	return []AssetPair{
		{
			Asset:        db.AssetJU,
			NativeChain:  db.ChainJU,
			WrappedChain: db.ChainBSC,
			LockEvent:    ethereum.EventJuCoinLocked,
			UnlockEvent:  ethereum.EventJuCoinUnlocked,
			BurnEvent:    ethereum.EventWjuBurned,
			MintEvent:    ethereum.EventWjuMinted,
			MintMethod:   ethereum.MethodMintWju,
			UnlockMethod: ethereum.MethodUnlockJuCoin,
		},
		{
			Asset:        db.AssetWOW,
			NativeChain:  db.ChainBSC,
			WrappedChain: db.ChainJU,
			LockEvent:    ethereum.EventWowLocked,
			UnlockEvent:  ethereum.EventWowUnlocked,
			BurnEvent:    ethereum.EventWwowBurned,
			MintEvent:    ethereum.EventWwowMinted,
			MintMethod:   ethereum.MethodMintWwow,
			UnlockMethod: ethereum.MethodUnlockWow,
		},
	}
}

// Chains returns the two chains this pair spans.
func (p AssetPair) Chains() []string {
	return []string{p.NativeChain, p.WrappedChain}
}

// EventsOn returns the event names this pair emits on the given chain.
func (p AssetPair) EventsOn(chain string) []string {
	switch chain {
	case p.NativeChain:
		return []string{p.LockEvent, p.UnlockEvent}
	case p.WrappedChain:
		return []string{p.BurnEvent, p.MintEvent}
	}
	return nil
}

// Route resolves an event name observed on this pair into its transfer
// semantics. The second return is false for event names the pair does not
// know.
func (p AssetPair) Route(event string) (Route, bool) {
	switch event {
	case p.LockEvent:
		return Route{
			Asset:         p.Asset,
			FromChain:     p.NativeChain,
			ToChain:       p.WrappedChain,
			ObservedChain: p.NativeChain,
			Status:        db.StatusLocked,
			Originating:   true,
			RelayChain:    p.WrappedChain,
			RelayMethod:   p.MintMethod,
			SuccessStatus: db.StatusMinted,
		}, true
	case p.BurnEvent:
		return Route{
			Asset:         p.Asset,
			FromChain:     p.WrappedChain,
			ToChain:       p.NativeChain,
			ObservedChain: p.WrappedChain,
			Status:        db.StatusBurned,
			Originating:   true,
			RelayChain:    p.NativeChain,
			RelayMethod:   p.UnlockMethod,
			SuccessStatus: db.StatusUnlocked,
		}, true
	case p.UnlockEvent:
		return Route{
			Asset:         p.Asset,
			FromChain:     p.WrappedChain,
			ToChain:       p.NativeChain,
			ObservedChain: p.NativeChain,
			Status:        db.StatusUnlocked,
		}, true
	case p.MintEvent:
		return Route{
			Asset:         p.Asset,
			FromChain:     p.NativeChain,
			ToChain:       p.WrappedChain,
			ObservedChain: p.WrappedChain,
			Status:        db.StatusMinted,
		}, true
	}
	return Route{}, false
}

// PairForEvent finds the pair and route matching an event name.
func PairForEvent(pairs []AssetPair, event string) (AssetPair, Route, bool) {
	for _, pair := range pairs {
		if route, ok := pair.Route(event); ok {
			return pair, route, true
		}
	}
	return AssetPair{}, Route{}, false
}
