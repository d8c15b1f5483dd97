package types

import (
	"cmp"
	"fmt"
	"math/big"
	"slices"
)

// Names of the events emitted by the ledger.
const (
	EventRegistered     = "Registered"
	EventFundsWithdrawn = "FundsWithdrawn"
)

// Key is the total order of ledger events: block height, then position
// within the block. Timestamps never take part in ordering.
type Key struct {
	Block uint64
	Index uint32
}

func (k Key) Compare(other Key) int {
	if c := cmp.Compare(k.Block, other.Block); c != 0 {
		return c
	}
	return cmp.Compare(k.Index, other.Index)
}

func (k Key) Less(other Key) bool {
	return k.Compare(other) < 0
}

func (k Key) String() string {
	return fmt.Sprintf("%d:%d", k.Block, k.Index)
}

// Log is a single event as delivered by a ledger gateway.
type Log struct {
	Event   string   `json:"event"`
	Subject Address  `json:"subject"`
	Time    uint64   `json:"time"`
	Amount  *big.Int `json:"amount,omitempty"`

	BlockNumber uint64 `json:"blockNumber"`
	LogIndex    uint32 `json:"logIndex"`
	BlockHash   []byte `json:"blockHash,omitempty"`

	// Removed is set when a previously delivered log was dropped by a
	// chain reorganization.
	Removed bool `json:"removed,omitempty"`
}

func (l *Log) Key() Key {
	return Key{Block: l.BlockNumber, Index: l.LogIndex}
}

// SortLogs orders logs by Key, ascending.
func SortLogs(logs []Log) {
	slices.SortFunc(logs, func(a, b Log) int {
		return a.Key().Compare(b.Key())
	})
}

// Receipt confirms the inclusion of a transaction.
type Receipt struct {
	TxID   string `json:"txId"`
	Height uint64 `json:"height"`
	Logs   []Log  `json:"logs"`
}
