package synchronizer

import (
	"bytes"
	"slices"

	"github.com/eventreg/eventreg/types"
)

// Entry is a participant as seen by the projection.
type Entry struct {
	Address types.Address `json:"address"`
	// Key of the earliest live registration event of Address.
	Key  types.Key `json:"key"`
	Time uint64    `json:"time"`
	// Confirmed is set once the event is deep enough below the head.
	Confirmed bool `json:"confirmed"`
}

// Delta is the identity level effect of applying or retracting events.
// Consumers apply Removed before Added: when a block is replaced the same
// address can be removed and added back in one Delta.
type Delta struct {
	Added   []Entry
	Removed []types.Address
}

func (d Delta) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}

func (d Delta) merge(other Delta) Delta {
	return Delta{
		Added:   append(d.Added, other.Added...),
		Removed: append(d.Removed, other.Removed...),
	}
}

// Projection is the client side view of the Registered events.
// It is not safe for concurrent use; the synchronizer owns it from a single
// goroutine.
type Projection struct {
	events map[types.Key]types.Log
	byAddr map[types.Address]map[types.Key]struct{}
	// tombstones remember the block hash of retracted events so that a late
	// redelivery of the same event does not resurrect it.
	tombstones map[types.Key][]byte

	watermark    types.Key
	hasWatermark bool
}

func NewProjection() *Projection {
	return &Projection{
		events:     make(map[types.Key]types.Log),
		byAddr:     make(map[types.Address]map[types.Key]struct{}),
		tombstones: make(map[types.Key][]byte),
	}
}

// Apply adds a Registered event. It reports whether the set of events
// changed; applying an event whose key was already applied is a no-op.
func (p *Projection) Apply(lg types.Log) (Delta, bool) {
	if lg.Event != types.EventRegistered || lg.Removed {
		return Delta{}, false
	}
	key := lg.Key()
	if cur, ok := p.events[key]; ok {
		if sameBlock(cur.BlockHash, lg.BlockHash) {
			return Delta{}, false
		}
		// Same position in a different block: the block was replaced.
		removed, _ := p.Retract(key)
		delete(p.tombstones, key)
		return removed.merge(p.apply(lg)), true
	}
	if hash, ok := p.tombstones[key]; ok {
		// Without a hash on either side the redelivery cannot be told apart
		// from the retracted event, so the tombstone stays.
		if sameBlock(hash, lg.BlockHash) {
			return Delta{}, false
		}
		delete(p.tombstones, key)
	}
	return p.apply(lg), true
}

func (p *Projection) apply(lg types.Log) Delta {
	key := lg.Key()
	p.events[key] = lg
	keys, ok := p.byAddr[lg.Subject]
	if !ok {
		keys = make(map[types.Key]struct{})
		p.byAddr[lg.Subject] = keys
	}
	keys[key] = struct{}{}
	if !p.hasWatermark || p.watermark.Less(key) {
		p.watermark = key
		p.hasWatermark = true
	}
	if len(keys) > 1 {
		return Delta{}
	}
	return Delta{Added: []Entry{{Address: lg.Subject, Key: key, Time: lg.Time}}}
}

// Retract removes the event with the given key. Retracting an absent event
// is a no-op. The identity stays present while another of its events does.
func (p *Projection) Retract(key types.Key) (Delta, bool) {
	lg, ok := p.events[key]
	if !ok {
		return Delta{}, false
	}
	delete(p.events, key)
	p.tombstones[key] = lg.BlockHash
	keys := p.byAddr[lg.Subject]
	delete(keys, key)
	if len(keys) > 0 {
		return Delta{}, true
	}
	delete(p.byAddr, lg.Subject)
	return Delta{Removed: []types.Address{lg.Subject}}, true
}

// Remove handles a removal notice for lg. Unlike Retract it also remembers
// the removal when the event has not been seen yet.
func (p *Projection) Remove(lg types.Log) (Delta, bool) {
	key := lg.Key()
	if cur, ok := p.events[key]; ok && !sameBlock(cur.BlockHash, lg.BlockHash) {
		// The notice is about a block that is no longer the applied one.
		return Delta{}, false
	}
	delta, changed := p.Retract(key)
	if !changed && len(lg.BlockHash) > 0 {
		p.tombstones[key] = lg.BlockHash
	}
	return delta, changed
}

func (p *Projection) Contains(addr types.Address) bool {
	_, ok := p.byAddr[addr]
	return ok
}

// Count is the number of distinct participants.
func (p *Projection) Count() int {
	return len(p.byAddr)
}

// Watermark is the highest key applied so far. The second value is false
// before anything was applied.
func (p *Projection) Watermark() (types.Key, bool) {
	return p.watermark, p.hasWatermark
}

// Participants returns one entry per identity, ordered by key.
func (p *Projection) Participants() []Entry {
	entries := make([]Entry, 0, len(p.byAddr))
	for addr, keys := range p.byAddr {
		var first types.Key
		initialized := false
		for key := range keys {
			if !initialized || key.Less(first) {
				first = key
				initialized = true
			}
		}
		entries = append(entries, Entry{Address: addr, Key: first, Time: p.events[first].Time})
	}
	slices.SortFunc(entries, func(a, b Entry) int {
		return a.Key.Compare(b.Key)
	})
	return entries
}

// Snapshot returns the participants with the confirmation label for the
// given head.
func (p *Projection) Snapshot(head, confirmations uint64) Snapshot {
	entries := p.Participants()
	for i := range entries {
		entries[i].Confirmed = isConfirmed(entries[i].Key, head, confirmations)
	}
	return Snapshot{
		Head:         head,
		Watermark:    p.watermark,
		HasWatermark: p.hasWatermark,
		Participants: entries,
	}
}

func isConfirmed(key types.Key, head, confirmations uint64) bool {
	return head >= key.Block && head-key.Block >= confirmations
}

// KeysBetween returns the keys of applied events in blocks [from, to].
func (p *Projection) KeysBetween(from, to uint64) []types.Key {
	var keys []types.Key
	for key := range p.events {
		if key.Block >= from && key.Block <= to {
			keys = append(keys, key)
		}
	}
	return keys
}

func sameBlock(a, b []byte) bool {
	if len(a) == 0 || len(b) == 0 {
		return true
	}
	return bytes.Equal(a, b)
}
