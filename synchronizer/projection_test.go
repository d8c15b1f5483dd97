package synchronizer_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eventreg/eventreg/synchronizer"
	"github.com/eventreg/eventreg/types"
)

func registered(addr byte, block uint64, index uint32) types.Log {
	return types.Log{
		Event:       types.EventRegistered,
		Subject:     types.Address{addr},
		Time:        1000 + block,
		BlockNumber: block,
		LogIndex:    index,
		BlockHash:   []byte{byte(block), 0xaa},
	}
}

func addresses(entries []synchronizer.Entry) []types.Address {
	var out []types.Address
	for _, e := range entries {
		out = append(out, e.Address)
	}
	return out
}

func TestApplyIsIdempotent(t *testing.T) {
	p := synchronizer.NewProjection()
	lg := registered(1, 5, 0)

	delta, changed := p.Apply(lg)
	require.True(t, changed)
	require.Len(t, delta.Added, 1)
	once := p.Participants()

	delta, changed = p.Apply(lg)
	require.False(t, changed)
	require.True(t, delta.Empty())
	require.Equal(t, once, p.Participants())
	require.Equal(t, 1, p.Count())

	wm, ok := p.Watermark()
	require.True(t, ok)
	require.Equal(t, types.Key{Block: 5, Index: 0}, wm)
}

func TestIgnoresOtherEvents(t *testing.T) {
	p := synchronizer.NewProjection()
	_, changed := p.Apply(types.Log{Event: types.EventFundsWithdrawn, Subject: types.Address{1}, BlockNumber: 1})
	require.False(t, changed)
	require.Zero(t, p.Count())
	_, ok := p.Watermark()
	require.False(t, ok)
}

func TestParticipantsAreOrderedByKey(t *testing.T) {
	p := synchronizer.NewProjection()
	p.Apply(registered(3, 9, 1))
	p.Apply(registered(1, 2, 0))
	p.Apply(registered(2, 9, 0))

	require.Equal(t, []types.Address{{1}, {2}, {3}}, addresses(p.Participants()))
}

func TestWatermarkDoesNotRegress(t *testing.T) {
	p := synchronizer.NewProjection()
	p.Apply(registered(1, 10, 2))
	p.Apply(registered(2, 4, 0))

	wm, _ := p.Watermark()
	require.Equal(t, types.Key{Block: 10, Index: 2}, wm)
}

func TestRetract(t *testing.T) {
	t.Run("removes the identity", func(t *testing.T) {
		p := synchronizer.NewProjection()
		lg := registered(1, 5, 0)
		p.Apply(lg)

		delta, changed := p.Retract(lg.Key())
		require.True(t, changed)
		require.Equal(t, []types.Address{{1}}, delta.Removed)
		require.False(t, p.Contains(types.Address{1}))
		require.Zero(t, p.Count())
	})
	t.Run("absent event is a no-op", func(t *testing.T) {
		p := synchronizer.NewProjection()
		p.Apply(registered(1, 5, 0))

		_, changed := p.Retract(types.Key{Block: 6})
		require.False(t, changed)
		require.Equal(t, 1, p.Count())
	})
	t.Run("twice is a no-op", func(t *testing.T) {
		p := synchronizer.NewProjection()
		lg := registered(1, 5, 0)
		p.Apply(lg)
		p.Retract(lg.Key())

		delta, changed := p.Retract(lg.Key())
		require.False(t, changed)
		require.True(t, delta.Empty())
	})
	t.Run("identity kept by another event", func(t *testing.T) {
		p := synchronizer.NewProjection()
		first := registered(1, 5, 0)
		second := registered(1, 7, 3)
		p.Apply(first)
		delta, changed := p.Apply(second)
		require.True(t, changed)
		require.True(t, delta.Empty(), "second event of a present identity adds nothing")

		delta, changed = p.Retract(first.Key())
		require.True(t, changed)
		require.True(t, delta.Empty())
		require.True(t, p.Contains(types.Address{1}))

		entries := p.Participants()
		require.Len(t, entries, 1)
		require.Equal(t, second.Key(), entries[0].Key)
	})
	t.Run("redelivery does not resurrect", func(t *testing.T) {
		p := synchronizer.NewProjection()
		lg := registered(1, 5, 0)
		p.Apply(lg)
		p.Retract(lg.Key())

		_, changed := p.Apply(lg)
		require.False(t, changed)
		require.False(t, p.Contains(types.Address{1}))
	})
	t.Run("redelivery without block hash does not resurrect", func(t *testing.T) {
		p := synchronizer.NewProjection()
		lg := registered(1, 5, 0)
		lg.BlockHash = nil
		p.Apply(lg)
		p.Retract(lg.Key())

		_, changed := p.Apply(lg)
		require.False(t, changed)
		require.False(t, p.Contains(types.Address{1}))

		hashed := registered(1, 5, 0)
		_, changed = p.Apply(hashed)
		require.False(t, changed)
	})
	t.Run("event from the replacing block is applied", func(t *testing.T) {
		p := synchronizer.NewProjection()
		lg := registered(1, 5, 0)
		p.Apply(lg)
		p.Retract(lg.Key())

		replaced := lg
		replaced.BlockHash = []byte{5, 0xbb}
		_, changed := p.Apply(replaced)
		require.True(t, changed)
		require.True(t, p.Contains(types.Address{1}))
	})
}

func TestRemove(t *testing.T) {
	t.Run("notice before the event", func(t *testing.T) {
		p := synchronizer.NewProjection()
		lg := registered(1, 5, 0)
		removed := lg
		removed.Removed = true

		_, changed := p.Remove(removed)
		require.False(t, changed)
		_, changed = p.Apply(lg)
		require.False(t, changed)
		require.Zero(t, p.Count())
	})
	t.Run("notice about a replaced block is ignored", func(t *testing.T) {
		p := synchronizer.NewProjection()
		lg := registered(1, 5, 0)
		p.Apply(lg)

		stale := lg
		stale.BlockHash = []byte{5, 0xcc}
		stale.Removed = true
		_, changed := p.Remove(stale)
		require.False(t, changed)
		require.True(t, p.Contains(types.Address{1}))
	})
}

func TestSameKeyDifferentBlockReplaces(t *testing.T) {
	p := synchronizer.NewProjection()
	p.Apply(registered(1, 5, 0))

	other := registered(2, 5, 0)
	other.BlockHash = []byte{5, 0xbb}
	delta, changed := p.Apply(other)
	require.True(t, changed)
	require.Equal(t, []types.Address{{1}}, delta.Removed)
	require.Len(t, delta.Added, 1)
	require.Equal(t, []types.Address{{2}}, addresses(p.Participants()))
}

func TestReplacedBlockRemovesBeforeAdding(t *testing.T) {
	p := synchronizer.NewProjection()
	p.Apply(registered(1, 5, 0))

	// The replacing block registers the same address at the same position.
	same := registered(1, 5, 0)
	same.BlockHash = []byte{5, 0xbb}
	delta, changed := p.Apply(same)
	require.True(t, changed)
	require.Equal(t, []types.Address{{1}}, delta.Removed)
	require.Equal(t, []types.Address{{1}}, addresses(delta.Added))
	require.True(t, p.Contains(types.Address{1}))
}

func TestSnapshotConfirmations(t *testing.T) {
	p := synchronizer.NewProjection()
	p.Apply(registered(1, 10, 0))
	p.Apply(registered(2, 18, 0))

	snap := p.Snapshot(20, 5)
	require.Equal(t, uint64(20), snap.Head)
	require.True(t, snap.HasWatermark)
	require.Len(t, snap.Participants, 2)
	require.True(t, snap.Participants[0].Confirmed)
	require.False(t, snap.Participants[1].Confirmed)

	for _, e := range p.Snapshot(20, 0).Participants {
		require.True(t, e.Confirmed)
	}
}

func TestKeysBetween(t *testing.T) {
	p := synchronizer.NewProjection()
	for i := uint64(1); i <= 5; i++ {
		p.Apply(registered(byte(i), i, 0))
	}
	require.ElementsMatch(t, []types.Key{{Block: 2}, {Block: 3}, {Block: 4}}, p.KeysBetween(2, 4))
}
