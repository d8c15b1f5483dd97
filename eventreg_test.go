package main

import (
	"context"
	"crypto/ed25519"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"

	"github.com/eventreg/eventreg/ledger"
	"github.com/eventreg/eventreg/logging"
	"github.com/eventreg/eventreg/server"
	"github.com/eventreg/eventreg/session"
	"github.com/eventreg/eventreg/synchronizer"
	"github.com/eventreg/eventreg/transport"
	"github.com/eventreg/eventreg/types"
)

func TestNodeArgs(t *testing.T) {
	require.Equal(t, []string{"--fee", "1"}, nodeArgs([]string{"--debuglog", "node", "--fee", "1"}))
	require.Empty(t, nodeArgs([]string{"node"}))
	require.Nil(t, nodeArgs([]string{"watch"}))
}

func TestKeygenAndLoadKey(t *testing.T) {
	out := filepath.Join(t.TempDir(), "key")
	require.NoError(t, (&keygenCommand{Out: out}).Execute(nil))

	info, err := os.Stat(out)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	fromFile, err := loadKey(out)
	require.NoError(t, err)
	require.Len(t, fromFile, ed25519.PrivateKeySize)

	inline, err := loadKey(server.EncodeKey(fromFile))
	require.NoError(t, err)
	require.Equal(t, fromFile, inline)

	_, err = loadKey(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}

func TestWatchOptions(t *testing.T) {
	cmd := newWatchCommand()
	_, err := flags.ParseArgs(cmd, []string{"--node-url", "http://node:8545", "--window", "100", "--full-range"})
	require.NoError(t, err)
	require.Equal(t, "http://node:8545", cmd.Client.NodeURL)
	require.Equal(t, uint64(100), cmd.Synchronizer.Window)
	require.True(t, cmd.Synchronizer.FullRange)
	require.Equal(t, uint64(synchronizer.DefaultConfirmations), cmd.Synchronizer.Confirmations)
}

func TestTxBridgeOptions(t *testing.T) {
	o := newTxOptions()
	require.Empty(t, o.bridgeOptions())
	o.ExpectedChain = 5
	require.Len(t, o.bridgeOptions(), 1)
}

type snapshots struct {
	mu  sync.Mutex
	all []synchronizer.Snapshot
}

func (s *snapshots) Snapshot(snap synchronizer.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.all = append(s.all, snap)
}

func (s *snapshots) Delta(synchronizer.Delta)   {}
func (s *snapshots) Status(synchronizer.Status) {}

func (s *snapshots) sawEmpty(chainID uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, snap := range s.all {
		if snap.ChainID == chainID && len(snap.Participants) == 0 {
			return true
		}
	}
	return false
}

func TestChainChangeOnBridgeResetsProjection(t *testing.T) {
	ctx := logging.NewContext(context.Background(), zaptest.NewLogger(t))
	l, err := ledger.New(ctx, t.TempDir(), ledger.WithOwner(types.Address{0xff}))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, l.Close()) })
	_, err = l.Register(ctx, types.Address{1}, l.RegistrationFee())
	require.NoError(t, err)

	gateway := transport.NewInMemory(l)
	_, key, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	bridge := session.NewBridge(session.NewKeyWallet(key, gateway.ChainID))

	ctx, cancel := context.WithCancel(ctx)
	changes := bridge.Watch(ctx)
	require.NoError(t, bridge.Connect(ctx))

	cfg := synchronizer.DefaultConfig()
	cfg.Confirmations = 0
	rec := &snapshots{}
	s := synchronizer.New(gateway, rec, synchronizer.WithConfig(cfg), synchronizer.WithChainID(l.ChainID()))

	var eg errgroup.Group
	eg.Go(func() error { return s.Run(ctx) })
	eg.Go(func() error { return resetOnChainChange(ctx, changes, s) })
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, eg.Wait())
	})
	require.Eventually(t, func() bool { return s.Count() == 1 }, 5*time.Second, 5*time.Millisecond)

	const next = 77
	bridge.ChainChanged(next)
	require.Eventually(t, func() bool { return rec.sawEmpty(next) }, 5*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return s.Snapshot().ChainID == next }, 5*time.Second, 5*time.Millisecond)
	// The new generation catches up again from the same ledger.
	require.Eventually(t, func() bool { return s.Count() == 1 }, 5*time.Second, 5*time.Millisecond)
}
