package server_test

// End to end tests running a ledger node and interacting with it over its
// HTTP API.

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"

	"github.com/eventreg/eventreg/logging"
	"github.com/eventreg/eventreg/presenter"
	"github.com/eventreg/eventreg/rpc/client"
	"github.com/eventreg/eventreg/server"
	"github.com/eventreg/eventreg/session"
	"github.com/eventreg/eventreg/signing"
	"github.com/eventreg/eventreg/synchronizer"
	"github.com/eventreg/eventreg/types"
)

const randomHost = "localhost:0"

func spawnNode(ctx context.Context, t *testing.T, cfg server.Config) (*server.Server, *client.Client) {
	t.Helper()
	req := require.New(t)

	_, err := server.SetupConfig(&cfg)
	req.NoError(err)

	srv, err := server.New(ctx, cfg)
	req.NoError(err)
	t.Cleanup(func() { assert.NoError(t, srv.Close()) })

	clientCfg := client.DefaultConfig()
	clientCfg.RetryMax = 1
	clientCfg.RetryWaitMin = time.Millisecond
	clientCfg.RetryWaitMax = time.Millisecond
	c, err := client.New(
		fmt.Sprintf("http://%s", srv.HTTPAddr()),
		client.WithConfig(clientCfg),
		client.WithLogger(zaptest.NewLogger(t)),
	)
	req.NoError(err)
	t.Cleanup(func() { assert.NoError(t, c.Close()) })

	return srv, c
}

func testConfig(t *testing.T) server.Config {
	cfg := server.DefaultConfig()
	cfg.BaseDir = t.TempDir()
	cfg.RawHTTPListener = randomHost
	cfg.Ledger.BlockInterval = 10 * time.Millisecond
	return *cfg
}

func start(ctx context.Context, t *testing.T, srv *server.Server) {
	ctx, cancel := context.WithCancel(ctx)
	var eg errgroup.Group
	eg.Go(func() error { return srv.Start(ctx) })
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, eg.Wait())
	})
}

// Test node startup.
func TestNodeStart(t *testing.T) {
	t.Parallel()
	ctx := logging.NewContext(context.Background(), zaptest.NewLogger(t))

	srv, c := spawnNode(ctx, t, testConfig(t))
	start(ctx, t, srv)

	info, err := c.Info(ctx)
	require.NoError(t, err)
	require.Equal(t, srv.Owner(), info.Owner)
	require.Equal(t, srv.Ledger().RegistrationFee(), info.Fee)
	require.Zero(t, info.ParticipantCount)
}

// Test registering and withdrawing through a session backed by the node.
func TestRegisterAndWithdraw(t *testing.T) {
	t.Parallel()
	ctx := logging.NewContext(context.Background(), zaptest.NewLogger(t))

	srv, c := spawnNode(ctx, t, testConfig(t))
	start(ctx, t, srv)

	watcher := synchronizer.New(
		c,
		presenter.New(zaptest.NewLogger(t)),
		synchronizer.WithChainID(srv.Ledger().ChainID()),
	)
	var eg errgroup.Group
	syncCtx, stop := context.WithCancel(ctx)
	eg.Go(func() error { return watcher.Run(syncCtx) })
	t.Cleanup(func() {
		stop()
		assert.NoError(t, eg.Wait())
	})

	_, key, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	wallet := session.NewKeyWallet(key, c.ChainID)
	observer := presenter.New(zaptest.NewLogger(t))
	bridge := session.NewBridge(wallet)
	require.NoError(t, bridge.Connect(ctx))
	user := session.New(bridge, wallet, c, observer)
	receipt, err := user.Register(ctx)
	require.NoError(t, err)
	require.Len(t, receipt.Logs, 1)

	require.Eventually(t, func() bool { return watcher.Count() == 1 }, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, wallet.Address(), watcher.Snapshot().Participants[0].Address)

	_, err = user.Withdraw(ctx)
	require.ErrorIs(t, err, types.ErrUnauthorized)

	owner := session.NewKeyWallet(srv.PrivateKey(), c.ChainID)
	require.Equal(t, srv.Owner(), owner.Address())
	ownerBridge := session.NewBridge(owner)
	require.NoError(t, ownerBridge.Connect(ctx))
	_, err = session.New(ownerBridge, owner, c, observer).Withdraw(ctx)
	require.NoError(t, err)

	info, err := c.Info(ctx)
	require.NoError(t, err)
	require.Zero(t, info.Balance.Sign())
	require.Equal(t, uint64(1), info.ParticipantCount)
}

// Test that the owner key survives a restart.
func TestOwnerIsPersisted(t *testing.T) {
	t.Parallel()
	ctx := logging.NewContext(context.Background(), zaptest.NewLogger(t))
	cfg := testConfig(t)

	_, err := server.SetupConfig(&cfg)
	require.NoError(t, err)
	srv, err := server.New(ctx, cfg)
	require.NoError(t, err)
	owner := srv.Owner()
	require.Equal(t, signing.Address(srv.PrivateKey().Public().(ed25519.PublicKey)), owner)
	require.NoError(t, srv.Close())

	srv, err = server.New(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, srv.Close()) })
	require.Equal(t, owner, srv.Owner())
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	ctx := logging.NewContext(context.Background(), zaptest.NewLogger(t))
	cfg := testConfig(t)
	port := uint16(0)
	cfg.MetricsPort = &port

	srv, c := spawnNode(ctx, t, cfg)
	start(ctx, t, srv)
	require.NotNil(t, srv.MetricsAddr())

	_, err := c.BlockNumber(ctx)
	require.NoError(t, err)

	port = uint16(srv.MetricsAddr().(*net.TCPAddr).Port)
	res, err := http.Get(fmt.Sprintf("http://localhost:%d/metrics", port))
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.True(t, strings.Contains(string(body), "eventreg_ledger_"))
}
