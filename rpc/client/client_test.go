package client_test

import (
	"context"
	"crypto/ed25519"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/eventreg/eventreg/ledger"
	"github.com/eventreg/eventreg/rpc"
	"github.com/eventreg/eventreg/rpc/client"
	"github.com/eventreg/eventreg/signing"
	"github.com/eventreg/eventreg/types"
)

type node struct {
	ledger   *ledger.Ledger
	ownerKey ed25519.PrivateKey
	server   *httptest.Server
	requests atomic.Int64
}

func newNode(t *testing.T) *node {
	_, ownerKey, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	owner := signing.Address(ownerKey.Public().(ed25519.PublicKey))
	l, err := ledger.New(context.Background(), t.TempDir(), ledger.WithOwner(owner))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, l.Close()) })

	n := &node{ledger: l, ownerKey: ownerKey}
	handler := rpc.NewServer(l, zaptest.NewLogger(t)).Handler()
	n.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n.requests.Add(1)
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(n.server.Close)
	return n
}

func newClient(t *testing.T, url string) *client.Client {
	cfg := client.DefaultConfig()
	cfg.RetryMax = 1
	cfg.RetryWaitMin = time.Millisecond
	cfg.RetryWaitMax = time.Millisecond
	c, err := client.New(url, client.WithConfig(cfg), client.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, c.Close()) })
	return c
}

func sign(t *testing.T, key ed25519.PrivateKey, tx types.Tx) signing.Envelope {
	signed, err := signing.Sign(tx, key)
	require.NoError(t, err)
	return signing.Seal(signed)
}

func TestRegisterAndWithdraw(t *testing.T) {
	n := newNode(t)
	c := newClient(t, n.server.URL)
	ctx := context.Background()

	chainID, err := c.ChainID(ctx)
	require.NoError(t, err)
	fee, err := c.RegistrationFee(ctx)
	require.NoError(t, err)
	require.Equal(t, n.ledger.RegistrationFee(), fee)

	_, key, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	addr := signing.Address(key.Public().(ed25519.PublicKey))

	pending, err := c.SendRegister(ctx, sign(t, key, types.NewTx(chainID, types.TxRegister, fee, 1)))
	require.NoError(t, err)
	receipt, err := pending.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, pending.ID(), receipt.TxID)
	require.Len(t, receipt.Logs, 1)
	require.Equal(t, addr, receipt.Logs[0].Subject)

	_, err = c.SendRegister(ctx, sign(t, key, types.NewTx(chainID, types.TxRegister, fee, 2)))
	require.ErrorIs(t, err, types.ErrAlreadyRegistered)
	require.Equal(t, types.KindPrecondition, types.Classify(err))

	_, err = c.SendWithdraw(ctx, sign(t, key, types.NewTx(chainID, types.TxWithdraw, nil, 3)))
	require.ErrorIs(t, err, types.ErrUnauthorized)

	_, err = c.SendRegister(ctx, sign(t, n.ownerKey, types.NewTx(chainID, types.TxRegister, big.NewInt(1), 1)))
	require.ErrorIs(t, err, types.ErrIncorrectPaymentAmount)

	_, err = c.SendWithdraw(ctx, sign(t, n.ownerKey, types.NewTx(chainID+1, types.TxWithdraw, nil, 1)))
	require.ErrorIs(t, err, types.ErrInvalidTransaction)

	pending, err = c.SendWithdraw(ctx, sign(t, n.ownerKey, types.NewTx(chainID, types.TxWithdraw, nil, 1)))
	require.NoError(t, err)
	receipt, err = pending.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, fee, receipt.Logs[0].Amount)

	info, err := c.Info(ctx)
	require.NoError(t, err)
	require.Zero(t, info.Balance.Sign())
	require.Equal(t, fee, info.TotalCollected)
}

func TestQueryEvents(t *testing.T) {
	n := newNode(t)
	c := newClient(t, n.server.URL)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := n.ledger.Register(ctx, types.Address{1, byte(i)}, n.ledger.RegistrationFee())
		require.NoError(t, err)
	}
	height, err := c.BlockNumber(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(3), height)

	logs, err := c.QueryEvents(ctx, types.EventRegistered, 2, 3)
	require.NoError(t, err)
	require.Len(t, logs, 2)

	participants, err := c.Participants(ctx)
	require.NoError(t, err)
	require.Equal(t, n.ledger.AllParticipants(), participants)
}

func TestMembershipCache(t *testing.T) {
	n := newNode(t)
	c := newClient(t, n.server.URL)
	ctx := context.Background()
	alice := types.Address{1}

	registered, err := c.IsRegistered(ctx, alice)
	require.NoError(t, err)
	require.False(t, registered)

	// Negative answers are not cached.
	_, err = n.ledger.Register(ctx, alice, n.ledger.RegistrationFee())
	require.NoError(t, err)
	registered, err = c.IsRegistered(ctx, alice)
	require.NoError(t, err)
	require.True(t, registered)

	before := n.requests.Load()
	registered, err = c.IsRegistered(ctx, alice)
	require.NoError(t, err)
	require.True(t, registered)
	require.Equal(t, before, n.requests.Load())
}

func TestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	c := newClient(t, srv.URL)

	_, err := c.BlockNumber(context.Background())
	require.ErrorIs(t, err, types.ErrTransport)
	require.Equal(t, types.KindTransport, types.Classify(err))

	srv.Close()
	_, err = c.BlockNumber(context.Background())
	require.ErrorIs(t, err, types.ErrTransport)

	_, err = c.Subscribe(context.Background(), "", make(chan types.Log))
	require.ErrorIs(t, err, types.ErrTransport)
}

func TestSubscription(t *testing.T) {
	n := newNode(t)
	c := newClient(t, n.server.URL)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := make(chan types.Log, 16)
	sub, err := c.Subscribe(ctx, types.EventRegistered, sink)
	require.NoError(t, err)

	go func() {
		for i := 0; ctx.Err() == nil && i < 200; i++ {
			n.ledger.Register(ctx, types.Address{2, byte(i)}, n.ledger.RegistrationFee())
			time.Sleep(5 * time.Millisecond)
		}
	}()

	select {
	case lg := <-sink:
		require.Equal(t, types.EventRegistered, lg.Event)
	case <-time.After(5 * time.Second):
		require.Fail(t, "no log delivered")
	}

	sub.Unsubscribe()
	sub.Unsubscribe()
	select {
	case err, ok := <-sub.Err():
		require.False(t, ok, "unexpected error: %v", err)
	case <-time.After(5 * time.Second):
		require.Fail(t, "subscription did not end")
	}
}

func TestSubscriptionSeesBlockSealedRightAfterOpen(t *testing.T) {
	n := newNode(t)
	c := newClient(t, n.server.URL)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i := 0; i < 20; i++ {
		sink := make(chan types.Log, 4)
		sub, err := c.Subscribe(ctx, types.EventRegistered, sink)
		require.NoError(t, err)

		addr := types.Address{3, byte(i)}
		_, err = n.ledger.Register(ctx, addr, n.ledger.RegistrationFee())
		require.NoError(t, err)

		select {
		case lg := <-sink:
			require.Equal(t, addr, lg.Subject)
		case <-time.After(5 * time.Second):
			require.Fail(t, "log sealed after subscribing was not delivered", "round %d", i)
		}
		sub.Unsubscribe()
	}
}

func TestSubscriptionDropIsReported(t *testing.T) {
	for _, tc := range []struct {
		name  string
		close func(*websocket.Conn)
	}{
		{
			name:  "connection lost",
			close: func(conn *websocket.Conn) { conn.Close() },
		},
		{
			name: "lagging",
			close: func(conn *websocket.Conn) {
				msg := websocket.FormatCloseMessage(rpc.CloseLagging, "subscriber is lagging behind")
				conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
				conn.Close()
			},
		},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			upgrader := websocket.Upgrader{}
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				conn, err := upgrader.Upgrade(w, r, nil)
				if err != nil {
					return
				}
				tc.close(conn)
			}))
			t.Cleanup(srv.Close)
			c := newClient(t, srv.URL)

			sub, err := c.Subscribe(context.Background(), "", make(chan types.Log, 1))
			require.NoError(t, err)
			select {
			case err := <-sub.Err():
				require.ErrorIs(t, err, types.ErrTransport)
			case <-time.After(5 * time.Second):
				require.Fail(t, "drop not reported")
			}
		})
	}
}
