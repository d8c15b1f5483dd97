package transport_test

import (
	"context"
	"crypto/ed25519"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/eventreg/eventreg/ledger"
	"github.com/eventreg/eventreg/signing"
	"github.com/eventreg/eventreg/transport"
	"github.com/eventreg/eventreg/types"
)

func newKey(t *testing.T) ed25519.PrivateKey {
	_, key, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return key
}

func signTx(t *testing.T, key ed25519.PrivateKey, tx types.Tx) signing.Envelope {
	signed, err := signing.Sign(tx, key)
	require.NoError(t, err)
	return signing.Seal(signed)
}

func TestInMemoryTransport(t *testing.T) {
	ownerKey := newKey(t)
	owner := signing.Address(ownerKey.Public().(ed25519.PublicKey))

	l, err := ledger.New(context.Background(), t.TempDir(), ledger.WithOwner(owner), ledger.WithChainID(5))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, l.Close()) })
	inMemory := transport.NewInMemory(l)
	fee := l.RegistrationFee()

	t.Run("register", func(t *testing.T) {
		key := newKey(t)
		env := signTx(t, key, types.NewTx(5, types.TxRegister, fee, 1))
		pending, err := inMemory.SendRegister(context.Background(), env)
		require.NoError(t, err)
		receipt, err := pending.Wait(context.Background())
		require.NoError(t, err)
		require.Equal(t, pending.ID(), receipt.TxID)

		addr := signing.Address(key.Public().(ed25519.PublicKey))
		registered, err := inMemory.IsRegistered(context.Background(), addr)
		require.NoError(t, err)
		require.True(t, registered)

		_, err = inMemory.SendRegister(context.Background(), signTx(t, key, types.NewTx(5, types.TxRegister, fee, 2)))
		require.ErrorIs(t, err, types.ErrAlreadyRegistered)
	})
	t.Run("wrong payment", func(t *testing.T) {
		env := signTx(t, newKey(t), types.NewTx(5, types.TxRegister, big.NewInt(1), 1))
		_, err := inMemory.SendRegister(context.Background(), env)
		require.ErrorIs(t, err, types.ErrIncorrectPaymentAmount)
	})
	t.Run("foreign chain", func(t *testing.T) {
		env := signTx(t, newKey(t), types.NewTx(6, types.TxRegister, fee, 1))
		_, err := inMemory.SendRegister(context.Background(), env)
		require.ErrorIs(t, err, types.ErrInvalidTransaction)
	})
	t.Run("wrong kind", func(t *testing.T) {
		env := signTx(t, ownerKey, types.NewTx(5, types.TxRegister, fee, 1))
		_, err := inMemory.SendWithdraw(context.Background(), env)
		require.ErrorIs(t, err, types.ErrInvalidTransaction)
	})
	t.Run("tampered", func(t *testing.T) {
		env := signTx(t, newKey(t), types.NewTx(5, types.TxRegister, fee, 1))
		env.Tx.Nonce++
		_, err := inMemory.SendRegister(context.Background(), env)
		require.ErrorIs(t, err, types.ErrInvalidTransaction)
	})
	t.Run("withdraw", func(t *testing.T) {
		_, err := inMemory.SendWithdraw(context.Background(), signTx(t, newKey(t), types.NewTx(5, types.TxWithdraw, nil, 1)))
		require.ErrorIs(t, err, types.ErrUnauthorized)

		pending, err := inMemory.SendWithdraw(context.Background(), signTx(t, ownerKey, types.NewTx(5, types.TxWithdraw, nil, 1)))
		require.NoError(t, err)
		receipt, err := pending.Wait(context.Background())
		require.NoError(t, err)
		require.Equal(t, types.EventFundsWithdrawn, receipt.Logs[0].Event)
		require.Equal(t, fee, receipt.Logs[0].Amount)
	})
	t.Run("query", func(t *testing.T) {
		height, err := inMemory.BlockNumber(context.Background())
		require.NoError(t, err)
		logs, err := inMemory.QueryEvents(context.Background(), types.EventRegistered, 0, height)
		require.NoError(t, err)
		require.Len(t, logs, 1)
		chainID, err := inMemory.ChainID(context.Background())
		require.NoError(t, err)
		require.Equal(t, uint64(5), chainID)
	})
}

func TestInMemorySubscription(t *testing.T) {
	owner := types.Address{0xAA}
	l, err := ledger.New(context.Background(), t.TempDir(), ledger.WithOwner(owner))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, l.Close()) })
	inMemory := transport.NewInMemory(l)

	t.Run("delivers sealed logs", func(t *testing.T) {
		sink := make(chan types.Log, 4)
		sub, err := inMemory.Subscribe(context.Background(), types.EventRegistered, sink)
		require.NoError(t, err)
		defer sub.Unsubscribe()

		_, err = l.Register(context.Background(), types.Address{1}, l.RegistrationFee())
		require.NoError(t, err)
		lg := <-sink
		require.Equal(t, types.Address{1}, lg.Subject)
	})
	t.Run("unsubscribe ends the stream", func(t *testing.T) {
		sub, err := inMemory.Subscribe(context.Background(), "", make(chan types.Log))
		require.NoError(t, err)
		sub.Unsubscribe()
		sub.Unsubscribe()
		select {
		case _, ok := <-sub.Err():
			require.False(t, ok)
		case <-time.After(time.Second):
			require.Fail(t, "subscription did not end")
		}
	})
	t.Run("cancel on context canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		sub, err := inMemory.Subscribe(ctx, "", make(chan types.Log))
		require.NoError(t, err)
		cancel()
		select {
		case _, ok := <-sub.Err():
			require.False(t, ok)
		case <-time.After(time.Second):
			require.Fail(t, "subscription did not end")
		}
	})
}
