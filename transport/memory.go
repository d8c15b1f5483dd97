package transport

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"go.uber.org/zap"

	"github.com/eventreg/eventreg/ledger"
	"github.com/eventreg/eventreg/logging"
	"github.com/eventreg/eventreg/signing"
	"github.com/eventreg/eventreg/types"
)

// InMemory binds the ledger gateway and the transaction submission
// interfaces directly to a ledger running in the same process.
type InMemory struct {
	ledger *ledger.Ledger
}

func NewInMemory(l *ledger.Ledger) *InMemory {
	return &InMemory{ledger: l}
}

func (m *InMemory) BlockNumber(ctx context.Context) (uint64, error) {
	return m.ledger.BlockNumber(), nil
}

func (m *InMemory) ChainID(ctx context.Context) (uint64, error) {
	return m.ledger.ChainID(), nil
}

func (m *InMemory) RegistrationFee(ctx context.Context) (*big.Int, error) {
	return m.ledger.RegistrationFee(), nil
}

func (m *InMemory) IsRegistered(ctx context.Context, addr types.Address) (bool, error) {
	return m.ledger.IsRegistered(addr), nil
}

func (m *InMemory) QueryEvents(ctx context.Context, name string, from, to uint64) ([]types.Log, error) {
	return m.ledger.Events(ctx, name, from, to)
}

// Subscribe forwards logs sealed from now on into sink until ctx is done or
// the subscription is dropped.
func (m *InMemory) Subscribe(ctx context.Context, name string, sink chan<- types.Log) (types.Subscription, error) {
	sub := m.ledger.Subscribe(ctx, name)
	return Forward(ctx, sub.Logs(), sub, sink), nil
}

func (m *InMemory) SendRegister(ctx context.Context, env signing.Envelope) (types.PendingTx, error) {
	signed, err := m.open(env, types.TxRegister)
	if err != nil {
		return nil, err
	}
	pending, err := m.ledger.Register(ctx, signed.Signer(), signed.Data().Amount(), ledger.WithTxID(signed.ID()))
	if err != nil {
		return nil, err
	}
	return pending, nil
}

func (m *InMemory) SendWithdraw(ctx context.Context, env signing.Envelope) (types.PendingTx, error) {
	signed, err := m.open(env, types.TxWithdraw)
	if err != nil {
		return nil, err
	}
	pending, err := m.ledger.WithdrawFunds(ctx, signed.Signer(), ledger.WithTxID(signed.ID()))
	if err != nil {
		return nil, err
	}
	return pending, nil
}

func (m *InMemory) open(env signing.Envelope, kind types.TxKind) (signing.Signed[types.Tx], error) {
	return OpenTx(env, kind, m.ledger.ChainID())
}

// OpenTx verifies a signed transaction envelope addressed to a ledger.
func OpenTx(env signing.Envelope, kind types.TxKind, chainID uint64) (signing.Signed[types.Tx], error) {
	signed, err := signing.Open(env)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrInvalidTransaction, err)
	}
	tx := signed.Data()
	if tx.Kind != kind {
		return nil, fmt.Errorf("%w: expected %s, got %s", types.ErrInvalidTransaction, kind, tx.Kind)
	}
	if tx.ChainID != chainID {
		return nil, fmt.Errorf("%w: signed for chain %d, ledger is chain %d", types.ErrInvalidTransaction, tx.ChainID, chainID)
	}
	return signed, nil
}

// forwarder pumps a source subscription into a sink channel.
type forwarder struct {
	source types.Subscription
	stop   chan struct{}
	once   sync.Once
	err    chan error
}

// Forward copies logs from a subscription's channel into sink. The returned
// subscription ends when the source ends, ctx is done, or Unsubscribe is
// called. A source error is passed through.
func Forward(ctx context.Context, logs <-chan types.Log, source types.Subscription, sink chan<- types.Log) types.Subscription {
	f := &forwarder{
		source: source,
		stop:   make(chan struct{}),
		err:    make(chan error, 1),
	}
	go f.run(ctx, logs, sink)
	return f
}

func (f *forwarder) run(ctx context.Context, logs <-chan types.Log, sink chan<- types.Log) {
	defer close(f.err)
	defer f.source.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.stop:
			return
		case lg, ok := <-logs:
			if !ok {
				if err, ok := <-f.source.Err(); ok && err != nil {
					logging.FromContext(ctx).Debug("subscription dropped", zap.Error(err))
					f.err <- err
				}
				return
			}
			select {
			case sink <- lg:
			case <-ctx.Done():
				return
			case <-f.stop:
				return
			}
		}
	}
}

func (f *forwarder) Err() <-chan error {
	return f.err
}

func (f *forwarder) Unsubscribe() {
	f.once.Do(func() { close(f.stop) })
}
