package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/eventreg/eventreg/logging"
	"github.com/eventreg/eventreg/signing"
	"github.com/eventreg/eventreg/types"
)

//go:generate mockgen -package mocks -destination mocks/session.go . Wallet,Transactor,TxObserver

// Wallet holds the account keys. It is external to the process: every call
// may ask the account holder for approval.
type Wallet interface {
	// Accounts returns the accounts the holder exposes, types.ErrUserRejected
	// if the holder declined.
	Accounts(ctx context.Context) ([]types.Address, error)
	ChainID(ctx context.Context) (uint64, error)
	// Sign returns types.ErrUserRejected if the holder declined.
	Sign(ctx context.Context, account types.Address, tx types.Tx) (signing.Envelope, error)
}

var ErrNoAccounts = errors.New("wallet exposes no accounts")

type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Connected
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return fmt.Sprintf("ConnState(%d)", int(s))
}

// State is a snapshot of the connection. Account and ChainID are set only
// while Connected.
type State struct {
	Conn    ConnState
	Account types.Address
	ChainID uint64
	// WrongChain is set when the wallet is on another chain than the
	// expected one.
	WrongChain bool
}

type ChangeKind int

const (
	// ConnectionChanged: connected or disconnected.
	ConnectionChanged ChangeKind = iota
	// AccountChanged requires dropping everything tied to the old account.
	AccountChanged
	// ChainChanged requires rebuilding the event projection.
	ChainChanged
)

func (k ChangeKind) String() string {
	switch k {
	case ConnectionChanged:
		return "connection"
	case AccountChanged:
		return "account"
	case ChainChanged:
		return "chain"
	}
	return fmt.Sprintf("ChangeKind(%d)", int(k))
}

type Change struct {
	Kind  ChangeKind
	State State
}

const watchBuffer = 16

// Bridge tracks the wallet connection.
type Bridge struct {
	wallet   Wallet
	expected *uint64

	mu       sync.Mutex
	state    State
	watchers map[chan Change]struct{}
}

type BridgeOption func(*Bridge)

// WithExpectedChain flags connections to any other chain as WrongChain.
func WithExpectedChain(id uint64) BridgeOption {
	return func(b *Bridge) {
		b.expected = &id
	}
}

func NewBridge(wallet Wallet, opts ...BridgeOption) *Bridge {
	b := &Bridge{
		wallet:   wallet,
		watchers: make(map[chan Change]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Watch returns the changes from now on. The channel is closed when ctx is
// done. A watcher that does not keep up misses changes; State always has the
// latest one.
func (b *Bridge) Watch(ctx context.Context) <-chan Change {
	ch := make(chan Change, watchBuffer)
	b.mu.Lock()
	b.watchers[ch] = struct{}{}
	b.mu.Unlock()
	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.watchers, ch)
		b.mu.Unlock()
		close(ch)
	}()
	return ch
}

// Connect asks the wallet for an account. A declined request returns
// types.ErrUserRejected and leaves the bridge disconnected.
func (b *Bridge) Connect(ctx context.Context) error {
	logger := logging.FromContext(ctx).Named("session")
	b.mu.Lock()
	if b.state.Conn != Disconnected {
		b.mu.Unlock()
		return nil
	}
	b.state = State{Conn: Connecting}
	b.mu.Unlock()

	accounts, err := b.wallet.Accounts(ctx)
	switch {
	case errors.Is(err, types.ErrUserRejected):
		logger.Info("connection request declined")
		b.set(ConnectionChanged, State{Conn: Disconnected})
		return err
	case err != nil:
		b.set(ConnectionChanged, State{Conn: Disconnected})
		return fmt.Errorf("request accounts: %w", err)
	case len(accounts) == 0:
		b.set(ConnectionChanged, State{Conn: Disconnected})
		return ErrNoAccounts
	}
	chainID, err := b.wallet.ChainID(ctx)
	if err != nil {
		b.set(ConnectionChanged, State{Conn: Disconnected})
		return fmt.Errorf("request chain id: %w", err)
	}

	st := b.connected(accounts[0], chainID)
	logger.Info("connected",
		zap.Stringer("account", st.Account),
		zap.Uint64("chain_id", st.ChainID),
		zap.Bool("wrong_chain", st.WrongChain),
	)
	b.set(ConnectionChanged, st)
	return nil
}

func (b *Bridge) Disconnect() {
	b.set(ConnectionChanged, State{Conn: Disconnected})
}

// AccountsChanged handles the wallet switching accounts. No accounts means
// the wallet was locked or disconnected.
func (b *Bridge) AccountsChanged(accounts []types.Address) {
	if len(accounts) == 0 {
		b.set(ConnectionChanged, State{Conn: Disconnected})
		return
	}
	b.mu.Lock()
	prev := b.state
	b.mu.Unlock()
	if prev.Conn != Connected || prev.Account == accounts[0] {
		return
	}
	b.set(AccountChanged, b.connected(accounts[0], prev.ChainID))
}

// ChainChanged handles the wallet switching chains.
func (b *Bridge) ChainChanged(chainID uint64) {
	b.mu.Lock()
	prev := b.state
	b.mu.Unlock()
	if prev.Conn != Connected || prev.ChainID == chainID {
		return
	}
	b.set(ChainChanged, b.connected(prev.Account, chainID))
}

func (b *Bridge) connected(account types.Address, chainID uint64) State {
	return State{
		Conn:       Connected,
		Account:    account,
		ChainID:    chainID,
		WrongChain: b.expected != nil && *b.expected != chainID,
	}
}

func (b *Bridge) set(kind ChangeKind, st State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == st {
		return
	}
	b.state = st
	for ch := range b.watchers {
		select {
		case ch <- Change{Kind: kind, State: st}:
		default:
		}
	}
}
