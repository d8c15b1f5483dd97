package session

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventreg/eventreg/logging"
	"github.com/eventreg/eventreg/signing"
	"github.com/eventreg/eventreg/types"
)

var (
	ErrNotConnected = errors.New("wallet is not connected")
	ErrWrongChain   = errors.New("wallet is connected to another chain")
)

// Transactor submits transactions to the ledger.
type Transactor interface {
	RegistrationFee(ctx context.Context) (*big.Int, error)
	IsRegistered(ctx context.Context, addr types.Address) (bool, error)
	SendRegister(ctx context.Context, env signing.Envelope) (types.PendingTx, error)
	SendWithdraw(ctx context.Context, env signing.Envelope) (types.PendingTx, error)
}

// TxObserver follows the lifecycle of the transactions a session sends.
// id is empty for a transaction rejected before it was submitted.
type TxObserver interface {
	Submitted(kind types.TxKind, id string)
	Confirmed(kind types.TxKind, id string, height uint64)
	Rejected(kind types.TxKind, id string, err error)
	Cancelled(kind types.TxKind)
}

// Session sends the account holder's transactions.
type Session struct {
	bridge     *Bridge
	wallet     Wallet
	transactor Transactor
	observer   TxObserver
}

func New(bridge *Bridge, wallet Wallet, transactor Transactor, observer TxObserver) *Session {
	return &Session{
		bridge:     bridge,
		wallet:     wallet,
		transactor: transactor,
		observer:   observer,
	}
}

// Register pays the registration fee for the connected account and waits
// for the inclusion of the transaction.
func (s *Session) Register(ctx context.Context) (*types.Receipt, error) {
	st, err := s.ready()
	if err != nil {
		return nil, err
	}
	registered, err := s.transactor.IsRegistered(ctx, st.Account)
	if err != nil {
		return nil, fmt.Errorf("check registration: %w", err)
	}
	if registered {
		s.observer.Rejected(types.TxRegister, "", types.ErrAlreadyRegistered)
		return nil, types.ErrAlreadyRegistered
	}
	fee, err := s.transactor.RegistrationFee(ctx)
	if err != nil {
		return nil, fmt.Errorf("get registration fee: %w", err)
	}
	return s.send(ctx, st, types.NewTx(st.ChainID, types.TxRegister, fee, nonce()), s.transactor.SendRegister)
}

// Withdraw moves the collected balance to the connected account, which must
// be the ledger owner.
func (s *Session) Withdraw(ctx context.Context) (*types.Receipt, error) {
	st, err := s.ready()
	if err != nil {
		return nil, err
	}
	return s.send(ctx, st, types.NewTx(st.ChainID, types.TxWithdraw, nil, nonce()), s.transactor.SendWithdraw)
}

func (s *Session) ready() (State, error) {
	st := s.bridge.State()
	switch {
	case st.Conn != Connected:
		return st, ErrNotConnected
	case st.WrongChain:
		return st, ErrWrongChain
	}
	return st, nil
}

type sendFunc func(ctx context.Context, env signing.Envelope) (types.PendingTx, error)

func (s *Session) send(ctx context.Context, st State, tx types.Tx, submit sendFunc) (*types.Receipt, error) {
	logger := logging.FromContext(ctx).Named("session").With(
		zap.Stringer("kind", tx.Kind),
		zap.Stringer("account", st.Account),
	)

	env, err := s.wallet.Sign(ctx, st.Account, tx)
	if errors.Is(err, types.ErrUserRejected) {
		logger.Info("signing declined")
		s.observer.Cancelled(tx.Kind)
		return nil, err
	}
	if err != nil {
		s.observer.Rejected(tx.Kind, "", err)
		return nil, fmt.Errorf("sign %s: %w", tx.Kind, err)
	}

	pending, err := submit(ctx, env)
	if err != nil {
		logger.Info("transaction rejected", zap.Error(err))
		s.observer.Rejected(tx.Kind, "", err)
		return nil, err
	}
	logger.Info("transaction submitted", zap.String("id", pending.ID()))
	s.observer.Submitted(tx.Kind, pending.ID())

	receipt, err := pending.Wait(ctx)
	if err != nil {
		s.observer.Rejected(tx.Kind, pending.ID(), err)
		return nil, fmt.Errorf("wait for %s: %w", pending.ID(), err)
	}
	logger.Info("transaction confirmed", zap.String("id", receipt.TxID), zap.Uint64("height", receipt.Height))
	s.observer.Confirmed(tx.Kind, receipt.TxID, receipt.Height)
	return receipt, nil
}

func nonce() uint64 {
	id := uuid.New()
	return binary.BigEndian.Uint64(id[:8])
}
