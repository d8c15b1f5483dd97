// Package presenter renders the synchronizer view and the transaction
// lifecycle for a human reading the log.
package presenter

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/eventreg/eventreg/session"
	"github.com/eventreg/eventreg/synchronizer"
	"github.com/eventreg/eventreg/types"
)

// Message is the text shown to the user for err.
func Message(err error) string {
	return message(err, nil)
}

func message(err error, fee *big.Int) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, types.ErrIncorrectPaymentAmount):
		if fee != nil {
			return fmt.Sprintf("Incorrect payment amount: the registration fee is exactly %s ETH.", types.FormatEther(fee))
		}
		return "Incorrect payment amount: the registration fee must be paid exactly."
	case errors.Is(err, types.ErrAlreadyRegistered):
		return "This address is already registered."
	case errors.Is(err, types.ErrUnauthorized):
		return "Only the owner can withdraw funds."
	case errors.Is(err, session.ErrWrongChain):
		return "Please switch your wallet to the expected network."
	case errors.Is(err, session.ErrNotConnected), errors.Is(err, session.ErrNoAccounts):
		return "Connect your wallet first."
	case errors.Is(err, types.ErrInvalidTransaction):
		return "The transaction was refused as invalid."
	}
	switch types.Classify(err) {
	case types.KindTransport:
		return "Connection to the network was lost. Retrying..."
	case types.KindCancelled:
		return "Request cancelled."
	}
	return "Unexpected error: " + err.Error()
}

// Log writes everything it is given to a zap logger. It implements
// synchronizer.Presenter and session.TxObserver.
type Log struct {
	logger   *zap.Logger
	fee      *big.Int
	location *time.Location
}

type newLogOptionFunc func(*Log)

// WithFee makes payment errors name the fee.
func WithFee(fee *big.Int) newLogOptionFunc {
	return func(l *Log) {
		l.fee = fee
	}
}

func WithLocation(loc *time.Location) newLogOptionFunc {
	return func(l *Log) {
		l.location = loc
	}
}

func New(logger *zap.Logger, opts ...newLogOptionFunc) *Log {
	l := &Log{
		logger:   logger,
		location: time.Local,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Log) Message(err error) string {
	return message(err, l.fee)
}

// Lines formats participants newest first.
func (l *Log) Lines(entries []synchronizer.Entry) []string {
	lines := make([]string, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		lines = append(lines, l.line(entries[i]))
	}
	return lines
}

func (l *Log) line(e synchronizer.Entry) string {
	line := fmt.Sprintf("%s  %s", e.Address.Short(), l.timestamp(e.Time))
	if !e.Confirmed {
		line += "  (pending)"
	}
	return line
}

func (l *Log) timestamp(unix uint64) string {
	return time.Unix(int64(unix), 0).In(l.location).Format(time.DateTime)
}

func (l *Log) Snapshot(s synchronizer.Snapshot) {
	l.logger.Info("participants",
		zap.Uint64("chain_id", s.ChainID),
		zap.Uint64("head", s.Head),
		zap.Int("count", len(s.Participants)),
		zap.Strings("list", l.Lines(s.Participants)),
	)
}

func (l *Log) Delta(d synchronizer.Delta) {
	for _, addr := range d.Removed {
		l.logger.Info("registration withdrawn by the network", zap.String("address", addr.Short()))
	}
	for _, e := range d.Added {
		l.logger.Info("new participant",
			zap.String("address", e.Address.Short()),
			zap.String("time", l.timestamp(e.Time)),
			zap.Bool("confirmed", e.Confirmed),
		)
	}
}

func (l *Log) Status(s synchronizer.Status) {
	switch s.State {
	case synchronizer.StateSyncing:
		l.logger.Info("loading participants", zap.Uint64("chain_id", s.ChainID))
	case synchronizer.StateLive:
		l.logger.Info("up to date", zap.Uint64("chain_id", s.ChainID))
	case synchronizer.StateDegraded:
		l.logger.Warn(l.Message(s.Err), zap.Error(s.Err))
	case synchronizer.StateResetting:
		l.logger.Info("network changed, reloading participants", zap.Uint64("chain_id", s.ChainID))
	}
}

func (l *Log) Submitted(kind types.TxKind, id string) {
	l.logger.Info("transaction submitted", zap.Stringer("kind", kind), zap.String("id", id))
}

func (l *Log) Confirmed(kind types.TxKind, id string, height uint64) {
	l.logger.Info("transaction confirmed",
		zap.Stringer("kind", kind),
		zap.String("id", id),
		zap.Uint64("block", height),
	)
}

func (l *Log) Rejected(kind types.TxKind, id string, err error) {
	l.logger.Error(l.Message(err), zap.Stringer("kind", kind), zap.String("id", id))
}

func (l *Log) Cancelled(kind types.TxKind) {
	l.logger.Info(l.Message(types.ErrUserRejected), zap.Stringer("kind", kind))
}
