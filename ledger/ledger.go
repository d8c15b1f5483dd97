package ledger

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/minio/sha256-simd"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/eventreg/eventreg/logging"
	"github.com/eventreg/eventreg/types"
)

var (
	ErrNoOwner         = errors.New("ledger owner is not configured")
	ErrGenesisMismatch = errors.New("configuration conflicts with persisted genesis")
	ErrCorruptState    = errors.New("persisted ledger state is inconsistent")

	registrationsMetric = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "eventreg",
		Subsystem: "ledger",
		Name:      "registrations_total",
		Help:      "Number of successful registrations",
	})

	rejectionsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eventreg",
		Subsystem: "ledger",
		Name:      "rejections_total",
		Help:      "Number of calls rejected by a precondition",
	}, []string{"reason"})

	balanceMetric = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "eventreg",
		Subsystem: "ledger",
		Name:      "balance_wei",
		Help:      "Collected balance not yet withdrawn",
	})
)

// PayoutHook is notified after a withdrawal has been committed.
// It runs outside of the sequencer, so it may call back into the ledger.
type PayoutHook func(ctx context.Context, owner types.Address, amount *big.Int)

// Ledger is the registration state machine.
type Ledger struct {
	db            *database
	clock         func() time.Time
	blockInterval time.Duration
	payoutHook    PayoutHook

	// sequencer: serializes every call and guards all fields below.
	mu           sync.Mutex
	owner        types.Address
	fee          *big.Int
	chainID      uint64
	registered   map[types.Address]uint64
	participants []types.Address
	payouts      map[types.Address]*big.Int
	balance      *big.Int
	collected    *big.Int
	head         headRecord
	open         *openBlock

	subsMu sync.Mutex
	subs   map[*Subscription]struct{}
}

type newLedgerOptionFunc func(*newLedgerOptions)

type newLedgerOptions struct {
	owner         *types.Address
	fee           *big.Int
	chainID       uint64
	clock         func() time.Time
	blockInterval time.Duration
	payoutHook    PayoutHook
}

func WithOwner(owner types.Address) newLedgerOptionFunc {
	return func(opts *newLedgerOptions) {
		opts.owner = &owner
	}
}

func WithFee(fee *big.Int) newLedgerOptionFunc {
	return func(opts *newLedgerOptions) {
		opts.fee = fee
	}
}

func WithChainID(id uint64) newLedgerOptionFunc {
	return func(opts *newLedgerOptions) {
		opts.chainID = id
	}
}

func WithClock(clock func() time.Time) newLedgerOptionFunc {
	return func(opts *newLedgerOptions) {
		opts.clock = clock
	}
}

func WithBlockInterval(interval time.Duration) newLedgerOptionFunc {
	return func(opts *newLedgerOptions) {
		opts.blockInterval = interval
	}
}

func WithPayoutHook(hook PayoutHook) newLedgerOptionFunc {
	return func(opts *newLedgerOptions) {
		opts.payoutHook = hook
	}
}

func WithConfig(cfg Config) newLedgerOptionFunc {
	return func(opts *newLedgerOptions) {
		if cfg.Fee.Int != nil {
			opts.fee = cfg.Fee.Int
		}
		opts.chainID = cfg.ChainID
		opts.blockInterval = cfg.BlockInterval
	}
}

// New opens (or creates) the ledger stored under dbdir.
// The owner, fee and chain id are fixed by the first call; later calls must
// either omit them or pass the same values.
func New(ctx context.Context, dbdir string, opts ...newLedgerOptionFunc) (*Ledger, error) {
	defaults := DefaultConfig()
	options := newLedgerOptions{
		fee:     defaults.Fee.Int,
		chainID: defaults.ChainID,
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(&options)
	}

	db, err := newDatabase(filepath.Join(dbdir, "ledger"))
	if err != nil {
		return nil, fmt.Errorf("opening ledger database: %w", err)
	}

	l := &Ledger{
		db:            db,
		clock:         options.clock,
		blockInterval: options.blockInterval,
		payoutHook:    options.payoutHook,
		subs:          make(map[*Subscription]struct{}),
	}
	if err := l.init(ctx, options); err != nil {
		return nil, multierror.Append(err, db.Close()).ErrorOrNil()
	}
	return l, nil
}

func (l *Ledger) init(ctx context.Context, options newLedgerOptions) error {
	logger := logging.FromContext(ctx)

	genesis, err := l.db.loadGenesis()
	switch {
	case errors.Is(err, ErrNotFound):
		if options.owner == nil {
			return ErrNoOwner
		}
		if options.fee == nil || options.fee.Sign() < 0 {
			return fmt.Errorf("%w: fee must be non-negative", types.ErrInvalidAmount)
		}
		genesis = &genesisRecord{
			Owner:   options.owner.Bytes(),
			Fee:     options.fee.Bytes(),
			ChainID: options.chainID,
		}
		if err := l.db.saveGenesis(*genesis); err != nil {
			return fmt.Errorf("saving genesis: %w", err)
		}
		logger.Info("created ledger",
			zap.Stringer("owner", options.owner),
			zap.String("fee", types.FormatEther(options.fee)),
			zap.Uint64("chain_id", options.chainID),
		)
	case err != nil:
		return fmt.Errorf("loading genesis: %w", err)
	default:
		owner := types.BytesToAddress(genesis.Owner)
		if options.owner != nil && *options.owner != owner {
			return fmt.Errorf("%w: owner %s, persisted %s", ErrGenesisMismatch, options.owner, owner)
		}
	}
	l.owner = types.BytesToAddress(genesis.Owner)
	l.fee = new(big.Int).SetBytes(genesis.Fee)
	l.chainID = genesis.ChainID

	s, err := l.db.load()
	if err != nil {
		return err
	}
	if len(s.participants) != len(s.registered) {
		return fmt.Errorf("%w: %d participants, %d registrations", ErrCorruptState, len(s.participants), len(s.registered))
	}
	l.participants = s.participants
	l.registered = s.registered
	l.payouts = s.payouts
	l.balance = s.balance
	l.collected = s.collected
	l.head = s.head
	balanceMetric.Set(weiFloat(l.balance))

	// Calls executed before a crash but never sealed go into the next block.
	if len(s.pending) > 0 {
		logger.Info("found unsealed calls, sealing them", zap.Int("calls", len(s.pending)))
		l.open = recoverBlock(s.pending)
		if err := l.sealLocked(ctx); err != nil {
			return fmt.Errorf("sealing recovered calls: %w", err)
		}
	}
	return nil
}

// Close seals the open block and closes the database.
func (l *Ledger) Close() error {
	var result *multierror.Error
	l.mu.Lock()
	if err := l.sealLocked(context.Background()); err != nil {
		result = multierror.Append(result, err)
	}
	l.mu.Unlock()

	l.subsMu.Lock()
	for sub := range l.subs {
		delete(l.subs, sub)
		sub.close(nil)
	}
	l.subsMu.Unlock()

	result = multierror.Append(result, l.db.Close())
	return result.ErrorOrNil()
}

// Run seals blocks every block interval until ctx is done.
// With a zero interval every call seals its own block and Run only waits.
func (l *Ledger) Run(ctx context.Context) error {
	logger := logging.FromContext(ctx).Named("sealer")
	ctx = logging.NewContext(ctx, logger)

	if l.blockInterval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(l.blockInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := l.Seal(ctx); err != nil {
				logger.Error("failed to seal block", zap.Error(err))
			}
		}
	}
}

type callOptions struct {
	txID string
}

type CallOption func(*callOptions)

// WithTxID names the call. Without it the ledger derives an id from the
// call's position.
func WithTxID(id string) CallOption {
	return func(o *callOptions) {
		o.txID = id
	}
}

// Register registers caller. paid must equal the fee exactly.
// On success the returned handle resolves once the call's block is sealed.
func (l *Ledger) Register(
	ctx context.Context,
	caller types.Address,
	paid *big.Int,
	opts ...CallOption,
) (*Pending, error) {
	logger := logging.FromContext(ctx).With(zap.Stringer("caller", caller))

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.registered[caller]; ok {
		rejectionsMetric.WithLabelValues("already_registered").Inc()
		logger.Debug("rejecting registration", zap.Error(types.ErrAlreadyRegistered))
		return nil, types.ErrAlreadyRegistered
	}
	if paid == nil || paid.Cmp(l.fee) != 0 {
		rejectionsMetric.WithLabelValues("incorrect_payment_amount").Inc()
		err := fmt.Errorf("%w: paid %s wei, required %s wei", types.ErrIncorrectPaymentAmount, paid, l.fee)
		logger.Debug("rejecting registration", zap.Error(err))
		return nil, err
	}

	block := l.openBlockLocked()
	index := uint64(len(l.participants))
	balance := new(big.Int).Add(l.balance, l.fee)
	collected := new(big.Int).Add(l.collected, l.fee)
	rec := block.next(types.EventRegistered, caller, nil, l.txID(block, opts))

	if err := l.db.commitRegistration(caller, index, balance, collected, rec); err != nil {
		return nil, fmt.Errorf("committing registration: %w", err)
	}

	l.registered[caller] = index
	l.participants = append(l.participants, caller)
	l.balance = balance
	l.collected = collected
	pending := block.add(rec)

	registrationsMetric.Inc()
	balanceMetric.Set(weiFloat(l.balance))
	logger.Info("registered", zap.Uint64("block", rec.Height), zap.Uint32("index", rec.Log.Index))

	l.autoSealLocked(ctx)
	return pending, nil
}

// WithdrawFunds moves the whole balance to the owner's payout account.
// It succeeds with a zero amount when there is nothing to withdraw.
func (l *Ledger) WithdrawFunds(ctx context.Context, caller types.Address, opts ...CallOption) (*Pending, error) {
	logger := logging.FromContext(ctx).With(zap.Stringer("caller", caller))

	l.mu.Lock()
	if caller != l.owner {
		l.mu.Unlock()
		rejectionsMetric.WithLabelValues("unauthorized").Inc()
		logger.Debug("rejecting withdrawal", zap.Error(types.ErrUnauthorized))
		return nil, types.ErrUnauthorized
	}

	amount := new(big.Int).Set(l.balance)
	payout := new(big.Int).Add(l.payoutLocked(l.owner), amount)
	block := l.openBlockLocked()
	rec := block.next(types.EventFundsWithdrawn, l.owner, amount, l.txID(block, opts))

	// Zeroing the balance is committed before any funds are released.
	if err := l.db.commitWithdrawal(l.owner, payout, rec); err != nil {
		l.mu.Unlock()
		return nil, fmt.Errorf("committing withdrawal: %w", err)
	}
	l.balance = new(big.Int)
	l.payouts[l.owner] = payout
	pending := block.add(rec)

	balanceMetric.Set(0)
	logger.Info("funds withdrawn", zap.String("amount", types.FormatEther(amount)), zap.Uint64("block", rec.Height))

	l.autoSealLocked(ctx)
	owner := l.owner
	l.mu.Unlock()

	if l.payoutHook != nil {
		l.payoutHook(ctx, owner, new(big.Int).Set(amount))
	}
	return pending, nil
}

func (l *Ledger) txID(block *openBlock, opts []CallOption) string {
	o := callOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.txID != "" {
		return o.txID
	}
	h := sha256.New()
	h.Write(binary.BigEndian.AppendUint64(nil, l.chainID))
	h.Write(binary.BigEndian.AppendUint64(nil, block.height))
	h.Write(binary.BigEndian.AppendUint32(nil, uint32(len(block.records))))
	return "0x" + hex.EncodeToString(h.Sum(nil))
}

func (l *Ledger) payoutLocked(addr types.Address) *big.Int {
	if v, ok := l.payouts[addr]; ok {
		return v
	}
	return new(big.Int)
}

func (l *Ledger) Owner() types.Address {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.owner
}

func (l *Ledger) RegistrationFee() *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.fee)
}

func (l *Ledger) ChainID() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.chainID
}

func (l *Ledger) ParticipantCount() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return uint64(len(l.participants))
}

func (l *Ledger) IsRegistered(addr types.Address) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.registered[addr]
	return ok
}

// CheckRegistration is IsRegistered under the name auditors know it by.
func (l *Ledger) CheckRegistration(addr types.Address) bool {
	return l.IsRegistered(addr)
}

// AllParticipants returns participants in registration order.
func (l *Ledger) AllParticipants() []types.Address {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]types.Address(nil), l.participants...)
}

// ContractBalance is the collected amount not yet withdrawn.
func (l *Ledger) ContractBalance() *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.balance)
}

// TotalCollected is the sum of all fees ever paid.
func (l *Ledger) TotalCollected() *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.collected)
}

// PayoutOf is the total amount withdrawn to addr.
func (l *Ledger) PayoutOf(addr types.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.payoutLocked(addr))
}

// BlockNumber is the height of the last sealed block.
func (l *Ledger) BlockNumber() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.head.Height
}

// Events returns the sealed events named event (all events if empty) with
// block heights in [from, to].
func (l *Ledger) Events(ctx context.Context, event string, from, to uint64) ([]types.Log, error) {
	blocks, err := l.db.blocks(from, to)
	if err != nil {
		return nil, fmt.Errorf("querying blocks [%d, %d]: %w", from, to, err)
	}
	var logs []types.Log
	for _, b := range blocks {
		for _, rec := range b.Logs {
			if event != "" && rec.Event != event {
				continue
			}
			logs = append(logs, toLog(b.Height, b.Hash, rec))
		}
	}
	return logs, nil
}

func weiFloat(v *big.Int) float64 {
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
