package ledger

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"time"

	"github.com/minio/sha256-simd"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/spacemeshos/merkle-tree"
	"go.uber.org/zap"

	"github.com/eventreg/eventreg/logging"
	"github.com/eventreg/eventreg/types"
)

var (
	heightMetric = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "eventreg",
		Subsystem: "ledger",
		Name:      "block_height",
		Help:      "Height of the last sealed block",
	})

	sealLatencyMetric = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "eventreg",
		Subsystem: "ledger",
		Name:      "seal_latency_seconds",
		Help:      "Time it takes to persist a block",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	})
)

// openBlock collects executed calls until it is sealed.
type openBlock struct {
	height  uint64
	time    uint64
	records []pendingRecord
	pending []*Pending
}

func (b *openBlock) next(event string, subject types.Address, amount *big.Int, txID string) pendingRecord {
	rec := pendingRecord{
		Height: b.height,
		Time:   b.time,
		TxID:   txID,
		Log: logRecord{
			Event:   event,
			Subject: subject.Bytes(),
			Time:    b.time,
			Index:   uint32(len(b.records)),
		},
	}
	if amount != nil {
		rec.Log.Amount = amount.Bytes()
	}
	return rec
}

func (b *openBlock) add(rec pendingRecord) *Pending {
	p := &Pending{id: rec.TxID, done: make(chan struct{})}
	b.records = append(b.records, rec)
	b.pending = append(b.pending, p)
	return p
}

func recoverBlock(records []pendingRecord) *openBlock {
	b := &openBlock{height: records[0].Height, time: records[0].Time}
	for _, rec := range records {
		b.add(rec)
	}
	return b
}

// Pending is a call that has been executed but whose block may not be
// sealed yet.
type Pending struct {
	id      string
	done    chan struct{}
	receipt types.Receipt
}

func (p *Pending) ID() string {
	return p.id
}

// Wait blocks until the call is included in a sealed block.
func (p *Pending) Wait(ctx context.Context) (*types.Receipt, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		r := p.receipt
		return &r, nil
	}
}

func (l *Ledger) openBlockLocked() *openBlock {
	if l.open == nil {
		l.open = &openBlock{
			height: l.head.Height + 1,
			time:   uint64(l.clock().Unix()),
		}
	}
	return l.open
}

func (l *Ledger) autoSealLocked(ctx context.Context) {
	if l.blockInterval > 0 {
		return
	}
	if err := l.sealLocked(ctx); err != nil {
		logging.FromContext(ctx).Error("failed to seal block", zap.Error(err))
	}
}

// Seal closes the open block, if any.
func (l *Ledger) Seal(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sealLocked(ctx)
}

func (l *Ledger) sealLocked(ctx context.Context) error {
	if l.open == nil || len(l.open.records) == 0 {
		return nil
	}
	started := time.Now()
	b := l.open

	block := blockRecord{
		Height: b.height,
		Time:   b.time,
		Parent: l.head.Hash,
	}
	for _, rec := range b.records {
		block.TxIDs = append(block.TxIDs, rec.TxID)
		block.Logs = append(block.Logs, rec.Log)
	}
	block.Hash = blockHash(block)

	if err := l.db.sealBlock(block); err != nil {
		return err
	}
	l.head = headRecord{Height: block.Height, Hash: block.Hash}
	l.open = nil

	logs := make([]types.Log, 0, len(block.Logs))
	for i, rec := range block.Logs {
		lg := toLog(block.Height, block.Hash, rec)
		logs = append(logs, lg)
		p := b.pending[i]
		p.receipt = types.Receipt{TxID: p.id, Height: block.Height, Logs: []types.Log{lg}}
		close(p.done)
	}

	heightMetric.Set(float64(block.Height))
	sealLatencyMetric.Observe(time.Since(started).Seconds())
	logging.FromContext(ctx).Debug("sealed block",
		zap.Uint64("height", block.Height),
		zap.Int("logs", len(logs)),
		zap.Binary("hash", block.Hash),
	)

	l.publish(logs)
	return nil
}

func blockHash(b blockRecord) []byte {
	h := sha256.New()
	h.Write(b.Parent)
	h.Write(binary.BigEndian.AppendUint64(nil, b.Height))
	h.Write(binary.BigEndian.AppendUint64(nil, b.Time))
	for _, lg := range b.Logs {
		h.Write([]byte(lg.Event))
		h.Write(lg.Subject)
		h.Write(lg.Amount)
		h.Write(binary.BigEndian.AppendUint32(nil, lg.Index))
	}
	return h.Sum(nil)
}

func toLog(height uint64, hash []byte, rec logRecord) types.Log {
	lg := types.Log{
		Event:       rec.Event,
		Subject:     types.BytesToAddress(rec.Subject),
		Time:        rec.Time,
		BlockNumber: height,
		LogIndex:    rec.Index,
		BlockHash:   append([]byte(nil), hash...),
	}
	if rec.Event == types.EventFundsWithdrawn {
		lg.Amount = new(big.Int).SetBytes(rec.Amount)
	}
	return lg
}

func hashParticipantNode(lChild, rChild []byte) []byte {
	h := sha256.New()
	h.Write([]byte{0x01})
	h.Write(lChild)
	h.Write(rChild)
	return h.Sum(nil)
}

// ParticipantsRoot commits to the participant list in registration order.
// The root of an empty list is nil.
func (l *Ledger) ParticipantsRoot() ([]byte, error) {
	participants := l.AllParticipants()
	if len(participants) == 0 {
		return nil, nil
	}
	tree, err := merkle.NewTreeBuilder().
		WithHashFunc(hashParticipantNode).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize merkle tree: %w", err)
	}
	for _, p := range participants {
		leaf := sha256.Sum256(p.Bytes())
		if err := tree.AddLeaf(leaf[:]); err != nil {
			return nil, err
		}
	}
	return tree.Root(), nil
}
