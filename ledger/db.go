package ledger

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	xdr "github.com/nullstyle/go-xdr/xdr3"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/eventreg/eventreg/types"
)

var ErrNotFound = leveldb.ErrNotFound

var (
	keyGenesis   = []byte("meta/genesis")
	keyBalance   = []byte("state/balance")
	keyCollected = []byte("state/collected")
	keyHead      = []byte("state/head")

	prefixRegistered  = []byte("reg/")
	prefixParticipant = []byte("part/")
	prefixPayout      = []byte("payout/")
	prefixPending     = []byte("pending/")
	prefixBlock       = []byte("block/")
)

type genesisRecord struct {
	Owner   []byte
	Fee     []byte
	ChainID uint64
}

type logRecord struct {
	Event   string
	Subject []byte
	Time    uint64
	Amount  []byte
	Index   uint32
}

// pendingRecord is an executed call whose block is not sealed yet.
type pendingRecord struct {
	Height uint64
	Time   uint64
	TxID   string
	Log    logRecord
}

type blockRecord struct {
	Height uint64
	Time   uint64
	Hash   []byte
	Parent []byte
	TxIDs  []string
	Logs   []logRecord
}

type headRecord struct {
	Height uint64
	Hash   []byte
}

// snapshot is the state reloaded when the ledger is reopened.
type snapshot struct {
	participants []types.Address
	registered   map[types.Address]uint64
	payouts      map[types.Address]*big.Int
	balance      *big.Int
	collected    *big.Int
	head         headRecord
	pending      []pendingRecord
}

type database struct {
	db *leveldb.DB
}

func newDatabase(dbPath string) (*database, error) {
	db, err := leveldb.OpenFile(dbPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database @ %s: %w", dbPath, err)
	}

	return &database{db}, nil
}

func (db *database) Close() error {
	return db.db.Close()
}

func (db *database) loadGenesis() (*genesisRecord, error) {
	data, err := db.db.Get(keyGenesis, nil)
	if err != nil {
		return nil, err
	}
	g := &genesisRecord{}
	if err := unmarshal(data, g); err != nil {
		return nil, fmt.Errorf("decoding genesis: %w", err)
	}
	return g, nil
}

func (db *database) saveGenesis(g genesisRecord) error {
	data, err := marshal(g)
	if err != nil {
		return err
	}
	trans, err := db.db.OpenTransaction()
	if err != nil {
		return err
	}
	if err := trans.Put(keyGenesis, data, nil); err != nil {
		trans.Discard()
		return fmt.Errorf("saving genesis: %w", err)
	}
	if err := putAmount(trans, keyBalance, new(big.Int)); err != nil {
		trans.Discard()
		return err
	}
	if err := putAmount(trans, keyCollected, new(big.Int)); err != nil {
		trans.Discard()
		return err
	}
	return trans.Commit()
}

func (db *database) load() (*snapshot, error) {
	s := &snapshot{
		registered: make(map[types.Address]uint64),
		payouts:    make(map[types.Address]*big.Int),
		balance:    new(big.Int),
		collected:  new(big.Int),
	}
	var err error
	if s.balance, err = db.getAmount(keyBalance); err != nil {
		return nil, fmt.Errorf("loading balance: %w", err)
	}
	if s.collected, err = db.getAmount(keyCollected); err != nil {
		return nil, fmt.Errorf("loading collected total: %w", err)
	}

	data, err := db.db.Get(keyHead, nil)
	switch {
	case errors.Is(err, leveldb.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("loading head: %w", err)
	default:
		if err := unmarshal(data, &s.head); err != nil {
			return nil, fmt.Errorf("decoding head: %w", err)
		}
	}

	iter := db.db.NewIterator(util.BytesPrefix(prefixParticipant), nil)
	for iter.Next() {
		addr := types.BytesToAddress(iter.Value())
		s.participants = append(s.participants, addr)
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("loading participants: %w", err)
	}

	iter = db.db.NewIterator(util.BytesPrefix(prefixRegistered), nil)
	for iter.Next() {
		addr := types.BytesToAddress(iter.Key()[len(prefixRegistered):])
		s.registered[addr] = binary.BigEndian.Uint64(iter.Value())
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("loading registrations: %w", err)
	}

	iter = db.db.NewIterator(util.BytesPrefix(prefixPayout), nil)
	for iter.Next() {
		addr := types.BytesToAddress(iter.Key()[len(prefixPayout):])
		s.payouts[addr] = new(big.Int).SetBytes(iter.Value())
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("loading payouts: %w", err)
	}

	iter = db.db.NewIterator(util.BytesPrefix(prefixPending), nil)
	for iter.Next() {
		rec := pendingRecord{}
		if err := unmarshal(iter.Value(), &rec); err != nil {
			iter.Release()
			return nil, fmt.Errorf("decoding pending call %X: %w", iter.Key(), err)
		}
		s.pending = append(s.pending, rec)
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("loading pending calls: %w", err)
	}

	return s, nil
}

func (db *database) commitRegistration(
	addr types.Address,
	index uint64,
	balance, collected *big.Int,
	pending pendingRecord,
) error {
	trans, err := db.db.OpenTransaction()
	if err != nil {
		return err
	}
	if err := trans.Put(registeredKey(addr), uint64Bytes(index), nil); err != nil {
		trans.Discard()
		return fmt.Errorf("storing registration: %w", err)
	}
	if err := trans.Put(participantKey(index), addr.Bytes(), nil); err != nil {
		trans.Discard()
		return fmt.Errorf("storing participant: %w", err)
	}
	if err := putAmount(trans, keyBalance, balance); err != nil {
		trans.Discard()
		return err
	}
	if err := putAmount(trans, keyCollected, collected); err != nil {
		trans.Discard()
		return err
	}
	if err := putPending(trans, pending); err != nil {
		trans.Discard()
		return err
	}
	return trans.Commit()
}

func (db *database) commitWithdrawal(owner types.Address, payout *big.Int, pending pendingRecord) error {
	trans, err := db.db.OpenTransaction()
	if err != nil {
		return err
	}
	if err := putAmount(trans, keyBalance, new(big.Int)); err != nil {
		trans.Discard()
		return err
	}
	if err := putAmount(trans, payoutKey(owner), payout); err != nil {
		trans.Discard()
		return err
	}
	if err := putPending(trans, pending); err != nil {
		trans.Discard()
		return err
	}
	return trans.Commit()
}

// sealBlock persists a block and drops the pending calls it contains.
func (db *database) sealBlock(block blockRecord) error {
	data, err := marshal(block)
	if err != nil {
		return err
	}
	head, err := marshal(headRecord{Height: block.Height, Hash: block.Hash})
	if err != nil {
		return err
	}
	batch := new(leveldb.Batch)
	batch.Put(blockKey(block.Height), data)
	batch.Put(keyHead, head)
	for _, lg := range block.Logs {
		batch.Delete(pendingKey(block.Height, lg.Index))
	}
	if err := db.db.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("storing block %d: %w", block.Height, err)
	}
	return nil
}

// blocks returns sealed blocks with heights in [from, to].
func (db *database) blocks(from, to uint64) ([]blockRecord, error) {
	if to < from {
		return nil, nil
	}
	limit := blockKey(to + 1)
	if to == ^uint64(0) {
		limit = util.BytesPrefix(prefixBlock).Limit
	}
	iter := db.db.NewIterator(&util.Range{Start: blockKey(from), Limit: limit}, nil)
	defer iter.Release()

	var blocks []blockRecord
	for iter.Next() {
		rec := blockRecord{}
		if err := unmarshal(iter.Value(), &rec); err != nil {
			return nil, fmt.Errorf("decoding block %X: %w", iter.Key(), err)
		}
		blocks = append(blocks, rec)
	}
	return blocks, iter.Error()
}

func (db *database) getAmount(key []byte) (*big.Int, error) {
	data, err := db.db.Get(key, nil)
	switch {
	case errors.Is(err, leveldb.ErrNotFound):
		return new(big.Int), nil
	case err != nil:
		return nil, err
	}
	return new(big.Int).SetBytes(data), nil
}

func putAmount(trans *leveldb.Transaction, key []byte, v *big.Int) error {
	if err := trans.Put(key, v.Bytes(), nil); err != nil {
		return fmt.Errorf("storing %s: %w", key, err)
	}
	return nil
}

func putPending(trans *leveldb.Transaction, rec pendingRecord) error {
	data, err := marshal(rec)
	if err != nil {
		return err
	}
	if err := trans.Put(pendingKey(rec.Height, rec.Log.Index), data, nil); err != nil {
		return fmt.Errorf("storing pending call: %w", err)
	}
	return nil
}

func registeredKey(addr types.Address) []byte {
	return append(append([]byte{}, prefixRegistered...), addr.Bytes()...)
}

func participantKey(index uint64) []byte {
	return append(append([]byte{}, prefixParticipant...), uint64Bytes(index)...)
}

func payoutKey(addr types.Address) []byte {
	return append(append([]byte{}, prefixPayout...), addr.Bytes()...)
}

func pendingKey(height uint64, index uint32) []byte {
	key := append(append([]byte{}, prefixPending...), uint64Bytes(height)...)
	return binary.BigEndian.AppendUint32(key, index)
}

func blockKey(height uint64) []byte {
	return append(append([]byte{}, prefixBlock...), uint64Bytes(height)...)
}

func uint64Bytes(v uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, v)
}

func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, v); err != nil {
		return nil, fmt.Errorf("serialization failure: %w", err)
	}
	return buf.Bytes(), nil
}

func unmarshal(data []byte, v any) error {
	if _, err := xdr.Unmarshal(bytes.NewReader(data), v); err != nil {
		return fmt.Errorf("failed to deserialize: %w", err)
	}
	return nil
}
