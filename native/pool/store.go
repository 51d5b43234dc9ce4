package pool

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"givepool/core/types"
	"givepool/storage"
)

const (
	keyAggregate   = "pool/aggregate"
	keyReceivers   = "pool/receivers"
	keySnapshot    = "pool/snapshot"
	keyFailedIndex = "pool/failed/index"

	prefixUser    = "pool/user/"
	prefixAccount = "pool/account/"
	prefixFailed  = "pool/failed/rec/"
)

// Store persists all pool state in a key-value ledger using a JSON codec. The
// receiver set and failed-transfer index are kept in memory alongside their
// persisted form so membership checks and swap-with-last removals stay O(1).
type Store struct {
	db storage.Database

	receivers       [][20]byte
	receiverIdx     map[[20]byte]int
	receiversLoaded bool

	failed       [][20]byte
	failedIdx    map[[20]byte]int
	failedLoaded bool
}

// NewStore wraps the supplied database.
func NewStore(db storage.Database) *Store {
	return &Store{
		db:          db,
		receiverIdx: make(map[[20]byte]int),
		failedIdx:   make(map[[20]byte]int),
	}
}

func userKey(addr [20]byte) []byte {
	return []byte(prefixUser + hex.EncodeToString(addr[:]))
}

func accountKey(addr [20]byte) []byte {
	return []byte(prefixAccount + hex.EncodeToString(addr[:]))
}

func failedKey(addr [20]byte) []byte {
	return []byte(prefixFailed + hex.EncodeToString(addr[:]))
}

func (s *Store) getJSON(key []byte, out interface{}) (bool, error) {
	raw, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("pool store: get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("pool store: decode %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) putJSON(key []byte, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("pool store: encode %s: %w", key, err)
	}
	return s.db.Put(key, raw)
}

// Aggregate loads the pool-wide totals, returning a zeroed aggregate when the
// pool has never been touched.
func (s *Store) Aggregate() (*PoolAggregate, error) {
	agg := newPoolAggregate()
	if _, err := s.getJSON([]byte(keyAggregate), agg); err != nil {
		return nil, err
	}
	agg.normalize()
	return agg, nil
}

// SetAggregate persists the pool-wide totals.
func (s *Store) SetAggregate(agg *PoolAggregate) error {
	if agg == nil {
		return errors.New("pool store: nil aggregate")
	}
	agg.normalize()
	return s.putJSON([]byte(keyAggregate), agg)
}

// UserRecord loads a user's daily record. The second return reports whether
// the record existed.
func (s *Store) UserRecord(addr [20]byte) (*UserDailyRecord, bool, error) {
	rec := &UserDailyRecord{}
	ok, err := s.getJSON(userKey(addr), rec)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	rec.normalize()
	return rec, true, nil
}

// PutUserRecord persists a user's daily record.
func (s *Store) PutUserRecord(addr [20]byte, rec *UserDailyRecord) error {
	if rec == nil {
		return errors.New("pool store: nil user record")
	}
	rec.normalize()
	return s.putJSON(userKey(addr), rec)
}

// Account loads a balance account, returning a zeroed account when absent.
func (s *Store) Account(addr [20]byte) (*types.Account, error) {
	acc := &types.Account{}
	if _, err := s.getJSON(accountKey(addr), acc); err != nil {
		return nil, err
	}
	acc.EnsureBalances()
	return acc, nil
}

// PutAccount persists a balance account.
func (s *Store) PutAccount(addr [20]byte, acc *types.Account) error {
	if acc == nil {
		return errors.New("pool store: nil account")
	}
	acc.EnsureBalances()
	return s.putJSON(accountKey(addr), acc)
}

// --- Receiver set ---

func (s *Store) ensureReceivers() error {
	if s.receiversLoaded {
		return nil
	}
	var list [][20]byte
	if _, err := s.getJSON([]byte(keyReceivers), &list); err != nil {
		return err
	}
	s.receivers = list
	s.receiverIdx = make(map[[20]byte]int, len(list))
	for i, addr := range list {
		s.receiverIdx[addr] = i
	}
	s.receiversLoaded = true
	return nil
}

func (s *Store) persistReceivers() error {
	return s.putJSON([]byte(keyReceivers), s.receivers)
}

// Receivers returns a copy of the live receiver set in arena order.
func (s *Store) Receivers() ([][20]byte, error) {
	if err := s.ensureReceivers(); err != nil {
		return nil, err
	}
	out := make([][20]byte, len(s.receivers))
	copy(out, s.receivers)
	return out, nil
}

// ReceiverCount returns the live receiver set size.
func (s *Store) ReceiverCount() (uint64, error) {
	if err := s.ensureReceivers(); err != nil {
		return 0, err
	}
	return uint64(len(s.receivers)), nil
}

// IsReceiver reports membership in the live receiver set.
func (s *Store) IsReceiver(addr [20]byte) (bool, error) {
	if err := s.ensureReceivers(); err != nil {
		return false, err
	}
	_, ok := s.receiverIdx[addr]
	return ok, nil
}

// AddReceiver appends an address to the arena.
func (s *Store) AddReceiver(addr [20]byte) error {
	if err := s.ensureReceivers(); err != nil {
		return err
	}
	if _, ok := s.receiverIdx[addr]; ok {
		return ErrAlreadyReceiver
	}
	s.receivers = append(s.receivers, addr)
	s.receiverIdx[addr] = len(s.receivers) - 1
	return s.persistReceivers()
}

// RemoveReceiver removes an address via swap-with-last. Iteration order is not
// stable across removals.
func (s *Store) RemoveReceiver(addr [20]byte) error {
	if err := s.ensureReceivers(); err != nil {
		return err
	}
	i, ok := s.receiverIdx[addr]
	if !ok {
		return ErrNotReceiver
	}
	last := len(s.receivers) - 1
	if i != last {
		moved := s.receivers[last]
		s.receivers[i] = moved
		s.receiverIdx[moved] = i
	}
	s.receivers = s.receivers[:last]
	delete(s.receiverIdx, addr)
	return s.persistReceivers()
}

// ClearReceivers empties the live set. Used when a distribution snapshot is
// taken.
func (s *Store) ClearReceivers() error {
	if err := s.ensureReceivers(); err != nil {
		return err
	}
	s.receivers = nil
	s.receiverIdx = make(map[[20]byte]int)
	return s.persistReceivers()
}

// --- Failed transfer registry ---

func (s *Store) ensureFailed() error {
	if s.failedLoaded {
		return nil
	}
	var list [][20]byte
	if _, err := s.getJSON([]byte(keyFailedIndex), &list); err != nil {
		return err
	}
	s.failed = list
	s.failedIdx = make(map[[20]byte]int, len(list))
	for i, addr := range list {
		s.failedIdx[addr] = i
	}
	s.failedLoaded = true
	return nil
}

func (s *Store) persistFailedIndex() error {
	return s.putJSON([]byte(keyFailedIndex), s.failed)
}

// FailedTransfer loads the outstanding record for a receiver.
func (s *Store) FailedTransfer(addr [20]byte) (*FailedTransfer, bool, error) {
	rec := &FailedTransfer{}
	ok, err := s.getJSON(failedKey(addr), rec)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	if rec.AmountWei == nil {
		rec.AmountWei = big.NewInt(0)
	}
	return rec, true, nil
}

// PutFailedTransfer inserts or overwrites the record for its receiver and
// keeps the reverse index consistent.
func (s *Store) PutFailedTransfer(rec *FailedTransfer) error {
	if rec == nil {
		return errors.New("pool store: nil failed transfer")
	}
	if err := s.ensureFailed(); err != nil {
		return err
	}
	if err := s.putJSON(failedKey(rec.Receiver), rec); err != nil {
		return err
	}
	if _, ok := s.failedIdx[rec.Receiver]; !ok {
		s.failed = append(s.failed, rec.Receiver)
		s.failedIdx[rec.Receiver] = len(s.failed) - 1
		return s.persistFailedIndex()
	}
	return nil
}

// DeleteFailedTransfer removes the record and its index entry.
func (s *Store) DeleteFailedTransfer(addr [20]byte) error {
	if err := s.ensureFailed(); err != nil {
		return err
	}
	i, ok := s.failedIdx[addr]
	if !ok {
		return ErrNoFailedTransfer
	}
	if err := s.db.Delete(failedKey(addr)); err != nil {
		return err
	}
	last := len(s.failed) - 1
	if i != last {
		moved := s.failed[last]
		s.failed[i] = moved
		s.failedIdx[moved] = i
	}
	s.failed = s.failed[:last]
	delete(s.failedIdx, addr)
	return s.persistFailedIndex()
}

// FailedIndex returns a copy of the failure index in arena order.
func (s *Store) FailedIndex() ([][20]byte, error) {
	if err := s.ensureFailed(); err != nil {
		return nil, err
	}
	out := make([][20]byte, len(s.failed))
	copy(out, s.failed)
	return out, nil
}

// --- Distribution snapshot ---

// Snapshot loads the in-progress distribution snapshot, if any.
func (s *Store) Snapshot() (*distributionSnapshot, bool, error) {
	snap := &distributionSnapshot{}
	ok, err := s.getJSON([]byte(keySnapshot), snap)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	snap.normalize()
	return snap, true, nil
}

// SetSnapshot persists the distribution snapshot.
func (s *Store) SetSnapshot(snap *distributionSnapshot) error {
	if snap == nil {
		return errors.New("pool store: nil snapshot")
	}
	snap.normalize()
	return s.putJSON([]byte(keySnapshot), snap)
}

// ClearSnapshot removes the snapshot at the end of a run.
func (s *Store) ClearSnapshot() error {
	has, err := s.db.Has([]byte(keySnapshot))
	if err != nil {
		return err
	}
	if !has {
		return nil
	}
	return s.db.Delete([]byte(keySnapshot))
}
