// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package state provides the journaled storage that contracts read and
// write during a call. Writes stay in memory until Commit; any prefix of a
// call can be undone with RevertToSnapshot.
package state

import (
	"errors"
	"fmt"

	"github.com/luxfi/database"
	"github.com/luxfi/geth/common"
)

type slot struct {
	addr common.Address
	key  common.Hash
}

type journalEntry struct {
	slot    slot
	prev    common.Hash
	hadPrev bool
}

// DB is a slot store over a luxfi/database backend.
type DB struct {
	db database.Database

	// dirty holds uncommitted writes
	dirty   map[slot]common.Hash
	journal []journalEntry

	blockTime uint64

	// dbErr is the first backend read failure; Commit refuses to write
	// after one
	dbErr error
}

// New returns a DB reading through to db.
func New(db database.Database) *DB {
	return &DB{
		db:    db,
		dirty: make(map[slot]common.Hash),
	}
}

func dbKey(s slot) []byte {
	k := make([]byte, 0, common.AddressLength+common.HashLength)
	k = append(k, s.addr.Bytes()...)
	return append(k, s.key.Bytes()...)
}

// GetState returns the value at (addr, key); unset slots read as zero.
func (s *DB) GetState(addr common.Address, key common.Hash) common.Hash {
	sl := slot{addr: addr, key: key}
	if v, ok := s.dirty[sl]; ok {
		return v
	}
	b, err := s.db.Get(dbKey(sl))
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) && s.dbErr == nil {
			s.dbErr = fmt.Errorf("read slot %s/%s: %w", addr, key, err)
		}
		return common.Hash{}
	}
	return common.BytesToHash(b)
}

// SetState writes value at (addr, key) and journals the previous value.
func (s *DB) SetState(addr common.Address, key common.Hash, value common.Hash) {
	sl := slot{addr: addr, key: key}
	prev, hadPrev := s.dirty[sl]
	s.journal = append(s.journal, journalEntry{slot: sl, prev: prev, hadPrev: hadPrev})
	s.dirty[sl] = value
}

// Snapshot returns an identifier for the current journal position.
func (s *DB) Snapshot() int { return len(s.journal) }

// RevertToSnapshot undoes every write made after id was taken.
func (s *DB) RevertToSnapshot(id int) {
	if id < 0 || id > len(s.journal) {
		return
	}
	for i := len(s.journal) - 1; i >= id; i-- {
		e := s.journal[i]
		if e.hadPrev {
			s.dirty[e.slot] = e.prev
		} else {
			delete(s.dirty, e.slot)
		}
	}
	s.journal = s.journal[:id]
}

// Commit writes the dirty set to the backend in one batch and clears the
// journal. Zero values delete their slot.
func (s *DB) Commit() error {
	if s.dbErr != nil {
		return s.dbErr
	}
	batch := s.db.NewBatch()
	for sl, v := range s.dirty {
		var err error
		if v == (common.Hash{}) {
			err = batch.Delete(dbKey(sl))
		} else {
			err = batch.Put(dbKey(sl), v.Bytes())
		}
		if err != nil {
			return fmt.Errorf("stage slot %s/%s: %w", sl.addr, sl.key, err)
		}
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("commit state: %w", err)
	}
	s.dirty = make(map[slot]common.Hash)
	s.journal = s.journal[:0]
	return nil
}

// Discard drops every uncommitted write.
func (s *DB) Discard() {
	s.dirty = make(map[slot]common.Hash)
	s.journal = s.journal[:0]
	s.dbErr = nil
}

// GetBlockTime returns the timestamp of the call being executed, in unix
// seconds.
func (s *DB) GetBlockTime() uint64 { return s.blockTime }

// SetBlockTime sets the timestamp seen by contracts.
func (s *DB) SetBlockTime(ts uint64) { s.blockTime = ts }
