// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package host runs contract calls one at a time with all-or-nothing
// state semantics: a call that returns an error leaves no trace in state.
package host

import (
	"fmt"
	"sync"
	"time"

	"github.com/luxfi/log"

	"github.com/luxfi/fheswap/state"
)

// Executor serializes calls against a single state.DB.
type Executor struct {
	// mu is held for the whole call
	mu sync.Mutex

	db      *state.DB
	clock   func() time.Time
	log     log.Logger
	metrics *Metrics

	calls    uint64
	reverted uint64
}

// New returns an executor over db. clock stamps each call's block time;
// nil means time.Now.
func New(db *state.DB, clock func() time.Time, logger log.Logger) *Executor {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = log.NewTestLogger(log.InfoLevel)
	}
	return &Executor{
		db:    db,
		clock: clock,
		log:   logger,
	}
}

// Call runs fn as one transaction. If fn fails every write it made is
// reverted and its error is returned; otherwise the writes are committed.
func (e *Executor) Call(name string, fn func(db *state.DB) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	e.calls++
	e.db.SetBlockTime(uint64(e.clock().Unix()))

	snap := e.db.Snapshot()
	if err := fn(e.db); err != nil {
		e.db.RevertToSnapshot(snap)
		e.reverted++
		e.metrics.observe(name, start, true)
		e.log.Debug("call reverted", "call", name, "err", err)
		return err
	}
	if err := e.db.Commit(); err != nil {
		e.db.Discard()
		e.reverted++
		e.metrics.observe(name, start, true)
		return fmt.Errorf("%s: %w", name, err)
	}
	e.metrics.observe(name, start, false)
	return nil
}

// SetMetrics attaches collectors to subsequent calls.
func (e *Executor) SetMetrics(m *Metrics) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.metrics = m
}

// View runs fn against current state and drops anything it writes.
func (e *Executor) View(fn func(db *state.DB) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.db.SetBlockTime(uint64(e.clock().Unix()))
	snap := e.db.Snapshot()
	defer e.db.RevertToSnapshot(snap)
	return fn(e.db)
}

// Stats returns the number of calls run and how many of them reverted.
func (e *Executor) Stats() (calls, reverted uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls, e.reverted
}
