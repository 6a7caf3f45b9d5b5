// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhe

import "sync"

// Op names a metered coprocessor operation.
type Op string

const (
	OpTrivialEncrypt Op = "trivialEncrypt"
	OpVerifyInput    Op = "verifyInput"
	OpAdd            Op = "add"
	OpSub            Op = "sub"
	OpMul            Op = "mul"
	OpScalarMul      Op = "scalarMul"
	OpEq             Op = "eq"
	OpGe             Op = "ge"
	OpAnd            Op = "and"
	OpSelect         Op = "select"
	OpCast           Op = "cast"
)

var opGas = map[Op]uint64{
	OpTrivialEncrypt: GasEncrypt,
	OpVerifyInput:    GasVerifyInput,
	OpAdd:            GasAdd,
	OpSub:            GasSub,
	OpMul:            GasMul,
	OpScalarMul:      GasScalarMul,
	OpEq:             GasEq,
	OpGe:             GasGe,
	OpAnd:            GasAnd,
	OpSelect:         GasSelect,
	OpCast:           GasCast,
}

// Gas returns the cost charged for op.
func (op Op) Gas() uint64 { return opGas[op] }

// Meter accumulates gas and the ordered trace of evaluated operations.
// Two calls that must be indistinguishable to an observer produce equal
// traces.
type Meter struct {
	mu    sync.Mutex
	gas   uint64
	trace []Op
}

func (m *Meter) charge(op Op) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.gas += op.Gas()
	m.trace = append(m.trace, op)
}

// Gas returns the total gas charged since the last Reset.
func (m *Meter) Gas() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gas
}

// Trace returns a copy of the operations evaluated since the last Reset.
func (m *Meter) Trace() []Op {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Op, len(m.trace))
	copy(out, m.trace)
	return out
}

// Reset clears the accumulated gas and trace.
func (m *Meter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.gas = 0
	m.trace = nil
}
