// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhe

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Backend evaluates operations over serialized ciphertexts. Comparison
// results are ebool ciphertexts; Select takes an ebool control.
// A Backend never exposes plaintexts except through Decrypt.
type Backend interface {
	Name() string
	Encrypt(value uint64, t Type) ([]byte, error)
	// Decrypt returns the low 64 bits of the plaintext.
	Decrypt(ct []byte, t Type) (uint64, error)
	// Cast widens or narrows an integer ciphertext from one type to another.
	Cast(ct []byte, from, to Type) ([]byte, error)

	Add(lhs, rhs []byte, t Type) ([]byte, error)
	Sub(lhs, rhs []byte, t Type) ([]byte, error)
	Mul(lhs, rhs []byte, t Type) ([]byte, error)
	ScalarMul(ct []byte, scalar uint64, t Type) ([]byte, error)

	Eq(lhs, rhs []byte, t Type) ([]byte, error)
	Ge(lhs, rhs []byte, t Type) ([]byte, error)
	And(lhs, rhs []byte) ([]byte, error)
	Select(control, ifTrue, ifFalse []byte, t Type) ([]byte, error)
}

// BackendClear is the name reported by ClearBackend.
const BackendClear = "clear"

// ClearBackend carries plaintexts inside the ciphertext envelope. It gives
// the coprocessor the exact arithmetic semantics of the TFHE backend
// (width-wrapped unsigned integers, 0/1 booleans) without the cost, and is
// meant for development networks and tests.
type ClearBackend struct{}

// NewClearBackend returns a plaintext development backend.
func NewClearBackend() *ClearBackend { return &ClearBackend{} }

func (*ClearBackend) Name() string { return BackendClear }

func (*ClearBackend) Encrypt(value uint64, t Type) ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrTypeMismatch, t)
	}
	v := uint256.NewInt(value)
	return encodeClear(v.And(v, t.wideMask())), nil
}

func (*ClearBackend) Decrypt(ct []byte, t Type) (uint64, error) {
	v, err := decodeClear(ct, t)
	if err != nil {
		return 0, err
	}
	return v.Uint64(), nil
}

func (*ClearBackend) Cast(ct []byte, from, to Type) ([]byte, error) {
	v, err := decodeClear(ct, from)
	if err != nil {
		return nil, err
	}
	if !to.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrTypeMismatch, to)
	}
	return encodeClear(v.And(v, to.wideMask())), nil
}

func (*ClearBackend) Add(lhs, rhs []byte, t Type) ([]byte, error) {
	return clearBinary(lhs, rhs, t, (*uint256.Int).Add)
}

func (*ClearBackend) Sub(lhs, rhs []byte, t Type) ([]byte, error) {
	return clearBinary(lhs, rhs, t, (*uint256.Int).Sub)
}

func (*ClearBackend) Mul(lhs, rhs []byte, t Type) ([]byte, error) {
	return clearBinary(lhs, rhs, t, (*uint256.Int).Mul)
}

func (*ClearBackend) ScalarMul(ct []byte, scalar uint64, t Type) ([]byte, error) {
	v, err := decodeClear(ct, t)
	if err != nil {
		return nil, err
	}
	v.Mul(v, uint256.NewInt(scalar))
	return encodeClear(v.And(v, t.wideMask())), nil
}

func (*ClearBackend) Eq(lhs, rhs []byte, t Type) ([]byte, error) {
	return clearCompare(lhs, rhs, t, func(a, b *uint256.Int) bool { return a.Eq(b) })
}

func (*ClearBackend) Ge(lhs, rhs []byte, t Type) ([]byte, error) {
	return clearCompare(lhs, rhs, t, func(a, b *uint256.Int) bool { return !a.Lt(b) })
}

func (*ClearBackend) And(lhs, rhs []byte) ([]byte, error) {
	return clearBinary(lhs, rhs, TypeEbool, (*uint256.Int).And)
}

func (*ClearBackend) Select(control, ifTrue, ifFalse []byte, t Type) ([]byte, error) {
	c, err := decodeClear(control, TypeEbool)
	if err != nil {
		return nil, err
	}
	a, err := decodeClear(ifTrue, t)
	if err != nil {
		return nil, err
	}
	b, err := decodeClear(ifFalse, t)
	if err != nil {
		return nil, err
	}
	// c is 0 or 1; blend both operands so the work does not depend on c.
	notC := new(uint256.Int).Sub(uint256.NewInt(1), c)
	a.Mul(a, c)
	b.Mul(b, notC)
	return encodeClear(a.Add(a, b)), nil
}

func clearBinary(lhs, rhs []byte, t Type, fn func(z, x, y *uint256.Int) *uint256.Int) ([]byte, error) {
	a, err := decodeClear(lhs, t)
	if err != nil {
		return nil, err
	}
	b, err := decodeClear(rhs, t)
	if err != nil {
		return nil, err
	}
	v := fn(new(uint256.Int), a, b)
	return encodeClear(v.And(v, t.wideMask())), nil
}

func clearCompare(lhs, rhs []byte, t Type, fn func(a, b *uint256.Int) bool) ([]byte, error) {
	a, err := decodeClear(lhs, t)
	if err != nil {
		return nil, err
	}
	b, err := decodeClear(rhs, t)
	if err != nil {
		return nil, err
	}
	bit := new(uint256.Int)
	if fn(a, b) {
		bit.SetOne()
	}
	return encodeClear(bit), nil
}

// Clear ciphertexts are 32-byte big-endian words for every type.
func encodeClear(v *uint256.Int) []byte {
	b := v.Bytes32()
	return b[:]
}

func decodeClear(ct []byte, t Type) (*uint256.Int, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrTypeMismatch, t)
	}
	if len(ct) != 32 {
		return nil, fmt.Errorf("%w: clear ciphertext length %d", ErrInvalidCiphertext, len(ct))
	}
	v := new(uint256.Int).SetBytes32(ct)
	if v.BitLen() > t.Bits() {
		return nil, fmt.Errorf("%w: value exceeds %s", ErrInvalidCiphertext, t)
	}
	return v, nil
}
