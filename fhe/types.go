// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhe

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
)

// Type is the ciphertext type tag carried in the last byte of every handle.
type Type uint8

// Ciphertext type constants - must match github.com/luxfi/fhe FheUintType
const (
	TypeEbool    Type = 0 // FheBool - 1 bit
	TypeEuint8   Type = 2 // FheUint8 - 8 bits
	TypeEuint16  Type = 3 // FheUint16 - 16 bits
	TypeEuint32  Type = 4 // FheUint32 - 32 bits
	TypeEuint64  Type = 5 // FheUint64 - 64 bits
	TypeEuint128 Type = 6 // FheUint128 - 128 bits
	TypeEuint256 Type = 8 // FheUint256 - 256 bits
)

// Bits returns the plaintext width of t, or 0 when t is not supported.
func (t Type) Bits() int {
	switch t {
	case TypeEbool:
		return 1
	case TypeEuint8:
		return 8
	case TypeEuint16:
		return 16
	case TypeEuint32:
		return 32
	case TypeEuint64:
		return 64
	case TypeEuint128:
		return 128
	case TypeEuint256:
		return 256
	default:
		return 0
	}
}

// Valid reports whether t is a supported ciphertext type.
func (t Type) Valid() bool { return t.Bits() != 0 }

func (t Type) String() string {
	switch t {
	case TypeEbool:
		return "ebool"
	case TypeEuint8:
		return "euint8"
	case TypeEuint16:
		return "euint16"
	case TypeEuint32:
		return "euint32"
	case TypeEuint64:
		return "euint64"
	case TypeEuint128:
		return "euint128"
	case TypeEuint256:
		return "euint256"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// mask returns the value mask for integer types, wrapping arithmetic to the
// type width the way the TFHE evaluator does.
func (t Type) mask() uint64 {
	bits := t.Bits()
	if bits >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << bits) - 1
}

// wideMask is mask for values held in 256 bits.
func (t Type) wideMask() *uint256.Int {
	bits := t.Bits()
	if bits >= 256 {
		return new(uint256.Int).SetAllOne()
	}
	m := new(uint256.Int).Lsh(uint256.NewInt(1), uint(bits))
	return m.SubUint64(m, 1)
}

// Handle is an opaque reference to a ciphertext held by the coprocessor.
// The final byte encodes the ciphertext Type.
type Handle common.Hash

// Hash returns the handle as a storage word.
func (h Handle) Hash() common.Hash { return common.Hash(h) }

// Type decodes the ciphertext type tag.
func (h Handle) Type() Type { return Type(h[common.HashLength-1]) }

// IsZero reports whether h is the unset handle.
func (h Handle) IsZero() bool { return h == Handle{} }

func (h Handle) String() string { return common.Hash(h).Hex() }

// ExternalInput is a client-encrypted value and the coprocessor's proof that
// it was encrypted for a specific (contract, user) pair.
type ExternalInput struct {
	Handle Handle
	Proof  []byte
}

// Gas costs for FHE operations
const (
	GasEncrypt     uint64 = 50000
	GasVerifyInput uint64 = 80000
	GasAdd         uint64 = 65000
	GasSub         uint64 = 65000
	GasMul         uint64 = 150000
	GasScalarMul   uint64 = 150000
	GasAnd         uint64 = 50000
	GasEq          uint64 = 60000
	GasGe          uint64 = 60000
	GasSelect      uint64 = 100000
	GasCast        uint64 = 20000
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrTypeMismatch      = errors.New("ciphertext type mismatch")
	ErrOperationFailed   = errors.New("FHE operation failed")
	ErrInvalidCiphertext = errors.New("invalid ciphertext handle")
	ErrProofInvalid      = errors.New("input proof verification failed")
	ErrAccessDenied      = errors.New("decryption not permitted for requester")
)
