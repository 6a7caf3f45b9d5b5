// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhe

import (
	"fmt"
	"sync"

	"github.com/luxfi/fhe"
)

// BackendTFHE is the name reported by TFHEBackend.
const BackendTFHE = "tfhe"

var (
	// Singleton TFHE key material, shared by every TFHEBackend in the process
	tfheOnce  sync.Once
	evaluator *fhe.BitwiseEvaluator
	encryptor *fhe.BitwiseEncryptor
	decryptor *fhe.BitwiseDecryptor
	initErr   error
)

// initTFHE generates parameters and keys once per process
func initTFHE() error {
	tfheOnce.Do(func() {
		params, err := fhe.NewParametersFromLiteral(fhe.PN10QP27)
		if err != nil {
			initErr = err
			return
		}

		kg := fhe.NewKeyGenerator(params)
		secretKey, _ := kg.GenKeyPair()
		bsk := kg.GenBootstrapKey(secretKey)

		encryptor = fhe.NewBitwiseEncryptor(params, secretKey)
		decryptor = fhe.NewBitwiseDecryptor(params, secretKey)
		evaluator = fhe.NewBitwiseEvaluator(params, bsk, secretKey)
	})

	return initErr
}

// TFHEBackend evaluates over bitwise TFHE ciphertexts (github.com/luxfi/fhe).
// Booleans are stored as one-bit BitCiphertexts.
type TFHEBackend struct{}

// NewTFHEBackend initializes the process-wide TFHE keys.
func NewTFHEBackend() (*TFHEBackend, error) {
	if err := initTFHE(); err != nil {
		return nil, fmt.Errorf("tfhe init: %w", err)
	}
	return &TFHEBackend{}, nil
}

func (*TFHEBackend) Name() string { return BackendTFHE }

// tfheType converts a ciphertext type tag to the TFHE FheUintType
func tfheType(t Type) (fhe.FheUintType, error) {
	switch t {
	case TypeEbool:
		return fhe.FheBool, nil
	case TypeEuint8:
		return fhe.FheUint8, nil
	case TypeEuint16:
		return fhe.FheUint16, nil
	case TypeEuint32:
		return fhe.FheUint32, nil
	case TypeEuint64:
		return fhe.FheUint64, nil
	case TypeEuint128:
		return fhe.FheUint128, nil
	case TypeEuint256:
		return fhe.FheUint256, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrTypeMismatch, t)
	}
}

func serializeBits(ct *fhe.BitCiphertext) ([]byte, error) {
	if ct == nil {
		return nil, ErrOperationFailed
	}
	data, err := ct.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOperationFailed, err)
	}
	return data, nil
}

func deserializeBits(data []byte) (*fhe.BitCiphertext, error) {
	if len(data) == 0 {
		return nil, ErrInvalidCiphertext
	}
	ct := new(fhe.BitCiphertext)
	if err := ct.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}
	return ct, nil
}

func deserializePair(lhs, rhs []byte) (*fhe.BitCiphertext, *fhe.BitCiphertext, error) {
	a, err := deserializeBits(lhs)
	if err != nil {
		return nil, nil, err
	}
	b, err := deserializeBits(rhs)
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

func (*TFHEBackend) Encrypt(value uint64, t Type) ([]byte, error) {
	target, err := tfheType(t)
	if err != nil {
		return nil, err
	}
	return serializeBits(encryptor.EncryptUint64(value&t.mask(), target))
}

func (*TFHEBackend) Decrypt(ct []byte, t Type) (uint64, error) {
	in, err := deserializeBits(ct)
	if err != nil {
		return 0, err
	}
	return decryptor.DecryptUint64(in) & t.mask(), nil
}

// Cast zero-extends when widening and truncates when narrowing.
func (*TFHEBackend) Cast(ct []byte, _, to Type) ([]byte, error) {
	target, err := tfheType(to)
	if err != nil {
		return nil, err
	}
	in, err := deserializeBits(ct)
	if err != nil {
		return nil, err
	}
	return serializeBits(evaluator.CastTo(in, target))
}

func (*TFHEBackend) Add(lhs, rhs []byte, _ Type) ([]byte, error) {
	a, b, err := deserializePair(lhs, rhs)
	if err != nil {
		return nil, err
	}
	result, err := evaluator.Add(a, b)
	if err != nil {
		return nil, fmt.Errorf("%w: add: %v", ErrOperationFailed, err)
	}
	return serializeBits(result)
}

func (*TFHEBackend) Sub(lhs, rhs []byte, _ Type) ([]byte, error) {
	a, b, err := deserializePair(lhs, rhs)
	if err != nil {
		return nil, err
	}
	result, err := evaluator.Sub(a, b)
	if err != nil {
		return nil, fmt.Errorf("%w: sub: %v", ErrOperationFailed, err)
	}
	return serializeBits(result)
}

func (*TFHEBackend) Mul(lhs, rhs []byte, _ Type) ([]byte, error) {
	a, b, err := deserializePair(lhs, rhs)
	if err != nil {
		return nil, err
	}
	// Schoolbook multiplication over encrypted bits
	result, err := evaluator.Mul(a, b)
	if err != nil {
		return nil, fmt.Errorf("%w: mul: %v", ErrOperationFailed, err)
	}
	return serializeBits(result)
}

func (*TFHEBackend) ScalarMul(ct []byte, scalar uint64, _ Type) ([]byte, error) {
	in, err := deserializeBits(ct)
	if err != nil {
		return nil, err
	}
	result, err := evaluator.ScalarMul(in, scalar)
	if err != nil {
		return nil, fmt.Errorf("%w: scalar mul: %v", ErrOperationFailed, err)
	}
	return serializeBits(result)
}

func (*TFHEBackend) Eq(lhs, rhs []byte, _ Type) ([]byte, error) {
	a, b, err := deserializePair(lhs, rhs)
	if err != nil {
		return nil, err
	}
	bit, err := evaluator.Eq(a, b)
	if err != nil {
		return nil, fmt.Errorf("%w: eq: %v", ErrOperationFailed, err)
	}
	return serializeBits(fhe.WrapBoolCiphertext(bit))
}

func (*TFHEBackend) Ge(lhs, rhs []byte, _ Type) ([]byte, error) {
	a, b, err := deserializePair(lhs, rhs)
	if err != nil {
		return nil, err
	}
	bit, err := evaluator.Ge(a, b)
	if err != nil {
		return nil, fmt.Errorf("%w: ge: %v", ErrOperationFailed, err)
	}
	return serializeBits(fhe.WrapBoolCiphertext(bit))
}

func (*TFHEBackend) And(lhs, rhs []byte) ([]byte, error) {
	a, b, err := deserializePair(lhs, rhs)
	if err != nil {
		return nil, err
	}
	result, err := evaluator.And(a, b)
	if err != nil {
		return nil, fmt.Errorf("%w: and: %v", ErrOperationFailed, err)
	}
	return serializeBits(result)
}

// Select computes ifFalse + control*(ifTrue-ifFalse) after widening the
// one-bit control to the operand width, so the control never leaves the
// BitCiphertext encoding used for stored booleans.
func (*TFHEBackend) Select(control, ifTrue, ifFalse []byte, t Type) ([]byte, error) {
	target, err := tfheType(t)
	if err != nil {
		return nil, err
	}
	c, err := deserializeBits(control)
	if err != nil {
		return nil, err
	}
	a, b, err := deserializePair(ifTrue, ifFalse)
	if err != nil {
		return nil, err
	}

	wide := evaluator.CastTo(c, target)
	diff, err := evaluator.Sub(a, b)
	if err != nil {
		return nil, fmt.Errorf("%w: select: %v", ErrOperationFailed, err)
	}
	picked, err := evaluator.Mul(wide, diff)
	if err != nil {
		return nil, fmt.Errorf("%w: select: %v", ErrOperationFailed, err)
	}
	result, err := evaluator.Add(b, picked)
	if err != nil {
		return nil, fmt.Errorf("%w: select: %v", ErrOperationFailed, err)
	}
	return serializeBits(result)
}
