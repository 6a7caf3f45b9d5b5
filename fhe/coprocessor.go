// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhe

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
	"github.com/zeebo/blake3"
)

// Substrate is the encrypted-arithmetic capability set available to
// contracts. There is deliberately no division. Every evaluation either
// returns a fresh handle or a hard error; nothing reveals a plaintext
// except Decrypt, which is gated by the ACL.
type Substrate interface {
	// Contract side
	TrivialEncrypt(value uint64, t Type) (Handle, error)
	Verify(in ExternalInput, contract, user common.Address) (Handle, error)
	Add(lhs, rhs Handle) (Handle, error)
	Sub(lhs, rhs Handle) (Handle, error)
	Mul(lhs, rhs Handle) (Handle, error)
	ScalarMul(ct Handle, scalar uint64) (Handle, error)
	Eq(lhs, rhs Handle) (Handle, error)
	Ge(lhs, rhs Handle) (Handle, error)
	And(lhs, rhs Handle) (Handle, error)
	Select(control, ifTrue, ifFalse Handle) (Handle, error)
	Cast(h Handle, t Type) (Handle, error)
	Allow(h Handle, account common.Address)
	IsAllowed(h Handle, account common.Address) bool

	// Client side
	EncryptInput(value uint64, t Type, contract, user common.Address) (ExternalInput, error)
	Decrypt(h Handle, requester common.Address) (uint64, error)
}

type ciphertext struct {
	data []byte
	typ  Type
}

// Coprocessor implements Substrate over a Backend. It owns the ciphertext
// store, the ACL, the input signer and the gas meter.
type Coprocessor struct {
	mu sync.RWMutex

	backend Backend
	signer  *InputSigner
	acl     *ACL
	meter   *Meter
	log     log.Logger

	// ciphertexts stores every evaluated value by handle
	// Key: BLAKE3(ciphertext || nonce) with the type in the last byte
	ciphertexts map[Handle]ciphertext
	nonce       uint64
}

var _ Substrate = (*Coprocessor)(nil)

// NewCoprocessor creates a coprocessor with a fresh input-signing key.
func NewCoprocessor(backend Backend, logger log.Logger) (*Coprocessor, error) {
	signer, err := NewInputSigner()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewTestLogger(log.InfoLevel)
	}
	return &Coprocessor{
		backend:     backend,
		signer:      signer,
		acl:         NewACL(),
		meter:       &Meter{},
		log:         logger,
		ciphertexts: make(map[Handle]ciphertext),
	}, nil
}

// Backend returns the evaluation backend name.
func (c *Coprocessor) Backend() string { return c.backend.Name() }

// Meter exposes the gas meter shared by every evaluation.
func (c *Coprocessor) Meter() *Meter { return c.meter }

// PublicKey returns the input-proof verification key.
func (c *Coprocessor) PublicKey() []byte { return c.signer.PublicKey() }

// storeCiphertext stores a ciphertext and returns its handle
func (c *Coprocessor) storeCiphertext(data []byte, t Type) Handle {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nonce++
	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], c.nonce)

	h := blake3.New()
	h.Write(data)
	h.Write(nonce[:])
	var handle Handle
	h.Digest().Read(handle[:])
	handle[common.HashLength-1] = byte(t)

	c.ciphertexts[handle] = ciphertext{data: data, typ: t}
	return handle
}

// getCiphertext retrieves a ciphertext by handle
func (c *Coprocessor) getCiphertext(h Handle) (ciphertext, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ct, ok := c.ciphertexts[h]
	if !ok {
		return ciphertext{}, fmt.Errorf("%w: %s", ErrInvalidCiphertext, h)
	}
	return ct, nil
}

func (c *Coprocessor) getPair(lhs, rhs Handle) (ciphertext, ciphertext, error) {
	a, err := c.getCiphertext(lhs)
	if err != nil {
		return ciphertext{}, ciphertext{}, err
	}
	b, err := c.getCiphertext(rhs)
	if err != nil {
		return ciphertext{}, ciphertext{}, err
	}
	if a.typ != b.typ {
		return ciphertext{}, ciphertext{}, fmt.Errorf("%w: %s vs %s", ErrTypeMismatch, a.typ, b.typ)
	}
	return a, b, nil
}

// =========================================================================
// Contract-side operations
// =========================================================================

// TrivialEncrypt encrypts a public constant.
func (c *Coprocessor) TrivialEncrypt(value uint64, t Type) (Handle, error) {
	if !t.Valid() {
		return Handle{}, fmt.Errorf("%w: %s", ErrInvalidInput, t)
	}
	data, err := c.backend.Encrypt(value, t)
	if err != nil {
		return Handle{}, err
	}
	c.meter.charge(OpTrivialEncrypt)
	return c.storeCiphertext(data, t), nil
}

// Verify checks an external input's proof against (contract, user) and
// grants contract access to the handle.
func (c *Coprocessor) Verify(in ExternalInput, contract, user common.Address) (Handle, error) {
	if _, err := c.getCiphertext(in.Handle); err != nil {
		return Handle{}, fmt.Errorf("%w: %v", ErrProofInvalid, err)
	}
	if err := VerifyInputProof(c.signer.PublicKey(), in, contract, user); err != nil {
		c.log.Debug("input proof rejected", "handle", in.Handle, "contract", contract, "user", user)
		return Handle{}, err
	}
	c.meter.charge(OpVerifyInput)
	c.acl.Allow(in.Handle, contract)
	return in.Handle, nil
}

func (c *Coprocessor) arith(op Op, lhs, rhs Handle, fn func(a, b []byte, t Type) ([]byte, error)) (Handle, error) {
	a, b, err := c.getPair(lhs, rhs)
	if err != nil {
		return Handle{}, err
	}
	if a.typ == TypeEbool {
		return Handle{}, fmt.Errorf("%w: %s on ebool", ErrTypeMismatch, op)
	}
	data, err := fn(a.data, b.data, a.typ)
	if err != nil {
		return Handle{}, err
	}
	c.meter.charge(op)
	return c.storeCiphertext(data, a.typ), nil
}

func (c *Coprocessor) compare(op Op, lhs, rhs Handle, fn func(a, b []byte, t Type) ([]byte, error)) (Handle, error) {
	a, b, err := c.getPair(lhs, rhs)
	if err != nil {
		return Handle{}, err
	}
	data, err := fn(a.data, b.data, a.typ)
	if err != nil {
		return Handle{}, err
	}
	c.meter.charge(op)
	return c.storeCiphertext(data, TypeEbool), nil
}

// Add returns lhs + rhs, wrapping at the type width.
func (c *Coprocessor) Add(lhs, rhs Handle) (Handle, error) {
	return c.arith(OpAdd, lhs, rhs, c.backend.Add)
}

// Sub returns lhs - rhs, wrapping at the type width.
func (c *Coprocessor) Sub(lhs, rhs Handle) (Handle, error) {
	return c.arith(OpSub, lhs, rhs, c.backend.Sub)
}

// Mul returns lhs * rhs, wrapping at the type width.
func (c *Coprocessor) Mul(lhs, rhs Handle) (Handle, error) {
	return c.arith(OpMul, lhs, rhs, c.backend.Mul)
}

// ScalarMul multiplies by a public scalar.
func (c *Coprocessor) ScalarMul(h Handle, scalar uint64) (Handle, error) {
	ct, err := c.getCiphertext(h)
	if err != nil {
		return Handle{}, err
	}
	if ct.typ == TypeEbool {
		return Handle{}, fmt.Errorf("%w: scalarMul on ebool", ErrTypeMismatch)
	}
	data, err := c.backend.ScalarMul(ct.data, scalar, ct.typ)
	if err != nil {
		return Handle{}, err
	}
	c.meter.charge(OpScalarMul)
	return c.storeCiphertext(data, ct.typ), nil
}

// Eq returns an ebool that is true when lhs == rhs.
func (c *Coprocessor) Eq(lhs, rhs Handle) (Handle, error) {
	return c.compare(OpEq, lhs, rhs, c.backend.Eq)
}

// Ge returns an ebool that is true when lhs >= rhs.
func (c *Coprocessor) Ge(lhs, rhs Handle) (Handle, error) {
	return c.compare(OpGe, lhs, rhs, c.backend.Ge)
}

// And returns the conjunction of two ebools.
func (c *Coprocessor) And(lhs, rhs Handle) (Handle, error) {
	a, b, err := c.getPair(lhs, rhs)
	if err != nil {
		return Handle{}, err
	}
	if a.typ != TypeEbool {
		return Handle{}, fmt.Errorf("%w: and on %s", ErrTypeMismatch, a.typ)
	}
	data, err := c.backend.And(a.data, b.data)
	if err != nil {
		return Handle{}, err
	}
	c.meter.charge(OpAnd)
	return c.storeCiphertext(data, TypeEbool), nil
}

// Select returns ifTrue when control decrypts to true and ifFalse
// otherwise, without revealing which.
func (c *Coprocessor) Select(control, ifTrue, ifFalse Handle) (Handle, error) {
	ctl, err := c.getCiphertext(control)
	if err != nil {
		return Handle{}, err
	}
	if ctl.typ != TypeEbool {
		return Handle{}, fmt.Errorf("%w: select control is %s", ErrTypeMismatch, ctl.typ)
	}
	a, b, err := c.getPair(ifTrue, ifFalse)
	if err != nil {
		return Handle{}, err
	}
	data, err := c.backend.Select(ctl.data, a.data, b.data, a.typ)
	if err != nil {
		return Handle{}, err
	}
	c.meter.charge(OpSelect)
	return c.storeCiphertext(data, a.typ), nil
}

// Cast converts an integer handle to type t. Widening preserves the value;
// narrowing keeps the low bits.
func (c *Coprocessor) Cast(h Handle, t Type) (Handle, error) {
	ct, err := c.getCiphertext(h)
	if err != nil {
		return Handle{}, err
	}
	if ct.typ == TypeEbool || t == TypeEbool {
		return Handle{}, fmt.Errorf("%w: cast %s to %s", ErrTypeMismatch, ct.typ, t)
	}
	if !t.Valid() {
		return Handle{}, fmt.Errorf("%w: %s", ErrInvalidInput, t)
	}
	data, err := c.backend.Cast(ct.data, ct.typ, t)
	if err != nil {
		return Handle{}, err
	}
	c.meter.charge(OpCast)
	return c.storeCiphertext(data, t), nil
}

// Allow grants account access to h.
func (c *Coprocessor) Allow(h Handle, account common.Address) { c.acl.Allow(h, account) }

// IsAllowed reports whether account may use or decrypt h.
func (c *Coprocessor) IsAllowed(h Handle, account common.Address) bool {
	return c.acl.IsAllowed(h, account)
}

// =========================================================================
// Client-side operations
// =========================================================================

// EncryptInput encrypts value for use by user in a call to contract and
// returns the handle with its proof. The user is granted access so it can
// read back its own inputs.
func (c *Coprocessor) EncryptInput(value uint64, t Type, contract, user common.Address) (ExternalInput, error) {
	if !t.Valid() {
		return ExternalInput{}, fmt.Errorf("%w: %s", ErrInvalidInput, t)
	}
	data, err := c.backend.Encrypt(value, t)
	if err != nil {
		return ExternalInput{}, err
	}
	h := c.storeCiphertext(data, t)
	proof, err := c.signer.sign(h, contract, user)
	if err != nil {
		return ExternalInput{}, err
	}
	c.acl.Allow(h, user)
	return ExternalInput{Handle: h, Proof: proof}, nil
}

// Decrypt reveals the plaintext of h to requester if the ACL permits it.
// Wide types yield their low 64 bits.
func (c *Coprocessor) Decrypt(h Handle, requester common.Address) (uint64, error) {
	if !c.acl.IsAllowed(h, requester) {
		return 0, fmt.Errorf("%w: %s for %s", ErrAccessDenied, h, requester)
	}
	ct, err := c.getCiphertext(h)
	if err != nil {
		return 0, err
	}
	return c.backend.Decrypt(ct.data, ct.typ)
}
