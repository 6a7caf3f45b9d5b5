// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package token implements a confidential fungible token: balances are
// ciphertext handles and every transfer moves either the requested amount
// or encrypted zero, chosen without branching on the plaintext.
package token

import (
	"errors"
	"fmt"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"

	"github.com/luxfi/fheswap/fhe"
	"github.com/luxfi/fheswap/state"
)

// StateDB is the storage a token reads and writes during a call
type StateDB interface {
	GetState(addr common.Address, key common.Hash) common.Hash
	SetState(addr common.Address, key common.Hash, value common.Hash)
	GetBlockTime() uint64
}

// Storage key prefixes for token state
var (
	balancePrefix  = []byte("cbal")
	supplyPrefix   = []byte("csup")
	operatorPrefix = []byte("oper")
)

var (
	ErrOperatorNotApproved = errors.New("operator not approved")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidReceiver     = errors.New("invalid receiver")
	ErrHandleNotAllowed    = errors.New("caller may not use ciphertext handle")
)

// Token is a confidential balance ledger living at a fixed address.
type Token struct {
	address common.Address
	owner   common.Address
	name    string
	symbol  string

	sub fhe.Substrate
	log log.Logger
}

// New creates a token. Only owner may mint and burn.
func New(address, owner common.Address, name, symbol string, sub fhe.Substrate, logger log.Logger) *Token {
	if logger == nil {
		logger = log.NewTestLogger(log.InfoLevel)
	}
	return &Token{
		address: address,
		owner:   owner,
		name:    name,
		symbol:  symbol,
		sub:     sub,
		log:     logger,
	}
}

func (t *Token) Address() common.Address { return t.address }
func (t *Token) Owner() common.Address   { return t.owner }
func (t *Token) Name() string            { return t.name }
func (t *Token) Symbol() string          { return t.symbol }

func balanceKey(account common.Address) common.Hash {
	return state.Key(balancePrefix, account.Bytes())
}

func operatorKey(holder, operator common.Address) common.Hash {
	return state.Key(operatorPrefix, holder.Bytes(), operator.Bytes())
}

// BalanceOf returns the balance handle of account, or the zero handle if
// the account never held funds. Only the holder and the token may decrypt.
func (t *Token) BalanceOf(db StateDB, account common.Address) fhe.Handle {
	return fhe.Handle(db.GetState(t.address, balanceKey(account)))
}

// TotalSupply returns the supply handle, readable by the owner.
func (t *Token) TotalSupply(db StateDB) fhe.Handle {
	return fhe.Handle(db.GetState(t.address, state.Key(supplyPrefix)))
}

// =========================================================================
// Operators
// =========================================================================

// SetOperator lets operator move holder's funds until the given unix time.
// An until in the past, or zero, revokes the delegation.
func (t *Token) SetOperator(db StateDB, holder, operator common.Address, until uint64) {
	db.SetState(t.address, operatorKey(holder, operator), state.Uint64ToHash(until))
	t.log.Info("operator set",
		"token", t.symbol,
		"holder", holder,
		"operator", operator,
		"until", until,
	)
}

// IsOperator reports whether operator may currently act for holder.
// Every holder is its own operator.
func (t *Token) IsOperator(db StateDB, holder, operator common.Address) bool {
	if holder == operator {
		return true
	}
	raw := db.GetState(t.address, operatorKey(holder, operator))
	if raw == (common.Hash{}) {
		return false
	}
	return db.GetBlockTime() <= state.HashToUint64(raw)
}

// =========================================================================
// Mint / Burn
// =========================================================================

// Mint credits to with a verified amount. Owner only.
func (t *Token) Mint(db StateDB, caller, to common.Address, in fhe.ExternalInput) (fhe.Handle, error) {
	if caller != t.owner {
		return fhe.Handle{}, ErrUnauthorized
	}
	if to == (common.Address{}) {
		return fhe.Handle{}, ErrInvalidReceiver
	}
	amount, err := t.sub.Verify(in, t.address, caller)
	if err != nil {
		return fhe.Handle{}, err
	}
	zero, err := t.sub.TrivialEncrypt(0, fhe.TypeEuint64)
	if err != nil {
		return fhe.Handle{}, err
	}

	bal, err := t.sub.Add(t.orZero(t.BalanceOf(db, to), zero), amount)
	if err != nil {
		return fhe.Handle{}, err
	}
	supply, err := t.sub.Add(t.orZero(t.TotalSupply(db), zero), amount)
	if err != nil {
		return fhe.Handle{}, err
	}
	t.setBalance(db, to, bal)
	t.setSupply(db, supply)

	t.log.Info("minted", "token", t.symbol, "to", to, "amount", amount)
	return amount, nil
}

// Burn removes up to amount from account. Burning more than the balance
// burns encrypted zero. Owner only.
func (t *Token) Burn(db StateDB, caller, from common.Address, in fhe.ExternalInput) (fhe.Handle, error) {
	if caller != t.owner {
		return fhe.Handle{}, ErrUnauthorized
	}
	amount, err := t.sub.Verify(in, t.address, caller)
	if err != nil {
		return fhe.Handle{}, err
	}
	zero, err := t.sub.TrivialEncrypt(0, fhe.TypeEuint64)
	if err != nil {
		return fhe.Handle{}, err
	}

	bal := t.orZero(t.BalanceOf(db, from), zero)
	burned, err := t.guarded(bal, amount, zero)
	if err != nil {
		return fhe.Handle{}, err
	}
	newBal, err := t.sub.Sub(bal, burned)
	if err != nil {
		return fhe.Handle{}, err
	}
	supply, err := t.sub.Sub(t.orZero(t.TotalSupply(db), zero), burned)
	if err != nil {
		return fhe.Handle{}, err
	}
	t.setBalance(db, from, newBal)
	t.setSupply(db, supply)
	t.sub.Allow(burned, caller)

	t.log.Info("burned", "token", t.symbol, "from", from, "amount", burned)
	return burned, nil
}

// =========================================================================
// Transfers
// =========================================================================

// ConfidentialTransfer moves a client-encrypted amount from caller to to.
func (t *Token) ConfidentialTransfer(db StateDB, caller, to common.Address, in fhe.ExternalInput) (fhe.Handle, error) {
	amount, err := t.sub.Verify(in, t.address, caller)
	if err != nil {
		return fhe.Handle{}, err
	}
	return t.transfer(db, caller, caller, to, amount)
}

// ConfidentialTransferFrom moves amount from from to to on behalf of
// caller, who must be an active operator of from and must hold a grant on
// the amount handle. It returns the amount actually moved, which is
// encrypted zero when from's balance is short.
func (t *Token) ConfidentialTransferFrom(db StateDB, caller, from, to common.Address, amount fhe.Handle) (fhe.Handle, error) {
	if !t.IsOperator(db, from, caller) {
		return fhe.Handle{}, fmt.Errorf("%w: %s for %s on %s", ErrOperatorNotApproved, caller, from, t.symbol)
	}
	if !t.sub.IsAllowed(amount, caller) {
		return fhe.Handle{}, fmt.Errorf("%w: %s", ErrHandleNotAllowed, amount)
	}
	return t.transfer(db, caller, from, to, amount)
}

// transfer always evaluates the same operation sequence; the balance check
// only decides, under encryption, whether amount or zero moves.
func (t *Token) transfer(db StateDB, caller, from, to common.Address, amount fhe.Handle) (fhe.Handle, error) {
	if to == (common.Address{}) {
		return fhe.Handle{}, ErrInvalidReceiver
	}
	zero, err := t.sub.TrivialEncrypt(0, fhe.TypeEuint64)
	if err != nil {
		return fhe.Handle{}, err
	}

	fromBal := t.orZero(t.BalanceOf(db, from), zero)
	moved, err := t.guarded(fromBal, amount, zero)
	if err != nil {
		return fhe.Handle{}, err
	}
	newFrom, err := t.sub.Sub(fromBal, moved)
	if err != nil {
		return fhe.Handle{}, err
	}
	t.setBalance(db, from, newFrom)

	// read after the debit so a self-transfer nets to zero
	toBal := t.orZero(t.BalanceOf(db, to), zero)
	newTo, err := t.sub.Add(toBal, moved)
	if err != nil {
		return fhe.Handle{}, err
	}
	t.setBalance(db, to, newTo)

	t.sub.Allow(moved, caller)
	t.sub.Allow(moved, from)
	t.sub.Allow(moved, to)

	t.log.Debug("confidential transfer",
		"token", t.symbol,
		"from", from,
		"to", to,
		"moved", moved,
	)
	return moved, nil
}

// guarded returns amount when balance covers it and zero otherwise.
func (t *Token) guarded(balance, amount, zero fhe.Handle) (fhe.Handle, error) {
	enough, err := t.sub.Ge(balance, amount)
	if err != nil {
		return fhe.Handle{}, err
	}
	return t.sub.Select(enough, amount, zero)
}

func (t *Token) orZero(h, zero fhe.Handle) fhe.Handle {
	if h.IsZero() {
		return zero
	}
	return h
}

func (t *Token) setBalance(db StateDB, account common.Address, h fhe.Handle) {
	db.SetState(t.address, balanceKey(account), h.Hash())
	t.sub.Allow(h, account)
	t.sub.Allow(h, t.address)
}

func (t *Token) setSupply(db StateDB, h fhe.Handle) {
	db.SetState(t.address, state.Key(supplyPrefix), h.Hash())
	t.sub.Allow(h, t.owner)
	t.sub.Allow(h, t.address)
}
