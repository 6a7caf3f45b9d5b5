// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dex

import (
	"fmt"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"

	"github.com/luxfi/fheswap/fhe"
	"github.com/luxfi/fheswap/state"
	"github.com/luxfi/fheswap/token"
)

// Pool is the single mutation gateway for one confidential token pair.
// It is not synchronized; the host runs one call at a time.
type Pool struct {
	address common.Address
	owner   common.Address

	token0 Ledger
	token1 Ledger

	sub fhe.Substrate
	log log.Logger
}

// NewPool creates a pool over two distinct ledgers. The pool holds its
// funds in each ledger under address.
func NewPool(address, owner common.Address, token0, token1 Ledger, sub fhe.Substrate, logger log.Logger) (*Pool, error) {
	if token0.Address() == token1.Address() {
		return nil, ErrIdenticalTokens
	}
	if logger == nil {
		logger = log.NewTestLogger(log.InfoLevel)
	}
	return &Pool{
		address: address,
		owner:   owner,
		token0:  token0,
		token1:  token1,
		sub:     sub,
		log:     logger,
	}, nil
}

func (p *Pool) Address() common.Address { return p.address }
func (p *Pool) Owner() common.Address   { return p.owner }
func (p *Pool) Token0() common.Address  { return p.token0.Address() }
func (p *Pool) Token1() common.Address  { return p.token1.Address() }

// =========================================================================
// Pool Initialization
// =========================================================================

// Initialize creates the reserves and LP supply as encrypted zero.
// Owner only, once.
func (p *Pool) Initialize(db StateDB, caller common.Address) error {
	if caller != p.owner {
		return ErrUnauthorized
	}
	if p.IsInitialized(db) {
		return ErrPoolAlreadyInitialized
	}

	zero, err := p.sub.TrivialEncrypt(0, fhe.TypeEuint64)
	if err != nil {
		return fmt.Errorf("initialize reserves: %w", err)
	}
	p.setReserve0(db, zero)
	p.setReserve1(db, zero)
	p.setLPSupply(db, zero)
	db.SetState(p.address, state.Key(initializedPrefix), state.Uint64ToHash(1))

	p.log.Info("pool initialized",
		"pool", p.address,
		"token0", p.Token0(),
		"token1", p.Token1(),
	)
	return nil
}

// IsInitialized reports whether Initialize has run.
func (p *Pool) IsInitialized(db StateDB) bool {
	return state.HashToUint64(db.GetState(p.address, state.Key(initializedPrefix))) == 1
}

// =========================================================================
// Read accessors
// =========================================================================

// EncryptedReserve0 returns the reserve handle of token0. The owner and
// the pool may decrypt it.
func (p *Pool) EncryptedReserve0(db StateDB) fhe.Handle {
	return p.handleAt(db, state.Key(reserve0Prefix))
}

// EncryptedReserve1 returns the reserve handle of token1.
func (p *Pool) EncryptedReserve1(db StateDB) fhe.Handle {
	return p.handleAt(db, state.Key(reserve1Prefix))
}

// EncryptedTotalSupply returns the LP supply handle.
func (p *Pool) EncryptedTotalSupply(db StateDB) fhe.Handle {
	return p.handleAt(db, state.Key(lpSupplyPrefix))
}

// EncryptedLPBalance returns account's LP balance handle, or the zero
// handle before its first deposit. Only account may decrypt it.
func (p *Pool) EncryptedLPBalance(db StateDB, account common.Address) fhe.Handle {
	return p.handleAt(db, lpBalanceKey(account))
}

// EncryptedNumerator returns the numerator of caller's last quote.
func (p *Pool) EncryptedNumerator(db StateDB, caller common.Address) fhe.Handle {
	return p.handleAt(db, state.Key(quoteNumPrefix, caller.Bytes()))
}

// EncryptedDenominator returns the denominator of caller's last quote.
func (p *Pool) EncryptedDenominator(db StateDB, caller common.Address) fhe.Handle {
	return p.handleAt(db, state.Key(quoteDenPrefix, caller.Bytes()))
}

// EncryptedEstimatedOut returns the amount caller's last swap paid out.
func (p *Pool) EncryptedEstimatedOut(db StateDB, caller common.Address) fhe.Handle {
	return p.handleAt(db, state.Key(quoteEstimatePrefix, caller.Bytes()))
}

// Quote returns caller's whole QuoteRecord.
func (p *Pool) Quote(db StateDB, caller common.Address) QuoteRecord {
	return QuoteRecord{
		Numerator:    p.EncryptedNumerator(db, caller),
		Denominator:  p.EncryptedDenominator(db, caller),
		EstimatedOut: p.EncryptedEstimatedOut(db, caller),
	}
}

// =========================================================================
// Internal storage helpers
// =========================================================================

func lpBalanceKey(account common.Address) common.Hash {
	return state.Key(lpBalancePrefix, account.Bytes())
}

func (p *Pool) handleAt(db StateDB, key common.Hash) fhe.Handle {
	return fhe.Handle(db.GetState(p.address, key))
}

func (p *Pool) setReserve0(db StateDB, h fhe.Handle) {
	db.SetState(p.address, state.Key(reserve0Prefix), h.Hash())
	p.grantPool(h)
}

func (p *Pool) setReserve1(db StateDB, h fhe.Handle) {
	db.SetState(p.address, state.Key(reserve1Prefix), h.Hash())
	p.grantPool(h)
}

func (p *Pool) setLPSupply(db StateDB, h fhe.Handle) {
	db.SetState(p.address, state.Key(lpSupplyPrefix), h.Hash())
	p.grantPool(h)
}

func (p *Pool) setLPBalance(db StateDB, account common.Address, h fhe.Handle) {
	db.SetState(p.address, lpBalanceKey(account), h.Hash())
	p.sub.Allow(h, p.address)
	p.sub.Allow(h, account)
}

// setQuote overwrites caller's numerator and denominator.
func (p *Pool) setQuote(db StateDB, caller common.Address, num, den fhe.Handle) {
	db.SetState(p.address, state.Key(quoteNumPrefix, caller.Bytes()), num.Hash())
	db.SetState(p.address, state.Key(quoteDenPrefix, caller.Bytes()), den.Hash())
	for _, h := range []fhe.Handle{num, den} {
		p.sub.Allow(h, p.address)
		p.sub.Allow(h, caller)
	}
}

func (p *Pool) setEstimatedOut(db StateDB, caller common.Address, h fhe.Handle) {
	db.SetState(p.address, state.Key(quoteEstimatePrefix, caller.Bytes()), h.Hash())
	p.sub.Allow(h, caller)
}

// grantPool shares pool-level aggregates with the pool and its owner.
func (p *Pool) grantPool(h fhe.Handle) {
	p.sub.Allow(h, p.address)
	p.sub.Allow(h, p.owner)
}

// orZero substitutes zero for a never-written handle.
func orZero(h, zero fhe.Handle) fhe.Handle {
	if h.IsZero() {
		return zero
	}
	return h
}

// ledgers returns (in, out) for a swap entering through tokenIn.
func (p *Pool) ledgers(tokenIn common.Address) (Ledger, Ledger, error) {
	switch tokenIn {
	case p.token0.Address():
		return p.token0, p.token1, nil
	case p.token1.Address():
		return p.token1, p.token0, nil
	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrInvalidToken, tokenIn)
	}
}

// requireOperator fails hard unless holder delegated to the pool on l.
func (p *Pool) requireOperator(db StateDB, l Ledger, holder common.Address) error {
	if !l.IsOperator(db, holder, p.address) {
		return fmt.Errorf("%w: pool %s for %s on %s", token.ErrOperatorNotApproved, p.address, holder, l.Address())
	}
	return nil
}

// pull moves amount from holder into the pool and returns what settled.
func (p *Pool) pull(db StateDB, l Ledger, holder common.Address, amount fhe.Handle) (fhe.Handle, error) {
	p.sub.Allow(amount, p.address)
	return l.ConfidentialTransferFrom(db, p.address, holder, p.address, amount)
}

// push pays amount from the pool to recipient and returns what settled.
func (p *Pool) push(db StateDB, l Ledger, recipient common.Address, amount fhe.Handle) (fhe.Handle, error) {
	p.sub.Allow(amount, p.address)
	return l.ConfidentialTransferFrom(db, p.address, p.address, recipient, amount)
}
