// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dex

import (
	"fmt"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/fheswap/fhe"
)

// =========================================================================
// Liquidity
// =========================================================================

// AddLiquidity deposits amount0 and amount1 from caller and mints LP
// shares equal to the token0 deposit. When caller cannot cover both
// amounts, both deposits and the mint are encrypted zero. Proof and
// delegation failures abort before any state is touched.
func (p *Pool) AddLiquidity(db StateDB, caller common.Address, amount0, amount1 fhe.ExternalInput) (fhe.Handle, error) {
	if !p.IsInitialized(db) {
		return fhe.Handle{}, ErrPoolNotInitialized
	}
	a0, err := p.sub.Verify(amount0, p.address, caller)
	if err != nil {
		return fhe.Handle{}, fmt.Errorf("amount0: %w", err)
	}
	a1, err := p.sub.Verify(amount1, p.address, caller)
	if err != nil {
		return fhe.Handle{}, fmt.Errorf("amount1: %w", err)
	}
	if err := p.requireOperator(db, p.token0, caller); err != nil {
		return fhe.Handle{}, err
	}
	if err := p.requireOperator(db, p.token1, caller); err != nil {
		return fhe.Handle{}, err
	}

	zero, err := p.sub.TrivialEncrypt(0, fhe.TypeEuint64)
	if err != nil {
		return fhe.Handle{}, err
	}

	// both-or-nothing, decided under encryption
	enough0, err := p.sub.Ge(orZero(p.token0.BalanceOf(db, caller), zero), a0)
	if err != nil {
		return fhe.Handle{}, err
	}
	enough1, err := p.sub.Ge(orZero(p.token1.BalanceOf(db, caller), zero), a1)
	if err != nil {
		return fhe.Handle{}, err
	}
	funded, err := p.sub.And(enough0, enough1)
	if err != nil {
		return fhe.Handle{}, err
	}
	d0, err := p.sub.Select(funded, a0, zero)
	if err != nil {
		return fhe.Handle{}, err
	}
	d1, err := p.sub.Select(funded, a1, zero)
	if err != nil {
		return fhe.Handle{}, err
	}

	in0, err := p.pull(db, p.token0, caller, d0)
	if err != nil {
		return fhe.Handle{}, err
	}
	in1, err := p.pull(db, p.token1, caller, d1)
	if err != nil {
		return fhe.Handle{}, err
	}

	r0, err := p.sub.Add(p.EncryptedReserve0(db), in0)
	if err != nil {
		return fhe.Handle{}, err
	}
	r1, err := p.sub.Add(p.EncryptedReserve1(db), in1)
	if err != nil {
		return fhe.Handle{}, err
	}

	// single-deposit basis: one share per unit of token0
	minted := in0
	supply, err := p.sub.Add(p.EncryptedTotalSupply(db), minted)
	if err != nil {
		return fhe.Handle{}, err
	}
	lp, err := p.sub.Add(orZero(p.EncryptedLPBalance(db, caller), zero), minted)
	if err != nil {
		return fhe.Handle{}, err
	}

	p.setReserve0(db, r0)
	p.setReserve1(db, r1)
	p.setLPSupply(db, supply)
	p.setLPBalance(db, caller, lp)
	p.sub.Allow(minted, caller)

	p.log.Debug("liquidity added", "pool", p.address, "provider", caller, "minted", minted)
	return minted, nil
}

// QuoteRemoveLiquidity stores lpAmount*reserve1 and reserve0 as caller's
// quote. floor(numerator/denominator) is the largest amount1Out that
// RemoveLiquidity will accept for lpAmount at the current reserves.
func (p *Pool) QuoteRemoveLiquidity(db StateDB, caller common.Address, lpAmount fhe.ExternalInput) error {
	if !p.IsInitialized(db) {
		return ErrPoolNotInitialized
	}
	lp, err := p.sub.Verify(lpAmount, p.address, caller)
	if err != nil {
		return fmt.Errorf("lpAmount: %w", err)
	}
	zero, err := p.sub.TrivialEncrypt(0, fhe.TypeEuint64)
	if err != nil {
		return err
	}
	num, err := p.sub.Mul(lp, p.EncryptedReserve1(db))
	if err != nil {
		return err
	}
	// fresh handle so the caller is never granted the live reserve
	den, err := p.sub.Add(p.EncryptedReserve0(db), zero)
	if err != nil {
		return err
	}
	p.setQuote(db, caller, num, den)
	return nil
}

// RemoveLiquidity burns lpAmount shares and pays lpAmount of token0 plus
// the caller-chosen amount1Out of token1. The withdrawal is valid when the
// caller holds the shares, the reserves cover both outputs and
// amount1Out*reserve0 <= lpAmount*reserve1, so the pool price never moves
// in the withdrawer's favor. An invalid withdrawal burns and pays
// encrypted zero; it neither saturates nor wraps.
func (p *Pool) RemoveLiquidity(db StateDB, caller common.Address, lpAmount, amount1Out fhe.ExternalInput) (fhe.Handle, fhe.Handle, error) {
	if !p.IsInitialized(db) {
		return fhe.Handle{}, fhe.Handle{}, ErrPoolNotInitialized
	}
	lp, err := p.sub.Verify(lpAmount, p.address, caller)
	if err != nil {
		return fhe.Handle{}, fhe.Handle{}, fmt.Errorf("lpAmount: %w", err)
	}
	want1, err := p.sub.Verify(amount1Out, p.address, caller)
	if err != nil {
		return fhe.Handle{}, fhe.Handle{}, fmt.Errorf("amount1Out: %w", err)
	}

	zero, err := p.sub.TrivialEncrypt(0, fhe.TypeEuint64)
	if err != nil {
		return fhe.Handle{}, fhe.Handle{}, err
	}
	r0 := p.EncryptedReserve0(db)
	r1 := p.EncryptedReserve1(db)
	held := orZero(p.EncryptedLPBalance(db, caller), zero)

	valid, err := p.withdrawalValid(held, lp, want1, r0, r1)
	if err != nil {
		return fhe.Handle{}, fhe.Handle{}, err
	}
	burned, err := p.sub.Select(valid, lp, zero)
	if err != nil {
		return fhe.Handle{}, fhe.Handle{}, err
	}
	pay1, err := p.sub.Select(valid, want1, zero)
	if err != nil {
		return fhe.Handle{}, fhe.Handle{}, err
	}

	out0, err := p.push(db, p.token0, caller, burned)
	if err != nil {
		return fhe.Handle{}, fhe.Handle{}, err
	}
	out1, err := p.push(db, p.token1, caller, pay1)
	if err != nil {
		return fhe.Handle{}, fhe.Handle{}, err
	}

	newR0, err := p.sub.Sub(r0, out0)
	if err != nil {
		return fhe.Handle{}, fhe.Handle{}, err
	}
	newR1, err := p.sub.Sub(r1, out1)
	if err != nil {
		return fhe.Handle{}, fhe.Handle{}, err
	}
	supply, err := p.sub.Sub(p.EncryptedTotalSupply(db), burned)
	if err != nil {
		return fhe.Handle{}, fhe.Handle{}, err
	}
	newHeld, err := p.sub.Sub(held, burned)
	if err != nil {
		return fhe.Handle{}, fhe.Handle{}, err
	}

	p.setReserve0(db, newR0)
	p.setReserve1(db, newR1)
	p.setLPSupply(db, supply)
	p.setLPBalance(db, caller, newHeld)

	p.log.Debug("liquidity removed", "pool", p.address, "provider", caller, "burned", burned)
	return out0, out1, nil
}

func (p *Pool) withdrawalValid(held, lp, want1, r0, r1 fhe.Handle) (fhe.Handle, error) {
	ownsShares, err := p.sub.Ge(held, lp)
	if err != nil {
		return fhe.Handle{}, err
	}
	covers0, err := p.sub.Ge(r0, lp)
	if err != nil {
		return fhe.Handle{}, err
	}
	covers1, err := p.sub.Ge(r1, want1)
	if err != nil {
		return fhe.Handle{}, err
	}
	// products of two euint64 values fit euint128 exactly
	wide, err := p.widen(fhe.TypeEuint128, want1, r0, lp, r1)
	if err != nil {
		return fhe.Handle{}, err
	}
	asked, err := p.sub.Mul(wide[0], wide[1])
	if err != nil {
		return fhe.Handle{}, err
	}
	share, err := p.sub.Mul(wide[2], wide[3])
	if err != nil {
		return fhe.Handle{}, err
	}
	proportional, err := p.sub.Ge(share, asked)
	if err != nil {
		return fhe.Handle{}, err
	}

	sharesOK, err := p.sub.And(ownsShares, covers0)
	if err != nil {
		return fhe.Handle{}, err
	}
	priceOK, err := p.sub.And(covers1, proportional)
	if err != nil {
		return fhe.Handle{}, err
	}
	return p.sub.And(sharesOK, priceOK)
}
