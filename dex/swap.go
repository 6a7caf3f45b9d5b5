// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dex

import (
	"fmt"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/fheswap/fhe"
)

// =========================================================================
// Swap: quote phase
// =========================================================================

// GetAmountOut prices amountIn of tokenIn against the current reserves
// and stores the result as caller's quote:
//
//	numerator   = amountIn*997*reserveOut
//	denominator = reserveIn*1000 + amountIn*997
//
// The output amount is floor(numerator/denominator). The pool cannot
// divide ciphertexts, so the caller decrypts both, divides in the clear and
// submits the quotient to Swap. The quote is euint64 and wraps for large
// operands; Swap re-prices in euint256, so a wrapped quote only leads to a
// trade that settles as zero.
func (p *Pool) GetAmountOut(db StateDB, caller common.Address, amountIn fhe.ExternalInput, tokenIn common.Address) error {
	if !p.IsInitialized(db) {
		return ErrPoolNotInitialized
	}
	if _, _, err := p.ledgers(tokenIn); err != nil {
		return err
	}
	amount, err := p.sub.Verify(amountIn, p.address, caller)
	if err != nil {
		return fmt.Errorf("amountIn: %w", err)
	}

	reserveIn, reserveOut := p.reservesFor(db, tokenIn)
	num, den, err := p.price(amount, reserveIn, reserveOut)
	if err != nil {
		return err
	}
	p.setQuote(db, caller, num, den)

	p.log.Debug("quote", "pool", p.address, "caller", caller, "tokenIn", tokenIn)
	return nil
}

// price computes the constant-product quote fraction with the input fee.
func (p *Pool) price(amountIn, reserveIn, reserveOut fhe.Handle) (fhe.Handle, fhe.Handle, error) {
	withFee, err := p.sub.ScalarMul(amountIn, FeeNumerator)
	if err != nil {
		return fhe.Handle{}, fhe.Handle{}, err
	}
	num, err := p.sub.Mul(withFee, reserveOut)
	if err != nil {
		return fhe.Handle{}, fhe.Handle{}, err
	}
	scaled, err := p.sub.ScalarMul(reserveIn, FeeDenominator)
	if err != nil {
		return fhe.Handle{}, fhe.Handle{}, err
	}
	den, err := p.sub.Add(scaled, withFee)
	if err != nil {
		return fhe.Handle{}, fhe.Handle{}, err
	}
	return num, den, nil
}

func (p *Pool) reservesFor(db StateDB, tokenIn common.Address) (fhe.Handle, fhe.Handle) {
	if tokenIn == p.token0.Address() {
		return p.EncryptedReserve0(db), p.EncryptedReserve1(db)
	}
	return p.EncryptedReserve1(db), p.EncryptedReserve0(db)
}

// =========================================================================
// Swap: execute phase
// =========================================================================

// Swap executes a trade priced by the caller. The pool recomputes the
// quote from the current reserves and proceeds only when
// ExpectedAmountOut == floor(numerator/denominator) and
// ExpectedAmountOut >= MinAmountOut. Otherwise the trade moves encrypted
// zero in both directions. Both outcomes evaluate the same operations and
// ledger calls; only proof, delegation and token errors abort.
//
// It returns the amount paid to the recipient.
func (p *Pool) Swap(db StateDB, caller common.Address, req SwapRequest) (fhe.Handle, error) {
	if !p.IsInitialized(db) {
		return fhe.Handle{}, ErrPoolNotInitialized
	}
	ledgerIn, ledgerOut, err := p.ledgers(req.TokenIn)
	if err != nil {
		return fhe.Handle{}, err
	}
	if req.Recipient == (common.Address{}) {
		return fhe.Handle{}, ErrInvalidRecipient
	}
	amountIn, err := p.sub.Verify(req.AmountIn, p.address, caller)
	if err != nil {
		return fhe.Handle{}, fmt.Errorf("amountIn: %w", err)
	}
	expected, err := p.sub.Verify(req.ExpectedAmountOut, p.address, caller)
	if err != nil {
		return fhe.Handle{}, fmt.Errorf("expectedAmountOut: %w", err)
	}
	minOut, err := p.sub.Verify(req.MinAmountOut, p.address, caller)
	if err != nil {
		return fhe.Handle{}, fmt.Errorf("minAmountOut: %w", err)
	}
	if err := p.requireOperator(db, ledgerIn, caller); err != nil {
		return fhe.Handle{}, err
	}

	zero, err := p.sub.TrivialEncrypt(0, fhe.TypeEuint64)
	if err != nil {
		return fhe.Handle{}, err
	}

	// Never the stored quote: price against the reserves as they are now,
	// wide enough that no product wraps.
	reserveIn, reserveOut := p.reservesFor(db, req.TokenIn)
	wide, err := p.widen(fhe.TypeEuint256, amountIn, reserveIn, reserveOut, expected, minOut)
	if err != nil {
		return fhe.Handle{}, err
	}
	num, den, err := p.price(wide[0], wide[1], wide[2])
	if err != nil {
		return fhe.Handle{}, err
	}

	proceed, err := p.swapAllowed(wide[3], wide[4], num, den)
	if err != nil {
		return fhe.Handle{}, err
	}

	sendIn, err := p.sub.Select(proceed, amountIn, zero)
	if err != nil {
		return fhe.Handle{}, err
	}
	settledIn, err := p.pull(db, ledgerIn, caller, sendIn)
	if err != nil {
		return fhe.Handle{}, err
	}

	// The ledger moves zero when the caller's balance is short; pay out
	// only if the full input arrived.
	arrived, err := p.sub.Eq(settledIn, sendIn)
	if err != nil {
		return fhe.Handle{}, err
	}
	pay, err := p.sub.And(proceed, arrived)
	if err != nil {
		return fhe.Handle{}, err
	}
	sendOut, err := p.sub.Select(pay, expected, zero)
	if err != nil {
		return fhe.Handle{}, err
	}
	settledOut, err := p.push(db, ledgerOut, req.Recipient, sendOut)
	if err != nil {
		return fhe.Handle{}, err
	}

	newIn, err := p.sub.Add(reserveIn, settledIn)
	if err != nil {
		return fhe.Handle{}, err
	}
	newOut, err := p.sub.Sub(reserveOut, settledOut)
	if err != nil {
		return fhe.Handle{}, err
	}
	if req.TokenIn == p.token0.Address() {
		p.setReserve0(db, newIn)
		p.setReserve1(db, newOut)
	} else {
		p.setReserve1(db, newIn)
		p.setReserve0(db, newOut)
	}
	p.setEstimatedOut(db, caller, settledOut)
	p.sub.Allow(settledOut, req.Recipient)

	p.log.Debug("swap",
		"pool", p.address,
		"caller", caller,
		"recipient", req.Recipient,
		"tokenIn", req.TokenIn,
	)
	return settledOut, nil
}

// swapAllowed evaluates
//
//	expected*den <= num < (expected+1)*den  AND  expected >= minOut
//
// The first clause is expected == floor(num/den) without division; with
// den == 0 it is false for every expected. All operands are euint256:
// num < 2^138 and (expected+1)*den < 2^140, so nothing wraps.
func (p *Pool) swapAllowed(expected, minOut, num, den fhe.Handle) (fhe.Handle, error) {
	one, err := p.sub.TrivialEncrypt(1, expected.Type())
	if err != nil {
		return fhe.Handle{}, err
	}
	low, err := p.sub.Mul(expected, den)
	if err != nil {
		return fhe.Handle{}, err
	}
	high, err := p.sub.Add(low, den)
	if err != nil {
		return fhe.Handle{}, err
	}
	numPlusOne, err := p.sub.Add(num, one)
	if err != nil {
		return fhe.Handle{}, err
	}
	atLeast, err := p.sub.Ge(num, low)
	if err != nil {
		return fhe.Handle{}, err
	}
	below, err := p.sub.Ge(high, numPlusOne)
	if err != nil {
		return fhe.Handle{}, err
	}
	consistent, err := p.sub.And(atLeast, below)
	if err != nil {
		return fhe.Handle{}, err
	}
	slippageOK, err := p.sub.Ge(expected, minOut)
	if err != nil {
		return fhe.Handle{}, err
	}
	return p.sub.And(consistent, slippageOK)
}

// widen casts each euint64 handle to t, in order.
func (p *Pool) widen(t fhe.Type, hs ...fhe.Handle) ([]fhe.Handle, error) {
	out := make([]fhe.Handle, len(hs))
	for i, h := range hs {
		w, err := p.sub.Cast(h, t)
		if err != nil {
			return nil, err
		}
		out[i] = w
	}
	return out, nil
}
