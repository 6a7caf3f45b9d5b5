// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package client is the caller's half of the quote/execute cycle: it
// decrypts a quote, divides in the clear, applies slippage and encrypts
// the execute-phase inputs.
package client

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/fheswap/dex"
	"github.com/luxfi/fheswap/fhe"
)

const bpsScale = 10_000

var (
	ErrZeroDenominator = errors.New("quote denominator is zero")
	ErrRangeExceeded   = errors.New("pricing product exceeds euint64")
	ErrInvalidSlippage = errors.New("slippage exceeds 100%")
	ErrNoQuote         = errors.New("no quote recorded for caller")
)

// Plan is a decrypted quote and the amounts derived from it.
type Plan struct {
	Numerator   uint64
	Denominator uint64
	ExpectedOut uint64
	MinOut      uint64
}

// Quotient returns floor(num/den).
func Quotient(num, den uint64) (uint64, error) {
	if den == 0 {
		return 0, ErrZeroDenominator
	}
	q := new(uint256.Int).Div(uint256.NewInt(num), uint256.NewInt(den))
	return q.Uint64(), nil
}

// MinOut applies a slippage tolerance in basis points, rounding down.
func MinOut(expected, slippageBps uint64) (uint64, error) {
	if slippageBps > bpsScale {
		return 0, fmt.Errorf("%w: %d bps", ErrInvalidSlippage, slippageBps)
	}
	v := new(uint256.Int).Mul(uint256.NewInt(expected), uint256.NewInt(bpsScale-slippageBps))
	v.Div(v, uint256.NewInt(bpsScale))
	return v.Uint64(), nil
}

// CheckRange reports whether pricing amountIn against the given reserves
// stays inside euint64. The quote fraction is euint64 and wraps past that
// range, so Plan would derive an output Swap rejects and the trade would
// settle as zero.
func CheckRange(amountIn, reserveIn, reserveOut uint64) error {
	withFee, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(amountIn), uint256.NewInt(dex.FeeNumerator))
	if overflow || !withFee.IsUint64() {
		return ErrRangeExceeded
	}
	num := new(uint256.Int).Mul(withFee, uint256.NewInt(reserveOut))
	den := new(uint256.Int).Mul(uint256.NewInt(reserveIn), uint256.NewInt(dex.FeeDenominator))
	den.Add(den, withFee)
	if !num.IsUint64() || !den.IsUint64() {
		return ErrRangeExceeded
	}
	return nil
}

// Trader acts for one account against one pool.
type Trader struct {
	account     common.Address
	pool        common.Address
	sub         fhe.Substrate
	slippageBps uint64
}

// NewTrader returns a trader with a default slippage tolerance.
func NewTrader(account, pool common.Address, sub fhe.Substrate, slippageBps uint64) (*Trader, error) {
	if slippageBps > bpsScale {
		return nil, fmt.Errorf("%w: %d bps", ErrInvalidSlippage, slippageBps)
	}
	return &Trader{
		account:     account,
		pool:        pool,
		sub:         sub,
		slippageBps: slippageBps,
	}, nil
}

func (t *Trader) Account() common.Address { return t.account }

// Encrypt produces a pool input bound to this trader.
func (t *Trader) Encrypt(v uint64) (fhe.ExternalInput, error) {
	return t.sub.EncryptInput(v, fhe.TypeEuint64, t.pool, t.account)
}

// Plan decrypts rec and derives the expected and minimum outputs.
func (t *Trader) Plan(rec dex.QuoteRecord) (Plan, error) {
	if rec.Numerator.IsZero() || rec.Denominator.IsZero() {
		return Plan{}, ErrNoQuote
	}
	num, err := t.sub.Decrypt(rec.Numerator, t.account)
	if err != nil {
		return Plan{}, fmt.Errorf("numerator: %w", err)
	}
	den, err := t.sub.Decrypt(rec.Denominator, t.account)
	if err != nil {
		return Plan{}, fmt.Errorf("denominator: %w", err)
	}
	expected, err := Quotient(num, den)
	if err != nil {
		return Plan{}, err
	}
	minOut, err := MinOut(expected, t.slippageBps)
	if err != nil {
		return Plan{}, err
	}
	return Plan{
		Numerator:   num,
		Denominator: den,
		ExpectedOut: expected,
		MinOut:      minOut,
	}, nil
}

// SwapRequest encrypts the execute-phase inputs for plan.
func (t *Trader) SwapRequest(amountIn uint64, plan Plan, tokenIn, recipient common.Address) (dex.SwapRequest, error) {
	in, err := t.Encrypt(amountIn)
	if err != nil {
		return dex.SwapRequest{}, err
	}
	expected, err := t.Encrypt(plan.ExpectedOut)
	if err != nil {
		return dex.SwapRequest{}, err
	}
	minOut, err := t.Encrypt(plan.MinOut)
	if err != nil {
		return dex.SwapRequest{}, err
	}
	return dex.SwapRequest{
		AmountIn:          in,
		ExpectedAmountOut: expected,
		MinAmountOut:      minOut,
		TokenIn:           tokenIn,
		Recipient:         recipient,
	}, nil
}

// Settled decrypts the amount the trader's last swap paid out.
func (t *Trader) Settled(rec dex.QuoteRecord) (uint64, error) {
	if rec.EstimatedOut.IsZero() {
		return 0, nil
	}
	return t.sub.Decrypt(rec.EstimatedOut, t.account)
}
