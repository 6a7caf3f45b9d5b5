// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dex

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/database/memdb"
	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/fheswap/fhe"
	"github.com/luxfi/fheswap/state"
	"github.com/luxfi/fheswap/token"
)

var (
	poolAddr   = common.HexToAddress("0x0000000000000000000000000000000000009200")
	token0Addr = common.HexToAddress("0x0000000000000000000000000000000000007001")
	token1Addr = common.HexToAddress("0x0000000000000000000000000000000000007002")
	owner      = common.HexToAddress("0x0000000000000000000000000000000000000001")
	alice      = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob        = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol      = common.HexToAddress("0x00000000000000000000000000000000000ca201")
)

const farFuture = uint64(1) << 40

type env struct {
	sub  *fhe.Coprocessor
	db   *state.DB
	tok0 *token.Token
	tok1 *token.Token
	pool *Pool
}

func newEnv(t *testing.T) *env {
	t.Helper()
	sub, err := fhe.NewCoprocessor(fhe.NewClearBackend(), nil)
	require.NoError(t, err)
	db := memdb.New()
	t.Cleanup(func() { _ = db.Close() })

	e := &env{
		sub:  sub,
		db:   state.New(db),
		tok0: token.New(token0Addr, owner, "Token A", "TKA", sub, nil),
		tok1: token.New(token1Addr, owner, "Token B", "TKB", sub, nil),
	}
	e.pool, err = NewPool(poolAddr, owner, e.tok0, e.tok1, sub, nil)
	require.NoError(t, err)
	require.NoError(t, e.pool.Initialize(e.db, owner))
	return e
}

// fund mints both tokens to account and delegates them to the pool.
func (e *env) fund(t *testing.T, account common.Address, amount0, amount1 uint64) {
	t.Helper()
	for _, m := range []struct {
		tok    *token.Token
		amount uint64
	}{{e.tok0, amount0}, {e.tok1, amount1}} {
		in, err := e.sub.EncryptInput(m.amount, fhe.TypeEuint64, m.tok.Address(), owner)
		require.NoError(t, err)
		_, err = m.tok.Mint(e.db, owner, account, in)
		require.NoError(t, err)
		m.tok.SetOperator(e.db, account, poolAddr, farFuture)
	}
}

func (e *env) enc(t *testing.T, v uint64, user common.Address) fhe.ExternalInput {
	t.Helper()
	in, err := e.sub.EncryptInput(v, fhe.TypeEuint64, poolAddr, user)
	require.NoError(t, err)
	return in
}

func (e *env) decrypt(t *testing.T, h fhe.Handle, requester common.Address) uint64 {
	t.Helper()
	if h.IsZero() {
		return 0
	}
	v, err := e.sub.Decrypt(h, requester)
	require.NoError(t, err)
	return v
}

func (e *env) reserves(t *testing.T) (uint64, uint64) {
	t.Helper()
	return e.decrypt(t, e.pool.EncryptedReserve0(e.db), owner),
		e.decrypt(t, e.pool.EncryptedReserve1(e.db), owner)
}

func (e *env) balances(t *testing.T, account common.Address) (uint64, uint64) {
	t.Helper()
	return e.decrypt(t, e.tok0.BalanceOf(e.db, account), account),
		e.decrypt(t, e.tok1.BalanceOf(e.db, account), account)
}

func (e *env) addLiquidity(t *testing.T, account common.Address, amount0, amount1 uint64) {
	t.Helper()
	_, err := e.pool.AddLiquidity(e.db, account, e.enc(t, amount0, account), e.enc(t, amount1, account))
	require.NoError(t, err)
}

// quote runs the quote phase and divides in the clear, as a client would.
func (e *env) quote(t *testing.T, caller common.Address, amountIn uint64, tokenIn common.Address) (uint64, uint64) {
	t.Helper()
	require.NoError(t, e.pool.GetAmountOut(e.db, caller, e.enc(t, amountIn, caller), tokenIn))
	num := e.decrypt(t, e.pool.EncryptedNumerator(e.db, caller), caller)
	den := e.decrypt(t, e.pool.EncryptedDenominator(e.db, caller), caller)
	return num, den
}

func (e *env) swap(t *testing.T, caller common.Address, amountIn, expected, minOut uint64, tokenIn, recipient common.Address) fhe.Handle {
	t.Helper()
	out, err := e.pool.Swap(e.db, caller, SwapRequest{
		AmountIn:          e.enc(t, amountIn, caller),
		ExpectedAmountOut: e.enc(t, expected, caller),
		MinAmountOut:      e.enc(t, minOut, caller),
		TokenIn:           tokenIn,
		Recipient:         recipient,
	})
	require.NoError(t, err)
	return out
}

func TestNewPoolRejectsIdenticalTokens(t *testing.T) {
	sub, err := fhe.NewCoprocessor(fhe.NewClearBackend(), nil)
	require.NoError(t, err)
	tok := token.New(token0Addr, owner, "Token A", "TKA", sub, nil)

	_, err = NewPool(poolAddr, owner, tok, tok, sub, nil)
	require.ErrorIs(t, err, ErrIdenticalTokens)
}

func TestInitialize(t *testing.T) {
	e := newEnv(t)

	if err := e.pool.Initialize(e.db, owner); err != ErrPoolAlreadyInitialized {
		t.Fatalf("expected ErrPoolAlreadyInitialized, got %v", err)
	}

	r0, r1 := e.reserves(t)
	if r0 != 0 || r1 != 0 {
		t.Fatalf("expected zero reserves, got (%d, %d)", r0, r1)
	}
	if got := e.decrypt(t, e.pool.EncryptedTotalSupply(e.db), owner); got != 0 {
		t.Fatalf("expected zero LP supply, got %d", got)
	}
}

func TestInitializeOwnerOnly(t *testing.T) {
	sub, err := fhe.NewCoprocessor(fhe.NewClearBackend(), nil)
	require.NoError(t, err)
	db := memdb.New()
	defer db.Close()
	sdb := state.New(db)

	p, err := NewPool(poolAddr, owner, token.New(token0Addr, owner, "A", "A", sub, nil), token.New(token1Addr, owner, "B", "B", sub, nil), sub, nil)
	require.NoError(t, err)

	require.ErrorIs(t, p.Initialize(sdb, alice), ErrUnauthorized)
	require.False(t, p.IsInitialized(sdb))

	require.ErrorIs(t, p.GetAmountOut(sdb, alice, fhe.ExternalInput{}, token0Addr), ErrPoolNotInitialized)
}

// TestScenarioFirstDeposit: (1000, 300) into an empty pool mints 1000 LP
func TestScenarioFirstDeposit(t *testing.T) {
	e := newEnv(t)
	e.fund(t, alice, 1000, 300)
	e.addLiquidity(t, alice, 1000, 300)

	r0, r1 := e.reserves(t)
	require.Equal(t, uint64(1000), r0)
	require.Equal(t, uint64(300), r1)
	require.Equal(t, uint64(1000), e.decrypt(t, e.pool.EncryptedTotalSupply(e.db), owner))
	require.Equal(t, uint64(1000), e.decrypt(t, e.pool.EncryptedLPBalance(e.db, alice), alice))

	a0, a1 := e.balances(t, alice)
	require.Equal(t, uint64(0), a0)
	require.Equal(t, uint64(0), a1)
}

// TestScenarioSwapPricing: swap 10 token0 into (1000, 300)
func TestScenarioSwapPricing(t *testing.T) {
	e := newEnv(t)
	e.fund(t, alice, 1000, 300)
	e.addLiquidity(t, alice, 1000, 300)
	e.fund(t, bob, 10, 0)

	num, den := e.quote(t, bob, 10, token0Addr)
	require.Equal(t, uint64(2_991_000), num)
	require.Equal(t, uint64(1_009_970), den)
	expected := num / den
	require.Equal(t, uint64(2), expected)

	out := e.swap(t, bob, 10, expected, 2, token0Addr, bob)
	require.Equal(t, uint64(2), e.decrypt(t, out, bob))

	r0, r1 := e.reserves(t)
	require.Equal(t, uint64(1010), r0)
	require.Equal(t, uint64(298), r1)

	b0, b1 := e.balances(t, bob)
	require.Equal(t, uint64(0), b0)
	require.Equal(t, uint64(2), b1)

	require.Equal(t, uint64(2), e.decrypt(t, e.pool.EncryptedEstimatedOut(e.db, bob), bob))
}

// TestScenarioSlippage: minOut above the price is a silent no-op
func TestScenarioSlippage(t *testing.T) {
	e := newEnv(t)
	e.fund(t, alice, 1000, 300)
	e.addLiquidity(t, alice, 1000, 300)
	e.fund(t, bob, 10, 0)

	out, err := e.pool.Swap(e.db, bob, SwapRequest{
		AmountIn:          e.enc(t, 10, bob),
		ExpectedAmountOut: e.enc(t, 2, bob),
		MinAmountOut:      e.enc(t, 3, bob),
		TokenIn:           token0Addr,
		Recipient:         bob,
	})
	require.NoError(t, err, "slippage must not surface as an error")
	require.Equal(t, uint64(0), e.decrypt(t, out, bob))

	r0, r1 := e.reserves(t)
	require.Equal(t, uint64(1000), r0)
	require.Equal(t, uint64(300), r1)

	b0, b1 := e.balances(t, bob)
	require.Equal(t, uint64(10), b0)
	require.Equal(t, uint64(0), b1)
}

func TestSwapRejectsInconsistentExpectedOut(t *testing.T) {
	tests := []struct {
		name     string
		expected uint64
	}{
		{"over_claim", 3},
		{"under_claim", 1},
		{"zero", 0},
		{"absurd", 300},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			e.fund(t, alice, 1000, 300)
			e.addLiquidity(t, alice, 1000, 300)
			e.fund(t, bob, 10, 0)

			e.swap(t, bob, 10, tt.expected, 0, token0Addr, bob)

			r0, r1 := e.reserves(t)
			require.Equal(t, uint64(1000), r0)
			require.Equal(t, uint64(300), r1)
			b0, b1 := e.balances(t, bob)
			require.Equal(t, uint64(10), b0)
			require.Equal(t, uint64(0), b1)
		})
	}
}

// floorOut is the reference output floor(in*997*rOut / (rIn*1000 + in*997)).
func floorOut(amountIn, reserveIn, reserveOut uint64) uint64 {
	withFee := new(uint256.Int).Mul(uint256.NewInt(amountIn), uint256.NewInt(FeeNumerator))
	num := new(uint256.Int).Mul(withFee, uint256.NewInt(reserveOut))
	den := new(uint256.Int).Mul(uint256.NewInt(reserveIn), uint256.NewInt(FeeDenominator))
	den.Add(den, withFee)
	return num.Div(num, den).Uint64()
}

// TestSwapLargeOperands checks that the expected-output check is exact
// when its products exceed 64 bits
func TestSwapLargeOperands(t *testing.T) {
	const (
		billion = uint64(1_000_000_000)
		huge    = uint64(1) << 62
		bigIn   = uint64(1) << 60
	)

	tests := []struct {
		name     string
		reserve  uint64
		amountIn uint64
		expected uint64
		paid     bool
	}{
		// 996124179*(10^12+997) wraps into [num, num+den) mod 2^64
		{"forged_wrapped_product", billion, 1, 996_124_179, false},
		{"honest_rounds_to_zero", billion, 1, 0, true},
		{"honest_wide_product", huge, bigIn, floorOut(bigIn, huge, huge), true},
		{"over_claim_wide_product", huge, bigIn, floorOut(bigIn, huge, huge) + 1, false},
		{"under_claim_wide_product", huge, bigIn, floorOut(bigIn, huge, huge) - 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			e.fund(t, alice, tt.reserve, tt.reserve)
			e.addLiquidity(t, alice, tt.reserve, tt.reserve)
			e.fund(t, bob, tt.amountIn, 0)

			out := e.swap(t, bob, tt.amountIn, tt.expected, 0, token0Addr, bob)

			r0, r1 := e.reserves(t)
			b0, b1 := e.balances(t, bob)
			if !tt.paid {
				require.Equal(t, uint64(0), e.decrypt(t, out, bob))
				require.Equal(t, tt.reserve, r0)
				require.Equal(t, tt.reserve, r1)
				require.Equal(t, tt.amountIn, b0)
				require.Equal(t, uint64(0), b1)
				return
			}
			require.Equal(t, tt.expected, e.decrypt(t, out, bob))
			require.Equal(t, tt.reserve+tt.amountIn, r0)
			require.Equal(t, tt.reserve-tt.expected, r1)
			require.Equal(t, uint64(0), b0)
			require.Equal(t, tt.expected, b1)
		})
	}
}

// TestSwapRoundTrip checks quote -> divide -> execute across sizes and sides
func TestSwapRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		amountIn uint64
		tokenIn  common.Address
	}{
		{"small_token0", 1, token0Addr},
		{"medium_token0", 250, token0Addr},
		{"large_token0", 50_000, token0Addr},
		{"token1_in", 90, token1Addr},
		{"large_token1", 1000, token1Addr},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			e.fund(t, alice, 10_000, 3_000)
			e.addLiquidity(t, alice, 10_000, 3_000)
			if tt.tokenIn == token0Addr {
				e.fund(t, bob, tt.amountIn, 0)
			} else {
				e.fund(t, bob, 0, tt.amountIn)
			}

			num, den := e.quote(t, bob, tt.amountIn, tt.tokenIn)
			expected := num / den
			e.swap(t, bob, tt.amountIn, expected, expected, tt.tokenIn, bob)

			r0, r1 := e.reserves(t)
			b0, b1 := e.balances(t, bob)
			if tt.tokenIn == token0Addr {
				require.Equal(t, uint64(10_000)+tt.amountIn, r0)
				require.Equal(t, uint64(3_000)-expected, r1)
				require.Equal(t, expected, b1)
				require.Equal(t, uint64(0), b0)
			} else {
				require.Equal(t, uint64(3_000)+tt.amountIn, r1)
				require.Equal(t, uint64(10_000)-expected, r0)
				require.Equal(t, expected, b0)
				require.Equal(t, uint64(0), b1)
			}
		})
	}
}

func TestSwapConstantProductNonDecreasing(t *testing.T) {
	e := newEnv(t)
	e.fund(t, alice, 100_000, 40_000)
	e.addLiquidity(t, alice, 100_000, 40_000)
	e.fund(t, bob, 5_000, 5_000)

	r0, r1 := e.reserves(t)
	k := r0 * r1
	for i, in := range []struct {
		amount  uint64
		tokenIn common.Address
	}{{700, token0Addr}, {1200, token1Addr}, {33, token0Addr}, {2500, token1Addr}} {
		num, den := e.quote(t, bob, in.amount, in.tokenIn)
		e.swap(t, bob, in.amount, num/den, 0, in.tokenIn, bob)

		r0, r1 = e.reserves(t)
		if r0*r1 < k {
			t.Fatalf("swap %d: product decreased from %d to %d", i, k, r0*r1)
		}
		k = r0 * r1
	}
}

// TestStaleQuoteIsRepriced checks that execute ignores the stored quote
func TestStaleQuoteIsRepriced(t *testing.T) {
	e := newEnv(t)
	e.fund(t, alice, 1000, 300)
	e.addLiquidity(t, alice, 1000, 300)
	e.fund(t, bob, 100, 0)
	e.fund(t, carol, 100, 0)

	num, den := e.quote(t, bob, 100, token0Addr)
	stale := num / den

	// carol moves the price first
	cn, cd := e.quote(t, carol, 100, token0Addr)
	e.swap(t, carol, 100, cn/cd, 0, token0Addr, carol)
	before0, before1 := e.reserves(t)

	e.swap(t, bob, 100, stale, 0, token0Addr, bob)

	r0, r1 := e.reserves(t)
	require.Equal(t, before0, r0)
	require.Equal(t, before1, r1)
	b0, _ := e.balances(t, bob)
	require.Equal(t, uint64(100), b0)
}

func TestSwapUnfundedCallerPaysNothing(t *testing.T) {
	e := newEnv(t)
	e.fund(t, alice, 1000, 300)
	e.addLiquidity(t, alice, 1000, 300)
	e.fund(t, bob, 5, 0) // quotes for 10

	num, den := e.quote(t, bob, 10, token0Addr)
	out := e.swap(t, bob, 10, num/den, 0, token0Addr, bob)
	require.Equal(t, uint64(0), e.decrypt(t, out, bob))

	r0, r1 := e.reserves(t)
	require.Equal(t, uint64(1000), r0)
	require.Equal(t, uint64(300), r1)
}

func TestSwapToRecipient(t *testing.T) {
	e := newEnv(t)
	e.fund(t, alice, 1000, 300)
	e.addLiquidity(t, alice, 1000, 300)
	e.fund(t, bob, 10, 0)

	num, den := e.quote(t, bob, 10, token0Addr)
	out := e.swap(t, bob, 10, num/den, 0, token0Addr, carol)
	require.Equal(t, uint64(2), e.decrypt(t, out, carol))

	_, c1 := e.balances(t, carol)
	require.Equal(t, uint64(2), c1)
}

// TestSwapConstantTrace checks that success and failure are
// indistinguishable by evaluated operations and gas
func TestSwapConstantTrace(t *testing.T) {
	run := func(minOut uint64) ([]fhe.Op, uint64) {
		e := newEnv(t)
		e.fund(t, alice, 1000, 300)
		e.addLiquidity(t, alice, 1000, 300)
		e.fund(t, bob, 10, 0)
		req := SwapRequest{
			AmountIn:          e.enc(t, 10, bob),
			ExpectedAmountOut: e.enc(t, 2, bob),
			MinAmountOut:      e.enc(t, minOut, bob),
			TokenIn:           token0Addr,
			Recipient:         bob,
		}
		e.sub.Meter().Reset()
		_, err := e.pool.Swap(e.db, bob, req)
		require.NoError(t, err)
		return e.sub.Meter().Trace(), e.sub.Meter().Gas()
	}

	okTrace, okGas := run(2)
	failTrace, failGas := run(3)
	require.Equal(t, okTrace, failTrace)
	require.Equal(t, okGas, failGas)
}

func TestSwapHardErrors(t *testing.T) {
	e := newEnv(t)
	e.fund(t, alice, 1000, 300)
	e.addLiquidity(t, alice, 1000, 300)
	e.fund(t, bob, 10, 0)

	valid := func() SwapRequest {
		return SwapRequest{
			AmountIn:          e.enc(t, 10, bob),
			ExpectedAmountOut: e.enc(t, 2, bob),
			MinAmountOut:      e.enc(t, 2, bob),
			TokenIn:           token0Addr,
			Recipient:         bob,
		}
	}

	tests := []struct {
		name   string
		caller common.Address
		req    func() SwapRequest
		err    error
	}{
		{"unknown_token", bob, func() SwapRequest {
			r := valid()
			r.TokenIn = carol
			return r
		}, ErrInvalidToken},
		{"zero_recipient", bob, func() SwapRequest {
			r := valid()
			r.Recipient = common.Address{}
			return r
		}, ErrInvalidRecipient},
		{"proof_for_other_user", carol, valid, fhe.ErrProofInvalid},
		{"proof_for_other_contract", bob, func() SwapRequest {
			r := valid()
			in, err := e.sub.EncryptInput(10, fhe.TypeEuint64, token0Addr, bob)
			require.NoError(t, err)
			r.AmountIn = in
			return r
		}, fhe.ErrProofInvalid},
		{"no_delegation", carol, func() SwapRequest {
			return SwapRequest{
				AmountIn:          e.enc(t, 10, carol),
				ExpectedAmountOut: e.enc(t, 2, carol),
				MinAmountOut:      e.enc(t, 2, carol),
				TokenIn:           token0Addr,
				Recipient:         carol,
			}
		}, token.ErrOperatorNotApproved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.pool.Swap(e.db, tt.caller, tt.req())
			require.ErrorIs(t, err, tt.err)

			r0, r1 := e.reserves(t)
			require.Equal(t, uint64(1000), r0)
			require.Equal(t, uint64(300), r1)
		})
	}
}

func TestQuoteRecordIsSingleSlot(t *testing.T) {
	e := newEnv(t)
	e.fund(t, alice, 1000, 300)
	e.addLiquidity(t, alice, 1000, 300)

	e.quote(t, bob, 10, token0Addr)
	num, den := e.quote(t, bob, 20, token1Addr)
	require.Equal(t, 20*FeeNumerator*1000, num)
	require.Equal(t, 300*FeeDenominator+20*FeeNumerator, den)

	// quotes are private to the caller
	_, err := e.sub.Decrypt(e.pool.EncryptedNumerator(e.db, bob), carol)
	require.ErrorIs(t, err, fhe.ErrAccessDenied)

	// quoting moves nothing
	r0, r1 := e.reserves(t)
	require.Equal(t, uint64(1000), r0)
	require.Equal(t, uint64(300), r1)
}

func TestGetAmountOutUnknownToken(t *testing.T) {
	e := newEnv(t)
	err := e.pool.GetAmountOut(e.db, bob, e.enc(t, 10, bob), carol)
	require.ErrorIs(t, err, ErrInvalidToken)
}
