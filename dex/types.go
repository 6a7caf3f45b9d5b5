// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package dex implements a confidential constant-product pool. Reserves,
// LP shares, trade sizes and quotes are ciphertext handles; pricing uses
// only addition, multiplication, comparison and selection, never
// division, and a failed slippage check is a zero-effect trade rather than
// an error.
package dex

import (
	"errors"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/fheswap/fhe"
	"github.com/luxfi/fheswap/token"
)

// Fee factor applied to the input side of every swap (0.3%)
const (
	FeeNumerator   uint64 = 997
	FeeDenominator uint64 = 1000
)

// StateDB is the storage the pool reads and writes during a call
type StateDB interface {
	GetState(addr common.Address, key common.Hash) common.Hash
	SetState(addr common.Address, key common.Hash, value common.Hash)
	GetBlockTime() uint64
}

// Ledger is the confidential balance ledger of one pooled asset.
type Ledger interface {
	Address() common.Address
	BalanceOf(db token.StateDB, account common.Address) fhe.Handle
	IsOperator(db token.StateDB, holder, operator common.Address) bool
	ConfidentialTransferFrom(db token.StateDB, caller, from, to common.Address, amount fhe.Handle) (fhe.Handle, error)
}

var _ Ledger = (*token.Token)(nil)

// Storage key prefixes for pool state
var (
	initializedPrefix   = []byte("init")
	reserve0Prefix      = []byte("rsv0")
	reserve1Prefix      = []byte("rsv1")
	lpSupplyPrefix      = []byte("lpsp")
	lpBalancePrefix     = []byte("lpbl")
	quoteNumPrefix      = []byte("qnum")
	quoteDenPrefix      = []byte("qden")
	quoteEstimatePrefix = []byte("qest")
)

// SwapRequest carries the client-encrypted inputs of one swap.
type SwapRequest struct {
	AmountIn          fhe.ExternalInput
	ExpectedAmountOut fhe.ExternalInput
	MinAmountOut      fhe.ExternalInput
	TokenIn           common.Address
	Recipient         common.Address
}

// QuoteRecord is the caller's most recent quote. A new quote replaces it.
type QuoteRecord struct {
	Numerator   fhe.Handle
	Denominator fhe.Handle
	// EstimatedOut is the amount the caller's last swap paid out; zero
	// until a swap runs.
	EstimatedOut fhe.Handle
}

// Errors - Pool
var (
	ErrPoolNotInitialized     = errors.New("pool not initialized")
	ErrPoolAlreadyInitialized = errors.New("pool already initialized")
	ErrIdenticalTokens        = errors.New("pool tokens must differ")
	ErrInvalidToken           = errors.New("token is not part of this pool")
	ErrInvalidRecipient       = errors.New("invalid recipient")
	ErrUnauthorized           = errors.New("unauthorized")
)
