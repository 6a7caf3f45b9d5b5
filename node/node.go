// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package node assembles a pool deployment from its configuration and
// exposes each contract entry point as one serialized, all-or-nothing
// call.
package node

import (
	"fmt"
	"time"

	"github.com/luxfi/database"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/fheswap/client"
	"github.com/luxfi/fheswap/config"
	"github.com/luxfi/fheswap/dex"
	"github.com/luxfi/fheswap/fhe"
	"github.com/luxfi/fheswap/host"
	"github.com/luxfi/fheswap/registry"
	"github.com/luxfi/fheswap/state"
	"github.com/luxfi/fheswap/token"
)

// Node is one deployed pool with its two tokens.
type Node struct {
	cfg config.Config

	sub    *fhe.Coprocessor
	token0 *token.Token
	token1 *token.Token
	pool   *dex.Pool
	exec   *host.Executor
	log    log.Logger
}

// New builds the deployment described by cfg over db and initializes the
// pool if this database has never seen it.
func New(cfg config.Config, db database.Database, clock func() time.Time, logger log.Logger) (*Node, error) {
	if err := cfg.Verify(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewTestLogger(log.InfoLevel)
	}

	var backend fhe.Backend
	switch cfg.Backend {
	case fhe.BackendTFHE:
		b, err := fhe.NewTFHEBackend()
		if err != nil {
			return nil, err
		}
		backend = b
	default:
		backend = fhe.NewClearBackend()
	}
	sub, err := fhe.NewCoprocessor(backend, logger)
	if err != nil {
		return nil, err
	}

	owner := cfg.OwnerAddress()
	n := &Node{
		cfg:    cfg,
		sub:    sub,
		token0: token.New(cfg.Token0.TokenAddress(), owner, cfg.Token0.Name, cfg.Token0.Symbol, sub, logger),
		token1: token.New(cfg.Token1.TokenAddress(), owner, cfg.Token1.Name, cfg.Token1.Symbol, sub, logger),
		exec:   host.New(state.New(db), clock, logger),
		log:    logger,
	}
	n.pool, err = dex.NewPool(cfg.PoolAddress(), owner, n.token0, n.token1, sub, logger)
	if err != nil {
		return nil, err
	}

	err = n.exec.Call("initialize", func(s *state.DB) error {
		if n.pool.IsInitialized(s) {
			return nil
		}
		return n.pool.Initialize(s, owner)
	})
	if err != nil {
		return nil, fmt.Errorf("initialize pool: %w", err)
	}

	ctx := []interface{}{
		"backend", sub.Backend(),
		"pool", cfg.PoolAddress(),
		"token0", cfg.Token0.Symbol,
		"token1", cfg.Token1.Symbol,
	}
	if sel, err := registry.Decode(cfg.PoolAddress()); err == nil {
		ctx = append(ctx, "lp", sel.LP())
	}
	logger.Info("node ready", ctx...)
	return n, nil
}

func (n *Node) Substrate() *fhe.Coprocessor { return n.sub }
func (n *Node) Pool() *dex.Pool             { return n.pool }
func (n *Node) Token0() *token.Token        { return n.token0 }
func (n *Node) Token1() *token.Token        { return n.token1 }
func (n *Node) Executor() *host.Executor    { return n.exec }

// RegisterMetrics exports executor call counters and the substrate's
// metered gas on reg.
func (n *Node) RegisterMetrics(reg prometheus.Registerer) error {
	m, err := host.NewMetrics(reg)
	if err != nil {
		return err
	}
	gas := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "fheswap",
		Subsystem: "fhe",
		Name:      "gas_metered",
		Help:      "Gas charged for encrypted evaluations since the meter was last reset.",
	}, func() float64 { return float64(n.sub.Meter().Gas()) })
	if err := reg.Register(gas); err != nil {
		return err
	}
	n.exec.SetMetrics(m)
	return nil
}

// Trader returns a client for account using the configured slippage.
func (n *Node) Trader(account common.Address) (*client.Trader, error) {
	return client.NewTrader(account, n.pool.Address(), n.sub, n.cfg.SlippageBps)
}

// token resolves a pool token by address.
func (n *Node) token(addr common.Address) (*token.Token, error) {
	switch addr {
	case n.token0.Address():
		return n.token0, nil
	case n.token1.Address():
		return n.token1, nil
	default:
		return nil, fmt.Errorf("%w: %s", dex.ErrInvalidToken, addr)
	}
}

// =========================================================================
// Token calls
// =========================================================================

// Mint encrypts amount as the owner and credits to.
func (n *Node) Mint(tokenAddr, to common.Address, amount uint64) error {
	tok, err := n.token(tokenAddr)
	if err != nil {
		return err
	}
	in, err := n.sub.EncryptInput(amount, fhe.TypeEuint64, tok.Address(), tok.Owner())
	if err != nil {
		return err
	}
	return n.exec.Call("mint", func(s *state.DB) error {
		_, err := tok.Mint(s, tok.Owner(), to, in)
		return err
	})
}

// ApprovePool makes the pool an operator of holder's tokenAddr balance
// for ttl.
func (n *Node) ApprovePool(tokenAddr, holder common.Address, ttl time.Duration) error {
	tok, err := n.token(tokenAddr)
	if err != nil {
		return err
	}
	return n.exec.Call("setOperator", func(s *state.DB) error {
		tok.SetOperator(s, holder, n.pool.Address(), s.GetBlockTime()+uint64(ttl/time.Second))
		return nil
	})
}

// Balance returns holder's token balance handle.
func (n *Node) Balance(tokenAddr, holder common.Address) (fhe.Handle, error) {
	tok, err := n.token(tokenAddr)
	if err != nil {
		return fhe.Handle{}, err
	}
	var h fhe.Handle
	err = n.exec.View(func(s *state.DB) error {
		h = tok.BalanceOf(s, holder)
		return nil
	})
	return h, err
}

// =========================================================================
// Pool calls
// =========================================================================

func (n *Node) AddLiquidity(caller common.Address, amount0, amount1 fhe.ExternalInput) (fhe.Handle, error) {
	var minted fhe.Handle
	err := n.exec.Call("addLiquidity", func(s *state.DB) error {
		var err error
		minted, err = n.pool.AddLiquidity(s, caller, amount0, amount1)
		return err
	})
	return minted, err
}

func (n *Node) RemoveLiquidity(caller common.Address, lpAmount, amount1Out fhe.ExternalInput) (fhe.Handle, fhe.Handle, error) {
	var out0, out1 fhe.Handle
	err := n.exec.Call("removeLiquidity", func(s *state.DB) error {
		var err error
		out0, out1, err = n.pool.RemoveLiquidity(s, caller, lpAmount, amount1Out)
		return err
	})
	return out0, out1, err
}

func (n *Node) QuoteRemoveLiquidity(caller common.Address, lpAmount fhe.ExternalInput) error {
	return n.exec.Call("quoteRemoveLiquidity", func(s *state.DB) error {
		return n.pool.QuoteRemoveLiquidity(s, caller, lpAmount)
	})
}

func (n *Node) GetAmountOut(caller common.Address, amountIn fhe.ExternalInput, tokenIn common.Address) error {
	return n.exec.Call("getAmountOut", func(s *state.DB) error {
		return n.pool.GetAmountOut(s, caller, amountIn, tokenIn)
	})
}

func (n *Node) Swap(caller common.Address, req dex.SwapRequest) (fhe.Handle, error) {
	var out fhe.Handle
	err := n.exec.Call("swap", func(s *state.DB) error {
		var err error
		out, err = n.pool.Swap(s, caller, req)
		return err
	})
	return out, err
}

// Quote returns caller's quote record.
func (n *Node) Quote(caller common.Address) (dex.QuoteRecord, error) {
	var rec dex.QuoteRecord
	err := n.exec.View(func(s *state.DB) error {
		rec = n.pool.Quote(s, caller)
		return nil
	})
	return rec, err
}

// Reserves returns the reserve and LP supply handles.
func (n *Node) Reserves() (reserve0, reserve1, supply fhe.Handle, err error) {
	err = n.exec.View(func(s *state.DB) error {
		reserve0 = n.pool.EncryptedReserve0(s)
		reserve1 = n.pool.EncryptedReserve1(s)
		supply = n.pool.EncryptedTotalSupply(s)
		return nil
	})
	return reserve0, reserve1, supply, err
}

// LPBalance returns account's LP share handle.
func (n *Node) LPBalance(account common.Address) (fhe.Handle, error) {
	var h fhe.Handle
	err := n.exec.View(func(s *state.DB) error {
		h = n.pool.EncryptedLPBalance(s, account)
		return nil
	})
	return h, err
}
