// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package registry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/luxfi/geth/common"
)

// ============================================================================
// DEPLOYMENT ADDRESS SCHEME
// ============================================================================
//
// Native deployments use trailing-significant 20-byte addresses:
//   Format: 0x0000000000000000000000000000000000PCII
//
//   0x 0000...0000 P C II
//                  │ │ └┴─ Item (8 bits)
//                  │ └──── Chain slot (4 bits)
//                  └────── Family page (4 bits)
//
// A confidential pool and its two tokens on the C-Chain occupy
// 0x9200, 0x9201 and 0x9202.

// Family is the P nibble.
type Family uint8

const (
	FamilyPQ        Family = 2
	FamilyCrypto    Family = 3
	FamilyPrivacy   Family = 4
	FamilyThreshold Family = 5
	FamilyBridge    Family = 6
	FamilyAI        Family = 7
	FamilyDEX       Family = 9
)

// Chain is the C nibble.
type Chain uint8

const (
	ChainP     Chain = 0
	ChainX     Chain = 1
	ChainC     Chain = 2
	ChainQ     Chain = 3
	ChainA     Chain = 4
	ChainB     Chain = 5
	ChainZ     Chain = 6
	ChainM     Chain = 7
	ChainZoo   Chain = 8
	ChainHanzo Chain = 9
	ChainSPC   Chain = 0xA
)

// Items within the DEX family for one confidential pool deployment.
const (
	ItemPool   uint8 = 0x00
	ItemToken0 uint8 = 0x01
	ItemToken1 uint8 = 0x02
)

var (
	ErrUnknownChain = errors.New("unknown chain")
	ErrNotSelector  = errors.New("address is not a PCII selector")
)

var chains = map[string]Chain{
	"p":     ChainP,
	"x":     ChainX,
	"c":     ChainC,
	"q":     ChainQ,
	"a":     ChainA,
	"b":     ChainB,
	"z":     ChainZ,
	"m":     ChainM,
	"zoo":   ChainZoo,
	"hanzo": ChainHanzo,
	"spc":   ChainSPC,
}

// ChainSlot returns the C nibble for a chain name.
func ChainSlot(name string) (Chain, error) {
	c, ok := chains[strings.ToLower(name)]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownChain, name)
	}
	return c, nil
}

// Address builds 0x...PCII. Nibbles above 15 yield the zero address.
func Address(p Family, c Chain, ii uint8) common.Address {
	if p > 15 || c > 15 {
		return common.Address{}
	}
	var addr common.Address
	addr[common.AddressLength-2] = byte(p)<<4 | byte(c)
	addr[common.AddressLength-1] = ii
	return addr
}

// Selector is a decoded deployment address.
type Selector struct {
	Family Family
	Chain  Chain
	Item   uint8
}

// LP returns the four hex digit LP number, e.g. "9201".
func (s Selector) LP() string {
	return fmt.Sprintf("%X%X%02X", uint8(s.Family), uint8(s.Chain), s.Item)
}

// Decode splits addr into its selector. Any nonzero byte ahead of the
// last two is rejected.
func Decode(addr common.Address) (Selector, error) {
	for _, b := range addr[:common.AddressLength-2] {
		if b != 0 {
			return Selector{}, fmt.Errorf("%w: %s", ErrNotSelector, addr)
		}
	}
	hi := addr[common.AddressLength-2]
	if hi == 0 {
		return Selector{}, fmt.Errorf("%w: %s", ErrNotSelector, addr)
	}
	return Selector{
		Family: Family(hi >> 4),
		Chain:  Chain(hi & 0x0f),
		Item:   addr[common.AddressLength-1],
	}, nil
}

// Deployment is the address set for one confidential pool.
type Deployment struct {
	Pool   common.Address
	Token0 common.Address
	Token1 common.Address
}

// PoolDeployment returns the pool and token addresses on chain c.
func PoolDeployment(c Chain) Deployment {
	return Deployment{
		Pool:   Address(FamilyDEX, c, ItemPool),
		Token0: Address(FamilyDEX, c, ItemToken0),
		Token1: Address(FamilyDEX, c, ItemToken1),
	}
}
