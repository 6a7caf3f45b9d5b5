// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package registry

import (
	"testing"

	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"
)

func TestAddress(t *testing.T) {
	tests := []struct {
		name string
		p    Family
		c    Chain
		ii   uint8
		want string
	}{
		{"pool_c", FamilyDEX, ChainC, ItemPool, "0x0000000000000000000000000000000000009200"},
		{"token1_c", FamilyDEX, ChainC, ItemToken1, "0x0000000000000000000000000000000000009202"},
		{"fhe_z", FamilyPrivacy, ChainZ, 0x40, "0x0000000000000000000000000000000000004640"},
		{"spc", FamilyDEX, ChainSPC, 0xff, "0x0000000000000000000000000000000000009aff"},
		{"bad_family", 16, ChainC, 0, "0x0000000000000000000000000000000000000000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, common.HexToAddress(tt.want), Address(tt.p, tt.c, tt.ii))
		})
	}
}

func TestDecode(t *testing.T) {
	sel, err := Decode(common.HexToAddress("0x9201"))
	require.NoError(t, err)
	require.Equal(t, Selector{Family: FamilyDEX, Chain: ChainC, Item: ItemToken0}, sel)
	require.Equal(t, "9201", sel.LP())

	for _, addr := range []string{
		"0x0000000000000000000000000000000000000001",
		"0x0100000000000000000000000000000000009200",
		"0x0000000000000000000000000000000000000000",
	} {
		_, err := Decode(common.HexToAddress(addr))
		require.ErrorIs(t, err, ErrNotSelector, addr)
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	for _, c := range []Chain{ChainC, ChainQ, ChainZ, ChainHanzo} {
		addr := Address(FamilyDEX, c, 0x42)
		sel, err := Decode(addr)
		require.NoError(t, err)
		require.Equal(t, addr, Address(sel.Family, sel.Chain, sel.Item))
	}
}

func TestChainSlot(t *testing.T) {
	c, err := ChainSlot("C")
	require.NoError(t, err)
	require.Equal(t, ChainC, c)

	c, err = ChainSlot("hanzo")
	require.NoError(t, err)
	require.Equal(t, ChainHanzo, c)

	_, err = ChainSlot("y")
	require.ErrorIs(t, err, ErrUnknownChain)
}

func TestPoolDeployment(t *testing.T) {
	d := PoolDeployment(ChainC)
	require.Equal(t, common.HexToAddress("0x9200"), d.Pool)
	require.Equal(t, common.HexToAddress("0x9201"), d.Token0)
	require.Equal(t, common.HexToAddress("0x9202"), d.Token1)
}
