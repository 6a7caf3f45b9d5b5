// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhe

import (
	"sync"

	"github.com/luxfi/geth/common"
)

// ACL records which identities may use or decrypt each handle.
// Grants are additive; a handle is never revoked once shared.
type ACL struct {
	mu     sync.RWMutex
	grants map[Handle]map[common.Address]struct{}
}

// NewACL returns an empty access-control list.
func NewACL() *ACL {
	return &ACL{grants: make(map[Handle]map[common.Address]struct{})}
}

// Allow grants account access to h.
func (a *ACL) Allow(h Handle, account common.Address) {
	a.mu.Lock()
	defer a.mu.Unlock()

	set, ok := a.grants[h]
	if !ok {
		set = make(map[common.Address]struct{})
		a.grants[h] = set
	}
	set[account] = struct{}{}
}

// IsAllowed reports whether account holds a grant on h.
func (a *ACL) IsAllowed(h Handle, account common.Address) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()

	_, ok := a.grants[h][account]
	return ok
}
