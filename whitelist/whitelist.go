// Package whitelist ships a bounded token allow-list satisfying the
// TokenValidator contract consumed by the token-filter processor.
package whitelist

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/evmfactory/paygate/types"
)

// MaxTokens bounds the allow-list size.
const MaxTokens = 32

// TokenWhitelist is an administrator-curated allow-list of token contracts.
type TokenWhitelist struct {
	mu      sync.RWMutex
	auth    types.RoleAuthority
	allowed []common.Address
}

// New creates an empty whitelist; mutation requires the admin capability.
func New(auth types.RoleAuthority) *TokenWhitelist {
	return &TokenWhitelist{auth: auth}
}

// Add whitelists a token. Duplicates and overflow beyond MaxTokens are
// rejected.
func (w *TokenWhitelist) Add(caller common.Address, token common.Address) error {
	if !w.auth.HasRole(types.RoleAdmin, caller) {
		return types.NewError(types.ErrForbidden, "caller lacks admin capability")
	}
	if token == (common.Address{}) {
		return types.NewError(types.ErrZeroAddress, "token address must not be zero")
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, t := range w.allowed {
		if t == token {
			return &types.Error{
				Code:    types.ErrTokenAlreadyWhitelisted,
				Message: fmt.Sprintf("token %s is already whitelisted", token),
			}
		}
	}
	if len(w.allowed) >= MaxTokens {
		return types.NewError(types.ErrWhitelistFull, "whitelist is full")
	}
	w.allowed = append(w.allowed, token)
	return nil
}

// Remove drops a token from the list. Removing an absent token is a no-op.
func (w *TokenWhitelist) Remove(caller common.Address, token common.Address) error {
	if !w.auth.HasRole(types.RoleAdmin, caller) {
		return types.NewError(types.ErrForbidden, "caller lacks admin capability")
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	kept := w.allowed[:0]
	for _, t := range w.allowed {
		if t != token {
			kept = append(kept, t)
		}
	}
	w.allowed = kept
	return nil
}

// IsAllowed implements types.TokenValidator.
func (w *TokenWhitelist) IsAllowed(token common.Address) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, t := range w.allowed {
		if t == token {
			return true
		}
	}
	return false
}

// Tokens returns a copy of the current allow-list.
func (w *TokenWhitelist) Tokens() []common.Address {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]common.Address(nil), w.allowed...)
}
