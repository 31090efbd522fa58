// Package fees computes and collects module/token-specific percentage and
// fixed fees. The manager is callable standalone and is also wrapped by the
// fee processor for use inside the orchestrator chain.
package fees

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/evmfactory/paygate/ledger"
	"github.com/evmfactory/paygate/types"
)

type scheduleKey struct {
	module types.ModuleID
	token  common.Address
}

// Manager owns the per-(module, token) fee schedules and a holding account
// collected fees accumulate in.
type Manager struct {
	mu        sync.RWMutex
	schedules map[scheduleKey]*types.FeeSchedule

	ledger  *ledger.Ledger
	auth    types.RoleAuthority
	holding common.Address
}

// NewManager creates a fee manager holding collected fees in the given
// account. Schedule mutation is gated by the module-management role.
func NewManager(l *ledger.Ledger, auth types.RoleAuthority, holding common.Address) *Manager {
	return &Manager{
		schedules: make(map[scheduleKey]*types.FeeSchedule),
		ledger:    l,
		auth:      auth,
		holding:   holding,
	}
}

// HoldingAccount is where collected fees accumulate.
func (m *Manager) HoldingAccount() common.Address {
	return m.holding
}

// SetPercentFee sets the percentage component for (module, token).
// Caller must hold the module-management capability.
func (m *Manager) SetPercentFee(caller common.Address, module types.ModuleID, token common.Address, bps uint16) error {
	if !m.auth.HasRole(types.RoleModuleManager, caller) {
		return types.NewError(types.ErrForbidden, "caller lacks module-management capability")
	}
	if bps > types.MaxBps {
		return &types.Error{
			Code:    types.ErrInvalidFeeBps,
			Message: fmt.Sprintf("percent fee %d bps exceeds %d", bps, types.MaxBps),
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedule(module, token).PercentBps = bps
	return nil
}

// SetFixedFee sets the fixed component for (module, token).
// Caller must hold the module-management capability.
func (m *Manager) SetFixedFee(caller common.Address, module types.ModuleID, token common.Address, amount *big.Int) error {
	if !m.auth.HasRole(types.RoleModuleManager, caller) {
		return types.NewError(types.ErrForbidden, "caller lacks module-management capability")
	}
	if amount == nil || amount.Sign() < 0 {
		return types.NewError(types.ErrInvalidAmount, "fixed fee must not be negative")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedule(module, token).FixedAmount = new(big.Int).Set(amount)
	return nil
}

// Schedule returns a copy of the effective schedule for (module, token).
func (m *Manager) Schedule(module types.ModuleID, token common.Address) types.FeeSchedule {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.schedules[scheduleKey{module, token}]
	if !ok {
		return types.FeeSchedule{FixedAmount: big.NewInt(0)}
	}
	return types.FeeSchedule{
		PercentBps:  s.PercentBps,
		FixedAmount: new(big.Int).Set(s.FixedAmount),
	}
}

// Quote computes fixed + amount*bps/10000 for (module, token) without moving
// funds. A quote exceeding the amount fails with FEE_EXCEEDS_AMOUNT; the fee
// must never eat into more than the amount it is charged against.
func (m *Manager) Quote(module types.ModuleID, token common.Address, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, types.NewError(types.ErrInvalidAmount, "amount must be greater than zero")
	}
	sched := m.Schedule(module, token)

	fee := new(big.Int).Mul(amount, big.NewInt(int64(sched.PercentBps)))
	fee.Div(fee, big.NewInt(int64(types.MaxBps)))
	fee.Add(fee, sched.FixedAmount)

	if fee.Cmp(amount) > 0 {
		return nil, &types.Error{
			Code:    types.ErrFeeExceedsAmount,
			Message: fmt.Sprintf("fee %s exceeds amount %s for module %s", fee, amount, module),
		}
	}
	return fee, nil
}

// Collect quotes the fee and pulls it from payer's balance into the holding
// account, returning the amount actually charged. Standalone flows call this
// directly; inside the gateway pipeline the fee processor only quotes and
// the gateway settles the resulting adjustment atomically.
func (m *Manager) Collect(module types.ModuleID, token, payer common.Address, amount *big.Int) (*big.Int, error) {
	fee, err := m.Quote(module, token, amount)
	if err != nil {
		return nil, err
	}
	if fee.Sign() == 0 {
		return fee, nil
	}
	if err := m.ledger.Transfer(token, payer, m.holding, fee); err != nil {
		return nil, err
	}
	return fee, nil
}

// Withdraw moves collected fees out of the holding account. Admin only.
func (m *Manager) Withdraw(caller common.Address, token, destination common.Address, amount *big.Int) error {
	if !m.auth.HasRole(types.RoleAdmin, caller) {
		return types.NewError(types.ErrForbidden, "caller lacks admin capability")
	}
	if amount == nil || amount.Sign() <= 0 {
		return types.NewError(types.ErrInvalidAmount, "amount must be greater than zero")
	}
	return m.ledger.Transfer(token, m.holding, destination, amount)
}

// schedule returns the mutable schedule entry, creating it on first use.
// Caller holds m.mu.
func (m *Manager) schedule(module types.ModuleID, token common.Address) *types.FeeSchedule {
	key := scheduleKey{module, token}
	s, ok := m.schedules[key]
	if !ok {
		s = &types.FeeSchedule{FixedAmount: big.NewInt(0)}
		m.schedules[key] = s
	}
	return s
}
