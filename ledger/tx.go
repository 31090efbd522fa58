package ledger

import (
	"fmt"

	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/evmfactory/paygate/types"
)

// Tx is a staged ledger transaction. Begin takes the ledger lock; every
// Transfer/TransferFrom validates against the effective (committed plus
// staged) state and records a delta; Commit applies all deltas at once and
// Rollback discards them. Exactly one of Commit or Rollback must be called.
type Tx struct {
	l        *Ledger
	pending  map[balanceKey]*big.Int
	consumed map[allowanceKey]*big.Int
	done     bool
}

// Begin opens a transaction. The ledger is locked until Commit or Rollback,
// which is what serializes concurrent settlements.
func (l *Ledger) Begin() *Tx {
	l.mu.Lock()
	return &Tx{
		l:        l,
		pending:  make(map[balanceKey]*big.Int),
		consumed: make(map[allowanceKey]*big.Int),
	}
}

// effective returns committed balance plus staged deltas for one holder.
func (t *Tx) effective(token, holder common.Address) *big.Int {
	eff := new(big.Int).Set(t.l.balance(token, holder))
	if d, ok := t.pending[balanceKey{token, holder}]; ok {
		eff.Add(eff, d)
	}
	return eff
}

func (t *Tx) stage(token, holder common.Address, delta *big.Int) {
	key := balanceKey{token, holder}
	cur, ok := t.pending[key]
	if !ok {
		cur = big.NewInt(0)
		t.pending[key] = cur
	}
	cur.Add(cur, delta)
}

// Transfer stages a token move, failing if the sender's effective balance is
// too low. No committed state changes until Commit.
func (t *Tx) Transfer(token, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errAmountNotPositive()
	}
	have := t.effective(token, from)
	if have.Cmp(amount) < 0 {
		return errInsufficientBalance(token, from, amount, have)
	}
	t.stage(token, from, new(big.Int).Neg(amount))
	t.stage(token, to, amount)
	return nil
}

// TransferFrom stages an allowance-backed pull from owner to recipient,
// consuming spender's allowance.
func (t *Tx) TransferFrom(token, owner, spender, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errAmountNotPositive()
	}
	key := allowanceKey{token, owner, spender}
	remaining := new(big.Int).Set(t.l.allowance(token, owner, spender))
	if used, ok := t.consumed[key]; ok {
		remaining.Sub(remaining, used)
	}
	if remaining.Cmp(amount) < 0 {
		return &types.Error{
			Code: types.ErrInsufficientAllowance,
			Message: fmt.Sprintf("spender %s allowance over %s of token %s is %s, need %s",
				spender, owner, token, remaining, amount),
		}
	}
	if err := t.Transfer(token, owner, to, amount); err != nil {
		return err
	}
	used, ok := t.consumed[key]
	if !ok {
		used = big.NewInt(0)
		t.consumed[key] = used
	}
	used.Add(used, amount)
	return nil
}

// Commit applies every staged delta and allowance consumption, then releases
// the ledger.
func (t *Tx) Commit() error {
	if t.done {
		return fmt.Errorf("ledger tx already finished")
	}
	t.done = true
	for key, delta := range t.pending {
		t.l.credit(key.token, key.holder, delta)
	}
	for key, used := range t.consumed {
		if cur, ok := t.l.allowances[key]; ok {
			cur.Sub(cur, used)
		}
	}
	t.l.mu.Unlock()
	return nil
}

// Rollback discards all staged work and releases the ledger. Safe to call
// after Commit; it then does nothing.
func (t *Tx) Rollback() {
	if t.done {
		return
	}
	t.done = true
	t.pending = nil
	t.consumed = nil
	t.l.mu.Unlock()
}
