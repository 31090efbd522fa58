// Package ledger provides the in-memory account store the gateway settles
// against: native-asset balances plus fungible-token balances with standard
// transfer / transferFrom / approve / allowance semantics, and a staged
// transaction type giving every payment all-or-nothing settlement.
package ledger

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/evmfactory/paygate/types"
)

type balanceKey struct {
	token  common.Address
	holder common.Address
}

type allowanceKey struct {
	token   common.Address
	owner   common.Address
	spender common.Address
}

// Ledger is a thread-safe account store. The native asset is addressed by
// types.NativeToken; every other token address is an independent balance
// namespace. All mutation goes through a Tx, so partially applied state is
// never observable.
type Ledger struct {
	mu         sync.Mutex
	balances   map[balanceKey]*big.Int
	allowances map[allowanceKey]*big.Int
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{
		balances:   make(map[balanceKey]*big.Int),
		allowances: make(map[allowanceKey]*big.Int),
	}
}

// Mint credits account with amount of token out of thin air. Test and
// genesis setup only.
func (l *Ledger) Mint(token, account common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(token, account, amount)
}

// BalanceOf returns the committed balance of account in token.
func (l *Ledger) BalanceOf(token, account common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.balance(token, account))
}

// Approve sets spender's allowance over owner's token balance.
func (l *Ledger) Approve(token, owner, spender common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.allowances[allowanceKey{token, owner, spender}] = new(big.Int).Set(amount)
}

// Allowance returns what spender may still pull from owner's token balance.
func (l *Ledger) Allowance(token, owner, spender common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.allowance(token, owner, spender))
}

// Transfer moves amount of token from one account to another as a single
// committed transaction.
func (l *Ledger) Transfer(token, from, to common.Address, amount *big.Int) error {
	tx := l.Begin()
	if err := tx.Transfer(token, from, to, amount); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// TransferFrom moves amount of token from owner to recipient on behalf of
// spender, consuming spender's allowance, as a single committed transaction.
func (l *Ledger) TransferFrom(token, owner, spender, to common.Address, amount *big.Int) error {
	tx := l.Begin()
	if err := tx.TransferFrom(token, owner, spender, to, amount); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// balance returns the stored balance without copying. Caller holds l.mu.
func (l *Ledger) balance(token, account common.Address) *big.Int {
	if b, ok := l.balances[balanceKey{token, account}]; ok {
		return b
	}
	return big.NewInt(0)
}

func (l *Ledger) allowance(token, owner, spender common.Address) *big.Int {
	if a, ok := l.allowances[allowanceKey{token, owner, spender}]; ok {
		return a
	}
	return big.NewInt(0)
}

func (l *Ledger) credit(token, account common.Address, amount *big.Int) {
	key := balanceKey{token, account}
	cur, ok := l.balances[key]
	if !ok {
		cur = big.NewInt(0)
		l.balances[key] = cur
	}
	cur.Add(cur, amount)
}

func errAmountNotPositive() error {
	return types.NewError(types.ErrInvalidAmount, "amount must be greater than zero")
}

func errInsufficientBalance(token, holder common.Address, want, have *big.Int) error {
	return &types.Error{
		Code: types.ErrInsufficientBalance,
		Message: fmt.Sprintf("account %s holds %s of token %s, need %s",
			holder, have, token, want),
	}
}
