package sample

import (
	"errors"

	"github.com/DominicWuest/seqgen/pkg/contract"
	"github.com/DominicWuest/seqgen/pkg/sut"
)

var ErrInsufficientFunds = errors.New("insufficient funds")

// Account is a bank account with an overdraft limit. It states its contracts.
type Account struct {
	balance int
	limit   int
}

func NewAccount(env *sut.Env) *Account {
	env.Hit(100)
	return &Account{}
}

func NewAccountWithLimit(env *sut.Env, limit int) *Account {
	contract.Require(limit >= 0, "limit %d must not be negative", limit)
	env.Hit(101)
	return &Account{limit: limit}
}

func (a *Account) invariant() {
	contract.Invariant(a.balance >= -a.limit, "balance %d exceeds the limit %d", a.balance, a.limit)
}

func (a *Account) Balance(env *sut.Env) int {
	env.Hit(102)
	return a.balance
}

func (a *Account) Deposit(env *sut.Env, amount int) {
	contract.Require(amount > 0, "amount %d must be positive", amount)
	env.Hit(103)
	old := a.balance
	a.balance += amount
	contract.Ensure(a.balance == old+amount, "balance must grow by the amount")
	a.invariant()
}

func (a *Account) Withdraw(env *sut.Env, amount int) error {
	contract.Require(amount > 0, "amount %d must be positive", amount)
	if amount > a.balance+a.limit {
		env.Hit(104)
		return ErrInsufficientFunds
	}
	env.Hit(105)
	old := a.balance
	a.balance -= amount
	if a.limit > 0 && a.balance == 0 {
		// Rounds a cleared overdraft account down
		env.Hit(106)
		a.balance--
	}
	contract.Ensure(a.balance == old-amount, "balance must shrink by the amount")
	a.invariant()
	return nil
}

// Transfer moves amount to another account. It does not check the amount itself.
func (a *Account) Transfer(env *sut.Env, to *Account, amount int) error {
	contract.Require(to != nil, "target account must be given")
	contract.Require(to != a, "can't transfer to the same account")
	env.Hit(107)
	if amount > a.balance+a.limit {
		env.Hit(108)
		return ErrInsufficientFunds
	}
	to.Deposit(env, amount)
	a.balance -= amount
	a.invariant()
	return nil
}
