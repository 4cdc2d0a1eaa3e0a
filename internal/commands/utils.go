package commands

import (
	"context"
	"errors"
	"strings"

	"github.com/sasha-s/go-deadlock"
	"github.com/shopspring/decimal"
)

var errMoveRefused = errors.New("wallet refused the move")

// account maps a nickname to its wallet account.
func account(nick string) string {
	return strings.ToLower(nick)
}

// parseAmount accepts positive decimal amounts only.
func parseAmount(s string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsPositive() {
		return decimal.Zero, false
	}
	return d, true
}

// accountLocks serializes balance-check-then-transfer sequences per sender
// account. Locks are refcounted and dropped once nobody holds or waits on them.
type accountLocks struct {
	mu    deadlock.Mutex
	locks map[string]*accountLock
}

type accountLock struct {
	sem  chan struct{}
	refs int
}

func newAccountLocks() *accountLocks {
	return &accountLocks{locks: make(map[string]*accountLock)}
}

// lock waits for the account's lock or for ctx to end.
func (l *accountLocks) lock(ctx context.Context, acct string) (func(), error) {
	l.mu.Lock()
	al, ok := l.locks[acct]
	if !ok {
		al = &accountLock{sem: make(chan struct{}, 1)}
		l.locks[acct] = al
	}
	al.refs++
	l.mu.Unlock()

	select {
	case al.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(acct, al)
		return nil, ctx.Err()
	}

	var once bool
	return func() {
		if once {
			return
		}
		once = true
		<-al.sem
		l.release(acct, al)
	}, nil
}

func (l *accountLocks) release(acct string, al *accountLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	al.refs--
	if al.refs == 0 {
		delete(l.locks, acct)
	}
}

func (l *accountLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
