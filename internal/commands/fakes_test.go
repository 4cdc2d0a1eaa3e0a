package commands

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/susu3304/tipbot/internal/config"
	"github.com/susu3304/tipbot/internal/identity"
	"github.com/susu3304/tipbot/internal/wallet"
	"go.uber.org/zap"
)

type said struct {
	target string
	text   string
}

type fakeChat struct {
	mu       sync.Mutex
	nick     string
	names    map[string][]string
	namesErr error
	said     []said
}

func (c *fakeChat) Say(target, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.said = append(c.said, said{target, text})
}

func (c *fakeChat) Nick() string { return c.nick }

func (c *fakeChat) Names(_ context.Context, channel string) ([]string, error) {
	if c.namesErr != nil {
		return nil, c.namesErr
	}
	return append([]string(nil), c.names[channel]...), nil
}

func (c *fakeChat) replies() []said {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]said(nil), c.said...)
}

type fakeVerifier struct {
	mu      sync.Mutex
	results map[string]identity.Result
	asked   []string
}

func (v *fakeVerifier) Verify(_ context.Context, nick string) identity.Result {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.asked = append(v.asked, nick)
	if r, ok := v.results[strings.ToLower(nick)]; ok {
		return r
	}
	return identity.Verified
}

type move struct {
	from, to string
	amount   string
}

// fakeWallet keeps confirmed balances plus an unconfirmed surplus that only
// shows up at zero confirmations.
type fakeWallet struct {
	mu          sync.Mutex
	balances    map[string]decimal.Decimal
	unconfirmed map[string]decimal.Decimal
	valid       map[string]bool
	calls       []string
	moves       []move
	balanceErr  error
	moveErr     func(to string) error
	sendErr     error
}

func newFakeWallet() *fakeWallet {
	return &fakeWallet{
		balances:    make(map[string]decimal.Decimal),
		unconfirmed: make(map[string]decimal.Decimal),
		valid:       make(map[string]bool),
	}
}

func (w *fakeWallet) record(format string, args ...any) {
	w.calls = append(w.calls, fmt.Sprintf(format, args...))
}

func (w *fakeWallet) GetBalance(_ context.Context, account string, minConf int) (decimal.Decimal, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record("getbalance %s %d", account, minConf)
	if w.balanceErr != nil {
		return decimal.Zero, w.balanceErr
	}
	b := w.balances[account]
	if minConf == 0 {
		b = b.Add(w.unconfirmed[account])
	}
	return b, nil
}

func (w *fakeWallet) Move(_ context.Context, from, to string, amount decimal.Decimal) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record("move %s %s %s", from, to, amount)
	if w.moveErr != nil {
		if err := w.moveErr(to); err != nil {
			return false, err
		}
	}
	w.balances[from] = w.balances[from].Sub(amount)
	w.balances[to] = w.balances[to].Add(amount)
	w.moves = append(w.moves, move{from, to, amount.String()})
	return true, nil
}

func (w *fakeWallet) GetAccountAddress(_ context.Context, account string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record("getaccountaddress %s", account)
	return "D" + account, nil
}

func (w *fakeWallet) ValidateAddress(_ context.Context, address string) (wallet.AddressInfo, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record("validateaddress %s", address)
	return wallet.AddressInfo{IsValid: w.valid[address], Address: address}, nil
}

func (w *fakeWallet) SendFrom(_ context.Context, account, address string, amount decimal.Decimal) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record("sendfrom %s %s %s", account, address, amount)
	if w.sendErr != nil {
		return "", w.sendErr
	}
	w.balances[account] = w.balances[account].Sub(amount)
	return "tx-" + account, nil
}

func (w *fakeWallet) countCalls(prefix string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, c := range w.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testConfig() *config.Config {
	no := false
	return &config.Config{
		Login:  config.Login{Nickname: "TipBot"},
		Prefix: "!",
		Commands: map[string]config.CommandPolicy{
			"help":     {},
			"terms":    {},
			"tip":      {PM: &no},
			"rain":     {PM: &no},
			"balance":  {Channel: &no},
			"address":  {},
			"withdraw": {Channel: &no},
		},
		Messages: map[string][]string{
			"help":                {"!tip", "!rain"},
			"terms":               {"%nick% holds your %short_name%"},
			"invalid_amount":      {"%name% bad amount %amount%"},
			"tip_self":            {"%name% cannot tip self"},
			"tip_too_small":       {"%from% min tip %min_tip%"},
			"tipped":              {"%from% tipped %to% %amount% %short_name%"},
			"no_funds":            {"%name% has %balance%, short %short% of %amount%"},
			"rain":                {"%name% rained %amount% on %list%"},
			"rain_too_small":      {"%from% needs %min_rain%"},
			"balance":             {"%name% has %balance%"},
			"balance_unconfirmed": {"%name% has %balance% +%unconfirmed%"},
			"deposit_address":     {"%name% deposit to %address%"},
			"invalid_address":     {"%name% bad address %address%"},
			"withdraw_too_small":  {"%name% only has %balance%, min %min_withdraw%"},
			"withdraw_success":    {"%name% sent %amount% to %address%", "tx %transaction%"},
		},
		Coin: config.Coin{
			FullName:         "Dogecoin",
			ShortName:        "DOGE",
			MinTip:           dec("1"),
			MinRain:          dec("1"),
			MinWithdraw:      dec("10"),
			WithdrawalFee:    dec("1"),
			MinConfirmations: 5,
			Decimals:         8,
			Raw: map[string]string{
				"full_name":    "Dogecoin",
				"short_name":   "DOGE",
				"min_tip":      "1",
				"min_withdraw": "10",
			},
		},
	}
}

type harness struct {
	d        *Dispatcher
	chat     *fakeChat
	verifier *fakeVerifier
	wallet   *fakeWallet
}

// newHarness builds a dispatcher whose shuffle keeps the roster order.
func newHarness(t *testing.T, cfg *config.Config) *harness {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	h := &harness{
		chat:     &fakeChat{nick: "TipBot", names: map[string][]string{}},
		verifier: &fakeVerifier{results: map[string]identity.Result{}},
		wallet:   newFakeWallet(),
	}
	h.d = New(cfg, Deps{
		Chat:     h.chat,
		Verifier: h.verifier,
		Wallet:   h.wallet,
		Logger:   zap.NewNop(),
	})
	h.d.shuffle = func(int, func(i, j int)) {}
	return h
}

// send delivers one message and waits for any command it started.
func (h *harness) send(from, target, text string) []said {
	h.d.Handle(Message{From: from, Target: target, Text: text})
	h.d.Wait()
	return h.chat.replies()
}
