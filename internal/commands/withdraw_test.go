package commands

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithdraw(t *testing.T) {
	h := newHarness(t, nil)
	h.wallet.balances["alice"] = dec("100")
	h.wallet.valid["DPay"] = true

	got := h.send("Alice", "TipBot", "withdraw DPay")
	assert.Equal(t, []said{{"Alice", "Alice sent 99 to DPay\ntx tx-alice"}}, got)
	assert.Equal(t, []string{
		"validateaddress DPay",
		"getbalance alice 5",
		"sendfrom alice DPay 99",
		"getbalance alice 0",
		"move alice tipbot 1",
	}, h.wallet.calls)
	assert.True(t, h.wallet.balances["alice"].IsZero())
}

func TestWithdrawNothingLeftToSweep(t *testing.T) {
	cfg := testConfig()
	cfg.Coin.WithdrawalFee = dec("0")
	h := newHarness(t, cfg)
	h.wallet.balances["alice"] = dec("50")
	h.wallet.valid["DPay"] = true

	h.send("alice", "TipBot", "withdraw DPay")
	assert.Equal(t, 0, h.wallet.countCalls("move"))
}

func TestWithdrawSweepFailureIsSilent(t *testing.T) {
	h := newHarness(t, nil)
	h.wallet.balances["alice"] = dec("100")
	h.wallet.valid["DPay"] = true
	h.wallet.moveErr = func(string) error { return errors.New("boom") }

	got := h.send("alice", "TipBot", "withdraw DPay")
	assert.Len(t, got, 1)
	assert.Equal(t, "alice sent 99 to DPay\ntx tx-alice", got[0].text)
}

func TestWithdrawRejected(t *testing.T) {
	tests := []struct {
		name    string
		balance string
		address string
		want    string
		calls   int
	}{
		{"invalid address", "100", "nope", "alice bad address nope", 1},
		{"below minimum", "9", "DPay", "alice only has 9, min 10", 2},
		{"nothing after fee", "1", "DPay", "alice only has 1, min 10", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.wallet.balances["alice"] = dec(tt.balance)
			h.wallet.valid["DPay"] = true

			got := h.send("alice", "TipBot", "withdraw "+tt.address)
			assert.Equal(t, []said{{"alice", tt.want}}, got)
			assert.Len(t, h.wallet.calls, tt.calls)
			assert.Zero(t, h.wallet.countCalls("sendfrom"))
		})
	}
}

func TestWithdrawFeeEatsBalance(t *testing.T) {
	cfg := testConfig()
	cfg.Coin.MinWithdraw = dec("0")
	cfg.Coin.WithdrawalFee = dec("5")
	h := newHarness(t, cfg)
	h.wallet.balances["alice"] = dec("5")
	h.wallet.valid["DPay"] = true

	got := h.send("alice", "TipBot", "withdraw DPay")
	assert.Equal(t, []said{{"alice", "alice only has 5, min 10"}}, got)
	assert.Zero(t, h.wallet.countCalls("sendfrom"))
}

func TestWithdrawSendFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.wallet.balances["alice"] = dec("100")
	h.wallet.valid["DPay"] = true
	h.wallet.sendErr = errors.New("insufficient funds")

	got := h.send("alice", "TipBot", "withdraw DPay")
	assert.Equal(t, []said{{"alice", "alice: something went wrong, please try again later."}}, got)
	assert.Zero(t, h.wallet.countCalls("move"))
}
