package commands

import (
	"context"
	"regexp"

	"github.com/susu3304/tipbot/internal/expand"
	"go.uber.org/zap"
)

var withdrawArgs = regexp.MustCompile(`^(\S+)$`)

// withdraw sends the sender's whole confirmed balance minus the fee to an
// external address, then sweeps whatever is left into the operator account.
func (d *Dispatcher) withdraw(ctx context.Context, req request) {
	m := withdrawArgs.FindStringSubmatch(req.args)
	if m == nil {
		d.usage(req.channel, "withdraw <"+d.cfg.Coin.FullName+" address>")
		d.metrics.Command(req.command, "usage")
		return
	}
	address := m[1]

	info, err := d.wallet.ValidateAddress(ctx, address)
	if err != nil {
		d.fail(req, err)
		return
	}
	if !info.IsValid {
		d.log.Warn("withdraw to an invalid address", zap.String("nick", req.from), zap.String("address", address))
		d.reply(req.channel, "invalid_address", expand.Values{"address": address, "name": req.from})
		d.metrics.Command(req.command, "rejected")
		return
	}

	from := account(req.from)
	unlock, err := d.locks.lock(ctx, from)
	if err != nil {
		d.fail(req, err)
		return
	}
	defer unlock()

	balance, err := d.wallet.GetBalance(ctx, from, d.cfg.Coin.MinConfirmations)
	if err != nil {
		d.fail(req, err)
		return
	}
	amount := balance.Sub(d.cfg.Coin.WithdrawalFee)
	if balance.LessThan(d.cfg.Coin.MinWithdraw) || !amount.IsPositive() {
		d.log.Warn("withdraw below minimum",
			zap.String("nick", req.from), zap.Stringer("balance", balance), zap.Stringer("min", d.cfg.Coin.MinWithdraw))
		d.reply(req.channel, "withdraw_too_small", expand.Values{"name": req.from, "balance": balance})
		d.metrics.Command(req.command, "rejected")
		return
	}

	txid, err := d.wallet.SendFrom(ctx, from, address, amount)
	d.metrics.Transfer("withdraw", err == nil)
	if err != nil {
		d.fail(req, err)
		return
	}

	d.log.Info("withdrew",
		zap.String("nick", req.from), zap.String("address", address),
		zap.Stringer("amount", amount), zap.String("tx", txid))
	d.reply(req.channel, "withdraw_success", expand.Values{
		"name":        req.from,
		"address":     address,
		"balance":     balance,
		"amount":      amount,
		"transaction": txid,
	})
	d.metrics.Command(req.command, "ok")

	d.sweep(ctx, from)
}

// sweep moves what the withdrawal left behind (usually fee minus network fee)
// to the operator account. Failures are only logged.
func (d *Dispatcher) sweep(ctx context.Context, from string) {
	rest, err := d.wallet.GetBalance(ctx, from, 0)
	if err != nil {
		d.log.Error("failed to fetch balance for fee sweep", zap.String("account", from), zap.Error(err))
		return
	}
	if !rest.IsPositive() {
		return
	}

	operator := account(d.cfg.Login.Nickname)
	moved, err := d.wallet.Move(ctx, from, operator, rest)
	d.metrics.Transfer("sweep", err == nil && moved)
	if err != nil || !moved {
		if err == nil {
			err = errMoveRefused
		}
		d.log.Error("failed to sweep remaining fee",
			zap.String("account", from), zap.Stringer("amount", rest), zap.Error(err))
	}
}
