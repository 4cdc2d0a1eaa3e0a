package commands

import (
	"context"
	"regexp"
	"strings"

	"github.com/susu3304/tipbot/internal/expand"
	"go.uber.org/zap"
)

var tipArgs = regexp.MustCompile(`^(\S+)\s+([\d.]+)`)

// tip moves amount from the sender's account to one recipient.
func (d *Dispatcher) tip(ctx context.Context, req request) {
	m := tipArgs.FindStringSubmatch(req.args)
	if m == nil {
		d.usage(req.channel, "tip <nickname> <amount>")
		d.metrics.Command(req.command, "usage")
		return
	}
	to := m[1]

	amount, ok := parseAmount(m[2])
	if !ok {
		d.reply(req.channel, "invalid_amount", expand.Values{"name": req.from, "amount": m[2]})
		d.metrics.Command(req.command, "rejected")
		return
	}
	if strings.EqualFold(to, req.from) {
		d.reply(req.channel, "tip_self", expand.Values{"name": req.from})
		d.metrics.Command(req.command, "rejected")
		return
	}
	if amount.LessThan(d.cfg.Coin.MinTip) {
		d.reply(req.channel, "tip_too_small", expand.Values{"from": req.from, "to": to, "amount": amount})
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
	if balance.LessThan(amount) {
		d.log.Info("insufficient funds for tip",
			zap.String("from", req.from), zap.String("to", to),
			zap.Stringer("amount", amount), zap.Stringer("balance", balance))
		d.reply(req.channel, "no_funds", expand.Values{
			"name":    req.from,
			"balance": balance,
			"short":   amount.Sub(balance),
			"amount":  amount,
		})
		d.metrics.Command(req.command, "no_funds")
		return
	}

	moved, err := d.wallet.Move(ctx, from, account(to), amount)
	d.metrics.Transfer("tip", err == nil && moved)
	if err != nil || !moved {
		if err == nil {
			err = errMoveRefused
		}
		d.fail(req, err)
		return
	}

	d.log.Info("tipped",
		zap.String("from", req.from), zap.String("to", to),
		zap.Stringer("amount", amount), zap.String("coin", d.cfg.Coin.ShortName))
	d.reply(req.channel, "tipped", expand.Values{"from": req.from, "to": to, "amount": amount})
	d.metrics.Command(req.command, "ok")
}
