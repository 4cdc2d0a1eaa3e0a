package commands

import (
	"context"

	"github.com/susu3304/tipbot/internal/expand"
	"go.uber.org/zap"
)

func (d *Dispatcher) balance(ctx context.Context, req request) {
	user := account(req.from)
	confirmed, err := d.wallet.GetBalance(ctx, user, d.cfg.Coin.MinConfirmations)
	if err != nil {
		d.fail(req, err)
		return
	}

	total, err := d.wallet.GetBalance(ctx, user, 0)
	if err != nil {
		// still worth answering with the confirmed part
		d.log.Error("failed to fetch unconfirmed balance", zap.String("nick", req.from), zap.Error(err))
		d.reply(req.channel, "balance", expand.Values{"balance": confirmed, "name": user})
		d.metrics.Command(req.command, "partial")
		return
	}

	d.reply(req.channel, "balance_unconfirmed", expand.Values{
		"balance":     confirmed,
		"name":        user,
		"unconfirmed": total.Sub(confirmed),
	})
	d.metrics.Command(req.command, "ok")
}

func (d *Dispatcher) address(ctx context.Context, req request) {
	user := account(req.from)
	addr, err := d.wallet.GetAccountAddress(ctx, user)
	if err != nil {
		d.fail(req, err)
		return
	}
	d.reply(req.channel, "deposit_address", expand.Values{"name": user, "address": addr})
	d.metrics.Command(req.command, "ok")
}
