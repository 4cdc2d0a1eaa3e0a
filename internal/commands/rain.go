package commands

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/susu3304/tipbot/internal/expand"
	"go.uber.org/zap"
)

var rainArgs = regexp.MustCompile(`^([\d.]+)(?:\s+(\d+))?`)

// rain splits amount evenly between randomly chosen members of the channel.
// Transfers are best effort: one failed move does not undo the others.
func (d *Dispatcher) rain(ctx context.Context, req request) {
	m := rainArgs.FindStringSubmatch(req.args)
	if m == nil {
		d.usage(req.channel, "rain <amount> [max people]")
		d.metrics.Command(req.command, "usage")
		return
	}

	amount, ok := parseAmount(m[1])
	if !ok {
		d.reply(req.channel, "invalid_amount", expand.Values{"name": req.from, "amount": m[1]})
		d.metrics.Command(req.command, "rejected")
		return
	}
	limit := 0
	if m[2] != "" {
		if n, err := strconv.Atoi(m[2]); err == nil && n >= 1 {
			limit = n
		}
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
		d.log.Info("insufficient funds for rain",
			zap.String("from", req.from), zap.Stringer("amount", amount), zap.Stringer("balance", balance))
		d.reply(req.channel, "no_funds", expand.Values{
			"name":    req.from,
			"balance": balance,
			"short":   amount.Sub(balance),
			"amount":  amount,
		})
		d.metrics.Command(req.command, "no_funds")
		return
	}

	names, err := d.chat.Names(ctx, req.channel)
	if err != nil {
		d.fail(req, err)
		return
	}

	// remove tipper, bot, and ChanServ from the list
	recipients, eligible := selectRecipients(names, []string{req.from, d.chat.Nick(), "ChanServ"}, limit, d.shuffle)
	if len(recipients) == 0 {
		d.reply(req.channel, "rain_no_recipients", expand.Values{"name": req.from})
		d.metrics.Command(req.command, "no_recipients")
		return
	}

	count := decimal.NewFromInt(int64(len(recipients)))
	share := amount.Div(count).Truncate(d.cfg.Coin.Decimals)
	if !share.IsPositive() || share.LessThan(d.cfg.Coin.MinRain) {
		d.reply(req.channel, "rain_too_small", expand.Values{
			"from":     req.from,
			"amount":   amount,
			"min_rain": d.cfg.Coin.MinRain.Mul(count),
		})
		d.metrics.Command(req.command, "rejected")
		return
	}

	failed := 0
	for _, r := range recipients {
		moved, err := d.wallet.Move(ctx, from, account(r), share)
		d.metrics.Transfer("rain", err == nil && moved)
		if err != nil || !moved {
			failed++
			if err == nil {
				err = errMoveRefused
			}
			d.log.Error("rain transfer failed",
				zap.String("from", req.from), zap.String("to", r),
				zap.Stringer("amount", share), zap.Error(err))
		}
	}

	list := strings.Join(recipients, ", ")
	if len(recipients) == eligible {
		list = "the whole channel"
	}
	d.log.Info("rained",
		zap.String("from", req.from), zap.Stringer("share", share),
		zap.Int("recipients", len(recipients)), zap.Int("failed", failed))
	d.reply(req.channel, "rain", expand.Values{"name": req.from, "amount": share, "list": list})

	outcome := "ok"
	if failed > 0 {
		outcome = "partial"
	}
	d.metrics.Command(req.command, outcome)
}

// selectRecipients drops excluded nicks (case-insensitively) and duplicates,
// shuffles what is left and keeps at most limit of them (limit <= 0 keeps all).
// It also returns how many members were eligible before the cut.
func selectRecipients(names, exclude []string, limit int, shuffle func(n int, swap func(i, j int))) ([]string, int) {
	skip := make(map[string]bool, len(exclude)+len(names))
	for _, e := range exclude {
		skip[strings.ToLower(e)] = true
	}

	eligible := make([]string, 0, len(names))
	for _, n := range names {
		key := strings.ToLower(n)
		if skip[key] {
			continue
		}
		skip[key] = true
		eligible = append(eligible, n)
	}

	shuffle(len(eligible), func(i, j int) {
		eligible[i], eligible[j] = eligible[j], eligible[i]
	})

	count := len(eligible)
	if limit > 0 && limit < count {
		count = limit
	}
	return eligible[:count], len(eligible)
}
