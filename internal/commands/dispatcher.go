// Package commands turns chat messages into wallet operations. The
// Dispatcher applies prefix and visibility policy in arrival order, then runs
// each gated command on its own goroutine once the sender's identity checks out.
package commands

import (
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/susu3304/tipbot/internal/config"
	"github.com/susu3304/tipbot/internal/expand"
	"github.com/susu3304/tipbot/internal/identity"
	"github.com/susu3304/tipbot/internal/metrics"
	"github.com/susu3304/tipbot/internal/wallet"
	"go.uber.org/zap"
)

const commandTimeout = 2 * time.Minute

// Message is one PRIVMSG as seen by the bot.
type Message struct {
	From   string
	Target string
	Text   string
}

// Chat is the part of the IRC connection commands talk to.
type Chat interface {
	Say(target, text string)
	Nick() string
	Names(ctx context.Context, channel string) ([]string, error)
}

type Verifier interface {
	Verify(ctx context.Context, nick string) identity.Result
}

// Wallet is implemented by *wallet.Gateway.
type Wallet interface {
	GetBalance(ctx context.Context, account string, minConf int) (decimal.Decimal, error)
	Move(ctx context.Context, from, to string, amount decimal.Decimal) (bool, error)
	GetAccountAddress(ctx context.Context, account string) (string, error)
	ValidateAddress(ctx context.Context, address string) (wallet.AddressInfo, error)
	SendFrom(ctx context.Context, account, address string, amount decimal.Decimal) (string, error)
}

type Deps struct {
	Chat     Chat
	Verifier Verifier
	Wallet   Wallet
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

// request is a gated command ready to run. channel is where replies go.
type request struct {
	command string
	from    string
	channel string
	args    string
}

type handlerFunc func(ctx context.Context, req request)

type Dispatcher struct {
	cfg      *config.Config
	chat     Chat
	verifier Verifier
	wallet   Wallet
	metrics  *metrics.Metrics
	log      *zap.Logger
	expander *expand.Expander
	locks    *accountLocks
	shuffle  func(n int, swap func(i, j int))
	pattern  *regexp.Regexp
	handlers map[string]handlerFunc
	wg       sync.WaitGroup
}

func New(cfg *config.Config, deps Deps) *Dispatcher {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		cfg:      cfg,
		chat:     deps.Chat,
		verifier: deps.Verifier,
		wallet:   deps.Wallet,
		metrics:  deps.Metrics,
		log:      logger,
		locks:    newAccountLocks(),
		shuffle:  rand.Shuffle,
		pattern:  regexp.MustCompile(`^((?:` + regexp.QuoteMeta(cfg.Prefix) + `)?)(\S+)`),
	}
	d.expander = expand.New(cfg.Coin.Raw, func() map[string]string {
		return map[string]string{"nick": d.chat.Nick()}
	})
	d.handlers = map[string]handlerFunc{
		"tip":      d.tip,
		"rain":     d.rain,
		"withdraw": d.withdraw,
		"balance":  d.balance,
		"address":  d.address,
	}
	return d
}

// Handle makes the dispatch decision for msg synchronously. Gated commands
// continue in the background; use Wait to drain them.
func (d *Dispatcher) Handle(msg Message) {
	m := d.pattern.FindStringSubmatch(msg.Text)
	if m == nil {
		return
	}
	prefix, command := m[1], m[2]

	policy, ok := d.cfg.Commands[command]
	if !ok {
		return
	}
	private := strings.EqualFold(msg.Target, d.chat.Nick())
	if private && !policy.AllowPM() {
		return
	}
	if !private && (!policy.AllowChannel() || prefix != d.cfg.Prefix) {
		return
	}

	// if pms, make sure to respond to pms instead to itself
	channel := msg.Target
	if private {
		channel = msg.From
	}

	// commands that don't require identifying
	if command == "help" || command == "terms" {
		d.chat.Say(channel, d.expander.Lines(d.cfg.Message(command), nil, ", "))
		d.metrics.Command(command, "ok")
		return
	}

	handler, ok := d.handlers[command]
	if !ok {
		return
	}

	req := request{
		command: command,
		from:    msg.From,
		channel: channel,
		args:    strings.TrimSpace(msg.Text[len(m[0]):]),
	}
	d.wg.Add(1)
	go d.run(handler, req)
}

// Wait blocks until every command started so far has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) run(handler handlerFunc, req request) {
	defer d.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("command panicked", zap.String("command", req.command), zap.Any("panic", r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	// check if the sending user is logged in (identified) with the identity service
	res := d.verifier.Verify(ctx, req.from)
	d.metrics.Verification(res.String())
	if res != identity.Verified {
		d.log.Info("user is not identified",
			zap.String("nick", req.from),
			zap.String("command", req.command),
			zap.Stringer("result", res))
		d.reply(req.channel, "not_identified", expand.Values{"name": req.from})
		d.metrics.Command(req.command, "unidentified")
		return
	}

	handler(ctx, req)
}

var defaultMessages = map[string]string{
	"not_identified":     "%name%: you need to be identified to use this command.",
	"error":              "%name%: something went wrong, please try again later.",
	"rain_no_recipients": "%name%: there is nobody here to rain on.",
}

func (d *Dispatcher) reply(channel, key string, values expand.Values) {
	var fallback []string
	if def, ok := defaultMessages[key]; ok {
		fallback = []string{def}
	}
	lines := d.cfg.Message(key, fallback...)
	if len(lines) == 0 {
		d.log.Warn("no template configured", zap.String("message", key))
		return
	}
	d.chat.Say(channel, d.expander.Lines(lines, values, "\n"))
}

func (d *Dispatcher) usage(channel, syntax string) {
	d.chat.Say(channel, fmt.Sprintf("Usage: %s%s", d.cfg.Prefix, syntax))
}

// fail reports a wallet failure to the log and a generic error to the user.
func (d *Dispatcher) fail(req request, err error) {
	d.log.Error("wallet error", zap.String("command", req.command), zap.String("nick", req.from), zap.Error(err))
	d.reply(req.channel, "error", expand.Values{"name": req.from})
	d.metrics.Command(req.command, "error")
}
