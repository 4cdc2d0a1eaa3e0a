// Package bot glues the IRC connection to the command dispatcher and the
// identity verifier, and owns the connection lifecycle.
package bot

import (
	"context"
	"strings"

	"github.com/susu3304/tipbot/internal/commands"
	"github.com/susu3304/tipbot/internal/config"
	"github.com/susu3304/tipbot/internal/metrics"
	"go.uber.org/zap"
)

const QuitMessage = "My master ordered me to leave."

// Conn is implemented by *irc.Client.
type Conn interface {
	OnRegistered(fn func(server string))
	OnMessage(fn func(from, target, text string))
	OnNotice(fn func(from, text string))
	OnError(fn func(text string))
	Connect() error
	Quit(reason string)
	Say(target, text string)
	Join(channels ...string)
}

type Dispatcher interface {
	Handle(msg commands.Message)
	Wait()
}

// NoticeHandler is implemented by *identity.Verifier.
type NoticeHandler interface {
	HandleNotice(from, text string) bool
}

type Deps struct {
	Conn       Conn
	Dispatcher Dispatcher
	Notices    NoticeHandler
	Wallet     BalanceSource
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
}

type Bot struct {
	cfg        *config.Config
	conn       Conn
	dispatcher Dispatcher
	notices    NoticeHandler
	probe      *walletProbe
	log        *zap.Logger
}

func New(cfg *config.Config, deps Deps) *Bot {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bot{
		cfg:        cfg,
		conn:       deps.Conn,
		dispatcher: deps.Dispatcher,
		notices:    deps.Notices,
		probe:      newWalletProbe(deps.Wallet, deps.Metrics, logger.Named("probe"), cfg.RPC.ProbeInterval),
		log:        logger,
	}

	// Register event handlers
	b.conn.OnRegistered(b.onRegistered)
	b.conn.OnError(b.onError)
	b.conn.OnMessage(b.onMessage)
	b.conn.OnNotice(b.onNotice)

	return b
}

// Run connects and serves until the connection ends or ctx is cancelled.
// On cancellation it quits the network and waits for running commands.
func (b *Bot) Run(ctx context.Context) error {
	b.probe.start()
	defer b.probe.stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- b.conn.Connect()
	}()

	select {
	case err := <-errCh:
		b.dispatcher.Wait()
		return err
	case <-ctx.Done():
		b.Stop()
		return <-errCh
	}
}

// Stop leaves the network and blocks until in-flight commands finish.
func (b *Bot) Stop() {
	b.log.Info("leaving", zap.String("reason", QuitMessage))
	b.conn.Quit(QuitMessage)
	b.dispatcher.Wait()
}

func (b *Bot) onRegistered(server string) {
	b.log.Info("connected", zap.String("server", server), zap.String("nick", b.cfg.Login.Nickname))

	if b.cfg.Login.NickServPassword != "" {
		b.conn.Say(b.cfg.Identity.Service, "IDENTIFY "+b.cfg.Login.NickServPassword)
	}

	if len(b.cfg.Channels) > 0 {
		b.conn.Join(b.cfg.Channels...)
		b.log.Info("joining channels", zap.String("channels", strings.Join(b.cfg.Channels, ",")))
	}
}

func (b *Bot) onError(text string) {
	b.log.Error("irc error", zap.String("message", text))
}

func (b *Bot) onMessage(from, target, text string) {
	b.dispatcher.Handle(commands.Message{From: from, Target: target, Text: text})
}

func (b *Bot) onNotice(from, text string) {
	if b.notices.HandleNotice(from, text) {
		return
	}
	b.log.Debug("notice", zap.String("from", from), zap.String("text", text))
}
