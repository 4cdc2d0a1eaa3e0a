// Package irc adapts an IRC connection to what the bot needs: sending
// messages, subscribing to events, and taking channel roster snapshots.
package irc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/ergochat/irc-go/ircevent"
	"github.com/ergochat/irc-go/ircmsg"
	"github.com/susu3304/tipbot/internal/config"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	rplWelcome    = "001"
	rplNamReply   = "353"
	rplEndOfNames = "366"
)

// ErrRosterTimeout is returned when the server never finishes a NAMES reply.
var ErrRosterTimeout = errors.New("irc: names request timed out")

type transport interface {
	Connect() error
	Loop()
	Quit()
	Privmsg(target, message string) error
	Send(command string, params ...string) error
	CurrentNick() string
	AddCallback(code string, callback func(ircmsg.Message)) ircevent.CallbackID
}

type Client struct {
	conn          transport
	log           *zap.Logger
	roster        *roster
	group         singleflight.Group
	rosterTimeout time.Duration
	quit          func(reason string)
}

// New prepares a connection from config. Nothing is dialed until Connect.
func New(cfg *config.Config, logger *zap.Logger) *Client {
	conn := &ircevent.Connection{
		Server:   net.JoinHostPort(cfg.Connection.Host, strconv.Itoa(cfg.Connection.Port)),
		Nick:     cfg.Login.Nickname,
		User:     cfg.Login.Username,
		RealName: cfg.Login.Realname,
		UseTLS:   cfg.Connection.Secure,
		Debug:    cfg.Connection.Debug,
		Log:      zap.NewStdLog(logger.Named("wire")),
	}
	c := newClient(conn, logger)
	c.quit = func(reason string) {
		conn.QuitMessage = reason
		conn.Quit()
	}
	return c
}

func newClient(conn transport, logger *zap.Logger) *Client {
	c := &Client{
		conn:          conn,
		log:           logger,
		roster:        newRoster(),
		rosterTimeout: 10 * time.Second,
	}
	c.quit = func(string) { conn.Quit() }

	conn.AddCallback(rplNamReply, func(e ircmsg.Message) {
		// <me> <symbol> <channel> :<names>
		if len(e.Params) >= 4 {
			c.roster.add(e.Params[2], e.Params[3])
		}
	})
	conn.AddCallback(rplEndOfNames, func(e ircmsg.Message) {
		// <me> <channel> :End of /NAMES list.
		if len(e.Params) >= 2 {
			c.roster.end(e.Params[1])
		}
	})
	return c
}

// OnRegistered runs fn once the server accepted our registration.
func (c *Client) OnRegistered(fn func(server string)) {
	c.conn.AddCallback(rplWelcome, func(e ircmsg.Message) {
		fn(e.Source)
	})
}

// OnMessage subscribes to PRIVMSG. target is a channel or our own nick.
func (c *Client) OnMessage(fn func(from, target, text string)) {
	c.conn.AddCallback("PRIVMSG", func(e ircmsg.Message) {
		if len(e.Params) < 2 {
			return
		}
		fn(e.Nick(), e.Params[0], e.Params[1])
	})
}

func (c *Client) OnNotice(fn func(from, text string)) {
	c.conn.AddCallback("NOTICE", func(e ircmsg.Message) {
		if len(e.Params) < 2 {
			return
		}
		fn(e.Nick(), e.Params[1])
	})
}

func (c *Client) OnError(fn func(text string)) {
	c.conn.AddCallback("ERROR", func(e ircmsg.Message) {
		fn(strings.Join(e.Params, " "))
	})
}

// Connect dials the server and blocks serving events until Quit.
func (c *Client) Connect() error {
	if err := c.conn.Connect(); err != nil {
		return fmt.Errorf("failed to connect to irc: %w", err)
	}
	c.conn.Loop()
	return nil
}

func (c *Client) Quit(reason string) {
	c.quit(reason)
}

// Say sends text to target, one PRIVMSG per non-empty line.
func (c *Client) Say(target, text string) {
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := c.conn.Privmsg(target, line); err != nil {
			c.log.Error("failed to send message", zap.String("target", target), zap.Error(err))
		}
	}
}

func (c *Client) Join(channels ...string) {
	for _, ch := range channels {
		if err := c.conn.Send("JOIN", ch); err != nil {
			c.log.Error("failed to join channel", zap.String("channel", ch), zap.Error(err))
		}
	}
}

func (c *Client) Nick() string {
	return c.conn.CurrentNick()
}

// Names takes a fresh snapshot of the nicks present in channel. Concurrent
// requests for the same channel share one NAMES round trip.
func (c *Client) Names(ctx context.Context, channel string) ([]string, error) {
	res, err, _ := c.group.Do(strings.ToLower(channel), func() (interface{}, error) {
		reply := c.roster.begin(channel)
		if err := c.conn.Send("NAMES", channel); err != nil {
			c.roster.cancel(channel, reply)
			return nil, fmt.Errorf("failed to request names: %w", err)
		}

		timer := time.NewTimer(c.rosterTimeout)
		defer timer.Stop()
		select {
		case <-reply.done:
			return reply.names, nil
		case <-timer.C:
			c.roster.cancel(channel, reply)
			return nil, ErrRosterTimeout
		case <-ctx.Done():
			c.roster.cancel(channel, reply)
			return nil, ctx.Err()
		}
	})
	if err != nil {
		return nil, err
	}
	names := res.([]string)
	return append([]string(nil), names...), nil
}
