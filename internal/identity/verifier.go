// Package identity asks the network's identity service whether a nickname is
// logged in. Requests go out as private messages; answers come back as
// notices, which are matched to the waiting request by nickname.
package identity

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sasha-s/go-deadlock"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Result is the outcome of one verification.
type Result int

const (
	NotVerified Result = iota
	Verified
	TimedOut
)

func (r Result) String() string {
	switch r {
	case Verified:
		return "verified"
	case TimedOut:
		return "timed_out"
	default:
		return "not_verified"
	}
}

var accReply = regexp.MustCompile(`^(\S+) ACC (\d+)`)

// Sender delivers the challenge to the identity service.
type Sender interface {
	Say(target, text string)
}

type Options struct {
	Service       string
	VerifiedLevel int
	Timeout       time.Duration
}

type Verifier struct {
	sender  Sender
	opts    Options
	log     *zap.Logger
	group   singleflight.Group
	mu      deadlock.Mutex
	pending map[string]chan int
}

func New(sender Sender, opts Options, logger *zap.Logger) *Verifier {
	if opts.Service == "" {
		opts.Service = "NickServ"
	}
	if opts.VerifiedLevel == 0 {
		opts.VerifiedLevel = 3
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Verifier{
		sender:  sender,
		opts:    opts,
		log:     logger,
		pending: make(map[string]chan int),
	}
}

// Verify challenges the identity service about nick and waits for the answer.
// Concurrent calls for the same nick share one challenge.
func (v *Verifier) Verify(ctx context.Context, nick string) Result {
	key := strings.ToLower(nick)
	res, _, _ := v.group.Do(key, func() (interface{}, error) {
		return v.challenge(ctx, key, nick), nil
	})
	return res.(Result)
}

func (v *Verifier) challenge(ctx context.Context, key, nick string) Result {
	reply := make(chan int, 1)

	v.mu.Lock()
	v.pending[key] = reply
	v.mu.Unlock()

	defer func() {
		v.mu.Lock()
		if v.pending[key] == reply {
			delete(v.pending, key)
		}
		v.mu.Unlock()
	}()

	v.sender.Say(v.opts.Service, "ACC "+nick)

	timer := time.NewTimer(v.opts.Timeout)
	defer timer.Stop()

	select {
	case level := <-reply:
		if level == v.opts.VerifiedLevel {
			return Verified
		}
		return NotVerified
	case <-timer.C:
		v.log.Info("identity check timed out", zap.String("nick", nick), zap.Duration("timeout", v.opts.Timeout))
		return TimedOut
	case <-ctx.Done():
		v.log.Info("identity check cancelled", zap.String("nick", nick), zap.Error(ctx.Err()))
		return TimedOut
	}
}

// HandleNotice feeds one incoming notice to the verifier. It reports whether
// the notice answered a pending request.
func (v *Verifier) HandleNotice(from, text string) bool {
	if !strings.EqualFold(from, v.opts.Service) {
		return false
	}
	m := accReply.FindStringSubmatch(text)
	if m == nil {
		return false
	}
	level, err := strconv.Atoi(m[2])
	if err != nil {
		return false
	}

	key := strings.ToLower(m[1])
	v.mu.Lock()
	reply, ok := v.pending[key]
	if ok {
		delete(v.pending, key)
	}
	v.mu.Unlock()
	if !ok {
		return false
	}

	reply <- level
	return true
}

// Pending returns the number of outstanding challenges.
func (v *Verifier) Pending() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.pending)
}
