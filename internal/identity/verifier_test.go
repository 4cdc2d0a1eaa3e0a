package identity

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeSender records challenges and optionally answers them.
type fakeSender struct {
	mu     sync.Mutex
	sent   []string
	answer func(text string)
}

func (f *fakeSender) Say(target, text string) {
	f.mu.Lock()
	f.sent = append(f.sent, target+" "+text)
	answer := f.answer
	f.mu.Unlock()
	if answer != nil {
		go answer(text)
	}
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newVerifier(s *fakeSender, timeout time.Duration) *Verifier {
	return New(s, Options{Service: "NickServ", VerifiedLevel: 3, Timeout: timeout}, zap.NewNop())
}

func TestVerify(t *testing.T) {
	tests := []struct {
		name  string
		nick  string
		reply string
		from  string
		want  Result
	}{
		{"logged in", "alice", "alice ACC 3", "NickServ", Verified},
		{"case insensitive", "Alice", "ALICE ACC 3 (logged in)", "nickserv", Verified},
		{"recognized only", "bob", "bob ACC 1", "NickServ", NotVerified},
		{"unregistered", "carol", "carol ACC 0", "NickServ", NotVerified},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v *Verifier
			s := &fakeSender{}
			s.answer = func(string) { v.HandleNotice(tt.from, tt.reply) }
			v = newVerifier(s, time.Second)

			assert.Equal(t, tt.want, v.Verify(context.Background(), tt.nick))
			assert.Equal(t, 0, v.Pending())
			assert.Equal(t, []string{"NickServ ACC " + tt.nick}, s.sent)
		})
	}
}

func TestHandleNoticeIgnoresUnrelated(t *testing.T) {
	v := newVerifier(&fakeSender{}, time.Second)
	v.pending["alice"] = make(chan int, 1)

	assert.False(t, v.HandleNotice("ChanServ", "alice ACC 3"))
	assert.False(t, v.HandleNotice("NickServ", "bob ACC 3"))
	assert.False(t, v.HandleNotice("NickServ", "alice is not registered"))
	assert.False(t, v.HandleNotice("", "alice ACC 3"))
	assert.Equal(t, 1, v.Pending())

	assert.True(t, v.HandleNotice("NickServ", "alice ACC 3"))
	assert.Equal(t, 0, v.Pending())
	assert.False(t, v.HandleNotice("NickServ", "alice ACC 3"), "answer after resolution must not match")
}

func TestVerifyTimeout(t *testing.T) {
	s := &fakeSender{}
	v := newVerifier(s, 20*time.Millisecond)

	for i := 0; i < 5; i++ {
		assert.Equal(t, TimedOut, v.Verify(context.Background(), "ghost"))
		assert.Equal(t, 0, v.Pending(), "listener leaked after timeout")
	}
	assert.Equal(t, 5, s.count())
}

func TestVerifyContextCancelled(t *testing.T) {
	v := newVerifier(&fakeSender{}, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, TimedOut, v.Verify(ctx, "alice"))
	assert.Equal(t, 0, v.Pending())
}

func TestVerifyConcurrentDifferentNicks(t *testing.T) {
	var v *Verifier
	s := &fakeSender{}
	levels := map[string]string{"ACC alice": "alice ACC 3", "ACC bob": "bob ACC 1", "ACC carol": "carol ACC 3"}
	s.answer = func(text string) {
		// answer in an order unrelated to the requests
		time.Sleep(10 * time.Millisecond)
		v.HandleNotice("NickServ", levels[text])
	}
	v = newVerifier(s, time.Second)

	want := map[string]Result{"alice": Verified, "bob": NotVerified, "carol": Verified}
	var wg sync.WaitGroup
	var mu sync.Mutex
	got := map[string]Result{}
	for nick := range want {
		wg.Add(1)
		go func(nick string) {
			defer wg.Done()
			r := v.Verify(context.Background(), nick)
			mu.Lock()
			got[nick] = r
			mu.Unlock()
		}(nick)
	}
	wg.Wait()

	assert.Equal(t, want, got)
	assert.Equal(t, 0, v.Pending())
}

func TestVerifySameNickMerged(t *testing.T) {
	var v *Verifier
	s := &fakeSender{}
	s.answer = func(string) {
		time.Sleep(50 * time.Millisecond)
		v.HandleNotice("NickServ", "alice ACC 3")
	}
	v = newVerifier(s, time.Second)

	var wg sync.WaitGroup
	results := make([]Result, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = v.Verify(context.Background(), "Alice")
		}(i)
	}
	wg.Wait()

	require.Equal(t, []Result{Verified, Verified}, results)
	assert.Equal(t, 1, s.count(), "same nick must be challenged once")
}

func TestResultString(t *testing.T) {
	assert.Equal(t, "verified", Verified.String())
	assert.Equal(t, "not_verified", NotVerified.String())
	assert.Equal(t, "timed_out", TimedOut.String())
}
