package irc

import (
	"strings"

	"github.com/sasha-s/go-deadlock"
)

// membership prefixes servers put in front of nicks in NAMES replies
const memberPrefixes = "~&@%+"

type namesReply struct {
	names []string
	done  chan struct{}
}

// roster collects NAMES replies for channels somebody is waiting on.
type roster struct {
	mu      deadlock.Mutex
	pending map[string]*namesReply
}

func newRoster() *roster {
	return &roster{pending: make(map[string]*namesReply)}
}

func (r *roster) begin(channel string) *namesReply {
	reply := &namesReply{done: make(chan struct{})}
	r.mu.Lock()
	r.pending[strings.ToLower(channel)] = reply
	r.mu.Unlock()
	return reply
}

// add records one RPL_NAMREPLY line. Replies nobody asked for are dropped.
func (r *roster) add(channel, list string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reply, ok := r.pending[strings.ToLower(channel)]
	if !ok {
		return
	}
	for _, name := range strings.Fields(list) {
		name = strings.TrimLeft(name, memberPrefixes)
		if name != "" {
			reply.names = append(reply.names, name)
		}
	}
}

// end completes the pending request for channel on RPL_ENDOFNAMES.
func (r *roster) end(channel string) {
	key := strings.ToLower(channel)
	r.mu.Lock()
	reply, ok := r.pending[key]
	if ok {
		delete(r.pending, key)
	}
	r.mu.Unlock()
	if ok {
		close(reply.done)
	}
}

func (r *roster) cancel(channel string, reply *namesReply) {
	key := strings.ToLower(channel)
	r.mu.Lock()
	if r.pending[key] == reply {
		delete(r.pending, key)
	}
	r.mu.Unlock()
}

func (r *roster) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
