package cdpilot

import (
	"time"

	"github.com/chromedp/cdproto"
)

// commandRegistry is the id -> response-sink map owned exclusively by the
// Handler goroutine. Ids are monotonic uint64s; a command is registered
// before it is written to the transport, so a response can never arrive for
// an id the registry doesn't yet know about.
type commandRegistry struct {
	nextID uint64
	pending map[uint64]*pendingCommand
}

type pendingCommand struct {
	sessionID string
	result    chan commandResult
	deadline  time.Time
	hasDeadline bool
}

type commandResult struct {
	msg *cdproto.Message
	err error
}

func newCommandRegistry() *commandRegistry {
	return &commandRegistry{pending: make(map[uint64]*pendingCommand)}
}

// register allocates the next id and records a sink for its response. It
// must be called before the corresponding message is written.
func (r *commandRegistry) register(sessionID string, timeout time.Duration) (uint64, *pendingCommand) {
	r.nextID++
	id := r.nextID
	pc := &pendingCommand{
		sessionID: sessionID,
		result:    make(chan commandResult, 1),
	}
	if timeout > 0 {
		pc.deadline = time.Now().Add(timeout)
		pc.hasDeadline = true
	}
	r.pending[id] = pc
	return id, pc
}

// resolve delivers a response to the registered sink for id, if any remains
// (late responses to cancelled/expired commands are silently discarded).
func (r *commandRegistry) resolve(id uint64, msg *cdproto.Message, err error) {
	pc, ok := r.pending[id]
	if !ok {
		return
	}
	delete(r.pending, id)
	pc.result <- commandResult{msg: msg, err: err}
}

// cancel discards a pending command without a response, e.g. because its
// caller's context was cancelled.
func (r *commandRegistry) cancel(id uint64, err error) {
	pc, ok := r.pending[id]
	if !ok {
		return
	}
	delete(r.pending, id)
	pc.result <- commandResult{err: err}
}

// expired returns the ids of all commands whose deadline has passed as of
// now, without removing them (the caller resolves each with ErrTimeout).
func (r *commandRegistry) expired(now time.Time) []uint64 {
	var ids []uint64
	for id, pc := range r.pending {
		if pc.hasDeadline && now.After(pc.deadline) {
			ids = append(ids, id)
		}
	}
	return ids
}

// nextDeadline returns the soonest deadline among pending commands, and
// whether one exists, for the Handler's timer wheel to sleep against.
func (r *commandRegistry) nextDeadline() (time.Time, bool) {
	var (
		soonest time.Time
		found   bool
	)
	for _, pc := range r.pending {
		if !pc.hasDeadline {
			continue
		}
		if !found || pc.deadline.Before(soonest) {
			soonest, found = pc.deadline, true
		}
	}
	return soonest, found
}

// drain resolves every remaining pending command with err, used when the
// transport closes and no further responses will ever arrive.
func (r *commandRegistry) drain(err error) {
	for id, pc := range r.pending {
		delete(r.pending, id)
		pc.result <- commandResult{err: err}
	}
}

// sessionCommands returns the ids of all pending commands issued against
// sessionID, used when a target detaches.
func (r *commandRegistry) sessionCommands(sessionID string) []uint64 {
	var ids []uint64
	for id, pc := range r.pending {
		if pc.sessionID == sessionID {
			ids = append(ids, id)
		}
	}
	return ids
}
