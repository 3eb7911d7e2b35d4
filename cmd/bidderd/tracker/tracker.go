package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/textileio/bidder-core/auction"
	"github.com/textileio/bidder-core/cmd/bidderd/metrics"
	mtr "github.com/textileio/bidder-core/metrics"
	"github.com/textileio/bidder-core/txstate"
	logging "github.com/textileio/go-log/v2"
	"go.opentelemetry.io/otel/metric"
)

var (
	log = logging.Logger("bidderd/tracker")

	// ErrUnknownAttempt is returned when an attempt isn't tracked.
	ErrUnknownAttempt = errors.New("unknown attempt")
	// ErrInvalidTransition is returned when a transition would move a state backwards.
	ErrInvalidTransition = errors.New("invalid state transition")
)

// Listener is called on every state transition, in transition order. Listeners run
// after the Tracker lock is released and may read the Tracker, but must not
// transition it.
type Listener func(attempt auction.BidAttempt, state txstate.State)

type slot struct {
	attempt auction.BidAttempt
	state   txstate.State
}

type transition struct {
	attempt auction.BidAttempt
	state   txstate.State
}

// Tracker tracks the transaction state of every attempt by its ID. Within an
// attempt states only move forward: None -> Mining -> terminal.
//
// The most recently armed attempt of each kind is its current attempt. Arming a
// new one supersedes it, but a superseded attempt that is still Mining keeps
// being tracked until it resolves. Superseded attempts that already resolved are
// dropped on the next Arm.
type Tracker struct {
	lock     sync.Mutex
	attempts map[string]*slot
	// order holds the tracked attempt IDs of each kind, oldest first. The last
	// one is the current attempt.
	order     map[auction.Kind][]string
	listeners []Listener
	// queue holds transitions not yet delivered, in transition order.
	queue []transition

	// emitLock is held by the goroutine draining queue.
	emitLock sync.Mutex

	metricTransitions metric.Int64Counter
}

// New returns a new Tracker.
func New() *Tracker {
	return &Tracker{
		attempts:          make(map[string]*slot),
		order:             make(map[auction.Kind][]string),
		metricTransitions: metrics.Meter.NewInt64Counter(metrics.Prefix + ".tx_transitions_total"),
	}
}

// Subscribe registers l to receive every future transition.
func (t *Tracker) Subscribe(l Listener) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.listeners = append(t.listeners, l)
}

// Arm makes a the current attempt of its kind with state None.
func (t *Tracker) Arm(a auction.BidAttempt) error {
	if a.ID == "" {
		return errors.New("attempt id is empty")
	}
	t.lock.Lock()
	if _, ok := t.attempts[a.ID]; ok {
		t.lock.Unlock()
		return fmt.Errorf("attempt %s is already tracked", a.ID)
	}

	kept := t.order[a.Kind][:0]
	for _, id := range t.order[a.Kind] {
		s := t.attempts[id]
		if s.state.Status().IsTerminal() {
			delete(t.attempts, id)
			continue
		}
		if s.state.Status() == txstate.StatusMining {
			log.Infof("%s attempt %s superseded by %s while still mining", a.Kind, id, a.ID)
		}
		kept = append(kept, id)
	}
	t.order[a.Kind] = append(kept, a.ID)
	t.attempts[a.ID] = &slot{attempt: a, state: txstate.None{}}
	t.release(transition{attempt: a, state: txstate.None{}})
	return nil
}

// Abandon stops tracking an attempt that was never broadcast. The previous
// attempt of its kind, if still tracked, becomes current again.
func (t *Tracker) Abandon(a auction.BidAttempt) error {
	t.lock.Lock()
	defer t.lock.Unlock()

	s, ok := t.attempts[a.ID]
	if !ok {
		return ErrUnknownAttempt
	}
	if s.state.Status() != txstate.StatusNone {
		return fmt.Errorf("abandoning %s attempt: %w", s.state.Status(), ErrInvalidTransition)
	}
	t.forget(s.attempt)
	return nil
}

// Mining moves the attempt from None to Mining.
func (t *Tracker) Mining(a auction.BidAttempt) error {
	t.lock.Lock()
	s, ok := t.attempts[a.ID]
	if !ok {
		t.lock.Unlock()
		return ErrUnknownAttempt
	}
	if s.state.Status() != txstate.StatusNone {
		t.lock.Unlock()
		return fmt.Errorf("%s -> %s: %w", s.state.Status(), txstate.StatusMining, ErrInvalidTransition)
	}
	s.state = txstate.Mining{}
	t.release(transition{attempt: s.attempt, state: s.state})
	return nil
}

// Resolve moves the attempt from Mining to the terminal state st. It returns false
// without changes if the attempt isn't tracked, isn't Mining, or st isn't terminal,
// so duplicate deliveries are no-ops. Superseded attempts resolve too, without
// touching the current attempt of their kind.
func (t *Tracker) Resolve(a auction.BidAttempt, st txstate.State) bool {
	if st == nil || !st.Status().IsTerminal() {
		return false
	}
	t.lock.Lock()
	s, ok := t.attempts[a.ID]
	if !ok {
		t.lock.Unlock()
		log.Debugf("ignoring %s for untracked %s attempt %s", st.Status(), a.Kind, a.ID)
		return false
	}
	if s.state.Status() != txstate.StatusMining {
		t.lock.Unlock()
		log.Debugf("ignoring %s for %s attempt %s in state %s", st.Status(), a.Kind, a.ID, s.state.Status())
		return false
	}
	s.state = st
	if !t.isCurrent(s.attempt) {
		t.forget(s.attempt)
	}
	t.release(transition{attempt: s.attempt, state: st})
	return true
}

// Current returns the current attempt of kind and its state.
func (t *Tracker) Current(kind auction.Kind) (auction.BidAttempt, txstate.State, bool) {
	t.lock.Lock()
	defer t.lock.Unlock()

	ids := t.order[kind]
	if len(ids) == 0 {
		return auction.BidAttempt{}, txstate.None{}, false
	}
	s := t.attempts[ids[len(ids)-1]]
	return s.attempt, s.state, true
}

// State returns the state of the current attempt of kind, or None.
func (t *Tracker) State(kind auction.Kind) txstate.State {
	_, st, _ := t.Current(kind)
	return st
}

// Pending returns the Mining attempts of kind, oldest first, current or not.
func (t *Tracker) Pending(kind auction.Kind) []auction.BidAttempt {
	t.lock.Lock()
	defer t.lock.Unlock()

	var res []auction.BidAttempt
	for _, id := range t.order[kind] {
		if s := t.attempts[id]; s.state.Status() == txstate.StatusMining {
			res = append(res, s.attempt)
		}
	}
	return res
}

// Busy returns whether any tracked attempt is Mining.
func (t *Tracker) Busy() bool {
	t.lock.Lock()
	defer t.lock.Unlock()

	for _, s := range t.attempts {
		if s.state.Status() == txstate.StatusMining {
			return true
		}
	}
	return false
}

func (t *Tracker) isCurrent(a auction.BidAttempt) bool {
	ids := t.order[a.Kind]
	return len(ids) > 0 && ids[len(ids)-1] == a.ID
}

func (t *Tracker) forget(a auction.BidAttempt) {
	delete(t.attempts, a.ID)
	ids := t.order[a.Kind]
	for i, id := range ids {
		if id == a.ID {
			t.order[a.Kind] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
}

// release queues tr, unlocks the tracker, and delivers queued transitions to the
// listeners. It must be called with t.lock held. Only the emitLock holder drains
// the queue, so listeners see transitions in order and t.lock is never held while
// they run. When release returns, tr has been delivered.
func (t *Tracker) release(tr transition) {
	t.queue = append(t.queue, tr)
	t.lock.Unlock()

	t.emitLock.Lock()
	defer t.emitLock.Unlock()
	for {
		t.lock.Lock()
		if len(t.queue) == 0 {
			t.lock.Unlock()
			return
		}
		next := t.queue[0]
		t.queue = t.queue[1:]
		ls := make([]Listener, len(t.listeners))
		copy(ls, t.listeners)
		t.lock.Unlock()

		log.Debugf("%s attempt %s: %s", next.attempt.Kind, next.attempt.ID, next.state.Status())
		t.metricTransitions.Add(context.Background(), 1, mtr.AttrKind(next.attempt.Kind), mtr.AttrOutcome(next.state.Status()))
		for _, l := range ls {
			l(next.attempt, next.state)
		}
	}
}
