package authclient

import (
	"context"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/mkrupp/apptemplate/internal/domain"
	"github.com/mkrupp/apptemplate/internal/infra/logging"
)

// State is one observation of the session stream.
type State struct {
	// Data is the current session, nil when signed out or not yet resolved.
	Data *domain.Session
	// IsPending is true until the first resolution and never again afterwards.
	IsPending bool
	// Error is the failure of the latest resolution, if any.
	Error error
	// Degraded is set when the stream and the persisted credential disagree:
	// a live session whose credential could not be written, or a signed-out
	// session whose credential could not be removed.
	Degraded bool
}

// Authenticated reports whether the state carries a signed-in user.
func (s State) Authenticated() bool {
	return s.Data != nil && s.Data.Authenticated()
}

type subscriber struct {
	fn   func(State)
	seen uint64
}

// SessionStream is the live session view. It is loaded once, updated by every
// sign-in and sign-out commit, and can be revalidated against the remote.
type SessionStream struct {
	fetch func(context.Context) (domain.Session, error)
	group singleflight.Group
	log   logging.Logger

	m       sync.Mutex
	state   State
	version uint64 // bumped on every state change
	epoch   uint64 // bumped on every credential commit

	subs       map[uint64]*subscriber
	nextID     uint64
	delivering bool
	dirty      bool
}

// NewSessionStream creates a pending stream that resolves sessions with fetch.
func NewSessionStream(fetch func(context.Context) (domain.Session, error)) *SessionStream {
	return &SessionStream{
		fetch:   fetch,
		log:     logging.GetLogger("authclient.session_stream"),
		state:   State{IsPending: true},
		version: 1,
		subs:    make(map[uint64]*subscriber),
	}
}

// Get returns the current state.
func (s *SessionStream) Get() State {
	s.m.Lock()
	defer s.m.Unlock()

	return s.state
}

// Subscription is a registered stream observer.
type Subscription struct {
	stream *SessionStream
	id     uint64
	once   sync.Once
}

// Close unsubscribes. A delivery already in progress may still arrive.
func (sub *Subscription) Close() {
	sub.once.Do(func() {
		sub.stream.m.Lock()
		delete(sub.stream.subs, sub.id)
		sub.stream.m.Unlock()
	})
}

// Subscribe registers fn and delivers the current state to it. Deliveries are
// serialized and always carry the latest state; intermediate states may be
// skipped.
func (s *SessionStream) Subscribe(fn func(State)) *Subscription {
	s.m.Lock()
	s.nextID++
	id := s.nextID
	s.subs[id] = &subscriber{fn: fn}
	s.m.Unlock()

	s.notify()

	return &Subscription{stream: s, id: id}
}

// Load resolves the session once. Calls made while the first resolution is
// in flight join it; later calls return the current state without a round
// trip.
func (s *SessionStream) Load(ctx context.Context) State {
	if state := s.Get(); !state.IsPending {
		return state
	}

	s.Revalidate(ctx)

	return s.Get()
}

// Revalidate refetches the session. Overlapping calls share one round trip,
// and a result that started before a newer sign-in or sign-out commit is
// discarded. It blocks until the result is applied; fire-and-forget callers
// run it in a goroutine.
func (s *SessionStream) Revalidate(ctx context.Context) {
	s.m.Lock()
	epoch := s.epoch
	s.m.Unlock()

	result, err, _ := s.group.Do(strconv.FormatUint(epoch, 10), func() (any, error) {
		return s.fetch(ctx)
	})

	s.m.Lock()

	if s.epoch != epoch {
		s.m.Unlock()
		s.log.DebugContext(ctx, "stale revalidation discarded", "epoch", epoch)

		return
	}

	next := State{Degraded: s.state.Degraded}

	if err != nil {
		// keep the last known session, report the failure
		next.Data = s.state.Data
		next.Error = err
	} else if session, _ := result.(domain.Session); session.Authenticated() {
		next.Data = &session
	} else {
		next.Degraded = false
	}

	s.setLocked(next)
	s.m.Unlock()

	s.notify()
}

// commit replaces the state after a credential change and invalidates every
// revalidation in flight. The caller must call notify afterwards.
func (s *SessionStream) commit(session *domain.Session, degraded bool) {
	s.m.Lock()
	defer s.m.Unlock()

	s.epoch++

	if session != nil && !session.Authenticated() {
		session = nil
	}

	s.setLocked(State{Data: session, Degraded: degraded})
}

func (s *SessionStream) setLocked(state State) {
	state.IsPending = false
	s.state = state
	s.version++
}

// notify delivers the latest state to every subscriber that has not seen it.
// Only one goroutine delivers at a time; others mark the stream dirty and
// leave, so a subscriber may call back into the client without deadlocking.
func (s *SessionStream) notify() {
	s.m.Lock()

	if s.delivering {
		s.dirty = true
		s.m.Unlock()

		return
	}

	s.delivering = true

	for {
		s.dirty = false
		state, version := s.state, s.version

		var due []func(State)

		for _, sub := range s.subs {
			if sub.seen < version {
				sub.seen = version
				due = append(due, sub.fn)
			}
		}

		s.m.Unlock()

		for _, fn := range due {
			fn(state)
		}

		s.m.Lock()

		if !s.dirty {
			break
		}
	}

	s.delivering = false
	s.m.Unlock()
}
