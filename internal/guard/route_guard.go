// Package guard restricts navigational regions to signed-in users.
package guard

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/mkrupp/apptemplate/internal/infra/logging"
	"github.com/mkrupp/apptemplate/internal/navigation"
	"github.com/mkrupp/apptemplate/internal/session"
)

// RedirectParam carries the guarded path to the sign-in page.
const RedirectParam = "redirect"

// Status is the state of a mounted guard.
type Status int

const (
	// Pending waits for the first session resolution.
	Pending Status = iota
	// Authorized lets the guarded region render.
	Authorized
	// Unauthorized has redirected (or is about to) to the sign-in page.
	Unauthorized
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Authorized:
		return "authorized"
	case Unauthorized:
		return "unauthorized"
	default:
		return "unknown"
	}
}

// Config holds configuration for route guards.
type Config struct {
	// RedirectTo is where unauthorized visitors are sent
	RedirectTo string `env:"REDIRECT_TO" envDefault:"/sign-in"`
	// PreserveTarget appends the guarded path as ?redirect= to RedirectTo
	PreserveTarget bool `env:"PRESERVE_TARGET" envDefault:"true"`
}

// Scheduler runs effect after the current render and returns a function that
// cancels it if it has not run yet.
type Scheduler func(effect func()) (cancel func())

// Immediate runs effects synchronously. Used where there is no render loop,
// such as request handlers.
func Immediate(effect func()) func() {
	effect()

	return func() {}
}

// After runs effects on a timer, which gives an unmount the chance to cancel them.
func After(d time.Duration) Scheduler {
	return func(effect func()) func() {
		timer := time.AfterFunc(d, effect)

		return func() { timer.Stop() }
	}
}

// Guard is the route guard state machine. A mount starts in Pending and
// leaves it exactly once. The transition to Unauthorized schedules one
// Replace to Config.RedirectTo; further renders never navigate again.
type Guard struct {
	nav      navigation.Navigator
	cfg      Config
	schedule Scheduler
	log      logging.Logger

	m          sync.Mutex
	status     Status
	mount      uint64
	mounted    bool
	redirected bool
	cancel     func()
	stopCtx    func() bool
	sub        interface{ Close() }
	onChange   func(Status)
}

// New creates an unmounted Guard.
func New(nav navigation.Navigator, cfg Config, schedule Scheduler) *Guard {
	if schedule == nil {
		schedule = Immediate
	}

	if cfg.RedirectTo == "" {
		cfg.RedirectTo = "/sign-in"
	}

	return &Guard{
		nav:      nav,
		cfg:      cfg,
		schedule: schedule,
		log:      logging.GetLogger("guard.route_guard"),
	}
}

// OnChange registers fn to be called on every status transition.
func (g *Guard) OnChange(fn func(Status)) {
	g.m.Lock()
	defer g.m.Unlock()

	g.onChange = fn
}

// Status returns the current status.
func (g *Guard) Status() Status {
	g.m.Lock()
	defer g.m.Unlock()

	return g.status
}

// Mount starts a fresh guard lifecycle in Pending and follows hook. Canceling
// ctx unmounts the guard. The caller loads the hook.
func (g *Guard) Mount(ctx context.Context, hook *session.Hook) {
	g.Unmount()

	g.m.Lock()
	g.mount++
	g.status = Pending
	g.mounted = true
	g.redirected = false
	g.cancel = nil
	g.stopCtx = context.AfterFunc(ctx, g.Unmount)
	g.m.Unlock()

	sub := hook.Subscribe(g.Render)

	g.m.Lock()
	defer g.m.Unlock()

	if g.mounted {
		g.sub = sub
	} else {
		sub.Close()
	}
}

// Unmount ends the lifecycle and cancels a redirect that has not run yet.
func (g *Guard) Unmount() {
	g.m.Lock()
	defer g.m.Unlock()

	if !g.mounted {
		return
	}

	g.mounted = false

	if g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}

	if g.stopCtx != nil {
		g.stopCtx()
		g.stopCtx = nil
	}

	if g.sub != nil {
		g.sub.Close()
		g.sub = nil
	}
}

// Render feeds a session view into the state machine. It may be called any
// number of times; only transitions have effects.
func (g *Guard) Render(view session.View) {
	g.m.Lock()

	if !g.mounted {
		g.m.Unlock()

		return
	}

	next := g.status

	switch {
	case g.status == Unauthorized, view.IsLoading:
	case view.Signed():
		next = Authorized
	default:
		next = Unauthorized
	}

	if next == g.status {
		g.m.Unlock()

		return
	}

	g.status = next
	onChange := g.onChange

	var target string

	if next == Unauthorized && !g.redirected {
		g.redirected = true
		target = g.target()
	}

	mount := g.mount
	g.m.Unlock()

	if onChange != nil {
		onChange(next)
	}

	if target == "" {
		return
	}

	cancel := g.schedule(func() { g.redirect(mount, target) })

	g.m.Lock()
	if g.mounted && g.mount == mount {
		g.cancel = cancel
		g.m.Unlock()

		return
	}
	g.m.Unlock()

	cancel()
}

func (g *Guard) redirect(mount uint64, target string) {
	g.m.Lock()
	live := g.mounted && g.mount == mount
	g.m.Unlock()

	if !live {
		return
	}

	if err := g.nav.Replace(target); err != nil {
		g.log.Warn("redirect failed", "target", target, "error", err)

		return
	}

	g.log.Debug("redirected unauthorized visitor", "target", target)
}

func (g *Guard) target() string {
	if !g.cfg.PreserveTarget {
		return g.cfg.RedirectTo
	}

	current := g.nav.CurrentPath()
	if current == "" || current == g.cfg.RedirectTo {
		return g.cfg.RedirectTo
	}

	target, err := navigation.WithQuery(g.cfg.RedirectTo, url.Values{RedirectParam: {current}})
	if err != nil {
		return g.cfg.RedirectTo
	}

	return target
}
