// Package poller runs the role-scoped event loop of the terminal: fetch the
// next coordinator event, play its haptic pattern, record task assignments,
// and keep the status line current.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/msageha/uri/internal/clock"
	"github.com/msageha/uri/internal/display"
	"github.com/msageha/uri/internal/haptic"
	"github.com/msageha/uri/internal/logging"
	"github.com/msageha/uri/internal/model"
	"github.com/msageha/uri/internal/tasks"
)

// DefaultInterval is measured from the start of one iteration to the start
// of the next.
const DefaultInterval = 700 * time.Millisecond

// Source fetches the next event for a role. Implementations never fail:
// errors are reported through RemoteEvent.Status.
type Source interface {
	Poll(ctx context.Context, role model.Role) model.RemoteEvent
}

type Options struct {
	Source   Source
	Player   haptic.Player
	Registry *tasks.Registry
	Display  *display.State
	Clock    clock.Clock
	Logger   *logging.Logger
	Interval time.Duration
}

type Poller struct {
	source   Source
	player   haptic.Player
	registry *tasks.Registry
	display  *display.State
	clock    clock.Clock
	logger   *logging.Logger
	interval time.Duration
	// created anchors fallback task ids. time.Time.Sub uses the monotonic
	// reading, so wall-clock steps do not move them.
	created time.Time

	// lifeMu serializes Start, Restart and Stop.
	lifeMu sync.Mutex
	parent context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// mu guards the fields below and every state mutation made from a poll
	// result, so a result is applied only while its generation is current.
	mu      sync.Mutex
	role    model.Role
	gen     uint64
	running bool
}

func New(opts Options) *Poller {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Player == nil {
		opts.Player = haptic.LogPlayer{Logger: opts.Logger}
	}
	return &Poller{
		source:   opts.Source,
		player:   opts.Player,
		registry: opts.Registry,
		display:  opts.Display,
		clock:    opts.Clock,
		logger:   opts.Logger.With("poller"),
		interval: opts.Interval,
		created:  opts.Clock.Now(),
		role:     model.RoleAll,
	}
}

// Start begins polling for role. The loop lives until ctx is cancelled,
// Stop is called, or Restart replaces it. Starting a running poller
// restarts it.
func (p *Poller) Start(ctx context.Context, role model.Role) {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()
	p.parent = ctx
	p.stopLocked()
	p.startLocked(model.NormalizeRole(string(role)))
}

// Restart atomically replaces the running loop with one for role. Once
// Restart is entered no result of the old loop mutates any state.
func (p *Poller) Restart(role model.Role) {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()
	p.stopLocked()
	p.startLocked(model.NormalizeRole(string(role)))
}

// Stop cancels the loop and waits for it to exit.
func (p *Poller) Stop() {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()
	p.stopLocked()
}

func (p *Poller) stopLocked() {
	p.mu.Lock()
	p.gen++
	p.running = false
	p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
		<-p.done
		p.cancel, p.done = nil, nil
	}
}

func (p *Poller) startLocked(role model.Role) {
	parent := p.parent
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})

	p.mu.Lock()
	p.gen++
	gen := p.gen
	p.role = role
	p.running = true
	p.mu.Unlock()

	if p.display != nil {
		p.display.SetRole(role)
	}
	p.cancel, p.done = cancel, done
	p.logger.Info("polling started role=%s interval=%s", role, p.interval)
	go p.loop(ctx, gen, role, done)
}

func (p *Poller) loop(ctx context.Context, gen uint64, role model.Role, done chan struct{}) {
	defer close(done)
	defer p.logger.Debug("polling stopped role=%s", role)
	defer func() {
		// Parent cancelled: nobody else will clear the flag.
		p.mu.Lock()
		if p.gen == gen {
			p.running = false
		}
		p.mu.Unlock()
	}()

	for {
		start := p.clock.Now()
		ev := p.source.Poll(ctx, role)
		if ctx.Err() != nil {
			return
		}
		p.apply(gen, role, ev, true)

		wait := p.interval - p.clock.Now().Sub(start)
		t := p.clock.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// PollOnce runs a single poll for role outside the loop schedule and applies
// its result. It leaves the status line alone and is safe to call while the
// loop is running.
func (p *Poller) PollOnce(ctx context.Context, role model.Role) model.RemoteEvent {
	role = model.NormalizeRole(string(role))
	ev := p.source.Poll(ctx, role)
	p.apply(0, role, ev, false)
	return ev
}

// PollCurrent is PollOnce for the current role. If the role changes, or the
// poller is restarted or stopped, while the poll is in flight, the result is
// returned but not applied; applied reports which happened.
func (p *Poller) PollCurrent(ctx context.Context) (ev model.RemoteEvent, applied bool) {
	p.mu.Lock()
	gen, role := p.gen, p.role
	p.mu.Unlock()

	ev = p.source.Poll(ctx, role)
	applied = p.apply(gen, role, ev, false)
	if !applied {
		p.logger.Debug("dropped manual poll result for role=%s event=%q", role, ev.Event)
	}
	return ev, applied
}

// apply mutates display, haptics and registry for one poll result. A
// non-zero gen is checked under the same lock as the mutation and a stale
// result is dropped. Only loop results update the status line.
func (p *Poller) apply(gen uint64, role model.Role, ev model.RemoteEvent, updateStatus bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if gen != 0 && gen != p.gen {
		return false
	}
	if updateStatus && p.display != nil {
		p.display.SetPollStatus(ev.Status, role)
	}
	if !ev.HasEvent() {
		p.logger.Debug("poll role=%s status=%q no event", role, ev.Status)
		return true
	}

	p.logger.Info("event %s role=%s task_id=%q", ev.Event, role, ev.TaskID)
	if p.display != nil {
		p.display.SetLastEvent(ev)
	}
	p.player.Play(ev.Event, haptic.PatternFor(ev.Event))

	if ev.IsTaskAssignment() && p.registry != nil {
		item, added := p.registry.Assign(ev.TaskID, ev.TaskText, p.clock.Now().Sub(p.created).Milliseconds())
		if added {
			p.logger.Info("task added id=%s", item.ID)
		}
	}
	return true
}

// Role returns the role of the current (or last) loop.
func (p *Poller) Role() model.Role {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.role
}

func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}
