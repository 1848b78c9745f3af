package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/msageha/uri/internal/display"
	"github.com/msageha/uri/internal/events"
	"github.com/msageha/uri/internal/gesture"
	"github.com/msageha/uri/internal/haptic"
	"github.com/msageha/uri/internal/model"
	"github.com/msageha/uri/internal/tasks"
	"github.com/msageha/uri/internal/uds"
)

// Snapshot is the reply to the snapshot command. CanClear reports whether
// tasks_clear_completed would remove anything.
type Snapshot struct {
	display.Snapshot
	Polling    bool             `json:"polling"`
	Tasks      []model.TaskItem `json:"tasks"`
	CanClear   bool             `json:"can_clear"`
	Gesture    gesture.State    `json:"gesture"`
	LastHaptic *HapticInfo      `json:"last_haptic,omitempty"`
}

type HapticInfo struct {
	Name    string         `json:"name"`
	Pattern haptic.Pattern `json:"pattern"`
}

// PressParams drives the classifier. DurationMs describes one press that
// ends now. Cycles describes presses by offsets from now (zero or
// negative), in order; it lets the CLI send a double tap in one request.
type PressParams struct {
	DurationMs *int64       `json:"duration_ms,omitempty"`
	Cycles     []PressCycle `json:"cycles,omitempty"`
}

type PressCycle struct {
	DownMs int64 `json:"down_ms"`
	UpMs   int64 `json:"up_ms"`
}

// TouchParams is one raw contact event. AtMs is a Unix millisecond
// timestamp; zero means now.
type TouchParams struct {
	Action  string `json:"action"`
	Contact int64  `json:"contact"`
	AtMs    int64  `json:"at_ms,omitempty"`
}

type RoleParams struct {
	Role string `json:"role"`
}

// TaskParams names a task. Completed is required by task_set only.
type TaskParams struct {
	ID        string `json:"id"`
	Completed *bool  `json:"completed,omitempty"`
}

// PollResult is the reply to poll_once.
type PollResult struct {
	model.RemoteEvent
	Applied bool `json:"applied"`
}

type RespondParams struct {
	Code string `json:"code"`
}

func (d *Daemon) registerHandlers() {
	d.server.Handle("ping", func(context.Context, *uds.Request) *uds.Response {
		return uds.SuccessResponse(map[string]any{"status": "ok", "pid": os.Getpid()})
	})
	d.server.Handle("snapshot", d.handleSnapshot)
	d.server.Handle("press", d.handlePress)
	d.server.Handle("touch", d.handleTouch)
	d.server.Handle("respond", d.handleRespond)
	d.server.Handle("poll_once", d.handlePollOnce)
	d.server.Handle("role_get", func(context.Context, *uds.Request) *uds.Response {
		return uds.SuccessResponse(RoleParams{Role: string(d.poller.Role())})
	})
	d.server.Handle("role_set", d.handleRoleSet)
	d.server.Handle("tasks", func(context.Context, *uds.Request) *uds.Response {
		return uds.SuccessResponse(d.registry.List())
	})
	d.server.Handle("task_toggle", d.handleTaskToggle)
	d.server.Handle("task_set", d.handleTaskSet)
	d.server.Handle("tasks_clear_completed", func(context.Context, *uds.Request) *uds.Response {
		removed := d.registry.ClearCompleted()
		return uds.SuccessResponse(map[string]int{"removed": removed})
	})
	d.server.Handle("test_vibration", func(context.Context, *uds.Request) *uds.Response {
		p := haptic.PatternFor(model.EventNameCalled)
		d.player.Play(model.EventNameCalled, p)
		return uds.SuccessResponse(HapticInfo{Name: model.EventNameCalled, Pattern: p})
	})
	d.server.Handle("shutdown", func(context.Context, *uds.Request) *uds.Response {
		d.logger.Info("shutdown requested via UDS")
		go d.Shutdown()
		return uds.SuccessResponse(map[string]string{"status": "shutdown_accepted"})
	})
}

func (d *Daemon) snapshot() Snapshot {
	s := Snapshot{
		Snapshot: d.display.Snapshot(),
		Polling:  d.poller.Running(),
		Tasks:    d.registry.List(),
		CanClear: d.registry.HasCompleted(),
		Gesture:  d.classifier.State(),
	}
	if last, ok := d.recorder.Last(); ok {
		s.LastHaptic = &HapticInfo{Name: last.Name, Pattern: last.Pattern}
	}
	return s
}

func (d *Daemon) handleSnapshot(context.Context, *uds.Request) *uds.Response {
	return uds.SuccessResponse(d.snapshot())
}

func (d *Daemon) handlePress(_ context.Context, req *uds.Request) *uds.Response {
	var p PressParams
	if err := req.DecodeParams(&p); err != nil {
		return uds.ErrorResponse(uds.ErrCodeValidation, err.Error())
	}

	now := d.clock.Now()
	ms := func(v int64) time.Time { return now.Add(time.Duration(v) * time.Millisecond) }

	switch {
	case p.DurationMs != nil && len(p.Cycles) == 0:
		if *p.DurationMs < 0 {
			return uds.ErrorResponse(uds.ErrCodeValidation, "duration_ms must not be negative")
		}
		d.classifier.PressCycle(ms(-*p.DurationMs), now)
	case p.DurationMs == nil && len(p.Cycles) > 0:
		for i, c := range p.Cycles {
			if c.UpMs > 0 || c.DownMs > c.UpMs {
				return uds.ErrorResponse(uds.ErrCodeValidation,
					fmt.Sprintf("cycle %d: need down_ms <= up_ms <= 0", i))
			}
		}
		for _, c := range p.Cycles {
			d.classifier.PressCycle(ms(c.DownMs), ms(c.UpMs))
		}
	default:
		return uds.ErrorResponse(uds.ErrCodeValidation, "exactly one of duration_ms or cycles is required")
	}
	return uds.SuccessResponse(d.snapshot())
}

func (d *Daemon) handleTouch(_ context.Context, req *uds.Request) *uds.Response {
	var p TouchParams
	if err := req.DecodeParams(&p); err != nil {
		return uds.ErrorResponse(uds.ErrCodeValidation, err.Error())
	}
	at := d.clock.Now()
	if p.AtMs != 0 {
		at = time.UnixMilli(p.AtMs)
	}
	id := gesture.ContactID(p.Contact)

	var tracked bool
	switch p.Action {
	case "down":
		tracked = d.classifier.Down(id, at)
	case "move":
		d.classifier.Move(id, at)
		tracked = true
	case "up":
		tracked = d.classifier.Up(id, at)
	case "cancel":
		tracked = d.classifier.Cancel(id)
	default:
		return uds.ErrorResponse(uds.ErrCodeValidation, fmt.Sprintf("unknown touch action %q", p.Action))
	}
	return uds.SuccessResponse(map[string]any{"tracked": tracked, "gesture": d.classifier.State()})
}

func (d *Daemon) handleRespond(_ context.Context, req *uds.Request) *uds.Response {
	var p RespondParams
	if err := req.DecodeParams(&p); err != nil {
		return uds.ErrorResponse(uds.ErrCodeValidation, err.Error())
	}
	code, err := model.ParseResponseCode(p.Code)
	if err != nil {
		return uds.ErrorResponse(uds.ErrCodeValidation, err.Error())
	}
	d.bus.Publish(events.ResponseDetected, code)
	return uds.SuccessResponse(d.dispatcher.Dispatch(code))
}

func (d *Daemon) handlePollOnce(ctx context.Context, req *uds.Request) *uds.Response {
	var p RoleParams
	if err := req.DecodeParams(&p); err != nil {
		return uds.ErrorResponse(uds.ErrCodeValidation, err.Error())
	}
	if p.Role != "" {
		ev := d.poller.PollOnce(ctx, model.NormalizeRole(p.Role))
		return uds.SuccessResponse(PollResult{RemoteEvent: ev, Applied: true})
	}
	// The current role may change while the request is in flight; the
	// result is then reported but not applied.
	ev, applied := d.poller.PollCurrent(ctx)
	return uds.SuccessResponse(PollResult{RemoteEvent: ev, Applied: applied})
}

func (d *Daemon) handleRoleSet(_ context.Context, req *uds.Request) *uds.Response {
	var p RoleParams
	if err := req.DecodeParams(&p); err != nil {
		return uds.ErrorResponse(uds.ErrCodeValidation, err.Error())
	}
	// Restart before saving so the role watcher sees no change to act on.
	role := model.NormalizeRole(p.Role)
	d.poller.Restart(role)
	if _, err := d.roles.Save(role); err != nil {
		return uds.ErrorResponse(uds.ErrCodeInternal, err.Error())
	}
	d.logger.Info("role set role=%s", role)
	return uds.SuccessResponse(RoleParams{Role: string(role)})
}

func (d *Daemon) handleTaskToggle(_ context.Context, req *uds.Request) *uds.Response {
	var p TaskParams
	if err := req.DecodeParams(&p); err != nil {
		return uds.ErrorResponse(uds.ErrCodeValidation, err.Error())
	}
	if p.ID == "" {
		return uds.ErrorResponse(uds.ErrCodeValidation, "id is required")
	}
	item, err := d.registry.Toggle(p.ID)
	if errors.Is(err, tasks.ErrNotFound) {
		return uds.ErrorResponse(uds.ErrCodeNotFound, err.Error())
	}
	if err != nil {
		return uds.ErrorResponse(uds.ErrCodeInternal, err.Error())
	}
	return uds.SuccessResponse(item)
}

func (d *Daemon) handleTaskSet(_ context.Context, req *uds.Request) *uds.Response {
	var p TaskParams
	if err := req.DecodeParams(&p); err != nil {
		return uds.ErrorResponse(uds.ErrCodeValidation, err.Error())
	}
	if p.ID == "" || p.Completed == nil {
		return uds.ErrorResponse(uds.ErrCodeValidation, "id and completed are required")
	}
	item, err := d.registry.SetCompleted(p.ID, *p.Completed)
	if errors.Is(err, tasks.ErrNotFound) {
		return uds.ErrorResponse(uds.ErrCodeNotFound, err.Error())
	}
	if err != nil {
		return uds.ErrorResponse(uds.ErrCodeInternal, err.Error())
	}
	return uds.SuccessResponse(item)
}
