// Package dispatch sends classified responses to the coordinator. Delivery
// is fire-and-forget: the display and the confirmation buzz update at once,
// and a failed POST is logged at debug level and otherwise ignored.
package dispatch

import (
	"context"
	"sync"

	"github.com/msageha/uri/internal/display"
	"github.com/msageha/uri/internal/haptic"
	"github.com/msageha/uri/internal/logging"
	"github.com/msageha/uri/internal/model"
)

// Sender posts one response. *remote.Client satisfies it.
type Sender interface {
	Respond(ctx context.Context, r model.Response) error
}

type Options struct {
	Sender  Sender
	Player  haptic.Player
	Display *display.State
	Logger  *logging.Logger

	// User identifies the wearer in every response.
	User string

	// Role reports the current role at dispatch time.
	Role func() model.Role

	// Context bounds in-flight posts; cancelling it abandons them.
	Context context.Context
}

type Dispatcher struct {
	sender  Sender
	player  haptic.Player
	display *display.State
	logger  *logging.Logger
	user    string
	role    func() model.Role
	ctx     context.Context

	wg sync.WaitGroup
}

func New(opts Options) *Dispatcher {
	if opts.User == "" {
		opts.User = model.DefaultUser
	}
	if opts.Role == nil {
		opts.Role = func() model.Role { return model.RoleAll }
	}
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	if opts.Player == nil {
		opts.Player = haptic.LogPlayer{Logger: opts.Logger}
	}
	return &Dispatcher{
		sender:  opts.Sender,
		player:  opts.Player,
		display: opts.Display,
		logger:  opts.Logger.With("dispatch"),
		user:    opts.User,
		role:    opts.Role,
		ctx:     opts.Context,
	}
}

// Dispatch reports code to the coordinator and returns the response that
// was queued for delivery. It never blocks on the network.
func (d *Dispatcher) Dispatch(code model.ResponseCode) model.Response {
	r := model.Response{
		Code:  code,
		Label: code.Label(),
		User:  d.user,
		Role:  model.NormalizeRole(string(d.role())),
	}

	if d.display != nil {
		d.display.SetLastSent(r.Label)
	}
	d.player.Play(haptic.ConfirmationName, haptic.Confirmation)
	d.logger.Info("response %s role=%s", r.Code, r.Role)

	if d.sender == nil {
		return r
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.sender.Respond(d.ctx, r); err != nil {
			d.logger.Debug("post response %s: %v", r.Code, err)
		}
	}()
	return r
}

// Wait blocks until every in-flight post has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
