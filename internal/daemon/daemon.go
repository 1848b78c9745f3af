// Package daemon runs the response terminal: the role-scoped poll loop, the
// gesture classifier and the response dispatcher, controlled by the CLI over
// a Unix domain socket.
package daemon

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/msageha/uri/internal/clock"
	"github.com/msageha/uri/internal/dispatch"
	"github.com/msageha/uri/internal/display"
	"github.com/msageha/uri/internal/events"
	"github.com/msageha/uri/internal/gesture"
	"github.com/msageha/uri/internal/haptic"
	"github.com/msageha/uri/internal/lock"
	"github.com/msageha/uri/internal/logging"
	"github.com/msageha/uri/internal/model"
	"github.com/msageha/uri/internal/poller"
	"github.com/msageha/uri/internal/remote"
	"github.com/msageha/uri/internal/rolestore"
	"github.com/msageha/uri/internal/tasks"
	"github.com/msageha/uri/internal/uds"
)

// Daemon is the terminal process.
type Daemon struct {
	uriDir  string
	config  model.Config
	logger  *logging.Logger
	logFile io.Closer

	fileLock *lock.FileLock
	server   *uds.Server
	clock    clock.Clock

	bus        *events.Bus
	display    *display.State
	registry   *tasks.Registry
	recorder   *haptic.Recorder
	player     haptic.Player
	roles      *rolestore.Store
	remote     *remote.Client
	dispatcher *dispatch.Dispatcher
	classifier *gesture.Classifier
	poller     *poller.Poller

	ctx      context.Context
	cancel   context.CancelFunc
	group    *errgroup.Group
	shutdown sync.Once
	stopped  chan struct{}
}

// deps overrides collaborators in tests.
type deps struct {
	clock  clock.Clock
	player haptic.Player
	source poller.Source
	sender dispatch.Sender
}

// New creates a daemon logging to <uriDir>/logs/daemon.log, rotated per
// cfg.Logging.
func New(uriDir string, cfg model.Config) (*Daemon, error) {
	cfg = cfg.WithDefaults()
	logPath := filepath.Join(uriDir, "logs", "daemon.log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	logFile := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAgeDays,
	}
	return newDaemon(uriDir, cfg, logFile, logFile, deps{}), nil
}

func newDaemon(uriDir string, cfg model.Config, w io.Writer, closer io.Closer, d deps) *Daemon {
	cfg = cfg.WithDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	logger := logging.New(w, logging.ParseLevel(cfg.Logging.Level)).With("daemon")

	if d.clock == nil {
		d.clock = clock.Real()
	}
	client := remote.New(cfg.Terminal.ServerBase,
		time.Duration(cfg.Terminal.ConnectTimeoutMs)*time.Millisecond,
		time.Duration(cfg.Terminal.ReadTimeoutMs)*time.Millisecond)
	if d.source == nil {
		d.source = client
	}
	if d.sender == nil {
		d.sender = client
	}

	bus := events.NewBus(0)
	roles := rolestore.New(uriDir, logger)
	role := roles.Load()
	recorder := &haptic.Recorder{}
	player := d.player
	if player == nil {
		player = newPlayer(cfg.Terminal.Haptics, logger, d.clock)
	}
	player = haptic.Multi{player, recorder}

	dm := &Daemon{
		uriDir:   uriDir,
		config:   cfg,
		logger:   logger,
		logFile:  closer,
		fileLock: lock.NewFileLock(filepath.Join(uriDir, "locks", "daemon.lock")),
		server:   uds.NewServer(filepath.Join(uriDir, uds.DefaultSocketName), logger),
		clock:    d.clock,
		bus:      bus,
		display:  display.New(client.Base(), role, bus),
		registry: tasks.NewRegistry(bus),
		recorder: recorder,
		player:   player,
		roles:    roles,
		remote:   client,
		ctx:      ctx,
		cancel:   cancel,
		stopped:  make(chan struct{}),
	}
	dm.poller = poller.New(poller.Options{
		Source:   d.source,
		Player:   player,
		Registry: dm.registry,
		Display:  dm.display,
		Clock:    d.clock,
		Logger:   logger,
		Interval: time.Duration(cfg.Terminal.PollIntervalMs) * time.Millisecond,
	})
	dm.dispatcher = dispatch.New(dispatch.Options{
		Sender:  d.sender,
		Player:  player,
		Display: dm.display,
		Logger:  logger,
		User:    cfg.Terminal.User,
		Role:    dm.poller.Role,
		Context: ctx,
	})
	dm.classifier = gesture.New(d.clock, dm.onGesture, logger.With("gesture"))
	return dm
}

// newPlayer picks the haptic output device named in terminal.haptics.
func newPlayer(kind string, logger *logging.Logger, c clock.Clock) haptic.Player {
	logPlayer := haptic.LogPlayer{Logger: logger.With("haptic")}
	switch kind {
	case "bell":
		return haptic.Multi{logPlayer, haptic.NewBellPlayer(os.Stderr, c)}
	case "notify":
		return haptic.Multi{logPlayer, haptic.NewNotifyPlayer(logger.With("haptic"))}
	default:
		return logPlayer
	}
}

func (d *Daemon) onGesture(code model.ResponseCode) {
	d.bus.Publish(events.ResponseDetected, code)
	d.dispatcher.Dispatch(code)
}

// onRoleFile restarts polling when role.yaml is changed by another process.
func (d *Daemon) onRoleFile(role model.Role) {
	if role == d.poller.Role() {
		return
	}
	d.logger.Info("role changed on disk role=%s, restarting poller", role)
	d.poller.Restart(role)
}

// Run starts the daemon and blocks until shutdown completes.
func (d *Daemon) Run() error {
	if err := d.start(); err != nil {
		return err
	}
	d.waitSignals()
	return nil
}

func (d *Daemon) start() error {
	if err := os.MkdirAll(filepath.Join(d.uriDir, "locks"), 0755); err != nil {
		return fmt.Errorf("ensure locks dir: %w", err)
	}
	if err := d.fileLock.TryLock(); err != nil {
		return fmt.Errorf("daemon lock: %w", err)
	}
	d.logger.Info("daemon starting pid=%d server=%s", os.Getpid(), d.remote.Base())

	watcher, err := d.roles.Watch(d.onRoleFile)
	if err != nil {
		d.cleanup()
		return err
	}

	d.registerHandlers()
	if err := d.server.Start(); err != nil {
		_ = watcher.Close()
		d.cleanup()
		return fmt.Errorf("start UDS server: %w", err)
	}
	d.logger.Info("UDS server listening on %s", d.server.SocketPath())

	unsubscribe := d.bus.Subscribe(func(ev events.Event) {
		d.logger.Debug("bus %s: %v", ev.Type, ev.Payload)
	})

	g, gctx := errgroup.WithContext(d.ctx)
	d.group = g
	g.Go(func() error { return watcher.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		unsubscribe()
		return nil
	})

	role := d.roles.Load()
	d.poller.Start(d.ctx, role)
	d.logger.Info("daemon ready role=%s", role)
	return nil
}

// waitSignals blocks until SIGINT/SIGTERM or a shutdown command. A second
// signal forces exit.
func (d *Daemon) waitSignals() {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		d.logger.Info("received signal=%s, initiating graceful shutdown", sig)
		go func() {
			<-sigCh
			d.logger.Warn("received second signal, forcing exit")
			os.Exit(1)
		}()
		d.Shutdown()
	case <-d.stopped:
	}
}

// Shutdown stops every component and releases the lock. Idempotent.
func (d *Daemon) Shutdown() {
	d.shutdown.Do(func() {
		d.logger.Info("shutdown started")

		d.server.Stop()
		d.poller.Stop()
		d.classifier.Reset()

		timeout := time.Duration(d.config.Daemon.ShutdownTimeoutSec) * time.Second
		done := make(chan struct{})
		go func() {
			d.dispatcher.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(timeout):
			d.logger.Warn("shutdown timeout after %s, abandoning in-flight responses", timeout)
		}

		d.cancel()
		if d.group != nil {
			if err := d.group.Wait(); err != nil {
				d.logger.Warn("background task: %v", err)
			}
		}
		d.bus.Close()
		d.logger.Info("daemon stopped")
		d.cleanup()
		close(d.stopped)
	})
}

func (d *Daemon) cleanup() {
	_ = d.fileLock.Unlock()
	if d.logFile != nil {
		_ = d.logFile.Close()
	}
}
