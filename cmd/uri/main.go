package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/msageha/uri/internal/coordinator"
	"github.com/msageha/uri/internal/daemon"
	"github.com/msageha/uri/internal/logging"
	"github.com/msageha/uri/internal/model"
	"github.com/msageha/uri/internal/remote"
	"github.com/msageha/uri/internal/rolestore"
	"github.com/msageha/uri/internal/setup"
	"github.com/msageha/uri/internal/status"
	"github.com/msageha/uri/internal/uds"
)

const version = "0.3.0"

// Double tap sent by "uri double-tap": two 80ms presses 100ms apart, ending now.
var doubleTapCycles = []daemon.PressCycle{
	{DownMs: -260, UpMs: -180},
	{DownMs: -80, UpMs: 0},
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "setup":
		runSetup(os.Args[2:])
	case "daemon":
		runDaemon(os.Args[2:])
	case "serve":
		runServe(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
	case "down":
		runDown(os.Args[2:])
	case "press":
		runPress(os.Args[2:])
	case "tap":
		sendPress(daemon.PressParams{DurationMs: ptr(int64(80))})
	case "double-tap":
		sendPress(daemon.PressParams{Cycles: doubleTapCycles})
	case "hold":
		runHold(os.Args[2:])
	case "touch":
		runTouch(os.Args[2:])
	case "respond":
		runRespond(os.Args[2:])
	case "poll":
		runPoll(os.Args[2:])
	case "role":
		runRole(os.Args[2:])
	case "tasks":
		callAndPrint("tasks", nil)
	case "task":
		runTask(os.Args[2:])
	case "vibrate":
		callAndPrint("test_vibration", nil)
	case "send":
		runSend(os.Args[2:])
	case "version":
		fmt.Printf("uri %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func ptr[T any](v T) *T { return &v }

func runSetup(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: uri setup <dir> [--server <url>] [--user <name>] [--role <ALL|LEFT|RIGHT>]")
		os.Exit(1)
	}
	var opts setup.Options
	rest := args[1:]
	for i := 0; i < len(rest); i++ {
		switch rest[i] {
		case "--server", "--user", "--role":
			if i+1 >= len(rest) {
				fmt.Fprintf(os.Stderr, "%s requires a value\n", rest[i])
				os.Exit(1)
			}
			flag := rest[i]
			i++
			switch flag {
			case "--server":
				opts.ServerBase = rest[i]
			case "--user":
				opts.User = rest[i]
			case "--role":
				opts.Role = model.NormalizeRole(rest[i])
			}
		default:
			fmt.Fprintf(os.Stderr, "unknown flag: %s\n", rest[i])
			os.Exit(1)
		}
	}

	base, err := setup.Run(args[0], opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "setup: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Initialized .uri/ in %s\n", filepath.Dir(base))
}

func runDaemon(_ []string) {
	uriDir := requireURIDir()
	cfg, err := loadConfig(uriDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	d, err := daemon.New(uriDir, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create daemon: %v\n", err)
		os.Exit(1)
	}
	if err := d.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "daemon: %v\n", err)
		os.Exit(1)
	}
}

// runServe starts the coordinator. It reads .uri/config.yaml when one is
// found and falls back to defaults otherwise.
func runServe(args []string) {
	cfg := model.Config{}.WithDefaults()
	if uriDir := findURIDir(); uriDir != "" {
		loaded, err := loadConfig(uriDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--addr":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--addr requires a value")
				os.Exit(1)
			}
			i++
			cfg.Coordinator.Addr = args[i]
		default:
			fmt.Fprintf(os.Stderr, "unknown flag: %s\nusage: uri serve [--addr <host:port>]\n", args[i])
			os.Exit(1)
		}
	}

	logger := logging.New(os.Stderr, logging.ParseLevel(cfg.Logging.Level))
	srv := coordinator.New(coordinator.Options{
		QueueLimit:       cfg.Coordinator.QueueLimit,
		ResponseLogLimit: cfg.Coordinator.ResponseLogLimit,
		Logger:           logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := coordinator.ListenAndServe(ctx, cfg.Coordinator.Addr, srv.Router(), logger.With("http")); err != nil {
		fmt.Fprintf(os.Stderr, "serve: %v\n", err)
		os.Exit(1)
	}
}

func runStatus(args []string) {
	jsonOutput := false
	for _, a := range args {
		switch a {
		case "--json":
			jsonOutput = true
		default:
			fmt.Fprintf(os.Stderr, "unknown flag: %s\nusage: uri status [--json]\n", a)
			os.Exit(1)
		}
	}

	if err := status.Run(requireURIDir(), jsonOutput, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "status: %v\n", err)
		os.Exit(1)
	}
}

func runDown(_ []string) {
	if err := newClient(requireURIDir()).Call("shutdown", nil, nil); err != nil {
		fail("down", err)
	}
	fmt.Println("daemon shutting down")
}

func runPress(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: uri press <duration_ms>")
		os.Exit(1)
	}
	ms, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || ms < 0 {
		fmt.Fprintf(os.Stderr, "invalid duration: %s\n", args[0])
		os.Exit(1)
	}
	sendPress(daemon.PressParams{DurationMs: &ms})
}

func runHold(args []string) {
	if len(args) != 1 || (args[0] != "2" && args[0] != "5") {
		fmt.Fprintln(os.Stderr, "usage: uri hold <2|5>")
		os.Exit(1)
	}
	secs, _ := strconv.ParseInt(args[0], 10, 64)
	sendPress(daemon.PressParams{DurationMs: ptr(secs * 1000)})
}

func sendPress(p daemon.PressParams) {
	callAndPrint("press", p)
}

func runTouch(args []string) {
	if len(args) < 1 || len(args) > 2 {
		fmt.Fprintln(os.Stderr, "usage: uri touch <down|move|up|cancel> [contact]")
		os.Exit(1)
	}
	p := daemon.TouchParams{Action: args[0]}
	if len(args) == 2 {
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid contact: %s\n", args[1])
			os.Exit(1)
		}
		p.Contact = id
	}
	callAndPrint("touch", p)
}

func runRespond(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: uri respond <YES_SINGLE_TAP|NO_DOUBLE_TAP|REPEAT_HOLD_2S|HELP_HOLD_5S>")
		os.Exit(1)
	}
	if _, err := model.ParseResponseCode(args[0]); err != nil {
		fmt.Fprintf(os.Stderr, "respond: %v\n", err)
		os.Exit(1)
	}
	callAndPrint("respond", daemon.RespondParams{Code: args[0]})
}

func runPoll(args []string) {
	var p daemon.RoleParams
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--role":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--role requires a value")
				os.Exit(1)
			}
			i++
			p.Role = args[i]
		default:
			fmt.Fprintf(os.Stderr, "unknown flag: %s\nusage: uri poll [--role <ALL|LEFT|RIGHT>]\n", args[i])
			os.Exit(1)
		}
	}
	callAndPrint("poll_once", p)
}

// runRole reads or sets the role. Without a running daemon it works on
// role.yaml directly; a daemon started later picks the value up.
func runRole(args []string) {
	uriDir := requireURIDir()
	client := newClient(uriDir)

	switch {
	case len(args) == 0 || (len(args) == 1 && args[0] == "get"):
		var rp daemon.RoleParams
		if err := client.Call("role_get", nil, &rp); err != nil {
			if !isUnreachable(err) {
				fail("role", err)
			}
			rp.Role = string(rolestore.New(uriDir, nil).Load())
		}
		fmt.Println(rp.Role)
	case len(args) == 2 && args[0] == "set":
		var rp daemon.RoleParams
		if err := client.Call("role_set", daemon.RoleParams{Role: args[1]}, &rp); err != nil {
			if !isUnreachable(err) {
				fail("role", err)
			}
			role, err := rolestore.New(uriDir, nil).Save(model.Role(args[1]))
			if err != nil {
				fail("role", err)
			}
			rp.Role = string(role)
		}
		fmt.Println(rp.Role)
	default:
		fmt.Fprintln(os.Stderr, "usage: uri role [get | set <ALL|LEFT|RIGHT>]")
		os.Exit(1)
	}
}

func runTask(args []string) {
	switch {
	case len(args) == 2 && args[0] == "toggle":
		callAndPrint("task_toggle", daemon.TaskParams{ID: args[1]})
	case len(args) == 2 && (args[0] == "done" || args[0] == "undo"):
		callAndPrint("task_set", daemon.TaskParams{ID: args[1], Completed: ptr(args[0] == "done")})
	case len(args) == 1 && args[0] == "clear":
		callAndPrint("tasks_clear_completed", nil)
	default:
		fmt.Fprintln(os.Stderr, "usage: uri task <toggle|done|undo <id> | clear>")
		os.Exit(1)
	}
}

// runSend posts an event to the coordinator the way the dashboard does.
func runSend(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: uri send <EVENT> [--target <ALL|LEFT|RIGHT>] [--task <text>] [--task-id <id>] [--server <url>]")
		os.Exit(1)
	}
	req := model.SendRequest{Event: args[0]}
	var server string
	rest := args[1:]
	for i := 0; i < len(rest); i++ {
		switch rest[i] {
		case "--target", "--task", "--task-id", "--server":
			if i+1 >= len(rest) {
				fmt.Fprintf(os.Stderr, "%s requires a value\n", rest[i])
				os.Exit(1)
			}
			flag := rest[i]
			i++
			switch flag {
			case "--target":
				req.Target = rest[i]
			case "--task":
				req.TaskText = rest[i]
			case "--task-id":
				req.TaskID = rest[i]
			case "--server":
				server = rest[i]
			}
		default:
			fmt.Fprintf(os.Stderr, "unknown flag: %s\n", rest[i])
			os.Exit(1)
		}
	}

	cfg := model.Config{}.WithDefaults()
	if uriDir := findURIDir(); uriDir != "" {
		if loaded, err := loadConfig(uriDir); err == nil {
			cfg = loaded
		}
	}
	if server == "" {
		server = cfg.Terminal.ServerBase
	}

	client := remote.New(server,
		time.Duration(cfg.Terminal.ConnectTimeoutMs)*time.Millisecond,
		time.Duration(cfg.Terminal.ReadTimeoutMs)*time.Millisecond)
	resp, err := client.Send(context.Background(), req)
	if err != nil {
		fail("send", err)
	}
	printJSON(resp)
}

func newClient(uriDir string) *uds.Client {
	return uds.NewClient(filepath.Join(uriDir, uds.DefaultSocketName))
}

func callAndPrint(command string, params any) {
	var out json.RawMessage
	if err := newClient(requireURIDir()).Call(command, params, &out); err != nil {
		fail(command, err)
	}
	printJSON(out)
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode output: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}

// isUnreachable reports whether err means no daemon answered, as opposed
// to the daemon rejecting the command.
func isUnreachable(err error) bool {
	var ce *uds.CommandError
	return !errors.As(err, &ce)
}

func fail(what string, err error) {
	var ce *uds.CommandError
	if errors.As(err, &ce) {
		fmt.Fprintf(os.Stderr, "%s failed [%s]: %s\n", what, ce.Code, ce.Message)
	} else {
		fmt.Fprintf(os.Stderr, "%s: %v\n", what, err)
	}
	os.Exit(1)
}

func requireURIDir() string {
	uriDir := findURIDir()
	if uriDir == "" {
		fmt.Fprintln(os.Stderr, "error: .uri/ directory not found. Run 'uri setup <dir>' first.")
		os.Exit(1)
	}
	return uriDir
}

// findURIDir searches for .uri/ in the current directory and ancestors.
func findURIDir() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, setup.DirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func loadConfig(uriDir string) (model.Config, error) {
	data, err := os.ReadFile(filepath.Join(uriDir, "config.yaml"))
	if err != nil {
		return model.Config{}, fmt.Errorf("read config.yaml: %w", err)
	}
	var cfg model.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return model.Config{}, fmt.Errorf("parse config.yaml: %w", err)
	}
	return cfg.WithDefaults(), nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `uri %s - wearable response terminal

Usage: uri <command> [options]

Terminal:
  setup <dir> [flags]   Initialize .uri/ directory
  daemon                Run the terminal daemon (polls, buzzes, classifies)
  down                  Stop the daemon
  status [--json]       Show daemon, role and task state

Gestures (CLI -> Daemon):
  press <ms>            One press of the given length
  tap                   Single tap (Acknowledge / Yes)
  double-tap            Double tap (No / can't comply)
  hold <2|5>            2s hold (Repeat) or 5s hold (Help)
  touch <action> [id]   Raw contact event: down, move, up, cancel
  respond <CODE>        Send a response code directly

State:
  poll [--role <r>]     Poll the coordinator once
  role [get|set <r>]    Show or change the role (ALL, LEFT, RIGHT)
  tasks                 List tasks
  task toggle <id>      Toggle a task's completion
  task done|undo <id>   Mark a task completed or not completed
  task clear            Remove completed tasks
  vibrate               Play the test vibration

Coordinator:
  serve [--addr <a>]    Run the coordinator HTTP server
  send <EVENT> [flags]  Queue an event (--target, --task, --task-id, --server)

  version               Show version
  help                  Show this help
`, version)
}
