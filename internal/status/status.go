// Package status reports on a terminal's daemon and its current state.
package status

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/msageha/uri/internal/daemon"
	"github.com/msageha/uri/internal/lock"
	"github.com/msageha/uri/internal/model"
	"github.com/msageha/uri/internal/rolestore"
	"github.com/msageha/uri/internal/uds"
)

const probeTimeout = 2 * time.Second

type TerminalStatus struct {
	Daemon   DaemonStatus     `json:"daemon"`
	Role     model.Role       `json:"role"`
	Snapshot *daemon.Snapshot `json:"snapshot,omitempty"`
}

type DaemonStatus struct {
	Running bool `json:"running"`
	PID     int  `json:"pid,omitempty"`
	// StalePID is the PID left in daemon.lock by a daemon that is no longer
	// answering.
	StalePID int `json:"stale_pid,omitempty"`
}

type pingReply struct {
	Status string `json:"status"`
	PID    int    `json:"pid"`
}

// Collect asks the daemon for its state. Without a daemon the role comes
// from role.yaml.
func Collect(uriDir string) TerminalStatus {
	client := uds.NewClient(filepath.Join(uriDir, uds.DefaultSocketName))
	client.SetTimeout(probeTimeout)

	var ping pingReply
	if err := client.Call("ping", nil, &ping); err != nil {
		st := TerminalStatus{Role: rolestore.New(uriDir, nil).Load()}
		if pid, err := lock.ReadPID(filepath.Join(uriDir, "locks", "daemon.lock")); err == nil && pid > 0 {
			st.Daemon.StalePID = pid
		}
		return st
	}

	st := TerminalStatus{Daemon: DaemonStatus{Running: true, PID: ping.PID}}
	var snap daemon.Snapshot
	if err := client.Call("snapshot", nil, &snap); err != nil {
		st.Role = rolestore.New(uriDir, nil).Load()
		return st
	}
	st.Role = snap.Role
	st.Snapshot = &snap
	return st
}

// Run collects the status and prints it to w.
func Run(uriDir string, jsonOutput bool, w io.Writer) error {
	st := Collect(uriDir)
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}
	printStatus(w, st)
	return nil
}

func printStatus(w io.Writer, s TerminalStatus) {
	switch {
	case s.Daemon.Running:
		fmt.Fprintf(w, "Daemon: running (pid %d)\n", s.Daemon.PID)
	case s.Daemon.StalePID != 0:
		fmt.Fprintf(w, "Daemon: stopped (stale pid %d in daemon.lock)\n", s.Daemon.StalePID)
	default:
		fmt.Fprintln(w, "Daemon: stopped")
	}
	fmt.Fprintf(w, "Role:   %s\n", s.Role)

	snap := s.Snapshot
	if snap == nil {
		return
	}
	fmt.Fprintf(w, "Status: %s\n", orDash(snap.Status))
	fmt.Fprintf(w, "Event:  %s\n", orDash(snap.LastEvent))
	fmt.Fprintf(w, "Sent:   %s\n", orDash(snap.LastSent))
	if snap.LastHaptic != nil {
		fmt.Fprintf(w, "Haptic: %s %v\n", snap.LastHaptic.Name, snap.LastHaptic.Pattern)
	}

	if len(snap.Tasks) == 0 {
		fmt.Fprintln(w, "\nTasks: none")
		return
	}
	fmt.Fprintln(w, "\nTasks:")
	for _, t := range snap.Tasks {
		mark := " "
		if t.Completed {
			mark = "x"
		}
		fmt.Fprintf(w, "  [%s] %-24s  %s\n", mark, t.ID, t.Text)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
