package model

import (
	"errors"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestNormalizeRole(t *testing.T) {
	tests := []struct {
		input    string
		expected Role
	}{
		{"left", RoleLeft},
		{"LEFT", RoleLeft},
		{"Left", RoleLeft},
		{"right", RoleRight},
		{"RIGHT", RoleRight},
		{"ALL", RoleAll},
		{"all", RoleAll},
		{"", RoleAll},
		{"middle", RoleAll},
		{" left", RoleAll},
		{"GENERAL", RoleAll},
	}
	for _, tt := range tests {
		if got := NormalizeRole(tt.input); got != tt.expected {
			t.Errorf("NormalizeRole(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestIsValidRole(t *testing.T) {
	for _, s := range []string{"all", "Left", "RIGHT"} {
		if !IsValidRole(s) {
			t.Errorf("IsValidRole(%q) = false", s)
		}
	}
	for _, s := range []string{"", "middle", "lefty"} {
		if IsValidRole(s) {
			t.Errorf("IsValidRole(%q) = true", s)
		}
	}
}

func TestResponseCodeLabels(t *testing.T) {
	want := map[ResponseCode]string{
		ResponseYes:    "Acknowledge / Yes",
		ResponseNo:     "No / can't comply",
		ResponseRepeat: "Repeat / clarify",
		ResponseHelp:   "Help / emergency",
	}
	for code, label := range want {
		if got := code.Label(); got != label {
			t.Errorf("%s.Label() = %q, want %q", code, got, label)
		}
	}
	if got := ResponseCode("BOGUS").Label(); got != "BOGUS" {
		t.Errorf("unknown label = %q", got)
	}
}

func TestParseResponseCode(t *testing.T) {
	c, err := ParseResponseCode(" help_hold_5s ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c != ResponseHelp {
		t.Errorf("got %q", c)
	}

	_, err = ParseResponseCode("WAVE")
	if !errors.Is(err, ErrUnknownResponseCode) {
		t.Errorf("expected ErrUnknownResponseCode, got %v", err)
	}
}

func TestCleanWireValue(t *testing.T) {
	tests := map[string]string{
		"":            "",
		"   ":         "",
		"null":        "",
		"NAME_CALLED": "NAME_CALLED",
		"Null":        "Null",
	}
	for in, want := range tests {
		if got := CleanWireValue(in); got != want {
			t.Errorf("CleanWireValue(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRemoteEventTaskAssignment(t *testing.T) {
	if !(RemoteEvent{Event: EventTaskAssigned, TaskText: "Move pallet"}).IsTaskAssignment() {
		t.Error("expected task assignment")
	}
	if (RemoteEvent{Event: EventTaskAssigned}).IsTaskAssignment() {
		t.Error("assignment without text must not create a task")
	}
	if (RemoteEvent{Event: EventNameCalled, TaskText: "x"}).IsTaskAssignment() {
		t.Error("NAME_CALLED must not create a task")
	}
}

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{}.WithDefaults()
	if cfg.Terminal.PollIntervalMs != 700 {
		t.Errorf("poll interval: got %d", cfg.Terminal.PollIntervalMs)
	}
	if cfg.Terminal.ConnectTimeoutMs != 2000 || cfg.Terminal.ReadTimeoutMs != 2000 {
		t.Errorf("timeouts: got %d/%d", cfg.Terminal.ConnectTimeoutMs, cfg.Terminal.ReadTimeoutMs)
	}
	if cfg.Terminal.User != "Phone user" {
		t.Errorf("user: got %q", cfg.Terminal.User)
	}
	if cfg.Coordinator.QueueLimit != 50 || cfg.Coordinator.ResponseLogLimit != 30 {
		t.Errorf("coordinator limits: got %d/%d", cfg.Coordinator.QueueLimit, cfg.Coordinator.ResponseLogLimit)
	}
	if cfg.Logging.MaxSizeMB != 10 || cfg.Logging.MaxBackups != 3 || cfg.Logging.MaxAgeDays != 7 {
		t.Errorf("log rotation: got %+v", cfg.Logging)
	}

	custom := Config{Terminal: TerminalConfig{ServerBase: "http://10.0.0.2:5002", PollIntervalMs: 250}}.WithDefaults()
	if custom.Terminal.ServerBase != "http://10.0.0.2:5002" || custom.Terminal.PollIntervalMs != 250 {
		t.Errorf("explicit values overwritten: %+v", custom.Terminal)
	}
}

func TestConfigYAML(t *testing.T) {
	src := `
terminal:
  server_base: http://192.168.68.101:5002
  user: Badge 7
  haptics: bell
coordinator:
  addr: ":6000"
logging:
  level: debug
`
	var cfg Config
	if err := yaml.Unmarshal([]byte(src), &cfg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if cfg.Terminal.ServerBase != "http://192.168.68.101:5002" {
		t.Errorf("server_base: got %q", cfg.Terminal.ServerBase)
	}
	if cfg.Terminal.User != "Badge 7" || cfg.Terminal.Haptics != "bell" {
		t.Errorf("terminal: got %+v", cfg.Terminal)
	}
	if cfg.Coordinator.Addr != ":6000" || cfg.Logging.Level != "debug" {
		t.Errorf("got %+v / %+v", cfg.Coordinator, cfg.Logging)
	}
}
