// Package model defines the configuration and the data exchanged between the
// terminal, its collaborators, and the coordinator.
package model

type Config struct {
	Terminal    TerminalConfig    `yaml:"terminal"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Daemon      DaemonConfig      `yaml:"daemon"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type TerminalConfig struct {
	ServerBase       string `yaml:"server_base"`
	User             string `yaml:"user"`
	PollIntervalMs   int    `yaml:"poll_interval_ms"`
	ConnectTimeoutMs int    `yaml:"connect_timeout_ms"`
	ReadTimeoutMs    int    `yaml:"read_timeout_ms"`
	Haptics          string `yaml:"haptics"` // "log", "bell" or "notify"
}

type CoordinatorConfig struct {
	Addr             string `yaml:"addr"`
	QueueLimit       int    `yaml:"queue_limit"`
	ResponseLogLimit int    `yaml:"response_log_limit"`
}

type DaemonConfig struct {
	ShutdownTimeoutSec int `yaml:"shutdown_timeout_sec"`
}

// LoggingConfig controls the daemon log. The file rotates once it reaches
// MaxSizeMB; MaxBackups rotated files are kept for at most MaxAgeDays.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

const (
	DefaultServerBase       = "http://127.0.0.1:5002"
	DefaultUser             = "Phone user"
	DefaultPollIntervalMs   = 700
	DefaultConnectTimeoutMs = 2000
	DefaultReadTimeoutMs    = 2000
	DefaultCoordinatorAddr  = ":5002"
	DefaultQueueLimit       = 50
	DefaultResponseLogLimit = 30
	DefaultLogMaxSizeMB     = 10
	DefaultLogMaxBackups    = 3
	DefaultLogMaxAgeDays    = 7
)

// WithDefaults returns a copy of c with every unset field filled in.
func (c Config) WithDefaults() Config {
	if c.Terminal.ServerBase == "" {
		c.Terminal.ServerBase = DefaultServerBase
	}
	if c.Terminal.User == "" {
		c.Terminal.User = DefaultUser
	}
	if c.Terminal.PollIntervalMs <= 0 {
		c.Terminal.PollIntervalMs = DefaultPollIntervalMs
	}
	if c.Terminal.ConnectTimeoutMs <= 0 {
		c.Terminal.ConnectTimeoutMs = DefaultConnectTimeoutMs
	}
	if c.Terminal.ReadTimeoutMs <= 0 {
		c.Terminal.ReadTimeoutMs = DefaultReadTimeoutMs
	}
	if c.Terminal.Haptics == "" {
		c.Terminal.Haptics = "log"
	}
	if c.Coordinator.Addr == "" {
		c.Coordinator.Addr = DefaultCoordinatorAddr
	}
	if c.Coordinator.QueueLimit <= 0 {
		c.Coordinator.QueueLimit = DefaultQueueLimit
	}
	if c.Coordinator.ResponseLogLimit <= 0 {
		c.Coordinator.ResponseLogLimit = DefaultResponseLogLimit
	}
	if c.Daemon.ShutdownTimeoutSec <= 0 {
		c.Daemon.ShutdownTimeoutSec = 10
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.MaxSizeMB <= 0 {
		c.Logging.MaxSizeMB = DefaultLogMaxSizeMB
	}
	if c.Logging.MaxBackups <= 0 {
		c.Logging.MaxBackups = DefaultLogMaxBackups
	}
	if c.Logging.MaxAgeDays <= 0 {
		c.Logging.MaxAgeDays = DefaultLogMaxAgeDays
	}
	return c
}
