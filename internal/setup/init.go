// Package setup creates the .uri/ working directory for a terminal.
package setup

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/msageha/uri/internal/model"
	"github.com/msageha/uri/internal/rolestore"
	atomicyaml "github.com/msageha/uri/internal/yaml"
	"github.com/msageha/uri/templates"
)

const DirName = ".uri"

// Options override template values at creation time. Zero values keep the
// template's.
type Options struct {
	ServerBase string
	User       string
	Role       model.Role
}

// Run initializes <projectDir>/.uri and returns its absolute path.
func Run(projectDir string, opts Options) (string, error) {
	absDir, err := filepath.Abs(projectDir)
	if err != nil {
		return "", fmt.Errorf("resolve project dir: %w", err)
	}

	base := filepath.Join(absDir, DirName)
	if _, err := os.Stat(base); err == nil {
		return "", fmt.Errorf("%s already exists", base)
	}

	for _, d := range []string{"locks", "logs", "quarantine"} {
		if err := os.MkdirAll(filepath.Join(base, d), 0755); err != nil {
			return "", fmt.Errorf("create directory %s: %w", d, err)
		}
	}

	cfg, err := generateConfig(opts)
	if err != nil {
		return "", fmt.Errorf("generate config: %w", err)
	}
	if err := atomicyaml.AtomicWrite(filepath.Join(base, "config.yaml"), cfg); err != nil {
		return "", fmt.Errorf("write config.yaml: %w", err)
	}

	role := opts.Role
	if role == "" {
		role = model.RoleAll
	}
	if _, err := rolestore.New(base, nil).Save(role); err != nil {
		return "", err
	}

	// daemon.lock is created empty; the daemon writes its PID on start.
	if err := os.WriteFile(filepath.Join(base, "locks", "daemon.lock"), nil, 0600); err != nil {
		return "", fmt.Errorf("create daemon.lock: %w", err)
	}
	return base, nil
}

func generateConfig(opts Options) (*model.Config, error) {
	data, err := fs.ReadFile(templates.FS, "config.yaml")
	if err != nil {
		return nil, fmt.Errorf("read config template: %w", err)
	}

	var cfg model.Config
	if err := yamlv3.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config template: %w", err)
	}
	if opts.ServerBase != "" {
		cfg.Terminal.ServerBase = opts.ServerBase
	}
	if opts.User != "" {
		cfg.Terminal.User = opts.User
	}
	return &cfg, nil
}
