// Package rolestore persists the terminal's role in .uri/role.yaml.
package rolestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/msageha/uri/internal/lock"
	"github.com/msageha/uri/internal/logging"
	"github.com/msageha/uri/internal/model"
	yamlfile "github.com/msageha/uri/internal/yaml"
)

const FileName = "role.yaml"

type roleFile struct {
	Role model.Role `yaml:"role"`
}

type Store struct {
	dir    string
	path   string
	lock   *lock.FileLock
	logger *logging.Logger

	mu sync.Mutex
}

// New returns a store rooted at uriDir (the .uri directory).
func New(uriDir string, logger *logging.Logger) *Store {
	return &Store{
		dir:    uriDir,
		path:   filepath.Join(uriDir, FileName),
		lock:   lock.NewFileLock(filepath.Join(uriDir, "locks", "role.lock")),
		logger: logger.With("rolestore"),
	}
}

func (s *Store) Path() string { return s.path }

// Load returns the persisted role. A missing, unreadable or unrecognized
// value yields ALL. A corrupt file is quarantined and its backup, if any,
// is used instead.
func (s *Store) Load() model.Role {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rf roleFile
	err := yamlfile.Read(s.path, &rf)
	if errors.Is(err, yamlfile.ErrCorrupt) {
		restored, rerr := yamlfile.Recover(s.dir, s.path)
		if rerr != nil {
			s.logger.Warn("recover %s: %v", s.path, rerr)
			return model.RoleAll
		}
		s.logger.Warn("quarantined corrupt %s restored_from_backup=%t", FileName, restored)
		if !restored {
			return model.RoleAll
		}
		rf = roleFile{}
		err = yamlfile.Read(s.path, &rf)
	}
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("read %s: %v", s.path, err)
		}
		return model.RoleAll
	}
	return model.NormalizeRole(string(rf.Role))
}

// Save normalizes role and writes it atomically. Writers in other processes
// are serialized through locks/role.lock.
func (s *Store) Save(role model.Role) (model.Role, error) {
	role = model.NormalizeRole(string(role))

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.lock.Path()), 0755); err != nil {
		return role, fmt.Errorf("create locks dir: %w", err)
	}
	if err := s.lock.Lock(); err != nil {
		return role, fmt.Errorf("role lock: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	if err := yamlfile.AtomicWrite(s.path, roleFile{Role: role}); err != nil {
		return role, fmt.Errorf("save role: %w", err)
	}
	s.logger.Info("role saved role=%s", role)
	return role, nil
}

// Watcher reports changes of the persisted role made by other processes.
type Watcher struct {
	store   *Store
	fsw     *fsnotify.Watcher
	onRole  func(model.Role)
	current model.Role
}

// Watch starts watching the store directory. Changes are delivered by Run.
func (s *Store) Watch(onRole func(model.Role)) (*Watcher, error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return nil, fmt.Errorf("ensure dir %s: %w", s.dir, err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(s.dir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", s.dir, err)
	}
	return &Watcher{store: s, fsw: fsw, onRole: onRole, current: s.Load()}, nil
}

// Close releases the watcher without running it.
func (w *Watcher) Close() error { return w.fsw.Close() }

// Run delivers role changes until ctx is cancelled, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != FileName {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			w.store.logger.Debug("fsnotify event=%s file=%s", ev.Op, ev.Name)
			role := w.store.Load()
			if role == w.current {
				continue
			}
			w.current = role
			w.onRole(role)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.store.logger.Error("fsnotify error=%v", err)
		}
	}
}
