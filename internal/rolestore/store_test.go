package rolestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msageha/uri/internal/model"
)

func TestLoad_MissingFileIsAll(t *testing.T) {
	s := New(t.TempDir(), nil)
	assert.Equal(t, model.RoleAll, s.Load())
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	s := New(t.TempDir(), nil)

	for _, tt := range []struct {
		in   model.Role
		want model.Role
	}{
		{"LEFT", model.RoleLeft},
		{"right", model.RoleRight},
		{"all", model.RoleAll},
		{"center", model.RoleAll},
		{"", model.RoleAll},
	} {
		saved, err := s.Save(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, saved, "save %q", tt.in)
		assert.Equal(t, tt.want, s.Load(), "load after save %q", tt.in)
	}
}

func TestSave_WritesYAML(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, nil)

	_, err := s.Save(model.RoleLeft)
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(dir, FileName))
	require.NoError(t, err)
	assert.Equal(t, "role: LEFT\n", string(content))
	assert.FileExists(t, filepath.Join(dir, "locks", "role.lock"))
}

func TestLoad_UnrecognizedValueIsAll(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("role: MIDDLE\n"), 0644))
	assert.Equal(t, model.RoleAll, New(dir, nil).Load())
}

func TestLoad_CorruptFileFallsBackToBackup(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, nil)
	_, err := s.Save(model.RoleRight)
	require.NoError(t, err)
	_, err = s.Save(model.RoleLeft)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("role: [LEFT"), 0644))

	assert.Equal(t, model.RoleRight, s.Load())
	entries, err := os.ReadDir(filepath.Join(dir, "quarantine"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLoad_CorruptFileWithoutBackup(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("role: {"), 0644))

	s := New(dir, nil)
	assert.Equal(t, model.RoleAll, s.Load())
	assert.NoFileExists(t, filepath.Join(dir, FileName))
}

func TestWatch_ReportsChangesFromOtherWriters(t *testing.T) {
	dir := t.TempDir()
	daemonStore := New(dir, nil)
	cliStore := New(dir, nil)

	changes := make(chan model.Role, 8)
	w, err := daemonStore.Watch(func(r model.Role) { changes <- r })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	_, err = cliStore.Save(model.RoleLeft)
	require.NoError(t, err)

	select {
	case r := <-changes:
		assert.Equal(t, model.RoleLeft, r)
	case <-time.After(5 * time.Second):
		t.Fatal("no role change delivered")
	}

	// Saving the same role again is not a change.
	_, err = cliStore.Save(model.RoleLeft)
	require.NoError(t, err)
	_, err = cliStore.Save(model.RoleRight)
	require.NoError(t, err)

	select {
	case r := <-changes:
		assert.Equal(t, model.RoleRight, r)
	case <-time.After(5 * time.Second):
		t.Fatal("no role change delivered")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
