package apply

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/darkdragon/drift-api-router/internal/render"
)

type testWriter struct {
	t *testing.T
}

func (w testWriter) Write(p []byte) (n int, err error) {
	w.t.Log(string(p))
	return len(p), nil
}

type stubValidator struct {
	err   error
	calls []string
}

func (validator *stubValidator) Validate(ctx context.Context, path string) error {
	contents, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	validator.calls = append(validator.calls, string(contents))
	return validator.err
}

type stubReloader struct {
	reloads  int
	failures int
}

func (reloader *stubReloader) Reload(ctx context.Context) error {
	reloader.reloads++
	if reloader.failures > 0 {
		reloader.failures--
		return errors.New("nginx is not running")
	}
	return nil
}

func newTestApplier(t *testing.T, dir string, validator Validator, reloader Reloader, dryRun bool) *Applier {
	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	return NewApplier(Options{
		ConfigPath: filepath.Join(dir, "nginx", "nginx.conf"),
		StatusPath: filepath.Join(dir, "api-router", "status.json"),
		DryRun:     dryRun,
	}, validator, reloader, logger)
}

func TestApplyInstallsAndSkipsIdenticalConfig(t *testing.T) {
	dir := t.TempDir()
	validator := &stubValidator{}
	reloader := &stubReloader{}
	applier := newTestApplier(t, dir, validator, reloader, false)
	artifact := render.Artifact{Config: []byte("events {}\n"), Status: []byte("{}\n")}

	outcome, err := applier.Apply(context.Background(), artifact)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, outcome)
	require.Equal(t, []string{"events {}\n"}, validator.calls)
	require.Equal(t, 1, reloader.reloads)

	installed, err := os.ReadFile(filepath.Join(dir, "nginx", "nginx.conf"))
	require.NoError(t, err)
	require.Equal(t, "events {}\n", string(installed))
	status, err := os.ReadFile(filepath.Join(dir, "api-router", "status.json"))
	require.NoError(t, err)
	require.Equal(t, "{}\n", string(status))

	outcome, err = applier.Apply(context.Background(), artifact)
	require.NoError(t, err)
	require.Equal(t, OutcomeSkipped, outcome)
	require.Len(t, validator.calls, 1)
	require.Equal(t, 1, reloader.reloads)

	entries, err := os.ReadDir(filepath.Join(dir, "nginx"))
	require.NoError(t, err)
	require.Len(t, entries, 1, "candidate files must not be left behind")
}

func TestApplyValidationFailureKeepsActiveConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "nginx", "nginx.conf")
	require.NoError(t, os.MkdirAll(filepath.Dir(configPath), 0o755))
	require.NoError(t, os.WriteFile(configPath, []byte("old\n"), 0o644))

	validator := &stubValidator{err: errors.New("unexpected end of file")}
	reloader := &stubReloader{}
	applier := newTestApplier(t, dir, validator, reloader, false)

	_, err := applier.Apply(context.Background(), render.Artifact{Config: []byte("broken {\n"), Status: []byte("{}\n")})
	require.ErrorIs(t, err, ErrValidation)
	require.Zero(t, reloader.reloads)

	active, err := os.ReadFile(configPath)
	require.NoError(t, err)
	require.Equal(t, "old\n", string(active))

	entries, err := os.ReadDir(filepath.Dir(configPath))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestApplyDryRunWritesNothing(t *testing.T) {
	dir := t.TempDir()
	validator := &stubValidator{}
	reloader := &stubReloader{}
	applier := newTestApplier(t, dir, validator, reloader, true)

	outcome, err := applier.Apply(context.Background(), render.Artifact{Config: []byte("events {}\n"), Status: []byte("{}\n")})
	require.NoError(t, err)
	require.Equal(t, OutcomeDryRun, outcome)
	require.Len(t, validator.calls, 1)
	require.Zero(t, reloader.reloads)

	_, err = os.Stat(filepath.Join(dir, "nginx", "nginx.conf"))
	require.ErrorIs(t, err, os.ErrNotExist)
	_, err = os.Stat(filepath.Join(dir, "api-router", "status.json"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestApplyRetriesFailedReload(t *testing.T) {
	dir := t.TempDir()
	reloader := &stubReloader{failures: 1}
	applier := newTestApplier(t, dir, &stubValidator{}, reloader, false)
	artifact := render.Artifact{Config: []byte("events {}\n"), Status: []byte("{}\n")}

	outcome, err := applier.Apply(context.Background(), artifact)
	require.Error(t, err)
	require.Equal(t, OutcomeApplied, outcome)

	installed, err := os.ReadFile(filepath.Join(dir, "nginx", "nginx.conf"))
	require.NoError(t, err)
	require.Equal(t, "events {}\n", string(installed))

	outcome, err = applier.Apply(context.Background(), artifact)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, outcome, "unchanged config must still be reloaded after a failed reload")
	require.Equal(t, 2, reloader.reloads)

	outcome, err = applier.Apply(context.Background(), artifact)
	require.NoError(t, err)
	require.Equal(t, OutcomeSkipped, outcome)
	require.Equal(t, 2, reloader.reloads)
}

func TestCommandValidator(t *testing.T) {
	if _, err := exec.LookPath("test"); err != nil {
		t.Skip("test binary not available")
	}
	path := filepath.Join(t.TempDir(), "nginx.conf")
	require.NoError(t, os.WriteFile(path, []byte("events {}\n"), 0o644))

	require.NoError(t, CommandValidator{Args: SplitCommand("test -s {config}")}.Validate(context.Background(), path))

	err := CommandValidator{Args: SplitCommand("test -d {config}")}.Validate(context.Background(), path)
	require.ErrorIs(t, err, ErrValidation)
}

type stubSignaler struct {
	container string
}

func (signaler *stubSignaler) Reload(ctx context.Context, containerName string) error {
	signaler.container = containerName
	return nil
}

func TestContainerReloader(t *testing.T) {
	signaler := &stubSignaler{}
	require.NoError(t, ContainerReloader{Signaler: signaler, Container: "nginx"}.Reload(context.Background()))
	require.Equal(t, "nginx", signaler.container)

	require.Error(t, ContainerReloader{Signaler: signaler}.Reload(context.Background()))
}
