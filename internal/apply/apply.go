package apply

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/darkdragon/drift-api-router/internal/render"
)

// Outcome reports what a call to Apply did to the live configuration.
type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeSkipped Outcome = "skipped"
	OutcomeDryRun  Outcome = "dry-run"
)

// ErrValidation is returned when nginx rejects a candidate configuration.
var ErrValidation = errors.New("nginx config validation failed")

// Validator checks a candidate config file before it goes live.
type Validator interface {
	Validate(ctx context.Context, path string) error
}

// Reloader tells a running nginx to pick up the active config file.
type Reloader interface {
	Reload(ctx context.Context) error
}

type Options struct {
	ConfigPath string
	StatusPath string
	DryRun     bool
}

// Applier installs rendered artifacts. A config identical to the active one is
// never validated or reloaded.
type Applier struct {
	options   Options
	validator Validator
	reloader  Reloader
	log       *slog.Logger

	// reloadPending is set when the active file was replaced but nginx did not reload.
	reloadPending bool
}

func NewApplier(options Options, validator Validator, reloader Reloader, logger *slog.Logger) *Applier {
	return &Applier{options: options, validator: validator, reloader: reloader, log: logger}
}

func (applier *Applier) Apply(ctx context.Context, artifact render.Artifact) (Outcome, error) {
	if !applier.options.DryRun && applier.options.StatusPath != "" {
		if err := writeAtomic(applier.options.StatusPath, artifact.Status); err != nil {
			return "", fmt.Errorf("write status: %w", err)
		}
	}

	current, err := os.ReadFile(applier.options.ConfigPath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("read active config: %w", err)
	}
	if err == nil && bytes.Equal(current, artifact.Config) {
		if applier.reloadPending && !applier.options.DryRun {
			applier.log.Info("retrying nginx reload for installed config", "path", applier.options.ConfigPath)
			return OutcomeApplied, applier.reload(ctx)
		}
		applier.log.Debug("nginx config up-to-date", "path", applier.options.ConfigPath)
		return OutcomeSkipped, nil
	}

	candidate, err := writeCandidate(applier.options.ConfigPath, artifact.Config)
	if err != nil {
		return "", fmt.Errorf("write candidate config: %w", err)
	}
	installed := false
	defer func() {
		if !installed {
			_ = os.Remove(candidate)
		}
	}()

	if applier.validator != nil {
		if err := applier.validator.Validate(ctx, candidate); err != nil {
			applier.log.Error("candidate config rejected; active config left in place", "path", applier.options.ConfigPath, "error", err)
			if errors.Is(err, ErrValidation) {
				return "", err
			}
			return "", fmt.Errorf("%w: %w", ErrValidation, err)
		}
	}

	if applier.options.DryRun {
		applier.log.Info("config differs; dry run leaves it unapplied", "path", applier.options.ConfigPath)
		return OutcomeDryRun, nil
	}

	if err := os.Chmod(candidate, 0o644); err != nil {
		return "", fmt.Errorf("chmod candidate config: %w", err)
	}
	if err := os.Rename(candidate, applier.options.ConfigPath); err != nil {
		return "", fmt.Errorf("install config: %w", err)
	}
	installed = true
	applier.log.Info("installed new nginx config", "path", applier.options.ConfigPath, "bytes", len(artifact.Config))

	return OutcomeApplied, applier.reload(ctx)
}

func (applier *Applier) reload(ctx context.Context) error {
	if applier.reloader == nil {
		applier.reloadPending = false
		return nil
	}
	if err := applier.reloader.Reload(ctx); err != nil {
		applier.reloadPending = true
		return fmt.Errorf("reload nginx: %w", err)
	}
	applier.reloadPending = false
	return nil
}

func writeCandidate(path string, data []byte) (string, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	file, err := os.CreateTemp(dir, "."+filepath.Base(path)+".candidate-*")
	if err != nil {
		return "", err
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(file.Name())
		return "", err
	}
	if err := file.Close(); err != nil {
		os.Remove(file.Name())
		return "", err
	}
	return file.Name(), nil
}

// writeAtomic replaces path with data via a rename so readers never see a partial file.
func writeAtomic(path string, data []byte) error {
	temp, err := writeCandidate(path, data)
	if err != nil {
		return err
	}
	if err := os.Chmod(temp, 0o644); err != nil {
		os.Remove(temp)
		return err
	}
	if err := os.Rename(temp, path); err != nil {
		os.Remove(temp)
		return err
	}
	return nil
}
