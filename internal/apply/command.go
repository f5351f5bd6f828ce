package apply

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ConfigPlaceholder is replaced by the candidate path in validator arguments.
const ConfigPlaceholder = "{config}"

var (
	DefaultValidateCommand = []string{"nginx", "-t", "-c", ConfigPlaceholder}
	DefaultReloadCommand   = []string{"nginx", "-s", "reload"}
)

// SplitCommand breaks a command line on whitespace. Quoting is not supported.
func SplitCommand(line string) []string {
	return strings.Fields(line)
}

// CommandValidator runs an external command against the candidate file.
type CommandValidator struct {
	Args []string
}

func (validator CommandValidator) Validate(ctx context.Context, path string) error {
	args := validator.Args
	if len(args) == 0 {
		args = DefaultValidateCommand
	}
	expanded := make([]string, len(args))
	for i, arg := range args {
		expanded[i] = strings.ReplaceAll(arg, ConfigPlaceholder, path)
	}
	output, err := run(ctx, expanded)
	if err != nil {
		return fmt.Errorf("%w: %v: %s", ErrValidation, err, output)
	}
	return nil
}

// CommandReloader runs an external command such as "nginx -s reload".
type CommandReloader struct {
	Args []string
}

func (reloader CommandReloader) Reload(ctx context.Context) error {
	args := reloader.Args
	if len(args) == 0 {
		args = DefaultReloadCommand
	}
	output, err := run(ctx, args)
	if err != nil {
		return fmt.Errorf("%v: %s", err, output)
	}
	return nil
}

// ContainerSignaler delivers a reload signal to a named container.
type ContainerSignaler interface {
	Reload(ctx context.Context, containerName string) error
}

// ContainerReloader reloads nginx running in a container by sending it SIGHUP.
type ContainerReloader struct {
	Signaler  ContainerSignaler
	Container string
}

func (reloader ContainerReloader) Reload(ctx context.Context) error {
	if reloader.Container == "" {
		return errors.New("no nginx container configured")
	}
	return reloader.Signaler.Reload(ctx, reloader.Container)
}

func run(ctx context.Context, args []string) (string, error) {
	var output bytes.Buffer
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdout = &output
	cmd.Stderr = &output
	err := cmd.Run()
	return strings.TrimSpace(output.String()), err
}
