package platform

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	ps "github.com/mitchellh/go-ps"

	"github.com/KirshWasHere/DowngradeRoblox/internal/logger"
)

// ErrUnsupportedOS indicates the current OS cannot perform the operation.
var ErrUnsupportedOS = errors.New("unsupported operating system")

// URLSchemes are the protocols that start the player from a browser.
var URLSchemes = []string{"roblox", "roblox-player"}

// System performs process and shell-integration operations on the running OS.
type System struct {
	processes func() ([]ps.Process, error)
	kill      func(pid int) error
}

// New returns a System bound to the real process table.
func New() *System {
	return &System{
		processes: ps.Processes,
		kill:      killProcess,
	}
}

// StopKnownProcesses kills every process whose executable matches one of names.
// Missing processes are not an error; individual kill failures are joined and returned.
func (s *System) StopKnownProcesses(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}

	processList, err := s.processes()
	if err != nil {
		return fmt.Errorf("list processes: %w", err)
	}

	thisProcessID := os.Getpid()

	var errs []error

	for _, process := range processList {
		if err = ctx.Err(); err != nil {
			return err
		}

		if process.Pid() == thisProcessID || !matchesAny(process.Executable(), names) {
			continue
		}

		if err = s.kill(process.Pid()); err != nil {
			errs = append(errs, fmt.Errorf("kill %s (%d): %w", process.Executable(), process.Pid(), err))

			continue
		}

		logger.InfoKV(ctx, "Stopped process", "name", process.Executable(), "pid", process.Pid())
	}

	return errors.Join(errs...)
}

// RegisterLaunchHandler points the roblox URL schemes at exePath.
func (s *System) RegisterLaunchHandler(ctx context.Context, exePath string) error {
	if exePath == "" {
		return fmt.Errorf("executable path is empty: %w", fs.ErrInvalid)
	}

	if _, err := os.Stat(exePath); err != nil {
		return fmt.Errorf("launch handler target: %w", err)
	}

	if err := registerURLSchemes(exePath); err != nil {
		return err
	}

	logger.InfoKV(ctx, "Registered launch handler", "schemes", URLSchemes, "executable", exePath)

	return nil
}

// UnregisterLaunchHandler removes the roblox URL scheme registrations.
func (s *System) UnregisterLaunchHandler(ctx context.Context) error {
	if err := unregisterURLSchemes(); err != nil {
		return err
	}

	logger.InfoKV(ctx, "Removed launch handler", "schemes", URLSchemes)

	return nil
}

// Launch starts exePath detached from this process, in its own directory.
func Launch(ctx context.Context, exePath string, args ...string) error {
	cmd := exec.Command(exePath, args...) //nolint:gosec,noctx // The client must outlive this process.
	cmd.Dir = filepath.Dir(exePath)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", exePath, err)
	}

	logger.InfoKV(ctx, "Launched", "executable", exePath, "pid", cmd.Process.Pid)

	return cmd.Process.Release()
}

// IsLocked reports whether err means a file is held open by another process.
func IsLocked(err error) bool {
	if err == nil {
		return false
	}

	return errors.Is(err, fs.ErrPermission) || isLockErrno(err)
}

func matchesAny(executable string, names []string) bool {
	for _, name := range names {
		if strings.EqualFold(executable, name) {
			return true
		}
	}

	return false
}

func killProcess(pid int) error {
	runningProcess, err := os.FindProcess(pid)
	if err != nil {
		return err
	}

	return runningProcess.Kill()
}
