// Package pid keeps a single daemon instance per host through a PID file.
package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"codeberg.org/mutker/acmonitor/internal/errors"
	"codeberg.org/mutker/acmonitor/internal/logger"
)

const FileName = "acmonitor.pid"

// File is a PID file in a directory.
type File struct {
	path string
}

// New returns the PID file in dir, or in the temp dir when dir is empty.
func New(dir string) *File {
	if dir == "" {
		dir = os.TempDir()
	}
	return &File{path: filepath.Join(dir, FileName)}
}

func (f *File) Path() string {
	return f.path
}

// Write records the current process ID. It fails with ErrAlreadyRunning
// when the file names a live process; a stale file is replaced.
func (f *File) Write() error {
	errFactory := errors.New()

	if running, pid, err := f.owner(); err != nil {
		return err
	} else if running {
		return errFactory.WithData(errors.ErrAlreadyRunning, pid)
	} else if pid != 0 {
		logger.Debug().Int("pid", pid).Str("path", f.path).Msg("Replacing stale PID file")
	}

	if err := os.WriteFile(f.path, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

// owner reads the recorded PID and probes whether it is alive.
func (f *File) owner() (bool, int, error) {
	errFactory := errors.New()

	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, errFactory.Wrap(errors.ErrInternal, err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		// unreadable content is treated as stale
		return false, 0, nil
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false, pid, nil
	}

	return process.Signal(syscall.Signal(0)) == nil, pid, nil
}

// Remove deletes the PID file.
func (f *File) Remove() error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return errors.New().Wrap(errors.ErrInternal, err)
	}
	return nil
}
