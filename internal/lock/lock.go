// Package lock keeps two pipeline runs from driving the same state file.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/emrpipe/emrpipe/internal/config"
)

const DefaultPath = "~/.emrpipe/emrpipe.lock"

// ErrHeld is returned when a live process owns the lock.
var ErrHeld = errors.New("lock held by another process")

// Lock is a held PID lock file.
type Lock struct {
	path string
}

// Acquire creates the lock file with the current PID. A file left behind
// by a process that is no longer running is replaced.
func Acquire(path string) (*Lock, error) {
	if path == "" {
		path = config.ExpandHome(DefaultPath)
	}

	if pid, running, err := Holder(path); err == nil && running && pid != os.Getpid() {
		return nil, fmt.Errorf("%w: another emrpipe run is active (PID %d)", ErrHeld, pid)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return nil, fmt.Errorf("writing lock: %w", err)
	}
	return &Lock{path: path}, nil
}

// Release removes the lock file.
func (l *Lock) Release() error {
	err := os.Remove(l.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Holder reports the PID recorded in the lock file and whether that
// process is running. A missing or unreadable file has PID 0.
func Holder(path string) (int, bool, error) {
	if path == "" {
		path = config.ExpandHome(DefaultPath)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false, nil
	}
	return pid, isProcessRunning(pid), nil
}

func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
