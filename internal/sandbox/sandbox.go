// Package sandbox provides a throwaway working directory in which generated
// code and tests are written and executed.
//
// A Sandbox owns its directory exclusively from Create until Destroy: a lock
// file next to the directory makes a second Create on the same path fail
// with ErrInUse, even across processes.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/harrison/codeloop/internal/filelock"
	"github.com/harrison/codeloop/internal/models"
)

var (
	// ErrNotInitialized is returned by file and execute operations before Create.
	ErrNotInitialized = errors.New("sandbox not initialized")

	// ErrInUse is returned by Create when another live sandbox owns the path.
	ErrInUse = errors.New("sandbox path in use")

	// ErrInvalidPath rejects file names that would escape the sandbox root.
	ErrInvalidPath = errors.New("path escapes sandbox root")

	// ErrEmptyCommand is returned by Execute for an empty argv.
	ErrEmptyCommand = errors.New("empty command")
)

const (
	// ExitTimeout is the exit status reported for a command killed on timeout.
	ExitTimeout = 124

	// ExitStartFailure is the exit status reported when a command cannot start.
	ExitStartFailure = 127
)

// removeAll clears a stale sandbox directory.
var removeAll = os.RemoveAll

// waitDelay bounds how long Execute waits for output pipes after the
// process group has been killed.
const waitDelay = 2 * time.Second

// Sandbox is an isolated directory with a create/use/destroy lifecycle.
// It is safe for use by one goroutine at a time; the mutex only protects
// the lifecycle state.
type Sandbox struct {
	path string

	mu      sync.Mutex
	lock    *filelock.FileLock
	created bool
}

// New returns a sandbox rooted at path. Nothing is touched on disk until
// Create is called.
func New(path string) *Sandbox {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return &Sandbox{path: path}
}

// Root returns the sandbox directory.
func (s *Sandbox) Root() string {
	return s.path
}

// Create claims the path and leaves an empty directory there. Any stale
// directory left by a crashed run is removed first. A lock taken by this
// call is given back if the directory cannot be prepared.
func (s *Sandbox) Create() (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lock == nil {
		lock := filelock.New(s.path + ".lock")
		acquired, lockErr := lock.TryLock()
		if lockErr != nil {
			return fmt.Errorf("lock sandbox: %w", lockErr)
		}
		if !acquired {
			return fmt.Errorf("%w: %s", ErrInUse, s.path)
		}
		s.lock = lock
		defer func() {
			if err != nil {
				lock.Release()
				s.lock = nil
			}
		}()
	}

	if rmErr := removeAll(s.path); rmErr != nil {
		return fmt.Errorf("remove stale sandbox %s: %w", s.path, rmErr)
	}
	if mkErr := os.MkdirAll(s.path, 0755); mkErr != nil {
		return fmt.Errorf("create sandbox %s: %w", s.path, mkErr)
	}

	s.created = true
	return nil
}

// Destroy removes the directory and releases the path. It is safe to call
// any number of times and on a sandbox that was never created.
func (s *Sandbox) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lock == nil {
		return nil
	}

	var errs []error
	if err := os.RemoveAll(s.path); err != nil {
		errs = append(errs, fmt.Errorf("remove sandbox %s: %w", s.path, err))
	}
	if err := s.lock.Release(); err != nil {
		errs = append(errs, err)
	}

	s.lock = nil
	s.created = false
	return errors.Join(errs...)
}

// resolve maps a sandbox-relative name to an absolute path.
func (s *Sandbox) resolve(name string) (string, error) {
	s.mu.Lock()
	created := s.created
	s.mu.Unlock()

	if !created {
		return "", ErrNotInitialized
	}
	if !filepath.IsLocal(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, name)
	}
	return filepath.Join(s.path, name), nil
}

// WriteFile creates or overwrites a file relative to the root.
func (s *Sandbox) WriteFile(name, content string) error {
	full, err := s.resolve(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return fmt.Errorf("create directory for %s: %w", name, err)
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// ReadFile returns the content of a file relative to the root.
func (s *Sandbox) ReadFile(name string) (string, error) {
	full, err := s.resolve(name)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	return string(data), nil
}

// Execute runs argv with the sandbox root as working directory.
//
// A command that outlives timeout has its whole process group killed and
// yields a failing result with TimedOut set; that is not an error. A command
// that cannot be started yields ExitStartFailure. Errors are returned only
// for an uninitialised sandbox, an empty argv, or cancellation of ctx, in
// which case the partial result is returned too.
func (s *Sandbox) Execute(ctx context.Context, argv []string, timeout time.Duration) (models.ExecResult, error) {
	if _, err := s.resolve("."); err != nil {
		return models.ExecResult{}, err
	}
	if len(argv) == 0 {
		return models.ExecResult{}, ErrEmptyCommand
	}

	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = s.path
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	configureProcessGroup(cmd)
	cmd.Cancel = func() error {
		killProcessGroup(cmd)
		return nil
	}
	cmd.WaitDelay = waitDelay

	runErr := cmd.Run()

	res := models.ExecResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if cmd.ProcessState != nil {
		res.ExitStatus = cmd.ProcessState.ExitCode()
		if res.ExitStatus < 0 {
			// killed by a signal
			res.ExitStatus = 1
		}
	}

	switch {
	case ctx.Err() != nil:
		if res.ExitStatus == 0 {
			res.ExitStatus = 1
		}
		return res, fmt.Errorf("command %q cancelled: %w", argv[0], ctx.Err())

	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		res.ExitStatus = ExitTimeout
		res.TimedOut = true
		res.Stderr = appendLine(res.Stderr, fmt.Sprintf("Error: command timed out after %s", timeout))
		return res, nil

	case cmd.ProcessState == nil && runErr != nil:
		res.ExitStatus = ExitStartFailure
		res.Stderr = appendLine(res.Stderr, fmt.Sprintf("Error: failed to execute %s: %v", strings.Join(argv, " "), runErr))
		return res, nil
	}

	return res, nil
}

func appendLine(s, line string) string {
	if s != "" && !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	return s + line + "\n"
}
