// Package supervisor runs the API backend and the UI frontend side by side.
//
// The backend is started first and given a grace period to come up. If it
// dies during that window the frontend is never started. Otherwise the
// frontend runs until it exits or the context is cancelled, after which the
// backend and then the frontend are terminated and waited for.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/dotcommander/multiagent/internal/errs"
	"github.com/dotcommander/multiagent/internal/logging"
)

// RootEnv names the variable children receive the project root in.
const RootEnv = "MULTIAGENT_ROOT"

// ErrBackendExited is returned when the backend dies during the grace period.
var ErrBackendExited = errors.New("backend exited during startup")

// State is the lifecycle stage of a Supervisor.
type State int32

// Lifecycle stages.
const (
	StateInitial State = iota
	StateStarting
	StateRunning
	StateShuttingDown
	StateTerminated
	StateFailed
)

var stateNames = map[State]string{
	StateInitial:      "initial",
	StateStarting:     "starting",
	StateRunning:      "running",
	StateShuttingDown: "shutting_down",
	StateTerminated:   "terminated",
	StateFailed:       "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Config describes the two children and the supervision timings.
type Config struct {
	Backend         []string
	Frontend        []string
	GracePeriod     time.Duration
	ShutdownTimeout time.Duration
	ProjectRoot     string
	SearchPathEnv   string

	// BackendOutput receives the backend's stdout and stderr. Defaults to
	// os.Stderr.
	BackendOutput io.Writer

	// Frontend stdio. Default to the supervisor's own.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

type child struct {
	name     string
	cmd      *exec.Cmd
	done     chan struct{}
	err      error
	stopping atomic.Bool
}

// Exited reports whether the child has been reaped.
func (c *child) exited() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Supervisor owns the child process handles.
type Supervisor struct {
	cfg Config
	log zerolog.Logger

	mu       sync.Mutex
	state    State
	backend  *child
	frontend *child
}

// New creates a supervisor.
func New(cfg Config) *Supervisor {
	if cfg.SearchPathEnv == "" {
		cfg.SearchPathEnv = "PATH"
	}
	if cfg.BackendOutput == nil {
		cfg.BackendOutput = os.Stderr
	}
	if cfg.Stdin == nil {
		cfg.Stdin = os.Stdin
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}
	return &Supervisor{
		cfg: cfg,
		log: logging.For("supervisor"),
	}
}

// State returns the current lifecycle stage.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.log.Debug().Stringer("state", state).Msg("State changed")
}

// Run starts both children and blocks until they have been shut down.
// It returns ErrBackendExited (wrapped) when the backend does not survive
// the grace period.
func (s *Supervisor) Run(ctx context.Context) error {
	s.setState(StateStarting)

	s.log.Info().Strs("cmd", s.cfg.Backend).Msg("Starting backend service")
	backend, err := s.start("backend", s.cfg.Backend, nil, s.cfg.BackendOutput, s.cfg.BackendOutput)
	if err != nil {
		s.setState(StateFailed)
		return errs.Error{Err: err, Reason: "Could not start the backend service."}
	}
	s.mu.Lock()
	s.backend = backend
	s.mu.Unlock()

	grace := time.NewTimer(s.cfg.GracePeriod)
	defer grace.Stop()

	select {
	case <-backend.done:
		s.log.Error().Err(backend.err).Msg("Backend exited during startup")
		s.setState(StateFailed)
		if backend.err != nil {
			return fmt.Errorf("%w: %w", ErrBackendExited, backend.err)
		}
		return ErrBackendExited
	case <-ctx.Done():
		s.log.Info().Msg("Interrupted during startup")
		s.shutdown()
		return nil
	case <-grace.C:
	}

	s.log.Info().Strs("cmd", s.cfg.Frontend).Msg("Starting frontend service")
	frontend, err := s.start("frontend", s.cfg.Frontend, s.cfg.Stdin, s.cfg.Stdout, s.cfg.Stderr)
	if err != nil {
		s.shutdown()
		return errs.Error{Err: err, Reason: "Could not start the frontend service."}
	}
	s.mu.Lock()
	s.frontend = frontend
	s.state = StateRunning
	s.mu.Unlock()

	select {
	case <-frontend.done:
		s.log.Info().Msg("Frontend exited")
	case <-ctx.Done():
		s.log.Info().Msg("Shutting down")
	}

	s.shutdown()
	return nil
}

func (s *Supervisor) start(name string, argv []string, stdin io.Reader, stdout, stderr io.Writer) (*child, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return nil, fmt.Errorf("%s: empty command", name)
	}

	cmd := exec.Command(argv[0], argv[1:]...) //nolint:gosec
	cmd.Dir = s.cfg.ProjectRoot
	cmd.Env = ChildEnv(os.Environ(), s.cfg.ProjectRoot, s.cfg.SearchPathEnv)
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		s.log.Error().Err(err).Msgf("Problem with %s service", name)
		return nil, fmt.Errorf("start %s: %w", name, err)
	}

	c := &child{name: name, cmd: cmd, done: make(chan struct{})}
	log := s.log.With().Str("child", name).Int("pid", cmd.Process.Pid).Logger()
	log.Debug().Msg("Started")

	go func() {
		c.err = cmd.Wait()
		switch {
		case c.err != nil && !c.stopping.Load():
			log.Error().Err(c.err).Msgf("Problem with %s service", name)
		default:
			log.Debug().Err(c.err).Msg("Exited")
		}
		close(c.done)
	}()

	return c, nil
}

// shutdown terminates the backend first, then the frontend, waiting for each.
func (s *Supervisor) shutdown() {
	s.mu.Lock()
	s.state = StateShuttingDown
	backend, frontend := s.backend, s.frontend
	s.mu.Unlock()

	s.stop(backend)
	s.stop(frontend)

	s.setState(StateTerminated)
	s.log.Info().Msg("All services stopped")
}

func (s *Supervisor) stop(c *child) {
	if c == nil || c.exited() {
		return
	}
	c.stopping.Store(true)

	log := s.log.With().Str("child", c.name).Logger()
	log.Info().Msg("Terminating")
	if err := c.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		log.Warn().Err(err).Msg("Could not signal, killing")
		_ = c.cmd.Process.Kill()
	}

	timer := time.NewTimer(s.cfg.ShutdownTimeout)
	defer timer.Stop()
	select {
	case <-c.done:
	case <-timer.C:
		log.Warn().Dur("timeout", s.cfg.ShutdownTimeout).Msg("Did not stop in time, killing")
		_ = c.cmd.Process.Kill()
		<-c.done
	}
}

// ChildEnv returns base with root prepended to the pathVar search path and
// RootEnv set to root.
func ChildEnv(base []string, root, pathVar string) []string {
	if root == "" {
		return base
	}
	env := make([]string, 0, len(base)+2)
	var current string
	for _, kv := range base {
		key, value, _ := strings.Cut(kv, "=")
		switch key {
		case pathVar:
			current = value
			continue
		case RootEnv:
			continue
		}
		env = append(env, kv)
	}

	search := root
	if current != "" {
		search += string(os.PathListSeparator) + current
	}
	return append(env, pathVar+"="+search, RootEnv+"="+root)
}
