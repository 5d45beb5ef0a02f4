// Package relay runs a stdio MCP server as a child process, forwarding its
// traffic unchanged while recording every line to the session store.
package relay

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/iksnae/mcp-sentinel/internal"
	"github.com/iksnae/mcp-sentinel/internal/store"
)

// Exit statuses produced by the relay itself
const (
	ExitUsage       = 2
	ExitSpawnFailed = 127
)

// State is the lifecycle phase of a relay
type State int32

const (
	StateStarting State = iota
	StateRunning
	StateDraining
	StateExited
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateDraining:
		return "DRAINING"
	case StateExited:
		return "EXITED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Options configure a relay
type Options struct {
	Service string
	Command string
	Args    []string
	DataDir string
	Secrets SecretProvider

	// Stdin and Stdout connect to the controlling client
	Stdin  io.Reader
	Stdout io.Writer

	Logger *internal.Logger
}

// Relay forwards one wrapped process
type Relay struct {
	opts    Options
	state   atomic.Int32
	session atomic.Pointer[store.SessionInfo]
	logger  *internal.Logger
	now     func() time.Time
}

// New creates a relay
func New(opts Options) (*Relay, error) {
	if opts.Service == "" {
		return nil, fmt.Errorf("service name is required")
	}
	if opts.Command == "" {
		return nil, fmt.Errorf("command is required")
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	runID := uuid.NewString()[:8]
	return &Relay{
		opts:   opts,
		logger: opts.Logger.With("relay " + opts.Service + " " + runID),
		now:    time.Now,
	}, nil
}

// State returns the current lifecycle phase
func (r *Relay) State() State {
	return State(r.state.Load())
}

// Session returns the session being recorded, or false before it exists
func (r *Relay) Session() (store.SessionInfo, bool) {
	if s := r.session.Load(); s != nil {
		return *s, true
	}
	return store.SessionInfo{}, false
}

func (r *Relay) setState(s State) {
	r.state.Store(int32(s))
	r.logger.Debugf("state %s", s)
}

// Run spawns the child and forwards until its output streams close, then
// returns its exit status. The session directory is only created once the
// child has started.
func (r *Relay) Run(ctx context.Context) (int, error) {
	r.setState(StateStarting)
	started := r.now()

	cmd := exec.CommandContext(ctx, r.opts.Command, r.opts.Args...)
	cmd.Env = r.environment()

	childIn, err := cmd.StdinPipe()
	if err != nil {
		return r.spawnFailed(err)
	}
	childOut, err := cmd.StdoutPipe()
	if err != nil {
		return r.spawnFailed(err)
	}
	childErr, err := cmd.StderrPipe()
	if err != nil {
		return r.spawnFailed(err)
	}
	if err := cmd.Start(); err != nil {
		return r.spawnFailed(err)
	}
	r.logger.Infof("Started %s %v (pid %d)", r.opts.Command, r.opts.Args, cmd.Process.Pid)

	w, err := store.Create(r.opts.DataDir, r.opts.Service, started)
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		r.setState(StateExited)
		return 1, err
	}
	defer func() {
		if err := w.Close(); err != nil {
			r.logger.Errorf("Closing session: %v", err)
		}
	}()
	info := w.Session()
	r.session.Store(&info)
	r.logger.Infof("Session %s", info.Dir)
	r.setState(StateRunning)

	go func() {
		r.logger.Debugf("request loop started")
		n, err := pump(r.opts.Stdin, childIn, store.DirectionRequest, w, r.logger)
		if err != nil {
			r.logger.Warnf("request loop: %v", err)
		}
		r.logger.Debugf("request loop stopped after %d lines", n)
		_ = childIn.Close()
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.logger.Debugf("response loop started")
		n, err := pump(childOut, r.opts.Stdout, store.DirectionResponse, w, r.logger)
		if err != nil {
			r.logger.Warnf("response loop: %v", err)
		}
		r.logger.Debugf("response loop stopped after %d lines", n)
	}()
	go func() {
		defer wg.Done()
		n := logLines(childErr, r.logger.With("stderr"))
		r.logger.Debugf("diagnostic loop stopped after %d lines", n)
	}()

	wg.Wait()
	r.setState(StateDraining)
	waitErr := cmd.Wait()
	code := exitStatus(cmd.ProcessState, waitErr)
	r.logger.Infof("Process exited with code %d", code)
	r.setState(StateExited)
	return code, nil
}

func (r *Relay) spawnFailed(err error) (int, error) {
	r.setState(StateExited)
	r.logger.Errorf("Failed to start %s: %v", r.opts.Command, err)
	return ExitSpawnFailed, &internal.SpawnError{Command: r.opts.Command, Err: err}
}

func (r *Relay) environment() []string {
	base := os.Environ()
	if r.opts.Secrets == nil {
		return base
	}
	extra, err := r.opts.Secrets.ServiceEnv(r.opts.Service)
	if err != nil {
		r.logger.Warnf("Secrets unavailable: %v", err)
		return base
	}
	for k := range extra {
		r.logger.Debugf("Injecting %s", k)
	}
	return mergeEnv(base, extra)
}

// exitStatus maps a finished process to a shell-style exit status
func exitStatus(state *os.ProcessState, waitErr error) int {
	if state == nil {
		if waitErr != nil {
			return 1
		}
		return 0
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	if code := state.ExitCode(); code >= 0 {
		return code
	}
	return 1
}
