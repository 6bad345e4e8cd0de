package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/lmevald/lmevald/internal/cmdline"
)

var (
	ErrSpawn        = errors.New("spawning process")
	ErrEmptyCommand = errors.New("empty command line")
)

// waitDelay bounds how long Wait keeps copying output after the process
// exited, e.g. when a grandchild inherited the pipes.
const waitDelay = 5 * time.Second

// Command is one invocation of the wrapped tool.
type Command struct {
	Line string   // shell-quoted command line
	Env  []string // full environment of the process
}

// Launcher starts processes.
type Launcher interface {
	Launch(ctx context.Context, cmd Command) (Process, error)
}

// Process is a running or finished subprocess. None of the methods block on
// the process itself.
type Process interface {
	PID() int
	Started() time.Time
	// Poll returns exited=false while running. Processes killed by a
	// signal report the negated signal number as exit code.
	Poll() (exited bool, code int)
	// Drain returns output lines completed since the previous Drain.
	Drain() (stdout, stderr []string)
	// Terminate sends SIGTERM. It returns false if the process had already
	// exited.
	Terminate() (bool, error)
	Kill() error
	Done() <-chan struct{}
}

// ExecLauncher launches processes with os/exec.
type ExecLauncher struct{}

func NewExecLauncher() ExecLauncher {
	return ExecLauncher{}
}

// Launch splits the command line, starts the process and returns
// immediately. The process outlives ctx, which is used for logging only.
func (ExecLauncher) Launch(ctx context.Context, c Command) (Process, error) {
	argv, err := cmdline.Split(c.Line)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing command line: %w", ErrSpawn, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrSpawn, ErrEmptyCommand)
	}

	p := &execProcess{
		cmd:  exec.Command(argv[0], argv[1:]...),
		done: make(chan struct{}),
	}
	p.cmd.Env = c.Env
	p.cmd.Stdout = &p.stdout
	p.cmd.Stderr = &p.stderr
	p.cmd.WaitDelay = waitDelay

	p.started = time.Now().UTC()
	if err := p.cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSpawn, err)
	}
	slog.DebugContext(ctx, "process started", "pid", p.cmd.Process.Pid, "path", p.cmd.Path)

	go p.wait()
	return p, nil
}

type execProcess struct {
	cmd     *exec.Cmd
	started time.Time
	stdout  LineBuffer
	stderr  LineBuffer
	done    chan struct{}

	mx    sync.Mutex
	state *os.ProcessState
	err   error
}

func (p *execProcess) wait() {
	err := p.cmd.Wait()
	p.stdout.Flush()
	p.stderr.Flush()

	p.mx.Lock()
	p.state = p.cmd.ProcessState
	p.err = err
	p.mx.Unlock()
	close(p.done)
}

func (p *execProcess) PID() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Started() time.Time {
	return p.started
}

func (p *execProcess) Done() <-chan struct{} {
	return p.done
}

func (p *execProcess) Poll() (bool, int) {
	select {
	case <-p.done:
	default:
		return false, 0
	}
	p.mx.Lock()
	defer p.mx.Unlock()
	return true, exitCode(p.state)
}

func (p *execProcess) Drain() ([]string, []string) {
	return p.stdout.Drain(), p.stderr.Drain()
}

func (p *execProcess) Terminate() (bool, error) {
	select {
	case <-p.done:
		return false, nil
	default:
	}
	err := p.cmd.Process.Signal(syscall.SIGTERM)
	if errors.Is(err, os.ErrProcessDone) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("terminating process %d: %w", p.PID(), err)
	}
	return true, nil
}

func (p *execProcess) Kill() error {
	err := p.cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func exitCode(state *os.ProcessState) int {
	if state == nil {
		return -1
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return -int(ws.Signal())
	}
	return state.ExitCode()
}
