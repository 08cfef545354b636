package kernel

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// Transport is the live connection to one worker process.
type Transport interface {
	// Submit sends code for execution and returns the submission id used
	// to correlate asynchronous messages. It does not wait for results.
	Submit(code string) (string, error)

	// Poll waits up to timeout for the next message from the worker.
	// Returns ErrPollTimeout when nothing arrives in time.
	Poll(timeout time.Duration) (*Message, error)

	// Interrupt delivers an out-of-band interrupt to the worker without
	// terminating it. In-flight executions are cut short; session state
	// survives.
	Interrupt() error

	// Stop terminates the worker. Safe to call more than once.
	Stop() error
}

// Runtime starts worker processes. The exec-backed implementation is the
// default; tests substitute fakes.
type Runtime interface {
	Start(ctx context.Context) (Transport, error)
}

// ExecRuntime launches the configured worker command as a local subprocess.
type ExecRuntime struct {
	Command        string
	Args           []string
	StartupTimeout time.Duration
}

// NewExecRuntime creates a runtime for the given worker command.
func NewExecRuntime(command string, args []string, startupTimeout time.Duration) *ExecRuntime {
	return &ExecRuntime{
		Command:        command,
		Args:           args,
		StartupTimeout: startupTimeout,
	}
}

// Start launches the worker and waits for its ready frame.
func (r *ExecRuntime) Start(ctx context.Context) (Transport, error) {
	cmd := exec.Command(r.Command, r.Args...)
	// Own process group so interrupts do not reach the server
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start kernel %q: %w", r.Command, err)
	}

	p := &Process{
		cmd:   cmd,
		stdin: stdin,
		msgCh: make(chan *Message, 100),
		ready: make(chan struct{}),
		done:  make(chan struct{}),
	}
	go p.readMessages(stdout)

	startupTimeout := r.StartupTimeout
	if startupTimeout <= 0 {
		startupTimeout = 3 * time.Second
	}

	select {
	case <-p.ready:
		return p, nil
	case <-ctx.Done():
		_ = p.Stop()
		return nil, ctx.Err()
	case <-time.After(startupTimeout):
		_ = p.Stop()
		return nil, ErrStartTimeout
	}
}

// Process is the exec-backed Transport implementation.
type Process struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	msgCh chan *Message
	ready chan struct{}
	done  chan struct{}

	mu        sync.Mutex
	closed    bool
	readyOnce sync.Once
}

var _ Transport = (*Process)(nil)

// Submit writes one execute request to the worker's stdin.
func (p *Process) Submit(code string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return "", ErrClosed
	}

	id := uuid.New().String()
	data, err := json.Marshal(executeRequest{Type: "execute", ID: id, Code: code})
	if err != nil {
		return "", fmt.Errorf("failed to marshal execute request: %w", err)
	}
	data = append(data, '\n')
	if _, err := p.stdin.Write(data); err != nil {
		return "", fmt.Errorf("failed to write to kernel stdin: %w", err)
	}
	return id, nil
}

// Poll waits for the next worker message.
func (p *Process) Poll(timeout time.Duration) (*Message, error) {
	select {
	case msg, ok := <-p.msgCh:
		if !ok {
			return nil, ErrClosed
		}
		return msg, nil
	case <-time.After(timeout):
		return nil, ErrPollTimeout
	}
}

// Interrupt sends SIGINT to the worker's process group.
func (p *Process) Interrupt() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if err := syscall.Kill(-p.cmd.Process.Pid, syscall.SIGINT); err != nil {
		return fmt.Errorf("failed to interrupt kernel: %w", err)
	}
	return nil
}

// Stop kills the worker and reaps it. Idempotent.
func (p *Process) Stop() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.done)
	p.mu.Unlock()

	_ = p.stdin.Close()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	_ = p.cmd.Wait()
	return nil
}

// readMessages pumps JSONL frames from stdout into the message channel
// until the stream ends.
func (p *Process) readMessages(stdout io.Reader) {
	defer close(p.msgCh)

	scanner := bufio.NewScanner(stdout)
	const maxScanTokenSize = 1024 * 1024
	buf := make([]byte, maxScanTokenSize)
	scanner.Buffer(buf, maxScanTokenSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			// Workers may emit stray diagnostics on stdout; skip them
			continue
		}

		if msg.Type == "ready" {
			p.readyOnce.Do(func() { close(p.ready) })
			continue
		}

		// Blocking send: a full buffer stalls this reader, and the stdout
		// pipe in turn stalls the worker, so bursts never lose frames. Stop
		// unblocks a stalled send.
		select {
		case p.msgCh <- &msg:
		case <-p.done:
			return
		}
	}
}
