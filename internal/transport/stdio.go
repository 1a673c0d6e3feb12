package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mcpguard/gateway/internal/gatewayerr"
)

// shellMetacharacters are rejected in the configured command string: no
// spaces, semicolons, pipes, redirection, or backticks.
const shellMetacharacters = " ;|&<>`$(){}*?~\n"

// ValidateCommand enforces the subprocess construction rule: the command
// must be an absolute path or a bare name (resolved on PATH later by
// exec.Command) and must not contain shell metacharacters. Arguments are
// always passed as a vector and never interpreted by a shell.
func ValidateCommand(command string) error {
	if command == "" {
		return errors.New("stdio transport: empty command")
	}
	if strings.ContainsAny(command, shellMetacharacters) {
		return fmt.Errorf("stdio transport: command %q contains shell metacharacters", command)
	}
	if strings.ContainsRune(command, '/') && !filepath.IsAbs(command) {
		return fmt.Errorf("stdio transport: command %q must be an absolute path or a bare name", command)
	}
	return nil
}

// StdioTransport spawns an upstream MCP server as a child process and
// exchanges newline-delimited JSON-RPC messages over its stdin/stdout.
type StdioTransport struct {
	command string
	args    []string
	logger  *slog.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader

	healthy atomic.Bool
	exited  chan struct{}
}

// NewStdioTransport validates command and spawns it with args as a vector.
// The child's stderr is forwarded to logger at warning level, line by line.
func NewStdioTransport(ctx context.Context, command string, args []string, logger *slog.Logger) (*StdioTransport, error) {
	if err := ValidateCommand(command); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	t := &StdioTransport{
		command: command,
		args:    args,
		logger:  logger,
		exited:  make(chan struct{}),
	}

	cmd := exec.CommandContext(ctx, command, args...)
	setProcessGroup(cmd)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdio transport: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("stdio transport: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		return nil, fmt.Errorf("stdio transport: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("stdio transport: start: %w", err)
	}

	t.cmd = cmd
	t.stdin = stdin
	t.stdout = bufio.NewReaderSize(stdout, 1<<20)
	t.healthy.Store(true)

	go t.forwardStderr(stderr)
	go t.awaitExit()

	return t, nil
}

func (t *StdioTransport) forwardStderr(stderr io.ReadCloser) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		t.logger.Warn("upstream stderr", "command", t.command, "line", scanner.Text())
	}
}

func (t *StdioTransport) awaitExit() {
	_ = t.cmd.Wait()
	t.healthy.Store(false)
	close(t.exited)
}

// Send writes message terminated by a newline. Writes are serialized by the
// caller holding one request in flight at a time for stdio transports.
func (t *StdioTransport) Send(_ context.Context, message []byte) error {
	if !t.healthy.Load() {
		return gatewayerr.New(gatewayerr.ProcessExited, "child process has exited")
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if message[len(message)-1] != '\n' {
		message = append(message, '\n')
	}
	if _, err := t.stdin.Write(message); err != nil {
		return gatewayerr.New(gatewayerr.IOError, err.Error())
	}
	return nil
}

// Receive reads exactly one newline-delimited reply.
func (t *StdioTransport) Receive(_ context.Context) ([]byte, error) {
	line, err := t.stdout.ReadBytes('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, gatewayerr.New(gatewayerr.ConnectionClosed, "stdout closed")
		}
		return nil, gatewayerr.New(gatewayerr.IOError, err.Error())
	}
	return trimNewline(line), nil
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}

// IsHealthy is true while the child has not exited.
func (t *StdioTransport) IsHealthy() bool {
	return t.healthy.Load()
}

// Close kills the child process and releases its pipes.
func (t *StdioTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var errs []error
	if t.stdin != nil {
		if err := t.stdin.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if t.cmd != nil && t.cmd.Process != nil {
		if err := killProcessGroup(t.cmd); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
