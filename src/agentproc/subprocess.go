package agentproc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"

	"github.com/spf13/afero"

	"github.com/notevault/vaultbridge/src/agentwire"
)

// maxEventLine bounds one stream line; tool results can carry whole files.
const maxEventLine = 4 * 1024 * 1024

// CLIClient runs the configured agent binary once per turn. The request is
// written as JSON on stdin; events are read line by line from stdout.
type CLIClient struct {
	Command string
	Args    []string
	Fs      afero.Fs
	Logger  *slog.Logger
}

var _ Client = (*CLIClient)(nil)

func NewCLIClient(command string, args []string, logger *slog.Logger) *CLIClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &CLIClient{
		Command: command,
		Args:    args,
		Fs:      afero.NewOsFs(),
		Logger:  logger,
	}
}

func (c *CLIClient) Invoke(ctx context.Context, req InvokeRequest) (agentwire.Stream, error) {
	if req.WorkingDirectory != "" {
		ok, err := afero.DirExists(c.Fs, req.WorkingDirectory)
		if err != nil {
			return nil, fmt.Errorf("failed to check working directory: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("working directory does not exist: %s", req.WorkingDirectory)
		}
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode agent request: %w", err)
	}

	cmd := exec.CommandContext(ctx, c.Command, c.Args...)
	cmd.Dir = req.WorkingDirectory

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open agent stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open agent stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open agent stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to spawn agent process: %w", err)
	}

	c.Logger.Debug("agent process started", "command", c.Command, "pid", cmd.Process.Pid, "messages", len(req.Messages))

	go drainStderr(stderr, c.Logger)

	go func() {
		defer stdin.Close()
		if _, err := stdin.Write(payload); err != nil {
			c.Logger.Warn("failed to write agent request", "error", err)
		}
	}()

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventLine)

	return &processStream{
		cmd:     cmd,
		scanner: scanner,
		logger:  c.Logger,
	}, nil
}

func drainStderr(r io.Reader, logger *slog.Logger) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventLine)
	for scanner.Scan() {
		logger.Debug("agent stderr", "line", scanner.Text())
	}
}

// processStream adapts the subprocess stdout to an agentwire.Stream.
type processStream struct {
	cmd     *exec.Cmd
	scanner *bufio.Scanner
	logger  *slog.Logger

	waitOnce sync.Once
	waitErr  error
}

func (s *processStream) Read() (*agentwire.Event, error) {
	for s.scanner.Scan() {
		ev := agentwire.DecodeEvent(s.scanner.Bytes())
		if ev.Type == agentwire.EventUnknown {
			continue
		}
		return &ev, nil
	}
	if err := s.scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read agent output: %w", err)
	}

	// Stream drained; surface a non-zero exit as the stream error so the
	// session treats the turn as failed.
	if err := s.wait(); err != nil {
		return nil, fmt.Errorf("agent process failed: %w", err)
	}
	return nil, io.EOF
}

func (s *processStream) Close() error {
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	s.wait()
	return nil
}

func (s *processStream) wait() error {
	s.waitOnce.Do(func() {
		s.waitErr = s.cmd.Wait()
	})
	return s.waitErr
}
