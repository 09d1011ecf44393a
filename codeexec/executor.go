package codeexec

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/sweetpotato0/ai-groupchat/config"
	"github.com/sweetpotato0/ai-groupchat/message"
	"github.com/sweetpotato0/ai-groupchat/pkg/logging"
)

const timeoutExitCode = 124

// Result is the outcome of one block.
type Result struct {
	ExitCode int
	Output   string
	Duration time.Duration
}

// Executor runs code blocks from recent messages inside a work directory,
// either directly on the host or in a throwaway docker container.
type Executor struct {
	workDir   string
	useDocker bool
	image     string
	timeout   time.Duration
	lastN     int
	python    string
	shell     string
	logger    *slog.Logger
}

// Option configures an Executor
type Option func(*Executor)

// WithLogger sets the executor logger
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithInterpreters overrides the host python and shell binaries.
func WithInterpreters(python, shell string) Option {
	return func(e *Executor) {
		if python != "" {
			e.python = python
		}
		if shell != "" {
			e.shell = shell
		}
	}
}

// New creates an executor and its work directory.
func New(cfg config.ExecutionConfig, opts ...Option) (*Executor, error) {
	if err := config.ValidateExecutionConfig(cfg); err != nil {
		return nil, err
	}
	dir, err := filepath.Abs(cfg.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("codeexec: resolve work dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("codeexec: create work dir: %w", err)
	}

	e := &Executor{
		workDir:   dir,
		useDocker: cfg.UseDocker,
		image:     cfg.Image,
		timeout:   cfg.Timeout,
		lastN:     cfg.LastNMessages,
		python:    "python3",
		shell:     "sh",
		logger:    logging.WithComponent("codeexec"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// WorkDir returns the absolute work directory.
func (e *Executor) WorkDir() string {
	return e.workDir
}

// ExecuteLatest runs the code blocks of the newest message, among the last
// N, that contains any. found is false when there is nothing to run.
func (e *Executor) ExecuteLatest(ctx context.Context, history []*message.Message) (string, bool, error) {
	recent := message.Last(history, e.lastN)
	for i := len(recent) - 1; i >= 0; i-- {
		if recent[i] == nil {
			continue
		}
		blocks := Extract(recent[i].Content)
		if len(blocks) == 0 {
			continue
		}
		out, err := e.ExecuteBlocks(ctx, blocks)
		return out, true, err
	}
	return "", false, nil
}

// ExecuteBlocks runs blocks in order and stops at the first failure. The
// returned text reports the exit code and the combined output.
func (e *Executor) ExecuteBlocks(ctx context.Context, blocks []Block) (string, error) {
	var logs strings.Builder
	exitCode := 0
	for _, b := range blocks {
		if b.Lang == LangUnknown {
			exitCode = 1
			fmt.Fprintf(&logs, "unknown language %s", b.Tag)
			break
		}
		res, err := e.Run(ctx, b)
		if err != nil {
			return "", err
		}
		logs.WriteString(res.Output)
		exitCode = res.ExitCode
		if exitCode != 0 {
			break
		}
	}
	return FormatReply(exitCode, logs.String()), nil
}

// FormatReply renders an execution result the way the runner reports it.
func FormatReply(exitCode int, output string) string {
	status := "execution succeeded"
	if exitCode != 0 {
		status = "execution failed"
	}
	return fmt.Sprintf("exitcode: %d (%s)\nCode output: %s", exitCode, status, output)
}

// Run writes block into the work directory and executes it.
func (e *Executor) Run(ctx context.Context, b Block) (*Result, error) {
	file, err := e.writeFile(b)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	name, args := e.command(b.Lang, file)
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = e.workDir
	cmd.WaitDelay = time.Second
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	err = cmd.Run()
	res := &Result{Output: out.String(), Duration: time.Since(start)}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.ExitCode = timeoutExitCode
		res.Output += "\nTimeout"
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		return nil, fmt.Errorf("codeexec: start %s: %w", name, err)
	}

	e.logger.DebugContext(ctx, "code block executed",
		"lang", string(b.Lang),
		"file", file,
		"docker", e.useDocker,
		"exit_code", res.ExitCode,
		"duration", res.Duration,
	)
	return res, nil
}

func (e *Executor) command(lang Language, file string) (string, []string) {
	interp := e.python
	if lang == LangShell {
		interp = e.shell
	}
	if !e.useDocker {
		return interp, []string{file}
	}
	if lang == LangPython {
		interp = "python3"
	} else {
		interp = "sh"
	}
	return "docker", []string{
		"run", "--rm",
		"-v", e.workDir + ":/workspace",
		"-w", "/workspace",
		e.image,
		interp, file,
	}
}

func (e *Executor) writeFile(b Block) (string, error) {
	ext := ".py"
	if b.Lang == LangShell {
		ext = ".sh"
	}
	sum := sha1.Sum([]byte(b.Code))
	name := "tmp_code_" + hex.EncodeToString(sum[:])[:12] + ext
	if err := os.WriteFile(filepath.Join(e.workDir, name), []byte(b.Code+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("codeexec: write %s: %w", name, err)
	}
	return name, nil
}
