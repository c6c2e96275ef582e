// Package compile runs the external document compiler inside a group directory.
package compile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"hcletter/internal/logging"
)

// DefaultCommand is the compiler invocation; the rendered file name is appended.
var DefaultCommand = []string{"xelatex", "-shell-escape", "-synctex=1", "-interaction=nonstopmode"}

// Runner invokes the compiler. Its failures are reported, never escalated.
type Runner struct {
	Command []string
	Timeout time.Duration
	LogName string // combined output file inside the group dir
}

// Result describes one compiler invocation.
type Result struct {
	Command string
	Dir     string
	LogPath string
	PID     int
	Elapsed time.Duration
	Err     error
}

// NewRunner parses a command line such as "latexmk -xelatex". An empty line
// yields the default command.
func NewRunner(commandLine string, timeout time.Duration) *Runner {
	cmd := strings.Fields(commandLine)
	if len(cmd) == 0 {
		cmd = append([]string(nil), DefaultCommand...)
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Runner{Command: cmd, Timeout: timeout, LogName: "compile.log"}
}

// Run executes the compiler on file with dir as working directory and
// waits for it. The returned Result carries any failure in Err.
func (r *Runner) Run(ctx context.Context, dir, file string) Result {
	logger := logging.New("compile")
	args := append(append([]string(nil), r.Command[1:]...), file)
	res := Result{Command: strings.Join(append([]string{r.Command[0]}, args...), " "), Dir: dir}

	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	logPath := filepath.Join(dir, r.LogName)
	out, err := os.Create(logPath)
	if err != nil {
		res.Err = fmt.Errorf("create compile log: %w", err)
		return res
	}
	defer out.Close()
	res.LogPath = logPath

	cmd := exec.CommandContext(ctx, r.Command[0], args...)
	cmd.Dir = dir
	cmd.Stdout = out
	cmd.Stderr = out

	start := time.Now()
	if err := cmd.Start(); err != nil {
		res.Err = fmt.Errorf("start %s: %w", r.Command[0], err)
		logger.Warn("compiler failed to start", "dir", dir, "error", res.Err)
		return res
	}
	res.PID = cmd.Process.Pid
	logger.Debug("compiling", "command", res.Command, "dir", dir, "pid", res.PID)

	err = cmd.Wait()
	res.Elapsed = time.Since(start)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("compiler timeout after %s", r.Timeout)
	}
	if err != nil {
		res.Err = fmt.Errorf("%s: %w (see %s)", r.Command[0], err, logPath)
		logger.Warn("compile failed", "dir", dir, "error", res.Err)
		return res
	}
	logger.Info("compiled", "dir", dir, "elapsed", res.Elapsed)
	return res
}
