package testexec

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"time"
)

// Command is one subprocess invocation.
type Command struct {
	Dir  string
	Name string
	Args []string
	// Env is appended to the allowlisted parent environment.
	Env []string
}

// CommandResult is the combined output and exit status of a finished command.
type CommandResult struct {
	Output   []byte
	ExitCode int
}

// CommandRunner executes subprocesses. A non-zero exit is a result, not an error; errors mean the
// command could not run or was killed.
type CommandRunner interface {
	Run(ctx context.Context, cmd Command) (CommandResult, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	// OutputLimit caps the captured output; the tail is kept.
	OutputLimit int
}

var inheritedEnv = []string{
	"PATH", "HOME", "USER", "TMPDIR", "LANG", "LC_ALL", "SHELL",
	"NODE_OPTIONS", "NPM_CONFIG_CACHE", "PLAYWRIGHT_BROWSERS_PATH", "CI",
}

// Run executes cmd with a minimal environment.
func (r ExecRunner) Run(ctx context.Context, cmd Command) (CommandResult, error) {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...) // #nosec G204 - commands come from detection or repository config
	c.Dir = cmd.Dir
	c.Env = append(baseEnv(), cmd.Env...)
	c.WaitDelay = 5 * time.Second

	out := &tailBuffer{limit: r.OutputLimit}
	c.Stdout = out
	c.Stderr = out

	err := c.Run()
	res := CommandResult{Output: out.Bytes()}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return res, nil
	case ctx.Err() != nil:
		return res, context.Cause(ctx)
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	default:
		return res, err
	}
}

func baseEnv() []string {
	env := []string{"GIT_TERMINAL_PROMPT=0", "CI=true", "FORCE_COLOR=0"}
	for _, k := range inheritedEnv {
		if v, ok := os.LookupEnv(k); ok {
			env = append(env, k+"="+v)
		}
	}
	return env
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	t.buf.Write(p)
	if t.limit > 0 && t.buf.Len() > 2*t.limit {
		t.trim()
	}
	return n, nil
}

func (t *tailBuffer) trim() {
	if t.limit <= 0 || t.buf.Len() <= t.limit {
		return
	}
	tail := append([]byte(nil), t.buf.Bytes()[t.buf.Len()-t.limit:]...)
	t.buf.Reset()
	t.buf.Write(tail)
}

func (t *tailBuffer) Bytes() []byte {
	t.trim()
	return t.buf.Bytes()
}
