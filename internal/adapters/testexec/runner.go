// Package testexec clones a repository at a commit, runs its Playwright suite in a locked scratch
// workspace and turns the report into failures the healer can work on.
package testexec

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/target/healwright/internal/domain/model"
)

// ErrExecution marks job-level failures: clone, install or a command that could not run at all.
// Failing tests are not errors.
var ErrExecution = errors.New("test execution failed")

// reportFileName is where the JSON reporter is told to write.
const reportFileName = "healwright-report.json"

// DefaultReportGlobs locate a Playwright JSON report when the repository writes it elsewhere.
var DefaultReportGlobs = []string{reportFileName, "playwright-report/*.json", "test-results/**/*.json", "results.json"}

// Options configures the Runner.
type Options struct {
	// BaseDir holds one workspace per running job.
	BaseDir        string
	InstallTimeout time.Duration
	TestTimeout    time.Duration
	// OutputLimit caps captured command output.
	OutputLimit int
	Commands    CommandRunner
	Logger      *slog.Logger
}

// Runner executes the tests of a repository at a commit.
type Runner struct {
	baseDir        string
	installTimeout time.Duration
	testTimeout    time.Duration
	commands       CommandRunner
	logger         *slog.Logger
}

// NewRunner constructs a Runner.
func NewRunner(opts Options) *Runner {
	r := &Runner{
		baseDir:        opts.BaseDir,
		installTimeout: opts.InstallTimeout,
		testTimeout:    opts.TestTimeout,
		commands:       opts.Commands,
		logger:         opts.Logger,
	}
	if r.baseDir == "" {
		r.baseDir = filepath.Join(os.TempDir(), "healwright")
	}
	if r.installTimeout <= 0 {
		r.installTimeout = 10 * time.Minute
	}
	if r.testTimeout <= 0 {
		r.testTimeout = 15 * time.Minute
	}
	if r.commands == nil {
		limit := opts.OutputLimit
		if limit <= 0 {
			limit = 64 * 1024
		}
		r.commands = ExecRunner{OutputLimit: limit}
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	r.logger = r.logger.With("component", "testexec")
	return r
}

// Cleaner returns a workspace cleaner for this runner's base directory.
func (r *Runner) Cleaner() Cleaner {
	return Cleaner{BaseDir: r.baseDir}
}

// Run clones, installs and tests. The workspace is removed on every path.
func (r *Runner) Run(ctx context.Context, req model.RunRequest) (_ *model.RunResult, err error) {
	if strings.TrimSpace(req.RepositoryURL) == "" || strings.TrimSpace(req.CommitRef) == "" {
		return nil, fmt.Errorf("%w: repository url and commit ref are required", ErrExecution)
	}
	logger := r.logger.With("job_id", req.JobID, "commit_ref", req.CommitRef)
	start := time.Now()

	ws, err := newWorkspace(r.baseDir, req.JobID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExecution, err)
	}
	defer func() {
		if rerr := ws.release(); rerr != nil {
			logger.WarnContext(ctx, "workspace cleanup failed", "dir", ws.root, "error", rerr)
		}
	}()

	if err := r.clone(ctx, ws.repoDir(), req); err != nil {
		return nil, err
	}

	cfg, err := loadRepoConfig(ws.repoDir())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExecution, err)
	}
	workDir := filepath.Join(ws.repoDir(), cfg.WorkingDir)
	reportPath := filepath.Join(ws.root, reportFileName)

	if err := r.install(ctx, logger, workDir, cfg); err != nil {
		return nil, err
	}

	testCtx, cancel := context.WithTimeoutCause(ctx, r.testTimeout, fmt.Errorf("tests exceeded %s", r.testTimeout))
	defer cancel()
	cmd := r.testCommand(workDir, cfg, req.TestCommand)
	cmd.Env = append(cmd.Env, "PLAYWRIGHT_JSON_OUTPUT_NAME="+reportPath)
	logger.InfoContext(ctx, "running tests", "command", cmd.Name, "args", cmd.Args)
	res, err := r.commands.Run(testCtx, cmd)
	if err != nil {
		return nil, fmt.Errorf("%w: run tests: %w", ErrExecution, err)
	}

	result := r.buildResult(ctx, logger, res, ws.root, workDir, cfg.ReportGlobs)
	result.Duration = time.Since(start)
	logger.InfoContext(ctx, "tests finished",
		"exit_code", res.ExitCode, "passed", result.Passed, "failed", result.Failed,
		"skipped", result.Skipped, "duration_ms", result.Duration.Milliseconds())
	return result, nil
}

// clone fetches exactly one commit. The token travels in an extra header so it never appears in
// the remote URL, git config on disk or error messages.
func (r *Runner) clone(ctx context.Context, dir string, req model.RunRequest) error {
	git := func(args ...string) error {
		full := append([]string{"-c", "core.hooksPath=/dev/null"}, args...)
		res, err := r.commands.Run(ctx, Command{Dir: dir, Name: "git", Args: full})
		if err != nil {
			return fmt.Errorf("%w: git %s: %s", ErrExecution, args[0], redact(err.Error(), req.AuthToken))
		}
		if res.ExitCode != 0 {
			return fmt.Errorf("%w: git %s exited %d: %s", ErrExecution, args[0], res.ExitCode,
				redact(outputTail(res.Output, 512), req.AuthToken))
		}
		return nil
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("%w: create repo dir: %w", ErrExecution, err)
	}
	if err := git("init", "--quiet"); err != nil {
		return err
	}
	if err := git("remote", "add", "origin", cloneURL(req.RepositoryURL)); err != nil {
		return err
	}
	fetch := []string{"fetch", "--quiet", "--depth", "1", "origin", req.CommitRef}
	if req.AuthToken != "" {
		fetch = append([]string{"-c", "http.extraHeader=Authorization: Basic " + basicAuth(req.AuthToken)}, fetch...)
	}
	if err := git(fetch...); err != nil {
		return err
	}
	return git("checkout", "--quiet", "FETCH_HEAD")
}

func (r *Runner) install(ctx context.Context, logger *slog.Logger, dir string, cfg RepoConfig) error {
	var cmd Command
	switch {
	case cfg.InstallCommand != "":
		cmd = shellCommand(dir, cfg.InstallCommand)
	case fileExists(filepath.Join(dir, "package.json")):
		pm := detectPackageManager(dir)
		cmd = Command{Dir: dir, Name: string(pm), Args: installArgs(pm, dir)}
	default:
		logger.InfoContext(ctx, "no package.json, skipping install")
		return nil
	}

	installCtx, cancel := context.WithTimeoutCause(ctx, r.installTimeout, fmt.Errorf("install exceeded %s", r.installTimeout))
	defer cancel()
	logger.InfoContext(ctx, "installing dependencies", "command", cmd.Name, "args", cmd.Args)
	res, err := r.commands.Run(installCtx, cmd)
	if err != nil {
		return fmt.Errorf("%w: install: %w", ErrExecution, err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("%w: install exited %d: %s", ErrExecution, res.ExitCode, outputTail(res.Output, 1024))
	}
	return nil
}

// testCommand picks, in order: the request override, the repository config, then the detected
// package script.
func (r *Runner) testCommand(dir string, cfg RepoConfig, override string) Command {
	if override = strings.TrimSpace(override); override != "" {
		return shellCommand(dir, override)
	}
	if cfg.TestCommand != "" {
		return shellCommand(dir, cfg.TestCommand)
	}
	pkg, _ := os.ReadFile(filepath.Join(dir, "package.json")) // #nosec G304 - inside the workspace
	pm := detectPackageManager(dir)
	return Command{Dir: dir, Name: string(pm), Args: testArgs(pm, detectTestScript(pkg))}
}

func (r *Runner) buildResult(
	ctx context.Context,
	logger *slog.Logger,
	res CommandResult,
	root, workDir string,
	globs []string,
) *model.RunResult {
	result := &model.RunResult{ExitCode: res.ExitCode}

	rep, err := r.readReport(root, workDir, globs, res.Output)
	if err == nil {
		result.Passed, result.Failed, result.Skipped = rep.Passed, rep.Failed, rep.Skipped
		result.Total = rep.total()
		result.Failures = rep.Failures
	} else {
		logger.WarnContext(ctx, "no usable test report", "error", err)
	}

	if res.ExitCode != 0 && len(result.Failures) == 0 {
		// The command failed but nothing attributable was reported.
		message := outputTail(res.Output, 4096)
		if message == "" {
			message = fmt.Sprintf("test command exited with status %d", res.ExitCode)
		}
		result.Failures = []model.Failure{{
			TestName:       "test command",
			FailedSelector: model.UnknownSelector,
			SelectorType:   model.SelectorUnknown,
			ErrorMessage:   message,
		}}
		result.Failed = max(result.Failed, 1)
		result.Total = max(result.Total, result.Passed+result.Failed+result.Skipped)
	}
	return result
}

// readReport tries the reporter output file, then the configured globs, then stdout.
func (r *Runner) readReport(root, workDir string, globs []string, output []byte) (report, error) {
	candidates := []string{filepath.Join(root, reportFileName)}
	patterns := globs
	if len(patterns) == 0 {
		patterns = DefaultReportGlobs
	}
	fsys := os.DirFS(workDir)
	for _, pattern := range patterns {
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			continue
		}
		slices.Sort(matches)
		for _, m := range matches {
			candidates = append(candidates, filepath.Join(workDir, filepath.FromSlash(m)))
		}
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path) // #nosec G304 - paths come from the workspace
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			continue
		}
		if rep, err := parseReport(data, workDir); err == nil {
			return rep, nil
		}
	}
	if embedded := extractJSON(output); embedded != nil {
		return parseReport(embedded, workDir)
	}
	return report{}, errNoReport
}

func shellCommand(dir, line string) Command {
	return Command{Dir: dir, Name: "sh", Args: []string{"-c", line}}
}

// cloneURL expands "owner/repo" shorthand to a GitHub https URL.
func cloneURL(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.Contains(s, "://") || strings.HasPrefix(s, "git@") {
		return s
	}
	return "https://github.com/" + strings.TrimSuffix(s, ".git") + ".git"
}

func basicAuth(token string) string {
	return base64.StdEncoding.EncodeToString([]byte("x-access-token:" + token))
}

func redact(s, token string) string {
	if token == "" {
		return s
	}
	s = strings.ReplaceAll(s, token, "[REDACTED]")
	return strings.ReplaceAll(s, basicAuth(token), "[REDACTED]")
}

func outputTail(out []byte, n int) string {
	s := strings.TrimSpace(ansiEscape.ReplaceAllString(string(out), ""))
	if len(s) > n {
		s = s[len(s)-n:]
	}
	return s
}
