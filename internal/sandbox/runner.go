// Package sandbox executes untrusted submissions inside locked-down docker
// containers. Each run gets a throwaway directory mounted read-only into a
// per-language image; a small in-container harness runs the tests and prints
// a JSON report on stdout.
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/strslice"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-units"
	"github.com/sirupsen/logrus"

	"dev.synaq.judge/internal/models"
)

const (
	memoryLimitBytes = 512 * 1024 * 1024
	fsizeLimitBytes  = 64 * 1024 * 1024
	pidsLimit        = 64

	// Fixed head-room on top of the summed per-test limits, covering
	// container startup and compilation.
	overallGrace = 20 * time.Second

	// OverallTimeoutVerdict is the fatal verdict for a run whose container
	// outlived the whole-run deadline.
	OverallTimeoutVerdict = "Time Limit Exceeded (Overall)"
)

// Request describes one judging run.
type Request struct {
	Language    models.Language
	Code        string
	Tests       []models.Test
	CheckerCode string
}

// TestResult is one per-test outcome reported by the harness.
type TestResult struct {
	TestNum int    `json:"test_num"`
	Verdict string `json:"verdict"`
	Output  string `json:"output"`
	Error   string `json:"error"`
}

// Report is the outcome of a run. When Fatal is set the whole submission
// failed before or outside per-test judging and Verdict carries the reason;
// Results is then empty.
type Report struct {
	Results []TestResult
	Fatal   bool
	Verdict string
	Detail  string
}

// Runner executes a submission against its tests.
type Runner interface {
	Run(ctx context.Context, req Request) (*Report, error)
}

// DockerRunner is the production Runner backed by the docker engine API.
type DockerRunner struct {
	cli    client.APIClient
	logger *logrus.Entry
}

// NewDockerRunner connects to the docker daemon from the environment.
func NewDockerRunner(logger *logrus.Logger) (*DockerRunner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	return &DockerRunner{
		cli:    cli,
		logger: logger.WithField("component", "sandbox"),
	}, nil
}

// Close releases the docker client.
func (r *DockerRunner) Close() error {
	return r.cli.Close()
}

type harnessTest struct {
	Input  string  `json:"input"`
	Output string  `json:"output"`
	Limit  float64 `json:"limit"`
}

// Run materializes the run directory, starts the container and interprets
// the harness report. Container lifetime is bounded by the summed test
// limits plus a fixed grace.
func (r *DockerRunner) Run(ctx context.Context, req Request) (*Report, error) {
	spec, ok := registry[req.Language]
	if !ok {
		return nil, fmt.Errorf("unsupported language %q", req.Language)
	}

	dir, err := r.writeRunDir(spec, req)
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	deadline := overallGrace
	for _, t := range req.Tests {
		deadline += time.Duration((t.TimeLimit+0.5)*float64(time.Second)) + 100*time.Millisecond
	}
	runCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	stdout, stderr, timedOut, err := r.runContainer(runCtx, spec.Image, dir)
	if err != nil {
		return nil, err
	}
	if timedOut {
		return &Report{Fatal: true, Verdict: OverallTimeoutVerdict}, nil
	}
	return interpret(stdout, stderr), nil
}

func (r *DockerRunner) writeRunDir(spec langSpec, req Request) (string, error) {
	dir, err := os.MkdirTemp("", "judge-run-*")
	if err != nil {
		return "", fmt.Errorf("run dir: %w", err)
	}
	// The container runs unprivileged, so the mount must be world-readable.
	if err := os.Chmod(dir, 0o755); err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("run dir mode: %w", err)
	}

	tests := make([]harnessTest, len(req.Tests))
	for i, t := range req.Tests {
		limit := t.TimeLimit
		if limit <= 0 {
			limit = 1.0
		}
		tests[i] = harnessTest{Input: t.Input, Output: t.ExpectedOutput, Limit: limit}
	}
	testsJSON, err := json.Marshal(tests)
	if err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("encode tests: %w", err)
	}

	files := map[string][]byte{
		spec.SourceFile: []byte(req.Code),
		"runner.py":     []byte(spec.Harness),
		"tests.json":    testsJSON,
	}
	if req.CheckerCode != "" {
		files["checker.py"] = []byte(req.CheckerCode)
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			os.RemoveAll(dir)
			return "", fmt.Errorf("write %s: %w", name, err)
		}
	}
	return dir, nil
}

func (r *DockerRunner) runContainer(ctx context.Context, image, dir string) (stdout, stderr string, timedOut bool, err error) {
	pids := int64(pidsLimit)
	created, err := r.cli.ContainerCreate(ctx,
		&container.Config{
			Image:           image,
			Cmd:             strslice.StrSlice{"python3", "runner.py"},
			WorkingDir:      "/judge",
			User:            "nobody",
			NetworkDisabled: true,
		},
		&container.HostConfig{
			NetworkMode: "none",
			Binds:       []string{dir + ":/judge:ro"},
			CapDrop:     strslice.StrSlice{"ALL"},
			SecurityOpt: []string{"no-new-privileges"},
			Resources: container.Resources{
				Memory:     memoryLimitBytes,
				MemorySwap: memoryLimitBytes,
				NanoCPUs:   1e9,
				PidsLimit:  &pids,
				Ulimits: []*units.Ulimit{
					{Name: "fsize", Soft: fsizeLimitBytes, Hard: fsizeLimitBytes},
				},
			},
		},
		nil, nil, "")
	if err != nil {
		return "", "", false, fmt.Errorf("create container: %w", err)
	}
	id := created.ID

	defer func() {
		rmCtx, rmCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer rmCancel()
		if rmErr := r.cli.ContainerRemove(rmCtx, id, container.RemoveOptions{Force: true}); rmErr != nil {
			r.logger.WithError(rmErr).WithField("container", id[:12]).Warn("container remove failed")
		}
	}()

	if err := r.cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return "", "", false, fmt.Errorf("start container: %w", err)
	}

	waitCh, errCh := r.cli.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	select {
	case <-ctx.Done():
		killCtx, killCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer killCancel()
		if killErr := r.cli.ContainerKill(killCtx, id, "KILL"); killErr != nil {
			r.logger.WithError(killErr).WithField("container", id[:12]).Warn("container kill failed")
		}
		return "", "", true, nil
	case waitErr := <-errCh:
		if waitErr != nil {
			return "", "", false, fmt.Errorf("wait container: %w", waitErr)
		}
	case <-waitCh:
	}

	logCtx, logCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer logCancel()
	logs, err := r.cli.ContainerLogs(logCtx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", "", false, fmt.Errorf("container logs: %w", err)
	}
	defer logs.Close()

	var outBuf, errBuf bytes.Buffer
	if _, err := stdcopy.StdCopy(&outBuf, &errBuf, logs); err != nil {
		return "", "", false, fmt.Errorf("demux logs: %w", err)
	}
	return outBuf.String(), errBuf.String(), false, nil
}

// interpret turns the harness output into a Report. Fatal outcomes are a
// compilation failure, an explicit system error on stderr, or stdout that
// does not frame as the expected JSON array.
func interpret(stdout, stderr string) *Report {
	if strings.Contains(stderr, models.VerdictSystemError) {
		return &Report{Fatal: true, Verdict: models.VerdictSystemError, Detail: stderr}
	}

	var results []TestResult
	if err := json.Unmarshal([]byte(strings.TrimSpace(stdout)), &results); err != nil {
		detail := stderr
		if detail == "" {
			detail = stdout
		}
		return &Report{Fatal: true, Verdict: models.VerdictSystemError, Detail: detail}
	}

	if len(results) == 1 && results[0].Verdict == models.VerdictCompilationError {
		return &Report{Fatal: true, Verdict: models.VerdictCompilationError, Detail: results[0].Error}
	}
	return &Report{Results: results}
}
