// Package analyzer wraps the Slither static-analysis CLI behind the Analyzer
// capability. Slither runs as an external subprocess against a temporary copy
// of the submitted source; its JSON output is parsed into raw finding records
// and supplemented with Hedera-specific source checks.
package analyzer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/auditforge/auditforge/api/schemas"
)

// ToolName identifies the analyzer in finding IDs and logs.
const ToolName = "slither"

// defaultComplexity is reported when Slither emits no metrics of its own.
const defaultComplexity = 5

// Config controls the Slither invocation.
type Config struct {
	// Binary is the slither executable. Defaults to "slither" on PATH.
	Binary string
	// Detectors restricts the run to specific detectors. Empty runs the
	// default detector set.
	Detectors []string
	// Timeout bounds a single analysis run.
	Timeout time.Duration
}

// Slither invokes the slither CLI and adapts its output.
type Slither struct {
	cfg    Config
	logger *zap.Logger
}

// NewSlither creates a Slither analyzer.
func NewSlither(cfg Config, logger *zap.Logger) *Slither {
	if cfg.Binary == "" {
		cfg.Binary = "slither"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	return &Slither{cfg: cfg, logger: logger.Named("slither")}
}

// buildArgs assembles the slither argv. Slither takes a single
// comma-separated --detect value; repeating the flag would keep only the
// last detector.
func (s *Slither) buildArgs(path string) []string {
	args := []string{path}
	if len(s.cfg.Detectors) > 0 {
		args = append(args, "--detect", strings.Join(s.cfg.Detectors, ","))
	}
	return append(args, "--json", "-")
}

// Analyze writes the source to a temporary file, runs slither against it, and
// parses the JSON report. A deadline expiry converts to ErrAnalysisTimeout; a
// missing or crashed tool converts to ErrAnalysis. Slither exiting non-zero
// while still producing JSON is normal (it signals findings via exit codes).
func (s *Slither) Analyze(ctx context.Context, source string, language schemas.Language) (*schemas.AnalysisResult, error) {
	path, cleanup, err := writeTempContract(source, language)
	if err != nil {
		return nil, fmt.Errorf("%w: staging contract source: %v", schemas.ErrAnalysis, err)
	}
	defer cleanup()

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	args := s.buildArgs(path)

	s.logger.Debug("Running slither", zap.String("path", path), zap.Strings("args", args))

	cmd := exec.CommandContext(runCtx, s.cfg.Binary, args...)
	cmd.Dir = filepath.Dir(path)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	if ctxErr := runCtx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) && ctx.Err() == nil {
			s.logger.Error("Slither analysis timed out", zap.Duration("timeout", s.cfg.Timeout))
			return nil, fmt.Errorf("%w: slither exceeded %s", schemas.ErrAnalysisTimeout, s.cfg.Timeout)
		}
		// The caller's context was cancelled, not our per-run deadline.
		return nil, ctx.Err()
	}

	if runErr != nil {
		if errors.Is(runErr, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: slither binary %q not found on PATH", schemas.ErrAnalysis, s.cfg.Binary)
		}
		// Slither uses non-zero exit codes to report that detectors fired, so
		// an exit error only counts as a failure when there is no output.
		if strings.TrimSpace(stdout.String()) == "" {
			s.logger.Error("Slither failed with no output",
				zap.Error(runErr),
				zap.String("stderr", truncate(stderr.String(), 2000)))
			return nil, fmt.Errorf("%w: slither exited abnormally: %v", schemas.ErrAnalysis, runErr)
		}
	}

	result, err := parseSlitherOutput(stdout.Bytes())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", schemas.ErrAnalysis, err)
	}

	// Layer the Hedera-specific checks on top of what Slither found.
	result.Findings = append(result.Findings, checkHederaSpecific(source)...)

	if result.Metrics.Lines == 0 {
		result.Metrics.Lines = len(strings.Split(source, "\n"))
	}
	if result.Metrics.Complexity == 0 {
		result.Metrics.Complexity = defaultComplexity
	}

	s.logger.Info("Slither analysis complete",
		zap.Duration("duration", duration),
		zap.Int("findings", len(result.Findings)))

	return result, nil
}

func writeTempContract(source string, language schemas.Language) (string, func(), error) {
	suffix := ".sol"
	if language == schemas.LanguageVyper {
		suffix = ".vy"
	}

	f, err := os.CreateTemp("", "auditforge-*"+suffix)
	if err != nil {
		return "", nil, err
	}
	if _, err := f.WriteString(source); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", nil, err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", nil, err
	}
	return f.Name(), func() { os.Remove(f.Name()) }, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
