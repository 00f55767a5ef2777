package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"clipstitch/config"
	"clipstitch/render"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

const defaultDiagnosticLimit = 8 * 1024

var (
	// ErrInsufficientResources is returned when the host is too busy to start a render.
	ErrInsufficientResources = errors.New("insufficient system resources")
	// ErrMissingOutput is wrapped by an ExecutionError when ffmpeg exits cleanly
	// without producing the artifact.
	ErrMissingOutput = errors.New("output file not created")
)

// Track selects which duration ffprobe reports.
type Track int

const (
	// VideoStream is the first video stream's duration, used for crossfade offsets.
	VideoStream Track = iota
	// Container is the format duration, used for caption and audio timing.
	Container
)

func (t Track) String() string {
	if t == VideoStream {
		return "video_stream"
	}
	return "container"
}

// ExecutionError reports an abnormal ffmpeg run. Diagnostics holds the tail of
// its output.
type ExecutionError struct {
	ExitCode    int
	Diagnostics string
	Err         error
}

func (e *ExecutionError) Error() string {
	if errors.Is(e.Err, ErrMissingOutput) {
		return "ffmpeg: " + ErrMissingOutput.Error()
	}
	return fmt.Sprintf("ffmpeg exited with code %d: %v", e.ExitCode, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

type Runner struct {
	cfg       *config.Config
	diagLimit int
	logger    *slog.Logger
}

func NewRunner(cfg *config.Config, logger *slog.Logger) (*Runner, error) {
	if _, err := exec.LookPath(cfg.FFBin); err != nil {
		return nil, fmt.Errorf("ffmpeg binary not found or not in PATH: %s", cfg.FFBin)
	}
	if _, err := exec.LookPath(cfg.FFProbeBin); err != nil {
		return nil, fmt.Errorf("ffprobe binary not found or not in PATH: %s", cfg.FFProbeBin)
	}
	return newRunner(cfg, logger), nil
}

func newRunner(cfg *config.Config, logger *slog.Logger) *Runner {
	limit := int(cfg.DiagnosticLimit)
	if limit <= 0 {
		limit = defaultDiagnosticLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{cfg: cfg, diagLimit: limit, logger: logger}
}

// ProbeDuration returns the duration in seconds of the selected track.
func (r *Runner) ProbeDuration(ctx context.Context, path string, track Track) (float64, error) {
	args := []string{"-v", "error"}
	if track == VideoStream {
		args = append(args, "-select_streams", "v:0", "-show_entries", "stream=duration")
	} else {
		args = append(args, "-show_entries", "format=duration")
	}
	args = append(args, "-of", "default=noprint_wrappers=1:nokey=1", path)

	cmd := exec.CommandContext(ctx, r.cfg.FFProbeBin, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s duration: %w\n%s", track, err, truncate(string(b), r.diagLimit))
	}
	return parseDuration(string(b))
}

// parseDuration reads the first line of ffprobe output as seconds.
func parseDuration(out string) (float64, error) {
	s := strings.TrimSpace(out)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	if math.IsNaN(sec) || math.IsInf(sec, 0) || sec <= 0 {
		return 0, fmt.Errorf("unusable duration %q", s)
	}
	return sec, nil
}

// Run executes a composed render job and returns the tail of ffmpeg's output.
// A failed or interrupted run leaves no output file behind.
func (r *Runner) Run(ctx context.Context, job *render.Job) (string, error) {
	if err := r.checkResources(ctx, filepath.Dir(job.Output)); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInsufficientResources, err)
	}

	cmd := exec.CommandContext(ctx, r.cfg.FFBin, job.Args()...)
	out := &tailWriter{limit: r.diagLimit}
	cmd.Stdout = out
	cmd.Stderr = out

	r.logger.Debug("executing ffmpeg", "bin", r.cfg.FFBin, "args", strings.Join(job.Args(), " "))
	start := time.Now()
	err := cmd.Run()
	diag := out.String()

	if ctx.Err() != nil {
		os.Remove(job.Output)
		return diag, fmt.Errorf("ffmpeg interrupted: %w", ctx.Err())
	}
	if err != nil {
		os.Remove(job.Output)
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		r.logger.Warn("ffmpeg failed",
			"exit_code", code,
			"duration_ms", time.Since(start).Milliseconds(),
			"stderr_tail", truncate(diag, 512),
		)
		return diag, &ExecutionError{ExitCode: code, Diagnostics: diag, Err: err}
	}

	info, statErr := os.Stat(job.Output)
	if statErr != nil || info.Size() == 0 {
		os.Remove(job.Output)
		if diag == "" {
			diag = "No stderr returned"
		}
		return diag, &ExecutionError{Diagnostics: diag, Err: ErrMissingOutput}
	}

	r.logger.Info("ffmpeg finished",
		"duration_ms", time.Since(start).Milliseconds(),
		"output_bytes", info.Size(),
	)
	return diag, nil
}

// checkResources verifies that the system has enough free resources to start a new job.
// Probe failures are logged and ignored.
func (r *Runner) checkResources(ctx context.Context, dir string) error {
	if r.cfg.ThrottleCPU > 0 {
		p, err := cpu.PercentWithContext(ctx, 500*time.Millisecond, false)
		if err != nil {
			r.logger.Warn("could not get CPU usage", "error", err)
		} else if len(p) > 0 && p[0] > (100.0-r.cfg.ThrottleCPU) {
			return fmt.Errorf("not enough idle CPU. Current usage: %.2f%%, Idle threshold: %.2f%%", p[0], r.cfg.ThrottleCPU)
		}
	}

	if r.cfg.ThrottleFreeMem > 0 {
		vm, err := mem.VirtualMemoryWithContext(ctx)
		if err != nil {
			r.logger.Warn("could not get memory usage", "error", err)
		} else if vm.Available < uint64(r.cfg.ThrottleFreeMem) {
			return fmt.Errorf("not enough free memory. Available: %d, Required: %d", vm.Available, r.cfg.ThrottleFreeMem)
		}
	}

	if r.cfg.ThrottleFreeDisk > 0 {
		d, err := disk.UsageWithContext(ctx, dir)
		if err != nil {
			r.logger.Warn("could not get disk usage", "path", dir, "error", err)
		} else if d.Free < uint64(r.cfg.ThrottleFreeDisk) {
			return fmt.Errorf("not enough free disk space. Available: %d, Required: %d", d.Free, r.cfg.ThrottleFreeDisk)
		}
	}
	return nil
}

// tailWriter keeps only the last limit bytes written to it.
type tailWriter struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (w *tailWriter) Write(p []byte) (int, error) {
	n := len(p)
	w.buf.Write(p)
	if w.buf.Len() > w.limit {
		b := w.buf.Bytes()
		tail := append([]byte(nil), b[len(b)-w.limit:]...)
		w.buf.Reset()
		w.buf.Write(tail)
		w.truncated = true
	}
	return n, nil
}

func (w *tailWriter) String() string {
	if w.truncated {
		return "..." + w.buf.String()
	}
	return w.buf.String()
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}
