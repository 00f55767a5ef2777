package ffmpeg

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"clipstitch/config"
	"clipstitch/logging"
	"clipstitch/render"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	testCases := []struct {
		name    string
		in      string
		want    float64
		wantErr bool
	}{
		{"plain", "5.000000\n", 5, false},
		{"first line wins", "4.2\n3.1\n", 4.2, false},
		{"padded", "  10.5  ", 10.5, false},
		{"not available", "N/A\n", 0, true},
		{"empty", "", 0, true},
		{"zero", "0.000000", 0, true},
		{"negative", "-1", 0, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseDuration(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tc.want, got, 1e-9)
		})
	}
}

func TestTrackString(t *testing.T) {
	assert.Equal(t, "video_stream", VideoStream.String())
	assert.Equal(t, "container", Container.String())
}

func TestTailWriter(t *testing.T) {
	w := &tailWriter{limit: 4}
	w.Write([]byte("ab"))
	assert.Equal(t, "ab", w.String())

	n, err := w.Write([]byte("cdef"))
	assert.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "...cdef", w.String())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "...6789", truncate("0123456789", 4))
}

// testRunner uses a stand-in binary and disables the resource checks.
func testRunner(t *testing.T, bin string) *Runner {
	path, err := exec.LookPath(bin)
	if err != nil {
		t.Skipf("%s not available", bin)
	}
	cfg := &config.Config{FFBin: path, FFProbeBin: path}
	return newRunner(cfg, logging.Discard())
}

func testJob(t *testing.T) *render.Job {
	return &render.Job{
		Inputs: []string{"clip_0.mp4", "clip_1.mp4"},
		Graph:  "[0:v]null[v]",
		Maps:   nil,
		Output: filepath.Join(t.TempDir(), "output.mp4"),
	}
}

func TestRun_NonZeroExit(t *testing.T) {
	r := testRunner(t, "false")
	job := testJob(t)

	_, err := r.Run(context.Background(), job)
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, 1, execErr.ExitCode)
	assert.Contains(t, err.Error(), "exited with code 1")
	assert.NoFileExists(t, job.Output)
}

func TestRun_MissingOutput(t *testing.T) {
	r := testRunner(t, "true")
	job := testJob(t)

	_, err := r.Run(context.Background(), job)
	assert.ErrorIs(t, err, ErrMissingOutput)
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "No stderr returned", execErr.Diagnostics)
}

func TestRun_EmptyOutputRemoved(t *testing.T) {
	r := testRunner(t, "true")
	job := testJob(t)
	require.NoError(t, os.WriteFile(job.Output, nil, 0o644))

	_, err := r.Run(context.Background(), job)
	assert.ErrorIs(t, err, ErrMissingOutput)
	assert.NoFileExists(t, job.Output)
}

func TestRun_ExistingOutputSucceeds(t *testing.T) {
	r := testRunner(t, "true")
	job := testJob(t)
	require.NoError(t, os.WriteFile(job.Output, []byte("mp4"), 0o644))

	_, err := r.Run(context.Background(), job)
	assert.NoError(t, err)
	assert.FileExists(t, job.Output)
}

func TestRun_ContextCanceled(t *testing.T) {
	r := testRunner(t, "true")
	job := testJob(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Run(ctx, job)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, job.Output)
}
