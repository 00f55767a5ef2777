// Package stitch drives one request through fetch, probe, build, compose, execute
// and delivery, and guarantees its staged files are removed afterwards.
package stitch

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sync"

	"clipstitch/caption"
	"clipstitch/config"
	"clipstitch/ffmpeg"
	"clipstitch/job"
	"clipstitch/logging"
	"clipstitch/render"

	"golang.org/x/sync/errgroup"
)

// Fetcher downloads a remote asset to a local path.
type Fetcher interface {
	Fetch(ctx context.Context, url, dest string) error
}

// Prober reports media durations in seconds.
type Prober interface {
	ProbeDuration(ctx context.Context, path string, track ffmpeg.Track) (float64, error)
}

// Executor runs a composed render job.
type Executor interface {
	Run(ctx context.Context, job *render.Job) (string, error)
}

type Stitcher struct {
	cfg      *config.Config
	jobs     *job.Manager
	fetcher  Fetcher
	prober   Prober
	executor Executor
	profile  render.Profile
	style    render.Style
	logger   *slog.Logger
}

// New validates the configured output profile and returns a Stitcher.
func New(cfg *config.Config, jobs *job.Manager, fetcher Fetcher, prober Prober, executor Executor, logger *slog.Logger) (*Stitcher, error) {
	videoArgs, err := ffmpeg.ParseVideoArgs(cfg.VideoArgs)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Stitcher{
		cfg:      cfg,
		jobs:     jobs,
		fetcher:  fetcher,
		prober:   prober,
		executor: executor,
		profile: render.Profile{
			Width:        cfg.OutputWidth,
			FPS:          cfg.OutputFPS,
			PixelFormat:  cfg.PixelFormat,
			VideoArgs:    videoArgs,
			AudioCodec:   cfg.AudioCodec,
			AudioBitrate: cfg.AudioBitrate,
			SampleRate:   cfg.AudioSampleRate,
		},
		style:  render.DefaultStyle(cfg.CaptionFont, cfg.CaptionFontSize),
		logger: logging.WithComponent(logger, "stitch"),
	}, nil
}

// Result is a rendered artifact waiting for delivery. The caller must Close it
// once the file has been sent, or Abort it when delivery failed.
type Result struct {
	Path   string
	Size   int64
	Job    *job.Job
	Render *render.Job

	once    sync.Once
	release func(error)
}

// Open opens the artifact for reading.
func (r *Result) Open() (*os.File, error) {
	return os.Open(r.Path)
}

// Close removes every staged file and completes the job.
func (r *Result) Close() {
	r.once.Do(func() { r.finish(nil) })
}

// Abort removes every staged file and marks the job failed with err.
func (r *Result) Abort(err error) {
	r.once.Do(func() { r.finish(err) })
}

func (r *Result) finish(err error) {
	if r.release != nil {
		r.release(err)
	}
}

// Stitch validates req and renders it. On error nothing is left on disk.
func (s *Stitcher) Stitch(ctx context.Context, req Request) (*Result, error) {
	opts, err := req.Validate(s.cfg.MaxClips)
	if err != nil {
		return nil, err
	}

	j, jobCtx := s.jobs.Register(ctx, len(opts.Clips))
	log := logging.WithJobID(s.logger, j.ID)
	log.Info("stitch started",
		"clips", len(opts.Clips),
		"fade", opts.Fade,
		"audio", opts.AudioURL != "",
		"captions", opts.Captions != "",
	)

	ws, err := NewWorkspace(s.cfg.WorkDir, j.ID, log)
	if err != nil {
		s.jobs.Finish(j, err)
		return nil, err
	}
	release := func(cause error) {
		s.jobs.Transition(j, job.StateCleanup)
		ws.Release()
		s.jobs.Finish(j, cause)
	}

	res, err := s.run(jobCtx, j, ws, opts, log)
	if err != nil {
		release(err)
		return nil, err
	}
	res.release = release
	s.jobs.Transition(j, job.StateDelivering)
	return res, nil
}

func (s *Stitcher) run(ctx context.Context, j *job.Job, ws *Workspace, opts Options, log *slog.Logger) (*Result, error) {
	if s.cfg.FFTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.FFTimeout)
		defer cancel()
	}

	// Fetching: every asset must arrive before anything is probed.
	s.jobs.Transition(j, job.StateFetching)
	clipPaths := make([]string, len(opts.Clips))
	for i := range opts.Clips {
		clipPaths[i] = ws.Track(fmt.Sprintf("clip_%d.mp4", i))
	}
	var audioPath string
	if opts.AudioURL != "" {
		audioPath = ws.Track("voiceover.mp3")
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, u := range opts.Clips {
		i, u := i, u
		g.Go(func() error {
			if err := s.fetcher.Fetch(gctx, u, clipPaths[i]); err != nil {
				return fmt.Errorf("fetch clip %d: %w", i, err)
			}
			return nil
		})
	}
	if audioPath != "" {
		g.Go(func() error {
			if err := s.fetcher.Fetch(gctx, opts.AudioURL, audioPath); err != nil {
				return fmt.Errorf("fetch audio: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Probing never fails the request.
	s.jobs.Transition(j, job.StateProbing)
	clips := make([]render.Clip, len(clipPaths))
	for i, p := range clipPaths {
		clips[i] = render.Clip{Path: p, Duration: s.probe(ctx, log, p, ffmpeg.VideoStream)}
	}
	var audio *render.Audio
	if audioPath != "" {
		audio = &render.Audio{
			Path:     audioPath,
			Gain:     opts.AudioGain,
			Duration: s.probe(ctx, log, audioPath, ffmpeg.Container),
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.jobs.Transition(j, job.StateBuilding)
	var captionPath string
	if opts.Captions != "" {
		ref := s.captionReference(ctx, log, clips, audio)
		prepared := caption.Prepare(opts.Captions, ref, caption.Options{Mode: opts.Mode, Stretch: s.cfg.CaptionStretch})
		captionPath = ws.Track("captions.srt")
		if err := os.WriteFile(captionPath, []byte(prepared.SRT), 0o644); err != nil {
			return nil, fmt.Errorf("write captions: %w", err)
		}
		if prepared.ParseErr != nil {
			log.Debug("timecoded captions do not parse as srt, passing through", "error", prepared.ParseErr)
		}
		log.Debug("captions prepared",
			"cues", prepared.Track.Len(),
			"reference_seconds", ref,
			"verbatim", prepared.Verbatim,
		)
	}

	s.jobs.Transition(j, job.StateComposing)
	rj, err := render.Compose(render.Spec{
		Clips:          clips,
		Fade:           opts.Fade,
		Captions:       captionPath,
		Style:          s.style,
		Audio:          audio,
		TargetDuration: opts.TargetDuration,
		FadeOut:        opts.FadeOut,
		Output:         ws.Track("stitched.mp4"),
		Profile:        s.profile,
	})
	if err != nil {
		return nil, fmt.Errorf("compose: %w", err)
	}
	log.Debug("render composed",
		"offsets", rj.Offsets,
		"natural_seconds", rj.NaturalDuration,
		"expected_seconds", rj.ExpectedDuration,
		"graph", rj.Graph,
	)

	s.jobs.Transition(j, job.StateExecuting)
	if err := s.jobs.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("wait for execution slot: %w", err)
	}
	diag, err := s.executor.Run(ctx, rj)
	s.jobs.Release()
	if err != nil {
		return nil, fmt.Errorf("execute: %w", err)
	}
	if diag != "" {
		log.Debug("ffmpeg output", "diagnostics", diag)
	}

	info, err := os.Stat(rj.Output)
	if err != nil {
		return nil, fmt.Errorf("stat output: %w", err)
	}
	log.Info("stitch rendered", "output_bytes", info.Size(), "expected_seconds", rj.ExpectedDuration)
	return &Result{Path: rj.Output, Size: info.Size(), Job: j, Render: rj}, nil
}

// probe returns the duration of path, or FallbackDuration when it cannot be determined.
func (s *Stitcher) probe(ctx context.Context, log *slog.Logger, path string, track ffmpeg.Track) float64 {
	d, err := s.prober.ProbeDuration(ctx, path, track)
	if err != nil || math.IsNaN(d) || math.IsInf(d, 0) || d <= 0 {
		log.Warn("duration probe failed, using fallback",
			"path", path,
			"track", track.String(),
			"fallback_seconds", FallbackDuration,
			"error", err,
		)
		return FallbackDuration
	}
	return d
}

// captionReference is the voice-over length when present, else the first clip's
// container duration.
func (s *Stitcher) captionReference(ctx context.Context, log *slog.Logger, clips []render.Clip, audio *render.Audio) float64 {
	if audio != nil {
		return audio.Duration
	}
	return s.probe(ctx, log, clips[0].Path, ffmpeg.Container)
}
