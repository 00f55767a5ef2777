package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"clipstitch/config"
	"clipstitch/ffmpeg"
	"clipstitch/fetch"
	"clipstitch/job"
	"clipstitch/stitch"

	"github.com/gin-gonic/gin"
)

const (
	jobIDHeader     = "X-Job-ID"
	artifactName    = "stitched.mp4"
	artifactMIME    = "video/mp4"
	// Fallback body limit when MAX_REQUEST_SIZE is unset.
	defaultMaxRequestBytes = 5 << 20
)

// Stitcher renders a request into a local artifact.
type Stitcher interface {
	Stitch(ctx context.Context, req stitch.Request) (*stitch.Result, error)
}

type Handler struct {
	stitcher Stitcher
	jobs     *job.Manager
	maxBody  int64
	logger   *slog.Logger
}

func NewHandler(s Stitcher, jobs *job.Manager, cfg *config.Config, logger *slog.Logger) *Handler {
	maxBody := cfg.MaxRequestSize
	if maxBody <= 0 {
		maxBody = defaultMaxRequestBytes
	}
	return &Handler{
		stitcher: s,
		jobs:     jobs,
		maxBody:  maxBody,
		logger:   logger,
	}
}

// handleStitch renders the request and streams the artifact back. Once headers
// are out, failures can only be logged.
func (h *Handler) handleStitch(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBody)
	var req stitch.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	res, err := h.stitcher.Stitch(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	defer res.Close()

	f, err := res.Open()
	if err != nil {
		res.Abort(err)
		h.writeError(c, err)
		return
	}
	defer f.Close()

	if res.Job != nil {
		c.Header(jobIDHeader, res.Job.ID)
	}
	c.DataFromReader(http.StatusOK, res.Size, artifactMIME, f, map[string]string{
		"Content-Disposition": `attachment; filename="` + artifactName + `"`,
	})

	if err := c.Errors.Last(); err != nil {
		h.logger.Warn("delivery failed", "error", err.Err, "bytes_written", c.Writer.Size())
		res.Abort(err.Err)
	}
}

// handleListJobs lists in-flight and recently finished jobs.
func (h *Handler) handleListJobs(c *gin.Context) {
	jobs := h.jobs.List()
	out := make([]job.Snapshot, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.Snapshot())
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) handleGetJob(c *gin.Context) {
	j, found := h.jobs.Get(c.Param("jobId"))
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}
	c.JSON(http.StatusOK, j.Snapshot())
}

func (h *Handler) handleCancelJob(c *gin.Context) {
	err := h.jobs.Cancel(c.Param("jobId"))
	switch {
	case errors.Is(err, job.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
	case errors.Is(err, job.ErrFinished):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"message": "Job cancellation requested"})
	}
}

// writeError maps a stitch failure to its status code and {error, details} body.
func (h *Handler) writeError(c *gin.Context, err error) {
	status, msg, details := classify(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("stitch failed", "status", status, "error", err.Error())
	} else {
		h.logger.Info("stitch rejected", "status", status, "error", err.Error())
	}
	body := gin.H{"error": msg}
	if details != "" {
		body["details"] = details
	}
	c.JSON(status, body)
}

func classify(err error) (status int, msg, details string) {
	var (
		verr    *stitch.ValidationError
		derr    *fetch.DownloadError
		execErr *ffmpeg.ExecutionError
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "Stitch timed out", err.Error()
	case errors.Is(err, context.Canceled):
		return http.StatusConflict, "Stitch canceled", err.Error()
	case errors.As(err, &verr):
		return http.StatusBadRequest, verr.Error(), ""
	case errors.As(err, &derr):
		return http.StatusBadGateway, "Download failed", derr.Error()
	case errors.Is(err, ffmpeg.ErrInsufficientResources):
		return http.StatusServiceUnavailable, "Server busy", err.Error()
	case errors.As(err, &execErr):
		if errors.Is(execErr, ffmpeg.ErrMissingOutput) {
			return http.StatusInternalServerError, "Output file not created", execErr.Diagnostics
		}
		return http.StatusInternalServerError, "FFmpeg failed", execErr.Diagnostics
	default:
		return http.StatusInternalServerError, "Internal error", err.Error()
	}
}
