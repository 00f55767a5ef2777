package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"clipstitch/logging"
	"clipstitch/stitch"

	"github.com/spf13/cobra"
)

func newStitchCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "stitch --request <file.json> --out <file.mp4>",
		Short: "Render one stitch request locally",
		Long: `Render one stitch request without starting the server. The request file uses
the same JSON shape as POST /stitch; use "-" to read it from stdin.`,
		Args: cobra.NoArgs,
		RunE: runStitch,
	}
	c.Flags().String("request", "", "Request JSON file")
	c.Flags().String("out", "stitched.mp4", "Output mp4 path")
	_ = c.MarkFlagRequired("request")
	return c
}

func runStitch(cmd *cobra.Command, args []string) error {
	reqPath, _ := cmd.Flags().GetString("request")
	outPath, _ := cmd.Flags().GetString("out")

	req, err := readRequest(reqPath, cmd.InOrStdin())
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// Logs go to stderr so stdout stays clean for scripting.
	logger := logging.New(cmd.ErrOrStderr(), cfg.LogLevel)

	p, err := newPipeline(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := p.stitcher.Stitch(ctx, req)
	if err != nil {
		return fmt.Errorf("stitch: %w", err)
	}
	defer res.Close()

	if err := copyArtifact(res, outPath); err != nil {
		res.Abort(err)
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s (%d bytes, job %s)\n", outPath, res.Size, res.Job.ID)
	return nil
}

// readRequest decodes a stitch request from path, or from stdin when path is "-".
func readRequest(path string, stdin io.Reader) (stitch.Request, error) {
	var req stitch.Request
	var r io.Reader
	if path == "-" {
		r = stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return req, fmt.Errorf("open request: %w", err)
		}
		defer f.Close()
		r = f
	}

	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return req, fmt.Errorf("decode request: %w", err)
	}
	return req, nil
}

// copyArtifact writes the rendered file to dest through a temporary sibling so a
// failed copy never leaves a truncated mp4 behind.
func copyArtifact(res *stitch.Result, dest string) (err error) {
	src, err := res.Open()
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	defer src.Close()

	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, ".clipstitch-*.mp4")
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer func() {
		if err != nil {
			os.Remove(tmp.Name())
		}
	}()

	if _, err = io.Copy(tmp, src); err != nil {
		tmp.Close()
		return fmt.Errorf("write output: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if err = os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("move output into place: %w", err)
	}
	return nil
}
