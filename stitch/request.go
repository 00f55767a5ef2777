package stitch

import (
	"fmt"
	"math"
	"net/url"
	"strings"

	"clipstitch/caption"
)

const (
	DefaultFade      = 0.5
	DefaultAudioGain = 1.0
	DefaultMaxClips  = 3
	// FallbackDuration replaces a probe result that is missing, non-finite or not positive.
	FallbackDuration = 10.0
	minClips         = 2
)

// Request is the stitch payload accepted over HTTP and by the CLI.
type Request struct {
	Clips          []string `json:"clips"`
	Fade           *float64 `json:"fade,omitempty"`
	AudioURL       string   `json:"audioUrl,omitempty"`
	AudioGain      *float64 `json:"audioGain,omitempty"`
	SubtitlesText  string   `json:"subtitles_text,omitempty"`
	SubtitleMode   string   `json:"subtitle_mode,omitempty"`
	TargetDuration *float64 `json:"targetDuration,omitempty"`
	FadeOut        *float64 `json:"fadeOut,omitempty"`
}

// Options is a validated Request with defaults applied.
type Options struct {
	Clips     []string
	Fade      float64
	AudioURL  string
	AudioGain float64
	// Captions is the raw caption text; empty disables captions.
	Captions       string
	Mode           caption.Mode
	TargetDuration float64
	FadeOut        float64
}

// ValidationError rejects a request before any resource is touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validate checks r and returns the options a stitch runs with.
func (r Request) Validate(maxClips int) (Options, error) {
	if maxClips < minClips {
		maxClips = DefaultMaxClips
	}
	if len(r.Clips) < minClips {
		return Options{}, &ValidationError{Field: "clips", Reason: fmt.Sprintf("provide at least %d clip urls", minClips)}
	}
	if len(r.Clips) > maxClips {
		return Options{}, &ValidationError{Field: "clips", Reason: fmt.Sprintf("at most %d clips are supported", maxClips)}
	}

	opts := Options{
		Clips:     make([]string, len(r.Clips)),
		Fade:      DefaultFade,
		AudioGain: DefaultAudioGain,
		Captions:  r.SubtitlesText,
	}
	for i, c := range r.Clips {
		u, err := checkURL(c)
		if err != nil {
			return Options{}, &ValidationError{Field: fmt.Sprintf("clips[%d]", i), Reason: err.Error()}
		}
		opts.Clips[i] = u
	}

	if r.Fade != nil {
		if !finite(*r.Fade) || *r.Fade < 0 {
			return Options{}, &ValidationError{Field: "fade", Reason: "must be a non-negative number of seconds"}
		}
		opts.Fade = *r.Fade
	}

	if r.AudioURL != "" {
		u, err := checkURL(r.AudioURL)
		if err != nil {
			return Options{}, &ValidationError{Field: "audioUrl", Reason: err.Error()}
		}
		opts.AudioURL = u
	}
	if r.AudioGain != nil {
		if !finite(*r.AudioGain) || *r.AudioGain < 0 {
			return Options{}, &ValidationError{Field: "audioGain", Reason: "must be a non-negative multiplier"}
		}
		opts.AudioGain = *r.AudioGain
	}

	mode, ok := caption.ParseMode(r.SubtitleMode)
	if !ok {
		return Options{}, &ValidationError{Field: "subtitle_mode", Reason: fmt.Sprintf("unknown mode %q, expected words or normal", r.SubtitleMode)}
	}
	opts.Mode = mode

	if r.TargetDuration != nil {
		if !finite(*r.TargetDuration) || *r.TargetDuration <= 0 {
			return Options{}, &ValidationError{Field: "targetDuration", Reason: "must be a positive number of seconds"}
		}
		opts.TargetDuration = *r.TargetDuration
	}
	if r.FadeOut != nil {
		if !finite(*r.FadeOut) || *r.FadeOut < 0 {
			return Options{}, &ValidationError{Field: "fadeOut", Reason: "must be a non-negative number of seconds"}
		}
		opts.FadeOut = *r.FadeOut
	}
	return opts, nil
}

func checkURL(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("malformed url %q", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("url %q must use http or https", raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host", raw)
	}
	return s, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
