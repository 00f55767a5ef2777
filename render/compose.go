// Package render turns stitch inputs into one ffmpeg invocation: a crossfade chain, an
// output normalization chain with optional captions, padding and fade-out, and an
// optional voice-over chain, serialized once into a Job.
package render

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"clipstitch/graph"
)

// Output labels mapped into the delivered file.
const (
	VideoOut graph.Label = "v"
	AudioOut graph.Label = "a"
)

// Audio is the optional voice-over input.
type Audio struct {
	Path string
	// Gain is a linear volume multiplier.
	Gain float64
	// Duration is the container duration in seconds; 0 when unknown.
	Duration float64
}

// Style configures burned-in captions through the subtitles filter's force_style.
type Style struct {
	Font          string
	Size          int
	PrimaryColour string
	OutlineColour string
	BorderStyle   int
	Outline       int
	Shadow        int
	Alignment     int
	MarginV       int
}

// DefaultStyle is white text on a black box, bottom centered.
func DefaultStyle(font string, size int) Style {
	if font == "" {
		font = "Anton"
	}
	if size <= 0 {
		size = 36
	}
	return Style{
		Font:          font,
		Size:          size,
		PrimaryColour: "&H00FFFFFF&",
		OutlineColour: "&H00000000&",
		BorderStyle:   3,
		Outline:       2,
		Shadow:        1,
		Alignment:     2,
		MarginV:       60,
	}
}

// ForceStyle renders the ASS style override list.
func (s Style) ForceStyle() string {
	fields := []string{
		"Fontname=" + s.Font,
		"Fontsize=" + strconv.Itoa(s.Size),
		"PrimaryColour=" + s.PrimaryColour,
		"OutlineColour=" + s.OutlineColour,
		"BorderStyle=" + strconv.Itoa(s.BorderStyle),
		"Outline=" + strconv.Itoa(s.Outline),
		"Shadow=" + strconv.Itoa(s.Shadow),
		"Alignment=" + strconv.Itoa(s.Alignment),
		"MarginV=" + strconv.Itoa(s.MarginV),
	}
	return strings.Join(fields, ",")
}

// Profile is the fixed container/codec profile of the delivered artifact.
type Profile struct {
	Width        int
	FPS          int
	PixelFormat  string
	VideoArgs    []string
	AudioCodec   string
	AudioBitrate string
	SampleRate   int
}

// DefaultProfile is 1080 px wide H.264 at 30 fps with 48 kHz AAC audio.
func DefaultProfile() Profile {
	return Profile{
		Width:        1080,
		FPS:          30,
		PixelFormat:  "yuv420p",
		VideoArgs:    []string{"-c:v", "libx264", "-profile:v", "high", "-level", "4.0", "-movflags", "+faststart"},
		AudioCodec:   "aac",
		AudioBitrate: "192k",
		SampleRate:   48000,
	}
}

func (p Profile) withDefaults() Profile {
	def := DefaultProfile()
	if p.Width <= 0 {
		p.Width = def.Width
	}
	if p.FPS <= 0 {
		p.FPS = def.FPS
	}
	if p.PixelFormat == "" {
		p.PixelFormat = def.PixelFormat
	}
	if len(p.VideoArgs) == 0 {
		p.VideoArgs = def.VideoArgs
	}
	if p.AudioCodec == "" {
		p.AudioCodec = def.AudioCodec
	}
	if p.AudioBitrate == "" {
		p.AudioBitrate = def.AudioBitrate
	}
	if p.SampleRate <= 0 {
		p.SampleRate = def.SampleRate
	}
	return p
}

// Spec is everything Compose needs for one render.
type Spec struct {
	Clips []Clip
	Fade  float64
	// Captions is the path of an SRT file to burn in; empty disables captions.
	Captions string
	Style    Style
	Audio    *Audio
	// TargetDuration pads or trims the video to this length; 0 keeps the natural length.
	TargetDuration float64
	// FadeOut is the length of the closing fade to black; 0 disables it.
	FadeOut float64
	Output  string
	Profile Profile
}

// Job is a fully composed render, consumed once by the executor.
type Job struct {
	Inputs     []string
	Graph      string
	Maps       []graph.Label
	OutputArgs []string
	Output     string

	Offsets          []float64
	NaturalDuration  float64
	ExpectedDuration float64
	HasAudio         bool
}

// Args returns the ffmpeg argument list, without the binary.
func (j *Job) Args() []string {
	args := []string{"-y", "-nostdin", "-loglevel", "error"}
	for _, in := range j.Inputs {
		args = append(args, "-i", in)
	}
	args = append(args, "-filter_complex", j.Graph)
	for _, m := range j.Maps {
		args = append(args, "-map", m.String())
	}
	args = append(args, j.OutputArgs...)
	return append(args, j.Output)
}

// Compose builds the render job for spec.
func Compose(spec Spec) (*Job, error) {
	if spec.Output == "" {
		return nil, &graph.ConstructionError{Reason: "no output path"}
	}
	if spec.TargetDuration < 0 || spec.FadeOut < 0 {
		return nil, &graph.ConstructionError{Reason: "target duration and fade-out must not be negative"}
	}
	for i, c := range spec.Clips {
		if c.Path == "" {
			return nil, &graph.ConstructionError{Reason: fmt.Sprintf("clip %d has no path", i)}
		}
	}
	if a := spec.Audio; a != nil && (a.Path == "" || a.Gain < 0) {
		return nil, &graph.ConstructionError{Reason: "audio needs a path and a non-negative gain"}
	}
	p := spec.Profile.withDefaults()

	g := graph.New()
	chain, err := BuildChain(g, spec.Clips, spec.Fade)
	if err != nil {
		return nil, fmt.Errorf("crossfade: %w", err)
	}

	video := []graph.Filter{
		graph.F("scale", graph.Pos(strconv.Itoa(p.Width)), graph.Pos("-2")),
		graph.F("fps", graph.Pos(strconv.Itoa(p.FPS))),
		graph.F("format", graph.Pos(p.PixelFormat)),
	}
	if spec.Captions != "" {
		style := spec.Style
		if style.Font == "" {
			style = DefaultStyle("", 0)
		}
		video = append(video, graph.F("subtitles",
			graph.KV("filename", graph.EscapeGraph(graph.EscapePath(spec.Captions))),
			graph.KV("force_style", graph.Quote(style.ForceStyle())),
		))
	}

	expected := chain.NaturalDuration
	if target := spec.TargetDuration; target > 0 {
		switch {
		case chain.NaturalDuration < target:
			video = append(video, graph.F("tpad",
				graph.KV("stop_mode", "clone"),
				graph.KV("stop_duration", graph.Seconds(target-chain.NaturalDuration)),
			))
		case chain.NaturalDuration > target:
			video = append(video,
				graph.F("trim", graph.KV("duration", graph.Seconds(target))),
				graph.F("setpts", graph.Pos("PTS-STARTPTS")),
			)
		}
		expected = target
	}

	// With -shortest the shorter track bounds the delivered file, so the fade
	// has to end where the voice-over does.
	if a := spec.Audio; a != nil && a.Duration > 0 {
		expected = math.Min(expected, a.Duration)
	}
	fadeStart := math.Max(0, expected-spec.FadeOut)
	if spec.FadeOut > 0 {
		video = append(video, graph.F("fade",
			graph.KV("t", "out"),
			graph.KV("st", graph.Seconds(fadeStart)),
			graph.KV("d", graph.Seconds(spec.FadeOut)),
		))
	}
	if err := g.Chain(chain.Terminal, VideoOut, video...); err != nil {
		return nil, fmt.Errorf("video output: %w", err)
	}

	job := &Job{
		Maps:            []graph.Label{VideoOut},
		Output:          spec.Output,
		Offsets:         chain.Offsets,
		NaturalDuration: chain.NaturalDuration,
	}
	for _, c := range spec.Clips {
		job.Inputs = append(job.Inputs, c.Path)
	}
	job.OutputArgs = append(job.OutputArgs, p.VideoArgs...)

	if a := spec.Audio; a != nil {
		audio := []graph.Filter{
			graph.F("aresample", graph.Pos(strconv.Itoa(p.SampleRate))),
			graph.F("volume", graph.Pos(graph.Number(a.Gain))),
		}
		if spec.FadeOut > 0 {
			audio = append(audio, graph.F("afade",
				graph.KV("t", "out"),
				graph.KV("st", graph.Seconds(fadeStart)),
				graph.KV("d", graph.Seconds(spec.FadeOut)),
			))
		}
		if err := g.Chain(graph.Stream(len(spec.Clips), "a"), AudioOut, audio...); err != nil {
			return nil, fmt.Errorf("audio output: %w", err)
		}
		job.Inputs = append(job.Inputs, a.Path)
		job.Maps = append(job.Maps, AudioOut)
		job.OutputArgs = append(job.OutputArgs, "-c:a", p.AudioCodec, "-b:a", p.AudioBitrate, "-shortest")
		job.HasAudio = true
	} else {
		job.OutputArgs = append(job.OutputArgs, "-an")
	}

	if open := g.Open(); len(open) != len(job.Maps) {
		return nil, &graph.ConstructionError{Reason: fmt.Sprintf("unmapped graph outputs %v", open)}
	}
	job.Graph = g.Render()
	job.ExpectedDuration = expected
	return job, nil
}
