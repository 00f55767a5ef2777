package render

import (
	"fmt"
	"math"

	"clipstitch/graph"
)

// Terminal is the label of the crossfaded composite, whatever the clip count.
const Terminal graph.Label = "vout"

// Clip is one local input with its probed video duration in seconds.
type Clip struct {
	Path     string
	Duration float64
}

// Chain describes the crossfade stage added to a graph.
type Chain struct {
	// Offsets holds one offset per transition, in order.
	Offsets []float64
	// Terminal is the composite label, always Terminal.
	Terminal graph.Label
	// NaturalDuration is the estimated composite length before padding or trimming.
	NaturalDuration float64
}

// TransitionOffset returns where the k-th transition (1-based) starts on the composite
// timeline: the summed durations of the clips before it, minus k fades, floored at 0.
func TransitionOffset(durations []float64, k int, fade float64) float64 {
	sum := 0.0
	for _, d := range durations[:k] {
		sum += d
	}
	return math.Max(0, sum-float64(k)*fade)
}

// NaturalDuration estimates the crossfaded length: all clips minus one fade per
// transition.
func NaturalDuration(durations []float64, fade float64) float64 {
	sum := 0.0
	for _, d := range durations {
		sum += d
	}
	if len(durations) > 1 {
		sum -= float64(len(durations)-1) * fade
	}
	return math.Max(0, sum)
}

// BuildChain adds the crossfade chain for clips, which must be the graph's first
// len(clips) inputs in order. With two clips the second stage is a pass-through so
// the composite is always labeled Terminal.
func BuildChain(g *graph.Graph, clips []Clip, fade float64) (Chain, error) {
	if len(clips) < 2 {
		return Chain{}, &graph.ConstructionError{Reason: fmt.Sprintf("crossfade needs at least 2 clips, got %d", len(clips))}
	}
	if fade < 0 || math.IsNaN(fade) {
		return Chain{}, &graph.ConstructionError{Reason: fmt.Sprintf("invalid fade %v", fade)}
	}

	durations := make([]float64, len(clips))
	for i, c := range clips {
		durations[i] = c.Duration
		// Upstream containers may not start at zero.
		err := g.Chain(graph.Stream(i, "v"), clipLabel(i), graph.F("setpts", graph.Pos("PTS-STARTPTS")))
		if err != nil {
			return Chain{}, err
		}
	}

	chain := Chain{Terminal: Terminal, NaturalDuration: NaturalDuration(durations, fade)}
	prev := clipLabel(0)
	for k := 1; k < len(clips); k++ {
		offset := TransitionOffset(durations, k, fade)
		out := graph.Label(fmt.Sprintf("x%d", k))
		if k == len(clips)-1 && len(clips) > 2 {
			out = Terminal
		}
		err := g.Add([]graph.Label{prev, clipLabel(k)}, []graph.Label{out},
			graph.F("xfade",
				graph.KV("transition", "fade"),
				graph.KV("duration", graph.Seconds(fade)),
				graph.KV("offset", graph.Seconds(offset)),
			))
		if err != nil {
			return Chain{}, err
		}
		chain.Offsets = append(chain.Offsets, offset)
		prev = out
	}

	if prev != Terminal {
		if err := g.Chain(prev, Terminal, graph.F("null")); err != nil {
			return Chain{}, err
		}
	}
	return chain, nil
}

func clipLabel(i int) graph.Label {
	return graph.Label(fmt.Sprintf("v%d", i))
}
