// Package caption turns raw caption text into a timed cue track. Untimed prose is spread
// evenly over a reference duration; text that already carries timecodes is kept as is.
package caption

import (
	"math"
	"strings"
	"unicode/utf8"
)

const (
	// MinCueSeconds and MaxCueSeconds bound the time given to a single word.
	MinCueSeconds = 0.25
	MaxCueSeconds = 1.2

	// EmptyCueSeconds is the length of the placeholder cue for text without words.
	EmptyCueSeconds = 0.5

	lineWordBudget = 7
	lineCharBudget = 42

	// fitEpsilon absorbs float error when checking whether a word slot fits.
	fitEpsilon = 1e-9
)

// Mode selects how words are grouped into cues.
type Mode string

const (
	ModeWords  Mode = "words"
	ModeNormal Mode = "normal"
)

// ParseMode maps a request value to a Mode. The empty string selects ModeWords.
func ParseMode(s string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeWords:
		return ModeWords, true
	case ModeNormal:
		return ModeNormal, true
	default:
		return "", false
	}
}

// Options tunes synthesis.
type Options struct {
	Mode Mode
	// Stretch > 1 lengthens the reference duration before words are distributed,
	// so captions lag slightly behind fast speech.
	Stretch float64
}

// Cue is one timed caption entry. Times are in seconds.
type Cue struct {
	Index int
	Start float64
	End   float64
	Text  string
}

// Duration returns End - Start.
func (c Cue) Duration() float64 { return c.End - c.Start }

// Track is an ordered list of cues with contiguous 1-based indices.
type Track struct {
	Cues []Cue
}

// Len returns the number of cues.
func (t Track) Len() int { return len(t.Cues) }

// PerWord returns the clamped time slot given to each word.
func PerWord(total float64, words int) float64 {
	if words <= 0 {
		return 0
	}
	return math.Min(MaxCueSeconds, math.Max(MinCueSeconds, total/float64(words)))
}

// Synthesize distributes the words of cleaned text evenly over total seconds.
// Words that do not fit are dropped; text without words yields one blank cue.
func Synthesize(text string, total float64, opts Options) Track {
	if opts.Stretch > 1 {
		total *= opts.Stretch
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return Track{Cues: []Cue{{Index: 1, Start: 0, End: emptyCueEnd(total)}}}
	}

	per := PerWord(total, len(words))
	fit := 0
	for fit < len(words) && float64(fit+1)*per <= total+fitEpsilon {
		fit++
	}
	if fit == 0 {
		// Not even one slot fits the reference; show the first word for all of it.
		end := total
		if end <= 0 {
			end = EmptyCueSeconds
		}
		return Track{Cues: []Cue{{Index: 1, Start: 0, End: end, Text: words[0]}}}
	}
	words = words[:fit]

	if opts.Mode == ModeNormal {
		return lineCues(words, per, total)
	}

	cues := make([]Cue, 0, len(words))
	for i, w := range words {
		start := float64(i) * per
		cues = append(cues, Cue{
			Index: i + 1,
			Start: start,
			End:   math.Min(total, start+per),
			Text:  w,
		})
	}
	return Track{Cues: cues}
}

// lineCues packs words into readable lines; each line spans the slots of its words.
func lineCues(words []string, per, total float64) Track {
	var cues []Cue
	first := 0
	flush := func(last int) {
		start := float64(first) * per
		cues = append(cues, Cue{
			Index: len(cues) + 1,
			Start: start,
			End:   math.Min(total, float64(last+1)*per),
			Text:  strings.Join(words[first:last+1], " "),
		})
		first = last + 1
	}

	lineLen := 0
	for i, w := range words {
		wl := utf8.RuneCountInString(w)
		next := wl
		if i > first {
			next = lineLen + 1 + wl
		}
		if i > first && (i-first >= lineWordBudget || next > lineCharBudget) {
			flush(i - 1)
			next = wl
		}
		lineLen = next
	}
	flush(len(words) - 1)
	return Track{Cues: cues}
}

func emptyCueEnd(total float64) float64 {
	if total > 0 && total < EmptyCueSeconds {
		return total
	}
	return EmptyCueSeconds
}
