package caption

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var timestampPair = regexp.MustCompile(
	`^\s*(\d{1,2}):(\d{2}):(\d{2})[,.](\d{1,3})\s*-->\s*(\d{1,2}):(\d{2}):(\d{2})[,.](\d{1,3})`)

// FormatTimestamp renders seconds as HH:MM:SS,mmm.
func FormatTimestamp(sec float64) string {
	if sec < 0 || math.IsNaN(sec) {
		sec = 0
	}
	ms := int64(math.Round(sec * 1000))
	h := ms / 3_600_000
	ms -= h * 3_600_000
	m := ms / 60_000
	ms -= m * 60_000
	s := ms / 1000
	ms -= s * 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// SRT renders the track as SubRip text, cues separated by a blank line and the
// whole text ending in a single newline.
func (t Track) SRT() string {
	var b strings.Builder
	for i, c := range t.Cues {
		if i > 0 {
			b.WriteByte('\n')
		}
		text := c.Text
		if strings.TrimSpace(text) == "" {
			// A cue needs a non-empty text line to stay a valid block.
			text = " "
		}
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n", c.Index, FormatTimestamp(c.Start), FormatTimestamp(c.End), text)
	}
	return b.String()
}

// ParseSRT reads SubRip text. Blocks without a timecode line are rejected.
func ParseSRT(text string) (Track, error) {
	text = strings.TrimSpace(UnifyLineEndings(StripBOM(text)))
	if text == "" {
		return Track{}, fmt.Errorf("srt: empty input")
	}

	var tr Track
	blocks := regexp.MustCompile(`\n[ \t]*\n`).Split(text, -1)
	for bi, block := range blocks {
		lines := strings.Split(strings.Trim(block, "\n"), "\n")
		ti := 0
		if ti < len(lines) && indexLine.MatchString(lines[ti]) {
			ti++
		}
		if ti >= len(lines) {
			return Track{}, fmt.Errorf("srt: block %d has no timecode", bi+1)
		}
		m := timestampPair.FindStringSubmatch(lines[ti])
		if m == nil {
			return Track{}, fmt.Errorf("srt: block %d: malformed timecode %q", bi+1, lines[ti])
		}
		tr.Cues = append(tr.Cues, Cue{
			Index: len(tr.Cues) + 1,
			Start: parseClock(m[1:5]),
			End:   parseClock(m[5:9]),
			Text:  strings.Join(lines[ti+1:], "\n"),
		})
	}
	return tr, nil
}

func parseClock(parts []string) float64 {
	h, _ := strconv.Atoi(parts[0])
	m, _ := strconv.Atoi(parts[1])
	s, _ := strconv.Atoi(parts[2])
	// "5" after a comma means 500 ms, not 5 ms.
	frac := parts[3] + strings.Repeat("0", 3-len(parts[3]))
	ms, _ := strconv.Atoi(frac)
	return float64(h*3600+m*60+s) + float64(ms)/1000
}
