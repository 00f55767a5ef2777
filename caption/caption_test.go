package caption

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const timedSample = "\ufeff1\r\n00:00:00,000 --> 00:00:01,200\r\nHello there\r\n\r\n\r\n2\r\n00:00:01,200 --> 00:00:02,000\r\nGeneral Kenobi\r\n"

func TestCleanStages(t *testing.T) {
	assert.Equal(t, "abc", StripBOM("\ufeffabc"))
	assert.Equal(t, "a\nb\nc", UnifyLineEndings("a\r\nb\rc"))
	assert.Equal(t, "text\n12 monkeys", StripIndexLines("1\ntext\n  42 \n12 monkeys"))
	assert.Equal(t, "a\nb", StripTimecodeLines("a\n00:00:01,000 --> 00:00:02,500\nb"))
	assert.Equal(t, "a\n\nb\n", CollapseBlankLines("a\n  \n\n\t\nb\n"))

	names := make([]string, len(Stages))
	for i, st := range Stages {
		names[i] = st.Name
	}
	assert.Equal(t, []string{
		"strip-bom", "unify-line-endings", "strip-index-lines",
		"strip-timecode-lines", "collapse-blanks", "trim",
	}, names)
}

func TestClean(t *testing.T) {
	assert.Equal(t, "Hello there\n\nGeneral Kenobi", Clean(timedSample))
	assert.Equal(t, "plain words here", Clean("  plain words here \n"))
	assert.Equal(t, "", Clean("1\n2\n\n3"))
}

func TestClean_IsFixedPoint(t *testing.T) {
	inputs := []string{
		timedSample,
		"one two three four",
		"\n\n  a\n\n\n\nb  \r\n",
		"7\n00:00:00.5 --> 00:00:01.0\nmixed . separators\n",
		"",
		"\ufeff\ufeffhello world",
		" \ufeffhello world",
		"\n\ufeff1\nhello",
	}
	for _, in := range inputs {
		once := Clean(in)
		assert.Equal(t, once, Clean(once), "input %q", in)
	}
}

func TestClean_StripsEmbeddedBOMs(t *testing.T) {
	assert.Equal(t, "hello world", Clean("\ufeff\ufeffhello world"))
	assert.Equal(t, "hello world", Clean(" \ufeffhello world"))
	assert.Equal(t, "hello", Clean("\n\ufeff1\nhello"))
}

func TestIsTimecoded(t *testing.T) {
	assert.True(t, IsTimecoded(timedSample))
	assert.True(t, IsTimecoded("00:00:00.000 --> 00:00:01.000\nhi"))
	assert.False(t, IsTimecoded("one two three"))
	assert.False(t, IsTimecoded("1\n2\n3"))
}

func TestSynthesize_EvenDistribution(t *testing.T) {
	tr := Synthesize("one two three four", 4.0, Options{})
	require.Equal(t, 4, tr.Len())
	for i, c := range tr.Cues {
		assert.Equal(t, i+1, c.Index)
		assert.InDelta(t, float64(i), c.Start, 1e-9)
		assert.InDelta(t, float64(i+1), c.End, 1e-9)
	}
	assert.Equal(t, []string{"one", "two", "three", "four"}, texts(tr))
}

func TestSynthesize_ClampedAndTruncated(t *testing.T) {
	words := make([]string, 100)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}
	tr := Synthesize(strings.Join(words, " "), 2.0, Options{})
	require.Equal(t, 8, tr.Len())
	assert.Equal(t, "w0", tr.Cues[0].Text)
	assert.Equal(t, "w7", tr.Cues[7].Text)
	assert.InDelta(t, 2.0, tr.Cues[7].End, 1e-9)
	for _, c := range tr.Cues {
		assert.InDelta(t, 0.25, c.Duration(), 1e-9)
	}
}

func TestSynthesize_UpperClamp(t *testing.T) {
	tr := Synthesize("slow words", 10.0, Options{})
	require.Equal(t, 2, tr.Len())
	assert.InDelta(t, 1.2, tr.Cues[0].End, 1e-9)
	assert.InDelta(t, 2.4, tr.Cues[1].End, 1e-9)
}

func TestSynthesize_ZeroWords(t *testing.T) {
	for _, text := range []string{"", "   \n\t"} {
		tr := Synthesize(text, 5, Options{})
		require.Equal(t, 1, tr.Len())
		assert.Equal(t, 1, tr.Cues[0].Index)
		assert.Equal(t, "", tr.Cues[0].Text)
		assert.Equal(t, 0.0, tr.Cues[0].Start)
		assert.Equal(t, EmptyCueSeconds, tr.Cues[0].End)
	}
	assert.Equal(t, 0.2, Synthesize("", 0.2, Options{}).Cues[0].End)
}

func TestSynthesize_TinyReference(t *testing.T) {
	tr := Synthesize("a b c", 0.1, Options{})
	require.Equal(t, 1, tr.Len())
	assert.Equal(t, "a", tr.Cues[0].Text)
	assert.Equal(t, 0.1, tr.Cues[0].End)
}

func TestSynthesize_Stretch(t *testing.T) {
	tr := Synthesize("one two three four", 4.0, Options{Stretch: 1.1})
	require.Equal(t, 4, tr.Len())
	assert.InDelta(t, 4.4, tr.Cues[3].End, 1e-9)

	same := Synthesize("one two three four", 4.0, Options{Stretch: 0.5})
	assert.InDelta(t, 4.0, same.Cues[3].End, 1e-9)
}

func TestSynthesize_Invariants(t *testing.T) {
	for _, n := range []int{1, 2, 3, 7, 20, 57, 100} {
		for _, total := range []float64{0.3, 1, 2.1, 4, 9.99, 30} {
			words := strings.TrimSpace(strings.Repeat("word ", n))
			tr := Synthesize(words, total, Options{})
			per := PerWord(total, n)
			want := int(math.Min(float64(n), math.Floor(total/per+1e-9)))
			require.Equal(t, want, tr.Len(), "n=%d total=%v", n, total)

			for i, c := range tr.Cues {
				assert.Equal(t, i+1, c.Index)
				assert.GreaterOrEqual(t, c.Duration(), MinCueSeconds-1e-9)
				assert.LessOrEqual(t, c.Duration(), MaxCueSeconds+1e-9)
				assert.LessOrEqual(t, c.End, total+1e-9)
				if i > 0 {
					prev := tr.Cues[i-1]
					assert.Greater(t, c.Start, prev.Start)
					assert.GreaterOrEqual(t, c.Start, prev.End-1e-9)
				}
			}
		}
	}
}

func TestSynthesize_NormalMode(t *testing.T) {
	text := "the quick brown fox jumps over the lazy dog again and again"
	tr := Synthesize(text, 12, Options{Mode: ModeNormal})
	require.Equal(t, 2, tr.Len())
	assert.Equal(t, "the quick brown fox jumps over the", tr.Cues[0].Text)
	assert.Equal(t, "lazy dog again and again", tr.Cues[1].Text)
	assert.InDelta(t, 0, tr.Cues[0].Start, 1e-9)
	assert.InDelta(t, 7, tr.Cues[0].End, 1e-9)
	assert.InDelta(t, 7, tr.Cues[1].Start, 1e-9)
	assert.InDelta(t, 12, tr.Cues[1].End, 1e-9)

	long := Synthesize("abcdefghijklmnopqrst abcdefghijklmnopqrst xyz", 3, Options{Mode: ModeNormal})
	require.Equal(t, 2, long.Len())
	assert.Equal(t, "abcdefghijklmnopqrst abcdefghijklmnopqrst", long.Cues[0].Text)
	assert.Equal(t, "xyz", long.Cues[1].Text)
}

func TestParseMode(t *testing.T) {
	m, ok := ParseMode("")
	assert.True(t, ok)
	assert.Equal(t, ModeWords, m)
	m, ok = ParseMode(" Normal ")
	assert.True(t, ok)
	assert.Equal(t, ModeNormal, m)
	_, ok = ParseMode("karaoke")
	assert.False(t, ok)
}

func TestFormatTimestamp(t *testing.T) {
	assert.Equal(t, "00:00:00,000", FormatTimestamp(0))
	assert.Equal(t, "00:00:01,250", FormatTimestamp(1.25))
	assert.Equal(t, "01:01:01,001", FormatTimestamp(3661.001))
	assert.Equal(t, "00:00:00,000", FormatTimestamp(-3))
}

func TestTrackSRT(t *testing.T) {
	tr := Synthesize("one two", 2, Options{})
	want := "1\n00:00:00,000 --> 00:00:01,000\none\n\n2\n00:00:01,000 --> 00:00:02,000\ntwo\n"
	assert.Equal(t, want, tr.SRT())
}

func TestParseSRT(t *testing.T) {
	tr, err := ParseSRT(timedSample)
	require.NoError(t, err)
	require.Equal(t, 2, tr.Len())
	assert.Equal(t, "Hello there", tr.Cues[0].Text)
	assert.InDelta(t, 1.2, tr.Cues[0].End, 1e-9)
	assert.Equal(t, "General Kenobi", tr.Cues[1].Text)

	short, err := ParseSRT("00:00:00.5 --> 00:00:01.75\nno index")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, short.Cues[0].Start, 1e-9)
	assert.InDelta(t, 1.75, short.Cues[0].End, 1e-9)

	_, err = ParseSRT("1\nnot a timecode\ntext")
	assert.Error(t, err)
	_, err = ParseSRT("  ")
	assert.Error(t, err)
}

func TestSRTRoundTrip(t *testing.T) {
	tr := Synthesize("alpha beta gamma", 3, Options{})
	back, err := ParseSRT(tr.SRT())
	require.NoError(t, err)
	assert.Equal(t, tr, back)
}

func TestPrepare(t *testing.T) {
	t.Run("plain text is synthesized", func(t *testing.T) {
		p := Prepare("1\none two three four\n", 4, Options{})
		assert.False(t, p.Verbatim)
		assert.Equal(t, 4, p.Track.Len())
		assert.Equal(t, p.Track.SRT(), p.SRT)
	})

	t.Run("timecoded text is kept", func(t *testing.T) {
		p := Prepare(timedSample, 99, Options{})
		assert.True(t, p.Verbatim)
		assert.Equal(t, 2, p.Track.Len())
		assert.Equal(t, "1\n00:00:00,000 --> 00:00:01,200\nHello there\n\n\n2\n00:00:01,200 --> 00:00:02,000\nGeneral Kenobi\n", p.SRT)
	})

	t.Run("malformed timecoded text keeps the parse error", func(t *testing.T) {
		raw := "00:00:00,000 --> 00:00:01,000\nhi\n\n2\nbroken\ntext\n"
		p := Prepare(raw, 4, Options{})
		assert.True(t, p.Verbatim)
		assert.Error(t, p.ParseErr)
		assert.Equal(t, raw, p.SRT)

		assert.NoError(t, Prepare(timedSample, 4, Options{}).ParseErr)
	})

	t.Run("no double processing", func(t *testing.T) {
		for _, raw := range []string{"one two three four", timedSample, "", strings.Repeat("x ", 50)} {
			first := Prepare(raw, 4, Options{})
			second := Prepare(first.SRT, 4, Options{})
			assert.Equal(t, first.SRT, second.SRT, "input %q", raw)
			assert.True(t, second.Verbatim)
		}
	})
}

func texts(tr Track) []string {
	out := make([]string, len(tr.Cues))
	for i, c := range tr.Cues {
		out[i] = c.Text
	}
	return out
}
