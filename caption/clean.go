package caption

import (
	"regexp"
	"strings"
)

var (
	indexLine    = regexp.MustCompile(`^\s*\d+\s*$`)
	timecodeLine = regexp.MustCompile(`^\s*\d{1,2}:\d{2}:\d{2}[,.]\d{1,3}\s*-->\s*\d{1,2}:\d{2}:\d{2}[,.]\d{1,3}`)
	blankRun     = regexp.MustCompile(`\n{3,}`)
)

// Stage is one named step of the text normalization pipeline.
type Stage struct {
	Name  string
	Apply func(string) string
}

// Stages is the normalization pipeline, applied in order by Clean.
var Stages = []Stage{
	{Name: "strip-bom", Apply: StripBOM},
	{Name: "unify-line-endings", Apply: UnifyLineEndings},
	{Name: "strip-index-lines", Apply: StripIndexLines},
	{Name: "strip-timecode-lines", Apply: StripTimecodeLines},
	{Name: "collapse-blanks", Apply: CollapseBlankLines},
	{Name: "trim", Apply: strings.TrimSpace},
}

// Clean turns caption text that may carry cue indices and timecodes into plain
// prose. Clean(Clean(x)) == Clean(x).
func Clean(raw string) string {
	s := raw
	for _, st := range Stages {
		s = st.Apply(s)
	}
	return s
}

// StripBOM removes every UTF-8 byte-order mark, leading or embedded.
func StripBOM(s string) string {
	return strings.ReplaceAll(s, "\ufeff", "")
}

// UnifyLineEndings converts CRLF and lone CR to LF.
func UnifyLineEndings(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// StripIndexLines drops lines that hold nothing but an integer.
func StripIndexLines(s string) string {
	return dropLines(s, indexLine)
}

// StripTimecodeLines drops "00:00:01,000 --> 00:00:02,000" lines.
func StripTimecodeLines(s string) string {
	return dropLines(s, timecodeLine)
}

// CollapseBlankLines empties whitespace-only lines and squeezes runs of blank
// lines down to one.
func CollapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	for i, ln := range lines {
		if strings.TrimSpace(ln) == "" {
			lines[i] = ""
		}
	}
	return blankRun.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
}

// IsTimecoded reports whether the text already carries real cue timing.
func IsTimecoded(raw string) bool {
	for _, ln := range strings.Split(UnifyLineEndings(StripBOM(raw)), "\n") {
		if timecodeLine.MatchString(ln) {
			return true
		}
	}
	return false
}

func dropLines(s string, re *regexp.Regexp) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, ln := range lines {
		if re.MatchString(ln) {
			continue
		}
		kept = append(kept, ln)
	}
	return strings.Join(kept, "\n")
}
