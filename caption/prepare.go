package caption

import "strings"

// Prepared is the caption track ready to be written next to the render inputs.
type Prepared struct {
	Track Track
	// SRT is the exact file content handed to the subtitles filter.
	SRT string
	// Verbatim is set when the input already carried timecodes and was kept as is.
	Verbatim bool
	// ParseErr reports why verbatim input did not parse as SubRip. The text is
	// still handed to ffmpeg unchanged.
	ParseErr error
}

// Prepare builds the caption file for raw text. Timecoded input is used verbatim
// and never re-synthesized, so Prepare(Prepare(x).SRT).SRT == Prepare(x).SRT.
func Prepare(raw string, total float64, opts Options) Prepared {
	if IsTimecoded(raw) {
		srt := UnifyLineEndings(StripBOM(raw))
		srt = strings.TrimRight(strings.TrimLeft(srt, " \t\n"), "\n") + "\n"
		tr, err := ParseSRT(srt)
		return Prepared{Track: tr, SRT: srt, Verbatim: true, ParseErr: err}
	}
	tr := Synthesize(Clean(raw), total, opts)
	return Prepared{Track: tr, SRT: tr.SRT()}
}
