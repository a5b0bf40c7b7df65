package capture

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rbright/inkwell/internal/recognition"
)

// Accumulator turns cumulative engine results into committed and pending text.
//
// Committed text only ever grows by finalized segments. Pending text mirrors
// the latest interim hypothesis and is never committed.
type Accumulator struct {
	committed string
	pending   string
	// seen holds the result indices of the current session already committed.
	// Engines may finalize a lower index after a higher one.
	seen map[int]struct{}
}

// BeginSession resets per-session index tracking. Committed text survives.
func (a *Accumulator) BeginSession() {
	a.seen = nil
	a.pending = ""
}

// Apply processes one engine result and reports whether committed text grew.
func (a *Accumulator) Apply(result recognition.Result) bool {
	start := result.Index
	if start < 0 {
		start = 0
	}

	var finals, interim []string
	for i := start; i < len(result.Segments); i++ {
		segment := result.Segments[i]
		text := strings.TrimSpace(segment.Transcript)
		if segment.Final {
			if _, done := a.seen[i]; done {
				continue
			}
			if a.seen == nil {
				a.seen = make(map[int]struct{})
			}
			a.seen[i] = struct{}{}
			if text != "" {
				finals = append(finals, text)
			}
			continue
		}
		if text != "" {
			interim = append(interim, text)
		}
	}

	a.pending = strings.Join(interim, " ")
	if len(finals) == 0 {
		return false
	}

	addition := strings.Join(finals, " ")
	if a.committed != "" && !endsWithSpace(a.committed) {
		a.committed += " "
	}
	a.committed += addition
	return true
}

// Committed returns the durable transcript.
func (a *Accumulator) Committed() string {
	return a.committed
}

// Pending returns the in-progress interim hypothesis.
func (a *Accumulator) Pending() string {
	return a.pending
}

// Reset clears both buffers.
func (a *Accumulator) Reset() {
	a.committed = ""
	a.pending = ""
}

func endsWithSpace(s string) bool {
	r, size := utf8.DecodeLastRuneInString(s)
	return size > 0 && unicode.IsSpace(r)
}
