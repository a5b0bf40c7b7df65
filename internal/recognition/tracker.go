package recognition

import "strings"

// Tracker maintains a cumulative result list for backends that stream
// incremental hypotheses.
//
// Finalized entries are frozen. Every update replaces the unfinalized tail.
type Tracker struct {
	segments []Segment
	frozen   int
}

// Update replaces the unfinalized tail with parts and returns the resulting list.
// Empty transcripts are dropped.
func (t *Tracker) Update(parts []Segment) Result {
	index := t.frozen
	t.segments = t.segments[:t.frozen]
	for _, part := range parts {
		part.Transcript = strings.TrimSpace(part.Transcript)
		if part.Transcript == "" {
			continue
		}
		t.segments = append(t.segments, part)
	}
	for t.frozen < len(t.segments) && t.segments[t.frozen].Final {
		t.frozen++
	}

	segments := make([]Segment, len(t.segments))
	copy(segments, t.segments)
	return Result{Index: index, Segments: segments}
}

// Finals reports how many entries have been finalized.
func (t *Tracker) Finals() int {
	return t.frozen
}

// Pending reports whether an unfinalized entry is outstanding.
func (t *Tracker) Pending() bool {
	return len(t.segments) > t.frozen
}
