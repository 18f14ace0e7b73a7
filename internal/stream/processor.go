// Package stream implements the marker-aware buffer that sits between a
// streaming LLM provider and the user-visible token stream.
package stream

import (
	"strings"

	"github.com/ariahome/aria/internal/respond"
)

// Processor scrubs the continue-listening marker from a live token
// stream. The marker can be split across any number of deltas, so text
// that could be the start of a marker is held back until it either
// completes (and is stripped) or turns out to be ordinary text (and is
// flushed verbatim). The concatenation of everything returned by Feed,
// Flush, and Finalize never contains the marker.
type Processor struct {
	marker      string
	accumulated strings.Builder
	buffer      string
	markerFound bool
}

// New returns a processor for the standard marker.
func New() *Processor {
	return &Processor{marker: respond.Marker}
}

// Feed consumes one text delta and returns the text that is now safe to
// emit. An empty return means the delta is being held pending more input.
func (p *Processor) Feed(delta string) string {
	p.accumulated.WriteString(delta)
	p.buffer += delta

	if strings.Contains(p.buffer, p.marker) {
		p.markerFound = true
		out := strings.ReplaceAll(p.buffer, p.marker, "")
		p.buffer = ""
		return out
	}
	if p.holdsMarkerPrefix() {
		return ""
	}
	out := p.buffer
	p.buffer = ""
	return out
}

// holdsMarkerPrefix reports whether the buffer ends with a non-empty
// proper prefix of the marker, meaning a marker may still be arriving.
func (p *Processor) holdsMarkerPrefix() bool {
	max := len(p.marker) - 1
	if len(p.buffer) < max {
		max = len(p.buffer)
	}
	for k := max; k >= 1; k-- {
		if strings.HasSuffix(p.buffer, p.marker[:k]) {
			return true
		}
	}
	return false
}

// Flush returns any residual held text at end of stream. A false-start
// sequence that never completed into a marker is ordinary text and is
// released verbatim; once a marker has been seen, a trailing partial is
// treated as garbage and dropped.
func (p *Processor) Flush() string {
	out := p.buffer
	p.buffer = ""
	if p.markerFound {
		return ""
	}
	return out
}

// Finalize returns the synthetic trailing delta, if any. When the marker
// was found and the cleaned transcript does not already end in "?", a
// single "?" delta forces the spoken output to end as a question so the
// voice UI keeps the microphone open.
func (p *Processor) Finalize() string {
	if !p.markerFound {
		return ""
	}
	if strings.HasSuffix(strings.TrimRight(p.Clean(), " \t\n"), "?") {
		return ""
	}
	return "?"
}

// MarkerFound reports whether a complete marker has been seen.
func (p *Processor) MarkerFound() bool { return p.markerFound }

// Accumulated returns the full raw transcript including any markers.
func (p *Processor) Accumulated() string { return p.accumulated.String() }

// Clean returns the transcript with all markers removed. This is the
// text to record in conversation history.
func (p *Processor) Clean() string {
	return strings.ReplaceAll(p.accumulated.String(), p.marker, "")
}
