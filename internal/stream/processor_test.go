package stream

import (
	"strings"
	"testing"

	"github.com/ariahome/aria/internal/respond"
)

// run feeds the chunks through a fresh processor and returns the emitted
// deltas (Feed outputs plus Flush and Finalize, empties skipped) and the
// processor itself.
func run(chunks []string) ([]string, *Processor) {
	p := New()
	var deltas []string
	for _, c := range chunks {
		if out := p.Feed(c); out != "" {
			deltas = append(deltas, out)
		}
	}
	if out := p.Flush(); out != "" {
		deltas = append(deltas, out)
	}
	if out := p.Finalize(); out != "" {
		deltas = append(deltas, out)
	}
	return deltas, p
}

func TestMarkerSplitAcrossChunks(t *testing.T) {
	deltas, p := run([]string{"Hello", " [CON", "TINUE_LISTENING]"})
	want := []string{"Hello", " ", "?"}
	if strings.Join(deltas, "|") != strings.Join(want, "|") {
		t.Errorf("deltas = %q, want %q", deltas, want)
	}
	if !p.MarkerFound() {
		t.Error("marker not detected")
	}
}

func TestPlainTextPassesThrough(t *testing.T) {
	deltas, p := run([]string{"The lights", " are on."})
	if got := strings.Join(deltas, ""); got != "The lights are on." {
		t.Errorf("emitted %q", got)
	}
	if p.MarkerFound() {
		t.Error("false marker detection")
	}
}

func TestFalseStartFlushedAtEnd(t *testing.T) {
	// "[CONT" looks like a marker start but the stream ends first.
	deltas, p := run([]string{"Working on it ", "[CONT"})
	if got := strings.Join(deltas, ""); got != "Working on it [CONT" {
		t.Errorf("emitted %q, want residue released verbatim", got)
	}
	if p.MarkerFound() {
		t.Error("false marker detection")
	}
}

func TestFalseStartResolvedMidStream(t *testing.T) {
	// "[COnope" disproves the marker prefix and must come out verbatim.
	deltas, _ := run([]string{"a [CO", "nope b"})
	if got := strings.Join(deltas, ""); got != "a [COnope b" {
		t.Errorf("emitted %q", got)
	}
}

func TestMarkerNeverEmitted(t *testing.T) {
	// Property: no split of the input ever leaks a marker substring.
	full := "Sure thing. " + respond.Marker + " What color" + respond.Marker
	for size := 1; size <= len(full); size++ {
		var chunks []string
		for i := 0; i < len(full); i += size {
			end := i + size
			if end > len(full) {
				end = len(full)
			}
			chunks = append(chunks, full[i:end])
		}
		deltas, p := run(chunks)
		joined := strings.Join(deltas, "")
		if strings.Contains(joined, respond.Marker) {
			t.Fatalf("chunk size %d leaked marker: %q", size, joined)
		}
		if !p.MarkerFound() {
			t.Fatalf("chunk size %d missed marker", size)
		}
		if joined != "Sure thing.  What color?" {
			t.Fatalf("chunk size %d emitted %q", size, joined)
		}
	}
}

func TestFinalize(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
		want   string
	}{
		{"marker without question", []string{"Which room ", respond.Marker}, "?"},
		{"marker after question", []string{"Which room? ", respond.Marker}, ""},
		{"no marker", []string{"Done."}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New()
			for _, c := range tt.chunks {
				p.Feed(c)
			}
			p.Flush()
			if got := p.Finalize(); got != tt.want {
				t.Errorf("Finalize() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCleanTranscript(t *testing.T) {
	p := New()
	p.Feed("Pick a playlist " + respond.Marker)
	if got := p.Clean(); got != "Pick a playlist " {
		t.Errorf("Clean() = %q", got)
	}
	if got := p.Accumulated(); !strings.Contains(got, respond.Marker) {
		t.Errorf("Accumulated() should keep raw text, got %q", got)
	}
}
