package respond

import (
	"strings"
	"testing"
)

func TestForListening(t *testing.T) {
	tests := []struct {
		name          string
		in            string
		autoContinue  bool
		want          string
		wantListening bool
	}{
		{
			name:          "marker stripped and question forced",
			in:            "What temperature do you want? " + Marker,
			want:          "What temperature do you want?",
			wantListening: true,
		},
		{
			name:          "marker without trailing question",
			in:            "Tell me which room " + Marker,
			want:          "Tell me which room?",
			wantListening: true,
		},
		{
			name:          "marker mid-text",
			in:            "Sure. " + Marker + " Anything else",
			want:          "Sure.  Anything else?",
			wantListening: true,
		},
		{
			name: "plain question gets fake mark when auto-continue off",
			in:   "Is this a question?",
			want: "Is this a question" + FakeQuestionMark,
		},
		{
			name: "trailing whitespace preserved after fake mark",
			in:   "Really?  ",
			want: "Really" + FakeQuestionMark + "  ",
		},
		{
			name:          "plain question untouched when auto-continue on",
			in:            "Is this a question?",
			autoContinue:  true,
			want:          "Is this a question?",
			wantListening: false,
		},
		{
			name: "statement untouched",
			in:   "The lights are on.",
			want: "The lights are on.",
		},
		{
			name: "interior question mark untouched",
			in:   "Done? Yes. All set.",
			want: "Done? Yes. All set.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, listening := ForListening(tt.in, tt.autoContinue)
			if got != tt.want {
				t.Errorf("text = %q, want %q", got, tt.want)
			}
			if listening != tt.wantListening {
				t.Errorf("listening = %v, want %v", listening, tt.wantListening)
			}
		})
	}
}

func TestListeningInstructions(t *testing.T) {
	if got := ListeningInstructions(true); got != "" {
		t.Errorf("auto-continue on should need no instructions, got %q", got)
	}
	got := ListeningInstructions(false)
	if !strings.Contains(got, Marker) {
		t.Errorf("instructions missing marker token: %q", got)
	}
}
