package bridge

import (
	"strings"
	"testing"
)

func TestSegmenter_SentenceBoundaries(t *testing.T) {
	tests := []struct {
		name   string
		tokens []string
		want   []string
		tail   string
	}{
		{
			name:   "single sentence with tail",
			tokens: []string{"SIP ", "ek ", "accha ", "option ", "hai. ", "Aur"},
			want:   []string{"SIP ek accha option hai."},
			tail:   "Aur",
		},
		{
			name:   "question and exclamation",
			tokens: []string{"Kya haal? ", "Badhiya! ", "chalo"},
			want:   []string{"Kya haal?", "Badhiya!"},
			tail:   "chalo",
		},
		{
			name:   "danda ends a sentence",
			tokens: []string{"Ek lakh ka nivesh karo। ", "Phir dekho"},
			want:   []string{"Ek lakh ka nivesh karo।"},
			tail:   "Phir dekho",
		},
		{
			name:   "decimal does not split",
			tokens: []string{"Return 12.5 percent hai. ", "ok"},
			want:   []string{"Return 12.5 percent hai."},
			tail:   "ok",
		},
		{
			name:   "no boundary",
			tokens: []string{"ek ", "do ", "teen"},
			want:   nil,
			tail:   "ek do teen",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seg := NewSegmenter(200)

			var got []string
			for _, tok := range tt.tokens {
				got = append(got, seg.Push(tok)...)
			}

			if len(got) != len(tt.want) {
				t.Fatalf("got %d spans %v, want %d %v", len(got), got, len(tt.want), tt.want)
			}
			for i, w := range tt.want {
				if got[i] != w {
					t.Errorf("span %d = %q, want %q", i, got[i], w)
				}
			}

			if tail := seg.Flush(); tail != tt.tail {
				t.Errorf("Flush() = %q, want %q", tail, tt.tail)
			}
		})
	}
}

func TestSegmenter_LengthCap(t *testing.T) {
	seg := NewSegmenter(40)

	// Run-on text with no terminator must still split near the cap.
	var spans []string
	for i := 0; i < 20; i++ {
		spans = append(spans, seg.Push("paisa bachao aur nivesh karo ")...)
	}
	spans = append(spans, seg.Flush())

	if len(spans) < 2 {
		t.Fatalf("expected multiple spans from run-on text, got %d", len(spans))
	}
	for i, s := range spans {
		if len([]rune(s)) > 40 {
			t.Errorf("span %d is %d runes, cap is 40: %q", i, len([]rune(s)), s)
		}
		if s == "" && i != len(spans)-1 {
			t.Errorf("span %d is empty", i)
		}
	}

	// Nothing lost: rejoining should contain all the words.
	joined := strings.Join(spans, " ")
	if got := strings.Count(joined, "nivesh"); got != 20 {
		t.Errorf("rejoined text has %d occurrences of nivesh, want 20", got)
	}
}

func TestSegmenter_FlushEmpty(t *testing.T) {
	seg := NewSegmenter(200)
	if tail := seg.Flush(); tail != "" {
		t.Errorf("Flush() on empty segmenter = %q, want empty", tail)
	}
}

func TestPrepareText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "markdown stripped",
			in:   "**SIP** ek `accha` option hai",
			want: "SIP ek accha option hai",
		},
		{
			name: "rupee symbol spoken",
			in:   "₹5000 har mahina",
			want: "rupees 5000 har mahina",
		},
		{
			name: "abbreviations expanded",
			in:   "12% p.a. milta hai, i.e. accha return",
			want: "12% per annum milta hai, that is accha return",
		},
		{
			name: "lakhs normalized",
			in:   "5 lakhs ka corpus, 2 crores tak",
			want: "5 lakh ka corpus, 2 crore tak",
		},
		{
			name: "bullets become pauses",
			in:   "Options: - FD - PPF",
			want: "Options: ... FD ... PPF",
		},
		{
			name: "whitespace collapsed",
			in:   "  ek   do\tteen  ",
			want: "ek do teen",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PrepareText(tt.in); got != tt.want {
				t.Errorf("PrepareText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
