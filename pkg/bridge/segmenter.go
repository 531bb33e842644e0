package bridge

import (
	"strings"
	"unicode"
)

// sentence terminators that close a synthesis span. The danda (।) ends
// sentences in Hindi and Hinglish text.
const terminators = ".!?।"

// Segmenter splits an incremental token stream into synthesis-ready spans
// at sentence boundaries, falling back to a length cap for run-on text.
type Segmenter struct {
	maxChars int
	buf      []rune
}

// NewSegmenter creates a Segmenter with the given span length cap.
func NewSegmenter(maxChars int) *Segmenter {
	if maxChars <= 0 {
		maxChars = 200
	}
	return &Segmenter{maxChars: maxChars}
}

// Push appends a token and returns any spans it completed.
//
// A span completes when a terminator is followed by whitespace, so
// decimals like "3.5" never split. A buffer that exceeds the length cap
// without a sentence boundary splits at the last whitespace instead.
func (s *Segmenter) Push(token string) []string {
	s.buf = append(s.buf, []rune(token)...)

	var spans []string
	for {
		span, rest, ok := s.cut()
		if !ok {
			break
		}
		s.buf = rest
		if span != "" {
			spans = append(spans, span)
		}
	}
	return spans
}

// Flush returns whatever remains in the buffer as a final span.
func (s *Segmenter) Flush() string {
	span := strings.TrimSpace(string(s.buf))
	s.buf = s.buf[:0]
	return span
}

// cut extracts one completed span from the front of the buffer.
func (s *Segmenter) cut() (span string, rest []rune, ok bool) {
	for i := 0; i < len(s.buf)-1; i++ {
		if strings.ContainsRune(terminators, s.buf[i]) && unicode.IsSpace(s.buf[i+1]) {
			return strings.TrimSpace(string(s.buf[:i+1])), append([]rune(nil), s.buf[i+2:]...), true
		}
	}

	if len(s.buf) < s.maxChars {
		return "", nil, false
	}

	// No sentence boundary within the cap; break at the last whitespace,
	// or hard-cut a single unbroken run.
	cut := -1
	for i := s.maxChars - 1; i > 0; i-- {
		if unicode.IsSpace(s.buf[i]) {
			cut = i
			break
		}
	}
	if cut <= 0 {
		cut = s.maxChars
	}
	return strings.TrimSpace(string(s.buf[:cut])), append([]rune(nil), s.buf[cut:]...), true
}
