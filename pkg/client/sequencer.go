// Package client is the duplex voice client: it streams microphone audio
// to the gateway and plays the reply chunks back in strict sequence order.
package client

// Chunk is one playable audio chunk with its per-turn sequence number.
type Chunk struct {
	Seq        uint64
	Audio      []byte
	Format     string
	SampleRate int
}

// Sequencer restores total playback order from tts_chunk arrivals. The
// server already sends chunks in order, but the sequencer tolerates
// reordering anyway: a chunk ahead of the expected sequence number is
// buffered until the gap fills.
//
// It is not safe for concurrent use; the client's read loop owns it, which
// also makes playback serial.
type Sequencer struct {
	next    uint64
	pending map[uint64]Chunk
}

// NewSequencer creates a Sequencer expecting sequence number 1.
func NewSequencer() *Sequencer {
	return &Sequencer{next: 1, pending: make(map[uint64]Chunk)}
}

// Push accepts one chunk and returns everything now playable, in order.
// Duplicate and stale sequence numbers are dropped.
func (s *Sequencer) Push(c Chunk) []Chunk {
	if c.Seq < s.next {
		return nil
	}
	s.pending[c.Seq] = c

	var ready []Chunk
	for {
		next, ok := s.pending[s.next]
		if !ok {
			break
		}
		delete(s.pending, s.next)
		s.next++
		ready = append(ready, next)
	}
	return ready
}

// Pending is how many chunks are buffered waiting for a gap to fill.
func (s *Sequencer) Pending() int {
	return len(s.pending)
}

// Reset prepares for a new turn, discarding anything unplayed.
func (s *Sequencer) Reset() {
	s.next = 1
	s.pending = make(map[uint64]Chunk)
}
