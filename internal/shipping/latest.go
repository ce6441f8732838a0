package shipping

import (
	"context"
	"sync"
)

// Sequencer tags lookups with increasing sequence numbers so that only the
// response to the most recent request is applied. Starting a new lookup
// cancels the context of the one in flight.
type Sequencer struct {
	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
}

// Begin starts a lookup, cancelling the previous one.
func (s *Sequencer) Begin(ctx context.Context) (context.Context, uint64) {
	child, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.seq++
	s.cancel = cancel
	seq := s.seq
	s.mu.Unlock()
	return child, seq
}

// IsLatest reports whether seq is still the most recent lookup.
func (s *Sequencer) IsLatest(seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return seq == s.seq
}

// Finish releases the context for seq when it is still the current lookup.
func (s *Sequencer) Finish(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq == s.seq && s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}
