package reservation

import "sync/atomic"

// Sequencer issues a monotonically increasing number per inbound request.
// The number only correlates retry attempts in logs; it plays no part in
// correctness or ordering.
type Sequencer struct {
	n atomic.Uint64
}

func NewSequencer() *Sequencer { return &Sequencer{} }

func (s *Sequencer) Next() uint64 { return s.n.Add(1) }
