package eventing

import (
	"sync"
	"time"
)

// publishSet remembers recently acknowledged event ids so a retried caller
// cannot double-publish within the producer session. Check and mark are
// split: an id is only remembered after the broker ack.
type publishSet struct {
	mu   sync.Mutex
	ttl  time.Duration
	max  int
	seen map[string]time.Time
}

func newPublishSet(ttl time.Duration, max int) *publishSet {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if max <= 0 {
		max = 10000
	}
	return &publishSet{ttl: ttl, max: max, seen: make(map[string]time.Time, max)}
}

// Seen reports whether the event id was acknowledged within the TTL.
func (s *publishSet) Seen(id string) bool {
	if id == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.seen[id]
	return ok && time.Now().Before(exp)
}

// Mark records an acknowledged event id, evicting expired entries when
// the set outgrows its cap.
func (s *publishSet) Mark(id string) {
	if id == "" {
		return
	}
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[id] = now.Add(s.ttl)
	if len(s.seen) > s.max {
		for key, exp := range s.seen {
			if now.After(exp) {
				delete(s.seen, key)
			}
			if len(s.seen) <= s.max {
				break
			}
		}
	}
}
