package kafka

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mohammed-shakir/listings-viewport-cache/internal/invalidation"
)

const defaultVersionWindow = 4096

// sourceVersions tracks the newest version applied for each event source.
// Versions only order events from the same source; two sources never
// suppress each other. Sources evicted from the window start over, so a
// replay older than the window is applied again, which at worst clears the
// cache once more.
type sourceVersions struct {
	mu     sync.Mutex
	latest *lru.Cache[string, uint64]
}

func newSourceVersions(size int) *sourceVersions {
	if size <= 0 {
		size = defaultVersionWindow
	}
	c, _ := lru.New[string, uint64](size)
	return &sourceVersions{latest: c}
}

// advance records ev and reports whether it is newer than anything seen
// from its source. Duplicates and reordered older versions return false.
func (s *sourceVersions) advance(ev invalidation.Event) bool {
	key := ev.DedupeKey()
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.latest.Get(key); ok && ev.Version <= last {
		return false
	}
	s.latest.Add(key, ev.Version)
	return true
}

func (s *sourceVersions) last(source string) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest.Peek(source)
}
