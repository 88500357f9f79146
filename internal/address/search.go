package address

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bher20/movein/internal/faults"
	"github.com/bher20/movein/internal/logging"
	"github.com/bher20/movein/internal/upstream"
)

// DefaultDebounce is the quiet period before a typed query is sent.
const DefaultDebounce = 300 * time.Millisecond

// SearchResult is delivered for the latest typed query only.
type SearchResult struct {
	Generation  uint64
	Query       string
	Suggestions []upstream.AddressResult
	Err         error
}

// Searcher runs address searches. Every query takes the next generation
// number; a response is applied only while its generation is still the
// latest, so late answers to superseded queries are dropped.
type Searcher struct {
	src      upstream.AddressSearcher
	debounce time.Duration
	timeout  time.Duration
	log      *zap.Logger

	mu    sync.Mutex
	gen   uint64
	timer *time.Timer
}

// NewSearcher creates a Searcher. A zero debounce uses DefaultDebounce.
func NewSearcher(src upstream.AddressSearcher, debounce time.Duration, log *zap.Logger) *Searcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Searcher{src: src, debounce: debounce, timeout: 10 * time.Second, log: logging.OrNop(log)}
}

// Generation returns the latest issued generation.
func (s *Searcher) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

func (s *Searcher) next() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	return s.gen
}

// Search queries immediately. It returns faults.ErrStale when a newer query
// was issued while this one was in flight. Queries shorter than MinQueryLen
// return no suggestions without a network call.
func (s *Searcher) Search(ctx context.Context, text string) ([]upstream.AddressResult, error) {
	q := strings.TrimSpace(text)
	gen := s.next()
	if len(q) < MinQueryLen {
		return nil, nil
	}
	res, err := s.src.SearchAddresses(ctx, q)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		s.log.Debug("dropping stale address results", zap.Uint64("generation", gen), zap.Uint64("latest", s.gen))
		return nil, faults.ErrStale
	}
	if err != nil {
		return nil, err
	}
	return Normalize(res), nil
}

// Type debounces a typed query. deliver runs once the quiet period passed and
// the upstream answered, and only if no newer query was issued meanwhile. It
// runs with the searcher's lock held so a newer Type call cannot interleave
// between the staleness check and delivery; deliver must not call back into
// the Searcher. Short queries deliver an empty result right away.
func (s *Searcher) Type(text string, deliver func(SearchResult)) {
	q := strings.TrimSpace(text)

	s.mu.Lock()
	s.gen++
	gen := s.gen
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if len(q) < MinQueryLen {
		deliver(SearchResult{Generation: gen, Query: q})
		s.mu.Unlock()
		return
	}
	s.timer = time.AfterFunc(s.debounce, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		res, err := s.src.SearchAddresses(ctx, q)

		s.mu.Lock()
		defer s.mu.Unlock()
		if gen != s.gen {
			s.log.Debug("dropping stale typed query", zap.String("query", q), zap.Uint64("generation", gen))
			return
		}
		out := SearchResult{Generation: gen, Query: q, Err: err}
		if err == nil {
			out.Suggestions = Normalize(res)
		}
		deliver(out)
	})
	s.mu.Unlock()
}

// Cancel invalidates any pending or in-flight query.
func (s *Searcher) Cancel() {
	s.next()
}
