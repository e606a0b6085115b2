package traverse

import (
	"sync"
	"time"

	"github.com/jaehyun-p/notion-ingest/internal/ingest"
)

// session holds the mutable state of one ingestion run: the tag dedup map,
// the book-to-category side table and the run counters. All mutation goes
// through the mutex so concurrent post processing stays consistent.
type session struct {
	runID     string
	startedAt time.Time

	mu sync.Mutex
	// tagIDs maps a tag display name to its node ID. First occurrence wins;
	// later posts with the same tag name reuse the ID.
	tagIDs map[string]string
	// pendingBooks maps a category node ID to book node IDs whose relation
	// could not be resolved during the category row's own processing.
	pendingBooks map[string][]string
	counters     ingest.RunCounters
	finishedAt   time.Time
}

func newSession(runID string, startedAt time.Time) *session {
	return &session{
		runID:        runID,
		startedAt:    startedAt,
		tagIDs:       make(map[string]string),
		pendingBooks: make(map[string][]string),
	}
}

// tagID returns the node ID registered for a tag name.
func (s *session) tagID(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.tagIDs[name]
	return id, ok
}

// registerTag records a tag name's node ID if the name is unseen. Returns
// the winning ID and whether this call registered it.
func (s *session) registerTag(name, id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.tagIDs[name]; ok {
		return existing, false
	}
	s.tagIDs[name] = id
	return id, true
}

// deferBookLink records a book whose category link must be resolved after
// traversal.
func (s *session) deferBookLink(categoryNodeID, bookNodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingBooks[categoryNodeID] = append(s.pendingBooks[categoryNodeID], bookNodeID)
}

// drainPendingBooks returns and clears the side table.
func (s *session) drainPendingBooks() map[string][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := s.pendingBooks
	s.pendingBooks = make(map[string][]string)
	return pending
}

func (s *session) count(update func(c *ingest.RunCounters)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	update(&s.counters)
}

func (s *session) finish(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finishedAt = at
}

// summary snapshots the run state.
func (s *session) summary() ingest.RunSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ingest.RunSummary{
		RunID:      s.runID,
		StartedAt:  s.startedAt,
		FinishedAt: s.finishedAt,
		Counters:   s.counters,
	}
}
