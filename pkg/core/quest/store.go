package quest

import (
	"sync"
)

// Store is the in-memory session registry. One mutex guards both the record
// map and the newest-first id order. Nothing survives process restart.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	order    []string
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
	}
}

// Insert registers a new session, newest first. A session is inserted
// exactly once, before any remote work starts on its behalf.
func (s *Store) Insert(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[sess.ID]; exists {
		return
	}
	s.sessions[sess.ID] = sess
	s.order = append([]string{sess.ID}, s.order...)
}

// Get returns a snapshot of the session, if present.
func (s *Store) Get(id string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, false
	}
	return snapshot(sess), true
}

// List returns snapshots of all sessions, newest first.
func (s *Store) List() []Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Session, 0, len(s.order))
	for _, id := range s.order {
		if sess, ok := s.sessions[id]; ok {
			out = append(out, snapshot(sess))
		}
	}
	return out
}

// Patch applies a read-modify-write mutation to the named session under the
// store lock. This is the only mutation path after insert: each enrichment
// completion patches its own fields, so concurrent completions merge instead
// of overwriting each other. Patching an unknown id is a no-op, which lets
// late completions land harmlessly after a reset.
func (s *Store) Patch(id string, fn func(*Session)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	fn(sess)
	return true
}

// Len reports the number of stored sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// snapshot copies the record deeply enough that callers can never alias
// store-owned slices or nested structs.
func snapshot(sess *Session) Session {
	out := *sess
	if sess.Result != nil {
		r := *sess.Result
		r.VisualData = append([]VisualDatum(nil), sess.Result.VisualData...)
		r.NextQuestSuggestions = append([]string(nil), sess.Result.NextQuestSuggestions...)
		r.Quiz = append([]QuizQuestion(nil), sess.Result.Quiz...)
		r.Citations = append([]string(nil), sess.Result.Citations...)
		if sess.Result.SearchData != nil {
			sd := *sess.Result.SearchData
			sd.Sources = append([]Source(nil), sess.Result.SearchData.Sources...)
			r.SearchData = &sd
		}
		if sess.Result.MapData != nil {
			md := *sess.Result.MapData
			md.Sources = append([]Source(nil), sess.Result.MapData.Sources...)
			r.MapData = &md
		}
		out.Result = &r
	}
	if sess.VideoConfig != nil {
		vc := *sess.VideoConfig
		out.VideoConfig = &vc
	}
	if sess.UserScore != nil {
		score := *sess.UserScore
		out.UserScore = &score
	}
	out.ChatHistory = append([]ChatTurn(nil), sess.ChatHistory...)
	return out
}
