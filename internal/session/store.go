package session

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/chatframe-ai/chatframe/internal/logging"
	"github.com/chatframe-ai/chatframe/internal/transcript"
	"github.com/chatframe-ai/chatframe/pkg/types"
)

// ErrUnknownSession is returned when an operation references a session that
// was never created or has been evicted. Callers recover by calling
// GetOrCreate first.
var ErrUnknownSession = errors.New("unknown session")

// DefaultExpiry is how long a session may sit idle before it is considered
// expired.
const DefaultExpiry = 60 * time.Minute

// StoreConfig configures a Store. The zero value is usable.
type StoreConfig struct {
	// Expiry is the idle window after which a session expires.
	// Zero means DefaultExpiry.
	Expiry time.Duration
	// Compress enables large-body compression on append.
	Compress bool
}

// Store holds session transcripts in memory. All methods are safe for
// concurrent use; returned sessions and messages are copies.
//
// The store is pure state: it never publishes events. Event choreography
// belongs to the controller and the server sweep.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*sessionRecord
	expiry   time.Duration
	compress bool
}

// sessionRecord is the store's internal view of one session. The active
// message window may hold deflated bodies; older runs are folded into
// compressed archives, oldest first. The logical transcript is always
// archives + messages in order.
type sessionRecord struct {
	id         string
	created    time.Time
	lastActive time.Time
	messages   []types.Message
	archives   []transcript.Archive
}

// NewStore creates an empty session store.
func NewStore(cfg StoreConfig) *Store {
	if cfg.Expiry <= 0 {
		cfg.Expiry = DefaultExpiry
	}
	return &Store{
		sessions: make(map[string]*sessionRecord),
		expiry:   cfg.Expiry,
		compress: cfg.Compress,
	}
}

// GetOrCreate returns the session with the given ID, creating an empty one
// if needed. An empty sessionID mints a fresh UUID. The second return value
// reports whether the session was created by this call. Access stamps
// last-activity either way.
func (s *Store) GetOrCreate(sessionID string) (types.Session, bool) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	rec, ok := s.sessions[sessionID]
	if !ok {
		rec = &sessionRecord{
			id:         sessionID,
			created:    now,
			lastActive: now,
		}
		s.sessions[sessionID] = rec
		return snapshot(rec), true
	}

	rec.lastActive = now
	return snapshot(rec), false
}

// Append adds a message to the session's transcript and returns it. The
// returned message always carries the plain content; compression is a
// storage detail. Fails with ErrUnknownSession if the session was never
// created.
func (s *Store) Append(sessionID string, role types.Role, content string) (types.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[sessionID]
	if !ok {
		return types.Message{}, ErrUnknownSession
	}

	now := time.Now()
	msg := types.Message{
		ID:        ulid.Make().String(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Time:      types.MessageTime{Created: now.UnixMilli()},
	}

	stored := msg
	if s.compress {
		stored.Content = transcript.Deflate(content)
	}
	rec.messages = append(rec.messages, stored)
	rec.lastActive = now

	s.foldLocked(rec)

	return msg, nil
}

// foldLocked folds the oldest active messages into a compressed archive once
// the active window outgrows the trigger. Folding failures leave the
// transcript unfolded; nothing is lost.
func (s *Store) foldLocked(rec *sessionRecord) {
	if len(rec.messages) <= transcript.ArchiveTrigger {
		return
	}

	cut := len(rec.messages) - transcript.ArchiveKeep
	archive, err := transcript.Fold(rec.messages[:cut])
	if err != nil {
		logging.Warn().Err(err).Str("sessionID", rec.id).Msg("transcript fold failed")
		return
	}

	rec.archives = append(rec.archives, archive)
	rec.messages = append([]types.Message(nil), rec.messages[cut:]...)

	logging.Debug().
		Str("sessionID", rec.id).
		Int("folded", archive.Count).
		Int("active", len(rec.messages)).
		Msg("transcript folded")
}

// Touch stamps the session's last-activity time.
func (s *Store) Touch(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[sessionID]
	if !ok {
		return ErrUnknownSession
	}
	rec.lastActive = time.Now()
	return nil
}

// Clear resets the session's transcript to empty, preserving its identity
// and creation time.
func (s *Store) Clear(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[sessionID]
	if !ok {
		return ErrUnknownSession
	}
	rec.messages = nil
	rec.archives = nil
	rec.lastActive = time.Now()
	return nil
}

// IsExpired reports whether the session has been idle longer than the expiry
// window. Unknown sessions are not expired; they do not exist.
func (s *Store) IsExpired(sessionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.sessions[sessionID]
	if !ok {
		return false
	}
	return time.Since(rec.lastActive) > s.expiry
}

// History returns the session's full logical transcript: archived segments
// unfolded, compressed bodies inflated, in chronological order.
func (s *Store) History(sessionID string) ([]types.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrUnknownSession
	}

	out := make([]types.Message, 0, transcriptLen(rec))
	for _, a := range rec.archives {
		messages, err := a.Unfold()
		if err != nil {
			logging.Error().Err(err).Str("sessionID", sessionID).Msg("archive unfold failed")
			continue
		}
		out = append(out, messages...)
	}
	out = append(out, rec.messages...)

	for i := range out {
		plain, err := transcript.Inflate(out[i].Content)
		if err != nil {
			// Keep the stored form rather than dropping the message.
			logging.Warn().Err(err).Str("messageID", out[i].ID).Msg("body inflate failed")
			continue
		}
		out[i].Content = plain
	}
	return out, nil
}

// Get returns a snapshot of the session.
func (s *Store) Get(sessionID string) (types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.sessions[sessionID]
	if !ok {
		return types.Session{}, ErrUnknownSession
	}
	return snapshot(rec), nil
}

// List returns snapshots of all sessions, most recently active first.
func (s *Store) List() []types.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Session, 0, len(s.sessions))
	for _, rec := range s.sessions {
		out = append(out, snapshot(rec))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Time.LastActive > out[j].Time.LastActive
	})
	return out
}

// Len returns the logical message count of the session's transcript.
func (s *Store) Len(sessionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.sessions[sessionID]
	if !ok {
		return 0, ErrUnknownSession
	}
	return transcriptLen(rec), nil
}

// Sweep removes sessions idle past the expiry window as of now and returns
// their IDs. Eviction is advisory hygiene; IsExpired remains the correctness
// check for callers touching a possibly stale session.
func (s *Store) Sweep(now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []string
	for id, rec := range s.sessions {
		if now.Sub(rec.lastActive) > s.expiry {
			expired = append(expired, id)
			delete(s.sessions, id)
		}
	}

	if len(expired) > 0 {
		logging.Info().Int("count", len(expired)).Msg("expired sessions swept")
	}
	return expired
}

// transcriptLen is the logical message count: folded plus active.
func transcriptLen(rec *sessionRecord) int {
	n := len(rec.messages)
	for _, a := range rec.archives {
		n += a.Count
	}
	return n
}

func snapshot(rec *sessionRecord) types.Session {
	return types.Session{
		ID: rec.id,
		Time: types.SessionTime{
			Created:    rec.created.UnixMilli(),
			LastActive: rec.lastActive.UnixMilli(),
		},
		Messages: transcriptLen(rec),
	}
}
