// Package session maps session identifiers to conversational memory.
//
// Information Hiding:
// - Shard layout and hashing hidden behind Store
// - Per-session turn lock hidden behind Session.Acquire
// - Sessions live in process memory only and are lost on restart
package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GianmarcoBramucci/cri/memory"
)

// ErrEmptyID is returned when a session is requested without an identifier.
var ErrEmptyID = errors.New("session id is empty")

const shardCount = 32

// Session is the conversational memory of one client plus the lock that
// serializes its turns.
type Session struct {
	id        string
	memory    *memory.Conversation
	turn      chan struct{}
	createdAt time.Time
	ephemeral bool
}

func newSession(id string, windowSize int, ephemeral bool) *Session {
	return &Session{
		id:        id,
		memory:    memory.NewConversation(windowSize),
		turn:      make(chan struct{}, 1),
		createdAt: time.Now(),
		ephemeral: ephemeral,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Memory returns the session's conversation.
func (s *Session) Memory() *memory.Conversation { return s.memory }

// CreatedAt returns when the session was created.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Ephemeral reports whether the session is unregistered and disposable.
func (s *Session) Ephemeral() bool { return s.ephemeral }

// Acquire takes the session's turn lock, blocking until it is free or ctx
// is done. The returned release func must be called exactly once.
func (s *Session) Acquire(ctx context.Context) (release func(), err error) {
	select {
	case s.turn <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-s.turn }) }, nil
	case <-ctx.Done():
		return nil, errors.Wrapf(ctx.Err(), "waiting for session %q", s.id)
	}
}

type shard struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// Store is a concurrent registry of sessions keyed by id.
type Store struct {
	shards     [shardCount]*shard
	windowSize int
	logger     *zap.Logger
}

// NewStore creates an empty store whose sessions use the given window size.
func NewStore(windowSize int, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{windowSize: windowSize, logger: logger}
	for i := range s.shards {
		s.shards[i] = &shard{sessions: make(map[string]*Session)}
	}
	return s
}

func (s *Store) shardFor(id string) *shard {
	return s.shards[xxhash.Sum64String(id)%shardCount]
}

// GetOrCreate returns the session for id, creating it on first use.
// Concurrent first calls for the same id observe the same instance.
func (s *Store) GetOrCreate(id string) (*Session, error) {
	if id == "" {
		return nil, ErrEmptyID
	}
	sh := s.shardFor(id)

	sh.mu.RLock()
	sess, ok := sh.sessions[id]
	sh.mu.RUnlock()
	if ok {
		return sess, nil
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sess, ok := sh.sessions[id]; ok {
		return sess, nil
	}
	sess = newSession(id, s.windowSize, false)
	sh.sessions[id] = sess
	s.logger.Info("session memory initialized",
		zap.String("session_id", id),
		zap.Int("window_size", sess.memory.WindowSize()))
	return sess, nil
}

// Get returns the session for id without creating it.
func (s *Store) Get(id string) (*Session, bool) {
	if id == "" {
		return nil, false
	}
	sh := s.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	sess, ok := sh.sessions[id]
	return sess, ok
}

// Delete removes the session for id and reports whether it existed.
// Deleting an unknown id is a no-op.
func (s *Store) Delete(id string) bool {
	if id == "" {
		return false
	}
	sh := s.shardFor(id)
	sh.mu.Lock()
	sess, ok := sh.sessions[id]
	delete(sh.sessions, id)
	sh.mu.Unlock()

	if ok {
		s.logger.Info("session deleted",
			zap.String("session_id", id),
			zap.Duration("age", time.Since(sess.CreatedAt())))
	}
	return ok
}

// Ephemeral returns a fresh session that is never registered in the store.
func (s *Store) Ephemeral() *Session {
	return newSession("ephemeral-"+uuid.NewString(), s.windowSize, true)
}

// Len returns the number of registered sessions.
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.sessions)
		sh.mu.RUnlock()
	}
	return n
}

// IDs returns the registered session ids in sorted order.
func (s *Store) IDs() []string {
	ids := make([]string, 0, s.Len())
	for _, sh := range s.shards {
		sh.mu.RLock()
		for id := range sh.sessions {
			ids = append(ids, id)
		}
		sh.mu.RUnlock()
	}
	sort.Strings(ids)
	return ids
}

// WindowSize returns the window size given to new sessions.
func (s *Store) WindowSize() int {
	return s.windowSize
}
