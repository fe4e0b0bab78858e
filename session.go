package auth

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/segmentio/ksuid"
)

// CurrentAccountKey is the session key holding the account snapshot.
const CurrentAccountKey = "current_account"

// NewSessionID returns a fresh, sortable session identifier.
func NewSessionID() string {
	return ksuid.New().String()
}

// SessionBinder attaches and detaches the account identity of a session.
type SessionBinder struct {
	store  SessionStore
	logger Logger
}

func NewSessionBinder(store SessionStore) *SessionBinder {
	if store == nil {
		store = NewMemorySessionStore(0)
	}
	return &SessionBinder{
		store:  store,
		logger: defLogger{},
	}
}

func (b *SessionBinder) WithLogger(logger Logger) *SessionBinder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// Bind replaces whatever identity the session carried with account. The
// previous value is cleared first so a failed write never leaves a stale
// identity behind.
func (b *SessionBinder) Bind(ctx context.Context, sessionID string, account *Account) error {
	if sessionID == "" {
		return ErrInvalidSession
	}

	if err := b.store.Delete(ctx, sessionID, CurrentAccountKey); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to clear session identity")
	}

	if account == nil {
		return nil
	}

	payload, err := json.Marshal(account.Snapshot())
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode session identity")
	}

	if err := b.store.Set(ctx, sessionID, CurrentAccountKey, payload); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store session identity")
	}

	return nil
}

// Unbind removes the identity, the session becomes anonymous.
func (b *SessionBinder) Unbind(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := b.store.Delete(ctx, sessionID, CurrentAccountKey); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to clear session identity")
	}
	return nil
}

// Destroy drops the whole session, identity and any other value it held.
func (b *SessionBinder) Destroy(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := b.store.Clear(ctx, sessionID); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to clear session")
	}
	return nil
}

// Current returns the snapshot bound to the session, if any.
func (b *SessionBinder) Current(ctx context.Context, sessionID string) (*AccountSnapshot, bool, error) {
	if sessionID == "" {
		return nil, false, nil
	}

	payload, ok, err := b.store.Get(ctx, sessionID, CurrentAccountKey)
	if err != nil {
		return nil, false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read session identity")
	}

	if !ok {
		return nil, false, nil
	}

	snapshot := &AccountSnapshot{}
	if err := json.Unmarshal(payload, snapshot); err != nil {
		b.logger.Warn("dropping unreadable identity for session %s: %v", sessionID, err)
		_ = b.store.Delete(ctx, sessionID, CurrentAccountKey)
		return nil, false, nil
	}

	return snapshot, true, nil
}

// MemorySessionStore keeps session values in process memory. Entries idle
// for longer than the ttl are dropped on access or by Sweep.
type MemorySessionStore struct {
	mu       sync.RWMutex
	ttl      time.Duration
	sessions map[string]*memorySession
	now      func() time.Time
}

type memorySession struct {
	values   map[string][]byte
	lastSeen time.Time
}

var _ SessionStore = (*MemorySessionStore)(nil)

func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	return &MemorySessionStore{
		ttl:      ttl,
		sessions: make(map[string]*memorySession),
		now:      time.Now,
	}
}

func (s *MemorySessionStore) Get(_ context.Context, sessionID, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, false, nil
	}

	now := s.now()
	if s.ttl > 0 && now.Sub(sess.lastSeen) > s.ttl {
		delete(s.sessions, sessionID)
		return nil, false, nil
	}
	sess.lastSeen = now

	value, ok := sess.values[key]
	if !ok {
		return nil, false, nil
	}

	out := make([]byte, len(value))
	copy(out, value)
	return out, true, nil
}

func (s *MemorySessionStore) Set(_ context.Context, sessionID, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		sess = &memorySession{values: make(map[string][]byte)}
		s.sessions[sessionID] = sess
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	sess.values[key] = stored
	sess.lastSeen = s.now()
	return nil
}

func (s *MemorySessionStore) Delete(_ context.Context, sessionID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}

	delete(sess.values, key)
	if len(sess.values) == 0 {
		delete(s.sessions, sessionID)
	}
	return nil
}

func (s *MemorySessionStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// Sweep evicts every session idle for longer than the ttl and returns how
// many were dropped. It is a no-op when the store has no ttl.
func (s *MemorySessionStore) Sweep(now time.Time) int {
	if s.ttl <= 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, sess := range s.sessions {
		if now.Sub(sess.lastSeen) > s.ttl {
			delete(s.sessions, id)
			evicted++
		}
	}
	return evicted
}

// Len reports the number of live entries, including idle ones not yet swept.
func (s *MemorySessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
