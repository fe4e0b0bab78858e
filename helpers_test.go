package auth_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	auth "github.com/goliatone/go-portal-auth"
	"github.com/goliatone/go-portal-auth/persistence"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

type testLogger struct{}

func (testLogger) Debug(string, ...any) {}
func (testLogger) Info(string, ...any)  {}
func (testLogger) Warn(string, ...any)  {}
func (testLogger) Error(string, ...any) {}

type capturingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (c *capturingSink) Record(_ context.Context, evt auth.ActivityEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *capturingSink) types() []auth.ActivityEventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]auth.ActivityEventType, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.EventType)
	}
	return out
}

type sentMail struct {
	recipients []string
	subject    string
	body       string
}

type capturingMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *capturingMailer) Send(_ context.Context, recipients []string, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{recipients: recipients, subject: subject, body: body})
	return m.err
}

// newTestDB returns a migrated in-memory SQLite database private to t.
func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := persistence.Open(persistence.DriverSQLite, dsn, persistence.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, persistence.Migrate(context.Background(), db, persistence.DriverSQLite))
	return db
}

func newTestRepo(t *testing.T) auth.RepositoryManager {
	t.Helper()
	return auth.NewRepositoryManager(newTestDB(t))
}

func newTestService(t *testing.T) (*auth.AuthService, auth.RepositoryManager, *capturingSink) {
	t.Helper()

	sink := &capturingSink{}
	service, repo := newTestServiceWithStore(t, auth.NewMemorySessionStore(time.Hour))
	service.WithActivitySink(sink)

	return service, repo, sink
}

func newTestServiceWithStore(t *testing.T, store auth.SessionStore) (*auth.AuthService, auth.RepositoryManager) {
	t.Helper()

	repo := newTestRepo(t)
	service := auth.NewAuthService(repo, auth.NewSessionBinder(store)).
		WithLogger(testLogger{}).
		WithPasswordAuthenticator(testHasher)

	return service, repo
}

func mustRegister(t *testing.T, service *auth.AuthService, email, password string) uuid.UUID {
	t.Helper()
	id, err := service.Register(context.Background(), "", email, password, "Given", "Family")
	require.NoError(t, err)
	return id
}
