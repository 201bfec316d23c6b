package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"friendchat-service/internal/docstore"
	"friendchat-service/internal/models"
	"friendchat-service/internal/repositories"
)

type faultRule struct {
	op, collection, id string
}

// faultyStore fails the calls matching any of its rules with an unavailable error.
type faultyStore struct {
	docstore.Store

	mu    sync.Mutex
	rules []faultRule
}

func (s *faultyStore) failOn(op, collection, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, faultRule{op: op, collection: collection, id: id})
}

func (s *faultyStore) heal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = nil
}

func (s *faultyStore) check(op, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rules {
		if r.op == op && r.collection == collection && (r.id == "" || r.id == id) {
			return fmt.Errorf("injected %s %s/%s: %w", op, collection, id, docstore.ErrUnavailable)
		}
	}
	return nil
}

func (s *faultyStore) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	if err := s.check("get", collection, id); err != nil {
		return docstore.Document{}, err
	}
	return s.Store.Get(ctx, collection, id)
}

func (s *faultyStore) Create(ctx context.Context, collection string, data any) (string, error) {
	if err := s.check("create", collection, ""); err != nil {
		return "", err
	}
	return s.Store.Create(ctx, collection, data)
}

func (s *faultyStore) Set(ctx context.Context, collection, id string, data any) error {
	if err := s.check("set", collection, id); err != nil {
		return err
	}
	return s.Store.Set(ctx, collection, id, data)
}

func (s *faultyStore) Update(ctx context.Context, collection, id string, fn docstore.UpdateFunc) error {
	if err := s.check("update", collection, id); err != nil {
		return err
	}
	return s.Store.Update(ctx, collection, id, fn)
}

func (s *faultyStore) Delete(ctx context.Context, collection, id string) error {
	if err := s.check("delete", collection, id); err != nil {
		return err
	}
	return s.Store.Delete(ctx, collection, id)
}

func (s *faultyStore) Find(ctx context.Context, collection string, q docstore.Query) ([]docstore.Document, error) {
	if err := s.check("find", collection, ""); err != nil {
		return nil, err
	}
	return s.Store.Find(ctx, collection, q)
}

// barrierStore holds the first n chat lookups until all n have read, forcing the
// check-then-act window of concurrent resolutions open.
type barrierStore struct {
	docstore.Store

	n     int64
	calls atomic.Int64
	wg    sync.WaitGroup
}

func newBarrierStore(next docstore.Store, n int) *barrierStore {
	b := &barrierStore{Store: next, n: int64(n)}
	b.wg.Add(n)
	return b
}

func (s *barrierStore) Find(ctx context.Context, collection string, q docstore.Query) ([]docstore.Document, error) {
	docs, err := s.Store.Find(ctx, collection, q)
	if collection == repositories.ChatsCollection && s.calls.Add(1) <= s.n {
		s.wg.Done()
		s.wg.Wait()
	}
	return docs, err
}

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type recordedEvent struct {
	eventType string
	userID    string
	payload   any
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (e *recordingEmitter) Emit(_ context.Context, eventType, userID string, payload any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, recordedEvent{eventType: eventType, userID: userID, payload: payload})
}

func (e *recordingEmitter) types() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev.eventType)
	}
	return out
}

type fixture struct {
	svc    *Service
	raw    docstore.Store
	faults *faultyStore
	events *recordingEmitter
}

func newRawStore(t *testing.T) docstore.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return docstore.NewRedisStore(client, "test", repositories.RedisIndexes...)
}

func newFixture(t *testing.T, wrap ...func(docstore.Store) docstore.Store) *fixture {
	t.Helper()
	raw := newRawStore(t)
	faults := &faultyStore{Store: raw}
	var store docstore.Store = docstore.Instrument(faults)
	for _, w := range wrap {
		store = w(store)
	}
	events := &recordingEmitter{}
	clock := &fakeClock{t: testNow}
	return &fixture{
		svc:    New(Options{Store: store, Events: events, Now: clock.Now}),
		raw:    raw,
		faults: faults,
		events: events,
	}
}

func (f *fixture) seedUsers(t *testing.T, users ...models.User) {
	t.Helper()
	repo := repositories.NewUserRepo(f.raw)
	for _, u := range users {
		require.NoError(t, repo.Save(context.Background(), u))
	}
}

func (f *fixture) user(t *testing.T, id string) models.User {
	t.Helper()
	u, err := repositories.NewUserRepo(f.raw).Get(context.Background(), id)
	require.NoError(t, err)
	return u
}

func (f *fixture) threads(t *testing.T, a, b string) []models.ChatThread {
	t.Helper()
	threads, err := repositories.NewChatRepo(f.raw).FindByMembers(context.Background(), a, b)
	require.NoError(t, err)
	return threads
}

func (f *fixture) entries(t *testing.T, owner string) []models.UserChatEntry {
	t.Helper()
	entries, err := repositories.NewUserChatRepo(f.raw).ListByOwner(context.Background(), owner)
	require.NoError(t, err)
	return entries
}
