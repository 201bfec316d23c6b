package docstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testDoc struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
	Count   int      `json:"count"`
}

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "test"), mr
}

type entryDoc struct {
	OwnerID string `json:"ownerId"`
	ChatID  string `json:"chatId"`
}

// commandCounter counts SCAN calls and the keys requested through MGET.
type commandCounter struct {
	mu       sync.Mutex
	scans    int
	mgetKeys int
}

func (c *commandCounter) DialHook(next redis.DialHook) redis.DialHook { return next }

func (c *commandCounter) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		c.mu.Lock()
		switch cmd.Name() {
		case "scan":
			c.scans++
		case "mget":
			c.mgetKeys += len(cmd.Args()) - 1
		}
		c.mu.Unlock()
		return next(ctx, cmd)
	}
}

func (c *commandCounter) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func (c *commandCounter) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scans, c.mgetKeys = 0, 0
}

func newIndexedRedisStore(t *testing.T) (*RedisStore, *commandCounter) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	counter := &commandCounter{}
	client.AddHook(counter)
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "test",
		Index{Collection: "chats", Field: "members"},
		Index{Collection: "userchats", Field: "ownerId"},
	), counter
}

func TestRedisStoreCreateAndGet(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()

	id, err := s.Create(ctx, "chats", testDoc{Name: "a", Members: []string{"u1", "u2"}})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	assert.True(t, mr.Exists("test:chats:"+id))

	got, err := GetAs[testDoc](ctx, s, "chats", id)
	require.NoError(t, err)
	assert.Equal(t, "a", got.Name)
	assert.Equal(t, []string{"u1", "u2"}, got.Members)
}

func TestRedisStoreGetNotFound(t *testing.T) {
	s, _ := newRedisStore(t)

	_, err := s.Get(context.Background(), "chats", "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreSetReplaces(t *testing.T) {
	s, _ := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "users", "u1", testDoc{Name: "first"}))
	require.NoError(t, s.Set(ctx, "users", "u1", testDoc{Name: "second"}))

	got, err := GetAs[testDoc](ctx, s, "users", "u1")
	require.NoError(t, err)
	assert.Equal(t, "second", got.Name)
}

func TestRedisStoreUpdate(t *testing.T) {
	s, _ := newRedisStore(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "users", "u1", testDoc{Name: "a", Count: 1}))

	err := UpdateAs(ctx, s, "users", "u1", func(d *testDoc) error {
		d.Count++
		return nil
	})
	require.NoError(t, err)

	got, err := GetAs[testDoc](ctx, s, "users", "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Count)
}

func TestRedisStoreUpdateMissing(t *testing.T) {
	s, _ := newRedisStore(t)

	err := UpdateAs(context.Background(), s, "users", "nobody", func(d *testDoc) error { return nil })
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreUpdateAbortKeepsDocument(t *testing.T) {
	s, _ := newRedisStore(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "users", "u1", testDoc{Name: "a"}))

	boom := errors.New("boom")
	err := UpdateAs(ctx, s, "users", "u1", func(d *testDoc) error {
		d.Name = "changed"
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrUnavailable)

	got, err := GetAs[testDoc](ctx, s, "users", "u1")
	require.NoError(t, err)
	assert.Equal(t, "a", got.Name)
}

func TestRedisStoreConcurrentUpdatesAreAtomic(t *testing.T) {
	s, _ := newRedisStore(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "users", "u1", testDoc{}))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = UpdateAs(ctx, s, "users", "u1", func(d *testDoc) error {
				d.Count++
				return nil
			})
		}()
	}
	wg.Wait()

	got, err := GetAs[testDoc](ctx, s, "users", "u1")
	require.NoError(t, err)
	assert.Equal(t, 4, got.Count)
}

func TestRedisStoreDeleteIsIdempotent(t *testing.T) {
	s, _ := newRedisStore(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "chats", "c1", testDoc{}))

	require.NoError(t, s.Delete(ctx, "chats", "c1"))
	require.NoError(t, s.Delete(ctx, "chats", "c1"))

	_, err := s.Get(ctx, "chats", "c1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreFind(t *testing.T) {
	s, _ := newRedisStore(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "chats", "c2", testDoc{Name: "x", Members: []string{"u1", "u3"}}))
	require.NoError(t, s.Set(ctx, "chats", "c1", testDoc{Name: "y", Members: []string{"u1", "u2"}}))
	require.NoError(t, s.Set(ctx, "chats", "c3", testDoc{Name: "x", Members: []string{"u2", "u3"}}))
	require.NoError(t, s.Set(ctx, "userchats", "c9", testDoc{Name: "x", Members: []string{"u1"}}))

	docs, err := s.Find(ctx, "chats", Where("members", OpArrayContains, "u1"))
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "c1", docs[0].ID)
	assert.Equal(t, "c2", docs[1].ID)

	docs, err = s.Find(ctx, "chats", Where("name", OpEqual, "x"))
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "c2", docs[0].ID)
	assert.Equal(t, "c3", docs[1].ID)

	docs, err = s.Find(ctx, "chats", Where("members", OpArrayContains, "nobody"))
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestRedisStoreFindRejectsUnknownOperator(t *testing.T) {
	s, _ := newRedisStore(t)

	_, err := s.Find(context.Background(), "chats", Where("members", Operator("in"), "u1"))
	require.Error(t, err)
}

func TestRedisStoreUnavailable(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()
	mr.SetError("ERR simulated outage")

	_, err := s.Get(ctx, "users", "u1")
	require.ErrorIs(t, err, ErrUnavailable)

	err = s.Set(ctx, "users", "u1", testDoc{})
	require.ErrorIs(t, err, ErrUnavailable)

	err = s.Delete(ctx, "users", "u1")
	require.ErrorIs(t, err, ErrUnavailable)

	_, err = s.Find(ctx, "users", Where("name", OpEqual, "a"))
	require.ErrorIs(t, err, ErrUnavailable)

	err = UpdateAs(ctx, s, "users", "u1", func(d *testDoc) error { return nil })
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestRedisStoreFindReadsOnlyIndexedMatches(t *testing.T) {
	s, counter := newIndexedRedisStore(t)
	ctx := context.Background()
	for i := 0; i < 500; i++ {
		owner := fmt.Sprintf("u%d", i)
		require.NoError(t, s.Set(ctx, "userchats", owner+":c1", entryDoc{OwnerID: owner, ChatID: "c1"}))
	}
	counter.reset()

	docs, err := s.Find(ctx, "userchats", Where("ownerId", OpEqual, "u7"))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "u7:c1", docs[0].ID)
	assert.Equal(t, 0, counter.scans)
	assert.Equal(t, 1, counter.mgetKeys)
}

func TestRedisStoreIndexFollowsWrites(t *testing.T) {
	s, _ := newIndexedRedisStore(t)
	ctx := context.Background()
	ownedBy := func(owner string) []string {
		docs, err := s.Find(ctx, "userchats", Where("ownerId", OpEqual, owner))
		require.NoError(t, err)
		ids := []string{}
		for _, d := range docs {
			ids = append(ids, d.ID)
		}
		return ids
	}

	require.NoError(t, s.Set(ctx, "userchats", "e1", entryDoc{OwnerID: "a"}))
	assert.Equal(t, []string{"e1"}, ownedBy("a"))

	require.NoError(t, s.Set(ctx, "userchats", "e1", entryDoc{OwnerID: "b"}))
	assert.Empty(t, ownedBy("a"))
	assert.Equal(t, []string{"e1"}, ownedBy("b"))

	err := UpdateAs(ctx, s, "userchats", "e1", func(e *entryDoc) error {
		e.OwnerID = "c"
		return nil
	})
	require.NoError(t, err)
	assert.Empty(t, ownedBy("b"))
	assert.Equal(t, []string{"e1"}, ownedBy("c"))

	require.NoError(t, s.Delete(ctx, "userchats", "e1"))
	require.NoError(t, s.Delete(ctx, "userchats", "e1"))
	assert.Empty(t, ownedBy("c"))

	members, err := s.client.SMembers(ctx, s.indexKey("userchats", "ownerId", "c")).Result()
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestRedisStoreArrayIndexOnCreate(t *testing.T) {
	s, counter := newIndexedRedisStore(t)
	ctx := context.Background()
	id, err := s.Create(ctx, "chats", testDoc{Members: []string{"u1", "u2"}})
	require.NoError(t, err)
	_, err = s.Create(ctx, "chats", testDoc{Members: []string{"u3", "u4"}})
	require.NoError(t, err)
	counter.reset()

	docs, err := s.Find(ctx, "chats", Where("members", OpArrayContains, "u2"))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, id, docs[0].ID)
	assert.Equal(t, 0, counter.scans)

	docs, err = s.Find(ctx, "chats", Where("members", OpArrayContains, "nobody"))
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestRedisStoreUnindexedFieldFallsBackToScan(t *testing.T) {
	s, counter := newIndexedRedisStore(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "userchats", "e1", entryDoc{OwnerID: "a", ChatID: "c9"}))
	counter.reset()

	docs, err := s.Find(ctx, "userchats", Where("chatId", OpEqual, "c9"))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Positive(t, counter.scans)
}
