package service

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"friendchat-service/internal/docstore"
	"friendchat-service/internal/models"
	"friendchat-service/internal/observability"
	"friendchat-service/internal/repositories"
)

func seedFriendsWithChat(t *testing.T, f *fixture, a, b string) string {
	t.Helper()
	f.seedUsers(t, models.User{ID: a, Friends: []string{b}}, models.User{ID: b, Friends: []string{a}})
	chatID, err := f.svc.OpenChat(context.Background(), a, b)
	require.NoError(t, err)
	return chatID
}

func assertPairCleaned(t *testing.T, f *fixture, a, b string) {
	t.Helper()
	assert.Empty(t, f.threads(t, a, b))
	for _, e := range f.entries(t, a) {
		assert.NotEqual(t, b, e.ReceiverID)
	}
	for _, e := range f.entries(t, b) {
		assert.NotEqual(t, a, e.ReceiverID)
	}
	assert.False(t, f.user(t, a).HasFriend(b))
	assert.False(t, f.user(t, b).HasFriend(a))
}

func TestRemoveFriendCascadeCompleteness(t *testing.T) {
	f := newFixture(t)
	seedFriendsWithChat(t, f, "a", "b")
	f.seedUsers(t, models.User{ID: "c", Friends: []string{"a"}})
	require.NoError(t, f.svc.Friendships.users.AddFriend(context.Background(), "a", "c"))
	other, err := f.svc.OpenChat(context.Background(), "a", "c")
	require.NoError(t, err)

	res, err := f.svc.RemoveFriend(context.Background(), "a", "b")
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, StateCompleted, res.State)
	assert.Empty(t, res.Failed)
	assert.Equal(t, []StepName{StepRemoveIndexA, StepDeleteThread, StepRemoveIndexB, StepRemoveFriendship}, res.Applied)

	assertPairCleaned(t, f, "a", "b")

	// Unrelated chats and friendships survive.
	entries := f.entries(t, "a")
	require.Len(t, entries, 1)
	assert.Equal(t, other, entries[0].ChatID)
	assert.True(t, f.user(t, "a").HasFriend("c"))
	assert.Contains(t, f.events.types(), EventFriendRemoved)
}

func TestRemoveFriendIsIdempotent(t *testing.T) {
	f := newFixture(t)
	seedFriendsWithChat(t, f, "a", "b")
	ctx := context.Background()

	_, err := f.svc.RemoveFriend(ctx, "a", "b")
	require.NoError(t, err)

	res, err := f.svc.RemoveFriend(ctx, "a", "b")
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Empty(t, res.ChatIDs)
	assert.ElementsMatch(t, []StepName{StepRemoveIndexA, StepDeleteThread, StepRemoveIndexB}, res.NotFound)
	assertPairCleaned(t, f, "a", "b")
}

func TestRemoveFriendReportsDeleteThreadFailure(t *testing.T) {
	f := newFixture(t)
	chatID := seedFriendsWithChat(t, f, "a", "b")
	f.faults.failOn("delete", repositories.ChatsCollection, "")
	failuresBefore := testutil.ToFloat64(observability.CascadeStepFailureCounter(string(StepDeleteThread)))

	res, err := f.svc.RemoveFriend(context.Background(), "a", "b")
	require.ErrorIs(t, err, ErrPartialCascadeFailure)
	require.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, []StepName{StepDeleteThread}, FailedSteps(err))
	assert.Equal(t, []StepName{StepDeleteThread}, res.Failed)
	assert.Equal(t, StatePartiallyFailed, res.State)
	assert.False(t, res.OK())

	// Steps 2, 4 and 5 still applied.
	assert.Empty(t, f.entries(t, "a"))
	assert.Empty(t, f.entries(t, "b"))
	assert.False(t, f.user(t, "a").HasFriend("b"))
	assert.False(t, f.user(t, "b").HasFriend("a"))

	threads := f.threads(t, "a", "b")
	require.Len(t, threads, 1)
	assert.Equal(t, chatID, threads[0].ID)

	assert.Equal(t, failuresBefore+1, testutil.ToFloat64(observability.CascadeStepFailureCounter(string(StepDeleteThread))))
}

func TestRemoveFriendRetryAfterPartialFailure(t *testing.T) {
	f := newFixture(t)
	seedFriendsWithChat(t, f, "a", "b")
	ctx := context.Background()
	f.faults.failOn("delete", repositories.ChatsCollection, "")

	_, err := f.svc.RemoveFriend(ctx, "a", "b")
	require.Error(t, err)

	f.faults.heal()
	res, err := f.svc.RemoveFriend(ctx, "a", "b")
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Len(t, res.ChatIDs, 1)
	assertPairCleaned(t, f, "a", "b")
}

func TestRemoveFriendCollectsEveryFailedStep(t *testing.T) {
	f := newFixture(t)
	seedFriendsWithChat(t, f, "a", "b")
	f.faults.failOn("delete", repositories.UserChatsCollection, "")
	f.faults.failOn("update", repositories.UsersCollection, "b")

	res, err := f.svc.RemoveFriend(context.Background(), "a", "b")
	require.ErrorIs(t, err, ErrPartialCascadeFailure)
	assert.Equal(t, []StepName{StepRemoveIndexA, StepRemoveIndexB, StepRemoveFriendship}, res.Failed)
	assert.Equal(t, []StepName{StepDeleteThread}, res.Applied)

	assert.Empty(t, f.threads(t, "a", "b"))
	assert.False(t, f.user(t, "a").HasFriend("b"))
	assert.True(t, f.user(t, "b").HasFriend("a"))
}

func TestRemoveFriendWhenIndexLookupFails(t *testing.T) {
	f := newFixture(t)
	seedFriendsWithChat(t, f, "a", "b")
	f.faults.failOn("find", repositories.UserChatsCollection, "")

	res, err := f.svc.RemoveFriend(context.Background(), "a", "b")
	require.ErrorIs(t, err, ErrPartialCascadeFailure)
	assert.Equal(t, []StepName{StepRemoveIndexA, StepRemoveIndexB}, res.Failed)

	// The membership query still located the thread, and point deletes still ran.
	assert.Empty(t, f.threads(t, "a", "b"))
	assert.Empty(t, f.entries(t, "a"))
	assert.Empty(t, f.entries(t, "b"))
	assert.False(t, f.user(t, "a").HasFriend("b"))
}

func TestRemoveFriendCleansDuplicateThreads(t *testing.T) {
	f := newFixture(t)
	f.seedUsers(t, models.User{ID: "a", Friends: []string{"b"}}, models.User{ID: "b", Friends: []string{"a"}})
	ctx := context.Background()
	chats := repositories.NewChatRepo(f.raw)
	index := NewIndexSynchronizer(repositories.NewUserChatRepo(f.raw))
	for i := 0; i < 2; i++ {
		id, err := chats.Create(ctx, "a", "b", testNow)
		require.NoError(t, err)
		require.NoError(t, index.UpsertIndexEntry(ctx, "a", id, "b", "", testNow))
		require.NoError(t, index.UpsertIndexEntry(ctx, "b", id, "a", "", testNow))
	}

	res, err := f.svc.RemoveFriend(ctx, "a", "b")
	require.NoError(t, err)
	assert.Len(t, res.ChatIDs, 2)
	assertPairCleaned(t, f, "a", "b")
	assert.Empty(t, f.entries(t, "a"))
	assert.Empty(t, f.entries(t, "b"))
}

func TestRemoveFriendRejectsSelf(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RemoveFriend(context.Background(), "a", "a")
	require.ErrorIs(t, err, ErrSelfReference)
}

func TestEndToEndOpenThenRemove(t *testing.T) {
	f := newFixture(t)
	f.seedUsers(t, models.User{ID: "U1", Friends: []string{}}, models.User{ID: "U2", Friends: []string{}})
	ctx := context.Background()

	c1, created, err := f.svc.Resolver.ResolveOrCreateThread(ctx, "U1", "U2")
	require.NoError(t, err)
	require.True(t, created)

	thread, err := repositories.NewChatRepo(f.raw).Get(ctx, c1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"U1", "U2"}, thread.Members)
	u1Entries := f.entries(t, "U1")
	u2Entries := f.entries(t, "U2")
	require.Len(t, u1Entries, 1)
	require.Len(t, u2Entries, 1)
	assert.Equal(t, "U2", u1Entries[0].ReceiverID)
	assert.Equal(t, "U1", u2Entries[0].ReceiverID)

	require.NoError(t, f.svc.AddFriend(ctx, "U1", "U2"))

	res, err := f.svc.RemoveFriend(ctx, "U1", "U2")
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, []string{c1}, res.ChatIDs)

	_, err = repositories.NewChatRepo(f.raw).Get(ctx, c1)
	require.ErrorIs(t, err, docstore.ErrNotFound)
	assert.Empty(t, f.threads(t, "U1", "U2"))
	assert.Empty(t, f.entries(t, "U1"))
	assert.Empty(t, f.entries(t, "U2"))
	assert.Empty(t, f.user(t, "U1").Friends)
	assert.Empty(t, f.user(t, "U2").Friends)
}
