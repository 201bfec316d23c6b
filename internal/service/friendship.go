package service

import (
	"context"
	"errors"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"friendchat-service/internal/logging"
	"friendchat-service/internal/models"
	"friendchat-service/internal/repositories"
)

const profileLoadConcurrency = 8

// FriendshipStore owns the symmetric friend sets on user documents.
type FriendshipStore struct {
	users repositories.UserRepository
}

func NewFriendshipStore(users repositories.UserRepository) *FriendshipStore {
	return &FriendshipStore{users: users}
}

// AddFriendship puts b in a's friends and a in b's friends. Both users must exist.
func (f *FriendshipStore) AddFriendship(ctx context.Context, a, b string) error {
	if a == b {
		return ErrSelfReference
	}
	if _, err := f.users.Get(ctx, b); err != nil {
		return err
	}
	if err := f.users.AddFriend(ctx, a, b); err != nil {
		return err
	}
	return f.users.AddFriend(ctx, b, a)
}

// RemoveFriendship removes each user from the other's friend set. Both sides are attempted;
// a missing user document counts as already removed.
func (f *FriendshipStore) RemoveFriendship(ctx context.Context, a, b string) error {
	l := logging.Ctx(ctx)

	var causes []error
	for _, side := range [][2]string{{a, b}, {b, a}} {
		err := f.users.RemoveFriend(ctx, side[0], side[1])
		if err == nil || errors.Is(err, repositories.ErrUserNotFound) {
			continue
		}
		l.Warn().Err(err).
			Str(logging.FieldUserID, side[0]).
			Str(logging.FieldFriendID, side[1]).
			Msg("failed to remove friend edge")
		causes = append(causes, err)
	}
	if len(causes) > 0 {
		return &PartialFailureError{Op: "remove friendship", Failed: []StepName{StepRemoveFriendship}, Causes: causes}
	}
	return nil
}

// AreFriends reports whether b is in a's friend set.
func (f *FriendshipStore) AreFriends(ctx context.Context, a, b string) (bool, error) {
	u, err := f.users.Get(ctx, a)
	if err != nil {
		return false, err
	}
	return u.HasFriend(b), nil
}

// ListFriends loads the friend profiles of userID sorted by last name. A non-empty search keeps
// friends whose first or last name contains it, case-insensitively. Friends without a profile
// document are skipped.
func (f *FriendshipStore) ListFriends(ctx context.Context, userID, search string) ([]models.User, error) {
	me, err := f.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	profiles := make([]*models.User, len(me.Friends))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(profileLoadConcurrency)
	for i, id := range me.Friends {
		g.Go(func() error {
			u, err := f.users.Get(gCtx, id)
			if errors.Is(err, repositories.ErrUserNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			profiles[i] = &u
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	needle := strings.ToLower(strings.TrimSpace(search))
	friends := make([]models.User, 0, len(profiles))
	for _, p := range profiles {
		if p == nil {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(p.FirstName), needle) &&
			!strings.Contains(strings.ToLower(p.LastName), needle) {
			continue
		}
		friends = append(friends, *p)
	}
	sort.SliceStable(friends, func(i, j int) bool {
		if friends[i].LastName != friends[j].LastName {
			return friends[i].LastName < friends[j].LastName
		}
		if friends[i].FirstName != friends[j].FirstName {
			return friends[i].FirstName < friends[j].FirstName
		}
		return friends[i].ID < friends[j].ID
	})
	return friends, nil
}
