package repositories

import (
	"context"
	"fmt"

	"friendchat-service/internal/docstore"
	"friendchat-service/internal/models"
)

var ErrUserNotFound = fmt.Errorf("user %w", docstore.ErrNotFound)

// UserRepository abstracts user profile documents. Friend edges live on the user document, so
// each call below touches exactly one document.
type UserRepository interface {
	Get(ctx context.Context, userID string) (models.User, error)
	Save(ctx context.Context, user models.User) error
	AddFriend(ctx context.Context, userID, friendID string) error
	RemoveFriend(ctx context.Context, userID, friendID string) error
}

// UserRepo is a docstore implementation of UserRepository.
type UserRepo struct {
	store docstore.Store
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(store docstore.Store) *UserRepo {
	return &UserRepo{store: store}
}

// Get fetches a user by id.
func (r *UserRepo) Get(ctx context.Context, userID string) (models.User, error) {
	u, err := docstore.GetAs[models.User](ctx, r.store, UsersCollection, userID)
	if err != nil {
		return models.User{}, notFound(err, ErrUserNotFound, userID)
	}
	if u.ID == "" {
		u.ID = userID
	}
	return u, nil
}

// Save creates or replaces the whole profile.
func (r *UserRepo) Save(ctx context.Context, user models.User) error {
	if user.Friends == nil {
		user.Friends = []string{}
	}
	return r.store.Set(ctx, UsersCollection, user.ID, user)
}

// AddFriend inserts friendID into the user's friend set. Present ids are left alone.
func (r *UserRepo) AddFriend(ctx context.Context, userID, friendID string) error {
	err := docstore.UpdateAs(ctx, r.store, UsersCollection, userID, func(u *models.User) error {
		if !u.HasFriend(friendID) {
			u.Friends = append(u.Friends, friendID)
		}
		return nil
	})
	return notFound(err, ErrUserNotFound, userID)
}

// RemoveFriend drops friendID from the user's friend set. Absent ids are a no-op.
func (r *UserRepo) RemoveFriend(ctx context.Context, userID, friendID string) error {
	err := docstore.UpdateAs(ctx, r.store, UsersCollection, userID, func(u *models.User) error {
		kept := make([]string, 0, len(u.Friends))
		for _, f := range u.Friends {
			if f != friendID {
				kept = append(kept, f)
			}
		}
		u.Friends = kept
		return nil
	})
	return notFound(err, ErrUserNotFound, userID)
}

var _ UserRepository = (*UserRepo)(nil)
