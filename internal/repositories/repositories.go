package repositories

import (
	"errors"
	"fmt"

	"friendchat-service/internal/docstore"
)

// Collection names.
const (
	UsersCollection     = "users"
	ChatsCollection     = "chats"
	UserChatsCollection = "userchats"
)

// RedisIndexes are the fields the repositories query with Find.
var RedisIndexes = []docstore.Index{
	{Collection: ChatsCollection, Field: "members"},
	{Collection: UserChatsCollection, Field: "ownerId"},
}

// notFound rewrites a store not-found error as the repository sentinel; other errors pass through.
func notFound(err error, sentinel error, id string) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return fmt.Errorf("%w: %s", sentinel, id)
	}
	return err
}
