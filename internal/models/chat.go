package models

import "time"

// ChatThread represents a private chat between exactly two users.
type ChatThread struct {
	ID        string    `json:"-"`
	Members   []string  `json:"members"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasMember reports whether userID participates in the thread.
func (c ChatThread) HasMember(userID string) bool {
	for _, m := range c.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// IsPair reports whether the thread members are exactly {a, b}.
func (c ChatThread) IsPair(a, b string) bool {
	return len(c.Members) == 2 && c.HasMember(a) && c.HasMember(b)
}

// Other returns the member that is not userID.
func (c ChatThread) Other(userID string) string {
	for _, m := range c.Members {
		if m != userID {
			return m
		}
	}
	return ""
}

// UserChatEntry is one participant's summary of a chat thread, stored under userchats.
type UserChatEntry struct {
	OwnerID     string    `json:"ownerId"`
	ChatID      string    `json:"chatId"`
	ReceiverID  string    `json:"receiverId"`
	LastMessage string    `json:"lastMessage"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
