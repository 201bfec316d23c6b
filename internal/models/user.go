package models

// User is a profile document in the users collection. Only Friends is written by this service.
type User struct {
	ID                     string   `json:"id"`
	FirstName              string   `json:"firstName"`
	LastName               string   `json:"lastName"`
	Email                  string   `json:"email,omitempty"`
	Gender                 string   `json:"gender,omitempty"`
	Languages              []string `json:"languages,omitempty"`
	ProfilePictureLocation string   `json:"profilePictureLocation,omitempty"`
	Friends                []string `json:"friends"`
}

// HasFriend reports whether id is in the user's friend set.
func (u User) HasFriend(id string) bool {
	for _, f := range u.Friends {
		if f == id {
			return true
		}
	}
	return false
}
