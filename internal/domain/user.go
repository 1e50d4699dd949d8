package domain

import "time"

// User is the persisted account record.
type User struct {
	ID           string    `firestore:"-"`
	Username     string    `firestore:"username"`
	Email        string    `firestore:"email"`
	PasswordHash string    `firestore:"passwordHash"`
	CreatedAt    time.Time `firestore:"createdAt"`

	// LastSyncTime mirrors the document update time read from the store.
	LastSyncTime time.Time `firestore:"-"`
}

// UserSummary is the client-facing projection of a user, excluding credentials.
type UserSummary struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Summary projects the user into its client-facing shape.
func (u User) Summary() UserSummary {
	return UserSummary{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
	}
}
