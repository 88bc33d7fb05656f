package models

import (
	"time"
)

// ExternalAccount represents a linked federated sign-in account
type ExternalAccount struct {
	Provider   string `bson:"provider" json:"provider"` // e.g., "google", "microsoft"
	ExternalID string `bson:"external_id" json:"external_id"`
}

// User represents a registered user in the identity provider
type User struct {
	ID               string            `bson:"_id,omitempty" json:"id,omitempty"`
	Email            string            `bson:"email" json:"email"`
	DisplayName      string            `bson:"display_name,omitempty" json:"display_name,omitempty"`
	AvatarURL        string            `bson:"avatar_url,omitempty" json:"avatar_url,omitempty"`
	PasswordHash     string            `bson:"password_hash" json:"-"`
	ExternalAccounts []ExternalAccount `bson:"external_accounts,omitempty" json:"-"`
	CreatedAt        time.Time         `bson:"created_at" json:"created_at"`
	UpdatedAt        time.Time         `bson:"updated_at" json:"updated_at"`
}

// GetExternalID returns the external ID for a given provider, or empty string if not found
func (u *User) GetExternalID(provider string) string {
	for _, acc := range u.ExternalAccounts {
		if acc.Provider == provider {
			return acc.ExternalID
		}
	}
	return ""
}

// Identity is the read-only view of the authenticated user consumed by the
// chat client. It mirrors the identity provider's record.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
	Email       string `json:"email,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// AuthorName returns the name messages are attributed to: display name,
// email, or "Anonymous" when neither is set.
func (i *Identity) AuthorName() string {
	if i == nil {
		return "Anonymous"
	}
	if i.DisplayName != "" {
		return i.DisplayName
	}
	if i.Email != "" {
		return i.Email
	}
	return "Anonymous"
}

// Identity builds the chat-facing view of a user record
func (u *User) Identity() *Identity {
	return &Identity{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		AvatarURL:   u.AvatarURL,
	}
}

// Room is a named container for an ordered message collection,
// owned by one identity.
type Room struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Message is a single chat entry. The ID is the store-assigned push key;
// key order is insertion order.
type Message struct {
	ID   string `json:"id"`
	User string `json:"user"`
	Text string `json:"text"`
}

// SystemAuthor is the fixed author of auto-generated replies.
const SystemAuthor = "System"
