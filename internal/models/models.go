package models

import "time"

// User represents an account within the Minii platform. Collection-valued
// state (friends, requests, animations) lives in dedicated tables and is
// loaded on demand by the repositories.
type User struct {
	ID             string
	Email          string
	EmailVerified  bool
	Password       string
	DisplayName    string
	DisplayNameSet bool
	ProfilePicture string
	AvatarStatus   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

const (
	AvatarStatusNone    = ""
	AvatarStatusPending = "pending"
	AvatarStatusReady   = "ready"
	AvatarStatusFailed  = "failed"
)

// Animation is a small pixel-grid animation: an ordered sequence of 8x8
// binary frames played at a fixed per-frame duration.
type Animation struct {
	Name          string    `json:"name"`
	Frames        [][][]int `json:"frames"`
	FrameDuration int       `json:"frameDuration"`
	CreatedAt     int64     `json:"createdAt,omitempty"`
	SentAt        *int64    `json:"sentAt,omitempty"`
}

// ReceivedAnimation is a delivered animation enriched with sender details.
type ReceivedAnimation struct {
	Animation
	SenderName  string `json:"senderName"`
	SenderEmail string `json:"senderEmail"`
}

// FriendRequest represents a directed pending relationship proposal.
type FriendRequest struct {
	Requester string
	Receiver  string
	CreatedAt time.Time
}

// FriendEdge represents one direction of a confirmed symmetric friendship.
type FriendEdge struct {
	UserID    string
	FriendID  string
	CreatedAt time.Time
}

// Relationships summarises how a set of other users relate to one user.
type Relationships struct {
	Friends  map[string]time.Time
	Incoming map[string]time.Time
	Outgoing map[string]time.Time
}

// FriendDetails carries the profile fields exposed to friends and pending
// request counterparts.
type FriendDetails struct {
	DisplayName    string `json:"displayName"`
	Email          string `json:"email"`
	ProfilePicture string `json:"profilePicture,omitempty"`
}

// SessionTokens groups the bearer credentials issued to authenticated users.
type SessionTokens struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}
