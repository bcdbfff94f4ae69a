package handlers

import (
	"context"

	"github.com/minii/backend/internal/avatars"
	"github.com/minii/backend/internal/models"
)

// UserStore captures the persistence operations required by the auth and
// lifecycle handlers.
type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByID(ctx context.Context, id string) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	Delete(ctx context.Context, id string) error
}

// SessionManager issues, refreshes, and authenticates bearer tokens.
type SessionManager interface {
	Issue(ctx context.Context, userID string) (models.SessionTokens, error)
	Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error)
	Authenticate(ctx context.Context, accessToken string) (string, error)
	RevokeAll(ctx context.Context, userID string) error
}

// NameStore captures operations on the display-name reservation index.
type NameStore interface {
	CheckAvailable(ctx context.Context, nameKey string) (bool, error)
	Claim(ctx context.Context, userID, displayName, nameKey string) error
	Resolve(ctx context.Context, nameKey string) (string, error)
}

// FriendStore captures operations required by the friend graph handlers.
type FriendStore interface {
	CreateRequest(ctx context.Context, requesterID, receiverID string) (becameFriends bool, err error)
	AcceptRequest(ctx context.Context, accepterID, requesterID string) error
	RejectRequest(ctx context.Context, rejecterID, requesterID string) error
	RemoveFriend(ctx context.Context, userID, friendID string) error
	Relationships(ctx context.Context, userID string) (models.Relationships, error)
}

// AnimationStore captures persistence for the animation exchange.
type AnimationStore interface {
	SavePersonal(ctx context.Context, userID string, animation models.Animation) error
	Send(ctx context.Context, senderID, receiverID string, animation models.Animation) error
	ForUser(ctx context.Context, userID string) (*models.Animation, map[string]models.ReceivedAnimation, error)
}

// ProfileProvider resolves friend-facing profile details.
type ProfileProvider interface {
	FindProfile(ctx context.Context, userID string) (models.FriendDetails, error)
}

// ProfileInvalidator drops cached profile details after a mutation.
type ProfileInvalidator interface {
	Invalidate(userID string)
}

// AvatarIngestor schedules background persistence of profile pictures.
type AvatarIngestor interface {
	Enqueue(ctx context.Context, job avatars.Job) error
}

// AvatarStatusUpdater records that an avatar upload is in flight.
type AvatarStatusUpdater interface {
	MarkAvatarPending(ctx context.Context, userID string) error
}
