package repositories

import (
	"context"

	"github.com/minii/backend/internal/models"
)

// NameRepository defines data access for the display-name reservation index.
type NameRepository interface {
	CheckAvailable(ctx context.Context, nameKey string) (bool, error)
	Claim(ctx context.Context, userID, displayName, nameKey string) error
	Resolve(ctx context.Context, nameKey string) (string, error)
}

// FriendRepository defines data access for friend requests and friendships.
type FriendRepository interface {
	CreateRequest(ctx context.Context, requesterID, receiverID string) (becameFriends bool, err error)
	AcceptRequest(ctx context.Context, accepterID, requesterID string) error
	RejectRequest(ctx context.Context, rejecterID, requesterID string) error
	RemoveFriend(ctx context.Context, userID, friendID string) error
	Relationships(ctx context.Context, userID string) (models.Relationships, error)
}

// AnimationRepository defines data access for personal and exchanged animations.
type AnimationRepository interface {
	SavePersonal(ctx context.Context, userID string, animation models.Animation) error
	Send(ctx context.Context, senderID, receiverID string, animation models.Animation) error
	ForUser(ctx context.Context, userID string) (*models.Animation, map[string]models.ReceivedAnimation, error)
}
