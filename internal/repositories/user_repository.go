package repositories

import (
	"context"

	"github.com/minii/backend/internal/models"
)

// UserRepository defines the data access contract for user records.
type UserRepository interface {
	Create(ctx context.Context, user models.User) error
	FindByID(ctx context.Context, id string) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	Delete(ctx context.Context, id string) error
	FindProfile(ctx context.Context, id string) (models.FriendDetails, error)
}
