package app

import (
	"context"
	"log/slog"
	"strings"

	"github.com/minii/backend/internal/auth"
	"github.com/minii/backend/internal/avatars"
	"github.com/minii/backend/internal/config"
	"github.com/minii/backend/internal/db"
	"github.com/minii/backend/internal/handlers"
	"github.com/minii/backend/internal/middleware"
	"github.com/minii/backend/internal/profiles"
	"github.com/minii/backend/internal/repositories"
	"github.com/minii/backend/internal/storage"
)

// buildDependencies wires together concrete implementations used by the HTTP
// handlers. The returned cleanup drains background workers.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config) (handlers.Dependencies, func(context.Context) error, error) {
	users := repositories.NewPostgresUserRepository(pool)
	sessionStore := repositories.NewPostgresSessionStore(pool)
	profileCache := profiles.NewCachingProvider(users, cfg.ProfileCacheTTL)

	deps := handlers.Dependencies{
		Users:          users,
		Sessions:       auth.NewManager(cfg.AccessTokenTTL, cfg.RefreshTokenTTL, sessionStore),
		Names:          repositories.NewPostgresNameRepository(pool),
		Friends:        repositories.NewPostgresFriendRepository(pool),
		Animations:     repositories.NewPostgresAnimationRepository(pool),
		Profiles:       profileCache,
		ProfileCache:   profileCache,
		AvatarStatuses: users,
		FriendRequestLimiter: middleware.NewIPRateLimiter(
			cfg.FriendRequests.Limit,
			cfg.FriendRequests.Window,
			cfg.FriendRequests.Burst,
			cfg.FriendRequests.ClientTTL,
		),
	}

	cleanup := func(context.Context) error { return nil }

	if strings.TrimSpace(cfg.ObjectStore.Bucket) != "" {
		objectStore, err := storage.NewS3Storage(ctx, cfg.ObjectStore)
		if err != nil {
			return handlers.Dependencies{}, nil, err
		}

		recorder := &avatarStatusRecorder{updater: users, cache: profileCache}
		ingestor := avatars.NewIngestor(objectStore, recorder, avatars.IngestorConfig{
			QueueSize: cfg.AvatarQueueSize,
			Workers:   cfg.AvatarWorkers,
		}, slog.Default())

		deps.Avatars = ingestor
		cleanup = ingestor.Shutdown
	}

	return deps, cleanup, nil
}

// avatarStatusRecorder forwards avatar status updates to the user store and
// drops the cached profile once a new picture is live, so friends see it
// without waiting out the cache TTL.
type avatarStatusRecorder struct {
	updater avatars.ProfileUpdater
	cache   *profiles.CachingProvider
}

func (r *avatarStatusRecorder) MarkAvatarReady(ctx context.Context, userID, location string) error {
	if err := r.updater.MarkAvatarReady(ctx, userID, location); err != nil {
		return err
	}
	r.cache.Invalidate(userID)
	return nil
}

func (r *avatarStatusRecorder) MarkAvatarFailed(ctx context.Context, userID string) error {
	return r.updater.MarkAvatarFailed(ctx, userID)
}
