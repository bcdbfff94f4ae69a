package repositories

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/cockroachdb/cockroach-go/v2/testserver"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/minii/backend/internal/auth"
	"github.com/minii/backend/internal/models"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	server, err := testserver.NewTestServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "start cockroach test server: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, server.PGURL().String())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to cockroach test server: %v\n", err)
		server.Stop()
		os.Exit(1)
	}

	if err := applyMigrations(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "apply migrations: %v\n", err)
		pool.Close()
		server.Stop()
		os.Exit(1)
	}

	testPool = pool

	code := m.Run()

	pool.Close()
	server.Stop()

	os.Exit(code)
}

func TestPostgresUserRepository_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	repo := NewPostgresUserRepository(testPool)
	user := createTestUser(t, repo, "alice@example.com")

	dup := models.User{
		ID:        uuid.NewString(),
		Email:     user.Email,
		Password:  "another-hash",
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict for duplicate email, got %v", err)
	}

	found, err := repo.FindByEmail(ctx, user.Email)
	if err != nil {
		t.Fatalf("find by email: %v", err)
	}
	if found.ID != user.ID {
		t.Fatalf("expected id %s got %s", user.ID, found.ID)
	}
	if found.DisplayNameSet {
		t.Fatal("fresh user should have no display name")
	}

	if _, err := repo.FindByID(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPostgresNameRepository_ClaimResolveAndConflicts(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	users := NewPostgresUserRepository(testPool)
	names := NewPostgresNameRepository(testPool)

	alice := createTestUser(t, users, "alice@example.com")
	bob := createTestUser(t, users, "bob@example.com")

	available, err := names.CheckAvailable(ctx, "alice")
	if err != nil {
		t.Fatalf("check available: %v", err)
	}
	if !available {
		t.Fatal("expected name to be available")
	}

	if err := names.Claim(ctx, alice.ID, "Alice", "alice"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	available, err = names.CheckAvailable(ctx, "alice")
	if err != nil {
		t.Fatalf("check available: %v", err)
	}
	if available {
		t.Fatal("claimed name should not be available")
	}

	// Same key, different case, different owner.
	if err := names.Claim(ctx, bob.ID, "alice", "alice"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict claiming taken name, got %v", err)
	}

	// Re-claiming one's own name succeeds.
	if err := names.Claim(ctx, alice.ID, "Alice", "alice"); err != nil {
		t.Fatalf("re-claim own name: %v", err)
	}

	// A second name for the same owner violates the one-name rule.
	if err := names.Claim(ctx, alice.ID, "Alicia", "alicia"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict claiming second name, got %v", err)
	}

	owner, err := names.Resolve(ctx, "alice")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if owner != alice.ID {
		t.Fatalf("expected owner %s got %s", alice.ID, owner)
	}

	got, err := users.FindByID(ctx, alice.ID)
	if err != nil {
		t.Fatalf("find claimed user: %v", err)
	}
	if !got.DisplayNameSet || got.DisplayName != "Alice" {
		t.Fatalf("expected display name mirrored on user, got %+v", got)
	}

	if _, err := names.Resolve(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPostgresFriendRepository_RequestLifecycle(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	users := NewPostgresUserRepository(testPool)
	friends := NewPostgresFriendRepository(testPool)

	alice := createTestUser(t, users, "alice@example.com")
	bob := createTestUser(t, users, "bob@example.com")

	becameFriends, err := friends.CreateRequest(ctx, alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if becameFriends {
		t.Fatal("first request should stay pending")
	}

	rel, err := friends.Relationships(ctx, bob.ID)
	if err != nil {
		t.Fatalf("relationships: %v", err)
	}
	if _, ok := rel.Incoming[alice.ID]; !ok {
		t.Fatalf("expected incoming request from %s, got %+v", alice.ID, rel)
	}
	if len(rel.Friends) != 0 {
		t.Fatalf("expected no friends yet, got %+v", rel.Friends)
	}

	if _, err := friends.CreateRequest(ctx, alice.ID, bob.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict for duplicate request, got %v", err)
	}

	if err := friends.AcceptRequest(ctx, bob.ID, alice.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}

	for _, uid := range []string{alice.ID, bob.ID} {
		rel, err := friends.Relationships(ctx, uid)
		if err != nil {
			t.Fatalf("relationships: %v", err)
		}
		if len(rel.Friends) != 1 {
			t.Fatalf("expected one friend for %s, got %+v", uid, rel.Friends)
		}
		if len(rel.Incoming) != 0 || len(rel.Outgoing) != 0 {
			t.Fatalf("expected no pending requests for %s, got %+v", uid, rel)
		}
	}

	// Accepting again must fail: the request is gone.
	if err := friends.AcceptRequest(ctx, bob.ID, alice.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found accepting twice, got %v", err)
	}

	// Requesting an existing friend conflicts.
	if _, err := friends.CreateRequest(ctx, bob.ID, alice.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict requesting a friend, got %v", err)
	}

	if err := friends.RemoveFriend(ctx, alice.ID, bob.ID); err != nil {
		t.Fatalf("remove friend: %v", err)
	}
	rel, err = friends.Relationships(ctx, alice.ID)
	if err != nil {
		t.Fatalf("relationships: %v", err)
	}
	if len(rel.Friends) != 0 {
		t.Fatalf("expected friendship removed, got %+v", rel.Friends)
	}

	// Removing again is a no-op.
	if err := friends.RemoveFriend(ctx, alice.ID, bob.ID); err != nil {
		t.Fatalf("remove friend twice: %v", err)
	}
}

func TestPostgresFriendRepository_MutualRequestsCollapse(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	users := NewPostgresUserRepository(testPool)
	friends := NewPostgresFriendRepository(testPool)

	alice := createTestUser(t, users, "alice@example.com")
	bob := createTestUser(t, users, "bob@example.com")

	if _, err := friends.CreateRequest(ctx, alice.ID, bob.ID); err != nil {
		t.Fatalf("first request: %v", err)
	}

	becameFriends, err := friends.CreateRequest(ctx, bob.ID, alice.ID)
	if err != nil {
		t.Fatalf("opposite request: %v", err)
	}
	if !becameFriends {
		t.Fatal("opposite-direction request should collapse to friendship")
	}

	rel, err := friends.Relationships(ctx, alice.ID)
	if err != nil {
		t.Fatalf("relationships: %v", err)
	}
	if _, ok := rel.Friends[bob.ID]; !ok {
		t.Fatalf("expected friendship after collapse, got %+v", rel)
	}
	if len(rel.Incoming) != 0 || len(rel.Outgoing) != 0 {
		t.Fatalf("expected no pending requests after collapse, got %+v", rel)
	}
}

func TestPostgresFriendRepository_RejectIsIdempotent(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	users := NewPostgresUserRepository(testPool)
	friends := NewPostgresFriendRepository(testPool)

	alice := createTestUser(t, users, "alice@example.com")
	bob := createTestUser(t, users, "bob@example.com")

	if _, err := friends.CreateRequest(ctx, alice.ID, bob.ID); err != nil {
		t.Fatalf("create request: %v", err)
	}

	if err := friends.RejectRequest(ctx, bob.ID, alice.ID); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if err := friends.RejectRequest(ctx, bob.ID, alice.ID); err != nil {
		t.Fatalf("reject twice: %v", err)
	}

	rel, err := friends.Relationships(ctx, alice.ID)
	if err != nil {
		t.Fatalf("relationships: %v", err)
	}
	if len(rel.Outgoing) != 0 {
		t.Fatalf("expected outgoing request cleared, got %+v", rel.Outgoing)
	}
}

func TestPostgresAnimationRepository_SendAndList(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	users := NewPostgresUserRepository(testPool)
	friends := NewPostgresFriendRepository(testPool)
	animations := NewPostgresAnimationRepository(testPool)

	alice := createTestUser(t, users, "alice@example.com")
	bob := createTestUser(t, users, "bob@example.com")

	payload := testAnimation("wave")

	if err := animations.Send(ctx, alice.ID, bob.ID, payload); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden before friendship, got %v", err)
	}

	makeFriends(t, friends, alice.ID, bob.ID)

	if err := animations.Send(ctx, alice.ID, bob.ID, payload); err != nil {
		t.Fatalf("send: %v", err)
	}

	personal, received, err := animations.ForUser(ctx, bob.ID)
	if err != nil {
		t.Fatalf("for user: %v", err)
	}
	if personal != nil {
		t.Fatalf("expected no personal animation, got %+v", personal)
	}
	got, ok := received[alice.ID]
	if !ok {
		t.Fatalf("expected animation from %s, got %+v", alice.ID, received)
	}
	if got.Name != "wave" {
		t.Fatalf("expected name wave got %s", got.Name)
	}
	if got.SentAt == nil {
		t.Fatal("expected delivered copy to carry a sent timestamp")
	}
	if got.SenderEmail != alice.Email {
		t.Fatalf("expected sender email %s got %s", alice.Email, got.SenderEmail)
	}

	// Unfriending hides the received copy.
	if err := friends.RemoveFriend(ctx, alice.ID, bob.ID); err != nil {
		t.Fatalf("remove friend: %v", err)
	}
	_, received, err = animations.ForUser(ctx, bob.ID)
	if err != nil {
		t.Fatalf("for user: %v", err)
	}
	if len(received) != 0 {
		t.Fatalf("expected no visible animations after unfriending, got %+v", received)
	}
}

func TestPostgresAnimationRepository_Personal(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	users := NewPostgresUserRepository(testPool)
	animations := NewPostgresAnimationRepository(testPool)

	alice := createTestUser(t, users, "alice@example.com")

	if err := animations.SavePersonal(ctx, alice.ID, testAnimation("blink")); err != nil {
		t.Fatalf("save personal: %v", err)
	}

	personal, _, err := animations.ForUser(ctx, alice.ID)
	if err != nil {
		t.Fatalf("for user: %v", err)
	}
	if personal == nil || personal.Name != "blink" {
		t.Fatalf("expected personal animation blink, got %+v", personal)
	}

	if err := animations.SavePersonal(ctx, uuid.NewString(), testAnimation("blink")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for missing user, got %v", err)
	}

	if _, _, err := animations.ForUser(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found listing missing user, got %v", err)
	}
}

func TestPostgresUserRepository_DeleteCascades(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	users := NewPostgresUserRepository(testPool)
	names := NewPostgresNameRepository(testPool)
	friends := NewPostgresFriendRepository(testPool)
	animations := NewPostgresAnimationRepository(testPool)

	doomed := createTestUser(t, users, "doomed@example.com")
	if err := names.Claim(ctx, doomed.ID, "Doomed", "doomed"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	var others []models.User
	for i := 0; i < 3; i++ {
		other := createTestUser(t, users, fmt.Sprintf("friend%d@example.com", i))
		makeFriends(t, friends, doomed.ID, other.ID)
		if err := animations.Send(ctx, doomed.ID, other.ID, testAnimation("bye")); err != nil {
			t.Fatalf("send animation: %v", err)
		}
		others = append(others, other)
	}

	pending := createTestUser(t, users, "pending@example.com")
	if _, err := friends.CreateRequest(ctx, pending.ID, doomed.ID); err != nil {
		t.Fatalf("pending request: %v", err)
	}

	if err := users.Delete(ctx, doomed.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	for _, other := range others {
		rel, err := friends.Relationships(ctx, other.ID)
		if err != nil {
			t.Fatalf("relationships: %v", err)
		}
		if len(rel.Friends) != 0 || len(rel.Incoming) != 0 || len(rel.Outgoing) != 0 {
			t.Fatalf("expected all edges to %s cleared, got %+v", doomed.ID, rel)
		}
		_, received, err := animations.ForUser(ctx, other.ID)
		if err != nil {
			t.Fatalf("animations: %v", err)
		}
		if len(received) != 0 {
			t.Fatalf("expected received animations cleared, got %+v", received)
		}
	}

	rel, err := friends.Relationships(ctx, pending.ID)
	if err != nil {
		t.Fatalf("relationships: %v", err)
	}
	if len(rel.Outgoing) != 0 {
		t.Fatalf("expected pending request cleared, got %+v", rel.Outgoing)
	}

	// The name is free for reuse.
	replacement := createTestUser(t, users, "replacement@example.com")
	if err := names.Claim(ctx, replacement.ID, "Doomed", "doomed"); err != nil {
		t.Fatalf("expected freed name to be claimable, got %v", err)
	}

	// Deleting again is a no-op.
	if err := users.Delete(ctx, doomed.ID); err != nil {
		t.Fatalf("delete twice: %v", err)
	}
}

func TestPostgresSessionStore_SaveFindAndDelete(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	users := NewPostgresUserRepository(testPool)
	store := NewPostgresSessionStore(testPool)

	user := createTestUser(t, users, "alice@example.com")

	session := auth.Session{
		AccessToken:     uuid.NewString(),
		RefreshToken:    uuid.NewString(),
		UserID:          user.ID,
		AccessExpiresAt: time.Now().Add(time.Minute).UTC(),
		ExpiresAt:       time.Now().Add(time.Hour).UTC(),
	}
	if err := store.Save(ctx, session); err != nil {
		t.Fatalf("save: %v", err)
	}

	found, err := store.Find(ctx, session.RefreshToken)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found.UserID != user.ID {
		t.Fatalf("expected user %s got %s", user.ID, found.UserID)
	}

	byAccess, err := store.FindByAccessToken(ctx, session.AccessToken)
	if err != nil {
		t.Fatalf("find by access token: %v", err)
	}
	if byAccess.RefreshToken != session.RefreshToken {
		t.Fatalf("expected refresh token %s got %s", session.RefreshToken, byAccess.RefreshToken)
	}

	if err := store.DeleteForUser(ctx, user.ID); err != nil {
		t.Fatalf("delete for user: %v", err)
	}
	if _, err := store.Find(ctx, session.RefreshToken); !errors.Is(err, auth.ErrSessionNotFound) {
		t.Fatalf("expected session not found, got %v", err)
	}
}

func applyMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrationsDir := filepath.Join("..", "..", "migrations")
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		contents, err := os.ReadFile(filepath.Join(migrationsDir, entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}

		if _, err := pool.Exec(ctx, string(contents)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
	}

	return nil
}

func resetDatabase(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	conn, err := testPool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire connection: %v", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "TRUNCATE TABLE display_names, friends, friend_requests, animations, sessions, users CASCADE"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}

func createTestUser(t *testing.T, repo *PostgresUserRepository, email string) models.User {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Millisecond)
	user := models.User{
		ID:        uuid.NewString(),
		Email:     email,
		Password:  "secret-hash",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("create user %s: %v", email, err)
	}
	return user
}

func makeFriends(t *testing.T, repo *PostgresFriendRepository, a, b string) {
	t.Helper()

	ctx := context.Background()
	if _, err := repo.CreateRequest(ctx, a, b); err != nil {
		t.Fatalf("request %s -> %s: %v", a, b, err)
	}
	if err := repo.AcceptRequest(ctx, b, a); err != nil {
		t.Fatalf("accept %s -> %s: %v", b, a, err)
	}
}

func testAnimation(name string) models.Animation {
	frame := make([][]int, 8)
	for i := range frame {
		frame[i] = make([]int, 8)
	}
	frame[0][0] = 1

	return models.Animation{
		Name:          name,
		Frames:        [][][]int{frame},
		FrameDuration: 200,
		CreatedAt:     time.Now().UnixMilli(),
	}
}
