package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/minii/backend/internal/db"
	"github.com/minii/backend/internal/models"
)

// PostgresUserRepository provides PostgreSQL-backed persistence for user records.
type PostgresUserRepository struct {
	pool db.Pool
}

// NewPostgresUserRepository constructs a user repository backed by PostgreSQL.
func NewPostgresUserRepository(pool db.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

// Create persists a fresh user record with no display name and empty
// relationship state.
func (r *PostgresUserRepository) Create(ctx context.Context, user models.User) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO users (id, email, email_verified, password_hash, display_name_set, created_at, updated_at)
        VALUES ($1, $2, $3, $4, FALSE, $5, $6)
    `, user.ID, user.Email, user.EmailVerified, user.Password, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// FindByID fetches a user record by identifier.
func (r *PostgresUserRepository) FindByID(ctx context.Context, id string) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, email, email_verified, password_hash,
               COALESCE(display_name, ''), display_name_set,
               profile_picture, avatar_status, created_at, updated_at
        FROM users
        WHERE id = $1
    `, id)

	return scanUser(row)
}

// FindByEmail fetches a user record by email address.
func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, email, email_verified, password_hash,
               COALESCE(display_name, ''), display_name_set,
               profile_picture, avatar_status, created_at, updated_at
        FROM users
        WHERE email = $1
    `, email)

	return scanUser(row)
}

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	if err := row.Scan(
		&user.ID, &user.Email, &user.EmailVerified, &user.Password,
		&user.DisplayName, &user.DisplayNameSet,
		&user.ProfilePicture, &user.AvatarStatus, &user.CreatedAt, &user.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("select user: %w", err)
	}
	return user, nil
}

// Delete removes a user record. The display-name reservation, friendship
// edges, pending requests, animation copies, and sessions referencing the
// user are cleared in the same statement through cascading foreign keys, so
// no registry scan is needed. Deleting an absent user is a no-op.
func (r *PostgresUserRepository) Delete(ctx context.Context, id string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `DELETE FROM users WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	return nil
}

// FindProfile fetches the profile fields exposed to friends.
func (r *PostgresUserRepository) FindProfile(ctx context.Context, id string) (models.FriendDetails, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.FriendDetails{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT COALESCE(display_name, ''), email, profile_picture
        FROM users
        WHERE id = $1
    `, id)

	var details models.FriendDetails
	if err := row.Scan(&details.DisplayName, &details.Email, &details.ProfilePicture); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.FriendDetails{}, ErrNotFound
		}
		return models.FriendDetails{}, fmt.Errorf("select profile: %w", err)
	}

	return details, nil
}

// MarkAvatarPending records that a profile picture upload is in flight.
func (r *PostgresUserRepository) MarkAvatarPending(ctx context.Context, id string) error {
	return r.setAvatar(ctx, id, models.AvatarStatusPending, nil)
}

// MarkAvatarReady stores the public location of an uploaded profile picture.
func (r *PostgresUserRepository) MarkAvatarReady(ctx context.Context, id, location string) error {
	return r.setAvatar(ctx, id, models.AvatarStatusReady, &location)
}

// MarkAvatarFailed records a failed profile picture upload.
func (r *PostgresUserRepository) MarkAvatarFailed(ctx context.Context, id string) error {
	return r.setAvatar(ctx, id, models.AvatarStatusFailed, nil)
}

func (r *PostgresUserRepository) setAvatar(ctx context.Context, id, status string, location *string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE users
        SET avatar_status = $2,
            profile_picture = COALESCE($3, profile_picture),
            updated_at = NOW()
        WHERE id = $1
    `, id, status, location)
	if err != nil {
		return fmt.Errorf("update avatar status: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// PostgresNameRepository provides PostgreSQL-backed persistence for the
// display-name reservation index.
type PostgresNameRepository struct {
	pool db.Pool
}

// NewPostgresNameRepository constructs a name repository backed by PostgreSQL.
func NewPostgresNameRepository(pool db.Pool) *PostgresNameRepository {
	return &PostgresNameRepository{pool: pool}
}

// CheckAvailable reports whether the lowercased name key is unreserved. The
// answer can go stale before a later claim; Claim re-validates under the
// index's uniqueness constraint.
func (r *PostgresNameRepository) CheckAvailable(ctx context.Context, nameKey string) (bool, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var exists bool
	row := conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM display_names WHERE name = $1)`, nameKey)
	if err := row.Scan(&exists); err != nil {
		return false, fmt.Errorf("check display name: %w", err)
	}

	return !exists, nil
}

// Claim reserves the name key for the user and mirrors the display name onto
// the user record in one transaction. Concurrent claims are serialised by the
// primary key on the index: the insert either wins or is a no-op, and the
// subsequent ownership read decides the outcome. Re-claiming a name already
// owned by the same user succeeds. Returns ErrConflict when the name belongs
// to someone else or the user already holds a different name.
func (r *PostgresNameRepository) Claim(ctx context.Context, userID, displayName, nameKey string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin claim transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
        INSERT INTO display_names (name, user_id)
        VALUES ($1, $2)
        ON CONFLICT (name) DO NOTHING
    `, nameKey, userID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// Unique owner constraint: the user already holds another name.
			return ErrConflict
		}
		return fmt.Errorf("insert display name: %w", err)
	}

	var owner string
	if err := tx.QueryRow(ctx, `SELECT user_id FROM display_names WHERE name = $1`, nameKey).Scan(&owner); err != nil {
		return fmt.Errorf("read display name owner: %w", err)
	}
	if owner != userID {
		return ErrConflict
	}

	tag, err := tx.Exec(ctx, `
        UPDATE users
        SET display_name = $2, display_name_set = TRUE, updated_at = NOW()
        WHERE id = $1
    `, userID, displayName)
	if err != nil {
		return fmt.Errorf("update user display name: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit claim: %w", err)
	}

	return nil
}

// Resolve returns the identifier owning the lowercased name key. The index is
// the sole resolution source for friend-request targets.
func (r *PostgresNameRepository) Resolve(ctx context.Context, nameKey string) (string, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return "", fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var userID string
	if err := conn.QueryRow(ctx, `SELECT user_id FROM display_names WHERE name = $1`, nameKey).Scan(&userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("resolve display name: %w", err)
	}

	return userID, nil
}

// PostgresFriendRepository provides PostgreSQL-backed persistence for the
// friend graph: symmetric friendships and directed pending requests.
type PostgresFriendRepository struct {
	pool db.Pool
	now  func() time.Time
}

// NewPostgresFriendRepository constructs a friend repository backed by PostgreSQL.
func NewPostgresFriendRepository(pool db.Pool) *PostgresFriendRepository {
	return &PostgresFriendRepository{pool: pool, now: func() time.Time { return time.Now().UTC() }}
}

// CreateRequest records a pending request from requester to receiver. When a
// request already exists in the opposite direction the pair is collapsed to a
// friendship instead, with both requests cleared; becameFriends reports that
// outcome. Returns ErrConflict when the pair is already friends or the same
// request is already pending.
func (r *PostgresFriendRepository) CreateRequest(ctx context.Context, requesterID, receiverID string) (bool, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, fmt.Errorf("begin request transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var alreadyFriends bool
	row := tx.QueryRow(ctx, `
        SELECT EXISTS (SELECT 1 FROM friends WHERE user_id = $1 AND friend_id = $2)
    `, requesterID, receiverID)
	if err := row.Scan(&alreadyFriends); err != nil {
		return false, fmt.Errorf("check friendship: %w", err)
	}
	if alreadyFriends {
		return false, ErrConflict
	}

	// A pending request in the opposite direction means both sides want the
	// relationship; collapse to friends instead of leaving mutual requests.
	tag, err := tx.Exec(ctx, `
        DELETE FROM friend_requests WHERE requester_id = $1 AND receiver_id = $2
    `, receiverID, requesterID)
	if err != nil {
		return false, fmt.Errorf("check reverse request: %w", err)
	}
	if tag.RowsAffected() > 0 {
		if err := insertFriendEdges(ctx, tx, requesterID, receiverID, r.now()); err != nil {
			return false, err
		}
		if err := tx.Commit(ctx); err != nil {
			return false, fmt.Errorf("commit request: %w", err)
		}
		return true, nil
	}

	_, err = tx.Exec(ctx, `
        INSERT INTO friend_requests (requester_id, receiver_id, created_at)
        VALUES ($1, $2, $3)
    `, requesterID, receiverID, r.now())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return false, ErrConflict
			case "23503":
				return false, ErrNotFound
			}
		}
		return false, fmt.Errorf("insert friend request: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit request: %w", err)
	}

	return false, nil
}

// AcceptRequest converts a pending request from requester into a friendship.
// Both edges and the request cleanup land in one transaction with a single
// generated timestamp. Returns ErrNotFound when no such request is pending.
func (r *PostgresFriendRepository) AcceptRequest(ctx context.Context, accepterID, requesterID string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin accept transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
        DELETE FROM friend_requests WHERE requester_id = $1 AND receiver_id = $2
    `, requesterID, accepterID)
	if err != nil {
		return fmt.Errorf("delete pending request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	// Clear a mutual request in the other direction if one slipped in.
	if _, err := tx.Exec(ctx, `
        DELETE FROM friend_requests WHERE requester_id = $1 AND receiver_id = $2
    `, accepterID, requesterID); err != nil {
		return fmt.Errorf("delete reverse request: %w", err)
	}

	if err := insertFriendEdges(ctx, tx, accepterID, requesterID, r.now()); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit accept: %w", err)
	}

	return nil
}

func insertFriendEdges(ctx context.Context, tx pgx.Tx, a, b string, at time.Time) error {
	_, err := tx.Exec(ctx, `
        INSERT INTO friends (user_id, friend_id, created_at)
        VALUES ($1, $2, $3), ($2, $1, $3)
        ON CONFLICT (user_id, friend_id) DO NOTHING
    `, a, b, at)
	if err != nil {
		return fmt.Errorf("insert friend edges: %w", err)
	}
	return nil
}

// RejectRequest drops the pending request from requester, if any. Rejecting a
// request that no longer exists is a no-op.
func (r *PostgresFriendRepository) RejectRequest(ctx context.Context, rejecterID, requesterID string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `
        DELETE FROM friend_requests WHERE requester_id = $1 AND receiver_id = $2
    `, requesterID, rejecterID); err != nil {
		return fmt.Errorf("delete friend request: %w", err)
	}

	return nil
}

// RemoveFriend deletes both directions of a friendship in one statement.
// Removing an absent friendship is a no-op.
func (r *PostgresFriendRepository) RemoveFriend(ctx context.Context, userID, friendID string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `
        DELETE FROM friends
        WHERE (user_id = $1 AND friend_id = $2) OR (user_id = $2 AND friend_id = $1)
    `, userID, friendID); err != nil {
		return fmt.Errorf("delete friend edges: %w", err)
	}

	return nil
}

// Relationships loads the user's friends and pending requests, keyed by the
// counterpart identifier.
func (r *PostgresFriendRepository) Relationships(ctx context.Context, userID string) (models.Relationships, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Relationships{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rel := models.Relationships{
		Friends:  make(map[string]time.Time),
		Incoming: make(map[string]time.Time),
		Outgoing: make(map[string]time.Time),
	}

	rows, err := conn.Query(ctx, `SELECT friend_id, created_at FROM friends WHERE user_id = $1`, userID)
	if err != nil {
		return models.Relationships{}, fmt.Errorf("query friends: %w", err)
	}
	if err := collectEdges(rows, rel.Friends); err != nil {
		return models.Relationships{}, err
	}

	rows, err = conn.Query(ctx, `SELECT requester_id, created_at FROM friend_requests WHERE receiver_id = $1`, userID)
	if err != nil {
		return models.Relationships{}, fmt.Errorf("query incoming requests: %w", err)
	}
	if err := collectEdges(rows, rel.Incoming); err != nil {
		return models.Relationships{}, err
	}

	rows, err = conn.Query(ctx, `SELECT receiver_id, created_at FROM friend_requests WHERE requester_id = $1`, userID)
	if err != nil {
		return models.Relationships{}, fmt.Errorf("query outgoing requests: %w", err)
	}
	if err := collectEdges(rows, rel.Outgoing); err != nil {
		return models.Relationships{}, err
	}

	return rel, nil
}

func collectEdges(rows pgx.Rows, into map[string]time.Time) error {
	defer rows.Close()

	for rows.Next() {
		var (
			id string
			at time.Time
		)
		if err := rows.Scan(&id, &at); err != nil {
			return fmt.Errorf("scan edge: %w", err)
		}
		into[id] = at.UTC()
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate edges: %w", err)
	}

	return nil
}

// PostgresAnimationRepository provides PostgreSQL-backed persistence for
// personal and exchanged animations.
type PostgresAnimationRepository struct {
	pool db.Pool
	now  func() time.Time
}

// NewPostgresAnimationRepository constructs an animation repository backed by PostgreSQL.
func NewPostgresAnimationRepository(pool db.Pool) *PostgresAnimationRepository {
	return &PostgresAnimationRepository{pool: pool, now: func() time.Time { return time.Now().UTC() }}
}

// SavePersonal stores the user's own animation on their record.
func (r *PostgresAnimationRepository) SavePersonal(ctx context.Context, userID string, animation models.Animation) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	payload, err := json.Marshal(animation)
	if err != nil {
		return fmt.Errorf("encode animation: %w", err)
	}

	tag, err := conn.Exec(ctx, `
        UPDATE users SET my_animation = $2, updated_at = NOW() WHERE id = $1
    `, userID, payload)
	if err != nil {
		return fmt.Errorf("update personal animation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// Send stamps the animation with a delivery timestamp and stores it under the
// sender/receiver pair, friendship permitting. The single row serves as both
// the sender's sent copy and the receiver's received copy. Resending to the
// same friend replaces the previous delivery. Returns ErrForbidden when the
// pair is not friends.
func (r *PostgresAnimationRepository) Send(ctx context.Context, senderID, receiverID string, animation models.Animation) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin send transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var friends bool
	row := tx.QueryRow(ctx, `
        SELECT EXISTS (SELECT 1 FROM friends WHERE user_id = $1 AND friend_id = $2)
    `, senderID, receiverID)
	if err := row.Scan(&friends); err != nil {
		return fmt.Errorf("check friendship: %w", err)
	}
	if !friends {
		return ErrForbidden
	}

	sentAt := r.now()
	stamp := sentAt.UnixMilli()
	animation.SentAt = &stamp

	payload, err := json.Marshal(animation)
	if err != nil {
		return fmt.Errorf("encode animation: %w", err)
	}

	_, err = tx.Exec(ctx, `
        INSERT INTO animations (sender_id, receiver_id, payload, sent_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (sender_id, receiver_id)
        DO UPDATE SET payload = EXCLUDED.payload, sent_at = EXCLUDED.sent_at
    `, senderID, receiverID, payload, sentAt)
	if err != nil {
		return fmt.Errorf("upsert animation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit send: %w", err)
	}

	return nil
}

// ForUser returns the user's own animation plus received animations whose
// senders are still friends, enriched with sender details. Returns
// ErrNotFound when the user record does not exist.
func (r *PostgresAnimationRepository) ForUser(ctx context.Context, userID string) (*models.Animation, map[string]models.ReceivedAnimation, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var personalPayload []byte
	if err := conn.QueryRow(ctx, `SELECT my_animation FROM users WHERE id = $1`, userID).Scan(&personalPayload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("select personal animation: %w", err)
	}

	var personal *models.Animation
	if len(personalPayload) > 0 {
		var anim models.Animation
		if err := json.Unmarshal(personalPayload, &anim); err != nil {
			return nil, nil, fmt.Errorf("decode personal animation: %w", err)
		}
		personal = &anim
	}

	rows, err := conn.Query(ctx, `
        SELECT a.sender_id, a.payload, COALESCE(u.display_name, ''), u.email
        FROM animations a
        JOIN friends f ON f.user_id = a.receiver_id AND f.friend_id = a.sender_id
        JOIN users u ON u.id = a.sender_id
        WHERE a.receiver_id = $1
        ORDER BY a.sent_at DESC
    `, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("query received animations: %w", err)
	}
	defer rows.Close()

	received := make(map[string]models.ReceivedAnimation)
	for rows.Next() {
		var (
			senderID    string
			payload     []byte
			senderName  string
			senderEmail string
		)
		if err := rows.Scan(&senderID, &payload, &senderName, &senderEmail); err != nil {
			return nil, nil, fmt.Errorf("scan received animation: %w", err)
		}

		var anim models.Animation
		if err := json.Unmarshal(payload, &anim); err != nil {
			return nil, nil, fmt.Errorf("decode received animation: %w", err)
		}

		if senderName == "" {
			senderName = senderEmail
		}
		received[senderID] = models.ReceivedAnimation{
			Animation:   anim,
			SenderName:  senderName,
			SenderEmail: senderEmail,
		}
	}

	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate received animations: %w", err)
	}

	return personal, received, nil
}

var _ UserRepository = (*PostgresUserRepository)(nil)
var _ NameRepository = (*PostgresNameRepository)(nil)
var _ FriendRepository = (*PostgresFriendRepository)(nil)
var _ AnimationRepository = (*PostgresAnimationRepository)(nil)
