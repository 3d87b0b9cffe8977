package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// --- Users ---

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, COALESCE(password_hash, ''), is_email_verified, created_at, updated_at
		FROM users
		WHERE id=$1
	`, userID).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.IsEmailVerified, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, COALESCE(password_hash, ''), is_email_verified, created_at, updated_at
		FROM users
		WHERE LOWER(email)=LOWER($1)
	`, email).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.IsEmailVerified, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash, is_email_verified, verification_token, verification_expires_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
	`, user.ID, user.DisplayName, user.Email, user.PasswordHash, user.IsEmailVerified, user.VerificationToken, user.VerificationExpiresAt)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET verification_token=$2, verification_expires_at=$3, updated_at=NOW()
		WHERE id=$1
	`, userID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("update verification token: %w", err)
	}
	return nil
}

func (s *PostgresStore) VerifyUserEmail(ctx context.Context, token string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET is_email_verified=TRUE, verification_token=NULL, verification_expires_at=NULL, updated_at=NOW()
		WHERE verification_token=$1 AND verification_expires_at > NOW()
	`, token)
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("verify email rows: %w", err)
	}
	if affected == 0 {
		return errors.New("invalid or expired verification token")
	}
	return nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1
	`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token) DO NOTHING
	`, token, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM password_resets
		WHERE token=$1 AND used_at IS NULL AND expires_at > NOW()
	`, token).Scan(&userID)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE password_resets SET used_at=NOW() WHERE token=$1`, token)
	if err != nil {
		return fmt.Errorf("mark password reset used: %w", err)
	}
	return nil
}

// --- Refresh sessions (Postgres fallback when Redis is not configured) ---

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.display_name, u.email
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.DisplayName, &user.Email)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// --- Pages ---

func (s *PostgresStore) ListPagesByOwner(ctx context.Context, ownerID string) ([]Page, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, slug, title, description, created_at, updated_at
		FROM pages
		WHERE owner_id=$1
		ORDER BY updated_at DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()

	items := make([]Page, 0)
	for rows.Next() {
		var item Page
		if err := rows.Scan(&item.ID, &item.OwnerID, &item.Slug, &item.Title, &item.Description, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pages: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetPage(ctx context.Context, pageID string) (Page, error) {
	var item Page
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, slug, title, description, created_at, updated_at
		FROM pages
		WHERE id=$1
	`, pageID).Scan(&item.ID, &item.OwnerID, &item.Slug, &item.Title, &item.Description, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Page{}, err
	}
	return item, nil
}

func (s *PostgresStore) GetPageBySlug(ctx context.Context, slug string) (Page, error) {
	var item Page
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, slug, title, description, created_at, updated_at
		FROM pages
		WHERE slug=$1
	`, slug).Scan(&item.ID, &item.OwnerID, &item.Slug, &item.Title, &item.Description, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Page{}, err
	}
	return item, nil
}

func (s *PostgresStore) InsertPage(ctx context.Context, item Page) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pages (id, owner_id, slug, title, description)
		VALUES ($1, $2, $3, $4, $5)
	`, item.ID, item.OwnerID, item.Slug, item.Title, item.Description)
	if err != nil {
		return fmt.Errorf("insert page: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdatePage(ctx context.Context, pageID, title, description string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE pages SET title=$2, description=$3, updated_at=NOW()
		WHERE id=$1
	`, pageID, title, description)
	if err != nil {
		return fmt.Errorf("update page: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeletePage(ctx context.Context, pageID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pages WHERE id=$1`, pageID)
	if err != nil {
		return fmt.Errorf("delete page: %w", err)
	}
	return nil
}

// --- Posts ---

func (s *PostgresStore) ListPosts(ctx context.Context, pageID string, publishedOnly bool) ([]Post, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, page_id, title, content, tags, status, published_at, created_at, updated_at
		FROM posts
		WHERE page_id=$1
		  AND (NOT $2::boolean OR status='published')
		ORDER BY COALESCE(published_at, created_at) DESC
	`, pageID, publishedOnly)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	items := make([]Post, 0)
	for rows.Next() {
		var item Post
		var tagsRaw []byte
		if err := rows.Scan(&item.ID, &item.PageID, &item.Title, &item.Content, &tagsRaw, &item.Status, &item.PublishedAt, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		_ = json.Unmarshal(tagsRaw, &item.Tags)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetPost(ctx context.Context, postID string) (Post, error) {
	var item Post
	var tagsRaw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, page_id, title, content, tags, status, published_at, created_at, updated_at
		FROM posts
		WHERE id=$1
	`, postID).Scan(&item.ID, &item.PageID, &item.Title, &item.Content, &tagsRaw, &item.Status, &item.PublishedAt, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Post{}, err
	}
	_ = json.Unmarshal(tagsRaw, &item.Tags)
	return item, nil
}

func (s *PostgresStore) InsertPost(ctx context.Context, item Post) error {
	status := item.Status
	if status == "" {
		status = "draft"
	}
	tags := item.Tags
	if tags == nil {
		tags = []string{}
	}
	encodedTags, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("marshal post tags: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO posts (id, page_id, title, content, tags, status)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6)
	`, item.ID, item.PageID, item.Title, item.Content, string(encodedTags), status)
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdatePost(ctx context.Context, postID, title, content string, tags []string) error {
	if tags == nil {
		tags = []string{}
	}
	encodedTags, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("marshal post tags: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE posts SET title=$2, content=$3, tags=$4::jsonb, updated_at=NOW()
		WHERE id=$1
	`, postID, title, content, string(encodedTags))
	if err != nil {
		return fmt.Errorf("update post: %w", err)
	}
	return nil
}

func (s *PostgresStore) PublishPost(ctx context.Context, postID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE posts SET status='published', published_at=NOW(), updated_at=NOW()
		WHERE id=$1 AND status <> 'published'
	`, postID)
	if err != nil {
		return false, fmt.Errorf("publish post: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("publish post rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) DeletePost(ctx context.Context, postID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE id=$1`, postID)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	return nil
}

// --- Subscribers ---

func (s *PostgresStore) InsertSubscriber(ctx context.Context, item Subscriber) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscribers (id, page_id, email, confirmed)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (page_id, email) DO NOTHING
	`, item.ID, item.PageID, item.Email, item.Confirmed)
	if err != nil {
		return fmt.Errorf("insert subscriber: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListSubscribers(ctx context.Context, pageID string, confirmedOnly bool) ([]Subscriber, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, page_id, email, confirmed, created_at
		FROM subscribers
		WHERE page_id=$1
		  AND (NOT $2::boolean OR confirmed)
		ORDER BY created_at ASC
	`, pageID, confirmedOnly)
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	defer rows.Close()

	items := make([]Subscriber, 0)
	for rows.Next() {
		var item Subscriber
		if err := rows.Scan(&item.ID, &item.PageID, &item.Email, &item.Confirmed, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscribers: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ConfirmSubscriber(ctx context.Context, subscriberID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE subscribers SET confirmed=TRUE WHERE id=$1`, subscriberID)
	if err != nil {
		return fmt.Errorf("confirm subscriber: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteSubscriber(ctx context.Context, pageID, email string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM subscribers WHERE page_id=$1 AND LOWER(email)=LOWER($2)`, pageID, email)
	if err != nil {
		return fmt.Errorf("delete subscriber: %w", err)
	}
	return nil
}

// DeleteSubscriberByID serves one-click unsubscribe links, which carry the
// subscriber id rather than the address.
func (s *PostgresStore) DeleteSubscriberByID(ctx context.Context, subscriberID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM subscribers WHERE id=$1`, subscriberID)
	if err != nil {
		return fmt.Errorf("delete subscriber by id: %w", err)
	}
	return nil
}

// --- Billing ---

func (s *PostgresStore) UpsertSubscription(ctx context.Context, item Subscription) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (id, user_id, stripe_customer_id, stripe_sub_id, status, price_id, current_period_end)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE
		SET stripe_customer_id=EXCLUDED.stripe_customer_id,
		    stripe_sub_id=EXCLUDED.stripe_sub_id,
		    status=EXCLUDED.status,
		    price_id=EXCLUDED.price_id,
		    current_period_end=EXCLUDED.current_period_end,
		    updated_at=NOW()
	`, item.ID, item.UserID, item.StripeCustomerID, item.StripeSubID, item.Status, item.PriceID, item.CurrentPeriodEnd)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSubscriptionByUser(ctx context.Context, userID string) (Subscription, error) {
	var item Subscription
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, stripe_customer_id, COALESCE(stripe_sub_id, ''), status, COALESCE(price_id, ''), current_period_end, created_at, updated_at
		FROM subscriptions
		WHERE user_id=$1
	`, userID).Scan(&item.ID, &item.UserID, &item.StripeCustomerID, &item.StripeSubID, &item.Status, &item.PriceID, &item.CurrentPeriodEnd, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Subscription{}, err
	}
	return item, nil
}

func (s *PostgresStore) GetUserByStripeCustomer(ctx context.Context, customerID string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `SELECT user_id FROM subscriptions WHERE stripe_customer_id=$1`, customerID).Scan(&userID)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *PostgresStore) UpdateSubscriptionStatus(ctx context.Context, stripeSubID, status string, periodEnd *time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE subscriptions SET status=$2, current_period_end=$3, updated_at=NOW()
		WHERE stripe_sub_id=$1
	`, stripeSubID, status, periodEnd)
	if err != nil {
		return fmt.Errorf("update subscription status: %w", err)
	}
	return nil
}

// --- GitHub installations ---

func (s *PostgresStore) InsertGitHubInstallation(ctx context.Context, item GitHubInstallation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO github_installations (id, page_id, installation_id, repo_full_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (installation_id, repo_full_name) DO NOTHING
	`, item.ID, item.PageID, item.InstallationID, item.RepoFullName)
	if err != nil {
		return fmt.Errorf("insert github installation: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetGitHubInstallationByRepo(ctx context.Context, repoFullName string) (GitHubInstallation, error) {
	var item GitHubInstallation
	err := s.db.QueryRowContext(ctx, `
		SELECT id, page_id, installation_id, repo_full_name, created_at
		FROM github_installations
		WHERE repo_full_name=$1
	`, repoFullName).Scan(&item.ID, &item.PageID, &item.InstallationID, &item.RepoFullName, &item.CreatedAt)
	if err != nil {
		return GitHubInstallation{}, err
	}
	return item, nil
}

func (s *PostgresStore) DeleteGitHubInstallation(ctx context.Context, installationID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM github_installations WHERE installation_id=$1`, installationID)
	if err != nil {
		return fmt.Errorf("delete github installation: %w", err)
	}
	return nil
}
