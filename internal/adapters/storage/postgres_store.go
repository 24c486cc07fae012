package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/alerttrail/alerttrail/internal/domain"
)

// PostgresStore implements ports.Storage and ports.EligibilityChecker for
// PostgreSQL.
type PostgresStore struct {
	db *sql.DB

	// defaultCooldown seeds lazily created preference rows.
	defaultCooldown int
}

// NewPostgresStore opens and pings the database. defaultCooldownMinutes
// is applied to preference rows created on first access; zero or negative
// falls back to the domain default.
func NewPostgresStore(connStr string, defaultCooldownMinutes int) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresStore{
		db:              db,
		defaultCooldown: effectiveCooldown(defaultCooldownMinutes),
	}, nil
}

// effectiveCooldown guards the configured default against nonsense values.
func effectiveCooldown(minutes int) int {
	if minutes <= 0 {
		return domain.DefaultCooldownMinutes
	}
	return minutes
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// InitSchema creates the tables if they don't exist. In production, use
// proper migration tooling.
func (s *PostgresStore) InitSchema() error {
	schema := `
	-- Accounts. The alerting core only reads plan state from here; account
	-- management itself lives outside this service.
	CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		email VARCHAR(254) NOT NULL UNIQUE,
		plan VARCHAR(20) NOT NULL DEFAULT 'FREE',
		plan_expires TIMESTAMP,
		created_at TIMESTAMP DEFAULT NOW()
	);

	-- Per-user alerting preferences. Exactly one row per user; rows are
	-- created lazily with defaults on first dispatcher access.
	-- quiet_hours keeps the wire form ("23-7"), "" meaning none.
	CREATE TABLE IF NOT EXISTS notification_prefs (
		user_id UUID PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
		cooldown_minutes INT NOT NULL DEFAULT 10,
		quiet_hours VARCHAR(10) NOT NULL DEFAULT '',
		push_enabled BOOLEAN NOT NULL DEFAULT TRUE,
		updated_at TIMESTAMP NOT NULL DEFAULT NOW()
	);

	-- Delivery state. last_push_at moves only on successful delivery,
	-- inside the same transaction that clears the delivered queue rows.
	CREATE TABLE IF NOT EXISTS notification_state (
		user_id UUID PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
		last_push_at TIMESTAMP
	);

	-- Deferred notifications. Append-only until a successful flush
	-- deletes the delivered batch.
	CREATE TABLE IF NOT EXISTS notification_queue (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		body TEXT NOT NULL,
		url TEXT NOT NULL DEFAULT '/dashboard',
		created_at TIMESTAMP NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_queue_user_created
		ON notification_queue(user_id, created_at);

	CREATE TABLE IF NOT EXISTS push_subscriptions (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		endpoint TEXT NOT NULL,
		p256dh TEXT NOT NULL,
		auth TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		UNIQUE(user_id, endpoint)
	);

	CREATE TABLE IF NOT EXISTS mail_accounts (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		email VARCHAR(254) NOT NULL,
		imap_server VARCHAR(255) NOT NULL DEFAULT 'imap.gmail.com',
		imap_port INT NOT NULL DEFAULT 993,
		use_ssl BOOLEAN NOT NULL DEFAULT TRUE,
		username VARCHAR(254) NOT NULL,
		password TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS mail_alerts (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		msg_uid VARCHAR(64),
		subject TEXT,
		sender VARCHAR(254),
		reason TEXT,
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		is_read BOOLEAN NOT NULL DEFAULT FALSE
	);
	CREATE INDEX IF NOT EXISTS idx_mail_alerts_user
		ON mail_alerts(user_id, created_at DESC);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// CreateUser inserts a user, keeping plan fields on conflict.
func (s *PostgresStore) CreateUser(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, email, plan, plan_expires, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (email) DO NOTHING`
	if _, err := s.db.ExecContext(ctx, query, user.ID, user.Email, user.Plan, user.PlanExpires); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUser fetches one user by ID.
func (s *PostgresStore) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `SELECT id, email, plan, plan_expires, created_at FROM users WHERE id = $1`
	var u domain.User
	err := s.db.QueryRowContext(ctx, query, id).
		Scan(&u.ID, &u.Email, &u.Plan, &u.PlanExpires, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", id, err)
	}
	return &u, nil
}

// IsEligibleForNotifications implements ports.EligibilityChecker: an
// unexpired PRO or BUSINESS plan. An unknown user is simply not eligible.
func (s *PostgresStore) IsEligibleForNotifications(ctx context.Context, userID uuid.UUID) (bool, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return u.IsPaid(time.Now().UTC()), nil
}

// GetOrCreatePreference returns the user's preference row, creating it
// with defaults on first access. The upsert keeps the operation idempotent
// under concurrent first access.
func (s *PostgresStore) GetOrCreatePreference(ctx context.Context, userID uuid.UUID) (*domain.NotificationPreference, error) {
	insert := `
		INSERT INTO notification_prefs (user_id, cooldown_minutes)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING`
	if _, err := s.db.ExecContext(ctx, insert, userID, s.defaultCooldown); err != nil {
		return nil, fmt.Errorf("failed to init preference for %s: %w", userID, err)
	}

	query := `
		SELECT user_id, cooldown_minutes, quiet_hours, push_enabled, updated_at
		FROM notification_prefs WHERE user_id = $1`
	var p domain.NotificationPreference
	err := s.db.QueryRowContext(ctx, query, userID).
		Scan(&p.UserID, &p.CooldownMinutes, &p.QuietHours, &p.PushEnabled, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get preference for %s: %w", userID, err)
	}
	return &p, nil
}

// UpdatePreference persists the user's alerting configuration.
func (s *PostgresStore) UpdatePreference(ctx context.Context, pref *domain.NotificationPreference) error {
	query := `
		UPDATE notification_prefs
		SET cooldown_minutes = $2, quiet_hours = $3, push_enabled = $4, updated_at = NOW()
		WHERE user_id = $1`
	if _, err := s.db.ExecContext(ctx, query, pref.UserID, pref.CooldownMinutes, pref.QuietHours, pref.PushEnabled); err != nil {
		return fmt.Errorf("failed to update preference for %s: %w", pref.UserID, err)
	}
	return nil
}

// GetOrCreateState returns the user's delivery state, creating an empty
// row on first access.
func (s *PostgresStore) GetOrCreateState(ctx context.Context, userID uuid.UUID) (*domain.NotificationState, error) {
	insert := `
		INSERT INTO notification_state (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING`
	if _, err := s.db.ExecContext(ctx, insert, userID); err != nil {
		return nil, fmt.Errorf("failed to init state for %s: %w", userID, err)
	}

	query := `SELECT user_id, last_push_at FROM notification_state WHERE user_id = $1`
	var st domain.NotificationState
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&st.UserID, &st.LastPushAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get state for %s: %w", userID, err)
	}
	return &st, nil
}

// AppendQueueItem persists one deferred notification.
func (s *PostgresStore) AppendQueueItem(ctx context.Context, item *domain.NotificationQueueItem) error {
	query := `
		INSERT INTO notification_queue (id, user_id, title, body, url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := s.db.ExecContext(ctx, query, item.ID, item.UserID, item.Title, item.Body, item.URL, item.CreatedAt); err != nil {
		return fmt.Errorf("failed to append queue item: %w", err)
	}
	return nil
}

// ListQueueItems returns the user's backlog, oldest first.
func (s *PostgresStore) ListQueueItems(ctx context.Context, userID uuid.UUID) ([]domain.NotificationQueueItem, error) {
	query := `
		SELECT id, user_id, title, body, url, created_at
		FROM notification_queue
		WHERE user_id = $1
		ORDER BY created_at ASC`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue for %s: %w", userID, err)
	}
	defer rows.Close()

	items := make([]domain.NotificationQueueItem, 0)
	for rows.Next() {
		var it domain.NotificationQueueItem
		if err := rows.Scan(&it.ID, &it.UserID, &it.Title, &it.Body, &it.URL, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan queue item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// CompleteFlush removes the delivered rows and advances last_push_at in
// one transaction, so delivery bookkeeping can never be half-applied.
func (s *PostgresStore) CompleteFlush(ctx context.Context, userID uuid.UUID, itemIDs []uuid.UUID, pushedAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin flush tx: %w", err)
	}
	defer tx.Rollback()

	ids := make([]string, len(itemIDs))
	for i, id := range itemIDs {
		ids[i] = id.String()
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM notification_queue WHERE user_id = $1 AND id = ANY($2::uuid[])`,
		userID, pq.Array(ids)); err != nil {
		return fmt.Errorf("failed to delete delivered items: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO notification_state (user_id, last_push_at)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET last_push_at = EXCLUDED.last_push_at`,
		userID, pushedAt); err != nil {
		return fmt.Errorf("failed to update last_push_at: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit flush: %w", err)
	}
	return nil
}

// ListQueuedUsers returns the distinct users with pending queue items,
// for the reconciliation poll.
func (s *PostgresStore) ListQueuedUsers(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM notification_queue`)
	if err != nil {
		return nil, fmt.Errorf("failed to list queued users: %w", err)
	}
	defer rows.Close()

	users := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan queued user: %w", err)
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

// SaveSubscription upserts a push subscription keyed on (user, endpoint).
func (s *PostgresStore) SaveSubscription(ctx context.Context, sub *domain.PushSubscription) error {
	query := `
		INSERT INTO push_subscriptions (id, user_id, endpoint, p256dh, auth, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (user_id, endpoint)
		DO UPDATE SET p256dh = EXCLUDED.p256dh, auth = EXCLUDED.auth`
	if _, err := s.db.ExecContext(ctx, query, sub.ID, sub.UserID, sub.Endpoint, sub.P256dh, sub.Auth); err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}
	return nil
}

// GetSubscription returns the user's newest subscription, or nil without
// error when the user has none.
func (s *PostgresStore) GetSubscription(ctx context.Context, userID uuid.UUID) (*domain.PushSubscription, error) {
	query := `
		SELECT id, user_id, endpoint, p256dh, auth, created_at
		FROM push_subscriptions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1`
	var sub domain.PushSubscription
	err := s.db.QueryRowContext(ctx, query, userID).
		Scan(&sub.ID, &sub.UserID, &sub.Endpoint, &sub.P256dh, &sub.Auth, &sub.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription for %s: %w", userID, err)
	}
	return &sub, nil
}

// CreateMailAccount registers a monitored mailbox.
func (s *PostgresStore) CreateMailAccount(ctx context.Context, acct *domain.MailAccount) error {
	query := `
		INSERT INTO mail_accounts (id, user_id, email, imap_server, imap_port, use_ssl, username, password, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())`
	if _, err := s.db.ExecContext(ctx, query,
		acct.ID, acct.UserID, acct.Email, acct.IMAPServer, acct.IMAPPort, acct.UseSSL, acct.Username, acct.Password); err != nil {
		return fmt.Errorf("failed to create mail account: %w", err)
	}
	return nil
}

// ListMailAccounts returns every monitored mailbox.
func (s *PostgresStore) ListMailAccounts(ctx context.Context) ([]domain.MailAccount, error) {
	query := `
		SELECT id, user_id, email, imap_server, imap_port, use_ssl, username, password, created_at
		FROM mail_accounts ORDER BY created_at ASC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list mail accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]domain.MailAccount, 0)
	for rows.Next() {
		var a domain.MailAccount
		if err := rows.Scan(&a.ID, &a.UserID, &a.Email, &a.IMAPServer, &a.IMAPPort, &a.UseSSL, &a.Username, &a.Password, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan mail account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// CreateMailAlert persists one alert for a risky message.
func (s *PostgresStore) CreateMailAlert(ctx context.Context, alert *domain.MailAlert) error {
	query := `
		INSERT INTO mail_alerts (id, user_id, msg_uid, subject, sender, reason, created_at, is_read)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), FALSE)`
	if _, err := s.db.ExecContext(ctx, query,
		alert.ID, alert.UserID, alert.MsgUID, alert.Subject, alert.Sender, alert.Reason); err != nil {
		return fmt.Errorf("failed to create mail alert: %w", err)
	}
	return nil
}

// GetMailAlertByUID returns the user's alert for one message UID, or nil
// without error when the message has never been flagged.
func (s *PostgresStore) GetMailAlertByUID(ctx context.Context, userID uuid.UUID, msgUID string) (*domain.MailAlert, error) {
	query := `
		SELECT id, user_id, msg_uid, subject, sender, reason, created_at, is_read
		FROM mail_alerts
		WHERE user_id = $1 AND msg_uid = $2
		LIMIT 1`
	var a domain.MailAlert
	err := s.db.QueryRowContext(ctx, query, userID, msgUID).
		Scan(&a.ID, &a.UserID, &a.MsgUID, &a.Subject, &a.Sender, &a.Reason, &a.CreatedAt, &a.IsRead)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mail alert for %s uid %s: %w", userID, msgUID, err)
	}
	return &a, nil
}

// ListMailAlerts returns the user's newest alerts.
func (s *PostgresStore) ListMailAlerts(ctx context.Context, userID uuid.UUID, limit int) ([]domain.MailAlert, error) {
	query := `
		SELECT id, user_id, msg_uid, subject, sender, reason, created_at, is_read
		FROM mail_alerts
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`
	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list mail alerts for %s: %w", userID, err)
	}
	defer rows.Close()

	alerts := make([]domain.MailAlert, 0)
	for rows.Next() {
		var a domain.MailAlert
		if err := rows.Scan(&a.ID, &a.UserID, &a.MsgUID, &a.Subject, &a.Sender, &a.Reason, &a.CreatedAt, &a.IsRead); err != nil {
			return nil, fmt.Errorf("failed to scan mail alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}
