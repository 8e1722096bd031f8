// Package postgres is a trustcore.Directory over PostgreSQL, opened through
// the pgx database/sql driver.
//
// Schema changes ship as embedded SQL migrations applied by Migrate.
// RecordLoginFailure is one UPDATE ... RETURNING statement, so concurrent
// failures for the same user are counted exactly.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	trustcore "github.com/RedBox-TN/Backend-sub000"
	"github.com/RedBox-TN/Backend-sub000/permission"
)

// DriverName is the database/sql driver registered by pgx.
const DriverName = "pgx"

// pgUniqueViolation is the SQLSTATE for a unique constraint failure.
const pgUniqueViolation = "23505"

// Options tunes the connection pool.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Open connects to dsn, applies the pool options and pings the server.
func Open(ctx context.Context, dsn string, opts Options) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
	if opts.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Directory implements trustcore.Directory. It does not own db.
type Directory struct {
	db *sql.DB
}

func New(db *sql.DB) *Directory {
	return &Directory{db: db}
}

const selectCredential = `
	SELECT id, username, COALESCE(email, ''), password_hash, salt, invalid_attempts,
	       blocked, role_id, totp_enabled, totp_secret, last_access
	FROM users
`

func (d *Directory) FindByUsername(ctx context.Context, username string) (*trustcore.Credential, error) {
	return d.findOne(ctx, selectCredential+`WHERE username = $1`, username)
}

func (d *Directory) FindByEmail(ctx context.Context, email string) (*trustcore.Credential, error) {
	return d.findOne(ctx, selectCredential+`WHERE LOWER(email) = LOWER($1)`, email)
}

func (d *Directory) FindByID(ctx context.Context, userID string) (*trustcore.Credential, error) {
	return d.findOne(ctx, selectCredential+`WHERE id = $1`, userID)
}

func (d *Directory) findOne(ctx context.Context, query, arg string) (*trustcore.Credential, error) {
	var c trustcore.Credential
	var lastAccess sql.NullTime
	err := d.db.QueryRowContext(ctx, query, arg).Scan(
		&c.UserID, &c.Username, &c.Email, &c.PasswordHash, &c.Salt, &c.InvalidAttempts,
		&c.Blocked, &c.RoleID, &c.TOTPEnabled, &c.TOTPSecret, &lastAccess,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, trustcore.ErrUserNotFound
		}
		return nil, unavailable("query user", err)
	}
	if lastAccess.Valid {
		c.LastAccess = lastAccess.Time.UTC()
	}

	history, err := d.history(ctx, c.UserID)
	if err != nil {
		return nil, err
	}
	c.PasswordHistory = history
	return &c, nil
}

func (d *Directory) history(ctx context.Context, userID string) ([]trustcore.PasswordHistoryEntry, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT hash, salt, changed_at
		FROM password_history
		WHERE user_id = $1
		ORDER BY position ASC
	`, userID)
	if err != nil {
		return nil, unavailable("query password history", err)
	}
	defer rows.Close()

	var out []trustcore.PasswordHistoryEntry
	for rows.Next() {
		var h trustcore.PasswordHistoryEntry
		if err := rows.Scan(&h.Hash, &h.Salt, &h.ChangedAt); err != nil {
			return nil, unavailable("scan password history", err)
		}
		h.ChangedAt = h.ChangedAt.UTC()
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate password history", err)
	}
	return out, nil
}

func (d *Directory) RecordLoginFailure(ctx context.Context, userID string, maxAttempts int) (int, bool, error) {
	var attempts int
	var blocked bool
	err := d.db.QueryRowContext(ctx, `
		UPDATE users
		SET invalid_attempts = invalid_attempts + 1,
		    blocked = blocked OR invalid_attempts + 1 >= $2
		WHERE id = $1
		RETURNING invalid_attempts, blocked
	`, userID, maxAttempts).Scan(&attempts, &blocked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, trustcore.ErrUserNotFound
		}
		return 0, false, unavailable("record login failure", err)
	}
	return attempts, blocked, nil
}

func (d *Directory) RecordLoginSuccess(ctx context.Context, userID string, at time.Time) error {
	return d.exec(ctx, "record login success", `
		UPDATE users SET invalid_attempts = 0, last_access = $2 WHERE id = $1
	`, userID, at.UTC())
}

func (d *Directory) SetBlocked(ctx context.Context, userID string, blocked bool) error {
	return d.exec(ctx, "set blocked", `
		UPDATE users
		SET blocked = $2,
		    invalid_attempts = CASE WHEN $2 THEN invalid_attempts ELSE 0 END
		WHERE id = $1
	`, userID, blocked)
}

func (d *Directory) UpdateTOTP(ctx context.Context, userID, secret string, enabled bool) error {
	return d.exec(ctx, "update totp", `
		UPDATE users SET totp_secret = $2, totp_enabled = $3 WHERE id = $1
	`, userID, secret, enabled)
}

// UpdatePassword replaces the hash and rewrites the history in one
// transaction.
func (d *Directory) UpdatePassword(ctx context.Context, userID string, hash, salt []byte, history []trustcore.PasswordHistoryEntry) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin password update", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE users SET password_hash = $2, salt = $3 WHERE id = $1
	`, userID, hash, salt)
	if err != nil {
		return unavailable("update password", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return trustcore.ErrUserNotFound
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM password_history WHERE user_id = $1`, userID); err != nil {
		return unavailable("clear password history", err)
	}
	for i, h := range history {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO password_history (user_id, position, hash, salt, changed_at)
			VALUES ($1, $2, $3, $4, $5)
		`, userID, i, h.Hash, h.Salt, h.ChangedAt.UTC()); err != nil {
			return unavailable("insert password history", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return unavailable("commit password update", err)
	}
	return nil
}

func (d *Directory) GetRole(ctx context.Context, roleID string) (trustcore.Role, error) {
	var r trustcore.Role
	var bits int64
	err := d.db.QueryRowContext(ctx, `
		SELECT id, name, permissions FROM roles WHERE id = $1
	`, roleID).Scan(&r.ID, &r.Name, &bits)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return trustcore.Role{}, trustcore.ErrRoleNotFound
		}
		return trustcore.Role{}, unavailable("query role", err)
	}
	r.Permissions = permission.Mask(uint64(bits))
	return r, nil
}

// UpsertRole creates or replaces a role.
func (d *Directory) UpsertRole(ctx context.Context, role trustcore.Role) error {
	if role.ID == "" {
		return fmt.Errorf("%w: role id is required", trustcore.ErrInvalidRequest)
	}
	name := role.Name
	if name == "" {
		name = role.ID
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO roles (id, name, permissions) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, permissions = EXCLUDED.permissions
	`, role.ID, name, int64(role.Permissions.Raw()))
	if err != nil {
		return unavailable("upsert role", err)
	}
	return nil
}

// Create inserts a new credential. A taken username or email returns
// trustcore.ErrUserExists.
func (d *Directory) Create(ctx context.Context, cred *trustcore.Credential) error {
	if cred == nil || cred.UserID == "" || cred.Username == "" {
		return fmt.Errorf("%w: user id and username are required", trustcore.ErrInvalidRequest)
	}

	var email sql.NullString
	if e := strings.TrimSpace(cred.Email); e != "" {
		email = sql.NullString{String: e, Valid: true}
	}

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, password_hash, salt, role_id, totp_enabled, totp_secret)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, cred.UserID, cred.Username, email, cred.PasswordHash, cred.Salt, cred.RoleID, cred.TOTPEnabled, cred.TOTPSecret)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return trustcore.ErrUserExists
		}
		return unavailable("insert user", err)
	}
	return nil
}

func (d *Directory) exec(ctx context.Context, op, query string, args ...any) error {
	res, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return unavailable(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable(op, err)
	}
	if n == 0 {
		return trustcore.ErrUserNotFound
	}
	return nil
}

func unavailable(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", trustcore.ErrDirectoryUnavailable, op, err)
}

var _ trustcore.Directory = (*Directory)(nil)
