package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/xid"
	sqlitedrv "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/github-explorer/internal/apperror"
	"github.com/sakif/github-explorer/internal/model"
	"github.com/sakif/github-explorer/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

// userColumns is the SELECT/RETURNING list matching scanUser's argument order.
const userColumns = `id, username, avatar_url, name, company, blog, location, email, bio,
	twitter_username, public_repos, public_gists, followers, following,
	created_at, updated_at, deleted_at`

// prefixed qualifies every column in a comma separated list with alias,
// for queries that join users to another table.
func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, c := range parts {
		parts[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(parts, ", ")
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (*model.User, error) {
	var (
		u         model.User
		deletedAt sql.NullTime
	)
	err := s.Scan(
		&u.ID, &u.Username, &u.AvatarURL, &u.Name, &u.Company, &u.Blog,
		&u.Location, &u.Email, &u.Bio, &u.TwitterUsername,
		&u.PublicRepos, &u.PublicGists, &u.Followers, &u.Following,
		&u.CreatedAt, &u.UpdatedAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}
	if deletedAt.Valid {
		t := deletedAt.Time.UTC()
		u.DeletedAt = &t
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return &u, nil
}

func scanUsers(rows *sql.Rows) ([]model.User, error) {
	defer rows.Close()

	users := make([]model.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning user row: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating users: %w", err)
	}
	return users, nil
}

// nullTime converts an optional timestamp into something the driver can bind.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// GetByUsername returns the row for username, soft-deleted or not.
func (db *DB) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?`,
		username,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.UserNotFound(username)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", username, err)
	}
	return u, nil
}

// Create inserts a new user. The ID is generated here; timestamps are taken
// from the model as-is (they come from GitHub, not from the clock).
// A username that is already stored yields apperror.ErrConflict.
func (db *DB) Create(ctx context.Context, user *model.User) error {
	user.ID = xid.New().String()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Username, user.AvatarURL, user.Name, user.Company, user.Blog,
		user.Location, user.Email, user.Bio, user.TwitterUsername,
		user.PublicRepos, user.PublicGists, user.Followers, user.Following,
		user.CreatedAt.UTC(), user.UpdatedAt.UTC(), nullTime(user.DeletedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", user.Username)
		}
		return fmt.Errorf("sqlite: inserting user %s: %w", user.Username, err)
	}
	return nil
}

// isUniqueViolation reports whether err is SQLite rejecting a duplicate key.
// The driver enables extended result codes, so the code is the specific
// SQLITE_CONSTRAINT_UNIQUE rather than the generic SQLITE_CONSTRAINT.
func isUniqueViolation(err error) bool {
	var se *sqlitedrv.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

// Save rewrites the mutable state of an existing row: every mirrored GitHub
// field, updated_at and deleted_at. Used for resurrection.
func (db *DB) Save(ctx context.Context, user *model.User) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE users SET
			avatar_url = ?, name = ?, company = ?, blog = ?, location = ?,
			email = ?, bio = ?, twitter_username = ?,
			public_repos = ?, public_gists = ?, followers = ?, following = ?,
			updated_at = ?, deleted_at = ?
		 WHERE id = ?`,
		user.AvatarURL, user.Name, user.Company, user.Blog, user.Location,
		user.Email, user.Bio, user.TwitterUsername,
		user.PublicRepos, user.PublicGists, user.Followers, user.Following,
		user.UpdatedAt.UTC(), nullTime(user.DeletedAt),
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: saving user %s: %w", user.Username, err)
	}
	return expectOneRow(result, user.Username)
}

// UpsertFriend stores a mutual friend's profile.
//
// ON CONFLICT ... DO UPDATE:
// A new username is inserted with the full profile. An existing one (active or
// soft-deleted) only gets avatar_url, name and updated_at refreshed, so fields
// a user edited through PATCH survive being rediscovered as a friend.
// RETURNING id yields the surviving row's id in both cases.
func (db *DB) UpsertFriend(ctx context.Context, p model.Profile) (string, error) {
	u := model.NewUserFromProfile(p)

	var id string
	err := db.conn.QueryRowContext(ctx,
		`INSERT INTO users (
			id, username, avatar_url, name, company, blog, location, email, bio,
			twitter_username, public_repos, public_gists, followers, following,
			created_at, updated_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (username) DO UPDATE SET
			avatar_url = excluded.avatar_url,
			name       = excluded.name,
			updated_at = excluded.updated_at
		 RETURNING id`,
		xid.New().String(), u.Username, u.AvatarURL, u.Name, u.Company, u.Blog,
		u.Location, u.Email, u.Bio, u.TwitterUsername,
		u.PublicRepos, u.PublicGists, u.Followers, u.Following,
		u.CreatedAt, u.UpdatedAt,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("sqlite: upserting friend %s: %w", p.Login, err)
	}
	return id, nil
}

// List returns active users ordered by one of the allow-listed columns.
//
// ORDER BY cannot take a placeholder, so the column and direction are
// interpolated. That is only safe because both are checked against fixed
// allow-lists first; never pass raw request input here unchecked.
func (db *DB) List(ctx context.Context, opts repository.ListOptions) ([]model.User, error) {
	if !slices.Contains(repository.SortFields, opts.SortField) {
		return nil, apperror.InvalidChoice("sort_by", opts.SortField, repository.SortFields)
	}
	if !slices.Contains(repository.SortOrders, opts.Order) {
		return nil, apperror.InvalidChoice("order", opts.Order, repository.SortOrders)
	}

	rows, err := db.conn.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s FROM users
		 WHERE deleted_at IS NULL
		 ORDER BY %s %s, username ASC`,
		userColumns, opts.SortField, opts.Order,
	))
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing users: %w", err)
	}
	return scanUsers(rows)
}

// likeEscaper makes %, _ and the escape character itself match literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Search does a case-insensitive substring match over username, location,
// name and company of active users. Both sides go through fold(), so
// "ÖSTER" and "öster" match "Österreich" alike.
func (db *DB) Search(ctx context.Context, query string) ([]model.User, error) {
	pattern := "%" + likeEscaper.Replace(foldString(query)) + "%"

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE deleted_at IS NULL
		   AND (fold(username) LIKE ?1 ESCAPE '\'
		     OR fold(location) LIKE ?1 ESCAPE '\'
		     OR fold(name)     LIKE ?1 ESCAPE '\'
		     OR fold(company)  LIKE ?1 ESCAPE '\')
		 ORDER BY username ASC`,
		pattern,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: searching users: %w", err)
	}
	return scanUsers(rows)
}

// UpdateActive applies a partial update to an active user and returns the
// updated row. Only the fields set in patch are written, plus updated_at.
func (db *DB) UpdateActive(ctx context.Context, username string, patch model.UserPatch, now time.Time) (*model.User, error) {
	if patch.IsEmpty() {
		return nil, apperror.ValidationFailed("body", "at least one field to update is required")
	}

	// Column names are literals; only values are bound.
	var (
		sets []string
		args []any
	)
	if patch.Location != nil {
		sets = append(sets, "location = ?")
		args = append(args, *patch.Location)
	}
	if patch.Blog != nil {
		sets = append(sets, "blog = ?")
		args = append(args, *patch.Blog)
	}
	if patch.Bio != nil {
		sets = append(sets, "bio = ?")
		args = append(args, *patch.Bio)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, now.UTC(), username)

	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`UPDATE users SET `+strings.Join(sets, ", ")+`
		 WHERE username = ? AND deleted_at IS NULL
		 RETURNING `+userColumns,
		args...,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.UserNotFound(username)
		}
		return nil, fmt.Errorf("sqlite: updating user %s: %w", username, err)
	}
	return u, nil
}

// MarkDeleted persists user.DeletedAt. The deleted_at IS NULL guard means a
// concurrent delete of the same row makes this one report NotFound instead of
// overwriting the first marker.
func (db *DB) MarkDeleted(ctx context.Context, user *model.User) error {
	if user.DeletedAt == nil {
		return fmt.Errorf("sqlite: marking %s deleted: %w", user.Username, model.ErrNotDeleted)
	}

	result, err := db.conn.ExecContext(ctx,
		`UPDATE users SET deleted_at = ?
		 WHERE id = ? AND deleted_at IS NULL`,
		user.DeletedAt.UTC(), user.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: soft-deleting user %s: %w", user.Username, err)
	}
	return expectOneRow(result, user.Username)
}

// expectOneRow turns "UPDATE matched nothing" into a NotFound error.
func expectOneRow(result sql.Result, username string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.UserNotFound(username)
	}
	return nil
}
