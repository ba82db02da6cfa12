package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/sakif/github-explorer/internal/model"
	"github.com/sakif/github-explorer/internal/repository"
)

var _ repository.FriendRepository = (*DB)(nil)

// AddFriend records a directed edge userID -> friendID.
//
// Edges are append-only: nothing ever deletes one, and the UNIQUE
// (user_id, friend_id) constraint plus DO NOTHING makes re-adding free.
// Running the friends workflow twice therefore leaves one edge per pair.
func (db *DB) AddFriend(ctx context.Context, userID, friendID string) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO friends (user_id, friend_id, created_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (user_id, friend_id) DO NOTHING`,
		userID, friendID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: adding friend edge %s -> %s: %w", userID, friendID, err)
	}
	return nil
}

// ListFriends returns the active users userID has an edge to, by username.
// Soft-deleted friends keep their edge but are filtered out here.
func (db *DB) ListFriends(ctx context.Context, userID string) ([]model.User, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+prefixed("u", userColumns)+`
		 FROM friends f
		 JOIN users u ON u.id = f.friend_id
		 WHERE f.user_id = ? AND u.deleted_at IS NULL
		 ORDER BY u.username ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing friends of %s: %w", userID, err)
	}
	return scanUsers(rows)
}
