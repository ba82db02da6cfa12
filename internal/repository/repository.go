// Package repository declares the storage contracts the service layer
// depends on. Implementations live in subpackages (see repository/sqlite).
package repository

import (
	"context"
	"time"

	"github.com/sakif/github-explorer/internal/model"
)

// SortFields is the allow-list of sortable columns for List. Only names in
// this list ever reach an ORDER BY clause.
var SortFields = []string{
	"public_repos",
	"public_gists",
	"followers",
	"following",
	"created_at",
	"username",
}

const (
	OrderAsc  = "ASC"
	OrderDesc = "DESC"
)

var SortOrders = []string{OrderAsc, OrderDesc}

type ListOptions struct {
	SortField string // one of SortFields
	Order     string // OrderAsc or OrderDesc
}

// UserRepository stores cached GitHub profiles.
//
// Lookups by username include soft-deleted rows unless the method name says
// Active. Methods return apperror.ErrNotFound (wrapped) when no row matches.
type UserRepository interface {
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	Create(ctx context.Context, user *model.User) error
	// Save rewrites every mirrored field plus updated_at and deleted_at.
	Save(ctx context.Context, user *model.User) error
	// UpsertFriend inserts the profile if the username is new, otherwise
	// refreshes only avatar_url, name and updated_at. Returns the row id.
	UpsertFriend(ctx context.Context, profile model.Profile) (string, error)
	List(ctx context.Context, opts ListOptions) ([]model.User, error)
	Search(ctx context.Context, query string) ([]model.User, error)
	UpdateActive(ctx context.Context, username string, patch model.UserPatch, now time.Time) (*model.User, error)
	// MarkDeleted persists user.DeletedAt for a row that is still active.
	MarkDeleted(ctx context.Context, user *model.User) error
}

// FriendRepository stores the append-only mutual friend edges.
type FriendRepository interface {
	// AddFriend records the edge; re-adding an existing edge is a no-op.
	AddFriend(ctx context.Context, userID, friendID string) error
	// ListFriends returns active users reachable through edges from userID.
	ListFriends(ctx context.Context, userID string) ([]model.User, error)
}
