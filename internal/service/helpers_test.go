package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sakif/github-explorer/internal/model"
	"github.com/sakif/github-explorer/internal/repository/sqlite"
)

// =========================================================================
// MOCK GITHUB CLIENT
// =========================================================================
//
// mockGitHub is a testify mock: each test declares the calls it expects with
// On(...).Return(...), and AssertExpectations / AssertNotCalled verify them.
// Storage is NOT mocked; the services run against a real in-memory SQLite
// database so the SQL is exercised too.

type mockGitHub struct {
	mock.Mock
}

func (m *mockGitHub) FetchProfile(ctx context.Context, username string) (*model.Profile, error) {
	args := m.Called(ctx, username)
	p, _ := args.Get(0).(*model.Profile)
	return p, args.Error(1)
}

func (m *mockGitHub) FetchRepositories(ctx context.Context, username string) ([]model.Repository, error) {
	args := m.Called(ctx, username)
	repos, _ := args.Get(0).([]model.Repository)
	return repos, args.Error(1)
}

func (m *mockGitHub) FetchFollowers(ctx context.Context, username string) ([]string, error) {
	args := m.Called(ctx, username)
	logins, _ := args.Get(0).([]string)
	return logins, args.Error(1)
}

func (m *mockGitHub) FetchFollowing(ctx context.Context, username string) ([]string, error) {
	args := m.Called(ctx, username)
	logins, _ := args.Get(0).([]string)
	return logins, args.Error(1)
}

// =========================================================================
// TEST HELPERS
// =========================================================================

var fixedNow = time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestUserService(t *testing.T) (*UserService, *mockGitHub, *sqlite.DB) {
	t.Helper()
	db := newTestStore(t)
	gh := &mockGitHub{}
	svc := NewUserService(db, gh, discardLogger())
	svc.now = func() time.Time { return fixedNow }
	return svc, gh, db
}

func newTestFriendService(t *testing.T) (*FriendService, *mockGitHub, *sqlite.DB) {
	t.Helper()
	db := newTestStore(t)
	gh := &mockGitHub{}
	return NewFriendService(db, db, gh, nil, discardLogger()), gh, db
}

func profile(login string) *model.Profile {
	return &model.Profile{
		Login:       login,
		AvatarURL:   "https://avatars.example.com/" + login,
		Name:        "Name of " + login,
		Location:    "Berlin",
		Bio:         "bio of " + login,
		PublicRepos: 4,
		Followers:   12,
		Following:   3,
		CreatedAt:   time.Date(2014, 2, 3, 4, 5, 6, 0, time.UTC),
		UpdatedAt:   time.Date(2025, 8, 9, 10, 11, 12, 0, time.UTC),
	}
}

// seedUser stores login directly, bypassing GitHub.
func seedUser(t *testing.T, db *sqlite.DB, login string) *model.User {
	t.Helper()
	u := model.NewUserFromProfile(*profile(login))
	require.NoError(t, db.Create(context.Background(), u))
	return u
}
