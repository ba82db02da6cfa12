// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// Services here also orchestrate the second data source, the GitHub API.
// They depend on it through the GitHubClient interface below, never on
// *github.Client directly, so tests can substitute a mock.
//
// ERROR MAPPING:
// GitHub failures are translated here, once, into the apperror taxonomy:
//
//	github.ErrNotFound      → apperror.UserNotFound (404)
//	*github.TransportError  → apperror.Upstream      (500, with details)
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/sakif/github-explorer/internal/apperror"
	"github.com/sakif/github-explorer/internal/github"
	"github.com/sakif/github-explorer/internal/model"
	"github.com/sakif/github-explorer/internal/repository"
)

// GitHubClient is the subset of the GitHub API the services use.
type GitHubClient interface {
	FetchProfile(ctx context.Context, username string) (*model.Profile, error)
	FetchRepositories(ctx context.Context, username string) ([]model.Repository, error)
	FetchFollowers(ctx context.Context, username string) ([]string, error)
	FetchFollowing(ctx context.Context, username string) ([]string, error)
}

var _ GitHubClient = (*github.Client)(nil)

const (
	DefaultSortField = "username"
	DefaultSortOrder = repository.OrderAsc
)

// UserService resolves, lists, edits and soft-deletes cached GitHub users.
type UserService struct {
	users  repository.UserRepository
	gh     GitHubClient
	logger *slog.Logger
	now    func() time.Time
}

func NewUserService(users repository.UserRepository, gh GitHubClient, logger *slog.Logger) *UserService {
	return &UserService{
		users:  users,
		gh:     gh,
		logger: logger,
		now:    time.Now,
	}
}

// Resolve returns the stored user for username, fetching from GitHub when
// the row is missing or soft-deleted.
//
// THE FOUR CASES:
//  1. Stored and active       → returned as-is, GitHub is not called
//  2. Stored and soft-deleted → resurrected with a fresh profile
//  3. Not stored              → fetched and inserted
//  4. Unknown to GitHub too   → UserNotFound, nothing is written
func (s *UserService) Resolve(ctx context.Context, username string) (*model.User, error) {
	username, err := requireUsername(username)
	if err != nil {
		return nil, err
	}

	u, err := s.lookup(ctx, username)
	if err != nil {
		return nil, err
	}
	if u != nil && u.IsActive() {
		return u, nil
	}

	p, err := fetchProfile(ctx, s.gh, username)
	if err != nil {
		return nil, githubError("profile", username, err)
	}

	// GitHub matches logins case-insensitively and answers with the
	// canonical spelling, which may already be stored.
	if u == nil && p.Login != username {
		if u, err = s.lookup(ctx, p.Login); err != nil {
			return nil, err
		}
		if u != nil && u.IsActive() {
			return u, nil
		}
	}

	if u != nil {
		return s.resurrect(ctx, u, *p)
	}
	return s.create(ctx, *p)
}

// lookup returns (nil, nil) when username is not stored.
func (s *UserService) lookup(ctx context.Context, username string) (*model.User, error) {
	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("looking up user %s: %w", username, err)
	}
	return u, nil
}

func (s *UserService) resurrect(ctx context.Context, u *model.User, p model.Profile) (*model.User, error) {
	if err := u.Resurrect(p, s.now()); err != nil {
		return nil, fmt.Errorf("resurrecting user %s: %w", u.Username, err)
	}
	if err := s.users.Save(ctx, u); err != nil {
		return nil, fmt.Errorf("resurrecting user %s: %w", u.Username, err)
	}

	s.logger.Info("user resurrected", slog.String("username", u.Username), slog.String("id", u.ID))
	return u, nil
}

func (s *UserService) create(ctx context.Context, p model.Profile) (*model.User, error) {
	u := model.NewUserFromProfile(p)
	if err := s.users.Create(ctx, u); err != nil {
		// A concurrent Resolve for the same username won the insert.
		if errors.Is(err, apperror.ErrConflict) {
			if existing, lerr := s.lookup(ctx, p.Login); lerr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("creating user %s: %w", p.Login, err)
	}

	s.logger.Info("user created", slog.String("username", u.Username), slog.String("id", u.ID))
	return u, nil
}

// List returns active users. sortBy is matched case-insensitively, order
// is "asc" or "desc" in any case; both default when empty.
func (s *UserService) List(ctx context.Context, sortBy, order string) ([]model.User, error) {
	sortBy = strings.ToLower(strings.TrimSpace(sortBy))
	if sortBy == "" {
		sortBy = DefaultSortField
	}
	order = strings.ToUpper(strings.TrimSpace(order))
	if order == "" {
		order = DefaultSortOrder
	}

	if !slices.Contains(repository.SortFields, sortBy) {
		return nil, apperror.InvalidChoice("sort_by", sortBy, repository.SortFields)
	}
	if !slices.Contains(repository.SortOrders, order) {
		return nil, apperror.InvalidChoice("order", order, repository.SortOrders)
	}

	users, err := s.users.List(ctx, repository.ListOptions{SortField: sortBy, Order: order})
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return users, nil
}

// Search matches query against username, location, name and company.
func (s *UserService) Search(ctx context.Context, query string) ([]model.User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperror.ValidationFailed("query", "search query is required")
	}

	users, err := s.users.Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("searching users: %w", err)
	}
	return users, nil
}

// Update applies the locally editable fields of patch to an active user.
func (s *UserService) Update(ctx context.Context, username string, patch model.UserPatch) (*model.User, error) {
	username, err := requireUsername(username)
	if err != nil {
		return nil, err
	}
	if patch.IsEmpty() {
		return nil, apperror.ValidationFailed("body", "at least one of location, blog or bio is required")
	}

	u, err := s.users.UpdateActive(ctx, username, patch, s.now())
	if err != nil {
		return nil, fmt.Errorf("updating user %s: %w", username, err)
	}

	s.logger.Info("user updated", slog.String("username", username))
	return u, nil
}

// SoftDelete moves an active user to the deleted state and returns the
// row as it now stands.
func (s *UserService) SoftDelete(ctx context.Context, username string) (*model.User, error) {
	username, err := requireUsername(username)
	if err != nil {
		return nil, err
	}

	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("deleting user %s: %w", username, err)
	}
	if err := u.SoftDelete(s.now()); err != nil {
		// Already deleted looks the same as never existing to the client.
		return nil, apperror.UserNotFound(username)
	}
	if err := s.users.MarkDeleted(ctx, u); err != nil {
		return nil, fmt.Errorf("deleting user %s: %w", username, err)
	}

	s.logger.Info("user soft-deleted", slog.String("username", username), slog.String("id", u.ID))
	return u, nil
}

// Repositories is a pass-through to GitHub. Results are never stored.
func (s *UserService) Repositories(ctx context.Context, username string) ([]model.Repository, error) {
	username, err := requireUsername(username)
	if err != nil {
		return nil, err
	}

	repos, err := s.gh.FetchRepositories(ctx, username)
	if err != nil {
		return nil, githubError("repositories", username, err)
	}
	return repos, nil
}

// fetchProfile fetches username's profile and refuses one that cannot be
// stored, whatever GitHubClient implementation answered.
func fetchProfile(ctx context.Context, gh GitHubClient, username string) (*model.Profile, error) {
	p, err := gh.FetchProfile(ctx, username)
	if err != nil {
		return nil, err
	}
	if err := github.CheckProfile(p); err != nil {
		return nil, err
	}
	return p, nil
}

func requireUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", apperror.ValidationFailed("username", "username is required")
	}
	return username, nil
}

// githubError maps a GitHub client failure onto the apperror taxonomy.
func githubError(what, username string, err error) error {
	if errors.Is(err, github.ErrNotFound) {
		return apperror.UserNotFound(username)
	}
	return apperror.Upstream(fmt.Sprintf("failed to fetch %s for %s from GitHub", what, username), err)
}
