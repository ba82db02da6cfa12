package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sakif/github-explorer/internal/apperror"
	"github.com/sakif/github-explorer/internal/github"
	"github.com/sakif/github-explorer/internal/model"
	"github.com/sakif/github-explorer/internal/repository"
)

func strPtr(s string) *string { return &s }

// =========================================================================
// RESOLVE TESTS
// =========================================================================

func TestResolve_ActiveUserSkipsGitHub(t *testing.T) {
	svc, gh, db := newTestUserService(t)
	stored := seedUser(t, db, "octocat")

	u, err := svc.Resolve(context.Background(), "octocat")
	require.NoError(t, err)

	assert.Equal(t, stored.ID, u.ID)
	gh.AssertNotCalled(t, "FetchProfile", mock.Anything, mock.Anything)
}

func TestResolve_CreatesFromGitHub(t *testing.T) {
	svc, gh, db := newTestUserService(t)
	p := profile("octocat")
	gh.On("FetchProfile", mock.Anything, "octocat").Return(p, nil).Once()

	u, err := svc.Resolve(context.Background(), "octocat")
	require.NoError(t, err)

	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "Name of octocat", u.Name)
	assert.True(t, u.CreatedAt.Equal(p.CreatedAt), "created_at comes from GitHub")
	assert.True(t, u.UpdatedAt.Equal(p.UpdatedAt), "updated_at comes from GitHub")

	stored, err := db.GetByUsername(context.Background(), "octocat")
	require.NoError(t, err)
	assert.Equal(t, u.ID, stored.ID)

	// Second call is served from storage.
	_, err = svc.Resolve(context.Background(), "octocat")
	require.NoError(t, err)
	gh.AssertExpectations(t)
}

func TestResolve_UnknownEverywhereCreatesNoRow(t *testing.T) {
	svc, gh, db := newTestUserService(t)
	gh.On("FetchProfile", mock.Anything, "ghost").
		Return(nil, fmt.Errorf("github: profile: %w", github.ErrNotFound))

	_, err := svc.Resolve(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrNotFound), "err = %v", err)

	_, err = db.GetByUsername(context.Background(), "ghost")
	assert.True(t, errors.Is(err, apperror.ErrNotFound), "row was created")
}

func TestResolve_TransportErrorIsUpstream(t *testing.T) {
	svc, gh, _ := newTestUserService(t)
	cause := &github.TransportError{Op: github.EndpointProfile, StatusCode: 502, Err: errors.New("bad gateway")}
	gh.On("FetchProfile", mock.Anything, "octocat").Return(nil, cause)

	_, err := svc.Resolve(context.Background(), "octocat")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrUpstream))

	var te *github.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 502, te.StatusCode)
}

func TestResolve_ProfileWithoutLoginIsUpstream(t *testing.T) {
	svc, gh, db := newTestUserService(t)
	ctx := context.Background()
	gh.On("FetchProfile", mock.Anything, "weird").Return(&model.Profile{}, nil)

	u, err := svc.Resolve(ctx, "weird")
	require.Error(t, err)
	assert.Nil(t, u)
	assert.True(t, errors.Is(err, apperror.ErrUpstream), "err = %v", err)
	assert.True(t, errors.Is(err, github.ErrMissingLogin), "err = %v", err)

	for _, name := range []string{"", "weird"} {
		_, err := db.GetByUsername(ctx, name)
		assert.True(t, errors.Is(err, apperror.ErrNotFound), "row stored for %q", name)
	}
}

func TestResolve_ResurrectsSoftDeletedUser(t *testing.T) {
	svc, gh, db := newTestUserService(t)
	ctx := context.Background()
	stored := seedUser(t, db, "phoenix")

	_, err := svc.Update(ctx, "phoenix", model.UserPatch{Bio: strPtr("local edit")})
	require.NoError(t, err)
	_, err = svc.SoftDelete(ctx, "phoenix")
	require.NoError(t, err)

	fresh := profile("phoenix")
	fresh.Bio = "current bio"
	fresh.Location = "Lisbon"
	fresh.Followers = 777
	gh.On("FetchProfile", mock.Anything, "phoenix").Return(fresh, nil).Once()

	u, err := svc.Resolve(ctx, "phoenix")
	require.NoError(t, err)

	assert.Equal(t, stored.ID, u.ID, "resurrection keeps the row")
	assert.Nil(t, u.DeletedAt)
	assert.Equal(t, "current bio", u.Bio)
	assert.Equal(t, "Lisbon", u.Location)
	assert.Equal(t, 777, u.Followers)
	assert.True(t, u.UpdatedAt.Equal(fixedNow))

	reloaded, err := db.GetByUsername(ctx, "phoenix")
	require.NoError(t, err)
	assert.Nil(t, reloaded.DeletedAt)
	assert.Equal(t, "current bio", reloaded.Bio)
}

func TestResolve_SoftDeletedUserGoneFromGitHub(t *testing.T) {
	svc, gh, db := newTestUserService(t)
	ctx := context.Background()
	seedUser(t, db, "vanished")
	_, err := svc.SoftDelete(ctx, "vanished")
	require.NoError(t, err)

	gh.On("FetchProfile", mock.Anything, "vanished").Return(nil, github.ErrNotFound)

	_, err = svc.Resolve(ctx, "vanished")
	assert.True(t, errors.Is(err, apperror.ErrNotFound))

	stored, err := db.GetByUsername(ctx, "vanished")
	require.NoError(t, err)
	assert.NotNil(t, stored.DeletedAt, "row must stay deleted")
}

func TestResolve_CanonicalLoginAlreadyStored(t *testing.T) {
	svc, gh, db := newTestUserService(t)
	stored := seedUser(t, db, "octocat")
	gh.On("FetchProfile", mock.Anything, "OctoCat").Return(profile("octocat"), nil).Once()

	u, err := svc.Resolve(context.Background(), "OctoCat")
	require.NoError(t, err)
	assert.Equal(t, stored.ID, u.ID)

	all, err := db.List(context.Background(), repository.ListOptions{SortField: "username", Order: "ASC"})
	require.NoError(t, err)
	assert.Len(t, all, 1, "no duplicate row for a different spelling")
}

func TestResolve_EmptyUsername(t *testing.T) {
	svc, _, _ := newTestUserService(t)

	_, err := svc.Resolve(context.Background(), "   ")
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

// =========================================================================
// LIST / SEARCH TESTS
// =========================================================================

func TestList_NormalisesAndSorts(t *testing.T) {
	svc, _, db := newTestUserService(t)
	ctx := context.Background()
	for login, followers := range map[string]int{"few": 1, "many": 500, "some": 40} {
		u := model.NewUserFromProfile(*profile(login))
		u.Followers = followers
		require.NoError(t, db.Create(ctx, u))
	}

	users, err := svc.List(ctx, " FOLLOWERS ", "desc")
	require.NoError(t, err)

	var got []string
	for _, u := range users {
		got = append(got, u.Username)
	}
	assert.Equal(t, []string{"many", "some", "few"}, got)
}

func TestList_Defaults(t *testing.T) {
	svc, _, db := newTestUserService(t)
	seedUser(t, db, "b")
	seedUser(t, db, "a")

	users, err := svc.List(context.Background(), "", "")
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "a", users[0].Username)
}

func TestList_InvalidChoices(t *testing.T) {
	svc, _, _ := newTestUserService(t)

	tests := []struct {
		name      string
		sortBy    string
		order     string
		wantField string
	}{
		{"unknown sort field", "password", "ASC", "sort_by"},
		{"unknown order", "username", "sideways", "order"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.List(context.Background(), tt.sortBy, tt.order)
			require.True(t, errors.Is(err, apperror.ErrValidation), "err = %v", err)

			var appErr *apperror.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, tt.wantField, appErr.Field)
			assert.NotEmpty(t, appErr.Allowed)
		})
	}
}

func TestSearch_BlankQuery(t *testing.T) {
	svc, _, _ := newTestUserService(t)

	_, err := svc.Search(context.Background(), "  ")
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

func TestSearch_Matches(t *testing.T) {
	svc, _, db := newTestUserService(t)
	seedUser(t, db, "gopher")
	seedUser(t, db, "rustacean")

	users, err := svc.Search(context.Background(), "GOPH")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "gopher", users[0].Username)
}

// =========================================================================
// UPDATE / DELETE TESTS
// =========================================================================

func TestUpdate(t *testing.T) {
	svc, _, db := newTestUserService(t)
	seedUser(t, db, "editor")

	u, err := svc.Update(context.Background(), "editor", model.UserPatch{
		Location: strPtr("Tokyo"),
		Blog:     strPtr("https://blog.example.com"),
	})
	require.NoError(t, err)

	assert.Equal(t, "Tokyo", u.Location)
	assert.Equal(t, "https://blog.example.com", u.Blog)
	assert.Equal(t, "bio of editor", u.Bio, "bio was not supplied")
	assert.True(t, u.UpdatedAt.Equal(fixedNow))
}

func TestUpdate_EmptyPatch(t *testing.T) {
	svc, _, db := newTestUserService(t)
	seedUser(t, db, "editor")

	_, err := svc.Update(context.Background(), "editor", model.UserPatch{})
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

func TestUpdate_DeletedUser(t *testing.T) {
	svc, _, db := newTestUserService(t)
	ctx := context.Background()
	seedUser(t, db, "gone")
	_, err := svc.SoftDelete(ctx, "gone")
	require.NoError(t, err)

	_, err = svc.Update(ctx, "gone", model.UserPatch{Bio: strPtr("x")})
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestSoftDelete(t *testing.T) {
	svc, _, db := newTestUserService(t)
	ctx := context.Background()
	seedUser(t, db, "leaver")

	u, err := svc.SoftDelete(ctx, "leaver")
	require.NoError(t, err)
	require.NotNil(t, u.DeletedAt)
	assert.True(t, u.DeletedAt.Equal(fixedNow))

	users, err := svc.List(ctx, "", "")
	require.NoError(t, err)
	assert.Empty(t, users, "deleted users are not listed")

	_, err = svc.SoftDelete(ctx, "leaver")
	assert.True(t, errors.Is(err, apperror.ErrNotFound), "second delete: %v", err)
}

func TestSoftDelete_Missing(t *testing.T) {
	svc, _, _ := newTestUserService(t)

	_, err := svc.SoftDelete(context.Background(), "nobody")
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

// =========================================================================
// REPOSITORIES TESTS
// =========================================================================

func TestRepositories(t *testing.T) {
	svc, gh, db := newTestUserService(t)
	repos := []model.Repository{
		{Name: "hello", Stars: 3, Verification: model.VerificationUnverified},
	}
	gh.On("FetchRepositories", mock.Anything, "octocat").Return(repos, nil)

	got, err := svc.Repositories(context.Background(), "octocat")
	require.NoError(t, err)
	assert.Equal(t, repos, got)

	_, err = db.GetByUsername(context.Background(), "octocat")
	assert.True(t, errors.Is(err, apperror.ErrNotFound), "repositories must not store the user")
}

func TestRepositories_Errors(t *testing.T) {
	tests := []struct {
		name   string
		ghErr  error
		target error
	}{
		{"not found", github.ErrNotFound, apperror.ErrNotFound},
		{"transport", &github.TransportError{Op: github.EndpointRepos, Err: errors.New("timeout")}, apperror.ErrUpstream},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, gh, _ := newTestUserService(t)
			gh.On("FetchRepositories", mock.Anything, "octocat").Return(nil, tt.ghErr)

			_, err := svc.Repositories(context.Background(), "octocat")
			assert.True(t, errors.Is(err, tt.target), "err = %v", err)
		})
	}
}
