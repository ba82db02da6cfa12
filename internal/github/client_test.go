package github_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/github-explorer/internal/github"
	"github.com/sakif/github-explorer/internal/github/githubtest"
	"github.com/sakif/github-explorer/internal/model"
)

func TestFetchProfile(t *testing.T) {
	fake := githubtest.NewServer(t)
	created := time.Date(2011, 1, 25, 18, 44, 36, 0, time.UTC)
	fake.AddUser(model.Profile{
		Login:       "octocat",
		AvatarURL:   "https://avatars.example.com/octocat",
		Name:        "The Octocat",
		Location:    "San Francisco",
		PublicRepos: 8,
		Followers:   100,
		CreatedAt:   created,
	})

	p, err := fake.Client().FetchProfile(context.Background(), "octocat")
	require.NoError(t, err)

	assert.Equal(t, "octocat", p.Login)
	assert.Equal(t, "The Octocat", p.Name)
	assert.Equal(t, "San Francisco", p.Location)
	assert.Equal(t, 8, p.PublicRepos)
	assert.Equal(t, 100, p.Followers)
	assert.True(t, p.CreatedAt.Equal(created), "CreatedAt = %v", p.CreatedAt)
	// null on the wire becomes ""
	assert.Equal(t, "", p.Company)
	assert.Equal(t, "", p.Bio)
}

func TestFetchProfile_NotFound(t *testing.T) {
	fake := githubtest.NewServer(t)

	_, err := fake.Client().FetchProfile(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, errors.Is(err, github.ErrNotFound), "err = %v", err)

	var te *github.TransportError
	assert.False(t, errors.As(err, &te), "404 must not be a TransportError")
}

func TestFetchProfile_ServerError(t *testing.T) {
	fake := githubtest.NewServer(t)
	fake.AddUsers("flaky")
	fake.Fail("flaky")

	_, err := fake.Client().FetchProfile(context.Background(), "flaky")
	require.Error(t, err)
	assert.False(t, errors.Is(err, github.ErrNotFound))

	var te *github.TransportError
	require.True(t, errors.As(err, &te), "err = %v", err)
	assert.Equal(t, github.EndpointProfile, te.Op)
	assert.Equal(t, http.StatusInternalServerError, te.StatusCode)
}

func TestFetchProfile_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := github.New(github.WithBaseURL(url)).FetchProfile(context.Background(), "octocat")

	var te *github.TransportError
	require.True(t, errors.As(err, &te), "err = %v", err)
	assert.Equal(t, 0, te.StatusCode)
}

func TestFetchProfile_BadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"login": `))
	}))
	defer srv.Close()

	_, err := github.New(github.WithBaseURL(srv.URL)).FetchProfile(context.Background(), "octocat")

	var te *github.TransportError
	require.True(t, errors.As(err, &te), "err = %v", err)
	assert.Equal(t, http.StatusOK, te.StatusCode)
}

func TestFetchProfile_MissingLogin(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"absent", `{"id": 1, "name": "No Login"}`},
		{"null", `{"login": null}`},
		{"blank", `{"login": "  "}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p, err := github.New(github.WithBaseURL(srv.URL)).FetchProfile(context.Background(), "weird")
			assert.Nil(t, p)

			var te *github.TransportError
			require.True(t, errors.As(err, &te), "err = %v", err)
			assert.Equal(t, github.EndpointProfile, te.Op)
			assert.True(t, errors.Is(err, github.ErrMissingLogin))
			assert.False(t, errors.Is(err, github.ErrNotFound))
		})
	}
}

func TestCheckProfile(t *testing.T) {
	assert.Error(t, github.CheckProfile(nil))
	assert.Error(t, github.CheckProfile(&model.Profile{}))
	assert.NoError(t, github.CheckProfile(&model.Profile{Login: "octocat"}))
}

func TestRequestHeaders(t *testing.T) {
	var got http.Header
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		path = r.URL.EscapedPath()
		w.Write([]byte(`{"login":"x"}`))
	}))
	defer srv.Close()

	c := github.New(
		github.WithBaseURL(srv.URL),
		github.WithUserAgent("explorer-test"),
		github.WithToken("s3cret"),
	)
	_, err := c.FetchProfile(context.Background(), "a/b")
	require.NoError(t, err)

	assert.Equal(t, "application/vnd.github.v3+json", got.Get("Accept"))
	assert.Equal(t, "explorer-test", got.Get("User-Agent"))
	assert.Equal(t, "Bearer s3cret", got.Get("Authorization"))
	assert.Equal(t, "/users/a%2Fb", path)
}

func TestNoTokenNoAuthorization(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.Write([]byte(`{"login":"x"}`))
	}))
	defer srv.Close()

	_, err := github.New(github.WithBaseURL(srv.URL)).FetchProfile(context.Background(), "x")
	require.NoError(t, err)
	assert.Empty(t, auth)
}

func TestTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := github.New(github.WithBaseURL(srv.URL), github.WithTimeout(50*time.Millisecond))
	_, err := c.FetchProfile(context.Background(), "slow")

	var te *github.TransportError
	require.True(t, errors.As(err, &te), "err = %v", err)
}

func TestFetchRepositories(t *testing.T) {
	fake := githubtest.NewServer(t)
	fake.AddUsers("octocat")
	fake.SetRepos("octocat",
		githubtest.Repo{Name: "hello-world", Description: "My first repo", Language: "Go", Stars: 42},
		githubtest.Repo{Name: "empty"},
	)

	repos, err := fake.Client().FetchRepositories(context.Background(), "octocat")
	require.NoError(t, err)
	require.Len(t, repos, 2)

	assert.Equal(t, model.Repository{
		Name:         "hello-world",
		Description:  "My first repo",
		Language:     "Go",
		Stars:        42,
		Verification: model.VerificationUnverified,
	}, repos[0])
	assert.Equal(t, "", repos[1].Description)
	assert.Equal(t, "", repos[1].Language)
	assert.Equal(t, model.VerificationUnverified, repos[1].Verification)
}

func TestFetchRepositories_NotFound(t *testing.T) {
	fake := githubtest.NewServer(t)

	_, err := fake.Client().FetchRepositories(context.Background(), "ghost")
	assert.True(t, errors.Is(err, github.ErrNotFound), "err = %v", err)
}

func TestFetchFollowersAndFollowing(t *testing.T) {
	fake := githubtest.NewServer(t)
	fake.AddUsers("alice")
	fake.SetFollowers("alice", "bob", "carol")
	fake.SetFollowing("alice", "carol", "dave")

	ctx := context.Background()
	c := fake.Client()

	followers, err := c.FetchFollowers(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob", "carol"}, followers)

	following, err := c.FetchFollowing(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"carol", "dave"}, following)
}

func TestFetchFollowers_Empty(t *testing.T) {
	fake := githubtest.NewServer(t)
	fake.AddUsers("loner")

	followers, err := fake.Client().FetchFollowers(context.Background(), "loner")
	require.NoError(t, err)
	assert.NotNil(t, followers)
	assert.Empty(t, followers)
}
