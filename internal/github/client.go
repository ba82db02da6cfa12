// Package github is a small read-only client for the four GitHub REST
// endpoints the explorer needs.
//
// ERROR CONTRACT:
// Every method fails with one of exactly two shapes:
//   - ErrNotFound (wrapped; test with errors.Is) when GitHub answers 404
//   - *TransportError (test with errors.As) for everything else: network
//     failures, timeouts, any other HTTP status, bodies that don't decode
//
// Callers never need to look at status codes or error strings.
//
// AUTHENTICATION:
// Unauthenticated calls are limited to 60 requests/hour per IP. WithToken
// switches to an oauth2 client that adds "Authorization: Bearer <token>" to
// every request, raising that to 5000/hour.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/sakif/github-explorer/internal/model"
	"github.com/sakif/github-explorer/internal/monitoring"
)

const (
	DefaultBaseURL   = "https://api.github.com"
	DefaultUserAgent = "github-explorer"
	DefaultTimeout   = 30 * time.Second

	acceptHeader = "application/vnd.github.v3+json"
)

// Endpoint names, used as the Op of a TransportError and as the
// "endpoint" metric label.
const (
	EndpointProfile   = "profile"
	EndpointRepos     = "repos"
	EndpointFollowers = "followers"
	EndpointFollowing = "following"
)

// ErrNotFound means GitHub answered 404 for the requested user.
var ErrNotFound = errors.New("github: not found")

// ErrMissingLogin means a profile came back without a login, so there is
// nothing to key it on. It always arrives wrapped in a TransportError.
var ErrMissingLogin = errors.New("profile has no login")

// TransportError is any failure other than a 404.
type TransportError struct {
	Op         string // one of the Endpoint* constants
	StatusCode int    // 0 when no response was received
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("github: %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("github: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Client calls the GitHub REST API. It is safe for concurrent use.
type Client struct {
	baseURL   string
	userAgent string
	token     string
	timeout   time.Duration
	metrics   *monitoring.Metrics
	http      *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another API root, such as a
// githubtest.Server or a GitHub Enterprise instance.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithToken authenticates every request with a personal access token.
// An empty token leaves the client unauthenticated.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithTimeout bounds each request end to end. Zero disables the timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

func WithMetrics(m *monitoring.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func New(opts ...Option) *Client {
	c := &Client{
		baseURL:   DefaultBaseURL,
		userAgent: DefaultUserAgent,
		timeout:   DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.token != "" {
		// oauth2.NewClient returns a fresh *http.Client whose transport
		// injects the bearer token. The context is only used to look up a
		// custom base client, so Background is fine here.
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: c.token})
		c.http = oauth2.NewClient(context.Background(), src)
	} else {
		c.http = &http.Client{}
	}
	c.http.Timeout = c.timeout

	return c
}

// FetchProfile returns the public profile of username.
//
// GitHub API docs: https://docs.github.com/en/rest/users/users#get-a-user
func (c *Client) FetchProfile(ctx context.Context, username string) (*model.Profile, error) {
	var p model.Profile
	if err := c.get(ctx, EndpointProfile, userPath(username), &p); err != nil {
		return nil, err
	}
	if err := CheckProfile(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// CheckProfile rejects a profile that cannot be stored: nil, or without a
// login.
func CheckProfile(p *model.Profile) error {
	if p == nil || strings.TrimSpace(p.Login) == "" {
		return &TransportError{Op: EndpointProfile, StatusCode: http.StatusOK, Err: ErrMissingLogin}
	}
	return nil
}

// repoResponse is the subset of a GitHub repository object we read.
// description and language are null for many repositories; null decodes
// into "" for a string field.
type repoResponse struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Language    string `json:"language"`
	Stars       int    `json:"stargazers_count"`
}

// FetchRepositories returns the first page of username's public repositories.
//
// GitHub API docs: https://docs.github.com/en/rest/repos/repos#list-repositories-for-a-user
func (c *Client) FetchRepositories(ctx context.Context, username string) ([]model.Repository, error) {
	var raw []repoResponse
	if err := c.get(ctx, EndpointRepos, userPath(username)+"/repos", &raw); err != nil {
		return nil, err
	}

	repos := make([]model.Repository, 0, len(raw))
	for _, r := range raw {
		repos = append(repos, model.Repository{
			Name:         r.Name,
			Description:  r.Description,
			Language:     r.Language,
			Stars:        r.Stars,
			Verification: model.VerificationUnverified,
		})
	}
	return repos, nil
}

// FetchFollowers returns the logins following username (first page only).
func (c *Client) FetchFollowers(ctx context.Context, username string) ([]string, error) {
	return c.fetchLogins(ctx, EndpointFollowers, userPath(username)+"/followers")
}

// FetchFollowing returns the logins username follows (first page only).
func (c *Client) FetchFollowing(ctx context.Context, username string) ([]string, error) {
	return c.fetchLogins(ctx, EndpointFollowing, userPath(username)+"/following")
}

func (c *Client) fetchLogins(ctx context.Context, endpoint, path string) ([]string, error) {
	var raw []struct {
		Login string `json:"login"`
	}
	if err := c.get(ctx, endpoint, path, &raw); err != nil {
		return nil, err
	}

	logins := make([]string, 0, len(raw))
	for _, u := range raw {
		logins = append(logins, u.Login)
	}
	return logins, nil
}

// userPath escapes username so "a/b" or "../x" cannot address another route.
func userPath(username string) string {
	return "/users/" + url.PathEscape(username)
}

// get performs one GET and decodes a 200 JSON body into out.
func (c *Client) get(ctx context.Context, endpoint, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		c.metrics.RecordGitHubRequest(endpoint, monitoring.OutcomeError)
		return &TransportError{Op: endpoint, Err: err}
	}
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.RecordGitHubRequest(endpoint, monitoring.OutcomeError)
		return &TransportError{Op: endpoint, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		c.metrics.RecordGitHubRequest(endpoint, monitoring.OutcomeNotFound)
		return fmt.Errorf("github: %s %s: %w", endpoint, path, ErrNotFound)

	case resp.StatusCode != http.StatusOK:
		c.metrics.RecordGitHubRequest(endpoint, monitoring.OutcomeError)
		// GitHub error bodies are {"message": "..."}; keep a bounded prefix
		// of whatever came back for the log line.
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &TransportError{
			Op:         endpoint,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected response: %s", strings.TrimSpace(string(body))),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.metrics.RecordGitHubRequest(endpoint, monitoring.OutcomeError)
		return &TransportError{
			Op:         endpoint,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("decoding response: %w", err),
		}
	}

	c.metrics.RecordGitHubRequest(endpoint, monitoring.OutcomeOK)
	return nil
}
