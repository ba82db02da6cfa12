// Package githubtest provides an in-process fake of the GitHub REST API
// endpoints used by the explorer, for tests in any package.
package githubtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/github-explorer/internal/github"
	"github.com/sakif/github-explorer/internal/model"
)

// Repo is a repository as the fake serves it. Empty Description and Language
// are sent as JSON null, the way GitHub does.
type Repo struct {
	Name        string
	Description string
	Language    string
	Stars       int
}

// Server answers /users/{login}, /users/{login}/repos, /users/{login}/followers
// and /users/{login}/following from in-memory maps. Unknown logins get 404.
type Server struct {
	srv *httptest.Server

	mu        sync.Mutex
	profiles  map[string]model.Profile
	repos     map[string][]Repo
	followers map[string][]string
	following map[string][]string
	failing   map[string]bool
	hits      map[string]int
}

// NewServer starts a fake that is shut down when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		profiles:  make(map[string]model.Profile),
		repos:     make(map[string][]Repo),
		followers: make(map[string][]string),
		following: make(map[string][]string),
		failing:   make(map[string]bool),
		hits:      make(map[string]int),
	}

	r := chi.NewRouter()
	r.Get("/users/{login}", s.handleProfile)
	r.Get("/users/{login}/repos", s.handleRepos)
	r.Get("/users/{login}/followers", s.handleLogins(s.followers))
	r.Get("/users/{login}/following", s.handleLogins(s.following))

	s.srv = httptest.NewServer(r)
	t.Cleanup(s.srv.Close)
	return s
}

// URL is the API root to pass to github.WithBaseURL.
func (s *Server) URL() string {
	return s.srv.URL
}

// Client returns a github.Client pointed at the fake.
func (s *Server) Client(opts ...github.Option) *github.Client {
	return github.New(append([]github.Option{github.WithBaseURL(s.URL())}, opts...)...)
}

// AddUser registers a profile. Zero timestamps are filled with fixed dates.
func (s *Server) AddUser(p model.Profile) {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Date(2012, 3, 4, 5, 6, 7, 0, time.UTC)
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.Login] = p
}

// AddUsers registers a minimal profile for each login.
func (s *Server) AddUsers(logins ...string) {
	for _, l := range logins {
		s.AddUser(model.Profile{Login: l, Name: l, AvatarURL: "https://avatars.example.com/" + l})
	}
}

func (s *Server) SetRepos(login string, repos ...Repo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.repos[login] = repos
}

func (s *Server) SetFollowers(login string, logins ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.followers[login] = logins
}

func (s *Server) SetFollowing(login string, logins ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.following[login] = logins
}

// Fail makes every endpoint for login answer 500.
func (s *Server) Fail(login string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing[login] = true
}

// Hits reports how many requests were made for path, e.g. "/users/alice".
func (s *Server) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// begin records the hit and reports whether the handler should continue.
func (s *Server) begin(w http.ResponseWriter, r *http.Request) (login string, ok bool) {
	login = chi.URLParam(r, "login")

	s.mu.Lock()
	s.hits[r.URL.Path]++
	failing := s.failing[login]
	s.mu.Unlock()

	if failing {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Server Error"})
		return "", false
	}
	return login, true
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	login, ok := s.begin(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	p, found := s.profiles[login]
	s.mu.Unlock()
	if !found {
		notFound(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"login":            p.Login,
		"avatar_url":       p.AvatarURL,
		"name":             nullable(p.Name),
		"company":          nullable(p.Company),
		"blog":             p.Blog,
		"location":         nullable(p.Location),
		"email":            nullable(p.Email),
		"bio":              nullable(p.Bio),
		"twitter_username": nullable(p.TwitterUsername),
		"public_repos":     p.PublicRepos,
		"public_gists":     p.PublicGists,
		"followers":        p.Followers,
		"following":        p.Following,
		"created_at":       p.CreatedAt.Format(time.RFC3339),
		"updated_at":       p.UpdatedAt.Format(time.RFC3339),
	})
}

func (s *Server) handleRepos(w http.ResponseWriter, r *http.Request) {
	login, ok := s.begin(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	_, found := s.profiles[login]
	repos := s.repos[login]
	s.mu.Unlock()
	if !found {
		notFound(w)
		return
	}

	out := make([]map[string]any, 0, len(repos))
	for _, repo := range repos {
		out = append(out, map[string]any{
			"name":             repo.Name,
			"description":      nullable(repo.Description),
			"language":         nullable(repo.Language),
			"stargazers_count": repo.Stars,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLogins(lists map[string][]string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		login, ok := s.begin(w, r)
		if !ok {
			return
		}

		s.mu.Lock()
		_, found := s.profiles[login]
		logins := append([]string(nil), lists[login]...)
		s.mu.Unlock()
		if !found {
			notFound(w)
			return
		}

		out := make([]map[string]string, 0, len(logins))
		for _, l := range logins {
			out = append(out, map[string]string{"login": l})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func notFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, map[string]string{
		"message":           "Not Found",
		"documentation_url": "https://docs.github.com/rest",
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
