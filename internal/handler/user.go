package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/github-explorer/internal/model"
	"github.com/sakif/github-explorer/internal/service"
)

// maxPatchBody caps PATCH request bodies. Three short strings fit easily.
const maxPatchBody = 64 << 10

// FriendsFailedHeader carries the number of mutual friends that could not be
// stored during a friends request. The body is still 200 with the rest.
const FriendsFailedHeader = "X-Friends-Failed"

// UserHandler serves everything under /api/users.
type UserHandler struct {
	users   *service.UserService
	friends *service.FriendService
	logger  *slog.Logger
}

func NewUserHandler(users *service.UserService, friends *service.FriendService, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, friends: friends, logger: logger}
}

// Routes mounts the user endpoints on r. Static segments ("search") are
// matched before the {username} parameter by chi's radix tree, so a user
// literally named "search" is unreachable through GET; that mirrors GitHub's
// own reserved names.
func (h *UserHandler) Routes(r chi.Router) {
	r.Get("/", h.HandleList)
	r.Get("/search", h.HandleSearch)
	r.Route("/{username}", func(r chi.Router) {
		r.Get("/", h.HandleGet)
		r.Patch("/", h.HandleUpdate)
		r.Delete("/", h.HandleDelete)
		r.Get("/friends", h.HandleFriends)
		r.Get("/repos", h.HandleRepos)
	})
}

// HandleList returns active users.
//
// HTTP: GET /api/users?sort_by=followers&order=desc
func (h *UserHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	users, err := h.users.List(r.Context(), q.Get("sort_by"), q.Get("order"))
	if err != nil {
		h.fail(w, r, err, "failed to list users")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, users)
}

// HandleSearch does a substring search over stored users.
//
// HTTP: GET /api/users/search?query=berlin
func (h *UserHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.Search(r.Context(), r.URL.Query().Get("query"))
	if err != nil {
		h.fail(w, r, err, "failed to search users")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, users)
}

// HandleGet returns the stored user, fetching it from GitHub on first sight.
//
// HTTP: GET /api/users/{username}
func (h *UserHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.Resolve(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		h.fail(w, r, err, "failed to fetch user")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, u)
}

// HandleFriends refreshes and returns the user's mutual friends.
//
// HTTP: GET /api/users/{username}/friends
//
// Friends that could not be stored are left out of the body and counted in
// the X-Friends-Failed header.
func (h *UserHandler) HandleFriends(w http.ResponseWriter, r *http.Request) {
	report, err := h.friends.Resolve(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		h.fail(w, r, err, "failed to fetch friends")
		return
	}

	w.Header().Set(FriendsFailedHeader, strconv.Itoa(len(report.Failed())))
	writeJSON(w, h.logger, http.StatusOK, report.Friends)
}

// HandleRepos lists the user's repositories straight from GitHub.
//
// HTTP: GET /api/users/{username}/repos
func (h *UserHandler) HandleRepos(w http.ResponseWriter, r *http.Request) {
	repos, err := h.users.Repositories(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		h.fail(w, r, err, "failed to fetch repositories")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, repos)
}

// HandleUpdate edits location, blog and/or bio.
//
// HTTP: PATCH /api/users/{username}
// REQUEST BODY: {"location": "Berlin", "bio": ""}
//
// Absent keys are left unchanged; "" clears a field. Other keys are ignored.
func (h *UserHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var patch model.UserPatch
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPatchBody)).Decode(&patch); err != nil {
		writeJSON(w, h.logger, http.StatusBadRequest, ErrorResponse{
			Error:   "invalid JSON body",
			Details: err.Error(),
		})
		return
	}

	u, err := h.users.Update(r.Context(), chi.URLParam(r, "username"), patch)
	if err != nil {
		h.fail(w, r, err, "failed to update user")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, u)
}

// DeleteResponse is the body of a successful DELETE.
type DeleteResponse struct {
	Message string      `json:"message"`
	User    *model.User `json:"user"`
}

// HandleDelete soft-deletes the user. A later GET brings it back.
//
// HTTP: DELETE /api/users/{username}
func (h *UserHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.SoftDelete(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		h.fail(w, r, err, "failed to delete user")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, DeleteResponse{
		Message: "User successfully deleted",
		User:    u,
	})
}

// fail logs server-side failures and writes the error envelope.
func (h *UserHandler) fail(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	if statusFor(err) >= http.StatusInternalServerError {
		h.logger.Error(fallback,
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	writeError(w, h.logger, err, fallback)
}
