package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/sakif/github-explorer/internal/apperror"
	"github.com/sakif/github-explorer/internal/model"
	"github.com/sakif/github-explorer/internal/monitoring"
	"github.com/sakif/github-explorer/internal/repository"
)

// FriendOutcome is the result of processing one mutual friend.
type FriendOutcome struct {
	Username string
	FriendID string // empty when Err happened before the upsert
	Err      error
}

// FriendsReport is everything the friends workflow learned in one run.
type FriendsReport struct {
	Subject  string
	Mutual   []string
	Outcomes []FriendOutcome
	// Friends is the subject's stored friend list after this run: every
	// active user reachable through an edge, sorted by username. It can hold
	// friends from earlier runs that are no longer mutual.
	Friends []model.User
}

func (r *FriendsReport) Succeeded() []FriendOutcome {
	return r.filter(func(o FriendOutcome) bool { return o.Err == nil })
}

func (r *FriendsReport) Failed() []FriendOutcome {
	return r.filter(func(o FriendOutcome) bool { return o.Err != nil })
}

func (r *FriendsReport) filter(keep func(FriendOutcome) bool) []FriendOutcome {
	out := make([]FriendOutcome, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		if keep(o) {
			out = append(out, o)
		}
	}
	return out
}

// FriendService derives and stores "mutual friends": users who both follow
// and are followed by the subject.
type FriendService struct {
	users   repository.UserRepository
	friends repository.FriendRepository
	gh      GitHubClient
	metrics *monitoring.Metrics
	logger  *slog.Logger
}

// NewFriendService wires the workflow. metrics may be nil.
func NewFriendService(
	users repository.UserRepository,
	friends repository.FriendRepository,
	gh GitHubClient,
	metrics *monitoring.Metrics,
	logger *slog.Logger,
) *FriendService {
	return &FriendService{
		users:   users,
		friends: friends,
		gh:      gh,
		metrics: metrics,
		logger:  logger,
	}
}

// Resolve refreshes username's mutual friends from GitHub and returns the
// stored friend list.
//
// FAILURE ISOLATION:
// Only four things fail the whole call: the subject not existing anywhere,
// the follower/following fetch, the subject id lookup and the final query.
// Anything that goes wrong while storing ONE friend is recorded in that
// friend's FriendOutcome, logged, and the loop moves on.
//
// NOT TRANSACTIONAL:
// A crash halfway through leaves some friends stored and some not. That is
// fine: upserts and edge inserts are idempotent, so the next call completes
// the set.
func (s *FriendService) Resolve(ctx context.Context, username string) (*FriendsReport, error) {
	username, err := requireUsername(username)
	if err != nil {
		return nil, err
	}

	subject, err := s.ensureSubject(ctx, username)
	if err != nil {
		return nil, err
	}

	followers, following, err := s.fetchEdges(ctx, subject)
	if err != nil {
		return nil, err
	}
	mutual := MutualLogins(followers, following)

	subjectRow, err := s.users.GetByUsername(ctx, subject)
	if err != nil {
		return nil, fmt.Errorf("resolving friends of %s: %w", subject, err)
	}

	report := &FriendsReport{
		Subject:  subject,
		Mutual:   mutual,
		Outcomes: make([]FriendOutcome, 0, len(mutual)),
	}

	// One friend at a time: at most one in-flight GitHub call per request.
	for _, login := range mutual {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("resolving friends of %s: %w", subject, err)
		}

		outcome := s.storeFriend(ctx, subjectRow.ID, login)
		report.Outcomes = append(report.Outcomes, outcome)

		if outcome.Err != nil {
			s.metrics.RecordFriendResolved(monitoring.OutcomeFailed)
			s.logger.Warn("skipping friend",
				slog.String("subject", subject),
				slog.String("friend", login),
				slog.String("error", outcome.Err.Error()),
			)
			continue
		}
		s.metrics.RecordFriendResolved(monitoring.OutcomeSucceeded)
	}

	report.Friends, err = s.friends.ListFriends(ctx, subjectRow.ID)
	if err != nil {
		return nil, fmt.Errorf("resolving friends of %s: %w", subject, err)
	}

	s.logger.Info("friends resolved",
		slog.String("subject", subject),
		slog.Int("mutual", len(mutual)),
		slog.Int("failed", len(report.Failed())),
		slog.Int("friends", len(report.Friends)),
	)
	return report, nil
}

// ensureSubject checks that username exists, locally as an active row or on
// GitHub, and returns its canonical login. A subject known only to GitHub is
// stored with the friend upsert so it has a row id to hang edges off.
//
// Any failure here, not just a 404, reads as "user not found" to the
// client; the real cause is logged.
func (s *FriendService) ensureSubject(ctx context.Context, username string) (string, error) {
	if login, ok, err := s.activeSubject(ctx, username); err != nil || ok {
		return login, err
	}

	p, err := fetchProfile(ctx, s.gh, username)
	if err != nil {
		s.logger.Info("friends subject not found",
			slog.String("subject", username),
			slog.String("error", err.Error()),
		)
		return "", apperror.UserNotFound(username)
	}

	// GitHub answers with the canonical spelling, which may be stored and
	// active under it. Such a row is used as-is.
	if p.Login != username {
		if login, ok, err := s.activeSubject(ctx, p.Login); err != nil || ok {
			return login, err
		}
	}

	if _, err := s.users.UpsertFriend(ctx, *p); err != nil {
		return "", fmt.Errorf("storing friends subject %s: %w", username, err)
	}
	return p.Login, nil
}

// activeSubject reports whether username is stored and active.
func (s *FriendService) activeSubject(ctx context.Context, username string) (string, bool, error) {
	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("resolving friends of %s: %w", username, err)
	}
	if !u.IsActive() {
		return "", false, nil
	}
	return u.Username, true, nil
}

// fetchEdges fetches both relationship lists concurrently. If either fails
// the shared context cancels the other.
func (s *FriendService) fetchEdges(ctx context.Context, username string) (followers, following []string, err error) {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		if followers, err = s.gh.FetchFollowers(gctx, username); err != nil {
			return githubError("followers", username, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if following, err = s.gh.FetchFollowing(gctx, username); err != nil {
			return githubError("following", username, err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return followers, following, nil
}

// storeFriend fetches one friend's profile, upserts it and records the edge.
func (s *FriendService) storeFriend(ctx context.Context, subjectID, login string) FriendOutcome {
	out := FriendOutcome{Username: login}

	p, err := fetchProfile(ctx, s.gh, login)
	if err != nil {
		out.Err = fmt.Errorf("fetching profile: %w", err)
		return out
	}

	id, err := s.users.UpsertFriend(ctx, *p)
	if err != nil {
		out.Err = fmt.Errorf("storing profile: %w", err)
		return out
	}
	out.FriendID = id

	if err := s.friends.AddFriend(ctx, subjectID, id); err != nil {
		out.Err = fmt.Errorf("storing edge: %w", err)
	}
	return out
}

// MutualLogins returns the logins present in both lists, each once, in the
// order they first appear in followers.
func MutualLogins(followers, following []string) []string {
	followed := make(map[string]struct{}, len(following))
	for _, l := range following {
		followed[l] = struct{}{}
	}

	mutual := make([]string, 0)
	seen := make(map[string]struct{}, len(followers))
	for _, l := range followers {
		if _, ok := followed[l]; !ok {
			continue
		}
		if _, dup := seen[l]; dup {
			continue
		}
		seen[l] = struct{}{}
		mutual = append(mutual, l)
	}
	return mutual
}
