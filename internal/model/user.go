// Package model defines the data structures used throughout the application.
package model

import (
	"errors"
	"time"
)

// UserState is the lifecycle state of a cached profile.
//
// A user row is never physically removed. It moves between exactly two
// states, and every move goes through one of the transition methods below
// (SoftDelete, Resurrect) so the fields each transition rewrites are listed
// in one place.
type UserState int

const (
	StateActive UserState = iota
	StateDeleted
)

func (s UserState) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

var (
	ErrAlreadyDeleted = errors.New("model: user is already deleted")
	ErrNotDeleted     = errors.New("model: user is not deleted")
)

// User is a GitHub profile cached in the users table.
//
// WHY string FOR NULLABLE GITHUB FIELDS?
// GitHub reports unset name/company/blog/etc. as null. We store those as empty
// strings rather than pointers: simpler to scan and safe to display.
// DeletedAt is the exception. It IS the lifecycle state, so nil matters.
type User struct {
	ID              string     `json:"id"`
	Username        string     `json:"username"`
	AvatarURL       string     `json:"avatar_url"`
	Name            string     `json:"name"`
	Company         string     `json:"company"`
	Blog            string     `json:"blog"`
	Location        string     `json:"location"`
	Email           string     `json:"email"`
	Bio             string     `json:"bio"`
	TwitterUsername string     `json:"twitter_username"`
	PublicRepos     int        `json:"public_repos"`
	PublicGists     int        `json:"public_gists"`
	Followers       int        `json:"followers"`
	Following       int        `json:"following"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	DeletedAt       *time.Time `json:"deleted_at"`
}

// NewUserFromProfile builds the row inserted the first time a username is
// seen. Timestamps are GitHub's own, not wall-clock time.
func NewUserFromProfile(p Profile) *User {
	u := &User{
		Username:  p.Login,
		CreatedAt: p.CreatedAt.UTC(),
		UpdatedAt: p.UpdatedAt.UTC(),
	}
	u.mirror(p)
	return u
}

func (u *User) State() UserState {
	if u.DeletedAt != nil {
		return StateDeleted
	}
	return StateActive
}

func (u *User) IsActive() bool {
	return u.State() == StateActive
}

// SoftDelete moves an active user to the deleted state.
func (u *User) SoftDelete(now time.Time) error {
	if u.State() == StateDeleted {
		return ErrAlreadyDeleted
	}
	at := now.UTC()
	u.DeletedAt = &at
	return nil
}

// Resurrect moves a deleted user back to active using a freshly fetched
// profile. Every mirrored field is overwritten so no stale cached value
// survives the round trip.
func (u *User) Resurrect(p Profile, now time.Time) error {
	if u.State() != StateDeleted {
		return ErrNotDeleted
	}
	u.mirror(p)
	u.DeletedAt = nil
	u.UpdatedAt = now.UTC()
	return nil
}

// mirror copies every GitHub-owned field from p. Username is immutable and
// the timestamps are owned by the caller's transition.
func (u *User) mirror(p Profile) {
	u.AvatarURL = p.AvatarURL
	u.Name = p.Name
	u.Company = p.Company
	u.Blog = p.Blog
	u.Location = p.Location
	u.Email = p.Email
	u.Bio = p.Bio
	u.TwitterUsername = p.TwitterUsername
	u.PublicRepos = p.PublicRepos
	u.PublicGists = p.PublicGists
	u.Followers = p.Followers
	u.Following = p.Following
}

// UserPatch carries the locally editable fields. A nil pointer means
// "leave unchanged"; a pointer to "" clears the field.
type UserPatch struct {
	Location *string `json:"location"`
	Blog     *string `json:"blog"`
	Bio      *string `json:"bio"`
}

func (p UserPatch) IsEmpty() bool {
	return p.Location == nil && p.Blog == nil && p.Bio == nil
}
