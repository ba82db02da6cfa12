package model

import "time"

// Profile is the portion of the GitHub GET /users/{username} response that
// is mirrored into a User row. GitHub returns a much larger object; we only
// unmarshal the fields we keep.
//
// GitHub API docs: https://docs.github.com/en/rest/users/users#get-a-user
type Profile struct {
	Login           string    `json:"login"`
	AvatarURL       string    `json:"avatar_url"`
	Name            string    `json:"name"`
	Company         string    `json:"company"`
	Blog            string    `json:"blog"`
	Location        string    `json:"location"`
	Email           string    `json:"email"`
	Bio             string    `json:"bio"`
	TwitterUsername string    `json:"twitter_username"`
	PublicRepos     int       `json:"public_repos"`
	PublicGists     int       `json:"public_gists"`
	Followers       int       `json:"followers"`
	Following       int       `json:"following"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Verification says whether a repository has been checked by anything.
// Nothing checks repositories today, so every summary is Unverified.
type Verification string

const (
	VerificationUnverified Verification = "unverified"
)

// Repository is the summary shown for each of a user's repositories.
// It is a pass-through value and never persisted.
type Repository struct {
	Name         string       `json:"name"`
	Description  string       `json:"description"`
	Language     string       `json:"language"`
	Stars        int          `json:"stars"`
	Verification Verification `json:"verification"`
}
