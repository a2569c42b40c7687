package handlers

import (
	"ecoquest/internal/models"
	"ecoquest/internal/service"
)

// ViewKind tags which role-specific surface a signed-in request gets
type ViewKind string

const (
	ViewStudent      ViewKind = "student"
	ViewOrganization ViewKind = "organization"
)

// ViewModel is the signed-in caller, resolved once per request by RequireAuth
type ViewModel struct {
	Kind      ViewKind
	User      *models.User
	Profile   *models.Profile
	SessionID string
}

func newViewModel(user *models.User, profile *models.Profile, sessionID string) *ViewModel {
	kind := ViewStudent
	if profile.IsOrganization() {
		kind = ViewOrganization
	}
	return &ViewModel{Kind: kind, User: user, Profile: profile, SessionID: sessionID}
}

// IsOrganization reports whether the caller is an organization account
func (vm *ViewModel) IsOrganization() bool {
	return vm.Kind == ViewOrganization
}

// MeResponse is the signed-in user with profile, level state and CSRF token
type MeResponse struct {
	User      *models.User         `json:"user"`
	Profile   *service.ProfileView `json:"profile"`
	Kind      ViewKind             `json:"kind"`
	CSRFToken string               `json:"csrf_token"`
}

// CSRFResponse carries the token mutating calls send in the X-CSRF-Token header
type CSRFResponse struct {
	CSRFToken string `json:"csrf_token"`
}

// OAuthProviderView is a configured sign-in provider
type OAuthProviderView struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	URL   string `json:"url"`
}

// LoginRequest is the body of POST /api/auth/login
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// PasswordResetRequest is the body of POST /api/auth/password-reset
type PasswordResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// PasswordResetConfirmRequest is the body of POST /api/auth/password-reset/confirm
type PasswordResetConfirmRequest struct {
	Token           string `json:"token" validate:"required"`
	Password        string `json:"password" validate:"required,min=8"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`
}

// VideoProgressRequest reports the playback position of a lesson video in seconds
type VideoProgressRequest struct {
	Position float64 `json:"position" validate:"gte=0"`
	Duration float64 `json:"duration" validate:"gt=0"`
}

// QuizRequest carries the chosen option index per question, in question order
type QuizRequest struct {
	Answers []int `json:"answers"`
}

// ApproveRequest optionally overrides the points of an approval
type ApproveRequest struct {
	Points *int `json:"points"`
}

// RejectRequest carries the reason shown to the student
type RejectRequest struct {
	Reason string `json:"reason"`
}

// RankResponse is the caller's student rank
type RankResponse struct {
	Scope models.ScopeFilter `json:"scope"`
	Rank  int                `json:"rank"`
}

// VideoURLResponse is a playable link for a submission video
type VideoURLResponse struct {
	URL string `json:"url"`
}

// MessageResponse is a plain acknowledgement
type MessageResponse struct {
	Message string `json:"message"`
}
