package handlers

import (
	"net/http"

	"ecoquest/internal/models"
	"ecoquest/internal/security"
	"ecoquest/internal/service"
	"ecoquest/internal/validation"
)

// AuthHandler handles sign-up, sign-in and password reset
type AuthHandler struct {
	authService          *service.AuthService
	profileService       *service.ProfileService
	csrf                 *security.CSRFGenerator
	oauthProviders       map[string]OAuthProvider
	oauthRedirectBaseURL string
	appBaseURL           string
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(
	authService *service.AuthService,
	profileService *service.ProfileService,
	csrf *security.CSRFGenerator,
	oauthProviders map[string]OAuthProvider,
	oauthRedirectBaseURL string,
	appBaseURL string,
) *AuthHandler {
	return &AuthHandler{
		authService:          authService,
		profileService:       profileService,
		csrf:                 csrf,
		oauthProviders:       oauthProviders,
		oauthRedirectBaseURL: oauthRedirectBaseURL,
		appBaseURL:           appBaseURL,
	}
}

func (h *AuthHandler) meResponse(user *models.User, profile *models.Profile, sessionID string) (*MeResponse, error) {
	token, err := h.csrf.GenerateToken(sessionID)
	if err != nil {
		return nil, err
	}
	return &MeResponse{
		User:      user,
		Profile:   h.profileService.View(profile),
		Kind:      newViewModel(user, profile, sessionID).Kind,
		CSRFToken: token,
	}, nil
}

func (h *AuthHandler) startSession(w http.ResponseWriter, r *http.Request, status int, user *models.User, session *models.Session) {
	profile, err := h.profileService.GetProfile(r.Context(), user.ID)
	if err != nil {
		respondWithServiceError(w, "Error loading profile", err)
		return
	}
	resp, err := h.meResponse(user, profile, session.ID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, ErrInternalServerError, "Error generating CSRF token", err)
		return
	}

	http.SetCookie(w, security.CreateSessionCookie(r, security.SessionCookieName, session.ID, session.ExpiresAt))
	writeJSON(w, status, resp)
}

// SignUp creates a student or organization account and signs it in
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req service.SignUpRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrInvalidJSON, "", nil)
		return
	}

	user, _, err := h.authService.SignUp(r.Context(), req)
	if err != nil {
		respondWithServiceError(w, "Error signing up", err)
		return
	}

	session, err := h.authService.StartSession(r.Context(), user.ID)
	if err != nil {
		respondWithServiceError(w, "Error starting session", err)
		return
	}
	h.startSession(w, r, http.StatusCreated, user, session)
}

// Login handles email and password sign-in
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrInvalidJSON, "", nil)
		return
	}
	if err := validation.Struct(req); err != nil {
		respondWithServiceError(w, "", err)
		return
	}

	session, user, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respondWithServiceError(w, "Error logging in", err)
		return
	}
	h.startSession(w, r, http.StatusOK, user, session)
}

// Logout deletes the session and clears the cookie
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if vm := GetViewModel(r.Context()); vm != nil {
		if err := h.authService.Logout(r.Context(), vm.SessionID); err != nil {
			respondWithServiceError(w, "Error logging out", err)
			return
		}
	}

	http.SetCookie(w, security.CreateDeleteCookie(r, security.SessionCookieName))
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Signed out"})
}

// Me returns the signed-in user
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	vm := GetViewModel(r.Context())
	resp, err := h.meResponse(vm.User, vm.Profile, vm.SessionID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, ErrInternalServerError, "Error generating CSRF token", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// CSRFToken returns the CSRF token of the current session
func (h *AuthHandler) CSRFToken(w http.ResponseWriter, r *http.Request) {
	vm := GetViewModel(r.Context())
	token, err := h.csrf.GenerateToken(vm.SessionID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, ErrInternalServerError, "Error generating CSRF token", err)
		return
	}
	writeJSON(w, http.StatusOK, CSRFResponse{CSRFToken: token})
}

// RequestPasswordReset emails a reset link. The response is the same whether or not the
// address has an account.
func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrInvalidJSON, "", nil)
		return
	}
	if err := validation.Struct(req); err != nil {
		respondWithServiceError(w, "", err)
		return
	}

	if err := h.authService.RequestPasswordReset(r.Context(), req.Email); err != nil {
		respondWithServiceError(w, "Error requesting password reset", err)
		return
	}
	writeJSON(w, http.StatusAccepted, MessageResponse{Message: "If an account exists for that email, a reset link has been sent"})
}

// ConfirmPasswordReset sets a new password with a reset token
func (h *AuthHandler) ConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetConfirmRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrInvalidJSON, "", nil)
		return
	}
	if err := validation.Struct(req); err != nil {
		respondWithServiceError(w, "", err)
		return
	}

	if err := h.authService.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		respondWithServiceError(w, "Error resetting password", err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Password updated, please sign in"})
}
