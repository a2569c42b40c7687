package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"ecoquest/internal/credentials"
	"ecoquest/internal/database"
	"ecoquest/internal/models"
	"ecoquest/internal/repository"
	"ecoquest/internal/security"
	"ecoquest/internal/validation"
)

// PasswordResetTTL is how long a reset link stays valid
const PasswordResetTTL = time.Hour

// SignUpRequest carries the three sign-up steps: credentials, identity and region
type SignUpRequest struct {
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=8"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`

	DisplayName      string      `json:"display_name" validate:"required,min=2,max=100"`
	Role             models.Role `json:"role" validate:"required,oneof=student organization"`
	OrganizationName string      `json:"organization_name" validate:"max=150"`
	OrganizationCode string      `json:"organization_code" validate:"max=16"`

	Gender         string `json:"gender" validate:"max=32"`
	RegionCountry  string `json:"region_country" validate:"max=100"`
	RegionState    string `json:"region_state" validate:"max=100"`
	RegionDistrict string `json:"region_district" validate:"max=100"`
}

func (r *SignUpRequest) normalize() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.DisplayName = strings.TrimSpace(r.DisplayName)
	r.Role = models.Role(strings.ToLower(strings.TrimSpace(string(r.Role))))
	r.OrganizationName = strings.TrimSpace(r.OrganizationName)
	r.OrganizationCode = strings.TrimSpace(r.OrganizationCode)
	r.Gender = strings.TrimSpace(r.Gender)
	r.RegionCountry = strings.TrimSpace(r.RegionCountry)
	r.RegionState = strings.TrimSpace(r.RegionState)
	r.RegionDistrict = strings.TrimSpace(r.RegionDistrict)
	if r.RegionCountry == "" {
		r.RegionCountry = models.DefaultCountry
	}
}

// AuthService handles authentication business logic
type AuthService struct {
	db              *database.DB
	users           *repository.UserRepository
	profiles        *repository.ProfileRepository
	activity        *repository.ActivityRepository
	profileSvc      *ProfileService
	emails          *EmailService
	sessionDuration time.Duration
}

// NewAuthService creates a new auth service
func NewAuthService(
	db *database.DB,
	users *repository.UserRepository,
	profiles *repository.ProfileRepository,
	activity *repository.ActivityRepository,
	profileSvc *ProfileService,
	emails *EmailService,
	sessionDuration time.Duration,
) *AuthService {
	return &AuthService{
		db:              db,
		users:           users,
		profiles:        profiles,
		activity:        activity,
		profileSvc:      profileSvc,
		emails:          emails,
		sessionDuration: sessionDuration,
	}
}

func (s *AuthService) validateSignUp(ctx context.Context, req *SignUpRequest) error {
	if err := validation.Struct(req); err != nil {
		return err
	}
	if req.Role == models.RoleOrganization && req.OrganizationName == "" {
		return validation.ValidationError{Field: "organization_name", Message: "organization_name is required"}
	}
	if err := s.profileSvc.ScreenName(ctx, "display_name", req.DisplayName); err != nil {
		return err
	}
	if req.Role == models.RoleOrganization {
		if err := s.profileSvc.ScreenName(ctx, "organization_name", req.OrganizationName); err != nil {
			return err
		}
	}
	return nil
}

// SignUp creates a user and its profile in one transaction. Organizations get a fresh code;
// students that give a code matching an organization are linked to it.
func (s *AuthService) SignUp(ctx context.Context, req SignUpRequest) (*models.User, *models.Profile, error) {
	req.normalize()
	if err := s.validateSignUp(ctx, &req); err != nil {
		return nil, nil, err
	}

	existing, err := s.users.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if existing != nil {
		return nil, nil, ErrEmailTaken
	}

	passwordHash, err := security.HashPassword(req.Password)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to hash password: %w", err)
	}

	var user *models.User
	profile := &models.Profile{
		Role:        req.Role,
		DisplayName: req.DisplayName,
		Gender:      req.Gender,
		Region: models.Region{
			Country:  req.RegionCountry,
			State:    req.RegionState,
			District: req.RegionDistrict,
		},
	}

	err = s.db.WithTx(ctx, func(tx *database.Tx) error {
		users := s.users.WithTx(tx)
		profiles := s.profiles.WithTx(tx)

		user, err = users.CreateUser(ctx, req.Email, passwordHash)
		if err != nil {
			return err
		}
		profile.UserID = user.ID

		if req.Role == models.RoleOrganization {
			return s.createOrganization(ctx, profiles, profile, req.OrganizationName)
		}
		return s.createStudent(ctx, tx, profiles, profile, req.OrganizationCode)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to sign up: %w", err)
	}

	if s.emails != nil {
		if err := s.emails.SendWelcomeEmail(ctx, user.Email, profile.DisplayName, profile.Role); err != nil {
			logError("send welcome email", err)
		}
	}
	log.Printf("New %s account created: user %d", profile.Role, user.ID)
	return user, profile, nil
}

func (s *AuthService) createOrganization(ctx context.Context, profiles *repository.ProfileRepository, profile *models.Profile, name string) error {
	code, err := credentials.IssueOrganizationCode(ctx, profiles.OrganizationCodeExists)
	if err != nil {
		return err
	}
	profile.OrganizationName = name
	profile.OrganizationCode = code

	if err := profiles.CreateProfile(ctx, profile); err != nil {
		return err
	}
	return profiles.CreateOrganizationCode(ctx, code, profile.UserID)
}

func (s *AuthService) createStudent(ctx context.Context, tx *database.Tx, profiles *repository.ProfileRepository, profile *models.Profile, code string) error {
	var org *models.Profile
	if code != "" {
		var err error
		org, err = profiles.GetOrganizationByCode(ctx, code)
		if err != nil {
			return err
		}
	}
	if org != nil {
		profile.OrganizationName = org.OrganizationName
		profile.OrganizationCode = org.OrganizationCode
	}

	if err := profiles.CreateProfile(ctx, profile); err != nil {
		return err
	}
	if org == nil {
		return nil
	}

	if err := profiles.CreateMembership(ctx, profile.UserID, org.OrganizationCode); err != nil {
		return err
	}
	return s.activity.WithTx(tx).LogActivity(ctx, &models.ActivityLog{
		UserID:           profile.UserID,
		OrganizationCode: org.OrganizationCode,
		Type:             models.ActivityStudentJoined,
		Message:          fmt.Sprintf("%s joined %s", displayNameOf(profile), org.OrganizationName),
	})
}

// StartSession creates a new session for userID
func (s *AuthService) StartSession(ctx context.Context, userID int64) (*models.Session, error) {
	sessionID := security.GenerateSessionID()
	expiresAt := time.Now().Add(s.sessionDuration)

	session, err := s.users.CreateSession(ctx, sessionID, userID, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// Login authenticates a user and creates a session
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.Session, *models.User, error) {
	user, err := s.users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, nil, ErrInvalidCredentials
	}

	if !security.CheckPassword(password, user.PasswordHash) {
		return nil, nil, ErrInvalidCredentials
	}

	if _, err := s.EnsureProfile(ctx, user, ""); err != nil {
		return nil, nil, err
	}

	session, err := s.StartSession(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return session, user, nil
}

// ValidateSession checks if a session is valid and returns the associated user
func (s *AuthService) ValidateSession(ctx context.Context, sessionID string) (*models.User, error) {
	session, err := s.users.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	if session.IsExpired() {
		_ = s.users.DeleteSession(ctx, sessionID)
		return nil, ErrSessionExpired
	}

	user, err := s.users.GetUserByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, ErrSessionNotFound
	}
	return user, nil
}

// Logout invalidates a session
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if err := s.users.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to logout: %w", err)
	}
	return nil
}

// CleanupExpired removes expired sessions and password reset tokens
func (s *AuthService) CleanupExpired(ctx context.Context) error {
	sessions, err := s.users.DeleteExpiredSessions(ctx)
	if err != nil {
		return fmt.Errorf("failed to cleanup sessions: %w", err)
	}
	tokens, err := s.users.DeleteExpiredPasswordResetTokens(ctx)
	if err != nil {
		return fmt.Errorf("failed to cleanup reset tokens: %w", err)
	}
	if sessions > 0 || tokens > 0 {
		log.Printf("Removed %d expired sessions and %d expired reset tokens", sessions, tokens)
	}
	return nil
}

// EnsureProfile returns the user's profile, creating a student profile when none exists
func (s *AuthService) EnsureProfile(ctx context.Context, user *models.User, name string) (*models.Profile, error) {
	profile, err := s.profiles.GetProfile(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if profile != nil {
		return profile, nil
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = strings.Split(user.Email, "@")[0]
	}
	profile = &models.Profile{
		UserID:      user.ID,
		Role:        models.RoleStudent,
		DisplayName: name,
		Region:      models.Region{Country: models.DefaultCountry},
	}
	if err := s.profiles.CreateProfile(ctx, profile); err != nil {
		existing, getErr := s.profiles.GetProfile(ctx, user.ID)
		if getErr == nil && existing != nil {
			return existing, nil
		}
		return nil, err
	}
	return profile, nil
}

// OAuthLogin authenticates or creates a user using an OAuth provider
func (s *AuthService) OAuthLogin(ctx context.Context, provider, subject, email, name string) (*models.Session, *models.User, error) {
	if provider == "" || subject == "" {
		return nil, nil, ErrOAuthInfoMissing
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if err := validation.ValidateEmail(email); err != nil {
		return nil, nil, err
	}

	user, err := s.users.GetUserByOAuth(ctx, provider, subject)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to lookup oauth user: %w", err)
	}

	if user == nil {
		existingUser, err := s.users.GetUserByEmail(ctx, email)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to check existing user: %w", err)
		}
		if existingUser != nil {
			if existingUser.OAuthProvider != "" && existingUser.OAuthProvider != provider {
				return nil, nil, ErrEmailTaken
			}
			if err := s.users.LinkOAuthProvider(ctx, existingUser.ID, provider, subject); err != nil {
				return nil, nil, fmt.Errorf("failed to link oauth provider: %w", err)
			}
			user = existingUser
		} else {
			randomPasswordHash, err := security.HashPassword(security.GenerateSessionID())
			if err != nil {
				return nil, nil, fmt.Errorf("failed to generate oauth password hash: %w", err)
			}
			newUser, err := s.users.CreateUser(ctx, email, randomPasswordHash)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to create oauth user: %w", err)
			}
			if err := s.users.LinkOAuthProvider(ctx, newUser.ID, provider, subject); err != nil {
				return nil, nil, fmt.Errorf("failed to link oauth provider: %w", err)
			}
			newUser.OAuthProvider = provider
			user = newUser
		}
	}

	if _, err := s.EnsureProfile(ctx, user, name); err != nil {
		return nil, nil, err
	}

	session, err := s.StartSession(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return session, user, nil
}

// RequestPasswordReset creates a password reset token and emails it. Unknown addresses
// succeed silently.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil
	}

	token, err := security.GenerateSecureToken(32)
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}

	_ = s.users.DeleteUserPasswordResetTokens(ctx, user.ID)

	if err := s.users.CreatePasswordResetToken(ctx, token, user.ID, time.Now().Add(PasswordResetTTL)); err != nil {
		return fmt.Errorf("failed to create reset token: %w", err)
	}

	if s.emails != nil {
		name := ""
		if profile, err := s.profiles.GetProfile(ctx, user.ID); err == nil && profile != nil {
			name = profile.DisplayName
		}
		if err := s.emails.SendPasswordResetEmail(ctx, user.Email, name, token); err != nil {
			return fmt.Errorf("failed to send reset email: %w", err)
		}
	}
	return nil
}

// ValidatePasswordResetToken checks if a reset token is valid
func (s *AuthService) ValidatePasswordResetToken(ctx context.Context, token string) (bool, error) {
	resetToken, err := s.users.GetPasswordResetToken(ctx, token)
	if err != nil {
		return false, fmt.Errorf("failed to get reset token: %w", err)
	}
	if resetToken == nil || resetToken.Used || resetToken.IsExpired() {
		return false, nil
	}
	return true, nil
}

// ResetPassword sets a new password using a valid token and signs the user out everywhere
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	resetToken, err := s.users.GetPasswordResetToken(ctx, token)
	if err != nil {
		return fmt.Errorf("failed to get reset token: %w", err)
	}
	if resetToken == nil {
		return ErrInvalidResetToken
	}
	if resetToken.Used {
		return ErrResetTokenUsed
	}
	if resetToken.IsExpired() {
		return ErrResetTokenExpired
	}

	if err := validation.ValidatePassword(newPassword); err != nil {
		return err
	}

	passwordHash, err := security.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	err = s.db.WithTx(ctx, func(tx *database.Tx) error {
		users := s.users.WithTx(tx)
		if err := users.UpdatePassword(ctx, resetToken.UserID, passwordHash); err != nil {
			return err
		}
		if err := users.MarkPasswordResetTokenAsUsed(ctx, token); err != nil {
			return err
		}
		return users.DeleteUserSessions(ctx, resetToken.UserID)
	})
	if err != nil {
		return fmt.Errorf("failed to reset password: %w", err)
	}
	return nil
}

// IsAuthError reports whether err means the caller is not signed in
func IsAuthError(err error) bool {
	return errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrSessionExpired)
}
