package service

import (
	"errors"
	"log"
)

var (
	ErrNotFound                = errors.New("not found")
	ErrForbidden               = errors.New("you are not allowed to do that")
	ErrInvalidTransition       = errors.New("that action is not allowed in the current state")
	ErrRejectionReasonRequired = errors.New("a reason is required to reject a submission")
	ErrQuizNotAvailable        = errors.New("finish the video before taking the quiz")
	ErrUnsupportedScope        = errors.New("leaderboard scope is not available for this profile")

	ErrEmailTaken         = errors.New("email already taken")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionExpired     = errors.New("session expired")
	ErrInvalidResetToken  = errors.New("invalid or expired reset token")
	ErrResetTokenUsed     = errors.New("this reset link has already been used")
	ErrResetTokenExpired  = errors.New("this reset link has expired")
	ErrOAuthInfoMissing   = errors.New("missing oauth provider information")
)

// logError reports a failure of a best-effort side effect
func logError(action string, err error) {
	log.Printf("Failed to %s: %v", action, err)
}
