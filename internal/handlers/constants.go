package handlers

const (
	ErrInvalidJSON           = "Invalid JSON body"
	ErrInvalidFormData       = "Invalid form data"
	ErrInvalidID             = "Invalid id"
	ErrUnauthorized          = "Unauthorized"
	ErrInvalidCSRFToken      = "Invalid CSRF token"
	ErrTooManyRequests       = "Too many requests, please try again later"
	ErrInternalServerError   = "Internal server error"
	ErrRequestTimedOut       = "Request timed out"
	ErrRequestSuperseded     = "Request was replaced by a newer one"
	ErrOAuthNotConfigured    = "OAuth provider not configured"
	ErrVideoUploadTooLarge   = "Video upload is too large"
	ErrMediaNotAvailable     = "Media not available"
	ErrServiceStarting       = "Service is starting"
	maxJSONBodyBytes         = 1 << 20
	multipartMemoryBytes     = 8 << 20
	defaultActivityFeedLimit = 20
)
