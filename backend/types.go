package backend

// LoginRequest is the body of POST /auth/login/.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterRequest is the body of POST /auth/register/.
// The backend is the only authority on password rules and uniqueness; the
// client forwards confirm_password untouched.
type RegisterRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

type RefreshRequest struct {
	Refresh string `json:"refresh"`
}

// UserInfo is the optional "user" object returned next to the tokens.
type UserInfo struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// TokenResponse represents the token pair returned by login, register and refresh.
type TokenResponse struct {
	// User is present on login and register only.
	// Example: {"username": "bob", "email": "bob@example.com"}
	User *UserInfo `json:"user,omitempty"`

	// Access is the short-lived JWT used as "Authorization: Bearer <access>".
	// Payload carries user_id, username and exp (seconds since epoch).
	// Lifespan: 60 minutes on the default backend settings
	Access string `json:"access"`

	// Refresh is the long-lived token sent to /auth/token/refresh/.
	// On refresh it is only present when the backend rotates refresh tokens.
	// Lifespan: 1 day on the default backend settings
	Refresh string `json:"refresh,omitempty"`
}

type CSRFResponse struct {
	CSRFToken string `json:"csrfToken"`
}

// MessageResponse is the {message} / {error} body of the password endpoints.
type MessageResponse struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}
