package authsdk

// RefreshCookieName is the cookie carrying the refresh token.
const RefreshCookieName = "refresh_token"

// LoginRequest is the body of POST /v1/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse is the body returned by login and refresh.
type TokenResponse struct {
	AccessToken string `json:"accessToken"`
	UserID      string `json:"userId"`
}

// TokenPair is a TokenResponse plus the refresh token read from its cookie.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	UserID       string
}

// ValidationResult is the body returned by /v1/auth/validate.
type ValidationResult struct {
	UserID string   `json:"userId"`
	Roles  []string `json:"roles"`
}

// HealthResponse is returned by /livez and /readyz.
type HealthResponse struct {
	Status  string            `json:"status"`
	Uptime  string            `json:"uptime,omitempty"`
	Version string            `json:"version,omitempty"`
	Checks  map[string]string `json:"checks,omitempty"`
}
