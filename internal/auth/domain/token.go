package domain

// TokenPair is what login and refresh hand back. The refresh token travels
// to the client in a cookie, never in the response body.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	UserID       string
}

// Validation is the identity reported by the validate endpoint.
type Validation struct {
	UserID string
	Roles  []string
}
