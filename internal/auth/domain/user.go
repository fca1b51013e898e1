package domain

// User is the identity returned by the credential collaborator.
type User struct {
	ID           string   `json:"id" yaml:"id"`
	Email        string   `json:"email" yaml:"email"`
	PasswordHash string   `json:"password" yaml:"passwordHash"` // argon2id PHC string
	Roles        []string `json:"roles" yaml:"roles"`
	Enabled      bool     `json:"enabled" yaml:"enabled"`
}
