package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aussiebroadwan/trustline/internal/auth/domain"
	"gopkg.in/yaml.v3"
)

// StaticStore serves users from memory, typically seeded from a YAML file:
//
//	users:
//	  - id: "42"
//	    email: alice@example.com
//	    passwordHash: $argon2id$v=19$...
//	    roles: [ROLE_USER]
//	    enabled: true
type StaticStore struct {
	byEmail map[string]domain.User
}

type staticFile struct {
	Users []domain.User `yaml:"users"`
}

// NewStaticStore indexes users by lower-cased email.
func NewStaticStore(users []domain.User) (*StaticStore, error) {
	s := &StaticStore{byEmail: make(map[string]domain.User, len(users))}
	for i, u := range users {
		if u.ID == "" || u.Email == "" {
			return nil, fmt.Errorf("user %d: id and email are required", i)
		}
		key := strings.ToLower(u.Email)
		if _, dup := s.byEmail[key]; dup {
			return nil, fmt.Errorf("user %d: duplicate email %q", i, u.Email)
		}
		s.byEmail[key] = u
	}
	return s, nil
}

// LoadStaticFile reads a YAML user seed.
func LoadStaticFile(path string) (*StaticStore, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read users file: %w", err)
	}
	return ParseStatic(raw)
}

// ParseStatic parses a YAML user seed.
func ParseStatic(raw []byte) (*StaticStore, error) {
	var f staticFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse users file: %w", err)
	}
	if len(f.Users) == 0 {
		return nil, errors.New("users file defines no users")
	}
	return NewStaticStore(f.Users)
}

func (s *StaticStore) FindByEmail(_ context.Context, email string) (domain.User, error) {
	u, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return domain.User{}, ErrUserNotFound
	}
	if !u.Enabled {
		return u, ErrUserDisabled
	}
	return u, nil
}
