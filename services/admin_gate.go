package services

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt only looks at the first 72 bytes of its input.
const maxSecretBytes = 72

// AdminGate holds the admin secret as a bcrypt hash and checks candidate
// tokens against it. It is immutable once built.
type AdminGate struct {
	hash []byte
}

func NewAdminGate(secret string, cost int) (*AdminGate, error) {
	if secret == "" {
		return nil, fmt.Errorf("admin secret is empty")
	}
	if len(secret) > maxSecretBytes {
		return nil, fmt.Errorf("admin secret is longer than %d bytes", maxSecretBytes)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash admin secret: %w", err)
	}
	return &AdminGate{hash: hash}, nil
}

// Allows reports whether token is the admin secret. Tokens bcrypt can not
// hash (longer than 72 bytes) never match.
func (g *AdminGate) Allows(token string) bool {
	if token == "" || len(token) > maxSecretBytes {
		return false
	}
	return bcrypt.CompareHashAndPassword(g.hash, []byte(token)) == nil
}
