package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestAdminGate_Allows(t *testing.T) {
	gate, err := NewAdminGate("s3cret-token", bcrypt.MinCost)
	require.NoError(t, err)

	assert.True(t, gate.Allows("s3cret-token"))
	assert.False(t, gate.Allows("S3CRET-TOKEN"))
	assert.False(t, gate.Allows("s3cret-token "))
	assert.False(t, gate.Allows(""))
	assert.False(t, gate.Allows(strings.Repeat("x", 100)))
}

func TestAdminGate_DoesNotKeepPlaintext(t *testing.T) {
	gate, err := NewAdminGate("s3cret-token", bcrypt.MinCost)
	require.NoError(t, err)

	assert.NotContains(t, string(gate.hash), "s3cret-token")
}

func TestNewAdminGate_Rejects(t *testing.T) {
	_, err := NewAdminGate("", bcrypt.MinCost)
	assert.Error(t, err)

	_, err = NewAdminGate(strings.Repeat("x", 73), bcrypt.MinCost)
	assert.Error(t, err)
}
