package users_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskify/auth-server/users"
)

func TestValidatePasswordStrength(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"valid", "Str0ngPass", false},
		{"too short", "Ab1", true},
		{"no uppercase", "weakpass1", true},
		{"no lowercase", "WEAKPASS1", true},
		{"no number", "WeakPassword", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := users.ValidatePasswordStrength(tt.password)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := users.HashPassword(testPassword)
	require.NoError(t, err)
	assert.NotEqual(t, testPassword, hash)

	assert.True(t, users.CheckPasswordHash(testPassword, hash))
	assert.False(t, users.CheckPasswordHash("wrong-password", hash))
	assert.False(t, users.CheckPasswordHash(testPassword, ""))
}

func TestUserApplyPatch(t *testing.T) {
	user := &users.User{FullName: "John Doe", Active: true}

	assert.False(t, user.Apply(users.Patch{}))

	name := "Jane Doe"
	inactive := false
	now := time.Now()
	changed := user.Apply(users.Patch{FullName: &name, Active: &inactive, LastLogin: &now})
	assert.True(t, changed)
	assert.Equal(t, "Jane Doe", user.FullName)
	assert.False(t, user.Active)
	assert.True(t, user.LastLogin.Equal(now))

	// Re-applying the same patch is a no-op.
	assert.False(t, user.Apply(users.Patch{FullName: &name, Active: &inactive, LastLogin: &now}))
}
