package users

import (
	"fmt"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// Provider identifies how an account authenticates.
const (
	ProviderLocal  = "local"
	ProviderGoogle = "google"
	ProviderGitHub = "github"
)

type User struct {
	ID           string    `json:"id,omitempty"`         // Unique identifier for the user
	Email        string    `json:"email,omitempty"`      // User's email address (unique)
	Username     string    `json:"username,omitempty"`   // Unique username
	PasswordHash string    `json:"-"`                    // Hashed password - empty for federated-only accounts, never serialized
	FullName     string    `json:"full_name,omitempty"`  // Display name
	AvatarURL    string    `json:"avatar_url,omitempty"` // Avatar reference
	Provider     string    `json:"provider,omitempty"`   // local, google, github
	ProviderID   string    `json:"provider_id,omitempty"`
	Active       bool      `json:"active"`
	Verified     bool      `json:"verified"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
	LastLogin    time.Time `json:"last_login,omitempty"`
}

// Patch lists the fields a user record allows to be mutated after creation.
// Email, username, provider and provider ID are fixed at creation time.
type Patch struct {
	FullName  *string
	AvatarURL *string
	Active    *bool
	Verified  *bool
	LastLogin *time.Time
}

// Apply merges a patch into the user, returning true if anything changed.
func (u *User) Apply(p Patch) bool {
	changed := false
	if p.FullName != nil && *p.FullName != u.FullName {
		u.FullName = *p.FullName
		changed = true
	}
	if p.AvatarURL != nil && *p.AvatarURL != u.AvatarURL {
		u.AvatarURL = *p.AvatarURL
		changed = true
	}
	if p.Active != nil && *p.Active != u.Active {
		u.Active = *p.Active
		changed = true
	}
	if p.Verified != nil && *p.Verified != u.Verified {
		u.Verified = *p.Verified
		changed = true
	}
	if p.LastLogin != nil && !p.LastLogin.Equal(u.LastLogin) {
		u.LastLogin = *p.LastLogin
		changed = true
	}
	return changed
}

// ValidatePasswordStrength checks if password meets security requirements:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)

	for _, char := range password {
		if unicode.IsUpper(char) {
			hasUpper = true
		} else if unicode.IsLower(char) {
			hasLower = true
		} else if unicode.IsDigit(char) {
			hasNumber = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}

	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPasswordHash returns true iff password matches hash. A malformed or
// empty hash simply fails the check.
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
