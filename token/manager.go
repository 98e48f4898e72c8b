package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Type discriminates access tokens from refresh tokens. The claim is checked
// on every verification; a refresh token is never accepted where an access
// token is required, and vice versa.
type Type string

const (
	TypeAccess  Type = "access"
	TypeRefresh Type = "refresh"
)

var (
	ErrTokenExpired      = errors.New("token expired")
	ErrTokenMalformed    = errors.New("token malformed or signature invalid")
	ErrTokenTypeMismatch = errors.New("token type mismatch")
)

// Claims is the decoded payload of a verified token.
type Claims struct {
	Subject   string // user ID
	Email     string // populated on access tokens only
	Type      Type
	ID        string // jti
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Manager issues and verifies the signed, time-bounded bearer tokens the auth
// flows hand out.
type Manager struct {
	signer        Signer
	accessExpiry  time.Duration
	refreshExpiry time.Duration
	nowFunc       func() time.Time
}

type ManagerOption func(*Manager)

func WithTokenExpiry(accessExpiry, refreshExpiry time.Duration) ManagerOption {
	return func(m *Manager) {
		m.accessExpiry = accessExpiry
		m.refreshExpiry = refreshExpiry
	}
}

func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

func New(signer Signer, options ...ManagerOption) *Manager {
	m := &Manager{
		signer: signer,
	}

	for _, opt := range options {
		opt(m)
	}

	if m.accessExpiry == 0 {
		m.accessExpiry = 30 * time.Minute
	}
	if m.refreshExpiry == 0 {
		m.refreshExpiry = 7 * 24 * time.Hour
	}
	if m.nowFunc == nil {
		m.nowFunc = time.Now
	}
	return m
}

func (m *Manager) AccessExpiry() time.Duration  { return m.accessExpiry }
func (m *Manager) RefreshExpiry() time.Duration { return m.refreshExpiry }

// IssueAccess creates a signed access token carrying the subject identity and
// an email snapshot.
func (m *Manager) IssueAccess(subjectID, email string) (string, error) {
	now := m.nowFunc()
	claims := jwt.MapClaims{
		"sub":   subjectID,
		"email": email,
		"type":  string(TypeAccess),
		"iat":   now.Unix(),
		"exp":   now.Add(m.accessExpiry).Unix(),
		"jti":   uuid.New().String(),
	}

	signed, err := m.signer.Sign(claims)
	if err != nil {
		return "", errors.Wrap(err, "[Manager.IssueAccess] Sign")
	}
	return signed, nil
}

// IssueRefresh creates a signed refresh token. The returned expiry is what the
// ledger records alongside the token string.
func (m *Manager) IssueRefresh(subjectID string) (string, time.Time, error) {
	now := m.nowFunc()
	expiresAt := now.Add(m.refreshExpiry)
	claims := jwt.MapClaims{
		"sub":  subjectID,
		"type": string(TypeRefresh),
		"iat":  now.Unix(),
		"exp":  expiresAt.Unix(),
		"jti":  uuid.New().String(),
	}

	signed, err := m.signer.Sign(claims)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "[Manager.IssueRefresh] Sign")
	}
	return signed, expiresAt, nil
}

// Verify parses and validates a signed token. Expiry is checked against the
// manager's clock rather than the library's so tests and skew policy stay in
// one place.
func (m *Manager) Verify(rawToken string, expectedType Type) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{m.signer.GetSigningMethod().Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	parsed, err := parser.Parse(rawToken, m.signer.GetVerificationKey)
	if err != nil || !parsed.Valid {
		return nil, ErrTokenMalformed
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrTokenMalformed
	}

	sub, _ := mapClaims["sub"].(string)
	email, _ := mapClaims["email"].(string)
	typ, _ := mapClaims["type"].(string)
	jti, _ := mapClaims["jti"].(string)
	iat, _ := mapClaims["iat"].(float64)
	exp, _ := mapClaims["exp"].(float64)

	if sub == "" || typ == "" || exp == 0 {
		return nil, ErrTokenMalformed
	}

	claims := &Claims{
		Subject:   sub,
		Email:     email,
		Type:      Type(typ),
		ID:        jti,
		IssuedAt:  time.Unix(int64(iat), 0),
		ExpiresAt: time.Unix(int64(exp), 0),
	}

	if m.nowFunc().After(claims.ExpiresAt) {
		return nil, ErrTokenExpired
	}
	if claims.Type != expectedType {
		return nil, ErrTokenTypeMismatch
	}
	return claims, nil
}
