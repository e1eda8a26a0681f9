package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/leadership-program/nomination-api/internal/models"
	appErrors "github.com/leadership-program/nomination-api/pkg/errors"
)

// secretAlphabet omits characters that are easy to confuse when read from an email (0/O, 1/l/I).
const secretAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnpqrstuvwxyz23456789"

// CredentialConfig configures secret generation, hashing and session tokens.
type CredentialConfig struct {
	TokenSecret    string
	Issuer         string
	PasswordLength int
	// HashCost defaults to bcrypt.DefaultCost.
	HashCost int
}

// CredentialService generates, hashes and verifies account secrets and signs session tokens.
type CredentialService struct {
	config CredentialConfig
	now    func() time.Time
}

// NewCredentialService constructs a CredentialService.
func NewCredentialService(config CredentialConfig) *CredentialService {
	if config.PasswordLength < 8 {
		config.PasswordLength = 12
	}
	if config.HashCost == 0 {
		config.HashCost = bcrypt.DefaultCost
	}
	return &CredentialService{config: config, now: func() time.Time { return time.Now().UTC() }}
}

// GenerateSecret returns a random human-typable password.
func (s *CredentialService) GenerateSecret() (string, error) {
	max := big.NewInt(int64(len(secretAlphabet)))
	out := make([]byte, s.config.PasswordLength)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate secret: %w", err)
		}
		out[i] = secretAlphabet[n.Int64()]
	}
	return string(out), nil
}

// Hash returns the bcrypt hash of secret.
func (s *CredentialService) Hash(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.config.HashCost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(hash), nil
}

// Verify reports whether secret matches hash.
func (s *CredentialService) Verify(hash, secret string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// IssueSessionToken signs claims for subject valid for ttl.
func (s *CredentialService) IssueSessionToken(subject string, claims models.JWTClaims, ttl time.Duration) (string, time.Time, error) {
	issuedAt := s.now()
	expiresAt := issuedAt.Add(ttl)
	claims.UserID = subject
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    s.config.Issuer,
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		NotBefore: jwt.NewNumericDate(issuedAt),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims)
	signed, err := token.SignedString([]byte(s.config.TokenSecret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}
	return signed, expiresAt, nil
}

// VerifySessionToken parses and validates a session token returning the claims.
func (s *CredentialService) VerifySessionToken(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.TokenSecret), nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	return claims, nil
}

// Principal is an account that can sign in: an admin user, a participant or a member.
type Principal struct {
	ID           string
	Email        string
	FullName     string
	PasswordHash string
	Role         models.UserRole
	Active       bool
	NominationID string
}

// Authenticate checks password against the principal and issues a session token valid for ttl.
// A nil principal is treated as an unknown email.
func (s *CredentialService) Authenticate(principal *Principal, password string, ttl time.Duration) (*models.LoginResponse, error) {
	if principal == nil || !s.Verify(principal.PasswordHash, password) {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
	}
	if !principal.Active {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "account is inactive")
	}
	token, _, err := s.IssueSessionToken(principal.ID, models.JWTClaims{
		Role:         principal.Role,
		Email:        principal.Email,
		FullName:     principal.FullName,
		NominationID: principal.NominationID,
	}, ttl)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}
	return &models.LoginResponse{
		AccessToken: token,
		ExpiresIn:   int64(ttl.Seconds()),
		IssuedAt:    s.now(),
		User: models.UserInfo{
			ID:       principal.ID,
			Email:    principal.Email,
			FullName: principal.FullName,
			Role:     principal.Role,
		},
	}, nil
}
