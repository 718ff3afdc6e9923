package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenExpired       = errors.New("token expired")
	ErrInvalidToken       = errors.New("invalid token")
)

// Access token scopes. A session JWT carries no scopes and is unrestricted.
const (
	ScopeRead  = "read"
	ScopeWrite = "write"
	ScopeAdmin = "admin"
)

// AccessTokenPrefix marks personal access tokens so they are recognizable in logs and configs.
const AccessTokenPrefix = "chp_"

type Claims struct {
	UserID   int64    `json:"user_id"`
	Username string   `json:"username"`
	Scopes   []string `json:"scopes,omitempty"`
	// AccessToken is true when the claims were resolved from a personal access token.
	AccessToken bool `json:"-"`
	jwt.RegisteredClaims
}

// HasScope reports whether the credential grants scope. Write implies read;
// admin implies everything.
func (c *Claims) HasScope(scope string) bool {
	if c == nil {
		return false
	}
	if !c.AccessToken {
		return true
	}
	if slices.Contains(c.Scopes, ScopeAdmin) {
		return true
	}
	if scope == ScopeRead && slices.Contains(c.Scopes, ScopeWrite) {
		return true
	}
	return slices.Contains(c.Scopes, scope)
}

func IsScope(s string) bool {
	switch s {
	case ScopeRead, ScopeWrite, ScopeAdmin:
		return true
	}
	return false
}

type Service struct {
	secret   []byte
	duration time.Duration
}

func NewService(secret string, duration time.Duration) *Service {
	return &Service{
		secret:   []byte(secret),
		duration: duration,
	}
}

func (s *Service) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (s *Service) CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

func (s *Service) GenerateToken(userID int64, username string) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.duration)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *Service) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID <= 0 {
		return nil, ErrInvalidToken
	}
	claims.AccessToken = false
	claims.Scopes = nil
	return claims, nil
}

// NewAccessToken returns a fresh personal access token, the short prefix shown
// in listings, and the hash that is the only form persisted.
func NewAccessToken() (plain, displayPrefix, hash string, err error) {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return "", "", "", err
	}
	plain = AccessTokenPrefix + hex.EncodeToString(buf)
	return plain, plain[:len(AccessTokenPrefix)+6], HashAccessToken(plain), nil
}

func HashAccessToken(plain string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(plain)))
	return hex.EncodeToString(sum[:])
}
