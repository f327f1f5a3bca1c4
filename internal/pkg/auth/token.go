package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/closerdesk/closerdesk/internal/pkg/env"
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrNoSecret     = errors.New("auth: JWT_SECRET is not set")
)

const (
	DefaultTTL = 12 * time.Hour
	issuer     = "closerdesk"
)

type Config struct {
	Secret []byte
	TTL    time.Duration
}

// LoadConfig reads JWT_SECRET and JWT_TTL_MINUTES.
func LoadConfig() (*Config, error) {
	secret := env.GetEnv("JWT_SECRET", "")
	if secret == "" {
		return nil, ErrNoSecret
	}
	ttl := time.Duration(env.GetEnvInt("JWT_TTL_MINUTES", 0)) * time.Minute
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Config{Secret: []byte(secret), TTL: ttl}, nil
}

// Claims is the access token payload. Act holds the admin id while that admin is
// acting as another user.
type Claims struct {
	jwt.RegisteredClaims
	Name string `json:"name"`
	Role string `json:"role"`
	Act  *uint  `json:"act,omitempty"`
}

// UserID returns the subject as a user id.
func (c *Claims) UserID() uint {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil {
		return 0
	}
	return uint(id)
}

func (c *Claims) Impersonating() bool {
	return c.Act != nil
}

func (c *Claims) expiresAt() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

type signer struct {
	secret []byte
	ttl    time.Duration
}

func (s signer) issue(userID uint, name, role string, act *uint, now time.Time) (string, *Claims, error) {
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			Subject:   strconv.FormatUint(uint64(userID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		Name: name,
		Role: role,
		Act:  act,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, claims, nil
}

func (s signer) parse(raw string, now time.Time) (*Claims, error) {
	claims := &Claims{}
	// Time claims are checked against the service clock below.
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	tok, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil || !tok.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Issuer != issuer || claims.UserID() == 0 || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	if !claims.expiresAt().After(now) {
		return nil, ErrInvalidToken
	}
	if claims.NotBefore != nil && now.Before(claims.NotBefore.Time) {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
