// Package auth issues and checks the bearer tokens used by the back-office API.
// Staff sign in with a password or Google; admins can act as another staff member
// through a token whose act claim names the admin.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/closerdesk/closerdesk/app/models"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInactive           = errors.New("account is not active")
	ErrNotStaff           = errors.New("account cannot sign in to the back office")
	ErrTokenRevoked       = errors.New("token has been revoked")
	ErrForbidden          = errors.New("not allowed")
	ErrNotImpersonating   = errors.New("token is not impersonating anyone")
	ErrUserNotFound       = errors.New("user not found")
)

// Session is a freshly issued token and the user it speaks for.
type Session struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
	ActorID   *uint        `json:"actor_id,omitempty"`
}

type Option func(*Service)

func WithBlacklist(b Blacklist) Option { return func(s *Service) { s.blacklist = b } }

type Service struct {
	repo      Repository
	signer    signer
	blacklist Blacklist
	now       func() time.Time
}

func NewService(repo Repository, cfg *Config, opts ...Option) *Service {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Service{
		repo:   repo,
		signer: signer{secret: cfg.Secret, ttl: ttl},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func NewServiceFromDB(db *gorm.DB, cfg *Config, opts ...Option) *Service {
	return NewService(NewRepository(db), cfg, opts...)
}

// Login checks a password and issues a token for an active staff user.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u == nil || !u.CheckPassword(password) {
		return nil, ErrInvalidCredentials
	}
	return s.open(ctx, u)
}

// LoginByEmail issues a token for an already verified address, used by the OAuth
// callback. Unknown addresses are rejected; staff accounts are created by admins.
func (s *Service) LoginByEmail(ctx context.Context, email string) (*Session, error) {
	u, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	return s.open(ctx, u)
}

func (s *Service) open(ctx context.Context, u *models.User) (*Session, error) {
	if err := checkStaff(u); err != nil {
		return nil, err
	}
	now := s.now()
	sess, err := s.issue(u, nil, now)
	if err != nil {
		return nil, err
	}
	if err := s.repo.TouchLogin(ctx, u.ID, now.UTC()); err != nil {
		log.Warnf("[Auth] Could not record login for user %d: %v", u.ID, err)
	}
	return sess, nil
}

func checkStaff(u *models.User) error {
	if !u.IsStaff() {
		return ErrNotStaff
	}
	if !u.IsActive() {
		return ErrInactive
	}
	return nil
}

func (s *Service) issue(u *models.User, act *uint, now time.Time) (*Session, error) {
	raw, claims, err := s.signer.issue(u.ID, u.Name, u.Role, act, now)
	if err != nil {
		return nil, err
	}
	return &Session{Token: raw, ExpiresAt: claims.expiresAt(), User: u, ActorID: act}, nil
}

// Authenticate parses a bearer token and rejects revoked ones.
func (s *Service) Authenticate(ctx context.Context, raw string) (*Claims, error) {
	claims, err := s.signer.parse(raw, s.now())
	if err != nil {
		return nil, err
	}
	if s.blacklist != nil {
		revoked, err := s.blacklist.IsRevoked(ctx, claims.ID)
		if err != nil {
			log.Warnf("[Auth] Blacklist lookup failed: %v", err)
		} else if revoked {
			return nil, ErrTokenRevoked
		}
	}
	return claims, nil
}

// Logout revokes the token until it expires.
func (s *Service) Logout(ctx context.Context, claims *Claims) error {
	if s.blacklist == nil {
		return nil
	}
	return s.blacklist.Revoke(ctx, claims.ID, claims.expiresAt().Sub(s.now()))
}

// Me loads the user the token speaks for.
func (s *Service) Me(ctx context.Context, claims *Claims) (*models.User, error) {
	u, err := s.repo.GetUser(ctx, claims.UserID())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

// Impersonate lets an admin act as another staff member. The new token carries the
// admin's id in act; the admin's own token stays valid.
func (s *Service) Impersonate(ctx context.Context, claims *Claims, targetID uint) (*Session, error) {
	if claims.Role != models.ROLE_ADMIN || claims.Impersonating() {
		return nil, ErrForbidden
	}
	if targetID == claims.UserID() {
		return nil, ErrForbidden
	}
	target, err := s.repo.GetUser(ctx, targetID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if target.Role == models.ROLE_ADMIN {
		return nil, ErrForbidden
	}
	if err := checkStaff(target); err != nil {
		return nil, err
	}
	actor := claims.UserID()
	sess, err := s.issue(target, &actor, s.now())
	if err != nil {
		return nil, err
	}
	log.Infof("[Auth] Admin %d is acting as user %d", actor, target.ID)
	return sess, nil
}

// StopImpersonation revokes the acting-as token and hands the admin a fresh token.
func (s *Service) StopImpersonation(ctx context.Context, claims *Claims) (*Session, error) {
	if !claims.Impersonating() {
		return nil, ErrNotImpersonating
	}
	admin, err := s.repo.GetUser(ctx, *claims.Act)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if admin.Role != models.ROLE_ADMIN {
		return nil, ErrForbidden
	}
	if err := checkStaff(admin); err != nil {
		return nil, err
	}
	if err := s.Logout(ctx, claims); err != nil {
		return nil, fmt.Errorf("auth: revoke impersonation token: %w", err)
	}
	return s.issue(admin, nil, s.now())
}
