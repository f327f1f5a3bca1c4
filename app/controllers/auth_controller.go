package controllers

import (
	"context"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	gothfiber "github.com/shareed2k/goth_fiber"

	"github.com/closerdesk/closerdesk/app/models"
	"github.com/closerdesk/closerdesk/internal/pkg/auth"
	"github.com/closerdesk/closerdesk/internal/pkg/flash"
	"github.com/closerdesk/closerdesk/internal/pkg/middleware"
	"github.com/closerdesk/closerdesk/internal/pkg/oauth"
)

// AuthService is implemented by *auth.Service.
type AuthService interface {
	Login(ctx context.Context, email, password string) (*auth.Session, error)
	LoginByEmail(ctx context.Context, email string) (*auth.Session, error)
	Logout(ctx context.Context, claims *auth.Claims) error
	Me(ctx context.Context, claims *auth.Claims) (*models.User, error)
	Impersonate(ctx context.Context, claims *auth.Claims, targetID uint) (*auth.Session, error)
	StopImpersonation(ctx context.Context, claims *auth.Claims) (*auth.Session, error)
}

// AuthController handles sign-in, sign-out and impersonation
type AuthController struct {
	auth AuthService
}

func NewAuthController(a AuthService) *AuthController {
	return &AuthController{auth: a}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// HandleLogin exchanges email and password for a bearer token
func (ac *AuthController) HandleLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := bindJSON(c, &req); err != nil {
		return respondError(c, err)
	}
	sess, err := ac.auth.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(sess)
}

// HandleLogout revokes the caller's token
func (ac *AuthController) HandleLogout(c *fiber.Ctx) error {
	claims := middleware.Claims(c)
	if claims == nil {
		return respondError(c, auth.ErrInvalidToken)
	}
	if err := ac.auth.Logout(c.UserContext(), claims); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleMe returns the signed-in user and, while impersonating, the acting admin id
func (ac *AuthController) HandleMe(c *fiber.Ctx) error {
	claims := middleware.Claims(c)
	if claims == nil {
		return respondError(c, auth.ErrInvalidToken)
	}
	u, err := ac.auth.Me(c.UserContext(), claims)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"user": u, "actor_id": claims.Act})
}

func (ac *AuthController) HandleImpersonate(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	sess, err := ac.auth.Impersonate(c.UserContext(), middleware.Claims(c), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(sess)
}

func (ac *AuthController) HandleStopImpersonation(c *fiber.Ctx) error {
	sess, err := ac.auth.StopImpersonation(c.UserContext(), middleware.Claims(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(sess)
}

// HandleOAuthBegin redirects to the provider's consent screen
func (ac *AuthController) HandleOAuthBegin(c *fiber.Ctx) error {
	if !oauth.Enabled() {
		return jsonError(c, fiber.StatusServiceUnavailable, "oauth_not_configured", "Google sign-in is not configured")
	}
	return gothfiber.BeginAuthHandler(c)
}

// HandleOAuthCallback completes the provider flow and hands the token to the SPA in
// the URL fragment, which never reaches a server log.
func (ac *AuthController) HandleOAuthCallback(c *fiber.Ctx) error {
	loginURL := oauth.FrontendURL() + "/login"

	u, err := gothfiber.CompleteUserAuth(c)
	if err != nil {
		log.Warnf("[OAuth] Provider flow failed: %v", err)
		return flash.Redirect(c, flash.TypeError, "Google sign-in failed", loginURL)
	}
	if u.Email == "" {
		return flash.Redirect(c, flash.TypeError, "Google did not share an email address", loginURL)
	}

	sess, err := ac.auth.LoginByEmail(c.UserContext(), u.Email)
	if err != nil {
		log.Infof("[OAuth] Sign-in refused for %s: %v", u.Email, err)
		return flash.Redirect(c, flash.TypeError, "No active staff account for "+u.Email, loginURL)
	}

	fragment := url.Values{}
	fragment.Set("token", sess.Token)
	fragment.Set("expires_at", sess.ExpiresAt.UTC().Format(time.RFC3339))
	return c.Redirect(oauth.FrontendURL()+"/auth/callback#"+fragment.Encode(), fiber.StatusSeeOther)
}

// HandleFlash returns and clears the pending redirect message
func HandleFlash(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"flash": flash.Get(c)})
}
