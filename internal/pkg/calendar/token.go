package calendar

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"golang.org/x/oauth2"

	"github.com/closerdesk/closerdesk/app/models"
)

func tokenFromAccount(acct *models.ProviderAccount) *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  acct.AccessToken,
		RefreshToken: acct.RefreshToken,
		TokenType:    acct.TokenType,
	}
	if acct.ExpiresAt != nil {
		tok.Expiry = *acct.ExpiresAt
	}
	return tok
}

func applyToken(acct *models.ProviderAccount, tok *oauth2.Token) {
	acct.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		acct.RefreshToken = tok.RefreshToken
	}
	acct.TokenType = tok.TokenType
	if tok.Expiry.IsZero() {
		acct.ExpiresAt = nil
	} else {
		exp := tok.Expiry.UTC()
		acct.ExpiresAt = &exp
	}
}

// persistingTokenSource writes refreshed tokens back to the linked account.
type persistingTokenSource struct {
	mu   sync.Mutex
	base oauth2.TokenSource
	repo Repository
	acct *models.ProviderAccount
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := p.base.Token()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if tok.AccessToken == p.acct.AccessToken {
		return tok, nil
	}
	applyToken(p.acct, tok)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.repo.SaveAccount(ctx, p.acct); err != nil {
		log.Errorf("[Calendar] Failed to persist refreshed token for user %d: %v", p.acct.UserID, err)
	}
	return tok, nil
}
