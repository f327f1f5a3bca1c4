// Package funnel derives a lead's funnel status from ledger and booking facts.
package funnel

import (
	"context"
	"fmt"
	"time"

	"github.com/closerdesk/closerdesk/app/models"
)

// Facts is everything the status ladder looks at.
type Facts struct {
	// ActiveDebt is the sum over active enrollments of max(0, agreed - paid).
	ActiveDebt float64
	// Enrollments counts active and completed enrollments; dropped ones are ignored.
	Enrollments int
	// HasUpcoming is true when a scheduled or confirmed appointment starts after now.
	HasUpcoming bool
	// CompletedPayments counts completed payments across all enrollments.
	CompletedPayments int
}

// Store loads facts and persists the derived status. Implementations are bound to
// the caller's transaction.
type Store interface {
	LoadFacts(ctx context.Context, userID uint, now time.Time) (Facts, error)
	GetLeadStatus(ctx context.Context, userID uint) (string, error)
	SetLeadStatus(ctx context.Context, userID uint, status string) error
}

const debtEpsilon = 0.005

// Derive applies the ladder; the first matching rule wins.
//
//  1. outstanding debt           -> pending
//  2. at least one enrollment    -> completed (a stored renewed is kept)
//  3. upcoming appointment       -> agenda
//  4. no completed payment ever  -> new
//  5. otherwise                  -> current
func Derive(f Facts, current string) string {
	switch {
	case f.ActiveDebt > debtEpsilon:
		return models.LEAD_STATUS_PENDING
	case f.Enrollments >= 1:
		if current == models.LEAD_STATUS_RENEWED {
			return models.LEAD_STATUS_RENEWED
		}
		return models.LEAD_STATUS_COMPLETED
	case f.HasUpcoming:
		return models.LEAD_STATUS_AGENDA
	case f.CompletedPayments == 0:
		return models.LEAD_STATUS_NEW
	default:
		return current
	}
}

// Recompute derives the status for userID and stores it when it changed.
func Recompute(ctx context.Context, store Store, userID uint, now time.Time) (string, error) {
	facts, err := store.LoadFacts(ctx, userID, now)
	if err != nil {
		return "", fmt.Errorf("load facts for user %d: %w", userID, err)
	}
	current, err := store.GetLeadStatus(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("load status for user %d: %w", userID, err)
	}

	next := Derive(facts, current)
	if next == current {
		return current, nil
	}
	if err := store.SetLeadStatus(ctx, userID, next); err != nil {
		return "", fmt.Errorf("store status for user %d: %w", userID, err)
	}
	return next, nil
}

// MarkRenewed stores renewed after a renewal payment when the lead has settled into
// completed. Any other status is left as derived.
func MarkRenewed(ctx context.Context, store Store, userID uint, now time.Time) (string, error) {
	status, err := Recompute(ctx, store, userID, now)
	if err != nil {
		return "", err
	}
	if status != models.LEAD_STATUS_COMPLETED {
		return status, nil
	}
	if err := store.SetLeadStatus(ctx, userID, models.LEAD_STATUS_RENEWED); err != nil {
		return "", fmt.Errorf("store status for user %d: %w", userID, err)
	}
	return models.LEAD_STATUS_RENEWED, nil
}
