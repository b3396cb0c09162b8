package services

import (
	"context"

	"github.com/pixelmuse/pixelmuse/pkg/storage"
)

// CreditService adapts the profile store's atomic ledger operations to the
// nodes.Credits contract. The engine treats deduction as a black box and
// never holds a lock across node executions.
type CreditService struct {
	profiles storage.ProfileStore
}

// NewCreditService creates a new credit service.
func NewCreditService(profiles storage.ProfileStore) *CreditService {
	return &CreditService{profiles: profiles}
}

// Balance reads the user's current credit balance.
func (s *CreditService) Balance(ctx context.Context, userID string) (int, error) {
	return s.profiles.GetCredits(userID)
}

// Deduct atomically debits credits from the user's balance.
func (s *CreditService) Deduct(ctx context.Context, userID string, amount int, description string) error {
	return s.profiles.DeductCredits(userID, amount, description)
}
