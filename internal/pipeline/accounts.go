package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/dvloznov/statement-ledger/internal/domain"
	"github.com/google/uuid"
)

// AddAccount registers a bank account for the user. BankName is required;
// Currency defaults to INR.
func (s *Service) AddAccount(ctx context.Context, rc domain.RequestContext, a domain.Account) (*domain.Account, error) {
	if err := rc.Validate(); err != nil {
		return nil, fmt.Errorf("AddAccount: %w", err)
	}
	a.BankName = strings.TrimSpace(a.BankName)
	if a.BankName == "" {
		return nil, fmt.Errorf("AddAccount: bank_name: %w", ErrInvalidInput)
	}
	a.ID = uuid.New().String()
	a.UserID = rc.UserID
	a.AccountNumberMasked = trimmedPtr(a.AccountNumberMasked)
	a.IFSC = trimmedPtr(a.IFSC)
	a.Branch = trimmedPtr(a.Branch)
	a.Currency = strings.ToUpper(strings.TrimSpace(a.Currency))

	if err := s.repo.InsertAccount(ctx, &a); err != nil {
		return nil, fmt.Errorf("AddAccount: %w", err)
	}
	return &a, nil
}

// ListAccounts returns the user's accounts.
func (s *Service) ListAccounts(ctx context.Context, rc domain.RequestContext) ([]*domain.Account, error) {
	if err := rc.Validate(); err != nil {
		return nil, fmt.Errorf("ListAccounts: %w", err)
	}
	accounts, err := s.repo.ListAccounts(ctx, rc.UserID)
	if err != nil {
		return nil, fmt.Errorf("ListAccounts: %w", err)
	}
	if accounts == nil {
		accounts = []*domain.Account{}
	}
	return accounts, nil
}

// DashboardKPIs returns the user's overview with the top counterparties.
func (s *Service) DashboardKPIs(ctx context.Context, rc domain.RequestContext) (*domain.DashboardKPIs, error) {
	if err := rc.Validate(); err != nil {
		return nil, fmt.Errorf("DashboardKPIs: %w", err)
	}
	kpis, err := s.repo.DashboardKPIs(ctx, rc.UserID, DashboardTopCounterparties)
	if err != nil {
		return nil, fmt.Errorf("DashboardKPIs: %w", err)
	}
	return kpis, nil
}

func trimmedPtr(s *string) *string {
	if s == nil {
		return nil
	}
	return domain.StringPtr(strings.TrimSpace(*s))
}
