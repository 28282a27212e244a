// Package coordinator fans out ingestion across every enabled account,
// isolating per-account failures so one bad mailbox never blocks the rest.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/soraya-vance/daymind/internal/daymind/ingestion"
	"github.com/soraya-vance/daymind/internal/daymind/model"
)

// AccountStore is the subset of store.Store the coordinator needs to
// enumerate enabled accounts.
type AccountStore interface {
	ListEnabledAccounts(ctx context.Context) ([]model.Account, error)
}

// ServiceFactory builds the IngestionService for one account. The
// coordinator itself holds no provider-specific knowledge.
type ServiceFactory func(account model.Account) (*ingestion.Service, error)

// Failure records one account's sync failure without aborting its siblings.
type Failure struct {
	Provider  string
	AccountID string
	Email     string
	Reason    string
}

// Summary is the aggregated result of one coordination pass.
type Summary struct {
	Results  map[string]ingestion.Result // keyed by account_id
	Failures []Failure
}

// ErrAllAccountSyncsFailed is returned when every enabled account failed to
// sync; its Error() concatenates every failure's reason.
type ErrAllAccountSyncsFailed struct {
	Failures []Failure
}

func (e *ErrAllAccountSyncsFailed) Error() string {
	msg := "all account syncs failed: "
	for i, f := range e.Failures {
		if i > 0 {
			msg += "; "
		}
		msg += fmt.Sprintf("%s/%s (%s): %s", f.Provider, f.AccountID, f.Email, f.Reason)
	}
	return msg
}

// Coordinator is the MultiAccountCoordinator.
type Coordinator struct {
	accounts AccountStore
	factory  ServiceFactory
}

// New builds a Coordinator.
func New(accounts AccountStore, factory ServiceFactory) *Coordinator {
	return &Coordinator{accounts: accounts, factory: factory}
}

// SyncAll enumerates enabled accounts and syncs each in turn, isolating
// per-account failures.
func (c *Coordinator) SyncAll(ctx context.Context) (Summary, error) {
	accounts, err := c.accounts.ListEnabledAccounts(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("list enabled accounts: %w", err)
	}

	summary := Summary{Results: make(map[string]ingestion.Result, len(accounts))}

	for _, account := range accounts {
		svc, err := c.factory(account)
		if err != nil {
			summary.Failures = append(summary.Failures, Failure{
				Provider: string(account.Provider), AccountID: account.AccountID, Email: account.Email,
				Reason: fmt.Sprintf("build ingestion service: %v", err),
			})
			continue
		}

		result, err := svc.Sync(ctx)
		if err != nil {
			slog.Warn("account sync failed", "provider", account.Provider, "account_id", account.AccountID, "err", err)
			summary.Failures = append(summary.Failures, Failure{
				Provider: string(account.Provider), AccountID: account.AccountID, Email: account.Email,
				Reason: err.Error(),
			})
			continue
		}
		summary.Results[account.AccountID] = result
	}

	if len(accounts) > 0 && len(summary.Failures) == len(accounts) {
		return summary, &ErrAllAccountSyncsFailed{Failures: summary.Failures}
	}
	return summary, nil
}
