// Package ledger implements the prepaid credit ledger: an append-only audit
// trail with atomic reserve → commit/rollback semantics around billable
// operations.
package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/udaysk3/smart-research-assistant/internal/model"
	"github.com/udaysk3/smart-research-assistant/internal/store"
)

// Service guards per-user balances. All balance transitions go through
// Reserve, Commit, Rollback, and Purchase; per-user operations are strictly
// serialized via a keyed mutex so concurrent reservations can never
// overdraw.
type Service struct {
	store       store.Store
	signupGrant int

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	now func() time.Time // injectable for testing
}

// New creates a ledger service. New users are seeded with signupGrant
// credits on first contact, recorded as a purchase entry so the
// running-sum invariant holds from the first row.
func New(st store.Store, signupGrant int) *Service {
	return &Service{
		store:       st,
		signupGrant: signupGrant,
		locks:       make(map[string]*sync.Mutex),
		now:         time.Now,
	}
}

// WithNow sets a fixed clock for testing.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

// Reserve places a tentative hold of amount credits on the user's balance
// and returns the correlation id that must later resolve to exactly one
// Commit or Rollback. Fails with model.ErrInsufficientCredits when the
// available balance cannot cover the amount.
func (s *Service) Reserve(ctx context.Context, userID string, amount int) (string, error) {
	if amount <= 0 {
		return "", eris.Errorf("ledger: invalid reservation amount %d", amount)
	}

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	available, err := s.availableLocked(ctx, userID)
	if err != nil {
		return "", err
	}
	if available < amount {
		return "", eris.Wrapf(model.ErrInsufficientCredits, "ledger: user %s has %d, needs %d", userID, available, amount)
	}

	correlationID := uuid.New().String()
	entry := model.CreditLedgerEntry{
		EntryID:       uuid.New().String(),
		UserID:        userID,
		Delta:         -amount,
		Reason:        model.ReasonReservation,
		BalanceAfter:  available - amount,
		CorrelationID: correlationID,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.store.AppendLedgerEntry(ctx, entry); err != nil {
		return "", eris.Wrap(err, "ledger: append reservation")
	}

	zap.L().Info("ledger: reserved credits",
		zap.String("user_id", userID),
		zap.Int("amount", amount),
		zap.Int("balance_after", entry.BalanceAfter),
		zap.String("correlation_id", correlationID),
	)
	return correlationID, nil
}

// Commit finalizes a reservation. Idempotent: a second commit with the same
// correlation id is a no-op. Committing an already rolled back reservation
// is a model.ErrLedgerInconsistency.
func (s *Service) Commit(ctx context.Context, correlationID string) error {
	return s.terminate(ctx, correlationID, model.ReasonCommit)
}

// Rollback restores the reserved amount to the user's available balance.
// Idempotent under the same rule as Commit.
func (s *Service) Rollback(ctx context.Context, correlationID string) error {
	return s.terminate(ctx, correlationID, model.ReasonRollback)
}

func (s *Service) terminate(ctx context.Context, correlationID string, reason model.EntryReason) error {
	// Find the reservation first to learn the user, then serialize on the
	// user's lock and re-read under it.
	reservation, _, err := s.correlationState(ctx, correlationID)
	if err != nil {
		return err
	}

	lock := s.userLock(reservation.UserID)
	lock.Lock()
	defer lock.Unlock()

	reservation, terminal, err := s.correlationState(ctx, correlationID)
	if err != nil {
		return err
	}
	if terminal != nil {
		if terminal.Reason == reason {
			zap.L().Debug("ledger: terminal entry already exists",
				zap.String("correlation_id", correlationID),
				zap.String("reason", string(reason)),
			)
			return nil
		}
		return eris.Wrapf(model.ErrLedgerInconsistency,
			"ledger: correlation %s already terminated as %s, cannot %s",
			correlationID, terminal.Reason, reason)
	}

	available, err := s.availableLocked(ctx, reservation.UserID)
	if err != nil {
		return err
	}

	delta := 0
	if reason == model.ReasonRollback {
		delta = -reservation.Delta // restore the reserved amount
	}
	entry := model.CreditLedgerEntry{
		EntryID:       uuid.New().String(),
		UserID:        reservation.UserID,
		Delta:         delta,
		Reason:        reason,
		BalanceAfter:  available + delta,
		CorrelationID: correlationID,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.store.AppendLedgerEntry(ctx, entry); err != nil {
		return eris.Wrapf(err, "ledger: append %s", reason)
	}

	zap.L().Info("ledger: reservation terminated",
		zap.String("user_id", reservation.UserID),
		zap.String("correlation_id", correlationID),
		zap.String("reason", string(reason)),
		zap.Int("balance_after", entry.BalanceAfter),
	)
	return nil
}

// correlationState returns the reservation entry and, if present, the
// terminal entry for a correlation id. More than one terminal entry is an
// invariant violation.
func (s *Service) correlationState(ctx context.Context, correlationID string) (*model.CreditLedgerEntry, *model.CreditLedgerEntry, error) {
	entries, err := s.store.LedgerEntriesByCorrelation(ctx, correlationID)
	if err != nil {
		return nil, nil, eris.Wrap(err, "ledger: load correlation")
	}

	var reservation, terminal *model.CreditLedgerEntry
	for i := range entries {
		entry := entries[i]
		switch {
		case entry.Reason == model.ReasonReservation:
			reservation = &entry
		case entry.Reason.Terminal():
			if terminal != nil {
				return nil, nil, eris.Wrapf(model.ErrLedgerInconsistency,
					"ledger: correlation %s has multiple terminal entries", correlationID)
			}
			terminal = &entry
		}
	}
	if reservation == nil {
		return nil, nil, eris.Wrapf(model.ErrLedgerInconsistency,
			"ledger: no reservation for correlation %s", correlationID)
	}
	return reservation, terminal, nil
}

// Purchase adds credits to the user's balance.
func (s *Service) Purchase(ctx context.Context, userID string, amount int) error {
	if amount <= 0 {
		return eris.Errorf("ledger: invalid purchase amount %d", amount)
	}

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	available, err := s.availableLocked(ctx, userID)
	if err != nil {
		return err
	}

	entry := model.CreditLedgerEntry{
		EntryID:      uuid.New().String(),
		UserID:       userID,
		Delta:        amount,
		Reason:       model.ReasonPurchase,
		BalanceAfter: available + amount,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.AppendLedgerEntry(ctx, entry); err != nil {
		return eris.Wrap(err, "ledger: append purchase")
	}

	zap.L().Info("ledger: credits purchased",
		zap.String("user_id", userID),
		zap.Int("amount", amount),
		zap.Int("balance_after", entry.BalanceAfter),
	)
	return nil
}

// Balance returns the user's available credits, seeding a new user with the
// signup grant.
func (s *Service) Balance(ctx context.Context, userID string) (int, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()
	return s.availableLocked(ctx, userID)
}

// availableLocked reads the cached balance, seeding unknown users. Callers
// must hold the user's lock.
func (s *Service) availableLocked(ctx context.Context, userID string) (int, error) {
	balance, err := s.store.GetBalance(ctx, userID)
	if err == nil {
		return balance.Available, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return 0, eris.Wrap(err, "ledger: get balance")
	}

	// First contact: seed the signup grant.
	entry := model.CreditLedgerEntry{
		EntryID:      uuid.New().String(),
		UserID:       userID,
		Delta:        s.signupGrant,
		Reason:       model.ReasonPurchase,
		BalanceAfter: s.signupGrant,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.AppendLedgerEntry(ctx, entry); err != nil {
		return 0, eris.Wrap(err, "ledger: seed signup grant")
	}
	zap.L().Info("ledger: seeded new user",
		zap.String("user_id", userID),
		zap.Int("signup_grant", s.signupGrant),
	)
	return s.signupGrant, nil
}

// Reconcile verifies that the cached balance equals the running sum of the
// user's ledger deltas. Divergence is reported as
// model.ErrLedgerInconsistency and never auto-corrected.
func (s *Service) Reconcile(ctx context.Context, userID string) (int, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	sum, err := s.store.LedgerSum(ctx, userID)
	if err != nil {
		return 0, eris.Wrap(err, "ledger: sum entries")
	}
	balance, err := s.store.GetBalance(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		if sum == 0 {
			return 0, nil
		}
		return 0, eris.Wrapf(model.ErrLedgerInconsistency,
			"ledger: user %s has entries summing to %d but no balance row", userID, sum)
	}
	if err != nil {
		return 0, eris.Wrap(err, "ledger: get balance")
	}
	if balance.Available != sum {
		return 0, eris.Wrapf(model.ErrLedgerInconsistency,
			"ledger: user %s cached balance %d != ledger sum %d", userID, balance.Available, sum)
	}
	return sum, nil
}

// UsageStats summarizes a user's committed spend from the ledger.
func (s *Service) UsageStats(ctx context.Context, userID string) (*model.UsageStats, error) {
	available, err := s.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}

	entries, err := s.store.LedgerEntriesByUser(ctx, userID, 0)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: load entries")
	}

	reserved := make(map[string]int) // correlation id → reserved amount
	for _, entry := range entries {
		if entry.Reason == model.ReasonReservation {
			reserved[entry.CorrelationID] = -entry.Delta
		}
	}

	stats := &model.UsageStats{
		UserID:    userID,
		Available: available,
	}
	for _, entry := range entries {
		if entry.Reason == model.ReasonCommit {
			stats.ReportsGenerated++
			stats.CreditsSpent += reserved[entry.CorrelationID]
		}
	}

	recent := entries
	if len(recent) > 10 {
		recent = recent[:10]
	}
	stats.RecentEntries = recent
	return stats, nil
}
