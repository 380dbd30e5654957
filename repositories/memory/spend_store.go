package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cloudgov/costguard/repositories"
)

type spendEntry struct {
	cost     float64
	currency string
}

type spendTransaction struct {
	rec repositories.SpendRecord
	at  time.Time
}

// SpendStore implements repositories.SpendRepository in memory.
type SpendStore struct {
	mu           sync.RWMutex
	totals       map[string]map[string]*spendEntry // scope -> period -> totals
	transactions []spendTransaction
}

// NewSpendStore creates an empty spend store
func NewSpendStore() *SpendStore {
	return &SpendStore{
		totals: make(map[string]map[string]*spendEntry),
	}
}

// RecordCost upserts the cost into the daily and monthly periods
func (s *SpendStore) RecordCost(_ context.Context, rec repositories.SpendRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	currency := rec.Currency
	if currency == "" {
		currency = "USD"
	}

	periods := s.totals[rec.ScopeKey]
	if periods == nil {
		periods = make(map[string]*spendEntry)
		s.totals[rec.ScopeKey] = periods
	}
	for _, period := range []repositories.SpendPeriod{repositories.PeriodDaily, repositories.PeriodMonthly} {
		key := periodKey(now, period)
		entry := periods[key]
		if entry == nil {
			entry = &spendEntry{currency: currency}
			periods[key] = entry
		}
		entry.cost += rec.Cost
	}

	s.transactions = append(s.transactions, spendTransaction{rec: rec, at: now})
	return nil
}

// GetPeriodSpend returns the total spend for the period containing now
func (s *SpendStore) GetPeriodSpend(_ context.Context, scopeKey string, period repositories.SpendPeriod, now time.Time) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry := s.totals[scopeKey][periodKey(now, period)]
	if entry == nil {
		return 0, nil
	}
	return entry.cost, nil
}

// GetSpendSummary returns daily and monthly totals for a scope
func (s *SpendStore) GetSpendSummary(ctx context.Context, scopeKey string) (*repositories.SpendSummary, error) {
	now := time.Now().UTC()
	daily, err := s.GetPeriodSpend(ctx, scopeKey, repositories.PeriodDaily, now)
	if err != nil {
		return nil, err
	}
	monthly, err := s.GetPeriodSpend(ctx, scopeKey, repositories.PeriodMonthly, now)
	if err != nil {
		return nil, err
	}
	return &repositories.SpendSummary{DailySpend: daily, MonthlySpend: monthly}, nil
}

// TopSpenders returns the highest-spending scopes for the current period
func (s *SpendStore) TopSpenders(_ context.Context, period repositories.SpendPeriod, limit int) ([]repositories.SpenderInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := periodKey(time.Now().UTC(), period)
	spenders := make([]repositories.SpenderInfo, 0)
	for scope, periods := range s.totals {
		if entry := periods[key]; entry != nil {
			spenders = append(spenders, repositories.SpenderInfo{
				ScopeKey:  scope,
				TotalCost: entry.cost,
				Currency:  entry.currency,
			})
		}
	}
	sort.Slice(spenders, func(i, j int) bool {
		return spenders[i].TotalCost > spenders[j].TotalCost
	})
	if limit > 0 && limit < len(spenders) {
		spenders = spenders[:limit]
	}
	return spenders, nil
}

// CleanupOldData removes spend data older than the retention window
func (s *SpendStore) CleanupOldData(_ context.Context, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().Add(-olderThan)
	cutoffDaily := periodKey(cutoff, repositories.PeriodDaily)
	cutoffMonthly := periodKey(cutoff, repositories.PeriodMonthly)

	// Daily and monthly keys share one map and have different lengths, so
	// each key is compared against the cutoff of its own granularity.
	var removed int64
	for _, periods := range s.totals {
		for key := range periods {
			cutoffKey := cutoffDaily
			if len(key) == len(cutoffMonthly) {
				cutoffKey = cutoffMonthly
			}
			if key < cutoffKey {
				delete(periods, key)
				removed++
			}
		}
	}

	kept := s.transactions[:0]
	for _, tx := range s.transactions {
		if tx.at.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, tx)
	}
	s.transactions = kept
	return removed, nil
}

func periodKey(now time.Time, period repositories.SpendPeriod) string {
	switch period {
	case repositories.PeriodMonthly:
		return now.Format("2006-01")
	default:
		return now.Format("2006-01-02")
	}
}
