package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ugurrates/threat-intel-web/internal/entity"
)

// Scope names for quota counters.
const (
	ScopeIdentity      = "identity_day"
	ScopeGlobalDaily   = "global_day"
	ScopeGlobalMonthly = "global_month"
)

// Repository persists quota counters. Buckets are calendar-aligned UTC
// strings ("2006-01-02" for days, "2006-01" for months), so counters
// reset by boundary crossing, never by an active timer, and survive
// process restarts.
type Repository interface {
	Count(ctx context.Context, scope, bucket, identity string) (int, error)
	Increment(ctx context.Context, scope, bucket, identity string) error
	Cleanup(ctx context.Context, beforeDay string) error
}

// Limits holds the three independent ceilings.
type Limits struct {
	PerIdentityDaily int
	GlobalDaily      int
	GlobalMonthly    int
}

// DefaultLimits returns the production quota ceilings.
func DefaultLimits() Limits {
	return Limits{
		PerIdentityDaily: 5,
		GlobalDaily:      100,
		GlobalMonthly:    500,
	}
}

// Service gates analyses behind per-identity and global quotas. Admit
// runs before any cache or aggregation work; Record runs only after a
// non-cached analysis actually executed, so cache hits never consume
// quota. The mutex makes admit/record atomic: concurrent requests from
// one identity cannot race past a ceiling.
type Service struct {
	repo   Repository
	limits Limits
	logger *slog.Logger

	mu  sync.Mutex
	now func() time.Time
}

// NewService creates a rate limiter over the given repository.
func NewService(repo Repository, limits Limits, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   repo,
		limits: limits,
		logger: logger,
		now:    time.Now,
	}
}

// Limits returns the configured ceilings.
func (s *Service) Limits() Limits {
	return s.limits
}

func dayBucket(t time.Time) string   { return t.UTC().Format("2006-01-02") }
func monthBucket(t time.Time) string { return t.UTC().Format("2006-01") }

func nextDayBoundary(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}

func nextMonthBoundary(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}

// Admit checks the three ceilings in order (identity daily, global
// daily, global monthly) and short-circuits on the first exhausted one.
// Denial is a first-class outcome, not an error; the error return is
// for repository failures only.
func (s *Service) Admit(ctx context.Context, identity string) (entity.QuotaDecision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	day := dayBucket(now)
	month := monthBucket(now)

	identityCount, err := s.repo.Count(ctx, ScopeIdentity, day, identity)
	if err != nil {
		return entity.QuotaDecision{}, fmt.Errorf("read identity counter: %w", err)
	}

	decision := entity.QuotaDecision{
		Allowed:   true,
		Limit:     s.limits.PerIdentityDaily,
		Remaining: s.limits.PerIdentityDaily - identityCount,
		ResetAt:   nextDayBoundary(now),
	}
	if decision.Remaining < 0 {
		decision.Remaining = 0
	}

	if identityCount >= s.limits.PerIdentityDaily {
		decision.Allowed = false
		decision.Reason = entity.QuotaReasonIPDaily
		decision.Remaining = 0
		return decision, nil
	}

	globalDaily, err := s.repo.Count(ctx, ScopeGlobalDaily, day, "")
	if err != nil {
		return entity.QuotaDecision{}, fmt.Errorf("read global daily counter: %w", err)
	}
	if globalDaily >= s.limits.GlobalDaily {
		decision.Allowed = false
		decision.Reason = entity.QuotaReasonGlobalDaily
		decision.ResetAt = nextDayBoundary(now)
		return decision, nil
	}

	globalMonthly, err := s.repo.Count(ctx, ScopeGlobalMonthly, month, "")
	if err != nil {
		return entity.QuotaDecision{}, fmt.Errorf("read global monthly counter: %w", err)
	}
	if globalMonthly >= s.limits.GlobalMonthly {
		decision.Allowed = false
		decision.Reason = entity.QuotaReasonGlobalMonthly
		decision.ResetAt = nextMonthBoundary(now)
		return decision, nil
	}

	return decision, nil
}

// Record charges one analysis against all three counters. Called only
// after a non-cached analysis actually ran.
func (s *Service) Record(ctx context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	day := dayBucket(now)
	month := monthBucket(now)

	if err := s.repo.Increment(ctx, ScopeIdentity, day, identity); err != nil {
		return fmt.Errorf("increment identity counter: %w", err)
	}
	if err := s.repo.Increment(ctx, ScopeGlobalDaily, day, ""); err != nil {
		return fmt.Errorf("increment global daily counter: %w", err)
	}
	if err := s.repo.Increment(ctx, ScopeGlobalMonthly, month, ""); err != nil {
		return fmt.Errorf("increment global monthly counter: %w", err)
	}
	return nil
}

// Usage returns a snapshot of the counters for the stats endpoint.
func (s *Service) Usage(ctx context.Context, identity string) (entity.QuotaUsage, error) {
	now := s.now()
	day := dayBucket(now)
	month := monthBucket(now)

	identityCount, err := s.repo.Count(ctx, ScopeIdentity, day, identity)
	if err != nil {
		return entity.QuotaUsage{}, err
	}
	globalDaily, err := s.repo.Count(ctx, ScopeGlobalDaily, day, "")
	if err != nil {
		return entity.QuotaUsage{}, err
	}
	globalMonthly, err := s.repo.Count(ctx, ScopeGlobalMonthly, month, "")
	if err != nil {
		return entity.QuotaUsage{}, err
	}

	return entity.QuotaUsage{
		IdentityToday:  identityCount,
		IdentityLimit:  s.limits.PerIdentityDaily,
		GlobalToday:    globalDaily,
		GlobalMonth:    globalMonthly,
		GlobalDailyMax: s.limits.GlobalDaily,
		GlobalMonthMax: s.limits.GlobalMonthly,
	}, nil
}

// Cleanup drops counter rows older than a week. Monthly buckets are
// month-keyed and unaffected by the day cutoff.
func (s *Service) Cleanup(ctx context.Context) {
	cutoff := dayBucket(s.now().AddDate(0, 0, -7))
	if err := s.repo.Cleanup(ctx, cutoff); err != nil {
		s.logger.Warn("quota cleanup failed", "error", err)
	}
}
