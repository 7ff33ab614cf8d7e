package prayer

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"prayerhub/internal/clock"
)

// Fetcher is the API surface the service needs; *Client satisfies it.
type Fetcher interface {
	GetDate(madhab, city string, day time.Time) (DayPlan, error)
	GetRange(madhab, city string, start, end time.Time) ([]DayPlan, error)
}

// Cache is the durable key-value surface the service needs.
type Cache interface {
	Read(key string, out any) bool
	Write(key string, v any) error
	ListKeys(prefix string) []string
}

const cacheKeyPrefix = "day_"

// Service turns API responses and cached records into validated day plans.
// Reads never touch the network; Prefetch is the only fetching path.
type Service struct {
	fetcher Fetcher
	cache   Cache
	city    string
	madhab  string
	coords  *Coords
	clk     clock.Clock
	logger  *zap.Logger
}

// NewService creates a Service. coords may be nil to disable astronomical
// sunrise derivation.
func NewService(fetcher Fetcher, cache Cache, city, madhab string, coords *Coords, clk clock.Clock, logger *zap.Logger) *Service {
	return &Service{
		fetcher: fetcher,
		cache:   cache,
		city:    city,
		madhab:  madhab,
		coords:  coords,
		clk:     clk,
		logger:  logger,
	}
}

// Prefetch fetches plans for [today, today+days-1], derives missing fields
// and persists the result. When nothing at all could be fetched the cache is
// left untouched, so previously cached days stay authoritative.
func (s *Service) Prefetch(days int) {
	now := s.clk.Now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)
	end := start.AddDate(0, 0, days-1)

	plans, err := s.fetcher.GetRange(s.madhab, s.city, start, end)
	if err != nil {
		// Range queries are an optimization; per-date fetches still work.
		s.logger.Warn("Range prefetch failed", zap.Error(err))
	}
	if len(plans) == 0 {
		plans = s.fetchPerDate(start, days)
	}
	if len(plans) == 0 {
		s.logger.Warn("No prayer times fetched; using cache only")
		return
	}

	sort.Slice(plans, func(i, j int) bool { return plans[i].Date.Before(plans[j].Date) })

	for _, plan := range DeriveExtras(plans, s.coords) {
		if err := s.cache.Write(CacheKey(plan.Date), plan.ToRecord()); err != nil {
			s.logger.Error("Failed to cache day plan",
				zap.String("date", plan.Date.Format("2006-01-02")), zap.Error(err))
		}
	}
}

// GetDay returns the cached plan for a date, if any. It never fetches.
func (s *Service) GetDay(day time.Time) (DayPlan, bool) {
	var rec Record
	if !s.cache.Read(CacheKey(day), &rec) {
		return DayPlan{}, false
	}
	plan, err := PlanFromRecord(rec)
	if err != nil {
		s.logger.Warn("Cached day plan is unusable",
			zap.String("date", day.Format("2006-01-02")), zap.Error(err))
		return DayPlan{}, false
	}
	return plan, true
}

// CachedPlans returns every cached day plan, date-sorted. This is the
// offline boot path: scheduling starts from here before any network call.
func (s *Service) CachedPlans() []DayPlan {
	var plans []DayPlan
	for _, key := range s.cache.ListKeys(cacheKeyPrefix) {
		var rec Record
		if !s.cache.Read(key, &rec) {
			continue
		}
		plan, err := PlanFromRecord(rec)
		if err != nil {
			s.logger.Warn("Skipping unusable cached plan", zap.String("key", key), zap.Error(err))
			continue
		}
		plans = append(plans, plan)
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].Date.Before(plans[j].Date) })
	return plans
}

func (s *Service) fetchPerDate(start time.Time, days int) []DayPlan {
	var plans []DayPlan
	for offset := 0; offset < days; offset++ {
		current := start.AddDate(0, 0, offset)
		plan, err := s.fetcher.GetDate(s.madhab, s.city, current)
		if err != nil {
			// One missing date must not stop the rest of the window.
			s.logger.Warn("Date fetch failed",
				zap.String("date", current.Format("2006-01-02")), zap.Error(err))
			continue
		}
		plans = append(plans, plan)
	}
	return plans
}

// CacheKey is the stable cache key for a calendar date.
func CacheKey(day time.Time) string {
	return cacheKeyPrefix + day.Format("2006-01-02")
}
