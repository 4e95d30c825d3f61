package insight

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"tokokasir/backend/internal/cache"
	"tokokasir/backend/internal/domain"
	"tokokasir/backend/internal/ledger"
)

var ErrUnknownPeriod = errors.New("unknown rollup period")

const cachePrefix = "insight:"

// Service computes sales reports from the ledger. Reports are cached
// for a short TTL and invalidated whenever a sale lands, so the cache
// only ever spares recomputation, never correctness.
type Service struct {
	storeID string
	ledger  *ledger.Ledger
	cache   cache.ReportCache
	ttl     time.Duration
	logger  *log.Logger
}

func NewService(storeID string, led *ledger.Ledger, reportCache cache.ReportCache, ttl time.Duration, logger *log.Logger) *Service {
	if reportCache == nil {
		reportCache = cache.NoopReportCache{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Service{storeID: storeID, ledger: led, cache: reportCache, ttl: ttl, logger: logger}
}

// OnSaleConfirmed drops cached reports so the next read recomputes.
func (s *Service) OnSaleConfirmed(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, cachePrefix); err != nil {
		s.logger.Printf("[insight] cache invalidate failed: %v", err)
	}
}

// DailySummary aggregates the sales of one calendar day (UTC).
func (s *Service) DailySummary(ctx context.Context, day time.Time) domain.SalesSummary {
	date := day.UTC().Format("2006-01-02")
	key := cachePrefix + "summary:" + date

	var cached domain.SalesSummary
	if s.fromCache(ctx, key, &cached) {
		return cached
	}

	summary := domain.SalesSummary{StoreID: s.storeID, Date: date}
	for _, rec := range s.ledger.All() {
		if rec.CreatedAt.UTC().Format("2006-01-02") != date {
			continue
		}
		summary.Transactions++
		summary.Revenue += rec.Total
		summary.Tax += rec.Tax
		for _, line := range rec.Lines {
			summary.ItemsSold += line.Quantity
		}
	}
	s.toCache(ctx, key, summary)
	return summary
}

// TopProducts ranks products by units sold in [from, to], ties broken
// by revenue.
func (s *Service) TopProducts(ctx context.Context, from, to time.Time, limit int) domain.TopProductsReport {
	if limit < 1 {
		limit = 5
	}
	key := fmt.Sprintf("%stop:%s:%s:%d", cachePrefix, from.UTC().Format("2006-01-02"), to.UTC().Format("2006-01-02"), limit)

	var cached domain.TopProductsReport
	if s.fromCache(ctx, key, &cached) {
		return cached
	}

	type agg struct {
		name    string
		sold    int
		revenue int64
	}
	byProduct := make(map[string]*agg)
	records := s.ledger.Query(func(rec domain.SaleRecord) bool {
		ts := rec.CreatedAt.UTC()
		return !ts.Before(from.UTC()) && !ts.After(to.UTC())
	})
	for _, rec := range records {
		for _, line := range rec.Lines {
			a, ok := byProduct[line.ProductID]
			if !ok {
				a = &agg{name: line.ProductName}
				byProduct[line.ProductID] = a
			}
			a.sold += line.Quantity
			a.revenue += line.UnitPrice * int64(line.Quantity)
		}
	}

	products := make([]domain.TopProduct, 0, len(byProduct))
	for id, a := range byProduct {
		products = append(products, domain.TopProduct{ProductID: id, Name: a.name, Sold: a.sold, Revenue: a.revenue})
	}
	sort.Slice(products, func(i, j int) bool {
		if products[i].Sold != products[j].Sold {
			return products[i].Sold > products[j].Sold
		}
		if products[i].Revenue != products[j].Revenue {
			return products[i].Revenue > products[j].Revenue
		}
		return products[i].ProductID < products[j].ProductID
	})
	if len(products) > limit {
		products = products[:limit]
	}

	report := domain.TopProductsReport{
		StoreID:  s.storeID,
		From:     from.UTC().Format("2006-01-02"),
		To:       to.UTC().Format("2006-01-02"),
		Products: products,
	}
	s.toCache(ctx, key, report)
	return report
}

// Rollup buckets every ledger record by day, week, month, or year.
// Buckets come back sorted by label, oldest first.
func (s *Service) Rollup(ctx context.Context, period string) (domain.SalesRollup, error) {
	var label func(time.Time) string
	switch period {
	case "day":
		label = func(ts time.Time) string { return ts.Format("2006-01-02") }
	case "week":
		label = func(ts time.Time) string {
			year, week := ts.ISOWeek()
			return fmt.Sprintf("%d-W%02d", year, week)
		}
	case "month":
		label = func(ts time.Time) string { return ts.Format("2006-01") }
	case "year":
		label = func(ts time.Time) string { return ts.Format("2006") }
	default:
		return domain.SalesRollup{}, fmt.Errorf("%w: %q", ErrUnknownPeriod, period)
	}

	key := cachePrefix + "rollup:" + period
	var cached domain.SalesRollup
	if s.fromCache(ctx, key, &cached) {
		return cached, nil
	}

	byLabel := make(map[string]*domain.PeriodBucket)
	for _, rec := range s.ledger.All() {
		lbl := label(rec.CreatedAt.UTC())
		bucket, ok := byLabel[lbl]
		if !ok {
			bucket = &domain.PeriodBucket{Label: lbl}
			byLabel[lbl] = bucket
		}
		bucket.Transactions++
		bucket.Revenue += rec.Total
	}

	labels := make([]string, 0, len(byLabel))
	for lbl := range byLabel {
		labels = append(labels, lbl)
	}
	sort.Strings(labels)

	rollup := domain.SalesRollup{StoreID: s.storeID, Period: period, Buckets: make([]domain.PeriodBucket, 0, len(labels))}
	for _, lbl := range labels {
		rollup.Buckets = append(rollup.Buckets, *byLabel[lbl])
	}
	s.toCache(ctx, key, rollup)
	return rollup, nil
}

func (s *Service) fromCache(ctx context.Context, key string, dst any) bool {
	payload, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Printf("[insight] cache get %s failed: %v", key, err)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(payload, dst); err != nil {
		s.logger.Printf("[insight] cache payload for %s is corrupt: %v", key, err)
		return false
	}
	return true
}

func (s *Service) toCache(ctx context.Context, key string, value any) {
	payload, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, payload, s.ttl); err != nil {
		s.logger.Printf("[insight] cache set %s failed: %v", key, err)
	}
}
