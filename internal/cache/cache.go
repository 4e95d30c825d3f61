package cache

import (
	"context"
	"time"
)

// ReportCache holds rendered insight reports keyed by report name and
// period. Values are opaque JSON payloads so one cache serves every
// report shape.
type ReportCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, prefix string) error
}

type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, _ string) ([]byte, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error {
	return nil
}

func (NoopReportCache) Invalidate(_ context.Context, _ string) error {
	return nil
}
