package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type usageCleaner interface {
	Cleanup(ctx context.Context, keep time.Duration) (int64, error)
}

type UsageCleanupJob struct {
	usage usageCleaner
	keep  time.Duration
}

func NewUsageCleanupJob(usage usageCleaner, keep time.Duration) *UsageCleanupJob {
	return &UsageCleanupJob{usage: usage, keep: keep}
}

func (j *UsageCleanupJob) Name() string {
	return "usage_cleanup"
}

func (j *UsageCleanupJob) Run(ctx context.Context) error {
	keep := j.keep
	if keep <= 0 {
		keep = 90 * 24 * time.Hour
	}
	removed, err := j.usage.Cleanup(ctx, keep)
	if err != nil {
		return err
	}
	if removed > 0 {
		logutil.GetLogger(ctx).Info("usage events removed", zap.Int64("count", removed))
	}
	return nil
}
