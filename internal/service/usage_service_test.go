package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/CerberoGS/CATAI-sub000/internal/model"
)

func TestUsageRecentAndCleanup(t *testing.T) {
	env := newTestEnv(t)
	svc := NewUsageService(env.usage)
	ctx := context.Background()
	now := time.Now()

	for i, age := range []time.Duration{time.Hour, 40 * 24 * time.Hour, 100 * 24 * time.Hour} {
		require.NoError(t, env.usage.Create(ctx, &model.UsageEvent{
			ID:           NewID(),
			UserID:       "u1",
			RequestKind:  "create_run",
			InputTokens:  int64(10 * (i + 1)),
			OutputTokens: 1,
			Status:       model.UsageStatusOK,
			Ctime:        now.Add(-age).Unix(),
		}))
	}

	summary, err := svc.Recent(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, summary.Events, 3)
	require.Equal(t, int64(1), summary.Totals.Events)
	require.Equal(t, int64(10), summary.Totals.InputTokens)

	removed, err := svc.Cleanup(ctx, 90*24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)
}
