package service

import (
	"context"
	"time"

	"github.com/CerberoGS/CATAI-sub000/internal/model"
	"github.com/CerberoGS/CATAI-sub000/internal/repo"
)

const usageWindow = 30 * 24 * time.Hour

type UsageSummary struct {
	Events []model.UsageEvent `json:"events"`
	Totals *model.UsageTotals `json:"totals"`
	Since  int64              `json:"since"`
}

type UsageService struct {
	usage *repo.UsageRepo
}

func NewUsageService(usage *repo.UsageRepo) *UsageService {
	return &UsageService{usage: usage}
}

// Recent lists the latest events and the token totals of the last 30 days.
func (s *UsageService) Recent(ctx context.Context, userID string, limit uint) (*UsageSummary, error) {
	events, err := s.usage.List(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	since := time.Now().Add(-usageWindow).Unix()
	totals, err := s.usage.Totals(ctx, userID, since)
	if err != nil {
		return nil, err
	}
	return &UsageSummary{Events: events, Totals: totals, Since: since}, nil
}

// Cleanup removes events older than keep.
func (s *UsageService) Cleanup(ctx context.Context, keep time.Duration) (int64, error) {
	return s.usage.DeleteBefore(ctx, time.Now().Add(-keep).Unix())
}
