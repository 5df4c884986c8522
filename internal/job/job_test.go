package job

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/CerberoGS/CATAI-sub000/internal/model"
	"github.com/CerberoGS/CATAI-sub000/internal/pipeline"
)

type fakeLister struct {
	status string
	before int64
	limit  uint
	docs   []model.Document
}

func (f *fakeLister) ListStale(ctx context.Context, status string, before int64, limit uint) ([]model.Document, error) {
	f.status, f.before, f.limit = status, before, limit
	return f.docs, nil
}

type fakeResumer struct {
	mu   sync.Mutex
	seen []string
}

func (f *fakeResumer) Resume(ctx context.Context, doc *model.Document) (*pipeline.Result, error) {
	f.mu.Lock()
	f.seen = append(f.seen, doc.ID)
	f.mu.Unlock()
	if doc.ID == "bad" {
		return nil, errors.New("transport down")
	}
	return &pipeline.Result{DocumentID: doc.ID, Status: pipeline.StatusCompleted}, nil
}

func TestExtractionResumeJob(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	lister := &fakeLister{docs: []model.Document{{ID: "a"}, {ID: "bad"}, {ID: "c"}}}
	resumer := &fakeResumer{}
	j := NewExtractionResumeJob(lister, resumer, 2*time.Minute, 0, 2)
	j.now = func() time.Time { return now }

	require.NoError(t, j.Run(context.Background()))
	require.Equal(t, model.DocumentStatusInProgress, lister.status)
	require.Equal(t, now.Add(-2*time.Minute).Unix(), lister.before)
	require.Equal(t, uint(20), lister.limit)
	require.ElementsMatch(t, []string{"a", "bad", "c"}, resumer.seen)
}

type fakeCleaner struct {
	keep time.Duration
	err  error
}

func (f *fakeCleaner) Cleanup(ctx context.Context, keep time.Duration) (int64, error) {
	f.keep = keep
	return 3, f.err
}

func TestUsageCleanupJob(t *testing.T) {
	cleaner := &fakeCleaner{}
	require.NoError(t, NewUsageCleanupJob(cleaner, 0).Run(context.Background()))
	require.Equal(t, 90*24*time.Hour, cleaner.keep)

	cleaner.err = errors.New("db gone")
	require.Error(t, NewUsageCleanupJob(cleaner, time.Hour).Run(context.Background()))
}
