package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/CerberoGS/CATAI-sub000/internal/model"
	"github.com/CerberoGS/CATAI-sub000/internal/pipeline"
)

type staleLister interface {
	ListStale(ctx context.Context, status string, before int64, limit uint) ([]model.Document, error)
}

type resumer interface {
	Resume(ctx context.Context, doc *model.Document) (*pipeline.Result, error)
}

// ExtractionResumeJob picks up runs a request gave up polling on.
type ExtractionResumeJob struct {
	docs        staleLister
	extraction  resumer
	delay       time.Duration
	batch       uint
	concurrency int
	now         func() time.Time
}

func NewExtractionResumeJob(docs staleLister, extraction resumer, delay time.Duration, batch uint, concurrency int) *ExtractionResumeJob {
	if batch == 0 {
		batch = 20
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &ExtractionResumeJob{
		docs:        docs,
		extraction:  extraction,
		delay:       delay,
		batch:       batch,
		concurrency: concurrency,
		now:         time.Now,
	}
}

func (j *ExtractionResumeJob) Name() string {
	return "extraction_resume"
}

func (j *ExtractionResumeJob) Timeout() time.Duration {
	return 10 * time.Minute
}

func (j *ExtractionResumeJob) Run(ctx context.Context) error {
	before := j.now().Add(-j.delay).Unix()
	docs, err := j.docs.ListStale(ctx, model.DocumentStatusInProgress, before, j.batch)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}
	logger := logutil.GetLogger(ctx)
	logger.Info("resuming stale extractions", zap.Int("count", len(docs)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.concurrency)
	for i := range docs {
		doc := &docs[i]
		g.Go(func() error {
			res, err := j.extraction.Resume(gctx, doc)
			if err != nil {
				logger.Warn("resume extraction failed",
					zap.String("document_id", doc.ID),
					zap.String("user_id", doc.UserID),
					zap.Error(err),
				)
				return nil
			}
			logger.Info("extraction resumed",
				zap.String("document_id", doc.ID),
				zap.String("status", string(res.Status)),
			)
			return nil
		})
	}
	return g.Wait()
}
