package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/CerberoGS/CATAI-sub000/internal/ai"
	"github.com/CerberoGS/CATAI-sub000/internal/model"
)

type usageNote struct {
	kind      string
	requestID string
	model     string
	tokens    ai.TokenUsage
	err       error
}

// track records one remote call. Recording failures are only logged.
func (d *Driver) track(ctx context.Context, p *pass, start time.Time, n usageNote) {
	if d.deps.Usage == nil {
		return
	}
	ev := &model.UsageEvent{
		ID:           d.deps.NewID(),
		UserID:       p.doc.UserID,
		DocumentID:   p.doc.ID,
		Provider:     p.client.Name(),
		Model:        n.model,
		RequestKind:  n.kind,
		RequestID:    n.requestID,
		LatencyMs:    d.now().Sub(start).Milliseconds(),
		InputTokens:  n.tokens.InputTokens,
		OutputTokens: n.tokens.OutputTokens,
		Status:       model.UsageStatusOK,
		Ctime:        d.now().Unix(),
	}
	if n.err != nil {
		ev.Status = model.UsageStatusError
		ev.ErrorMessage = n.err.Error()
	}
	if err := d.deps.Usage.Create(ctx, ev); err != nil {
		p.logger.Warn("record usage event failed", zap.String("request_kind", n.kind), zap.Error(err))
	}
}

func (d *Driver) trackRun(ctx context.Context, p *pass, run *ai.RemoteRun) {
	modelName := run.Model
	if modelName == "" {
		modelName = d.cfg.Model
	}
	var err error
	if run.Status != ai.RunCompleted {
		err = &ai.Error{Op: "run", Kind: ai.KindRejected, Message: runFailureReason(run)}
	}
	d.track(ctx, p, d.now(), usageNote{
		kind:      "run_outcome",
		requestID: run.ID,
		model:     modelName,
		tokens:    run.Usage,
		err:       err,
	})
}
