package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/CerberoGS/CATAI-sub000/internal/ai"
	"github.com/CerberoGS/CATAI-sub000/internal/model"
)

// reconcile loads the user's index record and normalizes the document against
// it. The record is authoritative for index and assistant, the document for
// thread and run. Refs the document remembers from an older index or
// assistant are dropped, never adopted.
func (d *Driver) reconcile(ctx context.Context, p *pass) error {
	rec, err := d.deps.Indexes.EnsureIndexRecord(ctx, p.doc.UserID)
	if err != nil {
		return fmt.Errorf("load index record: %w", err)
	}
	v := view{IndexRef: rec.IndexRef, AssistantRef: rec.AssistantRef}
	if rec.Status != model.IndexStatusReady || v.IndexRef == "" {
		v = view{}
	}
	p.view = v

	doc := p.doc
	var dropped []zap.Field
	if doc.IndexRef != "" && doc.IndexRef != v.IndexRef {
		dropped = append(dropped, zap.String("stale_index_ref", doc.IndexRef))
		doc.IndexRef = ""
	}
	if doc.AssistantRef != v.AssistantRef {
		if doc.AssistantRef != "" {
			dropped = append(dropped, zap.String("stale_assistant_ref", doc.AssistantRef))
		}
		doc.AssistantRef = ""
		switch {
		case doc.RunRef == "":
		case d.runFinished(ctx, p):
			p.keepRun = true
			p.logger.Info("keeping completed run from replaced assistant", zap.String("run_ref", doc.RunRef))
		default:
			dropped = append(dropped, zap.String("stale_run_ref", doc.RunRef))
			doc.RunRef = ""
		}
	}
	if doc.ThreadRef == "" && doc.RunRef != "" {
		dropped = append(dropped, zap.String("orphan_run_ref", doc.RunRef))
		doc.RunRef = ""
	}
	if len(dropped) == 0 {
		return nil
	}
	p.logger.Info("document refs reconciled with index record", dropped...)
	return d.save(ctx, p)
}

// runFinished reports whether the document's in-flight run already completed.
// Its answer is still about this document even if the assistant is gone.
func (d *Driver) runFinished(ctx context.Context, p *pass) bool {
	doc := p.doc
	if doc.ThreadRef == "" || doc.Status != model.DocumentStatusInProgress {
		return false
	}
	run, err := p.client.GetRun(ctx, doc.ThreadRef, doc.RunRef)
	if err != nil {
		p.logger.Debug("check run of replaced assistant failed", zap.String("run_ref", doc.RunRef), zap.Error(err))
		return false
	}
	return run.Status == ai.RunCompleted
}
