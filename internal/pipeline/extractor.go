package pipeline

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/CerberoGS/CATAI-sub000/internal/ai"
	"github.com/CerberoGS/CATAI-sub000/internal/model"
)

func (d *Driver) extract(ctx context.Context, p *pass, run *ai.RemoteRun) (*Result, error) {
	answer, seen, err := d.readAnswer(ctx, p, run.ID)
	if err != nil {
		return d.handleStepError(ctx, p, StageExtract, err)
	}
	if answer == "" {
		diag := d.diagnose(ctx, p, run.ID, seen)
		return d.finishUnresolved(ctx, p, diag)
	}
	return d.finishCompleted(ctx, p, run, answer)
}

// readAnswer lists the thread newest-first, retrying with exponential backoff
// because a completed run's message may not be listed yet. It returns the
// answer text and how many messages the thread held.
func (d *Driver) readAnswer(ctx context.Context, p *pass, runID string) (string, int, error) {
	var (
		lastErr error
		seen    int
	)
	for attempt := 0; attempt < d.cfg.MessageAttempts; attempt++ {
		if attempt > 0 {
			if err := d.sleep(ctx, d.cfg.MessageBackoff*time.Duration(1<<(attempt-1))); err != nil {
				return "", 0, err
			}
		}
		msgs, err := p.client.ListMessages(ctx, p.doc.ThreadRef, defaultMessageListLimit)
		if err != nil {
			if ai.KindOf(err) != ai.KindTransient {
				return "", 0, err
			}
			lastErr = err
			p.logger.Warn("list messages failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		lastErr = nil
		seen = len(msgs)
		if text := latestAnswer(msgs, runID); text != "" {
			return text, seen, nil
		}
	}
	if lastErr != nil {
		return "", 0, lastErr
	}
	return "", seen, nil
}

// latestAnswer returns the newest assistant text produced by runID. Messages
// without a run id are accepted.
func latestAnswer(msgs []ai.Message, runID string) string {
	sorted := append([]ai.Message(nil), msgs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt > sorted[j].CreatedAt
	})
	for _, m := range sorted {
		if m.Role != ai.RoleAssistant {
			continue
		}
		if m.RunID != "" && m.RunID != runID {
			continue
		}
		if text := strings.TrimSpace(m.Text); text != "" {
			return text
		}
	}
	return ""
}

func (d *Driver) finishCompleted(ctx context.Context, p *pass, run *ai.RemoteRun, answer string) (*Result, error) {
	doc := p.doc
	modelName := run.Model
	if modelName == "" {
		modelName = d.cfg.Model
	}
	now := d.now().Unix()
	entry := NewResultEntry(doc, answer, d.cfg.MaxAnswerBytes)
	entry.ID = d.deps.NewID()
	entry.Source = "assistant"
	entry.IndexRef = p.view.IndexRef
	entry.AssistantRef = p.view.AssistantRef
	entry.ThreadRef = doc.ThreadRef
	entry.RunRef = run.ID
	entry.Model = modelName
	entry.Ctime = now
	entry.Mtime = now
	id, err := d.deps.Results.Upsert(ctx, entry)
	if err != nil {
		return nil, err
	}
	doc.Status = model.DocumentStatusCompleted
	doc.Attempts = 0
	doc.LastError = ""
	doc.Diagnosis = ""
	doc.ResultID = id
	if err := d.save(ctx, p); err != nil {
		return nil, err
	}
	p.logger.Info("extraction completed", zap.String("run_ref", run.ID), zap.String("result_id", id))
	return &Result{
		DocumentID: doc.ID,
		Status:     StatusCompleted,
		Answer:     entry.Content,
		ResultID:   id,
		RunRef:     run.ID,
		Resumed:    p.resumed,
	}, nil
}

func (d *Driver) finishUnresolved(ctx context.Context, p *pass, diag *Diagnosis) (*Result, error) {
	doc := p.doc
	raw, err := json.Marshal(diag)
	if err != nil {
		return nil, err
	}
	doc.Attempts++
	doc.Status = model.DocumentStatusUnresolved
	doc.LastError = diag.Explanation
	doc.Diagnosis = string(raw)
	if diag.Cause == CauseEmptyConversation {
		doc.ThreadRef = ""
		doc.RunRef = ""
	}
	if err := d.save(ctx, p); err != nil {
		return nil, err
	}
	p.logger.Warn("run completed without an answer",
		zap.String("run_ref", diag.RunRef),
		zap.String("cause", diag.Cause),
		zap.String("action", diag.Action),
		zap.Int("attempts", doc.Attempts),
	)
	return &Result{
		DocumentID: doc.ID,
		Status:     StatusUnresolved,
		RunRef:     diag.RunRef,
		Reason:     diag.Explanation,
		Diagnosis:  diag,
		Resumed:    p.resumed,
	}, nil
}
