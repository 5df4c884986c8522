package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/CerberoGS/CATAI-sub000/internal/ai"
	"github.com/CerberoGS/CATAI-sub000/internal/model"
)

func (d *Driver) execute(ctx context.Context, p *pass) (*Result, error) {
	run, err := d.selectRun(ctx, p)
	if err != nil {
		return d.handleStepError(ctx, p, StageRun, err)
	}
	run, timedOut, err := d.awaitRun(ctx, p, run)
	if err != nil {
		return d.handleStepError(ctx, p, StageRun, err)
	}
	return d.settleRun(ctx, p, run, timedOut)
}

// selectRun resumes the document's run when it is still useful and creates
// a new one otherwise. A thread never gets a second concurrent run.
func (d *Driver) selectRun(ctx context.Context, p *pass) (*ai.RemoteRun, error) {
	doc := p.doc
	if doc.RunRef != "" {
		run, err := p.client.GetRun(ctx, doc.ThreadRef, doc.RunRef)
		switch {
		case err != nil && !ai.IsNotFound(err):
			return nil, err
		case err != nil:
			p.logger.Info("run reference not found, starting a new run", zap.String("run_ref", doc.RunRef))
			doc.RunRef = ""
		case run.Status.Active():
			p.resumed = true
			p.logger.Info("resuming active run", zap.String("run_ref", run.ID), zap.String("run_status", string(run.Status)))
			return d.beginRun(ctx, p, run)
		case doc.Status == model.DocumentStatusInProgress:
			// a previous call stopped polling before this run finished
			p.resumed = true
			return run, nil
		}
	}
	if active, err := d.findActiveRun(ctx, p); err != nil || active != nil {
		return active, err
	}
	return d.createRun(ctx, p)
}

func (d *Driver) findActiveRun(ctx context.Context, p *pass) (*ai.RemoteRun, error) {
	runs, err := p.client.ListRuns(ctx, p.doc.ThreadRef, defaultRunListLimit)
	if err != nil {
		return nil, err
	}
	for i := range runs {
		if runs[i].Status.Active() {
			p.resumed = true
			p.logger.Info("found active run on thread", zap.String("run_ref", runs[i].ID))
			return d.beginRun(ctx, p, &runs[i])
		}
	}
	return nil, nil
}

func (d *Driver) createRun(ctx context.Context, p *pass) (*ai.RemoteRun, error) {
	doc := p.doc
	if !p.freshThread {
		if err := d.postPrompt(ctx, p); err != nil {
			if ai.IsConflict(err) {
				return d.joinActiveRun(ctx, p, err)
			}
			return nil, err
		}
	}
	start := d.now()
	run, err := p.client.CreateRun(ctx, doc.ThreadRef, p.view.AssistantRef, d.runInstructions(doc))
	d.track(ctx, p, start, usageNote{kind: "create_run", requestID: refOf(run), model: d.cfg.Model, err: err})
	if ai.IsConflict(err) {
		return d.joinActiveRun(ctx, p, err)
	}
	if err != nil {
		return nil, err
	}
	p.logger.Info("run created", zap.String("run_ref", run.ID), zap.String("assistant_ref", p.view.AssistantRef))
	return d.beginRun(ctx, p, run)
}

// postPrompt repeats the current prompt on a reused thread so the new run
// answers it rather than the prompt the thread was created with.
func (d *Driver) postPrompt(ctx context.Context, p *pass) error {
	start := d.now()
	msg, err := p.client.AddMessage(ctx, p.doc.ThreadRef, p.prompt)
	requestID := ""
	if msg != nil {
		requestID = msg.ID
	}
	d.track(ctx, p, start, usageNote{kind: "add_message", requestID: requestID, err: err})
	return err
}

// joinActiveRun resumes the run another caller started on the thread.
func (d *Driver) joinActiveRun(ctx context.Context, p *pass, cause error) (*ai.RemoteRun, error) {
	p.logger.Info("thread already has an active run, resuming it", zap.String("thread_ref", p.doc.ThreadRef))
	active, err := d.findActiveRun(ctx, p)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return active, nil
	}
	return nil, &Error{Kind: KindConcurrency, Stage: StageRun, Err: cause}
}

func (d *Driver) beginRun(ctx context.Context, p *pass, run *ai.RemoteRun) (*ai.RemoteRun, error) {
	p.doc.RunRef = run.ID
	p.doc.Status = model.DocumentStatusInProgress
	p.doc.LastError = ""
	if err := d.save(ctx, p); err != nil {
		return nil, err
	}
	return run, nil
}

// awaitRun polls with growing delays until the run leaves the active states
// or the attempt ceiling is reached.
func (d *Driver) awaitRun(ctx context.Context, p *pass, run *ai.RemoteRun) (*ai.RemoteRun, bool, error) {
	delay := d.cfg.RunPollInitial
	for polls := 0; run.Status.Active(); polls++ {
		if polls >= d.cfg.RunPollAttempts {
			return run, true, nil
		}
		if err := d.sleep(ctx, delay); err != nil {
			return nil, false, err
		}
		delay = d.cfg.nextDelay(delay)
		next, err := p.client.GetRun(ctx, p.doc.ThreadRef, run.ID)
		if err != nil {
			if ai.KindOf(err) == ai.KindTransient {
				p.logger.Warn("poll run failed", zap.String("run_ref", run.ID), zap.Int("poll", polls), zap.Error(err))
				continue
			}
			if ai.IsNotFound(err) {
				p.doc.RunRef = ""
				if saveErr := d.save(ctx, p); saveErr != nil {
					return nil, false, saveErr
				}
			}
			return nil, false, err
		}
		run = next
	}
	return run, false, nil
}

func runFailureReason(run *ai.RemoteRun) string {
	if run.LastError != "" {
		return fmt.Sprintf("run %s: %s", run.Status, run.LastError)
	}
	return fmt.Sprintf("run %s", run.Status)
}

func (d *Driver) settleRun(ctx context.Context, p *pass, run *ai.RemoteRun, timedOut bool) (*Result, error) {
	doc := p.doc
	if timedOut {
		p.logger.Info("run still active after poll ceiling", zap.String("run_ref", run.ID), zap.String("run_status", string(run.Status)))
		return &Result{
			DocumentID: doc.ID,
			Status:     StatusPending,
			RunRef:     run.ID,
			Reason:     fmt.Sprintf("run is still %s, retry later", run.Status),
			Resumed:    p.resumed,
		}, nil
	}
	d.trackRun(ctx, p, run)
	switch run.Status {
	case ai.RunCompleted:
		return d.extract(ctx, p, run)
	case ai.RunExpired:
		reason := runFailureReason(run)
		p.logger.Info("run expired", zap.String("run_ref", run.ID))
		doc.RunRef = ""
		doc.Status = model.DocumentStatusPending
		doc.LastError = reason
		if err := d.save(ctx, p); err != nil {
			return nil, err
		}
		return &Result{
			DocumentID: doc.ID,
			Status:     StatusPending,
			Reason:     reason + ", retry later",
			Resumed:    p.resumed,
		}, nil
	default:
		return d.finishFailed(ctx, p, runFailureReason(run))
	}
}
