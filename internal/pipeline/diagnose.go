package pipeline

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/CerberoGS/CATAI-sub000/internal/ai"
	"github.com/CerberoGS/CATAI-sub000/internal/model"
)

var ErrNothingToAudit = errors.New("document has no run to audit")

func (d *Driver) diagnose(ctx context.Context, p *pass, runID string, messageCount int) *Diagnosis {
	diag := &Diagnosis{RunRef: runID, MessageCount: messageCount}
	steps, err := p.client.ListRunSteps(ctx, p.doc.ThreadRef, runID)
	if err != nil {
		p.logger.Warn("list run steps failed", zap.String("run_ref", runID), zap.Error(err))
	}
	classify(diag, steps, p.doc.MimeType)
	if err != nil {
		diag.Explanation += " Run steps could not be inspected."
	}
	return diag
}

// classify fills in cause, explanation and action from the run steps.
func classify(diag *Diagnosis, steps []ai.RunStep, mimeType string) {
	diag.StepCount = len(steps)
	for _, s := range steps {
		switch s.Type {
		case ai.StepMessageCreation:
			diag.HasMessageCreation = true
		case ai.StepToolCalls:
			if len(s.ToolCalls) == 0 {
				diag.ToolCalls++
			}
			diag.ToolCalls += len(s.ToolCalls)
		}
	}
	switch {
	case diag.MessageCount == 0:
		diag.Cause = CauseEmptyConversation
		diag.Explanation = "The thread has no messages, so the request reached the assistant without the document prompt."
		diag.Action = ActionRetry
	case diag.ToolCalls > 0 && !diag.HasMessageCreation:
		diag.Cause = CauseToolCallWithoutReply
		if scannable(mimeType) {
			diag.Explanation = "The assistant searched the document but wrote no answer. The file probably has no extractable text, such as a scanned PDF."
			diag.Action = ActionNeedsOCR
		} else {
			diag.Explanation = "The assistant searched a text document but wrote no answer. Its configuration may be broken."
			diag.Action = ActionRecreateAssistant
		}
	case diag.HasMessageCreation:
		diag.Cause = CauseUnknown
		diag.Explanation = "The assistant created a message without text content."
		diag.Action = ActionSimplifyInstructions
	default:
		diag.Cause = CauseUnknown
		diag.Explanation = "The run completed without producing an answer."
		diag.Action = ActionRetry
	}
}

func scannable(mimeType string) bool {
	mt := strings.ToLower(mimeType)
	return mt == "" || mt == "application/pdf" || strings.HasPrefix(mt, "image/")
}

// RunAudit is a read-only view of the document's last run.
type RunAudit struct {
	DocumentID        string         `json:"document_id"`
	ThreadRef         string         `json:"thread_ref"`
	RunRef            string         `json:"run_ref"`
	RunStatus         string         `json:"run_status"`
	RunError          string         `json:"run_error,omitempty"`
	MessageCount      int            `json:"message_count"`
	AssistantMessages int            `json:"assistant_messages"`
	StepTypes         map[string]int `json:"step_types"`
	HasAnswer         bool           `json:"has_answer"`
	Diagnosis         *Diagnosis     `json:"diagnosis,omitempty"`
}

// Audit inspects the last run of doc without changing any state.
func (d *Driver) Audit(ctx context.Context, doc *model.Document) (*RunAudit, error) {
	if doc.ThreadRef == "" || doc.RunRef == "" {
		return nil, ErrNothingToAudit
	}
	client, err := d.deps.Clients.ClientFor(ctx, doc.UserID)
	if err != nil {
		return nil, err
	}
	run, err := client.GetRun(ctx, doc.ThreadRef, doc.RunRef)
	if err != nil {
		return nil, stageError(StageRun, err)
	}
	msgs, err := client.ListMessages(ctx, doc.ThreadRef, defaultMessageListLimit)
	if err != nil {
		return nil, stageError(StageExtract, err)
	}
	steps, err := client.ListRunSteps(ctx, doc.ThreadRef, doc.RunRef)
	if err != nil {
		return nil, stageError(StageExtract, err)
	}
	audit := &RunAudit{
		DocumentID:   doc.ID,
		ThreadRef:    doc.ThreadRef,
		RunRef:       doc.RunRef,
		RunStatus:    string(run.Status),
		RunError:     run.LastError,
		MessageCount: len(msgs),
		StepTypes:    map[string]int{},
		HasAnswer:    latestAnswer(msgs, doc.RunRef) != "",
	}
	for _, m := range msgs {
		if m.Role == ai.RoleAssistant {
			audit.AssistantMessages++
		}
	}
	for _, s := range steps {
		audit.StepTypes[s.Type]++
	}
	if run.Status == ai.RunCompleted && !audit.HasAnswer {
		diag := &Diagnosis{RunRef: doc.RunRef, MessageCount: len(msgs)}
		classify(diag, steps, doc.MimeType)
		audit.Diagnosis = diag
	}
	return audit, nil
}
