package pipeline

import (
	"context"
	"io"

	"github.com/CerberoGS/CATAI-sub000/internal/ai"
	"github.com/CerberoGS/CATAI-sub000/internal/model"
)

type Status string

const (
	StatusCompleted  Status = "completed"
	StatusUnresolved Status = "unresolved"
	StatusPending    Status = "pending"
	StatusFailed     Status = "failed"
)

const (
	CauseEmptyConversation    = "empty_conversation"
	CauseToolCallWithoutReply = "tool_call_without_answer"
	CauseUnknown              = "unknown"

	ActionRetry                = "retry"
	ActionSimplifyInstructions = "simplify_instructions"
	ActionRecreateAssistant    = "recreate_assistant"
	ActionNeedsOCR             = "needs_ocr"
)

// Result is the caller-visible outcome of one EnsureExtraction call.
type Result struct {
	DocumentID string     `json:"document_id"`
	Status     Status     `json:"status"`
	Answer     string     `json:"answer,omitempty"`
	ResultID   string     `json:"result_id,omitempty"`
	RunRef     string     `json:"run_ref,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	Diagnosis  *Diagnosis `json:"diagnosis,omitempty"`
	Resumed    bool       `json:"resumed"`
}

type Diagnosis struct {
	Cause              string `json:"cause"`
	Explanation        string `json:"explanation"`
	Action             string `json:"suggested_action"`
	RunRef             string `json:"run_ref"`
	MessageCount       int    `json:"message_count"`
	StepCount          int    `json:"step_count"`
	ToolCalls          int    `json:"tool_calls"`
	HasMessageCreation bool   `json:"has_message_creation"`
}

type Options struct {
	// Force ignores a cached completed result.
	Force bool
	// Prompt overrides the configured thread prompt.
	Prompt string
}

type DocumentStore interface {
	GetDocument(ctx context.Context, docID string) (*model.Document, error)
	UpdateDocument(ctx context.Context, doc *model.Document) error
}

type IndexStore interface {
	GetIndexRecord(ctx context.Context, userID string) (*model.IndexRecord, error)
	EnsureIndexRecord(ctx context.Context, userID string) (*model.IndexRecord, error)
	ClaimIndexRef(ctx context.Context, userID, expected, indexRef string) (bool, error)
	ClaimAssistantRef(ctx context.Context, userID, indexRef, expected, assistantRef, assistantModel string) (bool, error)
	InvalidateIndex(ctx context.Context, userID, indexRef string) error
	InvalidateAssistant(ctx context.Context, userID, assistantRef string) error
	AddDocumentCount(ctx context.Context, userID string, delta int) error
}

type ResultStore interface {
	Upsert(ctx context.Context, entry *model.KnowledgeEntry) (string, error)
	GetByDocument(ctx context.Context, userID, documentID string) (*model.KnowledgeEntry, error)
}

type UsageRecorder interface {
	Create(ctx context.Context, ev *model.UsageEvent) error
}

// Source opens the stored bytes of a document for upload.
type Source interface {
	Open(ctx context.Context, doc *model.Document) (io.ReadCloser, error)
}

// ClientResolver returns the assistant client to use for a user.
type ClientResolver interface {
	ClientFor(ctx context.Context, userID string) (ai.IAssistantClient, error)
}

type ClientResolverFunc func(ctx context.Context, userID string) (ai.IAssistantClient, error)

func (f ClientResolverFunc) ClientFor(ctx context.Context, userID string) (ai.IAssistantClient, error) {
	return f(ctx, userID)
}
