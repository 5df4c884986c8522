package ai

import "io"

type RunStatus string

const (
	RunQueued         RunStatus = "queued"
	RunInProgress     RunStatus = "in_progress"
	RunRequiresAction RunStatus = "requires_action"
	RunCancelling     RunStatus = "cancelling"
	RunCompleted      RunStatus = "completed"
	RunFailed         RunStatus = "failed"
	RunCancelled      RunStatus = "cancelled"
	RunExpired        RunStatus = "expired"
	RunIncomplete     RunStatus = "incomplete"
)

// Active reports whether the run can still make progress on its own.
func (s RunStatus) Active() bool {
	switch s {
	case RunQueued, RunInProgress, RunCancelling:
		return true
	}
	return false
}

type AttachmentStatus string

const (
	AttachmentInProgress AttachmentStatus = "in_progress"
	AttachmentCompleted  AttachmentStatus = "completed"
	AttachmentFailed     AttachmentStatus = "failed"
	AttachmentCancelled  AttachmentStatus = "cancelled"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	StepMessageCreation = "message_creation"
	StepToolCalls       = "tool_calls"
)

type UploadInput struct {
	Filename    string
	ContentType string
	Size        int64
	Reader      io.Reader
}

type RemoteFile struct {
	ID       string
	Filename string
	Purpose  string
	Status   string
	Bytes    int64
}

type RemoteIndex struct {
	ID     string
	Name   string
	Status string
}

type Attachment struct {
	IndexID   string
	FileID    string
	Status    AttachmentStatus
	LastError string
}

type AssistantSpec struct {
	Name         string
	Model        string
	Instructions string
	IndexID      string
}

type RemoteAssistant struct {
	ID       string
	Model    string
	IndexIDs []string
}

type RemoteThread struct {
	ID string
}

type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64
}

type RemoteRun struct {
	ID          string
	ThreadID    string
	AssistantID string
	Model       string
	Status      RunStatus
	LastError   string
	Usage       TokenUsage
}

type Message struct {
	ID        string
	Role      string
	RunID     string
	Text      string
	CreatedAt int64
}

type RunStep struct {
	ID        string
	Type      string
	Status    string
	ToolCalls []string
}

type DocumentInput struct {
	Filename string
	MimeType string
	Data     []byte
	Prompt   string
}

type ReadResult struct {
	Text     string
	Provider string
	Model    string
	Usage    TokenUsage
}
