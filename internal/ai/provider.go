package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// IAssistantClient is the remote capability the extraction pipeline drives.
// Every method returns *Error on failure.
type IAssistantClient interface {
	Name() string
	UploadFile(ctx context.Context, in UploadInput) (*RemoteFile, error)
	GetFile(ctx context.Context, fileID string) (*RemoteFile, error)
	CreateIndex(ctx context.Context, name string) (*RemoteIndex, error)
	GetIndex(ctx context.Context, indexID string) (*RemoteIndex, error)
	AttachFile(ctx context.Context, indexID, fileID string) (*Attachment, error)
	GetAttachment(ctx context.Context, indexID, fileID string) (*Attachment, error)
	CreateAssistant(ctx context.Context, spec AssistantSpec) (*RemoteAssistant, error)
	GetAssistant(ctx context.Context, assistantID string) (*RemoteAssistant, error)
	CreateThread(ctx context.Context, prompt string) (*RemoteThread, error)
	GetThread(ctx context.Context, threadID string) (*RemoteThread, error)
	AddMessage(ctx context.Context, threadID, text string) (*Message, error)
	CreateRun(ctx context.Context, threadID, assistantID, instructions string) (*RemoteRun, error)
	GetRun(ctx context.Context, threadID, runID string) (*RemoteRun, error)
	ListRuns(ctx context.Context, threadID string, limit int) ([]RemoteRun, error)
	ListMessages(ctx context.Context, threadID string, limit int) ([]Message, error)
	ListRunSteps(ctx context.Context, threadID, runID string) ([]RunStep, error)
}

// IDocumentReader extracts text from a document in a single request.
type IDocumentReader interface {
	Name() string
	Read(ctx context.Context, model string, in DocumentInput) (*ReadResult, error)
}

type AssistantFactory func(args interface{}) (IAssistantClient, error)

type ReaderFactory func(args interface{}) (IDocumentReader, error)

var (
	assistantRegistry = map[string]AssistantFactory{}
	readerRegistry    = map[string]ReaderFactory{}
)

func RegisterAssistant(name string, factory AssistantFactory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	assistantRegistry[key] = factory
}

func RegisterReader(name string, factory ReaderFactory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	readerRegistry[key] = factory
}

func NewAssistantClient(name string, args interface{}) (IAssistantClient, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, fmt.Errorf("ai.provider is required")
	}
	factory := assistantRegistry[key]
	if factory == nil {
		return nil, fmt.Errorf("unsupported assistant provider: %s", name)
	}
	return factory(args)
}

func NewReader(name string, args interface{}) (IDocumentReader, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, fmt.Errorf("reader provider is required")
	}
	factory := readerRegistry[key]
	if factory == nil {
		return nil, fmt.Errorf("unsupported reader provider: %s", name)
	}
	return factory(args)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("ai provider config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode ai provider config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode ai provider config: %w", err)
	}
	return nil
}
