package ai

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	activeRunMarker      = "already has an active run"
	busyThreadMarker     = "while a run"
)

type openAIConfig struct {
	APIKey       string `json:"api_key"`
	BaseURL      string `json:"base_url"`
	Organization string `json:"organization"`
	TimeoutMs    int    `json:"timeout_ms"`
	MaxRetries   int    `json:"max_retries"`
}

type openAIAssistantClient struct {
	client openai.Client
}

// NewOpenAIAssistantClient builds a client backed by the Assistants, Files and
// Vector Stores APIs.
func NewOpenAIAssistantClient(apiKey string, opts ...option.RequestOption) IAssistantClient {
	base := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(defaultOpenAIBaseURL),
	}
	return &openAIAssistantClient{client: openai.NewClient(append(base, opts...)...)}
}

func (p *openAIAssistantClient) Name() string {
	return "openai"
}

func (p *openAIAssistantClient) UploadFile(ctx context.Context, in UploadInput) (*RemoteFile, error) {
	contentType := in.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	obj, err := p.client.Files.New(ctx, openai.FileNewParams{
		File:    openai.File(in.Reader, in.Filename, contentType),
		Purpose: openai.FilePurposeAssistants,
	})
	if err != nil {
		return nil, classifyOpenAIError("upload_file", err)
	}
	return toRemoteFile(obj), nil
}

func (p *openAIAssistantClient) GetFile(ctx context.Context, fileID string) (*RemoteFile, error) {
	obj, err := p.client.Files.Get(ctx, fileID)
	if err != nil {
		return nil, classifyOpenAIError("get_file", err)
	}
	return toRemoteFile(obj), nil
}

func (p *openAIAssistantClient) CreateIndex(ctx context.Context, name string) (*RemoteIndex, error) {
	vs, err := p.client.VectorStores.New(ctx, openai.VectorStoreNewParams{
		Name: openai.String(name),
	})
	if err != nil {
		return nil, classifyOpenAIError("create_index", err)
	}
	return &RemoteIndex{ID: vs.ID, Name: vs.Name, Status: string(vs.Status)}, nil
}

func (p *openAIAssistantClient) GetIndex(ctx context.Context, indexID string) (*RemoteIndex, error) {
	vs, err := p.client.VectorStores.Get(ctx, indexID)
	if err != nil {
		return nil, classifyOpenAIError("get_index", err)
	}
	return &RemoteIndex{ID: vs.ID, Name: vs.Name, Status: string(vs.Status)}, nil
}

func (p *openAIAssistantClient) AttachFile(ctx context.Context, indexID, fileID string) (*Attachment, error) {
	vf, err := p.client.VectorStores.Files.New(ctx, indexID, openai.VectorStoreFileNewParams{
		FileID: fileID,
	})
	if err != nil {
		return nil, classifyOpenAIError("attach_file", err)
	}
	return toAttachment(indexID, vf), nil
}

func (p *openAIAssistantClient) GetAttachment(ctx context.Context, indexID, fileID string) (*Attachment, error) {
	vf, err := p.client.VectorStores.Files.Get(ctx, indexID, fileID)
	if err != nil {
		return nil, classifyOpenAIError("get_attachment", err)
	}
	return toAttachment(indexID, vf), nil
}

func (p *openAIAssistantClient) CreateAssistant(ctx context.Context, spec AssistantSpec) (*RemoteAssistant, error) {
	a, err := p.client.Beta.Assistants.New(ctx, openai.BetaAssistantNewParams{
		Model:        spec.Model,
		Name:         openai.String(spec.Name),
		Instructions: openai.String(spec.Instructions),
		Tools: []openai.AssistantToolUnionParam{
			{OfFileSearch: &openai.FileSearchToolParam{}},
		},
		ToolResources: openai.BetaAssistantNewParamsToolResources{
			FileSearch: openai.BetaAssistantNewParamsToolResourcesFileSearch{
				VectorStoreIDs: []string{spec.IndexID},
			},
		},
	})
	if err != nil {
		return nil, classifyOpenAIError("create_assistant", err)
	}
	return toRemoteAssistant(a), nil
}

func (p *openAIAssistantClient) GetAssistant(ctx context.Context, assistantID string) (*RemoteAssistant, error) {
	a, err := p.client.Beta.Assistants.Get(ctx, assistantID)
	if err != nil {
		return nil, classifyOpenAIError("get_assistant", err)
	}
	return toRemoteAssistant(a), nil
}

func (p *openAIAssistantClient) CreateThread(ctx context.Context, prompt string) (*RemoteThread, error) {
	th, err := p.client.Beta.Threads.New(ctx, openai.BetaThreadNewParams{
		Messages: []openai.BetaThreadNewParamsMessage{
			{
				Role: RoleUser,
				Content: openai.BetaThreadNewParamsMessageContentUnion{
					OfString: openai.String(prompt),
				},
			},
		},
	})
	if err != nil {
		return nil, classifyOpenAIError("create_thread", err)
	}
	return &RemoteThread{ID: th.ID}, nil
}

func (p *openAIAssistantClient) GetThread(ctx context.Context, threadID string) (*RemoteThread, error) {
	th, err := p.client.Beta.Threads.Get(ctx, threadID)
	if err != nil {
		return nil, classifyOpenAIError("get_thread", err)
	}
	return &RemoteThread{ID: th.ID}, nil
}

func (p *openAIAssistantClient) AddMessage(ctx context.Context, threadID, text string) (*Message, error) {
	msg, err := p.client.Beta.Threads.Messages.New(ctx, threadID, openai.BetaThreadMessageNewParams{
		Role: openai.BetaThreadMessageNewParamsRoleUser,
		Content: openai.BetaThreadMessageNewParamsContentUnion{
			OfString: openai.String(text),
		},
	})
	if err != nil {
		return nil, classifyOpenAIError("add_message", err)
	}
	return &Message{ID: msg.ID, Role: string(msg.Role), Text: text, CreatedAt: msg.CreatedAt}, nil
}

func (p *openAIAssistantClient) CreateRun(ctx context.Context, threadID, assistantID, instructions string) (*RemoteRun, error) {
	params := openai.BetaThreadRunNewParams{AssistantID: assistantID}
	if strings.TrimSpace(instructions) != "" {
		params.AdditionalInstructions = openai.String(instructions)
	}
	run, err := p.client.Beta.Threads.Runs.New(ctx, threadID, params)
	if err != nil {
		return nil, classifyOpenAIError("create_run", err)
	}
	return toRemoteRun(run), nil
}

func (p *openAIAssistantClient) GetRun(ctx context.Context, threadID, runID string) (*RemoteRun, error) {
	run, err := p.client.Beta.Threads.Runs.Get(ctx, threadID, runID)
	if err != nil {
		return nil, classifyOpenAIError("get_run", err)
	}
	return toRemoteRun(run), nil
}

func (p *openAIAssistantClient) ListRuns(ctx context.Context, threadID string, limit int) ([]RemoteRun, error) {
	page, err := p.client.Beta.Threads.Runs.List(ctx, threadID, openai.BetaThreadRunListParams{
		Limit: openai.Int(int64(limit)),
		Order: openai.BetaThreadRunListParamsOrderDesc,
	})
	if err != nil {
		return nil, classifyOpenAIError("list_runs", err)
	}
	out := make([]RemoteRun, 0, len(page.Data))
	for i := range page.Data {
		out = append(out, *toRemoteRun(&page.Data[i]))
	}
	return out, nil
}

func (p *openAIAssistantClient) ListMessages(ctx context.Context, threadID string, limit int) ([]Message, error) {
	page, err := p.client.Beta.Threads.Messages.List(ctx, threadID, openai.BetaThreadMessageListParams{
		Limit: openai.Int(int64(limit)),
		Order: openai.BetaThreadMessageListParamsOrderDesc,
	})
	if err != nil {
		return nil, classifyOpenAIError("list_messages", err)
	}
	out := make([]Message, 0, len(page.Data))
	for _, msg := range page.Data {
		var sb strings.Builder
		for _, part := range msg.Content {
			if part.Type != "text" {
				continue
			}
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(part.Text.Value)
		}
		out = append(out, Message{
			ID:        msg.ID,
			Role:      string(msg.Role),
			RunID:     msg.RunID,
			Text:      sb.String(),
			CreatedAt: msg.CreatedAt,
		})
	}
	return out, nil
}

func (p *openAIAssistantClient) ListRunSteps(ctx context.Context, threadID, runID string) ([]RunStep, error) {
	page, err := p.client.Beta.Threads.Runs.Steps.List(ctx, threadID, runID, openai.BetaThreadRunStepListParams{
		Limit: openai.Int(50),
	})
	if err != nil {
		return nil, classifyOpenAIError("list_run_steps", err)
	}
	out := make([]RunStep, 0, len(page.Data))
	for _, step := range page.Data {
		item := RunStep{ID: step.ID, Type: string(step.Type), Status: string(step.Status)}
		for _, call := range step.StepDetails.ToolCalls {
			item.ToolCalls = append(item.ToolCalls, call.Type)
		}
		out = append(out, item)
	}
	return out, nil
}

func toRemoteFile(obj *openai.FileObject) *RemoteFile {
	return &RemoteFile{
		ID:       obj.ID,
		Filename: obj.Filename,
		Purpose:  string(obj.Purpose),
		Status:   string(obj.Status),
		Bytes:    obj.Bytes,
	}
}

func toAttachment(indexID string, vf *openai.VectorStoreFile) *Attachment {
	return &Attachment{
		IndexID:   indexID,
		FileID:    vf.ID,
		Status:    AttachmentStatus(vf.Status),
		LastError: vf.LastError.Message,
	}
}

func toRemoteAssistant(a *openai.Assistant) *RemoteAssistant {
	return &RemoteAssistant{
		ID:       a.ID,
		Model:    a.Model,
		IndexIDs: append([]string(nil), a.ToolResources.FileSearch.VectorStoreIDs...),
	}
}

func toRemoteRun(run *openai.Run) *RemoteRun {
	reason := run.LastError.Message
	if reason == "" && run.IncompleteDetails.Reason != "" {
		reason = "incomplete: " + string(run.IncompleteDetails.Reason)
	}
	return &RemoteRun{
		ID:          run.ID,
		ThreadID:    run.ThreadID,
		AssistantID: run.AssistantID,
		Model:       run.Model,
		Status:      RunStatus(run.Status),
		LastError:   reason,
		Usage: TokenUsage{
			InputTokens:  run.Usage.PromptTokens,
			OutputTokens: run.Usage.CompletionTokens,
		},
	}
}

func threadBusy(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, activeRunMarker) || strings.Contains(msg, busyThreadMarker)
}

func classifyOpenAIError(op string, err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return transportError(op, err)
	}
	kind := KindForStatus(apiErr.StatusCode)
	if apiErr.StatusCode == http.StatusBadRequest && threadBusy(apiErr.Message) {
		kind = KindConflict
	}
	msg := apiErr.Message
	if msg == "" {
		msg = http.StatusText(apiErr.StatusCode)
	}
	return newError(op, kind, apiErr.StatusCode, msg, err)
}

func createOpenAIFactory(args interface{}) (IAssistantClient, error) {
	cfg := &openAIConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, ErrUnavailable
	}
	var opts []option.RequestOption
	if baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if org := strings.TrimSpace(cfg.Organization); org != "" {
		opts = append(opts, option.WithOrganization(org))
	}
	if cfg.TimeoutMs > 0 {
		opts = append(opts, option.WithRequestTimeout(time.Duration(cfg.TimeoutMs)*time.Millisecond))
	}
	if cfg.MaxRetries > 0 {
		opts = append(opts, option.WithMaxRetries(cfg.MaxRetries))
	}
	return NewOpenAIAssistantClient(apiKey, opts...), nil
}

func init() {
	RegisterAssistant("openai", createOpenAIFactory)
}
