package ai

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/genai"
)

type geminiConfig struct {
	APIKey string `json:"api_key"`
}

type geminiReader struct {
	apiKey string
}

func (p *geminiReader) Name() string {
	return "gemini"
}

// Read sends the document inline with the prompt and returns the model text.
func (p *geminiReader) Read(ctx context.Context, model string, in DocumentInput) (*ReadResult, error) {
	if p.apiKey == "" {
		return nil, ErrUnavailable
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, transportError("gemini_client", err)
	}
	mimeType := in.MimeType
	if mimeType == "" {
		mimeType = "application/pdf"
	}
	parts := []*genai.Part{
		{InlineData: &genai.Blob{Data: in.Data, MIMEType: mimeType}},
		{Text: in.Prompt},
	}
	resp, err := client.Models.GenerateContent(
		ctx,
		model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		nil,
	)
	if err != nil {
		return nil, classifyGeminiError("gemini_generate", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return nil, newError("gemini_generate", KindRejected, 0, "empty response", nil)
	}
	out := &ReadResult{Text: text, Model: model}
	if resp.UsageMetadata != nil {
		out.Usage = TokenUsage{
			InputTokens:  int64(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int64(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	return out, nil
}

func classifyGeminiError(op string, err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return newError(op, KindForStatus(apiErr.Code), apiErr.Code, apiErr.Message, err)
	}
	return transportError(op, err)
}

func createGeminiReaderFactory(args interface{}) (IDocumentReader, error) {
	cfg := &geminiConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	return &geminiReader{apiKey: strings.TrimSpace(cfg.APIKey)}, nil
}

func init() {
	RegisterReader("gemini", createGeminiReaderFactory)
}
