package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/CerberoGS/CATAI-sub000/internal/ai"
	"github.com/CerberoGS/CATAI-sub000/internal/model"
	appErr "github.com/CerberoGS/CATAI-sub000/internal/pkg/errors"
	"github.com/CerberoGS/CATAI-sub000/internal/pipeline"
)

type stubOrchestrator struct {
	opts     pipeline.Options
	calls    int
	auditErr error
}

func (s *stubOrchestrator) EnsureExtraction(ctx context.Context, docID string, opts pipeline.Options) (*pipeline.Result, error) {
	s.calls++
	s.opts = opts
	return &pipeline.Result{DocumentID: docID, Status: pipeline.StatusPending, RunRef: "run_1"}, nil
}

func (s *stubOrchestrator) Audit(ctx context.Context, doc *model.Document) (*pipeline.RunAudit, error) {
	if s.auditErr != nil {
		return nil, s.auditErr
	}
	return &pipeline.RunAudit{DocumentID: doc.ID}, nil
}

type stubDocReader struct {
	in  ai.DocumentInput
	res *ai.ReadResult
	err error
}

func (s *stubDocReader) Read(ctx context.Context, in ai.DocumentInput) (*ai.ReadResult, error) {
	s.in = in
	return s.res, s.err
}

func TestExtractionServiceOwnershipAndPrompt(t *testing.T) {
	env := newTestEnv(t)
	docs := env.documentService()
	settings := env.settingsService()
	ctx := context.Background()
	doc, err := docs.Upload(ctx, "u1", "a.txt", bytes.NewReader([]byte("abc")), 3)
	require.NoError(t, err)
	require.NoError(t, settings.SetPrompt(ctx, "u1", "only the totals"))

	orch := &stubOrchestrator{}
	svc := NewExtractionService(env.docs, env.knowledge, settings, orch)

	_, err = svc.Extract(ctx, "u2", doc.ID, false)
	require.ErrorIs(t, err, appErr.ErrNotFound)
	require.Zero(t, orch.calls)

	res, err := svc.Extract(ctx, "u1", doc.ID, true)
	require.NoError(t, err)
	require.Equal(t, pipeline.StatusPending, res.Status)
	require.True(t, orch.opts.Force)
	require.Equal(t, "only the totals", orch.opts.Prompt)

	audit, err := svc.Diagnose(ctx, "u1", doc.ID)
	require.NoError(t, err)
	require.Equal(t, doc.ID, audit.DocumentID)

	orch.auditErr = pipeline.ErrNothingToAudit
	_, err = svc.Diagnose(ctx, "u1", doc.ID)
	require.ErrorIs(t, err, appErr.ErrInvalid)

	_, err = svc.Result(ctx, "u1", doc.ID)
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestDirectServiceExtract(t *testing.T) {
	env := newTestEnv(t)
	docs := env.documentService()
	settings := env.settingsService()
	ctx := context.Background()
	doc, err := docs.Upload(ctx, "u1", "report.txt", bytes.NewReader([]byte("revenue 10")), 10)
	require.NoError(t, err)

	reader := &stubDocReader{res: &ai.ReadResult{
		Text:     `{"summary":"Revenue grew","risk_management":"tight stops"}`,
		Provider: "gemini",
		Model:    "gemini-2.0-flash",
		Usage:    ai.TokenUsage{InputTokens: 12, OutputTokens: 4},
	}}
	svc := NewDirectService(env.docs, env.knowledge, env.usage, settings, docs, reader, "default prompt", 1024, 1<<20)

	res, err := svc.Extract(ctx, "u1", doc.ID)
	require.NoError(t, err)
	require.Equal(t, pipeline.StatusCompleted, res.Status)
	require.Equal(t, "revenue 10", string(reader.in.Data))
	require.Equal(t, "default prompt", reader.in.Prompt)
	require.Equal(t, "text/plain", reader.in.MimeType)

	stored, err := env.docs.GetByID(ctx, "u1", doc.ID)
	require.NoError(t, err)
	require.Equal(t, model.DocumentStatusCompleted, stored.Status)
	require.Equal(t, res.ResultID, stored.ResultID)

	entry, err := env.knowledge.GetByDocument(ctx, "u1", doc.ID)
	require.NoError(t, err)
	require.Equal(t, "direct", entry.Source)
	require.Equal(t, "Revenue grew", entry.Summary)
	require.Contains(t, entry.Tags, "risk_management")

	events, err := env.usage.List(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "gemini", events[0].Provider)
	require.Equal(t, int64(12), events[0].InputTokens)

	reader.res, reader.err = nil, errors.New("quota exceeded")
	_, err = svc.Extract(ctx, "u1", doc.ID)
	require.Error(t, err)
	events, err = env.usage.List(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)

	unconfigured := NewDirectService(env.docs, env.knowledge, env.usage, settings, docs, nil, "", 1024, 0)
	_, err = unconfigured.Extract(ctx, "u1", doc.ID)
	require.ErrorIs(t, err, appErr.ErrNoAPIKey)
}

func TestRenderHTML(t *testing.T) {
	html, err := RenderHTML("# Summary\n\nRevenue **up**")
	require.NoError(t, err)
	require.Contains(t, html, "<h1>Summary</h1>")
	require.Contains(t, html, "<strong>up</strong>")

	html, err = RenderHTML(`{"summary":"x"}`)
	require.NoError(t, err)
	require.True(t, strings.Contains(html, `<code class="language-json">`))
}
