package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/CerberoGS/CATAI-sub000/internal/ai"
	"github.com/CerberoGS/CATAI-sub000/internal/model"
	appErr "github.com/CerberoGS/CATAI-sub000/internal/pkg/errors"
	"github.com/CerberoGS/CATAI-sub000/internal/pipeline"
	"github.com/CerberoGS/CATAI-sub000/internal/repo"
)

// DocumentReader reads a whole document in one request.
type DocumentReader interface {
	Read(ctx context.Context, in ai.DocumentInput) (*ai.ReadResult, error)
}

// DirectService extracts a document without the assistant pipeline by
// sending its bytes inline to a reader chain.
type DirectService struct {
	docs      *repo.DocumentRepo
	knowledge *repo.KnowledgeRepo
	usage     *repo.UsageRepo
	settings  *SettingsService
	source    pipeline.Source
	reader    DocumentReader
	prompt    string
	maxBytes  int64
	maxAnswer int
}

func NewDirectService(docs *repo.DocumentRepo, knowledge *repo.KnowledgeRepo, usage *repo.UsageRepo, settings *SettingsService, source pipeline.Source, reader DocumentReader, prompt string, maxBytes int64, maxAnswer int) *DirectService {
	return &DirectService{
		docs:      docs,
		knowledge: knowledge,
		usage:     usage,
		settings:  settings,
		source:    source,
		reader:    reader,
		prompt:    prompt,
		maxBytes:  maxBytes,
		maxAnswer: maxAnswer,
	}
}

func (s *DirectService) Extract(ctx context.Context, userID, docID string) (*pipeline.Result, error) {
	if s.reader == nil {
		return nil, appErr.ErrNoAPIKey
	}
	doc, err := s.docs.GetByID(ctx, userID, docID)
	if err != nil {
		return nil, err
	}
	data, err := s.readAll(ctx, doc)
	if err != nil {
		return nil, err
	}
	prompt := s.prompt
	if custom, err := s.settings.Prompt(ctx, userID); err == nil && strings.TrimSpace(custom) != "" {
		prompt = custom
	}
	logger := logutil.GetLogger(ctx).With(zap.String("user_id", userID), zap.String("document_id", docID))
	start := time.Now()
	res, err := s.reader.Read(ctx, ai.DocumentInput{
		Filename: doc.Filename,
		MimeType: doc.MimeType,
		Data:     data,
		Prompt:   prompt,
	})
	s.record(ctx, doc, res, time.Since(start), err)
	if err != nil {
		logger.Error("direct extraction failed", zap.Error(err))
		return nil, err
	}

	now := time.Now().Unix()
	entry := pipeline.NewResultEntry(doc, res.Text, s.maxAnswer)
	entry.ID = NewID()
	entry.Source = "direct"
	entry.Model = res.Model
	entry.Ctime = now
	entry.Mtime = now
	resultID, err := s.knowledge.Upsert(ctx, entry)
	if err != nil {
		return nil, err
	}
	doc.Status = model.DocumentStatusCompleted
	doc.Attempts = 0
	doc.LastError = ""
	doc.Diagnosis = ""
	doc.ResultID = resultID
	doc.Mtime = now
	if err := s.docs.UpdateDocument(ctx, doc); err != nil {
		return nil, err
	}
	logger.Info("direct extraction completed", zap.String("provider", res.Provider), zap.String("model", res.Model))
	return &pipeline.Result{
		DocumentID: doc.ID,
		Status:     pipeline.StatusCompleted,
		Answer:     entry.Content,
		ResultID:   resultID,
	}, nil
}

func (s *DirectService) readAll(ctx context.Context, doc *model.Document) ([]byte, error) {
	rc, err := s.source.Open(ctx, doc)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	limit := s.maxBytes
	if limit <= 0 {
		limit = doc.Size
	}
	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read stored document: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, appErr.ErrFileTooLarge
	}
	return data, nil
}

func (s *DirectService) record(ctx context.Context, doc *model.Document, res *ai.ReadResult, latency time.Duration, readErr error) {
	if s.usage == nil {
		return
	}
	ev := &model.UsageEvent{
		ID:          NewID(),
		UserID:      doc.UserID,
		DocumentID:  doc.ID,
		RequestKind: "direct_read",
		LatencyMs:   latency.Milliseconds(),
		Status:      model.UsageStatusOK,
		Ctime:       time.Now().Unix(),
	}
	if res != nil {
		ev.Provider = res.Provider
		ev.Model = res.Model
		ev.InputTokens = res.Usage.InputTokens
		ev.OutputTokens = res.Usage.OutputTokens
	}
	if readErr != nil {
		ev.Status = model.UsageStatusError
		ev.ErrorMessage = readErr.Error()
	}
	if err := s.usage.Create(ctx, ev); err != nil {
		logutil.GetLogger(ctx).Warn("record usage failed", zap.String("document_id", doc.ID), zap.Error(err))
	}
}
