package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/xxxsen/common/logutil"
	"github.com/yuin/goldmark"
	"go.uber.org/zap"

	"github.com/CerberoGS/CATAI-sub000/internal/model"
	appErr "github.com/CerberoGS/CATAI-sub000/internal/pkg/errors"
	"github.com/CerberoGS/CATAI-sub000/internal/pipeline"
	"github.com/CerberoGS/CATAI-sub000/internal/repo"
)

// Orchestrator is the part of pipeline.Driver the HTTP layer needs.
type Orchestrator interface {
	EnsureExtraction(ctx context.Context, docID string, opts pipeline.Options) (*pipeline.Result, error)
	Audit(ctx context.Context, doc *model.Document) (*pipeline.RunAudit, error)
}

type ExtractionService struct {
	docs      *repo.DocumentRepo
	knowledge *repo.KnowledgeRepo
	settings  *SettingsService
	driver    Orchestrator
}

func NewExtractionService(docs *repo.DocumentRepo, knowledge *repo.KnowledgeRepo, settings *SettingsService, driver Orchestrator) *ExtractionService {
	return &ExtractionService{docs: docs, knowledge: knowledge, settings: settings, driver: driver}
}

// Extract runs the pipeline for a document owned by userID.
func (s *ExtractionService) Extract(ctx context.Context, userID, docID string, force bool) (*pipeline.Result, error) {
	if _, err := s.docs.GetByID(ctx, userID, docID); err != nil {
		return nil, err
	}
	prompt, err := s.settings.Prompt(ctx, userID)
	if err != nil {
		logutil.GetLogger(ctx).Warn("load user prompt failed, using default", zap.String("user_id", userID), zap.Error(err))
		prompt = ""
	}
	res, err := s.driver.EnsureExtraction(ctx, docID, pipeline.Options{Force: force, Prompt: prompt})
	if err != nil {
		logutil.GetLogger(ctx).Error("extraction failed",
			zap.String("user_id", userID),
			zap.String("document_id", docID),
			zap.Bool("retryable", pipeline.IsRetryable(err)),
			zap.Error(err),
		)
		return nil, err
	}
	return res, nil
}

// Resume re-enters the pipeline for a document without an owner check.
func (s *ExtractionService) Resume(ctx context.Context, doc *model.Document) (*pipeline.Result, error) {
	prompt, err := s.settings.Prompt(ctx, doc.UserID)
	if err != nil {
		prompt = ""
	}
	return s.driver.EnsureExtraction(ctx, doc.ID, pipeline.Options{Prompt: prompt})
}

func (s *ExtractionService) Result(ctx context.Context, userID, docID string) (*model.KnowledgeEntry, error) {
	if _, err := s.docs.GetByID(ctx, userID, docID); err != nil {
		return nil, err
	}
	return s.knowledge.GetByDocument(ctx, userID, docID)
}

func (s *ExtractionService) Diagnose(ctx context.Context, userID, docID string) (*pipeline.RunAudit, error) {
	doc, err := s.docs.GetByID(ctx, userID, docID)
	if err != nil {
		return nil, err
	}
	audit, err := s.driver.Audit(ctx, doc)
	if errors.Is(err, pipeline.ErrNothingToAudit) {
		return nil, appErr.ErrInvalid
	}
	return audit, err
}

// RenderHTML renders a stored answer. JSON answers are shown as a code block.
func RenderHTML(content string) (string, error) {
	src := strings.TrimSpace(content)
	if json.Valid([]byte(src)) && (strings.HasPrefix(src, "{") || strings.HasPrefix(src, "[")) {
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, []byte(src), "", "  "); err == nil {
			src = "```json\n" + pretty.String() + "\n```"
		}
	}
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
