package service

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/CerberoGS/CATAI-sub000/internal/config"
	"github.com/CerberoGS/CATAI-sub000/internal/filestore"
	"github.com/CerberoGS/CATAI-sub000/internal/model"
	appErr "github.com/CerberoGS/CATAI-sub000/internal/pkg/errors"
	"github.com/CerberoGS/CATAI-sub000/internal/repo"
)

// documentTypes maps an accepted extension to the stored mime type and the
// sniffed types that may back it.
var documentTypes = map[string]struct {
	mime    string
	sniffed []string
}{
	".pdf":  {mime: "application/pdf", sniffed: []string{"application/pdf"}},
	".txt":  {mime: "text/plain", sniffed: []string{"text/plain"}},
	".md":   {mime: "text/markdown", sniffed: []string{"text/plain"}},
	".csv":  {mime: "text/csv", sniffed: []string{"text/csv", "text/plain"}},
	".doc":  {mime: "application/msword", sniffed: []string{"application/msword", "application/x-ole-storage"}},
	".docx": {mime: "application/vnd.openxmlformats-officedocument.wordprocessingml.document", sniffed: []string{"application/vnd.openxmlformats-officedocument.wordprocessingml.document", "application/zip"}},
}

type DocumentService struct {
	docs      *repo.DocumentRepo
	knowledge *repo.KnowledgeRepo
	indexes   *repo.IndexRepo
	store     filestore.Store
	upload    config.UploadConfig
}

func NewDocumentService(docs *repo.DocumentRepo, knowledge *repo.KnowledgeRepo, indexes *repo.IndexRepo, store filestore.Store, upload config.UploadConfig) *DocumentService {
	return &DocumentService{docs: docs, knowledge: knowledge, indexes: indexes, store: store, upload: upload}
}

func (s *DocumentService) MaxUploadBytes() int64 {
	return s.upload.MaxBytes
}

func (s *DocumentService) allowedExt(ext string) bool {
	for _, item := range s.upload.AllowedExt {
		item = strings.ToLower(strings.TrimSpace(item))
		if !strings.HasPrefix(item, ".") {
			item = "." + item
		}
		if item == ext {
			return true
		}
	}
	return false
}

// detectMime sniffs the content and checks it against what the extension
// promises. Unknown extensions that are still allowlisted keep the sniffed type.
func detectMime(ext string, r io.ReadSeeker) (string, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	detected, err := mimetype.DetectReader(r)
	if err != nil {
		return "", err
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	spec, ok := documentTypes[ext]
	if !ok {
		return detected.String(), nil
	}
	for m := detected; m != nil; m = m.Parent() {
		for _, candidate := range spec.sniffed {
			if m.Is(candidate) {
				return spec.mime, nil
			}
		}
	}
	return "", appErr.ErrFileType
}

func (s *DocumentService) Upload(ctx context.Context, userID, filename string, r io.ReadSeeker, size int64) (*model.Document, error) {
	filename = filepath.Base(strings.TrimSpace(filename))
	if filename == "" || filename == "." || size <= 0 {
		return nil, appErr.ErrInvalid
	}
	if s.upload.MaxBytes > 0 && size > s.upload.MaxBytes {
		return nil, appErr.ErrFileTooLarge
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if !s.allowedExt(ext) {
		return nil, appErr.ErrFileType
	}
	mimeType, err := detectMime(ext, r)
	if err != nil {
		return nil, err
	}
	now := time.Now().Unix()
	doc := &model.Document{
		ID:       NewID(),
		UserID:   userID,
		Filename: filename,
		MimeType: mimeType,
		Size:     size,
		Status:   model.DocumentStatusPending,
		Ctime:    now,
		Mtime:    now,
	}
	doc.StorageKey = doc.UserID + "_" + doc.ID + ext
	if err := s.store.Save(ctx, doc.StorageKey, r, size); err != nil {
		return nil, err
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		if delErr := s.store.Delete(ctx, doc.StorageKey); delErr != nil {
			logutil.GetLogger(ctx).Warn("remove stored bytes failed", zap.String("key", doc.StorageKey), zap.Error(delErr))
		}
		return nil, err
	}
	logutil.GetLogger(ctx).Info("document uploaded",
		zap.String("user_id", userID),
		zap.String("document_id", doc.ID),
		zap.String("mime_type", mimeType),
		zap.Int64("size", size),
	)
	return doc, nil
}

func (s *DocumentService) List(ctx context.Context, userID string, limit, offset uint) ([]model.Document, error) {
	return s.docs.List(ctx, userID, limit, offset)
}

func (s *DocumentService) Get(ctx context.Context, userID, docID string) (*model.Document, error) {
	return s.docs.GetByID(ctx, userID, docID)
}

// Delete removes the record, its result and its stored bytes. Remote
// resources are left to expire on the AI service side.
func (s *DocumentService) Delete(ctx context.Context, userID, docID string) error {
	doc, err := s.docs.GetByID(ctx, userID, docID)
	if err != nil {
		return err
	}
	if err := s.docs.Delete(ctx, userID, docID); err != nil {
		return err
	}
	logger := logutil.GetLogger(ctx).With(zap.String("user_id", userID), zap.String("document_id", docID))
	if err := s.knowledge.DeleteByDocument(ctx, userID, docID); err != nil && !errors.Is(err, appErr.ErrNotFound) {
		logger.Warn("delete document result failed", zap.Error(err))
	}
	if err := s.store.Delete(ctx, doc.StorageKey); err != nil {
		logger.Warn("delete stored bytes failed", zap.String("key", doc.StorageKey), zap.Error(err))
	}
	if doc.IndexRef != "" {
		if err := s.indexes.AddDocumentCount(ctx, userID, -1); err != nil {
			logger.Warn("update index document count failed", zap.Error(err))
		}
	}
	return nil
}

// Open returns the stored bytes of doc.
func (s *DocumentService) Open(ctx context.Context, doc *model.Document) (io.ReadCloser, error) {
	return s.store.Open(ctx, doc.StorageKey)
}
