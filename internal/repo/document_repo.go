package repo

import (
	"context"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"

	"github.com/CerberoGS/CATAI-sub000/internal/model"
	appErr "github.com/CerberoGS/CATAI-sub000/internal/pkg/errors"
)

var documentFields = []string{
	"id", "user_id", "filename", "storage_key", "mime_type", "size", "status", "attempts",
	"file_ref", "index_ref", "assistant_ref", "thread_ref", "run_ref",
	"last_error", "diagnosis", "result_id", "ctime", "mtime",
}

type DocumentRepo struct {
	q querier
}

func NewDocumentRepo(db *sqlx.DB) *DocumentRepo {
	return &DocumentRepo{q: querier{db: db}}
}

func (r *DocumentRepo) Create(ctx context.Context, doc *model.Document) error {
	data := map[string]interface{}{
		"id":            doc.ID,
		"user_id":       doc.UserID,
		"filename":      doc.Filename,
		"storage_key":   doc.StorageKey,
		"mime_type":     doc.MimeType,
		"size":          doc.Size,
		"status":        doc.Status,
		"attempts":      doc.Attempts,
		"file_ref":      doc.FileRef,
		"index_ref":     doc.IndexRef,
		"assistant_ref": doc.AssistantRef,
		"thread_ref":    doc.ThreadRef,
		"run_ref":       doc.RunRef,
		"last_error":    doc.LastError,
		"diagnosis":     doc.Diagnosis,
		"result_id":     doc.ResultID,
		"ctime":         doc.Ctime,
		"mtime":         doc.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("documents", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	_, err = r.q.exec(ctx, sqlStr, args...)
	return err
}

// GetDocument loads a document regardless of owner.
func (r *DocumentRepo) GetDocument(ctx context.Context, docID string) (*model.Document, error) {
	return r.getWhere(ctx, map[string]interface{}{"id": docID})
}

func (r *DocumentRepo) GetByID(ctx context.Context, userID, docID string) (*model.Document, error) {
	return r.getWhere(ctx, map[string]interface{}{"id": docID, "user_id": userID})
}

func (r *DocumentRepo) getWhere(ctx context.Context, where map[string]interface{}) (*model.Document, error) {
	sqlStr, args, err := builder.BuildSelect("documents", where, documentFields)
	if err != nil {
		return nil, err
	}
	var doc model.Document
	if err := r.q.get(ctx, &doc, sqlStr, args...); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *DocumentRepo) List(ctx context.Context, userID string, limit, offset uint) ([]model.Document, error) {
	where := map[string]interface{}{
		"user_id":  userID,
		"_orderby": "ctime desc",
	}
	if limit > 0 {
		where["_limit"] = []uint{offset, limit}
	}
	sqlStr, args, err := builder.BuildSelect("documents", where, documentFields)
	if err != nil {
		return nil, err
	}
	docs := make([]model.Document, 0)
	if err := r.q.selectAll(ctx, &docs, sqlStr, args...); err != nil {
		return nil, err
	}
	return docs, nil
}

// ListStale returns documents stuck in status whose last change is older than before.
func (r *DocumentRepo) ListStale(ctx context.Context, status string, before int64, limit uint) ([]model.Document, error) {
	where := map[string]interface{}{
		"status":    status,
		"run_ref !=": "",
		"mtime <":   before,
		"_orderby":  "mtime asc",
		"_limit":    []uint{0, limit},
	}
	sqlStr, args, err := builder.BuildSelect("documents", where, documentFields)
	if err != nil {
		return nil, err
	}
	docs := make([]model.Document, 0)
	if err := r.q.selectAll(ctx, &docs, sqlStr, args...); err != nil {
		return nil, err
	}
	return docs, nil
}

// UpdateDocument persists the orchestration-owned fields of doc.
func (r *DocumentRepo) UpdateDocument(ctx context.Context, doc *model.Document) error {
	where := map[string]interface{}{"id": doc.ID}
	update := map[string]interface{}{
		"status":        doc.Status,
		"attempts":      doc.Attempts,
		"file_ref":      doc.FileRef,
		"index_ref":     doc.IndexRef,
		"assistant_ref": doc.AssistantRef,
		"thread_ref":    doc.ThreadRef,
		"run_ref":       doc.RunRef,
		"last_error":    doc.LastError,
		"diagnosis":     doc.Diagnosis,
		"result_id":     doc.ResultID,
		"mtime":         doc.Mtime,
	}
	sqlStr, args, err := builder.BuildUpdate("documents", where, update)
	if err != nil {
		return err
	}
	affected, err := r.q.exec(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

func (r *DocumentRepo) Delete(ctx context.Context, userID, docID string) error {
	sqlStr, args, err := builder.BuildDelete("documents", map[string]interface{}{"id": docID, "user_id": userID})
	if err != nil {
		return err
	}
	affected, err := r.q.exec(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}
