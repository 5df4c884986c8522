package repo

import (
	"context"
	"encoding/json"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"

	"github.com/CerberoGS/CATAI-sub000/internal/model"
	appErr "github.com/CerberoGS/CATAI-sub000/internal/pkg/errors"
)

var knowledgeFields = []string{
	"id", "user_id", "document_id", "source", "title", "content", "summary", "tags",
	"index_ref", "assistant_ref", "thread_ref", "run_ref", "model", "ctime", "mtime",
}

type KnowledgeRepo struct {
	q querier
}

func NewKnowledgeRepo(db *sqlx.DB) *KnowledgeRepo {
	return &KnowledgeRepo{q: querier{db: db}}
}

// Upsert writes entry keyed by document and returns the id of the stored row.
func (r *KnowledgeRepo) Upsert(ctx context.Context, entry *model.KnowledgeEntry) (string, error) {
	tagList := entry.Tags
	if tagList == nil {
		tagList = []string{}
	}
	tags, err := json.Marshal(tagList)
	if err != nil {
		return "", err
	}
	const query = `
		INSERT INTO knowledge_entries
			(id, user_id, document_id, source, title, content, summary, tags, index_ref, assistant_ref, thread_ref, run_ref, model, ctime, mtime)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (document_id) DO UPDATE SET
			source = excluded.source,
			title = excluded.title,
			content = excluded.content,
			summary = excluded.summary,
			tags = excluded.tags,
			index_ref = excluded.index_ref,
			assistant_ref = excluded.assistant_ref,
			thread_ref = excluded.thread_ref,
			run_ref = excluded.run_ref,
			model = excluded.model,
			mtime = excluded.mtime`
	if _, err := r.q.exec(ctx, query,
		entry.ID, entry.UserID, entry.DocumentID, entry.Source, entry.Title, entry.Content, entry.Summary, string(tags),
		entry.IndexRef, entry.AssistantRef, entry.ThreadRef, entry.RunRef, entry.Model, entry.Ctime, entry.Mtime,
	); err != nil {
		return "", err
	}
	stored, err := r.GetByDocument(ctx, entry.UserID, entry.DocumentID)
	if err != nil {
		return "", err
	}
	return stored.ID, nil
}

func (r *KnowledgeRepo) GetByID(ctx context.Context, userID, id string) (*model.KnowledgeEntry, error) {
	return r.getWhere(ctx, map[string]interface{}{"id": id, "user_id": userID})
}

func (r *KnowledgeRepo) GetByDocument(ctx context.Context, userID, documentID string) (*model.KnowledgeEntry, error) {
	return r.getWhere(ctx, map[string]interface{}{"document_id": documentID, "user_id": userID})
}

func (r *KnowledgeRepo) getWhere(ctx context.Context, where map[string]interface{}) (*model.KnowledgeEntry, error) {
	sqlStr, args, err := builder.BuildSelect("knowledge_entries", where, knowledgeFields)
	if err != nil {
		return nil, err
	}
	var entry model.KnowledgeEntry
	if err := r.q.get(ctx, &entry, sqlStr, args...); err != nil {
		return nil, err
	}
	decodeTags(&entry)
	return &entry, nil
}

func (r *KnowledgeRepo) List(ctx context.Context, userID string, limit, offset uint) ([]model.KnowledgeEntry, error) {
	where := map[string]interface{}{
		"user_id":  userID,
		"_orderby": "mtime desc",
	}
	if limit > 0 {
		where["_limit"] = []uint{offset, limit}
	}
	sqlStr, args, err := builder.BuildSelect("knowledge_entries", where, knowledgeFields)
	if err != nil {
		return nil, err
	}
	entries := make([]model.KnowledgeEntry, 0)
	if err := r.q.selectAll(ctx, &entries, sqlStr, args...); err != nil {
		return nil, err
	}
	for i := range entries {
		decodeTags(&entries[i])
	}
	return entries, nil
}

func (r *KnowledgeRepo) Delete(ctx context.Context, userID, id string) error {
	sqlStr, args, err := builder.BuildDelete("knowledge_entries", map[string]interface{}{"id": id, "user_id": userID})
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

func (r *KnowledgeRepo) DeleteByDocument(ctx context.Context, userID, documentID string) error {
	sqlStr, args, err := builder.BuildDelete("knowledge_entries", map[string]interface{}{"document_id": documentID, "user_id": userID})
	if err != nil {
		return err
	}
	_, err = r.q.exec(ctx, sqlStr, args...)
	return err
}

func decodeTags(entry *model.KnowledgeEntry) {
	entry.Tags = []string{}
	if entry.TagsJSON == "" {
		return
	}
	_ = json.Unmarshal([]byte(entry.TagsJSON), &entry.Tags)
}
