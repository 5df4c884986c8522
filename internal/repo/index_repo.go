package repo

import (
	"context"
	"time"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"

	"github.com/CerberoGS/CATAI-sub000/internal/model"
)

var indexRecordFields = []string{
	"id", "user_id", "index_ref", "assistant_ref", "assistant_model", "status", "document_count", "ctime", "mtime",
}

// IndexRepo stores the per-user index record. All ref mutations are
// compare-and-set so concurrent orchestrations converge on one winner.
type IndexRepo struct {
	q     querier
	newID func() string
}

func NewIndexRepo(db *sqlx.DB, newID func() string) *IndexRepo {
	return &IndexRepo{q: querier{db: db}, newID: newID}
}

func (r *IndexRepo) GetIndexRecord(ctx context.Context, userID string) (*model.IndexRecord, error) {
	sqlStr, args, err := builder.BuildSelect("index_records", map[string]interface{}{"user_id": userID}, indexRecordFields)
	if err != nil {
		return nil, err
	}
	var rec model.IndexRecord
	if err := r.q.get(ctx, &rec, sqlStr, args...); err != nil {
		return nil, err
	}
	return &rec, nil
}

// EnsureIndexRecord inserts an empty record for userID unless one exists and
// returns whichever row won.
func (r *IndexRepo) EnsureIndexRecord(ctx context.Context, userID string) (*model.IndexRecord, error) {
	now := time.Now().Unix()
	const query = `
		INSERT INTO index_records (id, user_id, index_ref, assistant_ref, assistant_model, status, document_count, ctime, mtime)
		VALUES (?, ?, '', '', '', ?, 0, ?, ?)
		ON CONFLICT (user_id) DO NOTHING`
	if _, err := r.q.exec(ctx, query, r.newID(), userID, model.IndexStatusInvalid, now, now); err != nil {
		return nil, err
	}
	return r.GetIndexRecord(ctx, userID)
}

func (r *IndexRepo) ClaimIndexRef(ctx context.Context, userID, expected, indexRef string) (bool, error) {
	const query = `
		UPDATE index_records
		SET index_ref = ?, assistant_ref = '', assistant_model = '', status = ?, mtime = ?
		WHERE user_id = ? AND index_ref = ?`
	affected, err := r.q.exec(ctx, query, indexRef, model.IndexStatusReady, time.Now().Unix(), userID, expected)
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *IndexRepo) ClaimAssistantRef(ctx context.Context, userID, indexRef, expected, assistantRef, assistantModel string) (bool, error) {
	const query = `
		UPDATE index_records
		SET assistant_ref = ?, assistant_model = ?, mtime = ?
		WHERE user_id = ? AND index_ref = ? AND assistant_ref = ?`
	affected, err := r.q.exec(ctx, query, assistantRef, assistantModel, time.Now().Unix(), userID, indexRef, expected)
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// InvalidateIndex clears the index and, in the same statement, the assistant bound to it.
func (r *IndexRepo) InvalidateIndex(ctx context.Context, userID, indexRef string) error {
	const query = `
		UPDATE index_records
		SET index_ref = '', assistant_ref = '', assistant_model = '', status = ?, mtime = ?
		WHERE user_id = ? AND index_ref = ?`
	_, err := r.q.exec(ctx, query, model.IndexStatusInvalid, time.Now().Unix(), userID, indexRef)
	return err
}

func (r *IndexRepo) InvalidateAssistant(ctx context.Context, userID, assistantRef string) error {
	const query = `
		UPDATE index_records
		SET assistant_ref = '', assistant_model = '', mtime = ?
		WHERE user_id = ? AND assistant_ref = ?`
	_, err := r.q.exec(ctx, query, time.Now().Unix(), userID, assistantRef)
	return err
}

func (r *IndexRepo) AddDocumentCount(ctx context.Context, userID string, delta int) error {
	const query = `UPDATE index_records SET document_count = document_count + ?, mtime = ? WHERE user_id = ?`
	_, err := r.q.exec(ctx, query, delta, time.Now().Unix(), userID)
	return err
}
