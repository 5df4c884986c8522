package repo

import (
	"context"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"

	"github.com/CerberoGS/CATAI-sub000/internal/model"
)

var usageFields = []string{
	"id", "user_id", "document_id", "provider", "model", "request_kind", "request_id",
	"latency_ms", "input_tokens", "output_tokens", "status", "error_message", "ctime",
}

type UsageRepo struct {
	q querier
}

func NewUsageRepo(db *sqlx.DB) *UsageRepo {
	return &UsageRepo{q: querier{db: db}}
}

func (r *UsageRepo) Create(ctx context.Context, ev *model.UsageEvent) error {
	data := map[string]interface{}{
		"id":            ev.ID,
		"user_id":       ev.UserID,
		"document_id":   ev.DocumentID,
		"provider":      ev.Provider,
		"model":         ev.Model,
		"request_kind":  ev.RequestKind,
		"request_id":    ev.RequestID,
		"latency_ms":    ev.LatencyMs,
		"input_tokens":  ev.InputTokens,
		"output_tokens": ev.OutputTokens,
		"status":        ev.Status,
		"error_message": ev.ErrorMessage,
		"ctime":         ev.Ctime,
	}
	sqlStr, args, err := builder.BuildInsert("usage_events", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	_, err = r.q.exec(ctx, sqlStr, args...)
	return err
}

func (r *UsageRepo) List(ctx context.Context, userID string, limit uint) ([]model.UsageEvent, error) {
	where := map[string]interface{}{
		"user_id":  userID,
		"_orderby": "ctime desc",
		"_limit":   []uint{0, limit},
	}
	sqlStr, args, err := builder.BuildSelect("usage_events", where, usageFields)
	if err != nil {
		return nil, err
	}
	events := make([]model.UsageEvent, 0)
	if err := r.q.selectAll(ctx, &events, sqlStr, args...); err != nil {
		return nil, err
	}
	return events, nil
}

func (r *UsageRepo) Totals(ctx context.Context, userID string, since int64) (*model.UsageTotals, error) {
	const query = `
		SELECT COUNT(1) AS events,
			COALESCE(SUM(input_tokens), 0) AS input_tokens,
			COALESCE(SUM(output_tokens), 0) AS output_tokens
		FROM usage_events
		WHERE user_id = ? AND ctime >= ?`
	var totals model.UsageTotals
	if err := r.q.get(ctx, &totals, query, userID, since); err != nil {
		return nil, err
	}
	return &totals, nil
}

func (r *UsageRepo) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	return r.q.exec(ctx, `DELETE FROM usage_events WHERE ctime < ?`, cutoff)
}
