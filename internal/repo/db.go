package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/CerberoGS/CATAI-sub000/internal/pkg/dbutil"
	appErr "github.com/CerberoGS/CATAI-sub000/internal/pkg/errors"
)

// querier wraps a sqlx handle so gendry output and raw statements are
// rebound for whichever driver is in use.
type querier struct {
	db *sqlx.DB
}

func (q querier) finalize(sqlStr string, args []interface{}) (string, []interface{}) {
	return dbutil.Finalize(q.db.DriverName(), sqlStr, args)
}

func (q querier) get(ctx context.Context, dest interface{}, sqlStr string, args ...interface{}) error {
	sqlStr, args = q.finalize(sqlStr, args)
	if err := q.db.GetContext(ctx, dest, sqlStr, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErr.ErrNotFound
		}
		return err
	}
	return nil
}

func (q querier) selectAll(ctx context.Context, dest interface{}, sqlStr string, args ...interface{}) error {
	sqlStr, args = q.finalize(sqlStr, args)
	return q.db.SelectContext(ctx, dest, sqlStr, args...)
}

func (q querier) exec(ctx context.Context, sqlStr string, args ...interface{}) (int64, error) {
	sqlStr, args = q.finalize(sqlStr, args)
	result, err := q.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		if dbutil.IsConflict(err) {
			return 0, appErr.ErrConflict
		}
		return 0, err
	}
	return result.RowsAffected()
}
