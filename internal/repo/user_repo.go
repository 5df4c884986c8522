package repo

import (
	"context"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"

	"github.com/CerberoGS/CATAI-sub000/internal/model"
)

var userFields = []string{"id", "email", "password_hash", "ctime", "mtime"}

type UserRepo struct {
	q querier
}

func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{q: querier{db: db}}
}

func (r *UserRepo) Create(ctx context.Context, user *model.User) error {
	data := map[string]interface{}{
		"id":            user.ID,
		"email":         user.Email,
		"password_hash": user.PasswordHash,
		"ctime":         user.Ctime,
		"mtime":         user.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("users", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	_, err = r.q.exec(ctx, sqlStr, args...)
	return err
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	sqlStr, args, err := builder.BuildSelect("users", map[string]interface{}{"email": email}, userFields)
	if err != nil {
		return nil, err
	}
	var user model.User
	if err := r.q.get(ctx, &user, sqlStr, args...); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepo) GetByID(ctx context.Context, userID string) (*model.User, error) {
	sqlStr, args, err := builder.BuildSelect("users", map[string]interface{}{"id": userID}, userFields)
	if err != nil {
		return nil, err
	}
	var user model.User
	if err := r.q.get(ctx, &user, sqlStr, args...); err != nil {
		return nil, err
	}
	return &user, nil
}
