package repo

import (
	"context"
	"time"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"

	"github.com/CerberoGS/CATAI-sub000/internal/model"
	appErr "github.com/CerberoGS/CATAI-sub000/internal/pkg/errors"
)

type SettingsRepo struct {
	q querier
}

func NewSettingsRepo(db *sqlx.DB) *SettingsRepo {
	return &SettingsRepo{q: querier{db: db}}
}

func (r *SettingsRepo) UpsertKey(ctx context.Context, key *model.UserAPIKey) error {
	const query = `
		INSERT INTO user_api_keys (user_id, provider, key_enc, ctime, mtime)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, provider) DO UPDATE SET key_enc = excluded.key_enc, mtime = excluded.mtime`
	_, err := r.q.exec(ctx, query, key.UserID, key.Provider, key.KeyEnc, key.Ctime, key.Mtime)
	return err
}

func (r *SettingsRepo) GetKey(ctx context.Context, userID, provider string) (*model.UserAPIKey, error) {
	where := map[string]interface{}{"user_id": userID, "provider": provider}
	sqlStr, args, err := builder.BuildSelect("user_api_keys", where, []string{"user_id", "provider", "key_enc", "ctime", "mtime"})
	if err != nil {
		return nil, err
	}
	var key model.UserAPIKey
	if err := r.q.get(ctx, &key, sqlStr, args...); err != nil {
		return nil, err
	}
	return &key, nil
}

func (r *SettingsRepo) ListKeyProviders(ctx context.Context, userID string) ([]string, error) {
	where := map[string]interface{}{"user_id": userID, "_orderby": "provider asc"}
	sqlStr, args, err := builder.BuildSelect("user_api_keys", where, []string{"provider"})
	if err != nil {
		return nil, err
	}
	providers := make([]string, 0)
	if err := r.q.selectAll(ctx, &providers, sqlStr, args...); err != nil {
		return nil, err
	}
	return providers, nil
}

func (r *SettingsRepo) DeleteKey(ctx context.Context, userID, provider string) error {
	sqlStr, args, err := builder.BuildDelete("user_api_keys", map[string]interface{}{"user_id": userID, "provider": provider})
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

func (r *SettingsRepo) GetSettings(ctx context.Context, userID string) (*model.UserSettings, error) {
	sqlStr, args, err := builder.BuildSelect("user_settings", map[string]interface{}{"user_id": userID}, []string{"user_id", "extraction_prompt", "mtime"})
	if err != nil {
		return nil, err
	}
	var settings model.UserSettings
	if err := r.q.get(ctx, &settings, sqlStr, args...); err != nil {
		return nil, err
	}
	return &settings, nil
}

func (r *SettingsRepo) UpsertPrompt(ctx context.Context, userID, prompt string) error {
	const query = `
		INSERT INTO user_settings (user_id, extraction_prompt, mtime)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET extraction_prompt = excluded.extraction_prompt, mtime = excluded.mtime`
	_, err := r.q.exec(ctx, query, userID, prompt, time.Now().Unix())
	return err
}
