package sqlxrepos

import (
	"context"
	"encoding/json"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/preference"
)

type preferenceRepository struct {
	db *sqlx.DB
}

var _ preference.Repository = (*preferenceRepository)(nil)

func NewPreferenceRepository(db *sqlx.DB) preference.Repository {
	return &preferenceRepository{db: db}
}

type preferenceRow struct {
	Key   string `db:"key"`
	Value []byte `db:"value"`
}

func (repo *preferenceRepository) GetPreference(ctx context.Context, userID, key string) (json.RawMessage, error) {
	if !validID(userID) {
		return nil, preference.ErrNotFound
	}
	var raw []byte
	q := "SELECT value FROM user_preferences WHERE user_id = ? AND key = ?"
	if err := getOne(ctx, repo.db, &raw, preference.ErrNotFound, q, userID, key); err != nil {
		return nil, err
	}
	return raw, nil
}

func (repo *preferenceRepository) QueryPreferences(ctx context.Context, userID string) ([]preference.Preference, error) {
	prefs := make([]preference.Preference, 0)
	if !validID(userID) {
		return prefs, nil
	}
	var rows []preferenceRow
	if err := repo.db.SelectContext(ctx, &rows, "SELECT key, value FROM user_preferences WHERE user_id = $1", userID); err != nil {
		return nil, errors.Wrap(err, "querying preferences")
	}
	for _, row := range rows {
		prefs = append(prefs, preference.Preference{Key: row.Key, Value: row.Value})
	}
	return prefs, nil
}

func (repo *preferenceRepository) SetPreference(ctx context.Context, userID, key string, value json.RawMessage) error {
	const q = `INSERT INTO user_preferences (user_id, key, value, updated_at) VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id, key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
	_, err := repo.db.ExecContext(ctx, q, userID, key, string(value), core.NowFunc().UTC())
	return errors.Wrap(err, "saving preference")
}

func (repo *preferenceRepository) DeletePreference(ctx context.Context, userID, key string) error {
	if !validID(userID) {
		return preference.ErrNotFound
	}
	res, err := repo.db.ExecContext(ctx, "DELETE FROM user_preferences WHERE user_id = $1 AND key = $2", userID, key)
	if err != nil {
		return errors.Wrap(err, "deleting preference")
	}
	return checkAffected(res, preference.ErrNotFound)
}

func (repo *preferenceRepository) GetSetting(ctx context.Context, key string) (json.RawMessage, error) {
	var raw []byte
	if err := getOne(ctx, repo.db, &raw, preference.ErrNotFound, "SELECT value FROM system_settings WHERE key = ?", key); err != nil {
		return nil, err
	}
	return raw, nil
}

func (repo *preferenceRepository) SetSetting(ctx context.Context, key string, value json.RawMessage) error {
	const q = `INSERT INTO system_settings (key, value, updated_at) VALUES ($1, $2, $3)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
	_, err := repo.db.ExecContext(ctx, q, key, string(value), core.NowFunc().UTC())
	return errors.Wrap(err, "saving setting")
}
