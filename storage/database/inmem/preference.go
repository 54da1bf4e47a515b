package inmemdb

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/trezcool/shule/core/preference"
)

type preferenceRepository struct {
	prefs    *table[json.RawMessage]
	settings *table[json.RawMessage]
}

func NewPreferenceRepository(db *DB) preference.Repository {
	return &preferenceRepository{prefs: db.preference, settings: db.setting}
}

func prefKey(userID, key string) string { return userID + "/" + key }

func copyRaw(raw json.RawMessage) json.RawMessage {
	return append(json.RawMessage(nil), raw...)
}

func (repo *preferenceRepository) GetPreference(_ context.Context, userID, key string) (json.RawMessage, error) {
	raw, err := get(repo.prefs, prefKey(userID, key), preference.ErrNotFound)
	return copyRaw(raw), err
}

func (repo *preferenceRepository) QueryPreferences(_ context.Context, userID string) ([]preference.Preference, error) {
	repo.prefs.mutex.RLock()
	defer repo.prefs.mutex.RUnlock()

	prefix := prefKey(userID, "")
	prefs := make([]preference.Preference, 0)
	for k, raw := range repo.prefs.rows {
		if strings.HasPrefix(k, prefix) {
			prefs = append(prefs, preference.Preference{Key: strings.TrimPrefix(k, prefix), Value: copyRaw(*raw)})
		}
	}
	return prefs, nil
}

func (repo *preferenceRepository) SetPreference(_ context.Context, userID, key string, value json.RawMessage) error {
	create(repo.prefs, prefKey(userID, key), copyRaw(value))
	return nil
}

func (repo *preferenceRepository) DeletePreference(_ context.Context, userID, key string) error {
	return remove(repo.prefs, prefKey(userID, key), preference.ErrNotFound)
}

func (repo *preferenceRepository) GetSetting(_ context.Context, key string) (json.RawMessage, error) {
	raw, err := get(repo.settings, key, preference.ErrNotFound)
	return copyRaw(raw), err
}

func (repo *preferenceRepository) SetSetting(_ context.Context, key string, value json.RawMessage) error {
	create(repo.settings, key, copyRaw(value))
	return nil
}
