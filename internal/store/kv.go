package store

import (
	"database/sql"
	"errors"
)

// GetKV reads one row of the generic kv table (§6 layout), used for
// small pieces of store-wide bookkeeping such as schema version markers.
func (s *Store) GetKV(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var v string
	err := s.db.QueryRow("SELECT v FROM kv WHERE k = ?", key).Scan(&v)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return v, true, nil
}

// SetKV upserts one row of the kv table.
func (s *Store) SetKV(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO kv (k, v, ts) VALUES (?, ?, ?)
		ON CONFLICT(k) DO UPDATE SET v = excluded.v, ts = excluded.ts`,
		key, value, nowUnix())
	return err
}
