package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PLUTO-NIX/slack-to-obsidian/internal/store"
)

const kvSchema = `
CREATE TABLE IF NOT EXISTS kv_entries (
	key        TEXT PRIMARY KEY,
	value      BYTEA NOT NULL,
	meta       JSONB,
	expires_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS kv_entries_expires_at_idx ON kv_entries (expires_at) WHERE expires_at IS NOT NULL;
`

// PostgresKV implements store.KV on the kv_entries table. Expired rows are
// hidden on read and removed by PurgeExpired.
type PostgresKV struct {
	db  *DB
	now func() time.Time
}

// NewPostgresKV creates a KV over db. Call EnsureSchema before first use.
func NewPostgresKV(db *DB) *PostgresKV {
	return &PostgresKV{db: db, now: time.Now}
}

var _ store.KV = (*PostgresKV)(nil)

// EnsureSchema creates the kv_entries table if it does not exist
func (p *PostgresKV) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, kvSchema); err != nil {
		return fmt.Errorf("failed to create kv schema: %w", err)
	}
	return nil
}

// Ping implements store.KV
func (p *PostgresKV) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Put implements store.KV
func (p *PostgresKV) Put(ctx context.Context, key string, value []byte, ttl time.Duration, meta map[string]string) error {
	metaJSON, err := encodeMeta(meta)
	if err != nil {
		return fmt.Errorf("failed to encode meta for %s: %w", key, err)
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO kv_entries (key, value, meta, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			meta = EXCLUDED.meta,
			expires_at = EXCLUDED.expires_at
	`, key, value, metaJSON, expiresAt(p.now(), ttl))
	if err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

// Get implements store.KV
func (p *PostgresKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := p.db.QueryRowContext(ctx, `
		SELECT value FROM kv_entries
		WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2)
	`, key, p.now()).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, true, nil
}

// List implements store.KV
func (p *PostgresKV) List(ctx context.Context, prefix string) ([]store.KeyInfo, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT key, meta FROM kv_entries
		WHERE key LIKE $1 ESCAPE '\' AND (expires_at IS NULL OR expires_at > $2)
	`, likePrefix(prefix), p.now())
	if err != nil {
		return nil, fmt.Errorf("failed to list %s*: %w", prefix, err)
	}
	defer rows.Close()

	var keys []store.KeyInfo
	for rows.Next() {
		var (
			name     string
			metaJSON []byte
		)
		if err := rows.Scan(&name, &metaJSON); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		meta, err := decodeMeta(metaJSON)
		if err != nil {
			return nil, fmt.Errorf("failed to decode meta for %s: %w", name, err)
		}
		keys = append(keys, store.KeyInfo{Name: name, Meta: meta})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list %s*: %w", prefix, err)
	}
	return keys, nil
}

// PurgeExpired deletes rows whose expiry has passed and returns how many
// were removed.
func (p *PostgresKV) PurgeExpired(ctx context.Context) (int64, error) {
	result, err := p.db.ExecContext(ctx, `
		DELETE FROM kv_entries WHERE expires_at IS NOT NULL AND expires_at <= $1
	`, p.now())
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired entries: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count purged entries: %w", err)
	}
	return n, nil
}

func expiresAt(now time.Time, ttl time.Duration) sql.NullTime {
	if ttl <= 0 {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: now.Add(ttl), Valid: true}
}

// encodeMeta maps a nil map to SQL NULL so untagged keys stay untagged
func encodeMeta(meta map[string]string) ([]byte, error) {
	if meta == nil {
		return nil, nil
	}
	return json.Marshal(meta)
}

func decodeMeta(raw []byte) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var meta map[string]string
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, err
	}
	return meta, nil
}

func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}
