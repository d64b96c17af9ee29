// Package db provides the Postgres connection, schema migration, and the
// stores backing queue/ledger snapshots, OAuth tokens, and the catalog
// session.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'

	"github.com/onnwee/song-tender/crypto"
)

var (
	encryptor     crypto.Encryptor
	encryptorOnce sync.Once
	encryptorErr  error
)

// getEncryptor lazily builds the AES encryptor from ENCRYPTION_KEY. Returns
// nil (no error) when encryption is not configured.
func getEncryptor() (crypto.Encryptor, error) {
	encryptorOnce.Do(func() {
		key := os.Getenv("ENCRYPTION_KEY")
		if key == "" {
			slog.Warn("ENCRYPTION_KEY not set, tokens and catalog sessions stored in plaintext")
			return
		}
		enc, err := crypto.NewAESEncryptor(key)
		if err != nil {
			encryptorErr = fmt.Errorf("init encryption: %w", err)
			return
		}
		encryptor = enc
		slog.Info("at-rest encryption enabled (AES-256-GCM)")
	})
	return encryptor, encryptorErr
}

// Connect opens a Postgres connection using the given DSN.
func Connect(dsn string) (*sql.DB, error) {
	return sql.Open("pgx", dsn)
}

// Migrate applies idempotent schema changes for all required tables.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS snapshots (
			name TEXT PRIMARY KEY,
			data JSONB NOT NULL,
			updated_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS oauth_tokens (
			provider TEXT PRIMARY KEY,
			access_token TEXT,
			refresh_token TEXT,
			expires_at TIMESTAMPTZ,
			scope TEXT,
			updated_at TIMESTAMPTZ DEFAULT NOW(),
			encrypted BOOLEAN DEFAULT FALSE
		)`,
		`CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value TEXT,
			updated_at TIMESTAMPTZ DEFAULT NOW()
		)`,
	}
	for i, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migrate step %d failed: %w", i, err)
		}
	}
	return nil
}

// SnapshotStore satisfies the queue and ledger snapshot interfaces over the
// snapshots table.
type SnapshotStore struct{ DB *sql.DB }

func (s *SnapshotStore) SaveSnapshot(ctx context.Context, name string, data []byte) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO snapshots(name, data, updated_at) VALUES($1,$2,NOW())
		 ON CONFLICT(name) DO UPDATE SET data=EXCLUDED.data, updated_at=NOW()`,
		name, data)
	return err
}

func (s *SnapshotStore) LoadSnapshot(ctx context.Context, name string) ([]byte, error) {
	var data []byte
	err := s.DB.QueryRowContext(ctx, `SELECT data FROM snapshots WHERE name=$1`, name).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return data, err
}

// UpsertOAuthToken stores or updates a provider's token row, encrypting when
// ENCRYPTION_KEY is configured.
func UpsertOAuthToken(ctx context.Context, dbx *sql.DB, provider, access, refresh string, expiry time.Time, scope string) error {
	enc, err := getEncryptor()
	if err != nil {
		return err
	}
	encrypted := false
	if enc != nil {
		encrypted = true
		if access, err = crypto.EncryptString(enc, access); err != nil {
			return fmt.Errorf("encrypt access token: %w", err)
		}
		if refresh, err = crypto.EncryptString(enc, refresh); err != nil {
			return fmt.Errorf("encrypt refresh token: %w", err)
		}
	}
	_, err = dbx.ExecContext(ctx,
		`INSERT INTO oauth_tokens(provider, access_token, refresh_token, expires_at, scope, encrypted, updated_at)
		 VALUES($1,$2,$3,$4,$5,$6,NOW())
		 ON CONFLICT(provider) DO UPDATE SET
		   access_token=EXCLUDED.access_token,
		   refresh_token=EXCLUDED.refresh_token,
		   expires_at=EXCLUDED.expires_at,
		   scope=EXCLUDED.scope,
		   encrypted=EXCLUDED.encrypted,
		   updated_at=NOW()`,
		provider, access, refresh, expiry, scope, encrypted)
	return err
}

// GetOAuthToken retrieves a stored token row, decrypting when needed; zero
// values when absent.
func GetOAuthToken(ctx context.Context, dbx *sql.DB, provider string) (access, refresh string, expiry time.Time, scope string, err error) {
	var encrypted bool
	row := dbx.QueryRowContext(ctx,
		`SELECT access_token, refresh_token, expires_at, scope, encrypted FROM oauth_tokens WHERE provider=$1`, provider)
	err = row.Scan(&access, &refresh, &expiry, &scope, &encrypted)
	if err == sql.ErrNoRows {
		return "", "", time.Time{}, "", nil
	}
	if err != nil {
		return "", "", time.Time{}, "", err
	}
	if encrypted {
		enc, encErr := getEncryptor()
		if encErr != nil {
			return "", "", time.Time{}, "", encErr
		}
		if enc == nil {
			return "", "", time.Time{}, "", fmt.Errorf("token is encrypted but ENCRYPTION_KEY not configured")
		}
		if access, err = crypto.DecryptString(enc, access); err != nil {
			return "", "", time.Time{}, "", fmt.Errorf("decrypt access token: %w", err)
		}
		if refresh, err = crypto.DecryptString(enc, refresh); err != nil {
			return "", "", time.Time{}, "", fmt.Errorf("decrypt refresh token: %w", err)
		}
	}
	return access, refresh, expiry, scope, nil
}

// TokenStoreAdapter implements youtubeapi.TokenStore over the table above.
type TokenStoreAdapter struct{ DB *sql.DB }

func (t *TokenStoreAdapter) UpsertOAuthToken(ctx context.Context, provider, accessToken, refreshToken string, expiry time.Time, scope string) error {
	return UpsertOAuthToken(ctx, t.DB, provider, accessToken, refreshToken, expiry, scope)
}

func (t *TokenStoreAdapter) GetOAuthToken(ctx context.Context, provider string) (string, string, time.Time, string, error) {
	return GetOAuthToken(ctx, t.DB, provider)
}

const catalogSessionKey = "catalog_session"

// CatalogSessionStore persists serialized catalog session cookies in kv,
// encrypted at rest when configured. Implements catalog.SessionStore.
type CatalogSessionStore struct{ DB *sql.DB }

func (s *CatalogSessionStore) SaveSession(ctx context.Context, data string) error {
	enc, err := getEncryptor()
	if err != nil {
		return err
	}
	if enc != nil {
		if data, err = crypto.EncryptString(enc, data); err != nil {
			return fmt.Errorf("encrypt session: %w", err)
		}
	}
	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO kv(key, value, updated_at) VALUES($1,$2,NOW())
		 ON CONFLICT(key) DO UPDATE SET value=EXCLUDED.value, updated_at=NOW()`,
		catalogSessionKey, data)
	return err
}

func (s *CatalogSessionStore) LoadSession(ctx context.Context) (string, error) {
	var data string
	err := s.DB.QueryRowContext(ctx, `SELECT value FROM kv WHERE key=$1`, catalogSessionKey).Scan(&data)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	enc, err := getEncryptor()
	if err != nil {
		return "", err
	}
	if enc != nil && data != "" {
		if data, err = crypto.DecryptString(enc, data); err != nil {
			return "", fmt.Errorf("decrypt session: %w", err)
		}
	}
	return data, nil
}
