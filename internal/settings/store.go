package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/wayfarelabs/faregate/internal/paths"
)

// Store is the persisted settings layer. Fetch returns (nil, nil) when
// the tenant has nothing configured; that is an expected outcome, not
// an error. The owner calls Close once during shutdown.
type Store interface {
	Fetch(ctx context.Context, tenantID string) (*TenantSettings, error)
	Save(ctx context.Context, tenantID string, s *TenantSettings) error
	Delete(ctx context.Context, tenantID string) error
	Close() error
}

const (
	settingsDBFile = "settings.db"
	dbOpenOptions  = "?_busy_timeout=5000"
)

const storeSchemaSQL = `CREATE TABLE IF NOT EXISTS tenant_settings (
	tenant_id  TEXT PRIMARY KEY,
	settings   TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`

// SQLiteStore keeps each tenant's settings as one JSON document.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and creates if needed) the settings database
// under dataDir. An empty dataDir resolves to the default data
// directory.
func NewSQLiteStore(dataDir string) (*SQLiteStore, error) {
	var dbPath string
	var err error

	if dataDir != "" {
		dbPath = filepath.Join(dataDir, settingsDBFile)
	} else {
		dbPath, err = paths.DataPath(settingsDBFile)
		if err != nil {
			return nil, fmt.Errorf("settings: resolve data path: %w", err)
		}
	}

	if err := paths.EnsureParentDir(dbPath); err != nil {
		return nil, fmt.Errorf("settings: create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+dbOpenOptions)
	if err != nil {
		return nil, fmt.Errorf("settings: open database: %w", err)
	}

	if _, err := db.Exec(storeSchemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("settings: create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Fetch loads one tenant's settings document.
func (s *SQLiteStore) Fetch(ctx context.Context, tenantID string) (*TenantSettings, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		"SELECT settings FROM tenant_settings WHERE tenant_id = ?", tenantID).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("settings: fetch %s: %w", tenantID, err)
	}

	var ts TenantSettings
	if err := json.Unmarshal([]byte(doc), &ts); err != nil {
		return nil, fmt.Errorf("settings: parse %s: %w", tenantID, err)
	}
	return &ts, nil
}

// Save upserts one tenant's settings document.
func (s *SQLiteStore) Save(ctx context.Context, tenantID string, ts *TenantSettings) error {
	doc, err := json.Marshal(ts)
	if err != nil {
		return fmt.Errorf("settings: marshal %s: %w", tenantID, err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO tenant_settings (tenant_id, settings, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(tenant_id) DO UPDATE SET settings = excluded.settings, updated_at = excluded.updated_at`,
		tenantID, string(doc), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("settings: save %s: %w", tenantID, err)
	}
	return nil
}

// Delete removes one tenant's settings.
func (s *SQLiteStore) Delete(ctx context.Context, tenantID string) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM tenant_settings WHERE tenant_id = ?", tenantID); err != nil {
		return fmt.Errorf("settings: delete %s: %w", tenantID, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// MemoryStore is an in-memory Store for tests and harnesses.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]*TenantSettings
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]*TenantSettings)}
}

// Fetch returns a deep copy of the stored settings, or (nil, nil).
func (s *MemoryStore) Fetch(_ context.Context, tenantID string) (*TenantSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data[tenantID].Clone(), nil
}

// Save stores a deep copy of the settings.
func (s *MemoryStore) Save(_ context.Context, tenantID string, ts *TenantSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[tenantID] = ts.Clone()
	return nil
}

// Delete removes one tenant's settings.
func (s *MemoryStore) Delete(_ context.Context, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, tenantID)
	return nil
}

// Close is a no-op; nothing is held open.
func (s *MemoryStore) Close() error {
	return nil
}
