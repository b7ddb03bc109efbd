package costs

import (
	"database/sql"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	. "github.com/wayfarelabs/faregate/internal/logging"
	"github.com/wayfarelabs/faregate/internal/paths"
)

const (
	flushInterval = 30 * time.Second
	usageDBFile   = "usage.db"
	dbOpenOptions = "?_busy_timeout=5000"
)

const ledgerSchemaSQL = `CREATE TABLE IF NOT EXISTS usage_entries (
	id            TEXT PRIMARY KEY,
	model         TEXT NOT NULL,
	role          TEXT NOT NULL,
	tenant_id     TEXT NOT NULL,
	input_tokens  INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	cost          REAL NOT NULL,
	recorded_at   INTEGER NOT NULL
)`

// InitPersistence opens the usage DB, restores prior entries into the
// in-memory ledger, and starts a background flush ticker. Degrades to
// in-memory only if anything fails. An empty dataDir resolves to the
// default data directory.
func (t *Tracker) InitPersistence(dataDir string) {
	var dbPath string
	var err error

	if dataDir != "" {
		dbPath = filepath.Join(dataDir, usageDBFile)
	} else {
		dbPath, err = paths.DataPath(usageDBFile)
		if err != nil {
			L_warn("costs: persistence disabled, cannot resolve data path", "error", err)
			return
		}
	}

	if err := paths.EnsureParentDir(dbPath); err != nil {
		L_warn("costs: persistence disabled, cannot create directory", "error", err)
		return
	}

	db, err := sql.Open("sqlite3", dbPath+dbOpenOptions)
	if err != nil {
		L_warn("costs: persistence disabled, cannot open database", "error", err)
		return
	}

	if _, err := db.Exec(ledgerSchemaSQL); err != nil {
		L_warn("costs: persistence disabled, schema creation failed", "error", err)
		db.Close()
		return
	}

	t.mu.Lock()
	t.db = db
	t.stopSave = make(chan struct{})
	t.mu.Unlock()

	loaded, err := t.restore()
	if err != nil {
		L_warn("costs: failed to restore ledger", "error", err)
	} else if loaded > 0 {
		L_info("costs: restored usage ledger", "entries", loaded)
	}

	go t.flushLoop()
}

// flushLoop writes pending entries until stopSave is closed.
func (t *Tracker) flushLoop() {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := t.flush(); err != nil {
				L_warn("costs: periodic flush failed", "error", err)
			}
		case <-t.stopSave:
			return
		}
	}
}

// Close stops the flush ticker, writes any pending entries, and closes
// the DB. Safe to call when persistence was never initialized.
func (t *Tracker) Close() error {
	t.mu.Lock()
	if t.db == nil {
		t.mu.Unlock()
		return nil
	}
	if t.stopSave != nil {
		close(t.stopSave)
		t.stopSave = nil
	}
	t.mu.Unlock()

	if err := t.flush(); err != nil {
		L_warn("costs: final flush failed", "error", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	err := t.db.Close()
	t.db = nil
	return err
}

// flush inserts pending entries in one transaction. Failed batches are
// requeued so ledger records are not dropped on a transient DB error.
func (t *Tracker) flush() error {
	t.mu.Lock()
	db := t.db
	batch := t.pending
	t.pending = nil
	t.mu.Unlock()

	if db == nil || len(batch) == 0 {
		return nil
	}

	err := insertEntries(db, batch)
	if err != nil {
		t.mu.Lock()
		t.pending = append(batch, t.pending...)
		t.mu.Unlock()
	}
	return err
}

func insertEntries(db *sql.DB, batch []UsageEntry) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.Prepare(`INSERT OR IGNORE INTO usage_entries
		(id, model, role, tenant_id, input_tokens, output_tokens, cost, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range batch {
		if _, err := stmt.Exec(e.ID, e.Model, e.Role, e.TenantID,
			e.InputTokens, e.OutputTokens, e.Cost, e.Timestamp.UnixNano()); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// restore loads persisted entries into the in-memory ledger in their
// original insertion order.
func (t *Tracker) restore() (int, error) {
	t.mu.Lock()
	db := t.db
	t.mu.Unlock()

	rows, err := db.Query(`SELECT id, model, role, tenant_id, input_tokens,
		output_tokens, cost, recorded_at FROM usage_entries ORDER BY rowid`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var restored []UsageEntry
	for rows.Next() {
		var e UsageEntry
		var recordedAt int64
		if err := rows.Scan(&e.ID, &e.Model, &e.Role, &e.TenantID,
			&e.InputTokens, &e.OutputTokens, &e.Cost, &recordedAt); err != nil {
			L_warn("costs: failed to scan usage row", "error", err)
			continue
		}
		e.Timestamp = time.Unix(0, recordedAt)
		restored = append(restored, e)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	if len(restored) > 0 {
		t.mu.Lock()
		t.entries = append(restored, t.entries...)
		t.mu.Unlock()
	}

	return len(restored), nil
}

// clearPersistedLocked purges the persisted ledger. Caller holds t.mu.
func (t *Tracker) clearPersistedLocked() {
	if t.db == nil {
		return
	}
	if _, err := t.db.Exec("DELETE FROM usage_entries"); err != nil {
		L_warn("costs: failed to clear persisted ledger", "error", err)
	}
}
