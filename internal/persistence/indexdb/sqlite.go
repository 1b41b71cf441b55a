package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"claimstore.ai/internal/store"
)

// SQLiteIndex is a queryable read-model of purchases and price changes.
// Writes are queued and applied by a single goroutine; nothing in a purchase waits on it.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	// mu guards closed and the send on ch against close(ch).
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

// Fixed-width so timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type reqKind int

const (
	reqPurchase reqKind = iota + 1
	reqPriceChange
)

type req struct {
	kind reqKind

	purchase store.Receipt
	change   store.PriceChange
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 4096),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS purchases (
			id TEXT PRIMARY KEY,
			at TEXT NOT NULL,
			player_id TEXT NOT NULL,
			player_name TEXT NOT NULL,
			offer TEXT NOT NULL,
			currency TEXT NOT NULL,
			quantity INTEGER NOT NULL,
			cost INTEGER NOT NULL,
			available INTEGER NOT NULL,
			success INTEGER NOT NULL,
			quota_before INTEGER NOT NULL,
			quota_after INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_purchases_player_at ON purchases(player_id, at);`,
		`CREATE TABLE IF NOT EXISTS price_changes (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			at TEXT NOT NULL,
			actor TEXT NOT NULL,
			offer TEXT NOT NULL,
			old_price INTEGER NOT NULL,
			new_price INTEGER NOT NULL
		);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// Dropped reports how many records were discarded because the queue was full.
func (s *SQLiteIndex) Dropped() int64 { return s.dropped.Load() }

func (s *SQLiteIndex) enqueue(r req) {
	if s == nil {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- r:
	default:
		// The audit log remains the source of truth.
		s.dropped.Add(1)
	}
}

func (s *SQLiteIndex) RecordPurchase(r store.Receipt) {
	s.enqueue(req{kind: reqPurchase, purchase: r})
}

func (s *SQLiteIndex) RecordPriceChange(c store.PriceChange) {
	s.enqueue(req{kind: reqPriceChange, change: c})
}

// RecentPurchases returns a player's latest purchase attempts, newest first.
// An empty playerID matches every player.
func (s *SQLiteIndex) RecentPurchases(ctx context.Context, playerID string, limit int) ([]store.Receipt, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `SELECT id,at,player_id,player_name,offer,currency,quantity,cost,available,success,quota_before,quota_after
		FROM purchases WHERE (?1 = '' OR player_id = ?1) ORDER BY at DESC, id DESC LIMIT ?2`
	rows, err := s.db.QueryContext(ctx, q, playerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Receipt
	for rows.Next() {
		var (
			r       store.Receipt
			at      string
			success int
		)
		if err := rows.Scan(&r.ID, &at, &r.PlayerID, &r.PlayerName, &r.Offer, &r.Currency, &r.Quantity, &r.Cost, &r.Available, &success, &r.QuotaBefore, &r.QuotaAfter); err != nil {
			return nil, err
		}
		r.At, _ = time.Parse(timeLayout, at)
		r.Success = success != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertPurchase, _ := s.db.Prepare(`INSERT OR REPLACE INTO purchases(id,at,player_id,player_name,offer,currency,quantity,cost,available,success,quota_before,quota_after) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertChange, _ := s.db.Prepare(`INSERT INTO price_changes(at,actor,offer,old_price,new_price) VALUES(?,?,?,?,?)`)
	defer func() {
		if insertPurchase != nil {
			_ = insertPurchase.Close()
		}
		if insertChange != nil {
			_ = insertChange.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 256
		commitMaxWait = time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqPurchase:
			p := r.purchase
			if insertPurchase == nil {
				continue
			}
			success := 0
			if p.Success {
				success = 1
			}
			if _, err := tx.Stmt(insertPurchase).Exec(
				p.ID,
				p.At.UTC().Format(timeLayout),
				p.PlayerID,
				p.PlayerName,
				p.Offer,
				p.Currency,
				p.Quantity,
				p.Cost,
				p.Available,
				success,
				p.QuotaBefore,
				p.QuotaAfter,
			); err != nil {
				rollback()
				continue
			}
			opCount++

		case reqPriceChange:
			c := r.change
			if insertChange == nil {
				continue
			}
			if _, err := tx.Stmt(insertChange).Exec(
				c.At.UTC().Format(timeLayout),
				c.Actor,
				c.Offer,
				c.Old,
				c.New,
			); err != nil {
				rollback()
				continue
			}
			opCount++
		}
		// Commit on batch size, age, or an empty queue.
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait || len(s.ch) == 0 {
			commit()
		}
	}

	commit()
}
