package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"weatherbot/internal/recurrence"
	"weatherbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// Store is the durable subscription table.
//
// Mutations (Create/Delete) are serialized by a store-level mutex: two
// concurrent sub/rm calls can never race a sequence allocation or observe a
// half-applied delete. Reads run lock-free on the same connection and see a
// consistent committed snapshot.
type Store struct {
	db   *sql.DB
	path string
	log  logx.Logger

	// wmu serializes mutations (single-writer discipline).
	wmu sync.Mutex
}

func Open(cfg Config, log logx.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if dir := filepath.Dir(cfg.Path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	// WAL + synchronous keeps acknowledged writes durable across crashes
	// without paying a full fsync per statement.
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = FULL")

	st := &Store{db: db, path: cfg.Path, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

// Path returns the database file location the store was opened with.
func (s *Store) Path() string { return s.path }

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Create allocates the owner's next sequence id and persists the record.
// The returned Subscription carries the allocated Seq and CreatedAt.
func (s *Store) Create(ctx context.Context, sub Subscription) (Subscription, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	sub.Enabled = true

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Subscription{}, persistErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	var maxSeq sql.NullInt64
	if err := tx.QueryRowContext(ctx,
		`SELECT MAX(seq) FROM subscriptions WHERE owner = ?`, sub.Owner).Scan(&maxSeq); err != nil {
		return Subscription{}, persistErr(err)
	}
	sub.Seq = maxSeq.Int64 + 1

	_, err = tx.ExecContext(ctx,
		`INSERT INTO subscriptions(owner, seq, chat_id, thread_id, city, raw_description,
		    minute, hour, dow, timezone, created_at, enabled)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
		sub.Owner, sub.Seq, sub.ChatID, sub.ThreadID, sub.City, sub.RawDescription,
		sub.Rule.Minute, sub.Rule.Hour, sub.Rule.DowField(), sub.Rule.Timezone,
		sub.CreatedAt.Format(time.RFC3339Nano), boolToInt(sub.Enabled),
	)
	if err != nil {
		return Subscription{}, persistErr(err)
	}
	if err := tx.Commit(); err != nil {
		return Subscription{}, persistErr(err)
	}
	return sub, nil
}

// List returns the owner's subscriptions in creation order.
func (s *Store) List(ctx context.Context, owner string) ([]Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		selectCols+` WHERE owner = ? ORDER BY seq ASC`, owner)
	if err != nil {
		return nil, persistErr(err)
	}
	defer rows.Close()
	return scanSubscriptions(rows)
}

// Delete removes the record at the given 1-based display index and returns
// it so the caller can cancel its trigger. Out-of-range indexes yield a
// NotFound error and no side effects.
func (s *Store) Delete(ctx context.Context, owner string, index int) (Subscription, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	if index < 1 {
		return Subscription{}, &StoreError{Kind: NotFound}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Subscription{}, persistErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx,
		selectCols+` WHERE owner = ? ORDER BY seq ASC`, owner)
	if err != nil {
		return Subscription{}, persistErr(err)
	}
	subs, err := scanSubscriptions(rows)
	rows.Close()
	if err != nil {
		return Subscription{}, err
	}
	if index > len(subs) {
		return Subscription{}, &StoreError{Kind: NotFound}
	}
	victim := subs[index-1]

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE owner = ? AND seq = ?`, victim.Owner, victim.Seq); err != nil {
		return Subscription{}, persistErr(err)
	}
	if err := tx.Commit(); err != nil {
		return Subscription{}, persistErr(err)
	}
	return victim, nil
}

// DeleteBySeq removes a record by its stable sequence id. Used for rollback
// when trigger registration fails after a successful create.
func (s *Store) DeleteBySeq(ctx context.Context, owner string, seq int64) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE owner = ? AND seq = ?`, owner, seq)
	return persistErr(err)
}

// LoadAll returns every subscription. Called once at boot to rebuild the
// live trigger set.
func (s *Store) LoadAll(ctx context.Context) ([]Subscription, error) {
	rows, err := s.db.QueryContext(ctx, selectCols+` ORDER BY owner, seq ASC`)
	if err != nil {
		return nil, persistErr(err)
	}
	defer rows.Close()
	return scanSubscriptions(rows)
}

const selectCols = `SELECT owner, seq, chat_id, thread_id, city, raw_description,
    minute, hour, dow, timezone, created_at, enabled FROM subscriptions`

func scanSubscriptions(rows *sql.Rows) ([]Subscription, error) {
	var out []Subscription
	for rows.Next() {
		var (
			sub       Subscription
			dow       string
			createdAt string
			enabled   int
		)
		if err := rows.Scan(&sub.Owner, &sub.Seq, &sub.ChatID, &sub.ThreadID,
			&sub.City, &sub.RawDescription, &sub.Rule.Minute, &sub.Rule.Hour,
			&dow, &sub.Rule.Timezone, &createdAt, &enabled); err != nil {
			return nil, persistErr(err)
		}
		days, err := recurrence.ParseDowField(dow)
		if err != nil {
			return nil, persistErr(err)
		}
		sub.Rule.DaysOfWeek = days
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			sub.CreatedAt = t
		}
		sub.Enabled = enabled != 0
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr(err)
	}
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
