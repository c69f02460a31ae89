package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/wricardo/mcp-training/storageyard/game/service"
)

var ErrClosed = errors.New("ledger is closed")

// timeLayout is fixed width so stored timestamps sort as text
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var _ service.EpisodeRecorder = (*SQLiteLedger)(nil)

// SQLiteLedger records finished episodes in a SQLite database
type SQLiteLedger struct {
	db     *sql.DB
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
}

// OpenSQLite opens or creates the ledger database at path
func OpenSQLite(path string, logger *zap.Logger) (*SQLiteLedger, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if logger == nil {
		logger = zap.NewNop()
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

	logger.Info("episode ledger opened", zap.String("path", path))
	return &SQLiteLedger{db: db, logger: logger}, nil
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
		`CREATE TABLE IF NOT EXISTS episodes (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			config_name TEXT NOT NULL,
			episode INTEGER NOT NULL,
			steps INTEGER NOT NULL,
			reward REAL NOT NULL,
			completions INTEGER NOT NULL,
			level INTEGER NOT NULL,
			terminated INTEGER NOT NULL,
			truncated INTEGER NOT NULL,
			finished_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS episodes_session ON episodes(session_id, finished_at);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database. Further calls return ErrClosed.
func (l *SQLiteLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.db.Close()
}

func (l *SQLiteLedger) check() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	return nil
}

// RecordEpisode inserts one finished episode. Records without an ID get one.
func (l *SQLiteLedger) RecordEpisode(ctx context.Context, rec service.EpisodeRecord) error {
	if err := l.check(); err != nil {
		return err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = time.Now()
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO episodes(id, session_id, config_name, episode, steps, reward, completions, level, terminated, truncated, finished_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SessionID, rec.ConfigName, rec.Episode, rec.Steps, rec.Reward,
		rec.Completions, rec.Level, boolInt(rec.Terminated), boolInt(rec.Truncated),
		rec.FinishedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert episode: %w", err)
	}
	return nil
}

// ListEpisodes returns a session's episodes, oldest first. limit <= 0 means all.
func (l *SQLiteLedger) ListEpisodes(ctx context.Context, sessionID string, limit int) ([]service.EpisodeRecord, error) {
	if err := l.check(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT id, session_id, config_name, episode, steps, reward, completions, level, terminated, truncated, finished_at
		 FROM episodes WHERE session_id = ? ORDER BY finished_at, episode LIMIT ?`,
		sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query episodes: %w", err)
	}
	defer rows.Close()

	var out []service.EpisodeRecord
	for rows.Next() {
		var rec service.EpisodeRecord
		var terminated, truncated int
		var finished string
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.ConfigName, &rec.Episode, &rec.Steps, &rec.Reward,
			&rec.Completions, &rec.Level, &terminated, &truncated, &finished); err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		rec.Terminated = terminated != 0
		rec.Truncated = truncated != 0
		if t, err := time.Parse(timeLayout, finished); err == nil {
			rec.FinishedAt = t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Stats aggregates a session's episodes in SQL
func (l *SQLiteLedger) Stats(ctx context.Context, sessionID string) (*service.EpisodeStats, error) {
	if err := l.check(); err != nil {
		return nil, err
	}

	stats := &service.EpisodeStats{SessionID: sessionID}
	var meanReward, meanSteps, bestReward sql.NullFloat64
	var cleared, maxLevel, completions sql.NullInt64
	err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*), SUM(terminated), AVG(reward), AVG(steps), MAX(reward), MAX(level), SUM(completions)
		 FROM episodes WHERE session_id = ?`, sessionID).
		Scan(&stats.Episodes, &cleared, &meanReward, &meanSteps, &bestReward, &maxLevel, &completions)
	if err != nil {
		return nil, fmt.Errorf("episode stats: %w", err)
	}

	stats.Cleared = int(cleared.Int64)
	stats.MeanReward = meanReward.Float64
	stats.MeanSteps = meanSteps.Float64
	stats.BestReward = bestReward.Float64
	stats.MaxLevel = int(maxLevel.Int64)
	stats.Completions = int(completions.Int64)
	if stats.Episodes > 0 {
		stats.ClearRate = float64(stats.Cleared) / float64(stats.Episodes)
	}
	return stats, nil
}

// Prune deletes episodes finished before cutoff and reports how many went
func (l *SQLiteLedger) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := l.check(); err != nil {
		return 0, err
	}
	res, err := l.db.ExecContext(ctx, `DELETE FROM episodes WHERE finished_at < ?`, cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("prune episodes: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		l.logger.Info("episode ledger pruned", zap.Int64("rows", n))
	}
	return n, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
