// Package archive persists registry snapshots to SQLite for export/import.
// The live registries stay in memory; the archive is only touched by the
// export and import commands.
package archive

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/taskmindhq/taskmind/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Snapshot is one full registry state: tasks, learnings, and metrics.
type Snapshot struct {
	Tasks     []*models.Task
	Learnings []*models.LearningEntry
	Metrics   models.AgentMetrics
	SavedAt   time.Time
}

// Archive stores snapshots using modernc.org/sqlite (pure Go, no CGO).
type Archive struct {
	db *sql.DB
}

// Open opens (or creates) an archive database at the given path.
func Open(dbPath string) (*Archive, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create archive directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	// SQLite allows one concurrent writer; a single connection serializes
	// all access through Go's connection pool.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	return &Archive{db: db}, nil
}

// Migrate runs all embedded SQL migration files in order.
func (a *Archive) Migrate(ctx context.Context) error {
	_, err := a.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		var count int
		err := a.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := a.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := a.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (a *Archive) Close() error {
	return a.db.Close()
}

// SaveSnapshot replaces the archived snapshot with the given registry state.
func (a *Archive) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"tasks", "learnings", "metrics"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for _, t := range snap.Tasks {
		deps, err := json.Marshal(t.DependencyIDs)
		if err != nil {
			return fmt.Errorf("marshal dependencies for %s: %w", t.ID, err)
		}
		var completedAt any
		if t.CompletedAt != nil {
			completedAt = t.CompletedAt.UTC().Format(time.RFC3339Nano)
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO tasks
			(id, title, description, status, priority, category, parent_id,
			 dependency_ids, result, created_at, updated_at, completed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.Title, t.Description, string(t.Status), string(t.Priority),
			string(t.Category), t.ParentID, string(deps), t.Result,
			t.CreatedAt.UTC().Format(time.RFC3339Nano),
			t.UpdatedAt.UTC().Format(time.RFC3339Nano),
			completedAt)
		if err != nil {
			return fmt.Errorf("insert task %s: %w", t.ID, err)
		}
	}

	for _, e := range snap.Learnings {
		_, err := tx.ExecContext(ctx, `INSERT INTO learnings
			(id, timestamp, task_id, pattern, outcome, feedback, improvement)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.Timestamp.UTC().Format(time.RFC3339Nano), e.TaskID,
			e.Pattern, string(e.Outcome), e.Feedback, e.Improvement)
		if err != nil {
			return fmt.Errorf("insert learning %s: %w", e.ID, err)
		}
	}

	m := snap.Metrics
	lastActive := ""
	if !m.LastActive.IsZero() {
		lastActive = m.LastActive.UTC().Format(time.RFC3339Nano)
	}
	savedAt := snap.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now().UTC()
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO metrics
		(id, total_tasks, completed_tasks, failed_tasks, avg_completion_seconds,
		 success_rate, tokens_used, last_active, saved_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.TotalTasks, m.CompletedTasks, m.FailedTasks, m.AvgCompletionSeconds,
		m.SuccessRate, m.TokensUsed, lastActive,
		savedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert metrics: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads the archived snapshot back.
func (a *Archive) LoadSnapshot(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}

	rows, err := a.db.QueryContext(ctx, `SELECT id, title, description, status,
		priority, category, parent_id, dependency_ids, result, created_at,
		updated_at, completed_at FROM tasks ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t models.Task
		var status, priority, category, deps, createdAt, updatedAt string
		var completedAt sql.NullString
		err := rows.Scan(&t.ID, &t.Title, &t.Description, &status, &priority,
			&category, &t.ParentID, &deps, &t.Result, &createdAt, &updatedAt, &completedAt)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.Status = models.TaskStatus(status)
		t.Priority = models.TaskPriority(priority)
		t.Category = models.TaskCategory(category)
		if err := json.Unmarshal([]byte(deps), &t.DependencyIDs); err != nil {
			return nil, fmt.Errorf("parse dependencies for %s: %w", t.ID, err)
		}
		if t.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at for %s: %w", t.ID, err)
		}
		if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, fmt.Errorf("parse updated_at for %s: %w", t.ID, err)
		}
		if completedAt.Valid && completedAt.String != "" {
			at, err := parseTime(completedAt.String)
			if err != nil {
				return nil, fmt.Errorf("parse completed_at for %s: %w", t.ID, err)
			}
			t.CompletedAt = &at
		}
		snap.Tasks = append(snap.Tasks, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}

	lrows, err := a.db.QueryContext(ctx, `SELECT id, timestamp, task_id, pattern,
		outcome, feedback, improvement FROM learnings ORDER BY timestamp`)
	if err != nil {
		return nil, fmt.Errorf("query learnings: %w", err)
	}
	defer lrows.Close()

	for lrows.Next() {
		var e models.LearningEntry
		var ts, outcome string
		err := lrows.Scan(&e.ID, &ts, &e.TaskID, &e.Pattern, &outcome, &e.Feedback, &e.Improvement)
		if err != nil {
			return nil, fmt.Errorf("scan learning: %w", err)
		}
		e.Outcome = models.LearningOutcome(outcome)
		if e.Timestamp, err = parseTime(ts); err != nil {
			return nil, fmt.Errorf("parse timestamp for %s: %w", e.ID, err)
		}
		snap.Learnings = append(snap.Learnings, &e)
	}
	if err := lrows.Err(); err != nil {
		return nil, fmt.Errorf("iterate learnings: %w", err)
	}

	var lastActive, savedAt string
	err = a.db.QueryRowContext(ctx, `SELECT total_tasks, completed_tasks,
		failed_tasks, avg_completion_seconds, success_rate, tokens_used,
		last_active, saved_at FROM metrics WHERE id = 1`).Scan(
		&snap.Metrics.TotalTasks, &snap.Metrics.CompletedTasks,
		&snap.Metrics.FailedTasks, &snap.Metrics.AvgCompletionSeconds,
		&snap.Metrics.SuccessRate, &snap.Metrics.TokensUsed, &lastActive, &savedAt)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	if lastActive != "" {
		if snap.Metrics.LastActive, err = parseTime(lastActive); err != nil {
			return nil, fmt.Errorf("parse metrics last_active: %w", err)
		}
	}
	if savedAt != "" {
		if snap.SavedAt, err = parseTime(savedAt); err != nil {
			return nil, fmt.Errorf("parse snapshot saved_at: %w", err)
		}
	}

	return snap, nil
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
