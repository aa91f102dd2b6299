package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cuemby/clusterrouter/pkg/log"
	"github.com/cuemby/clusterrouter/pkg/metrics"
	"github.com/cuemby/clusterrouter/pkg/types"
)

const orphanError = "orphaned: node restarted while task was in flight"

// pollInterval is how often WaitForTerminal re-checks a task's status.
var pollInterval = 500 * time.Millisecond

// Store is the embedded relational task queue.
type Store struct {
	db *sql.DB
}

// Open creates (or reuses) the SQLite file at path, applies schema, and
// sweeps any task left in assigned/running from a prior process into a
// terminal failed state (see DESIGN.md, "Orphaned tasks on restart").
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single-file SQLite: serialize writers ourselves

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.sweepOrphans(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS task_queue (
		task_id               TEXT PRIMARY KEY,
		task_type             TEXT NOT NULL,
		command               TEXT NOT NULL DEFAULT '',
		script                TEXT NOT NULL DEFAULT '',
		requires_os           TEXT NOT NULL DEFAULT '',
		requires_arch         TEXT NOT NULL DEFAULT '',
		requires_capabilities TEXT NOT NULL DEFAULT '[]',
		priority              INTEGER NOT NULL DEFAULT 0,
		metadata              TEXT NOT NULL DEFAULT '{}',
		submitted_from        TEXT NOT NULL DEFAULT '',
		submitted_at          DATETIME NOT NULL,
		assigned_to           TEXT NOT NULL DEFAULT '',
		assigned_at           DATETIME,
		status                TEXT NOT NULL,
		result                TEXT NOT NULL DEFAULT '',
		exit_code             INTEGER NOT NULL DEFAULT 0,
		error                 TEXT NOT NULL DEFAULT '',
		completed_at          DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_status ON task_queue(status);
	CREATE INDEX IF NOT EXISTS idx_assigned_to ON task_queue(assigned_to);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (s *Store) sweepOrphans() error {
	res, err := s.db.Exec(
		`UPDATE task_queue SET status = ?, error = ?, completed_at = ? WHERE status IN (?, ?)`,
		string(types.TaskFailed), orphanError, time.Now().UTC(),
		string(types.TaskAssigned), string(types.TaskRunning),
	)
	if err != nil {
		return fmt.Errorf("sweep orphaned tasks: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		log.WithComponent("store").Warn().Int64("count", n).Msg("swept orphaned tasks on open")
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// InsertAssigned persists a new task record already bound to assigned_to,
// in the same call that the router chose a target — there is no separate
// pending row.
func (s *Store) InsertAssigned(ctx context.Context, task *types.Task) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.StoreOperationLatency, "insert_assigned")

	capsJSON, err := json.Marshal(task.RequiresCaps)
	if err != nil {
		return fmt.Errorf("marshal requires_capabilities: %w", err)
	}
	metaJSON, err := json.Marshal(task.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO task_queue (
			task_id, task_type, command, script,
			requires_os, requires_arch, requires_capabilities,
			priority, metadata, submitted_from, submitted_at,
			assigned_to, assigned_at, status, result, exit_code, error, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '', ?, '', NULL)`,
		task.TaskID, task.TaskType, task.Command, task.Script,
		task.RequiresOS, task.RequiresArch, string(capsJSON),
		task.Priority, string(metaJSON), task.SubmittedFrom, task.SubmittedAt,
		task.AssignedTo, task.AssignedAt, string(task.Status), task.ExitCode,
	)
	if err != nil {
		metrics.StoreOperationFailuresTotal.WithLabelValues("insert_assigned").Inc()
		return fmt.Errorf("insert task %s: %w", task.TaskID, err)
	}
	return nil
}

// UpdateTerminal records a task's terminal outcome, including the process
// exit code reported by the executor. It is a no-op error if the task is
// already in a terminal state (the store never overwrites one).
func (s *Store) UpdateTerminal(ctx context.Context, taskID string, status types.TaskStatus, result string, exitCode int, errMsg string) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.StoreOperationLatency, "update_terminal")

	if !status.Terminal() {
		return fmt.Errorf("update_terminal: %q is not a terminal status", status)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE task_queue
		SET status = ?, result = ?, exit_code = ?, error = ?, completed_at = ?
		WHERE task_id = ? AND status NOT IN (?, ?, ?, ?)`,
		string(status), result, exitCode, errMsg, time.Now().UTC(),
		taskID,
		string(types.TaskCompleted), string(types.TaskFailed),
		string(types.TaskTimeout), string(types.TaskCancelled),
	)
	if err != nil {
		metrics.StoreOperationFailuresTotal.WithLabelValues("update_terminal").Inc()
		return fmt.Errorf("update task %s: %w", taskID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update task %s: already terminal or not found", taskID)
	}
	return nil
}

// MarkRunning transitions a task from assigned to running. Skipping this
// call is allowed — short commands may go straight to a terminal state.
func (s *Store) MarkRunning(ctx context.Context, taskID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE task_queue SET status = ? WHERE task_id = ? AND status = ?`,
		string(types.TaskRunning), taskID, string(types.TaskAssigned))
	if err != nil {
		return fmt.Errorf("mark task %s running: %w", taskID, err)
	}
	return nil
}

// Read fetches a single task by ID.
func (s *Store) Read(ctx context.Context, taskID string) (*types.Task, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.StoreOperationLatency, "read")

	task, err := s.scanOne(ctx, taskID)
	if err != nil {
		metrics.StoreOperationFailuresTotal.WithLabelValues("read").Inc()
		return nil, err
	}
	return task, nil
}

func (s *Store) scanOne(ctx context.Context, taskID string) (*types.Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT task_id, task_type, command, script,
			requires_os, requires_arch, requires_capabilities,
			priority, metadata, submitted_from, submitted_at,
			assigned_to, assigned_at, status, result, exit_code, error, completed_at
		FROM task_queue WHERE task_id = ?`, taskID)

	var (
		t                        types.Task
		capsJSON, metaJSON       string
		assignedAt, completedAt  sql.NullTime
	)
	err := row.Scan(
		&t.TaskID, &t.TaskType, &t.Command, &t.Script,
		&t.RequiresOS, &t.RequiresArch, &capsJSON,
		&t.Priority, &metaJSON, &t.SubmittedFrom, &t.SubmittedAt,
		&t.AssignedTo, &assignedAt, &t.Status, &t.Result, &t.ExitCode, &t.Error, &completedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read task %s: %w", taskID, err)
	}

	if err := json.Unmarshal([]byte(capsJSON), &t.RequiresCaps); err != nil {
		return nil, fmt.Errorf("unmarshal requires_capabilities for %s: %w", taskID, err)
	}
	if err := json.Unmarshal([]byte(metaJSON), &t.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata for %s: %w", taskID, err)
	}
	if assignedAt.Valid {
		t.AssignedAt = assignedAt.Time
	}
	if completedAt.Valid {
		t.CompletedAt = completedAt.Time
	}
	return &t, nil
}

// WaitForTerminal polls the store until taskID reaches a terminal status or
// ctx is done, whichever comes first.
func (s *Store) WaitForTerminal(ctx context.Context, taskID string) (*types.Task, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.StoreOperationLatency, "wait_for_terminal")

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		task, err := s.scanOne(ctx, taskID)
		if err != nil {
			metrics.StoreOperationFailuresTotal.WithLabelValues("wait_for_terminal").Inc()
			return nil, err
		}
		if task.Status.Terminal() {
			return task, nil
		}

		select {
		case <-ctx.Done():
			metrics.StoreOperationFailuresTotal.WithLabelValues("wait_for_terminal").Inc()
			return nil, fmt.Errorf("wait for task %s: %w", taskID, ctx.Err())
		case <-ticker.C:
		}
	}
}

// AggregateDistribution groups tasks by (assigned_to, status) and counts
// them, satisfying metrics.DistributionSource.
func (s *Store) AggregateDistribution(ctx context.Context) (map[string]map[string]int, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.StoreOperationLatency, "aggregate_distribution")

	rows, err := s.db.QueryContext(ctx, `
		SELECT assigned_to, status, COUNT(*)
		FROM task_queue
		GROUP BY assigned_to, status`)
	if err != nil {
		metrics.StoreOperationFailuresTotal.WithLabelValues("aggregate_distribution").Inc()
		return nil, fmt.Errorf("aggregate distribution: %w", err)
	}
	defer rows.Close()

	out := make(map[string]map[string]int)
	for rows.Next() {
		var nodeID, status string
		var count int
		if err := rows.Scan(&nodeID, &status, &count); err != nil {
			return nil, fmt.Errorf("scan distribution row: %w", err)
		}
		if nodeID == "" {
			nodeID = "unassigned"
		}
		if out[nodeID] == nil {
			out[nodeID] = make(map[string]int)
		}
		out[nodeID][status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate distribution rows: %w", err)
	}
	return out, nil
}

// ErrNotFound is returned by Read and WaitForTerminal when no row matches
// the requested task ID.
var ErrNotFound = fmt.Errorf("task not found")
