package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS experiments (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'draft',
    variants TEXT NOT NULL,
    segmentation_rules TEXT,
    start_date INTEGER,
    end_date INTEGER,
    created_at INTEGER NOT NULL DEFAULT (unixepoch()),
    updated_at INTEGER NOT NULL DEFAULT (unixepoch())
);

CREATE INDEX IF NOT EXISTS idx_experiments_status ON experiments(status);

CREATE TABLE IF NOT EXISTS assignments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    experiment_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    variant_id TEXT NOT NULL,
    variant TEXT NOT NULL,
    assigned_at INTEGER NOT NULL DEFAULT (unixepoch()),
    FOREIGN KEY (experiment_id) REFERENCES experiments(id)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_assignments_pair ON assignments(experiment_id, user_id);
CREATE INDEX IF NOT EXISTS idx_assignments_variant ON assignments(experiment_id, variant_id);

CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    experiment_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    event_type TEXT NOT NULL,
    value REAL NOT NULL DEFAULT 1,
    metadata TEXT,
    created_at INTEGER NOT NULL DEFAULT (unixepoch()),
    FOREIGN KEY (experiment_id) REFERENCES experiments(id)
);

CREATE INDEX IF NOT EXISTS idx_events_experiment ON events(experiment_id);
CREATE INDEX IF NOT EXISTS idx_events_experiment_type ON events(experiment_id, event_type);
`

func Open(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Apply schema
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateExperiment(ctx context.Context, exp *Experiment) error {
	variantsJSON, err := json.Marshal(exp.Variants)
	if err != nil {
		return fmt.Errorf("failed to marshal variants: %w", err)
	}

	var rulesJSON []byte
	if len(exp.SegmentationRules) > 0 {
		rulesJSON, err = json.Marshal(exp.SegmentationRules)
		if err != nil {
			return fmt.Errorf("failed to marshal segmentation rules: %w", err)
		}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO experiments (id, name, description, status, variants, segmentation_rules, start_date, end_date, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exp.ID, exp.Name, exp.Description, string(exp.Status), string(variantsJSON),
		nullableString(rulesJSON), nullableTime(exp.StartDate), nullableTime(exp.EndDate),
		exp.CreatedAt.Unix(), exp.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert experiment: %w", err)
	}
	return nil
}

const experimentColumns = `id, name, description, status, variants, segmentation_rules, start_date, end_date, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExperiment(row rowScanner) (*Experiment, error) {
	var exp Experiment
	var variantsJSON string
	var rulesJSON sql.NullString
	var startDate, endDate sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(&exp.ID, &exp.Name, &exp.Description, &exp.Status, &variantsJSON,
		&rulesJSON, &startDate, &endDate, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan experiment: %w", err)
	}

	if err := json.Unmarshal([]byte(variantsJSON), &exp.Variants); err != nil {
		return nil, fmt.Errorf("failed to unmarshal variants: %w", err)
	}
	if rulesJSON.Valid && rulesJSON.String != "" {
		if err := json.Unmarshal([]byte(rulesJSON.String), &exp.SegmentationRules); err != nil {
			return nil, fmt.Errorf("failed to unmarshal segmentation rules: %w", err)
		}
	}
	if startDate.Valid {
		t := time.Unix(startDate.Int64, 0)
		exp.StartDate = &t
	}
	if endDate.Valid {
		t := time.Unix(endDate.Int64, 0)
		exp.EndDate = &t
	}
	exp.CreatedAt = time.Unix(createdAt, 0)
	exp.UpdatedAt = time.Unix(updatedAt, 0)

	return &exp, nil
}

func (s *SQLiteStore) GetExperiment(ctx context.Context, id string) (*Experiment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+experimentColumns+` FROM experiments WHERE id = ?`, id)
	return scanExperiment(row)
}

func (s *SQLiteStore) ListExperiments(ctx context.Context) ([]*Experiment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+experimentColumns+` FROM experiments ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}
	defer rows.Close()

	var experiments []*Experiment
	for rows.Next() {
		exp, err := scanExperiment(rows)
		if err != nil {
			return nil, err
		}
		experiments = append(experiments, exp)
	}
	return experiments, rows.Err()
}

func (s *SQLiteStore) UpdateExperiment(ctx context.Context, exp *Experiment) error {
	variantsJSON, err := json.Marshal(exp.Variants)
	if err != nil {
		return fmt.Errorf("failed to marshal variants: %w", err)
	}

	var rulesJSON []byte
	if len(exp.SegmentationRules) > 0 {
		rulesJSON, err = json.Marshal(exp.SegmentationRules)
		if err != nil {
			return fmt.Errorf("failed to marshal segmentation rules: %w", err)
		}
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE experiments SET name = ?, description = ?, status = ?, variants = ?,
		 segmentation_rules = ?, start_date = ?, end_date = ?, updated_at = ?
		 WHERE id = ?`,
		exp.Name, exp.Description, string(exp.Status), string(variantsJSON),
		nullableString(rulesJSON), nullableTime(exp.StartDate), nullableTime(exp.EndDate),
		exp.UpdatedAt.Unix(), exp.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update experiment: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) DeleteExperiment(ctx context.Context, id string) error {
	// Cascade: events and assignments first
	if _, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE experiment_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete events: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM assignments WHERE experiment_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete assignments: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM experiments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete experiment: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) GetAssignment(ctx context.Context, experimentID, userID string) (*Assignment, error) {
	var a Assignment
	var variantJSON string
	var assignedAt int64

	err := s.db.QueryRowContext(ctx,
		`SELECT experiment_id, user_id, variant, assigned_at
		 FROM assignments WHERE experiment_id = ? AND user_id = ?`,
		experimentID, userID,
	).Scan(&a.ExperimentID, &a.UserID, &variantJSON, &assignedAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}

	if err := json.Unmarshal([]byte(variantJSON), &a.Variant); err != nil {
		return nil, fmt.Errorf("failed to unmarshal variant: %w", err)
	}
	a.AssignedAt = time.Unix(assignedAt, 0)

	return &a, nil
}

// PutAssignment relies on the unique (experiment_id, user_id) index with
// INSERT OR IGNORE, so concurrent assigns for the same user resolve to a
// single row.
func (s *SQLiteStore) PutAssignment(ctx context.Context, a *Assignment) (*Assignment, bool, error) {
	variantJSON, err := json.Marshal(a.Variant)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal variant: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO assignments (experiment_id, user_id, variant_id, variant, assigned_at)
		 VALUES (?, ?, ?, ?, ?)`,
		a.ExperimentID, a.UserID, a.Variant.ID, string(variantJSON), a.AssignedAt.Unix(),
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert assignment: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		// Lost the race or already assigned; return the winning row.
		existing, err := s.GetAssignment(ctx, a.ExperimentID, a.UserID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	return a, true, nil
}

func (s *SQLiteStore) ListAssignments(ctx context.Context, experimentID string) ([]*Assignment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT experiment_id, user_id, variant, assigned_at
		 FROM assignments WHERE experiment_id = ? ORDER BY id`,
		experimentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	var assignments []*Assignment
	for rows.Next() {
		var a Assignment
		var variantJSON string
		var assignedAt int64
		if err := rows.Scan(&a.ExperimentID, &a.UserID, &variantJSON, &assignedAt); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		if err := json.Unmarshal([]byte(variantJSON), &a.Variant); err != nil {
			return nil, fmt.Errorf("failed to unmarshal variant: %w", err)
		}
		a.AssignedAt = time.Unix(assignedAt, 0)
		assignments = append(assignments, &a)
	}
	return assignments, rows.Err()
}

func (s *SQLiteStore) RecordEvent(ctx context.Context, ev *TrackingEvent) error {
	var metadataJSON []byte
	if len(ev.Metadata) > 0 {
		var err error
		metadataJSON, err = json.Marshal(ev.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (experiment_id, user_id, event_type, value, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ExperimentID, ev.UserID, ev.EventType, ev.Value,
		nullableString(metadataJSON), ev.Timestamp.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListEvents(ctx context.Context, experimentID string) ([]*TrackingEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT experiment_id, user_id, event_type, value, metadata, created_at
		 FROM events WHERE experiment_id = ? ORDER BY id`,
		experimentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []*TrackingEvent
	for rows.Next() {
		var ev TrackingEvent
		var metadataJSON sql.NullString
		var createdAt int64
		if err := rows.Scan(&ev.ExperimentID, &ev.UserID, &ev.EventType, &ev.Value, &metadataJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if metadataJSON.Valid && metadataJSON.String != "" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &ev.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		ev.Timestamp = time.Unix(createdAt, 0)
		events = append(events, &ev)
	}
	return events, rows.Err()
}

func (s *SQLiteStore) GetVariantCounts(ctx context.Context, experimentID string) ([]VariantCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			a.variant_id,
			COUNT(DISTINCT a.user_id) AS participants,
			COUNT(DISTINCT e.user_id) AS conversions
		FROM assignments a
		LEFT JOIN events e
			ON e.experiment_id = a.experiment_id
			AND e.user_id = a.user_id
			AND e.event_type = ?
		WHERE a.experiment_id = ?
		GROUP BY a.variant_id
	`, EventTypeConversion, experimentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get variant counts: %w", err)
	}
	defer rows.Close()

	var counts []VariantCount
	for rows.Next() {
		var c VariantCount
		if err := rows.Scan(&c.VariantID, &c.Participants, &c.Conversions); err != nil {
			return nil, fmt.Errorf("failed to scan counts: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// DB returns the underlying database connection for health checks
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func nullableString(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

func nullableTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}
