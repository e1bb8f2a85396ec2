package valdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/openadas/stk/internal/val"
)

// timeFormat is how assessment timestamps are stored. RFC3339 with
// nanoseconds keeps round-trips exact.
const timeFormat = time.RFC3339Nano

// SaveTestRun writes the run tree at the given load level inside one
// transaction. New runs get their ID assigned back into the struct;
// existing runs have their case tree replaced. Saving into a run whose
// stored lock flag is set fails with ErrLocked.
func (db *DB) SaveTestRun(ctx context.Context, run *val.TestRun, level val.LoadLevel) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := saveRun(ctx, tx, run, level); err != nil {
		return err
	}
	return tx.Commit()
}

func saveRun(ctx context.Context, tx *sql.Tx, run *val.TestRun, level val.LoadLevel) error {
	parent := sql.NullInt64{Int64: run.ParentID, Valid: run.ParentID != 0}

	if run.ID != 0 {
		var locked bool
		err := tx.QueryRowContext(ctx, `SELECT locked FROM test_runs WHERE id = ?`, run.ID).Scan(&locked)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("test run %d: %w", run.ID, ErrNotFound)
		case err != nil:
			return fmt.Errorf("failed to check lock state: %w", err)
		case locked:
			return fmt.Errorf("test run %d: %w", run.ID, ErrLocked)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE test_runs
			SET parent_id = ?, name = ?, description = ?, checkpoint = ?, user = ?,
			    sim_name = ?, sim_version = ?, sw_version = ?, remarks = ?,
			    run_type = ?, locked = ?, deleted = ?
			WHERE id = ?`,
			parent, run.Name, run.Description, run.Checkpoint, run.User,
			run.SimName, run.SimVersion, run.SWVersion, run.Remarks,
			run.Type, run.Locked, run.Deleted, run.ID)
		if err != nil {
			return fmt.Errorf("failed to update test run: %w", err)
		}

		// Saving replaces the case tree. Steps, assessments, measurements,
		// events and results all cascade with their cases.
		if _, err := tx.ExecContext(ctx, `DELETE FROM test_cases WHERE run_id = ?`, run.ID); err != nil {
			return fmt.Errorf("failed to clear test cases: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM runtime_jobs WHERE run_id = ?`, run.ID); err != nil {
			return fmt.Errorf("failed to clear runtime jobs: %w", err)
		}
	} else {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO test_runs (parent_id, name, description, checkpoint, user,
				sim_name, sim_version, sw_version, remarks, run_type, locked, deleted)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			parent, run.Name, run.Description, run.Checkpoint, run.User,
			run.SimName, run.SimVersion, run.SWVersion, run.Remarks,
			run.Type, run.Locked, run.Deleted)
		if err != nil {
			return fmt.Errorf("failed to insert test run: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get test run id: %w", err)
		}
		run.ID = id
	}

	for _, tc := range run.Cases {
		if err := saveCase(ctx, tx, run.ID, tc, level); err != nil {
			return err
		}
	}

	if level.Has(val.LevelAll) {
		for _, job := range run.Jobs {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO runtime_jobs (run_id, node, job_id, state, errors, exceptions, crashes)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				run.ID, job.Node, job.JobID, string(job.State),
				job.Errors, job.Exceptions, job.Crashes); err != nil {
				return fmt.Errorf("failed to insert runtime job: %w", err)
			}
		}
	}

	for _, child := range run.Children {
		child.ParentID = run.ID
		if err := saveRun(ctx, tx, child, level); err != nil {
			return err
		}
	}
	return nil
}

func saveCase(ctx context.Context, tx *sql.Tx, runID int64, tc *val.TestCase, level val.LoadLevel) error {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO test_cases (run_id, name, tag, collection, description, total_time, total_dist, meas_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, tc.Name, tc.Tag, tc.Collection, tc.Description,
		tc.ProcessedTime, tc.ProcessedDistance, tc.ProcessedCount)
	if err != nil {
		return fmt.Errorf("failed to insert test case: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get test case id: %w", err)
	}
	tc.ID = id

	if level.Has(val.LevelInfo) {
		for _, step := range tc.Steps {
			res, err := tx.ExecContext(ctx, `
				INSERT INTO test_steps (case_id, name, tag, expected, actual, unit)
				VALUES (?, ?, ?, ?, ?, ?)`,
				tc.ID, step.Name, step.Tag, step.Expected, step.Actual, step.Unit)
			if err != nil {
				return fmt.Errorf("failed to insert test step: %w", err)
			}
			if step.Assessment != nil {
				stepID, err := res.LastInsertId()
				if err != nil {
					return fmt.Errorf("failed to get test step id: %w", err)
				}
				a := step.Assessment
				assessedAt := ""
				if !a.At.IsZero() {
					assessedAt = a.At.UTC().Format(timeFormat)
				}
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO assessments (step_id, state, workflow, comment, issue, user, assessed_at)
					VALUES (?, ?, ?, ?, ?, ?, ?)`,
					stepID, string(a.State), string(a.Workflow), a.Comment, a.Issue, a.User, assessedAt); err != nil {
					return fmt.Errorf("failed to insert assessment: %w", err)
				}
			}
		}
		for _, r := range tc.Results {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO results (case_id, measurement, name, value, unit)
				VALUES (?, ?, ?, ?, ?)`,
				tc.ID, r.Measurement, r.Name, r.Value, r.Unit); err != nil {
				return fmt.Errorf("failed to insert result: %w", err)
			}
		}
	}

	if level.Has(val.LevelAll) {
		for _, name := range tc.Measurements {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO measurements (case_id, name) VALUES (?, ?)`,
				tc.ID, name); err != nil {
				return fmt.Errorf("failed to insert measurement: %w", err)
			}
		}
		for _, e := range tc.Events {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO events (case_id, name, measurement, timestamp, comment)
				VALUES (?, ?, ?, ?, ?)`,
				tc.ID, e.Name, e.Measurement, e.Timestamp, e.Comment); err != nil {
				return fmt.Errorf("failed to insert event: %w", err)
			}
		}
	}
	return nil
}

// LoadTestRun reads a run tree back at the given load level. Child runs
// recurse at the same level. Deleted runs report ErrNotFound.
func (db *DB) LoadTestRun(ctx context.Context, id int64, level val.LoadLevel) (*val.TestRun, error) {
	run := &val.TestRun{ID: id}
	var parent sql.NullInt64
	err := db.QueryRowContext(ctx, `
		SELECT parent_id, name, description, checkpoint, user, sim_name, sim_version,
		       sw_version, remarks, run_type, locked, deleted
		FROM test_runs WHERE id = ? AND deleted = 0`, id).Scan(
		&parent, &run.Name, &run.Description, &run.Checkpoint, &run.User,
		&run.SimName, &run.SimVersion, &run.SWVersion, &run.Remarks, &run.Type,
		&run.Locked, &run.Deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("test run %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load test run: %w", err)
	}
	run.ParentID = parent.Int64

	if err := db.loadCases(ctx, run, level); err != nil {
		return nil, err
	}
	if level.Has(val.LevelAll) {
		if err := db.loadJobs(ctx, run); err != nil {
			return nil, err
		}
	}

	childIDs, err := db.childRunIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, childID := range childIDs {
		child, err := db.LoadTestRun(ctx, childID, level)
		if err != nil {
			return nil, err
		}
		run.Children = append(run.Children, child)
	}
	return run, nil
}

func (db *DB) childRunIDs(ctx context.Context, id int64) ([]int64, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id FROM test_runs WHERE parent_id = ? AND deleted = 0 ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load child runs: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var childID int64
		if err := rows.Scan(&childID); err != nil {
			return nil, fmt.Errorf("failed to scan child run id: %w", err)
		}
		ids = append(ids, childID)
	}
	return ids, rows.Err()
}

func (db *DB) loadCases(ctx context.Context, run *val.TestRun, level val.LoadLevel) error {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, tag, collection, description, total_time, total_dist, meas_count
		FROM test_cases WHERE run_id = ? ORDER BY id`, run.ID)
	if err != nil {
		return fmt.Errorf("failed to load test cases: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		tc := &val.TestCase{}
		if err := rows.Scan(&tc.ID, &tc.Name, &tc.Tag, &tc.Collection, &tc.Description,
			&tc.ProcessedTime, &tc.ProcessedDistance, &tc.ProcessedCount); err != nil {
			return fmt.Errorf("failed to scan test case: %w", err)
		}
		run.Cases = append(run.Cases, tc)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	for _, tc := range run.Cases {
		if level.Has(val.LevelInfo) {
			if err := db.loadSteps(ctx, tc); err != nil {
				return err
			}
			if err := db.loadResults(ctx, tc); err != nil {
				return err
			}
		}
		if level.Has(val.LevelAll) {
			if err := db.loadMeasurements(ctx, tc); err != nil {
				return err
			}
			if err := db.loadEvents(ctx, tc); err != nil {
				return err
			}
		}
	}
	return nil
}

func (db *DB) loadSteps(ctx context.Context, tc *val.TestCase) error {
	rows, err := db.QueryContext(ctx, `
		SELECT s.name, s.tag, s.expected, s.actual, s.unit,
		       a.state, a.workflow, a.comment, a.issue, a.user, a.assessed_at
		FROM test_steps s
		LEFT JOIN assessments a ON a.step_id = s.id
		WHERE s.case_id = ? ORDER BY s.id`, tc.ID)
	if err != nil {
		return fmt.Errorf("failed to load test steps: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		step := &val.TestStep{}
		var state, workflow, comment, issue, user, assessedAt sql.NullString
		if err := rows.Scan(&step.Name, &step.Tag, &step.Expected, &step.Actual, &step.Unit,
			&state, &workflow, &comment, &issue, &user, &assessedAt); err != nil {
			return fmt.Errorf("failed to scan test step: %w", err)
		}
		if state.Valid {
			a := &val.Assessment{
				State:    val.State(state.String),
				Workflow: val.Workflow(workflow.String),
				Comment:  comment.String,
				Issue:    issue.String,
				User:     user.String,
			}
			if assessedAt.String != "" {
				at, err := time.Parse(timeFormat, assessedAt.String)
				if err != nil {
					return fmt.Errorf("failed to parse assessment time: %w", err)
				}
				a.At = at
			}
			step.Assessment = a
		}
		tc.Steps = append(tc.Steps, step)
	}
	return rows.Err()
}

func (db *DB) loadResults(ctx context.Context, tc *val.TestCase) error {
	rows, err := db.QueryContext(ctx, `
		SELECT measurement, name, value, unit FROM results WHERE case_id = ? ORDER BY id`, tc.ID)
	if err != nil {
		return fmt.Errorf("failed to load results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r val.MeasResult
		if err := rows.Scan(&r.Measurement, &r.Name, &r.Value, &r.Unit); err != nil {
			return fmt.Errorf("failed to scan result: %w", err)
		}
		tc.Results = append(tc.Results, r)
	}
	return rows.Err()
}

func (db *DB) loadMeasurements(ctx context.Context, tc *val.TestCase) error {
	rows, err := db.QueryContext(ctx, `
		SELECT name FROM measurements WHERE case_id = ? ORDER BY id`, tc.ID)
	if err != nil {
		return fmt.Errorf("failed to load measurements: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("failed to scan measurement: %w", err)
		}
		tc.Measurements = append(tc.Measurements, name)
	}
	return rows.Err()
}

func (db *DB) loadEvents(ctx context.Context, tc *val.TestCase) error {
	rows, err := db.QueryContext(ctx, `
		SELECT name, measurement, timestamp, comment FROM events WHERE case_id = ? ORDER BY id`, tc.ID)
	if err != nil {
		return fmt.Errorf("failed to load events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e val.Event
		if err := rows.Scan(&e.Name, &e.Measurement, &e.Timestamp, &e.Comment); err != nil {
			return fmt.Errorf("failed to scan event: %w", err)
		}
		tc.Events = append(tc.Events, e)
	}
	return rows.Err()
}

func (db *DB) loadJobs(ctx context.Context, run *val.TestRun) error {
	rows, err := db.QueryContext(ctx, `
		SELECT node, job_id, state, errors, exceptions, crashes
		FROM runtime_jobs WHERE run_id = ? ORDER BY id`, run.ID)
	if err != nil {
		return fmt.Errorf("failed to load runtime jobs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		job := &val.RuntimeJob{}
		var state string
		if err := rows.Scan(&job.Node, &job.JobID, &state,
			&job.Errors, &job.Exceptions, &job.Crashes); err != nil {
			return fmt.Errorf("failed to scan runtime job: %w", err)
		}
		job.State = val.JobState(state)
		run.Jobs = append(run.Jobs, job)
	}
	return rows.Err()
}

// RunSummary is one row of the test-run listing.
type RunSummary struct {
	ID         int64
	Name       string
	Type       string
	User       string
	Checkpoint string
	Locked     bool
	CreatedAt  time.Time
	Cases      int
}

// ListTestRuns returns the root test runs, newest first. Deleted runs
// are skipped.
func (db *DB) ListTestRuns(ctx context.Context) ([]RunSummary, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT r.id, r.name, r.run_type, r.user, r.checkpoint, r.locked, r.created_at,
		       (SELECT COUNT(*) FROM test_cases c WHERE c.run_id = r.id)
		FROM test_runs r
		WHERE r.parent_id IS NULL AND r.deleted = 0
		ORDER BY r.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list test runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var s RunSummary
		if err := rows.Scan(&s.ID, &s.Name, &s.Type, &s.User, &s.Checkpoint,
			&s.Locked, &s.CreatedAt, &s.Cases); err != nil {
			return nil, fmt.Errorf("failed to scan test run summary: %w", err)
		}
		runs = append(runs, s)
	}
	return runs, rows.Err()
}

// SetLocked persists the lock flag of a run, with recursive covering the
// whole subtree. Lock management bypasses the ErrLocked write check.
func (db *DB) SetLocked(ctx context.Context, id int64, locked, recursive bool) error {
	var res sql.Result
	var err error
	if recursive {
		res, err = db.ExecContext(ctx, `
			UPDATE test_runs SET locked = ?
			WHERE id IN (
				WITH RECURSIVE tree(id) AS (
					SELECT id FROM test_runs WHERE id = ?
					UNION ALL
					SELECT r.id FROM test_runs r JOIN tree t ON r.parent_id = t.id
				)
				SELECT id FROM tree
			)`, locked, id)
	} else {
		res, err = db.ExecContext(ctx, `UPDATE test_runs SET locked = ? WHERE id = ?`, locked, id)
	}
	if err != nil {
		return fmt.Errorf("failed to set lock flag: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check lock update: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("test run %d: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteTestRun soft-deletes a run and its child runs. Rows stay in
// place, so an accidental delete can be reverted by hand. Locked runs
// must be unlocked first.
func (db *DB) DeleteTestRun(ctx context.Context, id int64) error {
	var locked bool
	err := db.QueryRowContext(ctx, `
		SELECT locked FROM test_runs WHERE id = ? AND deleted = 0`, id).Scan(&locked)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("test run %d: %w", id, ErrNotFound)
	case err != nil:
		return fmt.Errorf("failed to check lock state: %w", err)
	case locked:
		return fmt.Errorf("test run %d: %w", id, ErrLocked)
	}

	_, err = db.ExecContext(ctx, `
		UPDATE test_runs SET deleted = 1
		WHERE id IN (
			WITH RECURSIVE tree(id) AS (
				SELECT id FROM test_runs WHERE id = ?
				UNION ALL
				SELECT r.id FROM test_runs r JOIN tree t ON r.parent_id = t.id
			)
			SELECT id FROM tree
		)`, id)
	if err != nil {
		return fmt.Errorf("failed to delete test run: %w", err)
	}
	return nil
}
