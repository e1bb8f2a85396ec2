package valdb

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openadas/stk/internal/val"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenAndMigrate(filepath.Join(t.TempDir(), "val.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleRun() *val.TestRun {
	at := time.Date(2024, 6, 10, 9, 30, 0, 0, time.UTC)
	return &val.TestRun{
		Name:        "nightly",
		Description: "nightly regression",
		Checkpoint:  "rel_2024_06",
		User:        "anna",
		SimName:     "sil",
		SimVersion:  "4.2",
		SWVersion:   "0.9.1",
		Type:        "performance",
		Cases: []*val.TestCase{
			{
				Name:         "approach",
				Tag:          "REQ-101",
				Collection:   "radar_perf",
				Description:  "stationary target approach",
				Measurements: []string{"rec_001.rec"},
				Steps: []*val.TestStep{
					{
						Name:     "max_error",
						Tag:      "REQ-101-1",
						Expected: "< 0.5",
						Actual:   "0.31",
						Unit:     "m",
						Assessment: &val.Assessment{
							State:    val.StatePassed,
							Workflow: val.WorkflowAutomatic,
							Comment:  "within tolerance",
							User:     "anna",
							At:       at,
						},
					},
					{Name: "open_step"},
				},
				Events: []val.Event{
					{Name: "approach_begin", Measurement: "rec_001.rec", Timestamp: 1200000, Comment: "first gate hit"},
				},
				Results: []val.MeasResult{
					{Measurement: "rec_001.rec", Name: "mean_error", Value: 0.18, Unit: "m"},
				},
				ProcessedTime:     95.5,
				ProcessedDistance: 1800,
				ProcessedCount:    1,
			},
		},
		Jobs: []*val.RuntimeJob{
			{Node: "hpc01", JobID: 77, State: val.JobFinished, Errors: 1},
		},
	}
}

func TestPragmasApplied(t *testing.T) {
	db := newTestDB(t)

	var journalMode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	var foreignKeys int
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys))
	assert.Equal(t, 1, foreignKeys)

	var busyTimeout int
	require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
	assert.Equal(t, 5000, busyTimeout)
}

func TestMigrateLifecycle(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "val.db"))
	require.NoError(t, err)
	defer db.Close()

	latest, err := LatestMigrationVersion()
	require.NoError(t, err)
	require.Equal(t, uint(3), latest)

	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
	assert.False(t, dirty)

	require.NoError(t, db.MigrateUp())
	version, dirty, err = db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, latest, version)
	assert.False(t, dirty)

	// Up again is a no-op.
	require.NoError(t, db.MigrateUp())

	require.NoError(t, db.MigrateDown())
	version, _, err = db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, latest-1, version)

	require.NoError(t, db.MigrateTo(latest))
	version, _, err = db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, latest, version)

	require.NoError(t, db.MigrateForce(int(latest-1)))
	status, err := db.Status()
	require.NoError(t, err)
	assert.Equal(t, latest-1, status.Version)
	assert.Equal(t, latest, status.Latest)
	assert.False(t, status.Dirty)
	assert.True(t, status.Applied)
}

func TestSaveLoadFullRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	run := sampleRun()
	child := &val.TestRun{Name: "sensor_a", Type: "performance"}
	run.AddChild(child)

	require.NoError(t, db.SaveTestRun(ctx, run, val.LevelFull))
	require.NotZero(t, run.ID)
	require.NotZero(t, child.ID)
	assert.Equal(t, run.ID, child.ParentID)

	loaded, err := db.LoadTestRun(ctx, run.ID, val.LevelFull)
	require.NoError(t, err)

	assert.Equal(t, run.Name, loaded.Name)
	assert.Equal(t, run.Checkpoint, loaded.Checkpoint)
	require.Len(t, loaded.Cases, 1)
	require.Len(t, loaded.Cases[0].Steps, 2)
	require.NotNil(t, loaded.Cases[0].Steps[0].Assessment)
	assert.Nil(t, loaded.Cases[0].Steps[1].Assessment)
	require.Len(t, loaded.Children, 1)
	require.Len(t, loaded.Jobs, 1)

	// The saved tree and the loaded tree must match field for field.
	require.Equal(t, run, loaded)
}

func TestLoadLevels(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	run := sampleRun()
	require.NoError(t, db.SaveTestRun(ctx, run, val.LevelFull))

	t.Run("basic", func(t *testing.T) {
		loaded, err := db.LoadTestRun(ctx, run.ID, val.LevelBasic)
		require.NoError(t, err)
		require.Len(t, loaded.Cases, 1)
		tc := loaded.Cases[0]
		assert.Equal(t, "approach", tc.Name)
		assert.Equal(t, 95.5, tc.ProcessedTime)
		assert.Empty(t, tc.Steps)
		assert.Empty(t, tc.Results)
		assert.Empty(t, tc.Events)
		assert.Empty(t, tc.Measurements)
		assert.Empty(t, loaded.Jobs)
	})

	t.Run("info", func(t *testing.T) {
		loaded, err := db.LoadTestRun(ctx, run.ID, val.LevelBasic|val.LevelInfo)
		require.NoError(t, err)
		tc := loaded.Cases[0]
		assert.Len(t, tc.Steps, 2)
		assert.Len(t, tc.Results, 1)
		assert.Empty(t, tc.Events)
		assert.Empty(t, tc.Measurements)
		assert.Empty(t, loaded.Jobs)
	})

	t.Run("full", func(t *testing.T) {
		loaded, err := db.LoadTestRun(ctx, run.ID, val.LevelFull)
		require.NoError(t, err)
		tc := loaded.Cases[0]
		assert.Len(t, tc.Steps, 2)
		assert.Len(t, tc.Results, 1)
		assert.Len(t, tc.Events, 1)
		assert.Len(t, tc.Measurements, 1)
		assert.Len(t, loaded.Jobs, 1)
	})
}

func TestSaveAtLowerLevelSkipsDetail(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	run := sampleRun()
	require.NoError(t, db.SaveTestRun(ctx, run, val.LevelBasic))

	loaded, err := db.LoadTestRun(ctx, run.ID, val.LevelFull)
	require.NoError(t, err)
	require.Len(t, loaded.Cases, 1)
	assert.Empty(t, loaded.Cases[0].Steps)
	assert.Empty(t, loaded.Cases[0].Events)
	assert.Empty(t, loaded.Jobs)
}

func TestLockedRunRejectsWrites(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	run := sampleRun()
	require.NoError(t, db.SaveTestRun(ctx, run, val.LevelFull))
	require.NoError(t, db.SetLocked(ctx, run.ID, true, false))

	err := db.SaveTestRun(ctx, run, val.LevelFull)
	assert.ErrorIs(t, err, ErrLocked)

	err = db.DeleteTestRun(ctx, run.ID)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, db.SetLocked(ctx, run.ID, false, false))
	assert.NoError(t, db.SaveTestRun(ctx, run, val.LevelFull))
}

func TestSetLockedRecursive(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	run := sampleRun()
	run.AddChild(&val.TestRun{Name: "child"})
	require.NoError(t, db.SaveTestRun(ctx, run, val.LevelBasic))

	require.NoError(t, db.SetLocked(ctx, run.ID, true, true))
	loaded, err := db.LoadTestRun(ctx, run.ID, val.LevelBasic)
	require.NoError(t, err)
	assert.True(t, loaded.Locked)
	require.Len(t, loaded.Children, 1)
	assert.True(t, loaded.Children[0].Locked)

	require.NoError(t, db.SetLocked(ctx, run.ID, false, true))
	loaded, err = db.LoadTestRun(ctx, run.ID, val.LevelBasic)
	require.NoError(t, err)
	assert.False(t, loaded.Locked)
	assert.False(t, loaded.Children[0].Locked)
}

func TestSetLockedMissingRun(t *testing.T) {
	db := newTestDB(t)
	err := db.SetLocked(context.Background(), 999, true, false)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSoftDelete(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	run := sampleRun()
	run.AddChild(&val.TestRun{Name: "child"})
	require.NoError(t, db.SaveTestRun(ctx, run, val.LevelBasic))
	require.NoError(t, db.DeleteTestRun(ctx, run.ID))

	_, err := db.LoadTestRun(ctx, run.ID, val.LevelBasic)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = db.LoadTestRun(ctx, run.Children[0].ID, val.LevelBasic)
	assert.ErrorIs(t, err, ErrNotFound)

	runs, err := db.ListTestRuns(ctx)
	require.NoError(t, err)
	assert.Empty(t, runs)

	// Soft delete keeps the rows in place.
	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM test_runs").Scan(&count))
	assert.Equal(t, 2, count)
}

func TestListTestRuns(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first := sampleRun()
	require.NoError(t, db.SaveTestRun(ctx, first, val.LevelFull))

	second := &val.TestRun{Name: "smoke", User: "ben", Type: "smoke"}
	second.AddChild(&val.TestRun{Name: "nested"})
	require.NoError(t, db.SaveTestRun(ctx, second, val.LevelBasic))

	runs, err := db.ListTestRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	// Newest first, child runs not listed.
	assert.Equal(t, "smoke", runs[0].Name)
	assert.Equal(t, "nightly", runs[1].Name)
	assert.Equal(t, 1, runs[1].Cases)
	assert.Equal(t, "anna", runs[1].User)
	assert.False(t, runs[0].CreatedAt.IsZero())
}

func TestResaveReplacesCaseTree(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	run := sampleRun()
	require.NoError(t, db.SaveTestRun(ctx, run, val.LevelFull))

	run.Name = "nightly_fixed"
	run.Cases[0].Steps[0].Actual = "0.72"
	run.Cases[0].Steps[0].Assessment.State = val.StateFailed
	require.NoError(t, db.SaveTestRun(ctx, run, val.LevelFull))

	loaded, err := db.LoadTestRun(ctx, run.ID, val.LevelFull)
	require.NoError(t, err)
	assert.Equal(t, "nightly_fixed", loaded.Name)
	assert.Equal(t, "0.72", loaded.Cases[0].Steps[0].Actual)
	assert.Equal(t, val.StateFailed, loaded.Cases[0].Steps[0].Assessment.State)

	// The old case tree is gone, not duplicated.
	var cases, assessments int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM test_cases").Scan(&cases))
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM assessments").Scan(&assessments))
	assert.Equal(t, 1, cases)
	assert.Equal(t, 1, assessments)
}

func TestLoadMissingRun(t *testing.T) {
	db := newTestDB(t)
	_, err := db.LoadTestRun(context.Background(), 999, val.LevelBasic)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRunMigrateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "val.db")

	var out strings.Builder
	require.NoError(t, RunMigrateCommand(&out, path, []string{"up"}))
	assert.Contains(t, out.String(), "all migrations applied")

	out.Reset()
	require.NoError(t, RunMigrateCommand(&out, path, []string{"status"}))
	assert.Contains(t, out.String(), "current version: 3")

	out.Reset()
	require.NoError(t, RunMigrateCommand(&out, path, []string{"down"}))
	assert.Contains(t, out.String(), "rolled back one migration")

	out.Reset()
	err := RunMigrateCommand(&out, path, []string{"sideways"})
	assert.Error(t, err)

	err = RunMigrateCommand(&out, path, nil)
	assert.Error(t, err)
}
