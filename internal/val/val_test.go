package val

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func step(name string, state State, user string, at time.Time) *TestStep {
	return &TestStep{
		Name: name,
		Assessment: &Assessment{
			State:    state,
			Workflow: WorkflowAutomatic,
			User:     user,
			At:       at,
		},
	}
}

func TestWorse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b State
		want State
	}{
		{StatePassed, StatePassed, StatePassed},
		{StatePassed, StateInvestigate, StateInvestigate},
		{StateInvestigate, StateNotAssessed, StateNotAssessed},
		{StateNotAssessed, StateFailed, StateFailed},
		{StateFailed, StatePassed, StateFailed},
		{StateFailed, StateInvestigate, StateFailed},
		{StateNotAssessed, StateInvestigate, StateNotAssessed},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Worse(tt.a, tt.b), "Worse(%s, %s)", tt.a, tt.b)
		assert.Equal(t, tt.want, Worse(tt.b, tt.a), "Worse(%s, %s)", tt.b, tt.a)
	}
}

func TestLoadLevel(t *testing.T) {
	t.Parallel()

	assert.True(t, LevelFull.Has(LevelBasic))
	assert.True(t, LevelFull.Has(LevelInfo))
	assert.True(t, LevelFull.Has(LevelAll))
	assert.True(t, LevelBasic.Has(LevelBasic))
	assert.False(t, LevelBasic.Has(LevelInfo))
	assert.False(t, LevelBasic.Has(LevelAll))

	assert.Equal(t, "basic", LevelBasic.String())
	assert.Equal(t, "full", LevelFull.String())
	assert.Equal(t, "basic+info", (LevelBasic | LevelInfo).String())
	assert.Equal(t, "none", LoadLevel(0).String())
}

func TestTestCaseAggregate(t *testing.T) {
	t.Parallel()

	day := func(d int) time.Time {
		return time.Date(2024, 6, d, 12, 0, 0, 0, time.UTC)
	}
	tc := &TestCase{
		Name: "approach",
		Steps: []*TestStep{
			step("max_error", StatePassed, "anna", day(1)),
			step("min_life", StateFailed, "ben", day(3)),
			step("id_changes", StateInvestigate, "anna", day(2)),
		},
	}

	a := tc.Aggregate()
	assert.Equal(t, StateFailed, a.State)
	assert.Equal(t, WorkflowAutomatic, a.Workflow)
	assert.Contains(t, a.Comment, "test step max_error is Passed\n")
	assert.Contains(t, a.Comment, "test step min_life is Failed\n")
	assert.Contains(t, a.Comment, "test step id_changes is Investigate\n")
	// Date and user of the most recent step assessment carry over.
	assert.Equal(t, "ben", a.User)
	assert.Equal(t, day(3), a.At)
}

func TestTestCaseAggregatePrecedence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		states []State
		want   State
	}{
		{"all passed", []State{StatePassed, StatePassed}, StatePassed},
		{"investigate beats passed", []State{StatePassed, StateInvestigate}, StateInvestigate},
		{"not assessed beats investigate", []State{StateInvestigate, StateNotAssessed}, StateNotAssessed},
		{"failed beats everything", []State{StateNotAssessed, StateInvestigate, StateFailed}, StateFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tc := &TestCase{Name: "case"}
			for i, s := range tt.states {
				tc.Steps = append(tc.Steps, step(string(rune('a'+i)), s, "u", time.Time{}))
			}
			assert.Equal(t, tt.want, tc.Aggregate().State)
		})
	}
}

func TestTestCaseAggregateEdgeCases(t *testing.T) {
	t.Parallel()

	t.Run("no steps", func(t *testing.T) {
		t.Parallel()
		tc := &TestCase{Name: "empty"}
		a := tc.Aggregate()
		assert.Equal(t, StateNotAssessed, a.State)
		assert.Equal(t, "no test steps available", a.Comment)
	})

	t.Run("step without assessment", func(t *testing.T) {
		t.Parallel()
		tc := &TestCase{
			Name: "pending",
			Steps: []*TestStep{
				step("done", StatePassed, "u", time.Time{}),
				{Name: "open"},
			},
		}
		a := tc.Aggregate()
		assert.Equal(t, StateNotAssessed, a.State)
		assert.Contains(t, a.Comment, "test step open has no assessment\n")
	})

	t.Run("unknown state fails", func(t *testing.T) {
		t.Parallel()
		tc := &TestCase{
			Name: "odd",
			Steps: []*TestStep{
				step("odd", State("Maybe"), "u", time.Time{}),
			},
		}
		a := tc.Aggregate()
		assert.Equal(t, StateFailed, a.State)
		assert.Contains(t, a.Comment, `test step odd has unknown assessment "Maybe"`)
	})
}

func TestTestRunAggregate(t *testing.T) {
	t.Parallel()

	run := &TestRun{
		Name: "nightly",
		Cases: []*TestCase{
			{Name: "approach", Steps: []*TestStep{step("s", StatePassed, "u", time.Time{})}},
			{Name: "crossing", Steps: []*TestStep{step("s", StateInvestigate, "u", time.Time{})}},
		},
	}
	a := run.Aggregate()
	assert.Equal(t, StateInvestigate, a.State)
	assert.Contains(t, a.Comment, "test case approach is Passed\n")
	assert.Contains(t, a.Comment, "test case crossing is Investigate\n")

	empty := &TestRun{Name: "empty"}
	a = empty.Aggregate()
	assert.Equal(t, StateNotAssessed, a.State)
	assert.Equal(t, "no test cases available", a.Comment)
}

func TestTestRunLockUnlock(t *testing.T) {
	t.Parallel()

	grandchild := &TestRun{Name: "gc"}
	child := &TestRun{Name: "c", Children: []*TestRun{grandchild}}
	root := &TestRun{Name: "r", Children: []*TestRun{child}}

	root.Lock(false)
	assert.True(t, root.Locked)
	assert.False(t, child.Locked)

	root.Lock(true)
	assert.True(t, child.Locked)
	assert.True(t, grandchild.Locked)

	root.Unlock(false)
	assert.False(t, root.Locked)
	assert.True(t, child.Locked)

	root.Unlock(true)
	assert.False(t, child.Locked)
	assert.False(t, grandchild.Locked)
}

func TestTestRunAddChild(t *testing.T) {
	t.Parallel()

	root := &TestRun{ID: 7, Name: "root"}
	child := &TestRun{Name: "child"}
	root.AddChild(child)

	require.Len(t, root.Children, 1)
	assert.Equal(t, int64(7), child.ParentID)
}

func TestTestCaseRecordMeasurement(t *testing.T) {
	t.Parallel()

	tc := &TestCase{Name: "case"}
	tc.RecordMeasurement("rec_001.rec", 90.0, 1500.0)
	tc.RecordMeasurement("rec_002.rec", 30.0, 500.0)

	assert.Equal(t, []string{"rec_001.rec", "rec_002.rec"}, tc.Measurements)
	assert.Equal(t, 120.0, tc.ProcessedTime)
	assert.Equal(t, 2000.0, tc.ProcessedDistance)
	assert.Equal(t, 2, tc.ProcessedCount)
}

func TestLookups(t *testing.T) {
	t.Parallel()

	tc := &TestCase{
		Name:  "case",
		Steps: []*TestStep{{Name: "a"}, {Name: "b"}},
	}
	require.NotNil(t, tc.Step("b"))
	assert.Nil(t, tc.Step("missing"))

	run := &TestRun{Cases: []*TestCase{tc}}
	require.NotNil(t, run.Case("case"))
	assert.Nil(t, run.Case("missing"))
}
