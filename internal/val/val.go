// Package val holds the bookkeeping model of a validation campaign: test
// runs grouping test cases, test cases grouping checked test steps, and the
// assessments attached to them. Assessments roll up bottom-to-top with a
// worst-wins rule so a single failed step fails its case and its run.
//
// The types here are plain data carriers; persistence lives in valdb and
// runtime-job progress publishing in this package's Publisher.
package val

import (
	"fmt"
	"strings"
	"time"
)

// State is the outcome of an assessment.
type State string

const (
	StatePassed      State = "Passed"
	StateFailed      State = "Failed"
	StateInvestigate State = "Investigate"
	StateNotAssessed State = "Not Assessed"
)

// severity orders states for the worst-wins roll-up. Not Assessed ranks
// above Investigate: a step without a verdict outweighs one under review.
func (s State) severity() int {
	switch s {
	case StateFailed:
		return 3
	case StateNotAssessed:
		return 2
	case StateInvestigate:
		return 1
	case StatePassed:
		return 0
	}
	// Unknown states are treated as failures.
	return 3
}

// Known reports whether s is one of the four defined states.
func (s State) Known() bool {
	switch s {
	case StatePassed, StateFailed, StateInvestigate, StateNotAssessed:
		return true
	}
	return false
}

// Worse returns the more severe of two states.
func Worse(a, b State) State {
	if b.severity() > a.severity() {
		return b
	}
	return a
}

// Workflow records how an assessment came to be.
type Workflow string

const (
	// WorkflowAutomatic marks assessments computed by the toolkit.
	WorkflowAutomatic Workflow = "automatic"
	// WorkflowManual marks assessments entered or overridden by a user.
	WorkflowManual Workflow = "manual"
	// WorkflowVerified marks manual assessments confirmed by a second user.
	WorkflowVerified Workflow = "verified"
	// WorkflowRejected marks assessments a reviewer has discarded.
	WorkflowRejected Workflow = "rejected"
)

// Assessment is one verdict together with its provenance.
type Assessment struct {
	State    State
	Workflow Workflow
	// Comment carries free text; roll-ups merge the per-step comments here.
	Comment string
	// Issue references a tracking ticket when one exists.
	Issue string
	User  string
	At    time.Time
}

// LoadLevel selects how much of a test-run tree Save and Load carry.
// Levels combine as a bitmask.
type LoadLevel uint8

const (
	// LevelBasic covers the run and test-case skeleton.
	LevelBasic LoadLevel = 1 << iota
	// LevelInfo adds test steps and per-measurement results.
	LevelInfo
	// LevelAll adds events and the measurement registry.
	LevelAll
)

// LevelFull carries the complete tree.
const LevelFull = LevelBasic | LevelInfo | LevelAll

// Has reports whether l includes the given part.
func (l LoadLevel) Has(part LoadLevel) bool { return l&part != 0 }

func (l LoadLevel) String() string {
	switch l {
	case LevelBasic:
		return "basic"
	case LevelFull:
		return "full"
	}
	var parts []string
	if l.Has(LevelBasic) {
		parts = append(parts, "basic")
	}
	if l.Has(LevelInfo) {
		parts = append(parts, "info")
	}
	if l.Has(LevelAll) {
		parts = append(parts, "all")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "+")
}

// TestStep is one checked value inside a test case: the measured quantity,
// what it was expected to be, and the verdict.
type TestStep struct {
	Name string
	// Tag is the requirement identifier the step traces to.
	Tag      string
	Expected string
	Actual   string
	Unit     string
	// Assessment is nil until the step has been evaluated.
	Assessment *Assessment
}

// Event marks a notable point inside one measurement, such as the begin of
// an object approach or a dropped track.
type Event struct {
	Name string
	// Measurement is the recording the event occurred in.
	Measurement string
	// Timestamp is the absolute recording time in microseconds.
	Timestamp int64
	Comment   string
}

// MeasResult is a numeric per-measurement result, kept separate from the
// pass/fail steps so reports can list both.
type MeasResult struct {
	Measurement string
	Name        string
	Value       float64
	Unit        string
}

// TestCase groups the steps, events and results of one requirement.
type TestCase struct {
	ID   int64
	Name string
	// Tag is the requirement identifier, e.g. a Doors tag.
	Tag         string
	Collection  string
	Description string
	// Measurements lists the recordings processed for this case.
	Measurements []string
	Steps        []*TestStep
	Events       []Event
	Results      []MeasResult

	// Processed counters accumulate over RecordMeasurement.
	ProcessedTime     float64 // seconds
	ProcessedDistance float64 // meters
	ProcessedCount    int
}

// Step returns the first step with the given name, or nil.
func (c *TestCase) Step(name string) *TestStep {
	for _, s := range c.Steps {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// RecordMeasurement books one processed recording into the case counters.
func (c *TestCase) RecordMeasurement(name string, seconds, meters float64) {
	c.Measurements = append(c.Measurements, name)
	c.ProcessedTime += seconds
	c.ProcessedDistance += meters
	c.ProcessedCount++
}

// Aggregate rolls the step assessments up into one case verdict. The worst
// state wins, the per-step outcomes are merged into the comment, and the
// user and date of the most recent step assessment carry over. A case
// without steps is Not Assessed.
func (c *TestCase) Aggregate() Assessment {
	if len(c.Steps) == 0 {
		return Assessment{
			State:    StateNotAssessed,
			Workflow: WorkflowAutomatic,
			Comment:  "no test steps available",
		}
	}
	var b strings.Builder
	worst := StatePassed
	var at time.Time
	var user string
	for _, step := range c.Steps {
		state := StateNotAssessed
		switch {
		case step.Assessment == nil:
			fmt.Fprintf(&b, "test step %s has no assessment\n", step.Name)
		case !step.Assessment.State.Known():
			fmt.Fprintf(&b, "test step %s has unknown assessment %q\n", step.Name, step.Assessment.State)
			state = StateFailed
		default:
			state = step.Assessment.State
			fmt.Fprintf(&b, "test step %s is %s\n", step.Name, state)
		}
		if step.Assessment != nil && step.Assessment.At.After(at) {
			at = step.Assessment.At
			user = step.Assessment.User
		}
		worst = Worse(worst, state)
	}
	return Assessment{
		State:    worst,
		Workflow: WorkflowAutomatic,
		Comment:  b.String(),
		User:     user,
		At:       at,
	}
}

// TestRun is the root of one validation campaign: which software was
// tested, by whom, and the tree of test cases and child runs below it.
type TestRun struct {
	ID          int64
	Name        string
	Description string
	// Checkpoint labels the software state under test, e.g. a VCS tag.
	Checkpoint string
	User       string
	// SimName and SimVersion identify the simulation configuration.
	SimName    string
	SimVersion string
	// SWVersion is the version of the validation software itself.
	SWVersion string
	Remarks   string
	// Type distinguishes campaigns, e.g. "performance" or "endurance".
	Type string
	// ParentID is the id of the enclosing run, 0 for a root run.
	ParentID int64
	// Locked runs reject further writes in valdb.
	Locked bool
	// Deleted marks the run for cleanup without dropping its rows.
	Deleted bool

	Children []*TestRun
	Cases    []*TestCase
	Jobs     []*RuntimeJob
}

// Case returns the first test case with the given name, or nil.
func (r *TestRun) Case(name string) *TestCase {
	for _, c := range r.Cases {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// AddChild attaches a child run and records the parent linkage.
func (r *TestRun) AddChild(child *TestRun) {
	child.ParentID = r.ID
	r.Children = append(r.Children, child)
}

// Lock marks the run read-only. With recursive set, child runs lock too.
func (r *TestRun) Lock(recursive bool) {
	if recursive {
		for _, child := range r.Children {
			child.Lock(true)
		}
	}
	r.Locked = true
}

// Unlock clears the read-only flag, recursing like Lock.
func (r *TestRun) Unlock(recursive bool) {
	if recursive {
		for _, child := range r.Children {
			child.Unlock(true)
		}
	}
	r.Locked = false
}

// Aggregate rolls the case verdicts up into one run verdict, using the
// same worst-wins rule as TestCase.Aggregate. A run without cases is
// Not Assessed.
func (r *TestRun) Aggregate() Assessment {
	if len(r.Cases) == 0 {
		return Assessment{
			State:    StateNotAssessed,
			Workflow: WorkflowAutomatic,
			Comment:  "no test cases available",
		}
	}
	var b strings.Builder
	worst := StatePassed
	var at time.Time
	var user string
	for _, c := range r.Cases {
		a := c.Aggregate()
		fmt.Fprintf(&b, "test case %s is %s\n", c.Name, a.State)
		if a.At.After(at) {
			at = a.At
			user = a.User
		}
		worst = Worse(worst, a.State)
	}
	return Assessment{
		State:    worst,
		Workflow: WorkflowAutomatic,
		Comment:  b.String(),
		User:     user,
		At:       at,
	}
}
