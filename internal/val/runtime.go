package val

import (
	"errors"
	"fmt"
)

// ErrJobMismatch is returned when incidents carry a different job id than
// the job they are added to.
var ErrJobMismatch = errors.New("val: incident job id does not match")

// IncidentType classifies runtime incidents by the levels the batch
// cluster reports.
type IncidentType string

const (
	IncidentCrash       IncidentType = "Crash"
	IncidentException   IncidentType = "Exception"
	IncidentError       IncidentType = "Error"
	IncidentAlert       IncidentType = "Alert"
	IncidentWarning     IncidentType = "Warning"
	IncidentInformation IncidentType = "Information"
	IncidentDebug       IncidentType = "Debug"
)

// Incident is one runtime event reported for a batch task.
type Incident struct {
	Node  string
	JobID int64
	// TaskID identifies the task within the job array.
	TaskID      int64
	Type        IncidentType
	Code        int
	Description string
	Source      string
}

// JobState tracks a runtime job through the batch queue.
type JobState string

const (
	JobQueued   JobState = "queued"
	JobRunning  JobState = "running"
	JobFinished JobState = "finished"
	JobFailed   JobState = "failed"
)

// RuntimeJob collects the incidents of one batch job so a test run can
// report cluster health next to the test verdicts. The error, exception
// and crash counters are maintained by AddIncidents and survive
// persistence even when the incident list itself is not stored.
type RuntimeJob struct {
	Node       string
	JobID      int64
	State      JobState
	Errors     int
	Exceptions int
	Crashes    int
	Incidents  []Incident
}

// NewRuntimeJob returns a job in the queued state.
func NewRuntimeJob(node string, jobID int64) *RuntimeJob {
	return &RuntimeJob{Node: node, JobID: jobID, State: JobQueued}
}

// AddIncidents appends incidents belonging to this job and updates the
// counters. Incidents carrying a different job id reject the whole batch.
func (j *RuntimeJob) AddIncidents(list []Incident) error {
	for _, in := range list {
		if in.JobID != j.JobID {
			return fmt.Errorf("%w: got %d, job is %d", ErrJobMismatch, in.JobID, j.JobID)
		}
	}
	for _, in := range list {
		switch in.Type {
		case IncidentError:
			j.Errors++
		case IncidentException:
			j.Exceptions++
		case IncidentCrash:
			j.Crashes++
		}
	}
	j.Incidents = append(j.Incidents, list...)
	return nil
}

// Count returns the number of recorded incidents of the given type. The
// empty type counts all incidents.
func (j *RuntimeJob) Count(t IncidentType) int {
	if t == "" {
		return len(j.Incidents)
	}
	n := 0
	for _, in := range j.Incidents {
		if in.Type == t {
			n++
		}
	}
	return n
}
