package splitter

import (
	"time"
)

// Stage names one pipeline stage.
type Stage string

const (
	StageDetect    Stage = "detect"
	StageClassify  Stage = "classify"
	StageNormalize Stage = "normalize"
	StageMerge     Stage = "merge"
)

// Stages lists the pipeline stages in execution order.
var Stages = []Stage{StageDetect, StageClassify, StageNormalize, StageMerge}

// Phase is the state a run has reached. Each completed stage advances it by one.
type Phase string

const (
	PhaseLoaded     Phase = "loaded"
	PhaseDetected   Phase = "detected"
	PhaseClassified Phase = "classified"
	PhaseNormalized Phase = "normalized"
	PhaseMerged     Phase = "merged"
)

var stagePhase = map[Stage]Phase{
	StageDetect:    PhaseDetected,
	StageClassify:  PhaseClassified,
	StageNormalize: PhaseNormalized,
	StageMerge:     PhaseMerged,
}

// StageStatus represents the current status of a stage
type StageStatus string

const (
	StageStatusPending   StageStatus = "pending"
	StageStatusActive    StageStatus = "active"
	StageStatusCompleted StageStatus = "completed"
	StageStatusFailed    StageStatus = "failed"
	StageStatusSkipped   StageStatus = "skipped"
)

// StageState represents the runtime state of a stage
type StageState struct {
	Stage     Stage       `json:"stage"`
	Status    StageStatus `json:"status"`
	StartTime *time.Time  `json:"start_time,omitempty"`
	EndTime   *time.Time  `json:"end_time,omitempty"`
	RowsIn    int         `json:"rows_in"`
	RowsOut   int         `json:"rows_out"`
	Message   string      `json:"message,omitempty"`
	Error     error       `json:"-"`
}

// NewStageState creates a pending stage state.
func NewStageState(stage Stage) *StageState {
	return &StageState{Stage: stage, Status: StageStatusPending}
}

// Start marks the stage as active
func (s *StageState) Start(rowsIn int) {
	now := time.Now()
	s.StartTime = &now
	s.Status = StageStatusActive
	s.RowsIn = rowsIn
}

// Complete marks the stage as completed
func (s *StageState) Complete(rowsOut int) {
	now := time.Now()
	s.EndTime = &now
	s.Status = StageStatusCompleted
	s.RowsOut = rowsOut
}

// Fail marks the stage as failed with the given error
func (s *StageState) Fail(err error) {
	now := time.Now()
	s.EndTime = &now
	s.Status = StageStatusFailed
	s.Error = err
}

// Skip marks the stage as skipped with the given reason
func (s *StageState) Skip(reason string) {
	s.Status = StageStatusSkipped
	s.Message = reason
}

// Duration returns the duration of the stage execution
func (s *StageState) Duration() time.Duration {
	if s.StartTime == nil {
		return 0
	}
	if s.EndTime != nil {
		return s.EndTime.Sub(*s.StartTime)
	}
	return time.Since(*s.StartTime)
}

// RunStatus is the overall status of a run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// RunState tracks one pipeline run. It is owned by a single goroutine.
type RunState struct {
	ID        string                `json:"id"`
	Status    RunStatus             `json:"status"`
	Phase     Phase                 `json:"phase"`
	StartTime time.Time             `json:"start_time"`
	EndTime   *time.Time            `json:"end_time,omitempty"`
	Stages    map[Stage]*StageState `json:"stages"`
	Error     error                 `json:"-"`
}

// NewRunState creates a run state with every stage pending.
func NewRunState(id string) *RunState {
	stages := make(map[Stage]*StageState, len(Stages))
	for _, s := range Stages {
		stages[s] = NewStageState(s)
	}
	return &RunState{
		ID:        id,
		Status:    RunStatusPending,
		Phase:     PhaseLoaded,
		StartTime: time.Now(),
		Stages:    stages,
	}
}

// Start marks the run as running
func (r *RunState) Start() {
	r.Status = RunStatusRunning
	r.StartTime = time.Now()
}

// Advance records a completed stage and moves the phase forward.
func (r *RunState) Advance(stage Stage) {
	r.Phase = stagePhase[stage]
}

// Complete marks the run as completed
func (r *RunState) Complete() {
	now := time.Now()
	r.EndTime = &now
	r.Status = RunStatusCompleted
}

// Fail marks the run as failed and skips every stage that never started.
func (r *RunState) Fail(err error) {
	now := time.Now()
	r.EndTime = &now
	r.Status = RunStatusFailed
	r.Error = err
	r.skipPending("previous stage failed")
}

// Cancel marks the run as cancelled
func (r *RunState) Cancel(err error) {
	now := time.Now()
	r.EndTime = &now
	r.Status = RunStatusCancelled
	r.Error = err
	r.skipPending("run cancelled")
}

// Duration returns the duration of the run
func (r *RunState) Duration() time.Duration {
	if r.EndTime != nil {
		return r.EndTime.Sub(r.StartTime)
	}
	return time.Since(r.StartTime)
}

// FailedStages returns the stages that failed, in execution order.
func (r *RunState) FailedStages() []*StageState {
	var out []*StageState
	for _, s := range Stages {
		if st := r.Stages[s]; st.Status == StageStatusFailed {
			out = append(out, st)
		}
	}
	return out
}

func (r *RunState) skipPending(reason string) {
	for _, s := range Stages {
		if st := r.Stages[s]; st.Status == StageStatusPending {
			st.Skip(reason)
		}
	}
}
