package models

import "time"

// ConditionResult is one named checklist condition for a candidate.
type ConditionResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// CandidateReport records how a pair went through the checklist in one cycle.
// Note: no transport (json/http) logic here beyond field tags.
type CandidateReport struct {
	Pair       string            `json:"pair"`
	Direction  Direction         `json:"direction,omitempty"`
	Strategy   string            `json:"strategy,omitempty"`
	Lots       float64           `json:"lots"`
	Conditions []ConditionResult `json:"conditions"`
	Passed     int               `json:"passed"`
	Admitted   bool              `json:"admitted"`
	Outcome    string            `json:"outcome"`
}

// CycleReport is a consolidated view of one orchestrator pass.
type CycleReport struct {
	CycleID    string            `json:"cycle_id"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	ServerTime time.Time         `json:"server_time"`
	Gated      string            `json:"gated,omitempty"`
	Warning    string            `json:"warning,omitempty"`
	Closed     []string          `json:"closed,omitempty"`
	Candidates []CandidateReport `json:"candidates,omitempty"`
	Errors     map[string]string `json:"errors,omitempty"`
}

// AddError records err under key, usually a pair or a broker call name.
func (r *CycleReport) AddError(key string, err error) {
	if r.Errors == nil {
		r.Errors = make(map[string]string)
	}
	r.Errors[key] = err.Error()
}
