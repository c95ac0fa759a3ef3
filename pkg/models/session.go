package models

import "time"

// DefaultGoal is the goal used when a session is created without one.
const DefaultGoal = "General AI assistance"

// Session binds a goal to a series of queries.
type Session struct {
	ID        string    `json:"id" yaml:"id"`
	Goal      string    `json:"goal" yaml:"goal"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// RunRecord is the persisted summary of one finished query.
type RunRecord struct {
	ID                  string     `json:"id" yaml:"id"`
	SessionID           string     `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	Query               string     `json:"query" yaml:"query"`
	Goal                string     `json:"goal" yaml:"goal"`
	Depth               int        `json:"depth" yaml:"depth"`
	Width               int        `json:"width" yaml:"width"`
	Policy              string     `json:"policy" yaml:"policy"`
	QuantumRuns         int        `json:"quantum_runs" yaml:"quantum_runs"`
	TotalPossibleAgents int        `json:"total_possible_agents" yaml:"total_possible_agents"`
	ExecutedAgents      int        `json:"executed_agents" yaml:"executed_agents"`
	Delegated           bool       `json:"delegated" yaml:"delegated"`
	FinalAnswer         string     `json:"final_answer" yaml:"final_answer"`
	StartedAt           time.Time  `json:"started_at" yaml:"started_at"`
	CompletedAt         time.Time  `json:"completed_at" yaml:"completed_at"`
	Entries             []RunEntry `json:"entries,omitempty" yaml:"entries,omitempty"`
}

// RunEntry is a log entry tagged with the quantum run it belongs to.
type RunEntry struct {
	Run      int `json:"run" yaml:"run"`
	LogEntry `yaml:",inline"`
}
