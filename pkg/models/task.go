package models

// Subtask is one unit of delegated work proposed by a delegating agent.
type Subtask struct {
	// Subtask is the task text handed to the child agent.
	Subtask string `json:"subtask" yaml:"subtask"`
	// Focus is the aspect or angle the child should concentrate on.
	Focus string `json:"focus" yaml:"focus"`
}

// TaskResult is the outcome of one child agent, as fed into synthesis.
type TaskResult struct {
	Subtask  string `json:"subtask" yaml:"subtask"`
	Focus    string `json:"focus" yaml:"focus"`
	Result   string `json:"result" yaml:"result"`
	Layer    int    `json:"layer" yaml:"layer"`
	Position int    `json:"position" yaml:"position"`
}

// Empty reports whether the result carries no usable text.
func (r TaskResult) Empty() bool {
	return r.Result == ""
}
