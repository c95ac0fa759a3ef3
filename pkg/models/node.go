package models

import "time"

// NodeState represents the lifecycle state of a tree node.
type NodeState string

const (
	// NodeStatePending indicates the node has not been entered.
	NodeStatePending NodeState = "pending"
	// NodeStateExecuting indicates the node is waiting on its decision call.
	NodeStateExecuting NodeState = "executing"
	// NodeStateDelegated indicates the node is waiting on its children.
	NodeStateDelegated NodeState = "delegated"
	// NodeStateDone indicates the node has a final response.
	NodeStateDone NodeState = "done"
)

// Valid returns true if the state is a known value.
func (s NodeState) Valid() bool {
	switch s {
	case NodeStatePending, NodeStateExecuting, NodeStateDelegated, NodeStateDone:
		return true
	default:
		return false
	}
}

// NodeSnapshot is a nested, serializable view of a tree node and its subtree.
type NodeSnapshot struct {
	ID                 string          `json:"id" yaml:"id"`
	Layer              int             `json:"layer" yaml:"layer"`
	Position           int             `json:"position" yaml:"position"`
	Path               []int           `json:"path" yaml:"path"`
	Task               string          `json:"task,omitempty" yaml:"task,omitempty"`
	Focus              string          `json:"focus,omitempty" yaml:"focus,omitempty"`
	Response           string          `json:"response,omitempty" yaml:"response,omitempty"`
	Executed           bool            `json:"executed" yaml:"executed"`
	CurrentlyExecuting bool            `json:"currently_executing" yaml:"currently_executing"`
	State              NodeState       `json:"state" yaml:"state"`
	Children           []*NodeSnapshot `json:"children,omitempty" yaml:"children,omitempty"`
}

// LogEntry records one visited node in completion order.
type LogEntry struct {
	// Seq is the zero-based completion index within a run.
	Seq      int    `json:"seq" yaml:"seq"`
	Layer    int    `json:"layer" yaml:"layer"`
	Position int    `json:"position" yaml:"position"`
	Role     Role   `json:"role" yaml:"role"`
	Path     []int  `json:"path" yaml:"path"`
	Task     string `json:"task" yaml:"task"`
	Focus    string `json:"focus" yaml:"focus"`
	Response string `json:"response" yaml:"response"`
	// Delegated is true when the node split its task instead of answering.
	Delegated bool      `json:"delegated" yaml:"delegated"`
	At        time.Time `json:"at" yaml:"at"`
}
