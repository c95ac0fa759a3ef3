// Package tree builds and mutates the delegation tree skeleton.
//
// The whole topology is created up front by Build; execution only fills in
// task, focus and response fields. Nodes live in a single arena and refer to
// their children by NodeID, so the walker can hand out ids to concurrent
// branches without sharing pointers.
package tree

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/ShayCichocki/fractal/internal/branching"
	"github.com/ShayCichocki/fractal/pkg/models"
)

// NodeID addresses a node inside its Tree's arena.
type NodeID int

// None is the parent of the root.
const None NodeID = -1

// ErrInvalidShape is returned by Build for a depth or width below 1.
var ErrInvalidShape = errors.New("tree depth and width must be at least 1")

// ErrTooLarge is returned when the node count of a shape overflows an int.
var ErrTooLarge = errors.New("tree too large to build")

// Node is one agent slot in the tree.
type Node struct {
	ID                 string
	Layer              int
	Position           int
	Path               []int
	Task               string
	Focus              string
	Response           string
	Executed           bool
	CurrentlyExecuting bool
	State              models.NodeState
	Parent             NodeID
	Children           []NodeID
}

// Tree is a pre-built delegation tree for one query.
type Tree struct {
	mu     sync.RWMutex
	nodes  []Node
	depth  int
	width  int
	policy branching.Policy
}

// Build creates the full skeleton for a tree of the given shape. The root is
// assigned rootQuery as its task; every other node starts empty.
func Build(depth, width int, policy branching.Policy, rootQuery string) (*Tree, error) {
	if depth < 1 || width < 1 {
		return nil, fmt.Errorf("%w: depth=%d width=%d", ErrInvalidShape, depth, width)
	}
	if branching.Overflows(depth, width, policy) {
		return nil, fmt.Errorf("%w: depth=%d width=%d policy=%s", ErrTooLarge, depth, width, policy)
	}

	t := &Tree{
		nodes:  make([]Node, 0, branching.TotalAgents(depth, width, policy)),
		depth:  depth,
		width:  width,
		policy: policy,
	}
	counts := branching.ChildCounts(depth, width, policy)

	var grow func(parent NodeID, layer, position int, parentPath []int) NodeID
	grow = func(parent NodeID, layer, position int, parentPath []int) NodeID {
		path := make([]int, 0, layer)
		if layer > 0 {
			path = append(path, parentPath...)
			path = append(path, position)
		}

		id := NodeID(len(t.nodes))
		t.nodes = append(t.nodes, Node{
			ID:       uuid.New().String(),
			Layer:    layer,
			Position: position,
			Path:     path,
			State:    models.NodeStatePending,
			Parent:   parent,
			Children: make([]NodeID, counts[layer]),
		})

		for i := 0; i < counts[layer]; i++ {
			child := grow(id, layer+1, i, path)
			t.nodes[id].Children[i] = child
		}
		return id
	}

	root := grow(None, 0, 0, nil)
	t.nodes[root].Task = rootQuery
	t.nodes[root].Focus = "Main user query"
	return t, nil
}

// Depth returns the configured depth.
func (t *Tree) Depth() int { return t.depth }

// Width returns the configured width.
func (t *Tree) Width() int { return t.width }

// Policy returns the branching policy the tree was built with.
func (t *Tree) Policy() branching.Policy { return t.policy }

// Root returns the id of the root node.
func (t *Tree) Root() NodeID { return 0 }

// Len returns the number of nodes in the tree.
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}

// Node returns a copy of the node with the given id.
func (t *Tree) Node(id NodeID) (Node, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.valid(id) {
		return Node{}, false
	}
	return t.nodes[id].clone(), true
}

// Children returns the ids of the node's children in position order.
func (t *Tree) Children(id NodeID) []NodeID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.valid(id) {
		return nil
	}
	return slices.Clone(t.nodes[id].Children)
}

// Lookup finds a node by its path from the root.
func (t *Tree) Lookup(path []int) (NodeID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	id := t.Root()
	for _, pos := range path {
		children := t.nodes[id].Children
		if pos < 0 || pos >= len(children) {
			return None, false
		}
		id = children[pos]
	}
	return id, true
}

// Assign sets the task and focus of a node before it runs.
func (t *Tree) Assign(id NodeID, task, focus string) {
	t.update(id, func(n *Node) {
		n.Task = task
		n.Focus = focus
	})
}

// MarkExecuting moves a node into the executing state.
func (t *Tree) MarkExecuting(id NodeID) {
	t.update(id, func(n *Node) {
		n.CurrentlyExecuting = true
		n.State = models.NodeStateExecuting
	})
}

// MarkDelegated records that a node is waiting on its children.
func (t *Tree) MarkDelegated(id NodeID) {
	t.update(id, func(n *Node) {
		n.State = models.NodeStateDelegated
	})
}

// Complete stores a node's final response and marks it executed.
func (t *Tree) Complete(id NodeID, response string) {
	t.update(id, func(n *Node) {
		n.Response = response
		n.Executed = true
		n.CurrentlyExecuting = false
		n.State = models.NodeStateDone
	})
}

// ExecutedCount returns the number of nodes with a final response.
func (t *Tree) ExecutedCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for i := range t.nodes {
		if t.nodes[i].Executed {
			n++
		}
	}
	return n
}

// Walk visits every node in pre-order. Returning false stops the walk.
func (t *Tree) Walk(fn func(id NodeID, n Node) bool) {
	t.mu.RLock()
	nodes := make([]Node, len(t.nodes))
	for i := range t.nodes {
		nodes[i] = t.nodes[i].clone()
	}
	t.mu.RUnlock()

	for i := range nodes {
		if !fn(NodeID(i), nodes[i]) {
			return
		}
	}
}

// Snapshot returns a nested copy of the tree suitable for serialization.
func (t *Tree) Snapshot() *models.NodeSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snapshot(t.Root())
}

func (t *Tree) snapshot(id NodeID) *models.NodeSnapshot {
	n := &t.nodes[id]
	s := &models.NodeSnapshot{
		ID:                 n.ID,
		Layer:              n.Layer,
		Position:           n.Position,
		Path:               slices.Clone(n.Path),
		Task:               n.Task,
		Focus:              n.Focus,
		Response:           n.Response,
		Executed:           n.Executed,
		CurrentlyExecuting: n.CurrentlyExecuting,
		State:              n.State,
	}
	if len(n.Children) > 0 {
		s.Children = make([]*models.NodeSnapshot, len(n.Children))
		for i, child := range n.Children {
			s.Children[i] = t.snapshot(child)
		}
	}
	return s
}

func (t *Tree) update(id NodeID, fn func(n *Node)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.valid(id) {
		fn(&t.nodes[id])
	}
}

func (t *Tree) valid(id NodeID) bool {
	return id >= 0 && int(id) < len(t.nodes)
}

func (n Node) clone() Node {
	n.Path = slices.Clone(n.Path)
	n.Children = slices.Clone(n.Children)
	return n
}
