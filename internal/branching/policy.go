// Package branching sizes the delegation tree.
//
// A policy maps (depth, width, layer) to the number of children an agent at
// that layer may create. The last layer never has children.
package branching

import (
	"math"
	"strings"
)

// Policy names a branching rule.
type Policy string

const (
	// Flat gives every non-terminal layer the full width.
	Flat Policy = "flat"
	// Subtract starts at the full width and decays linearly to 1.
	Subtract Policy = "subtract"
	// Add starts at 1 and grows linearly to the full width.
	Add Policy = "add"
	// ShrinkDivided divides the width by the layer number.
	ShrinkDivided Policy = "shrink_divided"
	// GrowDivided is the mirror of ShrinkDivided, ending at the full width.
	GrowDivided Policy = "grow_divided"
)

// All lists the known policies in display order.
var All = []Policy{Flat, Subtract, Add, ShrinkDivided, GrowDivided}

// Valid returns true if the policy is a known value.
func (p Policy) Valid() bool {
	switch p {
	case Flat, Subtract, Add, ShrinkDivided, GrowDivided:
		return true
	default:
		return false
	}
}

// String implements fmt.Stringer.
func (p Policy) String() string {
	return string(p)
}

// ParsePolicy maps a user-supplied name to a Policy. Names are case
// insensitive and accept '-' in place of '_'. Unknown names return Flat and
// false.
func ParsePolicy(name string) (Policy, bool) {
	p := Policy(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_"))
	if p.Valid() {
		return p, true
	}
	return Flat, false
}

// ChildCount returns how many children an agent at layer may create in a tree
// of the given depth and width. It is 0 for layer >= depth-1 and for layers
// outside the tree.
func ChildCount(depth, width int, policy Policy, layer int) int {
	if depth < 1 || width < 1 || layer < 0 || layer >= depth-1 {
		return 0
	}

	// Interior layers exist only when depth > 2, so span is never zero below.
	span := float64(depth - 2)

	switch policy {
	case Subtract:
		if layer == 0 || span <= 0 {
			return width
		}
		return max(1, round(float64(width)-float64(width-1)*float64(layer)/span))

	case Add:
		if layer == 0 || span <= 0 {
			return 1
		}
		return round(1 + float64(width-1)*float64(layer)/span)

	case ShrinkDivided:
		if layer == 0 {
			return width
		}
		return max(1, round(float64(width)/float64(layer+1)))

	case GrowDivided:
		if layer == depth-2 {
			return width
		}
		reverse := depth - layer - 2
		if reverse <= 0 {
			return width
		}
		return max(1, round(float64(width)/float64(reverse)))

	default:
		return width
	}
}

// ChildCounts returns ChildCount for every layer of the tree.
func ChildCounts(depth, width int, policy Policy) []int {
	if depth < 1 {
		return nil
	}
	counts := make([]int, depth)
	for layer := range counts {
		counts[layer] = ChildCount(depth, width, policy, layer)
	}
	return counts
}

// LayerCounts returns the number of agents on each layer. Layer 0 always holds
// the single root; every later layer holds the previous layer's agents times
// the previous layer's child count. Counts saturate at math.MaxInt.
func LayerCounts(depth, width int, policy Policy) []int {
	if depth < 1 {
		return nil
	}
	children := ChildCounts(depth, width, policy)
	layers := make([]int, depth)
	layers[0] = 1
	for layer := 1; layer < depth; layer++ {
		layers[layer] = mulSat(layers[layer-1], children[layer-1])
	}
	return layers
}

// TotalAgents returns the number of agents a fully expanded tree would hold,
// or math.MaxInt when that number does not fit in an int.
func TotalAgents(depth, width int, policy Policy) int {
	total := 0
	for _, n := range LayerCounts(depth, width, policy) {
		total = addSat(total, n)
	}
	return total
}

// Overflows reports whether a tree of this shape is too large to count.
func Overflows(depth, width int, policy Policy) bool {
	return TotalAgents(depth, width, policy) == math.MaxInt
}

// mulSat and addSat take non-negative operands.
func mulSat(a, b int) int {
	if a != 0 && b > math.MaxInt/a {
		return math.MaxInt
	}
	return a * b
}

func addSat(a, b int) int {
	if a > math.MaxInt-b {
		return math.MaxInt
	}
	return a + b
}

// round rounds half away from zero; all inputs here are positive.
func round(x float64) int {
	return int(math.Round(x))
}
