package models

// Role describes where an agent sits in the delegation tree.
type Role string

const (
	// RoleRoot is the single agent at layer 0.
	RoleRoot Role = "root"
	// RoleIntermediate is any agent that may still delegate.
	RoleIntermediate Role = "intermediate"
	// RoleLeaf is an agent that must answer directly.
	RoleLeaf Role = "leaf"
)

// Valid returns true if the role is a known value.
func (r Role) Valid() bool {
	switch r {
	case RoleRoot, RoleIntermediate, RoleLeaf:
		return true
	default:
		return false
	}
}

// RoleFor returns the role of an agent at layer with the given allowed child count.
func RoleFor(layer, allowedChildren int) Role {
	switch {
	case layer == 0:
		return RoleRoot
	case allowedChildren == 0:
		return RoleLeaf
	default:
		return RoleIntermediate
	}
}
