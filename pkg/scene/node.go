// Package scene defines the hierarchical node tree that constraint
// components are attached to, and the document format it is stored in.
package scene

import "strings"

// Component type names of the constraint variants a node can carry.
const (
	TypeRotationConstraint = "RotationConstraint"
	TypeParentConstraint   = "ParentConstraint"
	TypePositionConstraint = "PositionConstraint"
)

// Source is one contribution to a constraint.
type Source struct {
	NodeID string  `yaml:"source" json:"source"`
	Weight float64 `yaml:"weight" json:"weight"`

	// Node is resolved from NodeID when a scene is linked.
	Node *Node `yaml:"-" json:"-"`
}

// Constraint is a constraint component attached to a node.
type Constraint struct {
	Type     string   `yaml:"type" json:"type"`
	IsActive bool     `yaml:"active" json:"active"`
	Sources  []Source `yaml:"sources,omitempty" json:"sources,omitempty"`
}

// Node is a single element of the scene tree (e.g. a skeletal joint).
type Node struct {
	ID          string        `yaml:"id,omitempty" json:"id,omitempty"`
	Name        string        `yaml:"name" json:"name"`
	Inactive    bool          `yaml:"inactive,omitempty" json:"inactive,omitempty"`
	Constraints []*Constraint `yaml:"constraints,omitempty" json:"constraints,omitempty"`
	Children    []*Node       `yaml:"children,omitempty" json:"children,omitempty"`

	// Parent is a traversal-only back reference, wired by Link and AddChild.
	Parent *Node `yaml:"-" json:"-"`
}

// NewNode returns a detached, active node.
func NewNode(name string) *Node {
	return &Node{Name: name}
}

// AddChild appends child to n's children and returns child.
func (n *Node) AddChild(child *Node) *Node {
	child.Parent = n
	n.Children = append(n.Children, child)
	return child
}

// ActiveSelf reports the node's own active flag.
func (n *Node) ActiveSelf() bool {
	return !n.Inactive
}

// ActiveInHierarchy reports whether n and all of its ancestors are active.
func (n *Node) ActiveInHierarchy() bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Inactive {
			return false
		}
	}
	return true
}

// Root returns the topmost ancestor of n (n itself when detached).
func (n *Node) Root() *Node {
	cur := n
	for cur.Parent != nil {
		cur = cur.Parent
	}
	return cur
}

// Path returns the slash-separated name path from the scene root to n.
func (n *Node) Path() string {
	var names []string
	for cur := n; cur != nil; cur = cur.Parent {
		names = append(names, cur.Name)
	}
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return strings.Join(names, "/")
}

// Constraint returns the first constraint component of the given type, or nil.
func (n *Node) Constraint(typ string) *Constraint {
	for _, c := range n.Constraints {
		if c.Type == typ {
			return c
		}
	}
	return nil
}

// ConstraintsOfType returns every constraint component of the given type.
func (n *Node) ConstraintsOfType(typ string) []*Constraint {
	var out []*Constraint
	for _, c := range n.Constraints {
		if c.Type == typ {
			out = append(out, c)
		}
	}
	return out
}

// AddConstraint attaches a new, inactive constraint component with no sources.
func (n *Node) AddConstraint(typ string) *Constraint {
	c := &Constraint{Type: typ}
	n.Constraints = append(n.Constraints, c)
	return c
}

// RemoveConstraint detaches c from n. It reports whether c was attached.
func (n *Node) RemoveConstraint(c *Constraint) bool {
	for i, existing := range n.Constraints {
		if existing == c {
			n.Constraints = append(n.Constraints[:i], n.Constraints[i+1:]...)
			if len(n.Constraints) == 0 {
				n.Constraints = nil
			}
			return true
		}
	}
	return false
}
