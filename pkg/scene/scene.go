package scene

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Scene is a document holding one or more root nodes.
type Scene struct {
	Name  string  `yaml:"name,omitempty" json:"name,omitempty"`
	Roots []*Node `yaml:"roots" json:"roots"`

	index map[string]*Node
}

// New creates an empty scene.
func New(name string) *Scene {
	return &Scene{Name: name, index: make(map[string]*Node)}
}

// AddRoot appends a root node to the scene and returns it.
func (s *Scene) AddRoot(n *Node) *Node {
	n.Parent = nil
	s.Roots = append(s.Roots, n)
	return n
}

// Walk visits every node of the scene in pre-order. Returning false from fn
// stops the walk.
func (s *Scene) Walk(fn func(n *Node) bool) {
	var visit func(n *Node) bool
	visit = func(n *Node) bool {
		if !fn(n) {
			return false
		}
		for _, c := range n.Children {
			if !visit(c) {
				return false
			}
		}
		return true
	}
	for _, r := range s.Roots {
		if !visit(r) {
			return
		}
	}
}

// Link wires parent pointers, assigns ids to nodes that lack one, rebuilds
// the id index and resolves every constraint source to its node.
func (s *Scene) Link() error {
	s.index = make(map[string]*Node)

	var link func(n, parent *Node) error
	link = func(n, parent *Node) error {
		n.Parent = parent
		if n.ID == "" {
			n.ID = uuid.NewString()
		}
		if _, dup := s.index[n.ID]; dup {
			return fmt.Errorf("duplicate node id %q at %s", n.ID, n.Path())
		}
		s.index[n.ID] = n
		for _, c := range n.Children {
			if c == nil {
				return fmt.Errorf("nil child under %s", n.Path())
			}
			if err := link(c, n); err != nil {
				return err
			}
		}
		return nil
	}
	for _, r := range s.Roots {
		if r == nil {
			return fmt.Errorf("nil root in scene %q", s.Name)
		}
		if err := link(r, nil); err != nil {
			return err
		}
	}

	var err error
	s.Walk(func(n *Node) bool {
		for _, c := range n.Constraints {
			for i := range c.Sources {
				src := &c.Sources[i]
				if src.Node != nil {
					src.NodeID = src.Node.ID
				}
				target, ok := s.index[src.NodeID]
				if !ok {
					err = fmt.Errorf("%s on %s references unknown node %q", c.Type, n.Path(), src.NodeID)
					return false
				}
				src.Node = target
			}
		}
		return true
	})
	return err
}

// NodeByID returns the node with the given id, or nil.
func (s *Scene) NodeByID(id string) *Node {
	if s.index == nil {
		return nil
	}
	return s.index[id]
}

// Find resolves a slash-separated name path starting at a scene root, e.g.
// "Avatar/Armature/Hips". When siblings share a name the first one wins.
// A path of the form "#<id>" selects a node by id. It returns nil when
// nothing matches.
func (s *Scene) Find(path string) *Node {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if strings.HasPrefix(path, "#") {
		return s.NodeByID(strings.TrimPrefix(path, "#"))
	}

	parts := strings.Split(strings.Trim(path, "/"), "/")
	candidates := s.Roots
	var found *Node
	for _, part := range parts {
		found = nil
		for _, c := range candidates {
			if c.Name == part {
				found = c
				break
			}
		}
		if found == nil {
			return nil
		}
		candidates = found.Children
	}
	return found
}

// Count returns the total number of nodes in the scene.
func (s *Scene) Count() int {
	total := 0
	s.Walk(func(*Node) bool {
		total++
		return true
	})
	return total
}
