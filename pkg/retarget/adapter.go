package retarget

import (
	"fmt"

	"github.com/rmax-ai/rigbind/pkg/scene"
)

// Adapter is the set of host primitives Bind and Reset need for one
// constraint kind.
type Adapter interface {
	Kind() Kind
	// Find returns the node's constraint of this kind without creating one.
	Find(n *scene.Node) *scene.Constraint
	// CreateIfAbsent returns the node's constraint of this kind, attaching
	// an empty, inactive one first if there is none.
	CreateIfAbsent(n *scene.Node) *scene.Constraint
	SourceCount(c *scene.Constraint) int
	AppendSource(c *scene.Constraint, src scene.Source)
	SetActive(c *scene.Constraint, active bool)
	// DestroyAll removes every constraint of this kind from the given nodes
	// and returns how many were removed.
	DestroyAll(nodes []*scene.Node) int
}

// componentAdapter drives one constraint component type on scene nodes.
type componentAdapter struct {
	kind          Kind
	componentType string
}

var adapters = map[Kind]Adapter{
	Rotation: componentAdapter{kind: Rotation, componentType: scene.TypeRotationConstraint},
	Parent:   componentAdapter{kind: Parent, componentType: scene.TypeParentConstraint},
	Position: componentAdapter{kind: Position, componentType: scene.TypePositionConstraint},
}

// AdapterFor returns the adapter registered for k.
func AdapterFor(k Kind) (Adapter, error) {
	a, ok := adapters[k]
	if !ok {
		return nil, fmt.Errorf("no adapter for constraint kind %s", k)
	}
	return a, nil
}

func (a componentAdapter) Kind() Kind { return a.kind }

func (a componentAdapter) Find(n *scene.Node) *scene.Constraint {
	return n.Constraint(a.componentType)
}

func (a componentAdapter) CreateIfAbsent(n *scene.Node) *scene.Constraint {
	if c := n.Constraint(a.componentType); c != nil {
		return c
	}
	return n.AddConstraint(a.componentType)
}

func (a componentAdapter) SourceCount(c *scene.Constraint) int {
	return len(c.Sources)
}

func (a componentAdapter) AppendSource(c *scene.Constraint, src scene.Source) {
	c.Sources = append(c.Sources, src)
}

func (a componentAdapter) SetActive(c *scene.Constraint, active bool) {
	c.IsActive = active
}

func (a componentAdapter) DestroyAll(nodes []*scene.Node) int {
	removed := 0
	for _, n := range nodes {
		for _, c := range n.ConstraintsOfType(a.componentType) {
			if n.RemoveConstraint(c) {
				removed++
			}
		}
	}
	return removed
}
