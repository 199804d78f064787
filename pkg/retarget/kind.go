// Package retarget copies constraint relationships from one node hierarchy
// onto a structurally parallel one.
//
// Both hierarchies are flattened in the same pre-order traversal and paired
// index by index. Each target node then receives a constraint of the chosen
// kind whose single source is the positionally matching source node. Nodes
// that already carry sources for that kind are left alone, so a copy can be
// repeated safely. Pairing is purely positional: two trees with equal node
// counts but differently ordered children will bind by position, not by name.
package retarget

import (
	"fmt"
	"strings"

	"github.com/rmax-ai/rigbind/pkg/scene"
)

// Kind selects which constraint variant is created, queried or removed.
type Kind int

const (
	Rotation Kind = iota
	Parent
	Position
)

// Kinds lists every supported kind in display order.
func Kinds() []Kind {
	return []Kind{Rotation, Parent, Position}
}

func (k Kind) String() string {
	switch k {
	case Rotation:
		return "rotation"
	case Parent:
		return "parent"
	case Position:
		return "position"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ComponentType returns the scene component type backing the kind.
func (k Kind) ComponentType() string {
	switch k {
	case Rotation:
		return scene.TypeRotationConstraint
	case Parent:
		return scene.TypeParentConstraint
	case Position:
		return scene.TypePositionConstraint
	default:
		return ""
	}
}

// ParseKind accepts a kind name ("rotation") or its component type name
// ("RotationConstraint"), case-insensitively.
func ParseKind(s string) (Kind, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	for _, k := range Kinds() {
		if v == k.String() || v == strings.ToLower(k.ComponentType()) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown constraint kind %q (want rotation, parent or position)", s)
}
