package retarget

import "github.com/rmax-ai/rigbind/pkg/scene"

// Options tune how hierarchies are traversed.
type Options struct {
	// IncludeInactive keeps inactive nodes (and their subtrees) in the
	// flattened sequence. When false an inactive node excludes its whole
	// subtree, and a root that is inactive in its hierarchy yields nothing.
	IncludeInactive bool
}

// Flatten returns root and all of its descendants in depth-first pre-order,
// children in their stored order. The result is a fresh slice owned by the
// caller; later changes to the tree do not affect it.
func Flatten(root *scene.Node, includeInactive bool) []*scene.Node {
	if root == nil {
		return nil
	}
	if !includeInactive && !root.ActiveInHierarchy() {
		return []*scene.Node{}
	}

	out := []*scene.Node{}
	var visit func(n *scene.Node)
	visit = func(n *scene.Node) {
		out = append(out, n)
		for _, c := range n.Children {
			if !includeInactive && !c.ActiveSelf() {
				continue
			}
			visit(c)
		}
	}
	visit(root)
	return out
}
