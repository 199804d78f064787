package retarget

import "github.com/rmax-ai/rigbind/pkg/scene"

// Reset removes every constraint of kind k found in the subtree rooted at
// root, using the same traversal rule as Flatten. Constraints of other kinds
// are untouched. It returns the number of constraints removed.
func Reset(root *scene.Node, k Kind, opts Options) (int, error) {
	if root == nil {
		return 0, &MissingRootError{Side: SideTarget}
	}
	a, err := AdapterFor(k)
	if err != nil {
		return 0, err
	}
	return a.DestroyAll(Flatten(root, opts.IncludeInactive)), nil
}
