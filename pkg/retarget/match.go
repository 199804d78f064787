package retarget

import "github.com/rmax-ai/rigbind/pkg/scene"

// Pair is one positional correspondence between a source and a target node.
type Pair struct {
	Source *scene.Node
	Target *scene.Node
}

// Match zips two flattened sequences index by index. It fails with a
// *CountMismatchError when the lengths differ. No name or structure based
// re-alignment is attempted.
func Match(from, to []*scene.Node) ([]Pair, error) {
	if len(from) != len(to) {
		return nil, &CountMismatchError{From: len(from), To: len(to)}
	}
	pairs := make([]Pair, len(from))
	for i := range from {
		pairs[i] = Pair{Source: from[i], Target: to[i]}
	}
	return pairs, nil
}
