package retarget

import "github.com/rmax-ai/rigbind/pkg/scene"

// DefaultWeight is the influence every bound source receives.
const DefaultWeight = 1.0

// Bind attaches, for every pair in order, a constraint of kind k on the
// target whose single source is the paired source node. A target whose
// constraint of that kind already has sources is skipped, so Bind only ever
// performs the empty-to-one transition. Source nodes are never modified.
// It returns the number of targets newly bound.
func Bind(pairs []Pair, k Kind) (int, error) {
	a, err := AdapterFor(k)
	if err != nil {
		return 0, err
	}
	return bindWith(a, pairs), nil
}

func bindWith(a Adapter, pairs []Pair) int {
	current := scene.Source{Weight: DefaultWeight}
	defer func() {
		current.Node = nil
		current.NodeID = ""
	}()

	bound := 0
	for _, p := range pairs {
		c := a.CreateIfAbsent(p.Target)
		if a.SourceCount(c) > 0 {
			continue
		}
		current.Node = p.Source
		current.NodeID = p.Source.ID
		a.AppendSource(c, current)
		a.SetActive(c, true)
		bound++
	}
	return bound
}
