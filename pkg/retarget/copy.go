package retarget

import "github.com/rmax-ai/rigbind/pkg/scene"

// Copy flattens both hierarchies, matches them positionally and binds every
// target node to its source with a constraint of kind k. Root presence and
// node counts are checked before anything is mutated.
func Copy(source, target *scene.Node, k Kind, opts Options) (int, error) {
	pairs, err := prepare(source, target, opts)
	if err != nil {
		return 0, err
	}
	return Bind(pairs, k)
}

func prepare(source, target *scene.Node, opts Options) ([]Pair, error) {
	if source == nil {
		return nil, &MissingRootError{Side: SideSource}
	}
	if target == nil {
		return nil, &MissingRootError{Side: SideTarget}
	}
	return Match(
		Flatten(source, opts.IncludeInactive),
		Flatten(target, opts.IncludeInactive),
	)
}

// Action is what Copy would do with one pair.
type Action string

const (
	ActionBind Action = "bind"
	ActionSkip Action = "skip" // target already has sources of this kind
)

// PlanEntry describes one matched pair and the action Copy would take.
type PlanEntry struct {
	Index  int
	Source *scene.Node
	Target *scene.Node
	Action Action
}

// Plan reports what Copy would do without mutating either hierarchy.
func Plan(source, target *scene.Node, k Kind, opts Options) ([]PlanEntry, error) {
	a, err := AdapterFor(k)
	if err != nil {
		return nil, err
	}
	pairs, err := prepare(source, target, opts)
	if err != nil {
		return nil, err
	}

	entries := make([]PlanEntry, len(pairs))
	for i, p := range pairs {
		action := ActionBind
		if c := a.Find(p.Target); c != nil && a.SourceCount(c) > 0 {
			action = ActionSkip
		}
		entries[i] = PlanEntry{Index: i, Source: p.Source, Target: p.Target, Action: action}
	}
	return entries, nil
}
