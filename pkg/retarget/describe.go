package retarget

import "github.com/rmax-ai/rigbind/pkg/scene"

// NoRootName is shown when no root has been picked.
const NoRootName = "None"

// Description is the read-only summary shown next to a picked root.
type Description struct {
	RootName  string `json:"root_name"`
	NodeCount int    `json:"node_count"`
}

// Describe returns the name of the topmost ancestor of root and the number
// of nodes Flatten would produce for it.
func Describe(root *scene.Node, opts Options) Description {
	if root == nil {
		return Description{RootName: NoRootName}
	}
	return Description{
		RootName:  root.Root().Name,
		NodeCount: len(Flatten(root, opts.IncludeInactive)),
	}
}
