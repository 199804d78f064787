package scene

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const avatarYAML = `name: stage
roots:
  - id: a
    name: Avatar
    children:
      - id: a-hips
        name: Hips
        children:
          - id: a-spine
            name: Spine
  - id: b
    name: Costume
    children:
      - id: b-hips
        name: Hips
        constraints:
          - type: RotationConstraint
            active: true
            sources:
              - source: a-hips
                weight: 1
      - id: b-hidden
        name: Hidden
        inactive: true
`

func TestDecode_LinksParentsAndSources(t *testing.T) {
	s, err := Decode([]byte(avatarYAML), FormatYAML)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	spine := s.Find("Avatar/Hips/Spine")
	if spine == nil {
		t.Fatal("expected to find Avatar/Hips/Spine")
	}
	if spine.Parent == nil || spine.Parent.ID != "a-hips" {
		t.Errorf("expected parent a-hips, got %+v", spine.Parent)
	}
	if got := spine.Root().Name; got != "Avatar" {
		t.Errorf("expected root Avatar, got %s", got)
	}

	hips := s.Find("Costume/Hips")
	c := hips.Constraint(TypeRotationConstraint)
	if c == nil {
		t.Fatal("expected rotation constraint on Costume/Hips")
	}
	if c.Sources[0].Node != s.NodeByID("a-hips") {
		t.Errorf("expected source resolved to a-hips")
	}
}

func TestDecode_UnknownSource(t *testing.T) {
	doc := `roots:
  - name: Root
    constraints:
      - type: ParentConstraint
        sources:
          - source: nowhere
            weight: 1
`
	_, err := Decode([]byte(doc), FormatYAML)
	if err == nil || !strings.Contains(err.Error(), "unknown node") {
		t.Fatalf("expected unknown node error, got %v", err)
	}
}

func TestDecode_DuplicateID(t *testing.T) {
	doc := `roots:
  - id: x
    name: A
  - id: x
    name: B
`
	_, err := Decode([]byte(doc), FormatYAML)
	if err == nil || !strings.Contains(err.Error(), "duplicate node id") {
		t.Fatalf("expected duplicate id error, got %v", err)
	}
}

func TestDecode_AssignsMissingIDs(t *testing.T) {
	doc := `roots:
  - name: Root
    children:
      - name: Child
`
	s, err := Decode([]byte(doc), FormatYAML)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	child := s.Find("Root/Child")
	if child.ID == "" {
		t.Error("expected generated id")
	}
	if s.NodeByID(child.ID) != child {
		t.Error("expected generated id to be indexed")
	}
}

func TestFind(t *testing.T) {
	s, err := Decode([]byte(avatarYAML), FormatYAML)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	tests := []struct {
		path string
		want string
	}{
		{"Avatar", "a"},
		{"/Avatar/Hips/", "a-hips"},
		{"Costume/Hips", "b-hips"},
		{"#b-hidden", "b-hidden"},
		{"Avatar/Missing", ""},
		{"", ""},
		{"#nope", ""},
	}
	for _, tt := range tests {
		got := s.Find(tt.path)
		if tt.want == "" {
			if got != nil {
				t.Errorf("Find(%q) = %s, want nil", tt.path, got.ID)
			}
			continue
		}
		if got == nil || got.ID != tt.want {
			t.Errorf("Find(%q) = %v, want %s", tt.path, got, tt.want)
		}
	}
}

func TestActiveInHierarchy(t *testing.T) {
	root := NewNode("Root")
	mid := root.AddChild(NewNode("Mid"))
	leaf := mid.AddChild(NewNode("Leaf"))

	if !leaf.ActiveInHierarchy() {
		t.Error("expected leaf active")
	}
	mid.Inactive = true
	if leaf.ActiveInHierarchy() {
		t.Error("expected leaf inactive when parent is inactive")
	}
	if !leaf.ActiveSelf() {
		t.Error("expected leaf ActiveSelf to ignore ancestors")
	}
}

func TestConstraintComponents(t *testing.T) {
	n := NewNode("Joint")
	rot := n.AddConstraint(TypeRotationConstraint)
	n.AddConstraint(TypeParentConstraint)
	second := n.AddConstraint(TypeRotationConstraint)

	if rot.IsActive || len(rot.Sources) != 0 {
		t.Errorf("expected new constraint inactive and empty, got %+v", rot)
	}
	if n.Constraint(TypeRotationConstraint) != rot {
		t.Error("expected first rotation constraint")
	}
	if got := len(n.ConstraintsOfType(TypeRotationConstraint)); got != 2 {
		t.Errorf("expected 2 rotation constraints, got %d", got)
	}

	if !n.RemoveConstraint(second) {
		t.Error("expected removal to succeed")
	}
	if n.RemoveConstraint(second) {
		t.Error("expected second removal to fail")
	}
	if len(n.Constraints) != 2 {
		t.Errorf("expected 2 constraints left, got %d", len(n.Constraints))
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	for _, name := range []string{"scene.yaml", "scene.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)

			s := New("stage")
			src := s.AddRoot(NewNode("Source"))
			dst := s.AddRoot(NewNode("Target"))
			c := dst.AddConstraint(TypePositionConstraint)
			c.Sources = append(c.Sources, Source{Node: src, Weight: 1})
			c.IsActive = true

			if err := Save(path, s); err != nil {
				t.Fatalf("Save failed: %v", err)
			}
			if _, err := os.Stat(path); err != nil {
				t.Fatalf("expected file to exist: %v", err)
			}

			loaded, err := Load(path)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			lc := loaded.Find("Target").Constraint(TypePositionConstraint)
			if lc == nil || !lc.IsActive {
				t.Fatalf("expected active position constraint, got %+v", lc)
			}
			if lc.Sources[0].Node != loaded.Find("Source") {
				t.Error("expected source reference to survive the round trip")
			}
			if lc.Sources[0].Weight != 1 {
				t.Errorf("expected weight 1, got %v", lc.Sources[0].Weight)
			}
		})
	}
}

func TestPath(t *testing.T) {
	root := NewNode("Avatar")
	leaf := root.AddChild(NewNode("Hips")).AddChild(NewNode("Spine"))
	if got := leaf.Path(); got != "Avatar/Hips/Spine" {
		t.Errorf("expected Avatar/Hips/Spine, got %s", got)
	}
}
