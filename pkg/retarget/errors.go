package retarget

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingRoot matches any *MissingRootError.
	ErrMissingRoot = errors.New("missing root")
	// ErrCountMismatch matches any *CountMismatchError.
	ErrCountMismatch = errors.New("node count mismatch")
)

// Side names which of the two hierarchies an error refers to.
type Side string

const (
	SideSource Side = "source"
	SideTarget Side = "target"
)

// MissingRootError is returned before any mutation when a root is absent.
type MissingRootError struct {
	Side Side
	Path string // lookup path that failed, if the root was named
}

func (e *MissingRootError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s root not found: %q", e.Side, e.Path)
	}
	return fmt.Sprintf("%s root not set", e.Side)
}

func (e *MissingRootError) Is(target error) bool {
	return target == ErrMissingRoot
}

// CountMismatchError is returned when the two flattened hierarchies differ in
// length. No binding has happened when it is returned.
type CountMismatchError struct {
	From int
	To   int
}

func (e *CountMismatchError) Error() string {
	return fmt.Sprintf("mismatch of the number of joints: (from) %d != (to) %d", e.From, e.To)
}

func (e *CountMismatchError) Is(target error) bool {
	return target == ErrCountMismatch
}
