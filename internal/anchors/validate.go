package anchors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrAnchorNotFound = errors.New("anchor not found")
	ErrMissingAnchors = errors.New("missing anchors")
)

// NotFoundError reports a lookup of an id that is not in the registry.
type NotFoundError struct {
	AnchorID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("anchor %q not found", e.AnchorID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrAnchorNotFound }

// MissingError lists every required id absent from a registry, in the order
// they were required.
type MissingError struct {
	IDs []string
}

func (e *MissingError) Error() string {
	return "missing anchors: " + strings.Join(e.IDs, ", ")
}

func (e *MissingError) Is(target error) bool { return target == ErrMissingAnchors }

// Get returns the anchor with the given id.
func (r *Registry) Get(id string) (Anchor, error) {
	i, ok := r.index[id]
	if !ok {
		return Anchor{}, &NotFoundError{AnchorID: id}
	}
	return r.anchors[i], nil
}

// ValidateRequired checks that every id in required is present.
func (r *Registry) ValidateRequired(required []string) error {
	var missing []string
	seen := make(map[string]bool, len(required))
	for _, id := range required {
		if seen[id] {
			continue
		}
		seen[id] = true
		if _, ok := r.index[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return &MissingError{IDs: missing}
	}
	return nil
}
