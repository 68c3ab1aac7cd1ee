// Package anchors finds SIG_ANCHOR markers in rendered documents and resolves
// them to page coordinates.
//
// Coordinate convention: RawX and RawY are default user-space points of the
// marker's first glyph origin (bottom-left origin, before page rotation).
// XPercent and YFromBottom describe the same point in the page frame a reader
// sees: MediaBox origin removed and /Rotate applied, y growing upwards.
package anchors

import (
	"regexp"

	"github.com/irportal/anchorsign/internal/pdf/layout"
	"github.com/irportal/anchorsign/internal/pdf/pdfdoc"
)

// Marker prefixes every anchor in the text layer.
const Marker = "SIG_ANCHOR:"

var pattern = regexp.MustCompile(regexp.QuoteMeta(Marker) + `([A-Za-z0-9_]+)`)

// Anchor is a resolved marker.
type Anchor struct {
	ID          string  `json:"anchor_id"`
	Page        int     `json:"page_number"`
	XPercent    float64 `json:"x_percent"`
	YFromBottom float64 `json:"y_from_bottom"`
	RawX        float64 `json:"raw_x"`
	RawY        float64 `json:"raw_y"`
}

// Registry is the ordered set of anchors of one document. The first
// occurrence of an id wins; later ones are kept aside as duplicates.
type Registry struct {
	anchors    []Anchor
	index      map[string]int
	duplicates []Anchor
}

func newRegistry() *Registry {
	return &Registry{index: make(map[string]int)}
}

func (r *Registry) add(a Anchor) {
	if _, ok := r.index[a.ID]; ok {
		r.duplicates = append(r.duplicates, a)
		return
	}
	r.index[a.ID] = len(r.anchors)
	r.anchors = append(r.anchors, a)
}

// Len returns the number of distinct anchors.
func (r *Registry) Len() int { return len(r.anchors) }

// All returns the anchors in page, then scan order.
func (r *Registry) All() []Anchor {
	out := make([]Anchor, len(r.anchors))
	copy(out, r.anchors)
	return out
}

// IDs returns the anchor ids in registry order.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.anchors))
	for i, a := range r.anchors {
		out[i] = a.ID
	}
	return out
}

// Duplicates returns the occurrences that were ignored because their id was
// already registered.
func (r *Registry) Duplicates() []Anchor {
	out := make([]Anchor, len(r.duplicates))
	copy(out, r.duplicates)
	return out
}

// Detect parses a PDF and returns its anchor registry. Pages are decoded one
// at a time. A document without markers yields an empty registry.
func Detect(data []byte) (*Registry, error) {
	doc, err := pdfdoc.Open(data)
	if err != nil {
		return nil, err
	}
	reg := newRegistry()
	for page, err := range layout.Pages(doc) {
		if err != nil {
			return nil, err
		}
		scanPage(reg, page)
	}
	return reg, nil
}

// FromPages builds a registry from already extracted pages.
func FromPages(pages []*layout.Page) *Registry {
	reg := newRegistry()
	for _, p := range pages {
		scanPage(reg, p)
	}
	return reg
}

func scanPage(reg *Registry, page *layout.Page) {
	w, _ := page.DisplaySize()
	for _, run := range page.Runs {
		for _, m := range pattern.FindAllStringSubmatchIndex(run.Text, -1) {
			origin := run.RuneOrigin(runeIndex(run.Text, m[0]))
			dx, dy := page.ToDisplay(origin.X, origin.Y)

			xp := 0.0
			if w > 0 {
				xp = clamp(dx/w, 0, 1)
			}
			reg.add(Anchor{
				ID:          run.Text[m[2]:m[3]],
				Page:        page.Number,
				XPercent:    xp,
				YFromBottom: dy,
				RawX:        origin.X,
				RawY:        origin.Y,
			})
		}
	}
}

// runeIndex converts a byte offset in s to a rune index.
func runeIndex(s string, byteOff int) int {
	n := 0
	for i := range s {
		if i >= byteOff {
			return n
		}
		n++
	}
	return n
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
