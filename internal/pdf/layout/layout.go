// Package layout extracts positioned text runs and drawn boxes from PDF pages.
//
// Coordinates are in default user space: points, origin at the bottom-left
// of the unrotated page. Runs keep the order in which they appear in the
// content streams.
package layout

import (
	"context"
	"iter"

	"golang.org/x/sync/errgroup"

	"github.com/irportal/anchorsign/internal/pdf/pdfdoc"
)

// ErrMalformedDocument is returned when the input cannot be parsed.
var ErrMalformedDocument = pdfdoc.ErrMalformed

// Point is a position in default user space.
type Point struct {
	X, Y float64
}

// TextRun is a maximal sequence of glyphs drawn contiguously along one
// baseline with one font size.
type TextRun struct {
	Text string
	// X and Y locate the origin of the first glyph.
	X, Y float64
	// FontSize is the effective size in user space.
	FontSize float64
	// Width is the advance from the first glyph origin to the pen position
	// after the last glyph.
	Width float64
	// Angle is the baseline direction in degrees, counter-clockwise.
	Angle float64
	Font  string

	// origins holds one point per rune of Text.
	origins []Point
}

// RuneOrigin returns the origin of the i-th rune of Text.
func (r TextRun) RuneOrigin(i int) Point {
	if i < 0 || i >= len(r.origins) {
		return Point{X: r.X, Y: r.Y}
	}
	return r.origins[i]
}

// BoxKind tells what produced a Box.
type BoxKind string

const (
	BoxPath  BoxKind = "path"
	BoxImage BoxKind = "image"
)

// Box is the axis-aligned bounds of a rectangle path or a placed image.
type Box struct {
	MinX, MinY, MaxX, MaxY float64
	Kind                   BoxKind
}

// Page is the extracted layout of one page.
type Page struct {
	pdfdoc.Geometry
	Number int
	Runs   []TextRun
	Boxes  []Box
}

// ExtractPage extracts page n (1-based) of doc.
func ExtractPage(doc *pdfdoc.Document, n int) (page *Page, err error) {
	defer pdfdoc.Recover(&err)

	p, err := doc.Page(n)
	if err != nil {
		return nil, err
	}

	in := newInterpreter()
	if err := in.run(p); err != nil {
		return nil, err
	}

	return &Page{
		Geometry: p.Geometry,
		Number:   n,
		Runs:     in.runs(),
		Boxes:    in.boxes,
	}, nil
}

// Pages yields the pages of doc in order. Iteration stops after the first
// error.
func Pages(doc *pdfdoc.Document) iter.Seq2[*Page, error] {
	return func(yield func(*Page, error) bool) {
		for n := 1; n <= doc.NumPages(); n++ {
			p, err := ExtractPage(doc, n)
			if !yield(p, err) || err != nil {
				return
			}
		}
	}
}

// Extract parses data and returns every page.
func Extract(data []byte) ([]*Page, error) {
	doc, err := pdfdoc.Open(data)
	if err != nil {
		return nil, err
	}
	pages := make([]*Page, 0, doc.NumPages())
	for p, err := range Pages(doc) {
		if err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}
	return pages, nil
}

// ExtractParallel is Extract with pages distributed over up to workers
// goroutines. Each worker parses its own copy of the cross-reference data so
// readers are never shared.
func ExtractParallel(ctx context.Context, data []byte, workers int) ([]*Page, error) {
	doc, err := pdfdoc.Open(data)
	if err != nil {
		return nil, err
	}
	n := doc.NumPages()
	if workers < 2 || n < 2 {
		return Extract(data)
	}
	if workers > n {
		workers = n
	}

	pages := make([]*Page, n)
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			local := doc
			if w > 0 {
				var err error
				if local, err = pdfdoc.Open(data); err != nil {
					return err
				}
			}
			for i := w; i < n; i += workers {
				if err := ctx.Err(); err != nil {
					return err
				}
				p, err := ExtractPage(local, i+1)
				if err != nil {
					return err
				}
				pages[i] = p
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pages, nil
}
