package pdfdoc

import (
	"errors"
	"fmt"
	"io"
	"math"

	pdf "github.com/digitorus/pdf"
)

// ErrNoPage is returned for page numbers outside the page tree.
var ErrNoPage = errors.New("no such page")

// letter is used when neither the page nor its ancestors define a MediaBox.
var letter = Rect{LLX: 0, LLY: 0, URX: 612, URY: 792}

// Rect is an axis-aligned rectangle in default user space.
type Rect struct {
	LLX, LLY, URX, URY float64
}

func (r Rect) Width() float64  { return r.URX - r.LLX }
func (r Rect) Height() float64 { return r.URY - r.LLY }

// Vec is a 2D vector in user space.
type Vec struct {
	X, Y float64
}

// Geometry is the visible frame of a page.
type Geometry struct {
	MediaBox Rect
	// Rotate is normalized to 0, 90, 180 or 270.
	Rotate int
}

// Page is a single page with its inherited geometry resolved.
type Page struct {
	Geometry
	Number int
	Ref    Ref
	V      pdf.Value

	page pdf.Page
}

func newPage(n int, pp pdf.Page) *Page {
	p := &Page{
		Geometry: Geometry{MediaBox: letter},
		Number:   n,
		Ref:      RefOf(pp.V),
		V:        pp.V,
		page:     pp,
	}

	if mb := inherited(pp.V, "MediaBox"); mb.Kind() == pdf.Array && mb.Len() == 4 {
		x0, y0 := number(mb.Index(0)), number(mb.Index(1))
		x1, y1 := number(mb.Index(2)), number(mb.Index(3))
		r := Rect{LLX: math.Min(x0, x1), LLY: math.Min(y0, y1), URX: math.Max(x0, x1), URY: math.Max(y0, y1)}
		if r.Width() > 0 && r.Height() > 0 {
			p.MediaBox = r
		}
	}

	rot := int(inherited(pp.V, "Rotate").Int64()) % 360
	if rot < 0 {
		rot += 360
	}
	p.Rotate = rot - rot%90
	return p
}

func inherited(v pdf.Value, key string) pdf.Value {
	for depth := 0; depth < 64 && v.Kind() == pdf.Dict; depth++ {
		if r := v.Key(key); !r.IsNull() {
			return r
		}
		v = v.Key("Parent")
	}
	return pdf.Value{}
}

func number(v pdf.Value) float64 {
	switch v.Kind() {
	case pdf.Integer:
		return float64(v.Int64())
	case pdf.Real:
		return v.Float64()
	}
	return 0
}

// Resources returns the page resource dictionary, following inheritance.
func (p *Page) Resources() pdf.Value { return p.page.Resources() }

// Font returns the font resource registered under name.
func (p *Page) Font(name string) pdf.Font { return p.page.Font(name) }

// Contents returns the page content streams in drawing order.
func (p *Page) Contents() []pdf.Value {
	c := p.V.Key("Contents")
	switch c.Kind() {
	case pdf.Stream:
		return []pdf.Value{c}
	case pdf.Array:
		out := make([]pdf.Value, 0, c.Len())
		for i := 0; i < c.Len(); i++ {
			if s := c.Index(i); s.Kind() == pdf.Stream {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// ContentBytes returns the decoded page content, streams joined by newlines.
func (p *Page) ContentBytes() (data []byte, err error) {
	defer Recover(&err)

	for i, s := range p.Contents() {
		b, err := StreamData(s)
		if err != nil {
			return nil, err
		}
		if i > 0 {
			data = append(data, '\n')
		}
		data = append(data, b...)
	}
	return data, nil
}

// StreamData returns the decoded data of a stream value.
func StreamData(v pdf.Value) (data []byte, err error) {
	defer Recover(&err)

	if v.Kind() != pdf.Stream {
		return nil, fmt.Errorf("%w: not a stream", ErrMalformed)
	}
	rc := v.Reader()
	defer rc.Close()
	data, err = io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return data, nil
}

// DisplaySize returns the page size as shown to a reader, after rotation.
func (g Geometry) DisplaySize() (w, h float64) {
	if g.Rotate == 90 || g.Rotate == 270 {
		return g.MediaBox.Height(), g.MediaBox.Width()
	}
	return g.MediaBox.Width(), g.MediaBox.Height()
}

// ToDisplay maps a point in default user space to the displayed page frame:
// origin at the visible bottom-left corner, y growing upwards.
func (g Geometry) ToDisplay(x, y float64) (dx, dy float64) {
	u, v := x-g.MediaBox.LLX, y-g.MediaBox.LLY
	w, h := g.MediaBox.Width(), g.MediaBox.Height()
	switch g.Rotate {
	case 90:
		return v, w - u
	case 180:
		return w - u, h - v
	case 270:
		return h - v, u
	}
	return u, v
}

// FromDisplay is the inverse of ToDisplay.
func (g Geometry) FromDisplay(dx, dy float64) (x, y float64) {
	w, h := g.MediaBox.Width(), g.MediaBox.Height()
	var u, v float64
	switch g.Rotate {
	case 90:
		u, v = w-dy, dx
	case 180:
		u, v = w-dx, h-dy
	case 270:
		u, v = dy, h-dx
	default:
		u, v = dx, dy
	}
	return u + g.MediaBox.LLX, v + g.MediaBox.LLY
}

// DisplayAxes returns the user-space directions of the displayed x and y axes.
// Content drawn with these as its basis appears upright to the reader.
func (g Geometry) DisplayAxes() (ex, ey Vec) {
	switch g.Rotate {
	case 90:
		return Vec{0, 1}, Vec{-1, 0}
	case 180:
		return Vec{-1, 0}, Vec{0, -1}
	case 270:
		return Vec{0, -1}, Vec{1, 0}
	}
	return Vec{1, 0}, Vec{0, 1}
}
