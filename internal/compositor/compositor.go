// Package compositor burns signature images into PDF pages at anchor
// positions. Documents are extended with an incremental update, so every
// byte of the input stays in place and other pages are untouched.
package compositor

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/irportal/anchorsign/internal/anchors"
	"github.com/irportal/anchorsign/internal/pdf/incremental"
	"github.com/irportal/anchorsign/internal/pdf/pdfdoc"
)

const (
	DefaultMaxWidth  = 180
	DefaultMaxHeight = 60
	// DefaultMaxPixels caps the declared size of a signature image.
	DefaultMaxPixels = 4096 * 4096
	// pixelsPerPoint is the resolution signatures are embedded at, about
	// 216 dpi. Larger images are downsampled to it.
	pixelsPerPoint = 3
)

var ErrPageOutOfRange = errors.New("page out of range")

// PageOutOfRangeError reports an anchor page beyond the document.
type PageOutOfRangeError struct {
	Page      int
	PageCount int
}

func (e *PageOutOfRangeError) Error() string {
	return fmt.Sprintf("page %d out of range (document has %d pages)", e.Page, e.PageCount)
}

func (e *PageOutOfRangeError) Is(target error) bool { return target == ErrPageOutOfRange }

// Options bound the placed signature, in points, and the pixel count of
// accepted signature images.
type Options struct {
	MaxWidth  float64
	MaxHeight float64
	MaxPixels int
}

// Compositor places signature images.
type Compositor struct {
	opts Options
}

// New returns a compositor. Zero options take the defaults.
func New(opts Options) *Compositor {
	if opts.MaxWidth <= 0 {
		opts.MaxWidth = DefaultMaxWidth
	}
	if opts.MaxHeight <= 0 {
		opts.MaxHeight = DefaultMaxHeight
	}
	if opts.MaxPixels <= 0 {
		opts.MaxPixels = DefaultMaxPixels
	}
	return &Compositor{opts: opts}
}

// Placement is where a signature ends up on its page.
type Placement struct {
	// Width and Height in points, as seen by a reader.
	Width, Height float64
	// Matrix maps the image unit square into user space.
	Matrix [6]float64
	// Clip is the user-space bounding rectangle of the image.
	Clip pdfdoc.Rect
}

// Fit scales a w x h pixel image into the configured box preserving aspect
// ratio.
func (c *Compositor) Fit(w, h int) (float64, float64) {
	s := math.Min(c.opts.MaxWidth/float64(w), c.opts.MaxHeight/float64(h))
	return float64(w) * s, float64(h) * s
}

// Place computes the placement of a w x h image whose bottom-left corner, as
// seen by a reader, sits on the anchor point.
func (c *Compositor) Place(g pdfdoc.Geometry, a anchors.Anchor, w, h int) Placement {
	pw, ph := c.Fit(w, h)
	ex, ey := g.DisplayAxes()
	m := [6]float64{pw * ex.X, pw * ex.Y, ph * ey.X, ph * ey.Y, a.RawX, a.RawY}

	xs := []float64{m[4], m[4] + m[0], m[4] + m[2], m[4] + m[0] + m[2]}
	ys := []float64{m[5], m[5] + m[1], m[5] + m[3], m[5] + m[1] + m[3]}
	return Placement{
		Width:  pw,
		Height: ph,
		Matrix: m,
		Clip: pdfdoc.Rect{
			LLX: minOf(xs), LLY: minOf(ys),
			URX: maxOf(xs), URY: maxOf(ys),
		},
	}
}

// Apply draws sig onto the anchor's page and returns the new document.
func (c *Compositor) Apply(document []byte, a anchors.Anchor, sig []byte) ([]byte, error) {
	img, _, err := DecodeImage(sig, c.opts.MaxPixels)
	if err != nil {
		return nil, err
	}
	img = Downsample(img,
		int(math.Ceil(c.opts.MaxWidth*pixelsPerPoint)),
		int(math.Ceil(c.opts.MaxHeight*pixelsPerPoint)))

	doc, err := pdfdoc.Open(document)
	if err != nil {
		return nil, err
	}
	if a.Page < 1 || a.Page > doc.NumPages() {
		return nil, &PageOutOfRangeError{Page: a.Page, PageCount: doc.NumPages()}
	}
	page, err := doc.Page(a.Page)
	if err != nil {
		return nil, err
	}

	u, err := incremental.New(doc)
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	rgb, alpha := rasterize(img)
	imgDict := fmt.Sprintf("/Type /XObject /Subtype /Image /Width %d /Height %d /ColorSpace /DeviceRGB /BitsPerComponent 8 /Filter /FlateDecode", b.Dx(), b.Dy())
	if alpha != nil {
		mask := u.AddStream(
			fmt.Sprintf("/Type /XObject /Subtype /Image /Width %d /Height %d /ColorSpace /DeviceGray /BitsPerComponent 8 /Filter /FlateDecode", b.Dx(), b.Dy()),
			incremental.Flate(alpha),
		)
		imgDict += " /SMask " + mask.String()
	}
	xobj := u.AddStream(imgDict, incremental.Flate(rgb))

	name := incremental.UniqueName(page.Resources(), "XObject", "Sig")
	p := c.Place(page.Geometry, a, b.Dx(), b.Dy())

	res := incremental.Resources{"XObject": {name: xobj}}
	if err := u.Overlay(page, res, drawOps(p, name)); err != nil {
		return nil, err
	}
	return u.Bytes()
}

func drawOps(p Placement, name string) []byte {
	var b strings.Builder
	b.WriteString("q\n")
	fmt.Fprintf(&b, "%s %s %s %s re W n\n",
		pdfdoc.Number(p.Clip.LLX), pdfdoc.Number(p.Clip.LLY),
		pdfdoc.Number(p.Clip.Width()), pdfdoc.Number(p.Clip.Height()))
	for _, v := range p.Matrix {
		b.WriteString(pdfdoc.Number(v))
		b.WriteByte(' ')
	}
	b.WriteString("cm\n")
	fmt.Fprintf(&b, "%s Do\nQ\n", pdfdoc.Name(name))
	return []byte(b.String())
}

func minOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		m = math.Min(m, x)
	}
	return m
}

func maxOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		m = math.Max(m, x)
	}
	return m
}
