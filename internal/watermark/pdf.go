package watermark

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"github.com/irportal/anchorsign/internal/pdf/incremental"
	"github.com/irportal/anchorsign/internal/pdf/pdfdoc"
)

const (
	stampFont  = "<</Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding>>"
	lineHeight = 1.25
)

func (s *Stamper) stampPDF(data []byte, spec Spec) ([]byte, error) {
	doc, err := pdfdoc.Open(data)
	if err != nil {
		return nil, err
	}
	u, err := incremental.New(doc)
	if err != nil {
		return nil, err
	}

	line1, err := winAnsi(spec.Line1)
	if err != nil {
		return nil, err
	}
	line2, err := winAnsi(spec.Line2)
	if err != nil {
		return nil, err
	}

	fontRef := u.Add([]byte(stampFont))
	gsRef := u.Add([]byte(fmt.Sprintf("<</Type /ExtGState /CA %s /ca %s>>",
		pdfdoc.Number(s.opts.Opacity), pdfdoc.Number(s.opts.Opacity))))

	for n := 1; n <= doc.NumPages(); n++ {
		page, err := doc.Page(n)
		if err != nil {
			return nil, err
		}
		fontName := incremental.UniqueName(page.Resources(), "Font", "WmF")
		gsName := incremental.UniqueName(page.Resources(), "ExtGState", "WmGS")
		res := incremental.Resources{
			"Font":      {fontName: fontRef},
			"ExtGState": {gsName: gsRef},
		}
		ops := s.pageOps(page.Geometry, fontName, gsName, line1, line2)
		if err := u.Overlay(page, res, ops); err != nil {
			return nil, err
		}
	}
	return u.Bytes()
}

// pageOps draws the grid in the displayed page frame, mapped to user space
// with a single cm so stamps read at the same angle on rotated pages.
func (s *Stamper) pageOps(g pdfdoc.Geometry, fontName, gsName string, line1, line2 []byte) []byte {
	w, h := g.DisplaySize()
	ex, ey := g.DisplayAxes()
	ox, oy := g.FromDisplay(0, 0)
	fs := s.opts.FontSize

	var b strings.Builder
	b.WriteString("q\n")
	writeNums(&b, ex.X, ex.Y, ey.X, ey.Y, ox, oy)
	b.WriteString("cm\n")
	fmt.Fprintf(&b, "%s gs\n0.5 g\nBT\n%s %s Tf\n", pdfdoc.Name(gsName), pdfdoc.Name(fontName), pdfdoc.Number(fs))

	rad := s.opts.Angle * math.Pi / 180
	sin, cos := math.Sincos(rad)
	lit1 := pdfdoc.LiteralString(line1)
	lit2 := pdfdoc.LiteralString(line2)

	grid(w, h, s.opts.Angle, s.opts.SpacingX*fs, s.opts.SpacingY*fs, func(x, y float64) {
		writeNums(&b, cos, sin, -sin, cos, x, y)
		b.WriteString("Tm ")
		b.WriteString(lit1)
		b.WriteString(" Tj\n")
		if len(line2) > 0 {
			// One line down in the rotated frame.
			d := lineHeight * fs
			writeNums(&b, cos, sin, -sin, cos, x+d*sin, y-d*cos)
			b.WriteString("Tm ")
			b.WriteString(lit2)
			b.WriteString(" Tj\n")
		}
	})
	b.WriteString("ET\nQ\n")
	return []byte(b.String())
}

func writeNums(b *strings.Builder, vs ...float64) {
	for _, v := range vs {
		b.WriteString(pdfdoc.Number(v))
		b.WriteByte(' ')
	}
}

// winAnsi encodes s for a WinAnsiEncoding simple font. Characters outside
// the code page become the substitute byte.
func winAnsi(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	enc := encoding.ReplaceUnsupported(charmap.Windows1252.NewEncoder())
	out, err := enc.Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("encode watermark text: %w", err)
	}
	return out, nil
}
