package watermark

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/f64"
	"golang.org/x/image/math/fixed"
	_ "golang.org/x/image/webp"
)

var stampColor = color.RGBA{R: 64, G: 64, B: 64, A: 255}

func (s *Stamper) stampImage(data []byte, f Format, spec Spec) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	b := src.Bounds()

	dst := image.NewRGBA(b)
	draw.Draw(dst, b, src, b.Min, draw.Src)
	draw.DrawMask(dst, b, image.NewUniform(stampColor), image.Point{}, s.mask(b, spec), b.Min, draw.Over)

	var out bytes.Buffer
	if f == FormatJPEG {
		err = jpeg.Encode(&out, dst, &jpeg.Options{Quality: s.opts.JPEGQuality})
	} else {
		err = png.Encode(&out, dst)
	}
	if err != nil {
		return nil, fmt.Errorf("encode watermarked image: %w", err)
	}
	return out.Bytes(), nil
}

// mask renders the rotated grid of stamps as an alpha mask over bounds.
func (s *Stamper) mask(bounds image.Rectangle, spec Spec) *image.Alpha {
	tile := s.tile(spec)
	m := image.NewAlpha(bounds)

	face := basicfont.Face7x13
	scale := s.opts.FontSize / float64(face.Height)
	// Image rows grow downwards, so the reader-facing angle flips sign.
	rad := -s.opts.Angle * math.Pi / 180
	sin, cos := math.Sincos(rad)

	w, h := float64(bounds.Dx()), float64(bounds.Dy())
	fs := s.opts.FontSize
	grid(w, h, -s.opts.Angle, s.opts.SpacingX*fs, s.opts.SpacingY*fs, func(x, y float64) {
		aff := f64.Aff3{
			scale * cos, -scale * sin, float64(bounds.Min.X) + x,
			scale * sin, scale * cos, float64(bounds.Min.Y) + y,
		}
		draw.ApproxBiLinear.Transform(m, aff, tile, tile.Bounds(), draw.Over, nil)
	})
	return m
}

// tile draws the stamp text once, at the face's native size, with the
// configured opacity as its alpha.
func (s *Stamper) tile(spec Spec) *image.Alpha {
	face := basicfont.Face7x13
	d := &font.Drawer{Face: face}

	lines := []string{spec.Line1}
	if spec.Line2 != "" {
		lines = append(lines, spec.Line2)
	}
	width := 0
	for _, l := range lines {
		if n := d.MeasureString(l).Ceil(); n > width {
			width = n
		}
	}
	lh := int(math.Ceil(float64(face.Height) * lineHeight))
	tile := image.NewAlpha(image.Rect(0, 0, width+2, lh*len(lines)+2))

	d.Dst = tile
	d.Src = image.NewUniform(color.Alpha{A: uint8(math.Round(255 * s.opts.Opacity))})
	for i, l := range lines {
		d.Dot = fixed.P(1, 1+face.Ascent+i*lh)
		d.DrawString(l)
	}
	return tile
}
