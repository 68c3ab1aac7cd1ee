// Package watermark stamps a repeating, rotated, translucent identification
// grid over documents and images served to viewers who do not own them.
//
// Output depends only on the input bytes, the Spec and the Options.
package watermark

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"math"

	"golang.org/x/text/unicode/norm"
)

var (
	ErrEmptyLine1        = errors.New("watermark line1 is required")
	ErrUnsupportedFormat = errors.New("unsupported format")
)

// Spec is the text of one stamp.
type Spec struct {
	Line1 string
	// Line2 is optional and drawn beneath Line1.
	Line2 string
}

// Options tune the grid.
type Options struct {
	// Angle of the grid in degrees, counter-clockwise as seen by a reader.
	Angle float64
	// Opacity of the stamps, 0..1.
	Opacity float64
	// FontSize in points for PDFs, in pixels for images.
	FontSize float64
	// SpacingX and SpacingY separate stamp origins, in font-size units of
	// the unrotated grid.
	SpacingX float64
	SpacingY float64
	// JPEGQuality is used when re-encoding JPEG input.
	JPEGQuality int
}

// DefaultOptions returns the standard diagonal grid.
func DefaultOptions() Options {
	return Options{
		Angle:       -35,
		Opacity:     0.12,
		FontSize:    14,
		SpacingX:    16,
		SpacingY:    8,
		JPEGQuality: 90,
	}
}

// Format of a stamped input.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatGIF  Format = "gif"
	FormatWebP Format = "webp"
)

// ContentType returns the MIME type of stamped output for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatPDF:
		return "application/pdf"
	case FormatJPEG:
		return "image/jpeg"
	}
	return "image/png"
}

// DetectFormat sniffs the format of data.
func DetectFormat(data []byte) (Format, error) {
	if bytes.HasPrefix(data, []byte("%PDF-")) {
		return FormatPDF, nil
	}
	_, name, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	switch Format(name) {
	case FormatPNG, FormatJPEG, FormatGIF, FormatWebP:
		return Format(name), nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
}

// Stamper applies watermarks.
type Stamper struct {
	opts Options
}

// New returns a stamper. Non-positive opacity, font size, spacing and
// quality take their default values; the angle is used as given.
func New(opts Options) *Stamper {
	d := DefaultOptions()
	if opts.Opacity <= 0 || opts.Opacity > 1 {
		opts.Opacity = d.Opacity
	}
	if opts.FontSize <= 0 {
		opts.FontSize = d.FontSize
	}
	if opts.SpacingX <= 0 {
		opts.SpacingX = d.SpacingX
	}
	if opts.SpacingY <= 0 {
		opts.SpacingY = d.SpacingY
	}
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = d.JPEGQuality
	}
	return &Stamper{opts: opts}
}

// Options returns the effective options.
func (s *Stamper) Options() Options { return s.opts }

// Stamp watermarks a PDF or a raster image and returns the new bytes with
// their format. PDFs stay PDFs; JPEG stays JPEG; other images become PNG.
func (s *Stamper) Stamp(data []byte, spec Spec) ([]byte, Format, error) {
	spec.Line1 = norm.NFC.String(spec.Line1)
	spec.Line2 = norm.NFC.String(spec.Line2)
	if spec.Line1 == "" {
		return nil, "", ErrEmptyLine1
	}

	f, err := DetectFormat(data)
	if err != nil {
		return nil, "", err
	}
	var out []byte
	if f == FormatPDF {
		out, err = s.stampPDF(data, spec)
	} else {
		out, err = s.stampImage(data, f, spec)
	}
	if err != nil {
		return nil, "", err
	}
	if f == FormatGIF || f == FormatWebP {
		f = FormatPNG
	}
	return out, f, nil
}

// grid yields stamp origins, in a y-up frame centred on a w x h canvas,
// covering a square at least twice the canvas diagonal after rotation by
// angle degrees.
func grid(w, h, angle, stepX, stepY float64, fn func(x, y float64)) {
	half := math.Hypot(w, h)
	rad := angle * math.Pi / 180
	sin, cos := math.Sincos(rad)
	cx, cy := w/2, h/2

	cols := int(math.Ceil(2 * half / stepX))
	rows := int(math.Ceil(2 * half / stepY))
	for j := 0; j <= rows; j++ {
		gy := -half + float64(j)*stepY
		// Alternate rows are shifted by half a step.
		shift := 0.0
		if j%2 == 1 {
			shift = stepX / 2
		}
		for i := 0; i <= cols; i++ {
			gx := -half + float64(i)*stepX + shift
			fn(cx+gx*cos-gy*sin, cy+gx*sin+gy*cos)
		}
	}
}
