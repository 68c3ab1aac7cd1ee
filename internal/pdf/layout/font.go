package layout

import (
	pdf "github.com/digitorus/pdf"
)

// defaultWidth is used for glyphs without metrics, in 1/1000 em.
const defaultWidth = 500

// font holds the metrics needed to position glyphs.
type font struct {
	name    string
	enc     pdf.TextEncoding
	twoByte bool

	first   int
	widths  []float64
	cid     map[int]float64
	missing float64
}

func loadFont(v pdf.Value) *font {
	f := &font{
		name: v.Key("BaseFont").Name(),
		enc:  pdf.Font{V: v}.Encoder(),
	}

	if v.Key("Subtype").Name() == "Type0" {
		f.twoByte = true
		desc := v.Key("DescendantFonts").Index(0)
		f.missing = 1000
		if dw := desc.Key("DW"); !dw.IsNull() {
			f.missing = num(dw)
		}
		f.cid = parseCIDWidths(desc.Key("W"))
		return f
	}

	f.first = int(v.Key("FirstChar").Int64())
	w := v.Key("Widths")
	f.widths = make([]float64, w.Len())
	for i := range f.widths {
		f.widths[i] = num(w.Index(i))
	}
	f.missing = num(v.Key("FontDescriptor").Key("MissingWidth"))
	return f
}

// parseCIDWidths reads a /W array: "c [w1 w2 ...]" and "cfirst clast w" forms.
func parseCIDWidths(w pdf.Value) map[int]float64 {
	out := map[int]float64{}
	for i := 0; i < w.Len(); {
		c := int(w.Index(i).Int64())
		next := w.Index(i + 1)
		if next.Kind() == pdf.Array {
			for j := 0; j < next.Len(); j++ {
				out[c+j] = num(next.Index(j))
			}
			i += 2
			continue
		}
		if i+2 >= w.Len() {
			break
		}
		last := int(next.Int64())
		width := num(w.Index(i + 2))
		for code := c; code <= last && code-c < 0xffff; code++ {
			out[code] = width
		}
		i += 3
	}
	return out
}

// codes splits a shown string into character codes.
func (f *font) codes(raw string) []string {
	step := 1
	if f.twoByte {
		step = 2
	}
	out := make([]string, 0, len(raw)/step+1)
	for i := 0; i < len(raw); i += step {
		end := i + step
		if end > len(raw) {
			end = len(raw)
		}
		out = append(out, raw[i:end])
	}
	return out
}

func (f *font) code(c string) int {
	n := 0
	for i := 0; i < len(c); i++ {
		n = n<<8 | int(c[i])
	}
	return n
}

// width returns the glyph advance for code, in 1/1000 em.
func (f *font) width(code int) float64 {
	var w float64
	if f.twoByte {
		var ok bool
		if w, ok = f.cid[code]; !ok {
			w = f.missing
		}
	} else if i := code - f.first; i >= 0 && i < len(f.widths) {
		w = f.widths[i]
	} else {
		w = f.missing
	}
	if w <= 0 {
		return defaultWidth
	}
	return w
}

func (f *font) decode(c string) string {
	if f.enc == nil {
		return c
	}
	return f.enc.Decode(c)
}

func num(v pdf.Value) float64 {
	switch v.Kind() {
	case pdf.Integer:
		return float64(v.Int64())
	case pdf.Real:
		return v.Float64()
	}
	return 0
}
