// Package pdftest builds small, valid PDF files for tests.
//
// Every page gets the font resource /F1: Helvetica, WinAnsiEncoding, with a
// constant advance of GlyphWidth thousandths of an em for codes 32..126.
package pdftest

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"strings"
)

// GlyphWidth is the advance of every printable glyph of /F1, in 1/1000 em.
const GlyphWidth = 500

// Page describes one page of a generated document.
type Page struct {
	// Width and Height of the MediaBox. Zero means US Letter.
	Width, Height float64
	// OriginX and OriginY shift the MediaBox lower-left corner.
	OriginX, OriginY float64
	Rotate           int
	// Content is the raw content stream.
	Content string
	// Parts, when set, is written as a /Contents array instead of Content.
	Parts []string
}

// Options control document-level layout.
type Options struct {
	// XrefStream writes a cross-reference stream instead of a classic table.
	XrefStream bool
	// Compress stores content streams with FlateDecode.
	Compress bool
	// InheritResources puts the font resources on the page tree root.
	InheritResources bool
	// NoFonts omits font resources entirely.
	NoFonts bool
}

// Text returns content operators drawing s with /F1 at (x, y).
func Text(x, y, size float64, s string) string {
	s = strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`).Replace(s)
	return fmt.Sprintf("BT /F1 %g Tf %g %g Td (%s) Tj ET\n", size, x, y, s)
}

// TextWidth returns the advance of s drawn with /F1 at size.
func TextWidth(s string, size float64) float64 {
	return float64(len(s)) * GlyphWidth / 1000 * size
}

// Build returns a document with the given pages using default options.
func Build(pages ...Page) []byte {
	return BuildWith(Options{}, pages...)
}

// BuildWith returns a document with the given pages.
func BuildWith(opts Options, pages ...Page) []byte {
	w := &writer{}
	w.buf.WriteString("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")

	const (
		catalogID = 1
		pagesID   = 2
		fontID    = 3
		infoID    = 4
	)
	next := 5

	type placed struct {
		id       int
		contents []int
	}
	layout := make([]placed, len(pages))
	for i, p := range pages {
		layout[i].id = next
		next++
		n := 1
		if len(p.Parts) > 0 {
			n = len(p.Parts)
		}
		for j := 0; j < n; j++ {
			layout[i].contents = append(layout[i].contents, next)
			next++
		}
	}

	fontRes := fmt.Sprintf("/Resources << /Font << /F1 %d 0 R >> >>", fontID)
	if opts.NoFonts {
		fontRes = "/Resources << >>"
	}

	w.object(catalogID, fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R >>", pagesID))

	kids := make([]string, len(layout))
	for i, l := range layout {
		kids[i] = fmt.Sprintf("%d 0 R", l.id)
	}
	pagesDict := fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d", strings.Join(kids, " "), len(pages))
	if opts.InheritResources {
		pagesDict += " " + fontRes
	}
	w.object(pagesID, pagesDict+" >>")

	widths := make([]string, 126-32+1)
	for i := range widths {
		widths[i] = fmt.Sprint(GlyphWidth)
	}
	w.object(fontID, fmt.Sprintf("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding /FirstChar 32 /LastChar 126 /Widths [%s] >>", strings.Join(widths, " ")))
	w.object(infoID, "<< /Producer (pdftest) >>")

	for i, p := range pages {
		width, height := p.Width, p.Height
		if width == 0 || height == 0 {
			width, height = 612, 792
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "<< /Type /Page /Parent %d 0 R /MediaBox [%g %g %g %g]",
			pagesID, p.OriginX, p.OriginY, p.OriginX+width, p.OriginY+height)
		if p.Rotate != 0 {
			fmt.Fprintf(&sb, " /Rotate %d", p.Rotate)
		}
		if !opts.InheritResources {
			sb.WriteString(" " + fontRes)
		}
		if len(layout[i].contents) == 1 {
			fmt.Fprintf(&sb, " /Contents %d 0 R", layout[i].contents[0])
		} else {
			refs := make([]string, len(layout[i].contents))
			for j, id := range layout[i].contents {
				refs[j] = fmt.Sprintf("%d 0 R", id)
			}
			fmt.Fprintf(&sb, " /Contents [%s]", strings.Join(refs, " "))
		}
		sb.WriteString(" >>")
		w.object(layout[i].id, sb.String())

		parts := p.Parts
		if len(parts) == 0 {
			parts = []string{p.Content}
		}
		for j, part := range parts {
			w.stream(layout[i].contents[j], []byte(part), opts.Compress)
		}
	}

	if opts.XrefStream {
		w.xrefStream(next, catalogID, infoID)
	} else {
		w.xrefTable(next, catalogID, infoID)
	}
	return w.buf.Bytes()
}

type writer struct {
	buf     bytes.Buffer
	offsets map[int]int
}

func (w *writer) object(id int, body string) {
	if w.offsets == nil {
		w.offsets = make(map[int]int)
	}
	w.offsets[id] = w.buf.Len()
	fmt.Fprintf(&w.buf, "%d 0 obj\n%s\nendobj\n", id, body)
}

func (w *writer) stream(id int, data []byte, compress bool) {
	filter := ""
	if compress {
		var zb bytes.Buffer
		zw := zlib.NewWriter(&zb)
		_, _ = zw.Write(data)
		_ = zw.Close()
		data = zb.Bytes()
		filter = " /Filter /FlateDecode"
	}
	w.object(id, fmt.Sprintf("<< /Length %d%s >>\nstream\n%s\nendstream", len(data), filter, data))
}

const trailerID = "/ID [<00112233445566778899aabbccddeeff> <00112233445566778899aabbccddeeff>]"

func (w *writer) xrefTable(size, root, info int) {
	start := w.buf.Len()
	fmt.Fprintf(&w.buf, "xref\n0 %d\n0000000000 65535 f \n", size)
	for id := 1; id < size; id++ {
		fmt.Fprintf(&w.buf, "%010d 00000 n \n", w.offsets[id])
	}
	fmt.Fprintf(&w.buf, "trailer\n<< /Size %d /Root %d 0 R /Info %d 0 R %s >>\nstartxref\n%d\n%%%%EOF\n",
		size, root, info, trailerID, start)
}

func (w *writer) xrefStream(id, root, info int) {
	start := w.buf.Len()
	w.offsets[id] = start

	var data bytes.Buffer
	row := func(typ byte, off uint32, gen uint16) {
		data.WriteByte(typ)
		_ = binary.Write(&data, binary.BigEndian, off)
		_ = binary.Write(&data, binary.BigEndian, gen)
	}
	row(0, 0, 0xffff)
	for i := 1; i <= id; i++ {
		row(1, uint32(w.offsets[i]), 0)
	}

	fmt.Fprintf(&w.buf, "%d 0 obj\n<< /Type /XRef /Size %d /W [1 4 2] /Root %d 0 R /Info %d 0 R %s /Length %d >>\nstream\n",
		id, id+1, root, info, trailerID, data.Len())
	w.buf.Write(data.Bytes())
	fmt.Fprintf(&w.buf, "\nendstream\nendobj\nstartxref\n%d\n%%%%EOF\n", start)
}
