// Package pdfdoc wraps the low-level PDF reader with the few helpers the rest
// of the module needs: page geometry, object references, safe stream access
// and a serializer that writes resolved values back out with their indirect
// references intact.
//
// The underlying reader panics on many malformed inputs; every exported entry
// point recovers those panics and reports ErrMalformed instead.
package pdfdoc

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	pdf "github.com/digitorus/pdf"
)

// ErrMalformed is returned when the input cannot be parsed as a PDF.
var ErrMalformed = errors.New("malformed pdf")

// ErrEncrypted is returned by operations that would need to rewrite objects
// of an encrypted document.
var ErrEncrypted = errors.New("encrypted pdf")

// XrefKind tells how the newest cross-reference section of a file is stored.
type XrefKind int

const (
	XrefTable XrefKind = iota
	XrefStream
)

// Ref identifies an indirect object.
type Ref struct {
	ID  uint32
	Gen uint16
}

// IsZero reports whether r is the zero reference (direct object).
func (r Ref) IsZero() bool { return r.ID == 0 }

func (r Ref) String() string {
	return fmt.Sprintf("%d %d R", r.ID, r.Gen)
}

// RefOf returns the indirect object that holds v. For values stored directly
// inside a container this is the container's reference.
func RefOf(v pdf.Value) Ref {
	p := v.GetPtr()
	return Ref{ID: p.GetID(), Gen: p.GetGen()}
}

// Document is an opened, read-only PDF.
type Document struct {
	data      []byte
	r         *pdf.Reader
	numPages  int
	startXref int64
	xrefKind  XrefKind
}

// Open parses data. The slice is retained and must not be modified.
func Open(data []byte) (doc *Document, err error) {
	defer Recover(&err)

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if r.Trailer().Key("Root").Kind() != pdf.Dict {
		return nil, fmt.Errorf("%w: missing document catalog", ErrMalformed)
	}

	startXref, err := findStartXref(data)
	if err != nil {
		return nil, err
	}

	doc = &Document{
		data:      data,
		r:         r,
		numPages:  r.NumPage(),
		startXref: startXref,
		xrefKind:  detectXrefKind(data, startXref),
	}
	return doc, nil
}

// Recover converts a panic raised by the reader into ErrMalformed. It must be
// deferred directly.
func Recover(err *error) {
	if p := recover(); p != nil {
		*err = fmt.Errorf("%w: %v", ErrMalformed, p)
	}
}

// Bytes returns the original file contents.
func (d *Document) Bytes() []byte { return d.data }

// NumPages returns the number of pages in the page tree.
func (d *Document) NumPages() int { return d.numPages }

// Trailer returns the newest trailer dictionary.
func (d *Document) Trailer() pdf.Value { return d.r.Trailer() }

// Root returns the reference of the document catalog.
func (d *Document) Root() Ref { return RefOf(d.r.Trailer().Key("Root")) }

// Info returns the reference of the document information dictionary, if any.
func (d *Document) Info() (Ref, bool) {
	info := d.r.Trailer().Key("Info")
	if info.Kind() != pdf.Dict {
		return Ref{}, false
	}
	ref := RefOf(info)
	if ref == RefOf(d.r.Trailer()) {
		// direct info dictionaries are not allowed by the format
		return Ref{}, false
	}
	return ref, true
}

// Size returns the /Size entry of the newest trailer.
func (d *Document) Size() int64 { return d.r.Trailer().Key("Size").Int64() }

// StartXref returns the byte offset of the newest cross-reference section.
func (d *Document) StartXref() int64 { return d.startXref }

// XrefKind returns the kind of the newest cross-reference section.
func (d *Document) XrefKind() XrefKind { return d.xrefKind }

// Encrypted reports whether the trailer carries an /Encrypt entry.
func (d *Document) Encrypted() bool {
	return !d.r.Trailer().Key("Encrypt").IsNull()
}

// Page returns the 1-based page n.
func (d *Document) Page(n int) (p *Page, err error) {
	defer Recover(&err)

	if n < 1 || n > d.numPages {
		return nil, fmt.Errorf("page %d of %d: %w", n, d.numPages, ErrNoPage)
	}
	pp := d.r.Page(n)
	if pp.V.Kind() != pdf.Dict {
		return nil, fmt.Errorf("%w: page %d is not a dictionary", ErrMalformed, n)
	}
	return newPage(n, pp), nil
}

func findStartXref(data []byte) (int64, error) {
	i := bytes.LastIndex(data, []byte("startxref"))
	if i < 0 {
		return 0, fmt.Errorf("%w: missing startxref", ErrMalformed)
	}
	rest := bytes.TrimLeft(data[i+len("startxref"):], " \t\r\n")
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	off, err := strconv.ParseInt(string(rest[:end]), 10, 64)
	if err != nil || off < 0 || off >= int64(len(data)) {
		return 0, fmt.Errorf("%w: bad startxref offset", ErrMalformed)
	}
	return off, nil
}

func detectXrefKind(data []byte, off int64) XrefKind {
	rest := bytes.TrimLeft(data[off:], " \t\r\n")
	if bytes.HasPrefix(rest, []byte("xref")) {
		return XrefTable
	}
	return XrefStream
}
