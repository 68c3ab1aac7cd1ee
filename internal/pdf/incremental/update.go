// Package incremental appends revisions to existing PDF files.
//
// An Update collects new and replaced objects and serializes them after the
// original bytes together with a cross-reference section of the same kind as
// the newest one in the source file. The original bytes are never modified.
// Output is deterministic: objects are written in ascending object number.
package incremental

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/irportal/anchorsign/internal/pdf/pdfdoc"
)

type object struct {
	gen  uint16
	body []byte
}

// Update is a pending incremental revision of a document.
type Update struct {
	doc     *pdfdoc.Document
	next    uint32
	objects map[uint32]object
	// save is the shared "q" stream prepended to rewritten page contents.
	save pdfdoc.Ref
}

// New starts a revision of doc. Encrypted documents are rejected because
// their objects cannot be rewritten without the key.
func New(doc *pdfdoc.Document) (*Update, error) {
	if doc.Encrypted() {
		return nil, pdfdoc.ErrEncrypted
	}
	next := uint32(doc.Size())
	if next == 0 {
		next = 1
	}
	return &Update{doc: doc, next: next, objects: make(map[uint32]object)}, nil
}

// Document returns the document being revised.
func (u *Update) Document() *pdfdoc.Document { return u.doc }

// Alloc reserves a new object number.
func (u *Update) Alloc() pdfdoc.Ref {
	ref := pdfdoc.Ref{ID: u.next}
	u.next++
	return ref
}

// Set stores body, the serialized object without the obj/endobj wrapper,
// under ref. Setting an existing object replaces it in the new revision.
func (u *Update) Set(ref pdfdoc.Ref, body []byte) {
	u.objects[ref.ID] = object{gen: ref.Gen, body: body}
}

// Add stores body as a new object and returns its reference.
func (u *Update) Add(body []byte) pdfdoc.Ref {
	ref := u.Alloc()
	u.Set(ref, body)
	return ref
}

// AddStream stores a stream object. dict holds extra dictionary entries;
// /Length is added automatically.
func (u *Update) AddStream(dict string, data []byte) pdfdoc.Ref {
	return u.Add(Stream(dict, data))
}

// Len returns the number of objects in the revision.
func (u *Update) Len() int { return len(u.objects) }

// Stream returns a serialized stream object body.
func Stream(dict string, data []byte) []byte {
	var b bytes.Buffer
	b.WriteString("<<")
	if dict != "" {
		b.WriteString(dict)
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "/Length %d>>\nstream\n", len(data))
	b.Write(data)
	b.WriteString("\nendstream")
	return b.Bytes()
}

// Flate compresses data for use with /Filter /FlateDecode.
func Flate(data []byte) []byte {
	var b bytes.Buffer
	zw, _ := zlib.NewWriterLevel(&b, zlib.BestCompression)
	_, _ = zw.Write(data)
	_ = zw.Close()
	return b.Bytes()
}

// Bytes returns the original file followed by the new revision.
func (u *Update) Bytes() ([]byte, error) {
	base := u.doc.Bytes()

	var out bytes.Buffer
	out.Grow(len(base) + 4096)
	out.Write(base)
	if len(base) > 0 && base[len(base)-1] != '\n' && base[len(base)-1] != '\r' {
		out.WriteByte('\n')
	}

	size := u.next
	xrefRef := pdfdoc.Ref{ID: u.next}
	if u.doc.XrefKind() == pdfdoc.XrefStream {
		size++
	}

	ids := make([]uint32, 0, len(u.objects))
	for id := range u.objects {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	entries := make([]entry, 0, len(ids)+1)
	for _, id := range ids {
		obj := u.objects[id]
		entries = append(entries, entry{id: id, gen: obj.gen, offset: int64(out.Len())})
		fmt.Fprintf(&out, "%d %d obj\n", id, obj.gen)
		out.Write(obj.body)
		out.WriteString("\nendobj\n")
	}

	trailer, err := u.trailerEntries(size)
	if err != nil {
		return nil, err
	}

	if u.doc.XrefKind() == pdfdoc.XrefStream {
		u.writeXrefStream(&out, xrefRef, entries, trailer)
	} else {
		u.writeXrefTable(&out, entries, trailer)
	}
	return out.Bytes(), nil
}

type entry struct {
	id     uint32
	gen    uint16
	offset int64
}

// subsections groups sorted entries into runs of consecutive object numbers.
func subsections(entries []entry) [][]entry {
	var out [][]entry
	for i := 0; i < len(entries); {
		j := i + 1
		for j < len(entries) && entries[j].id == entries[j-1].id+1 {
			j++
		}
		out = append(out, entries[i:j])
		i = j
	}
	return out
}

func (u *Update) trailerEntries(size uint32) (string, error) {
	var b bytes.Buffer
	fmt.Fprintf(&b, "/Size %d /Root %s", size, u.doc.Root())
	if info, ok := u.doc.Info(); ok {
		fmt.Fprintf(&b, " /Info %s", info)
	}
	tr := u.doc.Trailer()
	if id := tr.Key("ID"); !id.IsNull() {
		b.WriteString(" /ID ")
		if err := pdfdoc.WriteValue(&b, id, pdfdoc.RefOf(tr)); err != nil {
			return "", err
		}
	}
	fmt.Fprintf(&b, " /Prev %d", u.doc.StartXref())
	return b.String(), nil
}

func (u *Update) writeXrefTable(out *bytes.Buffer, entries []entry, trailer string) {
	start := out.Len()
	out.WriteString("xref\n")
	for _, sub := range subsections(entries) {
		fmt.Fprintf(out, "%d %d\n", sub[0].id, len(sub))
		for _, e := range sub {
			fmt.Fprintf(out, "%010d %05d n \n", e.offset, e.gen)
		}
	}
	fmt.Fprintf(out, "trailer\n<<%s>>\nstartxref\n%d\n%%%%EOF\n", trailer, start)
}

func (u *Update) writeXrefStream(out *bytes.Buffer, self pdfdoc.Ref, entries []entry, trailer string) {
	start := int64(out.Len())
	entries = append(entries, entry{id: self.ID, offset: start})

	width := 4
	if start > 0xffffffff {
		width = 8
	}

	var index bytes.Buffer
	var data bytes.Buffer
	for i, sub := range subsections(entries) {
		if i > 0 {
			index.WriteByte(' ')
		}
		fmt.Fprintf(&index, "%d %d", sub[0].id, len(sub))
		for _, e := range sub {
			data.WriteByte(1)
			if width == 8 {
				_ = binary.Write(&data, binary.BigEndian, uint64(e.offset))
			} else {
				_ = binary.Write(&data, binary.BigEndian, uint32(e.offset))
			}
			_ = binary.Write(&data, binary.BigEndian, e.gen)
		}
	}

	dict := fmt.Sprintf("/Type /XRef %s /W [1 %d 2] /Index [%s]", trailer, width, index.String())
	fmt.Fprintf(out, "%d 0 obj\n", self.ID)
	out.Write(Stream(dict, data.Bytes()))
	fmt.Fprintf(out, "\nendobj\nstartxref\n%d\n%%%%EOF\n", start)
}
