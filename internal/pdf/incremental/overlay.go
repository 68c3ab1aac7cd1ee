package incremental

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"

	pdf "github.com/digitorus/pdf"

	"github.com/irportal/anchorsign/internal/pdf/pdfdoc"
)

// Resources lists objects to register in a page resource dictionary, by
// category (Font, XObject, ExtGState, ...) and resource name.
type Resources map[string]map[string]pdfdoc.Ref

// UniqueName returns the first prefix+N that is unused in the given category
// of a resource dictionary.
func UniqueName(resources pdf.Value, category, prefix string) string {
	cat := resources.Key(category)
	for i := 1; ; i++ {
		n := prefix + strconv.Itoa(i)
		if cat.Key(n).IsNull() {
			return n
		}
	}
}

// Overlay replaces page with a copy whose content draws ops on top of the
// existing content. The existing streams are kept and referenced as they are;
// the old content is wrapped in q/Q so its graphics state cannot leak into
// ops. res is merged into the page resources.
func (u *Update) Overlay(page *pdfdoc.Page, res Resources, ops []byte) (err error) {
	defer pdfdoc.Recover(&err)

	if _, ok := u.objects[page.Ref.ID]; ok {
		return fmt.Errorf("page %d already rewritten in this revision", page.Number)
	}

	if u.save.IsZero() {
		u.save = u.AddStream("", []byte("q\n"))
	}
	tail := u.AddStream("/Filter /FlateDecode", Flate(append([]byte("\nQ\n"), ops...)))

	var b bytes.Buffer
	b.WriteString("<<")
	if err := pdfdoc.WriteDictEntries(&b, page.V, page.Ref, "Contents", "Resources"); err != nil {
		return err
	}

	b.WriteString("/Contents [")
	b.WriteString(u.save.String())
	for _, c := range page.Contents() {
		b.WriteByte(' ')
		b.WriteString(pdfdoc.RefOf(c).String())
	}
	b.WriteByte(' ')
	b.WriteString(tail.String())
	b.WriteString("]\n/Resources ")

	if err := writeResources(&b, page.Resources(), res); err != nil {
		return err
	}
	b.WriteString(">>")

	u.Set(page.Ref, b.Bytes())
	return nil
}

func writeResources(b *bytes.Buffer, existing pdf.Value, add Resources) error {
	owner := pdfdoc.RefOf(existing)

	seen := map[string]bool{}
	var cats []string
	for _, k := range existing.Keys() {
		seen[k] = true
		cats = append(cats, k)
	}
	for k := range add {
		if !seen[k] {
			cats = append(cats, k)
		}
	}
	sort.Strings(cats)

	b.WriteString("<<")
	for _, cat := range cats {
		b.WriteString(pdfdoc.Name(cat))
		b.WriteByte(' ')

		cur := existing.Key(cat)
		extra, ok := add[cat]
		if !ok {
			if err := pdfdoc.WriteValue(b, cur, owner); err != nil {
				return err
			}
			b.WriteByte('\n')
			continue
		}

		names := make([]string, 0, len(extra))
		for n := range extra {
			names = append(names, n)
		}
		sort.Strings(names)

		b.WriteString("<<")
		if cur.Kind() == pdf.Dict {
			if err := pdfdoc.WriteDictEntries(b, cur, pdfdoc.RefOf(cur), names...); err != nil {
				return err
			}
		}
		for _, n := range names {
			fmt.Fprintf(b, "%s %s\n", pdfdoc.Name(n), extra[n])
		}
		b.WriteString(">>\n")
	}
	b.WriteString(">>")
	return nil
}
