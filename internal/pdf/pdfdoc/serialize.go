package pdfdoc

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strconv"

	pdf "github.com/digitorus/pdf"
)

const maxDepth = 128

// WriteValue writes v in PDF syntax. owner is the indirect object that
// contains v: nested values held by the same object are written inline, values
// reached through a different object are written as references.
func WriteValue(buf *bytes.Buffer, v pdf.Value, owner Ref) (err error) {
	defer Recover(&err)
	return writeValue(buf, v, owner, 0)
}

// WriteDictEntries writes the entries of dict v without the surrounding
// delimiters, skipping the listed keys. Keys are sorted.
func WriteDictEntries(buf *bytes.Buffer, v pdf.Value, owner Ref, skip ...string) (err error) {
	defer Recover(&err)

	for _, k := range sortedKeys(v) {
		if contains(skip, k) {
			continue
		}
		buf.WriteString(Name(k))
		buf.WriteByte(' ')
		if err := writeValue(buf, v.Key(k), owner, 1); err != nil {
			return err
		}
		buf.WriteByte('\n')
	}
	return nil
}

func writeValue(buf *bytes.Buffer, v pdf.Value, owner Ref, depth int) error {
	if depth > maxDepth {
		return fmt.Errorf("%w: object nesting too deep", ErrMalformed)
	}

	if ref := RefOf(v); !ref.IsZero() && (ref != owner || isBackRef(v, depth)) {
		buf.WriteString(ref.String())
		return nil
	}

	switch v.Kind() {
	case pdf.Null:
		buf.WriteString("null")
	case pdf.Bool:
		buf.WriteString(strconv.FormatBool(v.Bool()))
	case pdf.Integer:
		buf.WriteString(strconv.FormatInt(v.Int64(), 10))
	case pdf.Real:
		buf.WriteString(Number(v.Float64()))
	case pdf.String:
		buf.WriteString(HexString([]byte(v.RawString())))
	case pdf.Name:
		buf.WriteString(Name(v.Name()))
	case pdf.Array:
		buf.WriteByte('[')
		for i := 0; i < v.Len(); i++ {
			if i > 0 {
				buf.WriteByte(' ')
			}
			if err := writeValue(buf, v.Index(i), owner, depth+1); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case pdf.Dict:
		buf.WriteString("<<")
		for i, k := range sortedKeys(v) {
			if i > 0 {
				buf.WriteByte(' ')
			}
			buf.WriteString(Name(k))
			buf.WriteByte(' ')
			if err := writeValue(buf, v.Key(k), owner, depth+1); err != nil {
				return err
			}
		}
		buf.WriteString(">>")
	case pdf.Stream:
		return fmt.Errorf("%w: stream stored as a direct object", ErrMalformed)
	}
	return nil
}

// isBackRef catches nested entries such as an annotation's /P that point back
// at the page being written; they share the owner's reference but can never be
// stored inline.
func isBackRef(v pdf.Value, depth int) bool {
	return depth > 0 && v.Kind() == pdf.Dict && v.Key("Type").Name() == "Page"
}

func sortedKeys(v pdf.Value) []string {
	keys := v.Keys()
	sort.Strings(keys)
	return keys
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}

// Number formats f with at most four decimals and no exponent.
func Number(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "0"
	}
	r := math.Round(f*1e4) / 1e4
	if r == 0 {
		return "0"
	}
	return strconv.FormatFloat(r, 'f', -1, 64)
}

// Name formats a PDF name object, escaping delimiters and non-printable bytes.
func Name(n string) string {
	var b bytes.Buffer
	b.WriteByte('/')
	for i := 0; i < len(n); i++ {
		c := n[i]
		if c < 0x21 || c > 0x7e || bytes.IndexByte([]byte("#()<>[]{}/%"), c) >= 0 {
			fmt.Fprintf(&b, "#%02X", c)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// HexString formats raw bytes as a hexadecimal string object.
func HexString(raw []byte) string {
	return "<" + hex.EncodeToString(raw) + ">"
}

// LiteralString formats raw bytes as a literal string object.
func LiteralString(raw []byte) string {
	var b bytes.Buffer
	b.WriteByte('(')
	for _, c := range raw {
		switch c {
		case '(', ')', '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		case '\r':
			b.WriteString(`\r`)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte(')')
	return b.String()
}
