package layout

import (
	"math"
	"unicode"

	pdf "github.com/digitorus/pdf"

	"github.com/irportal/anchorsign/internal/pdf/pdfdoc"
)

// maxFormDepth bounds nested form XObjects.
const maxFormDepth = 8

type gstate struct {
	ctm       matrix
	font      *font
	fontSize  float64
	charSpace float64
	wordSpace float64
	scale     float64
	leading   float64
	rise      float64
}

type resources struct {
	v     pdf.Value
	fonts map[string]*font
}

func (r *resources) font(name string) *font {
	if f, ok := r.fonts[name]; ok {
		return f
	}
	var f *font
	if v := r.v.Key("Font").Key(name); v.Kind() == pdf.Dict {
		f = loadFont(v)
	}
	r.fonts[name] = f
	return f
}

// glyph is one shown character code.
type glyph struct {
	text   string
	origin Point
	pen    Point
	size   float64
	angle  float64
	font   string
}

type interpreter struct {
	gs      gstate
	stack   []gstate
	tm, tlm matrix
	res     *resources
	depth   int

	glyphs []glyph
	boxes  []Box
}

func newInterpreter() *interpreter {
	return &interpreter{
		gs: gstate{ctm: identity, scale: 100},
		tm: identity, tlm: identity,
	}
}

func (in *interpreter) run(p *pdfdoc.Page) error {
	in.res = &resources{v: p.Resources(), fonts: map[string]*font{}}
	for _, s := range p.Contents() {
		in.interpret(s)
	}
	return nil
}

func (in *interpreter) interpret(strm pdf.Value) {
	pdf.Interpret(strm, func(stk *pdf.Stack, op string) {
		n := stk.Len()
		args := make([]pdf.Value, n)
		for i := n - 1; i >= 0; i-- {
			args[i] = stk.Pop()
		}
		in.op(op, args)
	})
}

func (in *interpreter) op(op string, args []pdf.Value) {
	switch op {
	case "q":
		in.stack = append(in.stack, in.gs)
	case "Q":
		if n := len(in.stack); n > 0 {
			in.gs = in.stack[n-1]
			in.stack = in.stack[:n-1]
		}
	case "cm":
		if len(args) == 6 {
			in.gs.ctm = toMatrix(args).mul(in.gs.ctm)
		}
	case "re":
		if len(args) == 4 {
			x, y, w, h := num(args[0]), num(args[1]), num(args[2]), num(args[3])
			if w != 0 && h != 0 {
				b := in.gs.ctm.bounds(x, y, w, h)
				b.Kind = BoxPath
				in.boxes = append(in.boxes, b)
			}
		}
	case "Do":
		if len(args) == 1 {
			in.xobject(args[0].Name())
		}
	case "BT":
		in.tm, in.tlm = identity, identity
	case "Tc":
		if len(args) == 1 {
			in.gs.charSpace = num(args[0])
		}
	case "Tw":
		if len(args) == 1 {
			in.gs.wordSpace = num(args[0])
		}
	case "Tz":
		if len(args) == 1 {
			in.gs.scale = num(args[0])
		}
	case "TL":
		if len(args) == 1 {
			in.gs.leading = num(args[0])
		}
	case "Ts":
		if len(args) == 1 {
			in.gs.rise = num(args[0])
		}
	case "Tf":
		if len(args) == 2 {
			in.gs.font = in.res.font(args[0].Name())
			in.gs.fontSize = num(args[1])
		}
	case "Td":
		if len(args) == 2 {
			in.moveLine(num(args[0]), num(args[1]))
		}
	case "TD":
		if len(args) == 2 {
			in.gs.leading = -num(args[1])
			in.moveLine(num(args[0]), num(args[1]))
		}
	case "Tm":
		if len(args) == 6 {
			in.tm = toMatrix(args)
			in.tlm = in.tm
		}
	case "T*":
		in.moveLine(0, -in.gs.leading)
	case "Tj":
		if len(args) == 1 {
			in.show(args[0].RawString())
		}
	case "'":
		if len(args) == 1 {
			in.moveLine(0, -in.gs.leading)
			in.show(args[0].RawString())
		}
	case "\"":
		if len(args) == 3 {
			in.gs.wordSpace = num(args[0])
			in.gs.charSpace = num(args[1])
			in.moveLine(0, -in.gs.leading)
			in.show(args[2].RawString())
		}
	case "TJ":
		if len(args) == 1 {
			arr := args[0]
			for i := 0; i < arr.Len(); i++ {
				el := arr.Index(i)
				if el.Kind() == pdf.String {
					in.show(el.RawString())
					continue
				}
				tx := -num(el) / 1000 * in.gs.fontSize * in.gs.scale / 100
				in.tm = translate(tx, 0).mul(in.tm)
			}
		}
	}
}

func (in *interpreter) moveLine(tx, ty float64) {
	in.tlm = translate(tx, ty).mul(in.tlm)
	in.tm = in.tlm
}

func (in *interpreter) xobject(name string) {
	x := in.res.v.Key("XObject").Key(name)
	switch x.Key("Subtype").Name() {
	case "Image":
		b := in.gs.ctm.bounds(0, 0, 1, 1)
		b.Kind = BoxImage
		in.boxes = append(in.boxes, b)
	case "Form":
		if in.depth >= maxFormDepth || x.Kind() != pdf.Stream {
			return
		}
		saved, savedRes, tm, tlm := in.gs, in.res, in.tm, in.tlm
		stack := len(in.stack)

		if m := x.Key("Matrix"); m.Kind() == pdf.Array && m.Len() == 6 {
			vals := make([]pdf.Value, 6)
			for i := range vals {
				vals[i] = m.Index(i)
			}
			in.gs.ctm = toMatrix(vals).mul(in.gs.ctm)
		}
		if r := x.Key("Resources"); r.Kind() == pdf.Dict {
			in.res = &resources{v: r, fonts: map[string]*font{}}
		}

		in.depth++
		in.interpret(x)
		in.depth--

		in.gs, in.res, in.tm, in.tlm = saved, savedRes, tm, tlm
		in.stack = in.stack[:stack]
	}
}

// show positions the glyphs of a shown string and advances the text matrix.
func (in *interpreter) show(raw string) {
	f := in.gs.font
	if f == nil {
		f = &font{}
	}
	fs := in.gs.fontSize
	th := in.gs.scale / 100

	for _, c := range f.codes(raw) {
		m := in.tm.mul(in.gs.ctm)
		ox, oy := m.apply(0, in.gs.rise)
		ux, uy := m.applyVec(1, 0)
		vx, vy := m.applyVec(0, 1)

		code := f.code(c)
		adv := f.width(code)/1000*fs + in.gs.charSpace
		if len(c) == 1 && c[0] == ' ' {
			adv += in.gs.wordSpace
		}
		adv *= th

		px, py := m.apply(adv, in.gs.rise)
		in.glyphs = append(in.glyphs, glyph{
			text:   f.decode(c),
			origin: Point{ox, oy},
			pen:    Point{px, py},
			size:   math.Abs(fs) * math.Hypot(vx, vy),
			angle:  math.Atan2(uy, ux) * 180 / math.Pi,
			font:   f.name,
		})
		in.tm = translate(adv, 0).mul(in.tm)
	}
}

func toMatrix(args []pdf.Value) matrix {
	return matrix{num(args[0]), num(args[1]), num(args[2]), num(args[3]), num(args[4]), num(args[5])}
}

// runs groups glyphs into text runs. A glyph continues the current run when
// it starts where the previous glyph's pen stopped, on the same baseline,
// with the same size and direction. A forward gap of up to about one em is
// read as a word break and joined with a space.
func (in *interpreter) runs() []TextRun {
	var out []TextRun
	var text []rune
	var origins []Point
	var start, last glyph
	open := false

	flush := func() {
		if open && len(text) > 0 {
			out = append(out, TextRun{
				Text:     string(text),
				X:        start.origin.X,
				Y:        start.origin.Y,
				FontSize: start.size,
				Width:    math.Hypot(last.pen.X-start.origin.X, last.pen.Y-start.origin.Y),
				Angle:    start.angle,
				Font:     start.font,
				origins:  origins,
			})
		}
		text, origins, open = nil, nil, false
	}

	for _, g := range in.glyphs {
		if !printable(g.text) {
			continue
		}
		if open {
			switch joinKind(last, g) {
			case joinNone:
				flush()
			case joinSpace:
				if text[len(text)-1] != ' ' && !unicode.IsSpace([]rune(g.text)[0]) {
					text = append(text, ' ')
					origins = append(origins, last.pen)
				}
			}
		}
		if !open {
			start, open = g, true
		}
		for _, r := range g.text {
			text = append(text, r)
			origins = append(origins, g.origin)
		}
		last = g
	}
	flush()
	return out
}

type join int

const (
	joinNone join = iota
	joinDirect
	joinSpace
)

// coincident is how close, in user space units, a degenerate glyph must
// start to the previous pen position to continue its run.
const coincident = 1e-6

func joinKind(a, b glyph) join {
	size := a.size
	if size <= 0 || b.size <= 0 {
		// Zero-size text has no extent to measure gaps against; only glyphs
		// drawn exactly where the previous one ended belong together.
		if a.size <= 0 && b.size <= 0 && angleDiff(a.angle, b.angle) <= 1 &&
			math.Hypot(b.origin.X-a.pen.X, b.origin.Y-a.pen.Y) < coincident {
			return joinDirect
		}
		return joinNone
	}
	if math.Abs(a.size-b.size) > 0.05*size || angleDiff(a.angle, b.angle) > 1 {
		return joinNone
	}
	rad := a.angle * math.Pi / 180
	ux, uy := math.Cos(rad), math.Sin(rad)
	dx, dy := b.origin.X-a.pen.X, b.origin.Y-a.pen.Y
	along := dx*ux + dy*uy
	perp := -dx*uy + dy*ux

	switch {
	case math.Abs(perp) > 0.2*size:
		return joinNone
	case along >= -0.3*size && along <= 0.2*size:
		return joinDirect
	case along > 0.2*size && along <= 1.2*size:
		return joinSpace
	}
	return joinNone
}

func angleDiff(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 360)
	if d > 180 {
		d = 360 - d
	}
	return d
}

func printable(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsPrint(r) && r != ' ' {
			return false
		}
	}
	return true
}
