package layout

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irportal/anchorsign/internal/pdf/pdfdoc"
	"github.com/irportal/anchorsign/internal/pdf/pdftest"
)

func extractOne(t *testing.T, opts pdftest.Options, page pdftest.Page) *Page {
	t.Helper()
	pages, err := Extract(pdftest.BuildWith(opts, page))
	require.NoError(t, err)
	require.Len(t, pages, 1)
	return pages[0]
}

func texts(p *Page) []string {
	out := make([]string, len(p.Runs))
	for i, r := range p.Runs {
		out[i] = r.Text
	}
	return out
}

func TestExtract_SingleRun(t *testing.T) {
	p := extractOne(t, pdftest.Options{}, pdftest.Page{Content: pdftest.Text(72, 700, 12, "Hello World")})

	require.Len(t, p.Runs, 1)
	r := p.Runs[0]
	assert.Equal(t, "Hello World", r.Text)
	assert.InDelta(t, 72, r.X, 1e-6)
	assert.InDelta(t, 700, r.Y, 1e-6)
	assert.InDelta(t, 12, r.FontSize, 1e-6)
	assert.InDelta(t, pdftest.TextWidth("Hello World", 12), r.Width, 1e-6)
	assert.Equal(t, "Helvetica", r.Font)
	assert.InDelta(t, 0, r.Angle, 1e-9)

	o := r.RuneOrigin(1)
	assert.InDelta(t, 78, o.X, 1e-6)
	assert.InDelta(t, 700, o.Y, 1e-6)
}

func TestExtract_RunGrouping(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{
			name:    "adjacent show operators",
			content: "BT /F1 12 Tf 72 700 Td (SIG_) Tj (ANCHOR:a) Tj ET",
			want:    []string{"SIG_ANCHOR:a"},
		},
		{
			name:    "separate lines",
			content: pdftest.Text(72, 700, 12, "first") + pdftest.Text(72, 680, 12, "second"),
			want:    []string{"first", "second"},
		},
		{
			name:    "word gap becomes a space",
			content: pdftest.Text(100, 500, 10, "abc") + pdftest.Text(120, 500, 10, "def"),
			want:    []string{"abc def"},
		},
		{
			name:    "wide gap splits",
			content: pdftest.Text(100, 500, 10, "abc") + pdftest.Text(300, 500, 10, "def"),
			want:    []string{"abc", "def"},
		},
		{
			name:    "small kerning in TJ",
			content: "BT /F1 12 Tf 72 700 Td [(SIG) -20 (_ANCHOR:b)] TJ ET",
			want:    []string{"SIG_ANCHOR:b"},
		},
		{
			name:    "size change splits",
			content: "BT /F1 12 Tf 72 700 Td (big) Tj /F1 6 Tf (small) Tj ET",
			want:    []string{"big", "small"},
		},
		{
			name:    "next line operators",
			content: "BT /F1 10 Tf 14 TL 50 600 Td (one) Tj T* (two) Tj (three) ' ET",
			want:    []string{"one", "two", "three"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := extractOne(t, pdftest.Options{}, pdftest.Page{Content: tt.content})
			if diff := cmp.Diff(tt.want, texts(p)); diff != "" {
				t.Errorf("runs mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExtract_DegenerateTextJoins(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{
			name:    "zero font size",
			content: pdftest.Text(72, 100, 0, "SIG_ANCHOR:party_a"),
			want:    []string{"SIG_ANCHOR:party_a"},
		},
		{
			name:    "zero horizontal scale",
			content: "BT /F1 10 Tf 0 Tz 72 100 Td (SIG_ANCHOR:party_a) Tj ET",
			want:    []string{"SIG_ANCHOR:party_a"},
		},
		{
			name:    "zero size at two positions stays apart",
			content: pdftest.Text(72, 100, 0, "ab") + pdftest.Text(300, 100, 0, "cd"),
			want:    []string{"ab", "cd"},
		},
		{
			name:    "zero size next to sized text stays apart",
			content: "BT /F1 0 Tf 72 100 Td (ab) Tj /F1 10 Tf (cd) Tj ET",
			want:    []string{"ab", "cd"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := extractOne(t, pdftest.Options{}, pdftest.Page{Content: tt.content})
			assert.Equal(t, tt.want, texts(p))
		})
	}
}

func TestExtract_Transforms(t *testing.T) {
	p := extractOne(t, pdftest.Options{}, pdftest.Page{
		Content: "q 2 0 0 2 0 0 cm BT /F1 10 Tf 10 10 Td (x) Tj ET Q " + pdftest.Text(5, 5, 10, "y"),
	})
	require.Len(t, p.Runs, 2)
	assert.InDelta(t, 20, p.Runs[0].X, 1e-6)
	assert.InDelta(t, 20, p.Runs[0].Y, 1e-6)
	assert.InDelta(t, 20, p.Runs[0].FontSize, 1e-6)
	assert.InDelta(t, 5, p.Runs[1].X, 1e-6)
	assert.InDelta(t, 10, p.Runs[1].FontSize, 1e-6)
}

func TestExtract_RotatedText(t *testing.T) {
	p := extractOne(t, pdftest.Options{}, pdftest.Page{
		Content: "BT /F1 10 Tf 0 1 -1 0 300 200 Tm (vertical) Tj ET",
	})
	require.Len(t, p.Runs, 1)
	r := p.Runs[0]
	assert.Equal(t, "vertical", r.Text)
	assert.InDelta(t, 90, r.Angle, 1e-6)
	assert.InDelta(t, 300, r.X, 1e-6)
	assert.InDelta(t, 200, r.Y, 1e-6)
	assert.InDelta(t, pdftest.TextWidth("vertical", 10), r.Width, 1e-6)
	assert.InDelta(t, 205, r.RuneOrigin(1).Y, 1e-6)
}

func TestExtract_Boxes(t *testing.T) {
	p := extractOne(t, pdftest.Options{}, pdftest.Page{
		Content: "10 20 30 40 re f q 1 0 0 1 100 100 cm 0 0 5 5 re S Q",
	})
	want := []Box{
		{MinX: 10, MinY: 20, MaxX: 40, MaxY: 60, Kind: BoxPath},
		{MinX: 100, MinY: 100, MaxX: 105, MaxY: 105, Kind: BoxPath},
	}
	if diff := cmp.Diff(want, p.Boxes, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("boxes mismatch (-want +got):\n%s", diff)
	}
}

func TestExtract_GeometryAndVariants(t *testing.T) {
	opts := pdftest.Options{XrefStream: true, Compress: true, InheritResources: true}
	p := extractOne(t, opts, pdftest.Page{
		Width: 300, Height: 400, OriginX: 10, OriginY: 10, Rotate: 90,
		Parts: []string{"q 1 0 0 1 50 0 cm", pdftest.Text(10, 100, 8, "split"), "Q"},
	})

	assert.Equal(t, pdfdoc.Rect{LLX: 10, LLY: 10, URX: 310, URY: 410}, p.MediaBox)
	assert.Equal(t, 90, p.Rotate)
	require.Len(t, p.Runs, 1)
	assert.InDelta(t, 60, p.Runs[0].X, 1e-6)
	assert.Equal(t, "Helvetica", p.Runs[0].Font)
}

func TestExtract_EmptyAndMalformed(t *testing.T) {
	pages, err := Extract(pdftest.Build(pdftest.Page{}))
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Empty(t, pages[0].Runs)

	_, err = Extract([]byte("%PDF-1.7\nnonsense"))
	assert.ErrorIs(t, err, ErrMalformedDocument)
}

func TestPages_StopsEarly(t *testing.T) {
	doc, err := pdfdoc.Open(pdftest.Build(pdftest.Page{}, pdftest.Page{}, pdftest.Page{}))
	require.NoError(t, err)

	seen := 0
	for p, err := range Pages(doc) {
		require.NoError(t, err)
		seen++
		if p.Number == 2 {
			break
		}
	}
	assert.Equal(t, 2, seen)
}

func TestExtractParallel_MatchesSequential(t *testing.T) {
	var pages []pdftest.Page
	for i := 0; i < 7; i++ {
		pages = append(pages, pdftest.Page{Content: pdftest.Text(72, float64(100+i*10), 12, "page text")})
	}
	data := pdftest.Build(pages...)

	seq, err := Extract(data)
	require.NoError(t, err)
	par, err := ExtractParallel(context.Background(), data, 3)
	require.NoError(t, err)

	if diff := cmp.Diff(seq, par, cmp.AllowUnexported(TextRun{})); diff != "" {
		t.Errorf("parallel extraction differs (-seq +par):\n%s", diff)
	}
}

func TestExtractParallel_Cancelled(t *testing.T) {
	data := pdftest.Build(pdftest.Page{}, pdftest.Page{}, pdftest.Page{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ExtractParallel(ctx, data, 2)
	assert.ErrorIs(t, err, context.Canceled)
}
