package compositor

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irportal/anchorsign/internal/anchors"
	"github.com/irportal/anchorsign/internal/pdf/layout"
	"github.com/irportal/anchorsign/internal/pdf/pdfdoc"
	"github.com/irportal/anchorsign/internal/pdf/pdftest"
)

func pngImage(t *testing.T, w, h int, alpha uint8) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 10, G: 20, B: 200, A: alpha})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func detect(t *testing.T, doc []byte, id string) anchors.Anchor {
	t.Helper()
	reg, err := anchors.Detect(doc)
	require.NoError(t, err)
	a, err := reg.Get(id)
	require.NoError(t, err)
	return a
}

func imageBoxes(p *layout.Page) []layout.Box {
	var out []layout.Box
	for _, b := range p.Boxes {
		if b.Kind == layout.BoxImage {
			out = append(out, b)
		}
	}
	return out
}

func TestApply_RoundTrip(t *testing.T) {
	for _, opts := range []pdftest.Options{{}, {XrefStream: true, Compress: true}} {
		doc := pdftest.BuildWith(opts,
			pdftest.Page{Content: pdftest.Text(72, 700, 12, "Cover page")},
			pdftest.Page{Content: pdftest.Text(72, 700, 12, "Signed by") + pdftest.Text(100, 150, 1, "SIG_ANCHOR:party_a")},
		)
		a := detect(t, doc, "party_a")

		out, err := New(Options{}).Apply(doc, a, pngImage(t, 300, 100, 0xff))
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(out, doc))

		pages, err := layout.Extract(out)
		require.NoError(t, err)
		require.Len(t, pages, 2)

		assert.Empty(t, imageBoxes(pages[0]))
		boxes := imageBoxes(pages[1])
		require.Len(t, boxes, 1)
		box := boxes[0]
		assert.InDelta(t, a.RawX, box.MinX, 1e-3)
		assert.InDelta(t, a.RawY, box.MinY, 1e-3)
		assert.InDelta(t, 180, box.MaxX-box.MinX, 1e-3)
		assert.InDelta(t, 60, box.MaxY-box.MinY, 1e-3)

		// Text and anchors survive the revision.
		again := detect(t, out, "party_a")
		assert.Equal(t, a, again)
		assert.Equal(t, "Signed by", pages[1].Runs[0].Text)
	}
}

func TestApply_OtherPagesUntouched(t *testing.T) {
	doc := pdftest.Build(
		pdftest.Page{Content: pdftest.Text(72, 72, 8, "SIG_ANCHOR:x")},
		pdftest.Page{Content: pdftest.Text(72, 72, 8, "untouched")},
	)
	out, err := New(Options{}).Apply(doc, detect(t, doc, "x"), pngImage(t, 10, 10, 0xff))
	require.NoError(t, err)

	before, err := pdfdoc.Open(doc)
	require.NoError(t, err)
	after, err := pdfdoc.Open(out)
	require.NoError(t, err)

	p0, err := before.Page(2)
	require.NoError(t, err)
	p1, err := after.Page(2)
	require.NoError(t, err)
	c0, err := p0.ContentBytes()
	require.NoError(t, err)
	c1, err := p1.ContentBytes()
	require.NoError(t, err)
	assert.Equal(t, c0, c1)
	assert.Equal(t, p0.Ref, p1.Ref)
}

func TestApply_RotatedPageDrawsUpright(t *testing.T) {
	doc := pdftest.Build(pdftest.Page{Width: 400, Height: 600, Rotate: 90, Content: pdftest.Text(200, 100, 8, "SIG_ANCHOR:r")})
	a := detect(t, doc, "r")

	out, err := New(Options{}).Apply(doc, a, pngImage(t, 180, 60, 0xff))
	require.NoError(t, err)
	pages, err := layout.Extract(out)
	require.NoError(t, err)

	boxes := imageBoxes(pages[0])
	require.Len(t, boxes, 1)
	// Displayed x runs along user +y and displayed y along user -x.
	assert.InDelta(t, a.RawX-60, boxes[0].MinX, 1e-3)
	assert.InDelta(t, a.RawX, boxes[0].MaxX, 1e-3)
	assert.InDelta(t, a.RawY, boxes[0].MinY, 1e-3)
	assert.InDelta(t, a.RawY+180, boxes[0].MaxY, 1e-3)
}

func TestApply_AlphaAddsSoftMask(t *testing.T) {
	doc := pdftest.Build(pdftest.Page{Content: pdftest.Text(72, 72, 8, "SIG_ANCHOR:x")})
	a := detect(t, doc, "x")

	opaque, err := New(Options{}).Apply(doc, a, pngImage(t, 4, 4, 0xff))
	require.NoError(t, err)
	assert.NotContains(t, string(opaque[len(doc):]), "/SMask")

	translucent, err := New(Options{}).Apply(doc, a, pngImage(t, 4, 4, 0x80))
	require.NoError(t, err)
	assert.Contains(t, string(translucent[len(doc):]), "/SMask")
}

func TestApply_JPEG(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}))

	doc := pdftest.Build(pdftest.Page{Content: pdftest.Text(72, 72, 8, "SIG_ANCHOR:x")})
	_, err := New(Options{}).Apply(doc, detect(t, doc, "x"), buf.Bytes())
	assert.NoError(t, err)
}

func TestApply_Errors(t *testing.T) {
	doc := pdftest.Build(pdftest.Page{Content: pdftest.Text(72, 72, 8, "SIG_ANCHOR:x")})
	c := New(Options{})

	_, err := c.Apply(doc, anchors.Anchor{ID: "x", Page: 3}, pngImage(t, 4, 4, 0xff))
	assert.ErrorIs(t, err, ErrPageOutOfRange)
	var pe *PageOutOfRangeError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 3, pe.Page)
	assert.Equal(t, 1, pe.PageCount)

	_, err = c.Apply(doc, anchors.Anchor{ID: "x", Page: 1}, []byte("not an image"))
	assert.ErrorIs(t, err, ErrUnsupportedImage)

	_, err = c.Apply([]byte("garbage"), anchors.Anchor{ID: "x", Page: 1}, pngImage(t, 4, 4, 0xff))
	assert.ErrorIs(t, err, pdfdoc.ErrMalformed)
}

func grayPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func TestDecodeImage_PixelCap(t *testing.T) {
	// Highly compressible, so the file is small while the pixel count is not.
	huge := grayPNG(t, 4097, 4096)

	_, _, err := DecodeImage(huge, DefaultMaxPixels)
	assert.ErrorIs(t, err, ErrUnsupportedImage)

	_, _, err = DecodeImage(grayPNG(t, 200, 100), 200*100)
	assert.NoError(t, err)
	_, _, err = DecodeImage(grayPNG(t, 201, 100), 200*100)
	assert.ErrorIs(t, err, ErrUnsupportedImage)

	doc := pdftest.Build(pdftest.Page{Content: pdftest.Text(72, 72, 8, "SIG_ANCHOR:x")})
	_, err = New(Options{MaxPixels: 1000}).Apply(doc, detect(t, doc, "x"), grayPNG(t, 40, 40))
	assert.ErrorIs(t, err, ErrUnsupportedImage)
}

func TestDownsample(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2000, 500))
	out := Downsample(src, 540, 180)
	assert.Equal(t, image.Rect(0, 0, 540, 135), out.Bounds())

	small := image.NewNRGBA(image.Rect(0, 0, 30, 10))
	assert.Same(t, small, Downsample(small, 540, 180))
}

func TestApply_LargeImageEmbeddedDownsampled(t *testing.T) {
	doc := pdftest.Build(pdftest.Page{Content: pdftest.Text(72, 72, 8, "SIG_ANCHOR:x")})
	a := detect(t, doc, "x")

	out, err := New(Options{}).Apply(doc, a, pngImage(t, 3000, 1000, 0xff))
	require.NoError(t, err)
	tail := string(out[len(doc):])
	assert.Contains(t, tail, "/Width 540 /Height 180")
	assert.NotContains(t, tail, "/Width 3000")

	pages, err := layout.Extract(out)
	require.NoError(t, err)
	boxes := imageBoxes(pages[0])
	require.Len(t, boxes, 1)
	assert.InDelta(t, 180, boxes[0].MaxX-boxes[0].MinX, 1e-3)
	assert.InDelta(t, 60, boxes[0].MaxY-boxes[0].MinY, 1e-3)
}

func TestApply_Deterministic(t *testing.T) {
	doc := pdftest.Build(pdftest.Page{Content: pdftest.Text(72, 72, 8, "SIG_ANCHOR:x")})
	a := detect(t, doc, "x")
	sig := pngImage(t, 30, 10, 0x40)

	one, err := New(Options{}).Apply(doc, a, sig)
	require.NoError(t, err)
	two, err := New(Options{}).Apply(doc, a, sig)
	require.NoError(t, err)
	assert.Equal(t, one, two)
}

func TestFit(t *testing.T) {
	c := New(Options{})
	tests := []struct {
		w, h         int
		wantW, wantH float64
	}{
		{w: 100, h: 100, wantW: 60, wantH: 60},
		{w: 400, h: 100, wantW: 180, wantH: 45},
		{w: 3, h: 1, wantW: 180, wantH: 60},
		{w: 900, h: 30, wantW: 180, wantH: 6},
	}
	for _, tt := range tests {
		w, h := c.Fit(tt.w, tt.h)
		assert.InDelta(t, tt.wantW, w, 1e-9)
		assert.InDelta(t, tt.wantH, h, 1e-9)
	}

	small := New(Options{MaxWidth: 90, MaxHeight: 30})
	w, h := small.Fit(300, 100)
	assert.InDelta(t, 90, w, 1e-9)
	assert.InDelta(t, 30, h, 1e-9)
}

func TestOrient(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	red := color.NRGBA{R: 255, A: 255}
	src.SetNRGBA(0, 0, red)

	tests := []struct {
		o    int
		w, h int
		redX int
		redY int
	}{
		{o: 1, w: 3, h: 2, redX: 0, redY: 0},
		{o: 2, w: 3, h: 2, redX: 2, redY: 0},
		{o: 3, w: 3, h: 2, redX: 2, redY: 1},
		{o: 4, w: 3, h: 2, redX: 0, redY: 1},
		{o: 5, w: 2, h: 3, redX: 0, redY: 0},
		{o: 6, w: 2, h: 3, redX: 1, redY: 0},
		{o: 7, w: 2, h: 3, redX: 1, redY: 2},
		{o: 8, w: 2, h: 3, redX: 0, redY: 2},
	}
	for _, tt := range tests {
		out := Orient(src, tt.o)
		b := out.Bounds()
		assert.Equal(t, tt.w, b.Dx(), "orientation %d", tt.o)
		assert.Equal(t, tt.h, b.Dy(), "orientation %d", tt.o)
		r, _, _, _ := out.At(tt.redX, tt.redY).RGBA()
		assert.Equal(t, uint32(0xffff), r, "orientation %d", tt.o)
	}
}

func TestOrientation_NoExif(t *testing.T) {
	assert.Equal(t, 1, Orientation(pngImage(t, 2, 2, 0xff)))
	assert.Equal(t, 1, Orientation(nil))
}

func TestPool_BoundsConcurrency(t *testing.T) {
	p := NewPool(2)
	var running, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Do(context.Background(), func() error {
				n := atomic.AddInt32(&running, 1)
				for {
					old := atomic.LoadInt32(&peak)
					if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&running, -1)
				return nil
			})
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, peak, int32(2))
}

func TestPool_ContextCancelled(t *testing.T) {
	p := NewPool(1)
	hold := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = p.Do(context.Background(), func() error {
			close(started)
			<-hold
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	called := false
	err := p.Do(ctx, func() error { called = true; return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, called)
	close(hold)
}
