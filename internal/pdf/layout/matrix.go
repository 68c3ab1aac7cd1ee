package layout

import "math"

// matrix is an affine transform [a b c d e f] as used by the cm and Tm
// operators; the last column is implicitly 0 0 1.
type matrix [6]float64

var identity = matrix{1, 0, 0, 1, 0, 0}

// mul returns m×n: apply m first, then n.
func (m matrix) mul(n matrix) matrix {
	return matrix{
		m[0]*n[0] + m[1]*n[2],
		m[0]*n[1] + m[1]*n[3],
		m[2]*n[0] + m[3]*n[2],
		m[2]*n[1] + m[3]*n[3],
		m[4]*n[0] + m[5]*n[2] + n[4],
		m[4]*n[1] + m[5]*n[3] + n[5],
	}
}

func (m matrix) apply(x, y float64) (float64, float64) {
	return x*m[0] + y*m[2] + m[4], x*m[1] + y*m[3] + m[5]
}

// applyVec transforms a direction, ignoring translation.
func (m matrix) applyVec(x, y float64) (float64, float64) {
	return x*m[0] + y*m[2], x*m[1] + y*m[3]
}

func translate(tx, ty float64) matrix {
	return matrix{1, 0, 0, 1, tx, ty}
}

// bounds returns the axis-aligned bounding box of the unit square under m,
// scaled to w×h and offset to (x, y).
func (m matrix) bounds(x, y, w, h float64) Box {
	xs := [4]float64{}
	ys := [4]float64{}
	xs[0], ys[0] = m.apply(x, y)
	xs[1], ys[1] = m.apply(x+w, y)
	xs[2], ys[2] = m.apply(x, y+h)
	xs[3], ys[3] = m.apply(x+w, y+h)

	b := Box{MinX: math.Inf(1), MinY: math.Inf(1), MaxX: math.Inf(-1), MaxY: math.Inf(-1)}
	for i := range xs {
		b.MinX = math.Min(b.MinX, xs[i])
		b.MinY = math.Min(b.MinY, ys[i])
		b.MaxX = math.Max(b.MaxX, xs[i])
		b.MaxY = math.Max(b.MaxY, ys[i])
	}
	return b
}
