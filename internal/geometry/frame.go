// Package geometry maps board squares to points on a physical board surface
// described by its four corner intersections, and back.
package geometry

import (
	"errors"
	"math"
	"sort"

	"github.com/park285/xiangqi-board/internal/xiangqi"
)

type Point3 struct {
	X, Y, Z float64
}

func (p Point3) Add(q Point3) Point3    { return Point3{p.X + q.X, p.Y + q.Y, p.Z + q.Z} }
func (p Point3) Sub(q Point3) Point3    { return Point3{p.X - q.X, p.Y - q.Y, p.Z - q.Z} }
func (p Point3) Scale(k float64) Point3 { return Point3{p.X * k, p.Y * k, p.Z * k} }
func (p Point3) Dot(q Point3) float64   { return p.X*q.X + p.Y*q.Y + p.Z*q.Z }
func (p Point3) Dist(q Point3) float64  { return math.Sqrt(p.Sub(q).Dot(p.Sub(q))) }

var ErrDegenerateFrame = errors.New("degenerate board frame")

// Frame is the quadrilateral spanned by the corner intersections: BL is
// (file 0, rank 0), BR is (8, 0), TL is (0, 9), TR is (8, 9). The board lies
// in the XZ plane with Y up.
type Frame struct {
	BL, BR, TL, TR Point3
}

// FrameFromCorners assigns four unordered corner points. Points with the
// smaller Z are the bottom edge, and within each edge the smaller X is left.
func FrameFromCorners(pts [4]Point3) (Frame, error) {
	minZ, maxZ := pts[0].Z, pts[0].Z
	for _, p := range pts[1:] {
		minZ = math.Min(minZ, p.Z)
		maxZ = math.Max(maxZ, p.Z)
	}
	if maxZ-minZ < 1e-9 {
		return Frame{}, ErrDegenerateFrame
	}
	mid := (minZ + maxZ) / 2

	var bottom, top []Point3
	for _, p := range pts {
		if p.Z <= mid {
			bottom = append(bottom, p)
		} else {
			top = append(top, p)
		}
	}
	if len(bottom) != 2 || len(top) != 2 {
		// skewed quads: fall back to ordering by Z then X
		sorted := pts
		sort.Slice(sorted[:], func(i, j int) bool {
			if sorted[i].Z != sorted[j].Z {
				return sorted[i].Z < sorted[j].Z
			}
			return sorted[i].X < sorted[j].X
		})
		bottom, top = sorted[:2], sorted[2:]
	}
	byX := func(s []Point3) (Point3, Point3) {
		if s[0].X <= s[1].X {
			return s[0], s[1]
		}
		return s[1], s[0]
	}
	f := Frame{}
	f.BL, f.BR = byX(bottom)
	f.TL, f.TR = byX(top)
	if f.BL.Dist(f.BR) < 1e-9 || f.BL.Dist(f.TL) < 1e-9 {
		return Frame{}, ErrDegenerateFrame
	}
	return f, nil
}

// At returns the bilinear interpolation for u, v in [0, 1].
func (f Frame) At(u, v float64) Point3 {
	return f.BL.Scale((1 - u) * (1 - v)).
		Add(f.BR.Scale(u * (1 - v))).
		Add(f.TL.Scale((1 - u) * v)).
		Add(f.TR.Scale(u * v))
}

// WorldPosition returns the intersection point of sq; out-of-range squares
// are clamped onto the board.
func (f Frame) WorldPosition(sq xiangqi.Square) Point3 {
	sq = clamp(sq)
	return f.At(float64(sq.File)/float64(xiangqi.Files-1), float64(sq.Rank)/float64(xiangqi.Ranks-1))
}

// WorldToSquare returns the intersection nearest to p. ok is false when p
// does not project inside the frame.
func (f Frame) WorldToSquare(p Point3) (xiangqi.Square, bool) {
	// BL-BR-TR covers uv (0,0),(1,0),(1,1); BL-TR-TL covers (0,0),(1,1),(0,1)
	if _, w2, w3, ok := barycentric(p, f.BL, f.BR, f.TR); ok {
		return toSquare(w2+w3, w3), true
	}
	if _, w2, w3, ok := barycentric(p, f.BL, f.TR, f.TL); ok {
		return toSquare(w2, w2+w3), true
	}
	return xiangqi.Square{}, false
}

func toSquare(u, v float64) xiangqi.Square {
	return clamp(xiangqi.Sq(
		int(math.Round(u*float64(xiangqi.Files-1))),
		int(math.Round(v*float64(xiangqi.Ranks-1))),
	))
}

func clamp(sq xiangqi.Square) xiangqi.Square {
	sq.File = min(max(sq.File, 0), xiangqi.Files-1)
	sq.Rank = min(max(sq.Rank, 0), xiangqi.Ranks-1)
	return sq
}

const triangleEps = 1e-3

func barycentric(p, a, b, c Point3) (w1, w2, w3 float64, ok bool) {
	v0, v1, v2 := b.Sub(a), c.Sub(a), p.Sub(a)
	d00, d01, d11 := v0.Dot(v0), v0.Dot(v1), v1.Dot(v1)
	d20, d21 := v2.Dot(v0), v2.Dot(v1)
	denom := d00*d11 - d01*d01
	if math.Abs(denom) < 1e-12 {
		return 0, 0, 0, false
	}
	w2 = (d11*d20 - d01*d21) / denom
	w3 = (d00*d21 - d01*d20) / denom
	w1 = 1 - w2 - w3
	in := func(w float64) bool { return w >= -triangleEps && w <= 1+triangleEps }
	return w1, w2, w3, in(w1) && in(w2) && in(w3)
}
