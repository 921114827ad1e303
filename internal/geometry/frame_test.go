package geometry

import (
	"math"
	"testing"

	"github.com/park285/xiangqi-board/internal/xiangqi"
)

func unitFrame(t *testing.T) Frame {
	t.Helper()
	// shuffled on purpose
	f, err := FrameFromCorners([4]Point3{
		{X: 8, Z: 9},
		{X: 0, Z: 0},
		{X: 0, Z: 9},
		{X: 8, Z: 0},
	})
	if err != nil {
		t.Fatalf("FrameFromCorners: %v", err)
	}
	return f
}

func TestFrameFromCornersOrdersCorners(t *testing.T) {
	f := unitFrame(t)
	if f.BL != (Point3{X: 0, Z: 0}) || f.BR != (Point3{X: 8, Z: 0}) || f.TL != (Point3{X: 0, Z: 9}) || f.TR != (Point3{X: 8, Z: 9}) {
		t.Fatalf("corners: %+v", f)
	}
}

func TestFrameFromCornersDegenerate(t *testing.T) {
	if _, err := FrameFromCorners([4]Point3{{X: 0}, {X: 1}, {X: 2}, {X: 3}}); err == nil {
		t.Fatalf("flat corners should be rejected")
	}
}

func TestWorldPositionGrid(t *testing.T) {
	f := unitFrame(t)
	for file := 0; file < xiangqi.Files; file++ {
		for rank := 0; rank < xiangqi.Ranks; rank++ {
			p := f.WorldPosition(xiangqi.Sq(file, rank))
			if math.Abs(p.X-float64(file)) > 1e-9 || math.Abs(p.Z-float64(rank)) > 1e-9 {
				t.Fatalf("(%d,%d) -> %+v", file, rank, p)
			}
		}
	}
	if p := f.WorldPosition(xiangqi.Sq(12, -3)); p != (Point3{X: 8, Z: 0}) {
		t.Fatalf("clamped position: %+v", p)
	}
}

func TestWorldToSquareRoundTripSkewed(t *testing.T) {
	f := Frame{
		BL: Point3{X: -1, Y: 0.5, Z: 0},
		BR: Point3{X: 7.5, Y: 0.5, Z: 0.4},
		TL: Point3{X: -0.6, Y: 0.5, Z: 10},
		TR: Point3{X: 8.2, Y: 0.5, Z: 9.6},
	}
	for file := 0; file < xiangqi.Files; file++ {
		for rank := 0; rank < xiangqi.Ranks; rank++ {
			sq := xiangqi.Sq(file, rank)
			got, ok := f.WorldToSquare(f.WorldPosition(sq))
			if !ok || got != sq {
				t.Fatalf("round trip %s: got %s ok=%v", sq, got, ok)
			}
		}
	}
}

func TestWorldToSquareNearestAndOutside(t *testing.T) {
	f := unitFrame(t)
	sq, ok := f.WorldToSquare(Point3{X: 3.3, Y: 0.2, Z: 6.6})
	if !ok || sq != xiangqi.Sq(3, 7) {
		t.Fatalf("nearest: got %s ok=%v", sq, ok)
	}
	if _, ok := f.WorldToSquare(Point3{X: 20, Z: 4}); ok {
		t.Fatalf("point outside the frame should miss")
	}
}
