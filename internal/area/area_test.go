package area

import "testing"

func square(id string, x1, y1, x2, y2 float64) Polygon {
	return Polygon{ID: id, Vertices: []Point{
		{x1, y1}, {x2, y1}, {x2, y2}, {x1, y2},
	}}
}

func TestResolveReturnsContainingPolygon(t *testing.T) {
	m := NewMap([]Polygon{square("RWY_A", 0, 0, 100, 100)})
	got := m.Resolve(BBox{X1: 10, Y1: 10, X2: 30, Y2: 50})
	if got != "RWY_A" {
		t.Fatalf("expected RWY_A, got %q", got)
	}
}

func TestResolveUsesBottomCenterNotCentroid(t *testing.T) {
	// bbox spans from y=90 (outside, above) to y=110 (inside); bottom-center
	// at y=110 falls inside a polygon covering y in [100,200], while the
	// centroid at y=100 would sit right on the boundary.
	m := NewMap([]Polygon{square("ZONE", 0, 100, 100, 200)})
	got := m.Resolve(BBox{X1: 10, Y1: 90, X2: 30, Y2: 110})
	if got != "ZONE" {
		t.Fatalf("expected bottom-center containment to match ZONE, got %q", got)
	}
}

func TestResolveReturnsEmptyWhenNoPolygonContains(t *testing.T) {
	m := NewMap([]Polygon{square("RWY_A", 0, 0, 10, 10)})
	got := m.Resolve(BBox{X1: 500, Y1: 500, X2: 520, Y2: 520})
	if got != "" {
		t.Fatalf("expected no match, got %q", got)
	}
}

func TestResolveFirstMatchWinsOnOverlap(t *testing.T) {
	m := NewMap([]Polygon{
		square("FIRST", 0, 0, 100, 100),
		square("SECOND", 50, 50, 150, 150),
	})
	got := m.Resolve(BBox{X1: 60, Y1: 60, X2: 80, Y2: 80})
	if got != "FIRST" {
		t.Fatalf("expected first polygon to win on overlap, got %q", got)
	}
}
