// Package area maps a detection's bounding box to a named airport zone
// using configured polygons (spec §6 Configuration, §9 Open Question).
// Per the Open Question, containment is resolved against the bottom-center
// point of the bbox using a standard ray-cast point-in-polygon test — the
// source left centroid vs. bottom-center vs. any-vertex unspecified, and
// bottom-center best matches a ground-plane footprint for airport-surface
// objects.
package area

// Point is a 2D map-space point (the detection's projected ground
// position, not raw pixel coordinates).
type Point struct {
	X, Y float64
}

// Polygon is a named, closed region in map space (vertices are not
// required to repeat the first point at the end).
type Polygon struct {
	ID       string
	Vertices []Point
}

// BBox is the same inclusive-exclusive pixel rectangle used elsewhere.
type BBox struct {
	X1, Y1, X2, Y2 int
}

// BottomCenter returns the bottom-center point of bbox, the chosen
// containment anchor.
func BottomCenter(b BBox) Point {
	return Point{X: float64(b.X1+b.X2) / 2, Y: float64(b.Y2)}
}

// Map holds the configured polygons and resolves a bbox to the first
// containing polygon's id.
type Map struct {
	polygons []Polygon
}

// NewMap builds an area Map from configured polygons, in priority order
// (first match wins when polygons overlap).
func NewMap(polygons []Polygon) *Map {
	return &Map{polygons: polygons}
}

// Resolve returns the id of the first configured polygon containing bbox's
// bottom-center point, or "" if none contains it.
func (m *Map) Resolve(b BBox) string {
	p := BottomCenter(b)
	for _, poly := range m.polygons {
		if contains(poly.Vertices, p) {
			return poly.ID
		}
	}
	return ""
}

// contains implements the standard ray-casting point-in-polygon test.
func contains(vertices []Point, p Point) bool {
	if len(vertices) < 3 {
		return false
	}
	inside := false
	j := len(vertices) - 1
	for i := 0; i < len(vertices); i++ {
		vi, vj := vertices[i], vertices[j]
		if (vi.Y > p.Y) != (vj.Y > p.Y) {
			xIntersect := (vj.X-vi.X)*(p.Y-vi.Y)/(vj.Y-vi.Y) + vi.X
			if p.X < xIntersect {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}
