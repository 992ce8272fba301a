package geometry

import "math"

// PolygonArea returns the area of a simple polygon using the shoelace
// formula. The polygon does not need to be explicitly closed.
func PolygonArea(polygon []Point2D) float64 {
	if len(polygon) < 3 {
		return 0
	}
	var sum float64
	n := len(polygon)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += polygon[i].X*polygon[j].Y - polygon[j].X*polygon[i].Y
	}
	return math.Abs(sum) / 2
}

// PolygonCentroid returns the area-weighted centroid of a simple polygon.
// Falls back to the vertex average for degenerate (zero-area) polygons.
func PolygonCentroid(polygon []Point2D) Point2D {
	if len(polygon) < 3 {
		return Centroid(polygon)
	}
	var cx, cy, signed float64
	n := len(polygon)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		cross := polygon[i].X*polygon[j].Y - polygon[j].X*polygon[i].Y
		signed += cross
		cx += (polygon[i].X + polygon[j].X) * cross
		cy += (polygon[i].Y + polygon[j].Y) * cross
	}
	if math.Abs(signed) < 1e-12 {
		return Centroid(polygon)
	}
	f := 1.0 / (3.0 * signed)
	return Point2D{X: cx * f, Y: cy * f}
}

// PolygonPerimeter returns the perimeter length of a closed polygon.
func PolygonPerimeter(polygon []Point2D) float64 {
	if len(polygon) < 2 {
		return 0
	}
	var sum float64
	n := len(polygon)
	for i := 0; i < n; i++ {
		sum += polygon[i].Distance(polygon[(i+1)%n])
	}
	return sum
}

// PointInPolygon returns true if (x, y) is inside the polygon, using the
// even-odd ray casting rule.
func PointInPolygon(x, y float64, polygon []Point2D) bool {
	if len(polygon) < 3 {
		return false
	}
	inside := false
	n := len(polygon)
	j := n - 1
	for i := 0; i < n; i++ {
		pi, pj := polygon[i], polygon[j]
		if (pi.Y > y) != (pj.Y > y) &&
			x < (pj.X-pi.X)*(y-pi.Y)/(pj.Y-pi.Y)+pi.X {
			inside = !inside
		}
		j = i
	}
	return inside
}

// TranslatePolygon returns a copy of the polygon shifted by (dx, dy).
func TranslatePolygon(polygon []Point2D, dx, dy float64) []Point2D {
	out := make([]Point2D, len(polygon))
	for i, p := range polygon {
		out[i] = Point2D{X: p.X + dx, Y: p.Y + dy}
	}
	return out
}
