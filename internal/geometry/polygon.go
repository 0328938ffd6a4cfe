// Package geometry provides the point-in-polygon containment test used to
// decide whether a tracked vehicle centroid falls inside a slot's geofence.
package geometry

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Polygon []Point

// Contains reports whether pt lies inside the polygon, using the even-odd
// ray casting rule. Points exactly on an edge count as inside, matching the
// upstream detector's pointPolygonTest(..., measureDist=false) >= 0 contract.
func (p Polygon) Contains(pt Point) bool {
	if len(p) < 3 {
		return false
	}
	if p.onBoundary(pt) {
		return true
	}
	inside := false
	j := len(p) - 1
	for i := 0; i < len(p); i++ {
		if (p[i].Y > pt.Y) != (p[j].Y > pt.Y) {
			cross := (p[j].X-p[i].X)*(pt.Y-p[i].Y)/(p[j].Y-p[i].Y) + p[i].X
			if pt.X < cross {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

func (p Polygon) onBoundary(pt Point) bool {
	j := len(p) - 1
	for i := 0; i < len(p); i++ {
		if onSegment(p[j], p[i], pt) {
			return true
		}
		j = i
	}
	return false
}

func onSegment(a, b, pt Point) bool {
	cross := (b.X-a.X)*(pt.Y-a.Y) - (b.Y-a.Y)*(pt.X-a.X)
	if cross != 0 {
		return false
	}
	return min(a.X, b.X) <= pt.X && pt.X <= max(a.X, b.X) &&
		min(a.Y, b.Y) <= pt.Y && pt.Y <= max(a.Y, b.Y)
}
