package mesh

import "github.com/fer004/Sensores/internal/model"

// Locate returns the index of a simplex enclosing p, boundary included, or
// NotFound when p is outside the convex hull. When p lies on a shared edge the
// first simplex in construction order wins.
func (m *Mesh) Locate(p model.Coordinate) int {
	if m == nil || !p.Finite() {
		return NotFound
	}
	for i, s := range m.simplices {
		if inTriangle(m.points[s[0]], m.points[s[1]], m.points[s[2]], p) {
			return i
		}
	}
	return NotFound
}
