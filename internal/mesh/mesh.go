// Package mesh builds a Delaunay triangulation over sensor coordinates and
// locates query points inside it.
package mesh

import "github.com/fer004/Sensores/internal/model"

// NotFound is the simplex index reported when a point lies outside the mesh.
const NotFound = -1

// Simplex is a counter-clockwise triangle given as indices into the
// coordinate slice the mesh was built from.
type Simplex [3]int

// Mesh is an immutable triangulation. It is safe for concurrent readers.
type Mesh struct {
	points    []model.Coordinate
	simplices []Simplex
}

// Len returns the number of simplices.
func (m *Mesh) Len() int {
	if m == nil {
		return 0
	}
	return len(m.simplices)
}

// Simplex returns the i-th simplex.
func (m *Mesh) Simplex(i int) Simplex {
	return m.simplices[i]
}

// Simplices returns a copy of all simplices in construction order.
func (m *Mesh) Simplices() []Simplex {
	out := make([]Simplex, len(m.simplices))
	copy(out, m.simplices)
	return out
}

// Vertices returns the coordinates of the i-th simplex.
func (m *Mesh) Vertices(i int) [3]model.Coordinate {
	s := m.simplices[i]
	return [3]model.Coordinate{m.points[s[0]], m.points[s[1]], m.points[s[2]]}
}

// Point returns the input coordinate at index i.
func (m *Mesh) Point(i int) model.Coordinate {
	return m.points[i]
}
