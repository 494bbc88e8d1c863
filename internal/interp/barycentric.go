// Package interp evaluates piecewise-linear fields over triangles.
package interp

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/fer004/Sensores/internal/model"
)

// ErrSingular is returned when a triangle is degenerate and the barycentric
// system has no stable solution.
var ErrSingular = errors.New("interp: singular barycentric system")

// singularTolerance bounds |det| relative to the product of the edge lengths,
// i.e. the sine of the angle between the two edges at v0.
const singularTolerance = 1e-10

// Weights are barycentric coordinates relative to a triangle's vertices.
type Weights [3]float64

// Sum returns w0+w1+w2.
func (w Weights) Sum() float64 {
	return w[0] + w[1] + w[2]
}

// Inside reports whether every weight is non-negative within tol. Points
// outside the triangle still get weights summing to one.
func (w Weights) Inside(tol float64) bool {
	return w[0] >= -tol && w[1] >= -tol && w[2] >= -tol
}

// Barycentric solves [v1-v0 | v2-v0]·(w1,w2) = p-v0 and returns
// (1-w1-w2, w1, w2).
func Barycentric(p model.Coordinate, tri [3]model.Coordinate) (Weights, error) {
	d1x, d1y := tri[1].Lon-tri[0].Lon, tri[1].Lat-tri[0].Lat
	d2x, d2y := tri[2].Lon-tri[0].Lon, tri[2].Lat-tri[0].Lat

	det := d1x*d2y - d2x*d1y
	scale := math.Hypot(d1x, d1y) * math.Hypot(d2x, d2y)
	if !(scale > 0) || math.IsInf(scale, 0) || math.Abs(det) <= singularTolerance*scale {
		return Weights{}, ErrSingular
	}

	a := mat.NewDense(2, 2, []float64{d1x, d2x, d1y, d2y})
	b := mat.NewVecDense(2, []float64{p.Lon - tri[0].Lon, p.Lat - tri[0].Lat})
	var x mat.VecDense
	if err := x.SolveVec(a, b); err != nil {
		return Weights{}, ErrSingular
	}

	w1, w2 := x.AtVec(0), x.AtVec(1)
	w := Weights{1 - w1 - w2, w1, w2}
	for _, v := range w {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Weights{}, ErrSingular
		}
	}
	return w, nil
}

// Interpolate returns Σ wi·zi for p over tri with vertex values z.
func Interpolate(p model.Coordinate, tri [3]model.Coordinate, z [3]float64) (float64, Weights, error) {
	w, err := Barycentric(p, tri)
	if err != nil {
		return 0, Weights{}, err
	}
	v := w[0]*z[0] + w[1]*z[1] + w[2]*z[2]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, Weights{}, ErrSingular
	}
	return v, w, nil
}
