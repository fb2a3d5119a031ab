package phase

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// constellationPoint is a projected period order tuple. tuple indexes MPS.tuples.
type constellationPoint struct {
	coords []float64
	tuple  int
}

// Compare returns the signed distance of p from the plane through c perpendicular to d.
func (p constellationPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(constellationPoint)
	return p.coords[d] - q.coords[d]
}

// Dims returns the number of dimensions of the projected space.
func (p constellationPoint) Dims() int {
	return len(p.coords)
}

// Distance returns the squared euclidean distance between p and c.
func (p constellationPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(constellationPoint)
	d := floats.Distance(p.coords, q.coords, 2)
	return d * d
}

// constellation is a kdtree.Interface over projected tuples.
type constellation []constellationPoint

func (c constellation) Index(i int) kdtree.Comparable {
	return c[i]
}

func (c constellation) Len() int {
	return len(c)
}

func (c constellation) Pivot(d kdtree.Dim) int {
	return constellationPlane{constellation: c, Dim: d}.Pivot()
}

func (c constellation) Slice(start, end int) kdtree.Interface {
	return c[start:end]
}

// constellationPlane sorts a constellation along one dimension.
type constellationPlane struct {
	kdtree.Dim
	constellation
}

func (p constellationPlane) Less(i, j int) bool {
	return p.constellation[i].coords[p.Dim] < p.constellation[j].coords[p.Dim]
}

func (p constellationPlane) Pivot() int {
	return kdtree.Partition(p, kdtree.MedianOfMedians(p))
}

func (p constellationPlane) Slice(start, end int) kdtree.SortSlicer {
	p.constellation = p.constellation[start:end]
	return p
}

func (p constellationPlane) Swap(i, j int) {
	p.constellation[i], p.constellation[j] = p.constellation[j], p.constellation[i]
}
