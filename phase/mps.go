package phase

import (
	"math"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/kdtree"

	"go.viam.com/slrig/logging"
	"go.viam.com/slrig/rimage"
	"go.viam.com/slrig/utils"
)

// maxSimultaneousWraps bounds how many wavelengths may wrap at the same boundary, since each
// such boundary adds 2^n - 2 wrapped tuples.
const maxSimultaneousWraps = 16

// MPS unwraps phase images of several simultaneously used fringe wavelengths. Every position
// along the pattern has a tuple of period orders, one per wavelength; projecting the vector of
// wrapped phases along the direction all wavelengths advance together maps every tuple to a
// distinct constellation point, so the period orders of a pixel are those of the nearest point.
//
// An MPS is immutable once built and may be used from several goroutines.
type MPS struct {
	width       float64
	wavelengths []float64
	counts      []int64
	span        int64

	projection [][]float64
	weights    []float64
	tuples     [][]float64
	regular    int
	points     constellation
	tree       *kdtree.Tree
}

// NewMPS prepares unwrapping for fringes of the given wavelengths (pixels per period) over a
// pattern width pixels wide. Every wavelength should divide width into a whole number of periods;
// counts that are not whole are rounded and counts sharing a common factor are reduced, both with
// a warning, as they indicate a calibration problem.
func NewMPS(width float64, wavelengths []float64, logger logging.Logger) (*MPS, error) {
	if len(wavelengths) < 2 {
		return nil, errors.Errorf("need at least two wavelengths, got %d", len(wavelengths))
	}
	if !(width > 0) {
		return nil, errors.Errorf("pattern width must be positive, got %g", width)
	}
	counts := make([]int64, len(wavelengths))
	for i, lambda := range wavelengths {
		if !(lambda > 0) {
			return nil, errors.Errorf("wavelength %d must be positive, got %g", i, lambda)
		}
		c, whole := utils.WholeNumber(width / lambda)
		if c <= 0 {
			return nil, errors.Errorf("wavelength %g does not fit into width %g", lambda, width)
		}
		if !whole {
			logger.Warnw("wavelength does not divide the pattern width, rounding period count",
				"wavelength", lambda, "width", width, "periods", width/lambda, "rounded", c)
		}
		counts[i] = c
	}

	if g := utils.GCDOf(counts...); g > 1 {
		logger.Warnw("period counts are not relatively prime, reducing unambiguous range",
			"counts", counts, "gcd", g, "range", width/float64(g))
		for i := range counts {
			counts[i] /= g
		}
		width /= float64(g)
	}

	span, err := utils.LCMOf(counts...)
	if err != nil {
		return nil, errors.Wrap(err, "period counts")
	}
	regular, err := PeriodTuples(counts)
	if err != nil {
		return nil, err
	}
	wrapped, err := WrappedTuples(counts)
	if err != nil {
		return nil, err
	}
	projection, err := Projection(counts)
	if err != nil {
		return nil, err
	}

	m := &MPS{
		width:       width,
		wavelengths: append([]float64(nil), wavelengths...),
		counts:      counts,
		span:        span,
		regular:     len(regular),
	}
	rows, _ := projection.Dims()
	for r := 0; r < rows; r++ {
		m.projection = append(m.projection, mat.Row(nil, r, projection))
	}

	var total float64
	m.weights = make([]float64, len(counts))
	for i, c := range counts {
		// 1/λ² up to a common factor
		m.weights[i] = float64(c * c)
		total += m.weights[i]
	}
	floats.Scale(1/total, m.weights)

	for _, t := range append(regular, wrapped...) {
		tuple := make([]float64, len(t))
		for i, k := range t {
			tuple[i] = float64(k)
		}
		m.tuples = append(m.tuples, tuple)
	}
	m.points = make(constellation, len(m.tuples))
	for i, tuple := range m.tuples {
		coords := m.project(tuple)
		floats.Scale(-1, coords)
		m.points[i] = constellationPoint{coords: coords, tuple: i}
	}
	m.tree = kdtree.New(append(constellation(nil), m.points...), false)

	logger.Debugw("built mps constellation", "counts", counts, "range", width,
		"tuples", len(regular), "wrapped_tuples", len(wrapped))
	return m, nil
}

// Counts returns the number of periods of every wavelength over the unambiguous range.
func (m *MPS) Counts() []int64 {
	return append([]int64(nil), m.counts...)
}

// Range returns the unambiguous range in pixels.
func (m *MPS) Range() float64 {
	return m.width
}

// Tuples returns every period order tuple of the constellation: the tuples of the segments
// between period boundaries first, then the tuples of simultaneous wraps.
func (m *MPS) Tuples() [][]float64 {
	out := make([][]float64, len(m.tuples))
	for i, t := range m.tuples {
		out[i] = append([]float64(nil), t...)
	}
	return out
}

// Constellation returns the projected point of every tuple, in Tuples order.
func (m *MPS) Constellation() [][]float64 {
	out := make([][]float64, len(m.points))
	for i, p := range m.points {
		out[i] = append([]float64(nil), p.coords...)
	}
	return out
}

func (m *MPS) project(v []float64) []float64 {
	out := make([]float64, len(m.projection))
	for r, row := range m.projection {
		out[r] = floats.Dot(row, v)
	}
	return out
}

// Nearest returns the period order tuple for a vector of normalized wrapped phases (each in
// [0, 1)) and the distance to its constellation point.
func (m *MPS) Nearest(w []float64) ([]float64, float64) {
	idx, dist := m.nearest(w)
	return append([]float64(nil), m.tuples[idx]...), dist
}

func (m *MPS) nearest(w []float64) (int, float64) {
	q := constellationPoint{coords: m.project(w)}
	nearest, dist := m.tree.Nearest(q)
	return nearest.(constellationPoint).tuple, math.Sqrt(dist)
}

// UnwrapPoint returns the absolute position in [0, 1) over the unambiguous range for a vector
// of normalized wrapped phases, and the distance to the nearest constellation point.
func (m *MPS) UnwrapPoint(w []float64) (float64, float64) {
	idx, dist := m.nearest(w)
	var t float64
	for i, k := range m.tuples[idx] {
		t += m.weights[i] * (k + w[i]) / float64(m.counts[i])
	}
	t -= math.Floor(t)
	if t >= 1 {
		t = 0
	}
	return t, dist
}

// Unwrap unwraps one wrapped phase image per wavelength, in the order the wavelengths were given,
// each in [0, 2π). It returns the absolute phase in [0, 1) over the unambiguous range and the
// distance of every pixel to its constellation point, which grows with phase noise.
func (m *MPS) Unwrap(wrapped []*rimage.FloatImage) (*rimage.FloatImage, *rimage.FloatImage, error) {
	if len(wrapped) != len(m.counts) {
		return nil, nil, errors.Errorf("need %d wrapped phase images, got %d", len(m.counts), len(wrapped))
	}
	for i, img := range wrapped {
		if img == nil || !img.SameSize(wrapped[0]) {
			return nil, nil, errors.Wrapf(ErrSizeMismatch, "wrapped phase %d", i)
		}
	}
	width, height := wrapped[0].Width(), wrapped[0].Height()
	abs := rimage.NewFloatImage(width, height)
	dist := rimage.NewFloatImage(width, height)
	w := make([]float64, len(wrapped))
	for p := range abs.Data {
		for i, img := range wrapped {
			w[i] = wrapPhase(img.Data[p]) / (2 * math.Pi)
		}
		abs.Data[p], dist.Data[p] = m.UnwrapPoint(w)
	}
	return abs, dist, nil
}

// boundary is a position, in units of 1/lcm(counts) of the range, where the wavelengths in wraps
// start a new period. orders are the period orders right after it.
type boundary struct {
	at     int64
	wraps  []int
	orders []int64
}

func boundaries(counts []int64) ([]boundary, error) {
	span, err := utils.LCMOf(counts...)
	if err != nil {
		return nil, err
	}
	wraps := map[int64][]int{}
	for i, c := range counts {
		if c <= 0 {
			return nil, errors.Errorf("period count %d must be positive, got %d", i, c)
		}
		step := span / c
		for j := int64(0); j < c; j++ {
			wraps[j*step] = append(wraps[j*step], i)
		}
	}
	out := make([]boundary, 0, len(wraps))
	for at, w := range wraps {
		orders := make([]int64, len(counts))
		for i, c := range counts {
			orders[i] = at / (span / c)
		}
		out = append(out, boundary{at: at, wraps: w, orders: orders})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].at < out[j].at })
	return out, nil
}

// PeriodTuples returns the period orders of every segment between consecutive period boundaries
// over the unambiguous range, in order along the pattern.
func PeriodTuples(counts []int64) ([][]int64, error) {
	bounds, err := boundaries(counts)
	if err != nil {
		return nil, err
	}
	out := make([][]int64, len(bounds))
	for i, b := range bounds {
		out[i] = b.orders
	}
	return out, nil
}

// WrappedTuples returns the tuples of boundaries where several wavelengths wrap at once: with
// phase noise any subset of them can appear already wrapped while the rest have not wrapped yet.
// At the start of the range not having wrapped yet means period order -1.
func WrappedTuples(counts []int64) ([][]int64, error) {
	bounds, err := boundaries(counts)
	if err != nil {
		return nil, err
	}
	var out [][]int64
	for _, b := range bounds {
		n := len(b.wraps)
		if n < 2 {
			continue
		}
		if n > maxSimultaneousWraps {
			return nil, errors.Errorf("%d wavelengths wrap at the same position, at most %d are supported",
				n, maxSimultaneousWraps)
		}
		for subset := 1; subset < (1<<n)-1; subset++ {
			tuple := append([]int64(nil), b.orders...)
			for bit, i := range b.wraps {
				if subset&(1<<bit) == 0 {
					tuple[i]--
				}
			}
			out = append(out, tuple)
		}
	}
	return out, nil
}

// Projection returns the (D-1)xD matrix whose orthonormal rows span the complement of the
// direction vector of the period counts. Wrapped phase vectors on one segment all project onto
// the same point.
func Projection(counts []int64) (*mat.Dense, error) {
	d := len(counts)
	if d < 2 {
		return nil, errors.Errorf("need at least two period counts, got %d", d)
	}
	dir := make([]float64, d)
	for i, c := range counts {
		dir[i] = float64(c)
	}
	floats.Scale(1/floats.Norm(dir, 2), dir)

	var svd mat.SVD
	if ok := svd.Factorize(mat.NewDense(1, d, dir), mat.SVDFull); !ok {
		return nil, errors.New("svd of period direction failed")
	}
	var v mat.Dense
	svd.VTo(&v)
	// the first right singular vector is the direction itself
	out := mat.DenseCopyOf(v.Slice(0, d, 1, d).T())
	return out, nil
}
