package powerspec

import "fmt"

// spline is a natural cubic spline, adapted from the teacher's
// math/interpolate.Spline: same tridiagonal second-derivative solve and
// per-segment cubic coefficients, but returning errors instead of calling
// log.Fatal, since this is consumed deep inside the synthesis hot path
// rather than from a CLI tool.
type spline struct {
	xs, ys, y2s []float64
	coeffs      []splineCoeff
	incr        bool
	dx          float64
}

type splineCoeff struct {
	a, b, c, d float64
}

func newSpline(xs, ys []float64) (*spline, error) {
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("powerspec: len(xs) = %d but len(ys) = %d", len(xs), len(ys))
	}
	if len(xs) <= 1 {
		return nil, fmt.Errorf("powerspec: table has length %d, need at least 2 points", len(xs))
	}

	sp := &spline{
		xs:     make([]float64, len(xs)),
		ys:     make([]float64, len(xs)),
		y2s:    make([]float64, len(xs)),
		coeffs: make([]splineCoeff, len(xs)-1),
	}

	if xs[0] < xs[1] {
		sp.incr = true
		for i := 0; i < len(xs)-1; i++ {
			if xs[i+1] < xs[i] {
				return nil, fmt.Errorf("powerspec: table not sorted at index %d", i)
			}
		}
	} else {
		sp.incr = false
		for i := 0; i < len(xs)-1; i++ {
			if xs[i+1] > xs[i] {
				return nil, fmt.Errorf("powerspec: table not sorted at index %d", i)
			}
		}
	}

	sp.dx = (xs[len(xs)-1] - xs[0]) / float64(len(xs)-1)
	copy(sp.xs, xs)
	copy(sp.ys, ys)

	if err := sp.calcY2s(); err != nil {
		return nil, err
	}
	sp.calcCoeffs()
	return sp, nil
}

func (sp *spline) eval(x float64) (float64, error) {
	if (x < sp.xs[0]) == sp.incr || (x > sp.xs[len(sp.xs)-1]) == sp.incr {
		return 0, fmt.Errorf("powerspec: point %g out of spline bounds [%g, %g]",
			x, sp.xs[0], sp.xs[len(sp.xs)-1])
	}

	i := sp.bsearch(x)
	dx := x - sp.xs[i]
	c := sp.coeffs[i]
	return c.a*dx*dx*dx + c.b*dx*dx + c.c*dx + c.d, nil
}

func (sp *spline) bsearch(x float64) int {
	guess := int((x - sp.xs[0]) / sp.dx)
	if guess >= 0 && guess < len(sp.xs)-1 &&
		(sp.xs[guess] <= x) == sp.incr && (sp.xs[guess+1] >= x) == sp.incr {
		return guess
	}

	lo, hi := 0, len(sp.xs)-1
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if sp.incr == (x >= sp.xs[mid]) {
			lo = mid
		} else {
			hi = mid
		}
	}
	if lo == len(sp.xs)-1 {
		lo--
	}
	return lo
}

func (sp *spline) calcY2s() error {
	n := len(sp.xs)
	as, bs := make([]float64, n-2), make([]float64, n-2)
	cs, rs := make([]float64, n-2), make([]float64, n-2)

	sp.y2s[0], sp.y2s[n-1] = 0, 0

	xs, ys := sp.xs, sp.ys
	for i := range rs {
		j := i + 1
		as[i] = (xs[j] - xs[j-1]) / 6
		bs[i] = (xs[j+1] - xs[j-1]) / 3
		cs[i] = (xs[j+1] - xs[j]) / 6
		rs[i] = ((ys[j+1]-ys[j])/(xs[j+1]-xs[j]) - (ys[j]-ys[j-1])/(xs[j]-xs[j-1]))
	}

	return triDiagAt(as, bs, cs, rs, sp.y2s[1:n-1])
}

func (sp *spline) calcCoeffs() {
	coeffs, xs, ys, y2s := sp.coeffs, sp.xs, sp.ys, sp.y2s
	for i := range coeffs {
		coeffs[i].a = (y2s[i+1] - y2s[i]) / (6 * (xs[i+1] - xs[i]))
		coeffs[i].b = y2s[i] / 2
		coeffs[i].c = (ys[i+1]-ys[i])/(xs[i+1]-xs[i]) - (xs[i+1]-xs[i])*(y2s[i]/3+y2s[i+1]/6)
		coeffs[i].d = ys[i]
	}
}

// triDiagAt solves a tridiagonal system in place, same algorithm as the
// teacher's interpolate.TriDiagAt.
func triDiagAt(as, bs, cs, rs, out []float64) error {
	if len(as) != len(bs) || len(as) != len(cs) || len(as) != len(out) || len(as) != len(rs) {
		return fmt.Errorf("powerspec: tridiagonal solve given mismatched slice lengths")
	}

	tmp := make([]float64, len(as))
	beta := bs[0]
	if beta == 0 {
		return fmt.Errorf("powerspec: tridiagonal solve is singular")
	}
	out[0] = rs[0] / beta

	for i := 1; i < len(out); i++ {
		tmp[i] = cs[i-1] / beta
		beta = bs[i] - as[i]*tmp[i]
		if beta == 0 {
			return fmt.Errorf("powerspec: tridiagonal solve is singular")
		}
		out[i] = (rs[i] - as[i]*out[i-1]) / beta
	}

	for i := len(out) - 2; i >= 0; i-- {
		out[i] -= tmp[i+1] * out[i+1]
	}
	return nil
}
