package orbit

import (
	"errors"
	"fmt"
	"math"
)

// MaxKeplerIterations bounds the Newton-Raphson loop in SolveKepler.
// Elliptic orbits with e up to ~0.97 converge in well under 20 steps.
const MaxKeplerIterations = 100

// keplerTolerance is the stopping threshold on |E − e·sin E − M| (radians).
const keplerTolerance = 1e-6

// ErrNonConvergent is returned when Kepler's equation cannot be solved for the
// given inputs, either because the orbit is not elliptic (e ≥ 1) or because the
// iteration bound was reached.
var ErrNonConvergent = errors.New("kepler solver did not converge")

// SolveKepler solves Kepler's equation M = E − e·sin E for the eccentric
// anomaly E (radians) using Newton-Raphson iteration starting at E₀ = M.
//
// e = 0 returns M unchanged. NaN inputs yield NaN with a nil error so that
// degenerate elements surface as NaN coordinates downstream.
func SolveKepler(meanAnomalyRad, e float64) (float64, error) {
	return SolveKeplerN(meanAnomalyRad, e, MaxKeplerIterations)
}

// SolveKeplerN is SolveKepler with an explicit iteration bound.
func SolveKeplerN(meanAnomalyRad, e float64, maxIter int) (float64, error) {
	M := meanAnomalyRad
	if math.IsNaN(M) || math.IsNaN(e) {
		return math.NaN(), nil
	}
	if e == 0 {
		return M, nil
	}
	if e < 0 || e >= 1 {
		return 0, fmt.Errorf("%w: eccentricity %.6f outside [0, 1)", ErrNonConvergent, e)
	}
	if maxIter < 1 {
		maxIter = MaxKeplerIterations
	}

	E := M
	for i := 0; i < maxIter; i++ {
		sinE, cosE := math.Sincos(E)
		f := E - e*sinE - M
		if math.Abs(f) < keplerTolerance {
			return E, nil
		}
		E -= f / (1 - e*cosE)
	}

	// The last update may have landed inside tolerance.
	if math.Abs(E-e*math.Sin(E)-M) < keplerTolerance {
		return E, nil
	}
	return 0, fmt.Errorf("%w: M=%.6f rad e=%.6f after %d iterations", ErrNonConvergent, M, e, maxIter)
}
