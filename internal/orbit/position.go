package orbit

import (
	"errors"
	"fmt"
	"math"

	"github.com/star/orrery/internal/transform"
	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultSamples is the number of points in an orbit path.
const DefaultSamples = 360

// ErrInvalidSamples is returned when an orbit path is requested with fewer
// than one sample.
var ErrInvalidSamples = errors.New("orbit path requires at least one sample")

type config struct {
	scale   float64
	samples int
	origin  r3.Vec
	maxIter int
}

func defaultConfig() config {
	return config{
		scale:   transform.DefaultOrbitScale,
		samples: DefaultSamples,
		maxIter: MaxKeplerIterations,
	}
}

// Option customizes ComputePosition and ComputeOrbitPath.
type Option func(*config)

// WithScale sets the output units per AU (default transform.DefaultOrbitScale).
func WithScale(scale float64) Option {
	return func(c *config) { c.scale = scale }
}

// WithSamples sets the number of orbit path points.
func WithSamples(n int) Option {
	return func(c *config) { c.samples = n }
}

// WithOrigin translates every returned point by origin. Satellites use their
// parent's position here.
func WithOrigin(origin r3.Vec) Option {
	return func(c *config) { c.origin = origin }
}

// WithMaxIterations overrides the Kepler iteration bound.
func WithMaxIterations(n int) Option {
	return func(c *config) { c.maxIter = n }
}

func buildConfig(opts []Option) config {
	c := defaultConfig()
	for _, o := range opts {
		o(&c)
	}
	return c
}

// ComputePosition returns the ecliptic J2000 position of a body with elements
// el at Julian Date jd, multiplied by the configured scale.
func ComputePosition(jd float64, el Elements, opts ...Option) (r3.Vec, error) {
	c := buildConfig(opts)
	s := Propagate(el, jd)

	E, err := SolveKeplerN(s.MeanAnomalyDeg*math.Pi/180, s.Eccentricity, c.maxIter)
	if err != nil {
		return r3.Vec{}, err
	}

	p := transform.Project(s.SemiMajorAxisAU, s.Eccentricity, E,
		s.InclinationDeg, s.ArgPeriapsisDeg, s.AscendingNodeDeg, c.scale)
	return r3.Add(p, c.origin), nil
}

// ComputeOrbitPath traces the full ellipse of el as it stands at jd. Points
// are sampled at evenly spaced mean anomalies k·360°/n for k = 0..n−1, so the
// path does not repeat its first point. The body's current mean anomaly does
// not affect the result.
func ComputeOrbitPath(jd float64, el Elements, opts ...Option) ([]r3.Vec, error) {
	c := buildConfig(opts)
	if c.samples < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSamples, c.samples)
	}

	s := Propagate(el, jd)
	rot := transform.NewEclipticRotation(s.InclinationDeg, s.ArgPeriapsisDeg, s.AscendingNodeDeg)

	path := make([]r3.Vec, 0, c.samples)
	for _, mDeg := range SampleAnomalies(c.samples) {
		E, err := SolveKeplerN(mDeg*math.Pi/180, s.Eccentricity, c.maxIter)
		if err != nil {
			return nil, err
		}
		xp, yp := transform.OrbitalPlane(s.SemiMajorAxisAU, s.Eccentricity, E)
		path = append(path, r3.Add(rot.Apply(xp, yp, c.scale), c.origin))
	}
	return path, nil
}

// SampleAnomalies returns n mean anomalies in degrees, k·360/n for k = 0..n−1.
// It returns nil for n < 1.
func SampleAnomalies(n int) []float64 {
	if n < 1 {
		return nil
	}
	out := make([]float64, n)
	step := 360.0 / float64(n)
	for k := range out {
		out[k] = float64(k) * step
	}
	return out
}
