package orbit

import (
	"errors"
	"math"
	"testing"

	"github.com/star/orrery/internal/transform"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/spatial/r3"
)

// earth is the JPL J2000 element set for the Earth-Moon barycenter.
var earth = Elements{
	SemiMajorAxisAU: 1.00000261, SemiMajorAxisRate: 0.00000562,
	Eccentricity: 0.01671123, EccentricityRate: -0.00004392,
	InclinationDeg: -0.00001531, InclinationRate: -0.01294668,
	MeanLongitudeDeg: 100.46457166, MeanLongitudeRate: 35999.37244981,
	PerihelionLongitudeDeg: 102.93768193, PerihelionLongitudeRate: 0.32327364,
}

var mars = Elements{
	SemiMajorAxisAU: 1.52371034, SemiMajorAxisRate: 0.00001847,
	Eccentricity: 0.09339410, EccentricityRate: 0.00007882,
	InclinationDeg: 1.84969142, InclinationRate: -0.00813131,
	MeanLongitudeDeg: -4.55343205, MeanLongitudeRate: 19140.30268499,
	PerihelionLongitudeDeg: -23.94362959, PerihelionLongitudeRate: 0.44441088,
	AscendingNodeDeg: 49.55953891, AscendingNodeRate: -0.29257343,
}

func TestPropagate_AtJ2000ReturnsInputs(t *testing.T) {
	s := Propagate(mars, transform.J2000)

	if s.SemiMajorAxisAU != mars.SemiMajorAxisAU ||
		s.Eccentricity != mars.Eccentricity ||
		s.InclinationDeg != mars.InclinationDeg ||
		s.MeanLongitudeDeg != mars.MeanLongitudeDeg ||
		s.PerihelionLongitudeDeg != mars.PerihelionLongitudeDeg ||
		s.AscendingNodeDeg != mars.AscendingNodeDeg {
		t.Errorf("Propagate at J2000 = %+v, want inputs %+v", s, mars)
	}
	if want := mars.PerihelionLongitudeDeg - mars.AscendingNodeDeg; s.ArgPeriapsisDeg != want {
		t.Errorf("ArgPeriapsisDeg = %v, want %v", s.ArgPeriapsisDeg, want)
	}
	if want := mars.MeanLongitudeDeg - mars.PerihelionLongitudeDeg; !scalar.EqualWithinAbs(s.MeanAnomalyDeg, want, 1e-12) {
		t.Errorf("MeanAnomalyDeg = %v, want %v", s.MeanAnomalyDeg, want)
	}
}

func TestPropagate_OneCentury(t *testing.T) {
	s := Propagate(mars, transform.J2000+transform.DaysPerCentury)

	if want := mars.SemiMajorAxisAU + mars.SemiMajorAxisRate; !scalar.EqualWithinAbs(s.SemiMajorAxisAU, want, 1e-12) {
		t.Errorf("a = %v, want %v", s.SemiMajorAxisAU, want)
	}
	if want := mars.AscendingNodeDeg + mars.AscendingNodeRate; !scalar.EqualWithinAbs(s.AscendingNodeDeg, want, 1e-9) {
		t.Errorf("node = %v, want %v", s.AscendingNodeDeg, want)
	}
	if s.MeanAnomalyDeg <= -180 || s.MeanAnomalyDeg > 180 {
		t.Errorf("MeanAnomalyDeg = %v, outside (-180, 180]", s.MeanAnomalyDeg)
	}
}

func TestNormalizeDeg180(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{180, 180},
		{-180, 180},
		{181, -179},
		{-181, 179},
		{360, 0},
		{540, 180},
		{-540, 180},
		{720.5, 0.5},
		{19140.3, 60.3},
	}
	for _, tt := range tests {
		if got := NormalizeDeg180(tt.in); !scalar.EqualWithinAbs(got, tt.want, 1e-9) {
			t.Errorf("NormalizeDeg180(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestComputePosition_EarthAtJ2000(t *testing.T) {
	p, err := ComputePosition(transform.J2000, earth, WithScale(1))
	if err != nil {
		t.Fatalf("ComputePosition: %v", err)
	}

	// Heliocentric longitude of the Earth at J2000 is ~100.38°, distance ~0.9833 AU.
	lon := math.Atan2(p.Y, p.X) * 180 / math.Pi
	if math.Abs(lon-100.38) > 0.05 {
		t.Errorf("Earth longitude = %.4f°, want ~100.38°", lon)
	}
	if r := r3.Norm(p); math.Abs(r-0.98331) > 1e-4 {
		t.Errorf("Earth distance = %.6f AU, want ~0.98331", r)
	}
	if math.Abs(p.Z) > 1e-6 {
		t.Errorf("Earth z = %v, want ~0", p.Z)
	}
}

func TestComputePosition_MagnitudeWithinApsides(t *testing.T) {
	for _, jd := range []float64{2440587.5, transform.J2000, 2460600.5, 2488069.5} {
		p, err := ComputePosition(jd, earth)
		if err != nil {
			t.Fatalf("ComputePosition(%v): %v", jd, err)
		}
		s := Propagate(earth, jd)
		r := r3.Norm(p)
		lo := s.SemiMajorAxisAU * (1 - s.Eccentricity) * transform.DefaultOrbitScale
		hi := s.SemiMajorAxisAU * (1 + s.Eccentricity) * transform.DefaultOrbitScale
		if r < lo-1e-9 || r > hi+1e-9 {
			t.Errorf("jd %v: |p| = %v, want within [%v, %v]", jd, r, lo, hi)
		}
	}
}

func TestComputePosition_ScaleLinearity(t *testing.T) {
	jd := 2460600.5
	p1, err := ComputePosition(jd, mars, WithScale(1))
	if err != nil {
		t.Fatal(err)
	}
	p50, err := ComputePosition(jd, mars, WithScale(50))
	if err != nil {
		t.Fatal(err)
	}
	want := r3.Scale(50, p1)
	if !scalar.EqualWithinAbs(p50.X, want.X, 1e-9) ||
		!scalar.EqualWithinAbs(p50.Y, want.Y, 1e-9) ||
		!scalar.EqualWithinAbs(p50.Z, want.Z, 1e-9) {
		t.Errorf("scale 50 = %+v, want %+v", p50, want)
	}
}

func TestComputePosition_Deterministic(t *testing.T) {
	a, _ := ComputePosition(2460000.25, mars)
	b, _ := ComputePosition(2460000.25, mars)
	if a != b {
		t.Errorf("repeated ComputePosition differ: %+v vs %+v", a, b)
	}
}

func TestComputePosition_Origin(t *testing.T) {
	origin := r3.Vec{X: 10, Y: -5, Z: 2}
	base, _ := ComputePosition(2460000.25, mars)
	moved, _ := ComputePosition(2460000.25, mars, WithOrigin(origin))
	if got := r3.Sub(moved, base); r3.Norm(r3.Sub(got, origin)) > 1e-12 {
		t.Errorf("origin offset = %+v, want %+v", got, origin)
	}
}

func TestComputePosition_Hyperbolic(t *testing.T) {
	el := mars
	el.Eccentricity = 1.2
	_, err := ComputePosition(transform.J2000, el)
	if !errors.Is(err, ErrNonConvergent) {
		t.Errorf("error = %v, want ErrNonConvergent", err)
	}
}

func TestComputePosition_NaNPassesThrough(t *testing.T) {
	el := mars
	el.SemiMajorAxisAU = math.NaN()
	p, err := ComputePosition(transform.J2000, el)
	if err != nil {
		t.Fatalf("error = %v, want nil", err)
	}
	if transform.ValidatePosition(p) {
		t.Errorf("position = %+v, want NaN coordinates", p)
	}
}

func TestComputeOrbitPath_DefaultSamples(t *testing.T) {
	path, err := ComputeOrbitPath(transform.J2000, mars, WithScale(1))
	if err != nil {
		t.Fatalf("ComputeOrbitPath: %v", err)
	}
	if len(path) != DefaultSamples {
		t.Fatalf("len(path) = %d, want %d", len(path), DefaultSamples)
	}

	s := Propagate(mars, transform.J2000)
	// k=0 is periapsis and k=n/2 is apoapsis.
	if r := r3.Norm(path[0]); !scalar.EqualWithinAbs(r, s.SemiMajorAxisAU*(1-s.Eccentricity), 1e-9) {
		t.Errorf("|path[0]| = %v, want periapsis distance", r)
	}
	if r := r3.Norm(path[180]); !scalar.EqualWithinAbs(r, s.SemiMajorAxisAU*(1+s.Eccentricity), 1e-9) {
		t.Errorf("|path[180]| = %v, want apoapsis distance", r)
	}

	// No closing duplicate.
	if r3.Norm(r3.Sub(path[0], path[len(path)-1])) < 1e-6 {
		t.Error("first and last points coincide")
	}
}

func TestComputeOrbitPath_IgnoresCurrentAnomaly(t *testing.T) {
	a := mars
	b := mars
	b.MeanLongitudeDeg += 123.4

	pa, err := ComputeOrbitPath(transform.J2000, a)
	if err != nil {
		t.Fatal(err)
	}
	pb, err := ComputeOrbitPath(transform.J2000, b)
	if err != nil {
		t.Fatal(err)
	}
	for k := range pa {
		if pa[k] != pb[k] {
			t.Fatalf("point %d differs: %+v vs %+v", k, pa[k], pb[k])
		}
	}
}

func TestComputeOrbitPath_OriginAndSamples(t *testing.T) {
	origin := r3.Vec{X: 1, Y: 2, Z: 3}
	base, err := ComputeOrbitPath(2460600.5, mars, WithSamples(12))
	if err != nil {
		t.Fatal(err)
	}
	moved, err := ComputeOrbitPath(2460600.5, mars, WithSamples(12), WithOrigin(origin))
	if err != nil {
		t.Fatal(err)
	}
	if len(base) != 12 || len(moved) != 12 {
		t.Fatalf("lengths = %d, %d, want 12", len(base), len(moved))
	}
	for k := range base {
		if d := r3.Norm(r3.Sub(r3.Sub(moved[k], base[k]), origin)); d > 1e-12 {
			t.Errorf("point %d not translated by origin (off by %v)", k, d)
		}
	}
}

func TestComputeOrbitPath_InvalidSamples(t *testing.T) {
	for _, n := range []int{0, -1} {
		_, err := ComputeOrbitPath(transform.J2000, mars, WithSamples(n))
		if !errors.Is(err, ErrInvalidSamples) {
			t.Errorf("samples=%d: error = %v, want ErrInvalidSamples", n, err)
		}
	}
}

func TestSampleAnomalies(t *testing.T) {
	got := SampleAnomalies(4)
	want := []float64{0, 90, 180, 270}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("SampleAnomalies(4)[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	steps := SampleAnomalies(360)
	for k := 1; k < len(steps); k++ {
		if d := steps[k] - steps[k-1]; !scalar.EqualWithinAbs(d, 1, 1e-9) {
			t.Fatalf("step %d = %v, want 1°", k, d)
		}
	}

	if SampleAnomalies(0) != nil {
		t.Error("SampleAnomalies(0) should be nil")
	}
}
