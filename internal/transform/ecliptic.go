// Package transform provides time-scale and coordinate frame conversions for
// heliocentric body positions.
//
// The primary transform is orbital plane (perifocal) to ecliptic J2000: a body's
// position on its ellipse, expressed through the eccentric anomaly, is rotated
// by the argument of periapsis (ω), the inclination (i) and the longitude of the
// ascending node (Ω). The composed rotation is R3(−Ω)·R1(−i)·R3(−ω).
//
// All outputs are multiplied by a caller-supplied scale so the same routines
// serve both physical units (scale 1, AU) and display units.
//
// Reference: Standish & Williams, "Keplerian Elements for Approximate Positions
// of the Major Planets" (JPL), section 8.10 of the Explanatory Supplement.
package transform

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultOrbitScale is the number of display units per astronomical unit.
const DefaultOrbitScale = 50.0

// degToRad converts degrees to radians.
func degToRad(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// EclipticRotation holds the six non-trivial terms of the perifocal-to-ecliptic
// rotation matrix. The third column is never needed because perifocal z' is 0.
type EclipticRotation struct {
	XX, XY float64
	YX, YY float64
	ZX, ZY float64
}

// NewEclipticRotation precomputes the rotation for the given inclination,
// argument of periapsis and ascending node (all degrees). Useful when rotating
// many points of the same orbit (compute the trig once).
func NewEclipticRotation(inclinationDeg, argPeriapsisDeg, nodeDeg float64) EclipticRotation {
	sinW, cosW := math.Sincos(degToRad(argPeriapsisDeg))
	sinN, cosN := math.Sincos(degToRad(nodeDeg))
	sinI, cosI := math.Sincos(degToRad(inclinationDeg))

	return EclipticRotation{
		XX: cosW*cosN - sinW*sinN*cosI,
		XY: -sinW*cosN - cosW*sinN*cosI,
		YX: cosW*sinN + sinW*cosN*cosI,
		YY: -sinW*sinN + cosW*cosN*cosI,
		ZX: sinW * sinI,
		ZY: cosW * sinI,
	}
}

// Apply rotates perifocal coordinates (x', y') into the ecliptic frame and
// multiplies the result by scale.
func (r EclipticRotation) Apply(xp, yp, scale float64) r3.Vec {
	return r3.Vec{
		X: (r.XX*xp + r.XY*yp) * scale,
		Y: (r.YX*xp + r.YY*yp) * scale,
		Z: (r.ZX*xp + r.ZY*yp) * scale,
	}
}

// OrbitalPlane returns the perifocal coordinates of a point on an ellipse with
// semi-major axis a and eccentricity e at eccentric anomaly E (radians).
//
//	x' = a(cos E − e)
//	y' = a√(1−e²) sin E
func OrbitalPlane(a, e, E float64) (xp, yp float64) {
	sinE, cosE := math.Sincos(E)
	xp = a * (cosE - e)
	yp = a * math.Sqrt(1-e*e) * sinE
	return xp, yp
}

// Project converts an orbit (a, e), an eccentric anomaly E (radians) and the
// three orientation angles (degrees) to ecliptic J2000 coordinates, multiplied
// by scale.
func Project(a, e, E, inclinationDeg, argPeriapsisDeg, nodeDeg, scale float64) r3.Vec {
	xp, yp := OrbitalPlane(a, e, E)
	return NewEclipticRotation(inclinationDeg, argPeriapsisDeg, nodeDeg).Apply(xp, yp, scale)
}

// ValidatePosition reports whether every coordinate is finite.
// Degenerate elements propagate as NaN; callers that publish positions use
// this to drop them.
func ValidatePosition(p r3.Vec) bool {
	for _, c := range [3]float64{p.X, p.Y, p.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}
