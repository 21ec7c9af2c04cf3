package orbit

import (
	"math"

	"github.com/star/orrery/internal/transform"
)

// Propagate evaluates el at the given Julian Date by applying each secular
// rate linearly over T Julian centuries since J2000.0.
func Propagate(el Elements, jd float64) State {
	T := transform.CenturiesSinceJ2000(jd)

	s := State{
		JulianDate:             jd,
		SemiMajorAxisAU:        el.SemiMajorAxisAU + el.SemiMajorAxisRate*T,
		Eccentricity:           el.Eccentricity + el.EccentricityRate*T,
		InclinationDeg:         el.InclinationDeg + el.InclinationRate*T,
		MeanLongitudeDeg:       el.MeanLongitudeDeg + el.MeanLongitudeRate*T,
		PerihelionLongitudeDeg: el.PerihelionLongitudeDeg + el.PerihelionLongitudeRate*T,
		AscendingNodeDeg:       el.AscendingNodeDeg + el.AscendingNodeRate*T,
	}
	s.ArgPeriapsisDeg = s.PerihelionLongitudeDeg - s.AscendingNodeDeg
	s.MeanAnomalyDeg = NormalizeDeg180(s.MeanLongitudeDeg - s.PerihelionLongitudeDeg)
	return s
}

// NormalizeDeg180 wraps an angle in degrees into (−180, 180].
func NormalizeDeg180(deg float64) float64 {
	d := math.Mod(deg, 360)
	if d > 180 {
		d -= 360
	} else if d <= -180 {
		d += 360
	}
	return d
}
