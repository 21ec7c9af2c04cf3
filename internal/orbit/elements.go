// Package orbit computes heliocentric positions from Keplerian orbital elements.
//
// Elements follow the JPL "approximate positions of the planets" convention:
// each angle is given at J2000.0 together with a linear rate per Julian
// century. Propagate evaluates the elements at a Julian Date, SolveKepler turns
// the mean anomaly into an eccentric anomaly, and the transform package rotates
// the resulting point on the ellipse into the ecliptic frame.
package orbit

// Elements is a set of Keplerian orbital elements referenced to J2000.0 with
// secular rates. Angles are in degrees, rates per Julian century.
type Elements struct {
	SemiMajorAxisAU   float64 `json:"a" yaml:"a"`
	SemiMajorAxisRate float64 `json:"a_rate" yaml:"a_rate"`

	Eccentricity     float64 `json:"e" yaml:"e"`
	EccentricityRate float64 `json:"e_rate" yaml:"e_rate"`

	InclinationDeg  float64 `json:"i" yaml:"i"`
	InclinationRate float64 `json:"i_rate" yaml:"i_rate"`

	MeanLongitudeDeg  float64 `json:"L" yaml:"L"`
	MeanLongitudeRate float64 `json:"L_rate" yaml:"L_rate"`

	// Longitude of perihelion ϖ = Ω + ω.
	PerihelionLongitudeDeg  float64 `json:"w" yaml:"w"`
	PerihelionLongitudeRate float64 `json:"w_rate" yaml:"w_rate"`

	AscendingNodeDeg  float64 `json:"node" yaml:"node"`
	AscendingNodeRate float64 `json:"node_rate" yaml:"node_rate"`
}

// State is a set of elements evaluated at a specific Julian Date.
type State struct {
	JulianDate             float64 `json:"jd"`
	SemiMajorAxisAU        float64 `json:"a"`
	Eccentricity           float64 `json:"e"`
	InclinationDeg         float64 `json:"i"`
	MeanLongitudeDeg       float64 `json:"L"`
	PerihelionLongitudeDeg float64 `json:"w"`
	AscendingNodeDeg       float64 `json:"node"`

	ArgPeriapsisDeg float64 `json:"arg_periapsis"` // ω = ϖ − Ω
	MeanAnomalyDeg  float64 `json:"mean_anomaly"`  // M = L − ϖ, in (−180, 180]
}
