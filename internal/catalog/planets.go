package catalog

import "github.com/star/orrery/internal/orbit"

// Keplerian elements and rates for the eight planets, valid 1800 AD - 2050 AD.
// Source: E.M. Standish, "Keplerian Elements for Approximate Positions of the
// Major Planets", JPL Solar System Dynamics, Table 1. Earth is the Earth-Moon
// barycenter.
var planetTable = []Body{
	{
		Name: "mercury", DisplayName: "Mercury", RadiusKm: 2439.7, Color: "#B0B0B0",
		Elements: orbit.Elements{
			SemiMajorAxisAU: 0.38709927, SemiMajorAxisRate: 0.00000037,
			Eccentricity: 0.20563593, EccentricityRate: 0.00001906,
			InclinationDeg: 7.00497902, InclinationRate: -0.00594749,
			MeanLongitudeDeg: 252.25032350, MeanLongitudeRate: 149472.67411175,
			PerihelionLongitudeDeg: 77.45779628, PerihelionLongitudeRate: 0.16047689,
			AscendingNodeDeg: 48.33076593, AscendingNodeRate: -0.12534081,
		},
	},
	{
		Name: "venus", DisplayName: "Venus", RadiusKm: 6051.8, Color: "#FFD700",
		Elements: orbit.Elements{
			SemiMajorAxisAU: 0.72333566, SemiMajorAxisRate: 0.00000390,
			Eccentricity: 0.00677672, EccentricityRate: -0.00004107,
			InclinationDeg: 3.39467605, InclinationRate: -0.00078890,
			MeanLongitudeDeg: 181.97909950, MeanLongitudeRate: 58517.81538729,
			PerihelionLongitudeDeg: 131.60246718, PerihelionLongitudeRate: 0.00268329,
			AscendingNodeDeg: 76.67984255, AscendingNodeRate: -0.27769418,
		},
	},
	{
		Name: "earth", DisplayName: "Earth", RadiusKm: 6371, Color: "#0000FF",
		Elements: orbit.Elements{
			SemiMajorAxisAU: 1.00000261, SemiMajorAxisRate: 0.00000562,
			Eccentricity: 0.01671123, EccentricityRate: -0.00004392,
			InclinationDeg: -0.00001531, InclinationRate: -0.01294668,
			MeanLongitudeDeg: 100.46457166, MeanLongitudeRate: 35999.37244981,
			PerihelionLongitudeDeg: 102.93768193, PerihelionLongitudeRate: 0.32327364,
			AscendingNodeDeg: 0, AscendingNodeRate: 0,
		},
	},
	{
		Name: "mars", DisplayName: "Mars", RadiusKm: 3389.5, Color: "#FF4500",
		Elements: orbit.Elements{
			SemiMajorAxisAU: 1.52371034, SemiMajorAxisRate: 0.00001847,
			Eccentricity: 0.09339410, EccentricityRate: 0.00007882,
			InclinationDeg: 1.84969142, InclinationRate: -0.00813131,
			MeanLongitudeDeg: -4.55343205, MeanLongitudeRate: 19140.30268499,
			PerihelionLongitudeDeg: -23.94362959, PerihelionLongitudeRate: 0.44441088,
			AscendingNodeDeg: 49.55953891, AscendingNodeRate: -0.29257343,
		},
	},
	{
		Name: "jupiter", DisplayName: "Jupiter", RadiusKm: 69911, Color: "#FFDE00",
		Elements: orbit.Elements{
			SemiMajorAxisAU: 5.20288700, SemiMajorAxisRate: -0.00011607,
			Eccentricity: 0.04838624, EccentricityRate: -0.00013253,
			InclinationDeg: 1.30439695, InclinationRate: -0.00183714,
			MeanLongitudeDeg: 34.39644051, MeanLongitudeRate: 3034.74612775,
			PerihelionLongitudeDeg: 14.72847983, PerihelionLongitudeRate: 0.21252668,
			AscendingNodeDeg: 100.47390909, AscendingNodeRate: 0.20469106,
		},
	},
	{
		Name: "saturn", DisplayName: "Saturn", RadiusKm: 58232, Color: "#DAA520",
		Elements: orbit.Elements{
			SemiMajorAxisAU: 9.53667594, SemiMajorAxisRate: -0.00125060,
			Eccentricity: 0.05386179, EccentricityRate: -0.00050991,
			InclinationDeg: 2.48599187, InclinationRate: 0.00193609,
			MeanLongitudeDeg: 49.95424423, MeanLongitudeRate: 1222.49362201,
			PerihelionLongitudeDeg: 92.59887831, PerihelionLongitudeRate: -0.41897216,
			AscendingNodeDeg: 113.66242448, AscendingNodeRate: -0.28867794,
		},
	},
	{
		Name: "uranus", DisplayName: "Uranus", RadiusKm: 25362, Color: "#B0E0E6",
		Elements: orbit.Elements{
			SemiMajorAxisAU: 19.18916464, SemiMajorAxisRate: -0.00196176,
			Eccentricity: 0.04725744, EccentricityRate: -0.00004397,
			InclinationDeg: 0.77263783, InclinationRate: -0.00242939,
			MeanLongitudeDeg: 313.23810451, MeanLongitudeRate: 428.48202785,
			PerihelionLongitudeDeg: 170.95427630, PerihelionLongitudeRate: 0.40805281,
			AscendingNodeDeg: 74.01692503, AscendingNodeRate: 0.04240589,
		},
	},
	{
		Name: "neptune", DisplayName: "Neptune", RadiusKm: 24622, Color: "#1E90FF",
		Elements: orbit.Elements{
			SemiMajorAxisAU: 30.06992276, SemiMajorAxisRate: 0.00026291,
			Eccentricity: 0.00859048, EccentricityRate: 0.00005105,
			InclinationDeg: 1.77004347, InclinationRate: 0.00035372,
			MeanLongitudeDeg: -55.12002969, MeanLongitudeRate: 218.45945325,
			PerihelionLongitudeDeg: 44.96476227, PerihelionLongitudeRate: -0.32241464,
			AscendingNodeDeg: 131.78422574, AscendingNodeRate: -0.00508664,
		},
	},
}

// MoonOrbitScale enlarges the Moon's geocentric orbit so that it is drawn
// about 5 display units from the Earth instead of inside the Earth's marker.
const MoonOrbitScale = 1945.0

// Planets returns the eight major planets in order from the Sun.
func Planets() []Body {
	out := make([]Body, len(planetTable))
	copy(out, planetTable)
	for i := range out {
		out[i].Kind = KindPlanet
	}
	return out
}

// Moon returns Earth's Moon as a geocentric body. The mean elements are
// referenced to the ecliptic of date; the node and perigee rates capture the
// 18.6-year nodal and 8.85-year apsidal cycles.
func Moon() Body {
	return Body{
		Name:        "moon",
		DisplayName: "Moon",
		Kind:        KindMoon,
		Parent:      "earth",
		RadiusKm:    1737.4,
		Color:       "#C0C0C0",
		OrbitScale:  MoonOrbitScale,
		Elements: orbit.Elements{
			SemiMajorAxisAU:         0.00256955529, // 384400 km
			Eccentricity:            0.0549,
			InclinationDeg:          5.145,
			MeanLongitudeDeg:        218.3164477,
			MeanLongitudeRate:       481267.88123421,
			PerihelionLongitudeDeg:  83.3532465,
			PerihelionLongitudeRate: 4069.0137287,
			AscendingNodeDeg:        125.0445479,
			AscendingNodeRate:       -1934.1362891,
		},
	}
}
