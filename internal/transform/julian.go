package transform

import (
	"math"
	"time"
)

// J2000 is the Julian Date of the J2000.0 epoch (January 1, 2000, 12:00:00 TT).
const J2000 = 2451545.0

// DaysPerCentury is the length of a Julian century in days.
const DaysPerCentury = 36525.0

// gregorianStartJDN is the Julian Day Number of 1582-10-15, the first day of
// the Gregorian calendar. Below it the reverse algorithm skips the century
// correction.
const gregorianStartJDN = 2299161

// DateToJulian converts a time.Time to Julian Date using its UTC calendar fields.
// Uses the Meeus algorithm (Astronomical Algorithms, ch. 7), valid for Gregorian
// calendar dates.
func DateToJulian(t time.Time) float64 {
	t = t.UTC()

	y := float64(t.Year())
	m := float64(t.Month())
	d := float64(t.Day())
	h := float64(t.Hour())
	min := float64(t.Minute())
	s := float64(t.Second()) + float64(t.Nanosecond())/1e9

	// Adjust year/month for Jan/Feb (treat as months 13/14 of previous year).
	if m <= 2 {
		y -= 1
		m += 12
	}

	A := math.Floor(y / 100)
	B := 2 - A + math.Floor(A/4)

	jd := math.Floor(365.25*(y+4716)) + math.Floor(30.6001*(m+1)) + d + B - 1524.5
	jd += (h + min/60.0 + s/3600.0) / 24.0

	return jd
}

// JulianToDate converts a Julian Date back to a UTC time.Time.
// The time of day is rounded to the nearest millisecond, which is well below
// the float64 resolution of a contemporary Julian Date (~50µs) and keeps
// round trips stable.
func JulianToDate(jd float64) time.Time {
	j := jd + 0.5
	Z := math.Floor(j)
	F := j - Z

	A := Z
	if Z >= gregorianStartJDN {
		alpha := math.Floor((Z - 1867216.25) / 36524.25)
		A = Z + 1 + alpha - math.Floor(alpha/4)
	}

	B := A + 1524
	C := math.Floor((B - 122.1) / 365.25)
	D := math.Floor(365.25 * C)
	E := math.Floor((B - D) / 30.6001)

	day := B - D - math.Floor(30.6001*E) + F

	month := E - 1
	if E >= 14 {
		month = E - 13
	}
	year := C - 4715
	if month > 2 {
		year = C - 4716
	}

	whole := math.Floor(day)
	ms := math.Round((day - whole) * 86400e3)

	// time.Date normalizes a fraction that rounds up to a full day.
	return time.Date(int(year), time.Month(month), int(whole), 0, 0, 0, 0, time.UTC).
		Add(time.Duration(ms) * time.Millisecond)
}

// CenturiesSinceJ2000 returns the number of Julian centuries between J2000.0
// and the given Julian Date.
func CenturiesSinceJ2000(jd float64) float64 {
	return (jd - J2000) / DaysPerCentury
}
