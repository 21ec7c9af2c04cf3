package catalog

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/star/orrery/internal/orbit"
	"github.com/star/orrery/internal/transform"
)

// DefaultNEOLimit is the number of records kept from a fetch.
const DefaultNEOLimit = 50

// neoSizeScale turns a minimum orbit intersection distance (AU) into a
// nominal marker radius. The catalog carries no physical size.
const neoSizeScale = 100000.0

// neoRecord is one row of the NASA near-Earth comet dataset. Socrata returns
// every numeric column as a string.
type neoRecord struct {
	Object     string `json:"object"`
	ObjectName string `json:"object_name"`
	E          string `json:"e"`
	IDeg       string `json:"i_deg"`
	WDeg       string `json:"w_deg"`
	NodeDeg    string `json:"node_deg"`
	QAU1       string `json:"q_au_1"` // perihelion distance
	QAU2       string `json:"q_au_2"` // aphelion distance
	PYr        string `json:"p_yr"`
	TpTDB      string `json:"tp_tdb"` // time of perihelion passage (JD)
	MOIDAU     string `json:"moid_au"`
}

// ParseNEO reads a JSON array of NEO records from r and converts up to limit
// of them into bodies (limit ≤ 0 means no limit). Malformed and hyperbolic
// records are skipped with a warning log.
func ParseNEO(r io.Reader, limit int, logger *slog.Logger) ([]Body, error) {
	var records []neoRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("decoding NEO data: %w", err)
	}

	seen := make(map[string]bool, len(records))
	var bodies []Body
	for i, rec := range records {
		if limit > 0 && len(bodies) >= limit {
			break
		}

		b, err := rec.toBody()
		if err != nil {
			logger.Warn("skipping malformed NEO record", "index", i, "name", rec.ObjectName, "error", err)
			continue
		}
		if seen[b.Name] {
			logger.Warn("skipping duplicate NEO record", "index", i, "name", b.Name)
			continue
		}
		seen[b.Name] = true
		bodies = append(bodies, b)
	}

	return bodies, nil
}

func (rec neoRecord) toBody() (Body, error) {
	display := strings.TrimSpace(rec.ObjectName)
	if display == "" {
		display = strings.TrimSpace(rec.Object)
	}
	if Key(display) == "" {
		return Body{}, fmt.Errorf("missing object name")
	}

	var p fieldParser
	e := p.float("e", rec.E)
	inc := p.float("i_deg", rec.IDeg)
	w := p.float("w_deg", rec.WDeg)
	node := p.float("node_deg", rec.NodeDeg)
	q := p.float("q_au_1", rec.QAU1)
	Q := p.float("q_au_2", rec.QAU2)
	if p.err != nil {
		return Body{}, p.err
	}

	if e < 0 || e >= 1 {
		return Body{}, fmt.Errorf("eccentricity %.4f is not elliptic", e)
	}
	if q+Q <= 0 {
		return Body{}, fmt.Errorf("non-positive semi-major axis from q=%.4f Q=%.4f", q, Q)
	}

	el := orbit.Elements{
		SemiMajorAxisAU:        (q + Q) / 2,
		Eccentricity:           e,
		InclinationDeg:         inc,
		PerihelionLongitudeDeg: node + w,
		AscendingNodeDeg:       node,
	}

	// With a period and a perihelion time the body can be placed on its
	// orbit. Without them L and its rate stay 0.
	period, perr := strconv.ParseFloat(strings.TrimSpace(rec.PYr), 64)
	tp, terr := strconv.ParseFloat(strings.TrimSpace(rec.TpTDB), 64)
	if perr == nil && terr == nil && period > 0 {
		n := 360.0 / (period * 365.25) // deg/day
		M := n * (transform.J2000 - tp)
		el.MeanLongitudeDeg = orbit.NormalizeDeg180(M + el.PerihelionLongitudeDeg)
		el.MeanLongitudeRate = n * transform.DaysPerCentury
	}

	b := Body{
		Name:        Key(display),
		DisplayName: display,
		Kind:        KindNEO,
		Elements:    el,
		Color:       "gray",
	}
	if moid, err := strconv.ParseFloat(strings.TrimSpace(rec.MOIDAU), 64); err == nil && !math.IsNaN(moid) {
		b.MOIDAU = moid
		b.RadiusKm = moid * neoSizeScale
	}
	return b, nil
}

// fieldParser parses required numeric fields and keeps the first error.
type fieldParser struct {
	err error
}

func (p *fieldParser) float(name, raw string) float64 {
	if p.err != nil {
		return 0
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		p.err = fmt.Errorf("missing field %s", name)
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.err = fmt.Errorf("invalid field %s %q: %w", name, raw, err)
		return 0
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		p.err = fmt.Errorf("non-finite field %s", name)
		return 0
	}
	return v
}
