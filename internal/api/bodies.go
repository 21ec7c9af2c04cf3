package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/star/orrery/internal/catalog"
	"github.com/star/orrery/internal/clock"
	"github.com/star/orrery/internal/httputil"
	"github.com/star/orrery/internal/orbit"
	"github.com/star/orrery/internal/propagation"
	"github.com/star/orrery/internal/transform"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	maxOrbitSamples = 3600
	maxScale        = 1e9

	// Julian Dates accepted from clients: 4713 BC to roughly AD 22000.
	minJD = 0
	maxJD = 10_000_000
)

// resolveJD picks the date a request is evaluated at: an explicit jd, an
// RFC 3339 time, or the simulation clock's current date.
func resolveJD(r *http.Request, clk *clock.Clock) (float64, error) {
	q := r.URL.Query()
	if q.Get("jd") != "" && q.Get("time") != "" {
		return 0, fmt.Errorf("specify at most one of jd and time")
	}
	if q.Get("jd") != "" {
		return httputil.QueryFloat(r, "jd", 0, minJD, maxJD)
	}
	if v := q.Get("time"); v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return 0, fmt.Errorf("invalid time parameter, must be RFC 3339")
		}
		return transform.DateToJulian(t), nil
	}
	return clk.Now(), nil
}

// resolveScale returns the scale query parameter, or 0 for the service
// default.
func resolveScale(r *http.Request) (float64, error) {
	if r.URL.Query().Get("scale") == "" {
		return 0, nil
	}
	return httputil.QueryFloat(r, "scale", 0, 1e-9, maxScale)
}

type bodySummary struct {
	Name        string       `json:"name"`
	DisplayName string       `json:"display_name"`
	Kind        catalog.Kind `json:"kind"`
	Parent      string       `json:"parent,omitempty"`
}

// bodiesHandler lists the catalog, optionally filtered by ?kind=.
func bodiesHandler(store *catalog.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ds := store.Get()
		if ds == nil {
			writeDomainError(w, catalog.ErrNoDataset)
			return
		}

		kind := catalog.Kind(r.URL.Query().Get("kind"))
		switch kind {
		case "", catalog.KindPlanet, catalog.KindMoon, catalog.KindNEO:
		default:
			writeError(w, http.StatusBadRequest, "invalid kind parameter, must be planet, moon or neo")
			return
		}

		bodies := make([]bodySummary, 0, len(ds.Bodies))
		for _, b := range ds.Bodies {
			if kind != "" && b.Kind != kind {
				continue
			}
			bodies = append(bodies, bodySummary{Name: b.Name, DisplayName: b.DisplayName, Kind: b.Kind, Parent: b.Parent})
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"count":  len(bodies),
			"bodies": bodies,
		})
	}
}

// bodyHandler returns one body with its elements.
func bodyHandler(store *catalog.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := store.Lookup(r.PathValue("name"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, b)
	}
}

type positionResponse struct {
	Name       string       `json:"name"`
	Kind       catalog.Kind `json:"kind"`
	JulianDate float64      `json:"jd"`
	Time       time.Time    `json:"time"`
	Scale      float64      `json:"scale"`
	Position   [3]float64   `json:"position"`
	PositionAU [3]float64   `json:"position_au"`
	DistanceAU float64      `json:"distance_au"` // from the Sun
}

func vec3(v r3.Vec) [3]float64 {
	return [3]float64{v.X, v.Y, v.Z}
}

func finite(v r3.Vec) bool {
	return transform.ValidatePosition(v)
}

// positionHandler returns one body's display and true positions.
// GET /api/v1/bodies/{name}/position?jd=|time=&scale=
func positionHandler(logger *slog.Logger, prop *propagation.Propagator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jd, err := resolveJD(r, prop.Clock())
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		scale, err := resolveScale(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if scale == 0 {
			scale = prop.Config().Scale
		}

		b, pos, err := prop.Position(r.PathValue("name"), jd, scale)
		if err == nil && !finite(pos) {
			err = fmt.Errorf("%s at jd %.5f: %w", b.Name, jd, errNonFinite)
		}
		var au r3.Vec
		if err == nil {
			au, err = propagation.PositionAU(prop.Store().Get(), b, jd, prop.KeplerOptions()...)
		}
		if err != nil {
			if errorStatus(err) == http.StatusUnprocessableEntity {
				logger.Warn("position failed", "body", r.PathValue("name"), "jd", jd, "error", err)
			}
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, positionResponse{
			Name:       b.Name,
			Kind:       b.Kind,
			JulianDate: jd,
			Time:       transform.JulianToDate(jd),
			Scale:      scale,
			Position:   vec3(pos),
			PositionAU: vec3(au),
			DistanceAU: r3.Norm(au),
		})
	}
}

type orbitResponse struct {
	Name       string       `json:"name"`
	JulianDate float64      `json:"jd"`
	Scale      float64      `json:"scale"`
	Samples    int          `json:"samples"`
	Points     [][3]float64 `json:"points"`
}

// orbitHandler returns the sampled orbit of one body.
// GET /api/v1/bodies/{name}/orbit?jd=&samples=&scale=
func orbitHandler(logger *slog.Logger, prop *propagation.Propagator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jd, err := resolveJD(r, prop.Clock())
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		samples, err := httputil.QueryInt(r, "samples", orbit.DefaultSamples, 1, maxOrbitSamples)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		scale, err := resolveScale(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if scale == 0 {
			scale = prop.Config().Scale
		}

		name := r.PathValue("name")
		path, err := prop.OrbitPath(r.Context(), name, jd, samples, scale)
		if err == nil {
			for _, p := range path {
				if !finite(p) {
					err = fmt.Errorf("%s orbit at jd %.5f: %w", name, jd, errNonFinite)
					break
				}
			}
		}
		if err != nil {
			if errorStatus(err) == http.StatusUnprocessableEntity {
				logger.Warn("orbit failed", "body", name, "jd", jd, "error", err)
			}
			writeDomainError(w, err)
			return
		}

		points := make([][3]float64, len(path))
		for i, p := range path {
			points[i] = vec3(p)
		}
		writeJSON(w, http.StatusOK, orbitResponse{
			Name:       catalog.Key(name),
			JulianDate: jd,
			Scale:      scale,
			Samples:    samples,
			Points:     points,
		})
	}
}

// positionsHandler returns a keyframe of every body at one date.
// GET /api/v1/positions?jd=|time=&scale=&kind=
func positionsHandler(logger *slog.Logger, prop *propagation.Propagator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jd, err := resolveJD(r, prop.Clock())
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		scale, err := resolveScale(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		kf, err := prop.PropagateJD(r.Context(), jd, scale)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		if kind := catalog.Kind(r.URL.Query().Get("kind")); kind != "" {
			filtered := kf.Bodies[:0:0]
			for _, b := range kf.Bodies {
				if b.Kind == kind {
					filtered = append(filtered, b)
				}
			}
			kf.Bodies = filtered
		}
		logger.Debug("positions computed", "jd", jd, "bodies", len(kf.Bodies))
		writeJSON(w, http.StatusOK, kf)
	}
}
