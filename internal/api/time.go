package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/star/orrery/internal/clock"
	"github.com/star/orrery/internal/metrics"
	"github.com/star/orrery/internal/transform"
)

type julianResponse struct {
	Time                time.Time `json:"time"`
	JulianDate          float64   `json:"jd"`
	CenturiesSinceJ2000 float64   `json:"centuries_since_j2000"`
}

// julianFromTimeHandler converts a UTC time to a Julian Date.
// GET /api/v1/julian?time=RFC3339 (default: now)
func julianFromTimeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t := time.Now().UTC()
		if v := r.URL.Query().Get("time"); v != "" {
			parsed, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid time parameter, must be RFC 3339")
				return
			}
			t = parsed.UTC()
		}
		jd := transform.DateToJulian(t)
		writeJSON(w, http.StatusOK, julianResponse{
			Time:                t,
			JulianDate:          jd,
			CenturiesSinceJ2000: transform.CenturiesSinceJ2000(jd),
		})
	}
}

// julianToTimeHandler converts a Julian Date to a UTC time.
// GET /api/v1/julian/{jd}
func julianToTimeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jd, err := strconv.ParseFloat(r.PathValue("jd"), 64)
		if err != nil || math.IsNaN(jd) || jd < minJD || jd > maxJD {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid Julian Date, must be a number %d-%d", minJD, maxJD))
			return
		}
		writeJSON(w, http.StatusOK, julianResponse{
			Time:                transform.JulianToDate(jd),
			JulianDate:          jd,
			CenturiesSinceJ2000: transform.CenturiesSinceJ2000(jd),
		})
	}
}

type clockResponse struct {
	JulianDate float64   `json:"jd"`
	Time       time.Time `json:"time"`
	Speed      float64   `json:"speed"`
	Paused     bool      `json:"paused"`
	Revision   uint64    `json:"revision"`
	MaxSpeed   float64   `json:"max_speed"`
}

func clockState(st clock.State) clockResponse {
	jd := st.JulianAt(time.Now())
	return clockResponse{
		JulianDate: jd,
		Time:       transform.JulianToDate(jd),
		Speed:      st.Speed,
		Paused:     st.Paused,
		Revision:   st.Revision,
		MaxSpeed:   clock.MaxSpeed,
	}
}

// clockHandler returns the simulation clock.
// GET /api/v1/clock
func clockHandler(clk *clock.Clock) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, clockState(clk.Snapshot()))
	}
}

// clockUpdate is the POST /api/v1/clock body. Every field is optional;
// they are applied in the order action, speed, jd/time, paused.
type clockUpdate struct {
	Action *string  `json:"action"` // "faster" or "slower"
	Speed  *float64 `json:"speed"`
	JD     *float64 `json:"jd"`
	Time   *string  `json:"time"`
	Paused *bool    `json:"paused"`
}

// clockUpdateHandler changes the simulation clock.
// POST /api/v1/clock
func clockUpdateHandler(logger *slog.Logger, clk *clock.Clock) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req clockUpdate
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}
		if req.JD != nil && req.Time != nil {
			writeError(w, http.StatusBadRequest, "specify at most one of jd and time")
			return
		}

		var jump *float64
		switch {
		case req.JD != nil:
			if *req.JD < minJD || *req.JD > maxJD {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("jd must be %d-%d", minJD, maxJD))
				return
			}
			jump = req.JD
		case req.Time != nil:
			t, err := time.Parse(time.RFC3339Nano, *req.Time)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid time, must be RFC 3339")
				return
			}
			jd := transform.DateToJulian(t)
			jump = &jd
		}

		if req.Action != nil {
			switch *req.Action {
			case "faster":
				clk.Faster()
			case "slower":
				clk.Slower()
			default:
				writeError(w, http.StatusBadRequest, "invalid action, must be faster or slower")
				return
			}
		}
		if req.Speed != nil {
			clk.SetSpeed(*req.Speed)
		}
		if jump != nil {
			clk.Set(*jump)
		}
		if req.Paused != nil {
			if *req.Paused {
				clk.Pause()
			} else {
				clk.Resume()
			}
		}

		st := clk.Snapshot()
		metrics.SetClock(st.Speed, st.Paused)
		logger.Info("clock updated",
			"speed", st.Speed,
			"paused", st.Paused,
			"revision", st.Revision,
		)
		writeJSON(w, http.StatusOK, clockState(st))
	}
}
