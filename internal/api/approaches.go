package api

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/star/orrery/internal/approach"
	"github.com/star/orrery/internal/catalog"
	"github.com/star/orrery/internal/clock"
	"github.com/star/orrery/internal/httputil"
)

const (
	maxApproachDays = 3650
	approachTimeout = 20 * time.Second

	// maxScanSamples caps bodies × days/step so one request cannot consume
	// unbounded CPU.
	maxScanSamples = 2_000_000
)

type approachesResponse struct {
	Reference     string                    `json:"reference"`
	StartJD       float64                   `json:"start_jd"`
	Days          float64                   `json:"days"`
	StepDays      float64                   `json:"step_days"`
	ThresholdAU   float64                   `json:"threshold_au"`
	MaxApproaches int                       `json:"max_approaches"`
	Results       []approach.BodyApproaches `json:"results"`
}

// approachesHandler predicts close approaches to a reference body.
// GET /api/v1/approaches?body=&reference=&jd=|time=&days=&step=&threshold=&max=
//
// Without body, every NEO is scanned.
func approachesHandler(logger *slog.Logger, store *catalog.Store, clk *clock.Clock) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ds := store.Get()
		if ds == nil {
			writeDomainError(w, catalog.ErrNoDataset)
			return
		}

		start, err := resolveJD(r, clk)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		days, err := httputil.QueryFloat(r, "days", approach.DefaultHorizonDays, 1, maxApproachDays)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		step, err := httputil.QueryFloat(r, "step", approach.DefaultStepDays, 0.01, 30)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		threshold, err := httputil.QueryFloat(r, "threshold", 0, 0, 100)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		maxApproaches, err := httputil.QueryInt(r, "max", approach.DefaultMaxApproaches, 1, 100)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		reference := approach.DefaultReference
		if v := r.URL.Query().Get("reference"); v != "" {
			ref, err := ds.Lookup(v)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			reference = ref.Name
		}

		var bodies []catalog.Body
		if v := r.URL.Query().Get("body"); v != "" {
			b, err := ds.Lookup(v)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			bodies = []catalog.Body{b}
		} else {
			for _, b := range ds.Bodies {
				if b.Kind == catalog.KindNEO {
					bodies = append(bodies, b)
				}
			}
		}

		samples := float64(len(bodies)) * math.Ceil(days/step)
		if samples > maxScanSamples {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":       "request exceeds scan budget, narrow body, days or step",
				"samples":     int(samples),
				"max_samples": maxScanSamples,
			})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), approachTimeout)
		defer cancel()

		results := approach.Predict(ctx, approach.Request{
			Dataset:       ds,
			Bodies:        bodies,
			Reference:     reference,
			StartJD:       start,
			HorizonDays:   days,
			StepDays:      step,
			ThresholdAU:   threshold,
			MaxApproaches: maxApproaches,
		})
		if ctx.Err() != nil {
			logger.Warn("approach prediction cut short", "bodies", len(bodies), "days", days, "error", ctx.Err())
		}

		writeJSON(w, http.StatusOK, approachesResponse{
			Reference:     reference,
			StartJD:       start,
			Days:          days,
			StepDays:      step,
			ThresholdAU:   threshold,
			MaxApproaches: maxApproaches,
			Results:       results,
		})
	}
}
