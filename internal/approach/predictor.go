// Package approach predicts close approaches between catalog bodies and a
// reference body by scanning their true (unscaled) separation over time.
package approach

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/star/orrery/internal/catalog"
	"github.com/star/orrery/internal/metrics"
	"github.com/star/orrery/internal/propagation"
	"github.com/star/orrery/internal/transform"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	DefaultReference     = "earth"
	DefaultStepDays      = 1.0
	DefaultHorizonDays   = 365.0
	DefaultMaxApproaches = 10

	// refineToleranceDays is the golden-section bracket width at which
	// refinement stops (about one second).
	refineToleranceDays = 1.0 / 86400
)

// ErrReferenceBody is reported for the reference body itself.
var ErrReferenceBody = errors.New("body is the reference body")

// invPhi is 1/φ, the golden-section shrink factor.
var invPhi = (math.Sqrt(5) - 1) / 2

// Approach is one local minimum of the distance to the reference body.
type Approach struct {
	JulianDate float64   `json:"jd"`
	Time       time.Time `json:"time"`
	DistanceAU float64   `json:"distance_au"`
}

// BodyApproaches holds the predicted approaches for one body.
type BodyApproaches struct {
	Name       string     `json:"name"`
	Approaches []Approach `json:"approaches"`
	Error      string     `json:"error,omitempty"`
}

// Request holds the parameters for an approach prediction.
type Request struct {
	Dataset       *catalog.Dataset
	Bodies        []catalog.Body
	Reference     string  // body key, default earth
	StartJD       float64 // default now
	HorizonDays   float64
	StepDays      float64 // coarse scan step
	ThresholdAU   float64 // 0 reports every minimum
	MaxApproaches int
}

func (r *Request) applyDefaults() {
	if r.Reference == "" {
		r.Reference = DefaultReference
	}
	if r.StartJD == 0 {
		r.StartJD = transform.DateToJulian(time.Now())
	}
	if r.HorizonDays <= 0 {
		r.HorizonDays = DefaultHorizonDays
	}
	if r.StepDays <= 0 {
		r.StepDays = DefaultStepDays
	}
	if r.MaxApproaches < 1 {
		r.MaxApproaches = DefaultMaxApproaches
	}
}

// Predict computes close approaches for every requested body. Each body is
// processed in its own goroutine, bounded by a semaphore. Results keep the
// order of req.Bodies.
func Predict(ctx context.Context, req Request) []BodyApproaches {
	req.applyDefaults()
	start := time.Now()
	defer func() { metrics.ObserveApproachDuration(time.Since(start)) }()

	results := make([]BodyApproaches, len(req.Bodies))

	ref, err := req.Dataset.Lookup(req.Reference)
	if err != nil {
		for i, b := range req.Bodies {
			results[i] = BodyApproaches{Name: b.Name, Error: fmt.Sprintf("reference %q: %v", req.Reference, err)}
		}
		return results
	}

	sem := make(chan struct{}, runtime.NumCPU())
	var wg sync.WaitGroup

	for i, body := range req.Bodies {
		wg.Add(1)
		go func(idx int, b catalog.Body) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx] = BodyApproaches{Name: b.Name, Error: "cancelled"}
				return
			}

			approaches, err := predictBody(ctx, req, ref, b)
			if err != nil {
				results[idx] = BodyApproaches{Name: b.Name, Error: err.Error()}
				return
			}
			results[idx] = BodyApproaches{Name: b.Name, Approaches: approaches}
		}(i, body)
	}

	wg.Wait()
	return results
}

// predictBody scans [start, start+horizon] in coarse steps for local minima of
// the separation and refines each one.
func predictBody(ctx context.Context, req Request, ref, b catalog.Body) ([]Approach, error) {
	if b.Name == ref.Name {
		return nil, ErrReferenceBody
	}

	dist := func(jd float64) (float64, error) {
		return separation(req.Dataset, ref, b, jd)
	}

	steps := int(math.Ceil(req.HorizonDays / req.StepDays))
	end := req.StartJD + req.HorizonDays

	prev, err := dist(req.StartJD)
	if err != nil {
		return nil, err
	}
	cur, err := dist(math.Min(req.StartJD+req.StepDays, end))
	if err != nil {
		return nil, err
	}

	approaches := []Approach{}
	for k := 1; k < steps && len(approaches) < req.MaxApproaches; k++ {
		if ctx.Err() != nil {
			return approaches, nil
		}

		nextJD := math.Min(req.StartJD+float64(k+1)*req.StepDays, end)
		next, err := dist(nextJD)
		if err != nil {
			return nil, err
		}

		if cur < prev && cur <= next {
			lo := req.StartJD + float64(k-1)*req.StepDays
			jd, d, err := goldenSection(dist, lo, nextJD, refineToleranceDays)
			if err != nil {
				return nil, err
			}
			if req.ThresholdAU <= 0 || d <= req.ThresholdAU {
				approaches = append(approaches, Approach{
					JulianDate: jd,
					Time:       transform.JulianToDate(jd),
					DistanceAU: d,
				})
			}
		}

		prev, cur = cur, next
	}

	return approaches, nil
}

// separation returns the true distance in AU between two bodies at jd.
func separation(ds *catalog.Dataset, a, b catalog.Body, jd float64) (float64, error) {
	pa, err := propagation.PositionAU(ds, a, jd)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", a.Name, err)
	}
	pb, err := propagation.PositionAU(ds, b, jd)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", b.Name, err)
	}
	d := r3.Norm(r3.Sub(pa, pb))
	if math.IsNaN(d) {
		return 0, fmt.Errorf("%s: non-finite distance at jd %.5f", b.Name, jd)
	}
	return d, nil
}

// goldenSection minimizes a unimodal f on [lo, hi] until the bracket is
// narrower than tol.
func goldenSection(f func(float64) (float64, error), lo, hi, tol float64) (float64, float64, error) {
	x1 := hi - invPhi*(hi-lo)
	x2 := lo + invPhi*(hi-lo)
	f1, err := f(x1)
	if err != nil {
		return 0, 0, err
	}
	f2, err := f(x2)
	if err != nil {
		return 0, 0, err
	}

	for hi-lo > tol {
		if f1 < f2 {
			hi, x2, f2 = x2, x1, f1
			x1 = hi - invPhi*(hi-lo)
			if f1, err = f(x1); err != nil {
				return 0, 0, err
			}
		} else {
			lo, x1, f1 = x1, x2, f2
			x2 = lo + invPhi*(hi-lo)
			if f2, err = f(x2); err != nil {
				return 0, 0, err
			}
		}
	}

	x := (lo + hi) / 2
	fx, err := f(x)
	return x, fx, err
}
