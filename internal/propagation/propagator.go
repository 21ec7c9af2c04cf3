package propagation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/star/orrery/internal/catalog"
	"github.com/star/orrery/internal/clock"
	"github.com/star/orrery/internal/metrics"
	"github.com/star/orrery/internal/orbit"
	"github.com/star/orrery/internal/transform"
	"gonum.org/v1/gonum/spatial/r3"
)

// Propagator orchestrates keyframe generation for the current catalog and
// simulation clock.
type Propagator struct {
	store  *catalog.Store
	clock  *clock.Clock
	pool   *WorkerPool
	config PropConfig
	logger *slog.Logger
}

// NewPropagator creates a new propagation orchestrator.
func NewPropagator(store *catalog.Store, clk *clock.Clock, config PropConfig, logger *slog.Logger) *Propagator {
	if config.Scale <= 0 {
		config.Scale = transform.DefaultOrbitScale
	}
	return &Propagator{
		store:  store,
		clock:  clk,
		pool:   NewWorkerPool(config.Workers, logger, config.keplerOptions()...),
		config: config,
		logger: logger,
	}
}

// Config returns the propagation configuration.
func (p *Propagator) Config() PropConfig {
	return p.config
}

// KeplerOptions returns the orbit options positions computed outside the
// propagator should use to match its keyframes.
func (p *Propagator) KeplerOptions() []orbit.Option {
	return p.config.keplerOptions()
}

// Clock returns the simulation clock keyframes are generated against.
func (p *Propagator) Clock() *clock.Clock {
	return p.clock
}

// Store returns the catalog store.
func (p *Propagator) Store() *catalog.Store {
	return p.store
}

// PropagateAt generates a keyframe for the given wall time, at the simulated
// date the clock assigns to it.
func (p *Propagator) PropagateAt(ctx context.Context, wall time.Time) (*Keyframe, error) {
	return p.propagate(ctx, wall, p.clock.JulianAt(wall), p.config.Scale)
}

// PropagateState generates a keyframe for wall under a fixed clock state, so
// frames computed in one batch agree even if the live clock changes meanwhile.
func (p *Propagator) PropagateState(ctx context.Context, st clock.State, wall time.Time) (*Keyframe, error) {
	return p.propagate(ctx, wall, st.JulianAt(wall), p.config.Scale)
}

// PropagateJD generates a keyframe at an explicit Julian Date. The
// timestamp is the UTC instant of jd.
func (p *Propagator) PropagateJD(ctx context.Context, jd, scale float64) (*Keyframe, error) {
	if scale <= 0 {
		scale = p.config.Scale
	}
	return p.propagate(ctx, transform.JulianToDate(jd), jd, scale)
}

func (p *Propagator) propagate(ctx context.Context, ts time.Time, jd, scale float64) (*Keyframe, error) {
	ds := p.store.Get()
	if ds == nil {
		return nil, catalog.ErrNoDataset
	}

	p.logger.Debug("propagating",
		"body_count", len(ds.Bodies),
		"timestamp", ts.UTC().Format(time.RFC3339),
		"jd", jd,
		"workers", p.config.Workers,
	)

	start := time.Now()
	positions, successCount, errorCount := p.pool.PropagateBatch(ctx, ds.Bodies, jd, scale)
	duration := time.Since(start)

	metrics.RecordPropagation(duration, successCount, errorCount)

	p.logger.Debug("propagation complete",
		"success", successCount,
		"errors", errorCount,
		"duration_ms", duration.Milliseconds(),
	)

	return &Keyframe{
		Timestamp:  ts,
		JulianDate: jd,
		Bodies:     positions,
	}, nil
}

// GenerateKeyframes generates keyframes from startTime over the configured
// horizon at the configured step. One clock snapshot is used for the whole
// run so that frames stay consistent if the clock changes mid-way.
func (p *Propagator) GenerateKeyframes(ctx context.Context, startTime time.Time) ([]*Keyframe, error) {
	if p.store.Get() == nil {
		return nil, catalog.ErrNoDataset
	}

	state := p.clock.Snapshot()
	numFrames := int(p.config.Horizon/p.config.Step) + 1
	keyframes := make([]*Keyframe, 0, numFrames)

	for i := 0; i < numFrames; i++ {
		select {
		case <-ctx.Done():
			return keyframes, ctx.Err()
		default:
		}

		ts := startTime.Add(time.Duration(i) * p.config.Step)
		kf, err := p.PropagateState(ctx, state, ts)
		if err != nil {
			return keyframes, fmt.Errorf("keyframe %d at %s: %w", i, ts.Format(time.RFC3339), err)
		}
		keyframes = append(keyframes, kf)
	}

	return keyframes, nil
}

// Position returns one body's display position at jd.
func (p *Propagator) Position(name string, jd, scale float64) (catalog.Body, r3.Vec, error) {
	ds := p.store.Get()
	if ds == nil {
		return catalog.Body{}, r3.Vec{}, catalog.ErrNoDataset
	}
	b, err := ds.Lookup(name)
	if err != nil {
		return catalog.Body{}, r3.Vec{}, err
	}
	if scale <= 0 {
		scale = p.config.Scale
	}
	pos, err := DisplayPosition(ds, b, jd, scale, p.config.keplerOptions()...)
	return b, pos, err
}

// OrbitPath returns the sampled orbit of the named body at jd. Satellite
// paths are centred on their parent's position at jd.
func (p *Propagator) OrbitPath(ctx context.Context, name string, jd float64, samples int, scale float64) ([]r3.Vec, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ds := p.store.Get()
	if ds == nil {
		return nil, catalog.ErrNoDataset
	}
	b, err := ds.Lookup(name)
	if err != nil {
		return nil, err
	}
	if scale <= 0 {
		scale = p.config.Scale
	}
	return OrbitPath(ds, b, jd, scale, samples, p.config.keplerOptions()...)
}
