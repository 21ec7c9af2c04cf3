package propagation

import (
	"errors"
	"fmt"

	"github.com/star/orrery/internal/catalog"
	"github.com/star/orrery/internal/orbit"
	"github.com/star/orrery/internal/transform"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrUnknownParent is returned when a satellite names a parent that is not in
// the same dataset.
var ErrUnknownParent = errors.New("unknown parent body")

// maxParentDepth bounds parent chains and breaks cycles.
const maxParentDepth = 4

// lookupFunc resolves a body key.
type lookupFunc func(name string) (catalog.Body, bool)

func indexLookup(bodies []catalog.Body) lookupFunc {
	idx := make(map[string]catalog.Body, len(bodies))
	for _, b := range bodies {
		idx[b.Name] = b
	}
	return func(name string) (catalog.Body, bool) {
		b, ok := idx[name]
		return b, ok
	}
}

func datasetLookup(ds *catalog.Dataset) lookupFunc {
	return func(name string) (catalog.Body, bool) {
		b, err := ds.Lookup(name)
		return b, err == nil
	}
}

// bodyScale returns the scale for a body's own orbit. In display units a
// satellite may enlarge its orbit around the parent; physical positions
// (scale 1) are never exaggerated.
func bodyScale(b catalog.Body, scale float64, display bool) float64 {
	if display && b.Parent != "" && b.OrbitScale > 0 {
		return b.OrbitScale
	}
	return scale
}

// resolve returns the position of b at jd. Satellites are placed relative to
// their parent's position, resolved recursively. opts apply to every body in
// the chain.
func resolve(b catalog.Body, lookup lookupFunc, jd, scale float64, display bool, depth int, opts ...orbit.Option) (r3.Vec, error) {
	var origin r3.Vec
	if b.Parent != "" {
		if depth >= maxParentDepth {
			return r3.Vec{}, fmt.Errorf("%w: parent chain of %q too deep", ErrUnknownParent, b.Name)
		}
		parent, ok := lookup(b.Parent)
		if !ok {
			return r3.Vec{}, fmt.Errorf("%w: %q (parent of %q)", ErrUnknownParent, b.Parent, b.Name)
		}
		var err error
		origin, err = resolve(parent, lookup, jd, scale, display, depth+1, opts...)
		if err != nil {
			return r3.Vec{}, err
		}
	}

	return orbit.ComputePosition(jd, b.Elements, withOpts(opts,
		orbit.WithScale(bodyScale(b, scale, display)),
		orbit.WithOrigin(origin),
	)...)
}

// withOpts appends extra to a copy of opts.
func withOpts(opts []orbit.Option, extra ...orbit.Option) []orbit.Option {
	out := make([]orbit.Option, 0, len(opts)+len(extra))
	out = append(out, opts...)
	return append(out, extra...)
}

// DisplayPosition returns the position of b at jd in display units, with
// satellites drawn at their exaggerated orbit scale around their parent.
func DisplayPosition(ds *catalog.Dataset, b catalog.Body, jd, scale float64, opts ...orbit.Option) (r3.Vec, error) {
	if scale <= 0 {
		scale = transform.DefaultOrbitScale
	}
	return resolve(b, datasetLookup(ds), jd, scale, true, 0, opts...)
}

// PositionAU returns the true heliocentric position of b at jd in AU.
func PositionAU(ds *catalog.Dataset, b catalog.Body, jd float64, opts ...orbit.Option) (r3.Vec, error) {
	return resolve(b, datasetLookup(ds), jd, 1, false, 0, opts...)
}

// OrbitPath traces the orbit of b at jd. Satellite paths are centred on the
// parent's display position.
func OrbitPath(ds *catalog.Dataset, b catalog.Body, jd, scale float64, samples int, opts ...orbit.Option) ([]r3.Vec, error) {
	if scale <= 0 {
		scale = transform.DefaultOrbitScale
	}

	var origin r3.Vec
	if b.Parent != "" {
		parent, err := ds.Lookup(b.Parent)
		if err != nil {
			return nil, fmt.Errorf("%w: %q (parent of %q)", ErrUnknownParent, b.Parent, b.Name)
		}
		origin, err = DisplayPosition(ds, parent, jd, scale, opts...)
		if err != nil {
			return nil, err
		}
	}

	return orbit.ComputeOrbitPath(jd, b.Elements, withOpts(opts,
		orbit.WithScale(bodyScale(b, scale, true)),
		orbit.WithSamples(samples),
		orbit.WithOrigin(origin),
	)...)
}
