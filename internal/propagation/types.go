package propagation

import (
	"time"

	"github.com/star/orrery/internal/catalog"
	"github.com/star/orrery/internal/orbit"
)

// Keyframe holds the positions of all bodies at a single instant.
type Keyframe struct {
	Timestamp  time.Time      `json:"timestamp"` // wall-clock instant the frame is for
	JulianDate float64        `json:"jd"`        // simulated date at Timestamp
	Bodies     []BodyPosition `json:"bodies"`
}

// BodyPosition holds a single body's ecliptic J2000 position at a keyframe.
type BodyPosition struct {
	Name     string       `json:"name"`
	Kind     catalog.Kind `json:"kind"`
	Position [3]float64   `json:"position"` // display units (X, Y, Z)
}

// PropConfig holds propagation configuration.
type PropConfig struct {
	Workers int           // Worker pool size (default: runtime.NumCPU())
	Step    time.Duration // Keyframe interval (default: 1s)
	Horizon time.Duration // Propagation horizon (default: 60s)
	Scale   float64       // Display units per AU (default: transform.DefaultOrbitScale)

	// KeplerMaxIter bounds Kepler's equation solving per body. Zero keeps
	// orbit.MaxKeplerIterations.
	KeplerMaxIter int
}

// keplerOptions returns the orbit options every position computed under
// this configuration shares.
func (c PropConfig) keplerOptions() []orbit.Option {
	if c.KeplerMaxIter > 0 {
		return []orbit.Option{orbit.WithMaxIterations(c.KeplerMaxIter)}
	}
	return nil
}
