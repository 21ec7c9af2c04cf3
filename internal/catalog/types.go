package catalog

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/star/orrery/internal/orbit"
)

// ErrUnknownBody is returned when a lookup names a body that is not in the dataset.
var ErrUnknownBody = errors.New("unknown body")

// ErrNoDataset is returned when no catalog dataset has been loaded yet.
var ErrNoDataset = errors.New("no catalog dataset loaded")

// Kind classifies a catalog body.
type Kind string

const (
	KindPlanet Kind = "planet"
	KindMoon   Kind = "moon"
	KindNEO    Kind = "neo"
)

// Body is a single orbiting object and its elements.
type Body struct {
	Name        string         `json:"name" yaml:"name"`
	DisplayName string         `json:"display_name" yaml:"display_name"`
	Kind        Kind           `json:"kind" yaml:"kind"`
	Parent      string         `json:"parent,omitempty" yaml:"parent"` // empty = heliocentric
	Elements    orbit.Elements `json:"elements" yaml:"elements"`
	RadiusKm    float64        `json:"radius_km" yaml:"radius_km"`
	Color       string         `json:"color,omitempty" yaml:"color"`
	OrbitScale  float64        `json:"orbit_scale,omitempty" yaml:"orbit_scale"` // 0 = service default
	MOIDAU      float64        `json:"moid_au,omitempty" yaml:"moid_au"`
}

// Dataset is an immutable snapshot of every body the service knows about.
type Dataset struct {
	Source    string
	FetchedAt time.Time
	Bodies    []Body

	index map[string]int
}

// Lookup returns the body with the given name. Names are matched on their
// normalized key, so "Earth", "earth" and " EARTH " all resolve.
func (d *Dataset) Lookup(name string) (Body, error) {
	key := Key(name)
	if d.index != nil {
		if i, ok := d.index[key]; ok {
			return d.Bodies[i], nil
		}
		return Body{}, fmt.Errorf("%w: %q", ErrUnknownBody, name)
	}
	for _, b := range d.Bodies {
		if b.Name == key {
			return b, nil
		}
	}
	return Body{}, fmt.Errorf("%w: %q", ErrUnknownBody, name)
}

// CountByKind returns the number of bodies of each kind.
func (d *Dataset) CountByKind() map[Kind]int {
	counts := make(map[Kind]int)
	for _, b := range d.Bodies {
		counts[b.Kind]++
	}
	return counts
}

func (d *Dataset) buildIndex() {
	d.index = make(map[string]int, len(d.Bodies))
	for i, b := range d.Bodies {
		d.index[b.Name] = i
	}
}

// Key normalizes a display name into a URL-safe body key: lower case, with
// every run of characters other than letters and digits collapsed to "-".
// "P/2004 R1 (McNaught)" becomes "p-2004-r1-mcnaught".
func Key(name string) string {
	var sb strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if dash && sb.Len() > 0 {
				sb.WriteByte('-')
			}
			sb.WriteRune(r)
			dash = false
			continue
		}
		dash = true
	}
	return sb.String()
}
