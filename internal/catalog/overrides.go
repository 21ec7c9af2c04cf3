package catalog

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// overridesFile is the on-disk layout of a body overrides file:
//
//	bodies:
//	  - name: ceres
//	    display_name: Ceres
//	    elements: {a: 2.7675, e: 0.0785, i: 10.59, L: 153.2, L_rate: 7820.6, w: 153.9, node: 80.3}
type overridesFile struct {
	Bodies []Body `yaml:"bodies"`
}

// LoadOverrides reads caller-supplied bodies from a YAML file. Any invalid
// entry fails the whole file.
func LoadOverrides(path string) ([]Body, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading overrides: %w", err)
	}

	var f overridesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing overrides %s: %w", path, err)
	}

	out := make([]Body, 0, len(f.Bodies))
	for i, b := range f.Bodies {
		b, err := normalizeOverride(b)
		if err != nil {
			return nil, fmt.Errorf("override %d (%q): %w", i, b.Name, err)
		}
		out = append(out, b)
	}
	return out, nil
}

func normalizeOverride(b Body) (Body, error) {
	if b.DisplayName == "" {
		b.DisplayName = strings.TrimSpace(b.Name)
	}
	b.Name = Key(b.Name)
	if b.Name == "" {
		b.Name = Key(b.DisplayName)
	}
	if b.Name == "" {
		return b, fmt.Errorf("name is required")
	}
	b.Parent = Key(b.Parent)

	switch b.Kind {
	case "":
		b.Kind = KindNEO
		if b.Parent != "" {
			b.Kind = KindMoon
		}
	case KindPlanet, KindMoon, KindNEO:
	default:
		return b, fmt.Errorf("unknown kind %q", b.Kind)
	}

	if e := b.Elements.Eccentricity; e < 0 || e >= 1 {
		return b, fmt.Errorf("eccentricity %v outside [0, 1)", e)
	}
	if b.Elements.SemiMajorAxisAU <= 0 {
		return b, fmt.Errorf("semi-major axis must be positive")
	}
	return b, nil
}

// Merge returns base with every override applied: a body with a matching
// name is replaced in place and new names are appended in order.
func Merge(base, overrides []Body) []Body {
	out := make([]Body, len(base), len(base)+len(overrides))
	copy(out, base)

	pos := make(map[string]int, len(out))
	for i, b := range out {
		pos[b.Name] = i
	}
	for _, o := range overrides {
		if i, ok := pos[o.Name]; ok {
			out[i] = o
			continue
		}
		pos[o.Name] = len(out)
		out = append(out, o)
	}
	return out
}

// NewDataset composes the planets, the Moon, the given NEOs and overrides
// into a dataset. NEOs named like a built-in body are left out; only
// overrides may replace a built-in.
func NewDataset(source string, fetchedAt time.Time, neos, overrides []Body) *Dataset {
	bodies := append(Planets(), Moon())
	neos, _ = withoutBuiltins(neos)
	bodies = Merge(bodies, neos)
	bodies = Merge(bodies, overrides)

	ds := &Dataset{
		Source:    source,
		FetchedAt: fetchedAt,
		Bodies:    bodies,
	}
	ds.buildIndex()
	return ds
}

// withoutBuiltins drops the NEOs whose key is taken by a planet or the Moon
// and reports the dropped keys.
func withoutBuiltins(neos []Body) (kept []Body, dropped []string) {
	builtin := make(map[string]bool, 9)
	for _, b := range Planets() {
		builtin[b.Name] = true
	}
	builtin[Moon().Name] = true

	kept = make([]Body, 0, len(neos))
	for _, b := range neos {
		if builtin[b.Name] {
			dropped = append(dropped, b.Name)
			continue
		}
		kept = append(kept, b)
	}
	return kept, dropped
}
