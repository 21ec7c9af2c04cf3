package approach

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/star/orrery/internal/catalog"
	"github.com/star/orrery/internal/transform"
)

func testDataset() *catalog.Dataset {
	return catalog.NewDataset("test", time.Now(), nil, nil)
}

func lookup(t *testing.T, ds *catalog.Dataset, name string) catalog.Body {
	t.Helper()
	b, err := ds.Lookup(name)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

// Lunar perigee distance: a(1-e).
var moonPerigeeAU = 0.00256955529 * (1 - 0.0549)

func TestPredictMoonPerigees(t *testing.T) {
	ds := testDataset()
	req := Request{
		Dataset:     ds,
		Bodies:      []catalog.Body{lookup(t, ds, "moon")},
		StartJD:     transform.J2000,
		HorizonDays: 90,
		StepDays:    0.5,
	}

	results := Predict(context.Background(), req)
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	moon := results[0]
	if moon.Error != "" {
		t.Fatalf("unexpected error: %s", moon.Error)
	}

	// Anomalistic month is ~27.55 days: three perigees in 90 days.
	if len(moon.Approaches) != 3 {
		t.Fatalf("got %d approaches, want 3: %+v", len(moon.Approaches), moon.Approaches)
	}

	for i, a := range moon.Approaches {
		if math.Abs(a.DistanceAU-moonPerigeeAU) > 1e-7 {
			t.Errorf("approach %d: distance %.8f AU, want %.8f", i, a.DistanceAU, moonPerigeeAU)
		}
		if a.JulianDate < req.StartJD || a.JulianDate > req.StartJD+req.HorizonDays {
			t.Errorf("approach %d: jd %.4f outside the scan window", i, a.JulianDate)
		}
		if got := transform.DateToJulian(a.Time); math.Abs(got-a.JulianDate) > 1e-6 {
			t.Errorf("approach %d: time %v does not match jd %.6f", i, a.Time, a.JulianDate)
		}
		if i > 0 {
			gap := a.JulianDate - moon.Approaches[i-1].JulianDate
			if gap < 27 || gap > 28.2 {
				t.Errorf("approaches %d-%d: gap %.3f days, want ~27.55", i-1, i, gap)
			}
		}
	}
}

func TestPredictThresholdAndLimit(t *testing.T) {
	ds := testDataset()
	moon := lookup(t, ds, "moon")

	tests := []struct {
		name      string
		threshold float64
		max       int
		want      int
	}{
		{"below perigee", 0.002, 0, 0},
		{"above perigee", 0.003, 0, 3},
		{"limited", 0, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := Predict(context.Background(), Request{
				Dataset:       ds,
				Bodies:        []catalog.Body{moon},
				StartJD:       transform.J2000,
				HorizonDays:   90,
				StepDays:      0.5,
				ThresholdAU:   tt.threshold,
				MaxApproaches: tt.max,
			})
			if got := len(results[0].Approaches); got != tt.want {
				t.Errorf("got %d approaches, want %d", got, tt.want)
			}
		})
	}
}

func TestPredictMarsOpposition(t *testing.T) {
	ds := testDataset()
	results := Predict(context.Background(), Request{
		Dataset:     ds,
		Bodies:      []catalog.Body{lookup(t, ds, "mars")},
		StartJD:     transform.DateToJulian(time.Date(2003, 1, 1, 0, 0, 0, 0, time.UTC)),
		HorizonDays: 365,
	})
	mars := results[0]
	if mars.Error != "" || len(mars.Approaches) != 1 {
		t.Fatalf("got %+v", mars)
	}

	// The 2003 perihelic opposition: closest approach on Aug 27 at ~0.3727 AU.
	a := mars.Approaches[0]
	want := time.Date(2003, 8, 27, 0, 0, 0, 0, time.UTC)
	if d := a.Time.Sub(want); d < -72*time.Hour || d > 72*time.Hour {
		t.Errorf("closest approach at %v, want near %v", a.Time, want)
	}
	if math.Abs(a.DistanceAU-0.3727) > 0.005 {
		t.Errorf("distance = %.4f AU, want ~0.3727", a.DistanceAU)
	}
}

func TestPredictErrors(t *testing.T) {
	ds := testDataset()
	earth := lookup(t, ds, "earth")
	orphan := catalog.Body{Name: "phobos", Parent: "mars-missing"}

	results := Predict(context.Background(), Request{
		Dataset:     ds,
		Bodies:      []catalog.Body{earth, orphan, lookup(t, ds, "venus")},
		StartJD:     transform.J2000,
		HorizonDays: 30,
	})

	if results[0].Error != ErrReferenceBody.Error() {
		t.Errorf("earth error = %q, want %q", results[0].Error, ErrReferenceBody)
	}
	if !strings.Contains(results[1].Error, "unknown parent") {
		t.Errorf("orphan error = %q", results[1].Error)
	}
	if results[2].Error != "" || results[2].Name != "venus" {
		t.Errorf("venus = %+v", results[2])
	}

	bad := Predict(context.Background(), Request{
		Dataset:   ds,
		Bodies:    []catalog.Body{earth},
		Reference: "vulcan",
	})
	if !strings.Contains(bad[0].Error, "vulcan") {
		t.Errorf("unknown reference error = %q", bad[0].Error)
	}
}

func TestPredictCancelled(t *testing.T) {
	ds := testDataset()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := Predict(ctx, Request{
		Dataset:     ds,
		Bodies:      catalog.Planets(),
		StartJD:     transform.J2000,
		HorizonDays: 3650,
	})
	if len(results) != 8 {
		t.Fatalf("got %d results, want 8", len(results))
	}
	for _, r := range results {
		if r.Error == "" && len(r.Approaches) > 0 {
			t.Errorf("%s: approaches computed after cancellation", r.Name)
		}
	}
}

func TestGoldenSection(t *testing.T) {
	f := func(x float64) (float64, error) { return (x - 1.25) * (x - 1.25), nil }
	x, fx, err := goldenSection(f, 0, 4, 1e-9)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(x-1.25) > 1e-8 || fx > 1e-15 {
		t.Errorf("min at %v (f=%v), want 1.25", x, fx)
	}

	boom := errors.New("boom")
	if _, _, err := goldenSection(func(float64) (float64, error) { return 0, boom }, 0, 1, 1e-3); !errors.Is(err, boom) {
		t.Errorf("error = %v, want boom", err)
	}
}
