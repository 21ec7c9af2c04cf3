// Command diag loads the newest on-disk NEO cache and prints every body's
// position now and the next close approaches to Earth.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/star/orrery/internal/approach"
	"github.com/star/orrery/internal/catalog"
	"github.com/star/orrery/internal/propagation"
	"github.com/star/orrery/internal/transform"
	"gonum.org/v1/gonum/spatial/r3"
)

func main() {
	dir := flag.String("dir", "/tmp/orrery/neo", "NEO cache directory")
	limit := flag.Int("limit", 5, "NEOs to scan for approaches")
	days := flag.Float64("days", 365, "approach horizon in days")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	ds := catalog.NewRefresher(catalog.NewStore(), nil, catalog.NewCache(*dir, 0), 0, nil, logger).Bootstrap()
	fmt.Printf("Loaded %d bodies from %s (fetched %s)\n", len(ds.Bodies), ds.Source, ds.FetchedAt.Format(time.RFC3339))
	for kind, n := range ds.CountByKind() {
		fmt.Printf("  %-6s %d\n", kind, n)
	}

	now := time.Now().UTC()
	jd := transform.DateToJulian(now)
	fmt.Printf("\nPositions at %s (JD %.5f)\n", now.Format(time.RFC3339), jd)

	for _, b := range ds.Bodies {
		p, err := propagation.PositionAU(ds, b, jd)
		if err != nil {
			fmt.Printf("  %-24s ERROR %v\n", b.Name, err)
			continue
		}
		fmt.Printf("  %-24s x=%+9.4f y=%+9.4f z=%+9.4f r=%.4f AU\n", b.Name, p.X, p.Y, p.Z, r3.Norm(p))
	}

	var neos []catalog.Body
	for _, b := range ds.Bodies {
		if b.Kind == catalog.KindNEO && len(neos) < *limit {
			neos = append(neos, b)
		}
	}
	if len(neos) == 0 {
		fmt.Println("\nNo NEOs in catalog, scanning the Moon instead")
		moon, _ := ds.Lookup("moon")
		neos = []catalog.Body{moon}
	}

	results := approach.Predict(context.Background(), approach.Request{
		Dataset:     ds,
		Bodies:      neos,
		StartJD:     jd,
		HorizonDays: *days,
	})

	fmt.Printf("\nClose approaches to Earth over %.0f days\n", *days)
	total := 0
	for _, res := range results {
		if res.Error != "" {
			fmt.Printf("  %s: ERROR %s\n", res.Name, res.Error)
			continue
		}
		fmt.Printf("  %s: %d approaches\n", res.Name, len(res.Approaches))
		total += len(res.Approaches)
		for j, a := range res.Approaches {
			fmt.Printf("    %d: %s  %.6f AU\n", j, a.Time.Format(time.RFC3339), a.DistanceAU)
		}
	}
	fmt.Printf("\nTotal approaches found: %d\n", total)
}
