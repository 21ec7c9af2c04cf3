package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/star/orrery/internal/approach"
	"github.com/star/orrery/internal/catalog"
	"github.com/star/orrery/internal/orbit"
	"github.com/star/orrery/internal/propagation"
	"github.com/star/orrery/internal/transform"
	"gonum.org/v1/gonum/spatial/r3"
)

// dateFlags selects the date a query is evaluated at.
type dateFlags struct {
	jd   float64
	time string
}

func (d *dateFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&d.jd, "jd", 0, "Julian Date (default: now)")
	cmd.Flags().StringVar(&d.time, "time", "", "UTC time, RFC 3339 (default: now)")
}

func (d *dateFlags) julian() (float64, error) {
	switch {
	case d.jd != 0 && d.time != "":
		return 0, errors.New("specify at most one of --jd and --time")
	case d.jd != 0:
		return d.jd, nil
	case d.time != "":
		t, err := time.Parse(time.RFC3339Nano, d.time)
		if err != nil {
			return 0, fmt.Errorf("invalid --time: %w", err)
		}
		return transform.DateToJulian(t), nil
	}
	return transform.DateToJulian(time.Now()), nil
}

// dataset returns the built-in bodies plus the newest cached NEO catalog.
// Query commands never touch the network.
func (a *app) dataset() (*catalog.Dataset, error) {
	cfg := loadCatalogConfig(a.v, a.logger)
	cfg.FetchEnabled = false
	refresher, err := newRefresher(cfg, catalog.NewStore(), a.logger)
	if err != nil {
		return nil, err
	}
	return refresher.Bootstrap(), nil
}

// keplerOptions applies the configured Kepler iteration bound to CLI queries.
func (a *app) keplerOptions() []orbit.Option {
	return []orbit.Option{orbit.WithMaxIterations(
		intSetting(a.v, a.logger, "kepler_max_iter", orbit.MaxKeplerIterations, 1),
	)}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func vec3(v r3.Vec) [3]float64 {
	return [3]float64{v.X, v.Y, v.Z}
}

func (a *app) positionCmd() *cobra.Command {
	var (
		date  dateFlags
		scale float64
	)
	cmd := &cobra.Command{
		Use:   "position <body>",
		Short: "Print a body's ecliptic J2000 position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jd, err := date.julian()
			if err != nil {
				return err
			}
			ds, err := a.dataset()
			if err != nil {
				return err
			}
			b, err := ds.Lookup(args[0])
			if err != nil {
				return err
			}

			pos, err := propagation.DisplayPosition(ds, b, jd, scale, a.keplerOptions()...)
			if err != nil {
				return fmt.Errorf("%s: %w", b.Name, err)
			}
			au, err := propagation.PositionAU(ds, b, jd, a.keplerOptions()...)
			if err != nil {
				return fmt.Errorf("%s: %w", b.Name, err)
			}

			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"name":        b.Name,
				"kind":        b.Kind,
				"jd":          jd,
				"time":        transform.JulianToDate(jd),
				"scale":       scale,
				"position":    vec3(pos),
				"position_au": vec3(au),
				"distance_au": r3.Norm(au),
			})
		},
	}
	date.register(cmd)
	cmd.Flags().Float64Var(&scale, "scale", transform.DefaultOrbitScale, "display units per AU")
	return cmd
}

func (a *app) orbitCmd() *cobra.Command {
	var (
		date    dateFlags
		scale   float64
		samples int
	)
	cmd := &cobra.Command{
		Use:   "orbit <body>",
		Short: "Print a body's sampled orbit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jd, err := date.julian()
			if err != nil {
				return err
			}
			ds, err := a.dataset()
			if err != nil {
				return err
			}
			b, err := ds.Lookup(args[0])
			if err != nil {
				return err
			}

			path, err := propagation.OrbitPath(ds, b, jd, scale, samples, a.keplerOptions()...)
			if err != nil {
				return fmt.Errorf("%s: %w", b.Name, err)
			}
			points := make([][3]float64, len(path))
			for i, p := range path {
				points[i] = vec3(p)
			}

			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"name":    b.Name,
				"jd":      jd,
				"scale":   scale,
				"samples": samples,
				"points":  points,
			})
		},
	}
	date.register(cmd)
	cmd.Flags().Float64Var(&scale, "scale", transform.DefaultOrbitScale, "display units per AU")
	cmd.Flags().IntVar(&samples, "samples", orbit.DefaultSamples, "points along the orbit")
	return cmd
}

func (a *app) julianCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "julian [jd|time]",
		Short: "Convert between UTC and Julian Date",
		Long:  "With a number, prints the UTC time of that Julian Date. With an RFC 3339 time, prints its Julian Date. With no argument, uses now.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var jd float64
			switch {
			case len(args) == 0:
				jd = transform.DateToJulian(time.Now())
			default:
				if f, err := strconv.ParseFloat(args[0], 64); err == nil {
					jd = f
					break
				}
				t, err := time.Parse(time.RFC3339Nano, args[0])
				if err != nil {
					return fmt.Errorf("%q is neither a Julian Date nor an RFC 3339 time", args[0])
				}
				jd = transform.DateToJulian(t)
			}

			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"jd":                    jd,
				"time":                  transform.JulianToDate(jd),
				"centuries_since_j2000": transform.CenturiesSinceJ2000(jd),
			})
		},
	}
}

func (a *app) approachesCmd() *cobra.Command {
	var (
		date dateFlags
		req  approach.Request
	)
	cmd := &cobra.Command{
		Use:   "approaches [body...]",
		Short: "Predict close approaches to a reference body (default: every NEO)",
		RunE: func(cmd *cobra.Command, args []string) error {
			jd, err := date.julian()
			if err != nil {
				return err
			}
			ds, err := a.dataset()
			if err != nil {
				return err
			}
			ref, err := ds.Lookup(req.Reference)
			if err != nil {
				return fmt.Errorf("reference: %w", err)
			}

			var bodies []catalog.Body
			for _, name := range args {
				b, err := ds.Lookup(name)
				if err != nil {
					return err
				}
				bodies = append(bodies, b)
			}
			if len(args) == 0 {
				for _, b := range ds.Bodies {
					if b.Kind == catalog.KindNEO {
						bodies = append(bodies, b)
					}
				}
			}

			req.Dataset = ds
			req.Bodies = bodies
			req.Reference = ref.Name
			req.StartJD = jd
			return writeJSON(cmd.OutOrStdout(), approach.Predict(context.Background(), req))
		},
	}
	date.register(cmd)
	cmd.Flags().StringVar(&req.Reference, "reference", approach.DefaultReference, "body distances are measured from")
	cmd.Flags().Float64Var(&req.HorizonDays, "days", approach.DefaultHorizonDays, "days to scan")
	cmd.Flags().Float64Var(&req.StepDays, "step", approach.DefaultStepDays, "coarse scan step in days")
	cmd.Flags().Float64Var(&req.ThresholdAU, "threshold", 0, "only report approaches closer than this many AU (0: all)")
	cmd.Flags().IntVar(&req.MaxApproaches, "max", approach.DefaultMaxApproaches, "approaches per body")
	return cmd
}
