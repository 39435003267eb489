// Package cli implements dispatchctl, the operator command line:
//
//	dispatchctl estimate --from 50.08,14.42 --to 50.07,14.43 --complexity 2
//	dispatchctl plan --file stops.json [--router osrm] [--debug]
//	dispatchctl version
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/kr/pretty"
	"github.com/spf13/cobra"

	"dispatchmap/internal/buildinfo"
	"dispatchmap/internal/geo"
	"dispatchmap/internal/model"
	"dispatchmap/internal/routing"
)

// BuildCLI returns the root command.
func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "dispatchctl",
		Short:         "Delivery route estimates from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(buildEstimateCommand(), buildPlanCommand(), buildVersionCommand())
	return rootCmd
}

type estimateFlags struct {
	policy string
	speed  float64
}

func (f estimateFlags) estimator() (geo.Estimator, error) {
	per, err := geo.PolicyMinutes(f.policy)
	if err != nil {
		return geo.Estimator{}, err
	}
	return geo.Estimator{AvgSpeedKmh: f.speed, MinutesPerLevel: per}, nil
}

func (f *estimateFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.policy, "policy", "delivery-list", "handling policy: delivery-list or route-manager")
	cmd.Flags().Float64Var(&f.speed, "speed", geo.DefaultAvgSpeedKmh, "average driving speed in km/h")
}

func buildEstimateCommand() *cobra.Command {
	var (
		from, to   string
		complexity int
		ef         estimateFlags
	)
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Straight-line distance, drive and handling time between two points",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := parsePoint(from)
			if err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			b, err := parsePoint(to)
			if err != nil {
				return fmt.Errorf("--to: %w", err)
			}
			est, err := ef.estimator()
			if err != nil {
				return err
			}
			leg := est.Leg(model.Order{Location: a}, model.Order{Location: b, Product: model.Product{Complexity: complexity}})
			fmt.Fprintf(cmd.OutOrStdout(), "distance: %.2f km\ndrive:    %d min\nhandling: %d min\ntotal:    %d min\n",
				leg.DistanceKm, leg.DriveMinutes, leg.HandlingMinutes, leg.DriveMinutes+leg.HandlingMinutes)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "origin as lat,lng")
	cmd.Flags().StringVar(&to, "to", "", "destination as lat,lng")
	cmd.Flags().IntVar(&complexity, "complexity", 1, "product complexity at the destination (1-3)")
	ef.register(cmd)
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

// PlanStop is one entry of the stops file.
type PlanStop struct {
	ID         string         `json:"id"`
	Location   model.GeoPoint `json:"location"`
	Complexity int            `json:"complexity"`
}

// PlanLeg is one row of the plan output.
type PlanLeg struct {
	From            string
	To              string
	DistanceKm      float64
	DriveMinutes    int
	HandlingMinutes int
	Source          string
	Error           string
}

func buildPlanCommand() *cobra.Command {
	var (
		file, router, apiKey string
		debug                bool
		ef                   estimateFlags
	)
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Per-leg estimates for an ordered stops file",
		RunE: func(cmd *cobra.Command, args []string) error {
			stops, err := loadStops(file)
			if err != nil {
				return err
			}
			est, err := ef.estimator()
			if err != nil {
				return err
			}
			r, err := routing.New(routing.Config{Backend: router, APIKey: apiKey, Timeout: 10 * time.Second, Estimator: est})
			if err != nil {
				return err
			}
			legs := Plan(cmd.Context(), stops, est, r)
			if debug {
				_, _ = pretty.Fprintf(cmd.ErrOrStderr(), "%# v\n", legs)
			}
			return printPlan(cmd.OutOrStdout(), legs)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON file with an ordered array of stops")
	cmd.Flags().StringVar(&router, "router", "straight", "routing backend: straight, osrm, here, mapy, google")
	cmd.Flags().StringVar(&apiKey, "api-key", os.Getenv("ROUTING_API_KEY"), "API key for here, mapy or google")
	cmd.Flags().BoolVar(&debug, "debug", false, "dump the computed legs to stderr")
	ef.register(cmd)
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func loadStops(path string) ([]PlanStop, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read stops: %w", err)
	}
	var stops []PlanStop
	if err := json.Unmarshal(data, &stops); err != nil {
		return nil, fmt.Errorf("parse stops: %w", err)
	}
	if len(stops) < 2 {
		return nil, fmt.Errorf("need at least two stops, got %d", len(stops))
	}
	for i := range stops {
		if stops[i].ID == "" {
			stops[i].ID = strconv.Itoa(i + 1)
		}
	}
	return stops, nil
}

// Plan computes consecutive legs. A failed route falls back to the
// straight-line estimate and keeps the error.
func Plan(ctx context.Context, stops []PlanStop, est geo.Estimator, r routing.Router) []PlanLeg {
	legs := make([]PlanLeg, 0, len(stops))
	for i := 1; i < len(stops); i++ {
		a, b := stops[i-1], stops[i]
		leg := PlanLeg{From: a.ID, To: b.ID, HandlingMinutes: est.HandlingMinutes(b.Complexity), Source: r.Name()}
		rd, err := r.Route(ctx, a.Location, b.Location)
		if err != nil {
			rd = est.Fallback(a.Location, b.Location, routing.Reason(err))
			leg.Source = "estimate"
			leg.Error = err.Error()
		}
		leg.DistanceKm = rd.DistanceM / 1000
		leg.DriveMinutes = int(rd.DurationS/60 + 0.5)
		legs = append(legs, leg)
	}
	return legs
}

func printPlan(w io.Writer, legs []PlanLeg) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FROM\tTO\tKM\tDRIVE\tHANDLING\tSOURCE")
	var km float64
	var drive, handling int
	for _, l := range legs {
		src := l.Source
		if l.Error != "" {
			src += " (" + l.Error + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%d\t%d\t%s\n", l.From, l.To, l.DistanceKm, l.DriveMinutes, l.HandlingMinutes, src)
		km += l.DistanceKm
		drive += l.DriveMinutes
		handling += l.HandlingMinutes
	}
	fmt.Fprintf(tw, "TOTAL\t\t%.2f\t%d\t%d\t%d min\n", km, drive, handling, drive+handling)
	return tw.Flush()
}

func buildVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := buildinfo.Info()
			fmt.Fprintf(cmd.OutOrStdout(), "dispatchctl %s commit=%s built=%s %s\n", info["version"], info["commit"], info["builtAt"], info["go"])
			return nil
		},
	}
}

func parsePoint(s string) (model.GeoPoint, error) {
	latS, lngS, ok := strings.Cut(s, ",")
	if !ok {
		return model.GeoPoint{}, fmt.Errorf("expected lat,lng, got %q", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latS), 64)
	if err != nil {
		return model.GeoPoint{}, err
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(lngS), 64)
	if err != nil {
		return model.GeoPoint{}, err
	}
	return model.GeoPoint{Lat: lat, Lng: lng}, nil
}
