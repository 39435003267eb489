package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dispatchmap/internal/geo"
	"dispatchmap/internal/model"
	"dispatchmap/internal/routing"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := BuildCLI()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestEstimateCommand(t *testing.T) {
	out, err := run(t, "estimate", "--from", "51.505,-0.09", "--to", "48.8566,2.3522", "--complexity", "2", "--policy", "route-manager")
	require.NoError(t, err)
	assert.Contains(t, out, "handling: 60 min")
	assert.Contains(t, out, "distance: 34")
}

func TestEstimateCommandRejectsBadInput(t *testing.T) {
	_, err := run(t, "estimate", "--from", "nowhere", "--to", "1,1")
	assert.Error(t, err)
	_, err = run(t, "estimate", "--from", "1,1", "--to", "1,1", "--policy", "express")
	assert.Error(t, err)
}

func TestPlanCommand(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "stops.json")
	stops := `[
	  {"id": "depot", "location": {"lat": 50.0875, "lng": 14.4213}},
	  {"id": "a", "location": {"lat": 50.0810, "lng": 14.4280}, "complexity": 3},
	  {"location": {"lat": 50.0755, "lng": 14.4378}, "complexity": 2}
	]`
	require.NoError(t, os.WriteFile(file, []byte(stops), 0o600))

	out, err := run(t, "plan", "--file", file)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[1], "depot"))
	assert.Equal(t, "3", strings.Fields(lines[2])[1], "unnamed stop gets its position as id")
	assert.Contains(t, lines[3], " 100 ", "handling total")
}

func TestPlanCommandNeedsTwoStops(t *testing.T) {
	file := filepath.Join(t.TempDir(), "one.json")
	require.NoError(t, os.WriteFile(file, []byte(`[{"id":"x","location":{"lat":1,"lng":1}}]`), 0o600))
	_, err := run(t, "plan", "--file", file)
	assert.ErrorContains(t, err, "at least two stops")
}

type brokenRouter struct{}

func (brokenRouter) Name() string { return "broken" }
func (brokenRouter) Route(context.Context, model.GeoPoint, model.GeoPoint) (model.RouteData, error) {
	return model.RouteData{}, errors.New("no tiles")
}

func TestPlanFallsBackToEstimate(t *testing.T) {
	stops := []PlanStop{
		{ID: "a", Location: model.GeoPoint{Lat: 51.505, Lng: -0.09}},
		{ID: "b", Location: model.GeoPoint{Lat: 48.8566, Lng: 2.3522}, Complexity: 1},
	}
	est := geo.DefaultEstimator()
	legs := Plan(context.Background(), stops, est, brokenRouter{})
	require.Len(t, legs, 1)
	assert.Equal(t, "estimate", legs[0].Source)
	assert.Equal(t, "no tiles", legs[0].Error)
	assert.Greater(t, legs[0].DriveMinutes, 100)

	ok := Plan(context.Background(), stops, est, routing.Straight{Estimator: est})
	assert.Equal(t, "straight", ok[0].Source)
	assert.Empty(t, ok[0].Error)
	assert.InDelta(t, legs[0].DistanceKm, ok[0].DistanceKm, 1e-6)
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "dispatchctl dev"))
}
