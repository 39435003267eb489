package api

import (
	"fmt"
	"strconv"
	"strings"

	"dispatchmap/internal/model"
)

// parseLatLng parses "lat,lng".
func parseLatLng(s string) (model.GeoPoint, error) {
	latS, lngS, ok := strings.Cut(strings.TrimSpace(s), ",")
	if !ok {
		return model.GeoPoint{}, fmt.Errorf("expected lat,lng, got %q", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latS), 64)
	if err != nil {
		return model.GeoPoint{}, fmt.Errorf("lat: %w", err)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(lngS), 64)
	if err != nil {
		return model.GeoPoint{}, fmt.Errorf("lng: %w", err)
	}
	if lat < -90 || lat > 90 {
		return model.GeoPoint{}, fmt.Errorf("lat %v out of range", lat)
	}
	if lng < -180 || lng > 180 {
		return model.GeoPoint{}, fmt.Errorf("lng %v out of range", lng)
	}
	return model.GeoPoint{Lat: lat, Lng: lng}, nil
}

// parseComplexity accepts an empty value (1) or 1..3.
func parseComplexity(s string) (int, error) {
	if s == "" {
		return 1, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("complexity: %w", err)
	}
	if n < 1 || n > 3 {
		return 0, fmt.Errorf("complexity must be between 1 and 3, got %d", n)
	}
	return n, nil
}
