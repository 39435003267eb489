package api

import (
    "net/http"

    "dispatchmap/internal/geo"
)

// EstimateHandler handles GET /v1/estimate?from=lat,lng&to=lat,lng&complexity=n&policy=.
// It returns the straight-line leg estimate shown when no route is available.
func (s *Server) EstimateHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    q := r.URL.Query()
    from, err := parseLatLng(q.Get("from"))
    if err != nil { writeProblem(w, http.StatusBadRequest, "Invalid from", err.Error(), r.URL.Path); return }
    to, err := parseLatLng(q.Get("to"))
    if err != nil { writeProblem(w, http.StatusBadRequest, "Invalid to", err.Error(), r.URL.Path); return }
    complexity, err := parseComplexity(q.Get("complexity"))
    if err != nil { writeProblem(w, http.StatusBadRequest, "Invalid complexity", err.Error(), r.URL.Path); return }

    est := s.Estimator
    if p := q.Get("policy"); p != "" {
        per, err := geo.PolicyMinutes(p)
        if err != nil { writeProblem(w, http.StatusBadRequest, "Invalid policy", err.Error(), r.URL.Path); return }
        est.MinutesPerLevel = per
    }
    d := geo.DistanceKm(from, to)
    drive := est.DriveMinutes(d)
    handling := est.HandlingMinutes(complexity)
    writeJSON(w, http.StatusOK, map[string]any{
        "distanceKm":      d,
        "driveMinutes":    drive,
        "handlingMinutes": handling,
        "totalMinutes":    drive + handling,
    })
}
