package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"atlaskg.org/internal/kg"
)

func (a *API) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	q := r.URL.Query()
	limit, ok := parseLimit(w, r, q.Get("limit"))
	if !ok {
		return
	}
	places, err := a.search.SearchPlaces(r.Context(), q.Get("q"), limit)
	if err != nil {
		writeSearchError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"places": places,
		"count":  len(places),
	})
}

func (a *API) handleGeoSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	q := r.URL.Query()
	limit, ok := parseLimit(w, r, q.Get("limit"))
	if !ok {
		return
	}
	var box kg.BoundingBox
	var err error
	if box.MinLat, err = parseCoord(q.Get("min_lat")); err == nil {
		if box.MinLon, err = parseCoord(q.Get("min_lon")); err == nil {
			if box.MaxLat, err = parseCoord(q.Get("max_lat")); err == nil {
				box.MaxLon, err = parseCoord(q.Get("max_lon"))
			}
		}
	}
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "min_lat, min_lon, max_lat and max_lon must be decimal coordinates")
		return
	}
	places, err := a.search.SearchWithin(r.Context(), q.Get("q"), box, limit)
	if err != nil {
		writeSearchError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"places": places,
		"count":  len(places),
	})
}

func parseLimit(w http.ResponseWriter, r *http.Request, raw string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		writeError(w, r, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	return n, true
}

func parseCoord(raw string) (float64, error) {
	return strconv.ParseFloat(raw, 64)
}

func writeSearchError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, kg.ErrInvalidQuery):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, kg.ErrUnavailable):
		writeError(w, r, http.StatusBadGateway, "knowledge graph unavailable")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
