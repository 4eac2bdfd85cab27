package handlers

import (
	"net/http"
	"strings"
	"time"

	applog "labstock/internal/log"
)

// InventoryResource dispatches /api/inventory/: dashboard, alerts,
// usage-history/{id}, trends and turnover.
func InventoryResource(w http.ResponseWriter, r *http.Request) {
	if inventory == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "service unavailable")
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/inventory"), "/")
	segments := strings.Split(path, "/")

	switch segments[0] {
	case "dashboard":
		inventoryDashboard(w, r)
	case "alerts":
		storageLowStock(w, r)
	case "usage-history":
		if len(segments) < 2 {
			http.NotFound(w, r)
			return
		}
		itemID, ok := parseIDSegment(segments[1])
		if !ok {
			http.NotFound(w, r)
			return
		}
		inventoryUsageHistory(w, r, itemID)
	case "trends":
		usageTrends(w, r)
	case "turnover":
		inventoryTurnover(w, r)
	default:
		http.NotFound(w, r)
	}
}

func inventoryDashboard(w http.ResponseWriter, r *http.Request) {
	summary, err := inventory.Dashboard(r.Context())
	if err != nil {
		applog.Error(r.Context(), "failed to build dashboard", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to build dashboard")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func inventoryUsageHistory(w http.ResponseWriter, r *http.Request, itemID uint) {
	limit := queryInt(r, "limit", 100)
	records, err := inventory.UsageHistory(r.Context(), itemID, limit)
	if err != nil {
		writeServiceError(w, r, err, "unable to load usage history")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func analyticsWindow(r *http.Request) (time.Time, time.Time, error) {
	start, _, err := queryDate(r, "start_date")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, _, err := queryDate(r, "end_date")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

func usageTrends(w http.ResponseWriter, r *http.Request) {
	start, end, err := analyticsWindow(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	granularity := strings.TrimSpace(r.URL.Query().Get("granularity"))
	switch granularity {
	case "", "day", "week", "month":
	default:
		writeJSONError(w, http.StatusBadRequest, "granularity must be day, week or month")
		return
	}

	trends, err := inventory.UsageTrends(r.Context(), start, end, granularity)
	if err != nil {
		applog.Error(r.Context(), "failed to build usage trends", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to build usage trends")
		return
	}
	writeJSON(w, http.StatusOK, trends)
}

func inventoryTurnover(w http.ResponseWriter, r *http.Request) {
	start, end, err := analyticsWindow(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := inventory.Turnover(r.Context(), start, end)
	if err != nil {
		applog.Error(r.Context(), "failed to build turnover", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to build turnover")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
