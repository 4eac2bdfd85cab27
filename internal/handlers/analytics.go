package handlers

import (
	"net/http"
	"strings"

	applog "labstock/internal/log"
	"labstock/models"
)

// AnalyticsResource dispatches /api/analytics/: dashboard, personnel,
// products, trends and autocomplete.
func AnalyticsResource(w http.ResponseWriter, r *http.Request) {
	if inventory == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "service unavailable")
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/analytics"), "/")
	switch path {
	case "dashboard":
		analyticsDashboard(w, r)
	case "personnel":
		analyticsPersonnel(w, r)
	case "products":
		analyticsProducts(w, r)
	case "trends":
		usageTrends(w, r)
	case "autocomplete":
		analyticsAutocomplete(w, r)
	default:
		http.NotFound(w, r)
	}
}

func analyticsDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start, end, err := analyticsWindow(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	personnel, err := inventory.PersonnelStats(ctx, start, end)
	if err != nil {
		applog.Error(ctx, "failed to build personnel stats", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to build analytics")
		return
	}
	products, err := inventory.ProductStats(ctx, start, end, 10)
	if err != nil {
		applog.Error(ctx, "failed to build product stats", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to build analytics")
		return
	}
	trends, err := inventory.UsageTrends(ctx, start, end, "day")
	if err != nil {
		applog.Error(ctx, "failed to build trend stats", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to build analytics")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"personnel": personnel,
		"products":  products,
		"trends":    trends,
	})
}

func analyticsPersonnel(w http.ResponseWriter, r *http.Request) {
	start, end, err := analyticsWindow(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	stats, err := inventory.PersonnelStats(r.Context(), start, end)
	if err != nil {
		applog.Error(r.Context(), "failed to build personnel stats", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to build personnel stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func analyticsProducts(w http.ResponseWriter, r *http.Request) {
	start, end, err := analyticsWindow(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	stats, err := inventory.ProductStats(r.Context(), start, end, queryInt(r, "limit", 10))
	if err != nil {
		applog.Error(r.Context(), "failed to build product stats", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to build product stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// analyticsAutocomplete suggests personnel names and product names for the
// record entry form.
func analyticsAutocomplete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	term := strings.TrimSpace(r.URL.Query().Get("q"))
	limit := queryInt(r, "limit", 10)
	if limit < 1 || limit > 50 {
		limit = 10
	}

	personnelQuery := inventory.DB().WithContext(ctx).Model(&models.UsageRecord{}).Distinct("personnel")
	productQuery := inventory.DB().WithContext(ctx).Model(&models.StorageItem{})
	if term != "" {
		pattern := "%" + strings.ToLower(term) + "%"
		personnelQuery = personnelQuery.Where("lower(personnel) LIKE ?", pattern)
		productQuery = productQuery.Where("lower(name) LIKE ?", pattern)
	}

	var personnel []string
	if err := personnelQuery.Order("personnel").Limit(limit).Pluck("personnel", &personnel).Error; err != nil {
		applog.Error(ctx, "failed to autocomplete personnel", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to autocomplete")
		return
	}
	var products []string
	if err := productQuery.Order("name").Limit(limit).Pluck("name", &products).Error; err != nil {
		applog.Error(ctx, "failed to autocomplete products", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to autocomplete")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"personnel": personnel,
		"products":  products,
	})
}
