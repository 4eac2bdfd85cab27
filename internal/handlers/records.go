package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"gorm.io/gorm"

	applog "labstock/internal/log"
	"labstock/internal/service"
	"labstock/models"
)

var recordSortColumns = map[string]string{
	"used_on":      "used_on",
	"product_name": "product_name",
	"personnel":    "personnel",
	"amount":       "amount",
	"created_at":   "created_at",
}

// RecordsCollection handles /api/records. Creation through this endpoint was
// retired in favor of POST /api/storage/{id}/use, which keeps the balance and
// the history in one transaction; POST answers 410 with migration guidance.
func RecordsCollection(w http.ResponseWriter, r *http.Request) {
	if inventory == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "service unavailable")
		return
	}

	switch r.Method {
	case http.MethodGet:
		listRecords(w, r)
	case http.MethodPost:
		writeJSON(w, http.StatusGone, map[string]string{
			"error":     "this endpoint has been retired",
			"migration": "record usage with POST /api/storage/{id}/use so the item balance stays consistent",
		})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func listRecords(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	params := pagination(r)

	q := inventory.DB().WithContext(ctx).Model(&models.UsageRecord{})
	q = applySearch(q, r.URL.Query().Get("search"), "product_name", "personnel", "cas_number", "notes")
	if personnel := strings.TrimSpace(r.URL.Query().Get("personnel")); personnel != "" {
		q = q.Where("personnel = ?", personnel)
	}
	if product := strings.TrimSpace(r.URL.Query().Get("product")); product != "" {
		q = q.Where("product_name = ?", product)
	}
	if category := strings.TrimSpace(r.URL.Query().Get("type")); category != "" {
		q = q.Where("category = ?", category)
	}

	start, hasStart, err := queryDate(r, "start_date")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if hasStart {
		q = q.Where("used_on >= ?", start)
	}
	end, hasEnd, err := queryDate(r, "end_date")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if hasEnd {
		q = q.Where("used_on <= ?", end)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		applog.Error(ctx, "failed to count usage records", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to list usage records")
		return
	}

	q = applySort(q, r.URL.Query().Get("sort_by"), r.URL.Query().Get("sort_order"), "used_on desc, id desc", recordSortColumns)

	var records []models.UsageRecord
	if err := paginate(q, params).Find(&records).Error; err != nil {
		applog.Error(ctx, "failed to list usage records", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to list usage records")
		return
	}

	// Dropdown values for the list filters ride along with the page.
	var personnelValues, productValues []string
	if err := inventory.DB().WithContext(ctx).Model(&models.UsageRecord{}).
		Distinct("personnel").Order("personnel").Pluck("personnel", &personnelValues).Error; err != nil {
		applog.Error(ctx, "failed to list personnel filter values", "error", err)
	}
	if err := inventory.DB().WithContext(ctx).Model(&models.UsageRecord{}).
		Distinct("product_name").Order("product_name").Pluck("product_name", &productValues).Error; err != nil {
		applog.Error(ctx, "failed to list product filter values", "error", err)
	}

	page := envelope(records, total, params)
	writeJSON(w, http.StatusOK, map[string]any{
		"items":    page.Items,
		"total":    page.Total,
		"page":     page.Page,
		"per_page": page.PerPage,
		"pages":    page.Pages,
		"has_next": page.HasNext,
		"has_prev": page.HasPrev,
		"filters": map[string]any{
			"personnel": personnelValues,
			"products":  productValues,
		},
	})
}

// RecordResource handles /api/records/{id} plus the fixed sub-resources
// /api/records/recent and /api/records/search.
func RecordResource(w http.ResponseWriter, r *http.Request) {
	if inventory == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "service unavailable")
		return
	}

	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/records"), "/")
	switch path {
	case "":
		RecordsCollection(w, r)
		return
	case "recent":
		recentRecords(w, r)
		return
	case "search":
		searchRecords(w, r)
		return
	}

	recordID, ok := parseIDSegment(path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		var record models.UsageRecord
		if err := inventory.DB().WithContext(r.Context()).First(&record, recordID).Error; err != nil {
			writeServiceError(w, r, recordLookup(err), "unable to load usage record")
			return
		}
		writeJSON(w, http.StatusOK, record)

	case http.MethodPut:
		updateRecord(w, r, recordID)

	case http.MethodDelete:
		if err := inventory.DeleteUsage(r.Context(), recordID); err != nil {
			writeServiceError(w, r, err, "unable to delete usage record")
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func recordLookup(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return service.ErrRecordNotFound
	}
	return err
}

func updateRecord(w http.ResponseWriter, r *http.Request, recordID uint) {
	var payload usageRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	input := service.UsageUpdateInput{
		Personnel: coalesce(payload.Personnel, payload.PersonnelAlias),
		Unit:      coalesce(payload.Unit, payload.UnitAlias),
		Notes:     coalesce(payload.Notes, payload.NotesAlias),
	}
	if payload.Amount != nil {
		input.Amount = payload.Amount
	} else if payload.AmountAlias != nil {
		input.Amount = payload.AmountAlias
	}
	if date := coalesce(payload.Date, payload.DateAlias); date != nil {
		usedOn, err := parseUsageDate(*date)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		input.UsedOn = &usedOn
	}

	record, err := inventory.UpdateUsage(r.Context(), recordID, input)
	if err != nil {
		writeServiceError(w, r, err, "unable to update usage record")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func recentRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	limit := queryInt(r, "limit", 10)
	if limit < 1 || limit > 100 {
		limit = 10
	}

	var records []models.UsageRecord
	if err := inventory.DB().WithContext(ctx).
		Order("used_on desc, id desc").
		Limit(limit).
		Find(&records).Error; err != nil {
		applog.Error(ctx, "failed to list recent records", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to list recent records")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func searchRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()

	term := strings.TrimSpace(r.URL.Query().Get("q"))
	if term == "" {
		writeJSON(w, http.StatusOK, []models.UsageRecord{})
		return
	}
	limit := queryInt(r, "limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}

	q := inventory.DB().WithContext(ctx).Model(&models.UsageRecord{})
	q = applySearch(q, term, "product_name", "personnel", "cas_number", "location", "notes")

	var records []models.UsageRecord
	if err := q.Order("used_on desc, id desc").Limit(limit).Find(&records).Error; err != nil {
		applog.Error(ctx, "failed to search records", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to search records")
		return
	}
	writeJSON(w, http.StatusOK, records)
}
