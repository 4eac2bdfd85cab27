package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"labstock/internal/excel"
	"labstock/internal/ledger"
	applog "labstock/internal/log"
	"labstock/internal/service"
	"labstock/models"
)

// storageItemRequest accepts both the canonical keys and the legacy Chinese
// spreadsheet keys.
type storageItemRequest struct {
	Category      *string  `json:"category"`
	CategoryAlias *string  `json:"类型"`
	Name          *string  `json:"name"`
	NameAlias     *string  `json:"产品名"`
	Brand         *string  `json:"brand"`
	BrandAlias    *string  `json:"品牌"`
	QuantityText  *string  `json:"quantity_text"`
	QuantityAlias *string  `json:"数量及数量单位"`
	Location      *string  `json:"location"`
	LocationAlias *string  `json:"存放地"`
	CASNumber     *string  `json:"cas_number"`
	CASAlias      *string  `json:"CAS号"`
	Quantity      *float64 `json:"current_quantity"`
	QuantityZh    *float64 `json:"当前库存量"`
	Unit          *string  `json:"unit"`
	UnitAlias     *string  `json:"单位"`
}

func (p storageItemRequest) input() service.ItemInput {
	in := service.ItemInput{
		Category:     coalesce(p.Category, p.CategoryAlias),
		Name:         coalesce(p.Name, p.NameAlias),
		Brand:        coalesce(p.Brand, p.BrandAlias),
		QuantityText: coalesce(p.QuantityText, p.QuantityAlias),
		Location:     coalesce(p.Location, p.LocationAlias),
		CASNumber:    coalesce(p.CASNumber, p.CASAlias),
		Unit:         coalesce(p.Unit, p.UnitAlias),
	}
	if p.Quantity != nil {
		in.CurrentQuantity = p.Quantity
	} else if p.QuantityZh != nil {
		in.CurrentQuantity = p.QuantityZh
	}
	return in
}

type usageRequest struct {
	Personnel      *string  `json:"personnel"`
	PersonnelAlias *string  `json:"使用人"`
	Date           *string  `json:"used_on"`
	DateAlias      *string  `json:"使用日期"`
	Amount         *float64 `json:"amount"`
	AmountAlias    *float64 `json:"使用量"`
	Unit           *string  `json:"unit"`
	UnitAlias      *string  `json:"单位"`
	Notes          *string  `json:"notes"`
	NotesAlias     *string  `json:"备注"`
}

type storageItemResponse struct {
	models.StorageItem
	StockStatus ledger.StockStatus `json:"stock_status"`
}

func projectItem(item models.StorageItem) storageItemResponse {
	return storageItemResponse{StorageItem: item, StockStatus: inventory.Classify(&item)}
}

// writeServiceError maps service and ledger failures onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var insufficient *ledger.InsufficientStockError
	var invalidAmount *ledger.InvalidAmountError
	var unsupported *ledger.UnsupportedUnitError
	var malformed *ledger.MalformedQuantityTextError

	switch {
	case errors.Is(err, service.ErrItemNotFound), errors.Is(err, service.ErrRecordNotFound):
		http.NotFound(w, r)
	case errors.Is(err, service.ErrDuplicateName):
		writeJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrHasUsageRecords):
		writeJSONError(w, http.StatusConflict, "item has usage records; pass cascade=true to delete them as well")
	case errors.Is(err, service.ErrConflict):
		writeJSONError(w, http.StatusConflict, "the item was modified concurrently, please retry")
	case errors.Is(err, service.ErrUnitMismatch):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &insufficient), errors.As(err, &invalidAmount),
		errors.As(err, &unsupported), errors.As(err, &malformed):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	default:
		applog.Error(r.Context(), fallback, "error", err)
		writeJSONError(w, http.StatusInternalServerError, fallback)
	}
}

// StorageCollection handles GET (list) and POST (create) on /api/storage.
func StorageCollection(w http.ResponseWriter, r *http.Request) {
	if inventory == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "service unavailable")
		return
	}

	switch r.Method {
	case http.MethodGet:
		listStorageItems(w, r)
	case http.MethodPost:
		createStorageItem(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

var storageSortColumns = map[string]string{
	"name":             "name",
	"category":         "category",
	"location":         "location",
	"current_quantity": "current_quantity",
	"created_at":       "created_at",
	"updated_at":       "updated_at",
}

func listStorageItems(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	params := pagination(r)

	q := inventory.DB().WithContext(ctx).Model(&models.StorageItem{})
	q = applySearch(q, r.URL.Query().Get("search"), "name", "brand", "cas_number", "location")
	if category := strings.TrimSpace(r.URL.Query().Get("type")); category != "" {
		q = q.Where("category = ?", category)
	}
	if location := strings.TrimSpace(r.URL.Query().Get("location")); location != "" {
		q = q.Where("location = ?", location)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		applog.Error(ctx, "failed to count storage items", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to list storage items")
		return
	}

	q = applySort(q, r.URL.Query().Get("sort_by"), r.URL.Query().Get("sort_order"), "name asc", storageSortColumns)

	var items []models.StorageItem
	if err := paginate(q, params).Find(&items).Error; err != nil {
		applog.Error(ctx, "failed to list storage items", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to list storage items")
		return
	}

	responses := make([]storageItemResponse, 0, len(items))
	for _, item := range items {
		responses = append(responses, projectItem(item))
	}
	writeJSON(w, http.StatusOK, envelope(responses, total, params))
}

func createStorageItem(w http.ResponseWriter, r *http.Request) {
	var payload storageItemRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	item, err := inventory.CreateItem(r.Context(), payload.input())
	if err != nil {
		writeServiceError(w, r, err, "unable to create storage item")
		return
	}
	writeJSON(w, http.StatusCreated, projectItem(*item))
}

// StorageResource dispatches everything under /api/storage/: the fixed
// sub-resources first, then the per-item routes.
func StorageResource(w http.ResponseWriter, r *http.Request) {
	if inventory == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "service unavailable")
		return
	}

	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/storage"), "/")
	segments := strings.Split(path, "/")

	switch segments[0] {
	case "":
		StorageCollection(w, r)
		return
	case "available":
		storageAvailable(w, r)
		return
	case "low-stock":
		storageLowStock(w, r)
		return
	case "locations":
		storageDistinct(w, r, "location")
		return
	case "types":
		storageDistinct(w, r, "category")
		return
	case "brands":
		storageDistinct(w, r, "brand")
		return
	case "bulk-update":
		storageBulkUpdate(w, r)
		return
	case "import":
		storageImport(w, r)
		return
	case "export":
		storageExport(w, r)
		return
	case "template":
		storageTemplate(w, r)
		return
	}

	itemID, ok := parseIDSegment(segments[0])
	if !ok {
		http.NotFound(w, r)
		return
	}

	if len(segments) > 1 {
		switch segments[1] {
		case "use":
			if r.Method != http.MethodPost {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			recordStorageUsage(w, r, itemID)
		case "deletion-info":
			if r.Method != http.MethodGet {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			info, err := inventory.DeletionPreview(r.Context(), itemID)
			if err != nil {
				writeServiceError(w, r, err, "unable to inspect storage item")
				return
			}
			writeJSON(w, http.StatusOK, info)
		default:
			http.NotFound(w, r)
		}
		return
	}

	switch r.Method {
	case http.MethodGet:
		item, err := inventory.GetItem(r.Context(), itemID)
		if err != nil {
			writeServiceError(w, r, err, "unable to load storage item")
			return
		}
		writeJSON(w, http.StatusOK, projectItem(*item))

	case http.MethodPut:
		var payload storageItemRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request payload")
			return
		}
		item, err := inventory.UpdateItem(r.Context(), itemID, payload.input())
		if err != nil {
			writeServiceError(w, r, err, "unable to update storage item")
			return
		}
		writeJSON(w, http.StatusOK, projectItem(*item))

	case http.MethodDelete:
		cascade := strings.EqualFold(r.URL.Query().Get("cascade"), "true")
		if err := inventory.DeleteItem(r.Context(), itemID, cascade); err != nil {
			writeServiceError(w, r, err, "unable to delete storage item")
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func recordStorageUsage(w http.ResponseWriter, r *http.Request, itemID uint) {
	var payload usageRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	input := service.UsageInput{}
	if personnel := coalesce(payload.Personnel, payload.PersonnelAlias); personnel != nil {
		input.Personnel = *personnel
	}
	if payload.Amount != nil {
		input.Amount = *payload.Amount
	} else if payload.AmountAlias != nil {
		input.Amount = *payload.AmountAlias
	}
	if unit := coalesce(payload.Unit, payload.UnitAlias); unit != nil {
		input.Unit = *unit
	}
	if notes := coalesce(payload.Notes, payload.NotesAlias); notes != nil {
		input.Notes = *notes
	}
	if date := coalesce(payload.Date, payload.DateAlias); date != nil {
		usedOn, err := parseUsageDate(*date)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		input.UsedOn = usedOn
	}
	if userID, ok := currentUserID(r); ok {
		input.UserID = &userID
	}

	record, err := inventory.RecordUsage(r.Context(), itemID, input)
	if err != nil {
		writeServiceError(w, r, err, "unable to record usage")
		return
	}

	item, err := inventory.GetItem(r.Context(), itemID)
	if err != nil {
		writeServiceError(w, r, err, "unable to reload storage item")
		return
	}
	// Older clients read usage_record/storage_item; keep both spellings.
	projected := projectItem(*item)
	writeJSON(w, http.StatusCreated, map[string]any{
		"record":       record,
		"usage_record": record,
		"item":         projected,
		"storage_item": projected,
	})
}

func storageAvailable(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	limit := queryInt(r, "limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}

	q := inventory.DB().WithContext(ctx).Model(&models.StorageItem{}).Where("current_quantity > 0")
	q = applySearch(q, r.URL.Query().Get("q"), "name", "cas_number")

	var items []models.StorageItem
	if err := q.Order("name").Limit(limit).Find(&items).Error; err != nil {
		applog.Error(ctx, "failed to list available items", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to list available items")
		return
	}

	responses := make([]storageItemResponse, 0, len(items))
	for _, item := range items {
		responses = append(responses, projectItem(item))
	}
	writeJSON(w, http.StatusOK, responses)
}

func storageLowStock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	threshold := queryFloat(r, "threshold", 0)
	items, statuses, err := inventory.LowStockItems(r.Context(), threshold)
	if err != nil {
		applog.Error(r.Context(), "failed to list low stock items", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to list low stock items")
		return
	}

	type lowStockResponse struct {
		models.StorageItem
		StockStatus ledger.StockStatus `json:"stock_status"`
	}
	responses := make([]lowStockResponse, 0, len(items))
	for i, item := range items {
		responses = append(responses, lowStockResponse{StorageItem: item, StockStatus: statuses[i]})
	}
	writeJSON(w, http.StatusOK, responses)
}

func storageDistinct(w http.ResponseWriter, r *http.Request, column string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()

	var values []string
	err := inventory.DB().WithContext(ctx).Model(&models.StorageItem{}).
		Distinct(column).
		Where(column + " <> ''").
		Order(column).
		Pluck(column, &values).Error
	if err != nil {
		applog.Error(ctx, "failed to list distinct values", "error", err, "column", column)
		writeJSONError(w, http.StatusInternalServerError, "unable to list values")
		return
	}
	writeJSON(w, http.StatusOK, values)
}

func storageBulkUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var payload struct {
		IDs     []uint `json:"ids"`
		Updates struct {
			Category *string `json:"category"`
			Location *string `json:"location"`
			Brand    *string `json:"brand"`
		} `json:"updates"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if len(payload.IDs) == 0 {
		writeJSONError(w, http.StatusBadRequest, "ids is required")
		return
	}

	updates := map[string]any{}
	if payload.Updates.Category != nil {
		updates["category"] = strings.TrimSpace(*payload.Updates.Category)
	}
	if payload.Updates.Location != nil {
		updates["location"] = strings.TrimSpace(*payload.Updates.Location)
	}
	if payload.Updates.Brand != nil {
		updates["brand"] = strings.TrimSpace(*payload.Updates.Brand)
	}
	if len(updates) == 0 {
		writeJSONError(w, http.StatusBadRequest, "nothing to update")
		return
	}

	ctx := r.Context()
	result := inventory.DB().WithContext(ctx).Model(&models.StorageItem{}).
		Where("id IN ?", payload.IDs).
		Updates(updates)
	if result.Error != nil {
		applog.Error(ctx, "bulk update failed", "error", result.Error)
		writeJSONError(w, http.StatusInternalServerError, "unable to update items")
		return
	}

	applog.Info(ctx, "bulk update applied", "items", result.RowsAffected)
	writeJSON(w, http.StatusOK, map[string]any{"updated": result.RowsAffected})
}

type importSummary struct {
	Created int              `json:"created"`
	Merged  int              `json:"merged"`
	Skipped int              `json:"skipped"`
	Errors  []excel.RowError `json:"errors"`
}

func storageImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeJSONError(w, http.StatusRequestEntityTooLarge, "upload is too large or invalid")
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	rows, rowErrors, err := excel.ParseStorageSheet(file)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	summary := importSummary{Errors: rowErrors}
	for _, row := range rows {
		existing, err := inventory.FindExisting(ctx, row.Name, row.CASNumber, row.Location)
		if err != nil {
			applog.Error(ctx, "import lookup failed", "error", err, "row", row.Line)
			summary.Errors = append(summary.Errors, excel.RowError{Line: row.Line, Message: "lookup failed"})
			continue
		}

		if existing != nil {
			value, unit, parseErr := ledger.ParseQuantity(row.QuantityText)
			if row.CurrentQuantity != nil {
				value = *row.CurrentQuantity
				if row.Unit != "" {
					unit = row.Unit
				}
				parseErr = nil
			}
			if parseErr != nil || ledger.NormalizeUnit(unit) != ledger.NormalizeUnit(existing.Unit) {
				summary.Skipped++
				summary.Errors = append(summary.Errors, excel.RowError{
					Line:    row.Line,
					Message: fmt.Sprintf("item %q already exists with unit %s; row skipped", existing.Name, existing.Unit),
				})
				continue
			}
			if _, err := inventory.MergeQuantity(ctx, existing.ID, value, unit); err != nil {
				summary.Errors = append(summary.Errors, excel.RowError{Line: row.Line, Message: err.Error()})
				continue
			}
			summary.Merged++
			continue
		}

		input := service.ItemInput{
			Category:     &row.Category,
			Name:         &row.Name,
			QuantityText: &row.QuantityText,
			Location:     &row.Location,
		}
		if row.Brand != "" {
			input.Brand = &row.Brand
		}
		if row.CASNumber != "" {
			input.CASNumber = &row.CASNumber
		}
		if row.CurrentQuantity != nil {
			input.CurrentQuantity = row.CurrentQuantity
		}
		if row.Unit != "" {
			input.Unit = &row.Unit
		}

		if _, err := inventory.CreateItem(ctx, input); err != nil {
			summary.Errors = append(summary.Errors, excel.RowError{Line: row.Line, Message: err.Error()})
			continue
		}
		summary.Created++
	}

	applog.Info(ctx, "storage import finished",
		"created", summary.Created, "merged", summary.Merged,
		"skipped", summary.Skipped, "errors", len(summary.Errors))
	writeJSON(w, http.StatusOK, summary)
}

func storageExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()

	var items []models.StorageItem
	if err := inventory.DB().WithContext(ctx).Order("name").Find(&items).Error; err != nil {
		applog.Error(ctx, "failed to load items for export", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to export storage items")
		return
	}

	statuses := make([]ledger.StockStatus, len(items))
	for i := range items {
		statuses[i] = inventory.Classify(&items[i])
	}

	blob, err := excel.ExportStorage(items, statuses)
	if err != nil {
		applog.Error(ctx, "failed to build export workbook", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to export storage items")
		return
	}

	sendWorkbook(w, excel.ExportFilename(time.Now().UTC()), blob)
}

func storageTemplate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	blob, err := excel.Template()
	if err != nil {
		applog.Error(r.Context(), "failed to build template workbook", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to build template")
		return
	}
	sendWorkbook(w, "storage_import_template.xlsx", blob)
}

func sendWorkbook(w http.ResponseWriter, filename string, blob []byte) {
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(blob); err != nil {
		applog.Error(context.Background(), "failed to write workbook response", "error", err)
	}
}
