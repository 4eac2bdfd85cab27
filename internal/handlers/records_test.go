package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"labstock/models"
)

func seedRecord(t *testing.T, db *gorm.DB, item *models.StorageItem, personnel string, amount float64, usedOn time.Time) models.UsageRecord {
	t.Helper()
	record := models.UsageRecord{
		Category:    "化学试剂",
		ProductName: "试剂",
		Personnel:   personnel,
		UsedOn:      usedOn,
		Amount:      amount,
		Unit:        "g",
	}
	if item != nil {
		record.StorageItemID = &item.ID
		record.ProductName = item.Name
		record.Category = item.Category
		record.Unit = item.Unit
	}
	if err := db.Create(&record).Error; err != nil {
		t.Fatalf("failed to seed usage record: %v", err)
	}
	return record
}

func TestRecordsCollectionPostIsRetired(t *testing.T) {
	_, cleanup := withTestDatabase(t)
	t.Cleanup(cleanup)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/records", strings.NewReader(`{"product_name":"丙酮"}`))
	RecordsCollection(rr, req)

	if rr.Code != http.StatusGone {
		t.Fatalf("expected 410, got %d", rr.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !strings.Contains(resp["migration"], "/api/storage/") {
		t.Fatalf("expected migration guidance, got %+v", resp)
	}
}

func TestRecordsCollectionListsWithFilters(t *testing.T) {
	db, cleanup := withTestDatabase(t)
	t.Cleanup(cleanup)

	day := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	seedRecord(t, db, nil, "张伟", 5, day)
	seedRecord(t, db, nil, "李娜", 3, day.AddDate(0, 0, 10))
	seedRecord(t, db, nil, "张伟", 2, day.AddDate(0, 0, 20))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/records?personnel=张伟&start_date=2026-08-05", nil)
	RecordsCollection(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var page struct {
		Items   []models.UsageRecord `json:"items"`
		Total   int64                `json:"total"`
		Filters struct {
			Personnel []string `json:"personnel"`
			Products  []string `json:"products"`
		} `json:"filters"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if page.Total != 1 || len(page.Items) != 1 {
		t.Fatalf("expected one filtered record, got total=%d items=%d", page.Total, len(page.Items))
	}
	if len(page.Filters.Personnel) != 2 {
		t.Fatalf("expected both personnel in the filter values, got %v", page.Filters.Personnel)
	}
}

func TestRecordResourceGetAndNotFound(t *testing.T) {
	db, cleanup := withTestDatabase(t)
	t.Cleanup(cleanup)

	record := seedRecord(t, db, nil, "张伟", 5, time.Now().UTC())

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/records/%d", record.ID), nil)
	RecordResource(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/records/99999", nil)
	RecordResource(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing record, got %d", rr.Code)
	}
}

func TestRecordResourceUpdateReplaysBalance(t *testing.T) {
	db, cleanup := withTestDatabase(t)
	t.Cleanup(cleanup)

	item := seedItem(t, db, models.StorageItem{Name: "氯化钠", CurrentQuantity: 100, Unit: "g", QuantityText: "1000g"})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/storage/%d/use", item.ID), strings.NewReader(`{"personnel":"张伟","amount":5}`))
	StorageResource(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("seed usage: expected 201, got %d", rr.Code)
	}
	var created struct {
		Record models.UsageRecord `json:"record"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created record: %v", err)
	}

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPut, fmt.Sprintf("/api/records/%d", created.Record.ID), strings.NewReader(`{"amount":8}`))
	RecordResource(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var updated models.UsageRecord
	if err := json.Unmarshal(rr.Body.Bytes(), &updated); err != nil {
		t.Fatalf("decode updated record: %v", err)
	}
	if updated.Amount != 8 || updated.Remaining != 92 {
		t.Fatalf("expected replayed balance 92, got %+v", updated)
	}

	var reloaded models.StorageItem
	if err := db.First(&reloaded, item.ID).Error; err != nil {
		t.Fatalf("reload item: %v", err)
	}
	if reloaded.CurrentQuantity != 92 {
		t.Fatalf("expected item balance 92, got %v", reloaded.CurrentQuantity)
	}
}

func TestRecordResourceDeleteRestoresBalance(t *testing.T) {
	db, cleanup := withTestDatabase(t)
	t.Cleanup(cleanup)

	item := seedItem(t, db, models.StorageItem{Name: "丙酮", CurrentQuantity: 500, Unit: "ml", QuantityText: "500ml"})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/storage/%d/use", item.ID), strings.NewReader(`{"personnel":"李娜","amount":50}`))
	StorageResource(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("seed usage: expected 201, got %d", rr.Code)
	}
	var created struct {
		Record models.UsageRecord `json:"record"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created record: %v", err)
	}

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/api/records/%d", created.Record.ID), nil)
	RecordResource(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}

	var reloaded models.StorageItem
	if err := db.First(&reloaded, item.ID).Error; err != nil {
		t.Fatalf("reload item: %v", err)
	}
	if reloaded.CurrentQuantity != 500 {
		t.Fatalf("expected balance restored to 500, got %v", reloaded.CurrentQuantity)
	}
}

func TestRecentRecordsAreNewestFirst(t *testing.T) {
	db, cleanup := withTestDatabase(t)
	t.Cleanup(cleanup)

	day := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	seedRecord(t, db, nil, "张伟", 1, day)
	seedRecord(t, db, nil, "李娜", 2, day.AddDate(0, 0, 5))
	seedRecord(t, db, nil, "张伟", 3, day.AddDate(0, 0, 2))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/records/recent?limit=2", nil)
	RecordResource(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var records []models.UsageRecord
	if err := json.Unmarshal(rr.Body.Bytes(), &records); err != nil {
		t.Fatalf("decode records: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected limit of 2, got %d", len(records))
	}
	if !records[0].UsedOn.After(records[1].UsedOn) {
		t.Fatalf("expected newest first, got %v then %v", records[0].UsedOn, records[1].UsedOn)
	}
}

func TestSearchRecordsRequiresTerm(t *testing.T) {
	db, cleanup := withTestDatabase(t)
	t.Cleanup(cleanup)

	seedRecord(t, db, nil, "张伟", 1, time.Now().UTC())

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/records/search", nil)
	RecordResource(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if body := strings.TrimSpace(rr.Body.String()); body != "[]" {
		t.Fatalf("expected empty result without a term, got %s", body)
	}

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/records/search?q=张伟", nil)
	RecordResource(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var records []models.UsageRecord
	if err := json.Unmarshal(rr.Body.Bytes(), &records); err != nil {
		t.Fatalf("decode records: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one match, got %d", len(records))
	}
}
