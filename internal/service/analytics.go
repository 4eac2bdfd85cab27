package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"labstock/internal/ledger"
	"labstock/models"
)

// DashboardSummary is the landing-page aggregate view of the inventory.
type DashboardSummary struct {
	TotalItems      int64                 `json:"total_items"`
	TotalRecords    int64                 `json:"total_records"`
	LowStockCount   int                   `json:"low_stock_count"`
	OutOfStockCount int                   `json:"out_of_stock_count"`
	Categories      []CategoryCount       `json:"categories"`
	RecentRecords   []models.UsageRecord  `json:"recent_records"`
	LowStockItems   []LowStockItemSummary `json:"low_stock_items"`
}

// CategoryCount is one slice of the category breakdown.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int64  `json:"count"`
}

// LowStockItemSummary pairs an item with its stock classification.
type LowStockItemSummary struct {
	Item   models.StorageItem `json:"item"`
	Status ledger.StockStatus `json:"status"`
}

// Dashboard builds the aggregate inventory view.
func (s *Service) Dashboard(ctx context.Context) (*DashboardSummary, error) {
	summary := &DashboardSummary{}
	q := s.db.WithContext(ctx)

	if err := q.Model(&models.StorageItem{}).Count(&summary.TotalItems).Error; err != nil {
		return nil, err
	}
	if err := q.Model(&models.UsageRecord{}).Count(&summary.TotalRecords).Error; err != nil {
		return nil, err
	}

	if err := q.Model(&models.StorageItem{}).
		Select("category, count(*) as count").
		Group("category").
		Order("count desc").
		Scan(&summary.Categories).Error; err != nil {
		return nil, err
	}

	if err := q.Order("used_on desc, id desc").Limit(5).Find(&summary.RecentRecords).Error; err != nil {
		return nil, err
	}

	var items []models.StorageItem
	if err := q.Find(&items).Error; err != nil {
		return nil, err
	}
	for i := range items {
		status := s.Classify(&items[i])
		switch status.Status {
		case ledger.StatusOutOfStock:
			summary.OutOfStockCount++
			summary.LowStockItems = append(summary.LowStockItems, LowStockItemSummary{Item: items[i], Status: status})
		case ledger.StatusLow, ledger.StatusLowWarning:
			summary.LowStockCount++
			summary.LowStockItems = append(summary.LowStockItems, LowStockItemSummary{Item: items[i], Status: status})
		}
	}

	return summary, nil
}

// PersonnelStat aggregates usage by the person who drew the stock.
type PersonnelStat struct {
	Personnel   string  `json:"personnel"`
	RecordCount int64   `json:"record_count"`
	TotalAmount float64 `json:"total_amount"`
}

// PersonnelStats ranks personnel by activity inside the given window.
// Zero times mean an unbounded window.
func (s *Service) PersonnelStats(ctx context.Context, from, to time.Time) ([]PersonnelStat, error) {
	q := s.db.WithContext(ctx).Model(&models.UsageRecord{})
	q = boundUsedOn(q, from, to)

	var stats []PersonnelStat
	err := q.Select("personnel, count(*) as record_count, sum(amount) as total_amount").
		Group("personnel").
		Order("record_count desc").
		Scan(&stats).Error
	return stats, err
}

// ProductStat aggregates usage by product.
type ProductStat struct {
	ProductName string  `json:"product_name"`
	Category    string  `json:"category"`
	RecordCount int64   `json:"record_count"`
	TotalAmount float64 `json:"total_amount"`
	Unit        string  `json:"unit"`
}

// ProductStats ranks products by how often they are drawn from.
func (s *Service) ProductStats(ctx context.Context, from, to time.Time, limit int) ([]ProductStat, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	q := s.db.WithContext(ctx).Model(&models.UsageRecord{})
	q = boundUsedOn(q, from, to)

	var stats []ProductStat
	err := q.Select("product_name, category, count(*) as record_count, sum(amount) as total_amount, unit").
		Group("product_name, category, unit").
		Order("record_count desc").
		Limit(limit).
		Scan(&stats).Error
	return stats, err
}

// TrendBucket is one point in a usage-over-time series.
type TrendBucket struct {
	Period      string  `json:"period"`
	RecordCount int64   `json:"record_count"`
	TotalAmount float64 `json:"total_amount"`
}

// UsageTrends buckets usage records by day, ISO week, or month. Bucketing
// happens in Go so the query stays portable across sqlite and postgres.
func (s *Service) UsageTrends(ctx context.Context, from, to time.Time, granularity string) ([]TrendBucket, error) {
	q := s.db.WithContext(ctx).Model(&models.UsageRecord{})
	q = boundUsedOn(q, from, to)

	var records []models.UsageRecord
	if err := q.Select("used_on, amount").Find(&records).Error; err != nil {
		return nil, err
	}

	buckets := make(map[string]*TrendBucket)
	for i := range records {
		key := bucketKey(records[i].UsedOn, granularity)
		bucket, ok := buckets[key]
		if !ok {
			bucket = &TrendBucket{Period: key}
			buckets[key] = bucket
		}
		bucket.RecordCount++
		bucket.TotalAmount += records[i].Amount
	}

	trends := make([]TrendBucket, 0, len(buckets))
	for _, bucket := range buckets {
		trends = append(trends, *bucket)
	}
	sort.Slice(trends, func(i, j int) bool { return trends[i].Period < trends[j].Period })
	return trends, nil
}

// TurnoverEntry relates an item's draw-down rate to its remaining stock.
type TurnoverEntry struct {
	Item        models.StorageItem `json:"item"`
	UsedAmount  float64            `json:"used_amount"`
	RecordCount int64              `json:"record_count"`
	Status      ledger.StockStatus `json:"status"`
}

// Turnover summarizes per-item consumption inside the window, most active
// first. Items without usage in the window are omitted.
func (s *Service) Turnover(ctx context.Context, from, to time.Time) ([]TurnoverEntry, error) {
	type usageRow struct {
		StorageItemID uint
		UsedAmount    float64
		RecordCount   int64
	}

	q := s.db.WithContext(ctx).Model(&models.UsageRecord{}).Where("storage_item_id IS NOT NULL")
	q = boundUsedOn(q, from, to)

	var rows []usageRow
	if err := q.Select("storage_item_id, sum(amount) as used_amount, count(*) as record_count").
		Group("storage_item_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]uint, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.StorageItemID)
	}

	var items []models.StorageItem
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&items).Error; err != nil {
		return nil, err
	}
	byID := make(map[uint]models.StorageItem, len(items))
	for i := range items {
		byID[items[i].ID] = items[i]
	}

	entries := make([]TurnoverEntry, 0, len(rows))
	for _, row := range rows {
		item, ok := byID[row.StorageItemID]
		if !ok {
			continue
		}
		entries = append(entries, TurnoverEntry{
			Item:        item,
			UsedAmount:  row.UsedAmount,
			RecordCount: row.RecordCount,
			Status:      s.Classify(&item),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].UsedAmount > entries[j].UsedAmount })
	return entries, nil
}

// UsageHistory returns an item's usage records, newest first.
func (s *Service) UsageHistory(ctx context.Context, itemID uint, limit int) ([]models.UsageRecord, error) {
	if _, err := s.GetItem(ctx, itemID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var records []models.UsageRecord
	err := s.db.WithContext(ctx).
		Where("storage_item_id = ?", itemID).
		Order("used_on desc, id desc").
		Limit(limit).
		Find(&records).Error
	return records, err
}

func boundUsedOn(q *gorm.DB, from, to time.Time) *gorm.DB {
	if !from.IsZero() {
		q = q.Where("used_on >= ?", from)
	}
	if !to.IsZero() {
		q = q.Where("used_on <= ?", to)
	}
	return q
}

func bucketKey(t time.Time, granularity string) string {
	switch granularity {
	case "week":
		year, week := t.ISOWeek()
		return fmt.Sprintf("%d-W%02d", year, week)
	case "month":
		return t.Format("2006-01")
	default:
		return t.Format("2006-01-02")
	}
}
