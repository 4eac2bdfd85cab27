package service

import (
	"context"
	"testing"
	"time"

	"labstock/models"
)

func seedUsage(t *testing.T, svc *Service, item *models.StorageItem, personnel string, day time.Time, amount float64) {
	t.Helper()
	_, err := svc.RecordUsage(context.Background(), item.ID, UsageInput{
		Personnel: personnel,
		UsedOn:    day,
		Amount:    amount,
		Unit:      item.Unit,
	})
	if err != nil {
		t.Fatalf("seed usage: %v", err)
	}
}

func TestDashboardAggregates(t *testing.T) {
	t.Parallel()
	svc := withServiceTestDatabase(t)
	ctx := context.Background()

	item := createTestItem(t, svc, "氯化钠", "1000g")
	seedUsage(t, svc, item, "张伟", time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC), 950)

	depleted, err := svc.CreateItem(ctx, ItemInput{
		Name:            strPtr("碘化钾"),
		Category:        strPtr("无机盐"),
		QuantityText:    strPtr("100g"),
		CurrentQuantity: floatPtr(0),
		Unit:            strPtr("g"),
	})
	if err != nil {
		t.Fatalf("create depleted item: %v", err)
	}
	_ = depleted

	summary, err := svc.Dashboard(ctx)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if summary.TotalItems != 2 || summary.TotalRecords != 1 {
		t.Fatalf("unexpected totals: %+v", summary)
	}
	if summary.OutOfStockCount != 1 {
		t.Fatalf("expected one out-of-stock item, got %d", summary.OutOfStockCount)
	}
	// 氯化钠 sits at 50/1000 = 5%, which is low.
	if summary.LowStockCount != 1 {
		t.Fatalf("expected one low item, got %d", summary.LowStockCount)
	}
	if len(summary.RecentRecords) != 1 {
		t.Fatalf("expected one recent record, got %d", len(summary.RecentRecords))
	}
	if len(summary.Categories) == 0 {
		t.Fatal("expected category breakdown")
	}
}

func TestPersonnelAndProductStats(t *testing.T) {
	t.Parallel()
	svc := withServiceTestDatabase(t)
	ctx := context.Background()

	item := createTestItem(t, svc, "乙醇", "1000g")
	day := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	seedUsage(t, svc, item, "张伟", day, 10)
	seedUsage(t, svc, item, "张伟", day.AddDate(0, 0, 1), 20)
	seedUsage(t, svc, item, "李娜", day.AddDate(0, 0, 2), 5)

	people, err := svc.PersonnelStats(ctx, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("personnel stats: %v", err)
	}
	if len(people) != 2 {
		t.Fatalf("expected two personnel rows, got %d", len(people))
	}
	if people[0].Personnel != "张伟" || people[0].RecordCount != 2 || people[0].TotalAmount != 30 {
		t.Fatalf("unexpected top personnel row: %+v", people[0])
	}

	products, err := svc.ProductStats(ctx, time.Time{}, time.Time{}, 10)
	if err != nil {
		t.Fatalf("product stats: %v", err)
	}
	if len(products) != 1 || products[0].ProductName != "乙醇" || products[0].RecordCount != 3 {
		t.Fatalf("unexpected product stats: %+v", products)
	}

	windowed, err := svc.PersonnelStats(ctx, day.AddDate(0, 0, 2), time.Time{})
	if err != nil {
		t.Fatalf("windowed stats: %v", err)
	}
	if len(windowed) != 1 || windowed[0].Personnel != "李娜" {
		t.Fatalf("date window not applied: %+v", windowed)
	}
}

func TestUsageTrendsBucketsByGranularity(t *testing.T) {
	t.Parallel()
	svc := withServiceTestDatabase(t)
	ctx := context.Background()

	item := createTestItem(t, svc, "丙酮", "1000ml")
	seedUsage(t, svc, item, "张伟", time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC), 10)
	seedUsage(t, svc, item, "张伟", time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC), 20)
	seedUsage(t, svc, item, "李娜", time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC), 5)

	daily, err := svc.UsageTrends(ctx, time.Time{}, time.Time{}, "day")
	if err != nil {
		t.Fatalf("daily trends: %v", err)
	}
	if len(daily) != 2 {
		t.Fatalf("expected two daily buckets, got %d", len(daily))
	}
	if daily[1].Period != "2026-08-02" || daily[1].RecordCount != 2 || daily[1].TotalAmount != 25 {
		t.Fatalf("unexpected daily bucket: %+v", daily[1])
	}

	monthly, err := svc.UsageTrends(ctx, time.Time{}, time.Time{}, "month")
	if err != nil {
		t.Fatalf("monthly trends: %v", err)
	}
	if len(monthly) != 2 || monthly[0].Period != "2026-07" || monthly[1].Period != "2026-08" {
		t.Fatalf("unexpected monthly buckets: %+v", monthly)
	}
}

func TestTurnoverRanksByConsumption(t *testing.T) {
	t.Parallel()
	svc := withServiceTestDatabase(t)
	ctx := context.Background()

	heavy := createTestItem(t, svc, "甲醇", "1000ml")
	light := createTestItem(t, svc, "乙腈", "1000ml")
	day := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	seedUsage(t, svc, heavy, "张伟", day, 400)
	seedUsage(t, svc, light, "李娜", day, 50)

	entries, err := svc.Turnover(ctx, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("turnover: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected two turnover entries, got %d", len(entries))
	}
	if entries[0].Item.ID != heavy.ID || entries[0].UsedAmount != 400 {
		t.Fatalf("expected heaviest consumer first: %+v", entries[0])
	}
}

func TestUsageHistoryNewestFirst(t *testing.T) {
	t.Parallel()
	svc := withServiceTestDatabase(t)
	ctx := context.Background()

	item := createTestItem(t, svc, "氨水", "1000ml")
	seedUsage(t, svc, item, "张伟", time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), 10)
	seedUsage(t, svc, item, "李娜", time.Date(2026, 8, 5, 0, 0, 0, 0, time.UTC), 20)

	history, err := svc.UsageHistory(ctx, item.ID, 0)
	if err != nil {
		t.Fatalf("usage history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected two records, got %d", len(history))
	}
	if !history[0].UsedOn.After(history[1].UsedOn) {
		t.Fatalf("history not newest-first: %v then %v", history[0].UsedOn, history[1].UsedOn)
	}

	if _, err := svc.UsageHistory(ctx, 9999, 0); err == nil {
		t.Fatal("expected error for unknown item")
	}
}
