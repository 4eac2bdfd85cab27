// Package service owns the transactional inventory operations: every balance
// mutation loads a storage item, applies the ledger arithmetic in memory, and
// commits with an optimistic version check so concurrent writers cannot both
// win.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"labstock/internal/ledger"
	applog "labstock/internal/log"
	"labstock/models"
)

var (
	// ErrConflict reports a lost optimistic-lock race; the caller may retry.
	ErrConflict = errors.New("storage item was modified concurrently")
	// ErrDuplicateName reports an attempt to create an item whose name exists.
	ErrDuplicateName = errors.New("storage item with this name already exists")
	// ErrItemNotFound reports a missing storage item.
	ErrItemNotFound = errors.New("storage item not found")
	// ErrRecordNotFound reports a missing usage record.
	ErrRecordNotFound = errors.New("usage record not found")
	// ErrHasUsageRecords blocks item deletion while history exists.
	ErrHasUsageRecords = errors.New("storage item still has usage records")
	// ErrUnitMismatch reports a merge between incompatible units.
	ErrUnitMismatch = errors.New("units do not match")
)

// Service bundles the database handle with the configured stock thresholds.
type Service struct {
	db         *gorm.DB
	thresholds ledger.Thresholds
}

// New builds a Service. Zero thresholds fall back to the defaults.
func New(db *gorm.DB, thresholds ledger.Thresholds) *Service {
	if thresholds.Low <= 0 && thresholds.Warning <= 0 {
		thresholds = ledger.DefaultThresholds
	}
	return &Service{db: db, thresholds: thresholds}
}

// DB exposes the underlying handle for read-side query composition.
func (s *Service) DB() *gorm.DB {
	return s.db
}

// Thresholds returns the configured classification thresholds.
func (s *Service) Thresholds() ledger.Thresholds {
	return s.thresholds
}

// Classify applies the configured thresholds to an item snapshot.
func (s *Service) Classify(item *models.StorageItem) ledger.StockStatus {
	return ledger.ClassifyWith(item, s.thresholds)
}

// ItemInput carries the writable storage-item fields. Pointer fields
// distinguish "absent" from zero on updates.
type ItemInput struct {
	Category        *string
	Name            *string
	Brand           *string
	QuantityText    *string
	Location        *string
	CASNumber       *string
	CurrentQuantity *float64
	Unit            *string
}

// CreateItem inserts a new storage item. The initial balance comes from the
// parsed QuantityText unless CurrentQuantity is supplied explicitly.
func (s *Service) CreateItem(ctx context.Context, input ItemInput) (*models.StorageItem, error) {
	item := models.StorageItem{Unit: "g"}
	applyItemInput(&item, input)

	if strings.TrimSpace(item.Name) == "" {
		return nil, fmt.Errorf("item name is required")
	}
	if strings.TrimSpace(item.QuantityText) == "" {
		return nil, fmt.Errorf("quantity text is required")
	}

	if input.CurrentQuantity == nil {
		value, unit, err := ledger.ParseQuantity(item.QuantityText)
		if err != nil {
			return nil, err
		}
		item.CurrentQuantity = value
		if input.Unit == nil {
			item.Unit = ledger.NormalizeUnit(unit)
		}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.StorageItem{}).Where("name = ?", item.Name).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicateName
		}
		return tx.Create(&item).Error
	})
	if err != nil {
		return nil, err
	}

	applog.Info(ctx, "storage item created", "item", item.ID, "name", item.Name)
	return &item, nil
}

// UpdateItem applies partial edits. A new QuantityText without an explicit
// CurrentQuantity re-derives the balance from the parsed text.
func (s *Service) UpdateItem(ctx context.Context, id uint, input ItemInput) (*models.StorageItem, error) {
	var item models.StorageItem

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&item, id).Error; err != nil {
			return itemLookupError(err)
		}

		if input.Name != nil && *input.Name != item.Name {
			var count int64
			if err := tx.Model(&models.StorageItem{}).
				Where("name = ? AND id <> ?", *input.Name, id).Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return ErrDuplicateName
			}
		}

		priorVersion := item.Version
		applyItemInput(&item, input)

		if input.QuantityText != nil && input.CurrentQuantity == nil {
			value, unit, err := ledger.ParseQuantity(item.QuantityText)
			if err != nil {
				return err
			}
			item.CurrentQuantity = value
			if input.Unit == nil {
				item.Unit = ledger.NormalizeUnit(unit)
			}
		}

		item.Version = priorVersion + 1
		result := tx.Model(&models.StorageItem{}).
			Where("id = ? AND version = ?", item.ID, priorVersion).
			Updates(map[string]any{
				"category":         item.Category,
				"name":             item.Name,
				"brand":            item.Brand,
				"quantity_text":    item.QuantityText,
				"location":         item.Location,
				"cas_number":       item.CASNumber,
				"current_quantity": item.CurrentQuantity,
				"unit":             item.Unit,
				"version":          item.Version,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrConflict
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &item, nil
}

// GetItem loads a single storage item.
func (s *Service) GetItem(ctx context.Context, id uint) (*models.StorageItem, error) {
	var item models.StorageItem
	if err := s.db.WithContext(ctx).First(&item, id).Error; err != nil {
		return nil, itemLookupError(err)
	}
	return &item, nil
}

// DeleteItem removes a storage item. Items with usage history are protected
// unless the caller opts into a cascade, which removes the history too.
func (s *Service) DeleteItem(ctx context.Context, id uint, cascade bool) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item models.StorageItem
		if err := tx.First(&item, id).Error; err != nil {
			return itemLookupError(err)
		}

		var count int64
		if err := tx.Model(&models.UsageRecord{}).Where("storage_item_id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			if !cascade {
				return ErrHasUsageRecords
			}
			if err := tx.Where("storage_item_id = ?", id).Delete(&models.UsageRecord{}).Error; err != nil {
				return err
			}
		}

		if err := tx.Delete(&item).Error; err != nil {
			return err
		}
		applog.Info(ctx, "storage item deleted", "item", id, "cascade", cascade, "records_removed", count)
		return nil
	})
}

// DeletionInfo reports what a delete of the item would touch.
type DeletionInfo struct {
	Item        *models.StorageItem `json:"item"`
	RecordCount int64               `json:"record_count"`
	CanDelete   bool                `json:"can_delete"`
}

// DeletionPreview counts the usage records a delete would cascade over.
func (s *Service) DeletionPreview(ctx context.Context, id uint) (*DeletionInfo, error) {
	item, err := s.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.UsageRecord{}).
		Where("storage_item_id = ?", id).Count(&count).Error; err != nil {
		return nil, err
	}
	return &DeletionInfo{Item: item, RecordCount: count, CanDelete: count == 0}, nil
}

// UsageInput describes one usage event.
type UsageInput struct {
	Personnel string
	UsedOn    time.Time
	Amount    float64
	Unit      string
	Notes     string
	UserID    *uint
}

// RecordUsage debits the item balance and appends a usage record with the
// item snapshot, atomically.
func (s *Service) RecordUsage(ctx context.Context, itemID uint, input UsageInput) (*models.UsageRecord, error) {
	if len(strings.TrimSpace(input.Personnel)) < 2 {
		return nil, fmt.Errorf("personnel name must have at least 2 characters")
	}

	var record models.UsageRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item models.StorageItem
		if err := tx.First(&item, itemID).Error; err != nil {
			return itemLookupError(err)
		}

		priorVersion := item.Version
		unit := input.Unit
		if strings.TrimSpace(unit) == "" {
			unit = item.Unit
		}
		if err := ledger.Apply(&item, ledger.ModeCreate, input.Amount, unit, nil); err != nil {
			return err
		}
		if err := s.commitBalance(tx, &item, priorVersion); err != nil {
			return err
		}

		usedOn := input.UsedOn
		if usedOn.IsZero() {
			usedOn = time.Now().UTC()
		}

		record = models.UsageRecord{
			StorageItemID: &item.ID,
			UserID:        input.UserID,
			Category:      item.Category,
			ProductName:   item.Name,
			QuantityText:  item.QuantityText,
			Location:      item.Location,
			CASNumber:     item.CASNumber,
			Personnel:     strings.TrimSpace(input.Personnel),
			UsedOn:        usedOn,
			Amount:        input.Amount,
			Remaining:     item.CurrentQuantity,
			Unit:          ledger.NormalizeUnit(unit),
			Notes:         input.Notes,
		}
		return tx.Create(&record).Error
	})
	if err != nil {
		return nil, err
	}

	applog.Info(ctx, "usage recorded", "item", itemID, "record", record.ID, "amount", record.Amount, "unit", record.Unit)
	return &record, nil
}

// UsageUpdateInput carries the editable fields of an existing usage record.
type UsageUpdateInput struct {
	Personnel *string
	UsedOn    *time.Time
	Amount    *float64
	Unit      *string
	Notes     *string
}

// UpdateUsage edits a usage record. An amount or unit change replays the
// balance as replace-previous-with-new in one indivisible step.
func (s *Service) UpdateUsage(ctx context.Context, recordID uint, input UsageUpdateInput) (*models.UsageRecord, error) {
	var record models.UsageRecord

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&record, recordID).Error; err != nil {
			return recordLookupError(err)
		}

		newAmount := record.Amount
		if input.Amount != nil {
			newAmount = *input.Amount
		}
		newUnit := record.Unit
		if input.Unit != nil {
			newUnit = *input.Unit
		}

		amountChanged := newAmount != record.Amount || ledger.NormalizeUnit(newUnit) != ledger.NormalizeUnit(record.Unit)
		if amountChanged && record.StorageItemID != nil {
			var item models.StorageItem
			if err := tx.First(&item, *record.StorageItemID).Error; err != nil {
				return itemLookupError(err)
			}
			priorVersion := item.Version
			prev := &ledger.Usage{Amount: record.Amount, Unit: record.Unit}
			if err := ledger.Apply(&item, ledger.ModeUpdate, newAmount, newUnit, prev); err != nil {
				return err
			}
			if err := s.commitBalance(tx, &item, priorVersion); err != nil {
				return err
			}
			record.Remaining = item.CurrentQuantity
		}

		record.Amount = newAmount
		record.Unit = ledger.NormalizeUnit(newUnit)
		if input.Personnel != nil {
			if len(strings.TrimSpace(*input.Personnel)) < 2 {
				return fmt.Errorf("personnel name must have at least 2 characters")
			}
			record.Personnel = strings.TrimSpace(*input.Personnel)
		}
		if input.UsedOn != nil {
			record.UsedOn = *input.UsedOn
		}
		if input.Notes != nil {
			record.Notes = *input.Notes
		}

		return tx.Save(&record).Error
	})
	if err != nil {
		return nil, err
	}

	return &record, nil
}

// DeleteUsage removes a usage record and credits its amount back to the item.
func (s *Service) DeleteUsage(ctx context.Context, recordID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record models.UsageRecord
		if err := tx.First(&record, recordID).Error; err != nil {
			return recordLookupError(err)
		}

		if record.StorageItemID != nil {
			var item models.StorageItem
			err := tx.First(&item, *record.StorageItemID).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				// Item already gone; nothing to restore.
			case err != nil:
				return err
			default:
				priorVersion := item.Version
				if err := ledger.Apply(&item, ledger.ModeDelete, record.Amount, record.Unit, nil); err != nil {
					return err
				}
				if err := s.commitBalance(tx, &item, priorVersion); err != nil {
					return err
				}
			}
		}

		return tx.Delete(&record).Error
	})
}

// MergeQuantity credits additional stock into an existing item, used by the
// Excel importer when a row matches an item already on file. Same-unit only.
func (s *Service) MergeQuantity(ctx context.Context, itemID uint, amount float64, unit string) (*models.StorageItem, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("merge amount must be positive")
	}

	var item models.StorageItem
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&item, itemID).Error; err != nil {
			return itemLookupError(err)
		}
		if ledger.NormalizeUnit(unit) != ledger.NormalizeUnit(item.Unit) {
			return fmt.Errorf("%w: %s vs %s", ErrUnitMismatch, unit, item.Unit)
		}
		priorVersion := item.Version
		if err := ledger.Apply(&item, ledger.ModeDelete, amount, unit, nil); err != nil {
			return err
		}
		return s.commitBalance(tx, &item, priorVersion)
	})
	if err != nil {
		return nil, err
	}

	return &item, nil
}

// FindExisting locates an item for import deduplication: CAS+location first,
// then name+location, then name alone.
func (s *Service) FindExisting(ctx context.Context, name, casNumber, location string) (*models.StorageItem, error) {
	var item models.StorageItem
	q := s.db.WithContext(ctx)

	if casNumber != "" && location != "" {
		err := q.Where("cas_number = ? AND location = ?", casNumber, location).First(&item).Error
		if err == nil {
			return &item, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	if name != "" && location != "" {
		err := q.Where("name = ? AND location = ?", name, location).First(&item).Error
		if err == nil {
			return &item, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	if name != "" {
		err := q.Where("name = ?", name).First(&item).Error
		if err == nil {
			return &item, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	return nil, nil
}

// LowStockItems returns every item at or below the given remaining-stock
// percentage. A non-positive threshold uses the configured warning threshold.
func (s *Service) LowStockItems(ctx context.Context, threshold float64) ([]models.StorageItem, []ledger.StockStatus, error) {
	if threshold <= 0 {
		threshold = s.thresholds.Warning
	}

	var items []models.StorageItem
	if err := s.db.WithContext(ctx).Order("name").Find(&items).Error; err != nil {
		return nil, nil, err
	}

	var flagged []models.StorageItem
	var statuses []ledger.StockStatus
	for i := range items {
		status := ledger.ClassifyWith(&items[i], ledger.Thresholds{Low: s.thresholds.Low, Warning: threshold})
		switch status.Status {
		case ledger.StatusOutOfStock, ledger.StatusLow, ledger.StatusLowWarning:
			flagged = append(flagged, items[i])
			statuses = append(statuses, status)
		}
	}
	return flagged, statuses, nil
}

// commitBalance persists a ledger mutation conditional on the version the
// transaction read. ledger.Apply already advanced item.Version by one.
func (s *Service) commitBalance(tx *gorm.DB, item *models.StorageItem, priorVersion int64) error {
	result := tx.Model(&models.StorageItem{}).
		Where("id = ? AND version = ?", item.ID, priorVersion).
		Updates(map[string]any{
			"current_quantity": item.CurrentQuantity,
			"version":          item.Version,
			"updated_at":       item.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

func applyItemInput(item *models.StorageItem, input ItemInput) {
	if input.Category != nil {
		item.Category = strings.TrimSpace(*input.Category)
	}
	if input.Name != nil {
		item.Name = strings.TrimSpace(*input.Name)
	}
	if input.Brand != nil {
		item.Brand = strings.TrimSpace(*input.Brand)
	}
	if input.QuantityText != nil {
		item.QuantityText = strings.TrimSpace(*input.QuantityText)
	}
	if input.Location != nil {
		item.Location = strings.TrimSpace(*input.Location)
	}
	if input.CASNumber != nil {
		item.CASNumber = strings.TrimSpace(*input.CASNumber)
	}
	if input.CurrentQuantity != nil {
		item.CurrentQuantity = *input.CurrentQuantity
	}
	if input.Unit != nil {
		item.Unit = ledger.NormalizeUnit(*input.Unit)
	}
}

func itemLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrItemNotFound
	}
	return err
}

func recordLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrRecordNotFound
	}
	return err
}
