package models

import (
	"gorm.io/gorm"
)

// StorageItem is a trackable inventory entity: a chemical or reagent with a
// current balance held in its canonical unit. QuantityText preserves the
// human-entered original quantity ("100ml", "50g", "10瓶") from which the
// initial balance is derived.
type StorageItem struct {
	gorm.Model
	Category        string  `gorm:"not null;index" json:"category"`
	Name            string  `gorm:"uniqueIndex;not null" json:"name"`
	Brand           string  `json:"brand"`
	QuantityText    string  `gorm:"not null" json:"quantity_text"`
	Location        string  `gorm:"not null;index" json:"location"`
	CASNumber       string  `gorm:"index" json:"cas_number"`
	CurrentQuantity float64 `gorm:"not null;default:0" json:"current_quantity"`
	Unit            string  `gorm:"not null;default:g" json:"unit"`

	// Version guards concurrent balance mutations: every ledger write is
	// conditional on the version it read.
	Version int64 `gorm:"not null;default:0" json:"version"`

	UsageRecords []UsageRecord `gorm:"foreignKey:StorageItemID" json:"usage_records,omitempty"`
}
