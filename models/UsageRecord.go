package models

import (
	"time"

	"gorm.io/gorm"
)

// UsageRecord is a draw-down event against a StorageItem, attributable to a
// person and a date. The descriptive fields are snapshotted from the item at
// recording time so the history stays readable after item edits; Remaining is
// the item balance immediately after the debit, in the item's unit.
type UsageRecord struct {
	gorm.Model
	StorageItemID *uint `gorm:"index" json:"storage_item_id"`
	UserID        *uint `json:"user_id,omitempty"`

	Category     string `gorm:"not null" json:"category"`
	ProductName  string `gorm:"not null;index" json:"product_name"`
	QuantityText string `json:"quantity_text"`
	Location     string `json:"location"`
	CASNumber    string `json:"cas_number"`

	Personnel string    `gorm:"not null;index" json:"personnel"`
	UsedOn    time.Time `gorm:"not null;index" json:"used_on"`
	Amount    float64   `gorm:"not null" json:"amount"`
	Remaining float64   `gorm:"not null" json:"remaining"`
	Unit      string    `json:"unit"`
	Notes     string    `gorm:"type:text" json:"notes"`
}
