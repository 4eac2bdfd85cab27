package models

import (
	"gorm.io/gorm"
)

// Personnel is the lab-member identity attached to a User account. Usage
// records reference personnel by display name, so names are unique.
type Personnel struct {
	gorm.Model
	UserID *uint  `gorm:"index" json:"user_id"`
	Name   string `gorm:"uniqueIndex;not null" json:"name"`
	Active bool   `gorm:"not null;default:false" json:"is_active"`
}
