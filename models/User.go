package models

import (
	"time"

	"gorm.io/gorm"
)

// User represents an application account that can authenticate with the
// platform. New registrations start inactive and wait for the administrator
// (the first account) to approve them.
type User struct {
	gorm.Model
	Username     string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	Active       bool   `gorm:"not null;default:false"`
	LastLogin    *time.Time

	Personnel *Personnel `gorm:"foreignKey:UserID"`
}

// AdminUserID identifies the administrator account: the first user registered.
const AdminUserID uint = 1

// IsAdmin reports whether the user is the administrator account.
func (u *User) IsAdmin() bool {
	return u.ID == AdminUserID
}
