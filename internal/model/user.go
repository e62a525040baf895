package model

import "time"

// User stores Telegram user metadata. UID is the stable identifier used in
// document collection paths.
type User struct {
	ID         uint   `gorm:"primaryKey"`
	UID        string `gorm:"uniqueIndex"`
	TelegramID int64  `gorm:"uniqueIndex"`
	FirstName  string
	LastName   string
	Username   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
