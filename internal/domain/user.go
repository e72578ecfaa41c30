package domain

import "time"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	Email        string    `gorm:"size:320;uniqueIndex;not null" json:"email"`
	Name         string    `gorm:"size:255" json:"name"`
	Phone        string    `gorm:"size:32" json:"phone,omitempty"`
	Role         string    `gorm:"size:32;not null;default:user" json:"role"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
