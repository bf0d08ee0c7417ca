package model

import "time"

// Role names for Account.Role. The GM role is the author role: only GM
// sessions may mutate shared permission and calendar state.
const (
	RoleGM     = "gm"
	RolePlayer = "player"
)

// Account represents a session login.
type Account struct {
	ID           int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string     `gorm:"uniqueIndex;size:32;not null" json:"username"`
	PasswordHash string     `gorm:"size:64;not null" json:"-"`
	Role         string     `gorm:"size:16;default:player" json:"role"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	LastLoginAt  *time.Time `json:"last_login_at"`
	LastLoginIP  string     `gorm:"size:45" json:"last_login_ip"`
}
