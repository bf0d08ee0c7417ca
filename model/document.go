package model

import (
	"time"

	"gorm.io/datatypes"
)

// PermissionLevel is the ordered default-access level of a Document.
type PermissionLevel = int

const (
	PermissionNone     PermissionLevel = 0
	PermissionObserver PermissionLevel = 1
	PermissionOwner    PermissionLevel = 2
)

// Document is a generic journal document with a structured metadata bag.
// Domain records (quests) live inside Flags, addressed by namespace and
// key; the document itself only knows its name, folder and default
// permission level.
type Document struct {
	ID         string         `gorm:"primaryKey;size:36" json:"id"`
	Name       string         `gorm:"size:255;not null" json:"name"`
	Folder     string         `gorm:"index:idx_doc_folder;size:64" json:"folder"`
	Permission int            `gorm:"default:0" json:"permission"`
	Flags      datatypes.JSON `json:"flags"` // {"<namespace>": {"<key>": {...}}}
	CreatedAt  time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Document) TableName() string { return "documents" }
