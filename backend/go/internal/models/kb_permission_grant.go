package models

import "time"

// KnowledgeBaseWildcard grants every knowledge base.
const KnowledgeBaseWildcard = "*"

// KBPermissionGrant gives one user read access to a knowledge base, optionally
// narrowed to the paths matching PathPattern (glob, "/" separated).
// The combination of Email, KnowledgeBaseID and PathPattern should be unique.
type KBPermissionGrant struct {
	ID              uint      `gorm:"primaryKey"`
	Email           string    `gorm:"index:idx_grant,unique;not null;size:255"` // Indexed for fast lookups by user
	KnowledgeBaseID string    `gorm:"index:idx_grant,unique;not null;size:128"` // "*" means every knowledge base
	PathPattern     string    `gorm:"index:idx_grant,unique;size:512"`          // Empty means any path
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TableName pins the table so renames of the struct do not move data.
func (KBPermissionGrant) TableName() string {
	return "kb_permission_grants"
}
