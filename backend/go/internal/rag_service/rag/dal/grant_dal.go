package dal

import (
	"Jarvis_RAG/backend/go/internal/models"
	"context"
	"strings"

	"gorm.io/gorm"
)

// GrantDAL provides data access methods for knowledge base permission grants.
type GrantDAL struct {
	db *gorm.DB
}

// NewGrantDAL creates a new GrantDAL.
func NewGrantDAL(db *gorm.DB) *GrantDAL {
	return &GrantDAL{db: db}
}

// AutoMigrate creates or updates the grants table.
func (dal *GrantDAL) AutoMigrate(ctx context.Context) error {
	return dal.db.WithContext(ctx).AutoMigrate(&models.KBPermissionGrant{})
}

// ListGrantsByEmail retrieves all grants of a given user.
func (dal *GrantDAL) ListGrantsByEmail(ctx context.Context, email string) ([]*models.KBPermissionGrant, error) {
	var grants []*models.KBPermissionGrant
	result := dal.db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).Find(&grants)
	if result.Error != nil {
		return nil, result.Error
	}
	return grants, nil
}
