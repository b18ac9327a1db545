package permissions

import (
	"Jarvis_RAG/backend/go/internal/models"
	"context"
	"strings"
)

// Grant is one readable knowledge base, optionally narrowed by a path glob.
type Grant struct {
	KnowledgeBaseID string `json:"knowledgeBaseId"`
	PathPattern     string `json:"pathPattern,omitempty"`
}

// GrantSource resolves the grants of a user.
type GrantSource interface {
	GrantsFor(ctx context.Context, email string) ([]Grant, error)
}

type grantLister interface {
	ListGrantsByEmail(ctx context.Context, email string) ([]*models.KBPermissionGrant, error)
}

// StoreSource reads grants from the relational grant table.
type StoreSource struct {
	dal grantLister
}

// NewStoreSource adapts a grant DAL to a GrantSource.
func NewStoreSource(dal grantLister) *StoreSource {
	return &StoreSource{dal: dal}
}

func (s *StoreSource) GrantsFor(ctx context.Context, email string) ([]Grant, error) {
	rows, err := s.dal.ListGrantsByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	grants := make([]Grant, 0, len(rows))
	for _, row := range rows {
		grants = append(grants, Grant{KnowledgeBaseID: row.KnowledgeBaseID, PathPattern: row.PathPattern})
	}
	return grants, nil
}

// StaticSource is a fixed email -> grants table. The "*" entry applies to
// users without their own entry. Used in offline mode and tests.
type StaticSource map[string][]Grant

func (s StaticSource) GrantsFor(_ context.Context, email string) ([]Grant, error) {
	if grants, ok := s[email]; ok {
		return grants, nil
	}
	return s[models.KnowledgeBaseWildcard], nil
}

// NormalizeEmail lower-cases and trims an email so every lookup uses the same key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
