package vectorstore

import (
	"testing"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResult(t *testing.T) {
	fields := []entity.Column{
		entity.NewColumnVarChar("knowledge_base_id", []string{"hr", "hr"}),
		entity.NewColumnVarChar("id", []string{"c1", "c2"}),
	}
	hits, err := parseResult(2, fields, []float32{0.9, 0.5})
	require.NoError(t, err)
	assert.Equal(t, []IDHit{{ID: "c1", Score: float64(float32(0.9))}, {ID: "c2", Score: float64(float32(0.5))}}, hits)
}

func TestParseResult_MissingIDs(t *testing.T) {
	_, err := parseResult(1, []entity.Column{entity.NewColumnVarChar("other", []string{"x"})}, []float32{1})
	assert.Error(t, err)

	_, err = parseResult(2, []entity.Column{entity.NewColumnVarChar("id", []string{"x"})}, []float32{1, 1})
	assert.Error(t, err)
}
