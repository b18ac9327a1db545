package milvus

import (
	"Jarvis_RAG/backend/go/internal/config"
	"testing"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectionName(t *testing.T) {
	assert.Equal(t, "kb_chunks_title", CollectionName("kb_chunks", "title"))
}

func TestCollectionSchema(t *testing.T) {
	sch := CollectionSchema("kb_chunks_content", 256)
	assert.Equal(t, "kb_chunks_content", sch.CollectionName)
	require.Len(t, sch.Fields, 3)
	assert.Equal(t, FieldID, sch.Fields[0].Name)
	assert.True(t, sch.Fields[0].PrimaryKey)
	assert.Equal(t, entity.FieldTypeFloatVector, sch.Fields[2].DataType)
}

func TestBuildIndex(t *testing.T) {
	idx, err := BuildIndex(&config.MilvusConfig{IndexType: "HNSW", MetricType: "COSINE", Params: map[string]interface{}{"M": 16}})
	require.NoError(t, err)
	assert.Equal(t, entity.HNSW, idx.IndexType())

	idx, err = BuildIndex(&config.MilvusConfig{IndexType: "IVF_FLAT"})
	require.NoError(t, err)
	assert.Equal(t, entity.IvfFlat, idx.IndexType())

	_, err = BuildIndex(&config.MilvusConfig{IndexType: "DISKANN_X"})
	assert.Error(t, err)
}

func TestMetricTypeAndParams(t *testing.T) {
	assert.Equal(t, entity.COSINE, MetricType(&config.MilvusConfig{}))
	assert.Equal(t, entity.L2, MetricType(&config.MilvusConfig{MetricType: "L2"}))
	assert.Equal(t, 5, intParam(map[string]interface{}{"n": 5.0}, "n", 1))
	assert.Equal(t, 1, intParam(nil, "n", 1))

	sp, err := SearchParam(&config.MilvusConfig{IndexType: "IVF_FLAT"})
	require.NoError(t, err)
	assert.NotNil(t, sp)
}
