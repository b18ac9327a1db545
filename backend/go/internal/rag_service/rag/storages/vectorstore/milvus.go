package vectorstore

import (
	"Jarvis_RAG/backend/go/internal/config"
	"Jarvis_RAG/backend/go/internal/database/milvus"
	"Jarvis_RAG/backend/go/internal/rag_service/rag/schema"
	"Jarvis_RAG/backend/go/pkg/logger"
	"context"
	"fmt"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// IDHit is one nearest-neighbour match before the chunk body is loaded.
type IDHit struct {
	ID    string
	Score float64
}

// MilvusStore keeps one collection per searchable field family.
// It stores ids and vectors only; chunk bodies live in the lexical index.
type MilvusStore struct {
	log    *logger.Logger
	client client.Client
	cfg    *config.MilvusConfig
}

// NewMilvusStore wraps an initialised MilvusClient.
func NewMilvusStore(milvusClient *milvus.MilvusClient, log *logger.Logger) (*MilvusStore, error) {
	if milvusClient == nil || milvusClient.Client == nil {
		return nil, fmt.Errorf("milvus client is not initialized")
	}
	return &MilvusStore{log: log, client: milvusClient.Client, cfg: milvusClient.Config}, nil
}

// Upsert writes the field embeddings of every chunk into the matching collection.
// Chunks without an embedding for a field are skipped for that field.
func (s *MilvusStore) Upsert(ctx context.Context, docs []*schema.Document) error {
	for _, field := range schema.Fields {
		var ids, kbs []string
		var vectors [][]float32
		for _, doc := range docs {
			v := doc.Embeddings[field]
			if len(v) == 0 {
				continue
			}
			if len(v) != s.cfg.Dim {
				return schema.SearchBackendError("milvus.upsert",
					fmt.Errorf("chunk %s: %s embedding has dim %d, collection expects %d", doc.ID, field, len(v), s.cfg.Dim))
			}
			ids = append(ids, doc.ID)
			kbs = append(kbs, doc.String(schema.MetadataKeyKnowledgeBaseID))
			vectors = append(vectors, v)
		}
		if len(ids) == 0 {
			continue
		}

		coll := milvus.CollectionName(s.cfg.CollectionPrefix, string(field))
		idCol := entity.NewColumnVarChar(milvus.FieldID, ids)
		kbCol := entity.NewColumnVarChar(milvus.FieldKBID, kbs)
		embeddingCol := entity.NewColumnFloatVector(milvus.FieldEmbedding, s.cfg.Dim, vectors)

		if _, err := s.client.Upsert(ctx, coll, "" /* default partition */, idCol, kbCol, embeddingCol); err != nil {
			s.log.WithError(err).WithField("collection", coll).Error("Failed to upsert vectors into Milvus")
			return schema.SearchBackendError("milvus.upsert", err)
		}
		s.log.WithField("collection", coll).Debug(fmt.Sprintf("Upserted %d vectors", len(ids)))
	}
	return nil
}

// Delete removes the chunk ids from every field collection.
func (s *MilvusStore) Delete(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	for _, field := range schema.Fields {
		coll := milvus.CollectionName(s.cfg.CollectionPrefix, string(field))
		if err := s.client.DeleteByPks(ctx, coll, "", entity.NewColumnVarChar(milvus.FieldID, chunkIDs)); err != nil {
			s.log.WithError(err).WithField("collection", coll).Error("Failed to delete vectors from Milvus")
			return schema.SearchBackendError("milvus.delete", err)
		}
	}
	return nil
}

// Query returns the ids nearest to vector in the field's collection.
func (s *MilvusStore) Query(ctx context.Context, field schema.Field, vector []float32, topK int) ([]IDHit, error) {
	if len(vector) != s.cfg.Dim {
		return nil, schema.SearchBackendError("milvus.search",
			fmt.Errorf("query vector has dim %d, collection expects %d", len(vector), s.cfg.Dim))
	}
	sp, err := milvus.SearchParam(s.cfg)
	if err != nil {
		return nil, schema.SearchBackendError("milvus.search", err)
	}
	coll := milvus.CollectionName(s.cfg.CollectionPrefix, string(field))

	results, err := s.client.Search(
		ctx, coll, []string{}, "", []string{milvus.FieldID},
		[]entity.Vector{entity.FloatVector(vector)},
		milvus.FieldEmbedding, milvus.MetricType(s.cfg), topK, sp,
	)
	if err != nil {
		s.log.WithError(err).WithField("collection", coll).Error("Failed to search in Milvus")
		return nil, schema.SearchBackendError("milvus.search", err)
	}

	var hits []IDHit
	for _, res := range results {
		page, err := parseResult(res.ResultCount, res.Fields, res.Scores)
		if err != nil {
			return nil, schema.SearchBackendError("milvus.search", err)
		}
		hits = append(hits, page...)
	}
	return hits, nil
}

// parseResult pairs the id column with the scores of one result set.
func parseResult(count int, fields []entity.Column, scores []float32) ([]IDHit, error) {
	var idCol *entity.ColumnVarChar
	for _, f := range fields {
		if f.Name() == milvus.FieldID {
			idCol, _ = f.(*entity.ColumnVarChar)
		}
	}
	if idCol == nil {
		return nil, fmt.Errorf("search result is missing the %s field", milvus.FieldID)
	}
	ids := idCol.Data()
	if len(ids) < count || len(scores) < count {
		return nil, fmt.Errorf("search result has %d ids and %d scores for %d rows", len(ids), len(scores), count)
	}
	hits := make([]IDHit, 0, count)
	for i := 0; i < count; i++ {
		hits = append(hits, IDHit{ID: ids[i], Score: float64(scores[i])})
	}
	return hits, nil
}
