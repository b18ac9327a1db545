package lexical

import (
	"Jarvis_RAG/backend/go/internal/config"
	"Jarvis_RAG/backend/go/internal/rag_service/rag/interfaces"
	"Jarvis_RAG/backend/go/internal/rag_service/rag/schema"
	"Jarvis_RAG/backend/go/pkg/logger"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	meili "github.com/meilisearch/meilisearch-go"
)

// 字段族到 Meilisearch 属性的映射。
var fieldAttribute = map[schema.Field]string{
	schema.FieldTitle:    "title",
	schema.FieldContent:  "text",
	schema.FieldPath:     "path",
	schema.FieldKeywords: "keywords",
}

const maxTotalHits = 100000

// chunkRecord 是写入 Meilisearch 的文档结构。
type chunkRecord struct {
	ID               string   `json:"id"`
	Text             string   `json:"text"`
	Title            string   `json:"title"`
	Path             string   `json:"path"`
	Keywords         []string `json:"keywords"`
	KnowledgeBaseID  string   `json:"knowledgeBaseId"`
	SpaceKey         string   `json:"spaceKey,omitempty"`
	Type             string   `json:"type,omitempty"`
	PageID           string   `json:"pageId,omitempty"`
	WebURL           string   `json:"webUrl,omitempty"`
	ObjectKey        string   `json:"objectKey,omitempty"`
	DocumentID       string   `json:"documentId,omitempty"`
	ChunkIndex       int      `json:"chunkIndex"`
	TotalChunks      int      `json:"totalChunks"`
	ChunkingStrategy string   `json:"chunkingStrategy,omitempty"`
	WindowContext    string   `json:"windowContext,omitempty"`
	RankingScore     float64  `json:"_rankingScore,omitempty"`
}

func toRecord(doc *schema.Document) chunkRecord {
	return chunkRecord{
		ID:               doc.ID,
		Text:             doc.Text,
		Title:            doc.String(schema.MetadataKeyTitle),
		Path:             doc.String(schema.MetadataKeyPath),
		Keywords:         doc.Strings(schema.MetadataKeyKeywords),
		KnowledgeBaseID:  doc.String(schema.MetadataKeyKnowledgeBaseID),
		SpaceKey:         doc.String(schema.MetadataKeySpaceKey),
		Type:             doc.String(schema.MetadataKeyType),
		PageID:           doc.String(schema.MetadataKeyPageID),
		WebURL:           doc.String(schema.MetadataKeyWebURL),
		ObjectKey:        doc.String(schema.MetadataKeyObjectKey),
		DocumentID:       doc.String(schema.MetadataKeyDocumentID),
		ChunkIndex:       doc.Int(schema.MetadataKeyChunkIndex),
		TotalChunks:      doc.Int(schema.MetadataKeyTotalChunks),
		ChunkingStrategy: doc.String(schema.MetadataKeyChunkingStrategy),
		WindowContext:    doc.String(schema.MetadataKeyWindowContext),
	}
}

func (r chunkRecord) document() *schema.Document {
	md := map[string]interface{}{
		schema.MetadataKeyTitle:           r.Title,
		schema.MetadataKeyPath:            r.Path,
		schema.MetadataKeyKnowledgeBaseID: r.KnowledgeBaseID,
		schema.MetadataKeyChunkIndex:      r.ChunkIndex,
		schema.MetadataKeyTotalChunks:     r.TotalChunks,
	}
	if len(r.Keywords) > 0 {
		md[schema.MetadataKeyKeywords] = r.Keywords
	}
	for k, v := range map[string]string{
		schema.MetadataKeySpaceKey:         r.SpaceKey,
		schema.MetadataKeyType:             r.Type,
		schema.MetadataKeyPageID:           r.PageID,
		schema.MetadataKeyWebURL:           r.WebURL,
		schema.MetadataKeyObjectKey:        r.ObjectKey,
		schema.MetadataKeyDocumentID:       r.DocumentID,
		schema.MetadataKeyChunkingStrategy: r.ChunkingStrategy,
		schema.MetadataKeyWindowContext:    r.WindowContext,
	} {
		if v != "" {
			md[k] = v
		}
	}
	return &schema.Document{ID: r.ID, Text: r.Text, Metadata: md}
}

// MeiliIndex 是基于 Meilisearch 的全文检索后端，同时保存分块的完整内容。
type MeiliIndex struct {
	client meili.ServiceManager
	index  string
	log    *logger.Logger
}

// NewMeiliIndex 创建客户端，不做网络调用。
func NewMeiliIndex(cfg config.MeiliConfig, log *logger.Logger) *MeiliIndex {
	return &MeiliIndex{
		client: meili.New(cfg.URL, meili.WithAPIKey(cfg.APIKey)),
		index:  cfg.Index,
		log:    log,
	}
}

// EnsureIndex 创建索引并设置可检索、可过滤属性。索引已存在时创建失败只记录日志。
func (m *MeiliIndex) EnsureIndex(ctx context.Context) error {
	if _, err := m.client.Health(); err != nil {
		return schema.SearchBackendError("meili.health", err)
	}
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        m.index,
		PrimaryKey: "id",
	}); err != nil {
		m.log.WithError(err).Debug(fmt.Sprintf("create index %s (may already exist)", m.index))
	}

	index := m.client.Index(m.index)
	filterable := []interface{}{"id", "knowledgeBaseId", "spaceKey", "documentId"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		return schema.SearchBackendError("meili.update_filterable", err)
	}
	searchable := []string{"title", "text", "path", "keywords"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		return schema.SearchBackendError("meili.update_searchable", err)
	}
	if _, err := index.UpdatePagination(&meili.Pagination{MaxTotalHits: maxTotalHits}); err != nil {
		return schema.SearchBackendError("meili.update_pagination", err)
	}
	return nil
}

// HealthCheck 检查 Meilisearch 是否可用。
func (m *MeiliIndex) HealthCheck(ctx context.Context) error {
	if _, err := m.client.Health(); err != nil {
		return schema.SearchBackendError("meili.health", err)
	}
	return nil
}

// Upsert 写入或覆盖分块，主键为分块 ID。
func (m *MeiliIndex) Upsert(ctx context.Context, chunks []*schema.Document) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return schema.SearchBackendError("meili.upsert", err)
	}
	records := make([]chunkRecord, 0, len(chunks))
	for _, c := range chunks {
		records = append(records, toRecord(c))
	}
	if _, err := m.client.Index(m.index).AddDocuments(records, nil); err != nil {
		return schema.SearchBackendError("meili.upsert", err)
	}
	return nil
}

// DeleteDocuments 删除来源文档属于 documentIDs 的全部分块。
func (m *MeiliIndex) DeleteDocuments(ctx context.Context, documentIDs []string) error {
	if len(documentIDs) == 0 {
		return nil
	}
	index := m.client.Index(m.index)
	if _, err := index.DeleteDocumentsByFilterWithContext(ctx, inFilter("documentId", documentIDs), nil); err != nil {
		return schema.SearchBackendError("meili.delete", err)
	}
	return nil
}

// ChunkIDs 返回来源文档属于 documentIDs 的分块 ID，用于同步删除向量。
func (m *MeiliIndex) ChunkIDs(ctx context.Context, documentIDs []string) ([]string, error) {
	if len(documentIDs) == 0 {
		return nil, nil
	}
	records, _, err := m.search(ctx, &meili.SearchRequest{
		Limit:                maxTotalHits,
		Filter:               []string{inFilter("documentId", documentIDs)},
		AttributesToRetrieve: []string{"id"},
	})
	if err != nil {
		return nil, schema.SearchBackendError("meili.chunk_ids", err)
	}
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

// LexicalQuery 在单个字段族上执行全文检索，分数为 _rankingScore。
func (m *MeiliIndex) LexicalQuery(ctx context.Context, field schema.Field, text string, topK int) ([]schema.Hit, error) {
	attr, ok := fieldAttribute[field]
	if !ok {
		return nil, schema.SearchBackendError("meili.lexical", fmt.Errorf("unknown field %q", field))
	}
	if strings.TrimSpace(text) == "" || topK <= 0 {
		return nil, nil
	}
	records, _, err := m.search(ctx, &meili.SearchRequest{
		Query:                text,
		Limit:                int64(topK),
		AttributesToSearchOn: []string{attr},
		ShowRankingScore:     true,
	})
	if err != nil {
		return nil, schema.SearchBackendError("meili.lexical", err)
	}
	hits := make([]schema.Hit, 0, len(records))
	for _, r := range records {
		hits = append(hits, schema.Hit{Document: r.document(), Score: r.RankingScore})
	}
	return hits, nil
}

// VectorQuery 不由 Meilisearch 提供。
func (m *MeiliIndex) VectorQuery(ctx context.Context, field schema.Field, vector []float32, topK int) ([]schema.Hit, error) {
	return nil, schema.SearchBackendError("meili.vector", fmt.Errorf("vector queries are served by the vector store"))
}

// ScanAll 使用空查询加 offset 分页遍历，pageToken 为下一页的 offset。
func (m *MeiliIndex) ScanAll(ctx context.Context, filter schema.ScanFilter, pageToken string) ([]schema.Hit, string, error) {
	if filter.KnowledgeBaseIDs != nil && len(filter.KnowledgeBaseIDs) == 0 {
		return nil, "", nil
	}
	offset := 0
	if pageToken != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil || n < 0 {
			return nil, "", schema.SearchBackendError("meili.scan", fmt.Errorf("bad page token %q", pageToken))
		}
		offset = n
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	req := &meili.SearchRequest{
		Limit:  int64(limit),
		Offset: int64(offset),
	}
	if len(filter.KnowledgeBaseIDs) > 0 {
		req.Filter = []string{inFilter("knowledgeBaseId", filter.KnowledgeBaseIDs)}
	}
	records, _, err := m.search(ctx, req)
	if err != nil {
		return nil, "", schema.SearchBackendError("meili.scan", err)
	}
	hits := make([]schema.Hit, 0, len(records))
	for _, r := range records {
		hits = append(hits, schema.Hit{Document: r.document()})
	}
	next := ""
	if len(records) == limit {
		next = strconv.Itoa(offset + limit)
	}
	return hits, next, nil
}

// Documents 按 ID 取回分块，用于补全向量检索结果。缺失的 ID 被忽略。
func (m *MeiliIndex) Documents(ctx context.Context, ids []string) (map[string]*schema.Document, error) {
	out := make(map[string]*schema.Document, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	records, _, err := m.search(ctx, &meili.SearchRequest{
		Limit:  int64(len(ids)),
		Filter: []string{inFilter("id", ids)},
	})
	if err != nil {
		return nil, schema.SearchBackendError("meili.documents", err)
	}
	for _, r := range records {
		out[r.ID] = r.document()
	}
	return out, nil
}

// search 通过 multi-search 接口执行单个查询。
func (m *MeiliIndex) search(ctx context.Context, req *meili.SearchRequest) ([]chunkRecord, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	req.IndexUID = m.index
	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{req},
	})
	if err != nil {
		return nil, 0, err
	}
	var records []chunkRecord
	var total int64
	for _, sr := range resp.Results {
		total += int64(sr.EstimatedTotalHits)
		for _, hit := range sr.Hits {
			r, err := decodeHit(hit)
			if err != nil {
				return nil, 0, err
			}
			records = append(records, r)
		}
	}
	return records, total, nil
}

func decodeHit(hit meili.Hit) (chunkRecord, error) {
	var r chunkRecord
	raw, err := json.Marshal(hit)
	if err != nil {
		return r, err
	}
	if err := json.Unmarshal(raw, &r); err != nil {
		return r, fmt.Errorf("decode hit: %w", err)
	}
	return r, nil
}

// inFilter 构造 `attr IN ["a", "b"]` 过滤表达式。
func inFilter(attr string, values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = strconv.Quote(v)
	}
	return fmt.Sprintf("%s IN [%s]", attr, strings.Join(quoted, ", "))
}

// compile-time checks
var (
	_ interfaces.SearchBackend   = (*MeiliIndex)(nil)
	_ interfaces.DocumentIndexer = (*MeiliIndex)(nil)
)
