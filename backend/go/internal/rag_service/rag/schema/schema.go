package schema

import (
	"fmt"
	"strings"
)

// Metadata keys shared by ingestion, chunking and search.
const (
	MetadataKeyTitle           = "title"
	MetadataKeyPath            = "path"
	MetadataKeySpaceKey        = "spaceKey"
	MetadataKeyKnowledgeBaseID = "knowledgeBaseId"
	MetadataKeyType            = "type"
	MetadataKeyPageID          = "pageId"
	MetadataKeyWebURL          = "webUrl"
	MetadataKeyObjectKey       = "objectKey"
	MetadataKeyKeywords        = "keywords"
	MetadataKeyModifiedAt      = "modifiedAt" // RFC 3339, set by the file indexer

	// Set by the chunking strategies on every chunk.
	MetadataKeyDocumentID       = "documentId"
	MetadataKeyChunkIndex       = "chunkIndex"
	MetadataKeyTotalChunks      = "totalChunks"
	MetadataKeyChunkingStrategy = "chunkingStrategy"
	// Only set by the sentence-window strategy.
	MetadataKeyWindowContext = "windowContext"
)

// Document is the central data structure representing a piece of text and its associated data.
// Chunks are Documents too: they carry their parent's metadata plus the chunk keys above.
type Document struct {
	// ID is the stable identifier of the document or chunk.
	ID string

	// Text is the string content.
	Text string

	// Embeddings holds one vector per searchable field, set at indexing time.
	Embeddings map[Field][]float32

	// Metadata holds scalar or string-list values (title, path, knowledgeBaseId, ...).
	Metadata map[string]interface{}
}

// String returns the metadata value for key when it is a string.
func (d *Document) String(key string) string {
	if d == nil || d.Metadata == nil {
		return ""
	}
	switch v := d.Metadata[key].(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return ""
	}
}

// Strings returns the metadata value for key as a string list.
// A comma separated string is split.
func (d *Document) Strings(key string) []string {
	if d == nil || d.Metadata == nil {
		return nil
	}
	switch v := d.Metadata[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	default:
		return nil
	}
}

// Int returns the metadata value for key as an int, or -1.
func (d *Document) Int(key string) int {
	if d == nil || d.Metadata == nil {
		return -1
	}
	switch v := d.Metadata[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return -1
	}
}

// CopyMetadata returns a shallow copy of md; never nil.
func CopyMetadata(md map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(md)+4)
	for k, v := range md {
		out[k] = v
	}
	return out
}

// SearchType tags which field strategy produced a SearchResult.
type SearchType string

const (
	SearchTypeKeyword SearchType = "KEYWORD"
	SearchTypeTitle   SearchType = "TITLE"
	SearchTypeContent SearchType = "CONTENT"
	SearchTypePath    SearchType = "PATH"
)

// rank gives a fixed order used only to break exact score ties during fusion.
func (t SearchType) rank() int {
	switch t {
	case SearchTypeContent:
		return 0
	case SearchTypeTitle:
		return 1
	case SearchTypePath:
		return 2
	case SearchTypeKeyword:
		return 3
	default:
		return 4
	}
}

// Precedes reports whether t wins over other when both scored the same hit equally.
func (t SearchType) Precedes(other SearchType) bool {
	return t.rank() < other.rank()
}

// SearchResult is one ranked hit returned to the pipeline. Never persisted.
type SearchResult struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Content         string     `json:"content"`
	Path            string     `json:"path"`
	SpaceKey        string     `json:"spaceKey,omitempty"`
	KnowledgeBaseID string     `json:"knowledgeBaseId"`
	Keywords        []string   `json:"keywords,omitempty"`
	Score           float64    `json:"score"`
	Type            SearchType `json:"type"`
	PageID          string     `json:"pageId,omitempty"`
	WebURL          string     `json:"webUrl,omitempty"`
	DownloadURL     string     `json:"downloadUrl,omitempty"`

	// WindowContext is the wider passage stored by sentence-window chunking.
	WindowContext string `json:"windowContext,omitempty"`
	// ObjectKey locates the source file in object storage, when there is one.
	ObjectKey string `json:"-"`
}

// NewSearchResult maps a stored chunk onto a SearchResult.
func NewSearchResult(doc *Document, score float64, typ SearchType) SearchResult {
	return SearchResult{
		ID:              doc.ID,
		Title:           doc.String(MetadataKeyTitle),
		Content:         doc.Text,
		Path:            doc.String(MetadataKeyPath),
		SpaceKey:        doc.String(MetadataKeySpaceKey),
		KnowledgeBaseID: doc.String(MetadataKeyKnowledgeBaseID),
		Keywords:        doc.Strings(MetadataKeyKeywords),
		Score:           score,
		Type:            typ,
		PageID:          doc.String(MetadataKeyPageID),
		WebURL:          doc.String(MetadataKeyWebURL),
		WindowContext:   doc.String(MetadataKeyWindowContext),
		ObjectKey:       doc.String(MetadataKeyObjectKey),
	}
}

// Field names a searchable field family of the index.
type Field string

const (
	FieldTitle    Field = "title"
	FieldContent  Field = "content"
	FieldPath     Field = "path"
	FieldKeywords Field = "keywords"
)

// Hit is a raw scored document returned by a backend query.
type Hit struct {
	Document *Document
	Score    float64
}

// Fields lists the searchable field families in a fixed order.
var Fields = []Field{FieldTitle, FieldContent, FieldPath, FieldKeywords}

// FieldText returns the text of d that field f searches over.
func (d *Document) FieldText(f Field) string {
	switch f {
	case FieldTitle:
		return d.String(MetadataKeyTitle)
	case FieldContent:
		return d.Text
	case FieldPath:
		return d.String(MetadataKeyPath)
	case FieldKeywords:
		return strings.Join(d.Strings(MetadataKeyKeywords), " ")
	default:
		return ""
	}
}

// ChatTurn is one answered exchange of a chat session.
type ChatTurn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}
