package schema

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowedScope_EmptySubsetIsNotAll(t *testing.T) {
	empty := ScopeSubset()
	all := ScopeAll()

	assert.True(t, empty.IsEmpty())
	assert.False(t, empty.IsAll())
	assert.False(t, empty.Allows("hr"))

	assert.True(t, all.IsAll())
	assert.False(t, all.IsEmpty())
	assert.True(t, all.Allows("hr"))

	var zero AllowedScope
	assert.True(t, zero.IsEmpty(), "zero value grants nothing")
}

func TestAllowedScope_Subset(t *testing.T) {
	s := ScopeSubset("hr", " eng ", "", "hr")
	assert.Equal(t, []string{"eng", "hr"}, s.IDs())
	assert.True(t, s.Allows("eng"))
	assert.False(t, s.Allows("finance"))
	assert.Equal(t, "Subset(eng,hr)", s.String())
}

func TestSearchCriteria_Variants(t *testing.T) {
	assert.Equal(t, CriteriaTitles, Titles("x").Kind())
	assert.Equal(t, FieldPath, Paths("x").Kind().Field())
	assert.Equal(t, SearchTypeContent, Contents("x").Kind().SearchType())

	kw := Keywords([]string{"Vacation", " request", "vacation", ""})
	assert.Equal(t, CriteriaKeywords, kw.Kind())
	assert.Equal(t, []string{"vacation", "request"}, kw.KeywordList())
	assert.Equal(t, "vacation request", kw.Text())

	assert.Equal(t, "how do I", Contents("  how   do\tI ").Text())
	assert.True(t, Titles("   ").Empty())
}

func TestDocumentMetadataAccessors(t *testing.T) {
	doc := &Document{ID: "d", Metadata: map[string]interface{}{
		MetadataKeyTitle:      "Leave policy",
		MetadataKeyKeywords:   "vacation, leave ,",
		MetadataKeyChunkIndex: 3,
		"list":                []interface{}{"a", 1, "b"},
	}}
	assert.Equal(t, "Leave policy", doc.String(MetadataKeyTitle))
	assert.Equal(t, []string{"vacation", "leave"}, doc.Strings(MetadataKeyKeywords))
	assert.Equal(t, []string{"a", "b"}, doc.Strings("list"))
	assert.Equal(t, 3, doc.Int(MetadataKeyChunkIndex))
	assert.Equal(t, -1, doc.Int("missing"))
}

func TestError_KindMatching(t *testing.T) {
	base := errors.New("connection refused")
	err := fmt.Errorf("search step: %w", SearchBackendError("meili.search", base))

	assert.True(t, errors.Is(err, ErrSearchBackend))
	assert.False(t, errors.Is(err, ErrEmbedding))
	assert.True(t, errors.Is(err, base))

	var typed *Error
	require.True(t, errors.As(err, &typed))
	assert.Equal(t, "meili.search", typed.Op)
	assert.Contains(t, err.Error(), "search backend error")
}

func TestWrap_KeepsExistingKind(t *testing.T) {
	inner := EmbeddingError("hash.embed", errors.New("empty"))
	assert.Same(t, inner, EmbeddingError("cache.embed", inner))
	assert.Nil(t, Wrap(KindPermission, "x", nil))
}

func TestSearchType_Precedes(t *testing.T) {
	assert.True(t, SearchTypeContent.Precedes(SearchTypeTitle))
	assert.True(t, SearchTypeTitle.Precedes(SearchTypeKeyword))
	assert.False(t, SearchTypeKeyword.Precedes(SearchTypePath))
}

func TestDocument_FieldText(t *testing.T) {
	doc := &Document{
		Text: "body",
		Metadata: map[string]interface{}{
			MetadataKeyTitle:    "Vacation Policy",
			MetadataKeyPath:     "HR/Policies",
			MetadataKeyKeywords: []interface{}{"vacation", "leave"},
		},
	}
	assert.Equal(t, "Vacation Policy", doc.FieldText(FieldTitle))
	assert.Equal(t, "body", doc.FieldText(FieldContent))
	assert.Equal(t, "HR/Policies", doc.FieldText(FieldPath))
	assert.Equal(t, "vacation leave", doc.FieldText(FieldKeywords))
	assert.Equal(t, "", doc.FieldText(Field("other")))
}
