package schema

import (
	"sort"
	"strings"
)

// CriteriaKind is the tag of a SearchCriteria value.
type CriteriaKind int

const (
	CriteriaTitles CriteriaKind = iota
	CriteriaContents
	CriteriaPaths
	CriteriaKeywords
)

func (k CriteriaKind) String() string {
	switch k {
	case CriteriaTitles:
		return "titles"
	case CriteriaContents:
		return "contents"
	case CriteriaPaths:
		return "paths"
	case CriteriaKeywords:
		return "keywords"
	default:
		return "unknown"
	}
}

// Field is the index field family searched for this kind.
func (k CriteriaKind) Field() Field {
	switch k {
	case CriteriaTitles:
		return FieldTitle
	case CriteriaPaths:
		return FieldPath
	case CriteriaKeywords:
		return FieldKeywords
	default:
		return FieldContent
	}
}

// SearchType is the result tag for hits found under this kind.
func (k CriteriaKind) SearchType() SearchType {
	switch k {
	case CriteriaTitles:
		return SearchTypeTitle
	case CriteriaPaths:
		return SearchTypePath
	case CriteriaKeywords:
		return SearchTypeKeyword
	default:
		return SearchTypeContent
	}
}

// SearchCriteria is a tagged variant: exactly one kind and its normalized query.
// Build it with Titles, Contents, Paths or Keywords.
type SearchCriteria struct {
	kind     CriteriaKind
	query    string
	keywords []string
}

// Titles searches the title field.
func Titles(query string) SearchCriteria {
	return SearchCriteria{kind: CriteriaTitles, query: normalizeQuery(query)}
}

// Contents searches the chunk body.
func Contents(query string) SearchCriteria {
	return SearchCriteria{kind: CriteriaContents, query: normalizeQuery(query)}
}

// Paths searches the document path.
func Paths(query string) SearchCriteria {
	return SearchCriteria{kind: CriteriaPaths, query: normalizeQuery(query)}
}

// Keywords searches the keyword field with a deduplicated, lower-cased keyword list.
func Keywords(keywords []string) SearchCriteria {
	return SearchCriteria{kind: CriteriaKeywords, keywords: NormalizeKeywords(keywords)}
}

// Kind returns the variant tag.
func (c SearchCriteria) Kind() CriteriaKind { return c.kind }

// KeywordList returns the keyword list of a Keywords criteria, nil otherwise.
func (c SearchCriteria) KeywordList() []string {
	return append([]string(nil), c.keywords...)
}

// Text is the query string sent to the backend. Keywords are joined by spaces.
func (c SearchCriteria) Text() string {
	if c.kind == CriteriaKeywords {
		return strings.Join(c.keywords, " ")
	}
	return c.query
}

// Empty reports whether there is nothing to search for.
func (c SearchCriteria) Empty() bool {
	return strings.TrimSpace(c.Text()) == ""
}

func normalizeQuery(q string) string {
	return strings.Join(strings.Fields(q), " ")
}

// NormalizeKeywords lower-cases, trims and de-duplicates keywords, keeping first occurrence order.
func NormalizeKeywords(keywords []string) []string {
	seen := make(map[string]struct{}, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// AllowedScope is the set of knowledge bases a caller may read.
// The zero value is Subset(∅), which grants nothing.
type AllowedScope struct {
	all bool
	ids map[string]struct{}
}

// ScopeAll grants every knowledge base.
func ScopeAll() AllowedScope {
	return AllowedScope{all: true}
}

// ScopeSubset grants the listed knowledge bases only. With no ids it grants nothing.
func ScopeSubset(ids ...string) AllowedScope {
	s := AllowedScope{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			s.ids[id] = struct{}{}
		}
	}
	return s
}

// IsAll reports whether the scope is unrestricted.
func (s AllowedScope) IsAll() bool { return s.all }

// IsEmpty reports whether the scope is Subset(∅).
func (s AllowedScope) IsEmpty() bool { return !s.all && len(s.ids) == 0 }

// Allows reports whether the knowledge base is visible.
func (s AllowedScope) Allows(knowledgeBaseID string) bool {
	if s.all {
		return true
	}
	_, ok := s.ids[knowledgeBaseID]
	return ok
}

// IDs returns the sorted knowledge base ids of a Subset scope; nil for All.
func (s AllowedScope) IDs() []string {
	if s.all {
		return nil
	}
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s AllowedScope) String() string {
	if s.all {
		return "All"
	}
	return "Subset(" + strings.Join(s.IDs(), ",") + ")"
}

// ScanFilter narrows a full index scan.
type ScanFilter struct {
	// KnowledgeBaseIDs restricts the scan when non-nil. An empty non-nil slice matches nothing.
	KnowledgeBaseIDs []string
	// Limit is the page size.
	Limit int
}
