package pipeline

import (
	"Jarvis_RAG/backend/go/internal/rag_service/rag/schema"
	"context"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// StepAnalysis is the name of the query analysis step.
const StepAnalysis = "query_analysis"

// MaxKeywords caps the extracted keyword list.
const MaxKeywords = 5

// Budgets are the retrieval and context limits of a normal request.
type Budgets struct {
	TopK            int
	MaxPassages     int
	MaxContextChars int
}

var stopwords = toSet(
	"a", "about", "after", "all", "am", "an", "and", "any", "are", "as", "at",
	"be", "been", "before", "but", "by", "can", "could", "did", "do", "does",
	"for", "from", "get", "got", "had", "has", "have", "he", "her", "him", "his",
	"how", "i", "if", "in", "into", "is", "it", "its", "just", "me", "my", "need",
	"no", "not", "of", "on", "or", "our", "please", "she", "should", "so", "some",
	"than", "that", "the", "their", "them", "then", "there", "these", "they",
	"this", "to", "up", "us", "was", "we", "were", "what", "when", "where",
	"which", "who", "whom", "why", "will", "with", "would", "you", "your",
)

var greetingWords = toSet(
	"hi", "hello", "hey", "hiya", "howdy", "yo", "greetings", "thanks", "thank",
	"you", "cheers", "bye", "goodbye", "good", "morning", "afternoon", "evening",
	"there", "jarvis", "ok", "okay",
)

var troubleWords = toSet(
	"error", "errors", "fail", "fails", "failed", "failing", "failure", "broken",
	"crash", "crashes", "crashed", "bug", "issue", "issues", "problem", "problems",
	"fix", "troubleshoot", "unable", "cannot", "can't", "won't", "doesn't", "denied",
)

var howToPrefixes = []string{"how do", "how can", "how to", "how should", "how would", "what are the steps", "what is the process"}

var factualPrefixes = []string{"what", "who", "when", "where", "which", "is", "are", "does", "how many", "how much", "how long"}

// Analyze classifies the message and picks its keywords. Keywords supplied with
// the request replace the extracted ones.
func Analyze(input UserInput, b Budgets) Analysis {
	a := Analysis{
		QueryType:       Classify(input.Message),
		Keywords:        schema.NormalizeKeywords(input.Keywords),
		TopK:            b.TopK,
		MaxPassages:     b.MaxPassages,
		MaxContextChars: b.MaxContextChars,
	}
	if len(a.Keywords) == 0 {
		a.Keywords = ExtractKeywords(input.Message)
	}
	if input.IsDeepThink {
		a.TopK *= 2
		a.MaxPassages *= 2
		a.MaxContextChars *= 2
	}
	return a
}

// NewAnalysisStep builds the first pipeline step.
func NewAnalysisStep(b Budgets) Step {
	return OrdinaryStep(StepAnalysis, nil, func(_ context.Context, c ChatContext) (ChatContext, error) {
		return c.WithAnalysis(Analyze(c.UserInput(), b))
	})
}

// Classify assigns a QueryType with simple lexical rules, checked in order:
// greeting, troubleshooting, how-to, factual.
func Classify(message string) QueryType {
	lower := strings.ToLower(strings.TrimSpace(message))
	words := tokenize(lower)
	if len(words) == 0 {
		return QueryGreeting
	}

	greeting := true
	for _, w := range words {
		if !greetingWords[w] {
			greeting = false
			break
		}
	}
	if greeting {
		return QueryGreeting
	}

	for _, w := range strings.Fields(lower) {
		if troubleWords[strings.Trim(w, ".,!?;:\"()")] {
			return QueryTroubleshooting
		}
	}
	if strings.Contains(lower, "not working") || strings.Contains(lower, "doesn't work") {
		return QueryTroubleshooting
	}

	joined := strings.Join(words, " ")
	for _, p := range howToPrefixes {
		if strings.HasPrefix(joined, p) {
			return QueryHowTo
		}
	}
	for _, p := range []string{"steps to", "guide to", "instructions for", "procedure for"} {
		if strings.Contains(joined, p) {
			return QueryHowTo
		}
	}
	for _, p := range factualPrefixes {
		if joined == p || strings.HasPrefix(joined, p+" ") {
			return QueryFactual
		}
	}
	return QueryGeneral
}

// ExtractKeywords drops stopwords and short tokens, then ranks by length
// (longest first, first occurrence breaking ties) and keeps MaxKeywords.
func ExtractKeywords(message string) []string {
	type candidate struct {
		word  string
		first int
	}
	seen := make(map[string]bool)
	var cands []candidate
	for i, w := range tokenize(strings.ToLower(message)) {
		if stopwords[w] || utf8.RuneCountInString(w) < 2 || seen[w] {
			continue
		}
		seen[w] = true
		cands = append(cands, candidate{word: w, first: i})
	}
	sort.SliceStable(cands, func(i, j int) bool {
		li, lj := utf8.RuneCountInString(cands[i].word), utf8.RuneCountInString(cands[j].word)
		if li != lj {
			return li > lj
		}
		return cands[i].first < cands[j].first
	})
	if len(cands) > MaxKeywords {
		cands = cands[:MaxKeywords]
	}
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.word
	}
	return out
}

func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func toSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}
