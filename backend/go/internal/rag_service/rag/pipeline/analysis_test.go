package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := map[string]QueryType{
		"How do I request vacation?":           QueryHowTo,
		"how to reset my password":             QueryHowTo,
		"What are the steps to onboard a hire": QueryHowTo,
		"Hi!":                                  QueryGreeting,
		"thanks, good morning":                 QueryGreeting,
		"":                                     QueryGreeting,
		"The VPN client fails with error 809":  QueryTroubleshooting,
		"printer not working on floor 3":       QueryTroubleshooting,
		"What is the expense limit?":           QueryFactual,
		"who approves travel":                  QueryFactual,
		"Quarterly planning notes":             QueryGeneral,
	}
	for msg, want := range cases {
		assert.Equal(t, want, Classify(msg), msg)
	}
}

func TestExtractKeywords(t *testing.T) {
	assert.Equal(t, []string{"vacation", "request"}, ExtractKeywords("How do I request vacation?"))
	assert.Equal(t, []string{"reimbursement", "expense", "travel", "claim"},
		ExtractKeywords("travel expense claim and reimbursement for travel"))
	assert.Len(t, ExtractKeywords("alpha bravo charlie delta echo foxtrot golf"), MaxKeywords)
	assert.Empty(t, ExtractKeywords("how do I"))
}

func TestAnalyze(t *testing.T) {
	a := Analyze(UserInput{Message: "How do I request vacation?"}, testBudgets)
	assert.Equal(t, QueryHowTo, a.QueryType)
	assert.Equal(t, []string{"vacation", "request"}, a.Keywords)
	assert.Equal(t, 50, a.TopK)
	assert.True(t, a.RequiresDocuments())

	a = Analyze(UserInput{Message: "How do I request vacation?", Keywords: []string{" PTO ", "pto", "Leave"}, IsDeepThink: true}, testBudgets)
	assert.Equal(t, []string{"pto", "leave"}, a.Keywords)
	assert.Equal(t, 100, a.TopK)
	assert.Equal(t, 16, a.MaxPassages)
	assert.Equal(t, 12000, a.MaxContextChars)

	assert.False(t, Analyze(UserInput{Message: "hello"}, testBudgets).RequiresDocuments())
}
