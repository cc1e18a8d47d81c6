package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOperation(t *testing.T) {
	tests := []struct {
		in      string
		want    Operation
		wantErr bool
	}{
		{"", OpGenerateDocumentation, false},
		{"Generate Documentation", OpGenerateDocumentation, false},
		{"translation", OpTranslation, false},
		{"Summarization", OpSummarization, false},
		{"Extract Insights and Information", OpExtractInsights, false},
		{"poetry", "", true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseOperation(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildDocumentation(t *testing.T) {
	system, query, err := Build(OpGenerateDocumentation, Data{
		Instruction: "Summarize for beginners",
		Context:     "Intro text\n\nOCR: chart description",
		Topic:       "onboarding",
		MinTokens:   1500,
	})
	require.NoError(t, err)

	assert.Equal(t, DocumentationSystemPrompt, system)
	assert.Contains(t, query, "userinputs: Summarize for beginners")
	assert.Contains(t, query, "context: Intro text\n\nOCR: chart description")
	assert.Contains(t, query, "regarding onboarding")
	assert.Contains(t, query, "minimum length of the document should be 1500 tokens")
	assert.Contains(t, query, "focus areas: N/A")
	assert.Contains(t, query, `"How-to Guide"`)
	assert.NotContains(t, query, "template for the output format")
}

func TestBuildDocumentationWithTemplate(t *testing.T) {
	_, query, err := Build(OpGenerateDocumentation, Data{Context: "c", DocumentType: DocTypeAPI, Template: "# Endpoints"})
	require.NoError(t, err)
	assert.Contains(t, query, "template for the output format:\n# Endpoints")
	assert.Contains(t, query, `"API Documentation"`)
}

func TestBuildOtherOperations(t *testing.T) {
	_, query, err := Build(OpTranslation, Data{Context: "Hallo", TargetLanguage: "French"})
	require.NoError(t, err)
	assert.Contains(t, query, "into French")
	assert.Contains(t, query, "context: Hallo")

	system, _, err := Build(OpExtractInsights, Data{Context: "x"})
	require.NoError(t, err)
	assert.Equal(t, InsightsSystemPrompt, system)

	_, query, err = Build(OpSummarization, Data{Context: "x"})
	require.NoError(t, err)
	assert.Contains(t, query, "3000 tokens")

	_, _, err = Build(Operation("bogus"), Data{})
	assert.Error(t, err)
}

func TestCriticSystemPrompt(t *testing.T) {
	p, err := CriticSystemPrompt("bold colors only")
	require.NoError(t, err)
	assert.Contains(t, p, "**Quality Standards**:\nbold colors only")
	assert.Contains(t, p, TerminateToken)
}

func TestSystemPrompt(t *testing.T) {
	assert.Equal(t, TranslationSystemPrompt, SystemPrompt(OpTranslation))
	assert.Equal(t, DocumentationSystemPrompt, SystemPrompt(""))
}
