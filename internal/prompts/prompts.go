// Package prompts holds the system prompts and query templates sent to the
// chat model.
package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

const (
	OCRSystemPrompt = "You are an expert OCR AI model. Please analyze the image and provide a detailed summary."
	OCRQuery        = "Focus on the details and make sure you extract all the details and return a detailed write-up of the content of the image"

	DocumentationSystemPrompt = `You are tasked with creating detailed, user-friendly documentation based on multiple documents and complex topics.
The goal is to distill this information into an easy-to-follow "How-To" guide.
This documentation should be structured with clear headings, subheadings, and step-by-step instructions that guide the user through the necessary processes or concepts.
Each section should be well-organized and written in simple language to ensure that the content is accessible and understandable to users with varying levels of expertise.
The documentation should cover the setup, configuration, and usage of tools or techniques, including practical examples and troubleshooting tips to address common issues or challenges that users might encounter.`

	TranslationSystemPrompt = `You are a professional translator. You translate technical and business material faithfully, keeping its formatting, terminology and tone.`

	SummarizationSystemPrompt = `You are an expert analyst who writes clear, accurate summaries of long and heterogeneous material for busy readers.`

	InsightsSystemPrompt = `You are an information extraction expert. You identify key insights and precise facts such as names, dates, places and figures, and you never invent information that is not in the source.`

	// TerminateToken ends the image critique loop when it closes a critic reply.
	TerminateToken = "TERMINATE"
)

// Operation is the kind of generation requested for an aggregate context.
type Operation string

const (
	OpGenerateDocumentation Operation = "generate_documentation"
	OpTranslation           Operation = "translation"
	OpSummarization         Operation = "summarization"
	OpExtractInsights       Operation = "extract_insights"
)

// Document types offered for OpGenerateDocumentation. Any other value is used
// verbatim.
const (
	DocTypeHowTo     = "How-to Guide"
	DocTypeReference = "Reference Manual"
	DocTypeAPI       = "API Documentation"
)

var operationAliases = map[string]Operation{
	"":                                 OpGenerateDocumentation,
	"generate_documentation":           OpGenerateDocumentation,
	"generate documentation":           OpGenerateDocumentation,
	"documentation":                    OpGenerateDocumentation,
	"translation":                      OpTranslation,
	"translate":                        OpTranslation,
	"summarization":                    OpSummarization,
	"summarize":                        OpSummarization,
	"extract_insights":                 OpExtractInsights,
	"extract insights and information": OpExtractInsights,
	"insights":                         OpExtractInsights,
}

// ParseOperation accepts canonical names and the UI labels.
func ParseOperation(s string) (Operation, error) {
	op, ok := operationAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("unknown operation %q", s)
	}
	return op, nil
}

// Data fills the query templates.
type Data struct {
	Instruction    string
	Context        string
	Topic          string
	MinTokens      int
	DocumentType   string
	FocusAreas     string
	TargetLanguage string
	Template       string
}

func (d Data) withDefaults() Data {
	if strings.TrimSpace(d.DocumentType) == "" {
		d.DocumentType = DocTypeHowTo
	}
	if strings.TrimSpace(d.FocusAreas) == "" {
		d.FocusAreas = "N/A"
	}
	if strings.TrimSpace(d.Topic) == "" {
		d.Topic = "the uploaded material"
	}
	if strings.TrimSpace(d.TargetLanguage) == "" {
		d.TargetLanguage = "English"
	}
	if d.MinTokens <= 0 {
		d.MinTokens = 3000
	}
	return d
}

// Build returns the system prompt and the user query for op.
func Build(op Operation, d Data) (system string, query string, err error) {
	var name string
	switch op {
	case OpGenerateDocumentation:
		name = "documentation.tmpl"
	case OpTranslation:
		name = "translation.tmpl"
	case OpSummarization:
		name = "summarization.tmpl"
	case OpExtractInsights:
		name = "insights.tmpl"
	default:
		return "", "", fmt.Errorf("unknown operation %q", op)
	}
	system = SystemPrompt(op)

	query, err = render(name, d.withDefaults())
	if err != nil {
		return "", "", err
	}
	return system, query, nil
}

// SystemPrompt returns the system prompt used for op, defaulting to the
// documentation writer.
func SystemPrompt(op Operation) string {
	switch op {
	case OpTranslation:
		return TranslationSystemPrompt
	case OpSummarization:
		return SummarizationSystemPrompt
	case OpExtractInsights:
		return InsightsSystemPrompt
	default:
		return DocumentationSystemPrompt
	}
}

// CriticSystemPrompt embeds the user's evaluation criteria.
func CriticSystemPrompt(criteria string) (string, error) {
	return render("critic.tmpl", struct{ Criteria string }{Criteria: criteria})
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}
