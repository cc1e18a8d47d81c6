package models

import (
	"strings"
	"time"
)

// BlockSeparator joins per-file results inside an AggregateContext.
const BlockSeparator = "\n\n"

// ExtractionTask is one classify-and-analyze unit of work. Text stays empty
// when Err is set.
type ExtractionTask struct {
	Index    int           `json:"index"`
	FileName string        `json:"fileName"`
	MIMEType string        `json:"mimeType"`
	Kind     FileKind      `json:"kind"`
	Text     string        `json:"-"`
	Chars    int           `json:"chars"`
	Err      error         `json:"-"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Failed reports whether the task ended with an error.
func (t ExtractionTask) Failed() bool {
	return t.Err != nil
}

// AggregateContext is the ordered concatenation of the non-empty results of
// one batch.
type AggregateContext struct {
	Blocks     []string         `json:"-"`
	Text       string           `json:"text"`
	TokenCount int              `json:"tokenCount"`
	Tasks      []ExtractionTask `json:"tasks"`
}

// NewAggregateContext keeps the non-empty task results in index order.
// tasks must already be ordered by submission index.
func NewAggregateContext(tasks []ExtractionTask) *AggregateContext {
	blocks := make([]string, 0, len(tasks))
	for _, t := range tasks {
		if t.Err == nil && strings.TrimSpace(t.Text) != "" {
			blocks = append(blocks, t.Text)
		}
	}
	return &AggregateContext{
		Blocks: blocks,
		Text:   strings.Join(blocks, BlockSeparator),
		Tasks:  tasks,
	}
}

func (a *AggregateContext) IsEmpty() bool {
	return a == nil || strings.TrimSpace(a.Text) == ""
}

// Failed returns the tasks that ended with an error.
func (a *AggregateContext) Failed() []ExtractionTask {
	var out []ExtractionTask
	for _, t := range a.Tasks {
		if t.Failed() {
			out = append(out, t)
		}
	}
	return out
}

func (a *AggregateContext) Succeeded() int {
	n := 0
	for _, t := range a.Tasks {
		if !t.Failed() {
			n++
		}
	}
	return n
}
