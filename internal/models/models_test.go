package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyMIME(t *testing.T) {
	tests := []struct {
		mime string
		want FileKind
	}{
		{"audio/wav", FileKindAudio},
		{"audio/mpeg", FileKindAudio},
		{"image/png", FileKindImage},
		{"image/jpg", FileKindImage},
		{"IMAGE/JPEG; charset=binary", FileKindImage},
		{"image/tiff", FileKindDocument},
		{"application/pdf", FileKindDocument},
		{"application/vnd.openxmlformats-officedocument.wordprocessingml.document", FileKindDocument},
		{"", FileKindUnknown},
		{"not a mime;;", FileKindUnknown},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.mime, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyMIME(tt.mime))
		})
	}
}

func TestUploadedFileReadOnce(t *testing.T) {
	f := FileFromBytes("a.pdf", "application/pdf", []byte("hello"))
	assert.False(t, f.Consumed())

	data, err := f.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.True(t, f.Consumed())

	_, err = f.ReadAll()
	assert.True(t, errors.Is(err, ErrAlreadyConsumed))
}

func TestNewAggregateContext(t *testing.T) {
	tasks := []ExtractionTask{
		{Index: 0, Text: "Intro text"},
		{Index: 1, Err: errors.New("boom")},
		{Index: 2, Text: "   "},
		{Index: 3, Text: "OCR: chart description"},
	}
	agg := NewAggregateContext(tasks)

	assert.Equal(t, "Intro text\n\nOCR: chart description", agg.Text)
	assert.Len(t, agg.Blocks, 2)
	assert.Len(t, agg.Failed(), 1)
	assert.Equal(t, 3, agg.Succeeded())
	assert.False(t, agg.IsEmpty())
	assert.True(t, NewAggregateContext(nil).IsEmpty())
}

func TestSessionAppendExchangeAndClone(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	s := NewSession("s1", now)
	s.AppendExchange("q", "a", now.Add(time.Minute))

	require.Len(t, s.History, 2)
	assert.Equal(t, RoleUser, s.History[0].Role)
	assert.Equal(t, RoleAssistant, s.History[1].Role)
	assert.Equal(t, "a", s.LastResponse)

	c := s.Clone()
	c.AppendExchange("q2", "a2", now)
	c.History[0].Content = "changed"
	assert.Len(t, s.History, 2)
	assert.Equal(t, "q", s.History[0].Content)
}

func TestProcessingStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusCancelled.Terminal())
}

func TestGenerationResultDecodesFileKinds(t *testing.T) {
	in := GenerationResult{
		TaskID: "t-1",
		Files: []ExtractionTask{
			{Index: 0, FileName: "a.pdf", Kind: FileKindDocument},
			{Index: 1, FileName: "b.png", Kind: FileKindImage},
			{Index: 2, FileName: "c.wav", Kind: FileKindAudio},
			{Index: 3, FileName: "d", Kind: FileKindUnknown},
		},
	}
	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"kind":"document"`)

	var out GenerationResult
	require.NoError(t, json.Unmarshal(data, &out))
	require.Len(t, out.Files, 4)
	for i, f := range out.Files {
		assert.Equal(t, in.Files[i].Kind, f.Kind, f.FileName)
	}

	var k FileKind
	assert.Error(t, k.UnmarshalText([]byte("spreadsheet")))
}
