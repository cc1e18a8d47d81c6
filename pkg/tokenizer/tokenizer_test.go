package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterCount(t *testing.T) {
	c, err := NewCounter("")
	require.NoError(t, err)
	assert.Equal(t, DefaultEncoding, c.Encoding())

	assert.Equal(t, 0, c.Count(""))
	assert.Equal(t, 2, c.Count("hello world"))

	text := "Intro text\n\nOCR: chart description"
	first := c.Count(text)
	assert.Greater(t, first, 0)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, c.Count(text))
	}
}

func TestNewCounterUnknownEncoding(t *testing.T) {
	_, err := NewCounter("no_such_encoding")
	assert.Error(t, err)
}
