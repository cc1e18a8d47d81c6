// Package tokenizer counts tokens the way the downstream chat model does.
package tokenizer

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// DefaultEncoding matches the gpt-4 / gpt-3.5 chat model family.
const DefaultEncoding = "cl100k_base"

var loaderOnce sync.Once

// Counter counts tokens with one BPE encoding. It is safe for concurrent use.
type Counter struct {
	encoding string
	enc      *tiktoken.Tiktoken
}

// NewCounter loads the named encoding from the embedded BPE ranks, so no
// network access is needed at startup.
func NewCounter(encoding string) (*Counter, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})

	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load encoding %s: %w", encoding, err)
	}
	return &Counter{encoding: encoding, enc: enc}, nil
}

// Count returns the number of tokens in text.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(c.enc.Encode(text, nil, nil))
}

func (c *Counter) Encoding() string {
	return c.encoding
}
