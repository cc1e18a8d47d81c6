package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/elearning-factory/config"
	"github.com/feichai0017/elearning-factory/internal/models"
	"github.com/feichai0017/elearning-factory/pkg/logger"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewOpenAIClient(&config.OpenAIConfig{
		APIKey:       "test-key",
		BaseURL:      srv.URL + "/v1",
		ChatModel:    "gpt-4o",
		VisionModel:  "gpt-4o-vision",
		WhisperModel: "whisper-1",
		ImageModel:   "dall-e-3",
	}, logger.NewTestLogger())
	require.NoError(t, err)
	return c
}

func TestNewOpenAIClientNotConfigured(t *testing.T) {
	_, err := NewOpenAIClient(&config.OpenAIConfig{}, logger.NewTestLogger())
	assert.ErrorIs(t, err, models.ErrNotConfigured)
}

func TestGenerateChatResponse(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"a guide"},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`)
	})

	resp, err := c.GenerateChatResponse(context.Background(), ChatRequest{
		SystemPrompt: "sys",
		History: []models.ConversationTurn{
			{Role: models.RoleUser, Content: "q1"},
			{Role: models.RoleAssistant, Content: "a1"},
		},
		Query:     "q2",
		MaxTokens: 3000,
	})
	require.NoError(t, err)
	assert.Equal(t, "a guide", resp.Content)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
	assert.Equal(t, "stop", resp.FinishReason)

	assert.Equal(t, "gpt-4o", got["model"])
	msgs := got["messages"].([]any)
	require.Len(t, msgs, 4)
	roles := make([]string, 0, len(msgs))
	for _, m := range msgs {
		roles = append(roles, m.(map[string]any)["role"].(string))
	}
	assert.Equal(t, []string{"system", "user", "assistant", "user"}, roles)
}

func TestGenerateChatResponseWithImage(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"OCR: chart"}}]}`)
	})

	resp, err := c.GenerateChatResponse(context.Background(), ChatRequest{
		Query:  "describe",
		Images: []ImageAttachment{{MIMEType: "image/jpg", Data: []byte{1, 2, 3}}},
	})
	require.NoError(t, err)
	assert.Equal(t, "OCR: chart", resp.Content)
	assert.Equal(t, "gpt-4o-vision", got["model"])

	msgs := got["messages"].([]any)
	require.Len(t, msgs, 1)
	parts := msgs[0].(map[string]any)["content"].([]any)
	require.Len(t, parts, 2)
	url := parts[1].(map[string]any)["image_url"].(map[string]any)["url"].(string)
	assert.Equal(t, "data:image/jpeg;base64,"+base64.StdEncoding.EncodeToString([]byte{1, 2, 3}), url)
}

func TestGenerateChatResponseRejectsUnknownImageType(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})
	_, err := c.GenerateChatResponse(context.Background(), ChatRequest{
		Query:  "describe",
		Images: []ImageAttachment{{MIMEType: "image/tiff", Data: []byte{1}}},
	})
	assert.Error(t, err)
}

func TestGenerateChatResponseStreaming(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, d := range []string{"Hel", "lo"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", d)
		}
		fmt.Fprint(w, "data: {\"choices\":[{\"index\":0,\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[],\"usage\":{\"prompt_tokens\":3,\"completion_tokens\":2,\"total_tokens\":5}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	var deltas []string
	resp, err := c.GenerateChatResponse(context.Background(), ChatRequest{
		Query:   "hi",
		OnDelta: func(d string) { deltas = append(deltas, d) },
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "lo"}, deltas)
	assert.Equal(t, "Hello", resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, 5, resp.Usage.TotalTokens)
}

func TestGenerateChatResponseAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	})
	_, err := c.GenerateChatResponse(context.Background(), ChatRequest{Query: "hi"})
	assert.Error(t, err)
}

func TestTranscribe(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/audio/transcriptions"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		f, _, err := r.FormFile("file")
		require.NoError(t, err)
		data, _ := io.ReadAll(f)
		assert.Equal(t, "RIFF", string(data))
		fmt.Fprint(w, `{"text":"spoken words"}`)
	})

	path := filepath.Join(t.TempDir(), "a.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF"), 0o600))

	text, err := c.Transcribe(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "spoken words", text)
}

func TestGenerateImage(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/images/generations"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprintf(w, `{"created":1,"data":[{"b64_json":%q,"revised_prompt":"a cat, vivid"}]}`, base64.StdEncoding.EncodeToString(png))
	})

	img, err := c.GenerateImage(context.Background(), ImageRequest{Prompt: "a cat", Quality: "hd"})
	require.NoError(t, err)
	assert.Equal(t, png, img.Data)
	assert.Equal(t, "a cat, vivid", img.RevisedPrompt)
	assert.Equal(t, "hd", got["quality"])
	assert.Equal(t, "b64_json", got["response_format"])
	assert.Equal(t, "1024x1024", got["size"])
}
