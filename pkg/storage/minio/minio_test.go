package minio

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfg "github.com/feichai0017/elearning-factory/config"
	"github.com/feichai0017/elearning-factory/pkg/logger"
)

func TestURLPresignsWithoutNetwork(t *testing.T) {
	client, err := NewClient(&cfg.MinioConfig{
		Endpoint:   "localhost:9000",
		AccessKey:  "minio",
		SecretKey:  "minio123",
		Region:     "us-east-1",
		BucketName: "uploads",
	})
	require.NoError(t, err)

	st := NewMinioStorageWithClient(client, "uploads", logger.NewTestLogger())
	u, err := st.URL(context.Background(), "sess/a.pdf", 10*time.Minute)
	require.NoError(t, err)
	assert.Contains(t, u, "http://localhost:9000/uploads/sess/a.pdf")
	assert.Contains(t, u, "X-Amz-Expires=600")
	assert.Equal(t, "minio", st.Type())
}

func TestNewMinioStorageRequiresConfig(t *testing.T) {
	_, err := NewMinioStorage(context.Background(), &cfg.MinioConfig{BucketName: "x"}, logger.NewTestLogger())
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/pdf", contentType("a/B.PDF"))
	assert.Equal(t, "application/octet-stream", contentType("noext"))
}
