package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfg "github.com/feichai0017/elearning-factory/config"
	"github.com/feichai0017/elearning-factory/pkg/logger"
)

type fakeS3 struct {
	objects map[string][]byte
	types   map[string]string
	listed  []types.Object
	deleted []string
	failPut error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.failPut != nil {
		return nil, f.failPut
	}
	if _, ok := in.Body.(io.Seeker); !ok {
		return nil, errors.New("unseekable body")
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = data
	f.types[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(string(data)))}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(in.Key))
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	return &s3.ListObjectsV2Output{Contents: f.listed, IsTruncated: aws.Bool(false)}, nil
}

type onlyReader struct{ r io.Reader }

func (o onlyReader) Read(p []byte) (int, error) { return o.r.Read(p) }

func TestStoreGetDelete(t *testing.T) {
	api := newFakeS3()
	st := NewS3StorageWithClient(api, "uploads", "us-east-1", logger.NewTestLogger())
	ctx := context.Background()

	key, err := st.Store(ctx, onlyReader{strings.NewReader("%PDF-1.4")}, "a/report.pdf")
	require.NoError(t, err)
	assert.Equal(t, "a/report.pdf", key)
	assert.Equal(t, "application/pdf", api.types[key])

	rc, err := st.Get(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))

	require.NoError(t, st.Delete(ctx, key))
	_, err = st.Get(ctx, key)
	assert.Error(t, err)

	assert.Equal(t, "uploads", st.Bucket())
	assert.Equal(t, "s3", st.Type())
}

func TestStoreFailure(t *testing.T) {
	api := newFakeS3()
	api.failPut = errors.New("access denied")
	st := NewS3StorageWithClient(api, "uploads", "us-east-1", logger.NewTestLogger())

	_, err := st.Store(context.Background(), strings.NewReader("x"), "k")
	assert.ErrorContains(t, err, "failed to store file")
}

func TestCleanupBefore(t *testing.T) {
	now := time.Now()
	api := newFakeS3()
	api.listed = []types.Object{
		{Key: aws.String("old"), LastModified: aws.Time(now.Add(-48 * time.Hour))},
		{Key: aws.String("new"), LastModified: aws.Time(now)},
		{Key: aws.String("older"), LastModified: aws.Time(now.Add(-72 * time.Hour))},
	}
	st := NewS3StorageWithClient(api, "uploads", "us-east-1", logger.NewTestLogger())

	n, err := st.CleanupBefore(context.Background(), now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []string{"old", "older"}, api.deleted)
}

func TestURLPresignsWithoutNetwork(t *testing.T) {
	client := s3.New(s3.Options{
		Region:      "us-east-1",
		Credentials: aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider("AKID", "SECRET", "")),
	})
	st := NewS3StorageWithClient(client, "exports", "us-east-1", logger.NewTestLogger())

	u, err := st.URL(context.Background(), "sess/output.docx", 15*time.Minute)
	require.NoError(t, err)
	assert.Contains(t, u, "output.docx")
	assert.Contains(t, u, "X-Amz-Expires=900")
}

func TestURLWithoutPresigner(t *testing.T) {
	st := NewS3StorageWithClient(newFakeS3(), "exports", "us-east-1", logger.NewTestLogger())
	_, err := st.URL(context.Background(), "k", time.Minute)
	assert.Error(t, err)
}

func TestNewS3StorageRequiresConfig(t *testing.T) {
	_, err := NewS3Storage(context.Background(), &cfg.S3Config{}, logger.NewTestLogger())
	assert.ErrorIs(t, err, ErrNotConfigured)
}
