package validator

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"testing"

	"github.com/go-pdf/fpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/elearning-factory/pkg/logger"
)

type upload struct {
	name string
	data []byte
}

func fileHeaders(t *testing.T, uploads ...upload) []*multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for _, u := range uploads {
		part, err := w.CreateFormFile("files", u.name)
		require.NoError(t, err)
		_, err = part.Write(u.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req, err := http.NewRequest(http.MethodPost, "/", body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", w.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(32<<20))
	return req.MultipartForm.File["files"]
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func pdfBytes(t *testing.T, pages int) []byte {
	t.Helper()
	doc := fpdf.New("P", "mm", "A4", "")
	for i := 0; i < pages; i++ {
		doc.AddPage()
		doc.SetFont("Helvetica", "", 12)
		doc.Cell(40, 10, "Intro text")
	}
	var buf bytes.Buffer
	require.NoError(t, doc.Output(&buf))
	return buf.Bytes()
}

func TestValidateFilesAcceptsSupportedTypes(t *testing.T) {
	v := NewDocumentValidator(logger.NewTestLogger(), nil)
	headers := fileHeaders(t,
		upload{"chart.PNG", pngBytes(t)},
		upload{"intro.pdf", pdfBytes(t, 2)},
		upload{"talk.mp3", append([]byte("ID3\x03\x00\x00\x00\x00\x00\x00"), make([]byte, 64)...)},
	)

	results, err := v.ValidateFiles(headers)
	require.NoError(t, err)
	require.Len(t, results, 3)
	require.NoError(t, FirstInvalid(results))

	assert.Equal(t, "image/png", results[0].FileInfo.MimeType)
	assert.Equal(t, ".png", results[0].FileInfo.Extension)
	assert.Len(t, results[0].FileInfo.Hash, 64)
	assert.Equal(t, "application/pdf", results[1].FileInfo.MimeType)
	assert.Equal(t, 2, results[1].FileInfo.PageCount)
	assert.Equal(t, "audio/mpeg", results[2].FileInfo.MimeType)
	assert.Equal(t, pngBytes(t), results[0].Data)
}

func TestValidateFileRejects(t *testing.T) {
	tests := []struct {
		name string
		file upload
		code string
	}{
		{name: "extension not allowed", file: upload{"run.exe", []byte("MZ....")}, code: "INVALID_FILE_TYPE"},
		{name: "legacy powerpoint", file: upload{"old.ppt", []byte("\xd0\xcf\x11\xe0\xa1\xb1\x1a\xe1")}, code: "INVALID_FILE_TYPE"},
		{name: "legacy word", file: upload{"old.doc", []byte("\xd0\xcf\x11\xe0\xa1\xb1\x1a\xe1")}, code: "INVALID_FILE_TYPE"},
		{name: "content does not match extension", file: upload{"photo.png", []byte("%PDF-1.4\n")}, code: "INVALID_MIME_TYPE"},
		{name: "broken pdf", file: upload{"broken.pdf", []byte("%PDF-1.4\nnot really a pdf")}, code: "INVALID_PDF"},
		{name: "empty", file: upload{"empty.pdf", nil}, code: "EMPTY_FILE"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			v := NewDocumentValidator(logger.NewTestLogger(), nil)
			result, err := v.ValidateFile(fileHeaders(t, tt.file)[0])
			require.NoError(t, err)
			assert.False(t, result.IsValid)
			assert.Nil(t, result.Data)
			require.NotEmpty(t, result.Errors)
			assert.Equal(t, tt.code, result.Errors[0].Code)

			err = FirstInvalid([]*ValidationResult{result})
			assert.ErrorIs(t, err, ErrInvalidUpload)
			assert.Contains(t, err.Error(), tt.file.name)
		})
	}
}

func TestValidateFileSizeLimit(t *testing.T) {
	v := NewDocumentValidator(logger.NewTestLogger(), NewConfig(10, 5, []string{"png"}))
	result, err := v.ValidateFile(fileHeaders(t, upload{"chart.png", pngBytes(t)})[0])
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.Equal(t, "FILE_TOO_LARGE", result.Errors[0].Code)
}

func TestValidateFilesBatchLimits(t *testing.T) {
	v := NewDocumentValidator(logger.NewTestLogger(), NewConfig(1<<20, 1, []string{".png"}))

	_, err := v.ValidateFiles(nil)
	assert.ErrorIs(t, err, ErrNoFiles)

	_, err = v.ValidateFiles(fileHeaders(t, upload{"a.png", pngBytes(t)}, upload{"b.png", pngBytes(t)}))
	assert.ErrorIs(t, err, ErrTooManyFiles)
}

func TestNewConfigNormalizesExtensions(t *testing.T) {
	c := NewConfig(1, 1, []string{"PDF", ".Docx", ".txt"})
	assert.Contains(t, c.AllowedTypes, ".pdf")
	assert.Contains(t, c.AllowedTypes, ".docx")
	assert.Contains(t, c.AllowedTypes, ".txt")
	assert.Empty(t, c.AllowedTypes[".txt"])
}
