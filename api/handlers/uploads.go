package handlers

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/elearning-factory/internal/models"
	"github.com/feichai0017/elearning-factory/internal/service/document"
	"github.com/feichai0017/elearning-factory/internal/utils/validator"
)

// uploadField is the multipart field carrying the files of a batch.
const uploadField = "files"

// GenerateForm holds the generation choices sent alongside the files.
type GenerateForm struct {
	Operation      string `form:"operation"`
	Instruction    string `form:"instruction"`
	Topic          string `form:"topic"`
	MinTokens      int    `form:"minTokens"`
	MaxTokens      int    `form:"maxTokens"`
	DocumentType   string `form:"documentType"`
	FocusAreas     string `form:"focusAreas"`
	TargetLanguage string `form:"targetLanguage"`
	Template       string `form:"template"`
}

func (f GenerateForm) options() document.GenerateOptions {
	return document.GenerateOptions{
		Operation:      f.Operation,
		Instruction:    f.Instruction,
		Topic:          f.Topic,
		MinTokens:      f.MinTokens,
		MaxTokens:      f.MaxTokens,
		DocumentType:   f.DocumentType,
		FocusAreas:     f.FocusAreas,
		TargetLanguage: f.TargetLanguage,
		Template:       f.Template,
	}
}

// readUploads validates the multipart files of the request and returns them
// in submission order, typed by their checked content. The bytes read for
// validation are handed on, so each upload is read once.
func readUploads(c *gin.Context, v *validator.DocumentValidator) ([]*models.UploadedFile, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", validator.ErrInvalidUpload, err)
	}
	headers := form.File[uploadField]

	results, err := v.ValidateFiles(headers)
	if err != nil {
		return nil, err
	}
	if err := validator.FirstInvalid(results); err != nil {
		return nil, err
	}

	files := make([]*models.UploadedFile, len(headers))
	for i, fh := range headers {
		files[i] = models.FileFromBytes(fh.Filename, results[i].FileInfo.MimeType, results[i].Data)
	}
	return files, nil
}
