// Package validator checks uploads before they enter the pipeline.
package validator

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"

	"github.com/feichai0017/elearning-factory/pkg/logger"
)

var (
	ErrNoFiles       = errors.New("no files uploaded")
	ErrTooManyFiles  = errors.New("too many files")
	ErrInvalidUpload = errors.New("invalid upload")
)

const (
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimePPTX = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
)

// DefaultAllowedTypes maps accepted extensions to the media types their
// content may sniff as.
var DefaultAllowedTypes = map[string][]string{
	".png":  {"image/png"},
	".jpg":  {"image/jpeg"},
	".jpeg": {"image/jpeg"},
	".pdf":  {"application/pdf"},
	".docx": {mimeDOCX, "application/zip"},
	".pptx": {mimePPTX, "application/zip"},
	".mp3":  {"audio/mpeg"},
	".wav":  {"audio/wav"},
}

// canonical is the media type handed to the pipeline for each extension.
var canonical = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".pdf":  "application/pdf",
	".docx": mimeDOCX,
	".pptx": mimePPTX,
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
}

type DocumentValidator struct {
	logger logger.Logger
	config *ValidatorConfig
}

type ValidatorConfig struct {
	MaxFileSize  int64
	MaxFiles     int
	AllowedTypes map[string][]string
	MaxPageCount int
}

type ValidationResult struct {
	IsValid  bool              `json:"isValid"`
	Errors   []ValidationError `json:"errors,omitempty"`
	FileInfo FileInfo          `json:"fileInfo"`
	// Data is the content that was checked. Only set on valid results.
	Data []byte `json:"-"`
}

type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type FileInfo struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	// MimeType is the canonical type for the extension once the content
	// has been checked against it.
	MimeType     string `json:"mimeType"`
	DetectedType string `json:"detectedType"`
	Extension    string `json:"extension"`
	Hash         string `json:"hash"`
	PageCount    int    `json:"pageCount,omitempty"`
}

// NewConfig builds a ValidatorConfig restricted to the given extensions.
// Unknown extensions are accepted on extension alone.
func NewConfig(maxFileSize int64, maxFiles int, extensions []string) *ValidatorConfig {
	allowed := make(map[string][]string, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[ext] = DefaultAllowedTypes[ext]
	}
	return &ValidatorConfig{
		MaxFileSize:  maxFileSize,
		MaxFiles:     maxFiles,
		AllowedTypes: allowed,
		MaxPageCount: 1000,
	}
}

func NewDocumentValidator(log logger.Logger, config *ValidatorConfig) *DocumentValidator {
	if config == nil {
		config = &ValidatorConfig{
			MaxFileSize:  50 * 1024 * 1024,
			MaxFiles:     20,
			AllowedTypes: DefaultAllowedTypes,
			MaxPageCount: 1000,
		}
	}

	return &DocumentValidator{
		logger: log.Named("validator"),
		config: config,
	}
}

// ValidateFile checks size, extension and sniffed content of one upload.
func (v *DocumentValidator) ValidateFile(file *multipart.FileHeader) (*ValidationResult, error) {
	result := &ValidationResult{
		IsValid: true,
		Errors:  make([]ValidationError, 0),
		FileInfo: FileInfo{
			Filename:  file.Filename,
			Size:      file.Size,
			Extension: strings.ToLower(filepath.Ext(file.Filename)),
		},
	}

	if errs := v.performBasicValidation(result.FileInfo); len(errs) > 0 {
		result.IsValid = false
		result.Errors = append(result.Errors, errs...)
		return result, nil
	}

	f, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, v.config.MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	sum := sha256.Sum256(data)
	result.FileInfo.Hash = hex.EncodeToString(sum[:])

	detected := mimetype.Detect(data)
	result.FileInfo.DetectedType = detected.String()

	if errs := v.validateMimeType(detected, result.FileInfo); len(errs) > 0 {
		result.IsValid = false
		result.Errors = append(result.Errors, errs...)
		return result, nil
	}
	result.FileInfo.MimeType = canonical[result.FileInfo.Extension]
	if result.FileInfo.MimeType == "" {
		result.FileInfo.MimeType = detected.String()
	}

	if result.FileInfo.Extension == ".pdf" {
		pages, errs := v.validatePDF(data)
		result.FileInfo.PageCount = pages
		if len(errs) > 0 {
			result.IsValid = false
			result.Errors = append(result.Errors, errs...)
			return result, nil
		}
	}

	result.Data = data
	return result, nil
}

// ValidateFiles validates a batch concurrently; results keep the input order.
func (v *DocumentValidator) ValidateFiles(files []*multipart.FileHeader) ([]*ValidationResult, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}
	if v.config.MaxFiles > 0 && len(files) > v.config.MaxFiles {
		return nil, fmt.Errorf("%w: %d uploaded, at most %d allowed", ErrTooManyFiles, len(files), v.config.MaxFiles)
	}

	results := make([]*ValidationResult, len(files))
	var wg sync.WaitGroup
	errCh := make(chan error, len(files))

	for i, file := range files {
		wg.Add(1)
		go func(index int, file *multipart.FileHeader) {
			defer wg.Done()

			result, err := v.ValidateFile(file)
			if err != nil {
				errCh <- err
				return
			}
			results[index] = result
		}(i, file)
	}

	wg.Wait()
	close(errCh)

	if err := <-errCh; err != nil {
		return nil, err
	}

	return results, nil
}

// FirstInvalid returns an ErrInvalidUpload describing the first rejected
// file, or nil when every file passed.
func FirstInvalid(results []*ValidationResult) error {
	for _, r := range results {
		if r.IsValid {
			continue
		}
		msg := "rejected"
		if len(r.Errors) > 0 {
			msg = r.Errors[0].Message
		}
		return fmt.Errorf("%w: %s: %s", ErrInvalidUpload, r.FileInfo.Filename, msg)
	}
	return nil
}

func (v *DocumentValidator) performBasicValidation(fileInfo FileInfo) []ValidationError {
	var errs []ValidationError

	if fileInfo.Size > v.config.MaxFileSize {
		errs = append(errs, ValidationError{
			Code:    "FILE_TOO_LARGE",
			Message: fmt.Sprintf("file size exceeds maximum limit of %d bytes", v.config.MaxFileSize),
			Field:   "size",
		})
	}
	if fileInfo.Size == 0 {
		errs = append(errs, ValidationError{
			Code:    "EMPTY_FILE",
			Message: "file is empty",
			Field:   "size",
		})
	}

	if _, ok := v.config.AllowedTypes[fileInfo.Extension]; !ok {
		errs = append(errs, ValidationError{
			Code:    "INVALID_FILE_TYPE",
			Message: fmt.Sprintf("file type %q is not allowed", fileInfo.Extension),
			Field:   "extension",
		})
	}

	return errs
}

func (v *DocumentValidator) validateMimeType(detected *mimetype.MIME, fileInfo FileInfo) []ValidationError {
	allowed := v.config.AllowedTypes[fileInfo.Extension]
	if len(allowed) == 0 {
		return nil
	}

	for _, m := range allowed {
		if detected.Is(m) {
			return nil
		}
	}

	v.logger.Warn("Upload content does not match its extension",
		logger.String("file", fileInfo.Filename),
		logger.String("extension", fileInfo.Extension),
		logger.String("detected", detected.String()),
	)
	return []ValidationError{{
		Code:    "INVALID_MIME_TYPE",
		Message: fmt.Sprintf("content type %s does not match extension %s", detected.String(), fileInfo.Extension),
		Field:   "mimeType",
	}}
}

func (v *DocumentValidator) validatePDF(data []byte) (int, []ValidationError) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, []ValidationError{{
			Code:    "INVALID_PDF",
			Message: "pdf could not be parsed",
			Field:   "content",
		}}
	}

	pages := r.NumPage()
	if v.config.MaxPageCount > 0 && pages > v.config.MaxPageCount {
		return pages, []ValidationError{{
			Code:    "TOO_MANY_PAGES",
			Message: fmt.Sprintf("pdf has %d pages, at most %d allowed", pages, v.config.MaxPageCount),
			Field:   "pages",
		}}
	}
	return pages, nil
}
