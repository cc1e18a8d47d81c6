package models

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"
	"sync/atomic"
)

// ErrAlreadyConsumed is returned when an UploadedFile is read a second time.
var ErrAlreadyConsumed = errors.New("uploaded file already consumed")

// FileKind is the extraction route a file takes, resolved once from its
// declared media type.
type FileKind int

const (
	FileKindUnknown FileKind = iota
	FileKindImage
	FileKindAudio
	FileKindDocument
)

func (k FileKind) String() string {
	switch k {
	case FileKindImage:
		return "image"
	case FileKindAudio:
		return "audio"
	case FileKindDocument:
		return "document"
	default:
		return "unknown"
	}
}

func (k FileKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText accepts the names written by MarshalText.
func (k *FileKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "image":
		*k = FileKindImage
	case "audio":
		*k = FileKindAudio
	case "document":
		*k = FileKindDocument
	case "unknown", "":
		*k = FileKindUnknown
	default:
		return fmt.Errorf("unknown file kind %q", text)
	}
	return nil
}

// ClassifyMIME maps a declared media type to a FileKind.
// audio/* is audio, image/png|jpg|jpeg go through chat OCR, anything else
// parseable is a document for the layout analyzer.
func ClassifyMIME(declared string) FileKind {
	mt := NormalizeMIME(declared)
	if mt == "" {
		return FileKindUnknown
	}
	switch {
	case strings.HasPrefix(mt, "audio/"):
		return FileKindAudio
	case mt == "image/png", mt == "image/jpg", mt == "image/jpeg":
		return FileKindImage
	default:
		return FileKindDocument
	}
}

// NormalizeMIME strips parameters and lower-cases a media type. It returns ""
// for empty or unparseable input.
func NormalizeMIME(declared string) string {
	declared = strings.TrimSpace(declared)
	if declared == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(declared)
	if err != nil {
		return ""
	}
	return strings.ToLower(mt)
}

// UploadedFile is one user-supplied file. Its content can be read exactly once.
type UploadedFile struct {
	Name     string `json:"name"`
	MIMEType string `json:"mimeType"`
	Size     int64  `json:"size"`

	open     func() (io.ReadCloser, error)
	data     []byte
	consumed atomic.Bool
}

// NewUploadedFile wraps an opener. open is called at most once.
func NewUploadedFile(name, mimeType string, size int64, open func() (io.ReadCloser, error)) *UploadedFile {
	return &UploadedFile{Name: name, MIMEType: mimeType, Size: size, open: open}
}

// FileFromBytes builds an UploadedFile over an in-memory buffer. ReadAll
// hands the buffer out as is and drops the file's reference to it.
func FileFromBytes(name, mimeType string, data []byte) *UploadedFile {
	if data == nil {
		data = []byte{}
	}
	return &UploadedFile{Name: name, MIMEType: mimeType, Size: int64(len(data)), data: data}
}

// Kind classifies the file by its declared media type.
func (f *UploadedFile) Kind() FileKind {
	return ClassifyMIME(f.MIMEType)
}

// ReadAll returns the full content. A second call fails with ErrAlreadyConsumed.
func (f *UploadedFile) ReadAll() ([]byte, error) {
	if !f.consumed.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("%s: %w", f.Name, ErrAlreadyConsumed)
	}
	if f.data != nil {
		data := f.data
		f.data = nil
		return data, nil
	}
	if f.open == nil {
		return nil, fmt.Errorf("%s: no content source", f.Name)
	}
	rc, err := f.open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", f.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", f.Name, err)
	}
	return data, nil
}

// Consumed reports whether ReadAll has been called.
func (f *UploadedFile) Consumed() bool {
	return f.consumed.Load()
}
