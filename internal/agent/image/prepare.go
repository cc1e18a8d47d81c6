// Package image prepares images before they are sent to a vision model and
// builds thumbnails of generated images.
package image

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/feichai0017/elearning-factory/internal/models"
)

// Preprocessor transforms a decoded image.
type Preprocessor interface {
	Process(img image.Image) (image.Image, error)
}

type GrayscaleProcessor struct{}

func (GrayscaleProcessor) Process(img image.Image) (image.Image, error) {
	return imaging.Grayscale(img), nil
}

type SharpenProcessor struct {
	Sigma float64
}

func (p SharpenProcessor) Process(img image.Image) (image.Image, error) {
	return imaging.Sharpen(img, p.Sigma), nil
}

type ContrastProcessor struct {
	Percentage float64
}

func (p ContrastProcessor) Process(img image.Image) (image.Image, error) {
	return imaging.AdjustContrast(img, p.Percentage), nil
}

// Preparer downsizes images to MaxDimension and applies Steps in order.
type Preparer struct {
	MaxDimension int
	Steps        []Preprocessor
}

func NewPreparer(maxDimension int, steps ...Preprocessor) *Preparer {
	return &Preparer{MaxDimension: maxDimension, Steps: steps}
}

// Prepare returns the bytes to upload and their media type. Images already
// within bounds and without steps are returned untouched.
func (p *Preparer) Prepare(data []byte, mimeType string) ([]byte, string, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image header: %w", err)
	}
	tooBig := p.MaxDimension > 0 && (cfg.Width > p.MaxDimension || cfg.Height > p.MaxDimension)
	if !tooBig && len(p.Steps) == 0 {
		return data, mimeType, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	if tooBig {
		img = imaging.Fit(img, p.MaxDimension, p.MaxDimension, imaging.Lanczos)
	}
	for _, step := range p.Steps {
		if img, err = step.Process(img); err != nil {
			return nil, "", fmt.Errorf("failed to preprocess image: %w", err)
		}
	}

	format, outMIME := imaging.PNG, "image/png"
	if mt := models.NormalizeMIME(mimeType); mt == "image/jpeg" || mt == "image/jpg" {
		format, outMIME = imaging.JPEG, "image/jpeg"
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format, imaging.JPEGQuality(90)); err != nil {
		return nil, "", fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), outMIME, nil
}

// Thumbnail crops and scales to exactly width x height and encodes as PNG.
func Thumbnail(data []byte, width, height int) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	thumb := imaging.Thumbnail(img, width, height, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
