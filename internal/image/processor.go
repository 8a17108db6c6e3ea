// Package image sanitizes user-uploaded event and profile photos before
// they reach object storage. Phone cameras embed GPS coordinates and
// device details in EXIF; re-encoding through libvips drops all of it.
package image

import (
	"bytes"
	"fmt"
	"io"

	"github.com/h2non/bimg"
)

// ProcessorConfig holds configuration for image processing.
type ProcessorConfig struct {
	// Quality for JPEG/WebP encoding (1-100, default: 85)
	Quality int
	// OutputFormat selects the target encoding (jpeg, webp, png).
	// Empty keeps the upload's original format.
	OutputFormat string
	// StripMetadata removes all EXIF/metadata (default: true)
	StripMetadata bool
	// MaxWidth limits image width (0 = no limit)
	MaxWidth int
	// MaxHeight limits image height (0 = no limit)
	MaxHeight int
}

// DefaultConfig returns the defaults used for event images.
func DefaultConfig() ProcessorConfig {
	return ProcessorConfig{
		Quality:       85,
		OutputFormat:  "jpeg",
		StripMetadata: true,
		MaxWidth:      0,
		MaxHeight:     0,
	}
}

// Processor handles image sanitization and re-encoding.
type Processor struct {
	config ProcessorConfig
}

// NewProcessor creates a new image processor with the given config.
func NewProcessor(config ProcessorConfig) *Processor {
	return &Processor{config: config}
}

// Process sanitizes an image with the default config: EXIF stripped,
// re-encoded as JPEG, orientation corrected.
func Process(r io.Reader) ([]byte, error) {
	return ProcessWithConfig(r, DefaultConfig())
}

// ProcessWithConfig processes an image with custom configuration.
func ProcessWithConfig(r io.Reader, config ProcessorConfig) ([]byte, error) {
	inputBytes, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read input image: %w", err)
	}

	// Metadata also doubles as validation that the bytes decode at all.
	img := bimg.NewImage(inputBytes)
	metadata, err := img.Metadata()
	if err != nil {
		return nil, fmt.Errorf("failed to read image metadata: %w", err)
	}

	options := bimg.Options{
		Quality:       config.Quality,
		StripMetadata: config.StripMetadata,
		// Apply the EXIF orientation before the tag is stripped, or
		// portrait photos come out sideways.
		Rotate: bimg.Angle(0),
	}

	switch config.OutputFormat {
	case "jpeg", "jpg":
		options.Type = bimg.JPEG
	case "webp":
		options.Type = bimg.WEBP
	case "png":
		options.Type = bimg.PNG
	default:
		options.Type = determineImageType(metadata.Type)
	}

	if config.MaxWidth > 0 || config.MaxHeight > 0 {
		width := metadata.Size.Width
		height := metadata.Size.Height

		// bimg preserves aspect ratio when only one dimension is set.
		if config.MaxWidth > 0 && width > config.MaxWidth {
			options.Width = config.MaxWidth
		}
		if config.MaxHeight > 0 && height > config.MaxHeight {
			options.Height = config.MaxHeight
		}
	}

	outputBytes, err := img.Process(options)
	if err != nil {
		return nil, fmt.Errorf("failed to process image: %w", err)
	}

	return outputBytes, nil
}

// ProcessBytes is a convenience wrapper for processing image bytes directly.
func ProcessBytes(inputBytes []byte) ([]byte, error) {
	return ProcessWithConfig(bytes.NewReader(inputBytes), DefaultConfig())
}

// determineImageType maps bimg's string type to bimg.ImageType constant.
func determineImageType(typeStr string) bimg.ImageType {
	switch typeStr {
	case "jpeg":
		return bimg.JPEG
	case "png":
		return bimg.PNG
	case "webp":
		return bimg.WEBP
	case "gif":
		return bimg.GIF
	case "svg":
		return bimg.SVG
	default:
		return bimg.JPEG
	}
}

// VerifyNoEXIF reports whether the image is free of identifying EXIF
// fields (camera make/model, GPS, timestamps).
func VerifyNoEXIF(imageBytes []byte) (bool, error) {
	img := bimg.NewImage(imageBytes)
	metadata, err := img.Metadata()
	if err != nil {
		return false, fmt.Errorf("failed to read image metadata: %w", err)
	}

	exif := metadata.EXIF
	hasEXIF := exif.Make != "" || exif.Model != "" ||
		exif.GPSLatitude != "" || exif.GPSLongitude != "" ||
		exif.DateTimeOriginal != "" || exif.Software != ""

	return !hasEXIF, nil
}
