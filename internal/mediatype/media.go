// Package mediatype holds the upload formats the analyzer accepts.
package mediatype

import (
	"fmt"
	"path/filepath"
	"strings"
)

type Kind string

const (
	KindPDF   Kind = "pdf"
	KindImage Kind = "image"
)

var imageExtensions = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".bmp":  "image/bmp",
	".webp": "image/webp",
	".gif":  "image/gif",
}

var imageMimeTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/tiff": ".tiff",
	"image/bmp":  ".bmp",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// Normalize lowercases, drops parameters and folds common aliases.
func Normalize(mimeType string) string {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if idx := strings.Index(mt, ";"); idx >= 0 {
		mt = strings.TrimSpace(mt[:idx])
	}
	switch mt {
	case "image/jpg", "image/pjpeg":
		return "image/jpeg"
	case "image/tif", "image/x-tiff":
		return "image/tiff"
	case "image/x-ms-bmp":
		return "image/bmp"
	}
	return mt
}

// Classify decides how a file is extracted from its declared MIME type, falling back
// to the file extension when the declared type is missing or generic.
func Classify(mimeType, filename string) (Kind, error) {
	mt := Normalize(mimeType)
	ext := strings.ToLower(filepath.Ext(filename))

	switch {
	case mt == "application/pdf":
		return KindPDF, nil
	case imageMimeTypes[mt] != "":
		return KindImage, nil
	case mt != "" && mt != "application/octet-stream":
		return "", fmt.Errorf("unsupported mime type %q", mimeType)
	case ext == ".pdf":
		return KindPDF, nil
	case imageExtensions[ext] != "":
		return KindImage, nil
	default:
		return "", fmt.Errorf("unsupported file %q", filename)
	}
}

// FileExtension picks a temp-file extension that OCR tooling recognizes.
func FileExtension(mimeType, filename string) string {
	if ext := strings.ToLower(filepath.Ext(filename)); ext == ".pdf" || imageExtensions[ext] != "" {
		return ext
	}
	mt := Normalize(mimeType)
	if mt == "application/pdf" {
		return ".pdf"
	}
	if ext, ok := imageMimeTypes[mt]; ok {
		return ext
	}
	return ".bin"
}

// IsSupported reports whether uploads of this type are accepted.
func IsSupported(mimeType string) bool {
	mt := Normalize(mimeType)
	return mt == "application/pdf" || imageMimeTypes[mt] != ""
}

// ForExtension maps a filename extension to its canonical MIME type.
func ForExtension(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == ".pdf" {
		return "application/pdf"
	}
	return imageExtensions[ext]
}
