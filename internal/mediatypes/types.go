package mediatypes

import (
	"path/filepath"
	"strings"

	"image-hunter/internal/options"
)

// ImageExtensions maps file extensions to whether the codecs can decode them.
var ImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
	".tiff": true,
	".tif":  true,
}

// MimeTypes maps file extensions to their MIME types.
var MimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".webp": "image/webp",
	".tiff": "image/tiff",
	".tif":  "image/tiff",
}

// IsImage reports whether path has a decodable image extension.
func IsImage(path string) bool {
	return ImageExtensions[strings.ToLower(filepath.Ext(path))]
}

// GetMimeType returns the MIME type for a given file extension.
// Returns "application/octet-stream" if the extension is not recognized.
func GetMimeType(ext string) string {
	if mime, ok := MimeTypes[strings.ToLower(ext)]; ok {
		return mime
	}
	return "application/octet-stream"
}

// FormatMimeType is the Content-Type of an encoded output format.
func FormatMimeType(f options.Format) string {
	return GetMimeType(FormatExtension(f))
}

// FormatExtension is the file extension written for an output format.
func FormatExtension(f options.Format) string {
	switch f {
	case options.FormatPNG:
		return ".png"
	case options.FormatWebP:
		return ".webp"
	default:
		return ".jpg"
	}
}

// FormatFromExtension maps an output path's extension to a format.
func FormatFromExtension(path string) (options.Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return options.FormatJPEG, true
	case ".png":
		return options.FormatPNG, true
	case ".webp":
		return options.FormatWebP, true
	default:
		return options.FormatJPEG, false
	}
}
